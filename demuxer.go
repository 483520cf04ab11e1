package decodersdk

import (
	"errors"
	"sync"
	"time"

	astiav "github.com/asticode/go-astiav"
	"github.com/asticode/go-astikit"
	"github.com/google/uuid"

	"github.com/yaxinqq/decodersdk/internal/ffopts"
)

const demuxErrorThreshold = 5

// Demuxer reads compressed packets from a source and fans them out into
// per-media-type bounded queues, tagged with the queue's current serial
// so downstream decoders can detect a seek or reconnect. It also tees
// packets into a Recorder's queues while recording is active.
type Demuxer struct {
	events *EventDispatcher
	source string

	mu         sync.Mutex
	fc         *astiav.FormatContext
	videoIdx   int
	audioIdx   int
	isRealTime bool

	videoQueue *PacketQueue
	audioQueue *PacketQueue

	recorder *Recorder

	running  bool
	paused   bool
	reopened bool
	stopCh   chan struct{}
	doneCh   chan struct{}

	incomingRate *astikit.CounterRateStat

	preBufferMu       sync.Mutex
	preBufferCfg      PreBufferConfig
	preBufferCallback func()
	preBufferDone     bool
	videoBuffered     int
	audioBuffered     int
}

// NewDemuxer creates a Demuxer reporting lifecycle events through
// events.
func NewDemuxer(events *EventDispatcher) *Demuxer {
	return &Demuxer{
		events:       events,
		source:       uuid.NewString(),
		videoIdx:     -1,
		audioIdx:     -1,
		videoQueue:   NewPacketQueue(0),
		audioQueue:   NewPacketQueue(0),
		incomingRate: astikit.NewCounterRateStat(),
	}
}

// FormatContext exposes the underlying astiav format context. Valid only
// between Open and Close.
func (d *Demuxer) FormatContext() *astiav.FormatContext {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.fc
}

// PacketQueue returns the queue fed by packets of the given media type.
func (d *Demuxer) PacketQueue(mt astiav.MediaType) *PacketQueue {
	switch mt {
	case astiav.MediaTypeVideo:
		return d.videoQueue
	case astiav.MediaTypeAudio:
		return d.audioQueue
	default:
		return nil
	}
}

// StreamIndex returns the input stream index selected for the given
// media type, or -1 if none was found.
func (d *Demuxer) StreamIndex(mt astiav.MediaType) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	switch mt {
	case astiav.MediaTypeVideo:
		return d.videoIdx
	case astiav.MediaTypeAudio:
		return d.audioIdx
	default:
		return -1
	}
}

func (d *Demuxer) emit(t EventType, args EventArgs) {
	if d.events != nil {
		d.events.TriggerEvent(t, args)
	}
}

func (d *Demuxer) streamEvent(t EventType, description string, errCode int, errMsg string) {
	d.emit(t, StreamEventArgs{
		baseEventArgs: newBaseEventArgs(d.source),
		Description:   description,
		ErrorCode:     errCode,
		ErrorMessage:  errMsg,
	})
}

// Open opens url, probes its streams, and starts the demux loop. If
// isReopen is set, a StreamReadRecovery event is emitted once the first
// packet is successfully read, in addition to the StreamOpened event
// every successful open emits.
func (d *Demuxer) Open(url string, isRealTime bool, isReopen bool) error {
	d.streamEvent(EventStreamOpening, url, 0, "")

	fc := astiav.AllocFormatContext()
	if fc == nil {
		err := errors.New("AllocFormatContext failed")
		d.streamEvent(EventStreamOpening, url, -1, err.Error())
		return newError(ErrKindIoOpenFailed, "Demuxer.Open", err)
	}

	opts := ffopts.Dictionary(ffopts.OpenOptions{IsRealTime: isRealTime})
	defer opts.Free()

	if err := fc.OpenInput(url, nil, opts); err != nil {
		fc.Free()
		d.streamEvent(EventStreamOpening, url, -1, err.Error())
		return newError(ErrKindIoOpenFailed, "Demuxer.Open", err)
	}
	if err := fc.FindStreamInfo(nil); err != nil {
		fc.CloseInput()
		fc.Free()
		d.streamEvent(EventStreamOpening, url, -1, err.Error())
		return newError(ErrKindIoOpenFailed, "Demuxer.Open", err)
	}

	videoIdx, audioIdx := -1, -1
	for i, s := range fc.Streams() {
		switch s.CodecParameters().MediaType() {
		case astiav.MediaTypeVideo:
			if videoIdx < 0 {
				videoIdx = i
			}
		case astiav.MediaTypeAudio:
			if audioIdx < 0 {
				audioIdx = i
			}
		}
	}
	if videoIdx < 0 && audioIdx < 0 {
		fc.CloseInput()
		fc.Free()
		err := errors.New("no audio or video stream found")
		d.streamEvent(EventStreamOpening, url, -1, err.Error())
		return newError(ErrKindIoOpenFailed, "Demuxer.Open", err)
	}

	d.mu.Lock()
	d.fc = fc
	d.videoIdx = videoIdx
	d.audioIdx = audioIdx
	d.isRealTime = isRealTime
	d.reopened = isReopen
	d.mu.Unlock()

	d.start()

	d.streamEvent(EventStreamOpened, url, 0, "")
	return nil
}

// Close stops the demux loop, stops any active recording, and releases
// the format context.
func (d *Demuxer) Close() error {
	d.streamEvent(EventStreamClose, "", 0, "")

	if d.IsRecording() {
		_ = d.StopRecording()
	}

	d.stop()

	d.mu.Lock()
	fc := d.fc
	d.fc = nil
	d.mu.Unlock()

	if fc != nil {
		fc.CloseInput()
		fc.Free()
	}

	d.streamEvent(EventStreamClosed, "", 0, "")
	return nil
}

// IsRealTime reports whether the currently open source was opened as a
// real-time stream.
func (d *Demuxer) IsRealTime() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.isRealTime
}

// IsPaused reports whether the demux loop is currently paused.
func (d *Demuxer) IsPaused() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.paused
}

// Pause suspends reading from the source; Resume continues it.
func (d *Demuxer) Pause() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		d.paused = true
	}
}

// Resume continues reading from the source after Pause.
func (d *Demuxer) Resume() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.paused = false
}

// Seek repositions the source at position and flushes both packet
// queues, bumping their serial. Unsupported on real-time sources.
func (d *Demuxer) Seek(position time.Duration) error {
	d.mu.Lock()
	fc := d.fc
	isRealTime := d.isRealTime
	videoIdx, audioIdx := d.videoIdx, d.audioIdx
	d.mu.Unlock()

	if isRealTime {
		return newError(ErrKindSeekUnsupported, "Demuxer.Seek", errors.New("real-time source"))
	}
	if fc == nil {
		return newError(ErrKindSeekFailed, "Demuxer.Seek", errors.New("not open"))
	}

	streamIdx := videoIdx
	if streamIdx < 0 {
		streamIdx = audioIdx
	}
	if streamIdx < 0 {
		return newError(ErrKindSeekFailed, "Demuxer.Seek", errors.New("no stream"))
	}

	tb := fc.Streams()[streamIdx].TimeBase()
	seekPos := astiav.RescaleQ(int64(position.Seconds()*float64(time.Second)), astiav.NewRational(1, 1000000000), tb)

	if err := fc.SeekFrame(streamIdx, seekPos, astiav.NewSeekFlags()); err != nil {
		return newError(ErrKindSeekFailed, "Demuxer.Seek", err)
	}

	d.videoQueue.Flush()
	d.audioQueue.Flush()
	return nil
}

func (d *Demuxer) start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return
	}
	d.videoQueue.Start()
	d.audioQueue.Start()
	d.stopCh = make(chan struct{})
	d.doneCh = make(chan struct{})
	d.running = true
	go d.demuxLoop(d.stopCh, d.doneCh)
}

func (d *Demuxer) stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	d.running = false
	stopCh, doneCh := d.stopCh, d.doneCh
	d.mu.Unlock()

	d.videoQueue.Abort()
	d.audioQueue.Abort()
	close(stopCh)
	<-doneCh
}

func (d *Demuxer) demuxLoop(stopCh chan struct{}, doneCh chan struct{}) {
	defer close(doneCh)

	pkt := astiav.AllocPacket()
	defer pkt.Free()

	errorTimes := 0
	firstPacket := true

	for {
		select {
		case <-stopCh:
			return
		default:
		}

		d.mu.Lock()
		fc := d.fc
		paused := d.paused
		videoIdx, audioIdx := d.videoIdx, d.audioIdx
		d.mu.Unlock()

		if paused {
			time.Sleep(time.Millisecond)
			continue
		}
		if d.videoQueue.IsFull() || d.audioQueue.IsFull() {
			time.Sleep(time.Millisecond)
			continue
		}

		if err := fc.ReadFrame(pkt); err != nil {
			if errors.Is(err, astiav.ErrEagain) {
				continue
			}
			if errors.Is(err, astiav.ErrEof) {
				d.pushEOF(videoIdx, audioIdx)
				d.streamEvent(EventStreamEnded, "", 0, "")
				time.Sleep(time.Millisecond)
				continue
			}
			errorTimes++
			if errorTimes >= demuxErrorThreshold {
				d.streamEvent(EventStreamReadError, "", -1, err.Error())
				return
			}
			continue
		}

		errorTimes = 0
		d.incomingRate.Add(float64(pkt.Size() * 8))

		if d.reopened {
			d.streamEvent(EventStreamReadRecovery, "", 0, "")
			d.mu.Lock()
			d.reopened = false
			d.mu.Unlock()
		}
		if firstPacket {
			d.streamEvent(EventStreamReadData, "", 0, "")
			firstPacket = false
		}

		si := pkt.StreamIndex()

		switch si {
		case videoIdx:
			d.teeToRecorder(pkt, si, d.videoQueue.Serial())
			p := NewPacket()
			if err := p.Ref(pkt); err == nil {
				d.videoQueue.Push(p, -1)
				d.notePreBufferProgress(true)
			}
		case audioIdx:
			d.teeToRecorder(pkt, si, d.audioQueue.Serial())
			p := NewPacket()
			if err := p.Ref(pkt); err == nil {
				d.audioQueue.Push(p, -1)
				d.notePreBufferProgress(false)
			}
		}

		pkt.Unref()
	}
}

func (d *Demuxer) pushEOF(videoIdx, audioIdx int) {
	if videoIdx >= 0 {
		p := NewPacket()
		d.videoQueue.Push(p, -1)
	}
	if audioIdx >= 0 {
		p := NewPacket()
		d.audioQueue.Push(p, -1)
	}
}

func (d *Demuxer) teeToRecorder(pkt *astiav.Packet, streamIndex, serial int) {
	d.mu.Lock()
	rec := d.recorder
	d.mu.Unlock()
	if rec == nil {
		return
	}
	rec.tee(pkt, streamIndex, serial)
}

// StartRecording begins tee-recording the demuxed streams into an mp4
// file at path.
func (d *Demuxer) StartRecording(path string) error {
	d.mu.Lock()
	fc := d.fc
	if d.recorder != nil {
		d.mu.Unlock()
		return newError(ErrKindRecordOpenFailed, "Demuxer.StartRecording", errors.New("already recording"))
	}
	d.mu.Unlock()

	if fc == nil {
		return newError(ErrKindRecordOpenFailed, "Demuxer.StartRecording", errors.New("demuxer not open"))
	}

	rec := NewRecorder(d.events, d.source)
	if err := rec.Start(path, fc); err != nil {
		return err
	}

	d.mu.Lock()
	d.recorder = rec
	d.mu.Unlock()
	return nil
}

// StopRecording stops any active recording and finalizes the output
// file.
func (d *Demuxer) StopRecording() error {
	d.mu.Lock()
	rec := d.recorder
	d.recorder = nil
	d.mu.Unlock()

	if rec == nil {
		return nil
	}
	return rec.Stop()
}

// IsRecording reports whether a recording is currently active.
func (d *Demuxer) IsRecording() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.recorder != nil
}

// SetPreBufferConfig arms the pre-buffer gate: once the demux loop has
// queued enough video frames and/or audio packets to satisfy cfg (AND'd
// if cfg.RequireBothStreams, OR'd otherwise), onReady is invoked exactly
// once. A no-op if cfg.Enabled is false.
func (d *Demuxer) SetPreBufferConfig(cfg PreBufferConfig, onReady func()) {
	d.preBufferMu.Lock()
	defer d.preBufferMu.Unlock()
	d.preBufferCfg = cfg
	d.preBufferCallback = onReady
	d.preBufferDone = false
	d.videoBuffered = 0
	d.audioBuffered = 0
}

// ClearPreBufferCallback disarms the pre-buffer gate without firing it.
func (d *Demuxer) ClearPreBufferCallback() {
	d.preBufferMu.Lock()
	defer d.preBufferMu.Unlock()
	d.preBufferCfg = PreBufferConfig{}
	d.preBufferCallback = nil
	d.preBufferDone = true
}

// PreBufferProgress reports the gate's current buffered counts and
// readiness, for UI/diagnostic polling.
func (d *Demuxer) PreBufferProgress() PreBufferProgress {
	d.preBufferMu.Lock()
	defer d.preBufferMu.Unlock()

	p := PreBufferProgress{
		VideoBufferedFrames:  d.videoBuffered,
		AudioBufferedPackets: d.audioBuffered,
		VideoRequiredFrames:  d.preBufferCfg.VideoFrames,
		AudioRequiredPackets: d.preBufferCfg.AudioPackets,
	}
	p.IsVideoReady = p.VideoRequiredFrames <= 0 || p.VideoBufferedFrames >= p.VideoRequiredFrames
	p.IsAudioReady = p.AudioRequiredPackets <= 0 || p.AudioBufferedPackets >= p.AudioRequiredPackets
	if d.preBufferCfg.RequireBothStreams {
		p.IsOverallReady = p.IsVideoReady && p.IsAudioReady
	} else {
		p.IsOverallReady = p.IsVideoReady || p.IsAudioReady
	}
	return p
}

// notePreBufferProgress records one more queued video frame (or audio
// packet) and fires the gate's callback the first time the configured
// threshold is reached.
func (d *Demuxer) notePreBufferProgress(isVideo bool) {
	d.preBufferMu.Lock()
	if !d.preBufferCfg.Enabled || d.preBufferDone {
		d.preBufferMu.Unlock()
		return
	}
	if isVideo {
		d.videoBuffered++
	} else {
		d.audioBuffered++
	}

	videoReady := d.preBufferCfg.VideoFrames <= 0 || d.videoBuffered >= d.preBufferCfg.VideoFrames
	audioReady := d.preBufferCfg.AudioPackets <= 0 || d.audioBuffered >= d.preBufferCfg.AudioPackets
	ready := videoReady || audioReady
	if d.preBufferCfg.RequireBothStreams {
		ready = videoReady && audioReady
	}

	var cb func()
	if ready {
		d.preBufferDone = true
		cb = d.preBufferCallback
	}
	d.preBufferMu.Unlock()

	if cb != nil {
		cb()
	}
}
