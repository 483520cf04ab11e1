package decodersdk

import (
	"errors"
	"sync"

	astiav "github.com/asticode/go-astiav"
)

// Recorder tees packets from an already-open input format context into
// an mp4 output, stream-copying every mapped video and audio stream
// untouched. It drops leading packets until the first video keyframe,
// and treats a serial change on its tee queues as the start of a new
// GOP (so the keyframe gate re-arms after a seek without starting a new
// file).
type Recorder struct {
	events *EventDispatcher
	source string

	mu sync.Mutex
	oc *astiav.FormatContext
	pb *astiav.IOContext

	streamMapping map[int]int

	hasKeyFrame bool
	lastSerial  int

	videoQueue *PacketQueue
	audioQueue *PacketQueue

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewRecorder creates a recorder reporting lifecycle events under
// source.
func NewRecorder(events *EventDispatcher, source string) *Recorder {
	return &Recorder{
		events:     events,
		source:     source,
		videoQueue: NewPacketQueue(256),
		audioQueue: NewPacketQueue(256),
	}
}

func (r *Recorder) emit(t EventType, path, errMsg string) {
	if r.events == nil {
		return
	}
	r.events.TriggerEvent(t, RecordingEventArgs{
		baseEventArgs: newBaseEventArgs(r.source),
		OutputPath:    path,
		ErrorMessage:  errMsg,
	})
}

// Start opens path as an mp4 container, stream-copying every
// video/audio stream of input into it, and begins the recording loop.
func (r *Recorder) Start(path string, input *astiav.FormatContext) error {
	oc, err := astiav.AllocOutputFormatContext(nil, "mp4", path)
	if err != nil || oc == nil {
		r.emit(EventRecordingError, path, "AllocOutputFormatContext failed")
		return newError(ErrKindRecordOpenFailed, "Recorder.Start", err)
	}

	ioFlags := astiav.NewIOContextFlags(astiav.IOContextFlagWrite)
	pb, err := astiav.OpenIOContext(path, ioFlags, nil, nil)
	if err != nil {
		oc.Free()
		r.emit(EventRecordingError, path, "OpenIOContext failed")
		return newError(ErrKindRecordOpenFailed, "Recorder.Start", err)
	}
	oc.SetPb(pb)

	mapping := make(map[int]int)
	hasVideo := false
	for _, is := range input.Streams() {
		par := is.CodecParameters()
		mt := par.MediaType()
		if mt != astiav.MediaTypeVideo && mt != astiav.MediaTypeAudio {
			continue
		}
		os := oc.NewStream(nil)
		if os == nil {
			continue
		}
		if err := par.Copy(os.CodecParameters()); err != nil {
			continue
		}
		os.SetTimeBase(is.TimeBase())
		mapping[is.Index()] = os.Index()
		if mt == astiav.MediaTypeVideo {
			hasVideo = true
		}
	}
	if !hasVideo {
		_ = pb.Close()
		pb.Free()
		oc.Free()
		r.emit(EventRecordingError, path, "no video stream to record")
		return newError(ErrKindRecordOpenFailed, "Recorder.Start", errors.New("no video stream"))
	}

	if err := oc.WriteHeader(nil); err != nil {
		_ = pb.Close()
		pb.Free()
		oc.Free()
		r.emit(EventRecordingError, path, "WriteHeader failed")
		return newError(ErrKindRecordOpenFailed, "Recorder.Start", err)
	}

	r.mu.Lock()
	r.oc = oc
	r.pb = pb
	r.streamMapping = mapping
	r.hasKeyFrame = false
	r.mu.Unlock()

	r.videoQueue.Start()
	r.audioQueue.Start()
	r.stopCh = make(chan struct{})
	r.doneCh = make(chan struct{})
	go r.loop(r.stopCh, r.doneCh)

	r.emit(EventRecordingStarted, path, "")
	return nil
}

// tee hands a copy of pkt to the recorder's internal queues if
// streamIndex belongs to a mapped stream, tagged with the source queue's
// serial so the keyframe gate can detect a GOP-breaking seek. Called
// from the Demuxer's read loop for every video/audio packet while this
// recorder is active.
func (r *Recorder) tee(pkt *astiav.Packet, streamIndex, serial int) {
	r.mu.Lock()
	_, ok := r.streamMapping[streamIndex]
	isVideoStream := r.isVideoStreamLocked(streamIndex)
	r.mu.Unlock()
	if !ok {
		return
	}

	p := NewPacket()
	if err := p.Ref(pkt); err != nil {
		return
	}
	p.SetSerial(serial)

	if isVideoStream {
		r.videoQueue.Push(p, 0)
	} else {
		r.audioQueue.Push(p, 0)
	}
}

func (r *Recorder) isVideoStreamLocked(streamIndex int) bool {
	if r.oc == nil {
		return false
	}
	outIdx, ok := r.streamMapping[streamIndex]
	if !ok || outIdx >= len(r.oc.Streams()) {
		return false
	}
	return r.oc.Streams()[outIdx].CodecParameters().MediaType() == astiav.MediaTypeVideo
}

func (r *Recorder) loop(stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	for {
		select {
		case <-stopCh:
			return
		default:
		}

		if pkt, ok := r.videoQueue.Pop(1); ok {
			r.writeVideo(pkt)
			continue
		}
		if pkt, ok := r.audioQueue.Pop(1); ok {
			r.writeAudio(pkt)
			continue
		}
	}
}

func (r *Recorder) writeVideo(pkt *Packet) {
	defer pkt.Free()
	r.mu.Lock()
	defer r.mu.Unlock()

	if pkt.Serial() != r.lastSerial {
		r.hasKeyFrame = false
		r.lastSerial = pkt.Serial()
	}
	if !r.hasKeyFrame {
		if pkt.AVPacket().Flags()&astiav.PacketFlagKey == 0 {
			return
		}
		r.hasKeyFrame = true
	}

	r.writeMappedLocked(pkt)
}

func (r *Recorder) writeAudio(pkt *Packet) {
	defer pkt.Free()
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.hasKeyFrame {
		return
	}

	r.writeMappedLocked(pkt)
}

// writeMappedLocked stream-copies pkt into its mapped output stream,
// rescaling its timestamps between the (identical) input/output time
// bases. Caller holds r.mu.
func (r *Recorder) writeMappedLocked(pkt *Packet) {
	outIdx, ok := r.streamMapping[pkt.AVPacket().StreamIndex()]
	if !ok || r.oc == nil {
		return
	}
	outStream := r.oc.Streams()[outIdx]
	pkt.AVPacket().SetStreamIndex(outIdx)
	pkt.AVPacket().RescaleTs(outStream.TimeBase(), outStream.TimeBase())
	_ = r.oc.WriteInterleavedFrame(pkt.AVPacket())
}

// Stop writes the trailer and releases all resources.
func (r *Recorder) Stop() error {
	r.mu.Lock()
	stopCh, doneCh := r.stopCh, r.doneCh
	r.mu.Unlock()
	if stopCh != nil {
		close(stopCh)
		<-doneCh
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var err error
	if r.oc != nil {
		err = r.oc.WriteTrailer()
	}

	if r.pb != nil {
		_ = r.pb.Close()
		r.pb.Free()
		r.pb = nil
	}
	if r.oc != nil {
		r.oc.Free()
		r.oc = nil
	}

	if err != nil {
		r.emit(EventRecordingError, "", err.Error())
		return newError(ErrKindRecordWriteFailed, "Recorder.Stop", err)
	}
	r.emit(EventRecordingStopped, "", "")
	return nil
}
