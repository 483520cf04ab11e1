package decodersdk

import (
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"time"

	astiav "github.com/asticode/go-astiav"
)

// decoderLoop is implemented by VideoDecoder and AudioDecoder to run
// their media-specific decode loop.
type decoderLoop interface {
	mediaType() astiav.MediaType
	decodeLoop()
}

// DecoderBase holds the state and lifecycle shared by the video and
// audio decoders: the codec context, output frame queue, running clock,
// and start/stop/seek/speed plumbing. VideoDecoder and AudioDecoder
// embed it and supply their own decodeLoop.
type DecoderBase struct {
	demuxer *Demuxer
	sync    *SyncController
	events  *EventDispatcher
	clock   *Clock

	mu        sync.Mutex
	stream    *astiav.Stream
	codecCtx  *astiav.CodecContext
	streamIdx int

	frameQueue *FrameQueue

	frameRateControlEnabled bool

	running         atomic.Bool
	speed           atomic.Uint64 // math.Float64bits
	seekPos         atomic.Uint64 // math.Float64bits
	waitingPreBuffer atomic.Bool

	sleepMu   sync.Mutex
	sleepCond *sync.Cond

	stopCh chan struct{}
	doneCh chan struct{}
}

func newDecoderBase(demuxer *Demuxer, sc *SyncController, events *EventDispatcher, clock *Clock, queueSize int, keepLast bool) *DecoderBase {
	b := &DecoderBase{
		demuxer:                  demuxer,
		sync:                     sc,
		events:                   events,
		clock:                    clock,
		frameQueue:               NewFrameQueue(queueSize, keepLast),
		frameRateControlEnabled:  true,
	}
	b.sleepCond = sync.NewCond(&b.sleepMu)
	b.speed.Store(math.Float64bits(1.0))
	return b
}

// FrameQueue exposes the decoder's output frame queue.
func (b *DecoderBase) FrameQueue() *FrameQueue { return b.frameQueue }

// Speed reports the current playback speed multiplier.
func (b *DecoderBase) Speed() float64 {
	return math.Float64frombits(b.speed.Load())
}

// SetSpeed changes the playback speed; rejected (false) if speed <= 0.
func (b *DecoderBase) SetSpeed(speed float64) bool {
	if speed <= 0 {
		return false
	}
	if speed == b.Speed() {
		return true
	}
	b.speed.Store(math.Float64bits(speed))
	return true
}

// SetSeekPos records the timeline position a seek targeted, in seconds;
// frames with an earlier pts are dropped once decoding resumes.
func (b *DecoderBase) SetSeekPos(pos float64) {
	b.seekPos.Store(math.Float64bits(pos))
}

func (b *DecoderBase) seekPosValue() float64 {
	return math.Float64frombits(b.seekPos.Load())
}

// isBeforeSeekTarget reports whether pts falls before the position the
// most recent seek targeted, meaning the frame must be dropped rather
// than queued. The video loop checks it before updating its clock; the
// audio loop updates its clock first. A NaN pts (timestamp unavailable)
// is never considered before the target.
func (b *DecoderBase) isBeforeSeekTarget(pts float64) bool {
	return !math.IsNaN(pts) && pts < b.seekPosValue()
}

func (b *DecoderBase) emit(t EventType, args EventArgs) {
	if b.events != nil {
		b.events.TriggerEvent(t, args)
	}
}

// openCodec resolves the stream index for mediaType on the demuxer,
// finds and opens a matching decoder, and wires up b.stream/codecCtx.
// setupHW, if non-nil, is given a chance to configure hardware
// acceleration on the codec context before it is opened.
func (b *DecoderBase) openCodec(mediaType astiav.MediaType, setupHW func(*astiav.CodecContext) bool) error {
	fc := b.demuxer.FormatContext()
	if fc == nil {
		return newError(ErrKindIoOpenFailed, "DecoderBase.openCodec", errors.New("demuxer not open"))
	}

	idx := b.demuxer.StreamIndex(mediaType)
	if idx < 0 {
		return newError(ErrKindIoOpenFailed, "DecoderBase.openCodec", errors.New("no such stream"))
	}

	stream := fc.Streams()[idx]
	par := stream.CodecParameters()

	dec := astiav.FindDecoder(par.CodecID())
	if dec == nil {
		b.emit(EventCreateDecoderFailed, DecoderEventArgs{
			baseEventArgs: newBaseEventArgs(b.demuxer.source),
			MediaType:     mediaTypeOf(mediaType),
			StreamIndex:   idx,
			ErrorMessage:  "decoder not found",
		})
		return newError(ErrKindIoOpenFailed, "DecoderBase.openCodec", errors.New("decoder not found"))
	}

	ctx := astiav.AllocCodecContext(dec)
	if ctx == nil {
		return newError(ErrKindIoOpenFailed, "DecoderBase.openCodec", errors.New("AllocCodecContext failed"))
	}
	if err := par.ToCodecContext(ctx); err != nil {
		ctx.Free()
		return newError(ErrKindIoOpenFailed, "DecoderBase.openCodec", err)
	}

	useHW := false
	if setupHW != nil {
		useHW = setupHW(ctx)
	}

	if err := ctx.Open(dec, nil); err != nil {
		ctx.Free()
		b.emit(EventCreateDecoderFailed, DecoderEventArgs{
			baseEventArgs: newBaseEventArgs(b.demuxer.source),
			MediaType:     mediaTypeOf(mediaType),
			StreamIndex:   idx,
			CodecName:     dec.Name(),
			ErrorMessage:  err.Error(),
		})
		return newError(ErrKindIoOpenFailed, "DecoderBase.openCodec", err)
	}

	b.mu.Lock()
	b.stream = stream
	b.codecCtx = ctx
	b.streamIdx = idx
	b.mu.Unlock()

	b.emit(EventCreateDecoderSuccess, DecoderEventArgs{
		baseEventArgs: newBaseEventArgs(b.demuxer.source),
		MediaType:     mediaTypeOf(mediaType),
		StreamIndex:   idx,
		CodecName:     dec.Name(),
		UseHardware:   useHW,
	})
	return nil
}

func mediaTypeOf(mt astiav.MediaType) MediaType {
	switch mt {
	case astiav.MediaTypeVideo:
		return MediaVideo
	case astiav.MediaTypeAudio:
		return MediaAudio
	default:
		return MediaUnknown
	}
}

// calculatePts computes a frame's presentation timestamp in seconds,
// using best-effort timestamp if pts is unset, or NaN if neither is
// available.
func (b *DecoderBase) calculatePts(frame *astiav.Frame) float64 {
	b.mu.Lock()
	stream := b.stream
	b.mu.Unlock()
	if stream == nil {
		return math.NaN()
	}
	ts := frame.Pts()
	if ts == astiav.NoPtsValue {
		ts = frame.BestEffortTimestamp()
	}
	if ts == astiav.NoPtsValue {
		return math.NaN()
	}
	tb := stream.TimeBase()
	return float64(ts) * float64(tb.Num()) / float64(tb.Den())
}

// start spawns the decoder's loop goroutine, via impl's decodeLoop.
func (b *DecoderBase) start(impl decoderLoop) {
	b.mu.Lock()
	pq := b.demuxer.PacketQueue(impl.mediaType())
	b.mu.Unlock()

	b.frameQueue.SetSerial(pq.Serial())
	b.frameQueue.SetAbort(false)
	b.seekPos.Store(0)

	b.stopCh = make(chan struct{})
	b.doneCh = make(chan struct{})
	b.running.Store(true)

	go func() {
		defer close(b.doneCh)
		impl.decodeLoop()
	}()

	b.emit(EventDecodeStarted, DecoderEventArgs{
		baseEventArgs: newBaseEventArgs(b.demuxer.source),
		MediaType:     mediaTypeOf(impl.mediaType()),
		StreamIndex:   b.streamIdx,
	})
}

// stop signals the decode loop to exit and waits for it to finish.
func (b *DecoderBase) stop() {
	if !b.running.CompareAndSwap(true, false) {
		return
	}
	b.frameQueue.SetAbort(true)
	b.sleepMu.Lock()
	b.sleepCond.Broadcast()
	b.sleepMu.Unlock()

	if b.doneCh != nil {
		<-b.doneCh
	}

	b.emit(EventDecodeStopped, DecoderEventArgs{
		baseEventArgs: newBaseEventArgs(b.demuxer.source),
		StreamIndex:   b.streamIdx,
	})
}

// close releases the codec context.
func (b *DecoderBase) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.codecCtx != nil {
		b.codecCtx.Free()
		b.codecCtx = nil
	}
	b.emit(EventDestroyDecoder, DecoderEventArgs{
		baseEventArgs: newBaseEventArgs(b.demuxer.source),
		StreamIndex:   b.streamIdx,
	})
}

// isRunning reports whether the decode loop should keep running.
func (b *DecoderBase) isRunning() bool { return b.running.Load() }

// SetWaitingForPreBuffer arms or releases the pre-buffer gate; while
// armed, the decode loop blocks in waitPreBufferGate before publishing
// its next decoded frame to the FrameQueue, so no further packets are
// decoded until the gate is released.
func (b *DecoderBase) SetWaitingForPreBuffer(waiting bool) {
	b.waitingPreBuffer.Store(waiting)
	if !waiting {
		b.sleepMu.Lock()
		b.sleepCond.Broadcast()
		b.sleepMu.Unlock()
	}
}

// waitPreBufferGate blocks while the pre-buffer gate is armed, returning
// false if the decoder was stopped while waiting.
func (b *DecoderBase) waitPreBufferGate() bool {
	if !b.waitingPreBuffer.Load() {
		return b.isRunning()
	}
	b.sleepMu.Lock()
	for b.isRunning() && b.waitingPreBuffer.Load() {
		b.sleepCond.Wait()
	}
	b.sleepMu.Unlock()
	return b.isRunning()
}

// interruptibleSleep blocks for seconds or until stop() is called,
// whichever comes first, returning false if it was woken by stop.
func (b *DecoderBase) interruptibleSleep(seconds float64) bool {
	if seconds <= 0 {
		return b.isRunning()
	}

	elapsed := false
	timer := time.AfterFunc(time.Duration(seconds*float64(time.Second)), func() {
		b.sleepMu.Lock()
		elapsed = true
		b.sleepCond.Broadcast()
		b.sleepMu.Unlock()
	})
	defer timer.Stop()

	b.sleepMu.Lock()
	for b.isRunning() && !elapsed {
		b.sleepCond.Wait()
	}
	b.sleepMu.Unlock()

	return b.isRunning()
}
