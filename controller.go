package decodersdk

import (
	"sync"
	"time"

	astiav "github.com/asticode/go-astiav"
	"golang.org/x/sync/errgroup"
)

// Controller orchestrates a single decode session: it owns the Demuxer,
// SyncController, EventDispatcher, and the video/audio decoders, and
// exposes the open/close/start/stop/seek/speed/reconnect/record surface
// applications drive. Only one session is active per Controller at a
// time; Open replaces whatever session preceded it.
type Controller struct {
	events *EventDispatcher
	demuxer *Demuxer
	sync    *SyncController

	mu           sync.Mutex
	cfg          Config
	url          string
	videoDecoder *VideoDecoder
	audioDecoder *AudioDecoder
	isDecoding   bool
	preBufferSt  PreBufferState

	reconnect reconnectState
	asyncOpen asyncOpenState
}

// NewController creates a Controller with its own event dispatcher,
// demuxer, and sync controller, ready for Open.
func NewController() *Controller {
	events := NewEventDispatcher()
	events.SetAsyncProcessing(true)

	c := &Controller{
		events:  events,
		demuxer: NewDemuxer(events),
		sync:    NewSyncController(),
	}
	events.AddEventListener(EventStreamReadError, func(t EventType, args EventArgs) {
		c.onStreamReadError()
	})
	return c
}

// Events exposes the controller's dispatcher for listener registration.
func (c *Controller) Events() *EventDispatcher { return c.events }

// Open opens url under cfg, cancelling any in-flight async open and
// reconnect task first. Decode is not started; call StartDecode.
func (c *Controller) Open(url string, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	c.CancelAsyncOpen()
	c.stopReconnectAndWait()

	c.mu.Lock()
	c.cfg = cfg
	c.url = url
	c.preBufferSt = PreBufferDisabled
	c.mu.Unlock()

	return c.demuxer.Open(url, isRealTimeURL(url), false)
}

// AsyncOpenResult is the outcome reported to an OpenAsync callback.
type AsyncOpenResult int

const (
	AsyncOpenSuccess AsyncOpenResult = iota
	AsyncOpenFailed
	AsyncOpenCancelled
)

// AsyncOpenCallback receives the result of an OpenAsync call, invoked
// exactly once.
type AsyncOpenCallback func(result AsyncOpenResult, openSuccess bool, message string)

// OpenAsync runs Open on a background goroutine, invoking callback
// exactly once with the outcome. Any previously in-flight async open is
// cancelled first.
func (c *Controller) OpenAsync(url string, cfg Config, callback AsyncOpenCallback) {
	c.startAsyncOpen(url, cfg, callback)
}

// CancelAsyncOpen requests the in-flight OpenAsync (if any) to abort and
// blocks until its callback has fired.
func (c *Controller) CancelAsyncOpen() {
	c.cancelAsyncOpenAndWait()
}

// Close stops decode, any reconnect task, and closes the source.
func (c *Controller) Close() error {
	c.CancelAsyncOpen()
	c.stopReconnectAndWait()
	c.cleanupPreBuffer()
	_ = c.StopDecode()
	c.reconnect.attempts.Store(0)
	return c.demuxer.Close()
}

// Pause suspends demuxing (and therefore decoding, once queues drain).
func (c *Controller) Pause() { c.demuxer.Pause() }

// Resume continues demuxing after Pause.
func (c *Controller) Resume() { c.demuxer.Resume() }

// StartDecode creates and starts decoders for every stream the demuxer
// detected, applying the session's Config, and arms the pre-buffer gate
// if configured.
func (c *Controller) StartDecode() error {
	c.mu.Lock()
	cfg := c.cfg
	c.mu.Unlock()

	if err := c.startDecodeInternal(false); err != nil {
		return err
	}

	if cfg.PreBuffer.Enabled {
		c.mu.Lock()
		c.preBufferSt = PreBufferWaiting
		vd, ad := c.videoDecoder, c.audioDecoder
		c.mu.Unlock()

		if vd != nil {
			vd.SetWaitingForPreBuffer(true)
		}
		if ad != nil {
			ad.SetWaitingForPreBuffer(true)
		}

		c.demuxer.SetPreBufferConfig(cfg.PreBuffer, c.onPreBufferReady)
	}

	return nil
}

// StopDecode stops and releases the active decoders.
func (c *Controller) StopDecode() error {
	return c.stopDecodeInternal(false)
}

func (c *Controller) startDecodeInternal(reopen bool) error {
	c.mu.Lock()
	if c.isDecoding {
		c.mu.Unlock()
		_ = c.stopDecodeInternal(reopen)
		c.mu.Lock()
	}
	cfg := c.cfg
	c.mu.Unlock()

	c.sync.ResetClocks()

	hasVideo := c.demuxer.StreamIndex(astiav.MediaTypeVideo) >= 0
	hasAudio := c.demuxer.StreamIndex(astiav.MediaTypeAudio) >= 0

	var vd *VideoDecoder
	var ad *AudioDecoder

	g := new(errgroup.Group)
	if hasVideo {
		vd = NewVideoDecoder(c.demuxer, c.sync, c.events, cfg.HWAccel, cfg.HWDeviceIndex, cfg.VideoOutFormat, cfg.RequireFrameInSystemMemory)
		g.Go(func() error {
			vd.SetFrameRateControl(cfg.EnableFrameRateControl)
			vd.SetSpeed(cfg.Speed)
			return vd.Open()
		})
	}
	if hasAudio {
		ad = NewAudioDecoder(c.demuxer, c.sync, c.events, astiav.SampleFormatS16)
		g.Go(func() error {
			ad.SetSpeed(cfg.Speed)
			return ad.Open()
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if hasAudio {
		c.sync.SetMasterClockType(MasterClockAudio)
	} else if hasVideo {
		c.sync.SetMasterClockType(MasterClockVideo)
	}

	if vd != nil {
		vd.Start()
	}
	if ad != nil {
		ad.Start()
	}

	c.mu.Lock()
	c.videoDecoder = vd
	c.audioDecoder = ad
	if !reopen {
		c.isDecoding = true
	}
	c.mu.Unlock()
	return nil
}

func (c *Controller) stopDecodeInternal(reopen bool) error {
	if !reopen {
		c.cleanupPreBuffer()
	}

	c.mu.Lock()
	vd, ad := c.videoDecoder, c.audioDecoder
	c.videoDecoder, c.audioDecoder = nil, nil
	if !reopen {
		c.isDecoding = false
	}
	c.mu.Unlock()

	var g errgroup.Group
	if vd != nil {
		g.Go(func() error {
			vd.Stop()
			vd.Close()
			return nil
		})
	}
	if ad != nil {
		g.Go(func() error {
			ad.Stop()
			ad.Close()
			return nil
		})
	}
	_ = g.Wait()
	return nil
}

func (c *Controller) onPreBufferReady() {
	c.mu.Lock()
	c.preBufferSt = PreBufferReady
	vd, ad := c.videoDecoder, c.audioDecoder
	c.mu.Unlock()

	if vd != nil {
		vd.SetWaitingForPreBuffer(false)
	}
	if ad != nil {
		ad.SetWaitingForPreBuffer(false)
	}

	c.events.TriggerEvent(EventPreBufferReady, StreamEventArgs{baseEventArgs: newBaseEventArgs(c.demuxer.source)})
}

func (c *Controller) cleanupPreBuffer() {
	c.mu.Lock()
	c.preBufferSt = PreBufferDisabled
	vd, ad := c.videoDecoder, c.audioDecoder
	c.mu.Unlock()

	if vd != nil {
		vd.SetWaitingForPreBuffer(false)
	}
	if ad != nil {
		ad.SetWaitingForPreBuffer(false)
	}
	c.demuxer.ClearPreBufferCallback()
}

// PreBufferState reports the gate's current lifecycle state.
func (c *Controller) PreBufferState() PreBufferState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.preBufferSt
}

// PreBufferProgress reports the gate's buffered counts and readiness.
func (c *Controller) PreBufferProgress() PreBufferProgress {
	return c.demuxer.PreBufferProgress()
}

// Seek repositions the source at pos, serialized against the demux loop:
// it pauses, seeks (bumping PacketQueue serials), tags each decoder's
// seek target, resets every clock, and resumes.
func (c *Controller) Seek(pos time.Duration) error {
	c.events.TriggerEvent(EventSeekStarted, SeekEventArgs{
		baseEventArgs:   newBaseEventArgs(c.demuxer.source),
		PositionSeconds: pos.Seconds(),
	})

	fail := func(err error) error {
		c.events.TriggerEvent(EventSeekFailed, SeekEventArgs{
			baseEventArgs:   newBaseEventArgs(c.demuxer.source),
			PositionSeconds: pos.Seconds(),
			ErrorMessage:    err.Error(),
		})
		return err
	}

	c.mu.Lock()
	vd, ad := c.videoDecoder, c.audioDecoder
	c.mu.Unlock()

	wasPaused := false
	if vd != nil || ad != nil {
		wasPaused = c.demuxer.IsPaused()
		if !wasPaused {
			c.demuxer.Pause()
		}
	}

	if err := c.demuxer.Seek(pos); err != nil {
		if !wasPaused {
			c.demuxer.Resume()
		}
		return fail(err)
	}

	if vd != nil {
		vd.SetSeekPos(pos.Seconds())
	}
	if ad != nil {
		ad.SetSeekPos(pos.Seconds())
	}
	c.sync.ResetClocks()

	if !wasPaused {
		c.demuxer.Resume()
	}

	c.events.TriggerEvent(EventSeekDone, SeekEventArgs{
		baseEventArgs:   newBaseEventArgs(c.demuxer.source),
		PositionSeconds: pos.Seconds(),
	})
	return nil
}

// SetSpeed changes playback speed for both decoders. The sync
// controller's video scheduling does not take the speed into account.
// Rejected for real-time sources and s <= 0.
func (c *Controller) SetSpeed(speed float64) bool {
	if speed <= 0 {
		return false
	}

	if c.demuxer.IsRealTime() {
		return false
	}

	c.mu.Lock()
	c.cfg.Speed = speed
	vd, ad := c.videoDecoder, c.audioDecoder
	c.mu.Unlock()

	if vd != nil {
		vd.SetSpeed(speed)
	}
	if ad != nil {
		ad.SetSpeed(speed)
	}
	return true
}

// CurSpeed reports the session's current configured speed.
func (c *Controller) CurSpeed() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg.Speed
}

// SetFrameRateControl enables or disables frame-rate pacing on the video
// decoder.
func (c *Controller) SetFrameRateControl(enabled bool) {
	c.mu.Lock()
	c.cfg.EnableFrameRateControl = enabled
	vd := c.videoDecoder
	c.mu.Unlock()
	if vd != nil {
		vd.SetFrameRateControl(enabled)
	}
}

// IsFrameRateControlEnabled reports whether frame-rate pacing is active.
func (c *Controller) IsFrameRateControlEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg.EnableFrameRateControl
}

// VideoFrameRate reports the current session's estimated video frame
// rate, or 0 if no video decoder is active.
func (c *Controller) VideoFrameRate() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.videoDecoder == nil {
		return 0
	}
	return c.videoDecoder.FrameRate()
}

// VideoFrameQueue exposes the active session's video FrameQueue, or nil.
func (c *Controller) VideoFrameQueue() *FrameQueue {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.videoDecoder == nil {
		return nil
	}
	return c.videoDecoder.FrameQueue()
}

// AudioFrameQueue exposes the active session's audio FrameQueue, or nil.
func (c *Controller) AudioFrameQueue() *FrameQueue {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.audioDecoder == nil {
		return nil
	}
	return c.audioDecoder.FrameQueue()
}

// SetMasterClockType selects which clock other streams are scheduled
// against.
func (c *Controller) SetMasterClockType(t MasterClockType) { c.sync.SetMasterClockType(t) }

// FormatContext exposes the active session's underlying format context
// for stream introspection (codec, resolution, sample rate), or nil if
// no session is open.
func (c *Controller) FormatContext() *astiav.FormatContext {
	return c.demuxer.FormatContext()
}

// StartRecording begins tee-recording the active session to path.
func (c *Controller) StartRecording(path string) error { return c.demuxer.StartRecording(path) }

// StopRecording stops any active recording.
func (c *Controller) StopRecording() error { return c.demuxer.StopRecording() }

// IsRecording reports whether a recording is currently active.
func (c *Controller) IsRecording() bool { return c.demuxer.IsRecording() }

func isRealTimeURL(url string) bool {
	for _, scheme := range []string{"rtsp://", "rtmp://", "udp://", "srt://"} {
		if len(url) >= len(scheme) && url[:len(scheme)] == scheme {
			return true
		}
	}
	return false
}
