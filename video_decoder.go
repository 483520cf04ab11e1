package decodersdk

import (
	"math"

	astiav "github.com/asticode/go-astiav"
)

// VideoDecoder decodes the video stream, paces frame release against
// the sync controller's master clock, and optionally drives hardware
// acceleration.
type VideoDecoder struct {
	*DecoderBase

	hwAccel       *HardwareAccel
	hwType        HWAccelType
	hwDeviceIndex int

	requireSystemMemory bool
	outPixFmt           astiav.PixelFormat
	converter           *pixelFormatConverter

	frameRate     float64
	lastFrameTime float64
}

// NewVideoDecoder creates a video decoder bound to demuxer/sc/events.
// outPixFmt/requireSystemMemory mirror Config.VideoOutFormat and
// Config.RequireFrameInSystemMemory: software-decoded frames whose
// pixel format differs from outPixFmt are converted via swscale before
// being queued.
func NewVideoDecoder(demuxer *Demuxer, sc *SyncController, events *EventDispatcher, hwType HWAccelType, hwDeviceIndex int, outPixFmt astiav.PixelFormat, requireSystemMemory bool) *VideoDecoder {
	v := &VideoDecoder{
		DecoderBase:         newDecoderBase(demuxer, sc, events, sc.VideoClock(), 3, true),
		hwType:              hwType,
		hwDeviceIndex:       hwDeviceIndex,
		outPixFmt:           outPixFmt,
		requireSystemMemory: requireSystemMemory,
		converter:           newPixelFormatConverter(outPixFmt),
	}
	v.clock.Init(-1)
	return v
}

func (v *VideoDecoder) mediaType() astiav.MediaType { return astiav.MediaTypeVideo }

// Open resolves and opens the video codec, attempting hardware
// acceleration per the configured HWAccelType, and estimates the
// stream's frame rate.
func (v *VideoDecoder) Open() error {
	if err := v.openCodec(astiav.MediaTypeVideo, v.setHardwareDecode); err != nil {
		return err
	}

	fc := v.demuxer.FormatContext()
	rate := fc.GuessFrameRate(v.stream, nil)
	v.updateFrameRate(rate)
	return nil
}

func (v *VideoDecoder) setHardwareDecode(ctx *astiav.CodecContext) bool {
	if v.hwType == HWAccelNone {
		return false
	}
	accel, err := CreateHardwareAccel(v.hwType, v.hwDeviceIndex)
	if err != nil || accel == nil {
		return false
	}
	if !accel.SetupDecoder(ctx) {
		return false
	}
	v.hwAccel = accel
	return true
}

// Start begins the decode loop.
func (v *VideoDecoder) Start() { v.start(v) }

// Stop halts the decode loop.
func (v *VideoDecoder) Stop() { v.stop() }

// Close releases the codec context and any hardware device.
func (v *VideoDecoder) Close() {
	v.close()
	if v.hwAccel != nil {
		v.hwAccel.Close()
		v.hwAccel = nil
	}
	v.converter.close()
}

func (v *VideoDecoder) decodeLoop() {
	frame := astiav.AllocFrame()
	defer frame.Free()

	pq := v.demuxer.PacketQueue(astiav.MediaTypeVideo)
	serial := pq.Serial()
	v.clock.Init(serial)

	for v.isRunning() {
		if serial != pq.Serial() {
			v.codecCtx.FlushBuffers()
			serial = pq.Serial()
			v.frameQueue.SetSerial(serial)
			v.clock.Init(serial)
		}

		out := v.frameQueue.PeekWritable()
		if out == nil {
			break
		}

		pkt, ok := pq.Pop(1)
		if !ok {
			if pq.IsAbort() {
				break
			}
			continue
		}

		if pkt.Serial() != serial {
			pkt.Free()
			continue
		}

		isFlush := pkt.IsFlush()
		var sendErr error
		if isFlush {
			sendErr = v.codecCtx.SendPacket(nil)
		} else {
			sendErr = v.codecCtx.SendPacket(pkt.AVPacket())
		}
		pkt.Free()
		if sendErr != nil && !isFlush {
			continue
		}

		if err := v.codecCtx.ReceiveFrame(frame); err != nil {
			continue
		}

		duration := v.frameDuration()
		pts := v.calculatePts(frame)

		if v.isBeforeSeekTarget(pts) {
			frame.Unref()
			continue
		}

		if !math.IsNaN(pts) {
			v.clock.SetClock(pts, serial)
		}

		isHW := frame.HWFramesContext() != nil
		moveSrc := frame
		if !isHW && v.outPixFmt != astiav.PixelFormatNone && frame.PixelFormat() != v.outPixFmt {
			if converted, cerr := v.converter.convert(frame); cerr == nil {
				moveSrc = converted
			}
		}

		if err := out.MoveFrom(moveSrc); err != nil {
			frame.Unref()
			continue
		}
		out.SetSerial(serial)
		out.SetDuration(duration)
		out.SetPTS(pts)
		out.SetIsInHardware(isHW)
		frame.Unref()

		if v.frameRateControlEnabled && v.frameRate > 0 {
			delay := v.calculateFrameDisplayTime(pts, duration)
			if delay > 0 {
				if !v.interruptibleSleep(delay) {
					break
				}
			}
		}

		if !v.waitPreBufferGate() {
			break
		}

		v.frameQueue.Push()
	}
}

func (v *VideoDecoder) frameDuration() float64 {
	fc := v.demuxer.FormatContext()
	if fc == nil || v.stream == nil {
		return 0
	}
	rate := fc.GuessFrameRate(v.stream, nil)
	if rate.Num() == 0 || rate.Den() == 0 {
		return 0
	}
	return float64(rate.Den()) / float64(rate.Num())
}

func (v *VideoDecoder) updateFrameRate(rate astiav.Rational) {
	if rate.Num() == 0 || rate.Den() == 0 {
		return
	}
	fr := float64(rate.Num()) / float64(rate.Den())
	if v.frameRate == 0 || math.Abs(v.frameRate-fr) > 0.1 {
		v.frameRate = fr
	}
}

// FrameRate reports the decoder's estimated video frame rate.
func (v *VideoDecoder) FrameRate() float64 { return v.frameRate }

// SetFrameRateControl enables or disables frame-rate-paced release.
func (v *VideoDecoder) SetFrameRateControl(enabled bool) {
	v.mu.Lock()
	v.frameRateControlEnabled = enabled
	v.mu.Unlock()
}

// IsFrameRateControlEnabled reports whether frame-rate pacing is active.
func (v *VideoDecoder) IsFrameRateControlEnabled() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.frameRateControlEnabled
}

func (v *VideoDecoder) calculateFrameDisplayTime(pts, duration float64) float64 {
	if math.IsNaN(pts) {
		return 0
	}
	now := monotonicSeconds()
	if v.lastFrameTime == 0 {
		v.lastFrameTime = now
		return 0
	}

	speed := v.Speed()
	if speed <= 0 {
		speed = 1.0
	}

	if v.sync != nil {
		delay := v.sync.ComputeVideoDelay(pts, duration)
		if delay < 0 {
			delay = 0
		}
		v.lastFrameTime = now + delay
		return delay
	}

	interval := duration
	if v.frameRate > 0 {
		interval = 1.0 / v.frameRate
	}
	interval /= speed

	next := v.lastFrameTime + interval
	delay := next - now
	if delay < 0 {
		delay = 0
	}
	v.lastFrameTime = now + delay
	return delay
}
