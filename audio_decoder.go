package decodersdk

import (
	"math"

	astiav "github.com/asticode/go-astiav"
)

// AudioDecoder decodes the audio stream, resampling every frame to a
// fixed output sample format (at 1.0x as well; there is no pass-through
// path) with a speed-scaled output rate, and drives the sync
// controller's audio clock (its own clock, not the video clock).
type AudioDecoder struct {
	*DecoderBase

	resampler *resampler

	outLayout astiav.ChannelLayout
	outFormat astiav.SampleFormat
	outRate   int
}

// NewAudioDecoder creates an audio decoder bound to demuxer/sc/events,
// resampling every frame to outFormat at the source stream's own sample
// rate and channel layout (so only the playback-speed deadband, not a
// forced format change, ever triggers a rebuild).
func NewAudioDecoder(demuxer *Demuxer, sc *SyncController, events *EventDispatcher, outFormat astiav.SampleFormat) *AudioDecoder {
	a := &AudioDecoder{
		DecoderBase: newDecoderBase(demuxer, sc, events, sc.AudioClock(), 9, false),
		resampler:   newResampler(),
		outFormat:   outFormat,
	}
	a.clock.Init(-1)
	return a
}

func (a *AudioDecoder) mediaType() astiav.MediaType { return astiav.MediaTypeAudio }

// Open resolves and opens the audio codec and fixes the decoder's output
// layout/rate to the source stream's own, so resampling only ever
// adjusts sample format and playback speed.
func (a *AudioDecoder) Open() error {
	if err := a.openCodec(astiav.MediaTypeAudio, nil); err != nil {
		return err
	}
	par := a.stream.CodecParameters()
	a.outLayout = par.ChannelLayout()
	a.outRate = par.SampleRate()
	return nil
}

// Start begins the decode loop.
func (a *AudioDecoder) Start() { a.start(a) }

// Stop halts the decode loop.
func (a *AudioDecoder) Stop() { a.stop() }

// Close releases the codec context and resampler.
func (a *AudioDecoder) Close() {
	a.close()
	a.resampler.close()
}

func (a *AudioDecoder) decodeLoop() {
	frame := astiav.AllocFrame()
	defer frame.Free()
	resampled := astiav.AllocFrame()
	defer resampled.Free()

	pq := a.demuxer.PacketQueue(astiav.MediaTypeAudio)
	serial := pq.Serial()
	a.clock.Init(serial)

	for a.isRunning() {
		if serial != pq.Serial() {
			a.codecCtx.FlushBuffers()
			serial = pq.Serial()
			a.frameQueue.SetSerial(serial)
			a.clock.Init(serial)
		}

		out := a.frameQueue.PeekWritable()
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
			sendErr = a.codecCtx.SendPacket(nil)
		} else {
			sendErr = a.codecCtx.SendPacket(pkt.AVPacket())
		}
		pkt.Free()
		if sendErr != nil && !isFlush {
			continue
		}

		if err := a.codecCtx.ReceiveFrame(frame); err != nil {
			continue
		}

		pts := a.calculatePts(frame)

		if !math.IsNaN(pts) {
			a.clock.SetClock(pts, serial)
		}

		if a.isBeforeSeekTarget(pts) {
			frame.Unref()
			continue
		}

		speed := a.Speed()
		produced, duration, perr := a.resample(frame, resampled, speed)
		frame.Unref()
		if perr != nil {
			continue
		}

		if err := out.MoveFrom(produced); err != nil {
			produced.Unref()
			continue
		}
		out.SetSerial(serial)
		out.SetDuration(duration)
		out.SetPTS(pts)
		out.SetIsInHardware(false)

		if a.frameRateControlEnabled && duration > 0 {
			if !a.interruptibleSleep(duration / math.Max(speed, 0.01)) {
				break
			}
		}

		if !a.waitPreBufferGate() {
			break
		}

		a.frameQueue.Push()
	}
}

// resample converts frame into dst at the decoder's fixed output format,
// rebuilding the swr context first if the source layout or the requested
// speed has drifted past speedDeadband since it was last built. Returns
// the frame to copy out (dst) and its duration in seconds.
func (a *AudioDecoder) resample(frame, dst *astiav.Frame, speed float64) (*astiav.Frame, float64, error) {
	inLayout := frame.ChannelLayout()
	inFormat := frame.SampleFormat()
	inRate := frame.SampleRate()

	if a.resampler.needsRebuild(inLayout, inFormat, inRate, speed) {
		if err := a.resampler.rebuild(inLayout, inFormat, inRate, a.outLayout, a.outFormat, a.outRate, speed); err != nil {
			return nil, 0, err
		}
	}

	dst.Unref()
	if err := a.resampler.convertFrame(frame, dst); err != nil {
		return nil, 0, err
	}

	duration := 0.0
	if dst.SampleRate() > 0 {
		duration = float64(dst.NbSamples()) / float64(dst.SampleRate())
	}
	return dst, duration, nil
}
