package decodersdk

import (
	"errors"

	astiav "github.com/asticode/go-astiav"
)

// speedDeadband bounds how much the requested speed may drift from the
// resampler's built speed before it is rebuilt; keeps minor jitter from
// tearing down and recreating the swr context every frame.
const speedDeadband = 0.01

// resampler wraps astiav's software resample context, rebuilding it only
// when the input layout changes or the playback speed drifts outside
// speedDeadband of the speed it was built for.
type resampler struct {
	swr *astiav.SoftwareResampleContext

	inLayout astiav.ChannelLayout
	inFormat astiav.SampleFormat
	inRate   int

	outLayout astiav.ChannelLayout
	outFormat astiav.SampleFormat
	outRate   int

	builtSpeed float64
}

func newResampler() *resampler {
	return &resampler{builtSpeed: -1}
}

// needsRebuild reports whether in must trigger a rebuild given the new
// target speed, either because the source format changed or the built
// speed has drifted past the deadband.
func (r *resampler) needsRebuild(inLayout astiav.ChannelLayout, inFormat astiav.SampleFormat, inRate int, speed float64) bool {
	if r.swr == nil {
		return true
	}
	if r.inRate != inRate || r.inFormat != inFormat || !r.inLayout.Equal(inLayout) {
		return true
	}
	diff := speed - r.builtSpeed
	if diff < 0 {
		diff = -diff
	}
	return diff > speedDeadband
}

// rebuild (re)allocates the swr context to resample from the given input
// format to outFormat/outLayout/outRate at speed, adjusting the output
// sample rate to stretch/compress time for speeds other than 1.0.
func (r *resampler) rebuild(inLayout astiav.ChannelLayout, inFormat astiav.SampleFormat, inRate int, outLayout astiav.ChannelLayout, outFormat astiav.SampleFormat, outRate int, speed float64) error {
	if r.swr != nil {
		r.swr.Free()
		r.swr = nil
	}

	effectiveOutRate := speedScaledOutputRate(outRate, speed)

	swr := astiav.AllocSoftwareResampleContext()
	if swr == nil {
		return newError(ErrKindDecodeError, "resampler.rebuild", errors.New("AllocSoftwareResampleContext failed"))
	}
	if err := swr.SetOptions(inLayout, inFormat, inRate, outLayout, outFormat, effectiveOutRate); err != nil {
		swr.Free()
		return newError(ErrKindDecodeError, "resampler.rebuild", err)
	}
	if err := swr.Init(); err != nil {
		swr.Free()
		return newError(ErrKindDecodeError, "resampler.rebuild", err)
	}

	r.swr = swr
	r.inLayout = inLayout
	r.inFormat = inFormat
	r.inRate = inRate
	r.outLayout = outLayout
	r.outFormat = outFormat
	r.outRate = outRate
	r.builtSpeed = speed
	return nil
}

// speedScaledOutputRate stretches outRate by speed so that a faster
// playback speed asks swr for more output samples per second of source
// content (shortening real-time duration), matching
// AudioDecoder::initResampleContext's `codecCtx_->sample_rate * curSpeed`.
func speedScaledOutputRate(outRate int, speed float64) int {
	scaled := int(float64(outRate) * speed)
	if scaled <= 0 {
		return outRate
	}
	return scaled
}

func (r *resampler) convertFrame(src, dst *astiav.Frame) error {
	if r.swr == nil {
		return newError(ErrKindDecodeError, "resampler.convertFrame", errors.New("resampler not built"))
	}
	return r.swr.ConvertFrame(src, dst)
}

func (r *resampler) close() {
	if r.swr != nil {
		r.swr.Free()
		r.swr = nil
	}
}
