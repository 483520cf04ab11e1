package decodersdk

import (
	"testing"

	astiav "github.com/asticode/go-astiav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResamplerNeedsRebuildOnFirstUse(t *testing.T) {
	r := newResampler()
	assert.True(t, r.needsRebuild(astiav.ChannelLayout{}, astiav.SampleFormatS16, 44100, 1.0))
}

func TestSpeedScaledOutputRateStretchesWithSpeedNotAgainstIt(t *testing.T) {
	// Doubling playback speed must raise the resample target rate (more
	// output samples per second of source), not lower it: dividing would
	// invert speed-up into slow-down, which is exactly what drove E2E
	// Scenario #2 (speed=2.0 should advance ~4.0s of audio over 2s).
	assert.Equal(t, 96000, speedScaledOutputRate(48000, 2.0))
	assert.Equal(t, 24000, speedScaledOutputRate(48000, 0.5))
	assert.Equal(t, 48000, speedScaledOutputRate(48000, 1.0))
}

func TestSpeedScaledOutputRateFallsBackToBaseRateOnNonPositiveResult(t *testing.T) {
	assert.Equal(t, 48000, speedScaledOutputRate(48000, 0))
	assert.Equal(t, 48000, speedScaledOutputRate(48000, -1))
}

func TestResamplerConvertFrameFailsBeforeRebuild(t *testing.T) {
	r := newResampler()
	src := astiav.AllocFrame()
	defer src.Free()
	dst := astiav.AllocFrame()
	defer dst.Free()

	err := r.convertFrame(src, dst)
	require.Error(t, err)
	assert.Equal(t, ErrKindDecodeError, KindOf(err))
}
