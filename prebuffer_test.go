package decodersdk

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPreBufferProgressPercentRequireBothUsesMinimum(t *testing.T) {
	p := PreBufferProgress{
		VideoBufferedFrames:  30,
		VideoRequiredFrames:  30,
		AudioBufferedPackets: 10,
		AudioRequiredPackets: 60,
	}
	assert.InDelta(t, 10.0/60.0, p.ProgressPercent(true), 0.001)
}

func TestPreBufferProgressPercentEitherUsesMaximum(t *testing.T) {
	p := PreBufferProgress{
		VideoBufferedFrames:  30,
		VideoRequiredFrames:  30,
		AudioBufferedPackets: 10,
		AudioRequiredPackets: 60,
	}
	assert.Equal(t, 1.0, p.ProgressPercent(false))
}

func TestPreBufferProgressPercentIgnoresStreamsWithNoRequirement(t *testing.T) {
	p := PreBufferProgress{
		AudioBufferedPackets: 10,
		AudioRequiredPackets: 20,
	}
	// No video requirement configured (VideoRequiredFrames == 0): video's
	// fraction is treated as already complete, so RequireBothStreams must
	// reduce to the audio fraction alone.
	assert.InDelta(t, 0.5, p.ProgressPercent(true), 0.001)
}

func TestPreBufferProgressPercentClampsAtOne(t *testing.T) {
	p := PreBufferProgress{
		VideoBufferedFrames: 999,
		VideoRequiredFrames: 30,
	}
	assert.Equal(t, 1.0, p.ProgressPercent(false))
}
