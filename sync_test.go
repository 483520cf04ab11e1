package decodersdk

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyncControllerDefaultsToAudioMaster(t *testing.T) {
	s := NewSyncController()
	assert.Same(t, s.AudioClock(), s.MasterClock())

	s.SetMasterClockType(MasterClockVideo)
	assert.Same(t, s.VideoClock(), s.MasterClock())

	s.SetMasterClockType(MasterClockExternal)
	assert.Same(t, s.ExternalClock(), s.MasterClock())
}

func TestComputeVideoDelayFirstFrameIsImmediate(t *testing.T) {
	s := NewSyncController()
	delay := s.ComputeVideoDelay(1.0, 0.04)
	assert.Equal(t, 0.0, delay)
}

func TestComputeVideoDelayConvergesWhenVideoIsMaster(t *testing.T) {
	s := NewSyncController()
	s.SetMasterClockType(MasterClockVideo)
	s.VideoClock().Init(0)
	s.VideoClock().SetClock(0, 0)

	// First call only seeds lastFramePts/frameTimer.
	_ = s.ComputeVideoDelay(0.0, 0.04)

	delay := s.ComputeVideoDelay(0.04, 0.04)
	assert.GreaterOrEqual(t, delay, 0.0)
	assert.LessOrEqual(t, delay, 0.08+0.01)
}

func TestComputeVideoDelayCatchesUpWhenBehindMaster(t *testing.T) {
	s := NewSyncController()
	s.SetMasterClockType(MasterClockAudio)
	s.AudioClock().Init(0)
	s.AudioClock().SetClock(5.0, 0)

	_ = s.ComputeVideoDelay(0.0, 0.04)

	// The video pts (0.04) is far behind the audio master (5.0), so the
	// decoder should be told to release with no delay to catch up.
	delay := s.ComputeVideoDelay(0.04, 0.04)
	assert.Equal(t, 0.0, delay)
}

func TestComputeVideoDelayTreatsLargeJumpAsDiscontinuity(t *testing.T) {
	s := NewSyncController()
	s.SetMasterClockType(MasterClockAudio)
	s.AudioClock().Init(0)
	s.AudioClock().SetClock(0.0, 0)

	_ = s.ComputeVideoDelay(0.0, 0.04)

	// A jump far beyond kMaxFrameDuration (seek/reconnect) must fall back
	// to the nominal frame duration rather than a 2x/0x correction.
	delay := s.ComputeVideoDelay(500.0, 0.04)
	assert.InDelta(t, 0.04, delay, 0.02)
}

func TestResetClocksClearsStateAndSetsNaN(t *testing.T) {
	s := NewSyncController()
	s.AudioClock().Init(0)
	s.AudioClock().SetClock(10.0, 0)
	_ = s.ComputeVideoDelay(1.0, 0.04)

	s.ResetClocks()

	require.True(t, math.IsNaN(s.AudioClock().GetClock()))
	require.True(t, math.IsNaN(s.VideoClock().GetClock()))
	require.True(t, math.IsNaN(s.ExternalClock().GetClock()))
	assert.Equal(t, -1, s.AudioClock().Serial())

	// The frame timer state resets too: the very next call behaves like a
	// first frame again (zero delay).
	delay := s.ComputeVideoDelay(1.0, 0.04)
	assert.Equal(t, 0.0, delay)
}
