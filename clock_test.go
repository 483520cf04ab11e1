package decodersdk

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClockInitReadsZero(t *testing.T) {
	c := NewClock()
	c.Init(1)
	assert.InDelta(t, 0.0, c.GetClock(), 0.01)
	assert.Equal(t, 1, c.Serial())
}

func TestClockAdvancesInRealTimeAtUnitSpeed(t *testing.T) {
	c := NewClock()
	c.Init(0)
	c.SetClock(10.0, 0)

	time.Sleep(50 * time.Millisecond)
	got := c.GetClock()
	assert.Greater(t, got, 10.0)
	assert.InDelta(t, 10.05, got, 0.05)
}

func TestClockSpeedChangeIsContinuous(t *testing.T) {
	c := NewClock()
	c.Init(0)
	c.SetClock(5.0, 0)

	time.Sleep(20 * time.Millisecond)
	before := c.GetClock()

	ok := c.SetClockSpeed(2.0)
	assert.True(t, ok)

	// Re-anchoring at the same instant must not introduce a jump.
	after := c.GetClock()
	assert.InDelta(t, before, after, 0.02)

	time.Sleep(50 * time.Millisecond)
	later := c.GetClock()
	// At 2x speed roughly 0.1s of pts should have elapsed over 50ms wall time.
	assert.Greater(t, later-after, 0.05)
}

func TestClockSetClockSpeedRejectsNonPositive(t *testing.T) {
	c := NewClock()
	c.Init(0)
	assert.False(t, c.SetClockSpeed(0))
	assert.False(t, c.SetClockSpeed(-1))
}

func TestClockPauseFreezesValue(t *testing.T) {
	c := NewClock()
	c.Init(0)
	c.SetClock(3.0, 0)

	c.SetPaused(true)
	first := c.GetClock()
	time.Sleep(30 * time.Millisecond)
	second := c.GetClock()
	assert.Equal(t, first, second)

	c.SetPaused(false)
	time.Sleep(30 * time.Millisecond)
	assert.Greater(t, c.GetClock(), second)
}

func TestClockSyncToMasterIgnoresSmallDrift(t *testing.T) {
	master := NewClock()
	master.Init(0)
	master.SetClock(100.0, 0)

	slave := NewClock()
	slave.Init(0)
	slave.SetClock(100.002, 0)

	slave.SyncToMaster(master)
	assert.InDelta(t, 100.002, slave.GetClock(), 0.02, "drift under kAVNoSyncThreshold should not be forced to re-anchor")
}

func TestClockSyncToMasterCorrectsLargeDrift(t *testing.T) {
	master := NewClock()
	master.Init(0)
	master.SetClock(100.0, 7)

	slave := NewClock()
	slave.Init(0)
	slave.SetClock(50.0, 0)

	slave.SyncToMaster(master)
	assert.InDelta(t, 100.0, slave.GetClock(), 0.02)
	assert.Equal(t, 7, slave.Serial())
}

func TestClockSyncToMasterSkipsWhenMasterIsNaN(t *testing.T) {
	master := NewClock()
	master.Init(0)
	master.SetClock(math.NaN(), 0)

	slave := NewClock()
	slave.Init(0)
	slave.SetClock(42.0, 0)

	slave.SyncToMaster(master)
	assert.InDelta(t, 42.0, slave.GetClock(), 0.02)
}
