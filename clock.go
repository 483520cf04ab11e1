package decodersdk

import (
	"math"
	"sync"
	"time"
)

func monotonicSeconds() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}

// Clock models a single logical timeline (audio, video, or external),
// advancing in real time between explicit updates, and re-anchored
// whenever SetClock or SetClockSpeed is called so that speed changes
// never introduce a discontinuity in GetClock's output.
type Clock struct {
	mu          sync.Mutex
	pts         float64
	ptsDrift    float64
	lastUpdated float64
	speed       float64
	serial      int
	paused      bool
}

// NewClock creates a clock in its zero state; call Init before use.
func NewClock() *Clock {
	c := &Clock{speed: 1.0, serial: -1}
	return c
}

// Init (re)starts the clock under a new queue epoch, unpaused, at unit
// speed, reading zero.
func (c *Clock) Init(serial int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.speed = 1.0
	c.paused = false
	c.serial = serial
	c.setClockLocked(0.0, serial)
}

// GetClock returns the clock's current value in seconds. It does not
// compare the clock's serial against any queue's serial, so a stale
// epoch is not reported as NaN here; callers that need that check
// compare Serial() with the queue themselves. NaN is returned only when
// the clock was last anchored at a NaN pts.
func (c *Clock) GetClock() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.paused {
		return c.pts
	}
	t := monotonicSeconds()
	return c.ptsDrift + t - (t-c.lastUpdated)*(1.0-c.speed)
}

// SetClock anchors the clock at pts under the given serial.
func (c *Clock) SetClock(pts float64, serial int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setClockLocked(pts, serial)
}

func (c *Clock) setClockLocked(pts float64, serial int) {
	t := monotonicSeconds()
	c.pts = pts
	c.ptsDrift = c.pts - t
	c.lastUpdated = t
	c.serial = serial
}

// SetClockSpeed changes the playback speed, re-anchoring the clock at
// its current value first so the change is continuous. speed must be
// positive; a no-op request (same speed) is ignored.
func (c *Clock) SetClockSpeed(speed float64) bool {
	if speed <= 0 {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if speed == c.speed {
		return true
	}
	t := monotonicSeconds()
	pts := c.ptsDrift + t - (t-c.lastUpdated)*(1.0-c.speed)
	if c.paused {
		pts = c.pts
	}
	c.setClockLocked(pts, c.serial)
	c.speed = speed
	return true
}

// SyncToMaster re-anchors c to master's current value and serial if the
// two clocks have drifted apart by more than kAVNoSyncThreshold seconds.
func (c *Clock) SyncToMaster(master *Clock) {
	if master == nil {
		return
	}
	clock := c.GetClock()
	masterClock := master.GetClock()
	if !math.IsNaN(masterClock) && (math.IsNaN(clock) || math.Abs(clock-masterClock) > kAVNoSyncThreshold) {
		master.mu.Lock()
		serial := master.serial
		master.mu.Unlock()
		c.SetClock(masterClock, serial)
	}
}

// Serial reports the clock's current epoch.
func (c *Clock) Serial() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.serial
}

// Paused reports whether the clock is currently paused.
func (c *Clock) Paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

// SetPaused pauses or resumes the clock, re-anchoring so the transition
// is seamless.
func (c *Clock) SetPaused(paused bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if paused == c.paused {
		return
	}
	if paused {
		c.pts = c.getClockLocked()
	} else {
		c.setClockLocked(c.pts, c.serial)
	}
	c.paused = paused
}

func (c *Clock) getClockLocked() float64 {
	if c.paused {
		return c.pts
	}
	t := monotonicSeconds()
	return c.ptsDrift + t - (t-c.lastUpdated)*(1.0-c.speed)
}
