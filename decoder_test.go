package decodersdk

import (
	"math"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDecoderBase() *DecoderBase {
	events := NewEventDispatcher()
	demuxer := NewDemuxer(events)
	sc := NewSyncController()
	return newDecoderBase(demuxer, sc, events, sc.VideoClock(), 3, true)
}

func TestDecoderBaseSpeedDefaultsToOne(t *testing.T) {
	b := newTestDecoderBase()
	assert.Equal(t, 1.0, b.Speed())
}

func TestDecoderBaseSetSpeedRejectsNonPositive(t *testing.T) {
	b := newTestDecoderBase()

	assert.False(t, b.SetSpeed(0))
	assert.False(t, b.SetSpeed(-1))
	assert.Equal(t, 1.0, b.Speed())

	assert.True(t, b.SetSpeed(2.0))
	assert.Equal(t, 2.0, b.Speed())
}

func TestDecoderBaseSetSeekPosRoundTrips(t *testing.T) {
	b := newTestDecoderBase()
	b.SetSeekPos(12.5)
	assert.Equal(t, 12.5, b.seekPosValue())
}

func TestDecoderBaseWaitPreBufferGateReturnsImmediatelyWhenNotWaiting(t *testing.T) {
	b := newTestDecoderBase()
	b.running.Store(true)

	done := make(chan bool, 1)
	go func() { done <- b.waitPreBufferGate() }()

	select {
	case ok := <-done:
		assert.True(t, ok)
	case <-time.After(time.Second):
		t.Fatal("waitPreBufferGate blocked despite gate not being armed")
	}
}

func TestDecoderBaseWaitPreBufferGateBlocksUntilReleased(t *testing.T) {
	b := newTestDecoderBase()
	b.running.Store(true)
	b.SetWaitingForPreBuffer(true)

	done := make(chan bool, 1)
	go func() { done <- b.waitPreBufferGate() }()

	select {
	case <-done:
		t.Fatal("waitPreBufferGate returned before the gate was released")
	case <-time.After(50 * time.Millisecond):
	}

	b.SetWaitingForPreBuffer(false)

	select {
	case ok := <-done:
		assert.True(t, ok)
	case <-time.After(time.Second):
		t.Fatal("waitPreBufferGate did not wake up after release")
	}
}

func TestDecoderBaseWaitPreBufferGateUnblocksOnStop(t *testing.T) {
	b := newTestDecoderBase()
	b.running.Store(true)
	b.SetWaitingForPreBuffer(true)

	done := make(chan bool, 1)
	go func() { done <- b.waitPreBufferGate() }()

	select {
	case <-done:
		t.Fatal("waitPreBufferGate returned before being stopped")
	case <-time.After(50 * time.Millisecond):
	}

	b.running.Store(false)
	b.sleepMu.Lock()
	b.sleepCond.Broadcast()
	b.sleepMu.Unlock()

	select {
	case ok := <-done:
		assert.False(t, ok, "a stopped decoder must report not-running from the gate")
	case <-time.After(time.Second):
		t.Fatal("waitPreBufferGate did not wake up after stop")
	}
}

func TestDecoderBaseInterruptibleSleepZeroDurationDoesNotBlock(t *testing.T) {
	b := newTestDecoderBase()
	b.running.Store(true)

	start := time.Now()
	ok := b.interruptibleSleep(0)
	assert.True(t, ok)
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestDecoderBaseInterruptibleSleepElapsesNaturally(t *testing.T) {
	b := newTestDecoderBase()
	b.running.Store(true)

	start := time.Now()
	ok := b.interruptibleSleep(0.05)
	assert.True(t, ok)
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestDecoderBaseInterruptibleSleepWokenByStop(t *testing.T) {
	b := newTestDecoderBase()
	b.running.Store(true)

	var woke int32
	done := make(chan struct{})
	go func() {
		ok := b.interruptibleSleep(10)
		if !ok {
			atomic.StoreInt32(&woke, 1)
		}
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	b.running.Store(false)
	b.sleepMu.Lock()
	b.sleepCond.Broadcast()
	b.sleepMu.Unlock()

	select {
	case <-done:
		assert.Equal(t, int32(1), atomic.LoadInt32(&woke))
	case <-time.After(time.Second):
		t.Fatal("interruptibleSleep did not wake up on stop")
	}
}

func TestDecoderBaseIsBeforeSeekTarget(t *testing.T) {
	b := newTestDecoderBase()
	b.SetSeekPos(5.0)

	assert.True(t, b.isBeforeSeekTarget(4.999))
	assert.False(t, b.isBeforeSeekTarget(5.0))
	assert.False(t, b.isBeforeSeekTarget(5.001))
}

func TestDecoderBaseIsBeforeSeekTargetNeverDropsNaNPts(t *testing.T) {
	b := newTestDecoderBase()
	b.SetSeekPos(5.0)

	assert.False(t, b.isBeforeSeekTarget(math.NaN()))
}

func TestDecoderBaseIsBeforeSeekTargetDefaultsToZero(t *testing.T) {
	b := newTestDecoderBase()
	assert.False(t, b.isBeforeSeekTarget(0))
	assert.False(t, b.isBeforeSeekTarget(1.0))
}

func TestDecoderBaseOpenCodecFailsWithoutOpenDemuxer(t *testing.T) {
	b := newTestDecoderBase()
	err := b.openCodec(0, nil)
	require.Error(t, err)
	assert.Equal(t, ErrKindIoOpenFailed, KindOf(err))
}
