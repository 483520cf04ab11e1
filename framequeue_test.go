package decodersdk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameQueuePushPeekNext(t *testing.T) {
	q := NewFrameQueue(3, false)

	w := q.PeekWritable()
	require.NotNil(t, w)
	w.SetPTS(1.0)
	q.Push()

	assert.Equal(t, 1, q.Size())

	r := q.Peek()
	require.NotNil(t, r)
	assert.Equal(t, 1.0, r.PTS())

	q.Next()
	assert.Equal(t, 0, q.Size())
}

func TestFrameQueueKeepLastStillPeekableAfterNext(t *testing.T) {
	q := NewFrameQueue(3, true)

	w := q.PeekWritable()
	w.SetPTS(2.0)
	q.Push()

	q.Next() // first Next on a keepLast queue just marks the slot "shown"

	last := q.PeekLast()
	require.NotNil(t, last)
	assert.Equal(t, 2.0, last.PTS())

	// A second Next actually releases the slot.
	q.Next()
	assert.Equal(t, 0, q.Size())
}

func TestFrameQueueCapacityOneRoundTripsWithoutDeadlock(t *testing.T) {
	q := NewFrameQueue(1, false)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 50; i++ {
			w := q.PeekWritable()
			require.NotNil(t, w)
			q.Push()
		}
	}()

	for i := 0; i < 50; i++ {
		r := q.PeekReadable()
		require.NotNil(t, r)
		q.Next()
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("producer did not finish, frame queue appears deadlocked")
	}
}

func TestFrameQueueAbortWakesWaiters(t *testing.T) {
	q := NewFrameQueue(1, false)

	resultCh := make(chan *Frame, 1)
	go func() {
		resultCh <- q.PeekReadable()
	}()

	time.Sleep(50 * time.Millisecond)
	q.SetAbort(true)

	select {
	case f := <-resultCh:
		assert.Nil(t, f)
	case <-time.After(2 * time.Second):
		t.Fatal("abort did not wake PeekReadable")
	}
	assert.True(t, q.IsAbort())
}

func TestFrameQueueFlushResetsCursorsAndSerialSurvives(t *testing.T) {
	q := NewFrameQueue(3, false)
	q.SetSerial(5)

	w := q.PeekWritable()
	require.NotNil(t, w)
	q.Push()

	q.Flush()

	assert.Equal(t, 0, q.Size())
	assert.Equal(t, 5, q.Serial(), "Flush clears queued frames but SetSerial's epoch is a separate, caller-driven tag")
}

func TestFrameQueuePopFrameZeroTimeoutDoesNotBlockWhenEmpty(t *testing.T) {
	q := NewFrameQueue(2, false)

	start := time.Now()
	f, ok := q.PopFrame(0)
	assert.False(t, ok)
	assert.Nil(t, f)
	assert.Less(t, time.Since(start), 200*time.Millisecond)
}

func TestFrameQueuePeekNextRequiresTwoQueuedFrames(t *testing.T) {
	q := NewFrameQueue(3, false)

	w := q.PeekWritable()
	w.SetPTS(1.0)
	q.Push()

	assert.Nil(t, q.PeekNext(), "only one frame queued, PeekNext must not return it as 'next'")

	w = q.PeekWritable()
	w.SetPTS(2.0)
	q.Push()

	next := q.PeekNext()
	require.NotNil(t, next)
	assert.Equal(t, 2.0, next.PTS())
}
