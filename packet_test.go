package decodersdk

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPacketQueuePushPopOrder(t *testing.T) {
	q := NewPacketQueue(4)
	q.Start()

	for i := 0; i < 3; i++ {
		p := NewPacket()
		ok := q.Push(p, -1)
		require.True(t, ok)
	}
	require.Equal(t, 3, q.PacketCount())

	for i := 0; i < 3; i++ {
		p, ok := q.Pop(-1)
		require.True(t, ok)
		require.NotNil(t, p)
		assert.Equal(t, q.Serial(), p.Serial())
		p.Free()
	}
	assert.True(t, q.IsEmpty())
}

func TestPacketQueueCapacityOneRoundTripsWithoutDeadlock(t *testing.T) {
	q := NewPacketQueue(1)
	q.Start()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 50; i++ {
			p := NewPacket()
			require.True(t, q.Push(p, -1))
		}
	}()

	for i := 0; i < 50; i++ {
		p, ok := q.Pop(-1)
		require.True(t, ok)
		p.Free()
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("producer did not finish, queue appears deadlocked")
	}
}

func TestPacketQueueZeroTimeoutDoesNotBlock(t *testing.T) {
	q := NewPacketQueue(1)
	q.Start()

	p := NewPacket()
	require.True(t, q.Push(p, 0))

	// Queue is now full; a zero-timeout push must return immediately.
	start := time.Now()
	ok := q.Push(NewPacket(), 0)
	assert.False(t, ok)
	assert.Less(t, time.Since(start), 200*time.Millisecond)

	got, ok := q.Pop(0)
	require.True(t, ok)
	got.Free()

	// Now empty; a zero-timeout pop must return immediately too.
	start = time.Now()
	_, ok = q.Pop(0)
	assert.False(t, ok)
	assert.Less(t, time.Since(start), 200*time.Millisecond)
}

func TestPacketQueueAbortWakesAllWaiters(t *testing.T) {
	q := NewPacketQueue(1)
	q.Start()

	const waiters = 8
	var wg sync.WaitGroup
	wg.Add(waiters)
	for i := 0; i < waiters; i++ {
		go func() {
			defer wg.Done()
			_, ok := q.Pop(-1)
			assert.False(t, ok)
		}()
	}

	// Give the goroutines a moment to block on cond.Wait.
	time.Sleep(50 * time.Millisecond)
	q.Abort()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("abort did not wake every blocked waiter")
	}
	assert.True(t, q.IsAbort())
}

func TestPacketQueueFlushBumpsSerialAndDrains(t *testing.T) {
	q := NewPacketQueue(4)
	q.Start()
	serial := q.Serial()

	require.True(t, q.Push(NewPacket(), -1))
	require.True(t, q.Push(NewPacket(), -1))
	require.Equal(t, 2, q.PacketCount())

	q.Flush()

	assert.Equal(t, serial+1, q.Serial())
	assert.Equal(t, 0, q.PacketCount())
	assert.True(t, q.IsEmpty())
}

func TestPacketIsFlush(t *testing.T) {
	p := NewPacket()
	defer p.Free()
	assert.True(t, p.IsFlush(), "a freshly allocated packet has zero size and counts as a flush sentinel")
}
