package decodersdk

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventDispatcherSyncDeliveryIsInline(t *testing.T) {
	d := NewEventDispatcher()
	defer d.Close()

	var got int32
	d.AddEventListener(EventSeekDone, func(t EventType, args EventArgs) {
		atomic.StoreInt32(&got, 1)
	})

	d.TriggerEvent(EventSeekDone, StreamEventArgs{baseEventArgs: newBaseEventArgs("test")})

	// Synchronous delivery must have already run the listener by the time
	// TriggerEvent returns.
	assert.Equal(t, int32(1), atomic.LoadInt32(&got))
}

func TestEventDispatcherAsyncDeliveryEventuallyRuns(t *testing.T) {
	d := NewEventDispatcher()
	d.SetAsyncProcessing(true)
	defer d.Close()

	var got int32
	d.AddGlobalEventListener(func(t EventType, args EventArgs) {
		atomic.StoreInt32(&got, 1)
	})

	d.TriggerEvent(EventDecodeStarted, StreamEventArgs{baseEventArgs: newBaseEventArgs("test")})

	require.True(t, d.WaitForPendingEvents(2*time.Second))
	assert.Equal(t, int32(1), atomic.LoadInt32(&got))
}

func TestEventDispatcherAddRemoveListener(t *testing.T) {
	d := NewEventDispatcher()
	defer d.Close()

	h := d.AddEventListener(EventSeekStarted, func(t EventType, args EventArgs) {})
	assert.True(t, d.HasListeners(EventSeekStarted))
	assert.Equal(t, 1, d.ListenerCount(EventSeekStarted))

	removed := d.RemoveEventListener(EventSeekStarted, h)
	assert.True(t, removed)
	assert.False(t, d.HasListeners(EventSeekStarted))

	// Removing an already-removed handle reports false.
	assert.False(t, d.RemoveEventListener(EventSeekStarted, h))
}

func TestEventDispatcherGlobalListenerCountsTowardEveryType(t *testing.T) {
	d := NewEventDispatcher()
	defer d.Close()

	h := d.AddGlobalEventListener(func(t EventType, args EventArgs) {})
	assert.Equal(t, 1, d.GlobalListenerCount())
	assert.True(t, d.HasListeners(EventDecodeError))
	assert.True(t, d.HasListeners(EventRecordingStarted))

	assert.True(t, d.RemoveGlobalEventListener(h))
	assert.False(t, d.HasListeners(EventDecodeError))
}

func TestEventDispatcherStatsCountTriggeredAndDropped(t *testing.T) {
	d := NewEventDispatcher()
	d.SetMaxEventQueueSize(1)
	d.SetAsyncProcessing(true)
	defer d.Close()

	release := make(chan struct{})
	d.AddGlobalEventListener(func(t EventType, args EventArgs) {
		<-release
	})

	// The first event is picked up by the drain goroutine and blocks on
	// release, holding pending at 1 until we let it go.
	d.TriggerEvent(EventStreamEnded, StreamEventArgs{baseEventArgs: newBaseEventArgs("a")})
	time.Sleep(50 * time.Millisecond)

	// With pending already at the configured max, this one must be dropped.
	d.TriggerEvent(EventStreamEnded, StreamEventArgs{baseEventArgs: newBaseEventArgs("b")})

	close(release)
	require.True(t, d.WaitForPendingEvents(2*time.Second))

	stats := d.Stats()
	assert.Equal(t, int64(1), stats.Dropped)
	assert.Equal(t, int64(2), stats.Triggered)
}

func TestEventDispatcherConcurrentTriggerIsRaceFree(t *testing.T) {
	d := NewEventDispatcher()
	d.SetAsyncProcessing(true)
	defer d.Close()

	var count int64
	d.AddGlobalEventListener(func(t EventType, args EventArgs) {
		atomic.AddInt64(&count, 1)
	})

	var wg sync.WaitGroup
	const n = 100
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			d.TriggerEvent(EventStreamReadData, StreamEventArgs{baseEventArgs: newBaseEventArgs("race")})
		}()
	}
	wg.Wait()

	require.True(t, d.WaitForPendingEvents(2*time.Second))
	assert.Equal(t, int64(n), atomic.LoadInt64(&count))
}
