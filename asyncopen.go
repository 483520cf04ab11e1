package decodersdk

import (
	"sync"
	"sync/atomic"
	"time"
)

// asyncOpenState coordinates OpenAsync/CancelAsyncOpen: inProgress and
// cancel are checked before the blocking Open call, inside any wait
// loop it passes through, and after it returns, so a cancellation that
// arrives mid-call still unwinds a successful-but-unwanted open.
type asyncOpenState struct {
	inProgress atomic.Bool
	cancel     atomic.Bool

	mu       sync.Mutex
	callback AsyncOpenCallback
	done     chan struct{}
}

func (c *Controller) startAsyncOpen(url string, cfg Config, callback AsyncOpenCallback) {
	c.cancelAsyncOpenAndWait()

	done := make(chan struct{})
	c.asyncOpen.mu.Lock()
	c.asyncOpen.callback = callback
	c.asyncOpen.done = done
	c.asyncOpen.mu.Unlock()

	c.asyncOpen.inProgress.Store(true)
	c.asyncOpen.cancel.Store(false)

	go func() {
		defer close(done)

		result := AsyncOpenFailed
		openSuccess := false
		message := ""

		if c.asyncOpen.cancel.Load() {
			result = AsyncOpenCancelled
			message = "cancelled before starting"
		} else {
			openSuccess = c.openAsyncInternal(url, cfg)
			switch {
			case c.asyncOpen.cancel.Load():
				result = AsyncOpenCancelled
				message = "cancelled during open"
				if openSuccess {
					_ = c.demuxer.Close()
					openSuccess = false
				}
			case openSuccess:
				result = AsyncOpenSuccess
			default:
				result = AsyncOpenFailed
				message = "failed to open media source"
			}
		}

		c.asyncOpen.mu.Lock()
		cb := c.asyncOpen.callback
		c.asyncOpen.callback = nil
		c.asyncOpen.mu.Unlock()

		if cb != nil {
			cb(result, openSuccess, message)
		}

		c.asyncOpen.inProgress.Store(false)
	}()
}

func (c *Controller) openAsyncInternal(url string, cfg Config) bool {
	if c.asyncOpen.cancel.Load() {
		return false
	}

	c.stopReconnectAndWaitCancellable()
	if c.asyncOpen.cancel.Load() {
		return false
	}

	if err := cfg.Validate(); err != nil {
		return false
	}

	c.mu.Lock()
	c.cfg = cfg
	c.url = url
	c.preBufferSt = PreBufferDisabled
	c.mu.Unlock()

	if c.asyncOpen.cancel.Load() {
		return false
	}

	return c.demuxer.Open(url, isRealTimeURL(url), false) == nil
}

// stopReconnectAndWaitCancellable behaves like stopReconnectAndWait but
// returns early if an async-open cancellation arrives while waiting.
func (c *Controller) stopReconnectAndWaitCancellable() {
	c.reconnect.shouldStop.Store(true)
	for c.reconnect.isReconnecting.Load() {
		if c.asyncOpen.cancel.Load() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	c.reconnect.attempts.Store(0)
	c.reconnect.shouldStop.Store(false)
}

func (c *Controller) cancelAsyncOpenAndWait() {
	if !c.asyncOpen.inProgress.Load() {
		return
	}
	c.asyncOpen.cancel.Store(true)

	c.asyncOpen.mu.Lock()
	done := c.asyncOpen.done
	c.asyncOpen.mu.Unlock()

	if done != nil {
		<-done
	}
	c.asyncOpen.cancel.Store(false)
}

// IsAsyncOpenInProgress reports whether an OpenAsync call is still
// running.
func (c *Controller) IsAsyncOpenInProgress() bool { return c.asyncOpen.inProgress.Load() }
