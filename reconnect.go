package decodersdk

import (
	"sync/atomic"
	"time"
)

// reconnectState holds the atomic flags the reconnect supervisor and its
// caller coordinate through: a detached goroutine retries Open on
// StreamReadError until it succeeds, hits the attempt cap, or is told to
// stop. Every wait loop checks shouldStop at <= 100ms granularity so
// stopReconnectAndWait returns promptly.
type reconnectState struct {
	isReconnecting atomic.Bool
	shouldStop     atomic.Bool
	attempts       atomic.Int64
}

func (c *Controller) onStreamReadError() {
	c.mu.Lock()
	cfg := c.cfg
	url := c.url
	c.mu.Unlock()

	if !cfg.EnableAutoReconnect || c.reconnect.shouldStop.Load() {
		return
	}

	c.reconnect.isReconnecting.Store(true)
	go c.handleReconnect(url)
}

// handleReconnect retries reopening url until it succeeds, the attempt
// cap (cfg.MaxReconnectAttempts, -1 = infinite) is reached, or a stop is
// requested.
func (c *Controller) handleReconnect(url string) {
	for {
		if c.reconnect.shouldStop.Load() {
			c.reconnect.isReconnecting.Store(false)
			c.reconnect.attempts.Store(0)
			return
		}

		c.mu.Lock()
		cfg := c.cfg
		c.mu.Unlock()

		if cfg.MaxReconnectAttempts >= 0 && c.reconnect.attempts.Load() >= int64(cfg.MaxReconnectAttempts) {
			c.reconnect.attempts.Store(0)
			c.reconnect.isReconnecting.Store(false)
			c.events.TriggerEvent(EventReconnectFailed, StreamEventArgs{
				baseEventArgs: newBaseEventArgs(c.demuxer.source),
				Description:   url,
			})
			return
		}

		c.reconnect.attempts.Add(1)
		c.events.TriggerEvent(EventReconnecting, StreamEventArgs{
			baseEventArgs: newBaseEventArgs(c.demuxer.source),
			Description:   url,
		})

		if c.reopen(url) {
			c.reconnect.attempts.Store(0)
			c.reconnect.isReconnecting.Store(false)
			return
		}

		if c.waitReconnectInterval(cfg.ReconnectIntervalMs) {
			c.reconnect.isReconnecting.Store(false)
			c.reconnect.attempts.Store(0)
			return
		}
	}
}

// waitReconnectInterval sleeps in 100ms slices, checking shouldStop each
// slice, and reports true if it was interrupted by a stop request.
func (c *Controller) waitReconnectInterval(intervalMs int) bool {
	for waited := 0; waited < intervalMs; waited += 100 {
		if c.reconnect.shouldStop.Load() {
			return true
		}
		slice := 100 * time.Millisecond
		if remaining := intervalMs - waited; remaining < 100 {
			slice = time.Duration(remaining) * time.Millisecond
		}
		time.Sleep(slice)
	}
	return c.reconnect.shouldStop.Load()
}

// reopen closes and reopens url, tagging the reopen so a StreamReadRecovery
// event fires, restarting decode if it was active beforehand.
func (c *Controller) reopen(url string) bool {
	c.mu.Lock()
	wasDecoding := c.isDecoding
	c.mu.Unlock()

	if wasDecoding {
		_ = c.stopDecodeInternal(true)
	}

	_ = c.demuxer.Close()

	if c.waitReconnectInterval(1000) {
		return false
	}

	if err := c.demuxer.Open(url, isRealTimeURL(url), true); err != nil {
		return false
	}

	if wasDecoding {
		_ = c.startDecodeInternal(true)
	}
	return true
}

// StopReconnect requests the reconnect supervisor to stop and blocks
// until it has.
func (c *Controller) StopReconnect() {
	c.stopReconnectAndWait()
}

func (c *Controller) stopReconnectAndWait() {
	c.reconnect.shouldStop.Store(true)
	for c.reconnect.isReconnecting.Load() {
		time.Sleep(10 * time.Millisecond)
	}
	c.reconnect.attempts.Store(0)
	c.reconnect.shouldStop.Store(false)
}

// IsReconnecting reports whether the reconnect supervisor is currently
// active.
func (c *Controller) IsReconnecting() bool { return c.reconnect.isReconnecting.Load() }
