package decodersdk

import (
	"sync"
	"time"
)

// FrameQueue is a bounded ring buffer of decoded Frames. It follows the
// inner (corrected) predicate pair for peekWritable/peekReadable: a slot
// is writable while size < maxSize, and readable while
// size - rindexShown > 0. keepLast controls whether the most recently
// shown frame stays peekable (used for the video queue, which must keep
// re-displaying the last frame while waiting for the next one) or is
// discarded immediately on Next (used for audio).
type FrameQueue struct {
	mu   sync.Mutex
	cond *sync.Cond

	queue    []*Frame
	maxSize  int
	keepLast bool

	rindex      int
	rindexShown int
	windex      int
	size        int

	serial  int
	aborted bool
}

// NewFrameQueue creates a queue of maxSize slots.
func NewFrameQueue(maxSize int, keepLast bool) *FrameQueue {
	q := &FrameQueue{
		queue:    make([]*Frame, maxSize),
		maxSize:  maxSize,
		keepLast: keepLast,
	}
	for i := range q.queue {
		q.queue[i] = newFrame()
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// SetSerial tags the queue with a new epoch (called when the upstream
// packet queue's serial changes).
func (q *FrameQueue) SetSerial(serial int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.serial = serial
}

// Serial returns the queue's current epoch.
func (q *FrameQueue) Serial() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.serial
}

// SetAbort sets or clears the abort flag, waking all waiters.
func (q *FrameQueue) SetAbort(aborted bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.aborted = aborted
	q.cond.Broadcast()
}

// IsAbort reports whether the queue has been aborted.
func (q *FrameQueue) IsAbort() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.aborted
}

// PeekWritable blocks until a slot is free for writing or the queue is
// aborted, and returns that slot. Returns nil if aborted.
func (q *FrameQueue) PeekWritable() *Frame {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.size >= q.maxSize && !q.aborted {
		q.cond.Wait()
	}
	if q.aborted {
		return nil
	}
	return q.queue[q.windex]
}

// Push commits the frame most recently returned by PeekWritable.
func (q *FrameQueue) Push() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.windex = (q.windex + 1) % q.maxSize
	q.size++
	q.cond.Broadcast()
}

// PeekReadable blocks until a frame is available for reading or the
// queue is aborted, and returns it. Returns nil if aborted.
func (q *FrameQueue) PeekReadable() *Frame {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.size-q.rindexShown <= 0 && !q.aborted {
		q.cond.Wait()
	}
	if q.aborted {
		return nil
	}
	return q.queue[(q.rindex+q.rindexShown)%q.maxSize]
}

// Peek returns the next readable frame without blocking, or nil if none
// is available.
func (q *FrameQueue) Peek() *Frame {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.size-q.rindexShown <= 0 {
		return nil
	}
	return q.queue[(q.rindex+q.rindexShown)%q.maxSize]
}

// PeekNext returns the frame after the current readable one, without
// blocking, or nil if not yet available.
func (q *FrameQueue) PeekNext() *Frame {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.size-q.rindexShown <= 1 {
		return nil
	}
	return q.queue[(q.rindex+q.rindexShown+1)%q.maxSize]
}

// PeekLast returns the most recently shown frame (valid only when
// keepLast is enabled and a frame has been shown).
func (q *FrameQueue) PeekLast() *Frame {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.queue[q.rindex]
}

// Next advances the read cursor. If keepLast is set and the current
// frame has not yet been "shown", it is marked shown and kept peekable;
// otherwise it is released and the slot freed.
func (q *FrameQueue) Next() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.keepLast && q.rindexShown == 0 {
		q.rindexShown = 1
		return
	}
	q.queue[q.rindex].Unref()
	q.rindex = (q.rindex + 1) % q.maxSize
	q.size--
	q.cond.Broadcast()
}

// PopFrame is the timeout-bounded variant used outside the decode loop:
// it waits (per the timeoutMs semantics shared with PacketQueue) for a
// readable frame, and if one arrives, advances past it and returns it
// as a new Frame holding its own reference, which the caller must Free.
// timeoutMs < 0 blocks indefinitely; 0 returns immediately; > 0 bounds
// the wait.
func (q *FrameQueue) PopFrame(timeoutMs int) (*Frame, bool) {
	f := q.peekReadableTimeout(timeoutMs)
	if f == nil {
		return nil, false
	}
	out := newFrame()
	if err := out.MoveFrom(f.frame); err != nil {
		out.Free()
		return nil, false
	}
	out.serial, out.pts, out.duration, out.isHardware = f.serial, f.pts, f.duration, f.isHardware
	q.Next()
	return out, true
}

func (q *FrameQueue) peekReadableTimeout(timeoutMs int) *Frame {
	q.mu.Lock()
	defer q.mu.Unlock()

	pred := func() bool { return q.size-q.rindexShown > 0 }

	switch {
	case timeoutMs == 0:
		// fall through to immediate check below
	case timeoutMs < 0:
		for !pred() && !q.aborted {
			q.cond.Wait()
		}
	default:
		deadline := time.Now().Add(time.Duration(timeoutMs) * time.Millisecond)
		timer := time.AfterFunc(time.Duration(timeoutMs)*time.Millisecond, func() {
			q.mu.Lock()
			q.cond.Broadcast()
			q.mu.Unlock()
		})
		defer timer.Stop()
		for !pred() && !q.aborted && time.Now().Before(deadline) {
			q.cond.Wait()
		}
	}

	if q.aborted || !pred() {
		return nil
	}
	return q.queue[(q.rindex+q.rindexShown)%q.maxSize]
}

// Flush releases all currently queued frames and resets the read/write
// cursors to the start of a fresh epoch.
func (q *FrameQueue) Flush() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := 0; i < q.size; i++ {
		q.queue[(q.rindex+i)%q.maxSize].Unref()
	}
	q.rindex = 0
	q.rindexShown = 0
	q.windex = 0
	q.size = 0
	q.cond.Broadcast()
}

// Size reports the number of frames currently queued (including the
// last-shown slot, if kept).
func (q *FrameQueue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}
