package decodersdk

import (
	"sync"
	"time"

	astiav "github.com/asticode/go-astiav"
)

// Packet wraps a reference-counted compressed packet tagged with the
// serial of the queue epoch it belongs to.
type Packet struct {
	pkt    *astiav.Packet
	serial int
}

// NewPacket allocates an empty packet.
func NewPacket() *Packet {
	return &Packet{pkt: astiav.AllocPacket()}
}

// Ref takes a new reference on src, copying its fields into p.
func (p *Packet) Ref(src *astiav.Packet) error {
	return p.pkt.Ref(src)
}

// AVPacket exposes the underlying astiav packet.
func (p *Packet) AVPacket() *astiav.Packet { return p.pkt }

// Serial reports the queue epoch this packet was tagged with.
func (p *Packet) Serial() int { return p.serial }

// SetSerial tags the packet with a queue epoch.
func (p *Packet) SetSerial(serial int) { p.serial = serial }

// IsFlush reports whether this is an empty end-of-stream sentinel packet
// (zero-length payload, used to signal EOF downstream without tearing
// down the queue).
func (p *Packet) IsFlush() bool { return p.pkt == nil || p.pkt.Size() == 0 }

// Unref releases the packet's buffer reference without freeing the
// underlying astiav.Packet, so it can be reused.
func (p *Packet) Unref() {
	if p.pkt != nil {
		p.pkt.Unref()
	}
}

// Free releases the underlying astiav.Packet entirely.
func (p *Packet) Free() {
	if p.pkt != nil {
		p.pkt.Free()
		p.pkt = nil
	}
}

// PacketQueue is a bounded, thread-safe FIFO of Packets tagged with a
// serial (epoch) number. Flush bumps the serial so that in-flight
// consumers can discard packets from a stale epoch; Abort wakes every
// blocked waiter without discarding queued data.
type PacketQueue struct {
	mu   sync.Mutex
	cond *sync.Cond

	items    []*Packet
	capacity int

	serial  int
	aborted bool

	size     int
	duration time.Duration
}

// NewPacketQueue creates a queue bounded to capacity items. A capacity
// of 0 or less means unbounded; NewDemuxer creates its video and audio
// queues this way, so IsFull never reports them full and the demux
// loop's full-queue pause never engages.
func NewPacketQueue(capacity int) *PacketQueue {
	q := &PacketQueue{capacity: capacity}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Start resets the abort flag and bumps the serial, beginning a new
// epoch. Called when a demux/decode stage (re)starts.
func (q *PacketQueue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.aborted = false
	q.serial++
}

// Abort wakes every blocked Push/Pop caller; queued items are left in
// place until Flush or Destroy is called.
func (q *PacketQueue) Abort() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.aborted = true
	q.cond.Broadcast()
}

// IsAbort reports whether the queue has been aborted.
func (q *PacketQueue) IsAbort() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.aborted
}

// Serial returns the queue's current epoch.
func (q *PacketQueue) Serial() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.serial
}

// Flush discards all queued packets and bumps the serial, starting a new
// epoch. Consumers holding a packet from a previous epoch must discard
// it once they observe the serial change.
func (q *PacketQueue) Flush() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, p := range q.items {
		p.Free()
	}
	q.items = nil
	q.size = 0
	q.duration = 0
	q.serial++
	q.cond.Broadcast()
}

func (q *PacketQueue) canPush() bool {
	return q.capacity <= 0 || len(q.items) < q.capacity
}

func (q *PacketQueue) canPop() bool {
	return len(q.items) > 0
}

// Push enqueues pkt, stamping it with the queue's current serial.
// timeoutMs < 0 blocks indefinitely until there is room or the queue is
// aborted; timeoutMs == 0 returns immediately if the queue is full;
// timeoutMs > 0 blocks up to that many milliseconds. Reports false if the
// packet could not be pushed (full, on a zero/bounded timeout) or the
// queue was/became aborted.
func (q *PacketQueue) Push(pkt *Packet, timeoutMs int) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.waitFor(q.canPush, timeoutMs) {
		return false
	}
	if q.aborted {
		return false
	}

	pkt.SetSerial(q.serial)
	q.items = append(q.items, pkt)
	q.size += pkt.AVPacket().Size()
	q.cond.Broadcast()
	return true
}

// Pop dequeues the oldest packet. Same timeoutMs semantics as Push.
// Reports false with a nil packet if nothing was available within the
// timeout, or if the queue is aborted.
func (q *PacketQueue) Pop(timeoutMs int) (*Packet, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.waitFor(q.canPop, timeoutMs) {
		return nil, false
	}
	if q.aborted || len(q.items) == 0 {
		return nil, false
	}

	pkt := q.items[0]
	q.items = q.items[1:]
	q.size -= pkt.AVPacket().Size()
	if q.size < 0 {
		q.size = 0
	}
	return pkt, true
}

// waitFor blocks on cond until pred() is true, the queue is aborted, or
// timeoutMs elapses, per the timeout semantics documented on Push/Pop. It
// must be called with q.mu held.
func (q *PacketQueue) waitFor(pred func() bool, timeoutMs int) bool {
	if timeoutMs == 0 || q.aborted {
		return pred()
	}

	if timeoutMs < 0 {
		for !pred() && !q.aborted {
			q.cond.Wait()
		}
		return pred()
	}

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
	return pred()
}

// PacketCount reports the number of queued packets.
func (q *PacketQueue) PacketCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// PacketSize reports the aggregate payload size, in bytes, of queued
// packets.
func (q *PacketQueue) PacketSize() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

// IsFull reports whether the queue is at capacity.
func (q *PacketQueue) IsFull() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return !q.canPush()
}

// IsEmpty reports whether the queue currently holds no packets.
func (q *PacketQueue) IsEmpty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) == 0
}

// Destroy aborts the queue and releases all queued packets.
func (q *PacketQueue) Destroy() {
	q.Abort()
	q.mu.Lock()
	for _, p := range q.items {
		p.Free()
	}
	q.items = nil
	q.mu.Unlock()
}
