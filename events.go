package decodersdk

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/asticode/go-astikit"
	"github.com/google/uuid"
)

// EventType enumerates the kinds of events the core can emit.
type EventType int

const (
	EventStreamOpening EventType = iota
	EventStreamOpened
	EventStreamClose
	EventStreamClosed
	EventStreamReadData
	EventStreamReadError
	EventStreamReadRecovery
	EventStreamEnded
	EventCreateDecoderSuccess
	EventCreateDecoderFailed
	EventDecodeStarted
	EventDecodeStopped
	EventDestroyDecoder
	EventDecodeError
	EventSeekStarted
	EventSeekDone
	EventSeekFailed
	EventRecordingStarted
	EventRecordingStopped
	EventRecordingError
	EventPreBufferReady
	EventReconnecting
	EventReconnectFailed
)

func (t EventType) String() string {
	switch t {
	case EventStreamOpening:
		return "stream_opening"
	case EventStreamOpened:
		return "stream_opened"
	case EventStreamClose:
		return "stream_close"
	case EventStreamClosed:
		return "stream_closed"
	case EventStreamReadData:
		return "stream_read_data"
	case EventStreamReadError:
		return "stream_read_error"
	case EventStreamReadRecovery:
		return "stream_read_recovery"
	case EventStreamEnded:
		return "stream_ended"
	case EventCreateDecoderSuccess:
		return "create_decoder_success"
	case EventCreateDecoderFailed:
		return "create_decoder_failed"
	case EventDecodeStarted:
		return "decode_started"
	case EventDecodeStopped:
		return "decode_stopped"
	case EventDestroyDecoder:
		return "destroy_decoder"
	case EventDecodeError:
		return "decode_error"
	case EventSeekStarted:
		return "seek_started"
	case EventSeekDone:
		return "seek_done"
	case EventSeekFailed:
		return "seek_failed"
	case EventRecordingStarted:
		return "recording_started"
	case EventRecordingStopped:
		return "recording_stopped"
	case EventRecordingError:
		return "recording_error"
	case EventPreBufferReady:
		return "pre_buffer_ready"
	case EventReconnecting:
		return "reconnecting"
	case EventReconnectFailed:
		return "reconnect_failed"
	default:
		return "unknown"
	}
}

// MediaType distinguishes the stream kind an event pertains to.
type MediaType int

const (
	MediaUnknown MediaType = iota
	MediaVideo
	MediaAudio
)

// EventArgs is implemented by every concrete event payload type.
type EventArgs interface {
	Timestamp() time.Time
	Source() string
}

type baseEventArgs struct {
	timestamp time.Time
	source    string
}

func (b baseEventArgs) Timestamp() time.Time { return b.timestamp }
func (b baseEventArgs) Source() string       { return b.source }

func newBaseEventArgs(source string) baseEventArgs {
	return baseEventArgs{timestamp: time.Now(), source: source}
}

// StreamEventArgs carries demuxer/open/close/read lifecycle details.
type StreamEventArgs struct {
	baseEventArgs
	Description  string
	ErrorCode    int
	ErrorMessage string
}

// DecoderEventArgs carries decoder-lifecycle details.
type DecoderEventArgs struct {
	baseEventArgs
	MediaType    MediaType
	CodecName    string
	StreamIndex  int
	UseHardware  bool
	ErrorMessage string
}

// SeekEventArgs carries seek-lifecycle details.
type SeekEventArgs struct {
	baseEventArgs
	PositionSeconds float64
	ErrorMessage    string
}

// RecordingEventArgs carries recording-lifecycle details.
type RecordingEventArgs struct {
	baseEventArgs
	OutputPath   string
	ErrorMessage string
}

// EventCallback receives a dispatched event.
type EventCallback func(t EventType, args EventArgs)

// EventListenerHandle identifies a registered listener for later
// removal.
type EventListenerHandle string

// DeliveryMode selects how TriggerEvent hands the event to listeners.
type DeliveryMode int

const (
	// DeliverySync invokes listeners inline, on the triggering goroutine.
	DeliverySync DeliveryMode = iota
	// DeliveryAsync enqueues the event for a background worker to drain.
	DeliveryAsync
)

type listenerEntry struct {
	handle EventListenerHandle
	cb     EventCallback
}

// EventStats summarizes dispatcher activity, for diagnostics.
type EventStats struct {
	Triggered int64
	Dropped   int64
	Pending   int
}

// EventDispatcher fans events out to per-type and global listeners,
// either synchronously or via a background drain queue.
type EventDispatcher struct {
	mu         sync.RWMutex
	listeners  map[EventType][]listenerEntry
	global     []listenerEntry
	delivery   DeliveryMode
	logging    bool
	maxPending int

	asyncChan  *astikit.Chan
	asyncCtx   context.Context
	asyncStop  context.CancelFunc

	statsMu   sync.Mutex
	triggered int64
	dropped   int64
	pending   int64
}

// NewEventDispatcher creates a dispatcher delivering synchronously by
// default.
func NewEventDispatcher() *EventDispatcher {
	return &EventDispatcher{
		listeners:  make(map[EventType][]listenerEntry),
		delivery:   DeliverySync,
		maxPending: 1024,
		asyncChan:  astikit.NewChan(astikit.ChanOptions{}),
	}
}

// SetAsyncProcessing switches between synchronous and queued delivery
// and, when enabling, starts the background drain goroutine.
func (d *EventDispatcher) SetAsyncProcessing(enabled bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if enabled && d.delivery == DeliverySync {
		d.delivery = DeliveryAsync
		d.asyncCtx, d.asyncStop = context.WithCancel(context.Background())
		go d.asyncChan.Start(d.asyncCtx)
	} else if !enabled {
		d.delivery = DeliverySync
		if d.asyncStop != nil {
			d.asyncStop()
		}
		d.asyncChan.Stop()
	}
}

// IsAsyncProcessingActive reports whether queued delivery is enabled.
func (d *EventDispatcher) IsAsyncProcessingActive() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.delivery == DeliveryAsync
}

// AddGlobalEventListener registers cb for every event type.
func (d *EventDispatcher) AddGlobalEventListener(cb EventCallback) EventListenerHandle {
	h := EventListenerHandle(uuid.NewString())
	d.mu.Lock()
	defer d.mu.Unlock()
	d.global = append(d.global, listenerEntry{handle: h, cb: cb})
	return h
}

// RemoveGlobalEventListener removes a previously registered global
// listener.
func (d *EventDispatcher) RemoveGlobalEventListener(h EventListenerHandle) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, e := range d.global {
		if e.handle == h {
			d.global = append(d.global[:i], d.global[i+1:]...)
			return true
		}
	}
	return false
}

// RemoveAllGlobalListeners clears every global listener.
func (d *EventDispatcher) RemoveAllGlobalListeners() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.global = nil
}

// GlobalListenerCount reports the number of registered global listeners.
func (d *EventDispatcher) GlobalListenerCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.global)
}

// AddEventListener registers cb for a single event type.
func (d *EventDispatcher) AddEventListener(t EventType, cb EventCallback) EventListenerHandle {
	h := EventListenerHandle(uuid.NewString())
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listeners[t] = append(d.listeners[t], listenerEntry{handle: h, cb: cb})
	return h
}

// RemoveEventListener removes a previously registered per-type listener.
func (d *EventDispatcher) RemoveEventListener(t EventType, h EventListenerHandle) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	entries := d.listeners[t]
	for i, e := range entries {
		if e.handle == h {
			d.listeners[t] = append(entries[:i], entries[i+1:]...)
			return true
		}
	}
	return false
}

// RemoveAllListeners clears listeners for one type, or all types if none
// is given.
func (d *EventDispatcher) RemoveAllListeners(types ...EventType) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(types) == 0 {
		d.listeners = make(map[EventType][]listenerEntry)
		return
	}
	for _, t := range types {
		delete(d.listeners, t)
	}
}

// ListenerCount reports the number of listeners registered for t,
// including global listeners.
func (d *EventDispatcher) ListenerCount(t EventType) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.listeners[t]) + len(d.global)
}

// HasListeners reports whether any listener would receive an event of
// type t.
func (d *EventDispatcher) HasListeners(t EventType) bool {
	return d.ListenerCount(t) > 0
}

// SetMaxEventQueueSize bounds the async delivery queue; events beyond
// this are dropped and counted in Dropped.
func (d *EventDispatcher) SetMaxEventQueueSize(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.maxPending = n
}

// SetEventLogging enables or disables debug logging of every dispatched
// event.
func (d *EventDispatcher) SetEventLogging(enabled bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.logging = enabled
}

// TriggerEvent delivers an event, synchronously or via the async queue
// depending on the current delivery mode.
func (d *EventDispatcher) TriggerEvent(t EventType, args EventArgs) {
	d.mu.RLock()
	mode := d.delivery
	logging := d.logging
	d.mu.RUnlock()

	if logging {
		log.Printf("decodersdk: event %s from %s", t, args.Source())
	}

	d.statsMu.Lock()
	d.triggered++
	d.statsMu.Unlock()

	if mode == DeliverySync {
		d.deliver(t, args)
		return
	}
	d.TriggerEventAsync(t, args)
}

// TriggerEventAsync always enqueues the event for background delivery,
// regardless of the dispatcher's current delivery mode.
func (d *EventDispatcher) TriggerEventAsync(t EventType, args EventArgs) {
	d.mu.RLock()
	max := d.maxPending
	d.mu.RUnlock()

	d.statsMu.Lock()
	if max > 0 && d.pending >= int64(max) {
		d.dropped++
		d.statsMu.Unlock()
		return
	}
	d.pending++
	d.statsMu.Unlock()

	d.asyncChan.Add(func() {
		d.deliver(t, args)
		d.statsMu.Lock()
		d.pending--
		d.statsMu.Unlock()
	})
}

func (d *EventDispatcher) deliver(t EventType, args EventArgs) {
	d.mu.RLock()
	perType := append([]listenerEntry(nil), d.listeners[t]...)
	global := append([]listenerEntry(nil), d.global...)
	d.mu.RUnlock()

	for _, e := range perType {
		e.cb(t, args)
	}
	for _, e := range global {
		e.cb(t, args)
	}
}

// PendingEventCount reports how many events are queued for async
// delivery.
func (d *EventDispatcher) PendingEventCount() int {
	d.statsMu.Lock()
	defer d.statsMu.Unlock()
	return int(d.pending)
}

// ClearPendingEvents drops every queued async event without delivering
// it.
func (d *EventDispatcher) ClearPendingEvents() {
	d.asyncChan.Reset()
	d.statsMu.Lock()
	d.pending = 0
	d.statsMu.Unlock()
}

// WaitForPendingEvents blocks until the async queue drains or timeout
// elapses.
func (d *EventDispatcher) WaitForPendingEvents(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for d.PendingEventCount() > 0 {
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(time.Millisecond)
	}
	return true
}

// Stats reports dispatcher activity counters.
func (d *EventDispatcher) Stats() EventStats {
	d.statsMu.Lock()
	defer d.statsMu.Unlock()
	return EventStats{
		Triggered: d.triggered,
		Dropped:   d.dropped,
		Pending:   int(d.pending),
	}
}

// Close stops the background drain goroutine, if running.
func (d *EventDispatcher) Close() {
	if d.asyncStop != nil {
		d.asyncStop()
	}
	d.asyncChan.Stop()
}

// AllEventTypes lists every event type the dispatcher can emit.
func AllEventTypes() []EventType {
	return []EventType{
		EventStreamOpening, EventStreamOpened, EventStreamClose, EventStreamClosed,
		EventStreamReadData, EventStreamReadError, EventStreamReadRecovery, EventStreamEnded,
		EventCreateDecoderSuccess, EventCreateDecoderFailed, EventDecodeStarted, EventDecodeStopped,
		EventDestroyDecoder, EventDecodeError, EventSeekStarted, EventSeekDone, EventSeekFailed,
		EventRecordingStarted, EventRecordingStopped, EventRecordingError, EventPreBufferReady,
		EventReconnecting, EventReconnectFailed,
	}
}

// EventTypeName returns the human-readable name of an event type.
func EventTypeName(t EventType) string { return t.String() }
