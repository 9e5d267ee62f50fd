package telemetry

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/open-scum/scumcal/internal/registry"
	"github.com/open-scum/scumcal/internal/tuning"
)

// Event types published by the calibration engine and feedback controller.
const (
	EventChannelCalibrated = "channel_calibrated"
	EventSweepAdvanced     = "sweep_advanced"
	EventFeedbackCorrected = "feedback_corrected"
)

// Event is one calibration progress notification.
type Event struct {
	ID      int64         `json:"id"`
	Type    string        `json:"type"`
	Channel int           `json:"channel"`
	Mode    registry.Mode `json:"mode"`
	Code    tuning.Code   `json:"code"`
	Time    time.Time     `json:"ts"`
}

// Subscription is one subscriber's view of the hub. Events arrive on C;
// Close detaches the subscriber and closes C.
type Subscription struct {
	C <-chan Event

	id  int
	hub *Hub
}

// Close detaches the subscription from the hub.
func (s *Subscription) Close() {
	s.hub.unsubscribe(s.id)
}

// Hub fans calibration progress events out to in-process subscribers and
// keeps a ring buffer of the most recent events for late subscribers.
//
// LOCK ORDERING:
// 1. h.mu - protects the subscriber map
// 2. EventBuffer.mu - protects buffer state
// Never acquire h.mu while holding EventBuffer.mu.
type Hub struct {
	mu     sync.RWMutex
	subs   map[int]chan Event
	nextID int
	closed bool

	buffer  *EventBuffer
	eventID atomic.Int64
}

// NewHub creates a hub buffering the last bufferSize events.
func NewHub(bufferSize int) *Hub {
	return &Hub{
		subs:   make(map[int]chan Event),
		buffer: NewEventBuffer(bufferSize),
	}
}

// Publish records and fans out one event. It implements the calibration
// engine's event sink and must not block: a subscriber that has fallen
// behind has the event dropped rather than stalling the engine, which may
// be publishing from a timer callback.
func (h *Hub) Publish(event string, channel int, mode registry.Mode, code tuning.Code) {
	e := Event{
		ID:      h.eventID.Add(1),
		Type:    event,
		Channel: channel,
		Mode:    mode,
		Code:    code,
		Time:    time.Now().UTC(),
	}

	h.buffer.AddEvent(e)

	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return
	}
	for _, ch := range h.subs {
		select {
		case ch <- e:
		default:
			// Subscriber is slow; drop rather than block the publisher.
		}
	}
}

// Subscribe registers a new subscriber. Events with IDs greater than
// afterID that are still in the buffer are replayed onto the channel
// before any live events, so a supervisor that reconnects mid-calibration
// sees the progress it missed.
func (h *Hub) Subscribe(afterID int64) *Subscription {
	ch := make(chan Event, 64)

	for _, e := range h.buffer.EventsAfter(afterID) {
		ch <- e
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	id := h.nextID
	h.subs[id] = ch
	return &Subscription{C: ch, id: id, hub: h}
}

func (h *Hub) unsubscribe(id int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.subs[id]; ok {
		delete(h.subs, id)
		close(ch)
	}
}

// Stop closes every subscription. Publish becomes a buffer-only operation
// afterwards.
func (h *Hub) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
}

// LastEventID returns the ID of the most recently published event.
func (h *Hub) LastEventID() int64 {
	return h.eventID.Load()
}

// EventBuffer maintains a circular buffer of the most recent events.
type EventBuffer struct {
	mu       sync.RWMutex
	events   []Event
	capacity int
}

// NewEventBuffer creates a buffer holding at most capacity events.
func NewEventBuffer(capacity int) *EventBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &EventBuffer{
		events:   make([]Event, 0, capacity),
		capacity: capacity,
	}
}

// AddEvent appends an event, evicting the oldest once at capacity.
func (b *EventBuffer) AddEvent(e Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, e)
	if len(b.events) > b.capacity {
		b.events = b.events[1:]
	}
}

// EventsAfter returns the buffered events with IDs greater than lastID, in
// publication order.
func (b *EventBuffer) EventsAfter(lastID int64) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var result []Event
	for _, e := range b.events {
		if e.ID > lastID {
			result = append(result, e)
		}
	}
	return result
}

// Size returns the current number of buffered events.
func (b *EventBuffer) Size() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.events)
}

// Capacity returns the buffer capacity.
func (b *EventBuffer) Capacity() int {
	return b.capacity
}
