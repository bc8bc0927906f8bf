// Package events allows for the registering and receiving of events.
package events

import (
	"encoding/json"
	"fmt"
	"sync"
)

// Dispatcher is the behavior the ledger uses to announce what happened to
// the state. Dispatch is fire and forget.
type Dispatcher interface {
	Dispatch(name string, payload any)
}

// Events maintains a mapping of unique id and channels so goroutines
// can register and receive events.
type Events struct {
	m  map[string]chan string
	mu sync.RWMutex
}

// New constructs an events for registering and receiving events.
func New() *Events {
	return &Events{
		m: make(map[string]chan string),
	}
}

// Shutdown closes and removes all channels that were provided by
// the call to Acquire.
func (evt *Events) Shutdown() {
	evt.mu.Lock()
	defer evt.mu.Unlock()

	for id, ch := range evt.m {
		delete(evt.m, id)
		close(ch)
	}
}

// Acquire takes a unique id and returns a channel that can be used
// to receive events.
func (evt *Events) Acquire(id string) chan string {
	evt.mu.Lock()
	defer evt.mu.Unlock()

	ch, exists := evt.m[id]
	if exists {
		return ch
	}

	// A message is dropped if the receiver is not ready, this buffer gives
	// a slow websocket writer some room.
	const messageBuffer = 100

	evt.m[id] = make(chan string, messageBuffer)
	return evt.m[id]
}

// Release closes and removes the channel that was provided by
// the call to Acquire.
func (evt *Events) Release(id string) error {
	evt.mu.Lock()
	defer evt.mu.Unlock()

	ch, exists := evt.m[id]
	if !exists {
		return fmt.Errorf("id %q does not exist", id)
	}

	delete(evt.m, id)
	close(ch)
	return nil
}

// Send signals a message to every registered channel. Send will not block
// waiting for a receiver on any given channel.
func (evt *Events) Send(s string) {
	evt.mu.RLock()
	defer evt.mu.RUnlock()

	for _, ch := range evt.m {
		select {
		case ch <- s:
		default:
		}
	}
}

// Dispatch implements the Dispatcher interface by sending the named event
// as a JSON document to every registered channel.
func (evt *Events) Dispatch(name string, payload any) {
	doc := struct {
		Event string `json:"event"`
		Data  any    `json:"data,omitempty"`
	}{
		Event: name,
		Data:  payload,
	}

	data, err := json.Marshal(doc)
	if err != nil {
		evt.Send(fmt.Sprintf(`{"event":%q}`, name))
		return
	}

	evt.Send(string(data))
}

// =============================================================================

// Event is a single dispatched event kept by a Recorder.
type Event struct {
	Name    string
	Payload any
}

// Recorder is a Dispatcher that keeps every event in order.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Dispatch implements the Dispatcher interface.
func (r *Recorder) Dispatch(name string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events = append(r.events, Event{Name: name, Payload: payload})
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]Event(nil), r.events...)
}

// Names returns the names of the recorded events in dispatch order.
func (r *Recorder) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, len(r.events))
	for i, e := range r.events {
		names[i] = e.Name
	}
	return names
}

// Count returns how many times the named event was dispatched.
func (r *Recorder) Count(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int
	for _, e := range r.events {
		if e.Name == name {
			n++
		}
	}
	return n
}

// Reset drops every recorded event.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events = nil
}

// =============================================================================

// Multi fans a single dispatch out to several dispatchers.
type Multi []Dispatcher

// Dispatch implements the Dispatcher interface.
func (m Multi) Dispatch(name string, payload any) {
	for _, d := range m {
		d.Dispatch(name, payload)
	}
}

// =============================================================================

// Buffer is a Dispatcher that holds events until they are flushed to
// another dispatcher or discarded.
type Buffer struct {
	mu     sync.Mutex
	events []Event
}

// Dispatch implements the Dispatcher interface.
func (b *Buffer) Dispatch(name string, payload any) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.events = append(b.events, Event{Name: name, Payload: payload})
}

// Flush dispatches the held events to d in order and empties the buffer.
func (b *Buffer) Flush(d Dispatcher) {
	b.mu.Lock()
	evts := b.events
	b.events = nil
	b.mu.Unlock()

	for _, e := range evts {
		d.Dispatch(e.Name, e.Payload)
	}
}

// Discard drops the held events.
func (b *Buffer) Discard() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.events = nil
}

// Len returns the number of held events.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.events)
}
