// Package events provides a fan-out bus so goroutines such as websocket
// handlers can subscribe to activity happening inside the node.
package events

import (
	"fmt"
	"sync"
	"time"
)

// Set of event kinds published by the node.
const (
	KindNode   = "node"
	KindTx     = "tx"
	KindBlock  = "block"
	KindBridge = "bridge"
	KindGov    = "gov"
)

// Event represents one occurrence inside the node that subscribers
// may want to observe.
type Event struct {
	Time time.Time `json:"time"`
	Kind string    `json:"kind"`
	Text string    `json:"text"`
}

// Bus maintains a mapping of unique id and channels so goroutines
// can subscribe to and receive events.
type Bus struct {
	m  map[string]chan Event
	mu sync.RWMutex
}

// New constructs a bus for subscribing to and publishing events.
func New() *Bus {
	return &Bus{
		m: make(map[string]chan Event),
	}
}

// Shutdown closes and removes all channels that were provided by
// the call to Acquire.
func (b *Bus) Shutdown() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, ch := range b.m {
		delete(b.m, id)
		close(ch)
	}
}

// Acquire takes a unique id and returns a channel that can be used
// to receive events.
func (b *Bus) Acquire(id string) chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch, exists := b.m[id]
	if exists {
		return ch
	}

	// Since an event is dropped if the subscriber is not ready to
	// receive, this buffer gives slow websocket writers enough room
	// to not lose events.
	const eventBuffer = 100

	b.m[id] = make(chan Event, eventBuffer)
	return b.m[id]
}

// Release closes and removes the channel that was provided by
// the call to Acquire.
func (b *Bus) Release(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch, exists := b.m[id]
	if !exists {
		return fmt.Errorf("id %q does not exist", id)
	}

	delete(b.m, id)
	close(ch)
	return nil
}

// Publish delivers an event to every subscribed channel. Publish will
// not block waiting for a receiver on any given channel.
func (b *Bus) Publish(kind string, format string, args ...any) {
	ev := Event{
		Time: time.Now().UTC(),
		Kind: kind,
		Text: fmt.Sprintf(format, args...),
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.m {
		select {
		case ch <- ev:
		default:
		}
	}
}
