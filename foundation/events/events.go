// Package events allows clients to subscribe to the stream of ledger
// activity messages produced while recording, mining, and verifying.
package events

import (
	"fmt"
	"sync"
)

// Messages a slow subscriber can fall behind by before new messages
// are dropped for that subscriber.
const subscriberBuffer = 100

// Events maintains the set of subscribers receiving ledger activity.
type Events struct {
	mu          sync.RWMutex
	subscribers map[string]chan string
}

// New constructs an Events value for subscribing to ledger activity.
func New() *Events {
	return &Events{
		subscribers: make(map[string]chan string),
	}
}

// Shutdown closes and removes every subscriber channel.
func (evt *Events) Shutdown() {
	evt.mu.Lock()
	defer evt.mu.Unlock()

	for id, ch := range evt.subscribers {
		delete(evt.subscribers, id)
		close(ch)
	}
}

// Acquire registers the specified id and returns a channel for
// receiving ledger activity messages.
func (evt *Events) Acquire(id string) chan string {
	evt.mu.Lock()
	defer evt.mu.Unlock()

	if ch, exists := evt.subscribers[id]; exists {
		return ch
	}

	ch := make(chan string, subscriberBuffer)
	evt.subscribers[id] = ch

	return ch
}

// Release closes and removes the channel registered under the specified id.
func (evt *Events) Release(id string) error {
	evt.mu.Lock()
	defer evt.mu.Unlock()

	ch, exists := evt.subscribers[id]
	if !exists {
		return fmt.Errorf("id %q does not exist", id)
	}

	delete(evt.subscribers, id)
	close(ch)

	return nil
}

// Send delivers the message to every registered subscriber. Send never
// blocks; a subscriber that is not keeping up loses the message.
func (evt *Events) Send(s string) {
	evt.mu.RLock()
	defer evt.mu.RUnlock()

	for _, ch := range evt.subscribers {
		select {
		case ch <- s:
		default:
		}
	}
}
