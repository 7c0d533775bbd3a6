package server

import (
	"encoding/json"
	"sync"
)

// Event types announced on the event stream.
const (
	EventTourSaved     = "tour_saved"
	EventQuestsSaved   = "quests_saved"
	EventImagesChanged = "images_changed"
)

// Event is the payload published to stream subscribers.
type Event struct {
	Type   string `json:"type"`
	Scenes int    `json:"scenes,omitempty"`
	Quests int    `json:"quests,omitempty"`
	Images int    `json:"images,omitempty"`
}

// Broker is an in-process pub/sub fanning events out to every open stream.
type Broker struct {
	mu     sync.RWMutex
	subs   map[chan []byte]struct{}
	closed bool
}

func NewBroker() *Broker {
	return &Broker{
		subs: make(map[chan []byte]struct{}),
	}
}

// Subscribe returns a channel that receives JSON-encoded events. The channel
// is closed when the broker is.
func (b *Broker) Subscribe() chan []byte {
	ch := make(chan []byte, 16)
	b.mu.Lock()
	if b.closed {
		close(ch)
	} else {
		b.subs[ch] = struct{}{}
	}
	b.mu.Unlock()
	return ch
}

func (b *Broker) Unsubscribe(ch chan []byte) {
	b.mu.Lock()
	delete(b.subs, ch)
	b.mu.Unlock()
}

// Publish sends an event to all subscribers. Slow subscribers miss it.
func (b *Broker) Publish(event Event) {
	data, _ := json.Marshal(event)
	b.mu.RLock()
	for ch := range b.subs {
		select {
		case ch <- data:
		default:
		}
	}
	b.mu.RUnlock()
}

// Close ends every subscription. The server calls it when shutdown starts so
// open event streams return instead of holding the shutdown open.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for ch := range b.subs {
		close(ch)
		delete(b.subs, ch)
	}
}

func (b *Broker) subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
