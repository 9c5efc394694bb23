package api

import (
	"sync"
)

type SSEEvent struct {
	Type string
	Data map[string]any
}

// Broker is the in-process fan-out for live resource events, keyed by
// property id.
type Broker struct {
	mu   sync.Mutex
	subs map[string]map[chan SSEEvent]struct{}
}

func NewBroker() *Broker {
	return &Broker{subs: map[string]map[chan SSEEvent]struct{}{}}
}

func (b *Broker) Subscribe(propertyID string) chan SSEEvent {
	ch := make(chan SSEEvent, 8)
	b.mu.Lock()
	if b.subs[propertyID] == nil {
		b.subs[propertyID] = map[chan SSEEvent]struct{}{}
	}
	b.subs[propertyID][ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *Broker) Unsubscribe(propertyID string, ch chan SSEEvent) {
	b.mu.Lock()
	if m := b.subs[propertyID]; m != nil {
		delete(m, ch)
		if len(m) == 0 {
			delete(b.subs, propertyID)
		}
	}
	b.mu.Unlock()
	close(ch)
}

func (b *Broker) Publish(propertyID string, evt SSEEvent) {
	b.mu.Lock()
	m := b.subs[propertyID]
	for ch := range m {
		select {
		case ch <- evt:
		default:
		}
	}
	b.mu.Unlock()
}
