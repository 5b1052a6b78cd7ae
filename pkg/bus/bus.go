// Package bus provides a small in-process event bus keyed by topic.
//
// The notification channel republishes out-of-band control events here
// (bulk-job status, entity-update signals) so arbitrary listeners can react
// without the notification feed ever seeing them.
package bus

import (
	"encoding/json"
	"sync"
)

// Event is a raw control event as received over the push channel. Tag is the
// routing key; Payload is the undecoded message body.
type Event struct {
	Tag     string
	Payload json.RawMessage
}

// Bus fans events out to topic subscribers synchronously.
type Bus struct {
	mu   sync.Mutex
	subs map[string]map[int]func(Event)
	next int
}

// New creates an empty Bus.
func New() *Bus {
	return &Bus{subs: make(map[string]map[int]func(Event))}
}

// Subscribe registers fn for events published under tag and returns an
// unsubscribe function.
func (b *Bus) Subscribe(tag string, fn func(Event)) (unsubscribe func()) {
	b.mu.Lock()
	id := b.next
	b.next++
	if b.subs[tag] == nil {
		b.subs[tag] = make(map[int]func(Event))
	}
	b.subs[tag][id] = fn
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		if m, ok := b.subs[tag]; ok {
			delete(m, id)
			if len(m) == 0 {
				delete(b.subs, tag)
			}
		}
		b.mu.Unlock()
	}
}

// Publish delivers ev to every subscriber of ev.Tag, in registration order,
// before returning. Events with no subscribers are dropped.
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	m := b.subs[ev.Tag]
	fns := make([]func(Event), 0, len(m))
	for id := 0; id < b.next; id++ {
		if fn, ok := m[id]; ok {
			fns = append(fns, fn)
		}
	}
	b.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}
