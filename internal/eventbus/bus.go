// Package eventbus is the in-process signal bus. The scheduler, dispatcher and
// notifier publish to it; the admin API reads recent task events from a
// Recorder subscribed to it.
package eventbus

import (
	"sync"
	"time"
)

// Event is a small, JSON-friendly signal. Type is dotted, e.g.
// "task.finished" or "dispatch.completed".
type Event struct {
	Type string    `json:"type"`
	Time time.Time `json:"time"`
	Data any       `json:"data,omitempty"`
}

// Bus fans events out to subscribers. Publish never blocks: a subscriber whose
// buffer is full misses the event.
type Bus interface {
	Publish(e Event)
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
}

func New() Bus {
	return &memBus{subs: map[*subscriber]struct{}{}}
}

type subscriber struct {
	ch   chan Event
	once sync.Once
}

type memBus struct {
	mu   sync.RWMutex
	subs map[*subscriber]struct{}
}

func (b *memBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	// Sends happen under the read lock; unsubscribe closes under the write
	// lock, so a send never hits a closed channel.
	b.mu.RLock()
	defer b.mu.RUnlock()
	for s := range b.subs {
		select {
		case s.ch <- e:
		default:
		}
	}
}

func (b *memBus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	s := &subscriber{ch: make(chan Event, buffer)}
	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()

	return s.ch, func() {
		s.once.Do(func() {
			b.mu.Lock()
			delete(b.subs, s)
			close(s.ch)
			b.mu.Unlock()
		})
	}
}
