package eventbus

import (
	"context"
	"strings"
	"sync"
)

// Recorder keeps the most recent events whose type matches one of its
// prefixes. It is fed by Run or directly through Record.
type Recorder struct {
	mu       sync.Mutex
	buf      []Event
	max      int
	prefixes []string
}

// NewRecorder keeps up to max events. With no prefixes every event is kept.
func NewRecorder(max int, prefixes ...string) *Recorder {
	if max <= 0 {
		max = 200
	}
	return &Recorder{max: max, prefixes: prefixes}
}

func (r *Recorder) match(typ string) bool {
	if len(r.prefixes) == 0 {
		return true
	}
	for _, p := range r.prefixes {
		if strings.HasPrefix(typ, p) {
			return true
		}
	}
	return false
}

func (r *Recorder) Record(e Event) {
	if !r.match(e.Type) {
		return
	}
	r.mu.Lock()
	r.buf = append(r.buf, e)
	if len(r.buf) > r.max {
		r.buf = append(r.buf[:0:0], r.buf[len(r.buf)-r.max:]...)
	}
	r.mu.Unlock()
}

// Snapshot returns up to limit events, newest first. limit <= 0 means all.
func (r *Recorder) Snapshot(limit int) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.buf)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]Event, 0, n)
	for i := len(r.buf) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, r.buf[i])
	}
	return out
}

// Run records events from bus until ctx is done.
func (r *Recorder) Run(ctx context.Context, bus Bus) error {
	ch, unsub := bus.Subscribe(256)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-ch:
			if !ok {
				return nil
			}
			r.Record(e)
		}
	}
}
