// Package supervisor runs the service's long-lived goroutines (admin server,
// config watcher, event recorder) under one cancellable context.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	logx "soulverse/pkg/logx"
)

// Supervisor manages goroutines tied to a shared context.
// Each goroutine is named, panics are recovered and Stop waits for all of
// them, bounded by the caller's context.
type Supervisor struct {
	ctx    context.Context
	cancel context.CancelFunc
	log    logx.Logger

	wg       sync.WaitGroup
	doneOnce sync.Once
	doneCh   chan struct{}

	mu       sync.Mutex
	firstErr error
	loops    map[string]*LoopStats
}

// LoopStats is a best-effort view of one named goroutine.
type LoopStats struct {
	Name     string    `json:"name"`
	Running  bool      `json:"running"`
	Starts   int       `json:"starts"`
	Panics   int       `json:"panics"`
	LastErr  string    `json:"last_err,omitempty"`
	LastStop time.Time `json:"last_stop,omitempty"`
}

func New(parent context.Context, log logx.Logger) *Supervisor {
	if log.IsZero() {
		log = logx.Nop()
	}
	ctx, cancel := context.WithCancel(parent)
	return &Supervisor{
		ctx:    ctx,
		cancel: cancel,
		log:    log,
		doneCh: make(chan struct{}),
		loops:  map[string]*LoopStats{},
	}
}

func (s *Supervisor) Context() context.Context { return s.ctx }

// Err returns the first error reported by any goroutine.
func (s *Supervisor) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.firstErr
}

// Snapshot lists the goroutines seen so far, running first.
func (s *Supervisor) Snapshot() []LoopStats {
	s.mu.Lock()
	out := make([]LoopStats, 0, len(s.loops))
	for _, st := range s.loops {
		out = append(out, *st)
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Running != out[j].Running {
			return out[i].Running
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func (s *Supervisor) note(name string, fn func(*LoopStats)) {
	s.mu.Lock()
	st := s.loops[name]
	if st == nil {
		st = &LoopStats{Name: name}
		s.loops[name] = st
	}
	fn(st)
	s.mu.Unlock()
}

func (s *Supervisor) setErr(err error) {
	s.mu.Lock()
	if s.firstErr == nil {
		s.firstErr = err
	}
	s.mu.Unlock()
}

// runOnce calls fn, converting a panic into an error.
func (s *Supervisor) runOnce(name string, fn func(context.Context) error) (err error) {
	s.note(name, func(st *LoopStats) { st.Running = true; st.Starts++ })
	defer func() {
		if r := recover(); r != nil {
			s.note(name, func(st *LoopStats) { st.Panics++ })
			s.log.Error("goroutine panicked", logx.String("name", name), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
			err = fmt.Errorf("panic: %v", r)
		}
		s.note(name, func(st *LoopStats) {
			st.Running = false
			st.LastStop = time.Now()
			if err != nil {
				st.LastErr = err.Error()
			}
		})
	}()
	return fn(s.ctx)
}

// Go runs fn once. A returned error (other than cancellation) or a panic is
// recorded as the supervisor error.
func (s *Supervisor) Go(name string, fn func(ctx context.Context) error) {
	if fn == nil {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.log.Debug("goroutine started", logx.String("name", name))
		err := s.runOnce(name, fn)
		if err != nil && !errors.Is(err, context.Canceled) {
			s.setErr(fmt.Errorf("%s: %w", name, err))
		}
		s.log.Debug("goroutine stopped", logx.String("name", name))
	}()
}

// RestartPolicy bounds GoRestart's backoff. MaxRestarts <= 0 means unlimited.
type RestartPolicy struct {
	MinBackoff  time.Duration
	MaxBackoff  time.Duration
	MaxRestarts int
}

// GoRestart runs fn and restarts it on error or panic with jittered
// exponential backoff until the supervisor is stopped. A clean return ends
// the loop.
func (s *Supervisor) GoRestart(name string, fn func(ctx context.Context) error, p RestartPolicy) {
	if fn == nil {
		return
	}
	if p.MinBackoff <= 0 {
		p.MinBackoff = 250 * time.Millisecond
	}
	if p.MaxBackoff < p.MinBackoff {
		p.MaxBackoff = 30 * time.Second
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		backoff := p.MinBackoff
		restarts := 0
		for {
			startedAt := time.Now()
			err := s.runOnce(name, fn)
			if s.ctx.Err() != nil || err == nil || errors.Is(err, context.Canceled) {
				return
			}

			restarts++
			if p.MaxRestarts > 0 && restarts > p.MaxRestarts {
				s.log.Error("goroutine gave up after restarts", logx.String("name", name), logx.Int("restarts", restarts), logx.Err(err))
				s.setErr(fmt.Errorf("%s: %w", name, err))
				return
			}
			// A loop that ran for a while earns a fresh backoff.
			if time.Since(startedAt) >= 30*time.Second {
				backoff = p.MinBackoff
			}
			wait := backoff
			if j := int64(wait) / 5; j > 0 {
				wait += time.Duration(time.Now().UnixNano() % (j + 1))
			}
			s.log.Warn("goroutine restarting", logx.String("name", name), logx.Duration("backoff", wait), logx.Err(err))

			t := time.NewTimer(wait)
			select {
			case <-s.ctx.Done():
				t.Stop()
				return
			case <-t.C:
			}
			backoff *= 2
			if backoff > p.MaxBackoff {
				backoff = p.MaxBackoff
			}
		}
	}()
}

// Stop cancels every goroutine and waits for them.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.cancel()
	return s.Wait(ctx)
}

func (s *Supervisor) Wait(ctx context.Context) error {
	s.doneOnce.Do(func() {
		go func() {
			s.wg.Wait()
			close(s.doneCh)
		}()
	})
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.doneCh:
		return s.Err()
	}
}
