package supervisor

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	logx "soulverse/pkg/logx"
)

func TestGoRecordsPanicAsError(t *testing.T) {
	t.Parallel()
	s := New(context.Background(), logx.Nop())
	s.Go("boom", func(context.Context) error { panic("bad") })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := s.Stop(ctx)
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("err = %v", err)
	}
	snap := s.Snapshot()
	if len(snap) != 1 || snap[0].Panics != 1 || snap[0].Running {
		t.Fatalf("snapshot = %+v", snap)
	}
}

func TestGoCancellationIsClean(t *testing.T) {
	t.Parallel()
	s := New(context.Background(), logx.Nop())
	s.Go("loop", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
}

func TestGoRestartRetriesUntilSuccess(t *testing.T) {
	t.Parallel()
	s := New(context.Background(), logx.Nop())
	var runs atomic.Int32
	done := make(chan struct{})
	s.GoRestart("flaky", func(context.Context) error {
		if runs.Add(1) < 3 {
			return errors.New("transient")
		}
		close(done)
		return nil
	}, RestartPolicy{MinBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("loop never succeeded, runs=%d", runs.Load())
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if runs.Load() != 3 {
		t.Fatalf("runs = %d", runs.Load())
	}
}

func TestGoRestartGivesUp(t *testing.T) {
	t.Parallel()
	s := New(context.Background(), logx.Nop())
	s.GoRestart("dead", func(context.Context) error { return errors.New("nope") },
		RestartPolicy{MinBackoff: time.Millisecond, MaxBackoff: time.Millisecond, MaxRestarts: 2})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Wait(ctx); err == nil || !strings.Contains(err.Error(), "nope") {
		t.Fatalf("err = %v", err)
	}
	if snap := s.Snapshot(); snap[0].Starts != 3 {
		t.Fatalf("starts = %d", snap[0].Starts)
	}
}
