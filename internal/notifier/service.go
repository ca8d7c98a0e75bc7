package notifier

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"soulverse/internal/eventbus"
	"soulverse/internal/push"
	"soulverse/internal/storage"
	logx "soulverse/pkg/logx"
)

var (
	ErrDisabled  = errors.New("notifier disabled")
	ErrDuplicate = errors.New("notifier: duplicate suppressed")
)

// Service is safe for concurrent use.
type Service struct {
	mu sync.Mutex

	log       logx.Logger
	transport push.Transport
	bus       eventbus.Bus

	cfg     Config
	limiter *rate.Limiter

	dmu   sync.Mutex
	dedup *suppressor

	hmu     sync.Mutex
	history []HistoryItem
}

func New(cfg Config, transport push.Transport, log logx.Logger, bus eventbus.Bus, store storage.Store) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		transport: transport,
		log:       log,
		bus:       bus,
	}
	s.dedup = newSuppressor(store, log)
	s.applyLocked(cfg)
	return s
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	en := s.cfg.Enabled && s.transport != nil
	s.mu.Unlock()
	return en
}

// TransportName returns the configured transport, or "" when none.
func (s *Service) TransportName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.transport == nil {
		return ""
	}
	return s.transport.Name()
}

func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.applyLocked(cfg)
	s.mu.Unlock()
}

func (s *Service) applyLocked(cfg Config) {
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 10
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 500 * time.Millisecond
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = 10 * time.Second
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	if cfg.DedupWindow < 0 {
		cfg.DedupWindow = 0
	}
	if cfg.DedupMaxEntries <= 0 {
		cfg.DedupMaxEntries = 2000
	}

	s.cfg = cfg
	// Token bucket: burst = rate per sec, so short spikes don't block too hard.
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
}

func (s *Service) snapshot() (Config, *rate.Limiter, push.Transport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg, s.limiter, s.transport
}

// SendToTokens delivers msg to every token. Per-token failures are reported
// in the Report; the error is non-nil only when the call itself failed after
// retries, was suppressed (ErrDuplicate) or the notifier is disabled.
func (s *Service) SendToTokens(ctx context.Context, msg push.Message, tokens []string) (push.Report, error) {
	if len(tokens) == 0 {
		return push.Report{}, push.ErrNoTokens
	}
	target := "tokens:" + strings.Join(sortedCopy(tokens), ",")
	return s.deliver(ctx, msg, target, func(ctx context.Context, tr push.Transport) (push.Report, error) {
		return tr.SendToTokens(ctx, msg, tokens)
	})
}

// SendToTopic delivers msg to a topic.
func (s *Service) SendToTopic(ctx context.Context, msg push.Message, topic string) error {
	_, err := s.deliver(ctx, msg, "topic:"+topic, func(ctx context.Context, tr push.Transport) (push.Report, error) {
		if err := tr.SendToTopic(ctx, msg, topic); err != nil {
			return push.Report{}, err
		}
		return push.Report{SuccessCount: 1}, nil
	})
	return err
}

type sendFunc func(context.Context, push.Transport) (push.Report, error)

func (s *Service) deliver(ctx context.Context, msg push.Message, target string, send sendFunc) (push.Report, error) {
	cfg, lim, tr := s.snapshot()
	if !cfg.Enabled || tr == nil {
		return push.Report{}, ErrDisabled
	}
	if err := ctx.Err(); err != nil {
		return push.Report{}, err
	}

	key := dedupKey(target, msg)
	if cfg.DedupWindow > 0 {
		s.dmu.Lock()
		ok := s.dedup.claim(ctx, key, cfg, time.Now())
		s.dmu.Unlock()
		if !ok {
			s.publish(EventDeduped, NotificationEvent{Transport: tr.Name(), Target: target, Key: key})
			return push.Report{}, ErrDuplicate
		}
	}

	rep, err := s.sendWithRetry(ctx, cfg, lim, tr, send)
	if err != nil {
		// let a later retry through
		if cfg.DedupWindow > 0 {
			s.dmu.Lock()
			s.dedup.release(ctx, key, cfg)
			s.dmu.Unlock()
		}
		s.publish(EventFailed, NotificationEvent{Transport: tr.Name(), Target: target, Key: key, Error: err.Error()})
		return push.Report{}, err
	}
	s.appendHistory(HistoryItem{At: time.Now(), Target: target, Title: msg.Title, OK: rep.SuccessCount, Fail: rep.FailureCount})
	s.publish(EventSent, NotificationEvent{
		Transport: tr.Name(), Target: target, Key: key,
		Success: rep.SuccessCount, Failure: rep.FailureCount,
	})
	return rep, nil
}

func (s *Service) sendWithRetry(ctx context.Context, cfg Config, lim *rate.Limiter, tr push.Transport, send sendFunc) (push.Report, error) {
	maxAttempts := 1
	if cfg.RetryMax > 0 {
		maxAttempts = 1 + cfg.RetryMax
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if lim != nil {
			if err := lim.Wait(ctx); err != nil {
				return push.Report{}, err
			}
		}

		// Bound per-send call.
		callCtx, cancel := context.WithTimeout(ctx, cfg.SendTimeout)
		rep, err := send(callCtx, tr)
		cancel()
		if err == nil {
			return rep, nil
		}
		if errors.Is(err, push.ErrNoTokens) {
			return push.Report{}, err
		}
		lastErr = err
		s.log.Debug("push send failed", logx.Err(err), logx.Int("attempt", attempt), logx.Int("max", maxAttempts))

		if attempt >= maxAttempts {
			break
		}
		delay := retryDelay(cfg, attempt)
		if delay <= 0 {
			continue
		}
		t := time.NewTimer(delay)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return push.Report{}, ctx.Err()
		}
	}
	return push.Report{}, fmt.Errorf("push via %s failed after %d attempt(s): %w", tr.Name(), maxAttempts, lastErr)
}

func (s *Service) publish(typ string, ev NotificationEvent) {
	if s.bus == nil {
		return
	}
	now := time.Now()
	ev.At = now
	s.bus.Publish(eventbus.Event{Type: typ, Time: now, Data: ev})
}

func (s *Service) Snapshot() []HistoryItem {
	s.hmu.Lock()
	out := append([]HistoryItem(nil), s.history...)
	s.hmu.Unlock()
	return out
}

func (s *Service) appendHistory(it HistoryItem) {
	s.hmu.Lock()
	s.history = append(s.history, it)
	if len(s.history) > 300 {
		s.history = s.history[len(s.history)-300:]
	}
	s.hmu.Unlock()
}

func sortedCopy(in []string) []string {
	out := append([]string(nil), in...)
	sort.Strings(out)
	return out
}

func retryDelay(cfg Config, attempt int) time.Duration {
	// attempt starts at 1 (first attempt), delay is for the NEXT attempt.
	base := cfg.RetryBase
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	maxD := cfg.RetryMaxDelay
	if maxD <= 0 {
		maxD = 10 * time.Second
	}
	// Exponential backoff: base * 2^(attempt-1)
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= maxD {
			d = maxD
			break
		}
	}
	// Jitter 0.7..1.3
	j := 0.7 + rand.Float64()*0.6
	d = time.Duration(float64(d) * j)
	if d < 0 {
		return 0
	}
	if d > maxD {
		d = maxD
	}
	return d
}
