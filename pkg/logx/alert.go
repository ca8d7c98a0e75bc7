package logx

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"
)

const (
	alertQueueSize = 64
	alertMaxLen    = 1000
	alertFieldLen  = 200
	alertTimeout   = 10 * time.Second
)

// Alerter delivers one rendered alert line.
type Alerter interface {
	Alert(ctx context.Context, text string) error
}

// AlertConfig forwards events at or above MinLevel (default warn) to the
// installed Alerter, at most RatePerSec per second. Events whose "comp"
// field is listed in SkipComponents are never forwarded.
type AlertConfig struct {
	Enabled        bool
	MinLevel       string
	RatePerSec     int
	SkipComponents []string
}

// alertSink is a zerolog.LevelWriter. Writes never block: lines over the
// rate limit or beyond a full queue are dropped and counted.
type alertSink struct {
	mu      sync.Mutex
	alerter Alerter
	min     zerolog.Level
	limiter *rate.Limiter
	skip    map[string]bool
	cancel  context.CancelFunc

	queue   chan string
	once    sync.Once
	wg      sync.WaitGroup
	dropped atomic.Uint64
}

func newAlertSink() *alertSink {
	return &alertSink{
		queue:   make(chan string, alertQueueSize),
		min:     zerolog.WarnLevel,
		limiter: rate.NewLimiter(1, 1),
	}
}

func (a *alertSink) setAlerter(al Alerter) {
	a.mu.Lock()
	a.alerter = al
	a.mu.Unlock()
}

func (a *alertSink) configure(cfg AlertConfig) {
	rps := max(1, cfg.RatePerSec)
	skip := make(map[string]bool, len(cfg.SkipComponents))
	for _, c := range cfg.SkipComponents {
		skip[c] = true
	}
	a.mu.Lock()
	a.min = parseLevel(cfg.MinLevel, zerolog.WarnLevel)
	a.limiter = rate.NewLimiter(rate.Limit(rps), rps)
	a.skip = skip
	a.mu.Unlock()

	if cfg.Enabled {
		a.once.Do(func() {
			ctx, cancel := context.WithCancel(context.Background())
			a.mu.Lock()
			a.cancel = cancel
			a.mu.Unlock()
			a.wg.Add(1)
			go func() {
				defer a.wg.Done()
				a.run(ctx)
			}()
		})
	}
}

func (a *alertSink) stop() {
	a.mu.Lock()
	cancel := a.cancel
	a.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	a.wg.Wait()
}

// DroppedAlerts counts alert lines lost to the rate limit or a full queue.
func (s *Service) DroppedAlerts() uint64 { return s.alerts.dropped.Load() }

func (a *alertSink) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case text := <-a.queue:
			a.mu.Lock()
			al := a.alerter
			a.mu.Unlock()
			if al == nil {
				continue
			}
			sctx, cancel := context.WithTimeout(ctx, alertTimeout)
			if err := al.Alert(sctx, text); err != nil && ctx.Err() == nil {
				// Logging here would feed the sink again.
				fmt.Fprintf(Stderr(), "logx: alert delivery failed: %v\n", err)
			}
			cancel()
		}
	}
}

func (a *alertSink) Write(p []byte) (int, error) {
	return a.WriteLevel(zerolog.NoLevel, p)
}

func (a *alertSink) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	a.mu.Lock()
	floor, lim, skip := a.min, a.limiter, a.skip
	a.mu.Unlock()

	if level == zerolog.NoLevel || level < floor {
		return len(p), nil
	}
	line := gjson.ParseBytes(p)
	if skip[line.Get("comp").String()] {
		return len(p), nil
	}
	if !lim.Allow() {
		a.dropped.Add(1)
		return len(p), nil
	}
	select {
	case a.queue <- formatAlert(line):
	default:
		a.dropped.Add(1)
	}
	return len(p), nil
}

// formatAlert renders a zerolog JSON line as "[LEVEL] message" followed by
// one "- key=value" line per remaining field, in emission order.
func formatAlert(line gjson.Result) string {
	if !line.IsObject() {
		return clip(strings.TrimSpace(line.Raw), alertMaxLen)
	}
	var b strings.Builder
	if lvl := line.Get(zerolog.LevelFieldName).String(); lvl != "" {
		b.WriteString("[" + strings.ToUpper(lvl) + "] ")
	}
	b.WriteString(line.Get(zerolog.MessageFieldName).String())
	line.ForEach(func(k, v gjson.Result) bool {
		switch k.String() {
		case zerolog.TimestampFieldName, zerolog.LevelFieldName, zerolog.MessageFieldName:
			return true
		}
		b.WriteString("\n- " + k.String() + "=" + clip(v.String(), alertFieldLen))
		return true
	})
	return clip(b.String(), alertMaxLen)
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
