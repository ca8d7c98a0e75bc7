package dispatch

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"

	"soulverse/internal/eventbus"
	"soulverse/internal/recipients"
	logx "soulverse/pkg/logx"
)

// Processor handles one recipient. A returned error is recorded as an error
// result for that recipient only.
type Processor interface {
	Process(ctx context.Context, r recipients.Recipient) (UnitResult, error)
}

type ProcessorFunc func(ctx context.Context, r recipients.Recipient) (UnitResult, error)

func (f ProcessorFunc) Process(ctx context.Context, r recipients.Recipient) (UnitResult, error) {
	return f(ctx, r)
}

type Config struct {
	BatchSize   int
	Cooldown    time.Duration
	UnitTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = 50
	}
	if c.Cooldown < 0 {
		c.Cooldown = 0
	}
	if c.UnitTimeout <= 0 {
		c.UnitTimeout = 2 * time.Minute
	}
	return c
}

// DefaultConfig is 50 units per batch with a one second pause between batches.
func DefaultConfig() Config {
	return Config{BatchSize: 50, Cooldown: time.Second, UnitTimeout: 2 * time.Minute}
}

type Dispatcher struct {
	mu  sync.Mutex
	cfg Config

	proc Processor
	log  logx.Logger
	bus  eventbus.Bus
}

func New(cfg Config, proc Processor, log logx.Logger, bus eventbus.Bus) *Dispatcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Dispatcher{cfg: cfg.withDefaults(), proc: proc, log: log, bus: bus}
}

// Apply swaps batch settings; a run in progress keeps the settings it started with.
func (d *Dispatcher) Apply(cfg Config) {
	d.mu.Lock()
	d.cfg = cfg.withDefaults()
	d.mu.Unlock()
}

func (d *Dispatcher) Config() Config {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cfg
}

// RunForAll processes rs in batches. Units inside a batch run concurrently;
// batches run one after another with a cooldown in between. Cancelling ctx
// stops the run before the next batch; units already running finish on a
// detached context bounded by UnitTimeout.
func (d *Dispatcher) RunForAll(ctx context.Context, rs []recipients.Recipient) Outcome {
	cfg := d.Config()
	start := time.Now()
	out := Outcome{
		BatchID: ulid.Make().String(),
		Total:   len(rs),
		Results: make([]UnitResult, len(rs)),
	}
	log := d.log.With(logx.String("run", out.BatchID))
	log.Info("dispatch started", logx.Int("recipients", len(rs)), logx.Int("batch_size", cfg.BatchSize))

	batch := 0
	for lo := 0; lo < len(rs); lo += cfg.BatchSize {
		if lo > 0 && cfg.Cooldown > 0 {
			t := time.NewTimer(cfg.Cooldown)
			select {
			case <-ctx.Done():
				t.Stop()
			case <-t.C:
			}
		}
		if ctx.Err() != nil {
			out.Cancelled = true
			for i := lo; i < len(rs); i++ {
				out.Results[i] = UnitResult{RecipientID: rs[i].ID, Status: StatusSkipped, Detail: "run cancelled"}
			}
			log.Warn("dispatch cancelled", logx.Int("remaining", len(rs)-lo))
			break
		}

		hi := min(lo+cfg.BatchSize, len(rs))
		batch++
		d.runBatch(ctx, cfg, rs[lo:hi], out.Results[lo:hi])

		ev := BatchEvent{RunID: out.BatchID, Batch: batch, Size: hi - lo}
		for _, r := range out.Results[lo:hi] {
			if r.Status.OK() {
				ev.Successes++
			} else {
				ev.Errors++
			}
		}
		log.Debug("batch finished", logx.Int("batch", batch), logx.Int("size", ev.Size), logx.Int("errors", ev.Errors))
		d.publish(EventBatchFinished, ev)
	}

	for _, r := range out.Results {
		switch {
		case r.Status.OK():
			out.SuccessCount++
		case r.Status == StatusSkipped:
			out.SkippedCount++
		default:
			out.ErrorCount++
		}
	}
	out.Duration = time.Since(start)
	log.Info("dispatch finished",
		logx.Int("total", out.Total),
		logx.Int("success", out.SuccessCount),
		logx.Int("errors", out.ErrorCount),
		logx.Int("skipped", out.SkippedCount),
		logx.Duration("took", out.Duration))
	d.publish(EventRunFinished, out.summary())
	return out
}

func (d *Dispatcher) runBatch(ctx context.Context, cfg Config, rs []recipients.Recipient, results []UnitResult) {
	// Units outlive the caller's cancellation; each one is bounded on its own.
	detached := context.WithoutCancel(ctx)
	var g errgroup.Group
	for i := range rs {
		g.Go(func() error {
			results[i] = d.runUnit(detached, cfg, rs[i])
			return nil
		})
	}
	_ = g.Wait()
}

func (d *Dispatcher) runUnit(ctx context.Context, cfg Config, r recipients.Recipient) (res UnitResult) {
	ctx, cancel := context.WithTimeout(ctx, cfg.UnitTimeout)
	defer cancel()

	defer func() {
		if p := recover(); p != nil {
			ue := &UnitError{RecipientID: r.ID, Panic: p}
			d.log.Error("unit panicked", logx.String("recipient", r.ID), logx.Any("panic", p), logx.Stack(string(debug.Stack())))
			res = UnitResult{RecipientID: r.ID, Status: StatusError, Detail: ue.Error()}
		}
	}()

	res, err := d.proc.Process(ctx, r)
	if err != nil {
		ue := &UnitError{RecipientID: r.ID, Err: err}
		d.log.Warn("unit failed", logx.String("recipient", r.ID), logx.Err(err))
		return UnitResult{RecipientID: r.ID, Status: StatusError, Detail: ue.Error()}
	}
	res.RecipientID = r.ID
	if res.Status == "" {
		res.Status = StatusGenerated
	}
	return res
}

func (d *Dispatcher) publish(typ string, data any) {
	if d.bus == nil {
		return
	}
	d.bus.Publish(eventbus.Event{Type: typ, Time: time.Now(), Data: data})
}

type outcomeSummary struct {
	RunID     string        `json:"run_id"`
	Total     int           `json:"total"`
	Successes int           `json:"successes"`
	Errors    int           `json:"errors"`
	Skipped   int           `json:"skipped"`
	Duration  time.Duration `json:"duration"`
}

func (o Outcome) summary() outcomeSummary {
	return outcomeSummary{RunID: o.BatchID, Total: o.Total, Successes: o.SuccessCount, Errors: o.ErrorCount, Skipped: o.SkippedCount, Duration: o.Duration}
}
