package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/robfig/cron/v3"

	"soulverse/internal/eventbus"
	logx "soulverse/pkg/logx"
)

type jobEntry struct {
	def     JobDef
	spec    string
	entryID cron.EntryID
	state   *RunState
}

type Service struct {
	mu sync.Mutex

	log logx.Logger
	cfg Config
	loc *time.Location
	bus eventbus.Bus

	parser cron.Parser
	c      *cron.Cron
	jobs   []*jobEntry

	// runCtx is the parent of every job run; Stop cancels it.
	runCtx    context.Context
	runCancel context.CancelFunc
}

func New(cfg Config, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg: cfg,
		log: log,
		bus: bus,
		// SecondOptional allows both 5-field and 6-field (with seconds) cron specs.
		parser: cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
}

// Register adds def, replacing any job with the same name. When the
// scheduler is running the job is scheduled immediately.
func (s *Service) Register(def JobDef) error {
	if strings.TrimSpace(def.Name) == "" {
		return errors.New("job name required")
	}
	if def.Run == nil {
		return fmt.Errorf("job %s: run func required", def.Name)
	}
	spec, err := s.resolveSpec(def)
	if err != nil {
		return fmt.Errorf("job %s: %w", def.Name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	e := &jobEntry{def: def, spec: spec, state: &RunState{}}
	for i, old := range s.jobs {
		if old.def.Name == def.Name {
			if s.c != nil && old.entryID != 0 {
				s.c.Remove(old.entryID)
			}
			// keep the guard so a run in flight still blocks the replacement
			e.state = old.state
			s.jobs = append(s.jobs[:i], s.jobs[i+1:]...)
			break
		}
	}
	s.jobs = append(s.jobs, e)
	if s.c != nil {
		if err := s.addCronLocked(e); err != nil {
			return err
		}
		s.log.Debug("job registered", logx.String("job", def.Name), logx.String("spec", spec), logx.String("next", s.previewNextRunsLocked(spec, 3)))
	}
	return nil
}

func (s *Service) resolveSpec(def JobDef) (string, error) {
	if strings.TrimSpace(def.At) != "" {
		h, m, err := parseHHMM(def.At)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%d %d * * *", m, h), nil
	}
	spec, err := normalizeSpec(def.Spec)
	if err != nil {
		return "", err
	}
	if _, err := s.parser.Parse(spec); err != nil {
		return "", fmt.Errorf("invalid schedule %q: %w", def.Spec, err)
	}
	return spec, nil
}

// Start registers every job with a fresh cron instance and starts it.
func (s *Service) Start(ctx context.Context) StartResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return StartResult{AlreadyRunning: true}
	}

	s.loc = s.loadLocationLocked()
	s.runCtx, s.runCancel = context.WithCancel(context.WithoutCancel(ctx))
	s.c = cron.New(cron.WithParser(s.parser), cron.WithLocation(s.loc))
	n := 0
	for _, e := range s.jobs {
		if err := s.addCronLocked(e); err != nil {
			s.log.Error("job register failed", logx.String("job", e.def.Name), logx.String("spec", e.spec), logx.Err(err))
			continue
		}
		n++
	}
	s.c.Start()
	s.log.Info("scheduler started", logx.String("tz", s.loc.String()), logx.Int("jobs", n))
	return StartResult{Registered: n}
}

// Stop removes the cron entries, cancels running jobs and waits for them
// until ctx expires.
func (s *Service) Stop(ctx context.Context) StopResult {
	start := time.Now()
	s.mu.Lock()
	c := s.c
	cancel := s.runCancel
	s.c = nil
	s.runCancel = nil
	for _, e := range s.jobs {
		e.entryID = 0
	}
	s.mu.Unlock()

	if c == nil {
		return StopResult{AlreadyStopped: true, Drained: true}
	}
	s.log.Info("scheduler stop requested")

	done := c.Stop().Done()
	if cancel != nil {
		cancel()
	}
	res := StopResult{Drained: true}
	select {
	case <-done:
	case <-ctx.Done():
		res.Drained = false
		s.log.Warn("scheduler stop timed out; jobs still running")
	}
	res.Took = time.Since(start)
	s.log.Info("scheduler stopped", logx.Duration("took", res.Took))
	return res
}

func (s *Service) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.c != nil
}

// Apply updates the config. A timezone change restarts cron with the new
// location; running jobs are left alone.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	oldTZ := strings.TrimSpace(s.cfg.Timezone)
	s.cfg = cfg
	if s.c == nil || oldTZ == strings.TrimSpace(cfg.Timezone) {
		return
	}
	s.c.Stop()
	s.loc = s.loadLocationLocked()
	s.c = cron.New(cron.WithParser(s.parser), cron.WithLocation(s.loc))
	for _, e := range s.jobs {
		if err := s.addCronLocked(e); err != nil {
			s.log.Error("job register failed", logx.String("job", e.def.Name), logx.Err(err))
		}
	}
	s.c.Start()
	s.log.Info("scheduler restarted", logx.String("tz", s.loc.String()), logx.Int("jobs", len(s.jobs)))
}

func (s *Service) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{Running: s.c != nil, Jobs: []JobInfo{}, CheckedAt: time.Now()}
	loc := s.loc
	if loc == nil {
		loc = s.loadLocationLocked()
	}
	st.Timezone = loc.String()
	if s.c == nil {
		return st
	}
	for _, e := range s.jobs {
		info := JobInfo{Name: e.def.Name, Spec: e.spec, InFlight: e.state.InFlight()}
		if e.entryID != 0 {
			ce := s.c.Entry(e.entryID)
			info.ID = fmt.Sprintf("cron:%d", e.entryID)
			info.Next = ce.Next
			info.Prev = ce.Prev
		}
		st.Jobs = append(st.Jobs, info)
	}
	return st
}

func (s *Service) addCronLocked(e *jobEntry) error {
	runCtx := s.runCtx
	id, err := s.c.AddJob(e.spec, cron.FuncJob(func() {
		_ = s.execute(runCtx, e, "cron")
	}))
	if err != nil {
		return err
	}
	e.entryID = id
	return nil
}

// execute runs e under its overlap guard.
func (s *Service) execute(ctx context.Context, e *jobEntry, trigger string) error {
	name := e.def.Name
	if !e.state.tryAcquire() {
		s.log.Info("job skipped; previous run still in flight", logx.String("job", name))
		s.publish(EventSkipped, TaskEvent{Job: name, Trigger: trigger, Started: time.Now()})
		return ErrOverlapSkip
	}
	defer e.state.release()

	s.mu.Lock()
	timeout := e.def.Timeout
	if timeout <= 0 {
		timeout = s.cfg.DefaultTimeout
	}
	s.mu.Unlock()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	ev := TaskEvent{RunID: ulid.Make().String(), Job: name, Trigger: trigger, Started: time.Now()}
	log := s.log.With(logx.String("job", name), logx.String("run", ev.RunID))
	log.Info("job started", logx.String("trigger", trigger))
	s.publish(EventStarted, ev)

	err := runSafe(ctx, e.def.Run, log)
	ev.Duration = time.Since(ev.Started)
	if err != nil {
		ev.Error = err.Error()
		log.Error("job failed", logx.Err(err), logx.Duration("took", ev.Duration))
		s.publish(EventFailed, ev)
		return err
	}
	log.Info("job finished", logx.Duration("took", ev.Duration))
	s.publish(EventFinished, ev)
	return nil
}

func runSafe(ctx context.Context, fn func(context.Context) error, log logx.Logger) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("job panicked", logx.Any("panic", r), logx.Stack(string(debug.Stack())))
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx)
}

func (s *Service) publish(typ string, ev TaskEvent) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: typ, Time: time.Now(), Data: ev})
}

func (s *Service) loadLocationLocked() *time.Location {
	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("invalid timezone; falling back to Local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}

// previewNextRunsLocked returns upcoming run times for spec, only when debug
// logging is on. Call with s.mu held.
func (s *Service) previewNextRunsLocked(spec string, n int) string {
	if !s.log.Enabled(logx.LevelDebug) || n <= 0 {
		return ""
	}
	sched, err := s.parser.Parse(spec)
	if err != nil {
		return ""
	}
	loc := s.loc
	if loc == nil {
		loc = time.Local
	}
	t := time.Now().In(loc)
	var b strings.Builder
	for i := 0; i < n; i++ {
		t = sched.Next(t)
		if t.IsZero() {
			break
		}
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(t.Format("2006-01-02 15:04"))
	}
	return b.String()
}
