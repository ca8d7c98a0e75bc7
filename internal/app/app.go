// Package app wires configuration, storage, content, delivery and scheduling
// into one runnable service.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"soulverse/internal/api"
	"soulverse/internal/config"
	"soulverse/internal/content"
	"soulverse/internal/delivery"
	"soulverse/internal/dispatch"
	"soulverse/internal/eventbus"
	"soulverse/internal/imagegen"
	"soulverse/internal/jobs"
	"soulverse/internal/notifier"
	"soulverse/internal/observability/pprof"
	"soulverse/internal/recipients"
	"soulverse/internal/runtime/supervisor"
	"soulverse/internal/scripture"
	"soulverse/internal/storage"
	"soulverse/internal/task/scheduler"
	logx "soulverse/pkg/logx"
)

// Options tune New. The zero value is fine for production.
type Options struct {
	Version string
	// HTTPClient is used for scripture downloads. Default: a client with no
	// timeout (scripture applies its own).
	HTTPClient *http.Client
	// Getenv overrides the environment lookup for secrets.
	Getenv func(string) string
	// Logger replaces the logger built from the config, mainly for tests.
	Logger logx.Logger
}

// drainGrace is added to dispatch.unit_timeout when waiting for jobs on stop.
const drainGrace = 10 * time.Second

type App struct {
	cfgm *config.ConfigManager
	opts Options

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus
	rec  *eventbus.Recorder
	loc  atomic.Pointer[time.Location]

	store    storage.Store
	driver   string
	db       *sql.DB
	ownsDB   bool
	recips   *recipients.SQLite
	bible    *scripture.Service
	resolver *content.Resolver
	cache    *delivery.Cache
	notif    *notifier.Service
	alerts   *topicAlerter
	disp     *dispatch.Dispatcher
	sched    *scheduler.Service
	jobs     *jobs.Service
	server   *api.Server
	pprof    *pprof.Service

	sup     *supervisor.Supervisor
	fatal   chan error
	started atomic.Bool
}

// New loads the config and builds every component. Nothing runs until Start.
func New(cfgPath string, opts Options) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	if opts.Getenv != nil {
		cfgm.SetEnv(opts.Getenv)
	}
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	rc, err := mapRuntime(cfg)
	if err != nil {
		return nil, err
	}

	a := &App{cfgm: cfgm, opts: opts, fatal: make(chan error, 1)}
	if !opts.Logger.IsZero() {
		a.log = opts.Logger
	} else {
		a.logs, a.log = logx.New(rc.logging)
	}
	log := a.log.With(logx.String("comp", "app"))
	a.loc.Store(loadLocation(cfg))
	a.bus = eventbus.New()
	historySize := cfg.Scheduler.HistorySize
	if historySize <= 0 {
		historySize = 200
	}
	a.rec = eventbus.NewRecorder(historySize, "task.", "dispatch.", "notifier.", jobs.EventStats)

	if err := a.openStorage(cfg); err != nil {
		a.Close()
		return nil, err
	}

	sopt, err := mapScriptureOptions(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	a.bible = scripture.New(sopt, client, a.log.With(logx.String("comp", "scripture")))

	copt, err := mapContentOptions(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	var gen content.Generator
	key := strings.TrimSpace(cfg.OpenAI.APIKey)
	if key != "" {
		gen = content.NewOpenAIGenerator(key, cfg.OpenAI.BaseURL, cfg.OpenAI.ChatModel)
	} else {
		log.Warn("openai.api_key not set; content comes from the fallback tables")
	}
	a.resolver = content.NewResolver(gen, copt, a.log.With(logx.String("comp", "content")))

	iopt, err := mapImageOptions(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	var providers []imagegen.Provider
	if cfg.Images.Enabled && key != "" {
		prov := imagegen.NewOpenAIProvider(key, cfg.OpenAI.BaseURL, cfg.OpenAI.ImageModel)
		if iopt.Dir == "" {
			prov.UseHostedURLs()
		}
		providers = append(providers, prov)
	}
	retention, err := mapImageRetention(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	var (
		images    delivery.ImagePipeline
		kept      jobs.ImageStore
		imagesDir string
	)
	if cfg.Images.Enabled {
		p := imagegen.NewPipeline(providers, a.store, iopt, a.log.With(logx.String("comp", "imagegen")))
		images = p
		if imagesDir = p.Dir(); imagesDir != "" {
			kept = p
		}
	}

	ttl, err := mapCacheTTL(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.cache = delivery.NewCache(a.store, ttl, a.log.With(logx.String("comp", "cache")))

	tr, err := buildTransport(cfg, nil, a.log.With(logx.String("comp", "push")))
	if err != nil {
		a.Close()
		return nil, err
	}
	a.notif = notifier.New(rc.notifier, tr, a.log.With(logx.String("comp", "notifier")), a.bus, a.store)
	a.alerts = newTopicAlerter(a.notif, alertTopic(cfg))
	if a.logs != nil {
		a.logs.SetAlerter(a.alerts)
	}

	pipeline := &dispatch.Pipeline{
		Resolver:           a.resolver,
		Builder:            delivery.NewBuilder(a.bible, images, a.log.With(logx.String("comp", "builder"))),
		Cache:              a.cache,
		Sender:             a.notif,
		DefaultTranslation: defaultTranslation(cfg),
		Now:                a.now,
		Log:                a.log.With(logx.String("comp", "pipeline")),
	}
	a.disp = dispatch.New(rc.dispatch, pipeline, a.log.With(logx.String("comp", "dispatch")), a.bus)

	a.sched = scheduler.New(rc.scheduler, a.log.With(logx.String("comp", "scheduler")), a.bus)
	a.jobs = jobs.New(jobs.Deps{
		Recipients:     a.recips,
		Dispatcher:     a.disp,
		Resolver:       a.resolver,
		Cache:          a.cache,
		Topics:         a.notif,
		Images:         kept,
		ImageRetention: retention,
		History:        a.rec,
		Bus:            a.bus,
		Location:       a.loc.Load(),
		Log:            a.log.With(logx.String("comp", "jobs")),
	})
	if err := a.jobs.Register(a.sched, rc.times); err != nil {
		a.Close()
		return nil, err
	}

	if cfg.API.Enabled {
		scfg, err := mapServerConfig(cfg)
		if err != nil {
			a.Close()
			return nil, err
		}
		h := api.NewHandler(api.Deps{
			Jobs:               a.jobs,
			Scheduler:          a.sched,
			Scripture:          a.bible,
			Notifier:           a.notif,
			DefaultTranslation: defaultTranslation(cfg),
			ImagesDir:          imagesDir,
			ImagesPath:         imagesPath(iopt.PublicURL),
			Version:            opts.Version,
			Now:                a.now,
			Log:                a.log.With(logx.String("comp", "api")),
		})
		a.server = api.NewServer(scfg, api.NewRouter(h, cfg.API.Token), a.log.With(logx.String("comp", "api")))
	}

	a.pprof = pprof.New(a.log.With(logx.String("comp", "pprof")))

	log.Info("app built",
		logx.String("storage", a.driver),
		logx.String("transport", a.notif.TransportName()),
		logx.Bool("ai", gen != nil),
		logx.Bool("images", cfg.Images.Enabled),
		logx.Bool("api", a.server != nil),
		logx.String("tz", a.loc.Load().String()),
	)
	return a, nil
}

// openStorage opens the recipients database and the key-value store. A sqlite
// store on the recipients path shares its connection.
func (a *App) openStorage(cfg *config.Config) error {
	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return err
	}
	rpath := strings.TrimSpace(cfg.Recipients.Path)
	db, err := storage.OpenDB(rpath, sc.BusyTimeout)
	if err != nil {
		return fmt.Errorf("open recipients db: %w", err)
	}
	a.db, a.ownsDB = db, true
	a.recips = recipients.NewSQLite(db, recipients.Defaults{Translation: defaultTranslation(cfg)})

	a.driver = sc.Driver
	slog := a.log.With(logx.String("comp", "storage"))
	if sc.Driver == "sqlite" && sc.Path == rpath {
		a.store = storage.NewSQLite(db, slog)
		a.ownsDB = false
		return nil
	}
	st, err := storage.Open(sc, slog)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	a.store = st
	return nil
}

func (a *App) now() time.Time { return time.Now().In(a.loc.Load()) }

func (a *App) Jobs() *jobs.Service                { return a.jobs }
func (a *App) Recipients() *recipients.SQLite     { return a.recips }
func (a *App) Scheduler() *scheduler.Service      { return a.sched }
func (a *App) Logger() logx.Logger                { return a.log }
func (a *App) Location() *time.Location           { return a.loc.Load() }
func (a *App) Config() *config.Config             { return a.cfgm.Get() }
func (a *App) Scripture() *scripture.Service      { return a.bible }
func (a *App) Supervisor() *supervisor.Supervisor { return a.sup }

// Fatal delivers errors that should end the process, such as the admin API
// failing to bind.
func (a *App) Fatal() <-chan error { return a.fatal }

func (a *App) reportFatal(err error) {
	select {
	case a.fatal <- err:
	default:
	}
}

// Start runs the scheduler, admin API, config watcher and event recorder.
func (a *App) Start(ctx context.Context) error {
	if !a.started.CompareAndSwap(false, true) {
		return errors.New("app already started")
	}
	log := a.log.With(logx.String("comp", "app"))
	a.sup = supervisor.New(ctx, log)
	cfg := a.cfgm.Get()

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, c *config.Config) error {
		_, err := mapRuntime(c)
		return err
	})

	a.sup.Go("events.recorder", func(c context.Context) error { return a.rec.Run(c, a.bus) })
	if cfg.Scripture.Preload {
		a.sup.Go("scripture.preload", func(c context.Context) error {
			n := a.bible.Preload(c)
			log.Info("scripture preload done", logx.Int("loaded", n), logx.Int("configured", len(a.bible.Translations())))
			return nil
		})
	}
	if cfg.Scheduler.Enabled {
		a.sched.Start(a.sup.Context())
	} else {
		log.Info("scheduler disabled; jobs run only on manual trigger")
	}
	if a.server != nil {
		a.sup.Go("api.server", func(c context.Context) error {
			err := a.server.Run(c)
			if err != nil {
				a.reportFatal(err)
			}
			return err
		})
	}
	if err := a.pprof.Reconfigure(a.sup.Context(), mapPprof(cfg)); err != nil {
		log.Warn("pprof not started", logx.Err(err))
	}
	a.sup.GoRestart("config.watch", a.cfgm.Watch, supervisor.RestartPolicy{MinBackoff: time.Second, MaxBackoff: time.Minute})
	a.sup.Go("config.reload", a.reloadLoop)
	a.sup.Go("systemd.watchdog", a.watchdogLoop)

	a.sdNotify(daemon.SdNotifyReady)
	log.Info("app started")
	return nil
}

// reloadLoop applies hot-reloadable settings from committed configs.
func (a *App) reloadLoop(ctx context.Context) error {
	sub := a.cfgm.Subscribe(4)
	defer a.cfgm.Unsubscribe(sub)
	log := a.log.With(logx.String("comp", "app"))
	last := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return nil
		case next, ok := <-sub:
			if !ok {
				return nil
			}
			// coalesce bursts
			for drained := false; !drained; {
				select {
				case newer := <-sub:
					if newer != nil {
						next = newer
					}
				default:
					drained = true
				}
			}
			a.sdNotify(daemon.SdNotifyReloading)
			a.applyConfig(ctx, last, next, log)
			last = next
			a.sdNotify(daemon.SdNotifyReady)
		}
	}
}

func (a *App) applyConfig(ctx context.Context, prev, next *config.Config, log logx.Logger) {
	sections, attrs := config.SummarizeConfigChange(prev, next)
	if len(sections) == 0 {
		log.Info("config reloaded (no changes)")
		return
	}
	rc, err := mapRuntime(next)
	if err != nil {
		log.Warn("invalid runtime config; keeping previous", logx.Err(err))
		return
	}
	if a.logs != nil {
		a.logs.Apply(rc.logging)
	}
	a.notif.Apply(rc.notifier)
	a.alerts.setTopic(alertTopic(next))
	a.disp.Apply(rc.dispatch)

	loc := loadLocation(next)
	a.loc.Store(loc)
	a.jobs.SetLocation(loc)
	a.sched.Apply(rc.scheduler)
	if err := a.jobs.Register(a.sched, rc.times); err != nil {
		log.Warn("job times rejected; keeping previous", logx.Err(err))
	}

	switch {
	case prev.Scheduler.Enabled && !next.Scheduler.Enabled:
		log.Info("scheduler disabled via config")
		stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		a.sched.Stop(stopCtx)
		cancel()
	case !prev.Scheduler.Enabled && next.Scheduler.Enabled:
		log.Info("scheduler enabled via config")
		a.sched.Start(ctx)
	}

	if err := a.pprof.Reconfigure(ctx, rc.pprof); err != nil {
		log.Warn("pprof reconfigure failed", logx.Err(err))
	}

	if restart := config.RestartRequired(sections); len(restart) > 0 {
		log.Warn("some config changes need a restart", logx.String("sections", strings.Join(restart, ",")))
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	log.Info("config reloaded", fields...)
}

// Stop shuts the app down within ctx and releases every resource.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	log := a.log.With(logx.String("comp", "app"))
	if !a.started.Load() {
		a.Close()
		return nil
	}
	log.Info("stopping", logx.String("reason", string(reason)))
	a.sdNotify(daemon.SdNotifyStopping)

	// Each step gets a bounded slice of the caller's deadline.
	step := func(name string, limit time.Duration, fn func(context.Context) error) {
		start := time.Now()
		c, cancel := context.WithTimeout(ctx, limit)
		defer cancel()
		if err := fn(c); err != nil {
			log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
	}

	// Scheduled and manual jobs may hold units running on detached contexts
	// for up to dispatch.unit_timeout.
	drain := a.DrainTimeout()
	drained := true
	step("scheduler", drain, func(c context.Context) error {
		if res := a.sched.Stop(c); !res.Drained {
			drained = false
			return errors.New("jobs still running")
		}
		return nil
	})
	step("pprof", 3*time.Second, func(c context.Context) error {
		a.pprof.Stop(c)
		return nil
	})
	step("supervisor", 5*time.Second, a.sup.Stop)
	step("jobs", drain, func(c context.Context) error {
		if err := a.jobs.Wait(c); err != nil {
			drained = false
			return fmt.Errorf("%d jobs still running: %w", a.jobs.Running(), err)
		}
		return nil
	})

	if !drained {
		// storage stays open for the units still running
		log.Warn("jobs did not drain; storage left open", logx.Duration("drain", drain))
		if a.logs != nil {
			a.logs.SetAlerter(nil)
		}
		return errors.New("app stop: jobs did not drain")
	}
	a.Close()
	log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}

// DrainTimeout is how long Stop waits for running jobs: one unit timeout plus
// a grace period. A shorter caller deadline wins.
func (a *App) DrainTimeout() time.Duration {
	return a.disp.Config().UnitTimeout + drainGrace
}

// Close releases storage. Stop calls it; use it directly only when Start was
// never called.
func (a *App) Close() {
	if a.logs != nil {
		a.logs.SetAlerter(nil)
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn("storage close", logx.Err(err))
		}
		a.store = nil
	}
	if a.db != nil && a.ownsDB {
		if err := a.db.Close(); err != nil {
			a.log.Warn("recipients db close", logx.Err(err))
		}
	}
	a.db = nil
}
