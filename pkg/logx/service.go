package logx

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

const consoleTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Config selects the sinks of a Service.
type Config struct {
	Level   string
	Console bool
	// Format is the stdout encoding: "console" (default) or "json".
	Format string
	File   FileConfig
	Alerts AlertConfig
}

type FileConfig struct {
	Enabled bool
	Path    string
}

// Service owns the live sinks. Apply rebuilds them; Loggers handed out
// earlier pick up the new ones on their next event.
type Service struct {
	mu     sync.Mutex
	file   *os.File
	alerts *alertSink

	root atomic.Pointer[zerolog.Logger]
}

// New applies cfg and returns the service with its root logger.
func New(cfg Config) (*Service, Logger) {
	setGlobals()
	s := &Service{alerts: newAlertSink()}
	s.Apply(cfg)
	return s, Logger{svc: s}
}

func (s *Service) Logger() Logger { return Logger{svc: s} }

func (s *Service) current() *zerolog.Logger { return s.root.Load() }

// SetAlerter installs the receiver for alert lines. Nil disables delivery.
func (s *Service) SetAlerter(a Alerter) { s.alerts.setAlerter(a) }

// Apply swaps level and sinks. Safe for concurrent use.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var writers []io.Writer
	if cfg.Console {
		writers = append(writers, stdoutWriter(cfg.Format))
	}

	prev := s.file
	s.file = nil
	if cfg.File.Enabled {
		if f, err := openLogFile(cfg.File.Path); err != nil {
			fmt.Fprintf(Stderr(), "logx: %v\n", err)
		} else {
			s.file = f
			writers = append(writers, zerolog.SyncWriter(f))
		}
	}
	if len(writers) == 0 {
		writers = append(writers, stdoutWriter(cfg.Format))
	}

	s.alerts.configure(cfg.Alerts)
	if cfg.Alerts.Enabled {
		writers = append(writers, s.alerts)
	}

	zl := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(parseLevel(cfg.Level, zerolog.InfoLevel)).
		With().Timestamp().Logger()
	s.root.Store(&zl)

	if prev != nil {
		_ = prev.Close()
	}
}

// Close stops alert delivery and releases the log file. Events written
// afterwards still reach the console.
func (s *Service) Close() error {
	s.alerts.stop()
	s.mu.Lock()
	f := s.file
	s.file = nil
	s.mu.Unlock()
	if f == nil {
		return nil
	}
	zl := zerolog.New(consoleWriter(Stdout())).With().Timestamp().Logger()
	if cur := s.root.Load(); cur != nil {
		zl = zl.Level(cur.GetLevel())
	}
	s.root.Store(&zl)
	return f.Close()
}

func openLogFile(path string) (*os.File, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		path = "./soulverse.log"
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create log dir %q: %w", dir, err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file %q: %w", path, err)
	}
	return f, nil
}

func setGlobals() {
	zerolog.ErrorFieldName = "err"
	zerolog.TimeFieldFormat = consoleTimeFormat
}

func stdoutWriter(format string) io.Writer {
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		return Stdout()
	}
	return consoleWriter(Stdout())
}

func consoleWriter(w io.Writer) io.Writer {
	return zerolog.ConsoleWriter{Out: w, TimeFormat: consoleTimeFormat}
}

// ParseLevel reports whether s names a known level. Empty means info.
func ParseLevel(s string) (Level, bool) {
	if strings.TrimSpace(s) == "" {
		return zerolog.InfoLevel, true
	}
	l := parseLevel(s, zerolog.NoLevel)
	return l, l != zerolog.NoLevel
}

func parseLevel(s string, def zerolog.Level) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	}
	return def
}

func Stdout() io.Writer { return os.Stdout }
func Stderr() io.Writer { return os.Stderr }
