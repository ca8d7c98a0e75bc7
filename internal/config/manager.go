package config

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sethvargo/go-retry"

	logx "soulverse/pkg/logx"
)

// ErrUnchanged is returned by Reload when the file content did not change.
var ErrUnchanged = errors.New("config unchanged")

type ConfigManager struct {
	path string

	mu  sync.RWMutex
	cfg *Config

	// subsMu guards the subscriber list so publish never sends on a channel
	// that Unsubscribe is closing.
	subsMu sync.Mutex
	subs   []chan *Config

	log       logx.Logger
	validator func(ctx context.Context, cfg *Config) error
	getenv    func(string) string
	debounce  time.Duration

	// lastHash is the hash of the last committed config.
	lastHash uint64
}

func NewConfigManager(path string) *ConfigManager {
	return &ConfigManager{path: path, log: logx.Nop(), getenv: os.Getenv, debounce: 250 * time.Millisecond}
}

func (m *ConfigManager) Path() string { return m.path }

func (m *ConfigManager) SetLogger(log logx.Logger) {
	if log.IsZero() {
		log = logx.Nop()
	}
	m.log = log
}

// SetValidator installs an extra check run by Reload after Validate.
func (m *ConfigManager) SetValidator(fn func(ctx context.Context, cfg *Config) error) {
	m.validator = fn
}

// SetEnv replaces the environment lookup used for secret overrides.
func (m *ConfigManager) SetEnv(getenv func(string) string) { m.getenv = getenv }

// Parse reads the file and applies env overrides. It does not validate.
func (m *ConfigManager) Parse() (*Config, error) {
	b, err := os.ReadFile(m.path)
	if err != nil {
		return nil, err
	}
	return decode(m.path, b, m.getenv)
}

func decode(path string, b []byte, getenv func(string) string) (*Config, error) {
	jb, format, err := toJSON(path, b)
	if err != nil {
		return nil, err
	}
	var cfg Config
	dec := json.NewDecoder(bytes.NewReader(jb))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode %s config: %w", format, err)
	}
	// reject trailing tokens (e.g. concatenated JSON)
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return nil, errors.New("invalid config: trailing data")
		}
		return nil, err
	}
	ApplyEnv(&cfg, getenv)
	return &cfg, nil
}

// Load parses and validates the file and commits it.
func (m *ConfigManager) Load() (*Config, error) {
	cfg, err := m.Parse()
	if err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", m.path, err)
	}
	m.Commit(cfg)
	return cfg, nil
}

func (m *ConfigManager) Commit(cfg *Config) {
	m.mu.Lock()
	m.cfg = cfg
	m.lastHash = hashConfig(cfg)
	m.mu.Unlock()
}

func (m *ConfigManager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

func hashConfig(cfg *Config) uint64 {
	if cfg == nil {
		return 0
	}
	b, err := json.Marshal(cfg)
	if err != nil {
		return 0
	}
	h := fnv.New64a()
	_, _ = h.Write(b)
	return h.Sum64()
}

// Reload re-reads the file and, if it changed and passes validation, commits
// and publishes it. Nothing is committed on error.
func (m *ConfigManager) Reload(ctx context.Context) (*Config, error) {
	cfg, err := m.Parse()
	if err != nil {
		return nil, err
	}
	h := hashConfig(cfg)
	m.mu.RLock()
	unchanged := h != 0 && h == m.lastHash
	m.mu.RUnlock()
	if unchanged {
		return nil, ErrUnchanged
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	if m.validator != nil {
		vctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := m.validator(vctx, cfg)
		cancel()
		if err != nil {
			return nil, err
		}
	}
	m.Commit(cfg)
	m.publish(cfg)
	m.log.Debug("config published", logx.String("path", m.path), logx.String("hash", fmt.Sprintf("%x", h)))
	return cfg, nil
}

func (m *ConfigManager) Subscribe(buffer int) chan *Config {
	ch := make(chan *Config, buffer)
	m.subsMu.Lock()
	m.subs = append(m.subs, ch)
	m.subsMu.Unlock()
	return ch
}

func (m *ConfigManager) Unsubscribe(ch chan *Config) {
	if ch == nil {
		return
	}
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	for i, s := range m.subs {
		if s == ch {
			last := len(m.subs) - 1
			m.subs[i] = m.subs[last]
			m.subs[last] = nil
			m.subs = m.subs[:last]
			close(ch)
			return
		}
	}
}

// publish delivers the latest config to every subscriber. A full subscriber
// loses its oldest pending config.
func (m *ConfigManager) publish(cfg *Config) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	for _, ch := range m.subs {
		select {
		case ch <- cfg:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- cfg:
		default:
			m.log.Debug("config update dropped (subscriber slow)", logx.Int("queue_cap", cap(ch)))
		}
	}
}

// Watch reloads the file on change until ctx is done. Bursts of events are
// debounced. A watcher that fails to start or breaks is recreated with
// capped, jittered exponential backoff.
func (m *ConfigManager) Watch(ctx context.Context) error {
	dir, file := filepath.Dir(m.path), filepath.Base(m.path)
	d := &debouncer{wait: m.debounce, fn: func() { m.reloadFromWatch(ctx) }}
	defer d.stop()

	for {
		w, err := m.openWatcher(ctx, dir)
		if err != nil {
			return nil
		}
		m.log.Debug("config watcher started", logx.String("dir", dir), logx.String("file", file))
		m.drain(ctx, w, file, d)
		_ = w.Close()
		if ctx.Err() != nil {
			return nil
		}
		m.log.Warn("config watcher stopped; restarting", logx.String("dir", dir))
	}
}

func (m *ConfigManager) openWatcher(ctx context.Context, dir string) (*fsnotify.Watcher, error) {
	backoff := retry.WithCappedDuration(5*time.Second,
		retry.WithJitterPercent(50, retry.NewExponential(250*time.Millisecond)))
	return retry.DoValue(ctx, backoff, func(context.Context) (*fsnotify.Watcher, error) {
		w, err := fsnotify.NewWatcher()
		if err != nil {
			m.log.Warn("config watch init failed", logx.Err(err), logx.String("dir", dir))
			return nil, retry.RetryableError(err)
		}
		if err := w.Add(dir); err != nil {
			_ = w.Close()
			m.log.Warn("config watch add failed", logx.Err(err), logx.String("dir", dir))
			return nil, retry.RetryableError(err)
		}
		return w, nil
	})
}

// drain feeds relevant events to d until ctx is done or w breaks.
func (m *ConfigManager) drain(ctx context.Context, w *fsnotify.Watcher, file string, d *debouncer) {
	const ops = fsnotify.Write | fsnotify.Create | fsnotify.Rename | fsnotify.Remove | fsnotify.Chmod
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if ev.Op&ops != 0 && strings.EqualFold(filepath.Base(ev.Name), file) {
				d.trigger()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				m.log.Warn("config watch overflow; forcing reload")
				d.trigger()
				continue
			}
			m.log.Warn("config watch error", logx.Err(err))
		}
	}
}

func (m *ConfigManager) reloadFromWatch(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	switch _, err := m.Reload(ctx); {
	case err == nil:
	case errors.Is(err, ErrUnchanged):
		m.log.Debug("config unchanged; skipping publish", logx.String("path", m.path))
	default:
		m.log.Warn("config rejected", logx.String("path", m.path), logx.Err(err))
	}
}

// debouncer runs fn once wait has passed without another trigger.
type debouncer struct {
	wait time.Duration
	fn   func()

	mu    sync.Mutex
	timer *time.Timer
}

func (d *debouncer) trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.wait, d.fn)
}

func (d *debouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
}
