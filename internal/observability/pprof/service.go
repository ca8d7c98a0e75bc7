// Package pprof runs an optional profiling server that can be switched on and
// off by config reload.
package pprof

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"runtime"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"soulverse/internal/api"
	logx "soulverse/pkg/logx"
)

const DefaultAddr = "127.0.0.1:6060"

// ErrInsecureBind is returned when a non-loopback address has no token.
var ErrInsecureBind = errors.New("pprof: non-loopback addr requires a token")

// Config controls the profiling server. Rates below zero leave the runtime
// setting untouched.
type Config struct {
	Enabled              bool
	Addr                 string
	Token                string
	MutexProfileFraction int
	BlockProfileRate     int
}

func (c Config) addr() string {
	if a := strings.TrimSpace(c.Addr); a != "" {
		return a
	}
	return DefaultAddr
}

type Service struct {
	mu     sync.Mutex
	log    logx.Logger
	cfg    Config
	addr   string
	cancel context.CancelFunc
	done   chan struct{}
}

func New(log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{log: log}
}

// Addr is the bound address, empty when not running.
func (s *Service) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Reconfigure applies cfg, starting, stopping or restarting the server as
// needed. The server lives until Stop or ctx is done.
func (s *Service) Reconfigure(ctx context.Context, cfg Config) error {
	applyRuntimeRates(cfg)

	s.mu.Lock()
	prev := s.cfg
	running := s.cancel != nil
	s.cfg = cfg
	s.mu.Unlock()

	switch {
	case !cfg.Enabled:
		if running {
			s.Stop(ctx)
		}
		return nil
	case running && !needsRestart(prev, cfg):
		return nil
	case running:
		s.Stop(ctx)
	}
	return s.start(ctx, cfg)
}

func needsRestart(a, b Config) bool {
	return a.addr() != b.addr() || a.Token != b.Token
}

func applyRuntimeRates(cfg Config) {
	if cfg.MutexProfileFraction >= 0 {
		runtime.SetMutexProfileFraction(cfg.MutexProfileFraction)
	}
	if cfg.BlockProfileRate >= 0 {
		runtime.SetBlockProfileRate(cfg.BlockProfileRate)
	}
}

func (s *Service) start(ctx context.Context, cfg Config) error {
	addr := cfg.addr()
	if strings.TrimSpace(cfg.Token) == "" && !isLoopbackAddr(addr) {
		s.log.Error("pprof refused to start", logx.String("addr", addr), logx.Err(ErrInsecureBind))
		return ErrInsecureBind
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("pprof listen %s: %w", addr, err)
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	s.mu.Lock()
	s.addr, s.cancel, s.done = ln.Addr().String(), cancel, done
	s.mu.Unlock()

	srv := api.NewServer(api.ServerConfig{Addr: addr, Name: "pprof"}, Handler(cfg.Token, s.log), s.log)
	go func() {
		defer close(done)
		if err := srv.Serve(runCtx, ln); err != nil {
			s.log.Warn("pprof server exited", logx.Err(err))
		}
	}()
	s.log.Info("pprof started", logx.String("addr", ln.Addr().String()), logx.Bool("token_set", cfg.Token != ""))
	return nil
}

// Stop shuts the server down and waits for it until ctx is done.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done, s.addr = nil, nil, ""
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	select {
	case <-done:
		s.log.Info("pprof stopped")
	case <-ctx.Done():
	}
}

// Handler serves /debug/pprof/ and /debug/vars. A non-empty token is required
// as a bearer token.
func Handler(token string, log logx.Logger) http.Handler {
	r := chi.NewRouter()
	if strings.TrimSpace(token) != "" {
		r.Use(api.AuthMiddleware(token, log))
	}
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	r.Mount("/debug", middleware.Profiler())
	return r
}

func isLoopbackAddr(addr string) bool {
	h, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	h = strings.TrimSpace(h)
	if strings.EqualFold(h, "localhost") {
		return true
	}
	ip := net.ParseIP(h)
	return ip != nil && ip.IsLoopback()
}
