package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	logx "soulverse/pkg/logx"
)

type ServerConfig struct {
	Addr         string // default "127.0.0.1:8080"
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// Name labels log lines. Default "admin api".
	Name string
}

// Server runs the admin router until its context is cancelled.
type Server struct {
	cfg ServerConfig
	h   http.Handler
	log logx.Logger
}

func NewServer(cfg ServerConfig, h http.Handler, log logx.Logger) *Server {
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:8080"
	}
	if cfg.Name == "" {
		cfg.Name = "admin api"
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 10 * time.Second
	}
	// Manual triggers run a whole delivery inline, so there is no write
	// timeout unless configured.
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Server{cfg: cfg, h: h, log: log}
}

// Run listens and serves. It returns nil after a clean shutdown.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, ln)
}

func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	s.log.Info(s.cfg.Name+" listening", logx.String("addr", ln.Addr().String()))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		s.log.Warn(s.cfg.Name+" shutdown", logx.Err(err))
		_ = srv.Close()
	}
	<-errCh
	s.log.Info(s.cfg.Name + " stopped")
	return nil
}
