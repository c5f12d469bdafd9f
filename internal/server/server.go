// Package server runs the HTTP listener and stops it, together with the
// background components registered on it, when the process is signalled.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"
)

// ShutdownFunc stops one component, giving up when ctx expires.
type ShutdownFunc func(ctx context.Context) error

// Config holds HTTP server settings.
type Config struct {
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

type hook struct {
	name string
	stop ShutdownFunc
}

// Server owns an http.Server and the shutdown hooks of its components.
type Server struct {
	http        *http.Server
	logger      *slog.Logger
	stopTimeout time.Duration

	mu    sync.Mutex
	hooks []hook
}

// New creates a server listening on cfg.Port once Run is called.
func New(handler http.Handler, cfg Config, logger *slog.Logger) *Server {
	return &Server{
		http: &http.Server{
			Addr:              ":" + strconv.Itoa(cfg.Port),
			Handler:           handler,
			ReadHeaderTimeout: cfg.ReadTimeout,
			ReadTimeout:       cfg.ReadTimeout,
			WriteTimeout:      cfg.WriteTimeout,
		},
		logger:      logger,
		stopTimeout: cfg.ShutdownTimeout,
	}
}

// SetHandler installs the router. Call it before Run.
func (s *Server) SetHandler(h http.Handler) {
	s.http.Handler = h
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.http.Addr
}

// OnShutdown registers fn to run after the listener has drained. Hooks run
// last-registered first, so dependencies registered early outlive the
// components that use them.
func (s *Server) OnShutdown(name string, fn ShutdownFunc) {
	s.mu.Lock()
	s.hooks = append(s.hooks, hook{name: name, stop: fn})
	s.mu.Unlock()
}

// Run listens on the configured address and blocks until SIGINT, SIGTERM
// or cancellation of ctx, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.http.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run over an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	ctx, unnotify := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer unnotify()

	failed := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "addr", ln.Addr().String())
		err := s.http.Serve(ln)
		if !errors.Is(err, http.ErrServerClosed) {
			failed <- err
		}
	}()

	select {
	case err := <-failed:
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("shutdown requested", "cause", context.Cause(ctx))
	return s.gracefulShutdown()
}

// gracefulShutdown drains HTTP connections and then runs every hook under
// one shared deadline. Errors from all stages are joined.
func (s *Server) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.stopTimeout)
	defer cancel()

	var errs []error
	s.http.SetKeepAlivesEnabled(false)
	if err := s.http.Shutdown(ctx); err != nil {
		s.logger.Error("http drain incomplete", "error", err)
		errs = append(errs, fmt.Errorf("http: %w", err))
	} else {
		s.logger.Info("http server drained")
	}

	s.mu.Lock()
	hooks := make([]hook, len(s.hooks))
	copy(hooks, s.hooks)
	s.mu.Unlock()

	for i := len(hooks) - 1; i >= 0; i-- {
		h := hooks[i]
		start := time.Now()
		if err := h.stop(ctx); err != nil {
			s.logger.Error("component stop failed", "name", h.name, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", h.name, err))
			continue
		}
		s.logger.Info("component stopped", "name", h.name, "took", time.Since(start))
	}

	if err := errors.Join(errs...); err != nil {
		return err
	}
	s.logger.Info("server stopped")
	return nil
}
