// Copyright 2026 The Claudebot Authors
// SPDX-License-Identifier: Apache-2.0

// Package server is the bridge's HTTP surface. It composes the
// admission pipeline — bearer auth, then the admin allowlist, then
// per-caller rate limiting — in front of task execution and
// path-validated file reads. Rejections never reach the executor;
// executor failures never crash the server.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/claudebot/bridge/executor"
	"github.com/claudebot/bridge/lib/clock"
	"github.com/claudebot/bridge/lib/ratelimit"
	"github.com/claudebot/bridge/lib/session"
)

// Version is reported by GET /status.
const Version = "1.0.0"

// TaskRunner is the executor surface the server needs. Satisfied by
// *executor.Executor; narrowed so handler tests can substitute a stub.
type TaskRunner interface {
	Execute(ctx context.Context, request executor.Request) (executor.Result, error)
	AnalyzeFile(ctx context.Context, callerID int64, path string, content []byte) (executor.Result, error)
}

// Config assembles a Server.
type Config struct {
	// Address is the TCP listen address (e.g., ":9999"). Required.
	Address string

	// APIKey is the shared bearer secret. Required.
	APIKey string

	// AllowedAdmins restricts callers when non-empty. Empty admits
	// any authenticated caller.
	AllowedAdmins []int64

	// Limiter gates admitted request rate per caller. Required.
	Limiter *ratelimit.Limiter

	// Sessions provides per-caller session continuity. Required.
	Sessions *session.Store

	// Runner executes tasks. Required.
	Runner TaskRunner

	// ExecutionTimeout is the executor's hard deadline; the server
	// sizes its write timeout to exceed it.
	ExecutionTimeout time.Duration

	// MaxReadBytes caps /file/read payloads when the request does not
	// specify max_bytes. Defaults to pathcheck.DefaultMaxBytes.
	MaxReadBytes int64

	// EvictionInterval is how often idle rate windows and expired
	// sessions are swept. Defaults to 5 minutes if zero.
	EvictionInterval time.Duration

	// ShutdownTimeout bounds the in-flight drain after the context is
	// cancelled. Defaults to 10 seconds if zero.
	ShutdownTimeout time.Duration

	// Logger is the structured logger. Required.
	Logger *slog.Logger

	// Clock drives uptime measurement. Defaults to the real clock.
	Clock clock.Clock
}

// Server is the bridge HTTP server. Follows the Serve(ctx) lifecycle:
// Serve blocks until the context is cancelled and in-flight requests
// drain; Ready() closes once the listener is bound; Addr() exposes
// the resolved address for port-0 listeners.
type Server struct {
	address          string
	apiKey           []byte
	admins           map[int64]struct{}
	limiter          *ratelimit.Limiter
	sessions         *session.Store
	runner           TaskRunner
	executionTimeout time.Duration
	maxReadBytes     int64
	evictionInterval time.Duration
	shutdownTimeout  time.Duration
	logger           *slog.Logger
	clock            clock.Clock

	ready chan struct{}
	addr  net.Addr

	// requests counts admitted authenticated requests, reported by
	// GET /status.
	requests atomic.Uint64
	started  time.Time
}

// New creates a Server. Call Serve to start accepting connections.
func New(config Config) *Server {
	if config.Address == "" {
		panic("server: Address is required")
	}
	if config.APIKey == "" {
		panic("server: APIKey is required")
	}
	if config.Limiter == nil {
		panic("server: Limiter is required")
	}
	if config.Sessions == nil {
		panic("server: Sessions is required")
	}
	if config.Runner == nil {
		panic("server: Runner is required")
	}
	if config.Logger == nil {
		panic("server: Logger is required")
	}

	admins := make(map[int64]struct{}, len(config.AllowedAdmins))
	for _, id := range config.AllowedAdmins {
		admins[id] = struct{}{}
	}

	evictionInterval := config.EvictionInterval
	if evictionInterval == 0 {
		evictionInterval = 5 * time.Minute
	}
	shutdownTimeout := config.ShutdownTimeout
	if shutdownTimeout == 0 {
		shutdownTimeout = 10 * time.Second
	}
	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}

	return &Server{
		address:          config.Address,
		apiKey:           []byte(config.APIKey),
		admins:           admins,
		limiter:          config.Limiter,
		sessions:         config.Sessions,
		runner:           config.Runner,
		executionTimeout: config.ExecutionTimeout,
		maxReadBytes:     config.MaxReadBytes,
		evictionInterval: evictionInterval,
		shutdownTimeout:  shutdownTimeout,
		logger:           config.Logger,
		clock:            clk,
		ready:            make(chan struct{}),
	}
}

// Ready returns a channel that is closed once the server is bound and
// accepting connections.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Addr returns the resolved listen address. Only valid after Ready()
// is closed.
func (s *Server) Addr() net.Addr {
	return s.addr
}

// Handler returns the routed HTTP handler. Exposed for tests; Serve
// installs it on its own http.Server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /status", s.requireAuth(s.handleStatus))
	mux.HandleFunc("POST /execute", s.requireAuth(s.handleExecute))
	mux.HandleFunc("POST /file/read", s.requireAuth(s.handleFileRead))
	return mux
}

// Serve starts accepting connections. Blocks until ctx is cancelled,
// then performs graceful shutdown. The eviction sweepers for idle
// rate windows and expired sessions run for the duration of the
// serve loop.
func (s *Server) Serve(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.address, err)
	}
	s.addr = listener.Addr()
	s.started = s.clock.Now()
	close(s.ready)

	sweepCtx, stopSweepers := context.WithCancel(ctx)
	defer stopSweepers()
	go s.limiter.RunSweeper(sweepCtx, s.evictionInterval)
	go s.sessions.RunSweeper(sweepCtx, s.evictionInterval)

	// The write timeout must outlast a full task execution or the
	// connection dies before the result is delivered.
	writeTimeout := s.executionTimeout + 30*time.Second

	server := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       60 * time.Second,
	}

	s.logger.Info("bridge listening",
		"address", s.addr.String(),
		"key_fingerprint", KeyFingerprint(string(s.apiKey)),
		"allowlist_size", len(s.admins),
	)

	serveDone := make(chan error, 1)
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveDone <- err
		}
		close(serveDone)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("bridge shutting down")
	case err := <-serveDone:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("bridge shutdown error", "error", err)
		return fmt.Errorf("bridge shutdown: %w", err)
	}

	s.logger.Info("bridge stopped")
	return nil
}
