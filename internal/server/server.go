// Package server owns the lifecycle of the player API listener: starting and
// stopping it, and wiring the host's status changes to open event streams.
package server

import (
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"

	"github.com/nowplaying/playerapi/internal/broker"
	"github.com/nowplaying/playerapi/internal/config"
	"github.com/nowplaying/playerapi/internal/handlers"
	"github.com/nowplaying/playerapi/internal/logging"
	"github.com/nowplaying/playerapi/internal/metrics"
	"github.com/nowplaying/playerapi/internal/middleware"
	"github.com/nowplaying/playerapi/internal/player"
	"github.com/nowplaying/playerapi/internal/router"
	"github.com/nowplaying/playerapi/internal/sentry"
	"github.com/nowplaying/playerapi/internal/tracker"
)

// Status describes the listener. The zero value is both the initial and the
// stopped state.
type Status struct {
	Running bool   `json:"status"`
	Message string `json:"message"`
	Address string `json:"address"`
}

// Server is one player API instance. Start and Stop are serialized; Status
// may be called at any time.
type Server struct {
	cfg     *config.Config
	source  player.Source
	metrics *metrics.Metrics

	// mu serializes Start and Stop.
	mu  sync.Mutex
	run *run

	statusMu sync.RWMutex
	status   Status
}

// run holds everything that lives for exactly one Start..Stop cycle.
type run struct {
	httpServer  *http.Server
	broker      *broker.Broker
	tracker     *tracker.Tracker
	limiter     *middleware.RateLimiter
	unsubscribe func()
	serveDone   chan struct{}
}

// Option configures a Server.
type Option func(*Server)

// WithMetrics records subscriber, connection and request metrics in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// New creates a stopped Server serving snapshots and deltas from source.
func New(cfg *config.Config, source player.Source, opts ...Option) *Server {
	s := &Server{cfg: cfg, source: source}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Status returns the current listener state.
func (s *Server) Status() Status {
	s.statusMu.RLock()
	defer s.statusMu.RUnlock()
	return s.status
}

func (s *Server) setStatus(st Status) {
	s.statusMu.Lock()
	s.status = st
	s.statusMu.Unlock()
}

// Start listens on bindAddress:port, stopping a running listener first. An
// empty bindAddress uses the configured default and port 0 picks a free
// port. A bind failure is reported in the returned Status, never panics and
// is not retried.
func (s *Server) Start(port int, bindAddress string) Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.run != nil {
		s.stopLocked()
	}

	if bindAddress == "" {
		bindAddress = s.cfg.BindAddress
	}
	addr := net.JoinHostPort(bindAddress, strconv.Itoa(port))

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		wrapped := logging.WrapError(err, "failed to start player api server")
		slog.Error("failed to start player api server", slog.String("addr", addr), slog.Any("error", wrapped))
		sentry.CaptureError(wrapped, map[string]string{"operation": "start", "addr": addr})
		s.setStatus(Status{Message: err.Error()})
		return s.Status()
	}

	r := s.newRun()
	r.unsubscribe = s.source.Subscribe(r.broker.Broadcast)
	go func() {
		defer close(r.serveDone)
		if err := r.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("player api server stopped unexpectedly", slog.Any("error", logging.WrapError(err, "serve")))
		}
	}()
	s.run = r

	if tcpAddr, ok := ln.Addr().(*net.TCPAddr); ok {
		port = tcpAddr.Port
	}
	s.setStatus(Status{Running: true, Address: formatAddress(port)})
	slog.Info("player api server started", slog.String("addr", ln.Addr().String()))
	return s.Status()
}

// Stop shuts the listener down. It is a no-op returning the stopped status
// when nothing is running. Subscribers and connections are always cleared;
// a failure to close the listener is reported in Status.Message.
func (s *Server) Stop() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.run == nil {
		s.setStatus(Status{})
		return s.Status()
	}

	if err := s.stopLocked(); err != nil {
		s.setStatus(Status{Message: err.Error()})
		return s.Status()
	}
	s.setStatus(Status{})
	return s.Status()
}

func (s *Server) newRun() *run {
	b := broker.New(broker.WithMetrics(s.metrics))
	tr := tracker.New(s.metrics)

	var rl *middleware.RateLimiter
	if s.cfg.RateLimitPerMinute > 0 {
		rl = middleware.NewRateLimiter(s.cfg.RateLimitPerMinute)
	}

	h := handlers.NewPlayerHandler(s.source, b)
	srv := &http.Server{
		Handler:           router.New(s.cfg, h, s.metrics, rl),
		ConnState:         tr.ConnState,
		ReadHeaderTimeout: s.cfg.IdleTimeout,
		ReadTimeout:       s.cfg.IdleTimeout,
		IdleTimeout:       s.cfg.IdleTimeout,
		ErrorLog:          slog.NewLogLogger(slog.Default().Handler(), slog.LevelDebug),
	}

	return &run{
		httpServer: srv,
		broker:     b,
		tracker:    tr,
		limiter:    rl,
		serveDone:  make(chan struct{}),
	}
}

// stopLocked tears the current run down. Cleanup of subscribers and
// connections happens regardless of the listener close result.
func (s *Server) stopLocked() error {
	r := s.run
	s.run = nil

	r.unsubscribe()
	subscribers := r.broker.CloseAll()
	connections := r.tracker.CloseAll()

	err := r.httpServer.Close()
	<-r.serveDone

	if r.limiter != nil {
		r.limiter.Stop()
	}

	if err != nil {
		wrapped := logging.WrapError(err, "failed to stop player api server")
		slog.Error("failed to stop player api server", slog.Any("error", wrapped))
		sentry.CaptureError(wrapped, map[string]string{"operation": "stop"})
		return err
	}

	slog.Info("player api server stopped",
		slog.Int("subscribers", subscribers),
		slog.Int("connections", connections))
	return nil
}

// formatAddress renders the address clients use to reach a local listener
// on port. Port 80 is implied by the scheme.
func formatAddress(port int) string {
	if port == 80 {
		return "http://localhost"
	}
	return "http://localhost:" + strconv.Itoa(port)
}
