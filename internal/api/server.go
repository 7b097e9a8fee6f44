package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/nerrad567/gray-logic-etrv/internal/audit"
	"github.com/nerrad567/gray-logic-etrv/internal/etrv"
	"github.com/nerrad567/gray-logic-etrv/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-etrv/internal/infrastructure/logging"
)

// gracefulShutdownTimeout bounds how long Close waits for in-flight requests.
const gracefulShutdownTimeout = 10 * time.Second

// Session is the valve session surface the API drives.
type Session interface {
	Snapshot(ctx context.Context) (etrv.Snapshot, error)
	Refresh(ctx context.Context) error
	SetSetpoint(ctx context.Context, value float64, source string) error
	SetProfileLevel(ctx context.Context, level float64, source string) error
}

// HealthChecker is implemented by the infrastructure clients
// (MQTT, InfluxDB, database).
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies of the API server.
type Deps struct {
	Config  config.APIConfig
	Logger  *logging.Logger
	Session Session

	// AuditRepo is optional; without it /audit answers 503.
	AuditRepo audit.Repository

	// Checks are reported by /health under their map key. Optional.
	Checks map[string]HealthChecker

	Version string
}

// Server is the local HTTP API of the bridge.
type Server struct {
	cfg       config.APIConfig
	logger    *logging.Logger
	session   Session
	auditRepo audit.Repository
	checks    map[string]HealthChecker
	version   string

	server   *http.Server
	listener net.Listener
}

// New creates a server. It does not listen until Start.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Session == nil {
		return nil, fmt.Errorf("session is required")
	}

	return &Server{
		cfg:       deps.Config,
		logger:    deps.Logger,
		session:   deps.Session,
		auditRepo: deps.AuditRepo,
		checks:    deps.Checks,
		version:   deps.Version,
	}, nil
}

// Handler returns the router, for embedding or tests.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Start binds the listener and serves in the background.
//
// Returns:
//   - error: if the address cannot be bound (port in use, etc.)
func (s *Server) Start(_ context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	s.listener = ln

	s.server = &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	s.logger.Info("API server listening", "address", ln.Addr().String())
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close waits up to 10 seconds for in-flight requests, then closes.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}
