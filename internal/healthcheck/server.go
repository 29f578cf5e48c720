package healthcheck

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"gitlab.com/smilefunnel/api/lead-engine/internal/storage"
	"gitlab.com/smilefunnel/api/lead-engine/pkg/utils"
)

// ConnectionChecker reports broker connectivity.
type ConnectionChecker interface {
	IsConnected() bool
}

// Server serves probes, metrics and the lead API on one port.
type Server struct {
	httpServer *http.Server
	router     chi.Router
	logger     *zap.Logger
	db         storage.Pinger
	broker     ConnectionChecker
}

// HealthResponse is the response structure for health check endpoints
type HealthResponse struct {
	Status  string            `json:"status"`
	Version string            `json:"version,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}

// Options configures the HTTP server.
type Options struct {
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Version      string
}

const readyCheckTimeout = 2 * time.Second

// NewServer creates the HTTP server. db and broker may be nil, in which case
// the corresponding readiness check is skipped.
func NewServer(opts Options, logger *zap.Logger, db storage.Pinger, broker ConnectionChecker) *Server {
	r := chi.NewRouter()

	server := &Server{
		httpServer: &http.Server{
			Addr:         ":" + strconv.Itoa(opts.Port),
			Handler:      r,
			ReadTimeout:  opts.ReadTimeout,
			WriteTimeout: opts.WriteTimeout,
		},
		router: r,
		logger: logger,
		db:     db,
		broker: broker,
	}

	version := opts.Version
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		_ = utils.WriteJSONResponse(w, http.StatusOK, HealthResponse{Status: "UP", Version: version})
	})
	r.Get("/ready", server.handleReady)

	return server
}

// Handler exposes the root router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// RegisterMetricsHandler adds the /metrics endpoint handler.
// Should only be called if metrics are enabled.
func (s *Server) RegisterMetricsHandler(handler http.Handler) {
	s.logger.Info("Registering /metrics endpoint")
	s.router.Handle("/metrics", handler)
}

// MountAPI serves handler for every path not claimed by the probes.
func (s *Server) MountAPI(handler http.Handler) {
	s.logger.Info("Mounting lead API")
	s.router.Mount("/", handler)
}

// Start begins the HTTP server
func (s *Server) Start() {
	go func() {
		s.logger.Info("Starting HTTP server", zap.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server error", zap.Error(err))
		}
	}()
}

// Stop gracefully shuts down the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// handleReady reports 503 until the database and NATS are both reachable.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	details := map[string]string{
		"timestamp": utils.FormatISO8601(utils.Now()),
	}
	ready := true

	if s.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), readyCheckTimeout)
		err := s.db.Ping(ctx)
		cancel()
		if err != nil {
			s.logger.Warn("Readiness check failed: database", zap.Error(err))
			details["database"] = "DOWN"
			ready = false
		} else {
			details["database"] = "UP"
		}
	}

	if s.broker != nil {
		if s.broker.IsConnected() {
			details["nats"] = "UP"
		} else {
			s.logger.Warn("Readiness check failed: nats disconnected")
			details["nats"] = "DOWN"
			ready = false
		}
	}

	if !ready {
		_ = utils.WriteJSONResponse(w, http.StatusServiceUnavailable, HealthResponse{Status: "NOT_READY", Details: details})
		return
	}
	_ = utils.WriteJSONResponse(w, http.StatusOK, HealthResponse{Status: "READY", Details: details})
}
