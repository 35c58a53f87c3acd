package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"speaker-diarizer/pkg/correlation"
	"speaker-diarizer/pkg/diarization"
	"speaker-diarizer/pkg/errors"
	"speaker-diarizer/pkg/metrics"
	"speaker-diarizer/pkg/version"

	"github.com/sirupsen/logrus"
)

// ConnectionChecker reports whether a dependency is connected
type ConnectionChecker interface {
	IsConnected() bool
}

// Server represents the HTTP server for streaming diarization, health checks and metrics
type Server struct {
	config     *Config
	logger     *logrus.Logger
	httpServer *http.Server
	mux        *http.ServeMux
	handler    http.Handler
	startTime  time.Time
	stream     *StreamHandler
	amqpClient ConnectionChecker
}

// NewServer creates a new HTTP server instance
func NewServer(logger *logrus.Logger, config *Config) *Server {
	if config == nil {
		config = DefaultConfig()
	}

	server := &Server{
		config:    config,
		logger:    logger,
		startTime: time.Now(),
		stream:    NewStreamHandler(logger, config),
	}

	mux := http.NewServeMux()
	server.mux = mux

	// Wrap handlers with middleware that adds Server header
	addServerHeader := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Server", version.ServerHeader())
			next(w, r)
		}
	}

	mux.HandleFunc("/health", addServerHeader(server.HealthHandler))
	mux.HandleFunc("/health/live", addServerHeader(server.LivenessHandler))
	mux.HandleFunc("/health/ready", addServerHeader(server.ReadinessHandler))
	mux.HandleFunc("/status", addServerHeader(server.statusHandler))
	mux.Handle(StreamPath, server.stream)

	if config.EnableMetrics && metrics.IsMetricsEnabled() {
		metrics.SetMetricsPath(config.MetricsPath)
		metrics.RegisterHandler(mux)
		logger.WithField("path", metrics.MetricsPath()).Info("Prometheus metrics endpoint enabled")
	} else {
		logger.Info("Metrics endpoints disabled")
	}

	server.handler = correlation.NewHTTPMiddleware(logger).Middleware(mux)

	server.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", config.Port),
		Handler:      server.handler,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	}

	return server
}

// SetSpeakerListener registers a listener for speaker events of every stream
func (s *Server) SetSpeakerListener(listener diarization.Listener) {
	s.stream.SetListener(listener)
}

// SetAMQPClient sets the AMQP client reference for health checks
func (s *Server) SetAMQPClient(client ConnectionChecker) {
	s.amqpClient = client
}

// Handler returns the root handler of the server
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ActiveSessions returns the number of open streaming sessions
func (s *Server) ActiveSessions() int {
	return s.stream.ActiveSessions()
}

// Start starts the HTTP server in a goroutine
func (s *Server) Start() {
	s.logger.WithField("port", s.config.Port).Info("Starting HTTP server")

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.WithError(err).Error("HTTP server failed")
		}
	}()
}

// Shutdown gracefully shuts down the HTTP server and closes open streams
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server...")
	err := s.httpServer.Shutdown(ctx)
	s.stream.CloseAll()
	return err
}

// statusHandler handles the /status endpoint
func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	s.logger.WithField("endpoint", "/status").Debug("Status endpoint accessed")

	status := map[string]interface{}{
		"status":          "ok",
		"uptime":          time.Since(s.startTime).String(),
		"active_sessions": s.stream.ActiveSessions(),
		"max_sessions":    s.config.MaxSessions,
		"version":         version.Version,
		"started_at":      s.startTime.Format(time.RFC3339),
		"diarization":     s.config.Diarization,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(status)
}

// ErrorResponse sends a standardized error response
func (s *Server) ErrorResponse(w http.ResponseWriter, err error) {
	errors.WriteError(w, err)
	s.logger.WithError(err).Warn("HTTP error response sent")
}
