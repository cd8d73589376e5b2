// Package api serves the grow box status and configuration over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/itohio/growbox/pkg/config"
	"github.com/itohio/growbox/pkg/control"
	"github.com/itohio/growbox/pkg/metrics"
	"github.com/itohio/growbox/pkg/sensor"
)

const shutdownTimeout = 5 * time.Second

// Deps are the collaborators the API reads from and writes to.
type Deps struct {
	Store   *config.Store
	Hub     *sensor.Hub
	History *sensor.History
	Outputs func() control.ActuatorOutputs
	Metrics *metrics.Metrics // optional
}

// Server handles the HTTP API.
type Server struct {
	deps Deps
	log  *slog.Logger
}

// New creates a server.
func New(deps Deps, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	if deps.Outputs == nil {
		deps.Outputs = func() control.ActuatorOutputs { return control.ActuatorOutputs{} }
	}
	return &Server{deps: deps, log: log}
}

// Router returns the routes without middleware.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	s.handle(r, "/health", s.health, http.MethodGet)
	s.handle(r, "/api/sensors", s.sensors, http.MethodGet)
	s.handle(r, "/api/actuators", s.actuators, http.MethodGet)
	s.handle(r, "/api/ec", s.ec, http.MethodGet)
	s.handle(r, "/api/tray", s.tray, http.MethodGet)
	s.handle(r, "/api/history", s.history, http.MethodGet)
	s.handle(r, "/api/config", s.getConfig, http.MethodGet)
	s.handle(r, "/api/config", s.postConfig, http.MethodPost)

	if s.deps.Metrics != nil {
		r.Handle("/metrics", s.deps.Metrics.Handler()).Methods(http.MethodGet)
	}

	return r
}

func (s *Server) handle(r *mux.Router, path string, h http.HandlerFunc, method string) {
	r.Handle(path, s.deps.Metrics.WrapHandler(path, h)).Methods(method)
}

// Handler returns the router wrapped with panic recovery and access logging.
func (s *Server) Handler(accessLog io.Writer) http.Handler {
	recovery := handlers.RecoveryHandler(
		handlers.RecoveryLogger(slog.NewLogLogger(s.log.Handler(), slog.LevelError)),
	)
	return handlers.CombinedLoggingHandler(accessLog, recovery(s.Router()))
}

// Run serves on addr until ctx is canceled.
func (s *Server) Run(ctx context.Context, addr string, accessLog io.Writer) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(accessLog),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http api listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}
