// Package status serves station health and Prometheus metrics over HTTP.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Snapshot is the pipeline state reported on /status
type Snapshot struct {
	State              string     `json:"state"`
	Capturing          bool       `json:"capturing"`
	Uploading          bool       `json:"uploading"`
	QueueDepth         int        `json:"queue_depth"`
	LastUpload         *time.Time `json:"last_upload,omitempty"`
	SecondsSinceUpload float64    `json:"seconds_since_upload,omitempty"`
}

// Source supplies snapshots; implemented by the pipeline
type Source interface {
	Snapshot() Snapshot
}

// NewRouter constructs the HTTP router
func NewRouter(src Source, gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		if !src.Snapshot().Capturing {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("not capturing"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})
	r.Get("/status", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(src.Snapshot())
	})
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	return r
}

// Server provides the status endpoints
type Server struct {
	server *http.Server
	addr   string
	log    zerolog.Logger
}

func NewServer(addr string, src Source, gatherer prometheus.Gatherer, log zerolog.Logger) *Server {
	return &Server{
		addr: addr,
		log:  log,
		server: &http.Server{
			Addr:         addr,
			Handler:      NewRouter(src, gatherer),
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}
}

// Start starts the HTTP server in a goroutine
func (s *Server) Start() {
	go func() {
		s.log.Info().Str("addr", s.addr).Msg("Starting status HTTP server")
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error().Err(err).Msg("Status HTTP server error")
		}
	}()
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down status HTTP server")
	return s.server.Shutdown(ctx)
}
