package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// Server exposes the ops surface (health probes and metrics) on its
// own listener, so the main API port never serves scrape traffic.
type Server struct {
	srv *http.Server
}

// NewServer builds the ops server for the given port.
func NewServer(port int) *Server {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", HealthHandler())
	mux.HandleFunc("GET /health/live", LivenessHandler())
	mux.HandleFunc("GET /health/ready", ReadinessHandler())
	mux.Handle("GET /metrics", MetricsHandler())

	return &Server{
		srv: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
	}
}

// Start blocks serving until Shutdown or a listener error.
func (s *Server) Start() error {
	return s.srv.ListenAndServe()
}

// Shutdown stops the server, waiting for in-flight scrapes.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
