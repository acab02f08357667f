// Package httpapi exposes the conversational service over HTTP: the
// turn endpoint with its SSE stream, session and persona management,
// and media file serving.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/parley-dev/parley/internal/chat"
	"github.com/parley-dev/parley/internal/orchestrator"
	"github.com/parley-dev/parley/internal/store"
	pkgobs "github.com/parley-dev/parley/pkg/observability"
)

// Server holds the API's collaborators.
type Server struct {
	orch  *orchestrator.Orchestrator
	store store.Store
	auth  Authenticator
	// internalKey guards the internal persona admin endpoint. Empty
	// disables it.
	internalKey string
	// media serves stored artifacts; nil disables the route.
	media        http.Handler
	mediaBaseURL string
}

// Options configures the HTTP server.
type Options struct {
	InternalAPIKey string
	Media          http.Handler
	MediaBaseURL   string
	CORSOrigins    []string
	// MountOps also serves /health and /metrics on this handler.
	MountOps bool
}

// NewServer builds the routed and middleware-wrapped handler.
func NewServer(orch *orchestrator.Orchestrator, st store.Store, auth Authenticator, opts Options) http.Handler {
	s := &Server{
		orch:         orch,
		store:        st,
		auth:         auth,
		internalKey:  opts.InternalAPIKey,
		media:        opts.Media,
		mediaBaseURL: opts.MediaBaseURL,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/chat", s.authed(s.handleChat))
	mux.HandleFunc("GET /api/chat/sessions", s.authed(s.handleListSessions))
	mux.HandleFunc("POST /api/chat/sessions", s.authed(s.handleCreateSession))
	mux.HandleFunc("POST /api/chat/restart", s.authed(s.handleRestart))
	mux.HandleFunc("GET /api/presets", s.handleListPresets)
	mux.HandleFunc("POST /api/internal/presets", s.handleCreatePreset)

	if s.media != nil {
		base := "/" + strings.Trim(opts.MediaBaseURL, "/")
		mux.Handle("GET "+base+"/", http.StripPrefix(base+"/", s.media))
	}

	if opts.MountOps {
		mux.HandleFunc("GET /health", pkgobs.HealthHandler())
		mux.HandleFunc("GET /health/live", pkgobs.LivenessHandler())
		mux.HandleFunc("GET /health/ready", pkgobs.ReadinessHandler())
		mux.Handle("GET /metrics", pkgobs.MetricsHandler())
	}

	return chainMiddlewares(mux, withCORS(opts.CORSOrigins), withObservability)
}

// authed wraps a handler with bearer authentication. The resolved
// user id rides in as the second argument.
func (s *Server) authed(next func(http.ResponseWriter, *http.Request, string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := s.auth.Authenticate(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "missing or invalid token")
			return
		}
		next(w, r, userID)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeDomainError maps service errors onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, orchestrator.ErrInvalidRequest), errors.Is(err, chat.ErrPersonaMismatch):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, chat.ErrPersonaNotFound), errors.Is(err, chat.ErrSessionNotFound), errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, chat.ErrPersonaExists), errors.Is(err, store.ErrDuplicateCode):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
