package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/parley-dev/parley/internal/chat"
)

// Read-window limits, matching the client's needs.
const (
	sessionListLimit   = 30
	messageListLimit   = 100
	maxRequestBodySize = 1 << 20
)

type sessionPayload struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	InitialContext string    `json:"initialContext,omitempty"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

type clientMessage struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Mode      string    `json:"mode"`
	AudioURL  string    `json:"audioUrl,omitempty"`
	ImageURL  string    `json:"imageUrl,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

type createSessionRequest struct {
	PresetRoleCode string `json:"presetRoleCode"`
	InitialContext string `json:"initialContext,omitempty"`
}

func toSessionPayload(s *chat.Session) sessionPayload {
	return sessionPayload{
		ID:             s.ID,
		Title:          s.Title,
		InitialContext: s.InitialContext,
		Status:         string(s.Status),
		CreatedAt:      s.CreatedAt,
		UpdatedAt:      s.UpdatedAt,
	}
}

func toClientMessage(m *chat.Message) clientMessage {
	out := clientMessage{
		ID:        m.ID,
		Role:      string(m.Role),
		Content:   m.Content,
		Mode:      string(m.Type),
		CreatedAt: m.CreatedAt,
	}
	switch m.Type {
	case chat.MessageTypeAudio:
		out.AudioURL = m.MediaURL
	case chat.MessageTypeImage:
		out.ImageURL = m.MediaURL
	}
	return out
}

// handleListSessions serves both listing modes: ?sessionId= returns
// one session's message history, ?presetRoleCode= lists the caller's
// sessions for a persona.
func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request, userID string) {
	if sessionID := strings.TrimSpace(r.URL.Query().Get("sessionId")); sessionID != "" {
		sess, err := s.store.GetSession(r.Context(), sessionID, userID)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		msgs, err := s.store.ListMessages(r.Context(), sess.ID, messageListLimit)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		out := make([]clientMessage, 0, len(msgs))
		for _, m := range msgs {
			out = append(out, toClientMessage(m))
		}
		writeJSON(w, http.StatusOK, map[string]any{"messages": out})
		return
	}

	code := strings.TrimSpace(r.URL.Query().Get("presetRoleCode"))
	if code == "" {
		writeError(w, http.StatusBadRequest, "presetRoleCode is required")
		return
	}
	persona, err := s.store.GetPersonaByCode(r.Context(), code, false)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	sessions, err := s.store.ListSessions(r.Context(), userID, persona.ID, sessionListLimit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	out := make([]sessionPayload, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, toSessionPayload(sess))
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": out})
}

// handleCreateSession explicitly opens a session for a persona.
func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request, userID string) {
	var body createSessionRequest
	if !decodeJSON(w, r, &body) {
		return
	}
	if strings.TrimSpace(body.PresetRoleCode) == "" {
		writeError(w, http.StatusBadRequest, "presetRoleCode is required")
		return
	}

	sess, err := s.orch.StartSession(r.Context(), userID, body.PresetRoleCode, body.InitialContext)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"session": toSessionPayload(sess)})
}

// handleRestart deliberately opens a fresh context window. The old
// session and its messages stay readable.
func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request, userID string) {
	var body createSessionRequest
	if !decodeJSON(w, r, &body) {
		return
	}
	if strings.TrimSpace(body.PresetRoleCode) == "" {
		writeError(w, http.StatusBadRequest, "presetRoleCode is required")
		return
	}

	sess, err := s.orch.Restart(r.Context(), userID, body.PresetRoleCode, body.InitialContext)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session": toSessionPayload(sess)})
}

// decodeJSON reads a bounded JSON body, answering 400 on malformed
// input.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodySize)).Decode(v)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, "request body is not valid JSON")
		return false
	}
	return true
}
