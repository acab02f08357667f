package httpapi

import (
	"net/http"
	"strings"

	"github.com/parley-dev/parley/internal/chat"
	"github.com/parley-dev/parley/internal/observability"
	"github.com/parley-dev/parley/internal/orchestrator"
	pkgobs "github.com/parley-dev/parley/pkg/observability"
)

type chatRequest struct {
	PresetRoleCode  string `json:"presetRoleCode"`
	SessionID       string `json:"sessionId,omitempty"`
	Content         string `json:"content"`
	InitialContext  string `json:"initialContext,omitempty"`
	ResponseMode    string `json:"responseMode,omitempty"`
	AllowImageReply bool   `json:"allowImageReply,omitempty"`
}

type mediaPayload struct {
	URL      string `json:"url"`
	MimeType string `json:"mimeType"`
}

type oneShotResponse struct {
	Type      string        `json:"type"`
	SessionID string        `json:"sessionId"`
	Content   string        `json:"content"`
	Audio     *mediaPayload `json:"audio,omitempty"`
	Image     *mediaPayload `json:"image,omitempty"`
}

// handleChat runs one turn. Image-eligible and audio turns return a
// single JSON object; everything else streams SSE events.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request, userID string) {
	var body chatRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	req := orchestrator.TurnRequest{
		UserID:          userID,
		PersonaCode:     strings.TrimSpace(body.PresetRoleCode),
		SessionID:       strings.TrimSpace(body.SessionID),
		Content:         strings.TrimSpace(body.Content),
		InitialContext:  body.InitialContext,
		ResponseMode:    body.ResponseMode,
		AllowImageReply: body.AllowImageReply,
	}
	if req.ResponseMode == "" {
		req.ResponseMode = "text"
	}
	if err := req.Validate(); err != nil {
		writeDomainError(w, err)
		return
	}

	if req.AllowImageReply || req.ResponseMode == "audio" {
		s.handleOneShot(w, r, req)
		return
	}
	s.handleStream(w, r, req)
}

func (s *Server) handleOneShot(w http.ResponseWriter, r *http.Request, req orchestrator.TurnRequest) {
	result, err := s.orch.CompleteTurn(r.Context(), req)
	if err != nil {
		observability.LoggerFromContext(r.Context()).Error("turn failed", "error", err)
		writeDomainError(w, err)
		return
	}

	resp := oneShotResponse{
		Type:      string(result.Type),
		SessionID: result.SessionID,
		Content:   result.Content,
	}
	switch result.Type {
	case chat.MessageTypeAudio:
		resp.Audio = &mediaPayload{URL: result.MediaURL, MimeType: result.MediaMimeType}
	case chat.MessageTypeImage:
		resp.Image = &mediaPayload{URL: result.MediaURL, MimeType: result.MediaMimeType}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request, req orchestrator.TurnRequest) {
	_, events, err := s.orch.StreamTurn(r.Context(), req)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	sse, err := newSSEWriter(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	pkgobs.IncActiveStreams()
	defer pkgobs.DecActiveStreams()

	for ev := range events {
		if err := sse.WriteEvent(ev); err != nil {
			// Client went away; the orchestrator notices via context
			// cancellation. Keep draining so the channel closes.
			observability.LoggerFromContext(r.Context()).Debug("stream write failed", "error", err)
		}
	}
}
