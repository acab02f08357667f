package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/parley-dev/parley/internal/orchestrator"
)

// sseEvent is the wire shape of one streamed event.
type sseEvent struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId,omitempty"`
	Content   string `json:"content,omitempty"`
	Error     string `json:"error,omitempty"`
}

// sseWriter frames events as server-sent `data:` lines and flushes
// after each one.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// newSSEWriter prepares the response for event streaming. It fails if
// the underlying writer cannot flush incrementally.
func newSSEWriter(w http.ResponseWriter) (*sseWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support streaming")
	}
	w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache, no-transform")
	w.Header().Set("Connection", "keep-alive")
	return &sseWriter{w: w, flusher: flusher}, nil
}

// WriteEvent encodes one orchestrator event on the wire.
func (s *sseWriter) WriteEvent(ev orchestrator.Event) error {
	var payload sseEvent
	switch e := ev.(type) {
	case orchestrator.SessionEvent:
		payload = sseEvent{Type: "session", SessionID: e.SessionID}
	case orchestrator.TokenEvent:
		payload = sseEvent{Type: "token", Content: e.Content}
	case orchestrator.DoneEvent:
		payload = sseEvent{Type: "done"}
	case orchestrator.ErrorEvent:
		payload = sseEvent{Type: "error", Error: e.Err.Error()}
	default:
		return fmt.Errorf("unknown event type %T", ev)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}
