package httpapi

import (
	"crypto/subtle"
	"net/http"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/parley-dev/parley/internal/chat"
)

var (
	personaCodePattern = regexp.MustCompile(`^[a-z0-9-]{2,64}$`)
	whitespaceRun      = regexp.MustCompile(`\s+`)
)

type presetPayload struct {
	ID          string `json:"id"`
	Code        string `json:"code"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type createPresetRequest struct {
	Code         string `json:"code"`
	Name         string `json:"name"`
	Description  string `json:"description,omitempty"`
	SystemPrompt string `json:"systemPrompt"`
	IsActive     *bool  `json:"isActive,omitempty"`
}

// handleListPresets returns the active personas. Public, no auth.
func (s *Server) handleListPresets(w http.ResponseWriter, r *http.Request) {
	personas, err := s.store.ListPersonas(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	out := make([]presetPayload, 0, len(personas))
	for _, p := range personas {
		out = append(out, presetPayload{
			ID: p.ID, Code: p.Code, Name: p.Name, Description: p.Description,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"presets": out})
}

// normalizePersonaCode lowercases and dashes a requested code.
func normalizePersonaCode(code string) string {
	return whitespaceRun.ReplaceAllString(strings.ToLower(strings.TrimSpace(code)), "-")
}

// handleCreatePreset creates a persona. Guarded by the shared
// internal API key header, not user auth.
func (s *Server) handleCreatePreset(w http.ResponseWriter, r *http.Request) {
	if s.internalKey == "" {
		writeError(w, http.StatusInternalServerError, "internal API key not configured")
		return
	}
	provided := strings.TrimSpace(r.Header.Get("x-internal-api-key"))
	if subtle.ConstantTimeCompare([]byte(provided), []byte(s.internalKey)) != 1 {
		writeError(w, http.StatusUnauthorized, "invalid internal API key")
		return
	}

	var body createPresetRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	code := normalizePersonaCode(body.Code)
	name := strings.TrimSpace(body.Name)
	systemPrompt := strings.TrimSpace(body.SystemPrompt)

	if !personaCodePattern.MatchString(code) {
		writeError(w, http.StatusBadRequest, "code must be 2-64 lowercase letters, digits or dashes")
		return
	}
	if n := utf8.RuneCountInString(name); n < 2 || n > 100 {
		writeError(w, http.StatusBadRequest, "name must be 2-100 characters")
		return
	}
	if systemPrompt == "" {
		writeError(w, http.StatusBadRequest, "systemPrompt is required")
		return
	}

	active := true
	if body.IsActive != nil {
		active = *body.IsActive
	}

	persona, err := s.store.CreatePersona(r.Context(), &chat.Persona{
		Code:         code,
		Name:         name,
		Description:  strings.TrimSpace(body.Description),
		SystemPrompt: systemPrompt,
		Active:       active,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"preset": map[string]any{
			"id":          persona.ID,
			"code":        persona.Code,
			"name":        persona.Name,
			"description": persona.Description,
			"isActive":    persona.Active,
		},
	})
}
