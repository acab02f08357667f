package httpapi

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parley-dev/parley/internal/chat"
	"github.com/parley-dev/parley/internal/llm/provider"
	"github.com/parley-dev/parley/internal/media"
	"github.com/parley-dev/parley/internal/modality"
	"github.com/parley-dev/parley/internal/orchestrator"
	"github.com/parley-dev/parley/internal/store/memory"
)

type testEnv struct {
	store    *memory.Store
	provider *provider.MockProvider
	handler  http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	st := memory.New()
	mock := provider.NewMockProvider("mock")

	mediaStore, err := media.NewFileStore(t.TempDir(), "/media")
	require.NoError(t, err)

	orch := orchestrator.New(orchestrator.Deps{
		Store:    st,
		Provider: mock,
		Decider:  modality.NewChain(modality.NewKeywordStrategy()),
		Media:    mediaStore,
	}, orchestrator.Options{Model: "chat-model"})

	handler := NewServer(orch, st, StaticTokens{"tok-1": "u1"}, Options{
		InternalAPIKey: "internal-secret",
		Media:          mediaStore.Handler(),
		MediaBaseURL:   "/media",
	})
	return &testEnv{store: st, provider: mock, handler: handler}
}

func (e *testEnv) seedPersona(t *testing.T) *chat.Persona {
	t.Helper()
	p, err := e.store.CreatePersona(context.Background(), &chat.Persona{
		Code: "helper", Name: "Helper", SystemPrompt: "be helpful", Active: true,
	})
	require.NoError(t, err)
	return p
}

func (e *testEnv) do(method, path, token string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func TestChat_Unauthorized(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(http.MethodPost, "/api/chat", "", map[string]any{
		"presetRoleCode": "helper", "content": "hi",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestChat_StreamsSSE(t *testing.T) {
	env := newTestEnv(t)
	env.seedPersona(t)
	env.provider.StreamChunks = [][]*provider.StreamChunk{
		{{Delta: "Hello"}, {Delta: " world"}},
	}

	rec := env.do(http.MethodPost, "/api/chat", "tok-1", map[string]any{
		"presetRoleCode": "helper", "content": "hi",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/event-stream")

	var types []string
	var tokens []string
	scanner := bufio.NewScanner(rec.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev struct {
			Type      string `json:"type"`
			SessionID string `json:"sessionId"`
			Content   string `json:"content"`
		}
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev))
		types = append(types, ev.Type)
		if ev.Type == "token" {
			tokens = append(tokens, ev.Content)
		}
		if ev.Type == "session" {
			assert.NotEmpty(t, ev.SessionID)
		}
	}
	assert.Equal(t, []string{"session", "token", "token", "done"}, types)
	assert.Equal(t, "Hello world", strings.Join(tokens, ""))
}

func TestChat_UnknownPersona(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(http.MethodPost, "/api/chat", "tok-1", map[string]any{
		"presetRoleCode": "ghost", "content": "hi",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestChat_ValidationErrors(t *testing.T) {
	env := newTestEnv(t)
	env.seedPersona(t)

	rec := env.do(http.MethodPost, "/api/chat", "tok-1", map[string]any{
		"presetRoleCode": "helper",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(http.MethodPost, "/api/chat", "tok-1", map[string]any{
		"content": "hi",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChat_AudioModeOneShot(t *testing.T) {
	env := newTestEnv(t)
	env.seedPersona(t)
	env.provider.CompletionResponses = []*provider.CompletionResponse{
		{Content: "spoken reply"},
	}

	// No synthesizer wired: audio mode falls through to a one-shot
	// text response.
	rec := env.do(http.MethodPost, "/api/chat", "tok-1", map[string]any{
		"presetRoleCode": "helper", "content": "hi", "responseMode": "audio",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp oneShotResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "text", resp.Type)
	assert.Equal(t, "spoken reply", resp.Content)
	assert.NotEmpty(t, resp.SessionID)
}

func TestSessionsLifecycle(t *testing.T) {
	env := newTestEnv(t)
	env.seedPersona(t)

	// Explicit creation.
	rec := env.do(http.MethodPost, "/api/chat/sessions", "tok-1", map[string]any{
		"presetRoleCode": "helper", "initialContext": "trip planning",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var created struct {
		Session sessionPayload `json:"session"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "trip planning", created.Session.InitialContext)

	// Listing by persona.
	rec = env.do(http.MethodGet, "/api/chat/sessions?presetRoleCode=helper", "tok-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var listed struct {
		Sessions []sessionPayload `json:"sessions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	require.Len(t, listed.Sessions, 1)
	assert.Equal(t, created.Session.ID, listed.Sessions[0].ID)

	// Restart yields a new session.
	rec = env.do(http.MethodPost, "/api/chat/restart", "tok-1", map[string]any{
		"presetRoleCode": "helper",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var restarted struct {
		Session sessionPayload `json:"session"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &restarted))
	assert.NotEqual(t, created.Session.ID, restarted.Session.ID)

	// History of an empty session.
	rec = env.do(http.MethodGet, "/api/chat/sessions?sessionId="+created.Session.ID, "tok-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var history struct {
		Messages []clientMessage `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &history))
	assert.Empty(t, history.Messages)

	// Someone else's token cannot read it.
	handler := env.handler
	req := httptest.NewRequest(http.MethodGet, "/api/chat/sessions?sessionId="+created.Session.ID, nil)
	req.Header.Set("Authorization", "Bearer bad-token")
	rec2 := httptest.NewRecorder()
	handler.ServeHTTP(rec2, req)
	assert.Equal(t, http.StatusUnauthorized, rec2.Code)
}

func TestPresets(t *testing.T) {
	env := newTestEnv(t)

	createBody := map[string]any{
		"code": "  Story Teller ", "name": "Story Teller",
		"systemPrompt": "tell stories", "description": "narrative persona",
	}

	// Wrong internal key.
	req := httptest.NewRequest(http.MethodPost, "/api/internal/presets", jsonBody(t, createBody))
	req.Header.Set("x-internal-api-key", "wrong")
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Valid creation with code normalization.
	req = httptest.NewRequest(http.MethodPost, "/api/internal/presets", jsonBody(t, createBody))
	req.Header.Set("x-internal-api-key", "internal-secret")
	rec = httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	var created struct {
		Preset presetPayload `json:"preset"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "story-teller", created.Preset.Code)

	// Duplicate code conflicts.
	req = httptest.NewRequest(http.MethodPost, "/api/internal/presets", jsonBody(t, createBody))
	req.Header.Set("x-internal-api-key", "internal-secret")
	rec = httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusConflict, rec.Code)

	// Bad code rejected.
	req = httptest.NewRequest(http.MethodPost, "/api/internal/presets", jsonBody(t, map[string]any{
		"code": "X", "name": "Too short code", "systemPrompt": "p",
	}))
	req.Header.Set("x-internal-api-key", "internal-secret")
	rec = httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Public listing shows the active persona.
	rec = env.do(http.MethodGet, "/api/presets", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var listed struct {
		Presets []presetPayload `json:"presets"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	require.Len(t, listed.Presets, 1)
	assert.Equal(t, "story-teller", listed.Presets[0].Code)
}

func jsonBody(t *testing.T, v any) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(v))
	return &buf
}

func TestStaticTokens(t *testing.T) {
	auth := StaticTokens{"tok": "u1"}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer tok")
	user, err := auth.Authenticate(req)
	require.NoError(t, err)
	assert.Equal(t, "u1", user)

	req.Header.Set("Authorization", "Bearer nope")
	_, err = auth.Authenticate(req)
	assert.ErrorIs(t, err, ErrUnauthorized)

	req.Header.Del("Authorization")
	_, err = auth.Authenticate(req)
	assert.ErrorIs(t, err, ErrUnauthorized)
}
