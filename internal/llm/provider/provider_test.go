package provider

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"strings"
	"testing"
)

func TestRegistryFactory(t *testing.T) {
	r := NewRegistry()
	r.RegisterFactory("scripted", func(cfg Config) (Provider, error) {
		if cfg.APIKey == "" {
			return nil, errors.New("api key required")
		}
		return NewMockProvider("scripted"), nil
	})

	p, err := r.New("scripted", Config{APIKey: "k"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.Name() != "scripted" {
		t.Fatalf("name = %q, want %q", p.Name(), "scripted")
	}

	if _, err := r.New("scripted", Config{}); err == nil {
		t.Fatal("expected factory error for missing api key")
	}
	if _, err := r.New("unknown", Config{}); err == nil {
		t.Fatal("expected error for unregistered provider")
	}
}

func TestRegistryInstances(t *testing.T) {
	r := NewRegistry()
	mock := NewMockProvider("inst")
	r.Register("inst", mock)

	got, err := r.Get("inst")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != Provider(mock) {
		t.Fatal("Get returned a different instance")
	}
	if _, err := r.Get("missing"); err == nil {
		t.Fatal("expected error for missing instance")
	}
}

func TestGlobalFactoriesRegistered(t *testing.T) {
	names := List()
	want := map[string]bool{"openai": false, "gemini": false}
	for _, n := range names {
		if _, ok := want[n]; ok {
			want[n] = true
		}
	}
	for name, seen := range want {
		if !seen {
			t.Errorf("factory %q not registered globally", name)
		}
	}
}

func TestProviderErrorRetryable(t *testing.T) {
	tests := []struct {
		code      string
		retryable bool
	}{
		{ErrorCodeRateLimit, true},
		{ErrorCodeServerError, true},
		{ErrorCodeTimeout, true},
		{ErrorCodeInvalidRequest, false},
		{ErrorCodeAuthentication, false},
		{ErrorCodeContentFiltered, false},
		{ErrorCodeUnknown, false},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := NewProviderError("openai", tt.code, "boom", nil)
			if err.IsRetryable != tt.retryable {
				t.Fatalf("IsRetryable = %v, want %v", err.IsRetryable, tt.retryable)
			}
		})
	}
}

func TestProviderErrorUnwrap(t *testing.T) {
	inner := errors.New("connection reset")
	err := NewProviderError("gemini", ErrorCodeServerError, "upstream failed", inner)
	if !errors.Is(err, inner) {
		t.Fatal("expected errors.Is to reach the original error")
	}

	var pe *ProviderError
	if !errors.As(error(err), &pe) {
		t.Fatal("expected errors.As to match *ProviderError")
	}
	if pe.Code != ErrorCodeServerError {
		t.Fatalf("code = %q, want %q", pe.Code, ErrorCodeServerError)
	}
}

func TestMockStreamDrain(t *testing.T) {
	m := NewMockProvider("mock")
	m.StreamChunks = [][]*StreamChunk{
		{{Delta: "Hello"}, {Delta: " world"}},
	}

	stream, err := m.CreateStreaming(context.Background(), CompletionRequest{Model: "m"})
	if err != nil {
		t.Fatalf("CreateStreaming: %v", err)
	}
	defer stream.Close()

	var out string
	for {
		chunk, err := stream.Recv()
		if chunk != nil {
			out += chunk.Delta
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Recv: %v", err)
		}
	}
	if out != "Hello world" {
		t.Fatalf("accumulated = %q, want %q", out, "Hello world")
	}
}

func TestOpenAITemperatureReachesWire(t *testing.T) {
	p := NewOpenAIProviderWithClient(nil)

	// A literal 0 would be dropped by the SDK's omitempty tag; the
	// request must carry the smallest nonzero float instead.
	req := p.buildRequest(CompletionRequest{Model: "m", Temperature: 0}, false)
	if req.Temperature != math.SmallestNonzeroFloat32 {
		t.Fatalf("temperature 0 mapped to %v, want math.SmallestNonzeroFloat32", req.Temperature)
	}
	body, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(body), `"temperature"`) {
		t.Fatalf("temperature missing from wire request: %s", body)
	}

	req = p.buildRequest(CompletionRequest{Model: "m", Temperature: 0.7}, false)
	if req.Temperature != float32(0.7) {
		t.Fatalf("temperature = %v, want 0.7", req.Temperature)
	}
}

func TestGeminiTemperatureAlwaysSet(t *testing.T) {
	p := &GeminiProvider{}

	_, cfg := p.buildRequest(CompletionRequest{
		Messages:    []Message{{Role: "user", Content: "hi"}},
		Temperature: 0,
	})
	if cfg.Temperature == nil {
		t.Fatal("temperature 0 was dropped from the request config")
	}
	if *cfg.Temperature != 0 {
		t.Fatalf("temperature = %v, want 0", *cfg.Temperature)
	}

	_, cfg = p.buildRequest(CompletionRequest{
		Messages:    []Message{{Role: "user", Content: "hi"}},
		Temperature: 0.7,
	})
	if cfg.Temperature == nil || *cfg.Temperature != float32(0.7) {
		t.Fatalf("temperature = %v, want 0.7", cfg.Temperature)
	}
}

func TestMockStreamError(t *testing.T) {
	streamErr := errors.New("upstream dropped")
	stream := NewMockStream([]*StreamChunk{{Delta: "partial"}}, streamErr)

	chunk, err := stream.Recv()
	if err != nil || chunk.Delta != "partial" {
		t.Fatalf("first Recv = (%+v, %v)", chunk, err)
	}
	if _, err := stream.Recv(); !errors.Is(err, streamErr) {
		t.Fatalf("err = %v, want scripted stream error", err)
	}
}
