package modality

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/parley-dev/parley/internal/llm/provider"
)

func TestKeywordStrategy(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantImage bool
	}{
		{"chinese photo request", "给我看张照片", true},
		{"english photo request", "send me a photo", true},
		{"case insensitive", "Can you DRAW something?", true},
		{"what do you look like", "你长什么样", true},
		{"plain chat", "how was your day", false},
		{"empty input", "", false},
	}

	s := NewKeywordStrategy()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := s.Decide(context.Background(), Input{UserInput: tt.input})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.wantImage {
				if d == nil || !d.UseImage {
					t.Fatalf("expected forced image decision, got %+v", d)
				}
				if !strings.Contains(d.ImagePrompt, tt.input) {
					t.Errorf("prompt should embed the user input, got %q", d.ImagePrompt)
				}
			} else if d != nil {
				t.Errorf("expected no opinion, got %+v", d)
			}
		})
	}
}

func TestModelStrategy_Decision(t *testing.T) {
	mock := provider.NewMockProvider("mock")
	mock.StructuredResponses = []*provider.StructuredResponse{
		{Data: json.RawMessage(`{"useImage": true, "imagePrompt": " a red fox, watercolor "}`)},
	}

	s := NewModelStrategy(mock, "test-model")
	d, err := s.Decide(context.Background(), Input{UserInput: "something visual", CandidateText: "here you go"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !d.UseImage {
		t.Error("expected useImage=true")
	}
	if d.ImagePrompt != "a red fox, watercolor" {
		t.Errorf("expected trimmed prompt, got %q", d.ImagePrompt)
	}
	if len(mock.StructuredCalls) != 1 {
		t.Fatalf("expected 1 structured call, got %d", len(mock.StructuredCalls))
	}
	if mock.StructuredCalls[0].Temperature != 0 {
		t.Errorf("decision call must run at temperature 0, got %v", mock.StructuredCalls[0].Temperature)
	}
}

func TestModelStrategy_ParseFailureStaysText(t *testing.T) {
	mock := provider.NewMockProvider("mock")
	mock.StructuredResponses = []*provider.StructuredResponse{
		{Data: json.RawMessage(`not json at all`)},
	}

	s := NewModelStrategy(mock, "test-model")
	d, err := s.Decide(context.Background(), Input{UserInput: "hmm"})
	if err != nil {
		t.Fatalf("parse failure must not be an error: %v", err)
	}
	if d == nil || d.UseImage {
		t.Errorf("parse failure must resolve to text, got %+v", d)
	}
}

func TestChain_KeywordSkipsModel(t *testing.T) {
	mock := provider.NewMockProvider("mock")
	chain := NewChain(NewKeywordStrategy(), NewModelStrategy(mock, "test-model"))

	d := chain.Decide(context.Background(), Input{UserInput: "给我看张照片"})
	if !d.UseImage {
		t.Error("keyword input must force an image")
	}
	if len(mock.StructuredCalls) != 0 {
		t.Errorf("keyword match must not touch the provider, got %d calls", len(mock.StructuredCalls))
	}
}

func TestChain_ProviderErrorStaysText(t *testing.T) {
	mock := provider.NewMockProvider("mock")
	mock.StructuredErr = errors.New("upstream down")
	chain := NewChain(NewKeywordStrategy(), NewModelStrategy(mock, "test-model"))

	d := chain.Decide(context.Background(), Input{UserInput: "tell me a story"})
	if d.UseImage {
		t.Error("failed chain must resolve to text")
	}
}
