package image

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"github.com/parley-dev/parley/internal/llm/provider"
)

func TestNormalizeModelName(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"", "sd3.5-large"},
		{"sd3.5-large", "sd3.5-large"},
		{"SD3.5-Large-Turbo", "sd3.5-large-turbo"},
		{"sd-3.5-medium", "sd3.5-medium"},
		{"sd_3.5 flash", "sd3.5-flash"},
		{"sd3-5-large", "sd3.5-large"},
		{"dall-e-3", "sd3.5-large"},
	}
	for _, tt := range tests {
		if got := NormalizeModelName(tt.raw); got != tt.want {
			t.Errorf("NormalizeModelName(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestPromptNormalizer(t *testing.T) {
	t.Run("empty prompt gets stock prompt", func(t *testing.T) {
		n := NewPromptNormalizer(nil, "")
		if got := n.Normalize(context.Background(), "   "); got != stockPrompt {
			t.Errorf("got %q", got)
		}
	})

	t.Run("ascii prompt passes through", func(t *testing.T) {
		n := NewPromptNormalizer(nil, "")
		if got := n.Normalize(context.Background(), " a red fox "); got != "a red fox" {
			t.Errorf("got %q", got)
		}
	})

	t.Run("non-ascii prompt is translated", func(t *testing.T) {
		mock := provider.NewMockProvider("mock")
		mock.CompletionResponses = []*provider.CompletionResponse{
			{Content: "a red fox in watercolor style"},
		}
		n := NewPromptNormalizer(mock, "test-model")
		got := n.Normalize(context.Background(), "一只水彩风格的红色狐狸")
		if got != "a red fox in watercolor style" {
			t.Errorf("got %q", got)
		}
		if len(mock.CompletionCalls) != 1 {
			t.Fatalf("expected 1 translation call, got %d", len(mock.CompletionCalls))
		}
		if mock.CompletionCalls[0].Temperature != 0 {
			t.Errorf("translation must run at temperature 0")
		}
	})

	t.Run("translation failure falls back", func(t *testing.T) {
		mock := provider.NewMockProvider("mock")
		mock.CompletionErr = errors.New("down")
		n := NewPromptNormalizer(mock, "test-model")
		if got := n.Normalize(context.Background(), "一只狐狸"); got != fallbackPrompt {
			t.Errorf("got %q", got)
		}
	})
}

func TestStabilityGenerate(t *testing.T) {
	png := []byte{0x89, 'P', 'N', 'G'}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("unexpected auth header %q", got)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parsing form: %v", err)
		}
		if got := r.FormValue("prompt"); got != "a red fox" {
			t.Errorf("unexpected prompt %q", got)
		}
		if got := r.FormValue("model"); got != "sd3.5-large" {
			t.Errorf("unexpected model %q", got)
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(png)
	}))
	defer srv.Close()

	client, err := NewStabilityClient(StabilityConfig{APIKey: "sk-test", Endpoint: srv.URL})
	if err != nil {
		t.Fatalf("creating client: %v", err)
	}

	art, err := client.Generate(context.Background(), "a red fox")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(art.Data) != string(png) {
		t.Error("image bytes mismatch")
	}
	if art.MimeType != "image/png" || art.Ext != "png" {
		t.Errorf("unexpected artifact meta: %s %s", art.MimeType, art.Ext)
	}
}

func TestStabilityGenerate_Error(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		http.Error(w, `{"errors":["invalid prompt"]}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	client, err := NewStabilityClient(StabilityConfig{APIKey: "sk-test", Endpoint: srv.URL})
	if err != nil {
		t.Fatalf("creating client: %v", err)
	}
	if _, err := client.Generate(context.Background(), "x"); err == nil {
		t.Error("expected error for 400 response")
	}
}

type fakeInvoker struct {
	out *bedrockruntime.InvokeModelOutput
	err error
}

func (f *fakeInvoker) InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error) {
	return f.out, f.err
}

func TestBedrockGenerate(t *testing.T) {
	img := []byte("img-bytes")
	body, _ := json.Marshal(map[string]any{
		"images":         []string{base64.StdEncoding.EncodeToString(img)},
		"finish_reasons": []string{""},
	})

	client := newBedrockClient(
		BedrockConfig{ModelID: "stability.sd3-5-large-v1:0"},
		&fakeInvoker{out: &bedrockruntime.InvokeModelOutput{Body: body}},
	)

	art, err := client.Generate(context.Background(), "a red fox")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(art.Data) != string(img) {
		t.Error("image bytes mismatch")
	}
}

func TestBedrockGenerate_Filtered(t *testing.T) {
	body, _ := json.Marshal(map[string]any{
		"images":         []string{},
		"finish_reasons": []string{"Filter reason: prompt"},
	})
	client := newBedrockClient(
		BedrockConfig{ModelID: "stability.sd3-5-large-v1:0"},
		&fakeInvoker{out: &bedrockruntime.InvokeModelOutput{Body: body}},
	)
	if _, err := client.Generate(context.Background(), "x"); err == nil {
		t.Error("expected error for filtered generation")
	}
}
