// Package image generates picture replies from text prompts.
package image

import (
	"context"
	"strings"

	"github.com/parley-dev/parley/internal/llm/provider"
	"github.com/parley-dev/parley/internal/observability"
)

// Artifact is a generated image.
type Artifact struct {
	Data     []byte
	MimeType string
	// Ext is the file extension without the dot, e.g. "png".
	Ext string
}

// Generator turns a prompt into an image.
type Generator interface {
	Generate(ctx context.Context, prompt string) (*Artifact, error)
}

const (
	stockPrompt    = "A high quality, detailed illustration with clean composition and soft lighting."
	fallbackPrompt = "A high quality, detailed illustration based on the user's request."

	translateSystemPrompt = "You are an image prompt translator for a text-to-image model. " +
		"Convert the user prompt into clear, natural English prompt text. Preserve intent, " +
		"entities, style and composition details. Output prompt text only."
)

// PromptNormalizer prepares prompts for image providers that expect
// English input. Non-ASCII prompts are translated via the text
// provider; translation failure falls back to a generic prompt rather
// than failing the turn.
type PromptNormalizer struct {
	provider provider.Provider
	model    string
}

// NewPromptNormalizer creates a prompt normalizer
func NewPromptNormalizer(p provider.Provider, model string) *PromptNormalizer {
	return &PromptNormalizer{provider: p, model: model}
}

// Normalize returns a generation-ready English prompt
func (n *PromptNormalizer) Normalize(ctx context.Context, prompt string) string {
	trimmed := strings.TrimSpace(prompt)
	if trimmed == "" {
		return stockPrompt
	}
	if isASCII(trimmed) {
		return trimmed
	}
	if n.provider == nil {
		return fallbackPrompt
	}

	res, err := n.provider.CreateCompletion(ctx, provider.CompletionRequest{
		Model: n.model,
		Messages: []provider.Message{
			{Role: "system", Content: translateSystemPrompt},
			{Role: "user", Content: trimmed},
		},
		Temperature: 0,
	})
	if err != nil {
		observability.LoggerFromContext(ctx).Warn("image prompt translation failed", "error", err)
		return fallbackPrompt
	}
	if translated := strings.TrimSpace(res.Content); translated != "" {
		return translated
	}
	return fallbackPrompt
}

func isASCII(s string) bool {
	for _, r := range s {
		if r > 127 {
			return false
		}
	}
	return true
}

// extForFormat maps an output format to a file extension.
func extForFormat(format string) string {
	if format == "jpeg" {
		return "jpg"
	}
	return format
}
