package modality

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/parley-dev/parley/internal/llm/provider"
)

// decisionSchema is the strict response schema for the structured
// classification call.
var decisionSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"useImage": {
			"type": "boolean",
			"description": "whether the reply should be an image"
		},
		"imagePrompt": {
			"type": "string",
			"description": "English prompt text for text-to-image generation"
		}
	},
	"required": ["useImage", "imagePrompt"],
	"additionalProperties": false
}`)

const decisionSystemPrompt = "You are a reply modality classifier deciding whether the " +
	"reply should be an image. Whenever the user expresses visual intent, such as asking " +
	"for an image, a photo, what you look like, an illustration, a poster or a cover, you " +
	"must set useImage=true. Even if the candidate text claims to have no photo, produce an " +
	"illustrative image matching the request instead. imagePrompt must be a prompt directly " +
	"usable for text-to-image generation, covering subject, style, composition, lighting " +
	"and quality."

// ModelStrategy asks the text provider, at temperature zero, whether
// the turn calls for an image. Unparseable output resolves to text;
// it is never an error surfaced to the caller.
type ModelStrategy struct {
	provider provider.Provider
	model    string
}

// NewModelStrategy creates the structured-output fallback strategy
func NewModelStrategy(p provider.Provider, model string) *ModelStrategy {
	return &ModelStrategy{provider: p, model: model}
}

// Name implements Strategy
func (s *ModelStrategy) Name() string { return "model" }

// Decide implements Strategy
func (s *ModelStrategy) Decide(ctx context.Context, in Input) (*Decision, error) {
	res, err := s.provider.CreateStructured(ctx, provider.StructuredRequest{
		CompletionRequest: provider.CompletionRequest{
			Model: s.model,
			Messages: []provider.Message{
				{Role: "system", Content: decisionSystemPrompt},
				{Role: "user", Content: fmt.Sprintf("User input: %s\nCandidate text reply: %s", in.UserInput, in.CandidateText)},
			},
			Temperature: 0,
		},
		ResponseSchema: decisionSchema,
		StrictSchema:   true,
	})
	if err != nil {
		return nil, fmt.Errorf("modality decision call: %w", err)
	}

	var d Decision
	if err := json.Unmarshal(res.Data, &d); err != nil {
		// Malformed classifier output stays in text.
		return &Decision{}, nil
	}
	d.ImagePrompt = strings.TrimSpace(d.ImagePrompt)
	return &d, nil
}
