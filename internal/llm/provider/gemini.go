package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"strings"

	"google.golang.org/genai"
)

func init() {
	RegisterFactory("gemini", func(cfg Config) (Provider, error) {
		return NewGeminiProvider(context.Background(), cfg)
	})
}

// GeminiProvider implements Provider on the Gemini API via the genai SDK.
// With Project/Location set it talks to Vertex AI, otherwise it uses an
// API key against the Gemini API.
type GeminiProvider struct {
	client *genai.Client
}

// NewGeminiProvider creates a new Gemini provider
func NewGeminiProvider(ctx context.Context, cfg Config) (*GeminiProvider, error) {
	cc := &genai.ClientConfig{}
	if cfg.Project != "" && cfg.Location != "" {
		cc.Project = cfg.Project
		cc.Location = cfg.Location
		cc.Backend = genai.BackendVertexAI
	} else {
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("gemini requires an api key or project/location")
		}
		cc.APIKey = cfg.APIKey
		cc.Backend = genai.BackendGeminiAPI
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}
	return &GeminiProvider{client: client}, nil
}

// Name returns the provider name
func (p *GeminiProvider) Name() string {
	return "gemini"
}

// CreateCompletion creates a completion
func (p *GeminiProvider) CreateCompletion(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	contents, cfg := p.buildRequest(req)

	res, err := p.client.Models.GenerateContent(ctx, req.Model, contents, cfg)
	if err != nil {
		return nil, NewProviderError("gemini", ErrorCodeServerError, err.Error(), err)
	}
	text := res.Text()
	return &CompletionResponse{Content: text, FinishReason: "stop"}, nil
}

// CreateStructured creates a structured response. Gemini is asked for
// JSON output and the schema rides along in the system instruction.
func (p *GeminiProvider) CreateStructured(ctx context.Context, req StructuredRequest) (*StructuredResponse, error) {
	contents, cfg := p.buildRequest(req.CompletionRequest)
	cfg.ResponseMIMEType = "application/json"
	if len(req.ResponseSchema) > 0 {
		schemaNote := genai.NewContentFromText(
			"Respond with JSON matching this schema exactly: "+string(req.ResponseSchema),
			genai.RoleUser,
		)
		if cfg.SystemInstruction == nil {
			cfg.SystemInstruction = schemaNote
		} else {
			contents = append(contents, schemaNote)
		}
	}

	res, err := p.client.Models.GenerateContent(ctx, req.Model, contents, cfg)
	if err != nil {
		return nil, NewProviderError("gemini", ErrorCodeServerError, err.Error(), err)
	}
	text := strings.TrimSpace(res.Text())
	return &StructuredResponse{
		Data:               json.RawMessage(text),
		CompletionResponse: CompletionResponse{Content: text, FinishReason: "stop"},
	}, nil
}

// CreateStreaming creates a streaming response
func (p *GeminiProvider) CreateStreaming(ctx context.Context, req CompletionRequest) (Stream, error) {
	contents, cfg := p.buildRequest(req)
	seq := p.client.Models.GenerateContentStream(ctx, req.Model, contents, cfg)
	next, stop := iter.Pull2(seq)
	return &geminiStream{next: next, stop: stop}, nil
}

func (p *GeminiProvider) buildRequest(req CompletionRequest) ([]*genai.Content, *genai.GenerateContentConfig) {
	cfg := &genai.GenerateContentConfig{}
	// Always forward the temperature; 0 is a deliberate setting for
	// the decision and translation calls, not an absent value.
	temp := float32(req.Temperature)
	cfg.Temperature = &temp
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}

	var contents []*genai.Content
	for _, m := range req.Messages {
		switch m.Role {
		case "system":
			// Gemini has no system role in contents; fold system
			// entries into the system instruction.
			if cfg.SystemInstruction == nil {
				cfg.SystemInstruction = genai.NewContentFromText(m.Content, genai.RoleUser)
			} else {
				contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
			}
		case "assistant":
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}
	return contents, cfg
}

// geminiStream adapts the SDK's push iterator to Stream
type geminiStream struct {
	next func() (*genai.GenerateContentResponse, error, bool)
	stop func()
}

func (s *geminiStream) Recv() (*StreamChunk, error) {
	res, err, ok := s.next()
	if !ok {
		return &StreamChunk{FinishReason: "stop"}, io.EOF
	}
	if err != nil {
		return nil, NewProviderError("gemini", ErrorCodeServerError, err.Error(), err)
	}
	return &StreamChunk{Delta: res.Text()}, nil
}

func (s *geminiStream) Close() error {
	s.stop()
	return nil
}
