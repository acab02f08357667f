package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"

	openai "github.com/sashabaranov/go-openai"
)

func init() {
	RegisterFactory("openai", func(cfg Config) (Provider, error) {
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("openai api key is required")
		}
		return NewOpenAIProvider(cfg.APIKey, cfg.BaseURL), nil
	})
}

// OpenAIClient is the subset of the SDK client we use. Interface kept
// narrow for testability.
type OpenAIClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
	CreateChatCompletionStream(ctx context.Context, req openai.ChatCompletionRequest) (*openai.ChatCompletionStream, error)
}

// OpenAIProvider implements Provider on the OpenAI chat completions API
type OpenAIProvider struct {
	client OpenAIClient
}

// NewOpenAIProvider creates a new OpenAI provider
func NewOpenAIProvider(apiKey, baseURL string) *OpenAIProvider {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &OpenAIProvider{client: openai.NewClientWithConfig(config)}
}

// NewOpenAIProviderWithClient creates a provider with a custom client (useful for testing)
func NewOpenAIProviderWithClient(client OpenAIClient) *OpenAIProvider {
	return &OpenAIProvider{client: client}
}

// Name returns the provider name
func (p *OpenAIProvider) Name() string {
	return "openai"
}

// CreateCompletion creates a completion
func (p *OpenAIProvider) CreateCompletion(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	resp, err := p.client.CreateChatCompletion(ctx, p.buildRequest(req, false))
	if err != nil {
		return nil, mapOpenAIError(err)
	}
	return parseOpenAIResponse(&resp)
}

// CreateStructured creates a structured response
func (p *OpenAIProvider) CreateStructured(ctx context.Context, req StructuredRequest) (*StructuredResponse, error) {
	oReq := p.buildRequest(req.CompletionRequest, false)

	if len(req.ResponseSchema) > 0 {
		oReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   "response",
				Strict: req.StrictSchema,
				Schema: req.ResponseSchema,
			},
		}
	} else {
		oReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := p.client.CreateChatCompletion(ctx, oReq)
	if err != nil {
		return nil, mapOpenAIError(err)
	}
	compResp, err := parseOpenAIResponse(&resp)
	if err != nil {
		return nil, err
	}
	return &StructuredResponse{
		Data:               json.RawMessage(compResp.Content),
		CompletionResponse: *compResp,
	}, nil
}

// CreateStreaming creates a streaming response
func (p *OpenAIProvider) CreateStreaming(ctx context.Context, req CompletionRequest) (Stream, error) {
	stream, err := p.client.CreateChatCompletionStream(ctx, p.buildRequest(req, true))
	if err != nil {
		return nil, mapOpenAIError(err)
	}
	return &openaiStream{stream: stream}, nil
}

func (p *OpenAIProvider) buildRequest(req CompletionRequest, stream bool) openai.ChatCompletionRequest {
	messages := make([]openai.ChatCompletionMessage, len(req.Messages))
	for i, m := range req.Messages {
		messages[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}
	// The SDK's Temperature field is omitempty, so a literal 0 never
	// reaches the wire and the API falls back to its default. The SDK's
	// convention for requesting 0 is the smallest nonzero float.
	temp := float32(req.Temperature)
	if req.Temperature == 0 {
		temp = math.SmallestNonzeroFloat32
	}
	return openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    messages,
		Temperature: temp,
		MaxTokens:   req.MaxTokens,
		Stream:      stream,
	}
}

func parseOpenAIResponse(resp *openai.ChatCompletionResponse) (*CompletionResponse, error) {
	if len(resp.Choices) == 0 {
		return nil, NewProviderError("openai", ErrorCodeUnknown, "no choices in response", nil)
	}
	choice := resp.Choices[0]
	return &CompletionResponse{
		Content:      choice.Message.Content,
		FinishReason: string(choice.FinishReason),
		Usage: Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}

func mapOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		code := ErrorCodeUnknown
		switch apiErr.HTTPStatusCode {
		case http.StatusUnauthorized:
			code = ErrorCodeAuthentication
		case http.StatusTooManyRequests:
			code = ErrorCodeRateLimit
		case http.StatusBadRequest:
			code = ErrorCodeInvalidRequest
		case http.StatusNotFound:
			code = ErrorCodeModelNotFound
		default:
			if apiErr.HTTPStatusCode >= 500 {
				code = ErrorCodeServerError
			}
		}
		pe := NewProviderError("openai", code, apiErr.Message, err)
		pe.StatusCode = apiErr.HTTPStatusCode
		return pe
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewProviderError("openai", ErrorCodeTimeout, err.Error(), err)
	}
	return NewProviderError("openai", ErrorCodeUnknown, err.Error(), err)
}

// openaiStream adapts the SDK stream to Stream
type openaiStream struct {
	stream *openai.ChatCompletionStream
}

func (s *openaiStream) Recv() (*StreamChunk, error) {
	resp, err := s.stream.Recv()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return &StreamChunk{FinishReason: "stop"}, io.EOF
		}
		return nil, mapOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return &StreamChunk{}, nil
	}
	choice := resp.Choices[0]
	return &StreamChunk{
		Delta:        choice.Delta.Content,
		FinishReason: string(choice.FinishReason),
	}, nil
}

func (s *openaiStream) Close() error {
	return s.stream.Close()
}
