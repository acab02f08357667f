package provider

import (
	"context"
	"io"
	"sync"
)

// MockProvider is a scriptable provider for testing.
type MockProvider struct {
	name string
	mu   sync.Mutex

	// Responses to return, consumed in order; when exhausted a default
	// is returned.
	CompletionResponses []*CompletionResponse
	StructuredResponses []*StructuredResponse
	StreamChunks        [][]*StreamChunk

	// Errors returned before any scripted response is considered.
	CompletionErr error
	StructuredErr error
	StreamErr     error

	// Track calls
	CompletionCalls []CompletionRequest
	StructuredCalls []StructuredRequest
	StreamCalls     []CompletionRequest

	completionIdx int
	structuredIdx int
	streamIdx     int
}

// NewMockProvider creates a new mock provider
func NewMockProvider(name string) *MockProvider {
	return &MockProvider{name: name}
}

// Name implements Provider
func (m *MockProvider) Name() string { return m.name }

// CreateCompletion implements Provider
func (m *MockProvider) CreateCompletion(ctx context.Context, request CompletionRequest) (*CompletionResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CompletionCalls = append(m.CompletionCalls, request)
	if m.CompletionErr != nil {
		return nil, m.CompletionErr
	}
	if m.completionIdx < len(m.CompletionResponses) {
		resp := m.CompletionResponses[m.completionIdx]
		m.completionIdx++
		return resp, nil
	}
	return &CompletionResponse{Content: "mock response", FinishReason: "stop"}, nil
}

// CreateStructured implements Provider
func (m *MockProvider) CreateStructured(ctx context.Context, request StructuredRequest) (*StructuredResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.StructuredCalls = append(m.StructuredCalls, request)
	if m.StructuredErr != nil {
		return nil, m.StructuredErr
	}
	if m.structuredIdx < len(m.StructuredResponses) {
		resp := m.StructuredResponses[m.structuredIdx]
		m.structuredIdx++
		return resp, nil
	}
	return &StructuredResponse{Data: []byte(`{}`)}, nil
}

// CreateStreaming implements Provider
func (m *MockProvider) CreateStreaming(ctx context.Context, request CompletionRequest) (Stream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.StreamCalls = append(m.StreamCalls, request)
	if m.StreamErr != nil {
		return nil, m.StreamErr
	}
	var chunks []*StreamChunk
	if m.streamIdx < len(m.StreamChunks) {
		chunks = m.StreamChunks[m.streamIdx]
		m.streamIdx++
	}
	return &mockStream{chunks: chunks}, nil
}

type mockStream struct {
	chunks []*StreamChunk
	pos    int

	// Err, when set, is returned after the scripted chunks instead of EOF.
	Err error
}

// NewMockStream creates a standalone scripted stream.
func NewMockStream(chunks []*StreamChunk, err error) *mockStream {
	return &mockStream{chunks: chunks, Err: err}
}

func (s *mockStream) Recv() (*StreamChunk, error) {
	if s.pos < len(s.chunks) {
		chunk := s.chunks[s.pos]
		s.pos++
		return chunk, nil
	}
	if s.Err != nil {
		return nil, s.Err
	}
	return &StreamChunk{FinishReason: "stop"}, io.EOF
}

func (s *mockStream) Close() error { return nil }
