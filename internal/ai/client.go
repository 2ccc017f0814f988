package ai

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/missionlens/missionlens/pkg/models"
)

// Generator sends a single text-generation request to an external model
// endpoint. It never returns an error: failures are folded into the
// GenerationResult so a pipeline stage can degrade instead of aborting.
type Generator interface {
	Generate(ctx context.Context, prompt string, opts GenOptions) models.GenerationResult
	Model() string
	Stats() Stats
}

// Embedder converts texts to fixed-dimension vectors.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dim() int
}

// GenOptions are per-call generation parameters.
type GenOptions struct {
	MaxTokens   int
	Temperature float64
}

// Stats holds running usage counters for external diagnostics.
type Stats struct {
	TotalTokens   int    `json:"total_tokens"`
	TotalRequests int    `json:"total_requests"`
	Model         string `json:"model"`
}

// Provider is enumeration of supported AI providers
type Provider string

const (
	ProviderOpenAI Provider = "openai"
	ProviderGoogle Provider = "google"
	ProviderStub   Provider = "stub"
)

// ClientConfig holds configuration for AI clients
type ClientConfig struct {
	Provider   Provider
	APIKey     string
	BaseURL    string
	GenModel   string
	EmbedModel string
	Dim        int
	ProjectID  string
	Location   string
}

// NewGenerator creates a generation client based on configuration.
func NewGenerator(config *ClientConfig) (Generator, error) {
	if config == nil {
		return nil, errors.New("client config is required")
	}
	switch config.Provider {
	case ProviderOpenAI:
		return NewChatClient(config), nil
	case ProviderGoogle:
		return NewGenAIGenerator(context.Background(), config)
	case ProviderStub:
		return NewStubGenerator(config.GenModel), nil
	default:
		return nil, errors.New("unsupported generation provider: " + string(config.Provider))
	}
}

// NewEmbedder creates an embedding client based on configuration.
func NewEmbedder(config *ClientConfig) (Embedder, error) {
	if config == nil {
		return nil, errors.New("client config is required")
	}
	switch config.Provider {
	case ProviderGoogle:
		return NewGenAIEmbedder(context.Background(), config)
	case ProviderStub, ProviderOpenAI:
		return NewStubEmbedder(config.Dim), nil
	default:
		return nil, errors.New("unsupported embedding provider: " + string(config.Provider))
	}
}

// StubGenerator is a deterministic Generator for testing.
type StubGenerator struct {
	model string

	mu    sync.Mutex
	stats Stats
}

// NewStubGenerator creates a new StubGenerator
func NewStubGenerator(model string) *StubGenerator {
	if model == "" {
		model = "stub-model"
	}
	return &StubGenerator{model: model}
}

// Generate returns the first sentence of the prompt as a canned reply.
func (s *StubGenerator) Generate(ctx context.Context, prompt string, opts GenOptions) models.GenerationResult {
	text := prompt
	if i := strings.Index(text, ". "); i > 0 {
		text = text[:i+1]
	}
	in := len(prompt) / 4
	out := len(text) / 4
	s.mu.Lock()
	s.stats.TotalTokens += in + out
	s.stats.TotalRequests++
	s.mu.Unlock()
	return models.GenerationResult{
		Text:         text,
		InputTokens:  in,
		OutputTokens: out,
		Model:        s.model,
	}
}

func (s *StubGenerator) Model() string { return s.model }

func (s *StubGenerator) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stats
	st.Model = s.model
	return st
}

// StubEmbedder produces deterministic character-histogram vectors, so
// similar texts land near each other without any remote model.
type StubEmbedder struct {
	dim int
}

// NewStubEmbedder creates a new StubEmbedder
func NewStubEmbedder(dim int) *StubEmbedder {
	if dim <= 0 {
		dim = 64
	}
	return &StubEmbedder{dim: dim}
}

// Embed implements the embedding functionality
func (s *StubEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v := make([]float32, s.dim)
		for _, r := range strings.ToLower(t) {
			v[int(r)%s.dim]++
		}
		if n := len(t); n > 0 {
			for j := range v {
				v[j] /= float32(n)
			}
		}
		out[i] = v
	}
	return out, nil
}

// Dim returns the embedding dimension
func (s *StubEmbedder) Dim() int { return s.dim }
