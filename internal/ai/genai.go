package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"google.golang.org/genai"

	"github.com/missionlens/missionlens/pkg/models"
)

// newGenAIClient builds a Gemini API client with the shared defaulting
// rules for key, project, and location.
func newGenAIClient(ctx context.Context, config *ClientConfig) (*genai.Client, error) {
	if config.Location == "" && strings.TrimSpace(config.APIKey) == "" {
		config.Location = "us-central1"
	}

	cc := genai.ClientConfig{
		Backend: genai.BackendVertexAI,
	}
	if strings.TrimSpace(config.APIKey) != "" {
		cc.APIKey = config.APIKey
	}
	if strings.TrimSpace(config.ProjectID) != "" {
		cc.Project = config.ProjectID
	}
	if strings.TrimSpace(config.Location) != "" {
		cc.Location = config.Location
	}

	client, err := genai.NewClient(ctx, &cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return client, nil
}

// GenAIEmbedder produces embeddings via the Google Gemini API.
type GenAIEmbedder struct {
	config *ClientConfig
	client *genai.Client
}

// NewGenAIEmbedder creates a new embedding client for the Gemini API.
func NewGenAIEmbedder(ctx context.Context, config *ClientConfig) (*GenAIEmbedder, error) {
	if config == nil {
		return nil, errors.New("config cannot be nil")
	}

	if config.EmbedModel == "" {
		config.EmbedModel = "text-embedding-005"
	}
	if config.Dim == 0 {
		config.Dim = 768
	}

	client, err := newGenAIClient(ctx, config)
	if err != nil {
		return nil, err
	}
	return &GenAIEmbedder{config: config, client: client}, nil
}

// Embed implements the embedding functionality using the Gemini API
func (c *GenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	cfg := genai.EmbedContentConfig{
		TaskType: "RETRIEVAL_DOCUMENT",
	}

	out := make([][]float32, 0, len(texts))
	for _, text := range texts {
		res, err := c.client.Models.EmbedContent(ctx, c.config.EmbedModel, genai.Text(text), &cfg)
		if err != nil {
			return nil, fmt.Errorf("embedding failed: %w", err)
		}
		if res == nil || len(res.Embeddings) == 0 {
			return nil, errors.New("no embedding returned")
		}
		out = append(out, res.Embeddings[0].Values)
	}
	return out, nil
}

// Dim returns the embedding dimension
func (c *GenAIEmbedder) Dim() int { return c.config.Dim }

// GenAIGenerator runs text generation via the Google Gemini API. Like
// ChatClient it never returns an error: failures degrade into a
// placeholder result the pipeline can carry forward.
type GenAIGenerator struct {
	config *ClientConfig
	client *genai.Client

	mu            sync.Mutex
	totalTokens   int
	totalRequests int
}

// NewGenAIGenerator creates a new generation client for the Gemini API.
func NewGenAIGenerator(ctx context.Context, config *ClientConfig) (*GenAIGenerator, error) {
	if config == nil {
		return nil, errors.New("config cannot be nil")
	}

	if config.GenModel == "" {
		config.GenModel = "gemini-2.0-flash"
	}

	client, err := newGenAIClient(ctx, config)
	if err != nil {
		return nil, err
	}
	return &GenAIGenerator{config: config, client: client}, nil
}

// Generate sends one generation request and returns the result. Failed
// calls still consume the estimated input tokens.
func (c *GenAIGenerator) Generate(ctx context.Context, prompt string, opts GenOptions) models.GenerationResult {
	inputEstimate := estimateTokens(prompt)

	temp := float32(opts.Temperature)
	cfg := genai.GenerateContentConfig{
		Temperature:     &temp,
		MaxOutputTokens: int32(opts.MaxTokens),
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.config.GenModel, genai.Text(prompt), &cfg)
	if err != nil {
		return c.degraded(inputEstimate, err.Error())
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return c.degraded(inputEstimate, "no candidates in response")
	}

	text := strings.TrimSpace(string(resp.Candidates[0].Content.Parts[0].Text))

	// Prefer exact usage from the service, fall back to estimates.
	inputTokens := inputEstimate
	outputTokens := estimateTokens(text)
	if resp.UsageMetadata != nil {
		if resp.UsageMetadata.PromptTokenCount > 0 {
			inputTokens = int(resp.UsageMetadata.PromptTokenCount)
		}
		if resp.UsageMetadata.CandidatesTokenCount > 0 {
			outputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
		}
	}

	c.record(inputTokens + outputTokens)
	return models.GenerationResult{
		Text:         text,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		Model:        c.config.GenModel,
	}
}

func (c *GenAIGenerator) degraded(inputTokens int, reason string) models.GenerationResult {
	c.record(inputTokens)
	return models.GenerationResult{
		Text:        fmt.Sprintf("[AI generation failed: %s]", reason),
		InputTokens: inputTokens,
		Model:       c.config.GenModel,
		Err:         reason,
	}
}

func (c *GenAIGenerator) record(tokens int) {
	c.mu.Lock()
	c.totalTokens += tokens
	c.totalRequests++
	c.mu.Unlock()
}

func (c *GenAIGenerator) Model() string { return c.config.GenModel }

// Stats returns running usage counters.
func (c *GenAIGenerator) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		TotalTokens:   c.totalTokens,
		TotalRequests: c.totalRequests,
		Model:         c.config.GenModel,
	}
}
