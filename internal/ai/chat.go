package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/missionlens/missionlens/pkg/models"
)

const (
	generateTimeout = 60 * time.Second
	probeTimeout    = 10 * time.Second
)

// ChatClient talks to an OpenAI-compatible chat-completions endpoint.
// Every call produces a GenerationResult; on failure the result carries
// a bracketed placeholder text and the error reason instead of raising,
// so the analysis pipeline can always continue with a degraded stage.
type ChatClient struct {
	config *ClientConfig
	http   *http.Client

	mu            sync.Mutex
	totalTokens   int
	totalRequests int
}

// NewChatClient creates a generation client for the configured endpoint.
func NewChatClient(config *ClientConfig) *ChatClient {
	if config.BaseURL == "" {
		config.BaseURL = "https://api.openai.com/v1"
	}
	if config.GenModel == "" {
		config.GenModel = "gpt-4o-mini"
	}
	return &ChatClient{
		config: config,
		http:   &http.Client{Timeout: generateTimeout},
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// estimateTokens approximates token count from characters. Used for
// cost accounting when the service does not report exact usage.
func estimateTokens(s string) int { return len(s) / 4 }

// Generate sends one chat-style request and returns the result.
// Failed calls still consume the estimated input tokens: the prompt was
// sent even if nothing came back.
func (c *ChatClient) Generate(ctx context.Context, prompt string, opts GenOptions) models.GenerationResult {
	inputEstimate := estimateTokens(prompt)

	payload := chatRequest{
		Model:       c.config.GenModel,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(payload); err != nil {
		return c.degraded(inputEstimate, fmt.Sprintf("encode request: %v", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.config.BaseURL+"/chat/completions", &buf)
	if err != nil {
		return c.degraded(inputEstimate, fmt.Sprintf("build request: %v", err))
	}
	c.setHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		log.Warn().Err(err).Str("model", c.config.GenModel).Msg("generation request failed")
		return c.degraded(inputEstimate, err.Error())
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close response body")
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		reason := fmt.Sprintf("%s: %s", resp.Status, strings.TrimSpace(string(body)))
		log.Warn().Int("status", resp.StatusCode).Str("model", c.config.GenModel).Msg("generation non-2xx")
		return c.degraded(inputEstimate, reason)
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return c.degraded(inputEstimate, fmt.Sprintf("decode response: %v", err))
	}
	if len(out.Choices) == 0 {
		return c.degraded(inputEstimate, "no choices in response")
	}

	text := out.Choices[0].Message.Content

	// Prefer exact usage from the service, fall back to estimates.
	inputTokens := inputEstimate
	outputTokens := estimateTokens(text)
	if out.Usage != nil {
		if out.Usage.PromptTokens > 0 {
			inputTokens = out.Usage.PromptTokens
		}
		if out.Usage.CompletionTokens > 0 {
			outputTokens = out.Usage.CompletionTokens
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

// degraded builds the placeholder result for a failed call.
func (c *ChatClient) degraded(inputTokens int, reason string) models.GenerationResult {
	c.record(inputTokens)
	return models.GenerationResult{
		Text:        fmt.Sprintf("[AI generation failed: %s]", reason),
		InputTokens: inputTokens,
		Model:       c.config.GenModel,
		Err:         reason,
	}
}

func (c *ChatClient) record(tokens int) {
	c.mu.Lock()
	c.totalTokens += tokens
	c.totalRequests++
	c.mu.Unlock()
}

func (c *ChatClient) Model() string { return c.config.GenModel }

// Stats returns running usage counters.
func (c *ChatClient) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		TotalTokens:   c.totalTokens,
		TotalRequests: c.totalRequests,
		Model:         c.config.GenModel,
	}
}

// ConnState classifies the outcome of a connectivity probe.
type ConnState string

const (
	ConnOK      ConnState = "ok"
	ConnLoading ConnState = "loading"
	ConnFailed  ConnState = "failed"
)

// ConnCheck is the result of TestConnection.
type ConnCheck struct {
	State   ConnState     `json:"state"`
	Latency time.Duration `json:"latency"`
	Detail  string        `json:"detail,omitempty"`
}

// TestConnection sends a minimal one-token request to measure
// reachability and latency. A 503 whose body mentions loading is the
// service warming the model, reported as a transient state rather than
// a hard failure.
func (c *ChatClient) TestConnection(ctx context.Context) ConnCheck {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	start := time.Now()

	payload := chatRequest{
		Model:       c.config.GenModel,
		Messages:    []chatMessage{{Role: "user", Content: "ping"}},
		MaxTokens:   1,
		Temperature: 0,
	}
	b, _ := json.Marshal(payload)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.config.BaseURL+"/chat/completions", bytes.NewReader(b))
	if err != nil {
		return ConnCheck{State: ConnFailed, Detail: err.Error()}
	}
	c.setHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return ConnCheck{State: ConnFailed, Latency: time.Since(start), Detail: err.Error()}
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close response body")
		}
	}()

	latency := time.Since(start)
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return ConnCheck{State: ConnOK, Latency: latency}
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	detail := fmt.Sprintf("%s: %s", resp.Status, strings.TrimSpace(string(body)))
	if resp.StatusCode == http.StatusServiceUnavailable &&
		strings.Contains(strings.ToLower(string(body)), "loading") {
		return ConnCheck{State: ConnLoading, Latency: latency, Detail: detail}
	}
	return ConnCheck{State: ConnFailed, Latency: latency, Detail: detail}
}

// setHeaders sets common headers for chat requests
func (c *ChatClient) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}
}
