package scoring

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bhekanik/cogmem/pkg/types"
)

// AnthropicConfig holds configuration for the Anthropic-backed
// provider. Anthropic has no embeddings API, so AnthropicProvider
// delegates Embed to the Embedder passed to NewAnthropicProvider
// (mirroring the teacher's embeddings-unsupported fallback).
type AnthropicConfig struct {
	APIKey  string
	Model   string // default claude-haiku-4-5-20251001
	Timeout time.Duration
}

// AnthropicProvider implements Provider's scoring/topic/summary
// operations over the Anthropic Messages API. Embed is satisfied by the
// embedder given to NewAnthropicProvider; the factory New passes nil,
// so Embed returns errNoEmbedder for providers built by New.
type AnthropicProvider struct {
	cfg            AnthropicConfig
	client         *http.Client
	circuitBreaker *CircuitBreaker
	embedder       Embedder
}

// Embedder is the narrow embedding capability AnthropicProvider
// delegates to, since Anthropic itself offers no embeddings endpoint.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

var _ Provider = (*AnthropicProvider)(nil)

func NewAnthropicProvider(cfg AnthropicConfig, embedder Embedder) *AnthropicProvider {
	if cfg.Model == "" {
		cfg.Model = "claude-haiku-4-5-20251001"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &AnthropicProvider{
		cfg:            cfg,
		client:         &http.Client{Timeout: cfg.Timeout},
		circuitBreaker: NewCircuitBreaker(),
		embedder:       embedder,
	}
}

func (p *AnthropicProvider) Model() string { return p.cfg.Model }

type anthropicMessagesRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicMessagesResponse struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
}

func (p *AnthropicProvider) complete(ctx context.Context, prompt string) (string, error) {
	result, err := p.circuitBreaker.Execute(ctx, func() (interface{}, error) {
		return p.doComplete(ctx, prompt)
	})
	if err != nil {
		if errors.Is(err, ErrCircuitOpen) {
			return "", fmt.Errorf("%w: anthropic circuit open", err)
		}
		return "", err
	}
	return result.(string), nil
}

func (p *AnthropicProvider) doComplete(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	body, err := json.Marshal(anthropicMessagesRequest{
		Model:     p.cfg.Model,
		MaxTokens: 4096,
		Messages:  []anthropicMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", "https://api.anthropic.com/v1/messages", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("content-type", "application/json")
	req.Header.Set("x-api-key", p.cfg.APIKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("anthropic returned status %d: %s", resp.StatusCode, string(b))
	}

	var respData anthropicMessagesResponse
	if err := json.NewDecoder(resp.Body).Decode(&respData); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(respData.Content) == 0 {
		return "", fmt.Errorf("anthropic returned empty content")
	}
	return respData.Content[0].Text, nil
}

// errNoEmbedder is returned when Embed is called on an
// AnthropicProvider configured without a delegate embedder.
var errNoEmbedder = errors.New("scoring: anthropic provider has no embedder configured")

func (p *AnthropicProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if p.embedder == nil {
		return nil, errNoEmbedder
	}
	return p.embedder.Embed(ctx, text)
}

func (p *AnthropicProvider) ExtractTopics(ctx context.Context, text string, maxK int) ([]string, error) {
	if maxK <= 0 {
		maxK = 5
	}
	prompt := fmt.Sprintf(
		"Extract up to %d short keyword topics from the text below. Respond with only JSON: {\"topics\": [\"...\"]}.\n\nText:\n%s",
		maxK, text)

	raw, err := p.complete(ctx, prompt)
	if err != nil {
		return nil, err
	}
	topics, err := parseTopics(raw, maxK)
	if err != nil {
		return nil, fmt.Errorf("parse topics: %w", err)
	}
	return topics, nil
}

func (p *AnthropicProvider) ScoreImportance(ctx context.Context, text string, context_ string) (float64, error) {
	prompt := fmt.Sprintf(
		"Rate how important it is to remember the following text, as a float between 0 and 1. Respond with only JSON: {\"importance\": 0.0}.\n\nContext: %s\n\nText:\n%s",
		context_, text)

	raw, err := p.complete(ctx, prompt)
	if err != nil {
		return 0, err
	}
	return parseImportance(raw)
}

func (p *AnthropicProvider) Summarize(ctx context.Context, memories []types.Memory) (string, error) {
	if len(memories) == 0 {
		return "", ErrEmptySummarizeInput
	}
	if len(memories) == 1 {
		return memories[0].Content, nil
	}

	var b strings.Builder
	for i, m := range memories {
		fmt.Fprintf(&b, "%d. %s\n", i+1, m.Content)
	}
	prompt := fmt.Sprintf(
		"Summarize the following related memories into one concise gist that preserves the key facts. Respond with only JSON: {\"summary\": \"...\"}.\n\n%s",
		b.String())

	raw, err := p.complete(ctx, prompt)
	if err != nil {
		return "", err
	}
	return parseSummary(raw), nil
}
