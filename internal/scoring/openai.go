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

// OpenAIConfig holds configuration for the OpenAI-backed provider.
type OpenAIConfig struct {
	APIKey         string
	Model          string // chat model, default gpt-4o-mini
	EmbeddingModel string // default text-embedding-3-small
	BaseURL        string // default https://api.openai.com
	Timeout        time.Duration
}

// OpenAIProvider implements Provider using OpenAI's chat completions
// and embeddings APIs, each call guarded by its own circuit breaker.
type OpenAIProvider struct {
	cfg          OpenAIConfig
	client       *http.Client
	chatBreaker  *CircuitBreaker
	embedBreaker *CircuitBreaker
}

var _ Provider = (*OpenAIProvider)(nil)

func NewOpenAIProvider(cfg OpenAIConfig) *OpenAIProvider {
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = "text-embedding-3-small"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &OpenAIProvider{
		cfg:          cfg,
		client:       &http.Client{Timeout: cfg.Timeout},
		chatBreaker:  NewCircuitBreaker(),
		embedBreaker: NewCircuitBreaker(),
	}
}

func (p *OpenAIProvider) Model() string { return p.cfg.Model }

type openAIChatRequest struct {
	Model       string              `json:"model"`
	Messages    []openAIChatMessage `json:"messages"`
	Temperature float64             `json:"temperature"`
}

type openAIChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (p *OpenAIProvider) complete(ctx context.Context, prompt string) (string, error) {
	result, err := p.chatBreaker.Execute(ctx, func() (interface{}, error) {
		return p.doComplete(ctx, prompt)
	})
	if err != nil {
		if errors.Is(err, ErrCircuitOpen) {
			return "", fmt.Errorf("%w: openai chat circuit open", err)
		}
		return "", err
	}
	return result.(string), nil
}

func (p *OpenAIProvider) doComplete(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	body, err := json.Marshal(openAIChatRequest{
		Model:       p.cfg.Model,
		Messages:    []openAIChatMessage{{Role: "user", Content: prompt}},
		Temperature: 0,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", p.cfg.BaseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("openai returned status %d: %s", resp.StatusCode, string(b))
	}

	var respData openAIChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&respData); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(respData.Choices) == 0 {
		return "", fmt.Errorf("openai returned no choices")
	}
	return respData.Choices[0].Message.Content, nil
}

type openAIEmbeddingRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type openAIEmbeddingResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

func (p *OpenAIProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	result, err := p.embedBreaker.Execute(ctx, func() (interface{}, error) {
		return p.doEmbed(ctx, text)
	})
	if err != nil {
		if errors.Is(err, ErrCircuitOpen) {
			return nil, fmt.Errorf("%w: openai embedding circuit open", err)
		}
		return nil, err
	}
	return result.([]float32), nil
}

func (p *OpenAIProvider) doEmbed(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	body, err := json.Marshal(openAIEmbeddingRequest{Model: p.cfg.EmbeddingModel, Input: text})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", p.cfg.BaseURL+"/v1/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("openai returned status %d: %s", resp.StatusCode, string(b))
	}

	var respData openAIEmbeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&respData); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(respData.Data) == 0 || len(respData.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("openai returned empty embedding")
	}

	raw := respData.Data[0].Embedding
	vec := make([]float32, len(raw))
	for i, v := range raw {
		vec[i] = float32(v)
	}
	return vec, nil
}

func (p *OpenAIProvider) ExtractTopics(ctx context.Context, text string, maxK int) ([]string, error) {
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

func (p *OpenAIProvider) ScoreImportance(ctx context.Context, text string, context_ string) (float64, error) {
	prompt := fmt.Sprintf(
		"Rate how important it is to remember the following text, as a float between 0 and 1. Respond with only JSON: {\"importance\": 0.0}.\n\nContext: %s\n\nText:\n%s",
		context_, text)

	raw, err := p.complete(ctx, prompt)
	if err != nil {
		return 0, err
	}
	score, err := parseImportance(raw)
	if err != nil {
		return 0, err
	}
	return score, nil
}

func (p *OpenAIProvider) Summarize(ctx context.Context, memories []types.Memory) (string, error) {
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
