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

// OllamaConfig holds configuration for a local Ollama-backed provider.
type OllamaConfig struct {
	BaseURL string // default http://localhost:11434
	Model   string // chat model, default qwen2.5:7b
	// EmbeddingModel is used only by Embed; Ollama's /api/embed takes a
	// model per request, so a single client can serve both roles.
	EmbeddingModel string // default nomic-embed-text
	Timeout        time.Duration
}

// OllamaProvider implements Provider against a local Ollama instance.
type OllamaProvider struct {
	cfg            OllamaConfig
	client         *http.Client
	circuitBreaker *CircuitBreaker
}

var _ Provider = (*OllamaProvider)(nil)

func NewOllamaProvider(cfg OllamaConfig) *OllamaProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:11434"
	}
	if cfg.Model == "" {
		cfg.Model = "qwen2.5:7b"
	}
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = "nomic-embed-text"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &OllamaProvider{
		cfg:            cfg,
		client:         &http.Client{Timeout: cfg.Timeout},
		circuitBreaker: NewCircuitBreaker(),
	}
}

func (p *OllamaProvider) Model() string { return p.cfg.Model }

type ollamaGenerateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

func (p *OllamaProvider) complete(ctx context.Context, prompt string) (string, error) {
	result, err := p.circuitBreaker.Execute(ctx, func() (interface{}, error) {
		return p.doComplete(ctx, prompt)
	})
	if err != nil {
		if errors.Is(err, ErrCircuitOpen) {
			return "", fmt.Errorf("%w: ollama circuit open", err)
		}
		return "", err
	}
	return result.(string), nil
}

func (p *OllamaProvider) doComplete(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	body, err := json.Marshal(ollamaGenerateRequest{Model: p.cfg.Model, Prompt: prompt, Stream: false})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", p.cfg.BaseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, string(b))
	}

	var respData ollamaGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&respData); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	return respData.Response, nil
}

type ollamaEmbedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

func (p *OllamaProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	result, err := p.circuitBreaker.Execute(ctx, func() (interface{}, error) {
		return p.doEmbed(ctx, text)
	})
	if err != nil {
		if errors.Is(err, ErrCircuitOpen) {
			return nil, fmt.Errorf("%w: ollama circuit open", err)
		}
		return nil, err
	}
	return result.([]float32), nil
}

func (p *OllamaProvider) doEmbed(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	body, err := json.Marshal(ollamaEmbedRequest{Model: p.cfg.EmbeddingModel, Input: text})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", p.cfg.BaseURL+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, string(b))
	}

	var respData ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&respData); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(respData.Embeddings) == 0 {
		return nil, fmt.Errorf("ollama returned no embeddings")
	}
	return respData.Embeddings[0], nil
}

func (p *OllamaProvider) ExtractTopics(ctx context.Context, text string, maxK int) ([]string, error) {
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

func (p *OllamaProvider) ScoreImportance(ctx context.Context, text string, context_ string) (float64, error) {
	prompt := fmt.Sprintf(
		"Rate how important it is to remember the following text, as a float between 0 and 1. Respond with only JSON: {\"importance\": 0.0}.\n\nContext: %s\n\nText:\n%s",
		context_, text)

	raw, err := p.complete(ctx, prompt)
	if err != nil {
		return 0, err
	}
	return parseImportance(raw)
}

func (p *OllamaProvider) Summarize(ctx context.Context, memories []types.Memory) (string, error) {
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
