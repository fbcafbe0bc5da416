package scoring

import "fmt"

// ProviderConfig selects and configures a scoring provider. Mirrors
// §6's scoring_model/embedding_model configuration surface.
type ProviderConfig struct {
	Provider       string // "openai", "anthropic", "ollama"
	APIKey         string
	ChatModel      string
	EmbeddingModel string
	BaseURL        string
}

// New builds the configured Provider. Anthropic has no embeddings
// endpoint, and New gives the anthropic provider no delegate embedder,
// so Embed on it always fails at call time with errNoEmbedder.
func New(cfg ProviderConfig) (Provider, error) {
	switch cfg.Provider {
	case "openai", "":
		return NewOpenAIProvider(OpenAIConfig{
			APIKey:         cfg.APIKey,
			Model:          cfg.ChatModel,
			EmbeddingModel: cfg.EmbeddingModel,
			BaseURL:        cfg.BaseURL,
		}), nil
	case "anthropic":
		return NewAnthropicProvider(AnthropicConfig{
			APIKey: cfg.APIKey,
			Model:  cfg.ChatModel,
		}, nil), nil
	case "ollama":
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = "http://localhost:11434"
		}
		return NewOllamaProvider(OllamaConfig{
			BaseURL:        baseURL,
			Model:          cfg.ChatModel,
			EmbeddingModel: cfg.EmbeddingModel,
		}), nil
	default:
		return nil, fmt.Errorf("scoring: unsupported provider %q", cfg.Provider)
	}
}
