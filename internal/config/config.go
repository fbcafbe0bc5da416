// Package config loads the core's process-wide, init-then-immutable
// configuration (§6): hardcoded defaults, overlaid by an optional
// YAML file, overlaid by COGMEM_-prefixed environment variables
// (highest precedence, so a deployment's env always wins over a
// checked-in file).
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/bhekanik/cogmem/internal/memerrs"
)

// Config holds every recognized option from §6's configuration table.
type Config struct {
	// MemoryDBURL is the persistence endpoint. Required; a Postgres
	// DSN selects the postgres backend, a filesystem path (or
	// ":memory:") selects the sqlite backend.
	MemoryDBURL string

	// ScoringProvider selects the C3 implementation: "openai",
	// "anthropic", or "ollama".
	ScoringProvider string
	ScoringAPIKey   string
	ScoringBaseURL  string

	// EmbeddingModel is passed to C3.embed.
	EmbeddingModel string
	// ScoringModel is passed to the C3 chat-completion calls backing
	// extract_topics/score_importance/summarize.
	ScoringModel string
	// EmbeddingDim must match the store schema; 1536 is canonical.
	EmbeddingDim int

	DecayBaseDays      float64
	DedupThreshold     float64
	MinRetention       float64
	PromotionStability float64
	PromotionAccess    int
}

// fileOverlay is the shape of an optional YAML config file; every
// field is a pointer so an absent key leaves the default untouched.
type fileOverlay struct {
	MemoryDBURL        *string  `yaml:"memory_db_url"`
	ScoringProvider    *string  `yaml:"scoring_provider"`
	ScoringAPIKey      *string  `yaml:"scoring_api_key"`
	ScoringBaseURL     *string  `yaml:"scoring_base_url"`
	EmbeddingModel     *string  `yaml:"embedding_model"`
	ScoringModel       *string  `yaml:"scoring_model"`
	EmbeddingDim       *int     `yaml:"embedding_dim"`
	DecayBaseDays      *float64 `yaml:"decay_base_days"`
	DedupThreshold     *float64 `yaml:"dedup_threshold"`
	MinRetention       *float64 `yaml:"min_retention"`
	PromotionStability *float64 `yaml:"promotion_stability"`
	PromotionAccess    *int     `yaml:"promotion_access"`
}

// Load builds a Config starting from hardcoded defaults, applies the
// YAML overlay at filePath if it is non-empty and the file exists,
// then applies any COGMEM_-prefixed environment variables that are
// explicitly set. Returns memerrs.ErrConfig if memory_db_url ends up
// unset, or if the file exists but fails to parse.
func Load(filePath string) (*Config, error) {
	cfg := defaults()

	if filePath != "" {
		if err := applyFile(cfg, filePath); err != nil {
			return nil, err
		}
	}

	applyEnv(cfg)

	if cfg.MemoryDBURL == "" {
		return nil, fmt.Errorf("%w: memory_db_url is required (COGMEM_MEMORY_DB_URL or config file)", memerrs.ErrConfig)
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		ScoringProvider:    "openai",
		EmbeddingModel:     "text-embedding-3-small",
		EmbeddingDim:       1536,
		DecayBaseDays:      30,
		DedupThreshold:     0.92,
		MinRetention:       0.2,
		PromotionStability: 0.9,
		PromotionAccess:    10,
	}
}

func applyFile(cfg *Config, filePath string) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("%w: reading config file: %v", memerrs.ErrConfig, err)
	}

	var overlay fileOverlay
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return fmt.Errorf("%w: parsing config file: %v", memerrs.ErrConfig, err)
	}

	if overlay.MemoryDBURL != nil {
		cfg.MemoryDBURL = *overlay.MemoryDBURL
	}
	if overlay.ScoringProvider != nil {
		cfg.ScoringProvider = *overlay.ScoringProvider
	}
	if overlay.ScoringAPIKey != nil {
		cfg.ScoringAPIKey = *overlay.ScoringAPIKey
	}
	if overlay.ScoringBaseURL != nil {
		cfg.ScoringBaseURL = *overlay.ScoringBaseURL
	}
	if overlay.EmbeddingModel != nil {
		cfg.EmbeddingModel = *overlay.EmbeddingModel
	}
	if overlay.ScoringModel != nil {
		cfg.ScoringModel = *overlay.ScoringModel
	}
	if overlay.EmbeddingDim != nil {
		cfg.EmbeddingDim = *overlay.EmbeddingDim
	}
	if overlay.DecayBaseDays != nil {
		cfg.DecayBaseDays = *overlay.DecayBaseDays
	}
	if overlay.DedupThreshold != nil {
		cfg.DedupThreshold = *overlay.DedupThreshold
	}
	if overlay.MinRetention != nil {
		cfg.MinRetention = *overlay.MinRetention
	}
	if overlay.PromotionStability != nil {
		cfg.PromotionStability = *overlay.PromotionStability
	}
	if overlay.PromotionAccess != nil {
		cfg.PromotionAccess = *overlay.PromotionAccess
	}
	return nil
}

func applyEnv(cfg *Config) {
	if v, ok := lookupEnv("COGMEM_MEMORY_DB_URL"); ok {
		cfg.MemoryDBURL = v
	}
	if v, ok := lookupEnv("COGMEM_SCORING_PROVIDER"); ok {
		cfg.ScoringProvider = v
	}
	if v, ok := lookupEnv("COGMEM_SCORING_API_KEY"); ok {
		cfg.ScoringAPIKey = v
	}
	if v, ok := lookupEnv("COGMEM_SCORING_BASE_URL"); ok {
		cfg.ScoringBaseURL = v
	}
	if v, ok := lookupEnv("COGMEM_EMBEDDING_MODEL"); ok {
		cfg.EmbeddingModel = v
	}
	if v, ok := lookupEnv("COGMEM_SCORING_MODEL"); ok {
		cfg.ScoringModel = v
	}
	if v, ok := lookupEnvInt("COGMEM_EMBEDDING_DIM"); ok {
		cfg.EmbeddingDim = v
	}
	if v, ok := lookupEnvFloat("COGMEM_DECAY_BASE_DAYS"); ok {
		cfg.DecayBaseDays = v
	}
	if v, ok := lookupEnvFloat("COGMEM_DEDUP_THRESHOLD"); ok {
		cfg.DedupThreshold = v
	}
	if v, ok := lookupEnvFloat("COGMEM_MIN_RETENTION"); ok {
		cfg.MinRetention = v
	}
	if v, ok := lookupEnvFloat("COGMEM_PROMOTION_STABILITY"); ok {
		cfg.PromotionStability = v
	}
	if v, ok := lookupEnvInt("COGMEM_PROMOTION_ACCESS"); ok {
		cfg.PromotionAccess = v
	}
}

func lookupEnv(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

func lookupEnvInt(key string) (int, bool) {
	v, ok := lookupEnv(key)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func lookupEnvFloat(key string) (float64, bool) {
	v, ok := lookupEnv(key)
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
