package engine

import (
	"context"
	"fmt"

	"github.com/bhekanik/cogmem/internal/scoring"
	"github.com/bhekanik/cogmem/internal/storage"
	"github.com/bhekanik/cogmem/pkg/types"
)

// Engine composes the persistence port (C2) and scoring port (C3)
// into the write path, read path, link manager, and consolidator. It
// holds no mutable state of its own: the store is the source of
// truth (§5, "no in-process caches").
type Engine struct {
	store    storage.Store
	provider scoring.Provider
	defaults Defaults
}

// New builds an Engine over the given store and scoring provider,
// using defaults for any configurable tunable a per-call request
// leaves unset. Neither store nor provider may be nil. A zero-valued
// field in defaults is filled from DefaultDefaults().
func New(store storage.Store, provider scoring.Provider, defaults Defaults) (*Engine, error) {
	if store == nil {
		return nil, fmt.Errorf("engine: store is required")
	}
	if provider == nil {
		return nil, fmt.Errorf("engine: scoring provider is required")
	}

	fallback := DefaultDefaults()
	if defaults.DedupThreshold == 0 {
		defaults.DedupThreshold = fallback.DedupThreshold
	}
	if defaults.ReadMinRetention == 0 {
		defaults.ReadMinRetention = fallback.ReadMinRetention
	}
	if defaults.PromotionStability == 0 {
		defaults.PromotionStability = fallback.PromotionStability
	}
	if defaults.PromotionAccess == 0 {
		defaults.PromotionAccess = fallback.PromotionAccess
	}

	return &Engine{store: store, provider: provider, defaults: defaults}, nil
}

// Provider exposes the underlying scoring port for callers that need
// a direct C3 operation (extract-topics, score-importance, summarize)
// without going through the write or read path.
func (e *Engine) Provider() scoring.Provider { return e.provider }

// Get retrieves a single memory by id via the persistence port.
func (e *Engine) Get(ctx context.Context, id string) (*types.Memory, error) {
	return e.store.Get(ctx, id)
}
