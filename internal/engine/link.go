package engine

import (
	"context"
	"fmt"
)

// Link strengthens the association between two memories (§4.6): a
// symmetric upsert of both directed edges, committed atomically. A
// fresh pair starts at strength 0.5 — co-occurrence is itself
// evidence of association, stronger than the bare increment.
func (e *Engine) Link(ctx context.Context, source, target string, increment float64) error {
	if source == "" || target == "" {
		return fmt.Errorf("engine: source and target ids are required")
	}
	if source == target {
		return fmt.Errorf("engine: source and target must differ")
	}
	if increment == 0 {
		increment = linkDefaultIncrement
	}
	if _, err := e.store.Get(ctx, source); err != nil {
		return fmt.Errorf("engine: link source: %w", err)
	}
	if _, err := e.store.Get(ctx, target); err != nil {
		return fmt.Errorf("engine: link target: %w", err)
	}
	if err := e.store.UpsertLink(ctx, source, target, increment); err != nil {
		return fmt.Errorf("engine: upsert link: %w", err)
	}
	return nil
}
