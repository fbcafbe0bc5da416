package engine

import (
	"context"
	"fmt"

	"github.com/bhekanik/cogmem/internal/storage"
	"github.com/bhekanik/cogmem/pkg/types"
)

// Retrieve runs the read path (§4.5): embed the query, rank primaries
// by kNN, reinforce them, then fetch and reinforce associations.
// Reinforcement of primaries happens-before the association fetch so
// that the link query observes up-to-date last_accessed values.
func (e *Engine) Retrieve(ctx context.Context, req ReadRequest) (ReadResult, error) {
	if req.AgentID == "" {
		return ReadResult{}, fmt.Errorf("engine: agent_id is required")
	}

	limit := req.Limit
	if limit == 0 {
		limit = defaultReadLimit
	}
	minRetention := e.defaults.ReadMinRetention
	if req.MinRetention != nil {
		minRetention = *req.MinRetention
	}

	vector, err := e.provider.Embed(ctx, req.Query)
	if err != nil {
		return ReadResult{}, fmt.Errorf("engine: embed query: %w", err)
	}

	primary, err := e.store.KNN(ctx, storage.KNNQuery{
		AgentID:      req.AgentID,
		Vector:       vector,
		K:            limit,
		MinRetention: minRetention,
		TypeFilter:   req.MemoryTypes,
	})
	if err != nil {
		return ReadResult{}, fmt.Errorf("engine: knn: %w", err)
	}

	primaryIDs := make([]string, len(primary))
	for i, m := range primary {
		primaryIDs[i] = m.Memory.ID
		if err := e.store.Reinforce(ctx, m.Memory.ID); err != nil {
			return ReadResult{}, fmt.Errorf("engine: reinforce primary %s: %w", m.Memory.ID, err)
		}
	}

	var associations []types.Associated
	if req.IncludeAssociations && len(primary) > 0 {
		fetched, err := e.store.FetchLinks(ctx, primaryIDs, linkStrengthMin, limit)
		if err != nil {
			return ReadResult{}, fmt.Errorf("engine: fetch links: %w", err)
		}
		associations = fetched
		for _, a := range associations {
			if err := e.store.Reinforce(ctx, a.Memory.ID); err != nil {
				return ReadResult{}, fmt.Errorf("engine: reinforce association %s: %w", a.Memory.ID, err)
			}
		}
	}

	return ReadResult{
		Memories:     primary,
		Associations: associations,
		Query:        req.Query,
		Counts: ReadCounts{
			Memories:     len(primary),
			Associations: len(associations),
		},
	}, nil
}
