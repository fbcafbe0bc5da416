package engine

import (
	"context"
	"fmt"
	"log"

	"github.com/bhekanik/cogmem/internal/scoring"
	"github.com/bhekanik/cogmem/internal/storage"
	"github.com/bhekanik/cogmem/pkg/types"
)

// Store runs the write path (§4.4): score/extract/embed, then either
// reinforce an existing near-duplicate or insert a new row.
func (e *Engine) Store(ctx context.Context, req WriteRequest) (WriteResult, error) {
	if req.AgentID == "" {
		return WriteResult{}, fmt.Errorf("engine: agent_id is required")
	}
	if req.Content == "" {
		return WriteResult{}, fmt.Errorf("engine: content is required")
	}

	memoryType := req.MemoryType
	if memoryType == "" {
		memoryType = types.Episodic
	}

	importance := scoring.DefaultImportance
	if req.Importance != nil {
		importance = *req.Importance
	} else if req.AutoScoreImportance {
		scored, err := e.provider.ScoreImportance(ctx, req.Content, "")
		if err != nil {
			log.Printf("engine: score importance failed, using default %.1f: %v", scoring.DefaultImportance, err)
			importance = scoring.DefaultImportance
		} else {
			importance = scored
		}
	}

	var topics []string
	if req.Topics != nil {
		topics = req.Topics
	} else if req.AutoExtractTopics {
		extracted, err := e.provider.ExtractTopics(ctx, req.Content, maxAutoTopics)
		if err != nil {
			log.Printf("engine: extract topics failed, storing without topics: %v", err)
			topics = nil
		} else {
			topics = extracted
		}
	}

	vector, err := e.provider.Embed(ctx, req.Content)
	if err != nil {
		return WriteResult{}, fmt.Errorf("engine: embed content: %w", err)
	}

	dedupThreshold := req.DedupThreshold
	if dedupThreshold == 0 {
		dedupThreshold = e.defaults.DedupThreshold
	}

	if !req.SkipDedup {
		candidates, err := e.store.KNN(ctx, storage.KNNQuery{
			AgentID:      req.AgentID,
			Vector:       vector,
			K:            1,
			MinRetention: 0,
		})
		if err != nil {
			return WriteResult{}, fmt.Errorf("engine: dedup lookup: %w", err)
		}
		if len(candidates) > 0 {
			top := candidates[0]
			if top.Similarity > dedupThreshold && !top.Memory.IsDeleted {
				if err := e.store.Reinforce(ctx, top.Memory.ID); err != nil {
					return WriteResult{}, fmt.Errorf("engine: reinforce duplicate: %w", err)
				}
				return WriteResult{
					Action:          ActionReinforced,
					ID:              top.Memory.ID,
					ExistingContent: top.Memory.Content,
					Similarity:      top.Similarity,
				}, nil
			}
		}
	}

	stability := req.Stability
	if stability == 0 {
		stability = defaultWriteStability
	}

	id, createdAt, err := e.store.Insert(ctx, storage.InsertRequest{
		AgentID:       req.AgentID,
		Content:       req.Content,
		Embedding:     vector,
		MemoryType:    memoryType,
		Topics:        topics,
		Importance:    importance,
		Stability:     stability,
		EventDate:     req.EventDate,
		ExpiresAt:     req.ExpiresAt,
		SourceChannel: req.Channel,
		SourceSession: req.Session,
	})
	if err != nil {
		return WriteResult{}, fmt.Errorf("engine: insert: %w", err)
	}

	return WriteResult{Action: ActionCreated, ID: id, CreatedAt: createdAt}, nil
}

const maxAutoTopics = 5
