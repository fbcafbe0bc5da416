package engine

import (
	"context"
	"fmt"
	"log"
	"sort"

	"github.com/bhekanik/cogmem/pkg/types"
)

// Consolidate runs the four-step consolidation sequence (§4.7) for a
// single agent: a decayed scan, topic-cluster compression, a
// promotion scan (recorded, not mutated), and dormant soft-delete.
// Each step reads a fresh snapshot from the store.
func (e *Engine) Consolidate(ctx context.Context, agentID string, params ConsolidateParams) (ConsolidateReport, error) {
	if agentID == "" {
		return ConsolidateReport{}, fmt.Errorf("engine: agent_id is required")
	}

	compressionThreshold := params.CompressionThreshold
	if compressionThreshold == 0 {
		compressionThreshold = defaultCompressionThresh
	}
	decayCutoff := params.DecayCutoff
	if decayCutoff == 0 {
		decayCutoff = defaultDecayCutoff
	}
	trashCutoff := params.TrashCutoff
	if trashCutoff == 0 {
		trashCutoff = defaultTrashCutoff
	}
	dormancy := params.Dormancy
	if dormancy == 0 {
		dormancy = defaultDormancy
	}
	promotionStability := params.PromotionStability
	if promotionStability == 0 {
		promotionStability = e.defaults.PromotionStability
	}
	promotionAccess := params.PromotionAccess
	if promotionAccess == 0 {
		promotionAccess = e.defaults.PromotionAccess
	}

	report := ConsolidateReport{}

	// 1. Decayed scan.
	fading, err := e.store.ScanBelowRetention(ctx, agentID, decayCutoff, true)
	if err != nil {
		return ConsolidateReport{}, fmt.Errorf("engine: scan below retention: %w", err)
	}
	report.Fading = fading

	// 2. Topic clustering and compression. A group that fails to
	// summarize is skipped, not fatal to the rest of the pass (§7).
	if len(fading) >= compressionThreshold {
		report.Compressed = e.compress(ctx, fading)
	}

	// 3. Promotion candidates, recorded but never mutated here.
	promotable, err := e.store.ScanPromotion(ctx, agentID, promotionStability, promotionAccess)
	if err != nil {
		return ConsolidateReport{}, fmt.Errorf("engine: scan promotion: %w", err)
	}
	report.Promotable = promotable

	// 4. Dormant soft-delete.
	deleted, err := e.store.SoftDeleteDormant(ctx, agentID, trashCutoff, dormancy)
	if err != nil {
		return ConsolidateReport{}, fmt.Errorf("engine: soft delete dormant: %w", err)
	}
	report.SoftDeleted = deleted

	return report, nil
}

// compress groups fading by topic (a memory with k topics contributes
// to k groups), processes groups of size >= 3 in lexicographic topic
// order, and writes a summary gist for each. A group whose summarize,
// write, or mark-summarized step fails is logged and skipped; it
// never aborts the groups that come after it or the rest of
// Consolidate (§7: summarize failure aborts only the one group).
func (e *Engine) compress(ctx context.Context, fading []types.Memory) []CompressedGroup {
	groups := make(map[string][]types.Memory)
	for _, m := range fading {
		for _, topic := range m.Topics {
			groups[topic] = append(groups[topic], m)
		}
	}

	topicsInOrder := make([]string, 0, len(groups))
	for topic := range groups {
		topicsInOrder = append(topicsInOrder, topic)
	}
	sort.Strings(topicsInOrder)

	var result []CompressedGroup
	for _, topic := range topicsInOrder {
		group := groups[topic]
		if len(group) < 3 {
			continue
		}

		summaryText, err := e.provider.Summarize(ctx, group)
		if err != nil {
			log.Printf("engine: consolidate: summarize topic %q: %v (skipping group)", topic, err)
			continue
		}

		write, err := e.Store(ctx, WriteRequest{
			AgentID:    group[0].AgentID,
			Content:    summaryText,
			MemoryType: types.Semantic,
			Importance: floatPtr(summaryImportance),
			Topics:     []string{topic},
			SkipDedup:  true,
		})
		if err != nil {
			log.Printf("engine: consolidate: write summary for topic %q: %v (skipping group)", topic, err)
			continue
		}

		ids := make([]string, len(group))
		for i, m := range group {
			ids[i] = m.ID
		}
		if err := e.store.MarkSummarized(ctx, ids); err != nil {
			log.Printf("engine: consolidate: mark summarized for topic %q: %v (skipping group)", topic, err)
			continue
		}

		result = append(result, CompressedGroup{
			Topic:       topic,
			Count:       len(group),
			SummaryID:   write.ID,
			OriginalIDs: ids,
		})
	}

	return result
}

func floatPtr(v float64) *float64 { return &v }
