// Package engine composes the persistence port (C2) and the scoring
// port (C3) into the four core operations named by the spec: the
// write path, the read path, the link manager, and the consolidator.
package engine

import (
	"time"

	"github.com/bhekanik/cogmem/pkg/types"
)

// WriteRequest is the input to Store (§4.4).
type WriteRequest struct {
	AgentID    string
	Content    string
	MemoryType types.MemoryType // defaults to Episodic if empty
	Importance *float64         // nil means "score or default"
	Topics     []string         // nil means "extract or leave empty"
	EventDate  *time.Time
	ExpiresAt  *time.Time
	Channel    string
	Session    string

	SkipDedup           bool
	AutoScoreImportance bool
	AutoExtractTopics   bool
	DedupThreshold      float64 // 0 means "use the engine's Defaults.DedupThreshold (0.92 unless configured)"
	Stability           float64 // 0 means "use the default, 0.3"
}

// WriteAction reports which branch of the write path a call took.
type WriteAction string

const (
	ActionCreated    WriteAction = "created"
	ActionReinforced WriteAction = "reinforced"
)

// WriteResult is the output of Store.
type WriteResult struct {
	Action WriteAction
	ID     string

	// CreatedAt is set only when Action == ActionCreated.
	CreatedAt time.Time

	// ExistingContent and Similarity are set only when
	// Action == ActionReinforced.
	ExistingContent string
	Similarity      float64
}

// ReadRequest is the input to Retrieve (§4.5).
type ReadRequest struct {
	AgentID             string
	Query               string
	Limit               int // 0 means "use the default, 5"
	IncludeAssociations bool
	MinRetention        *float64 // nil means "use the engine's Defaults.ReadMinRetention (0.2 unless configured)"
	MemoryTypes         []types.MemoryType
}

// ReadResult is the output of Retrieve.
type ReadResult struct {
	Memories     []types.Scored
	Associations []types.Associated
	Query        string
	Counts       ReadCounts
}

// ReadCounts reports how many rows were returned in each category.
type ReadCounts struct {
	Memories     int
	Associations int
}

// ConsolidateParams tunes Consolidate (§4.7). A zero value for any
// field means "use the default named alongside it below".
type ConsolidateParams struct {
	CompressionThreshold int
	DecayCutoff          float64
	TrashCutoff          float64
	Dormancy             time.Duration
	PromotionStability   float64
	PromotionAccess      int
}

// CompressedGroup records one topic cluster the consolidator
// summarized into a new gist memory.
type CompressedGroup struct {
	Topic       string
	Count       int
	SummaryID   string
	OriginalIDs []string
}

// ConsolidateReport is the output of Consolidate.
type ConsolidateReport struct {
	Fading      []types.Memory
	Compressed  []CompressedGroup
	Promotable  []types.Memory
	SoftDeleted int
}

const (
	defaultWriteStability    = 0.3
	defaultReadLimit         = 5
	defaultCompressionThresh = 5
	defaultDecayCutoff       = 0.2
	defaultTrashCutoff       = 0.05
	defaultDormancy          = 30 * 24 * time.Hour
	linkStrengthMin          = 0.3
	linkDefaultIncrement     = 0.1
	summaryImportance        = 0.7
)

// Defaults holds the process-wide tunables named in the configuration
// table (§6: dedup_threshold, min_retention,
// promotion_stability/promotion_access) that a per-call request can
// still override. decay_base_days is not part of it; it is passed to
// the storage backends instead. New fills any zero field from
// DefaultDefaults(), so a zero Defaults yields the hardcoded values.
type Defaults struct {
	DedupThreshold     float64
	ReadMinRetention   float64
	PromotionStability float64
	PromotionAccess    int
}

// DefaultDefaults returns the hardcoded fallbacks from §6's config
// table, for callers that don't load a config.Config (tests, direct
// engine embedding).
func DefaultDefaults() Defaults {
	return Defaults{
		DedupThreshold:     0.92,
		ReadMinRetention:   0.2,
		PromotionStability: 0.9,
		PromotionAccess:    10,
	}
}
