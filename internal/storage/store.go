// Package storage defines the persistence port (C2): the abstracted
// store offering memory CRUD, vector kNN, link upsert, and atomic
// reinforcement that the engine is built against. Concrete backends
// live in the postgres and sqlite subpackages.
package storage

import (
	"context"
	"time"

	"github.com/bhekanik/cogmem/pkg/types"
)

// KNNQuery describes a vector nearest-neighbor lookup (§4.2).
type KNNQuery struct {
	AgentID      string
	Vector       []float32
	K            int
	MinRetention float64
	TypeFilter   []types.MemoryType // empty means no filter
}

// InsertRequest carries the fields of a new memory to persist.
// CreatedAt, LastAccessed, and ID are assigned by the store.
type InsertRequest struct {
	AgentID       string
	Content       string
	Embedding     []float32
	MemoryType    types.MemoryType
	Topics        []string
	Importance    float64
	Stability     float64 // caller passes 0.3 for ordinary writes
	EventDate     *time.Time
	ExpiresAt     *time.Time
	SourceChannel string
	SourceSession string
	Summarizes    []string // non-empty only for consolidator-written gists
	IsSummary     bool
}

// Store is the persistence port (C2). Every method is an atomic,
// transactional operation. The write path's dedup-then-insert is not
// one transaction: it calls KNN and then Reinforce or Insert as
// separate operations, and no transaction spans them.
type Store interface {
	// KNN returns memories ranked by similarity*retention descending,
	// restricted to non-deleted rows, excluding any below MinRetention.
	KNN(ctx context.Context, q KNNQuery) ([]types.Scored, error)

	// Insert atomically creates a new memory and returns its id and
	// creation timestamp.
	Insert(ctx context.Context, req InsertRequest) (id string, createdAt time.Time, err error)

	// Get retrieves a single memory by id. Returns memerrs.ErrNotFound
	// if it does not exist or has been soft-deleted.
	Get(ctx context.Context, id string) (*types.Memory, error)

	// Reinforce applies the reinforcement transaction (§4.4) to the
	// memory with the given id: bumps stability by the spacing bonus,
	// sets last_accessed to now, and increments access_count.
	Reinforce(ctx context.Context, id string) error

	// UpsertLink applies the symmetric link upsert (§4.6) to both
	// (source,target) and (target,source) atomically.
	UpsertLink(ctx context.Context, source, target string, increment float64) error

	// FetchLinks returns, for the given source ids, the distinct
	// target memories reachable by an edge with strength >= strengthMin,
	// ordered within each source by strength desc, capped at limit
	// total distinct memories (deduplicated across sources keeping the
	// strongest edge).
	FetchLinks(ctx context.Context, sourceIDs []string, strengthMin float64, limit int) ([]types.Associated, error)

	// ScanBelowRetention returns non-deleted memories for agent whose
	// retention (computed server-side, evaluated at now) is below
	// threshold. When excludeSummaries is true, is_summary=true rows
	// are skipped.
	ScanBelowRetention(ctx context.Context, agentID string, threshold float64, excludeSummaries bool) ([]types.Memory, error)

	// ScanPromotion returns semantic, non-deleted memories for agent
	// with stability >= stabilityMin and access_count >= accessCountMin.
	ScanPromotion(ctx context.Context, agentID string, stabilityMin float64, accessCountMin int) ([]types.Memory, error)

	// SoftDeleteDormant marks is_deleted=true on every non-summary,
	// non-deleted memory for agent whose retention is below
	// retentionCutoff and whose last_accessed is older than dormantFor.
	// Returns the count of rows affected.
	SoftDeleteDormant(ctx context.Context, agentID string, retentionCutoff float64, dormantFor time.Duration) (int, error)

	// MarkSummarized atomically sets is_summary=true on every id in ids.
	MarkSummarized(ctx context.Context, ids []string) error

	// Close releases any resources held by the store.
	Close() error
}
