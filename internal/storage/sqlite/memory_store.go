package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // pure-Go SQLite driver

	"github.com/bhekanik/cogmem/internal/memerrs"
	"github.com/bhekanik/cogmem/internal/retention"
	"github.com/bhekanik/cogmem/internal/storage"
	"github.com/bhekanik/cogmem/pkg/types"
)

const timeLayout = time.RFC3339Nano

// Store implements the persistence port (storage.Store) against a
// single SQLite file. kNN ranking is computed in Go rather than by an
// index, which is acceptable at the scale this backend targets
// (offline/local operation, test fakes).
type Store struct {
	db            *sql.DB
	decayBaseDays float64
}

var _ storage.Store = (*Store)(nil)

// NewStore opens (creating if necessary) a SQLite database at path and
// applies the schema. Pass ":memory:" for an ephemeral store.
// decayBaseDays is the retention model's time constant (§4.1); pass
// retention.DefaultDecayBaseDays absent an operator override.
func NewStore(path string, decayBaseDays float64) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: sqlite: open: %v", memerrs.ErrPersistence, err)
	}
	// SQLite allows only one writer at a time; a single connection
	// avoids "database is locked" errors under concurrent use.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: sqlite: enable foreign keys: %v", memerrs.ErrPersistence, err)
	}
	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: sqlite: apply schema: %v", memerrs.ErrPersistence, err)
	}

	if decayBaseDays <= 0 {
		decayBaseDays = retention.DefaultDecayBaseDays
	}
	return &Store{db: db, decayBaseDays: decayBaseDays}, nil
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

type row struct {
	id, agentID, content, memoryType, topicsJSON, summarizesJSON string
	importance, stability                                        float64
	createdAt, lastAccessed                                       string
	eventDate, expiresAt, sourceChannel, sourceSession            sql.NullString
	accessCount                                                  int
	isSummary, isDeleted                                          bool
	embedding                                                    []byte
}

const rowColumns = `id, agent_id, content, memory_type, topics, importance, stability,
	created_at, event_date, expires_at, last_accessed, access_count,
	source_channel, source_session, is_summary, summarizes, is_deleted, embedding`

func scanRow(scanner interface{ Scan(...interface{}) error }) (row, error) {
	var r row
	err := scanner.Scan(
		&r.id, &r.agentID, &r.content, &r.memoryType, &r.topicsJSON, &r.importance, &r.stability,
		&r.createdAt, &r.eventDate, &r.expiresAt, &r.lastAccessed, &r.accessCount,
		&r.sourceChannel, &r.sourceSession, &r.isSummary, &r.summarizesJSON, &r.isDeleted, &r.embedding,
	)
	return r, err
}

func (r row) toMemory() (types.Memory, error) {
	var topics, summarizes []string
	if err := json.Unmarshal([]byte(r.topicsJSON), &topics); err != nil {
		return types.Memory{}, fmt.Errorf("decode topics: %w", err)
	}
	if err := json.Unmarshal([]byte(r.summarizesJSON), &summarizes); err != nil {
		return types.Memory{}, fmt.Errorf("decode summarizes: %w", err)
	}

	createdAt, err := time.Parse(timeLayout, r.createdAt)
	if err != nil {
		return types.Memory{}, fmt.Errorf("parse created_at: %w", err)
	}
	lastAccessed, err := time.Parse(timeLayout, r.lastAccessed)
	if err != nil {
		return types.Memory{}, fmt.Errorf("parse last_accessed: %w", err)
	}

	m := types.Memory{
		ID:            r.id,
		AgentID:       r.agentID,
		Content:       r.content,
		Embedding:     decodeEmbedding(r.embedding),
		MemoryType:    types.MemoryType(r.memoryType),
		Topics:        topics,
		Importance:    r.importance,
		Stability:     r.stability,
		CreatedAt:     createdAt,
		LastAccessed:  lastAccessed,
		AccessCount:   r.accessCount,
		SourceChannel: r.sourceChannel.String,
		SourceSession: r.sourceSession.String,
		IsSummary:     r.isSummary,
		Summarizes:    summarizes,
		IsDeleted:     r.isDeleted,
	}
	if r.eventDate.Valid {
		t, err := time.Parse(timeLayout, r.eventDate.String)
		if err == nil {
			m.EventDate = &t
		}
	}
	if r.expiresAt.Valid {
		t, err := time.Parse(timeLayout, r.expiresAt.String)
		if err == nil {
			m.ExpiresAt = &t
		}
	}
	return m, nil
}

func (s *Store) Get(ctx context.Context, id string) (*types.Memory, error) {
	r, err := scanRow(s.db.QueryRowContext(ctx,
		`SELECT `+rowColumns+` FROM memories WHERE id = ? AND is_deleted = 0`, id))
	if err == sql.ErrNoRows {
		return nil, memerrs.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: sqlite: get: %v", memerrs.ErrPersistence, err)
	}
	m, err := r.toMemory()
	if err != nil {
		return nil, fmt.Errorf("%w: sqlite: get: %v", memerrs.ErrPersistence, err)
	}
	return &m, nil
}

func (s *Store) Insert(ctx context.Context, req storage.InsertRequest) (string, time.Time, error) {
	if req.AgentID == "" || req.Content == "" {
		return "", time.Time{}, fmt.Errorf("%w: agent_id and content are required", memerrs.ErrInvariant)
	}
	if !req.MemoryType.Valid() {
		req.MemoryType = types.Episodic
	}
	stability := req.Stability
	if stability == 0 {
		stability = 0.3
	}

	topicsJSON, _ := json.Marshal(req.Topics)
	summarizesJSON, _ := json.Marshal(req.Summarizes)

	id := uuid.New().String()
	now := time.Now().UTC()

	var eventDate, expiresAt interface{}
	if req.EventDate != nil {
		eventDate = req.EventDate.UTC().Format(timeLayout)
	}
	if req.ExpiresAt != nil {
		expiresAt = req.ExpiresAt.UTC().Format(timeLayout)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO memories (
			id, agent_id, content, memory_type, topics, importance, stability,
			created_at, event_date, expires_at, last_accessed, access_count,
			source_channel, source_session, is_summary, summarizes, is_deleted, embedding
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?, ?, ?, 0, ?)`,
		id, req.AgentID, req.Content, string(req.MemoryType), string(topicsJSON), req.Importance, stability,
		now.Format(timeLayout), eventDate, expiresAt, now.Format(timeLayout),
		nullableArg(req.SourceChannel), nullableArg(req.SourceSession), req.IsSummary, string(summarizesJSON),
		encodeEmbedding(req.Embedding),
	)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("%w: sqlite: insert: %v", memerrs.ErrPersistence, err)
	}
	return id, now, nil
}

func nullableArg(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func (s *Store) Reinforce(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: sqlite: reinforce: %v", memerrs.ErrPersistence, err)
	}
	defer tx.Rollback()

	r, err := scanRow(tx.QueryRowContext(ctx,
		`SELECT `+rowColumns+` FROM memories WHERE id = ? AND is_deleted = 0`, id))
	if err == sql.ErrNoRows {
		return memerrs.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("%w: sqlite: reinforce: %v", memerrs.ErrPersistence, err)
	}

	lastAccessed, err := time.Parse(timeLayout, r.lastAccessed)
	if err != nil {
		return fmt.Errorf("%w: sqlite: reinforce: %v", memerrs.ErrPersistence, err)
	}
	now := time.Now().UTC()
	newStability := retention.Reinforce(r.stability, lastAccessed, now)

	_, err = tx.ExecContext(ctx,
		`UPDATE memories SET stability = ?, access_count = access_count + 1, last_accessed = ? WHERE id = ?`,
		newStability, now.Format(timeLayout), id)
	if err != nil {
		return fmt.Errorf("%w: sqlite: reinforce: %v", memerrs.ErrPersistence, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: sqlite: reinforce: %v", memerrs.ErrPersistence, err)
	}
	return nil
}

func (s *Store) UpsertLink(ctx context.Context, source, target string, increment float64) error {
	if source == target {
		return fmt.Errorf("%w: link source and target must differ", memerrs.ErrInvariant)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: sqlite: upsert_link: %v", memerrs.ErrPersistence, err)
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(timeLayout)
	upsert := func(a, b string) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO memory_links (source_id, target_id, strength, created_at, updated_at)
			VALUES (?, ?, 0.5, ?, ?)
			ON CONFLICT(source_id, target_id) DO UPDATE SET
				strength = MIN(1.0, strength + ?),
				updated_at = ?`,
			a, b, now, now, increment, now)
		return err
	}

	if err := upsert(source, target); err != nil {
		return fmt.Errorf("%w: sqlite: upsert_link: %v", memerrs.ErrPersistence, err)
	}
	if err := upsert(target, source); err != nil {
		return fmt.Errorf("%w: sqlite: upsert_link: %v", memerrs.ErrPersistence, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: sqlite: upsert_link: %v", memerrs.ErrPersistence, err)
	}
	return nil
}

func (s *Store) FetchLinks(ctx context.Context, sourceIDs []string, strengthMin float64, limit int) ([]types.Associated, error) {
	if len(sourceIDs) == 0 {
		return nil, nil
	}

	sourceSet := make(map[string]bool, len(sourceIDs))
	placeholders := make([]string, len(sourceIDs))
	args := make([]interface{}, len(sourceIDs)+1)
	for i, id := range sourceIDs {
		placeholders[i] = "?"
		args[i] = id
		sourceSet[id] = true
	}
	args[len(sourceIDs)] = strengthMin

	query := fmt.Sprintf(`
		SELECT l.target_id, l.strength FROM memory_links l
		WHERE l.source_id IN (%s) AND l.strength >= ?
		ORDER BY l.strength DESC`, joinPlaceholders(placeholders))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: sqlite: fetch_links: %v", memerrs.ErrPersistence, err)
	}
	defer rows.Close()

	best := make(map[string]float64)
	var order []string
	for rows.Next() {
		var targetID string
		var strength float64
		if err := rows.Scan(&targetID, &strength); err != nil {
			return nil, fmt.Errorf("%w: sqlite: fetch_links scan: %v", memerrs.ErrPersistence, err)
		}
		if sourceSet[targetID] {
			continue
		}
		if cur, ok := best[targetID]; !ok || strength > cur {
			if !ok {
				order = append(order, targetID)
			}
			best[targetID] = strength
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: sqlite: fetch_links rows: %v", memerrs.ErrPersistence, err)
	}

	now := time.Now().UTC()
	out := make([]types.Associated, 0, len(order))
	for _, id := range order {
		m, err := s.Get(ctx, id)
		if err == memerrs.ErrNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		r := retention.Compute(m.Stability, m.Importance, m.LastAccessed, now, m.ExpiresAt, s.decayBaseDays)
		out = append(out, types.Associated{Memory: *m, LinkStrength: best[id], Retention: r})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].LinkStrength != out[j].LinkStrength {
			return out[i].LinkStrength > out[j].LinkStrength
		}
		return out[i].Retention > out[j].Retention
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func joinPlaceholders(ps []string) string {
	out := ps[0]
	for _, p := range ps[1:] {
		out += "," + p
	}
	return out
}

// KNN loads every active memory for the agent and ranks in Go, since
// SQLite has no native vector index.
func (s *Store) KNN(ctx context.Context, q storage.KNNQuery) ([]types.Scored, error) {
	if q.K <= 0 {
		q.K = 5
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+rowColumns+` FROM memories WHERE agent_id = ? AND is_deleted = 0`, q.AgentID)
	if err != nil {
		return nil, fmt.Errorf("%w: sqlite: knn: %v", memerrs.ErrPersistence, err)
	}
	defer rows.Close()

	typeAllowed := func(t types.MemoryType) bool {
		if len(q.TypeFilter) == 0 {
			return true
		}
		for _, f := range q.TypeFilter {
			if f == t {
				return true
			}
		}
		return false
	}

	now := time.Now().UTC()
	var out []types.Scored
	for rows.Next() {
		r, err := scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: sqlite: knn scan: %v", memerrs.ErrPersistence, err)
		}
		m, err := r.toMemory()
		if err != nil {
			return nil, fmt.Errorf("%w: sqlite: knn decode: %v", memerrs.ErrPersistence, err)
		}
		if !typeAllowed(m.MemoryType) {
			continue
		}

		ret := retention.Compute(m.Stability, m.Importance, m.LastAccessed, now, m.ExpiresAt, s.decayBaseDays)
		if q.MinRetention > 0 && ret < q.MinRetention {
			continue
		}

		sim := 0.0
		if len(q.Vector) > 0 && len(m.Embedding) > 0 {
			sim = cosineSimilarity(q.Vector, m.Embedding)
		}
		out = append(out, types.Scored{Memory: m, Similarity: sim, Retention: ret})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: sqlite: knn rows: %v", memerrs.ErrPersistence, err)
	}

	sort.SliceStable(out, func(i, j int) bool {
		si, sj := out[i].Similarity*out[i].Retention, out[j].Similarity*out[j].Retention
		if si != sj {
			return si > sj
		}
		if !out[i].Memory.CreatedAt.Equal(out[j].Memory.CreatedAt) {
			return out[i].Memory.CreatedAt.After(out[j].Memory.CreatedAt)
		}
		return out[i].Memory.ID < out[j].Memory.ID
	})
	if len(out) > q.K {
		out = out[:q.K]
	}
	return out, nil
}

func (s *Store) ScanBelowRetention(ctx context.Context, agentID string, threshold float64, excludeSummaries bool) ([]types.Memory, error) {
	query := `SELECT ` + rowColumns + ` FROM memories WHERE agent_id = ? AND is_deleted = 0`
	if excludeSummaries {
		query += ` AND is_summary = 0`
	}
	rows, err := s.db.QueryContext(ctx, query, agentID)
	if err != nil {
		return nil, fmt.Errorf("%w: sqlite: scan_below_retention: %v", memerrs.ErrPersistence, err)
	}
	defer rows.Close()

	now := time.Now().UTC()
	var out []types.Memory
	for rows.Next() {
		r, err := scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: sqlite: scan_below_retention: %v", memerrs.ErrPersistence, err)
		}
		m, err := r.toMemory()
		if err != nil {
			return nil, fmt.Errorf("%w: sqlite: scan_below_retention: %v", memerrs.ErrPersistence, err)
		}
		if retention.Compute(m.Stability, m.Importance, m.LastAccessed, now, m.ExpiresAt, s.decayBaseDays) < threshold {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, rows.Err()
}

func (s *Store) ScanPromotion(ctx context.Context, agentID string, stabilityMin float64, accessCountMin int) ([]types.Memory, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+rowColumns+` FROM memories
		 WHERE agent_id = ? AND is_deleted = 0 AND memory_type = 'semantic'
		   AND stability >= ? AND access_count >= ?`,
		agentID, stabilityMin, accessCountMin)
	if err != nil {
		return nil, fmt.Errorf("%w: sqlite: scan_promotion: %v", memerrs.ErrPersistence, err)
	}
	defer rows.Close()

	var out []types.Memory
	for rows.Next() {
		r, err := scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: sqlite: scan_promotion: %v", memerrs.ErrPersistence, err)
		}
		m, err := r.toMemory()
		if err != nil {
			return nil, fmt.Errorf("%w: sqlite: scan_promotion: %v", memerrs.ErrPersistence, err)
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, rows.Err()
}

func (s *Store) SoftDeleteDormant(ctx context.Context, agentID string, retentionCutoff float64, dormantFor time.Duration) (int, error) {
	candidates, err := s.ScanBelowRetention(ctx, agentID, retentionCutoff, true)
	if err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: sqlite: soft_delete_dormant: %v", memerrs.ErrPersistence, err)
	}
	defer tx.Rollback()

	cutoff := time.Now().UTC().Add(-dormantFor)
	n := 0
	for _, m := range candidates {
		if m.LastAccessed.After(cutoff) {
			continue
		}
		if _, err := tx.ExecContext(ctx, `UPDATE memories SET is_deleted = 1 WHERE id = ?`, m.ID); err != nil {
			return 0, fmt.Errorf("%w: sqlite: soft_delete_dormant: %v", memerrs.ErrPersistence, err)
		}
		n++
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("%w: sqlite: soft_delete_dormant: %v", memerrs.ErrPersistence, err)
	}
	return n, nil
}

func (s *Store) MarkSummarized(ctx context.Context, ids []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: sqlite: mark_summarized: %v", memerrs.ErrPersistence, err)
	}
	defer tx.Rollback()

	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, `UPDATE memories SET is_summary = 1 WHERE id = ?`, id); err != nil {
			return fmt.Errorf("%w: sqlite: mark_summarized: %v", memerrs.ErrPersistence, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: sqlite: mark_summarized: %v", memerrs.ErrPersistence, err)
	}
	return nil
}

// TruncateForTest clears both tables; used only by tests.
func (s *Store) TruncateForTest(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM memory_links`); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM memories`)
	return err
}
