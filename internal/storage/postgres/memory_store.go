package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/pgvector/pgvector-go"

	"github.com/bhekanik/cogmem/internal/memerrs"
	"github.com/bhekanik/cogmem/internal/retention"
	"github.com/bhekanik/cogmem/internal/storage"
	"github.com/bhekanik/cogmem/pkg/types"
)

// retentionExpr is the SQL expression computing retention server-side,
// mirroring internal/retention.Compute exactly (§4.1). alias is the
// table alias the memories columns are read through (e.g. "m").
// decayBaseDays is interpolated as a literal, not a bind parameter,
// since it comes from process config rather than request input.
func retentionExpr(alias string, decayBaseDays float64) string {
	return fmt.Sprintf(`
		CASE
			WHEN %[1]s.expires_at IS NOT NULL AND NOW() > %[1]s.expires_at THEN 0
			ELSE LEAST(1.0, GREATEST(0.0, EXP(
				-(EXTRACT(EPOCH FROM (NOW() - %[1]s.last_accessed)) / 86400.0)
				/ GREATEST(1.0, %[1]s.stability * (1 + 2 * %[1]s.importance) * %[2]g)
			)))
		END`, alias, decayBaseDays)
}

// Store implements the persistence port (storage.Store) using
// PostgreSQL, with pgvector providing the approximate nearest-neighbor
// index when available.
type Store struct {
	db                *sql.DB
	pgvectorAvailable bool
	decayBaseDays     float64
}

var _ storage.Store = (*Store)(nil)

// NewStore opens a PostgreSQL connection pool, applies the schema, and
// probes for the pgvector extension, degrading to a retention-only
// ranking if it is unavailable. decayBaseDays is the retention model's
// time constant (§4.1); pass retention.DefaultDecayBaseDays absent an
// operator override.
func NewStore(dsn string, decayBaseDays float64) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: postgres: open: %v", memerrs.ErrPersistence, err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: postgres: ping: %v", memerrs.ErrPersistence, err)
	}

	if decayBaseDays <= 0 {
		decayBaseDays = retention.DefaultDecayBaseDays
	}
	s := &Store{db: db, decayBaseDays: decayBaseDays}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: postgres: apply schema: %v", memerrs.ErrPersistence, err)
	}

	if _, err := db.Exec("CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		log.Printf("postgres: pgvector extension not available (vector search degraded): %v", err)
		s.pgvectorAvailable = false
	} else {
		s.pgvectorAvailable = true
	}

	if s.pgvectorAvailable {
		if _, err := db.Exec(MigrationPgvector); err != nil {
			log.Printf("postgres: failed to apply pgvector migration (vector search degraded): %v", err)
			s.pgvectorAvailable = false
		}
	}

	return s, nil
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// withRetry retries a transient connection failure once (§7:
// "retried once by the persistence port on transient connection
// failures, else surfaced").
func withRetry(op string, fn func() error) error {
	err := fn()
	if err == nil {
		return nil
	}
	if !isTransient(err) {
		return fmt.Errorf("%w: postgres: %s: %v", memerrs.ErrPersistence, op, err)
	}
	log.Printf("postgres: %s: transient failure, retrying once: %v", op, err)
	if err := fn(); err != nil {
		return fmt.Errorf("%w: postgres: %s (after retry): %v", memerrs.ErrPersistence, op, err)
	}
	return nil
}

func isTransient(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "connection") || strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "EOF") || strings.Contains(msg, "i/o timeout")
}

const memoryColumns = `id, agent_id, content, memory_type, topics, importance, stability,
	created_at, event_date, expires_at, last_accessed, access_count,
	source_channel, source_session, is_summary, summarizes, is_deleted`

// memoryColumnsQualified returns memoryColumns with every column
// qualified by alias.
func memoryColumnsQualified(alias string) string {
	cols := strings.Split(memoryColumns, ",")
	for i, c := range cols {
		cols[i] = alias + "." + strings.TrimSpace(c)
	}
	return strings.Join(cols, ", ")
}

type nullString string

func (n *nullString) Scan(v interface{}) error {
	if v == nil {
		*n = ""
		return nil
	}
	switch t := v.(type) {
	case string:
		*n = nullString(t)
	case []byte:
		*n = nullString(t)
	}
	return nil
}

func scanMemory(row *sql.Row) (types.Memory, error) {
	var m types.Memory
	var eventDate, expiresAt sql.NullTime
	var topics, summarizes pq.StringArray
	var sourceChannel, sourceSession nullString

	err := row.Scan(
		&m.ID, &m.AgentID, &m.Content, &m.MemoryType, &topics, &m.Importance, &m.Stability,
		&m.CreatedAt, &eventDate, &expiresAt, &m.LastAccessed, &m.AccessCount,
		&sourceChannel, &sourceSession,
		&m.IsSummary, &summarizes, &m.IsDeleted,
	)
	if err != nil {
		return types.Memory{}, err
	}
	m.Topics = []string(topics)
	m.Summarizes = []string(summarizes)
	m.SourceChannel = string(sourceChannel)
	m.SourceSession = string(sourceSession)
	if eventDate.Valid {
		m.EventDate = &eventDate.Time
	}
	if expiresAt.Valid {
		m.ExpiresAt = &expiresAt.Time
	}
	return m, nil
}

func (s *Store) Get(ctx context.Context, id string) (*types.Memory, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+memoryColumns+` FROM memories WHERE id = $1 AND is_deleted = FALSE`, id)
	m, err := scanMemory(row)
	if err == sql.ErrNoRows {
		return nil, memerrs.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: postgres: get: %v", memerrs.ErrPersistence, err)
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

	id := uuid.New().String()
	var createdAt time.Time

	insert := func() error {
		columns := `id, agent_id, content, memory_type, topics, importance, stability,
			event_date, expires_at, source_channel, source_session, summarizes, is_summary`
		placeholders := `$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13`
		args := []interface{}{
			id, req.AgentID, req.Content, string(req.MemoryType), pq.Array(req.Topics),
			req.Importance, stability, req.EventDate, req.ExpiresAt,
			nullableArg(req.SourceChannel), nullableArg(req.SourceSession),
			pq.Array(req.Summarizes), req.IsSummary,
		}

		if s.pgvectorAvailable && len(req.Embedding) > 0 {
			columns += ", embedding"
			placeholders += ", $14"
			args = append(args, pgvector.NewVector(req.Embedding))
		}

		query := fmt.Sprintf(`INSERT INTO memories (%s) VALUES (%s) RETURNING created_at`, columns, placeholders)
		return s.db.QueryRowContext(ctx, query, args...).Scan(&createdAt)
	}

	if err := withRetry("insert", insert); err != nil {
		return "", time.Time{}, err
	}
	return id, createdAt, nil
}

func nullableArg(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// Reinforce applies the reinforcement transaction (§4.4) atomically:
// stability bumped by the spacing bonus, last_accessed set to now,
// access_count incremented.
func (s *Store) Reinforce(ctx context.Context, id string) error {
	const query = `
		UPDATE memories
		SET stability = LEAST(1.0, stability + 0.1 * LEAST(2.0,
				EXTRACT(EPOCH FROM (NOW() - last_accessed)) / 86400.0 / 7.0
			)),
			access_count = access_count + 1,
			last_accessed = NOW()
		WHERE id = $1 AND is_deleted = FALSE`

	return withRetry("reinforce", func() error {
		res, err := s.db.ExecContext(ctx, query, id)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return memerrs.ErrNotFound
		}
		return nil
	})
}

// UpsertLink applies the symmetric link upsert (§4.6) to both
// directions in a single transaction.
func (s *Store) UpsertLink(ctx context.Context, source, target string, increment float64) error {
	if source == target {
		return fmt.Errorf("%w: link source and target must differ", memerrs.ErrInvariant)
	}

	return withRetry("upsert_link", func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		const upsert = `
			INSERT INTO memory_links (source_id, target_id, strength)
			VALUES ($1, $2, 0.5)
			ON CONFLICT (source_id, target_id) DO UPDATE SET
				strength = LEAST(1.0, memory_links.strength + $3),
				updated_at = NOW()`

		if _, err := tx.ExecContext(ctx, upsert, source, target, increment); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, upsert, target, source, increment); err != nil {
			return err
		}
		return tx.Commit()
	})
}

// FetchLinks returns the associated memories reachable from sourceIDs
// via an edge with strength >= strengthMin, deduplicated across
// sources by keeping the strongest edge, capped at limit (§4.5).
func (s *Store) FetchLinks(ctx context.Context, sourceIDs []string, strengthMin float64, limit int) ([]types.Associated, error) {
	if len(sourceIDs) == 0 {
		return nil, nil
	}

	query := `
		SELECT ` + memoryColumnsQualified("m") + `, l.strength, ` + retentionExpr("m", s.decayBaseDays) + ` AS retention
		FROM memory_links l
		JOIN memories m ON m.id = l.target_id
		WHERE l.source_id = ANY($1) AND l.strength >= $2
			AND m.is_deleted = FALSE AND NOT (m.id = ANY($1))
		ORDER BY l.strength DESC`

	rows, err := s.db.QueryContext(ctx, query, pq.Array(sourceIDs), strengthMin)
	if err != nil {
		return nil, fmt.Errorf("%w: postgres: fetch_links: %v", memerrs.ErrPersistence, err)
	}
	defer rows.Close()

	best := make(map[string]types.Associated)
	var order []string
	for rows.Next() {
		var m types.Memory
		var eventDate, expiresAt sql.NullTime
		var topics, summarizes pq.StringArray
		var sourceChannel, sourceSession nullString
		var strength, retention float64

		if err := rows.Scan(
			&m.ID, &m.AgentID, &m.Content, &m.MemoryType, &topics, &m.Importance, &m.Stability,
			&m.CreatedAt, &eventDate, &expiresAt, &m.LastAccessed, &m.AccessCount,
			&sourceChannel, &sourceSession,
			&m.IsSummary, &summarizes, &m.IsDeleted,
			&strength, &retention,
		); err != nil {
			return nil, fmt.Errorf("%w: postgres: fetch_links scan: %v", memerrs.ErrPersistence, err)
		}
		m.Topics = []string(topics)
		m.Summarizes = []string(summarizes)
		m.SourceChannel = string(sourceChannel)
		m.SourceSession = string(sourceSession)
		if eventDate.Valid {
			m.EventDate = &eventDate.Time
		}
		if expiresAt.Valid {
			m.ExpiresAt = &expiresAt.Time
		}

		if existing, ok := best[m.ID]; !ok || strength > existing.LinkStrength {
			if !ok {
				order = append(order, m.ID)
			}
			best[m.ID] = types.Associated{Memory: m, LinkStrength: strength, Retention: retention}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: postgres: fetch_links rows: %v", memerrs.ErrPersistence, err)
	}

	out := make([]types.Associated, 0, len(order))
	for _, id := range order {
		out = append(out, best[id])
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

// KNN ranks by similarity*retention descending, ties broken by
// created_at desc then id asc (§4.5).
func (s *Store) KNN(ctx context.Context, q storage.KNNQuery) ([]types.Scored, error) {
	if q.K <= 0 {
		q.K = 5
	}

	args := []interface{}{q.AgentID}
	argN := 2

	typeFilterSQL := ""
	if len(q.TypeFilter) > 0 {
		strs := make([]string, len(q.TypeFilter))
		for i, t := range q.TypeFilter {
			strs[i] = string(t)
		}
		typeFilterSQL = fmt.Sprintf(" AND m.memory_type = ANY($%d)", argN)
		args = append(args, pq.Array(strs))
		argN++
	}

	retentionFilterSQL := ""
	if q.MinRetention > 0 {
		retentionFilterSQL = fmt.Sprintf(" AND (%s) >= $%d", retentionExpr("m", s.decayBaseDays), argN)
		args = append(args, q.MinRetention)
		argN++
	}

	var similaritySQL, orderBy string
	if s.pgvectorAvailable && len(q.Vector) > 0 {
		similaritySQL = fmt.Sprintf("1 - (m.embedding <=> $%d::vector)", argN)
		args = append(args, pgvector.NewVector(q.Vector))
		argN++
		orderBy = "(" + similaritySQL + ") * (" + retentionExpr("m", s.decayBaseDays) + ") DESC, m.created_at DESC, m.id ASC"
	} else {
		// No vector available: degrade to a retention-only ranking
		// (§9: ANN recall < 1 must already be tolerated by callers;
		// the no-pgvector case is the extreme of that tolerance).
		similaritySQL = "0"
		orderBy = "(" + retentionExpr("m", s.decayBaseDays) + ") DESC, m.created_at DESC, m.id ASC"
	}

	query := fmt.Sprintf(`
		SELECT %s, (%s) AS similarity, (%s) AS retention
		FROM memories m
		WHERE m.agent_id = $1 AND m.is_deleted = FALSE%s%s
		ORDER BY %s
		LIMIT %d`,
		memoryColumnsQualified("m"), similaritySQL, retentionExpr("m", s.decayBaseDays),
		typeFilterSQL, retentionFilterSQL, orderBy, q.K)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: postgres: knn: %v", memerrs.ErrPersistence, err)
	}
	defer rows.Close()

	var out []types.Scored
	for rows.Next() {
		var m types.Memory
		var eventDate, expiresAt sql.NullTime
		var topics, summarizes pq.StringArray
		var sourceChannel, sourceSession nullString
		var similarity, retention float64

		if err := rows.Scan(
			&m.ID, &m.AgentID, &m.Content, &m.MemoryType, &topics, &m.Importance, &m.Stability,
			&m.CreatedAt, &eventDate, &expiresAt, &m.LastAccessed, &m.AccessCount,
			&sourceChannel, &sourceSession,
			&m.IsSummary, &summarizes, &m.IsDeleted,
			&similarity, &retention,
		); err != nil {
			return nil, fmt.Errorf("%w: postgres: knn scan: %v", memerrs.ErrPersistence, err)
		}
		m.Topics = []string(topics)
		m.Summarizes = []string(summarizes)
		m.SourceChannel = string(sourceChannel)
		m.SourceSession = string(sourceSession)
		if eventDate.Valid {
			m.EventDate = &eventDate.Time
		}
		if expiresAt.Valid {
			m.ExpiresAt = &expiresAt.Time
		}
		out = append(out, types.Scored{Memory: m, Similarity: similarity, Retention: retention})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: postgres: knn rows: %v", memerrs.ErrPersistence, err)
	}
	return out, nil
}

func (s *Store) ScanBelowRetention(ctx context.Context, agentID string, threshold float64, excludeSummaries bool) ([]types.Memory, error) {
	summaryFilter := ""
	if excludeSummaries {
		summaryFilter = " AND m.is_summary = FALSE"
	}
	query := fmt.Sprintf(`
		SELECT %s FROM memories m
		WHERE m.agent_id = $1 AND m.is_deleted = FALSE%s AND (%s) < $2
		ORDER BY m.id`, memoryColumnsQualified("m"), summaryFilter, retentionExpr("m", s.decayBaseDays))

	rows, err := s.db.QueryContext(ctx, query, agentID, threshold)
	if err != nil {
		return nil, fmt.Errorf("%w: postgres: scan_below_retention: %v", memerrs.ErrPersistence, err)
	}
	defer rows.Close()
	return collectMemories(rows)
}

func (s *Store) ScanPromotion(ctx context.Context, agentID string, stabilityMin float64, accessCountMin int) ([]types.Memory, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM memories m
		WHERE m.agent_id = $1 AND m.is_deleted = FALSE AND m.memory_type = 'semantic'
			AND m.stability >= $2 AND m.access_count >= $3
		ORDER BY m.id`, memoryColumnsQualified("m"))

	rows, err := s.db.QueryContext(ctx, query, agentID, stabilityMin, accessCountMin)
	if err != nil {
		return nil, fmt.Errorf("%w: postgres: scan_promotion: %v", memerrs.ErrPersistence, err)
	}
	defer rows.Close()
	return collectMemories(rows)
}

func collectMemories(rows *sql.Rows) ([]types.Memory, error) {
	var out []types.Memory
	for rows.Next() {
		var m types.Memory
		var eventDate, expiresAt sql.NullTime
		var topics, summarizes pq.StringArray
		var sourceChannel, sourceSession nullString

		if err := rows.Scan(
			&m.ID, &m.AgentID, &m.Content, &m.MemoryType, &topics, &m.Importance, &m.Stability,
			&m.CreatedAt, &eventDate, &expiresAt, &m.LastAccessed, &m.AccessCount,
			&sourceChannel, &sourceSession,
			&m.IsSummary, &summarizes, &m.IsDeleted,
		); err != nil {
			return nil, err
		}
		m.Topics = []string(topics)
		m.Summarizes = []string(summarizes)
		m.SourceChannel = string(sourceChannel)
		m.SourceSession = string(sourceSession)
		if eventDate.Valid {
			m.EventDate = &eventDate.Time
		}
		if expiresAt.Valid {
			m.ExpiresAt = &expiresAt.Time
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) SoftDeleteDormant(ctx context.Context, agentID string, retentionCutoff float64, dormantFor time.Duration) (int, error) {
	query := fmt.Sprintf(`
		UPDATE memories m
		SET is_deleted = TRUE
		WHERE m.agent_id = $1 AND m.is_deleted = FALSE AND m.is_summary = FALSE
			AND (%s) < $2
			AND m.last_accessed < NOW() - $3::interval`, retentionExpr("m", s.decayBaseDays))

	var n int
	err := withRetry("soft_delete_dormant", func() error {
		res, err := s.db.ExecContext(ctx, query, agentID, retentionCutoff, fmt.Sprintf("%d seconds", int(dormantFor.Seconds())))
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		n = int(affected)
		return nil
	})
	return n, err
}

func (s *Store) MarkSummarized(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return withRetry("mark_summarized", func() error {
		_, err := s.db.ExecContext(ctx, `UPDATE memories SET is_summary = TRUE WHERE id = ANY($1)`, pq.Array(ids))
		return err
	})
}

// TruncateForTest clears both tables; used only by integration tests.
func (s *Store) TruncateForTest(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `TRUNCATE memory_links, memories`)
	return err
}
