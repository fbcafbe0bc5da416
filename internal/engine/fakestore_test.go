package engine

import (
	"context"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/bhekanik/cogmem/internal/memerrs"
	"github.com/bhekanik/cogmem/internal/retention"
	"github.com/bhekanik/cogmem/internal/storage"
	"github.com/bhekanik/cogmem/pkg/types"
)

// fakeLink mirrors a single directed edge in the link graph.
type fakeLink struct {
	target   string
	strength float64
}

// fakeStore is a deterministic, in-memory storage.Store for engine
// tests: no I/O, no real clock dependency beyond time.Now() for
// stamping new rows. backdate lets a test move a row's last_accessed
// into the past to exercise retention decay without sleeping.
type fakeStore struct {
	memories map[string]types.Memory
	links    map[string][]fakeLink
	nextID   int
}

var _ storage.Store = (*fakeStore)(nil)

func newFakeStore() *fakeStore {
	return &fakeStore{
		memories: make(map[string]types.Memory),
		links:    make(map[string][]fakeLink),
	}
}

func (s *fakeStore) backdate(id string, lastAccessed time.Time) {
	m := s.memories[id]
	m.LastAccessed = lastAccessed
	s.memories[id] = m
}

func (s *fakeStore) setStability(id string, stability float64) {
	m := s.memories[id]
	m.Stability = stability
	s.memories[id] = m
}

func (s *fakeStore) Insert(ctx context.Context, req storage.InsertRequest) (string, time.Time, error) {
	s.nextID++
	now := time.Now()
	id := "fake-" + strconv.Itoa(s.nextID)
	s.memories[id] = types.Memory{
		ID:            id,
		AgentID:       req.AgentID,
		Content:       req.Content,
		Embedding:     req.Embedding,
		MemoryType:    req.MemoryType,
		Topics:        req.Topics,
		Importance:    req.Importance,
		Stability:     req.Stability,
		CreatedAt:     now,
		EventDate:     req.EventDate,
		ExpiresAt:     req.ExpiresAt,
		LastAccessed:  now,
		SourceChannel: req.SourceChannel,
		SourceSession: req.SourceSession,
		Summarizes:    req.Summarizes,
		IsSummary:     req.IsSummary,
	}
	return id, now, nil
}

func (s *fakeStore) Get(ctx context.Context, id string) (*types.Memory, error) {
	m, ok := s.memories[id]
	if !ok || m.IsDeleted {
		return nil, memerrs.ErrNotFound
	}
	cp := m
	return &cp, nil
}

func (s *fakeStore) Reinforce(ctx context.Context, id string) error {
	m, ok := s.memories[id]
	if !ok || m.IsDeleted {
		return memerrs.ErrNotFound
	}
	now := time.Now()
	m.Stability = retention.Reinforce(m.Stability, m.LastAccessed, now)
	m.LastAccessed = now
	m.AccessCount++
	s.memories[id] = m
	return nil
}

func (s *fakeStore) UpsertLink(ctx context.Context, source, target string, increment float64) error {
	upsert := func(a, b string) {
		edges := s.links[a]
		for i, e := range edges {
			if e.target == b {
				edges[i].strength = math.Min(1.0, e.strength+increment)
				s.links[a] = edges
				return
			}
		}
		s.links[a] = append(s.links[a], fakeLink{target: b, strength: 0.5})
	}
	upsert(source, target)
	upsert(target, source)
	return nil
}

func (s *fakeStore) FetchLinks(ctx context.Context, sourceIDs []string, strengthMin float64, limit int) ([]types.Associated, error) {
	inSources := make(map[string]bool, len(sourceIDs))
	for _, id := range sourceIDs {
		inSources[id] = true
	}

	best := make(map[string]float64)
	for _, src := range sourceIDs {
		edges := append([]fakeLink(nil), s.links[src]...)
		sort.Slice(edges, func(i, j int) bool { return edges[i].strength > edges[j].strength })
		for _, e := range edges {
			if e.strength < strengthMin {
				continue
			}
			if inSources[e.target] {
				continue
			}
			m, ok := s.memories[e.target]
			if !ok || m.IsDeleted {
				continue
			}
			if cur, ok := best[e.target]; !ok || e.strength > cur {
				best[e.target] = e.strength
			}
		}
	}

	targets := make([]string, 0, len(best))
	for id := range best {
		targets = append(targets, id)
	}
	sort.Slice(targets, func(i, j int) bool {
		si, sj := best[targets[i]], best[targets[j]]
		if si != sj {
			return si > sj
		}
		ri := retention.Compute(s.memories[targets[i]].Stability, s.memories[targets[i]].Importance, s.memories[targets[i]].LastAccessed, time.Now(), s.memories[targets[i]].ExpiresAt, retention.DefaultDecayBaseDays)
		rj := retention.Compute(s.memories[targets[j]].Stability, s.memories[targets[j]].Importance, s.memories[targets[j]].LastAccessed, time.Now(), s.memories[targets[j]].ExpiresAt, retention.DefaultDecayBaseDays)
		return ri > rj
	})
	if limit > 0 && len(targets) > limit {
		targets = targets[:limit]
	}

	result := make([]types.Associated, 0, len(targets))
	now := time.Now()
	for _, id := range targets {
		m := s.memories[id]
		result = append(result, types.Associated{
			Memory:       m,
			LinkStrength: best[id],
			Retention:    retention.Compute(m.Stability, m.Importance, m.LastAccessed, now, m.ExpiresAt, retention.DefaultDecayBaseDays),
		})
	}
	return result, nil
}

func (s *fakeStore) KNN(ctx context.Context, q storage.KNNQuery) ([]types.Scored, error) {
	now := time.Now()
	var scored []types.Scored
	for _, m := range s.memories {
		if m.IsDeleted || m.AgentID != q.AgentID {
			continue
		}
		if len(q.TypeFilter) > 0 {
			match := false
			for _, t := range q.TypeFilter {
				if t == m.MemoryType {
					match = true
					break
				}
			}
			if !match {
				continue
			}
		}
		ret := retention.Compute(m.Stability, m.Importance, m.LastAccessed, now, m.ExpiresAt, retention.DefaultDecayBaseDays)
		if ret < q.MinRetention {
			continue
		}
		sim := cosine(q.Vector, m.Embedding)
		scored = append(scored, types.Scored{Memory: m, Similarity: sim, Retention: ret})
	}
	sort.Slice(scored, func(i, j int) bool {
		ki, kj := scored[i].Similarity*scored[i].Retention, scored[j].Similarity*scored[j].Retention
		if ki != kj {
			return ki > kj
		}
		if !scored[i].Memory.CreatedAt.Equal(scored[j].Memory.CreatedAt) {
			return scored[i].Memory.CreatedAt.After(scored[j].Memory.CreatedAt)
		}
		return scored[i].Memory.ID < scored[j].Memory.ID
	})
	if q.K > 0 && len(scored) > q.K {
		scored = scored[:q.K]
	}
	return scored, nil
}

func (s *fakeStore) ScanBelowRetention(ctx context.Context, agentID string, threshold float64, excludeSummaries bool) ([]types.Memory, error) {
	now := time.Now()
	var out []types.Memory
	for _, m := range s.memories {
		if m.IsDeleted || m.AgentID != agentID {
			continue
		}
		if excludeSummaries && m.IsSummary {
			continue
		}
		if retention.Compute(m.Stability, m.Importance, m.LastAccessed, now, m.ExpiresAt, retention.DefaultDecayBaseDays) < threshold {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *fakeStore) ScanPromotion(ctx context.Context, agentID string, stabilityMin float64, accessCountMin int) ([]types.Memory, error) {
	var out []types.Memory
	for _, m := range s.memories {
		if m.IsDeleted || m.AgentID != agentID || m.MemoryType != types.Semantic {
			continue
		}
		if m.Stability >= stabilityMin && m.AccessCount >= accessCountMin {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *fakeStore) SoftDeleteDormant(ctx context.Context, agentID string, retentionCutoff float64, dormantFor time.Duration) (int, error) {
	now := time.Now()
	count := 0
	for id, m := range s.memories {
		if m.IsDeleted || m.AgentID != agentID || m.IsSummary {
			continue
		}
		if now.Sub(m.LastAccessed) < dormantFor {
			continue
		}
		if retention.Compute(m.Stability, m.Importance, m.LastAccessed, now, m.ExpiresAt, retention.DefaultDecayBaseDays) >= retentionCutoff {
			continue
		}
		m.IsDeleted = true
		s.memories[id] = m
		count++
	}
	return count, nil
}

func (s *fakeStore) MarkSummarized(ctx context.Context, ids []string) error {
	for _, id := range ids {
		m, ok := s.memories[id]
		if !ok {
			continue
		}
		m.IsSummary = true
		s.memories[id] = m
	}
	return nil
}

func (s *fakeStore) Close() error { return nil }

func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
