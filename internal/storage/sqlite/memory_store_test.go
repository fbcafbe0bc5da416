package sqlite_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bhekanik/cogmem/internal/memerrs"
	"github.com/bhekanik/cogmem/internal/storage"
	"github.com/bhekanik/cogmem/internal/storage/sqlite"
	"github.com/bhekanik/cogmem/pkg/types"
)

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.NewStore(":memory:", 0)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func insertTestMemory(t *testing.T, store *sqlite.Store, agentID, content string) string {
	t.Helper()
	id, _, err := store.Insert(context.Background(), storage.InsertRequest{
		AgentID:    agentID,
		Content:    content,
		MemoryType: types.Episodic,
		Importance: 0.5,
		Stability:  0.3,
	})
	require.NoError(t, err)
	return id
}

func TestStore_InsertAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id := insertTestMemory(t, store, "agent-1", "remember the launch date")

	got, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "agent-1", got.AgentID)
	assert.Equal(t, "remember the launch date", got.Content)
	assert.Equal(t, 0, got.AccessCount)
}

func TestStore_GetNotFound(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, memerrs.ErrNotFound)
}

func TestStore_Reinforce(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id := insertTestMemory(t, store, "agent-1", "reinforce me")
	before, err := store.Get(ctx, id)
	require.NoError(t, err)

	require.NoError(t, store.Reinforce(ctx, id))

	after, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, before.AccessCount+1, after.AccessCount)
}

func TestStore_UpsertLinkSymmetric(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	a := insertTestMemory(t, store, "agent-1", "memory a")
	b := insertTestMemory(t, store, "agent-1", "memory b")

	require.NoError(t, store.UpsertLink(ctx, a, b, 0.1))

	linksFromA, err := store.FetchLinks(ctx, []string{a}, 0, 10)
	require.NoError(t, err)
	require.Len(t, linksFromA, 1)
	assert.Equal(t, b, linksFromA[0].Memory.ID)
	assert.InDelta(t, 0.5, linksFromA[0].LinkStrength, 1e-9)

	linksFromB, err := store.FetchLinks(ctx, []string{b}, 0, 10)
	require.NoError(t, err)
	require.Len(t, linksFromB, 1)
	assert.Equal(t, a, linksFromB[0].Memory.ID)
}

func TestStore_UpsertLinkRejectsSelfLoop(t *testing.T) {
	store := newTestStore(t)
	a := insertTestMemory(t, store, "agent-1", "solo")
	err := store.UpsertLink(context.Background(), a, a, 0.1)
	assert.Error(t, err)
}

func TestStore_KNNRanksBySimilarityTimesRetention(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	closeID, _, err := store.Insert(ctx, storage.InsertRequest{
		AgentID: "agent-1", Content: "close match", MemoryType: types.Episodic,
		Importance: 0.5, Stability: 0.3, Embedding: []float32{1, 0, 0},
	})
	require.NoError(t, err)
	farID, _, err := store.Insert(ctx, storage.InsertRequest{
		AgentID: "agent-1", Content: "far match", MemoryType: types.Episodic,
		Importance: 0.5, Stability: 0.3, Embedding: []float32{0, 1, 0},
	})
	require.NoError(t, err)

	results, err := store.KNN(ctx, storage.KNNQuery{AgentID: "agent-1", Vector: []float32{1, 0, 0}, K: 10})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, closeID, results[0].Memory.ID)
	assert.Equal(t, farID, results[1].Memory.ID)
	assert.Greater(t, results[0].Similarity, results[1].Similarity)
}

func TestStore_ScanBelowRetention(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id := insertTestMemory(t, store, "agent-1", "fading")

	fresh, err := store.ScanBelowRetention(ctx, "agent-1", 0, true)
	require.NoError(t, err)
	assert.Empty(t, fresh)

	decayed, err := store.ScanBelowRetention(ctx, "agent-1", 1.1, true)
	require.NoError(t, err)
	require.Len(t, decayed, 1)
	assert.Equal(t, id, decayed[0].ID)
}

func TestStore_ScanPromotion(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, _, err := store.Insert(ctx, storage.InsertRequest{
		AgentID: "agent-1", Content: "stable fact", MemoryType: types.Semantic,
		Importance: 0.5, Stability: 0.9,
	})
	require.NoError(t, err)
	for i := 0; i < 6; i++ {
		require.NoError(t, store.Reinforce(ctx, id))
	}

	candidates, err := store.ScanPromotion(ctx, "agent-1", 0.8, 5)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, id, candidates[0].ID)
}

func TestStore_SoftDeleteDormantSparesSummaries(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, _, err := store.Insert(ctx, storage.InsertRequest{
		AgentID: "agent-1", Content: "a gist", MemoryType: types.Semantic,
		Importance: 0.5, Stability: 0.3, IsSummary: true,
	})
	require.NoError(t, err)

	n, err := store.SoftDeleteDormant(ctx, "agent-1", 1.1, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	_, err = store.Get(ctx, id)
	assert.NoError(t, err)
}

func TestStore_MarkSummarized(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	a := insertTestMemory(t, store, "agent-1", "detail")
	require.NoError(t, store.MarkSummarized(ctx, []string{a}))

	got, err := store.Get(ctx, a)
	require.NoError(t, err)
	assert.True(t, got.IsSummary)
}
