package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bhekanik/cogmem/internal/scoring"
)

func newTestEngine(t *testing.T) (*Engine, *fakeStore, *scoring.Fake) {
	t.Helper()
	store := newFakeStore()
	provider := scoring.NewFake(8)
	eng, err := New(store, provider, DefaultDefaults())
	require.NoError(t, err)
	return eng, store, provider
}

func TestEngine_StoreCreatesNewMemory(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	res, err := eng.Store(context.Background(), WriteRequest{AgentID: "agent-1", Content: "the sky is blue"})
	require.NoError(t, err)
	assert.Equal(t, ActionCreated, res.Action)
	assert.NotEmpty(t, res.ID)
}

func TestEngine_StoreReinforcesNearDuplicate(t *testing.T) {
	eng, store, _ := newTestEngine(t)
	first, err := eng.Store(context.Background(), WriteRequest{AgentID: "agent-1", Content: "the sky is blue"})
	require.NoError(t, err)

	second, err := eng.Store(context.Background(), WriteRequest{AgentID: "agent-1", Content: "the sky is blue"})
	require.NoError(t, err)

	assert.Equal(t, ActionReinforced, second.Action)
	assert.Equal(t, first.ID, second.ID)
	assert.InDelta(t, 1.0, second.Similarity, 1e-9)

	m, err := store.Get(context.Background(), first.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, m.AccessCount)
}

func TestEngine_StoreSkipDedupAlwaysInserts(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	first, err := eng.Store(context.Background(), WriteRequest{AgentID: "agent-1", Content: "the sky is blue"})
	require.NoError(t, err)

	second, err := eng.Store(context.Background(), WriteRequest{AgentID: "agent-1", Content: "the sky is blue", SkipDedup: true})
	require.NoError(t, err)

	assert.Equal(t, ActionCreated, second.Action)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestEngine_StoreAutoScoresImportance(t *testing.T) {
	eng, store, provider := newTestEngine(t)
	provider.ImportanceByText["the launch code is 1234"] = 0.95

	res, err := eng.Store(context.Background(), WriteRequest{
		AgentID:             "agent-1",
		Content:             "the launch code is 1234",
		AutoScoreImportance: true,
	})
	require.NoError(t, err)

	m, err := store.Get(context.Background(), res.ID)
	require.NoError(t, err)
	assert.Equal(t, 0.95, m.Importance)
}

func TestEngine_StoreDefaultsImportanceWhenNotAutoScored(t *testing.T) {
	eng, store, _ := newTestEngine(t)
	res, err := eng.Store(context.Background(), WriteRequest{AgentID: "agent-1", Content: "something unremarkable"})
	require.NoError(t, err)

	m, err := store.Get(context.Background(), res.ID)
	require.NoError(t, err)
	assert.Equal(t, scoring.DefaultImportance, m.Importance)
}

func TestEngine_StoreAutoExtractsTopics(t *testing.T) {
	eng, store, provider := newTestEngine(t)
	provider.TopicsByText["deploying the new release"] = []string{"deployment", "release"}

	res, err := eng.Store(context.Background(), WriteRequest{
		AgentID:           "agent-1",
		Content:           "deploying the new release",
		AutoExtractTopics: true,
	})
	require.NoError(t, err)

	m, err := store.Get(context.Background(), res.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"deployment", "release"}, m.Topics)
}

func TestEngine_StoreRejectsMissingContent(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	_, err := eng.Store(context.Background(), WriteRequest{AgentID: "agent-1"})
	assert.Error(t, err)
}
