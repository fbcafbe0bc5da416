package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngine_RetrieveReturnsPrimaryAndReinforces(t *testing.T) {
	eng, store, _ := newTestEngine(t)
	written, err := eng.Store(context.Background(), WriteRequest{AgentID: "agent-1", Content: "paris is the capital of france"})
	require.NoError(t, err)

	res, err := eng.Retrieve(context.Background(), ReadRequest{AgentID: "agent-1", Query: "paris is the capital of france"})
	require.NoError(t, err)

	require.Len(t, res.Memories, 1)
	assert.Equal(t, written.ID, res.Memories[0].Memory.ID)
	assert.Equal(t, 1, res.Counts.Memories)

	m, err := store.Get(context.Background(), written.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, m.AccessCount)
}

func TestEngine_RetrieveIncludesAssociations(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	ctx := context.Background()

	a, err := eng.Store(ctx, WriteRequest{AgentID: "agent-1", Content: "memory one"})
	require.NoError(t, err)
	b, err := eng.Store(ctx, WriteRequest{AgentID: "agent-1", Content: "unrelated other memory"})
	require.NoError(t, err)

	require.NoError(t, eng.Link(ctx, a.ID, b.ID, 0.1))

	// Limit 1 keeps b out of the primaries; a memory already returned as
	// a primary is never repeated as an association.
	res, err := eng.Retrieve(ctx, ReadRequest{AgentID: "agent-1", Query: "memory one", Limit: 1, IncludeAssociations: true})
	require.NoError(t, err)

	require.Len(t, res.Associations, 1)
	assert.Equal(t, b.ID, res.Associations[0].Memory.ID)
	assert.InDelta(t, 0.5, res.Associations[0].LinkStrength, 1e-9)
}

func TestEngine_RetrieveWithoutAssociationsOmitsThem(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	ctx := context.Background()

	a, err := eng.Store(ctx, WriteRequest{AgentID: "agent-1", Content: "memory one"})
	require.NoError(t, err)
	b, err := eng.Store(ctx, WriteRequest{AgentID: "agent-1", Content: "unrelated other memory"})
	require.NoError(t, err)
	require.NoError(t, eng.Link(ctx, a.ID, b.ID, 0.1))

	res, err := eng.Retrieve(ctx, ReadRequest{AgentID: "agent-1", Query: "memory one", IncludeAssociations: false})
	require.NoError(t, err)
	assert.Empty(t, res.Associations)
}

func TestEngine_RetrieveRejectsMissingAgent(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	_, err := eng.Retrieve(context.Background(), ReadRequest{Query: "anything"})
	assert.Error(t, err)
}
