package scoring

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bhekanik/cogmem/pkg/types"
)

func TestFakeEmbedDeterministic(t *testing.T) {
	f := NewFake(8)
	a, err := f.Embed(context.Background(), "hello world")
	require.NoError(t, err)
	b, err := f.Embed(context.Background(), "hello world")
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestFakeEmbedDistinctForDistinctText(t *testing.T) {
	f := NewFake(8)
	a, err := f.Embed(context.Background(), "hello world")
	require.NoError(t, err)
	b, err := f.Embed(context.Background(), "goodbye world")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestFakeScoreImportanceDefaultsWhenUnset(t *testing.T) {
	f := NewFake(8)
	got, err := f.ScoreImportance(context.Background(), "anything", "")
	require.NoError(t, err)
	assert.Equal(t, DefaultImportance, got)
}

func TestFakeScoreImportanceHonorsOverride(t *testing.T) {
	f := NewFake(8)
	f.ImportanceByText["important fact"] = 0.9
	got, err := f.ScoreImportance(context.Background(), "important fact", "")
	require.NoError(t, err)
	assert.Equal(t, 0.9, got)
}

func TestFakeSummarizeSingleMemoryVerbatim(t *testing.T) {
	f := NewFake(8)
	got, err := f.Summarize(context.Background(), []types.Memory{{Content: "only one"}})
	require.NoError(t, err)
	assert.Equal(t, "only one", got)
}

func TestFakeSummarizeRejectsEmptyInput(t *testing.T) {
	f := NewFake(8)
	_, err := f.Summarize(context.Background(), nil)
	assert.True(t, errors.Is(err, ErrEmptySummarizeInput))
}
