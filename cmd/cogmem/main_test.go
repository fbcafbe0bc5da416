package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractConfigFlag_SeparateArg(t *testing.T) {
	path, rest := extractConfigFlag([]string{"--agent", "a1", "--config", "cfg.yaml", "--content", "hi"})
	assert.Equal(t, "cfg.yaml", path)
	assert.Equal(t, []string{"--agent", "a1", "--content", "hi"}, rest)
}

func TestExtractConfigFlag_EqualsForm(t *testing.T) {
	path, rest := extractConfigFlag([]string{"--config=cfg.yaml", "--agent", "a1"})
	assert.Equal(t, "cfg.yaml", path)
	assert.Equal(t, []string{"--agent", "a1"}, rest)
}

func TestExtractConfigFlag_Absent(t *testing.T) {
	path, rest := extractConfigFlag([]string{"--agent", "a1"})
	assert.Equal(t, "", path)
	assert.Equal(t, []string{"--agent", "a1"}, rest)
}

func TestIsPostgresDSN(t *testing.T) {
	assert.True(t, isPostgresDSN("postgres://user@host/db"))
	assert.True(t, isPostgresDSN("postgresql://user@host/db"))
	assert.False(t, isPostgresDSN("./local.db"))
	assert.False(t, isPostgresDSN(":memory:"))
}

func TestSplitCSV(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, splitCSV("a, b ,c"))
	assert.Empty(t, splitCSV(""))
}

func TestRunStore_RequiresAgentAndContent(t *testing.T) {
	_, err := runStore(context.Background(), nil, []string{"--agent", "a1"})
	assert.Error(t, err)
}

func TestRunRetrieve_RequiresAgentAndQuery(t *testing.T) {
	_, err := runRetrieve(context.Background(), nil, []string{"--agent", "a1"})
	assert.Error(t, err)
}

func TestRunConsolidate_RequiresAgent(t *testing.T) {
	_, err := runConsolidate(context.Background(), nil, nil)
	assert.Error(t, err)
}

func TestRunLink_RequiresSourceAndTarget(t *testing.T) {
	_, err := runLink(context.Background(), nil, []string{"--source", "a"})
	assert.Error(t, err)
}

func TestRunExtractTopics_RequiresText(t *testing.T) {
	_, err := runExtractTopics(context.Background(), nil, nil)
	assert.Error(t, err)
}

func TestRunScoreImportance_RequiresText(t *testing.T) {
	_, err := runScoreImportance(context.Background(), nil, nil)
	assert.Error(t, err)
}

func TestRunSummarize_RequiresAgentAndIDs(t *testing.T) {
	_, err := runSummarize(context.Background(), nil, []string{"--agent", "a1"})
	assert.Error(t, err)
}

func TestRun_UnknownSubcommand(t *testing.T) {
	assert.Equal(t, 1, run([]string{"not-a-command"}))
}

func TestRun_NoArgs(t *testing.T) {
	assert.Equal(t, 1, run(nil))
}
