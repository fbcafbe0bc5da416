package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractJSONStripsMarkdownFence(t *testing.T) {
	raw := "```json\n{\"topics\": [\"a\", \"b\"]}\n```"
	got := extractJSON(raw)
	assert.Equal(t, `{"topics": ["a", "b"]}`, got)
}

func TestExtractJSONWithSurroundingProse(t *testing.T) {
	raw := "Sure, here you go: {\"importance\": 0.7} Let me know if that helps!"
	got := extractJSON(raw)
	assert.Equal(t, `{"importance": 0.7}`, got)
}

func TestExtractJSONNoObjectFound(t *testing.T) {
	raw := "no json here"
	assert.Equal(t, raw, extractJSON(raw))
}

func TestParseTopicsTruncatesToMaxK(t *testing.T) {
	raw := `{"topics": ["a", "b", "c", "d"]}`
	got, err := parseTopics(raw, 2)
	assert.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, got)
}

func TestParseImportanceFromJSON(t *testing.T) {
	got, err := parseImportance(`{"importance": 0.42}`)
	assert.NoError(t, err)
	assert.InDelta(t, 0.42, got, 1e-9)
}

func TestParseImportanceFromBareNumber(t *testing.T) {
	got, err := parseImportance("0.85")
	assert.NoError(t, err)
	assert.InDelta(t, 0.85, got, 1e-9)
}

func TestParseImportanceClampsOutOfRange(t *testing.T) {
	got, err := parseImportance(`{"importance": 1.5}`)
	assert.NoError(t, err)
	assert.Equal(t, 1.0, got)
}

func TestParseImportanceFailsOnGarbage(t *testing.T) {
	_, err := parseImportance("not a number or json")
	assert.Error(t, err)
}

func TestParseSummaryFromJSON(t *testing.T) {
	got := parseSummary(`{"summary": "the gist"}`)
	assert.Equal(t, "the gist", got)
}

func TestParseSummaryFallsBackToRawText(t *testing.T) {
	got := parseSummary("  just plain text  ")
	assert.Equal(t, "just plain text", got)
}
