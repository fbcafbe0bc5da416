package scoring

import (
	"context"
	"strings"

	"github.com/bhekanik/cogmem/pkg/types"
)

// Fake is an in-memory Provider for use in engine tests: deterministic,
// no I/O, no circuit breaker. Embed hashes text into a fixed-dimension
// vector so that identical content produces identical (and therefore
// maximally similar) vectors, and distinct content produces distinct
// ones — enough to exercise dedup and kNN ordering without a real
// embedding model.
type Fake struct {
	Dim              int
	ImportanceByText map[string]float64
	TopicsByText     map[string][]string
	FailEmbed        error
	FailScore        error
	FailSummarize    error
}

var _ Provider = (*Fake)(nil)

func NewFake(dim int) *Fake {
	return &Fake{
		Dim:              dim,
		ImportanceByText: make(map[string]float64),
		TopicsByText:     make(map[string][]string),
	}
}

func (f *Fake) Model() string { return "fake" }

func (f *Fake) Embed(ctx context.Context, text string) ([]float32, error) {
	if f.FailEmbed != nil {
		return nil, f.FailEmbed
	}
	v := make([]float32, f.Dim)
	for i, c := range text {
		v[i%f.Dim] += float32(c)
	}
	return v, nil
}

func (f *Fake) ExtractTopics(ctx context.Context, text string, maxK int) ([]string, error) {
	if topics, ok := f.TopicsByText[text]; ok {
		if maxK > 0 && len(topics) > maxK {
			return topics[:maxK], nil
		}
		return topics, nil
	}
	words := strings.Fields(strings.ToLower(text))
	if maxK <= 0 {
		maxK = 5
	}
	if len(words) > maxK {
		words = words[:maxK]
	}
	return words, nil
}

func (f *Fake) ScoreImportance(ctx context.Context, text string, context_ string) (float64, error) {
	if f.FailScore != nil {
		return 0, f.FailScore
	}
	if v, ok := f.ImportanceByText[text]; ok {
		return v, nil
	}
	return DefaultImportance, nil
}

func (f *Fake) Summarize(ctx context.Context, memories []types.Memory) (string, error) {
	if f.FailSummarize != nil {
		return "", f.FailSummarize
	}
	if len(memories) == 0 {
		return "", ErrEmptySummarizeInput
	}
	if len(memories) == 1 {
		return memories[0].Content, nil
	}
	parts := make([]string, len(memories))
	for i, m := range memories {
		parts[i] = m.Content
	}
	return "summary of: " + strings.Join(parts, "; "), nil
}
