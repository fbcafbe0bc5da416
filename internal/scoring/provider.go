// Package scoring defines the scoring port (C3): the abstracted
// external capability the engine calls to embed content, extract
// topics, score importance, and summarize groups of memories.
package scoring

import (
	"context"
	"fmt"

	"github.com/bhekanik/cogmem/pkg/types"
)

// DefaultImportance is substituted by callers when score_importance
// fails to parse a usable float from the provider's response (§4.3).
const DefaultImportance = 0.5

// Provider is the scoring port (C3). Every method may block on I/O;
// implementations are expected to carry their own timeout and
// circuit-breaking policy (see CircuitBreaker in this package).
type Provider interface {
	// Embed returns a fixed-dimension vector for text. Deterministic
	// within a provider session.
	Embed(ctx context.Context, text string) ([]float32, error)

	// ExtractTopics returns up to maxK short keyword-like topics.
	ExtractTopics(ctx context.Context, text string, maxK int) ([]string, error)

	// ScoreImportance returns a float in [0,1]. Callers clamp to
	// DefaultImportance on parse failure rather than propagating an
	// error for this operation specifically (§4.3, §7).
	ScoreImportance(ctx context.Context, text string, context_ string) (float64, error)

	// Summarize produces a concise gist of memories preserving key
	// facts. memories MUST be non-empty; a single-element slice
	// returns that memory's content verbatim.
	Summarize(ctx context.Context, memories []types.Memory) (string, error)

	// Model returns the identifier of the underlying model, used in
	// diagnostic logging.
	Model() string
}

// ErrEmptySummarizeInput is returned by a well-behaved Provider.Summarize
// when called with no memories; callers are expected never to trigger
// this (§4.3: "caller MUST NOT pass an empty list").
var ErrEmptySummarizeInput = fmt.Errorf("scoring: summarize requires at least one memory")
