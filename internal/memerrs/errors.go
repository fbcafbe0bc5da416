// Package memerrs defines the sentinel error kinds the core and its
// ports surface, and the CLI exit-code mapping for each.
package memerrs

import "errors"

var (
	// ErrConfig marks a missing or invalid configuration option.
	// Fatal; surfaced to the caller immediately.
	ErrConfig = errors.New("config: invalid or missing option")

	// ErrPersistence marks a store-unreachable or constraint-violation
	// failure. The persistence port retries once on transient
	// connection failures before wrapping an error in this sentinel.
	ErrPersistence = errors.New("persistence: operation failed")

	// ErrScoring marks an external scoring-provider failure. Most
	// callers degrade per the policy in score_importance/extract_topics
	// rather than propagate this; embed failures are fatal for the
	// call and do propagate.
	ErrScoring = errors.New("scoring: provider call failed")

	// ErrNotFound marks an operation against a non-existent or
	// already-deleted id.
	ErrNotFound = errors.New("memory: not found")

	// ErrInvariant marks a violated range or dimension invariant; a
	// bug signal, never expected in normal operation.
	ErrInvariant = errors.New("memory: invariant violated")
)

// ExitCode maps an error produced by the engine to one of the exit
// codes named in the CLI surface: 0 success, 1 usage, 2
// configuration/environment error, 3 persistence error, 4
// external-scoring error. Errors that match none of the sentinels
// (including context cancellation) are reported as a generic failure.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrConfig):
		return 2
	case errors.Is(err, ErrPersistence):
		return 3
	case errors.Is(err, ErrScoring):
		return 4
	case errors.Is(err, ErrNotFound):
		return 3
	case errors.Is(err, ErrInvariant):
		return 3
	default:
		return 1
	}
}
