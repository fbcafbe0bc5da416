package scoring

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/bhekanik/cogmem/pkg/types"
)

// Throttle wraps a Provider with an outbound call rate limit, re-wired
// from the HTTP request-throttling idiom (rate.NewLimiter + Wait) onto
// every scoring-port call instead of inbound HTTP requests.
type Throttle struct {
	next    Provider
	limiter *rate.Limiter
}

var _ Provider = (*Throttle)(nil)

// NewThrottle limits calls to next to reqPerSec, with burst allowed in
// a single instant.
func NewThrottle(next Provider, reqPerSec float64, burst int) *Throttle {
	return &Throttle{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(reqPerSec), burst),
	}
}

func (t *Throttle) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return t.next.Embed(ctx, text)
}

func (t *Throttle) ExtractTopics(ctx context.Context, text string, maxK int) ([]string, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return t.next.ExtractTopics(ctx, text, maxK)
}

func (t *Throttle) ScoreImportance(ctx context.Context, text string, context_ string) (float64, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return DefaultImportance, err
	}
	return t.next.ScoreImportance(ctx, text, context_)
}

func (t *Throttle) Summarize(ctx context.Context, memories []types.Memory) (string, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return "", err
	}
	return t.next.Summarize(ctx, memories)
}

func (t *Throttle) Model() string {
	return t.next.Model()
}
