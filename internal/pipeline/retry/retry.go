// Package retry orchestrates bounded retries around a unit of work using
// the canonical error classification.
package retry

import (
	"context"
	"log/slog"
	"time"

	"github.com/vietddude/b24/internal/pipeline/classify"
	"github.com/vietddude/b24/internal/pipeline/events"
	"github.com/vietddude/b24/internal/pipeline/metrics"
)

// Work is the retried unit. The caller guarantees it is idempotent or
// otherwise safe to repeat.
type Work func(ctx context.Context) (any, error)

// Orchestrator applies bounded retry with classification-driven pacing and
// auth escalation. Rate-limit pacing itself is already enforced by the
// admission controller; the orchestrator only spaces attempts.
type Orchestrator struct {
	hooks *events.Hooks
}

// NewOrchestrator creates an orchestrator with the given hook set.
func NewOrchestrator(hooks *events.Hooks) *Orchestrator {
	return &Orchestrator{hooks: hooks}
}

// Execute runs work up to 1+maxAttempts times. Non-retryable errors and
// exhausted budgets surface the classified error unchanged; auth-required
// failures invoke the auth hook and retry immediately. method labels hooks
// and logs only.
func (o *Orchestrator) Execute(ctx context.Context, method string, work Work, maxAttempts int, baseDelay time.Duration) (any, error) {
	var lastErr *classify.Error

	for attempt := 0; attempt <= maxAttempts; attempt++ {
		result, err := work(ctx)
		if err == nil {
			return result, nil
		}

		ce := classify.From(err)
		lastErr = ce

		if attempt == maxAttempts || (!ce.Retryable && !ce.AuthRequired) {
			return nil, ce
		}

		var delay time.Duration
		switch {
		case ce.AuthRequired:
			// Let the hook re-authenticate out of band, then retry at once.
			o.hooks.AuthRequired(ce)
		case classify.IsRateLimit(ce):
			o.hooks.RateLimited(method, ce)
			delay = pickDelay(ce, baseDelay)
		default:
			delay = pickDelay(ce, baseDelay)
		}

		o.hooks.RetryAttempted(method, attempt+1, delay)
		metrics.RetriesTotal.WithLabelValues(ce.Code).Inc()
		slog.Debug("Retrying after failure", "method", method, "code", ce.Code, "attempt", attempt+1, "delay", delay)

		if delay > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return nil, lastErr
}

// pickDelay prefers the classifier's suggestion, falling back to the
// caller's default.
func pickDelay(err *classify.Error, fallback time.Duration) time.Duration {
	if d := classify.SuggestedDelay(err); d > 0 {
		return d
	}
	return fallback
}
