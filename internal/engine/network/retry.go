package network

import (
	"context"

	"github.com/cenkalti/backoff/v4"
)

// Classifier decides whether a failed attempt may be retried. It may repair the cause
// of the failure before returning true.
type Classifier func(ctx context.Context, err error) bool

// Retry runs op until it succeeds, classify rejects its error, or attempts are used up.
// Attempts follow each other immediately; the budget is a count, not a duration.
func Retry(ctx context.Context, attempts int, op func(ctx context.Context) error, classify Classifier) error {
	if attempts < 1 {
		attempts = 1
	}
	policy := backoff.WithContext(
		backoff.WithMaxRetries(&backoff.ZeroBackOff{}, uint64(attempts-1)),
		ctx,
	)
	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		err := op(ctx)
		if err == nil {
			return nil
		}
		// The last failure is returned as is, without running the classifier.
		if attempt >= attempts || !classify(ctx, err) {
			return backoff.Permanent(err)
		}
		return err
	}, policy)
}
