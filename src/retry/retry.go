// Package retry runs operations under a bounded retry policy that respects the
// execution budget of the caller's context.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/mosaicnetworks/herald/src/common"
)

// Policy describes how an operation is retried.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int
	// NewBackOff returns the delays between attempts. Nil means no delay.
	NewBackOff func() backoff.BackOff
	// Retryable tells retryable errors from terminal ones. Nil retries every
	// error.
	Retryable func(error) bool
	// MinBudget is the remaining time an attempt needs. An attempt is not
	// started if the context deadline is closer than that.
	MinBudget time.Duration
}

// Do calls op until it succeeds, returns a terminal error, or MaxAttempts is
// reached, in which case the last error is returned. A started attempt is
// never interrupted by the policy, only the loop is.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context, attempt int) error) error {
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var b backoff.BackOff = &backoff.ZeroBackOff{}
	if p.NewBackOff != nil {
		b = p.NewBackOff()
	}
	b = backoff.WithContext(backoff.WithMaxRetries(b, uint64(maxAttempts-1)), ctx)

	attempt := 0

	err := backoff.Retry(func() error {
		if err := CheckBudget(ctx, p.MinBudget); err != nil {
			return backoff.Permanent(err)
		}

		err := op(ctx, attempt)
		attempt++

		if err != nil && p.Retryable != nil && !p.Retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, b)

	if errors.Is(err, context.DeadlineExceeded) {
		return common.Errorf("Retry", common.DeadlineExceeded, "", "after %d attempts", attempt)
	}

	return err
}

// CheckBudget fails with DeadlineExceeded if ctx is done or its deadline is
// less than min away.
func CheckBudget(ctx context.Context, min time.Duration) error {
	if err := ctx.Err(); err != nil {
		if err == context.DeadlineExceeded {
			return common.Errorf("Retry", common.DeadlineExceeded, "", "context deadline exceeded")
		}
		return err
	}

	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < min {
		return common.Errorf("Retry", common.DeadlineExceeded, "", "%v left, need %v", time.Until(deadline), min)
	}

	return nil
}
