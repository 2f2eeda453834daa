// README: Bounded retry combinator with linear backoff and pluggable error classification.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrExhausted wraps the last retryable error once every attempt has failed.
var ErrExhausted = errors.New("retries exhausted")

type Policy struct {
	Attempts  int
	Backoff   time.Duration
	Retryable func(error) bool
}

// Do runs fn until it succeeds, returns a non-retryable error, or the policy
// runs out of attempts. Attempt n sleeps n*Backoff before the next try.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 1; i <= attempts; i++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}
		if p.Retryable == nil || !p.Retryable(err) {
			return err
		}
		if i == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(i) * p.Backoff):
		}
	}
	return fmt.Errorf("%w after %d attempts: %w", ErrExhausted, attempts, err)
}
