// Package retry implements the bounded retry policy shared by the encode and
// sync stages: a fixed attempt budget with exponential backoff, aborted by
// context cancellation. Only errors wrapped as model.TransientError are
// retried; anything else is terminal immediately.
package retry

import (
	"context"
	"errors"
	"time"

	"trackforge/model"
)

// Policy is a reusable retry strategy.
type Policy struct {
	Attempts int           // total attempts, minimum 1
	Backoff  time.Duration // wait before attempt n is Backoff << (n-1)
}

// Do runs fn until it succeeds, returns a non-transient error, the attempt
// budget is spent, or ctx is cancelled. The last error is returned.
func (p Policy) Do(ctx context.Context, fn func() error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			wait := p.Backoff << (attempt - 2)
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err = fn()
		if err == nil {
			return nil
		}

		var transient *model.TransientError
		if !errors.As(err, &transient) {
			return err
		}
		if ctx.Err() != nil {
			return err
		}
	}
	return err
}
