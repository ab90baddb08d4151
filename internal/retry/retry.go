// Package retry runs an operation with bounded exponential backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog/log"
)

// Policy bounds a retry loop. The wait before attempt n+1 is
// MinBackoff*2^(n-1), capped at MaxBackoff.
type Policy struct {
	MaxAttempts int
	MinBackoff  time.Duration
	MaxBackoff  time.Duration
}

// Backoff returns the wait after the given failed attempt (1-based).
func (p Policy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return retryablehttp.DefaultBackoff(p.MinBackoff, p.MaxBackoff, attempt-1, nil)
}

func (p Policy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying. Do returns the wrapped error
// immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var perm *permanentError
	return errors.As(err, &perm)
}

// Do calls fn until it succeeds, returns a Permanent error, the policy runs
// out of attempts or ctx is done. The returned error wraps the last failure.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context, attempt int) error) error {
	attempts := p.attempts()

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			if err == nil {
				return ctxErr
			}
			return fmt.Errorf("aborted after %d attempt(s): %w", attempt-1, errors.Join(ctxErr, err))
		}

		err = fn(ctx, attempt)
		if err == nil {
			return nil
		}

		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}

		if attempt == attempts {
			break
		}

		wait := p.Backoff(attempt)
		log.Debug().Err(err).Int("attempt", attempt).Int("max_attempts", attempts).Dur("backoff", wait).Msg("attempt failed, backing off")

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("aborted after %d attempt(s): %w", attempt, errors.Join(ctx.Err(), err))
		case <-timer.C:
		}
	}

	return fmt.Errorf("gave up after %d attempt(s): %w", attempts, err)
}
