package retry

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// Policy is an exponential backoff with jitter, usable around any
// context-bound operation (LLM calls, Neo4j sync, Postgres transient
// failures).
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

func Default() Policy {
	return Policy{MaxAttempts: 3, BaseDelay: 250 * time.Millisecond, MaxDelay: 5 * time.Second}
}

// Retryable marks an error as safe to retry; ops that return an error not
// wrapped with Retryable are treated as terminal after one attempt.
type retryableErr struct{ err error }

func (r *retryableErr) Error() string { return r.err.Error() }
func (r *retryableErr) Unwrap() error { return r.err }

func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &retryableErr{err: err}
}

func isRetryable(err error) bool {
	var r *retryableErr
	return errors.As(err, &r)
}

// Do runs fn up to p.MaxAttempts times, sleeping with exponential backoff
// plus full jitter between attempts, and stops immediately if op returns an
// error not wrapped with Retryable or if ctx is canceled.
func Do(ctx context.Context, p Policy, op func(ctx context.Context) error) error {
	var lastErr error
	delay := p.BaseDelay

	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if !isRetryable(lastErr) || attempt == p.MaxAttempts {
			return lastErr
		}

		jittered := time.Duration(rand.Int63n(int64(delay)))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(jittered):
		}

		delay *= 2
		if delay > p.MaxDelay {
			delay = p.MaxDelay
		}
	}
	return lastErr
}
