package util

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"
)

// BackoffOptions controls retry pacing. The delay before attempt n is
// Base * Factor^(n-1), capped at Max, plus up to Jitter of random slack.
type BackoffOptions struct {
	Base   time.Duration
	Max    time.Duration
	Factor float64
	Jitter time.Duration
}

// DefaultBackoff is the pacing used by external-service retries: 250ms,
// 500ms, 1s, ... capped at 5s, with up to 100ms of jitter.
var DefaultBackoff = BackoffOptions{
	Base:   250 * time.Millisecond,
	Max:    5 * time.Second,
	Factor: 2,
	Jitter: 100 * time.Millisecond,
}

func (o BackoffOptions) delay(attempt int) time.Duration {
	d := o.Base
	for i := 1; i < attempt; i++ {
		d = time.Duration(float64(d) * o.Factor)
		if o.Max > 0 && d >= o.Max {
			d = o.Max
			break
		}
	}
	if o.Jitter > 0 {
		d += time.Duration(rand.Int64N(int64(o.Jitter) + 1))
	}
	return d
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func permanent(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// RetryErrWithContext calls fn up to maxTries times until it returns nil
// error, backing off between attempts with DefaultBackoff. If maxTries <= 0,
// it defaults to 1. Context cancellation stops retrying immediately.
func RetryErrWithContext(ctx context.Context, maxTries int, fn func(context.Context) error) error {
	_, err := RetryWithContext(ctx, maxTries, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// RetryWithContext calls fn up to maxTries times until it returns a result
// and nil error, or until ctx is done, backing off between attempts with
// DefaultBackoff. If maxTries <= 0, it defaults to 1. Returns ctx.Err() if
// the context is canceled, otherwise the last error.
func RetryWithContext[T any](ctx context.Context, maxTries int, fn func(context.Context) (T, error)) (T, error) {
	return RetryWithBackoff(ctx, maxTries, DefaultBackoff, fn)
}

// RetryWithBackoff is RetryWithContext with explicit pacing.
func RetryWithBackoff[T any](ctx context.Context, maxTries int, opts BackoffOptions, fn func(context.Context) (T, error)) (T, error) {
	if maxTries <= 0 {
		maxTries = 1
	}
	var lastErr error
	var zero T
	for i := 1; i <= maxTries; i++ {
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		if permanent(err) {
			return zero, err
		}
		lastErr = err
		if i < maxTries {
			if err := sleep(ctx, opts.delay(i)); err != nil {
				return zero, err
			}
		}
	}
	return zero, lastErr
}

// Retry2WithContext calls fn up to maxTries times until it returns two
// results and nil error, or until ctx is done.
func Retry2WithContext[A, B any](ctx context.Context, maxTries int, fn func(context.Context) (A, B, error)) (A, B, error) {
	type pair struct {
		a A
		b B
	}
	p, err := RetryWithContext(ctx, maxTries, func(ctx context.Context) (pair, error) {
		a, b, err := fn(ctx)
		return pair{a, b}, err
	})
	return p.a, p.b, err
}
