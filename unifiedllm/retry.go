package unifiedllm

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"
)

// RetryPolicy bounds how a failed request is retried.
type RetryPolicy struct {
	MaxRetries int           // attempts after the first
	BaseDelay  time.Duration // delay before the first retry
	MaxDelay   time.Duration // cap on any single delay, including Retry-After
	Multiplier float64       // growth per attempt; values below 1 are treated as 1
	Jitter     bool          // scale each delay by a random factor in [0.5, 1.5)

	// OnRetry, when set, is called before each wait.
	OnRetry func(err error, attempt int, delay time.Duration)
}

// DefaultRetryPolicy returns two retries with jittered exponential backoff
// from one second.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 2,
		BaseDelay:  time.Second,
		MaxDelay:   time.Minute,
		Multiplier: 2,
		Jitter:     true,
	}
}

// Delay returns the backoff before retry n, counting from 0.
func (p RetryPolicy) Delay(n int) time.Duration {
	mult := max(p.Multiplier, 1)
	d := float64(p.BaseDelay)
	for i := 0; i < n && d < float64(p.MaxDelay); i++ {
		d *= mult
	}
	if p.MaxDelay > 0 {
		d = min(d, float64(p.MaxDelay))
	}
	if p.Jitter {
		d *= 0.5 + rand.Float64()
	}
	return time.Duration(d)
}

// wait returns the delay before retry n of err, or false when err must
// not be retried: it is permanent, or the provider asked for a longer
// pause than the policy allows.
func (p RetryPolicy) wait(err error, n int) (time.Duration, bool) {
	if !IsRetryable(err) {
		return 0, false
	}
	var pe *ProviderError
	if errors.As(err, &pe) && pe.RetryAfter > 0 {
		if p.MaxDelay > 0 && pe.RetryAfter > p.MaxDelay {
			return 0, false
		}
		return pe.RetryAfter, true
	}
	return p.Delay(n), true
}

// Retry calls fn until it succeeds, fails permanently, or the policy is
// exhausted. The last error is returned unchanged; cancellation during a
// wait returns an AbortError.
func Retry[T any](ctx context.Context, policy RetryPolicy, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	for attempt := 0; ; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		if attempt >= policy.MaxRetries {
			return zero, err
		}
		delay, ok := policy.wait(err, attempt)
		if !ok {
			return zero, err
		}
		if policy.OnRetry != nil {
			policy.OnRetry(err, attempt+1, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, &AbortError{Message: "request cancelled during retry", Cause: ctx.Err()}
		case <-timer.C:
		}
	}
}

// RetryMiddleware retries blocking completions under policy.
func RetryMiddleware(policy RetryPolicy) Middleware {
	return func(ctx context.Context, req Request, next func(context.Context, Request) (*Response, error)) (*Response, error) {
		return Retry(ctx, policy, func(ctx context.Context) (*Response, error) {
			return next(ctx, req)
		})
	}
}

// RetryStreamMiddleware retries stream establishment under policy. Once a
// channel is returned its events are never replayed; a failure mid-stream
// arrives as a StreamError event and is left to the consumer.
func RetryStreamMiddleware(policy RetryPolicy) StreamMiddleware {
	return func(ctx context.Context, req Request, next func(context.Context, Request) (<-chan StreamEvent, error)) (<-chan StreamEvent, error) {
		return Retry(ctx, policy, func(ctx context.Context) (<-chan StreamEvent, error) {
			return next(ctx, req)
		})
	}
}
