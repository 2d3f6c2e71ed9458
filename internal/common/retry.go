package common

import (
	"context"
	"time"

	"github.com/jpillora/backoff"
)

// NetworkRetryConfig bounds the backoff applied to RPC calls. Chunk retries
// in the dispatcher use their own backoff and do not read this config.
type NetworkRetryConfig struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Factor       float64
}

// DefaultNetworkRetryConfig returns sane defaults for production use.
func DefaultNetworkRetryConfig() NetworkRetryConfig {
	return NetworkRetryConfig{
		MaxRetries:   3,
		InitialDelay: time.Second,
		MaxDelay:     30 * time.Second,
		Factor:       2.0,
	}
}

// WithNetworkRetry runs fn up to cfg.MaxRetries+1 times, sleeping a jittered
// exponential backoff between attempts (via jpillora/backoff), stopping
// early if ctx is done, isRetryable returns false for the latest error, or
// fn succeeds. isRetryable may be nil, in which case every error is retried.
func WithNetworkRetry[T any](ctx context.Context, cfg NetworkRetryConfig, isRetryable func(error) bool, fn func() (T, error)) (T, error) {
	b := &backoff.Backoff{
		Min:    cfg.InitialDelay,
		Max:    cfg.MaxDelay,
		Factor: cfg.Factor,
		Jitter: true,
	}

	var zero T
	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err
		if isRetryable != nil && !isRetryable(err) {
			return zero, err
		}
		if attempt == cfg.MaxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(b.Duration()):
		}
	}
	return zero, lastErr
}
