package engine

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"strings"
	"time"

	"github.com/lakeforge/lakeforge/internal/diag"
)

const (
	// DefaultParallelism bounds concurrent adapter calls during apply.
	DefaultParallelism = 10

	// DefaultTimeout is the per-resource bound covering the adapter call
	// plus any asynchronous provisioning wait.
	DefaultTimeout = 30 * time.Minute

	// DefaultRetryMax is the maximum number of retries for retryable
	// adapter errors.
	DefaultRetryMax = 3
)

// RetryPolicy defines backoff behavior for retryable adapter errors and for
// polling asynchronous provisioning.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// DefaultRetryPolicy returns the policy used for transient API failures.
func DefaultRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxRetries: DefaultRetryMax,
		BaseDelay:  1 * time.Second,
		MaxDelay:   30 * time.Second,
	}
}

// DefaultPollPolicy returns the backoff used when polling an adapter for an
// asynchronous operation to reach a terminal state.
func DefaultPollPolicy() *RetryPolicy {
	return &RetryPolicy{
		BaseDelay: 2 * time.Second,
		MaxDelay:  30 * time.Second,
	}
}

// RetryWithBackoff executes fn, retrying with jittered exponential backoff
// while shouldRetry reports the error as retryable.
func RetryWithBackoff(ctx context.Context, policy *RetryPolicy, fn func() error, shouldRetry func(error) bool) error {
	if policy == nil {
		policy = DefaultRetryPolicy()
	}

	var lastErr error
	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !shouldRetry(lastErr) {
			return lastErr
		}
		if attempt < policy.MaxRetries {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(Backoff(attempt, policy)):
			}
		}
	}
	return lastErr
}

// Backoff returns the jittered exponential delay for the given attempt.
func Backoff(attempt int, policy *RetryPolicy) time.Duration {
	d := float64(policy.BaseDelay) * math.Pow(2, float64(attempt))
	if d > float64(policy.MaxDelay) {
		d = float64(policy.MaxDelay)
	}
	// Full jitter: anywhere between half and the full delay.
	return time.Duration(d/2 + rand.Float64()*d/2)
}

// IsRetryable reports whether an adapter error should be retried: either
// the adapter flagged it retryable, or it matches a known transient pattern.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var ae *diag.AdapterError
	if errors.As(err, &ae) {
		return ae.Retryable
	}
	return IsTransientError(err)
}

// transientPatterns are common throttling and network failure signatures
// from cloud APIs.
var transientPatterns = []string{
	"throttl",
	"rate exceed",
	"too many requests",
	"request limit",
	"service unavailable",
	"internal server error",
	"connection reset",
	"connection refused",
	"timeout",
	"tls handshake",
	"i/o timeout",
	"temporary failure",
}

// IsTransientError checks an error message against known transient cloud
// API failure patterns.
func IsTransientError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, pattern := range transientPatterns {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}
