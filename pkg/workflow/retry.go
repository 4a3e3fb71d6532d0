package workflow

import (
	"math"
	"time"

	flowerrors "github.com/flowctl/flowctl/pkg/errors"
)

// DefaultRetryPolicy is applied to a step that declares retry: {} (or a
// subset of fields) without overriding every value.
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts:       1,
	InitialDelayMs:    1000,
	BackoffMultiplier: 2.0,
	MaxDelayMs:        30000,
}

// RetryManager computes per-attempt backoff delays and decides whether a
// failed step's error kind is retryable under its policy (spec §4.8).
type RetryManager struct{}

// NewRetryManager creates a RetryManager.
func NewRetryManager() *RetryManager { return &RetryManager{} }

// resolvePolicy fills in zero fields of p from DefaultRetryPolicy.
func resolvePolicy(p *RetryPolicy) RetryPolicy {
	if p == nil {
		return DefaultRetryPolicy
	}
	resolved := *p
	if resolved.MaxAttempts <= 0 {
		resolved.MaxAttempts = DefaultRetryPolicy.MaxAttempts
	}
	if resolved.InitialDelayMs <= 0 {
		resolved.InitialDelayMs = DefaultRetryPolicy.InitialDelayMs
	}
	if resolved.BackoffMultiplier <= 0 {
		resolved.BackoffMultiplier = DefaultRetryPolicy.BackoffMultiplier
	}
	if resolved.MaxDelayMs <= 0 {
		resolved.MaxDelayMs = DefaultRetryPolicy.MaxDelayMs
	}
	return resolved
}

// MaxAttempts returns the effective max attempts for policy p (nil means
// "no retry", i.e. a single attempt).
func (r *RetryManager) MaxAttempts(p *RetryPolicy) int {
	if p == nil {
		return 1
	}
	return resolvePolicy(p).MaxAttempts
}

// Delay computes the backoff delay before attempt number `attempt` (1-based;
// the delay preceding the 2nd attempt is attempt=2), per:
//
//	delay = min(initialDelay * multiplier^(attempt-2), maxDelay)
//
// attempt must be >= 2; callers never delay before the first attempt.
func (r *RetryManager) Delay(p *RetryPolicy, attempt int) time.Duration {
	resolved := resolvePolicy(p)
	if attempt < 2 {
		return 0
	}
	exp := float64(attempt - 2)
	delayMs := float64(resolved.InitialDelayMs) * math.Pow(resolved.BackoffMultiplier, exp)
	if delayMs > float64(resolved.MaxDelayMs) {
		delayMs = float64(resolved.MaxDelayMs)
	}
	return time.Duration(delayMs) * time.Millisecond
}

// ShouldRetry reports whether an error of the given kind is retryable under
// policy p. An empty RetryOn list means "retry any kind" (except cancelled,
// which is never retried since it reflects user/operator intent).
func (r *RetryManager) ShouldRetry(p *RetryPolicy, errKind string) bool {
	if errKind == "cancelled" {
		return false
	}
	resolved := resolvePolicy(p)
	if len(resolved.RetryOn) == 0 {
		return true
	}
	for _, kind := range resolved.RetryOn {
		if kind == errKind {
			return true
		}
	}
	return false
}

// ClassifyErr is a thin wrapper over flowerrors.Kind kept local to this
// package so callers needn't import both packages for one call site.
func ClassifyErr(err error) string {
	return flowerrors.Kind(err)
}
