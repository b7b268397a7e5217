// -----------------------------------------------------------------------
// Retry Policy - Backoff delay calculation for failed jobs
// -----------------------------------------------------------------------

package queue

import (
	"math"
	"math/rand"
	"time"

	"github.com/ternarybob/faber/internal/common"
)

// Backoff strategy names accepted by the retry calculator
const (
	BackoffConstant    = "constant"
	BackoffLinear      = "linear"
	BackoffExponential = "exponential"
)

// RetryPolicy controls whether and how failed jobs are retried
type RetryPolicy struct {
	Enabled         bool
	MaxRetries      int
	BaseDelayMs     int64
	MaxDelayMs      int64
	BackoffStrategy string
	MinJitterFactor float64
	MaxJitterFactor float64
}

// PolicyFromConfig maps configured retry settings onto a policy
func PolicyFromConfig(cfg common.RetryPolicyConfig) RetryPolicy {
	return RetryPolicy{
		Enabled:         cfg.Enabled,
		MaxRetries:      cfg.MaxRetries,
		BaseDelayMs:     cfg.BaseDelayMs,
		MaxDelayMs:      cfg.MaxDelayMs,
		BackoffStrategy: cfg.BackoffStrategy,
		MinJitterFactor: cfg.MinJitterFactor,
		MaxJitterFactor: cfg.MaxJitterFactor,
	}
}

// RetryCalculator computes backoff delays and retry decisions. The
// random source is injectable so tests can pin the jitter.
type RetryCalculator struct {
	randFloat func() float64
}

// NewRetryCalculator creates a calculator backed by the shared
// math/rand source
func NewRetryCalculator() *RetryCalculator {
	return &RetryCalculator{randFloat: rand.Float64}
}

// Delay returns the backoff before retry number attempt (zero-based):
// base * strategyFactor * (1 + jitter), clamped above at MaxDelayMs.
// Computation stays in float64 so large exponents clamp instead of
// overflowing. There is no lower clamp: a negative base delay yields a
// negative result, reported as-is.
func (c *RetryCalculator) Delay(policy RetryPolicy, attempt int) time.Duration {
	factor := 1.0
	switch policy.BackoffStrategy {
	case BackoffLinear:
		factor = float64(attempt) + 1
	case BackoffExponential:
		factor = math.Pow(2, float64(attempt))
	}

	// Jitter samples the interval regardless of endpoint order
	lo, hi := policy.MinJitterFactor, policy.MaxJitterFactor
	if lo > hi {
		lo, hi = hi, lo
	}
	jitter := lo + c.randFloat()*(hi-lo)

	delayMs := float64(policy.BaseDelayMs) * factor * (1 + jitter)
	if delayMs > float64(policy.MaxDelayMs) {
		delayMs = float64(policy.MaxDelayMs)
	}
	return time.Duration(delayMs * float64(time.Millisecond))
}

// ShouldRetry reports whether another attempt should run. hint carries
// the handler's transient-failure flag from the job result.
func (c *RetryCalculator) ShouldRetry(policy RetryPolicy, retryCount, maxRetries int, hint bool) bool {
	if !policy.Enabled {
		return false
	}
	if maxRetries < 0 {
		return false
	}
	return retryCount < maxRetries && hint
}
