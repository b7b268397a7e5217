package queue

import (
	"testing"
	"time"
)

func fixedRandCalculator(v float64) *RetryCalculator {
	c := NewRetryCalculator()
	c.randFloat = func() float64 { return v }
	return c
}

func noJitterPolicy(strategy string) RetryPolicy {
	return RetryPolicy{
		Enabled:         true,
		MaxRetries:      3,
		BaseDelayMs:     100,
		MaxDelayMs:      30000,
		BackoffStrategy: strategy,
	}
}

func TestRetryCalculator_ConstantDelay(t *testing.T) {
	c := fixedRandCalculator(0)
	policy := noJitterPolicy(BackoffConstant)

	for attempt := 0; attempt < 4; attempt++ {
		if got := c.Delay(policy, attempt); got != 100*time.Millisecond {
			t.Errorf("attempt %d: expected 100ms, got %s", attempt, got)
		}
	}
}

func TestRetryCalculator_LinearDelay(t *testing.T) {
	c := fixedRandCalculator(0)
	policy := noJitterPolicy(BackoffLinear)

	expected := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		300 * time.Millisecond,
	}
	for attempt, want := range expected {
		if got := c.Delay(policy, attempt); got != want {
			t.Errorf("attempt %d: expected %s, got %s", attempt, want, got)
		}
	}
}

func TestRetryCalculator_ExponentialDelay(t *testing.T) {
	c := fixedRandCalculator(0)
	policy := noJitterPolicy(BackoffExponential)

	expected := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
	}
	for attempt, want := range expected {
		if got := c.Delay(policy, attempt); got != want {
			t.Errorf("attempt %d: expected %s, got %s", attempt, want, got)
		}
	}
}

func TestRetryCalculator_ExponentialNegativeAttempt(t *testing.T) {
	c := fixedRandCalculator(0)
	policy := noJitterPolicy(BackoffExponential)

	// 2^-1 halves the base delay
	if got := c.Delay(policy, -1); got != 50*time.Millisecond {
		t.Errorf("Expected 50ms for attempt -1, got %s", got)
	}
}

func TestRetryCalculator_ClampsAtMaxDelay(t *testing.T) {
	c := fixedRandCalculator(0)
	policy := RetryPolicy{
		Enabled:         true,
		BaseDelayMs:     500,
		MaxDelayMs:      30000,
		BackoffStrategy: BackoffExponential,
	}

	if got := c.Delay(policy, 30); got != 30*time.Second {
		t.Errorf("Expected clamp at 30s, got %s", got)
	}

	// The clamp holds over the entire attempt range, including exponents
	// far past integer overflow
	max := time.Duration(policy.MaxDelayMs) * time.Millisecond
	for k := 0; k <= 64; k++ {
		if got := c.Delay(policy, k); got > max {
			t.Fatalf("attempt %d: delay %s exceeds MaxDelayMs", k, got)
		}
	}
}

func TestRetryCalculator_JitterBounds(t *testing.T) {
	policy := RetryPolicy{
		Enabled:         true,
		BaseDelayMs:     100,
		MaxDelayMs:      30000,
		BackoffStrategy: BackoffConstant,
		MinJitterFactor: 0.1,
		MaxJitterFactor: 0.5,
	}

	if got := fixedRandCalculator(0).Delay(policy, 0); got != 110*time.Millisecond {
		t.Errorf("Expected lower jitter bound 110ms, got %s", got)
	}
	if got := fixedRandCalculator(1).Delay(policy, 0); got != 150*time.Millisecond {
		t.Errorf("Expected upper jitter bound 150ms, got %s", got)
	}
}

func TestRetryCalculator_JitterEndpointsReversed(t *testing.T) {
	// Min above Max still samples the same interval
	policy := RetryPolicy{
		Enabled:         true,
		BaseDelayMs:     100,
		MaxDelayMs:      30000,
		BackoffStrategy: BackoffConstant,
		MinJitterFactor: 0.5,
		MaxJitterFactor: 0.1,
	}

	if got := fixedRandCalculator(0).Delay(policy, 0); got != 110*time.Millisecond {
		t.Errorf("Expected 110ms at interval bottom, got %s", got)
	}
	if got := fixedRandCalculator(1).Delay(policy, 0); got != 150*time.Millisecond {
		t.Errorf("Expected 150ms at interval top, got %s", got)
	}
}

func TestRetryCalculator_NegativeBaseHasNoLowerClamp(t *testing.T) {
	c := fixedRandCalculator(0)
	policy := RetryPolicy{
		Enabled:         true,
		BaseDelayMs:     -100,
		MaxDelayMs:      30000,
		BackoffStrategy: BackoffConstant,
	}

	if got := c.Delay(policy, 0); got != -100*time.Millisecond {
		t.Errorf("Expected -100ms reported as-is, got %s", got)
	}
}

func TestRetryCalculator_ShouldRetry(t *testing.T) {
	c := NewRetryCalculator()
	enabled := RetryPolicy{Enabled: true}
	disabled := RetryPolicy{Enabled: false}

	cases := []struct {
		name       string
		policy     RetryPolicy
		retryCount int
		maxRetries int
		hint       bool
		want       bool
	}{
		{"policy disabled", disabled, 0, 3, true, false},
		{"negative budget", enabled, 0, -1, true, false},
		{"budget available with hint", enabled, 1, 3, true, true},
		{"hint false", enabled, 1, 3, false, false},
		{"budget exhausted", enabled, 3, 3, true, false},
		{"zero budget", enabled, 0, 0, true, false},
	}

	for _, tc := range cases {
		if got := c.ShouldRetry(tc.policy, tc.retryCount, tc.maxRetries, tc.hint); got != tc.want {
			t.Errorf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}
}
