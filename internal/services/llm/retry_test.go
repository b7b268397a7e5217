package llm

import (
	"errors"
	"testing"
	"time"
)

func TestIsRateLimitError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"api 429", &ChatAPIError{StatusCode: 429, Message: "Rate limit reached"}, true},
		{"api 500", &ChatAPIError{StatusCode: 500, Message: "server error"}, false},
		{"status code text", errors.New("googleapi: Error 429: quota exceeded"), true},
		{"resource exhausted", errors.New("rpc error: RESOURCE_EXHAUSTED"), true},
		{"anthropic rate limit", errors.New("rate_limit_error: slow down"), true},
		{"bad request", errors.New("invalid request body"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRateLimitError(tt.err); got != tt.want {
				t.Errorf("IsRateLimitError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestIsTransientError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"api 429", &ChatAPIError{StatusCode: 429}, true},
		{"api 503", &ChatAPIError{StatusCode: 503}, true},
		{"api 400", &ChatAPIError{StatusCode: 400, Message: "bad request"}, false},
		{"api 401", &ChatAPIError{StatusCode: 401, Message: "bad key"}, false},
		{"overloaded text", errors.New("overloaded_error: try again later"), true},
		{"unavailable text", errors.New("rpc error: UNAVAILABLE"), true},
		{"parse failure", errors.New("failed to decode response"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransientError(tt.err); got != tt.want {
				t.Errorf("IsTransientError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestExtractRetryDelay(t *testing.T) {
	err := errors.New("Error 429, Message: quota exceeded. Please retry in 45.387061394s., Status: RESOURCE_EXHAUSTED")
	delay := ExtractRetryDelay(err)
	if delay < 45*time.Second || delay > 46*time.Second {
		t.Errorf("Expected ~45s delay, got %v", delay)
	}

	if delay := ExtractRetryDelay(errors.New("no hint here")); delay != 0 {
		t.Errorf("Expected no delay, got %v", delay)
	}

	apiErr := &ChatAPIError{StatusCode: 429, RetryAfter: 7 * time.Second}
	if delay := ExtractRetryDelay(apiErr); delay != 7*time.Second {
		t.Errorf("Expected header delay 7s, got %v", delay)
	}

	if delay := ExtractRetryDelay(nil); delay != 0 {
		t.Errorf("Expected zero delay for nil error, got %v", delay)
	}
}

func TestCalculateBackoff(t *testing.T) {
	config := &RetryConfig{
		MaxRetries:        3,
		InitialBackoff:    2 * time.Second,
		MaxBackoff:        10 * time.Second,
		BackoffMultiplier: 2.0,
	}

	if got := config.CalculateBackoff(0, 0); got != 2*time.Second {
		t.Errorf("Expected initial backoff 2s, got %v", got)
	}
	if got := config.CalculateBackoff(1, 0); got != 4*time.Second {
		t.Errorf("Expected doubled backoff 4s, got %v", got)
	}
	// Growth is capped
	if got := config.CalculateBackoff(5, 0); got != 10*time.Second {
		t.Errorf("Expected capped backoff 10s, got %v", got)
	}
	// API delay plus buffer replaces the base
	if got := config.CalculateBackoff(0, 5*time.Second); got != 6*time.Second {
		t.Errorf("Expected api delay plus buffer 6s, got %v", got)
	}
}
