package ratelimit

import (
	"testing"
	"time"
)

func TestRateLimitState_IsStale(t *testing.T) {
	tests := []struct {
		name     string
		state    *RateLimitState
		maxAge   time.Duration
		expected bool
	}{
		{
			name: "fresh state",
			state: &RateLimitState{
				LastUpdate: time.Now(),
			},
			maxAge:   5 * time.Minute,
			expected: false,
		},
		{
			name: "stale state",
			state: &RateLimitState{
				LastUpdate: time.Now().Add(-10 * time.Minute),
			},
			maxAge:   5 * time.Minute,
			expected: true,
		},
		{
			name: "just under max age",
			state: &RateLimitState{
				LastUpdate: time.Now().Add(-4 * time.Minute),
			},
			maxAge:   5 * time.Minute,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.state.IsStale(tt.maxAge)
			if result != tt.expected {
				t.Errorf("IsStale() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestRateLimitState_NeedsCriticalBlock(t *testing.T) {
	tests := []struct {
		name            string
		requestsRemaining int
		expected        bool
	}{
		{
			name:            "well above critical threshold",
			requestsRemaining: 50,
			expected:        false,
		},
		{
			name:            "at critical threshold",
			requestsRemaining: BudgetThresholdCritical,
			expected:        false,
		},
		{
			name:            "just below critical threshold",
			requestsRemaining: BudgetThresholdCritical - 1,
			expected:        true,
		},
		{
			name:            "zero requests remaining",
			requestsRemaining: 0,
			expected:        true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := &RateLimitState{
				RequestsRemaining: tt.requestsRemaining,
			}
			result := state.NeedsCriticalBlock()
			if result != tt.expected {
				t.Errorf("NeedsCriticalBlock() = %v, want %v (requests_remaining=%d)", result, tt.expected, tt.requestsRemaining)
			}
		})
	}
}

func TestRateLimitState_NeedsThrottling(t *testing.T) {
	tests := []struct {
		name            string
		requestsRemaining int
		expected        bool
	}{
		{
			name:            "healthy state",
			requestsRemaining: 50,
			expected:        false,
		},
		{
			name:            "at warning threshold",
			requestsRemaining: BudgetThresholdWarning,
			expected:        false,
		},
		{
			name:            "just below warning threshold",
			requestsRemaining: BudgetThresholdWarning - 1,
			expected:        true,
		},
		{
			name:            "just above critical threshold",
			requestsRemaining: BudgetThresholdCritical + 1,
			expected:        true, // Should throttle (below warning but above critical)
		},
		{
			name:            "below critical threshold",
			requestsRemaining: BudgetThresholdCritical - 1,
			expected:        false, // Critical blocks, not throttles
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := &RateLimitState{
				RequestsRemaining: tt.requestsRemaining,
			}
			result := state.NeedsThrottling()
			if result != tt.expected {
				t.Errorf("NeedsThrottling() = %v, want %v (requests_remaining=%d)", result, tt.expected, tt.requestsRemaining)
			}
		})
	}
}

func TestRateLimitState_TimeUntilReset(t *testing.T) {
	tests := []struct {
		name      string
		resetAt   time.Time
		expected  time.Duration
		tolerance time.Duration
	}{
		{
			name:      "reset in future",
			resetAt:   time.Now().Add(5 * time.Minute),
			expected:  5 * time.Minute,
			tolerance: 1 * time.Second,
		},
		{
			name:      "reset already passed",
			resetAt:   time.Now().Add(-5 * time.Minute),
			expected:  0,
			tolerance: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := &RateLimitState{
				ResetAt: tt.resetAt,
			}
			result := state.TimeUntilReset()

			if tt.expected == 0 {
				if result != 0 {
					t.Errorf("TimeUntilReset() = %v, want 0 for past reset time", result)
				}
			} else {
				diff := result - tt.expected
				if diff < 0 {
					diff = -diff
				}
				if diff > tt.tolerance {
					t.Errorf("TimeUntilReset() = %v, want approximately %v (tolerance %v)", result, tt.expected, tt.tolerance)
				}
			}
		})
	}
}

func TestRateLimitState_UpdateHealth(t *testing.T) {
	tests := []struct {
		name            string
		requestsRemaining int
		expectedHealthy bool
	}{
		{
			name:            "healthy state",
			requestsRemaining: 100,
			expectedHealthy: true,
		},
		{
			name:            "at healthy threshold",
			requestsRemaining: BudgetThresholdHealthy,
			expectedHealthy: true,
		},
		{
			name:            "just below healthy threshold",
			requestsRemaining: BudgetThresholdHealthy - 1,
			expectedHealthy: false,
		},
		{
			name:            "warning state",
			requestsRemaining: 15,
			expectedHealthy: false,
		},
		{
			name:            "critical state",
			requestsRemaining: 3,
			expectedHealthy: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := &RateLimitState{
				RequestsRemaining: tt.requestsRemaining,
				IsHealthy:       false, // Start as unhealthy
			}
			state.UpdateHealth()

			if state.IsHealthy != tt.expectedHealthy {
				t.Errorf("UpdateHealth() set IsHealthy = %v, want %v (requests_remaining=%d)",
					state.IsHealthy, tt.expectedHealthy, tt.requestsRemaining)
			}
		})
	}
}

func TestThresholdConstants(t *testing.T) {
	// Verify threshold ordering
	if BudgetThresholdCritical >= BudgetThresholdWarning {
		t.Errorf("BudgetThresholdCritical (%d) must be less than BudgetThresholdWarning (%d)",
			BudgetThresholdCritical, BudgetThresholdWarning)
	}

	if BudgetThresholdWarning >= BudgetThresholdHealthy {
		t.Errorf("BudgetThresholdWarning (%d) must be less than BudgetThresholdHealthy (%d)",
			BudgetThresholdWarning, BudgetThresholdHealthy)
	}
}
