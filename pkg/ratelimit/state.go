// Package ratelimit implements request-budget tracking and request gating for
// the replay backend. It monitors the X-RateLimit-Remaining and
// X-RateLimit-Reset response headers so that aggressive page fetching backs
// off before the backend starts rejecting the whole aggregate.
package ratelimit

import (
	"time"
)

// Redis keys for rate limit state storage.
const (
	RedisKeyRequestsRemaining = "replay:rate_limit:requests_remaining"
	RedisKeyResetTimestamp    = "replay:rate_limit:reset_timestamp"
	RedisKeyLastUpdate        = "replay:rate_limit:last_update"
)

// Thresholds for rate limit decisions.
const (
	// BudgetThresholdCritical blocks all requests when the remaining request
	// budget falls below this value. Stopping early keeps the final requests
	// of an aggregate from being rejected mid-merge.
	BudgetThresholdCritical = 5

	// BudgetThresholdWarning applies throttling when the remaining budget
	// falls below this value.
	BudgetThresholdWarning = 20

	// BudgetThresholdHealthy indicates normal operation.
	// At or above this value no restrictions apply.
	BudgetThresholdHealthy = 50
)

// RateLimitState represents the current backend request-budget state.
// This state is shared across all client instances via Redis.
type RateLimitState struct {
	// RequestsRemaining is the request budget left in the current window.
	// Extracted from the X-RateLimit-Remaining header.
	RequestsRemaining int `json:"requests_remaining"`

	// ResetAt is the timestamp when the budget window resets.
	// Calculated from the X-RateLimit-Reset header (seconds until reset).
	ResetAt time.Time `json:"reset_at"`

	// LastUpdate is the timestamp when this state was last updated.
	// Used to detect stale state and determine if data should be refreshed.
	LastUpdate time.Time `json:"last_update"`

	// IsHealthy indicates whether the budget is in a healthy state.
	// True when RequestsRemaining >= BudgetThresholdHealthy.
	IsHealthy bool `json:"is_healthy"`
}

// IsStale returns true if the state data is older than the given duration.
// Stale state should be refreshed from Redis or response headers.
func (s *RateLimitState) IsStale(maxAge time.Duration) bool {
	return time.Since(s.LastUpdate) > maxAge
}

// NeedsCriticalBlock returns true if requests should be blocked due to a
// critically low budget.
func (s *RateLimitState) NeedsCriticalBlock() bool {
	return s.RequestsRemaining < BudgetThresholdCritical
}

// NeedsThrottling returns true if requests should be throttled due to warning threshold.
func (s *RateLimitState) NeedsThrottling() bool {
	return s.RequestsRemaining < BudgetThresholdWarning && !s.NeedsCriticalBlock()
}

// TimeUntilReset returns the duration until the budget window resets.
// Returns 0 if the reset time has already passed.
func (s *RateLimitState) TimeUntilReset() time.Duration {
	duration := time.Until(s.ResetAt)
	if duration < 0 {
		return 0
	}
	return duration
}

// UpdateHealth updates the IsHealthy field based on current RequestsRemaining.
func (s *RateLimitState) UpdateHealth() {
	s.IsHealthy = s.RequestsRemaining >= BudgetThresholdHealthy
}
