package domain

import "time"

// TierLimits are the rate-limit parameters for one membership tier.
type TierLimits struct {
	Window      time.Duration
	MaxRequests int
	Cooldown    time.Duration
}

// RateLimitState is the single persisted rate-limit row, mutated only by
// the rate limiter.
type RateLimitState struct {
	RequestCount  int
	WindowStart   time.Time
	CooldownUntil time.Time // zero when not in cooldown
}

// InCooldown reports whether the state is cooling down at the given time.
func (s *RateLimitState) InCooldown(now time.Time) bool {
	return !s.CooldownUntil.IsZero() && now.Before(s.CooldownUntil)
}

// RateLimitStatus is a read-only snapshot for the status surface.
type RateLimitStatus struct {
	Tier          string     `json:"tier"`
	CurrentCount  int        `json:"current_count"`
	MaxRequests   int        `json:"max_requests"`
	WindowStart   *time.Time `json:"window_start,omitempty"`
	CooldownUntil *time.Time `json:"cooldown_until,omitempty"`
	IsLimited     bool       `json:"is_limited"`
}
