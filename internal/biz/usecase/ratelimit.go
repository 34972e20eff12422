package usecase

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/raidenlabs/inbox-bridge/internal/biz/domain"
	"github.com/raidenlabs/inbox-bridge/internal/biz/repo"
)

// RateLimiter gates all reply generation behind a per-tier sliding window
// with a cooldown after the limit is hit. Check and increment are
// serialized by one mutex: two concurrent reply cycles must not both pass a
// check only one should have.
//
// Persistence failures fail open. Blocking a user-visible action because
// the local store hiccuped would silently starve users; availability wins
// over strictness here.
type RateLimiter struct {
	repo   repo.RateLimitRepo
	tiers  map[string]domain.TierLimits
	logger *zap.Logger
	now    func() time.Time

	mu sync.Mutex
}

// DefaultTierLimits mirror the configured free/paid windows.
func DefaultTierLimits() map[string]domain.TierLimits {
	return map[string]domain.TierLimits{
		"free": {Window: 4 * time.Hour, MaxRequests: 26, Cooldown: 2 * time.Hour},
		"paid": {Window: 6 * time.Hour, MaxRequests: 80, Cooldown: time.Hour},
	}
}

// NewRateLimiter creates a limiter over the persisted state row.
// Unknown tiers fall back to "free".
func NewRateLimiter(r repo.RateLimitRepo, tiers map[string]domain.TierLimits, logger *zap.Logger) *RateLimiter {
	if len(tiers) == 0 {
		tiers = DefaultTierLimits()
	}
	return &RateLimiter{repo: r, tiers: tiers, logger: logger, now: time.Now}
}

func (l *RateLimiter) limits(tier string) domain.TierLimits {
	if t, ok := l.tiers[tier]; ok {
		return t
	}
	return l.tiers["free"]
}

// Allow checks whether a generation request may proceed. When blocked, the
// returned time is when the limit resets.
func (l *RateLimiter) Allow(ctx context.Context, tier string) (bool, time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	limits := l.limits(tier)
	now := l.now()

	state, err := l.repo.Get(ctx)
	if err != nil {
		l.logger.Warn("rate limit state unavailable, failing open", zap.Error(err))
		return true, time.Time{}
	}

	// In cooldown: blocked until it ends.
	if state.InCooldown(now) {
		return false, state.CooldownUntil
	}

	// Cooldown just expired: reset everything.
	if !state.CooldownUntil.IsZero() {
		state.RequestCount = 0
		state.WindowStart = now
		state.CooldownUntil = time.Time{}
		l.save(ctx, state)
		return true, time.Time{}
	}

	// Window expired: reset the counter.
	if !now.Before(state.WindowStart.Add(limits.Window)) {
		state.RequestCount = 0
		state.WindowStart = now
		l.save(ctx, state)
		return true, time.Time{}
	}

	// At the limit: enter cooldown.
	if state.RequestCount >= limits.MaxRequests {
		state.CooldownUntil = now.Add(limits.Cooldown)
		l.save(ctx, state)
		l.logger.Info("rate limit reached, entering cooldown",
			zap.String("tier", tier),
			zap.Int("count", state.RequestCount),
			zap.Time("cooldown_until", state.CooldownUntil))
		return false, state.CooldownUntil
	}

	return true, time.Time{}
}

// Increment counts one successful generation. Called only after the
// downstream call succeeded; a failed generation never consumes budget.
func (l *RateLimiter) Increment(ctx context.Context, tier string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	state, err := l.repo.Get(ctx)
	if err != nil {
		l.logger.Warn("rate limit state unavailable on increment", zap.Error(err))
		return 0
	}
	state.RequestCount++
	l.save(ctx, state)

	l.logger.Debug("rate limit incremented",
		zap.String("tier", tier),
		zap.Int("count", state.RequestCount),
		zap.Int("max", l.limits(tier).MaxRequests))
	return state.RequestCount
}

// Status returns a read-only snapshot for the status surface.
func (l *RateLimiter) Status(ctx context.Context, tier string) *domain.RateLimitStatus {
	l.mu.Lock()
	defer l.mu.Unlock()

	limits := l.limits(tier)
	status := &domain.RateLimitStatus{Tier: tier, MaxRequests: limits.MaxRequests}

	state, err := l.repo.Get(ctx)
	if err != nil {
		return status
	}
	status.CurrentCount = state.RequestCount
	if !state.WindowStart.IsZero() {
		ws := state.WindowStart
		status.WindowStart = &ws
	}
	if !state.CooldownUntil.IsZero() {
		cu := state.CooldownUntil
		status.CooldownUntil = &cu
	}
	status.IsLimited = state.InCooldown(l.now()) || state.RequestCount >= limits.MaxRequests
	return status
}

func (l *RateLimiter) save(ctx context.Context, state *domain.RateLimitState) {
	if err := l.repo.Save(ctx, state); err != nil {
		l.logger.Warn("failed to persist rate limit state", zap.Error(err))
	}
}
