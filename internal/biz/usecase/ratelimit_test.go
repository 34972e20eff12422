package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/raidenlabs/inbox-bridge/internal/biz/domain"
)

// mockRateLimitRepo keeps the single state row in memory.
type mockRateLimitRepo struct {
	state    domain.RateLimitState
	getErr   error
	saveErr  error
	getCalls int
}

func (m *mockRateLimitRepo) Get(ctx context.Context) (*domain.RateLimitState, error) {
	m.getCalls++
	if m.getErr != nil {
		return nil, m.getErr
	}
	s := m.state
	return &s, nil
}

func (m *mockRateLimitRepo) Save(ctx context.Context, state *domain.RateLimitState) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.state = *state
	return nil
}

func (m *mockRateLimitRepo) Close() error { return nil }

func newTestLimiter(repo *mockRateLimitRepo, now time.Time) *RateLimiter {
	l := NewRateLimiter(repo, map[string]domain.TierLimits{
		"free": {Window: 4 * time.Hour, MaxRequests: 3, Cooldown: 2 * time.Hour},
	}, zap.NewNop())
	l.now = func() time.Time { return now }
	return l
}

func TestAllowUnderLimit(t *testing.T) {
	now := time.Now()
	repo := &mockRateLimitRepo{state: domain.RateLimitState{RequestCount: 2, WindowStart: now.Add(-time.Hour)}}
	l := newTestLimiter(repo, now)

	allowed, _ := l.Allow(context.Background(), "free")
	assert.True(t, allowed)
}

func TestAllowAtLimitEntersCooldown(t *testing.T) {
	now := time.Now()
	repo := &mockRateLimitRepo{state: domain.RateLimitState{RequestCount: 3, WindowStart: now.Add(-time.Hour)}}
	l := newTestLimiter(repo, now)

	allowed, resetAt := l.Allow(context.Background(), "free")
	require.False(t, allowed)
	assert.Equal(t, now.Add(2*time.Hour), resetAt)
	assert.Equal(t, now.Add(2*time.Hour), repo.state.CooldownUntil, "cooldown must be persisted")
}

func TestAllowDuringCooldown(t *testing.T) {
	now := time.Now()
	repo := &mockRateLimitRepo{state: domain.RateLimitState{
		RequestCount:  3,
		WindowStart:   now.Add(-3 * time.Hour),
		CooldownUntil: now.Add(time.Hour),
	}}
	l := newTestLimiter(repo, now)

	allowed, resetAt := l.Allow(context.Background(), "free")
	assert.False(t, allowed)
	assert.Equal(t, now.Add(time.Hour), resetAt)
}

func TestAllowAfterCooldownResets(t *testing.T) {
	now := time.Now()
	repo := &mockRateLimitRepo{state: domain.RateLimitState{
		RequestCount:  3,
		WindowStart:   now.Add(-7 * time.Hour),
		CooldownUntil: now.Add(-time.Minute),
	}}
	l := newTestLimiter(repo, now)

	allowed, _ := l.Allow(context.Background(), "free")
	require.True(t, allowed)
	assert.Equal(t, 0, repo.state.RequestCount)
	assert.True(t, repo.state.CooldownUntil.IsZero())
	assert.Equal(t, now, repo.state.WindowStart)
}

func TestWindowBoundary(t *testing.T) {
	now := time.Now()
	window := 4 * time.Hour

	// Just inside the window: counter stands, at the limit → cooldown.
	repo := &mockRateLimitRepo{state: domain.RateLimitState{
		RequestCount: 3,
		WindowStart:  now.Add(-window + time.Millisecond),
	}}
	allowed, _ := newTestLimiter(repo, now).Allow(context.Background(), "free")
	assert.False(t, allowed, "inside the window the limit must hold")

	// Exactly at expiry: window resets, request allowed.
	repo = &mockRateLimitRepo{state: domain.RateLimitState{
		RequestCount: 3,
		WindowStart:  now.Add(-window),
	}}
	allowed, _ = newTestLimiter(repo, now).Allow(context.Background(), "free")
	assert.True(t, allowed, "at expiry the window must reset")
	assert.Equal(t, 0, repo.state.RequestCount)
}

func TestIncrementOnlyAfterSuccess(t *testing.T) {
	now := time.Now()
	repo := &mockRateLimitRepo{state: domain.RateLimitState{WindowStart: now}}
	l := newTestLimiter(repo, now)

	// Allow alone never consumes budget.
	l.Allow(context.Background(), "free")
	l.Allow(context.Background(), "free")
	assert.Equal(t, 0, repo.state.RequestCount)

	count := l.Increment(context.Background(), "free")
	assert.Equal(t, 1, count)
	assert.Equal(t, 1, repo.state.RequestCount)
}

func TestFailOpenOnRepoError(t *testing.T) {
	now := time.Now()
	repo := &mockRateLimitRepo{getErr: errors.New("disk gone")}
	l := newTestLimiter(repo, now)

	allowed, _ := l.Allow(context.Background(), "free")
	assert.True(t, allowed, "persistence failure must fail open")
}

func TestUnknownTierFallsBackToFree(t *testing.T) {
	now := time.Now()
	repo := &mockRateLimitRepo{state: domain.RateLimitState{RequestCount: 3, WindowStart: now.Add(-time.Hour)}}
	l := newTestLimiter(repo, now)

	allowed, _ := l.Allow(context.Background(), "platinum")
	assert.False(t, allowed)
}

func TestStatus(t *testing.T) {
	now := time.Now()
	repo := &mockRateLimitRepo{state: domain.RateLimitState{
		RequestCount: 2,
		WindowStart:  now.Add(-time.Hour),
	}}
	l := newTestLimiter(repo, now)

	status := l.Status(context.Background(), "free")
	require.NotNil(t, status)
	assert.Equal(t, "free", status.Tier)
	assert.Equal(t, 2, status.CurrentCount)
	assert.Equal(t, 3, status.MaxRequests)
	assert.False(t, status.IsLimited)
	require.NotNil(t, status.WindowStart)
	assert.Nil(t, status.CooldownUntil)
}
