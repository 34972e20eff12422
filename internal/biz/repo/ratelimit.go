package repo

import (
	"context"

	"github.com/raidenlabs/inbox-bridge/internal/biz/domain"
)

// RateLimitRepo persists the single rate-limit state row (SQLite).
// Read/write failures are surfaced to the limiter, which fails open.
type RateLimitRepo interface {
	// Get returns the current state, creating a zeroed row on first use
	Get(ctx context.Context) (*domain.RateLimitState, error)

	// Save overwrites the state row
	Save(ctx context.Context, state *domain.RateLimitState) error

	// Close closes the underlying store
	Close() error
}
