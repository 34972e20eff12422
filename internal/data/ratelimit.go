package data

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/raidenlabs/inbox-bridge/internal/biz/domain"
	"github.com/raidenlabs/inbox-bridge/internal/biz/repo"
)

// rateLimitRepo implements the rate-limit state repository.
// The table holds one row with id = 1.
type rateLimitRepo struct {
	db *sql.DB
}

// NewRateLimitRepo creates a new rate-limit state repository
func NewRateLimitRepo(dbPath string) (repo.RateLimitRepo, error) {
	db, err := Open(dbPath)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS rate_limit_state (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			request_count INTEGER NOT NULL DEFAULT 0,
			window_start INTEGER NOT NULL,
			cooldown_until INTEGER
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create rate_limit_state table: %w", err)
	}

	return &rateLimitRepo{db: db}, nil
}

// Get returns the current state, creating the row on first use
func (r *rateLimitRepo) Get(ctx context.Context) (*domain.RateLimitState, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT request_count, window_start, COALESCE(cooldown_until, 0)
		FROM rate_limit_state WHERE id = 1
	`)

	var state domain.RateLimitState
	var windowStart, cooldownUntil int64
	err := row.Scan(&state.RequestCount, &windowStart, &cooldownUntil)
	if err == sql.ErrNoRows {
		state = domain.RateLimitState{WindowStart: time.Now()}
		if err := r.Save(ctx, &state); err != nil {
			return nil, err
		}
		return &state, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query rate limit state: %w", err)
	}

	state.WindowStart = time.Unix(windowStart, 0)
	if cooldownUntil > 0 {
		state.CooldownUntil = time.Unix(cooldownUntil, 0)
	}
	return &state, nil
}

// Save overwrites the state row
func (r *rateLimitRepo) Save(ctx context.Context, state *domain.RateLimitState) error {
	var cooldown interface{}
	if !state.CooldownUntil.IsZero() {
		cooldown = state.CooldownUntil.Unix()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO rate_limit_state (id, request_count, window_start, cooldown_until)
		VALUES (1, ?, ?, ?)
	`, state.RequestCount, state.WindowStart.Unix(), cooldown)
	if err != nil {
		return fmt.Errorf("failed to save rate limit state: %w", err)
	}
	return nil
}

// Close closes the database connection
func (r *rateLimitRepo) Close() error {
	return r.db.Close()
}
