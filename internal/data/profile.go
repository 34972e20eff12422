package data

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/raidenlabs/inbox-bridge/internal/biz/repo"
)

// profileRepo implements the typing-profile repository.
type profileRepo struct {
	db *sql.DB
}

// NewProfileRepo creates a new typing-profile repository
func NewProfileRepo(dbPath string) (repo.ProfileRepo, error) {
	db, err := Open(dbPath)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS chat_profiles (
			chat_id TEXT PRIMARY KEY,
			profile_data TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create chat_profiles table: %w", err)
	}

	return &profileRepo{db: db}, nil
}

// Get returns the cached profile for a chat, or "" when none exists
func (r *profileRepo) Get(ctx context.Context, chatID string) (string, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT profile_data FROM chat_profiles WHERE chat_id = ?
	`, chatID)

	var data string
	err := row.Scan(&data)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to query profile: %w", err)
	}
	return data, nil
}

// Save stores or replaces the profile for a chat
func (r *profileRepo) Save(ctx context.Context, chatID, profileData string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO chat_profiles (chat_id, profile_data, updated_at)
		VALUES (?, ?, ?)
	`, chatID, profileData, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to save profile: %w", err)
	}
	return nil
}

// Close closes the database connection
func (r *profileRepo) Close() error {
	return r.db.Close()
}
