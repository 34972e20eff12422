package data

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/raidenlabs/inbox-bridge/internal/biz/domain"
	"github.com/raidenlabs/inbox-bridge/internal/biz/repo"
)

// settingsRepo implements the settings repository
type settingsRepo struct {
	db *sql.DB
}

// NewSettingsRepo creates a new settings repository
func NewSettingsRepo(dbPath string) (repo.SettingsRepo, error) {
	db, err := Open(dbPath)
	if err != nil {
		return nil, err
	}

	// Create chats table
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS chats (
			id TEXT PRIMARY KEY,
			username TEXT NOT NULL,
			full_name TEXT,
			profile_pic TEXT,
			last_preview TEXT,
			last_seen_at INTEGER NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create chats table: %w", err)
	}

	// Create per-chat settings table
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS chat_settings (
			chat_id TEXT PRIMARY KEY,
			enabled INTEGER NOT NULL DEFAULT 0,
			auto_reply INTEGER NOT NULL DEFAULT 0,
			custom_rules TEXT,
			last_synced INTEGER NOT NULL DEFAULT 0
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create chat_settings table: %w", err)
	}

	// Create global policy table (single row, id = 1)
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS global_settings (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			auto_reply_all INTEGER NOT NULL DEFAULT 0,
			global_rules TEXT NOT NULL DEFAULT ''
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create global_settings table: %w", err)
	}

	_, _ = db.Exec(`CREATE INDEX IF NOT EXISTS idx_chat_settings_enabled ON chat_settings(enabled)`)

	return &settingsRepo{db: db}, nil
}

// UpsertChat creates or refreshes a chat record from a snapshot row
func (r *settingsRepo) UpsertChat(ctx context.Context, chat *domain.Chat) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO chats (id, username, full_name, profile_pic, last_preview, last_seen_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			username = excluded.username,
			full_name = excluded.full_name,
			profile_pic = CASE WHEN excluded.profile_pic != '' THEN excluded.profile_pic ELSE chats.profile_pic END,
			last_preview = excluded.last_preview,
			last_seen_at = excluded.last_seen_at
	`, chat.ID, chat.Username, chat.FullName, chat.ProfilePic, chat.LastPreview, chat.LastSeenAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to upsert chat: %w", err)
	}
	return nil
}

// GetChat gets a chat record by id
func (r *settingsRepo) GetChat(ctx context.Context, chatID string) (*domain.Chat, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, username, COALESCE(full_name, ''), COALESCE(profile_pic, ''), COALESCE(last_preview, ''), last_seen_at
		FROM chats WHERE id = ?
	`, chatID)

	var chat domain.Chat
	var lastSeen int64
	err := row.Scan(&chat.ID, &chat.Username, &chat.FullName, &chat.ProfilePic, &chat.LastPreview, &lastSeen)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query chat: %w", err)
	}
	chat.LastSeenAt = time.Unix(lastSeen, 0)
	return &chat, nil
}

// GetSettings gets per-chat settings, nil when none exist
func (r *settingsRepo) GetSettings(ctx context.Context, chatID string) (*domain.ChatSettings, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT chat_id, enabled, auto_reply, COALESCE(custom_rules, ''), last_synced
		FROM chat_settings WHERE chat_id = ?
	`, chatID)

	var s domain.ChatSettings
	var lastSynced int64
	err := row.Scan(&s.ChatID, &s.Enabled, &s.AutoReply, &s.CustomRules, &lastSynced)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query settings: %w", err)
	}
	s.LastSynced = time.Unix(lastSynced, 0)
	return &s, nil
}

// SaveSettings saves per-chat settings (create or update)
func (r *settingsRepo) SaveSettings(ctx context.Context, settings *domain.ChatSettings) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO chat_settings (chat_id, enabled, auto_reply, custom_rules, last_synced)
		VALUES (?, ?, ?, ?, ?)
	`, settings.ChatID, settings.Enabled, settings.AutoReply, settings.CustomRules, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	return nil
}

// ListEnabled lists chat ids with enabled = true
func (r *settingsRepo) ListEnabled(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT chat_id FROM chat_settings WHERE enabled = 1`)
	if err != nil {
		return nil, fmt.Errorf("failed to query enabled chats: %w", err)
	}
	defer rows.Close()

	var chatIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan chat id: %w", err)
		}
		chatIDs = append(chatIDs, id)
	}
	return chatIDs, rows.Err()
}

// EnableAll enables AI + auto-reply for the given chats. Chats without
// custom rules receive the global rules; user-set rules are preserved.
func (r *settingsRepo) EnableAll(ctx context.Context, chatIDs []string, globalRules string) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().Unix()
	updated := 0
	for _, chatID := range chatIDs {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO chat_settings (chat_id, enabled, auto_reply, custom_rules, last_synced)
			VALUES (?, 1, 1, ?, ?)
			ON CONFLICT(chat_id) DO UPDATE SET
				enabled = 1,
				auto_reply = 1,
				custom_rules = CASE WHEN COALESCE(chat_settings.custom_rules, '') = '' THEN excluded.custom_rules ELSE chat_settings.custom_rules END,
				last_synced = excluded.last_synced
		`, chatID, globalRules, now)
		if err != nil {
			return 0, fmt.Errorf("failed to enable chat %s: %w", chatID, err)
		}
		updated++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit: %w", err)
	}
	return updated, nil
}

// DisableAll disables AI for every chat with settings. Rules equal to the
// global rules are cleared (they came from global enable); user-edited
// rules are preserved.
func (r *settingsRepo) DisableAll(ctx context.Context, globalRules string) (int, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE chat_settings SET
			enabled = 0,
			auto_reply = 0,
			custom_rules = CASE WHEN custom_rules = ? THEN NULL ELSE custom_rules END,
			last_synced = ?
	`, globalRules, time.Now().Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to disable chats: %w", err)
	}
	n, _ := result.RowsAffected()
	return int(n), nil
}

// GetGlobalPolicy gets the global auto-reply policy
func (r *settingsRepo) GetGlobalPolicy(ctx context.Context) (*domain.GlobalPolicy, error) {
	row := r.db.QueryRowContext(ctx, `SELECT auto_reply_all, global_rules FROM global_settings WHERE id = 1`)

	var p domain.GlobalPolicy
	err := row.Scan(&p.AutoReplyAll, &p.GlobalRules)
	if err == sql.ErrNoRows {
		return &domain.GlobalPolicy{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query global policy: %w", err)
	}
	return &p, nil
}

// SaveGlobalPolicy saves the global auto-reply policy
func (r *settingsRepo) SaveGlobalPolicy(ctx context.Context, policy *domain.GlobalPolicy) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO global_settings (id, auto_reply_all, global_rules)
		VALUES (1, ?, ?)
	`, policy.AutoReplyAll, policy.GlobalRules)
	if err != nil {
		return fmt.Errorf("failed to save global policy: %w", err)
	}
	return nil
}

// Close closes the database connection
func (r *settingsRepo) Close() error {
	return r.db.Close()
}
