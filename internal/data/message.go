package data

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/raidenlabs/inbox-bridge/internal/biz/domain"
	"github.com/raidenlabs/inbox-bridge/internal/biz/repo"
)

// messageRepo implements the message persistence repository
type messageRepo struct {
	db *sql.DB
}

// NewMessageRepo creates a new message repository
func NewMessageRepo(dbPath string) (repo.MessageRepo, error) {
	db, err := Open(dbPath)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			message_id TEXT UNIQUE,
			chat_id TEXT NOT NULL,
			sender TEXT NOT NULL,
			text TEXT NOT NULL,
			is_self INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create messages table: %w", err)
	}

	_, _ = db.Exec(`CREATE INDEX IF NOT EXISTS idx_messages_chat_created ON messages(chat_id, created_at)`)
	_, _ = db.Exec(`CREATE INDEX IF NOT EXISTS idx_messages_self ON messages(is_self)`)

	return &messageRepo{db: db}, nil
}

// Append persists delivered messages; duplicates by message id are ignored
func (r *messageRepo) Append(ctx context.Context, msgs []*domain.Message) error {
	if len(msgs) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().Unix()
	for _, m := range msgs {
		_, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO messages (message_id, chat_id, sender, text, is_self, created_at)
			VALUES (NULLIF(?, ''), ?, ?, ?, ?, ?)
		`, m.ID, m.ChatID, m.Sender, m.Text, m.IsSelf, now)
		if err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

// RecordSent persists a message the engine itself sent
func (r *messageRepo) RecordSent(ctx context.Context, chatID, text string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO messages (message_id, chat_id, sender, text, is_self, created_at)
		VALUES (NULL, ?, 'me', ?, 1, ?)
	`, chatID, text, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to record sent message: %w", err)
	}
	return nil
}

// RecentByChat returns up to limit most recent stored messages, oldest first
func (r *messageRepo) RecentByChat(ctx context.Context, chatID string, limit int) ([]*repo.StoredMessage, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT COALESCE(message_id, ''), chat_id, sender, text, is_self
		FROM (
			SELECT id, message_id, chat_id, sender, text, is_self
			FROM messages WHERE chat_id = ?
			ORDER BY created_at DESC, id DESC LIMIT ?
		) ORDER BY id ASC
	`, chatID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var msgs []*repo.StoredMessage
	for rows.Next() {
		var m repo.StoredMessage
		if err := rows.Scan(&m.MessageID, &m.ChatID, &m.Sender, &m.Text, &m.IsSelf); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		msgs = append(msgs, &m)
	}
	return msgs, rows.Err()
}

// OwnMessages returns the account's own recent messages, newest first
func (r *messageRepo) OwnMessages(ctx context.Context, limit int) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT text FROM messages
		WHERE is_self = 1 AND text != ''
		ORDER BY created_at DESC, id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query own messages: %w", err)
	}
	defer rows.Close()

	var texts []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("failed to scan message text: %w", err)
		}
		texts = append(texts, t)
	}
	return texts, rows.Err()
}

// Close closes the database connection
func (r *messageRepo) Close() error {
	return r.db.Close()
}
