package repo

import (
	"context"

	"github.com/raidenlabs/inbox-bridge/internal/biz/domain"
)

// StoredMessage is a persisted message row used for long-term reply context.
type StoredMessage struct {
	MessageID string
	ChatID    string
	Sender    string
	Text      string
	IsSelf    bool
}

// MessageRepo is the message persistence interface
// Stores delivered messages so reply generation has context beyond the
// live scrape window (SQLite)
type MessageRepo interface {
	// Append persists delivered messages; duplicates by message id are ignored
	Append(ctx context.Context, msgs []*domain.Message) error

	// RecordSent persists a message the engine itself sent
	RecordSent(ctx context.Context, chatID, text string) error

	// RecentByChat returns up to limit most recent stored messages for a
	// chat, oldest first
	RecentByChat(ctx context.Context, chatID string, limit int) ([]*StoredMessage, error)

	// OwnMessages returns up to limit of the account's own past messages,
	// used as writing-style examples for generation
	OwnMessages(ctx context.Context, limit int) ([]string, error)

	// Close closes the underlying store
	Close() error
}
