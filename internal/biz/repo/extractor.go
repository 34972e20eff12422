package repo

import (
	"context"

	"github.com/raidenlabs/inbox-bridge/internal/biz/domain"
)

// Extractor is the browser-automation extraction interface.
// The underlying driver renders the remote inbox and evaluates read-only
// extraction scripts against it; it is the only source of truth. Calls are
// not cancellable once issued and the surface is single-focus: opening a
// chat for history navigates away from whatever was focused before.
type Extractor interface {
	// ExtractInbox scrapes the sidebar and returns the visible chats in
	// rendered order.
	ExtractInbox(ctx context.Context) ([]domain.InboxEntry, error)

	// ExtractHistory opens a chat and scrapes up to limit messages.
	ExtractHistory(ctx context.Context, chatID string, limit int) ([]*domain.Message, error)

	// Send types and sends a text message into the focused chat.
	Send(ctx context.Context, chatID, text string) error

	// Changes delivers opaque wakeup hints whenever the remote DOM
	// mutates. Debounced upstream; carries no payload.
	Changes() <-chan struct{}

	// Close releases the driver connection.
	Close() error
}
