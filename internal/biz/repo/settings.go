package repo

import (
	"context"

	"github.com/raidenlabs/inbox-bridge/internal/biz/domain"
)

// SettingsRepo is the settings repository interface
// Responsible for chat records, per-chat settings and the global policy (SQLite)
type SettingsRepo interface {
	// UpsertChat creates or refreshes a chat record from a snapshot row
	UpsertChat(ctx context.Context, chat *domain.Chat) error

	// GetChat gets a chat record, nil when unknown
	GetChat(ctx context.Context, chatID string) (*domain.Chat, error)

	// GetSettings gets per-chat settings, nil when none exist
	GetSettings(ctx context.Context, chatID string) (*domain.ChatSettings, error)

	// SaveSettings saves per-chat settings (create or update)
	SaveSettings(ctx context.Context, settings *domain.ChatSettings) error

	// ListEnabled lists chat ids with enabled = true; rebuilds the tracked set
	ListEnabled(ctx context.Context) ([]string, error)

	// EnableAll enables AI + auto-reply for the given chats, preserving
	// custom rules that differ from the global rules
	EnableAll(ctx context.Context, chatIDs []string, globalRules string) (int, error)

	// DisableAll disables AI for every chat, clearing only rules that
	// came from the global rules
	DisableAll(ctx context.Context, globalRules string) (int, error)

	// GetGlobalPolicy gets the global auto-reply policy
	GetGlobalPolicy(ctx context.Context) (*domain.GlobalPolicy, error)

	// SaveGlobalPolicy saves the global auto-reply policy
	SaveGlobalPolicy(ctx context.Context, policy *domain.GlobalPolicy) error

	// Close closes the underlying store
	Close() error
}
