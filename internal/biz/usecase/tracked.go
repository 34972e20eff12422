package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/raidenlabs/inbox-bridge/internal/biz/domain"
	"github.com/raidenlabs/inbox-bridge/internal/biz/repo"
)

// TrackedSet is the process-wide cache of chat ids with AI processing
// enabled. It is always rebuilt wholesale from persisted settings, never
// patched incrementally, so it cannot drift from storage.
type TrackedSet struct {
	settingsRepo repo.SettingsRepo
	logger       *zap.Logger

	mu  sync.RWMutex
	ids map[string]struct{}
}

// NewTrackedSet creates an empty tracked-chat cache.
func NewTrackedSet(settingsRepo repo.SettingsRepo, logger *zap.Logger) *TrackedSet {
	return &TrackedSet{
		settingsRepo: settingsRepo,
		logger:       logger,
		ids:          make(map[string]struct{}),
	}
}

// Refresh rebuilds the cache from persisted settings.
func (s *TrackedSet) Refresh(ctx context.Context) error {
	chatIDs, err := s.settingsRepo.ListEnabled(ctx)
	if err != nil {
		return fmt.Errorf("list enabled chats: %w", err)
	}

	ids := make(map[string]struct{}, len(chatIDs))
	for _, id := range chatIDs {
		ids[id] = struct{}{}
	}

	s.mu.Lock()
	s.ids = ids
	s.mu.Unlock()

	s.logger.Info("tracked chat cache refreshed", zap.Int("count", len(ids)))
	return nil
}

// Contains reports whether a chat is tracked.
func (s *TrackedSet) Contains(chatID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.ids[chatID]
	return ok
}

// Len returns the number of tracked chats.
func (s *TrackedSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ids)
}

// Enroll persists enabled settings for a previously untracked chat using
// the global rules, then rebuilds the cache. Existing custom rules are
// preserved.
func (s *TrackedSet) Enroll(ctx context.Context, chatID, globalRules string) error {
	settings, err := s.settingsRepo.GetSettings(ctx, chatID)
	if err != nil {
		return fmt.Errorf("get settings: %w", err)
	}
	if settings == nil {
		settings = &domain.ChatSettings{ChatID: chatID}
	}
	settings.Enabled = true
	settings.AutoReply = true
	if settings.CustomRules == "" {
		settings.CustomRules = globalRules
	}
	settings.LastSynced = time.Now()

	if err := s.settingsRepo.SaveSettings(ctx, settings); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return s.Refresh(ctx)
}
