package usecase

import (
	"sync"

	"go.uber.org/zap"

	"github.com/raidenlabs/inbox-bridge/internal/biz/domain"
)

// DedupTracker remembers, per chat, which message ids have already been
// delivered to viewers or persisted, and computes the new-message delta
// from a freshly fetched history.
//
// State is in-memory only and rebuilt empty on restart: the first read-path
// history load after a restart preseeds the baseline, so old history is
// treated as already seen rather than as new.
type DedupTracker struct {
	mu     sync.Mutex
	seen   map[string]map[string]struct{}
	logger *zap.Logger
}

// NewDedupTracker creates an empty tracker.
func NewDedupTracker(logger *zap.Logger) *DedupTracker {
	return &DedupTracker{
		seen:   make(map[string]map[string]struct{}),
		logger: logger,
	}
}

// NewMessages filters fetched messages down to those not yet surfaced for
// the chat, marking them seen. Messages without an id are unextractable and
// untrackable: they are logged and dropped, never delivered, since
// re-delivering them on every fetch would be an unbounded duplicate storm.
func (t *DedupTracker) NewMessages(chatID string, fetched []*domain.Message) []*domain.Message {
	t.mu.Lock()
	defer t.mu.Unlock()

	ids := t.chatSet(chatID)
	var fresh []*domain.Message
	for _, m := range fetched {
		if !m.HasID() {
			t.logger.Debug("dropping untrackable message without id",
				zap.String("chat_id", chatID), zap.String("sender", m.Sender))
			continue
		}
		if _, ok := ids[m.ID]; ok {
			continue
		}
		ids[m.ID] = struct{}{}
		fresh = append(fresh, m)
	}
	return fresh
}

// Preseed marks every id in history as already seen. Called by the read
// path before the live-update path may run for the chat, so a history load
// and live delivery never double-deliver the same message.
func (t *DedupTracker) Preseed(chatID string, history []*domain.Message) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	ids := t.chatSet(chatID)
	added := 0
	for _, m := range history {
		if !m.HasID() {
			continue
		}
		if _, ok := ids[m.ID]; !ok {
			ids[m.ID] = struct{}{}
			added++
		}
	}
	return added
}

// Reset forgets all seen ids for a chat. Used when a viewer reopens history
// fresh; the subsequent read-path load preseeds a new baseline.
func (t *DedupTracker) Reset(chatID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.seen, chatID)
}

// SeenCount returns how many ids are tracked for a chat.
func (t *DedupTracker) SeenCount(chatID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.seen[chatID])
}

func (t *DedupTracker) chatSet(chatID string) map[string]struct{} {
	ids, ok := t.seen[chatID]
	if !ok {
		ids = make(map[string]struct{})
		t.seen[chatID] = ids
	}
	return ids
}
