// Package service contains the orchestration layer: the change-driven
// engine loop and the guards that keep concurrent work off the
// single-focus extraction surface.
package service

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/raidenlabs/inbox-bridge/internal/biz/domain"
	"github.com/raidenlabs/inbox-bridge/internal/biz/repo"
)

// ErrFetchTimeout marks a history fetch that exceeded its deadline.
var ErrFetchTimeout = errors.New("history fetch timed out")

// ErrFetchStale marks a fetch result that was superseded by a newer fetch
// before it completed. Stale results are discarded, never partially applied.
var ErrFetchStale = errors.New("history fetch superseded")

// FetchGuard serializes history fetches against a single-focus surface.
// Opening a chat navigates away from whatever was focused before, so when
// fetches overlap only the last-issued one may commit its result; an
// earlier in-flight fetch would otherwise scrape whichever chat happens to
// be focused when its scripts run.
type FetchGuard struct {
	extractor repo.Extractor
	timeout   time.Duration
	logger    *zap.Logger
	version   atomic.Uint64
}

// NewFetchGuard creates a guard over the extractor.
func NewFetchGuard(extractor repo.Extractor, timeout time.Duration, logger *zap.Logger) *FetchGuard {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &FetchGuard{extractor: extractor, timeout: timeout, logger: logger}
}

// Fetch opens a chat and scrapes its history. Returns ErrFetchStale when a
// newer fetch was issued while this one ran, and ErrFetchTimeout when the
// driver did not answer within the deadline.
func (g *FetchGuard) Fetch(ctx context.Context, chatID string, limit int) ([]*domain.Message, error) {
	token := g.version.Add(1)

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	msgs, err := g.extractor.ExtractHistory(ctx, chatID, limit)

	if g.version.Load() != token {
		g.logger.Debug("discarding stale history fetch",
			zap.String("chat_id", chatID), zap.Uint64("version", token))
		return nil, ErrFetchStale
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrFetchTimeout
		}
		return nil, err
	}
	return msgs, nil
}
