package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/raidenlabs/inbox-bridge/internal/biz/domain"
	"github.com/raidenlabs/inbox-bridge/internal/biz/repo"
	"github.com/raidenlabs/inbox-bridge/internal/biz/usecase"
	"github.com/raidenlabs/inbox-bridge/internal/server"
)

// Config holds the engine's timing and context parameters.
type Config struct {
	Debounce            time.Duration // settle time between change signal and fetch
	HistoryLimit        int           // messages per live history fetch
	StarterHistoryLimit int           // messages fetched for conversation starters
	ProfileHistoryLimit int           // messages analyzed for a typing profile
	SendPause           time.Duration // pause between sequential multi-message sends
	Tier                string        // rate-limit tier for this deployment
	StopGrace           time.Duration // how long Stop waits for reply units
}

// DefaultConfig returns the default engine parameters.
func DefaultConfig() Config {
	return Config{
		Debounce:            500 * time.Millisecond,
		HistoryLimit:        15,
		StarterHistoryLimit: 50,
		ProfileHistoryLimit: 200,
		SendPause:           500 * time.Millisecond,
		Tier:                "free",
		StopGrace:           10 * time.Second,
	}
}

// ErrRateLimited is returned by on-demand generation entry points when the
// tier's budget is exhausted.
var ErrRateLimited = errors.New("generation rate limited")

// Engine is the reply orchestrator. It owns the change-driven event loop:
// wake on a change signal, debounce, snapshot the inbox, diff, fetch
// changed chats, deduplicate, broadcast, and decide per chat whether to
// generate and auto-send a reply or surface a suggestion.
type Engine struct {
	extractor    repo.Extractor
	guard        *FetchGuard
	diff         *usecase.DiffEngine
	dedup        *usecase.DedupTracker
	tracked      *usecase.TrackedSet
	limiter      *usecase.RateLimiter
	reply        *usecase.ReplyUsecase
	profiles     *usecase.ProfileUsecase
	settingsRepo repo.SettingsRepo
	messageRepo  repo.MessageRepo
	hub          *server.Hub
	config       Config
	logger       *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	stopCh chan struct{}
	loopWG sync.WaitGroup
	unitWG sync.WaitGroup

	mu           sync.Mutex
	busy         map[string]bool
	lastSnapshot *domain.InboxSnapshot
}

// NewEngine wires the orchestrator. Start must be called before it reacts
// to change signals.
func NewEngine(
	extractor repo.Extractor,
	guard *FetchGuard,
	diff *usecase.DiffEngine,
	dedup *usecase.DedupTracker,
	tracked *usecase.TrackedSet,
	limiter *usecase.RateLimiter,
	reply *usecase.ReplyUsecase,
	profiles *usecase.ProfileUsecase,
	settingsRepo repo.SettingsRepo,
	messageRepo repo.MessageRepo,
	hub *server.Hub,
	config Config,
	logger *zap.Logger,
) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		extractor:    extractor,
		guard:        guard,
		diff:         diff,
		dedup:        dedup,
		tracked:      tracked,
		limiter:      limiter,
		reply:        reply,
		profiles:     profiles,
		settingsRepo: settingsRepo,
		messageRepo:  messageRepo,
		hub:          hub,
		config:       config,
		logger:       logger,
		ctx:          ctx,
		cancel:       cancel,
		stopCh:       make(chan struct{}),
		busy:         make(map[string]bool),
	}
}

// sidebarEvent is the payload broadcast to the sidebar room.
type sidebarEvent struct {
	Event string                `json:"event"`
	Chats []domain.SidebarEntry `json:"chats"`
}

// messageEvent delivers one new message to a chat room.
type messageEvent struct {
	Event   string          `json:"event"`
	ChatID  string          `json:"chat_id"`
	Message *domain.Message `json:"message"`
}

// logEvent reports AI progress to a chat room. The wire shape is
// {"event": "log", "type": "generating"|"sending"|"clear"}.
type logEvent struct {
	Event  string `json:"event"`
	ChatID string `json:"chat_id"`
	State  string `json:"type"`
	Text   string `json:"text,omitempty"`
}

// suggestionEvent carries generated reply candidates awaiting confirmation.
type suggestionEvent struct {
	Event    string   `json:"event"`
	ChatID   string   `json:"chat_id"`
	Messages []string `json:"messages"`
}

// rateLimitedEvent tells viewers generation was skipped for budget reasons.
type rateLimitedEvent struct {
	Event   string    `json:"event"`
	ChatID  string    `json:"chat_id"`
	ResetAt time.Time `json:"reset_at"`
}

// Start refreshes the tracked-chat cache and launches the event loop.
func (e *Engine) Start() error {
	if err := e.tracked.Refresh(e.ctx); err != nil {
		return fmt.Errorf("refresh tracked set: %w", err)
	}
	e.loopWG.Add(1)
	go e.run()
	e.logger.Info("engine started",
		zap.Duration("debounce", e.config.Debounce),
		zap.String("tier", e.config.Tier))
	return nil
}

// Stop shuts the loop down and waits for in-flight reply units up to the
// configured grace period, then abandons them.
func (e *Engine) Stop() {
	close(e.stopCh)
	e.cancel()
	e.loopWG.Wait()

	done := make(chan struct{})
	go func() {
		e.unitWG.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(e.config.StopGrace):
		e.logger.Warn("reply units still running at shutdown, abandoning")
	}
	e.logger.Info("engine stopped")
}

// run is the single-goroutine event loop. The ticker lets it observe
// shutdown while no changes arrive.
func (e *Engine) run() {
	defer e.loopWG.Done()
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-e.stopCh:
			return
		case <-e.extractor.Changes():
			e.cycle()
		case <-ticker.C:
		}
	}
}

// cycle processes one change signal end to end.
func (e *Engine) cycle() {
	// Let the remote surface settle; change signals fire mid-render.
	select {
	case <-e.stopCh:
		return
	case <-time.After(e.config.Debounce):
	}

	entries, err := e.extractor.ExtractInbox(e.ctx)
	if err != nil {
		e.logger.Warn("inbox extraction failed", zap.Error(err))
		return
	}
	snap := domain.NewInboxSnapshot(entries)

	e.mu.Lock()
	old := e.lastSnapshot
	e.mu.Unlock()

	if old != nil && snap.Equal(old) {
		return
	}
	result := e.diff.Diff(old, snap)

	e.mu.Lock()
	e.lastSnapshot = snap
	e.mu.Unlock()

	for _, entry := range entries {
		chat := &domain.Chat{
			ID:          entry.ChatID,
			Username:    entry.Name,
			FullName:    entry.Name,
			ProfilePic:  entry.ProfilePic,
			LastPreview: entry.Preview,
			LastSeenAt:  time.Now(),
		}
		if err := e.settingsRepo.UpsertChat(e.ctx, chat); err != nil {
			e.logger.Warn("failed to upsert chat record",
				zap.String("chat_id", entry.ChatID), zap.Error(err))
		}
	}

	// Any observed difference refreshes the sidebar, even when every
	// changed preview was suppressed as ephemeral.
	e.hub.Broadcast(server.SidebarRoom, sidebarEvent{
		Event: "sidebar_update",
		Chats: e.buildSidebar(entries),
	})

	if len(result.FirstSeen) > 0 {
		e.logger.Info("new chats observed", zap.Strings("chat_ids", result.FirstSeen))
	}
	for _, chatID := range result.Changed {
		e.handleChange(chatID)
	}
}

// buildSidebar joins snapshot entries with persisted settings and tracked
// membership.
func (e *Engine) buildSidebar(entries []domain.InboxEntry) []domain.SidebarEntry {
	out := make([]domain.SidebarEntry, 0, len(entries))
	for _, entry := range entries {
		se := domain.SidebarEntry{
			ID:          entry.ChatID,
			Username:    entry.Name,
			FullName:    entry.Name,
			LastMessage: entry.Preview,
			ProfilePic:  entry.ProfilePic,
			IsTracked:   e.tracked.Contains(entry.ChatID),
		}
		if settings, err := e.settingsRepo.GetSettings(e.ctx, entry.ChatID); err == nil && settings != nil {
			se.Settings = settings
		}
		out = append(out, se)
	}
	return out
}

// handleChange runs the per-chat pipeline for one changed chat.
func (e *Engine) handleChange(chatID string) {
	isTracked := e.tracked.Contains(chatID)

	// Auto-enroll untracked chats when the global policy says so. Global
	// rules apply only when the chat never had its own.
	if !isTracked {
		policy, err := e.settingsRepo.GetGlobalPolicy(e.ctx)
		if err != nil {
			e.logger.Warn("failed to load global policy", zap.Error(err))
		} else if policy != nil && policy.AutoReplyAll {
			if err := e.tracked.Enroll(e.ctx, chatID, policy.GlobalRules); err != nil {
				e.logger.Warn("failed to enroll chat",
					zap.String("chat_id", chatID), zap.Error(err))
			} else {
				e.logger.Info("auto-enrolled chat", zap.String("chat_id", chatID))
				isTracked = true
			}
		}
	}

	// No live viewer and nothing to do for the AI: the sidebar refresh
	// above is all this change warrants.
	if !isTracked && !e.hub.IsActive(chatID) {
		e.logger.Debug("skipping untracked chat without viewers",
			zap.String("chat_id", chatID))
		return
	}

	msgs, err := e.guard.Fetch(e.ctx, chatID, e.config.HistoryLimit)
	if err != nil {
		if errors.Is(err, ErrFetchStale) || errors.Is(err, ErrFetchTimeout) {
			e.logger.Debug("no history update this cycle",
				zap.String("chat_id", chatID), zap.Error(err))
		} else {
			e.logger.Warn("history fetch failed",
				zap.String("chat_id", chatID), zap.Error(err))
		}
		return
	}

	fresh := e.dedup.NewMessages(chatID, msgs)
	if len(fresh) == 0 {
		return
	}
	if err := e.messageRepo.Append(e.ctx, fresh); err != nil {
		e.logger.Warn("failed to persist messages",
			zap.String("chat_id", chatID), zap.Error(err))
	}
	for _, m := range fresh {
		e.hub.Broadcast(server.ChatRoom(chatID), messageEvent{
			Event:   "new_message",
			ChatID:  chatID,
			Message: m,
		})
	}

	if !isTracked {
		return
	}
	last := msgs[len(msgs)-1]
	if last.IsSelf {
		return
	}
	e.spawnReplyUnit(chatID, msgs)
}

// spawnReplyUnit starts one background reply cycle for a chat unless one is
// already running for it.
func (e *Engine) spawnReplyUnit(chatID string, transcript []*domain.Message) {
	e.mu.Lock()
	if e.busy[chatID] {
		e.mu.Unlock()
		e.logger.Debug("reply unit already running", zap.String("chat_id", chatID))
		return
	}
	e.busy[chatID] = true
	e.mu.Unlock()

	e.unitWG.Add(1)
	go func() {
		defer e.unitWG.Done()
		defer func() {
			e.mu.Lock()
			delete(e.busy, chatID)
			e.mu.Unlock()
		}()
		e.replyUnit(chatID, transcript, false)
	}()
}

// replyUnit runs one generation cycle: rate check, generate, then either
// auto-send or surface a suggestion.
func (e *Engine) replyUnit(chatID string, transcript []*domain.Message, isStarter bool) {
	room := server.ChatRoom(chatID)

	allowed, resetAt := e.limiter.Allow(e.ctx, e.config.Tier)
	if !allowed {
		e.logger.Info("generation rate limited",
			zap.String("chat_id", chatID), zap.Time("reset_at", resetAt))
		// Both the chat's viewers and the sidebar surface the limit.
		ev := rateLimitedEvent{Event: "rate_limited", ChatID: chatID, ResetAt: resetAt}
		e.hub.Broadcast(room, ev)
		e.hub.Broadcast(server.SidebarRoom, ev)
		return
	}

	e.hub.Broadcast(room, logEvent{Event: "log", ChatID: chatID, State: "generating"})

	text, err := e.reply.Generate(e.ctx, chatID, transcript, isStarter)
	if err != nil {
		e.logger.Error("reply generation failed",
			zap.String("chat_id", chatID), zap.Error(err))
		e.hub.Broadcast(room, logEvent{Event: "log", ChatID: chatID, State: "clear"})
		return
	}
	e.limiter.Increment(e.ctx, e.config.Tier)

	parts := domain.SplitReply(text)
	if len(parts) == 0 {
		e.hub.Broadcast(room, logEvent{Event: "log", ChatID: chatID, State: "clear"})
		return
	}

	// Starters and replies obey the same per-chat switch: auto-reply off
	// means the generated text is surfaced, never sent.
	autoReply := false
	if settings, err := e.settingsRepo.GetSettings(e.ctx, chatID); err == nil && settings != nil {
		autoReply = settings.AutoReply
	}

	if !autoReply {
		e.logger.Info("surfacing reply suggestion",
			zap.String("chat_id", chatID), zap.Int("parts", len(parts)))
		e.hub.Broadcast(room, suggestionEvent{
			Event:    "suggestion",
			ChatID:   chatID,
			Messages: parts,
		})
		return
	}

	e.hub.Broadcast(room, logEvent{Event: "log", ChatID: chatID, State: "sending"})
	if err := e.sendParts(e.ctx, chatID, parts); err != nil {
		e.logger.Error("auto-send failed", zap.String("chat_id", chatID), zap.Error(err))
	}
	e.hub.Broadcast(room, logEvent{Event: "log", ChatID: chatID, State: "clear"})
}

// sendParts sends candidate messages sequentially with the configured
// pause. The first failure aborts the remainder; already-sent parts stand.
func (e *Engine) sendParts(ctx context.Context, chatID string, parts []string) error {
	room := server.ChatRoom(chatID)
	for i, part := range parts {
		if i > 0 {
			select {
			case <-ctx.Done():
				return &domain.SendError{Index: i, Err: ctx.Err()}
			case <-time.After(e.config.SendPause):
			}
		}
		if err := e.extractor.Send(ctx, chatID, part); err != nil {
			return &domain.SendError{Index: i, Err: err}
		}
		if err := e.messageRepo.RecordSent(ctx, chatID, part); err != nil {
			e.logger.Warn("failed to record sent message",
				zap.String("chat_id", chatID), zap.Error(err))
		}
		e.hub.Broadcast(room, messageEvent{
			Event:  "new_message",
			ChatID: chatID,
			Message: &domain.Message{
				ChatID: chatID,
				Sender: "me",
				Text:   part,
				IsSelf: true,
			},
		})
	}
	return nil
}

// LoadHistory is the read path: fetch a chat's history, preseed the dedup
// baseline so the live path never re-delivers it, and persist it.
func (e *Engine) LoadHistory(ctx context.Context, chatID string, limit int) ([]*domain.Message, error) {
	if limit <= 0 {
		limit = e.config.HistoryLimit
	}
	msgs, err := e.guard.Fetch(ctx, chatID, limit)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	preseeded := e.dedup.Preseed(chatID, msgs)
	e.logger.Debug("history loaded",
		zap.String("chat_id", chatID),
		zap.Int("messages", len(msgs)),
		zap.Int("preseeded", preseeded))

	if err := e.messageRepo.Append(ctx, msgs); err != nil {
		e.logger.Warn("failed to persist history",
			zap.String("chat_id", chatID), zap.Error(err))
	}
	return msgs, nil
}

// SendMessage sends user-authored text to a chat, splitting on newlines
// like generated replies. Manual sends bypass the rate limiter.
func (e *Engine) SendMessage(ctx context.Context, chatID, text string) error {
	parts := domain.SplitReply(text)
	if len(parts) == 0 {
		return fmt.Errorf("nothing to send")
	}
	return e.sendParts(ctx, chatID, parts)
}

// StartConversation generates and sends an opener for a chat. Uses a deep
// history fetch for context and the same rate-limit path as replies.
func (e *Engine) StartConversation(ctx context.Context, chatID string) error {
	e.mu.Lock()
	if e.busy[chatID] {
		e.mu.Unlock()
		return fmt.Errorf("reply cycle already running for chat %s", chatID)
	}
	e.busy[chatID] = true
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		delete(e.busy, chatID)
		e.mu.Unlock()
	}()

	msgs, err := e.guard.Fetch(ctx, chatID, e.config.StarterHistoryLimit)
	if err != nil && !errors.Is(err, ErrFetchTimeout) {
		return fmt.Errorf("fetch history: %w", err)
	}
	e.dedup.Preseed(chatID, msgs)

	e.replyUnit(chatID, msgs, true)
	return nil
}

// RegenerateSuggestion runs a fresh generation for a chat and surfaces the
// result as a suggestion, regardless of the auto-reply switch.
func (e *Engine) RegenerateSuggestion(ctx context.Context, chatID string) (string, error) {
	room := server.ChatRoom(chatID)

	allowed, resetAt := e.limiter.Allow(ctx, e.config.Tier)
	if !allowed {
		return "", fmt.Errorf("%w until %s", ErrRateLimited, resetAt.Format(time.RFC3339))
	}

	e.hub.Broadcast(room, logEvent{Event: "log", ChatID: chatID, State: "generating"})

	msgs, err := e.guard.Fetch(ctx, chatID, e.config.HistoryLimit)
	if err != nil && !errors.Is(err, ErrFetchTimeout) {
		e.hub.Broadcast(room, logEvent{Event: "log", ChatID: chatID, State: "clear"})
		return "", fmt.Errorf("fetch history: %w", err)
	}

	text, err := e.reply.Generate(ctx, chatID, msgs, false)
	if err != nil {
		e.hub.Broadcast(room, logEvent{Event: "log", ChatID: chatID, State: "clear"})
		return "", err
	}
	e.limiter.Increment(ctx, e.config.Tier)

	e.hub.Broadcast(room, suggestionEvent{
		Event:    "suggestion",
		ChatID:   chatID,
		Messages: domain.SplitReply(text),
	})
	return text, nil
}

// GenerateProfile returns the chat's cached typing profile, building it from
// a deep history fetch when absent or when force is set. A fresh build
// counts against the generation budget.
func (e *Engine) GenerateProfile(ctx context.Context, chatID string, force bool) (string, error) {
	if !force {
		if profile, err := e.profiles.Get(ctx, chatID); err == nil {
			return profile, nil
		}
	}

	allowed, resetAt := e.limiter.Allow(ctx, e.config.Tier)
	if !allowed {
		return "", fmt.Errorf("%w until %s", ErrRateLimited, resetAt.Format(time.RFC3339))
	}

	msgs, err := e.guard.Fetch(ctx, chatID, e.config.ProfileHistoryLimit)
	if err != nil {
		return "", fmt.Errorf("fetch history: %w", err)
	}
	if len(msgs) == 0 {
		return "", fmt.Errorf("no history to profile for chat %s", chatID)
	}

	profile, err := e.profiles.Generate(ctx, chatID, domain.FormatTranscript(msgs))
	if err != nil {
		return "", err
	}
	e.limiter.Increment(ctx, e.config.Tier)
	return profile, nil
}

// Sidebar returns the current joined sidebar view. Falls back to a fresh
// extraction when no snapshot has been taken yet.
func (e *Engine) Sidebar(ctx context.Context) ([]domain.SidebarEntry, error) {
	e.mu.Lock()
	snap := e.lastSnapshot
	e.mu.Unlock()

	if snap == nil {
		entries, err := e.extractor.ExtractInbox(ctx)
		if err != nil {
			return nil, fmt.Errorf("extract inbox: %w", err)
		}
		snap = domain.NewInboxSnapshot(entries)
		e.mu.Lock()
		e.lastSnapshot = snap
		e.mu.Unlock()
	}
	return e.buildSidebar(snap.Entries), nil
}

// Tracked exposes the tracked-chat cache for the API layer.
func (e *Engine) Tracked() *usecase.TrackedSet { return e.tracked }

// RateLimiter exposes the limiter for the status endpoint.
func (e *Engine) RateLimiter() *usecase.RateLimiter { return e.limiter }

// Profiles exposes the profile usecase for the API layer.
func (e *Engine) Profiles() *usecase.ProfileUsecase { return e.profiles }
