package usecase

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/raidenlabs/inbox-bridge/internal/biz/domain"
	"github.com/raidenlabs/inbox-bridge/internal/biz/repo"
)

// ReplyConfig bounds how much context goes into one generation call.
type ReplyConfig struct {
	HistoryLimit       int // live transcript messages
	StyleExampleLimit  int // own past messages for style matching
	StoredContextLimit int // persisted messages for long-term memory
}

// DefaultReplyConfig returns the default context bounds.
func DefaultReplyConfig() ReplyConfig {
	return ReplyConfig{
		HistoryLimit:       15,
		StyleExampleLimit:  30,
		StoredContextLimit: 75,
	}
}

// ReplyUsecase assembles the context for a generation call and invokes the
// external generator. It does not decide whether to send; that is the
// orchestrator's job.
type ReplyUsecase struct {
	generator    repo.ReplyGenerator
	settingsRepo repo.SettingsRepo
	messageRepo  repo.MessageRepo
	profileRepo  repo.ProfileRepo
	config       ReplyConfig
	logger       *zap.Logger
}

// NewReplyUsecase creates a new reply usecase.
func NewReplyUsecase(
	generator repo.ReplyGenerator,
	settingsRepo repo.SettingsRepo,
	messageRepo repo.MessageRepo,
	profileRepo repo.ProfileRepo,
	config ReplyConfig,
	logger *zap.Logger,
) *ReplyUsecase {
	return &ReplyUsecase{
		generator:    generator,
		settingsRepo: settingsRepo,
		messageRepo:  messageRepo,
		profileRepo:  profileRepo,
		config:       config,
		logger:       logger,
	}
}

// Generate produces reply text for a chat from the live transcript plus
// persisted context. Returns the raw generated text; callers split it into
// candidate messages with domain.SplitReply.
func (uc *ReplyUsecase) Generate(ctx context.Context, chatID string, transcript []*domain.Message, isStarter bool) (string, error) {
	req := &repo.ReplyRequest{
		ChatID:     chatID,
		Transcript: domain.FormatTranscript(transcript),
		IsStarter:  isStarter,
	}

	// Cached typing profile. Best effort; generation proceeds without one.
	if profile, err := uc.profileRepo.Get(ctx, chatID); err == nil {
		req.Profile = profile
	} else {
		uc.logger.Warn("failed to load typing profile",
			zap.String("chat_id", chatID), zap.Error(err))
	}

	// Per-chat custom rules, falling back to none.
	if settings, err := uc.settingsRepo.GetSettings(ctx, chatID); err == nil && settings != nil {
		req.Rules = settings.CustomRules
	}

	// Own past messages as style examples. Best effort.
	if examples, err := uc.messageRepo.OwnMessages(ctx, uc.config.StyleExampleLimit); err == nil && len(examples) > 0 {
		var b strings.Builder
		for _, e := range examples {
			fmt.Fprintf(&b, "- %s\n", e)
		}
		req.StyleExamples = b.String()
	} else if err != nil {
		uc.logger.Warn("failed to load writing examples", zap.Error(err))
	}

	// Persisted history for long-term memory. Best effort.
	if stored, err := uc.messageRepo.RecentByChat(ctx, chatID, uc.config.StoredContextLimit); err == nil && len(stored) > 0 {
		var b strings.Builder
		b.WriteString("Past messages with the user:\n")
		for _, m := range stored {
			fmt.Fprintf(&b, "[%s]: %s\n", m.Sender, m.Text)
		}
		req.RecentContext = b.String()
	} else if err != nil {
		uc.logger.Warn("failed to load stored context", zap.String("chat_id", chatID), zap.Error(err))
	}

	text, err := uc.generator.GenerateReply(ctx, req)
	if err != nil {
		return "", fmt.Errorf("generate reply: %w", err)
	}
	return text, nil
}
