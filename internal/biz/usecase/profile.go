package usecase

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/raidenlabs/inbox-bridge/internal/biz/repo"
)

// ErrProfileNotFound is returned when a chat has no cached profile yet.
var ErrProfileNotFound = errors.New("profile not generated yet")

// ProfileUsecase manages cached per-chat typing profiles: documents
// describing how the account owner writes in a given conversation, generated
// once from history and fed into every reply generation afterwards.
type ProfileUsecase struct {
	generator repo.ProfileGenerator
	repo      repo.ProfileRepo
	logger    *zap.Logger
}

// NewProfileUsecase creates a new profile usecase.
func NewProfileUsecase(generator repo.ProfileGenerator, profileRepo repo.ProfileRepo, logger *zap.Logger) *ProfileUsecase {
	return &ProfileUsecase{
		generator: generator,
		repo:      profileRepo,
		logger:    logger,
	}
}

// Get returns the cached profile for a chat.
func (uc *ProfileUsecase) Get(ctx context.Context, chatID string) (string, error) {
	data, err := uc.repo.Get(ctx, chatID)
	if err != nil {
		return "", fmt.Errorf("get profile: %w", err)
	}
	if data == "" {
		return "", ErrProfileNotFound
	}
	return data, nil
}

// Update replaces an existing profile with caller-supplied data. A profile
// must have been generated first.
func (uc *ProfileUsecase) Update(ctx context.Context, chatID, profileData string) error {
	existing, err := uc.repo.Get(ctx, chatID)
	if err != nil {
		return fmt.Errorf("get profile: %w", err)
	}
	if existing == "" {
		return ErrProfileNotFound
	}
	if err := uc.repo.Save(ctx, chatID, profileData); err != nil {
		return fmt.Errorf("save profile: %w", err)
	}
	uc.logger.Info("profile updated", zap.String("chat_id", chatID))
	return nil
}

// Generate builds a fresh profile from the transcript and caches it. A save
// failure is logged but the generated profile is still returned.
func (uc *ProfileUsecase) Generate(ctx context.Context, chatID, transcript string) (string, error) {
	profile, err := uc.generator.GenerateProfile(ctx, transcript)
	if err != nil {
		return "", fmt.Errorf("generate profile: %w", err)
	}

	if err := uc.repo.Save(ctx, chatID, profile); err != nil {
		uc.logger.Warn("failed to cache profile",
			zap.String("chat_id", chatID), zap.Error(err))
	}
	return profile, nil
}
