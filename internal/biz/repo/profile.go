package repo

import "context"

// ProfileRepo persists cached per-chat typing profiles. The profile is an
// opaque JSON document produced by the generator; callers never parse it.
type ProfileRepo interface {
	// Get returns the cached profile for a chat, or "" when none exists
	Get(ctx context.Context, chatID string) (string, error)

	// Save stores or replaces the profile for a chat
	Save(ctx context.Context, chatID, profileData string) error

	// Close closes the underlying store
	Close() error
}

// ProfileGenerator produces a typing profile from a conversation transcript.
type ProfileGenerator interface {
	// GenerateProfile analyzes the transcript and returns a profile document
	GenerateProfile(ctx context.Context, transcript string) (string, error)
}
