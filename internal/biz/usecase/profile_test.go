package usecase

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
)

// mockProfileRepo is an in-memory ProfileRepo for usecase tests.
type mockProfileRepo struct {
	profiles map[string]string
	getErr   error
	saveErr  error
}

func newMockProfileRepo() *mockProfileRepo {
	return &mockProfileRepo{profiles: make(map[string]string)}
}

func (m *mockProfileRepo) Get(ctx context.Context, chatID string) (string, error) {
	if m.getErr != nil {
		return "", m.getErr
	}
	return m.profiles[chatID], nil
}

func (m *mockProfileRepo) Save(ctx context.Context, chatID, profileData string) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.profiles[chatID] = profileData
	return nil
}

func (m *mockProfileRepo) Close() error { return nil }

// mockProfileGenerator returns a fixed profile document.
type mockProfileGenerator struct {
	profile string
	err     error
	calls   int
}

func (m *mockProfileGenerator) GenerateProfile(ctx context.Context, transcript string) (string, error) {
	m.calls++
	if m.err != nil {
		return "", m.err
	}
	return m.profile, nil
}

func TestProfileGetMissing(t *testing.T) {
	uc := NewProfileUsecase(&mockProfileGenerator{}, newMockProfileRepo(), zap.NewNop())

	if _, err := uc.Get(context.Background(), "c1"); !errors.Is(err, ErrProfileNotFound) {
		t.Errorf("Expected ErrProfileNotFound, got %v", err)
	}
}

func TestProfileGenerateCaches(t *testing.T) {
	repo := newMockProfileRepo()
	gen := &mockProfileGenerator{profile: `{"tone": "casual"}`}
	uc := NewProfileUsecase(gen, repo, zap.NewNop())

	profile, err := uc.Generate(context.Background(), "c1", "alice: hi\nme: yo")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if profile != `{"tone": "casual"}` {
		t.Errorf("Expected generated profile, got %q", profile)
	}
	if repo.profiles["c1"] != profile {
		t.Errorf("Expected profile cached, got %q", repo.profiles["c1"])
	}

	got, err := uc.Get(context.Background(), "c1")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if got != profile {
		t.Errorf("Expected cached profile back, got %q", got)
	}
}

func TestProfileGenerateSurvivesSaveFailure(t *testing.T) {
	repo := newMockProfileRepo()
	repo.saveErr = errors.New("disk full")
	gen := &mockProfileGenerator{profile: `{"tone": "dry"}`}
	uc := NewProfileUsecase(gen, repo, zap.NewNop())

	profile, err := uc.Generate(context.Background(), "c1", "alice: hi")
	if err != nil {
		t.Fatalf("Save failure must not lose the profile: %v", err)
	}
	if profile != `{"tone": "dry"}` {
		t.Errorf("Expected generated profile despite save failure, got %q", profile)
	}
}

func TestProfileUpdateRequiresExisting(t *testing.T) {
	repo := newMockProfileRepo()
	uc := NewProfileUsecase(&mockProfileGenerator{}, repo, zap.NewNop())

	err := uc.Update(context.Background(), "c1", `{"tone": "blunt"}`)
	if !errors.Is(err, ErrProfileNotFound) {
		t.Fatalf("Expected ErrProfileNotFound, got %v", err)
	}

	repo.profiles["c1"] = `{"tone": "casual"}`
	if err := uc.Update(context.Background(), "c1", `{"tone": "blunt"}`); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if repo.profiles["c1"] != `{"tone": "blunt"}` {
		t.Errorf("Expected profile replaced, got %q", repo.profiles["c1"])
	}
}

func TestProfileGenerateForwardsGeneratorError(t *testing.T) {
	uc := NewProfileUsecase(&mockProfileGenerator{err: errors.New("api down")}, newMockProfileRepo(), zap.NewNop())

	if _, err := uc.Generate(context.Background(), "c1", "alice: hi"); err == nil {
		t.Fatal("Expected error from generator")
	}
}
