package data

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/raidenlabs/inbox-bridge/internal/biz/domain"
	"github.com/raidenlabs/inbox-bridge/internal/biz/repo"
)

func newTestSettingsRepo(t *testing.T) repo.SettingsRepo {
	t.Helper()
	r, err := NewSettingsRepo(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to create repo: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return r
}

func TestUpsertChatPreservesProfilePic(t *testing.T) {
	r := newTestSettingsRepo(t)
	ctx := context.Background()

	err := r.UpsertChat(ctx, &domain.Chat{
		ID: "c1", Username: "alice", ProfilePic: "http://pic/1", LastPreview: "hi", LastSeenAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	// A later snapshot without a pic must not erase the stored one.
	err = r.UpsertChat(ctx, &domain.Chat{
		ID: "c1", Username: "alice", ProfilePic: "", LastPreview: "new msg", LastSeenAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	chat, err := r.GetChat(ctx, "c1")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if chat.ProfilePic != "http://pic/1" {
		t.Errorf("Expected profile pic preserved, got %q", chat.ProfilePic)
	}
	if chat.LastPreview != "new msg" {
		t.Errorf("Expected preview updated, got %q", chat.LastPreview)
	}
}

func TestGetSettingsUnknownChat(t *testing.T) {
	r := newTestSettingsRepo(t)

	s, err := r.GetSettings(context.Background(), "nope")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if s != nil {
		t.Errorf("Expected nil for unknown chat, got %+v", s)
	}
}

func TestSaveAndListEnabled(t *testing.T) {
	r := newTestSettingsRepo(t)
	ctx := context.Background()

	r.SaveSettings(ctx, &domain.ChatSettings{ChatID: "c1", Enabled: true, AutoReply: true})
	r.SaveSettings(ctx, &domain.ChatSettings{ChatID: "c2", Enabled: false})

	ids, err := r.ListEnabled(ctx)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(ids) != 1 || ids[0] != "c1" {
		t.Errorf("Expected [c1], got %v", ids)
	}
}

func TestEnableAllPreservesCustomRules(t *testing.T) {
	r := newTestSettingsRepo(t)
	ctx := context.Background()

	r.SaveSettings(ctx, &domain.ChatSettings{ChatID: "c1", CustomRules: "my rules"})

	count, err := r.EnableAll(ctx, []string{"c1", "c2"}, "global rules")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if count != 2 {
		t.Errorf("Expected 2 enabled, got %d", count)
	}

	s1, _ := r.GetSettings(ctx, "c1")
	if s1.CustomRules != "my rules" {
		t.Errorf("Expected user rules preserved, got %q", s1.CustomRules)
	}
	if !s1.Enabled || !s1.AutoReply {
		t.Errorf("Expected c1 enabled, got %+v", s1)
	}

	s2, _ := r.GetSettings(ctx, "c2")
	if s2.CustomRules != "global rules" {
		t.Errorf("Expected global rules for fresh chat, got %q", s2.CustomRules)
	}
}

func TestDisableAllClearsOnlyGlobalRules(t *testing.T) {
	r := newTestSettingsRepo(t)
	ctx := context.Background()

	r.EnableAll(ctx, []string{"c1", "c2"}, "global rules")
	r.SaveSettings(ctx, &domain.ChatSettings{ChatID: "c2", Enabled: true, AutoReply: true, CustomRules: "edited rules"})

	if _, err := r.DisableAll(ctx, "global rules"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	s1, _ := r.GetSettings(ctx, "c1")
	if s1.Enabled || s1.AutoReply {
		t.Errorf("Expected c1 disabled, got %+v", s1)
	}
	if s1.CustomRules != "" {
		t.Errorf("Expected global-derived rules cleared, got %q", s1.CustomRules)
	}

	s2, _ := r.GetSettings(ctx, "c2")
	if s2.CustomRules != "edited rules" {
		t.Errorf("Expected user-edited rules preserved, got %q", s2.CustomRules)
	}
}

func TestGlobalPolicyRoundTrip(t *testing.T) {
	r := newTestSettingsRepo(t)
	ctx := context.Background()

	p, err := r.GetGlobalPolicy(ctx)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if p.AutoReplyAll {
		t.Error("Expected auto-reply-all off by default")
	}

	if err := r.SaveGlobalPolicy(ctx, &domain.GlobalPolicy{AutoReplyAll: true, GlobalRules: "be nice"}); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	p, _ = r.GetGlobalPolicy(ctx)
	if !p.AutoReplyAll || p.GlobalRules != "be nice" {
		t.Errorf("Unexpected policy: %+v", p)
	}
}
