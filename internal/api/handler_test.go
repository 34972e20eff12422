package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/raidenlabs/inbox-bridge/internal/biz/domain"
	"github.com/raidenlabs/inbox-bridge/internal/biz/repo"
	"github.com/raidenlabs/inbox-bridge/internal/biz/usecase"
	"github.com/raidenlabs/inbox-bridge/internal/server"
	"github.com/raidenlabs/inbox-bridge/internal/service"
)

type stubExtractor struct {
	inbox     []domain.InboxEntry
	histories map[string][]*domain.Message
	sent      []string
	changes   chan struct{}
}

func (m *stubExtractor) ExtractInbox(ctx context.Context) ([]domain.InboxEntry, error) {
	return m.inbox, nil
}

func (m *stubExtractor) ExtractHistory(ctx context.Context, chatID string, limit int) ([]*domain.Message, error) {
	return m.histories[chatID], nil
}

func (m *stubExtractor) Send(ctx context.Context, chatID, text string) error {
	m.sent = append(m.sent, text)
	return nil
}

func (m *stubExtractor) Changes() <-chan struct{} { return m.changes }

func (m *stubExtractor) Close() error { return nil }

type stubSettingsRepo struct {
	settings map[string]*domain.ChatSettings
	policy   *domain.GlobalPolicy
}

func (m *stubSettingsRepo) UpsertChat(ctx context.Context, chat *domain.Chat) error { return nil }

func (m *stubSettingsRepo) GetChat(ctx context.Context, chatID string) (*domain.Chat, error) {
	return nil, nil
}

func (m *stubSettingsRepo) GetSettings(ctx context.Context, chatID string) (*domain.ChatSettings, error) {
	s, ok := m.settings[chatID]
	if !ok {
		return nil, nil
	}
	copy := *s
	return &copy, nil
}

func (m *stubSettingsRepo) SaveSettings(ctx context.Context, settings *domain.ChatSettings) error {
	s := *settings
	m.settings[settings.ChatID] = &s
	return nil
}

func (m *stubSettingsRepo) ListEnabled(ctx context.Context) ([]string, error) {
	var ids []string
	for id, s := range m.settings {
		if s.Enabled {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (m *stubSettingsRepo) EnableAll(ctx context.Context, chatIDs []string, globalRules string) (int, error) {
	for _, id := range chatIDs {
		m.settings[id] = &domain.ChatSettings{ChatID: id, Enabled: true, AutoReply: true, CustomRules: globalRules}
	}
	return len(chatIDs), nil
}

func (m *stubSettingsRepo) DisableAll(ctx context.Context, globalRules string) (int, error) {
	n := 0
	for _, s := range m.settings {
		s.Enabled = false
		s.AutoReply = false
		n++
	}
	return n, nil
}

func (m *stubSettingsRepo) GetGlobalPolicy(ctx context.Context) (*domain.GlobalPolicy, error) {
	p := *m.policy
	return &p, nil
}

func (m *stubSettingsRepo) SaveGlobalPolicy(ctx context.Context, policy *domain.GlobalPolicy) error {
	p := *policy
	m.policy = &p
	return nil
}

func (m *stubSettingsRepo) Close() error { return nil }

type stubMessageRepo struct{}

func (m *stubMessageRepo) Append(ctx context.Context, msgs []*domain.Message) error { return nil }

func (m *stubMessageRepo) RecordSent(ctx context.Context, chatID, text string) error { return nil }

func (m *stubMessageRepo) RecentByChat(ctx context.Context, chatID string, limit int) ([]*repo.StoredMessage, error) {
	return nil, nil
}

func (m *stubMessageRepo) OwnMessages(ctx context.Context, limit int) ([]string, error) {
	return nil, nil
}

func (m *stubMessageRepo) Close() error { return nil }

type stubRateLimitRepo struct {
	state domain.RateLimitState
}

func (m *stubRateLimitRepo) Get(ctx context.Context) (*domain.RateLimitState, error) {
	s := m.state
	return &s, nil
}

func (m *stubRateLimitRepo) Save(ctx context.Context, state *domain.RateLimitState) error {
	m.state = *state
	return nil
}

func (m *stubRateLimitRepo) Close() error { return nil }

type stubGenerator struct{}

func (m *stubGenerator) GenerateReply(ctx context.Context, req *repo.ReplyRequest) (string, error) {
	return "generated reply", nil
}

func (m *stubGenerator) GenerateProfile(ctx context.Context, transcript string) (string, error) {
	return `{"tone": "casual"}`, nil
}

type stubProfileRepo struct {
	profiles map[string]string
}

func (m *stubProfileRepo) Get(ctx context.Context, chatID string) (string, error) {
	return m.profiles[chatID], nil
}

func (m *stubProfileRepo) Save(ctx context.Context, chatID, profileData string) error {
	m.profiles[chatID] = profileData
	return nil
}

func (m *stubProfileRepo) Close() error { return nil }

func newTestServer(t *testing.T) (*Server, *stubExtractor, *stubSettingsRepo, *stubProfileRepo) {
	t.Helper()
	logger := zap.NewNop()

	extractor := &stubExtractor{
		histories: make(map[string][]*domain.Message),
		changes:   make(chan struct{}, 1),
	}
	settingsRepo := &stubSettingsRepo{
		settings: make(map[string]*domain.ChatSettings),
		policy:   &domain.GlobalPolicy{},
	}
	messageRepo := &stubMessageRepo{}
	rateRepo := &stubRateLimitRepo{state: domain.RateLimitState{WindowStart: time.Now()}}
	profileRepo := &stubProfileRepo{profiles: make(map[string]string)}

	hub := server.NewHub(logger)
	tracked := usecase.NewTrackedSet(settingsRepo, logger)
	limiter := usecase.NewRateLimiter(rateRepo, usecase.DefaultTierLimits(), logger)
	gen := &stubGenerator{}
	replyUC := usecase.NewReplyUsecase(gen, settingsRepo, messageRepo, profileRepo, usecase.DefaultReplyConfig(), logger)
	profileUC := usecase.NewProfileUsecase(gen, profileRepo, logger)
	guard := service.NewFetchGuard(extractor, time.Second, logger)

	engine := service.NewEngine(
		extractor, guard, usecase.NewDiffEngine(nil), usecase.NewDedupTracker(logger),
		tracked, limiter, replyUC, profileUC, settingsRepo, messageRepo, hub,
		service.Config{
			Debounce:            time.Millisecond,
			HistoryLimit:        15,
			ProfileHistoryLimit: 200,
			SendPause:           time.Millisecond,
			Tier:                "free",
			StopGrace:           time.Second,
		},
		logger,
	)

	return NewServer(engine, settingsRepo, hub, "free", logger), extractor, settingsRepo, profileRepo
}

func TestHandleChats(t *testing.T) {
	srv, extractor, _, _ := newTestServer(t)
	extractor.inbox = []domain.InboxEntry{
		{ChatID: "c1", Name: "alice", Preview: "hi"},
	}

	req := httptest.NewRequest(http.MethodGet, "/api/chats", nil)
	w := httptest.NewRecorder()
	srv.handleChats(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	var resp struct {
		Chats []domain.SidebarEntry `json:"chats"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Bad response: %v", err)
	}
	if len(resp.Chats) != 1 || resp.Chats[0].ID != "c1" {
		t.Errorf("Unexpected chats: %+v", resp.Chats)
	}
}

func TestHandleSettingsPatch(t *testing.T) {
	srv, _, settingsRepo, _ := newTestServer(t)

	body := strings.NewReader(`{"auto_reply": true}`)
	req := httptest.NewRequest(http.MethodPatch, "/api/chats/c1/settings", body)
	w := httptest.NewRecorder()
	srv.handleChatItem(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	s := settingsRepo.settings["c1"]
	if s == nil {
		t.Fatal("Expected settings persisted")
	}
	// Enabling auto-reply implies enabling AI.
	if !s.Enabled || !s.AutoReply {
		t.Errorf("Expected both flags set, got %+v", s)
	}
}

func TestHandleSettingsGetUnknownChat(t *testing.T) {
	srv, _, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/chats/c9/settings", nil)
	w := httptest.NewRecorder()
	srv.handleChatItem(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	var s domain.ChatSettings
	if err := json.Unmarshal(w.Body.Bytes(), &s); err != nil {
		t.Fatalf("Bad response: %v", err)
	}
	if s.ChatID != "c9" || s.Enabled {
		t.Errorf("Expected default settings, got %+v", s)
	}
}

func TestHandleSendValidation(t *testing.T) {
	srv, extractor, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/chats/c1/send", strings.NewReader(`{"text": "  "}`))
	w := httptest.NewRecorder()
	srv.handleChatItem(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for blank text, got %d", w.Code)
	}
	if len(extractor.sent) != 0 {
		t.Errorf("Expected nothing sent, got %v", extractor.sent)
	}
}

func TestHandleSend(t *testing.T) {
	srv, extractor, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/chats/c1/send", strings.NewReader(`{"text": "hi\nthere"}`))
	w := httptest.NewRecorder()
	srv.handleChatItem(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if len(extractor.sent) != 2 {
		t.Errorf("Expected newline-split send, got %v", extractor.sent)
	}
}

func TestHandleEnableAll(t *testing.T) {
	srv, extractor, settingsRepo, _ := newTestServer(t)
	extractor.inbox = []domain.InboxEntry{
		{ChatID: "c1", Name: "alice", Preview: "hi"},
		{ChatID: "c2", Name: "bob", Preview: "yo"},
	}

	body := strings.NewReader(`{"global_rules": "be nice"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/global/enable-all", body)
	w := httptest.NewRecorder()
	srv.handleEnableAll(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if !settingsRepo.policy.AutoReplyAll {
		t.Error("Expected global policy enabled")
	}
	if len(settingsRepo.settings) != 2 {
		t.Errorf("Expected 2 chats enabled, got %d", len(settingsRepo.settings))
	}
	if !srv.engine.Tracked().Contains("c1") {
		t.Error("Expected tracked cache refreshed")
	}
}

func TestHandleGlobalRulesPreservesSwitch(t *testing.T) {
	srv, _, settingsRepo, _ := newTestServer(t)
	settingsRepo.policy = &domain.GlobalPolicy{AutoReplyAll: true, GlobalRules: "old rules"}

	body := strings.NewReader(`{"global_rules": "be nice"}`)
	req := httptest.NewRequest(http.MethodPut, "/api/global/rules", body)
	w := httptest.NewRecorder()
	srv.handleGlobalRules(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if settingsRepo.policy.GlobalRules != "be nice" {
		t.Errorf("Expected rules updated, got %q", settingsRepo.policy.GlobalRules)
	}
	if !settingsRepo.policy.AutoReplyAll {
		t.Error("Updating rules must not flip the auto-reply-all switch")
	}
}

func TestHandleRegenerate(t *testing.T) {
	srv, extractor, _, _ := newTestServer(t)
	extractor.histories["c1"] = []*domain.Message{
		{ID: "m1", ChatID: "c1", Sender: "alice", Text: "hi"},
	}

	req := httptest.NewRequest(http.MethodPost, "/api/chats/c1/regenerate", nil)
	w := httptest.NewRecorder()
	srv.handleChatItem(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Status string `json:"status"`
		Text   string `json:"text"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Bad response: %v", err)
	}
	if resp.Status != "regenerated" || resp.Text != "generated reply" {
		t.Errorf("Unexpected response: %+v", resp)
	}
	if len(extractor.sent) != 0 {
		t.Errorf("Regenerate must not send, got %v", extractor.sent)
	}
}

func TestHandleProfileGetMissing(t *testing.T) {
	srv, _, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/chats/c1/profile", nil)
	w := httptest.NewRecorder()
	srv.handleChatItem(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for missing profile, got %d", w.Code)
	}
}

func TestHandleProfileGet(t *testing.T) {
	srv, _, _, profileRepo := newTestServer(t)
	profileRepo.profiles["c1"] = `{"tone": "dry"}`

	req := httptest.NewRequest(http.MethodGet, "/api/chats/c1/profile", nil)
	w := httptest.NewRecorder()
	srv.handleChatItem(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if w.Body.String() != `{"tone": "dry"}` {
		t.Errorf("Expected stored profile, got %s", w.Body.String())
	}
}

func TestHandleProfilePatch(t *testing.T) {
	srv, _, _, profileRepo := newTestServer(t)
	profileRepo.profiles["c1"] = `{"tone": "dry"}`

	body := strings.NewReader(`{"profile_data": {"tone": "warm"}}`)
	req := httptest.NewRequest(http.MethodPatch, "/api/chats/c1/profile", body)
	w := httptest.NewRecorder()
	srv.handleChatItem(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if profileRepo.profiles["c1"] != `{"tone": "warm"}` {
		t.Errorf("Expected profile replaced, got %q", profileRepo.profiles["c1"])
	}
}

func TestHandleProfilePatchMissing(t *testing.T) {
	srv, _, _, _ := newTestServer(t)

	body := strings.NewReader(`{"profile_data": {"tone": "warm"}}`)
	req := httptest.NewRequest(http.MethodPatch, "/api/chats/c1/profile", body)
	w := httptest.NewRecorder()
	srv.handleChatItem(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 patching a never-generated profile, got %d", w.Code)
	}
}

func TestHandleProfileGenerate(t *testing.T) {
	srv, extractor, _, profileRepo := newTestServer(t)
	extractor.histories["c1"] = []*domain.Message{
		{ID: "m1", ChatID: "c1", Sender: "alice", Text: "hi"},
		{ID: "m2", ChatID: "c1", Sender: "me", Text: "yo", IsSelf: true},
	}

	req := httptest.NewRequest(http.MethodPost, "/api/chats/c1/profile/generate", nil)
	w := httptest.NewRecorder()
	srv.handleChatItem(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if w.Body.String() != `{"tone": "casual"}` {
		t.Errorf("Expected generated profile, got %s", w.Body.String())
	}
	if profileRepo.profiles["c1"] != `{"tone": "casual"}` {
		t.Errorf("Expected profile cached, got %q", profileRepo.profiles["c1"])
	}
}

func TestHandleRateLimit(t *testing.T) {
	srv, _, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/rate-limit", nil)
	w := httptest.NewRecorder()
	srv.handleRateLimit(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	var status domain.RateLimitStatus
	if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
		t.Fatalf("Bad response: %v", err)
	}
	if status.Tier != "free" {
		t.Errorf("Expected free tier, got %s", status.Tier)
	}
}
