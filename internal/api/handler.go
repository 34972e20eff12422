// Package api provides the HTTP surface for the management UI: chat list,
// history, settings, manual sends, typing profiles, and the rate-limit
// status.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/raidenlabs/inbox-bridge/internal/biz/domain"
	"github.com/raidenlabs/inbox-bridge/internal/biz/repo"
	"github.com/raidenlabs/inbox-bridge/internal/biz/usecase"
	"github.com/raidenlabs/inbox-bridge/internal/server"
	"github.com/raidenlabs/inbox-bridge/internal/service"
)

// Server serves the management API and the websocket event streams.
type Server struct {
	engine       *service.Engine
	settingsRepo repo.SettingsRepo
	hub          *server.Hub
	tier         string
	logger       *zap.Logger

	httpServer *http.Server
}

// NewServer creates the API server.
func NewServer(engine *service.Engine, settingsRepo repo.SettingsRepo, hub *server.Hub, tier string, logger *zap.Logger) *Server {
	return &Server{
		engine:       engine,
		settingsRepo: settingsRepo,
		hub:          hub,
		tier:         tier,
		logger:       logger,
	}
}

// Start binds and serves. Blocks until the listener closes.
func (s *Server) Start(addr string) error {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/chats", s.handleChats)
	mux.HandleFunc("/api/chats/", s.handleChatItem)
	mux.HandleFunc("/api/global/enable-all", s.handleEnableAll)
	mux.HandleFunc("/api/global/disable-all", s.handleDisableAll)
	mux.HandleFunc("/api/global/rules", s.handleGlobalRules)
	mux.HandleFunc("/api/rate-limit", s.handleRateLimit)

	mux.HandleFunc("/ws/", server.WSHandler(s.hub, s.logger))

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	s.httpServer = &http.Server{Addr: addr, Handler: mux}
	s.logger.Info("api server listening", zap.String("addr", addr))
	return s.httpServer.ListenAndServe()
}

// Stop shuts the listener down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

// ============ Chat Handlers ============

func (s *Server) handleChats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	chats, err := s.engine.Sidebar(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, map[string]interface{}{"chats": chats})
}

func (s *Server) handleChatItem(w http.ResponseWriter, r *http.Request) {
	// Parse path: /api/chats/{chat_id}/{action}
	path := strings.TrimPrefix(r.URL.Path, "/api/chats/")
	parts := strings.Split(path, "/")
	if len(parts) < 2 || parts[0] == "" {
		http.Error(w, "invalid path", http.StatusBadRequest)
		return
	}

	chatID := parts[0]
	action := parts[1]

	switch action {
	case "history":
		s.handleHistory(w, r, chatID)
	case "settings":
		s.handleSettings(w, r, chatID)
	case "send":
		s.handleSend(w, r, chatID)
	case "start":
		s.handleStart(w, r, chatID)
	case "regenerate":
		s.handleRegenerate(w, r, chatID)
	case "profile":
		if len(parts) > 2 && parts[2] == "generate" {
			s.handleProfileGenerate(w, r, chatID)
			return
		}
		s.handleProfile(w, r, chatID)
	default:
		http.Error(w, "unknown action", http.StatusNotFound)
	}
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request, chatID string) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit := 0
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil {
			limit = parsed
		}
	}

	msgs, err := s.engine.LoadHistory(r.Context(), chatID, limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, map[string]interface{}{"messages": msgs})
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request, chatID string) {
	ctx := r.Context()

	switch r.Method {
	case http.MethodGet:
		settings, err := s.settingsRepo.GetSettings(ctx, chatID)
		if err != nil {
			s.writeError(w, err)
			return
		}
		if settings == nil {
			settings = &domain.ChatSettings{ChatID: chatID}
		}
		s.writeJSON(w, settings)

	case http.MethodPatch:
		var update domain.SettingsUpdate
		if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		settings, err := s.settingsRepo.GetSettings(ctx, chatID)
		if err != nil {
			s.writeError(w, err)
			return
		}
		if settings == nil {
			settings = &domain.ChatSettings{ChatID: chatID}
		}
		settings.Apply(update)
		settings.LastSynced = time.Now()

		if err := s.settingsRepo.SaveSettings(ctx, settings); err != nil {
			s.writeError(w, err)
			return
		}
		if err := s.engine.Tracked().Refresh(ctx); err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, settings)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request, chatID string) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		http.Error(w, "text is required", http.StatusBadRequest)
		return
	}

	if err := s.engine.SendMessage(r.Context(), chatID, req.Text); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, map[string]interface{}{"success": true})
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request, chatID string) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := s.engine.StartConversation(r.Context(), chatID); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, map[string]interface{}{"success": true})
}

func (s *Server) handleRegenerate(w http.ResponseWriter, r *http.Request, chatID string) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	text, err := s.engine.RegenerateSuggestion(r.Context(), chatID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, map[string]interface{}{"status": "regenerated", "text": text})
}

// ============ Profile Handlers ============

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request, chatID string) {
	ctx := r.Context()

	switch r.Method {
	case http.MethodGet:
		profile, err := s.engine.Profiles().Get(ctx, chatID)
		if err != nil {
			s.writeError(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(profile))

	case http.MethodPatch:
		var req struct {
			ProfileData json.RawMessage `json:"profile_data"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if len(req.ProfileData) == 0 {
			http.Error(w, "profile_data is required", http.StatusBadRequest)
			return
		}
		if err := s.engine.Profiles().Update(ctx, chatID, string(req.ProfileData)); err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, map[string]interface{}{"status": "updated", "chat_id": chatID})

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleProfileGenerate(w http.ResponseWriter, r *http.Request, chatID string) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	profile, err := s.engine.GenerateProfile(r.Context(), chatID, true)
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(profile))
}

// ============ Global Policy Handlers ============

func (s *Server) handleGlobalRules(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		GlobalRules string `json:"global_rules"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx := r.Context()

	// The rules change alone; the auto-reply-all switch stays as it is.
	policy, err := s.settingsRepo.GetGlobalPolicy(ctx)
	if err != nil {
		s.writeError(w, err)
		return
	}
	autoReplyAll := policy != nil && policy.AutoReplyAll
	if err := s.settingsRepo.SaveGlobalPolicy(ctx, &domain.GlobalPolicy{
		AutoReplyAll: autoReplyAll,
		GlobalRules:  req.GlobalRules,
	}); err != nil {
		s.writeError(w, err)
		return
	}

	s.logger.Info("global rules updated")
	s.writeJSON(w, map[string]interface{}{"status": "updated", "global_rules": req.GlobalRules})
}

func (s *Server) handleEnableAll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		GlobalRules string `json:"global_rules"`
	}
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&req)
	}

	ctx := r.Context()

	chats, err := s.engine.Sidebar(ctx)
	if err != nil {
		s.writeError(w, err)
		return
	}
	chatIDs := make([]string, 0, len(chats))
	for _, c := range chats {
		chatIDs = append(chatIDs, c.ID)
	}

	count, err := s.settingsRepo.EnableAll(ctx, chatIDs, req.GlobalRules)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.settingsRepo.SaveGlobalPolicy(ctx, &domain.GlobalPolicy{
		AutoReplyAll: true,
		GlobalRules:  req.GlobalRules,
	}); err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.engine.Tracked().Refresh(ctx); err != nil {
		s.writeError(w, err)
		return
	}

	s.logger.Info("auto-reply enabled for all chats", zap.Int("count", count))
	s.writeJSON(w, map[string]interface{}{"success": true, "enabled": count})
}

func (s *Server) handleDisableAll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()

	policy, err := s.settingsRepo.GetGlobalPolicy(ctx)
	if err != nil {
		s.writeError(w, err)
		return
	}
	globalRules := ""
	if policy != nil {
		globalRules = policy.GlobalRules
	}

	count, err := s.settingsRepo.DisableAll(ctx, globalRules)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.settingsRepo.SaveGlobalPolicy(ctx, &domain.GlobalPolicy{
		AutoReplyAll: false,
		GlobalRules:  globalRules,
	}); err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.engine.Tracked().Refresh(ctx); err != nil {
		s.writeError(w, err)
		return
	}

	s.logger.Info("auto-reply disabled for all chats", zap.Int("count", count))
	s.writeJSON(w, map[string]interface{}{"success": true, "disabled": count})
}

// ============ Rate Limit Handler ============

func (s *Server) handleRateLimit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, s.engine.RateLimiter().Status(r.Context(), s.tier))
}

// ============ Helpers ============

func (s *Server) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrRateLimited):
		status = http.StatusTooManyRequests
	case errors.Is(err, usecase.ErrProfileNotFound):
		status = http.StatusNotFound
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
