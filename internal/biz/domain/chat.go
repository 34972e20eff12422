package domain

import "time"

// Chat represents a chat observed in the inbox. Created on first
// observation, updated on every snapshot, never deleted automatically.
type Chat struct {
	ID          string
	Username    string
	FullName    string
	ProfilePic  string
	LastPreview string
	LastSeenAt  time.Time
}

// ChatSettings controls AI involvement for a single chat.
// Enabled gates all AI processing; AutoReply additionally sends generated
// replies without confirmation. AutoReply implies Enabled.
type ChatSettings struct {
	ChatID      string    `json:"chat_id"`
	Enabled     bool      `json:"enabled"`
	AutoReply   bool      `json:"auto_reply"`
	CustomRules string    `json:"custom_rules"`
	LastSynced  time.Time `json:"last_synced"`
}

// SettingsUpdate is a partial settings change. Nil fields are left untouched.
type SettingsUpdate struct {
	Enabled     *bool   `json:"enabled,omitempty"`
	AutoReply   *bool   `json:"auto_reply,omitempty"`
	CustomRules *string `json:"custom_rules,omitempty"`
}

// Apply merges the update into the settings, enforcing the dependency
// between the two flags: disabling AI also disables auto-reply, and
// enabling auto-reply enables AI.
func (s *ChatSettings) Apply(u SettingsUpdate) {
	if u.Enabled != nil {
		s.Enabled = *u.Enabled
		if !s.Enabled {
			s.AutoReply = false
		}
	}
	if u.AutoReply != nil {
		s.AutoReply = *u.AutoReply
		if s.AutoReply {
			s.Enabled = true
		}
	}
	if u.CustomRules != nil {
		s.CustomRules = *u.CustomRules
	}
}

// GlobalPolicy governs auto-enrollment of previously untracked chats.
type GlobalPolicy struct {
	AutoReplyAll bool
	GlobalRules  string
}

// SidebarEntry is the external representation of one inbox row, joined
// with persisted settings for live viewers.
type SidebarEntry struct {
	ID          string        `json:"id"`
	Username    string        `json:"username"`
	FullName    string        `json:"full_name"`
	LastMessage string        `json:"last_message"`
	ProfilePic  string        `json:"profile_pic"`
	IsTracked   bool          `json:"is_tracked"`
	Settings    *ChatSettings `json:"settings,omitempty"`
}
