package domain

import (
	"fmt"
	"strings"
)

// MediaKind classifies media attachments extracted from the chat surface.
type MediaKind string

const (
	MediaPhoto MediaKind = "photo"
	MediaVideo MediaKind = "video"
	MediaReel  MediaKind = "reel"
	MediaPost  MediaKind = "post"
)

// Media represents a media attachment on a message
type Media struct {
	Kind MediaKind `json:"type"`
	URL  string    `json:"url"`
	Alt  string    `json:"alt,omitempty"`
}

// Message represents one extracted chat message.
// ID is assigned by the source and unique within a chat; Position is a
// within-fetch ordering hint, not a clock.
type Message struct {
	ID       string `json:"message_id"`
	ChatID   string `json:"chat_id"`
	Sender   string `json:"sender"`
	Text     string `json:"text"`
	Media    *Media `json:"media,omitempty"`
	IsSelf   bool   `json:"is_me"`
	Position int    `json:"position"`
}

// HasID reports whether the message carries a trackable identifier.
// Messages without one cannot be deduplicated and are never delivered.
func (m *Message) HasID() bool {
	return m.ID != ""
}

// IsTextOnly reports whether the message is plain text without media.
func (m *Message) IsTextOnly() bool {
	return m.Text != "" && m.Media == nil
}

// TranscriptLine formats the message for an AI transcript.
func (m *Message) TranscriptLine() string {
	sender := m.Sender
	if sender == "" {
		sender = "Unknown"
	}
	switch {
	case m.Media != nil && m.Text == "":
		return fmt.Sprintf("%s: [Shared %s]", sender, m.Media.Kind)
	case m.Media != nil:
		return fmt.Sprintf("%s: %s [Shared %s]", sender, m.Text, m.Media.Kind)
	default:
		return fmt.Sprintf("%s: %s", sender, m.Text)
	}
}

// FormatTranscript joins messages into the transcript passed to generation.
func FormatTranscript(msgs []*Message) string {
	if len(msgs) == 0 {
		return "(No recent history)"
	}
	lines := make([]string, 0, len(msgs))
	for _, m := range msgs {
		lines = append(lines, m.TranscriptLine())
	}
	return strings.Join(lines, "\n")
}

// SplitReply splits generated text on line boundaries into candidate
// messages. Blank lines are dropped.
func SplitReply(text string) []string {
	var parts []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			parts = append(parts, line)
		}
	}
	return parts
}

// SendError reports a partial multi-message send failure. Index is the
// zero-based position of the first candidate that failed; candidates before
// it were already sent and are not rolled back.
type SendError struct {
	Index int
	Err   error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("failed to send message %d: %v", e.Index, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }
