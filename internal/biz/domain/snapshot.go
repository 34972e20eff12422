package domain

// InboxEntry is one row of a scraped inbox snapshot.
type InboxEntry struct {
	ChatID     string `json:"chat_id"`
	Name       string `json:"name"`
	Preview    string `json:"preview"`
	ProfilePic string `json:"profile_pic,omitempty"`
}

// InboxSnapshot is one full read of the inbox's visible state at an
// instant. Order follows the rendered sidebar. Ephemeral; replaced
// wholesale each cycle.
type InboxSnapshot struct {
	Entries []InboxEntry
}

// NewInboxSnapshot builds a snapshot from extracted entries.
func NewInboxSnapshot(entries []InboxEntry) *InboxSnapshot {
	return &InboxSnapshot{Entries: entries}
}

// Preview returns the preview text for a chat and whether it is present.
func (s *InboxSnapshot) Preview(chatID string) (string, bool) {
	for _, e := range s.Entries {
		if e.ChatID == chatID {
			return e.Preview, true
		}
	}
	return "", false
}

// Equal reports whether both snapshots contain the same chat→preview
// mapping, ignoring order.
func (s *InboxSnapshot) Equal(other *InboxSnapshot) bool {
	if other == nil || len(s.Entries) != len(other.Entries) {
		return false
	}
	previews := make(map[string]string, len(s.Entries))
	for _, e := range s.Entries {
		previews[e.ChatID] = e.Preview
	}
	for _, e := range other.Entries {
		p, ok := previews[e.ChatID]
		if !ok || p != e.Preview {
			return false
		}
	}
	return true
}
