package usecase

import (
	"strings"

	"github.com/raidenlabs/inbox-bridge/internal/biz/domain"
)

// DiffEngine compares successive inbox snapshots and decides which chats
// actually changed. The snapshots come from repeated scrapes of the same
// rendered sidebar, so transient status previews (typing indicators and the
// like) must not count as changes.
type DiffEngine struct {
	ephemeralMarkers []string
}

// DefaultEphemeralMarkers are preview strings that represent transient
// status, not content.
var DefaultEphemeralMarkers = []string{"typing...", "active now"}

// NewDiffEngine creates a diff engine. Empty markers fall back to the
// defaults.
func NewDiffEngine(ephemeralMarkers []string) *DiffEngine {
	if len(ephemeralMarkers) == 0 {
		ephemeralMarkers = DefaultEphemeralMarkers
	}
	markers := make([]string, len(ephemeralMarkers))
	for i, m := range ephemeralMarkers {
		markers[i] = strings.ToLower(strings.TrimSpace(m))
	}
	return &DiffEngine{ephemeralMarkers: markers}
}

// DiffResult is the outcome of comparing two snapshots.
// Changed holds ids present in both snapshots whose preview differs (in new
// snapshot order); FirstSeen holds ids present only in the new snapshot.
// First-seen chats are recorded but not treated as changed: there is no old
// preview to diff against, and the next content change picks them up.
type DiffResult struct {
	Changed   []string
	FirstSeen []string
}

// Diff compares old and new snapshots.
func (d *DiffEngine) Diff(old, new *domain.InboxSnapshot) DiffResult {
	var result DiffResult
	if new == nil {
		return result
	}
	for _, e := range new.Entries {
		if old == nil {
			result.FirstSeen = append(result.FirstSeen, e.ChatID)
			continue
		}
		oldPreview, ok := old.Preview(e.ChatID)
		if !ok {
			result.FirstSeen = append(result.FirstSeen, e.ChatID)
			continue
		}
		if oldPreview == e.Preview {
			continue
		}
		if d.isEphemeral(e.Preview) {
			continue
		}
		result.Changed = append(result.Changed, e.ChatID)
	}
	return result
}

func (d *DiffEngine) isEphemeral(preview string) bool {
	p := strings.ToLower(strings.TrimSpace(preview))
	for _, m := range d.ephemeralMarkers {
		if p == m {
			return true
		}
	}
	return false
}
