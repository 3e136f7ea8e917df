// ABOUTME: Pure projection of session turns into a display list
// ABOUTME: Appends a single typing entry while a request is outstanding

package transcript

import (
	"time"

	"github.com/2389/oracle-chat/internal/conversation"
)

// TypingID is the id of the typing entry.
const TypingID = "typing"

// ClockLayout renders turn timestamps as hours and minutes.
const ClockLayout = "15:04"

// Kind distinguishes real turns from the typing indicator.
type Kind string

const (
	KindTurn   Kind = "turn"
	KindTyping Kind = "typing"
)

// Entry is one row of the rendered transcript.
type Entry struct {
	Kind      Kind
	ID        string
	Role      conversation.Role
	Content   string
	Timestamp time.Time
}

// IsUser reports whether the entry is a user turn.
func (e Entry) IsUser() bool {
	return e.Kind == KindTurn && e.Role == conversation.RoleUser
}

// Clock returns the entry's timestamp formatted for display.
func (e Entry) Clock() string {
	return Clock(e.Timestamp)
}

// Project maps turns to entries in the same order, followed by one typing
// entry when busy is true.
func Project(turns []conversation.Turn, busy bool) []Entry {
	n := len(turns)
	if busy {
		n++
	}
	entries := make([]Entry, 0, n)
	for _, t := range turns {
		entries = append(entries, Entry{
			Kind:      KindTurn,
			ID:        t.ID,
			Role:      t.Role,
			Content:   t.Content,
			Timestamp: t.Timestamp,
		})
	}
	if busy {
		entries = append(entries, Entry{
			Kind: KindTyping,
			ID:   TypingID,
			Role: conversation.RoleAssistant,
		})
	}
	return entries
}

// Clock formats t as local HH:MM. The zero time renders as an empty string.
func Clock(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Local().Format(ClockLayout)
}
