// ABOUTME: View models shared by the page template, the transcript partial and JSON
// ABOUTME: Converts a session snapshot into rendered transcript entries

package webchat

import (
	"html/template"
	"time"

	"github.com/2389/oracle-chat/internal/conversation"
	"github.com/2389/oracle-chat/internal/transcript"
)

// entryView is one rendered transcript row.
type entryView struct {
	ID        string            `json:"id"`
	Kind      transcript.Kind   `json:"kind"`
	Role      conversation.Role `json:"role"`
	Content   string            `json:"content,omitempty"`
	HTML      template.HTML     `json:"html,omitempty"`
	Time      string            `json:"time,omitempty"`
	Timestamp *time.Time        `json:"timestamp,omitempty"`
	IsUser    bool              `json:"-"`
	IsTyping  bool              `json:"-"`
}

// sessionView is the JSON body of GET /api/session and of SSE state events.
type sessionView struct {
	Entries []entryView `json:"entries"`
	Busy    bool        `json:"busy"`
	Notice  string      `json:"notice,omitempty"`
	Version uint64      `json:"version"`
}

type pageData struct {
	Title    string
	Subtitle string
	Session  sessionView
}

func (s *Server) buildView(state conversation.State) sessionView {
	entries := transcript.Project(state.Turns, state.Busy)
	views := make([]entryView, 0, len(entries))
	for _, e := range entries {
		v := entryView{
			ID:       e.ID,
			Kind:     e.Kind,
			Role:     e.Role,
			IsUser:   e.IsUser(),
			IsTyping: e.Kind == transcript.KindTyping,
		}
		if e.Kind == transcript.KindTurn {
			ts := e.Timestamp
			v.Content = e.Content
			v.HTML = s.html.Format(e)
			v.Time = e.Clock()
			v.Timestamp = &ts
		}
		views = append(views, v)
	}
	return sessionView{
		Entries: views,
		Busy:    state.Busy,
		Notice:  state.Notice,
		Version: state.Version,
	}
}
