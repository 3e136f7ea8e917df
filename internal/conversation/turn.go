// ABOUTME: Turn type and the append-only log that holds a session's history
// ABOUTME: Turns get time-ordered UUIDv7 ids and are immutable once appended

package conversation

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// GreetingID is the fixed id of the seeded assistant greeting.
const GreetingID = "greeting"

var (
	// ErrEmptyContent is returned when appending a turn with blank content.
	ErrEmptyContent = errors.New("turn content is empty")

	// ErrInvalidRole is returned for a role other than user or assistant.
	ErrInvalidRole = errors.New("invalid turn role")
)

// Role identifies who authored a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Turn is one message in the transcript.
type Turn struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Log is an ordered, append-only list of turns. It is not safe for
// concurrent use; the Controller serialises access.
type Log struct {
	turns []Turn
	newID func() string
}

// NewLog returns an empty log.
func NewLog() *Log {
	return &Log{newID: newTurnID}
}

// Append validates and appends a turn with a generated id.
func (l *Log) Append(role Role, content string, at time.Time) (Turn, error) {
	return l.appendTurn(Turn{
		ID:        l.newID(),
		Role:      role,
		Content:   content,
		Timestamp: at,
	})
}

func (l *Log) appendTurn(t Turn) (Turn, error) {
	if !t.Role.Valid() {
		return Turn{}, fmt.Errorf("%w: %q", ErrInvalidRole, t.Role)
	}
	if strings.TrimSpace(t.Content) == "" {
		return Turn{}, ErrEmptyContent
	}
	l.turns = append(l.turns, t)
	return t, nil
}

// Turns returns a copy of the log in insertion order.
func (l *Log) Turns() []Turn {
	out := make([]Turn, len(l.turns))
	copy(out, l.turns)
	return out
}

// Len returns the number of turns.
func (l *Log) Len() int {
	return len(l.turns)
}

// newTurnID returns a UUIDv7, falling back to a random v4 if the clock
// source fails.
func newTurnID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
