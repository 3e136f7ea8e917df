// ABOUTME: Error taxonomy for webhook agent requests
// ABOUTME: Classifies hard failures into transport, status and decode kinds

package agent

import (
	"errors"
	"fmt"
)

var (
	// ErrAgent matches every *Error via errors.Is.
	ErrAgent = errors.New("agent request failed")

	// ErrEmptyMessage is returned when Send is called with blank text.
	ErrEmptyMessage = errors.New("message is empty")
)

// Kind classifies a hard failure.
type Kind int

const (
	// KindTransport covers network failures, DNS errors and cancelled contexts.
	KindTransport Kind = iota + 1
	// KindStatus means the webhook answered with a non-2xx status.
	KindStatus
	// KindDecode means the response body was not a JSON document.
	KindDecode
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindStatus:
		return "status"
	case KindDecode:
		return "decode"
	default:
		return "unknown"
	}
}

// Error is a hard failure of a webhook request. No turn should be committed
// for it.
type Error struct {
	Kind Kind

	// StatusCode and Status are set for KindStatus.
	StatusCode int
	Status     string

	Err error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindStatus:
		return fmt.Sprintf("agent error: status %d %s", e.StatusCode, e.Status)
	default:
		if e.Err == nil {
			return fmt.Sprintf("agent error: %s failure", e.Kind)
		}
		return fmt.Sprintf("agent error: %s: %v", e.Kind, e.Err)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrAgent.
func (e *Error) Is(target error) bool {
	return target == ErrAgent
}
