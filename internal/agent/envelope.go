// ABOUTME: Webhook response envelope and the explicit decode step
// ABOUTME: Separates display text, missing text (soft) and invalid JSON (hard)

package agent

import (
	"encoding/json"
	"errors"
	"strings"
)

// FallbackText is shown as the assistant turn when the webhook answered with
// JSON that carries no usable text.
const FallbackText = "I received a response, but couldn't process the text content. Please try again."

// Envelope is the JSON document returned by the webhook.
type Envelope struct {
	Content      *Content `json:"content"`
	FinishReason string   `json:"finishReason,omitempty"`
	Index        *float64 `json:"index,omitempty"`
}

// Content holds the reply parts.
type Content struct {
	Parts []Part `json:"parts"`
	Role  string `json:"role,omitempty"`
}

// Part is one reply fragment. Text is a pointer so an absent field can be
// told apart from an empty one in logs.
type Part struct {
	Text *string `json:"text"`
}

// Decoded is the result of Decode: one of DecodeOK, DecodeMissingText or
// DecodeInvalid.
type Decoded interface {
	decoded()
}

// DecodeOK carries the display text from content.parts[0].text.
type DecodeOK struct {
	Text string
}

// DecodeMissingText means the body was JSON but content.parts[0].text was
// absent or blank.
type DecodeMissingText struct {
	Envelope Envelope
}

// DecodeInvalid means the body could not be parsed as JSON.
type DecodeInvalid struct {
	Err error
}

func (DecodeOK) decoded()          {}
func (DecodeMissingText) decoded() {}
func (DecodeInvalid) decoded()     {}

// Decode parses a webhook response body.
//
// Syntactically invalid JSON is a hard failure. JSON whose shape does not
// match the envelope (an array, a string where an object was expected, a
// mistyped ignored field) is treated like a missing field: whatever could be
// decoded is inspected and the text is used when present.
func Decode(body []byte) Decoded {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		var typeErr *json.UnmarshalTypeError
		if !errors.As(err, &typeErr) {
			return DecodeInvalid{Err: err}
		}
	}

	text, ok := env.firstText()
	if !ok {
		return DecodeMissingText{Envelope: env}
	}
	return DecodeOK{Text: text}
}

func (e Envelope) firstText() (string, bool) {
	if e.Content == nil || len(e.Content.Parts) == 0 {
		return "", false
	}
	text := e.Content.Parts[0].Text
	if text == nil || strings.TrimSpace(*text) == "" {
		return "", false
	}
	return *text, true
}
