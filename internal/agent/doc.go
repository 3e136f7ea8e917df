// Package agent talks to the remote webhook agent.
//
// # Overview
//
// Every user turn becomes exactly one outbound request:
//
//	GET <webhook_url>?message=<url-encoded text>
//	Content-Type: application/json
//
// The webhook answers with a JSON envelope:
//
//	{
//	  "content": { "parts": [ { "text": "..." } ], "role": "model" },
//	  "finishReason": "STOP",
//	  "index": 0
//	}
//
// Only content.parts[0].text is consumed. Everything else is accepted and
// ignored.
//
// # Outcomes
//
// Send has three kinds of outcome:
//
//   - Display text: the first part carried a non-blank text field.
//   - Fallback text: the body was JSON but the text was missing or blank.
//     FallbackText is returned with a nil error so the turn is still
//     committed to the transcript.
//   - *Error: transport failure, non-2xx status, or a body that is not JSON.
//     errors.Is(err, ErrAgent) matches all of them; Kind tells them apart.
//
// The split is made explicit by Decode, which returns one of DecodeOK,
// DecodeMissingText or DecodeInvalid.
//
// # Policy
//
// The client never retries and sets no deadline of its own. A transport
// timeout can be configured through Config.Timeout; cancellation flows from
// the caller's context.
//
// # Usage
//
//	client, err := agent.New(agent.Config{
//	    WebhookURL: "https://n8n.example.com/webhook/oracle",
//	    Logger:     logger,
//	})
//	if err != nil {
//	    return err
//	}
//	text, err := client.Send(ctx, "Where is my purchase order?")
package agent
