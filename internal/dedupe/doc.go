// Package dedupe remembers recently seen submission keys so a retried
// request is not processed twice.
//
// The browser attaches an Idempotency-Key to every POST /api/messages. If
// the response is lost and the request is retried, the second copy is
// answered as not accepted instead of appending a second user turn.
package dedupe
