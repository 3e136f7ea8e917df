// Package notice implements the transient error surface shown above the
// chat input.
//
// A Notice shows one message at a time. Show replaces whatever was visible
// and starts a fresh timer; when the timer fires the message clears itself.
// Dismiss clears it at once and cancels the timer.
//
// Each Show or Dismiss bumps a generation counter that the timer callback
// checks before clearing. A timer that could not be stopped in time therefore
// never clears a message shown after it was scheduled.
//
// The notice knows nothing about the session it serves. Owners that need to
// redraw when a message expires register a callback with OnExpire.
package notice
