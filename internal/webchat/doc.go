// Package webchat provides the browser chat interface.
//
// # Overview
//
// The page is server-rendered from a session snapshot and kept live with a
// small embedded script. The script never holds session state of its own:
// it posts user text, then re-renders whenever the event stream reports a
// newer version.
//
// # Routes
//
//	GET    /                chat page with the current transcript
//	GET    /static/*        embedded script and stylesheet
//	GET    /api/session     JSON snapshot (entries with rendered HTML, busy, notice, version)
//	GET    /api/transcript  HTML partial of the transcript, X-Session-Version header
//	POST   /api/messages    {"message": "..."} or form field message
//	DELETE /api/notice      dismiss the notice
//	GET    /api/events      Server-Sent Events stream
//
// POST /api/messages answers 202 {"accepted":true} when a turn was started
// and 200 {"accepted":false} when the text was blank or a request was
// already in flight. Malformed bodies get 400 with {"error": "..."}.
// A request carrying an Idempotency-Key seen in the last few minutes is
// answered 200 {"accepted":false,"duplicate":true} without touching the
// session, so the script can retry a send whose response was lost.
//
// # Event Stream
//
// Each connection receives one "state" event immediately and another after
// every change:
//
//	id: 4
//	event: state
//	data: {"entries":[...],"busy":false,"version":4}
//
// A comment line is written every 30 seconds to keep proxies from closing
// idle connections. Events carry the version as their id; a state older than
// what was already sent is skipped.
//
// # Rendering
//
// Message markdown goes through transcript.HTMLFormatter, which sanitises the
// output before it reaches a template. Everything else in the templates is
// escaped by html/template.
//
// # Usage
//
//	chat, err := webchat.New(controller, webchat.Config{
//	    Title:    cfg.Session.Title,
//	    Subtitle: cfg.Session.Subtitle,
//	}, logger)
//	if err != nil {
//	    return err
//	}
//	chat.RegisterRoutes(router)
package webchat
