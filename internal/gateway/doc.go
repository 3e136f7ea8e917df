// Package gateway assembles and runs the oracle-chat server.
//
// # Overview
//
// The gateway owns every long-lived component of the server and their
// lifecycle:
//
//	config ─▶ agent.Client ─▶ conversation.Controller ◀─ notice.Notice
//	                                   │
//	                                   ▼
//	                            webchat.Server ─▶ chi router ─▶ http.Server
//
// When agent.webhook_url is empty the gateway still starts. Every message
// then fails with ErrNoWebhook, which the user sees as the failure notice,
// and /health/ready answers 503 until the URL is configured.
//
// # Routes
//
// On top of the web chat routes the gateway adds:
//
//	GET /health        liveness, always "OK"
//	GET /health/ready  200 "ready" or 503 "webhook not configured"
//	GET /ping          chi heartbeat for load balancers
//
// Every request passes through chi's RequestID, RealIP and Recoverer
// middleware and a slog request logger.
//
// # Listeners
//
// By default the server listens on server.http_addr. With tailscale.enabled
// it joins the tailnet through tsnet instead and serves on :80, on :443 with
// a tailnet certificate (tailscale.https), or publicly through Funnel
// (tailscale.funnel). The auth key comes from tailscale.auth_key or
// TS_AUTHKEY.
//
// # Shutdown
//
// Run blocks until its context is cancelled, then shuts down within
// ShutdownTimeout: the session is closed first, which waits for an
// in-flight agent call and ends open event streams, then the HTTP server
// and the tsnet node are stopped.
package gateway
