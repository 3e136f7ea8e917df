// ABOUTME: Gateway wires config, agent client, notice, controller and web chat together
// ABOUTME: Owns the HTTP server lifecycle, health endpoints and graceful shutdown

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"tailscale.com/tsnet"

	"github.com/2389/oracle-chat/internal/agent"
	"github.com/2389/oracle-chat/internal/config"
	"github.com/2389/oracle-chat/internal/conversation"
	"github.com/2389/oracle-chat/internal/notice"
	"github.com/2389/oracle-chat/internal/webchat"
)

// ShutdownTimeout bounds graceful shutdown after Run's context is cancelled.
const ShutdownTimeout = 5 * time.Second

// ErrNoWebhook is returned for every message when no webhook URL is configured.
var ErrNoWebhook = errors.New("agent webhook URL is not configured")

// Gateway is the oracle-chat server.
type Gateway struct {
	config      *config.Config
	agent       *agent.Client // nil when no webhook is configured
	controller  *conversation.Controller
	chat        *webchat.Server
	router      chi.Router
	httpServer  *http.Server
	tsnetServer *tsnet.Server
	logger      *slog.Logger
}

// Option customises a Gateway.
type Option func(*options)

type options struct {
	sender conversation.Sender
}

// WithSender replaces the webhook client with s. Readiness then reports
// ready regardless of the configured webhook URL.
func WithSender(s conversation.Sender) Option {
	return func(o *options) { o.sender = s }
}

// unconfiguredSender fails every call so the UI shows the failure notice
// until a webhook URL is provided.
type unconfiguredSender struct{}

func (unconfiguredSender) Send(context.Context, string) (string, error) {
	return "", ErrNoWebhook
}

// New creates a new Gateway instance with the given configuration.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	gw := &Gateway{
		config: cfg,
		logger: logger.With("component", "gateway"),
	}

	sender := o.sender
	if sender == nil {
		client, err := newAgentClient(cfg, logger)
		if err != nil {
			return nil, err
		}
		gw.agent = client
		if client != nil {
			sender = client
		} else {
			gw.logger.Warn("agent.webhook_url is not set; messages will fail until it is configured",
				"env", config.WebhookEnvVar)
			sender = unconfiguredSender{}
		}
	}

	gw.controller = conversation.New(sender,
		conversation.WithGreeting(cfg.Session.Greeting),
		conversation.WithNotifier(notice.New(cfg.Notice.Timeout)),
		conversation.WithLogger(logger),
	)
	ready := o.sender != nil || gw.agent != nil

	chat, err := webchat.New(gw.controller, webchat.Config{
		Title:    cfg.Session.Title,
		Subtitle: cfg.Session.Subtitle,
	}, logger)
	if err != nil {
		gw.controller.Close()
		return nil, fmt.Errorf("creating web chat: %w", err)
	}
	gw.chat = chat

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger.With("component", "http")))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))

	// Health endpoints
	r.Get("/health", gw.handleHealth)
	r.Get("/health/ready", gw.readyHandler(ready))

	gw.chat.RegisterRoutes(r)
	gw.router = r

	// No WriteTimeout: /api/events holds its response open.
	gw.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	return gw, nil
}

// newAgentClient returns nil without error when no webhook is configured.
func newAgentClient(cfg *config.Config, logger *slog.Logger) (*agent.Client, error) {
	if !cfg.HasWebhook() {
		return nil, nil
	}
	client, err := agent.New(agent.Config{
		WebhookURL:       cfg.Agent.WebhookURL,
		Timeout:          cfg.Agent.Timeout,
		MaxResponseBytes: cfg.Agent.MaxResponseBytes,
		Logger:           logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating agent client: %w", err)
	}
	return client, nil
}

// Handler returns the root HTTP handler.
func (g *Gateway) Handler() http.Handler {
	return g.router
}

// Controller returns the session controller.
func (g *Gateway) Controller() *conversation.Controller {
	return g.controller
}

// setupTCPListener creates a standard TCP listener for HTTP.
func (g *Gateway) setupTCPListener() (net.Listener, error) {
	g.logger.Info("starting gateway", "http_addr", g.config.Server.HTTPAddr)

	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return nil, fmt.Errorf("listening on HTTP address: %w", err)
	}
	return ln, nil
}

// setupListener creates the listener based on configuration (Tailscale or TCP).
func (g *Gateway) setupListener(ctx context.Context) (net.Listener, error) {
	if g.config.Tailscale.Enabled {
		if g.config.Server.HTTPAddr != "" && g.config.Server.HTTPAddr != config.DefaultHTTPAddr {
			g.logger.Warn("server.http_addr is ignored when tailscale is enabled",
				"http_addr", g.config.Server.HTTPAddr)
		}
		return g.setupTailscaleListener(ctx)
	}
	return g.setupTCPListener()
}

// startServer serves HTTP in a goroutine, returning its error channel.
func (g *Gateway) startServer(ln net.Listener) chan error {
	errCh := make(chan error, 1)

	go func() {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := g.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	return errCh
}

// waitForShutdownSignal waits for context cancellation or server error.
func (g *Gateway) waitForShutdownSignal(ctx context.Context, errCh chan error) error {
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
		return nil
	case err := <-errCh:
		g.logger.Error("server error", "error", err)
		return err
	}
}

// Run starts the HTTP server and blocks until the context is canceled.
// Returns nil on graceful shutdown, or an error if the server fails.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := g.setupListener(ctx)
	if err != nil {
		g.controller.Close()
		return err
	}

	errCh := g.startServer(ln)
	serverErr := g.waitForShutdownSignal(ctx, errCh)

	shutdownErr := g.gracefulShutdown()

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown uses a fresh context since Run's context is already canceled.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	return g.Shutdown(ctx)
}

// closeController closes the session, giving up when ctx ends. Closing the
// session ends every open event stream, which lets the HTTP server go idle.
func (g *Gateway) closeController(ctx context.Context) error {
	closed := make(chan struct{})
	go func() {
		g.controller.Close()
		close(closed)
	}()

	select {
	case <-closed:
		return nil
	case <-ctx.Done():
		g.logger.Warn("agent call still in flight at shutdown")
		return ctx.Err()
	}
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// Shutdown stops the session and the HTTP server and releases resources.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")

	var errs []error
	errs = appendCloseError(errs, "session close", g.closeController(ctx))
	errs = appendCloseError(errs, "HTTP shutdown", g.httpServer.Shutdown(ctx))

	if g.tsnetServer != nil {
		errs = appendCloseError(errs, "tailscale shutdown", g.tsnetServer.Close())
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}
	return nil
}

// handleHealth returns 200 OK if the server is alive.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// readyHandler returns 200 once a webhook is configured.
func (g *Gateway) readyHandler(ready bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !ready {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("webhook not configured"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	}
}
