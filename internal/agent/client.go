// ABOUTME: HTTP client for the webhook agent, one GET request per user turn
// ABOUTME: Encodes the message query parameter and maps replies to display text or *Error

package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultMaxResponseBytes caps how much of a webhook response is read.
const DefaultMaxResponseBytes int64 = 1 << 20

// Config configures a Client.
type Config struct {
	// WebhookURL is the absolute http(s) endpoint of the agent. Required.
	WebhookURL string

	// Timeout bounds the whole request. Zero leaves the transport default.
	Timeout time.Duration

	// MaxResponseBytes caps the response body. Zero uses DefaultMaxResponseBytes.
	MaxResponseBytes int64

	// HTTPClient overrides the client used for requests.
	HTTPClient *http.Client

	Logger *slog.Logger
}

// Client sends user text to the webhook agent.
type Client struct {
	endpoint   *url.URL
	httpClient *http.Client
	maxBytes   int64
	logger     *slog.Logger
}

// New validates cfg and returns a Client.
func New(cfg Config) (*Client, error) {
	endpoint, err := ParseEndpoint(cfg.WebhookURL)
	if err != nil {
		return nil, err
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	maxBytes := cfg.MaxResponseBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxResponseBytes
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		endpoint:   endpoint,
		httpClient: httpClient,
		maxBytes:   maxBytes,
		logger:     logger.With("component", "agent"),
	}, nil
}

// ParseEndpoint checks that raw is an absolute http or https URL.
func ParseEndpoint(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, errors.New("webhook URL is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parsing webhook URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("webhook URL must use http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("webhook URL %q has no host", raw)
	}
	return u, nil
}

// Endpoint returns the configured webhook URL.
func (c *Client) Endpoint() string {
	return c.endpoint.String()
}

// Send forwards text to the webhook and returns the display text.
// A reply without usable text yields FallbackText and a nil error.
// Hard failures are returned as *Error.
func (c *Client) Send(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyMessage
	}

	reqURL := c.requestURL(text)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return "", &Error{Kind: KindTransport, Err: fmt.Errorf("creating request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	c.logger.Debug("sending message to agent",
		"host", c.endpoint.Host,
		"message_length", len(text),
	)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("agent request failed", "error", err, "duration", time.Since(start))
		return "", &Error{Kind: KindTransport, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, c.maxBytes))
		agentErr := &Error{
			Kind:       KindStatus,
			StatusCode: resp.StatusCode,
			Status:     http.StatusText(resp.StatusCode),
		}
		c.logger.Error("agent returned error status", "status", resp.StatusCode, "duration", time.Since(start))
		return "", agentErr
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBytes+1))
	if err != nil {
		c.logger.Error("reading agent response failed", "error", err)
		return "", &Error{Kind: KindTransport, Err: fmt.Errorf("reading response: %w", err)}
	}
	if int64(len(body)) > c.maxBytes {
		c.logger.Error("agent response too large", "limit_bytes", c.maxBytes)
		return "", &Error{Kind: KindDecode, Err: fmt.Errorf("response exceeds %d bytes", c.maxBytes)}
	}

	c.logger.Debug("agent response received",
		"status", resp.StatusCode,
		"bytes", len(body),
		"duration", time.Since(start),
	)

	switch d := Decode(body).(type) {
	case DecodeOK:
		return d.Text, nil
	case DecodeMissingText:
		c.logger.Warn("unexpected agent response structure", "body", truncate(string(body), 512))
		return FallbackText, nil
	case DecodeInvalid:
		c.logger.Error("decoding agent response failed", "error", d.Err)
		return "", &Error{Kind: KindDecode, Err: d.Err}
	default:
		return "", &Error{Kind: KindDecode, Err: fmt.Errorf("unhandled decode result %T", d)}
	}
}

// requestURL appends message=<text> to the endpoint, keeping any query the
// endpoint already has. Spaces are encoded as %20.
func (c *Client) requestURL(text string) string {
	u := *c.endpoint
	param := "message=" + strings.ReplaceAll(url.QueryEscape(text), "+", "%20")
	if u.RawQuery == "" {
		u.RawQuery = param
	} else {
		u.RawQuery = u.RawQuery + "&" + param
	}
	return u.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
