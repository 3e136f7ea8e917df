// ABOUTME: Entry point for the oracle-chat server and its helper commands
// ABOUTME: Subcommands: serve, init, health, ask, version

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/2389/oracle-chat/internal/agent"
	"github.com/2389/oracle-chat/internal/config"
	"github.com/2389/oracle-chat/internal/gateway"
	"github.com/2389/oracle-chat/internal/transcript"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
                       _                  _           _
  ___  _ __ __ _  ___| | ___        ___| |__   __ _| |_
 / _ \| '__/ _' |/ __| |/ _ \_____ / __| '_ \ / _' | __|
| (_) | | | (_| | (__| |  __/_____| (__| | | | (_| | |_
 \___/|_|  \__,_|\___|_|\___|      \___|_| |_|\__,_|\__|
`

func usage(w io.Writer) {
	fmt.Fprintln(w, "Usage: oracle-chat <command> [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve         Start the chat server")
	fmt.Fprintln(w, "  init          Write a starter config file")
	fmt.Fprintln(w, "  health        Check a running server")
	fmt.Fprintln(w, "  ask <text>    Send one message to the agent and print the reply")
	fmt.Fprintln(w, "  version       Print the version")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Every command accepts -config <path>.")
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var errUsage = errors.New("missing command")

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		usage(stderr)
		return errUsage
	}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "serve":
		return runServe(ctx, rest, stdout)
	case "init":
		return runInit(rest, stdout)
	case "health":
		return runHealth(ctx, rest, stdout)
	case "ask":
		return runAsk(ctx, rest, stdout)
	case "version", "--version", "-v":
		fmt.Fprintf(stdout, "oracle-chat %s\n", version)
		return nil
	case "help", "--help", "-h":
		usage(stdout)
		return nil
	default:
		usage(stderr)
		return fmt.Errorf("unknown command: %s", cmd)
	}
}

// loadConfig loads .env, resolves the config path and loads it.
func loadConfig(flagPath string) (*config.Config, string, error) {
	if err := config.LoadDotEnv(); err != nil {
		return nil, "", err
	}
	path := config.ResolvePath(flagPath)
	cfg, err := config.Load(path)
	if err != nil {
		return nil, path, fmt.Errorf("loading config: %w", err)
	}
	return cfg, path, nil
}

func newFlagSet(name string) (*flag.FlagSet, *string) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to config file (YAML or TOML)")
	return fs, configPath
}

func runServe(ctx context.Context, args []string, out io.Writer) error {
	fs, configPath := newFlagSet("serve")
	fs.SetOutput(out)
	if err := fs.Parse(args); err != nil {
		return err
	}

	cyan := color.New(color.FgCyan)
	gray := color.New(color.FgHiBlack)
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	cyan.Fprint(out, banner)
	gray.Fprintf(out, "    version: %s\n\n", version)

	cfg, path, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	logger := setupLogger(cfg.Logging, out)

	if path == "" {
		path = "(none, using defaults and environment)"
	}
	green.Fprint(out, "    ▶ ")
	fmt.Fprintf(out, "Config:    %s\n", path)
	green.Fprint(out, "    ▶ ")
	if cfg.HasWebhook() {
		fmt.Fprintf(out, "Webhook:   %s\n", cfg.Agent.WebhookURL)
	} else {
		fmt.Fprint(out, "Webhook:   ")
		yellow.Fprintf(out, "not configured (set %s)\n", config.WebhookEnvVar)
	}

	if cfg.Tailscale.Enabled {
		green.Fprint(out, "    ▶ ")
		fmt.Fprint(out, "Tailscale: ")
		cyan.Fprint(out, cfg.Tailscale.Hostname)
		if cfg.Tailscale.Funnel {
			yellow.Fprint(out, " [funnel]")
		}
		if cfg.Tailscale.Ephemeral {
			gray.Fprint(out, " (ephemeral)")
		}
		fmt.Fprintln(out)
	} else {
		green.Fprint(out, "    ▶ ")
		fmt.Fprintf(out, "HTTP:      http://%s\n", cfg.Server.HTTPAddr)
	}
	fmt.Fprintln(out)

	logger.Info("starting oracle-chat",
		"config", path,
		"http_addr", cfg.Server.HTTPAddr,
		"tailscale", cfg.Tailscale.Enabled,
	)

	gw, err := gateway.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}

	return gw.Run(ctx)
}

func runInit(args []string, out io.Writer) error {
	fs, configPath := newFlagSet("init")
	fs.SetOutput(out)
	if err := fs.Parse(args); err != nil {
		return err
	}

	path := *configPath
	if path == "" {
		path = config.DefaultPath()
	}
	if err := config.WriteExample(path); err != nil {
		return err
	}

	green := color.New(color.FgGreen)
	green.Fprintf(out, "  ✓ Created config: %s\n", path)
	fmt.Fprintf(out, "    Set agent.webhook_url there or export %s, then run: oracle-chat serve\n", config.WebhookEnvVar)
	return nil
}

func runHealth(ctx context.Context, args []string, out io.Writer) error {
	fs, configPath := newFlagSet("health")
	fs.SetOutput(out)
	baseURL := fs.String("url", "", "Server base URL (defaults to http://<server.http_addr>)")
	ready := fs.Bool("ready", false, "Check readiness (webhook configured) instead of liveness")
	if err := fs.Parse(args); err != nil {
		return err
	}

	base := strings.TrimSuffix(*baseURL, "/")
	if base == "" {
		cfg, _, err := loadConfig(*configPath)
		if err != nil {
			return err
		}
		base = "http://" + cfg.Server.HTTPAddr
	}

	endpoint := base + "/health"
	if *ready {
		endpoint += "/ready"
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if *ready {
		fmt.Fprintln(out, "ready")
	} else {
		fmt.Fprintln(out, "healthy")
	}
	return nil
}

func runAsk(ctx context.Context, args []string, out io.Writer) error {
	fs, configPath := newFlagSet("ask")
	fs.SetOutput(out)
	raw := fs.Bool("raw", false, "Print the reply without markdown rendering")
	width := fs.Int("width", 80, "Wrap width for rendered markdown")
	if err := fs.Parse(args); err != nil {
		return err
	}

	text := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if text == "" {
		return errors.New("usage: oracle-chat ask [flags] <text>")
	}

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if !cfg.HasWebhook() {
		return fmt.Errorf("agent.webhook_url is not configured (set it in the config file or %s)", config.WebhookEnvVar)
	}

	client, err := agent.New(agent.Config{
		WebhookURL:       cfg.Agent.WebhookURL,
		Timeout:          cfg.Agent.Timeout,
		MaxResponseBytes: cfg.Agent.MaxResponseBytes,
		Logger:           setupLogger(cfg.Logging, io.Discard),
	})
	if err != nil {
		return fmt.Errorf("creating agent client: %w", err)
	}

	reply, err := client.Send(ctx, text)
	if err != nil {
		return err
	}

	if *raw {
		fmt.Fprintln(out, reply)
		return nil
	}

	formatter, err := transcript.NewTerminalFormatter(*width, "")
	if err != nil {
		return fmt.Errorf("creating markdown renderer: %w", err)
	}
	fmt.Fprintln(out, formatter.Render(reply))
	return nil
}
