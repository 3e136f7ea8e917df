// ABOUTME: Terminal chat client for the Oracle webhook agent, built on Bubble Tea.
// ABOUTME: Runs the same session controller as the web UI, in-process, against the configured webhook.

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/2389/oracle-chat/internal/agent"
	"github.com/2389/oracle-chat/internal/config"
	"github.com/2389/oracle-chat/internal/conversation"
	"github.com/2389/oracle-chat/internal/notice"
	"github.com/2389/oracle-chat/internal/transcript"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (YAML or TOML)")
	style := flag.String("style", "", "Markdown style: dark, light, notty, ascii (default: detect)")
	logPath := flag.String("log", "", "Write debug logs to this file")
	flag.Parse()

	if err := run(*configPath, *style, *logPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, style, logPath string) error {
	if err := config.LoadDotEnv(); err != nil {
		return err
	}
	cfg, err := config.Load(config.ResolvePath(configPath))
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if !cfg.HasWebhook() {
		return fmt.Errorf("agent.webhook_url is not configured (set it in the config file or %s)", config.WebhookEnvVar)
	}

	logger, closeLog, err := openLogger(logPath)
	if err != nil {
		return err
	}
	defer closeLog()

	client, err := agent.New(agent.Config{
		WebhookURL:       cfg.Agent.WebhookURL,
		Timeout:          cfg.Agent.Timeout,
		MaxResponseBytes: cfg.Agent.MaxResponseBytes,
		Logger:           logger,
	})
	if err != nil {
		return fmt.Errorf("creating agent client: %w", err)
	}

	ctrl := conversation.New(client,
		conversation.WithGreeting(cfg.Session.Greeting),
		conversation.WithNotifier(notice.New(cfg.Notice.Timeout)),
		conversation.WithLogger(logger),
	)
	defer ctrl.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := newModel(ctrl, ctrl.Subscribe(ctx), cfg.Session.Title, cfg.Session.Subtitle,
		func(width int) (*transcript.TerminalFormatter, error) {
			return transcript.NewTerminalFormatter(width, style)
		})

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion())
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("running TUI: %w", err)
	}
	return nil
}

// openLogger returns a debug logger writing to path, or a discarding logger
// when path is empty. The terminal belongs to the UI.
func openLogger(path string) (*slog.Logger, func(), error) {
	if path == "" {
		return slog.New(slog.NewTextHandler(io.Discard, nil)), func() {}, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}
	logger := slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return logger, func() { _ = f.Close() }, nil
}
