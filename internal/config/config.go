// ABOUTME: Configuration loading and parsing for oracle-chat
// ABOUTME: Reads YAML or TOML with environment variable expansion, defaults and .env support

package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	// PathEnvVar points at a config file.
	PathEnvVar = "ORACLE_CONFIG"

	// WebhookEnvVar overrides agent.webhook_url.
	WebhookEnvVar = "ORACLE_WEBHOOK_URL"

	DefaultHTTPAddr      = "localhost:8080"
	DefaultTitle         = "Oracle Agent"
	DefaultSubtitle      = "Procurement & Expenses"
	DefaultNoticeTimeout = 5 * time.Second
	DefaultMaxResponse   = 1 << 20
)

// Config represents the complete oracle-chat configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Tailscale TailscaleConfig `yaml:"tailscale" toml:"tailscale"`
	Agent     AgentConfig     `yaml:"agent" toml:"agent"`
	Session   SessionConfig   `yaml:"session" toml:"session"`
	Notice    NoticeConfig    `yaml:"notice" toml:"notice"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr" toml:"http_addr"`
}

// TailscaleConfig holds Tailscale tsnet configuration
type TailscaleConfig struct {
	Enabled   bool   `yaml:"enabled" toml:"enabled"`
	Hostname  string `yaml:"hostname" toml:"hostname"`
	AuthKey   string `yaml:"auth_key" toml:"auth_key"`
	StateDir  string `yaml:"state_dir" toml:"state_dir"`
	Ephemeral bool   `yaml:"ephemeral" toml:"ephemeral"`
	HTTPS     bool   `yaml:"https" toml:"https"`   // serve on :443 with a Tailscale-issued certificate
	Funnel    bool   `yaml:"funnel" toml:"funnel"` // expose publicly through Funnel (implies HTTPS)
}

// AgentConfig holds the webhook agent connection settings
type AgentConfig struct {
	WebhookURL       string        `yaml:"webhook_url" toml:"webhook_url"`
	Timeout          time.Duration `yaml:"-" toml:"-"`
	MaxResponseBytes int64         `yaml:"max_response_bytes" toml:"max_response_bytes"`

	// Raw string value for unmarshaling
	TimeoutRaw string `yaml:"timeout" toml:"timeout"`
}

// SessionConfig holds the chat page copy and the seeded greeting
type SessionConfig struct {
	Title    string `yaml:"title" toml:"title"`
	Subtitle string `yaml:"subtitle" toml:"subtitle"`
	Greeting string `yaml:"greeting" toml:"greeting"`
}

// NoticeConfig holds the error toast settings
type NoticeConfig struct {
	Timeout    time.Duration `yaml:"-" toml:"-"`
	TimeoutRaw string        `yaml:"timeout" toml:"timeout"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// Default returns a configuration with every optional value filled in.
func Default() *Config {
	return &Config{
		Server: ServerConfig{HTTPAddr: DefaultHTTPAddr},
		Tailscale: TailscaleConfig{
			Hostname: "oracle-chat",
		},
		Agent: AgentConfig{
			MaxResponseBytes: DefaultMaxResponse,
		},
		Session: SessionConfig{
			Title:    DefaultTitle,
			Subtitle: DefaultSubtitle,
		},
		Notice: NoticeConfig{
			Timeout: DefaultNoticeTimeout,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are parsed as TOML, anything else as YAML.
// An empty path yields the defaults. Environment variables in the format
// ${VAR_NAME} are expanded and ORACLE_WEBHOOK_URL overrides the webhook URL.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := decode(cfg, expandEnvVars(string(data)), formatFor(path)); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	applyEnv(cfg)

	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func formatFor(path string) string {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return "toml"
	}
	return "yaml"
}

func decode(cfg *Config, data, format string) error {
	if format == "toml" {
		_, err := toml.Decode(data, cfg)
		return err
	}
	return yaml.Unmarshal([]byte(data), cfg)
}

// LoadDotEnv loads each file into the process environment without
// overriding variables that are already set. Missing files are skipped.
// With no arguments it loads ./.env.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("loading %s: %w", f, err)
		}
	}
	return nil
}

// ResolvePath picks the config file to load. Priority: flagPath,
// $ORACLE_CONFIG, $XDG_CONFIG_HOME/oracle/chat.yaml,
// ~/.config/oracle/chat.yaml. Explicit paths are returned as given; default
// locations only when the file exists. An empty result means no file.
func ResolvePath(flagPath string) string {
	if flagPath != "" {
		return flagPath
	}
	if envPath := os.Getenv(PathEnvVar); envPath != "" {
		return envPath
	}
	for _, candidate := range defaultPaths() {
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}

// DefaultPath is where `oracle-chat init` writes a new config.
func DefaultPath() string {
	paths := defaultPaths()
	if len(paths) == 0 {
		return "chat.yaml"
	}
	return paths[0]
}

func defaultPaths() []string {
	var paths []string
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		paths = append(paths, filepath.Join(xdg, "oracle", "chat.yaml"))
	}
	if home, err := os.UserHomeDir(); err == nil {
		p := filepath.Join(home, ".config", "oracle", "chat.yaml")
		if len(paths) == 0 || paths[0] != p {
			paths = append(paths, p)
		}
	}
	return paths
}

func applyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv(WebhookEnvVar)); v != "" {
		cfg.Agent.WebhookURL = v
	}
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if !c.Tailscale.Enabled && c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required (or enable tailscale)")
	}

	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return fmt.Errorf("tailscale.hostname is required when tailscale is enabled")
	}

	if c.Agent.WebhookURL != "" {
		u, err := url.Parse(c.Agent.WebhookURL)
		if err != nil {
			return fmt.Errorf("agent.webhook_url is not a valid URL: %w", err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("agent.webhook_url must use http or https scheme")
		}
		if u.Host == "" {
			return fmt.Errorf("agent.webhook_url must be an absolute URL")
		}
	}

	if c.Agent.MaxResponseBytes < 0 {
		return fmt.Errorf("agent.max_response_bytes must not be negative")
	}
	if c.Agent.Timeout < 0 {
		return fmt.Errorf("agent.timeout must not be negative")
	}
	if c.Notice.Timeout < 0 {
		return fmt.Errorf("notice.timeout must not be negative")
	}

	switch strings.ToLower(c.Logging.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format %q is not one of text, json", c.Logging.Format)
	}

	return nil
}

// HasWebhook reports whether a webhook URL is configured.
func (c *Config) HasWebhook() bool {
	return c.Agent.WebhookURL != ""
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Agent.TimeoutRaw != "" {
		cfg.Agent.Timeout, err = time.ParseDuration(cfg.Agent.TimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing agent.timeout %q: %w", cfg.Agent.TimeoutRaw, err)
		}
	}

	if cfg.Notice.TimeoutRaw != "" {
		cfg.Notice.Timeout, err = time.ParseDuration(cfg.Notice.TimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing notice.timeout %q: %w", cfg.Notice.TimeoutRaw, err)
		}
	}

	return nil
}
