// Package config handles configuration loading for oracle-chat.
//
// # Overview
//
// Configuration is loaded from a YAML or TOML file with environment variable
// expansion. Every key has a default; the webhook URL is the only value
// serving actually needs.
//
// # Configuration File
//
// Locations (in order):
//
//  1. The -config flag
//  2. Path from ORACLE_CONFIG environment variable
//  3. $XDG_CONFIG_HOME/oracle/chat.yaml
//  4. ~/.config/oracle/chat.yaml
//
// When none of these exist the defaults are used. Files ending in .toml are
// parsed as TOML, everything else as YAML.
//
// # Environment
//
// A .env file in the working directory is loaded first (see LoadDotEnv). It
// never overrides variables that are already set. Values can then reference
// variables:
//
//	agent:
//	  webhook_url: "${ORACLE_WEBHOOK_URL}"
//
// ORACLE_WEBHOOK_URL also overrides agent.webhook_url directly, so a file is
// optional.
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	agent:
//	  timeout: "30s"
//	notice:
//	  timeout: "5s"
//
// # Configuration Sections
//
//	server:
//	  http_addr: "localhost:8080"
//
//	agent:
//	  webhook_url: "https://n8n.example.com/webhook/oracle"
//	  timeout: "0s"               # 0 keeps the transport default
//	  max_response_bytes: 1048576
//
//	session:
//	  title: "Oracle Agent"
//	  subtitle: "Procurement & Expenses"
//	  greeting: "..."             # first assistant message
//
//	notice:
//	  timeout: "5s"
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
//	tailscale:
//	  enabled: false
//	  hostname: "oracle-chat"
//	  auth_key: "${TS_AUTHKEY}"
//	  https: false
//	  funnel: false
//
// The same layout in TOML:
//
//	[agent]
//	webhook_url = "https://n8n.example.com/webhook/oracle"
//	timeout = "10s"
//
// # Usage
//
//	_ = config.LoadDotEnv()
//	cfg, err := config.Load(config.ResolvePath(*configFlag))
//	if err != nil {
//	    return fmt.Errorf("loading config: %w", err)
//	}
package config
