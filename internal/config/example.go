// ABOUTME: Annotated starter configuration written by `oracle-chat init`
// ABOUTME: Refuses to overwrite an existing file

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrExists is returned by WriteExample when the target file already exists.
var ErrExists = errors.New("config file already exists")

// ExampleYAML is a complete configuration with every key documented.
const ExampleYAML = `# oracle-chat configuration

server:
  http_addr: "localhost:8080"

agent:
  # Webhook that answers GET ?message=<text> with a JSON envelope.
  # ORACLE_WEBHOOK_URL overrides this value.
  webhook_url: "${ORACLE_WEBHOOK_URL}"
  # Transport timeout for one request. 0 keeps the transport default.
  timeout: "0s"
  max_response_bytes: 1048576

session:
  title: "Oracle Agent"
  subtitle: "Procurement & Expenses"
  # greeting: "Hello! How can I help with procurement today?"

notice:
  timeout: "5s"

logging:
  level: "info"   # debug, info, warn, error
  format: "text"  # text, json

tailscale:
  enabled: false
  hostname: "oracle-chat"
  auth_key: "${TS_AUTHKEY}"
  ephemeral: false
  https: false
  funnel: false
`

// WriteExample writes ExampleYAML to path, creating parent directories.
func WriteExample(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%w: %s", ErrExists, path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(ExampleYAML), 0o600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
