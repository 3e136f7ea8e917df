// ABOUTME: Markdown rendering for terminals via glamour
// ABOUTME: Strips escape sequences from model text before styling it

package transcript

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
)

var (
	// CSI, OSC (BEL or ST terminated), and two-byte escape sequences.
	escapeSeq = regexp.MustCompile(`\x1b\[[0-9:;<=>?]*[ -/]*[@-~]|\x1b\][^\x07\x1b]*(?:\x07|\x1b\\)?|\x1b[@-Z\\-_]`)
	// Remaining C0 controls except tab and newline, DEL, and C1 controls.
	controlChars = regexp.MustCompile(`[\x00-\x08\x0b-\x1f\x7f\x{80}-\x{9f}]`)
)

// StripControl removes terminal escape sequences and control characters,
// keeping newlines and tabs.
func StripControl(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = escapeSeq.ReplaceAllString(s, "")
	return controlChars.ReplaceAllString(s, "")
}

// TerminalFormatter renders entries for a terminal of a given width.
type TerminalFormatter struct {
	mu       sync.Mutex
	renderer *glamour.TermRenderer
	width    int
}

// NewTerminalFormatter creates a formatter that wraps at width. style is a
// glamour standard style name ("dark", "light", "notty", "ascii"); empty
// picks one from the terminal background.
func NewTerminalFormatter(width int, style string) (*TerminalFormatter, error) {
	if width <= 0 {
		width = 80
	}
	styleOpt := glamour.WithAutoStyle()
	if style != "" {
		styleOpt = glamour.WithStandardStyle(style)
	}
	r, err := glamour.NewTermRenderer(styleOpt, glamour.WithWordWrap(width))
	if err != nil {
		return nil, fmt.Errorf("creating terminal renderer: %w", err)
	}
	return &TerminalFormatter{renderer: r, width: width}, nil
}

// Width returns the wrap width.
func (f *TerminalFormatter) Width() int {
	return f.width
}

// Render styles markdown source. If glamour fails the stripped text is
// returned unstyled.
func (f *TerminalFormatter) Render(markdown string) string {
	clean := StripControl(markdown)

	f.mu.Lock()
	out, err := f.renderer.Render(clean)
	f.mu.Unlock()
	if err != nil {
		return clean
	}
	return strings.Trim(out, "\n")
}

// Format renders an entry's content. The typing entry has no content.
func (f *TerminalFormatter) Format(e Entry) string {
	if e.Kind == KindTyping {
		return ""
	}
	return f.Render(e.Content)
}
