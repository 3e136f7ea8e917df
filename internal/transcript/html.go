// ABOUTME: Markdown to sanitised HTML for the web chat transcript
// ABOUTME: goldmark renders GFM in safe mode, bluemonday strips anything active

package transcript

import (
	"bytes"
	"html/template"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

// HTMLFormatter turns message markdown into HTML that is safe to embed.
// It is safe for concurrent use.
type HTMLFormatter struct {
	md     goldmark.Markdown
	policy *bluemonday.Policy
}

// NewHTMLFormatter builds the formatter used by the web chat.
func NewHTMLFormatter() *HTMLFormatter {
	md := goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithRendererOptions(html.WithHardWraps()),
	)
	return &HTMLFormatter{md: md, policy: newPolicy()}
}

func newPolicy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.RequireNoFollowOnLinks(true)
	p.RequireNoReferrerOnLinks(true)
	p.AddTargetBlankToFullyQualifiedLinks(true)

	// GFM task lists.
	p.AllowAttrs("type").Matching(regexp.MustCompile(`^checkbox$`)).OnElements("input")
	p.AllowAttrs("checked", "disabled").OnElements("input")
	return p
}

// Render converts markdown source to sanitised HTML.
func (f *HTMLFormatter) Render(markdown string) template.HTML {
	var buf bytes.Buffer
	if err := f.md.Convert([]byte(markdown), &buf); err != nil {
		escaped := template.HTMLEscapeString(markdown)
		return template.HTML("<p>" + strings.ReplaceAll(escaped, "\n", "<br>") + "</p>")
	}
	return template.HTML(f.policy.SanitizeBytes(buf.Bytes())) //nolint:gosec // sanitised by bluemonday
}

// Format renders an entry's content. The typing entry has no content.
func (f *HTMLFormatter) Format(e Entry) template.HTML {
	if e.Kind == KindTyping {
		return ""
	}
	return f.Render(e.Content)
}
