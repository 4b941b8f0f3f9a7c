package http

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

// Raw HTML in answers is dropped: the renderer runs without WithUnsafe.
var markdown = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithRendererOptions(html.WithHardWraps()),
)

// renderMarkdown converts an assistant answer to HTML. It returns "" on
// failure and the client falls back to plain text.
func renderMarkdown(text string) string {
	text = stripOuterFence(text)
	if strings.TrimSpace(text) == "" {
		return ""
	}
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(text), &buf); err != nil {
		return ""
	}
	return buf.String()
}

// stripOuterFence unwraps answers the model wrapped in a single
// ```markdown fence.
func stripOuterFence(text string) string {
	t := strings.TrimSpace(text)
	if !strings.HasPrefix(t, "```") || !strings.HasSuffix(t, "```") || len(t) < 6 {
		return text
	}
	body := t[3 : len(t)-3]
	nl := strings.IndexByte(body, '\n')
	if nl < 0 {
		return text
	}
	if lang := strings.TrimSpace(body[:nl]); lang != "" && lang != "markdown" && lang != "md" {
		return text
	}
	body = body[nl+1:]
	if strings.Contains(body, "```") {
		return text
	}
	return body
}
