package transcript

import (
	"bytes"

	"github.com/charmbracelet/glamour"
	"github.com/pkg/errors"
	"github.com/yuin/goldmark"
	emoji "github.com/yuin/goldmark-emoji"
	"github.com/yuin/goldmark/extension"
	gmhtml "github.com/yuin/goldmark/renderer/html"
)

// Renderer turns assistant markdown into displayable content.
type Renderer interface {
	Render(markdown string) (string, error)
}

// HTMLRenderer renders GitHub flavored markdown (tables, autolinks, emoji
// shortcodes) to HTML.
type HTMLRenderer struct {
	md goldmark.Markdown
}

var _ Renderer = (*HTMLRenderer)(nil)

func NewHTMLRenderer() *HTMLRenderer {
	return &HTMLRenderer{
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM, emoji.Emoji),
			goldmark.WithRendererOptions(gmhtml.WithHardWraps()),
		),
	}
}

func (h *HTMLRenderer) Render(markdown string) (string, error) {
	var buf bytes.Buffer
	if err := h.md.Convert([]byte(markdown), &buf); err != nil {
		return "", errors.Wrap(err, "could not convert markdown")
	}
	return buf.String(), nil
}

// TerminalRenderer renders markdown with ANSI styling for a terminal of the
// given width.
type TerminalRenderer struct {
	r *glamour.TermRenderer
}

var _ Renderer = (*TerminalRenderer)(nil)

func NewTerminalRenderer(width int, style string) (*TerminalRenderer, error) {
	opts := []glamour.TermRendererOption{}
	if style == "" || style == "auto" {
		opts = append(opts, glamour.WithAutoStyle())
	} else {
		opts = append(opts, glamour.WithStandardStyle(style))
	}
	if width > 0 {
		opts = append(opts, glamour.WithWordWrap(width))
	}
	r, err := glamour.NewTermRenderer(opts...)
	if err != nil {
		return nil, errors.Wrap(err, "could not create terminal renderer")
	}
	return &TerminalRenderer{r: r}, nil
}

func (t *TerminalRenderer) Render(markdown string) (string, error) {
	return t.r.Render(markdown)
}

// PlainRenderer returns markdown unchanged.
type PlainRenderer struct{}

var _ Renderer = PlainRenderer{}

func (PlainRenderer) Render(markdown string) (string, error) {
	return markdown, nil
}
