package tui

import (
	"github.com/charmbracelet/glamour"
)

// Renderer turns markdown narrative into terminal output.
type Renderer func(string) (string, error)

// NewRenderer returns a glamour renderer with an automatic light or dark
// style. It falls back to plain text when glamour cannot be initialized.
func NewRenderer(width int) Renderer {
	opts := []glamour.TermRendererOption{glamour.WithAutoStyle()}
	if width > 0 {
		opts = append(opts, glamour.WithWordWrap(width))
	}
	r, err := glamour.NewTermRenderer(opts...)
	if err != nil {
		return Plain
	}
	return r.Render
}

// Plain returns the text unchanged.
func Plain(s string) (string, error) {
	return s, nil
}
