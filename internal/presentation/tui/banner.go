package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

// PrintBanner writes the keeper banner to w.
func PrintBanner(w io.Writer, version string) {
	p := termenv.ColorProfile()
	lines := []struct{ text, color string }{
		{" _  __                         ", "#4d7c0f"},
		{"| |/ /___  ___ _ __   ___ _ __ ", "#3f6212"},
		{"| ' // _ \\/ _ \\ '_ \\ / _ \\ '__|", "#365314"},
		{"| . \\  __/  __/ |_) |  __/ |   ", "#14532d"},
		{"|_|\\_\\___|\\___| .__/ \\___|_|   ", "#064e3b"},
		{"              |_|              ", "#134e4a"},
	}
	fmt.Fprintln(w)
	for _, l := range lines {
		fmt.Fprintln(w, termenv.String(l.text).Foreground(p.Color(l.color)))
	}
	fmt.Fprintln(w, termenv.String("  "+version).Faint())
	fmt.Fprintln(w)
}
