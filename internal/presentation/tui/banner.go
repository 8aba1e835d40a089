package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

// PrintBanner writes the triage ASCII banner to w.
func PrintBanner(w io.Writer) {
	p := termenv.ColorProfile()
	// Teal to green, one shade per line
	lines := []struct{ text, color string }{
		{"  _        _                 ", "#2dd4bf"},
		{" | |_ _ __(_) __ _  __ _  ___ ", "#34d399"},
		{" | __| '__| |/ _` |/ _` |/ _ \\", "#4ade80"},
		{" | |_| |  | | (_| | (_| |  __/", "#a3e635"},
		{"  \\__|_|  |_|\\__,_|\\__, |\\___|", "#facc15"},
		{"                   |___/      ", "#fbbf24"},
	}

	fmt.Fprintln(w)
	for _, l := range lines {
		fmt.Fprintln(w, termenv.String(l.text).Foreground(p.Color(l.color)))
	}
	fmt.Fprintln(w)
}

// Speaker colors the name of a node for the chat transcript.
func Speaker(name string) string {
	p := termenv.ColorProfile()
	return termenv.String(name).Bold().Foreground(p.Color("#818cf8")).String()
}

// Warning renders text in the alert color.
func Warning(text string) string {
	p := termenv.ColorProfile()
	return termenv.String(text).Foreground(p.Color("#fb7185")).String()
}
