package main

import (
	"io"

	"github.com/fatih/color"

	"github.com/jpalmerr/docwatch"
)

var (
	bold   = color.New(color.Bold)
	green  = color.New(color.FgGreen)
	red    = color.New(color.FgRed)
	yellow = color.New(color.FgYellow)
	blue   = color.New(color.FgBlue)
)

// kindColor picks the color a state is printed in.
func kindColor(k docwatch.Kind) *color.Color {
	switch k {
	case docwatch.KindResolved:
		return green
	case docwatch.KindFailed:
		return red
	case docwatch.KindLoading:
		return blue
	default:
		return yellow
	}
}

// printState writes one transition line.
func printState(w io.Writer, s docwatch.State) {
	c := kindColor(s.Kind)
	switch s.Kind {
	case docwatch.KindResolved:
		_, _ = c.Fprintf(w, "%-12s %-9s %s\n", s.ID, s.Kind, preview(s.Text, 60))
	case docwatch.KindFailed:
		_, _ = c.Fprintf(w, "%-12s %-9s attempt %d: %s (%s)\n", s.ID, s.Kind, s.Attempt, s.Failure, s.Reason)
	default:
		_, _ = c.Fprintf(w, "%-12s %-9s attempt %d\n", s.ID, s.Kind, s.Attempt)
	}
}

// preview shortens text to at most n runes on a single line.
func preview(text string, n int) string {
	runes := []rune(text)
	for i, r := range runes {
		if r == '\n' || r == '\r' || r == '\t' {
			runes[i] = ' '
		}
	}
	if len(runes) <= n {
		return string(runes)
	}
	return string(runes[:n-1]) + "…"
}
