// render.go: terminal rendering of panes and their style spans
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	devtools "github.com/agilira/devtools"
)

var (
	paneTitleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))

	spanStyles = map[string]lipgloss.Style{
		devtools.StyleKeyword: lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true),
		devtools.StyleComment: lipgloss.NewStyle().Foreground(lipgloss.Color("240")).Italic(true),
		devtools.StyleString:  lipgloss.NewStyle().Foreground(lipgloss.Color("114")),
		devtools.StyleNumber:  lipgloss.NewStyle().Foreground(lipgloss.Color("215")),
		devtools.StyleKey:     lipgloss.NewStyle().Foreground(lipgloss.Color("81")),
		devtools.StyleLiteral: lipgloss.NewStyle().Foreground(lipgloss.Color("177")),
		devtools.StyleError:   lipgloss.NewStyle().Foreground(lipgloss.Color("231")).Background(lipgloss.Color("196")),
		devtools.StyleHeading: lipgloss.NewStyle().Foreground(lipgloss.Color("86")).Bold(true),
	}
)

// renderView prints every non-empty pane under its name.
func renderView(v devtools.View, styled bool) string {
	var b strings.Builder
	for _, pane := range v.Panes() {
		text := pane.Text()
		if text == "" {
			continue
		}
		title := "== " + pane.Name() + " =="
		if styled {
			title = paneTitleStyle.Render(title)
		}
		b.WriteString(title)
		b.WriteString("\n")
		if styled {
			b.WriteString(renderSpans(text, pane.Spans()))
		} else {
			b.WriteString(text)
		}
		if !strings.HasSuffix(text, "\n") {
			b.WriteString("\n")
		}
	}
	return b.String()
}

// renderSpans styles text line by line so that styles never cross a
// newline. Overlapping spans are cut at the start of the next one.
func renderSpans(text string, spans []devtools.StyleSpan) string {
	var b strings.Builder
	pos := 0
	for _, s := range spans {
		if s.Start < pos {
			s.Start = pos
		}
		if s.End <= s.Start || s.End > len(text) {
			continue
		}
		b.WriteString(text[pos:s.Start])
		style, ok := spanStyles[s.Class]
		segment := text[s.Start:s.End]
		if !ok {
			b.WriteString(segment)
		} else {
			lines := strings.Split(segment, "\n")
			for i, line := range lines {
				if i > 0 {
					b.WriteString("\n")
				}
				if line != "" {
					b.WriteString(style.Render(line))
				}
			}
		}
		pos = s.End
	}
	b.WriteString(text[pos:])
	return b.String()
}
