// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package chatui

import (
	"log/slog"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
)

// statusLine is what the status bar shows this frame. Notice wins over
// help; the help line returns when the notice fades.
type statusLine struct {
	room   string
	topic  string
	notice string
	level  slog.Level
	help   string
	user   string
}

/// renderStatusBar renders the one-line footer: room and topic on the
// left, the active notice or key help in the middle, the local user on
// the right.
func renderStatusBar(theme Theme, width int, line statusLine) string {
	faint := lipgloss.NewStyle().Foreground(theme.FaintText)

	left := ""
	if line.room != "" {
		left = lipgloss.NewStyle().
			Foreground(theme.HeaderForeground).
			Bold(true).
			Render(line.room)
		if line.topic != "" {
			left += faint.Render(" · " + firstLine(line.topic))
		}
	}

	middle := ""
	switch {
	case line.notice != "":
		style := lipgloss.NewStyle().Foreground(theme.NormalText)
		switch {
		case line.level >= slog.LevelError:
			style = style.Foreground(theme.ErrorText)
		case line.level >= slog.LevelWarn:
			style = style.Foreground(theme.WarnText)
		}
		middle = style.Render(line.notice)
	case line.help != "":
		middle = lipgloss.NewStyle().Foreground(theme.HelpText).Render(line.help)
	}

	right := faint.Render(line.user)

	return alignStatusBar(left, middle, right, width)
}

// alignStatusBar lays the three segments across width, dropping the
// right then the left segment when space runs out. The middle segment
// always survives, truncated last.
func alignStatusBar(left, middle, right string, width int) string {
	if width <= 0 {
		return ""
	}

	leftWidth := lipgloss.Width(left)
	middleWidth := lipgloss.Width(middle)
	rightWidth := lipgloss.Width(right)

	if leftWidth+middleWidth+rightWidth+4 > width {
		right = ""
		rightWidth = 0
	}
	if leftWidth+middleWidth+rightWidth+4 > width {
		left = ""
		leftWidth = 0
	}

	available := width - leftWidth - rightWidth
	if available < 3 {
		available = 3
	}
	if middleWidth > available-2 {
		middle = ansi.Truncate(middle, available-2, "…")
		middleWidth = lipgloss.Width(middle)
	}

	var out strings.Builder
	out.WriteString(left)
	gap := (available - middleWidth) / 2
	if gap < 1 {
		gap = 1
	}
	out.WriteString(strings.Repeat(" ", gap))
	out.WriteString(middle)
	rest := width - lipgloss.Width(out.String()) - rightWidth
	if rest < 0 {
		rest = 0
	}
	out.WriteString(strings.Repeat(" ", rest))
	out.WriteString(right)
	return ansi.Truncate(out.String(), width, "")
}
