// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package chatui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// LineInput is a minimal single-line text input used for the ":"
// command prompt and the room filter. It deliberately supports only
// append and backspace; anything richer belongs in the composer.
type LineInput struct {
	// Prompt is drawn before the text, ":" for commands, "/" for the
	// room filter.
	Prompt string
	// Value is the current text, without the prompt.
	Value string
	// Active reports whether the input owns key events.
	Active bool
}

// Open activates the input with an empty value.
func (l *LineInput) Open() {
	l.Active = true
	l.Value = ""
}

// Close deactivates the input and clears it.
func (l *LineInput) Close() {
	l.Active = false
	l.Value = ""
}

// HandleKey applies a key event and reports whether it was consumed.
// Enter and escape are left to the caller; everything else edits.
func (l *LineInput) HandleKey(msg tea.KeyMsg) bool {
	if !l.Active {
		return false
	}
	switch msg.Type {
	case tea.KeyRunes:
		l.Value += string(msg.Runes)
		return true
	case tea.KeySpace:
		l.Value += " "
		return true
	case tea.KeyBackspace:
		if l.Value == "" {
			return true
		}
		runes := []rune(l.Value)
		l.Value = string(runes[:len(runes)-1])
		return true
	}
	return false
}

// View renders the prompt, the text, and a block cursor while the
// input is active. An inactive input with a value renders without the
// cursor, which is how a confirmed room filter stays visible.
func (l LineInput) View(theme Theme) string {
	prompt := lipgloss.NewStyle().
		Foreground(theme.HighlightColor).
		Bold(true).
		Render(l.Prompt)
	text := lipgloss.NewStyle().
		Foreground(theme.NormalText).
		Render(l.Value)
	if !l.Active {
		return prompt + text
	}
	cursor := lipgloss.NewStyle().
		Foreground(theme.FaintText).
		Render("▎")
	return prompt + text + cursor
}
