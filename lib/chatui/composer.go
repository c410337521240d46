// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package chatui

import (
	"strings"

	"github.com/charmbracelet/bubbles/textarea"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
)

// composerMaxHeight caps how tall the input grows as the draft gains
// lines. Beyond this the textarea scrolls internally.
const composerMaxHeight = 6

// Composer is the message input: a textarea that grows with the draft,
// topped by a banner line while a reply or edit is pending. Submission
// is the model's job; the composer only edits text.
type Composer struct {
	input textarea.Model
	theme Theme

	// banner is the pending reply or edit notice, "" when composing a
	// plain message.
	banner string
}

// NewComposer returns a focused, empty composer.
func NewComposer(theme Theme) Composer {
	input := textarea.New()
	input.CharLimit = 0
	input.ShowLineNumbers = false
	input.MaxHeight = composerMaxHeight
	input.Placeholder = "message"
	input.SetPromptFunc(2, func(line int) string {
		if line == 0 {
			return "› "
		}
		return "  "
	})
	input.FocusedStyle.Prompt = lipgloss.NewStyle().Foreground(theme.BorderColor)
	input.BlurredStyle.Prompt = lipgloss.NewStyle().Foreground(theme.BorderColor)
	input.FocusedStyle.Text = lipgloss.NewStyle().Foreground(theme.NormalText)
	input.BlurredStyle.Text = lipgloss.NewStyle().Foreground(theme.FaintText)
	input.FocusedStyle.Placeholder = lipgloss.NewStyle().Foreground(theme.FaintText)
	input.BlurredStyle.Placeholder = lipgloss.NewStyle().Foreground(theme.FaintText)
	input.FocusedStyle.CursorLine = lipgloss.NewStyle()
	input.SetHeight(1)
	input.Focus()
	return Composer{input: input, theme: theme}
}

// SetWidth resizes the input to the pane width.
func (c *Composer) SetWidth(width int) {
	c.input.SetWidth(width)
}

// Focus gives the composer the keyboard. The returned command drives
// the cursor blink.
func (c *Composer) Focus() tea.Cmd {
	return c.input.Focus()
}

// Blur takes the keyboard away.
func (c *Composer) Blur() {
	c.input.Blur()
}

// Focused reports whether the composer owns the keyboard.
func (c *Composer) Focused() bool {
	return c.input.Focused()
}

// Value returns the draft text.
func (c *Composer) Value() string {
	return c.input.Value()
}

// Empty reports whether the draft is blank.
func (c *Composer) Empty() bool {
	return strings.TrimSpace(c.input.Value()) == ""
}

// SetValue replaces the draft, cursor at the end. Used to seed an edit
// and to restore the draft after a failed send.
func (c *Composer) SetValue(text string) {
	c.input.SetValue(text)
	c.syncHeight()
}

// Reset clears the draft.
func (c *Composer) Reset() {
	c.input.Reset()
	c.syncHeight()
}

// InsertNewline adds a line break at the cursor.
func (c *Composer) InsertNewline() {
	c.input.InsertString("\n")
	c.syncHeight()
}

// SetBanner sets the reply or edit notice above the input, "" to clear.
func (c *Composer) SetBanner(banner string) {
	c.banner = banner
}

// Banner returns the current notice.
func (c *Composer) Banner() string {
	return c.banner
}

// Update forwards a message to the textarea.
func (c *Composer) Update(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	c.input, cmd = c.input.Update(msg)
	c.syncHeight()
	return cmd
}

// syncHeight grows the input with the draft's line count. Soft-wrapped
// lines are not counted; the textarea scrolls those itself.
func (c *Composer) syncHeight() {
	lines := strings.Count(c.input.Value(), "\n") + 1
	if lines > composerMaxHeight {
		lines = composerMaxHeight
	}
	c.input.SetHeight(lines)
}

// Height returns the rendered height in rows, banner included.
func (c *Composer) Height() int {
	height := c.input.Height()
	if c.banner != "" {
		height++
	}
	return height
}

// View renders the banner (when set) above the input.
func (c *Composer) View(width int) string {
	view := c.input.View()
	if c.banner == "" {
		return view
	}
	banner := lipgloss.NewStyle().
		Foreground(c.theme.HighlightColor).
		Render(ansi.Truncate(c.banner, width, "…"))
	return banner + "\n" + view
}
