// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package chatui

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/parley-chat/parley/chat"
	"github.com/parley-chat/parley/lib/chatcmd"
	"github.com/parley-chat/parley/lib/ref"
	"github.com/parley-chat/parley/messaging"
)

// windowKind identifies which full-screen window is open.
type windowKind int

const (
	windowNone windowKind = iota
	windowMembers
	windowVerifications
	windowWelcome
	windowSpace
)

// Window is a full-screen overlay that replaces the split view: the
// member list, the verification list, the welcome screen, or a space's
// contents. Content is pre-rendered by the model; the window scrolls
// and frames it.
type Window struct {
	theme  Theme
	kind   windowKind
	title  string
	lines  []string
	offset int
	width  int
	height int
}

// NewWindow returns a closed window.
func NewWindow(theme Theme) Window {
	return Window{theme: theme}
}

// SetSize sets the frame dimensions.
func (w *Window) SetSize(width, height int) {
	w.width = width
	w.height = height
}

// Open replaces the window contents and resets the scroll.
func (w *Window) Open(kind windowKind, title string, lines []string) {
	w.kind = kind
	w.title = title
	w.lines = lines
	w.offset = 0
}

// SetLines replaces the content in place, clamping the scroll so a
// shrinking body does not leave the offset past the end.
func (w *Window) SetLines(lines []string) {
	w.lines = lines
	w.ScrollDown(0)
}

// Close dismisses the window.
func (w *Window) Close() {
	w.kind = windowNone
	w.lines = nil
}

// IsOpen reports whether a window is showing.
func (w *Window) IsOpen() bool {
	return w.kind != windowNone
}

// Kind returns the open window's kind, windowNone when closed.
func (w *Window) Kind() windowKind {
	return w.kind
}

func (w *Window) bodyHeight() int {
	// Title, rule, and footer each take a row.
	rows := w.height - 3
	if rows < 1 {
		rows = 1
	}
	return rows
}

// ScrollUp moves the content up by n rows.
func (w *Window) ScrollUp(n int) {
	w.offset -= n
	if w.offset < 0 {
		w.offset = 0
	}
}

// ScrollDown moves the content down by n rows.
func (w *Window) ScrollDown(n int) {
	max := len(w.lines) - w.bodyHeight()
	if max < 0 {
		max = 0
	}
	w.offset += n
	if w.offset > max {
		w.offset = max
	}
}

// PageSize is the row count of one scroll page.
func (w *Window) PageSize() int {
	return w.bodyHeight()
}

// View renders the window frame and the visible content slice.
func (w *Window) View() string {
	title := lipgloss.NewStyle().
		Foreground(w.theme.HeaderForeground).
		Bold(true).
		Render(ansi.Truncate(w.title, w.width, "…"))
	rule := lipgloss.NewStyle().
		Foreground(w.theme.BorderColor).
		Render(strings.Repeat("─", w.width))

	rows := w.bodyHeight()
	body := make([]string, 0, rows)
	for i := w.offset; i < len(w.lines) && len(body) < rows; i++ {
		body = append(body, ansi.Truncate(w.lines[i], w.width, "…"))
	}
	for len(body) < rows {
		body = append(body, "")
	}

	footer := lipgloss.NewStyle().
		Foreground(w.theme.HelpText).
		Render("esc close · ↑/↓ scroll")

	parts := []string{title, rule}
	parts = append(parts, body...)
	parts = append(parts, footer)
	return strings.Join(parts, "\n")
}

// memberLines renders the member list: joined members first, then
// invited, each with display name, user ID, and presence when known.
func memberLines(theme Theme, members []messaging.RoomMember, presence func(ref.UserID) (messaging.PresenceContent, bool)) []string {
	rank := func(membership string) int {
		switch membership {
		case "join":
			return 0
		case "invite":
			return 1
		default:
			return 2
		}
	}
	sorted := slices.Clone(members)
	slices.SortFunc(sorted, func(a, b messaging.RoomMember) int {
		if r := rank(a.Membership) - rank(b.Membership); r != 0 {
			return r
		}
		return strings.Compare(a.UserID.String(), b.UserID.String())
	})

	normal := lipgloss.NewStyle().Foreground(theme.NormalText)
	faint := lipgloss.NewStyle().Foreground(theme.FaintText)
	active := lipgloss.NewStyle().Foreground(theme.SelfColor)

	lines := make([]string, 0, len(sorted)+1)
	lines = append(lines, faint.Render(fmt.Sprintf("%d members", len(sorted))), "")
	for _, member := range sorted {
		name := member.DisplayName
		if name == "" {
			name = member.UserID.Localpart()
		}

		line := normal.Render(name) + " " + faint.Render(member.UserID.String())
		if member.Membership != "join" {
			line += " " + faint.Render("("+member.Membership+")")
		}
		if content, ok := presence(member.UserID); ok {
			switch {
			case content.CurrentlyActive || content.Presence == "online":
				line += " " + active.Render("● online")
			case content.Presence == "unavailable":
				line += " " + faint.Render("○ away")
			}
			if content.StatusMsg != "" {
				line += " " + faint.Render("— "+content.StatusMsg)
			}
		}
		lines = append(lines, line)
	}
	return lines
}

// verificationLines renders the verification exchanges, newest first,
// with the command that advances each phase.
func verificationLines(theme Theme, verifications []chat.Verification, now time.Time) []string {
	if len(verifications) == 0 {
		return []string{
			lipgloss.NewStyle().Foreground(theme.FaintText).
				Render("no verification exchanges · :verify request USER to start one"),
		}
	}

	normal := lipgloss.NewStyle().Foreground(theme.NormalText)
	faint := lipgloss.NewStyle().Foreground(theme.FaintText)
	hint := lipgloss.NewStyle().Foreground(theme.LinkText)
	warn := lipgloss.NewStyle().Foreground(theme.WarnText)
	done := lipgloss.NewStyle().Foreground(theme.SelfColor)

	var lines []string
	for _, v := range verifications {
		age := now.Sub(v.UpdatedAt).Round(time.Second)
		head := normal.Render(v.UserID.String())
		if !v.DeviceID.IsZero() {
			head += faint.Render(" · " + v.DeviceID.String())
		}
		head += faint.Render(fmt.Sprintf(" · %s · %s ago", v.Phase, age))
		lines = append(lines, head)

		switch v.Phase {
		case chat.VerificationRequested:
			lines = append(lines, "  "+hint.Render(fmt.Sprintf(":verify accept %s", v.TransactionID)))
		case chat.VerificationReady, chat.VerificationStarted:
			lines = append(lines, "  "+hint.Render(fmt.Sprintf(":verify confirm %s", v.TransactionID))+
				faint.Render(" if the emoji match, ")+
				warn.Render(fmt.Sprintf(":verify mismatch %s", v.TransactionID))+
				faint.Render(" if they do not"))
		case chat.VerificationDone:
			lines = append(lines, "  "+done.Render("verified"))
		case chat.VerificationCanceled:
			lines = append(lines, "  "+faint.Render("canceled"))
		}
		lines = append(lines, "")
	}
	return lines
}

// welcomeLines renders the welcome screen: version, a short
// orientation, and the command reference.
func welcomeLines(theme Theme, version string, commands []*chatcmd.Command) []string {
	header := lipgloss.NewStyle().Foreground(theme.HeaderForeground).Bold(true)
	normal := lipgloss.NewStyle().Foreground(theme.NormalText)
	faint := lipgloss.NewStyle().Foreground(theme.FaintText)
	usage := lipgloss.NewStyle().Foreground(theme.LinkText)

	lines := []string{
		header.Render("parley " + version),
		faint.Render("a terminal client for matrix"),
		"",
		normal.Render("tab moves between the room list, the timeline, and the composer."),
		normal.Render("enter sends; alt+enter inserts a line break. : opens the command"),
		normal.Render("prompt from the room list or the timeline."),
		"",
		header.Render("commands"),
	}

	width := 0
	for _, command := range commands {
		if len(command.Usage) > width {
			width = len(command.Usage)
		}
	}
	for _, command := range commands {
		pad := strings.Repeat(" ", width-len(command.Usage)+2)
		lines = append(lines, "  "+usage.Render(command.Usage)+pad+faint.Render(command.Summary))
	}
	return lines
}

// spaceLines renders a space's direct children with join state.
func spaceLines(theme Theme, children []messaging.HierarchyRoom, joined func(ref.RoomID) bool) []string {
	if len(children) == 0 {
		return []string{
			lipgloss.NewStyle().Foreground(theme.FaintText).Render("this space has no rooms"),
		}
	}

	normal := lipgloss.NewStyle().Foreground(theme.NormalText)
	faint := lipgloss.NewStyle().Foreground(theme.FaintText)
	member := lipgloss.NewStyle().Foreground(theme.SelfColor)
	hint := lipgloss.NewStyle().Foreground(theme.LinkText)

	var lines []string
	for _, child := range children {
		name := child.Name
		if name == "" {
			name = child.CanonicalAlias
		}
		if name == "" {
			name = child.RoomID.String()
		}

		line := normal.Render(name)
		if child.RoomType == messaging.RoomTypeSpace {
			line += " " + faint.Render("(space)")
		}
		line += " " + faint.Render(fmt.Sprintf("· %d members", child.NumJoinedMembers))
		if joined(child.RoomID) {
			line += " " + member.Render("joined")
		} else {
			target := child.CanonicalAlias
			if target == "" {
				target = child.RoomID.String()
			}
			line += " " + hint.Render(":join "+target)
		}
		lines = append(lines, line)

		if child.Topic != "" {
			lines = append(lines, "  "+faint.Render(firstLine(child.Topic)))
		}
	}
	return lines
}
