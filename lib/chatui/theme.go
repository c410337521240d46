// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package chatui

import (
	"hash/fnv"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/parley-chat/parley/lib/ref"
)

// Theme collects the colors used across the client. Values are ANSI-256
// so the palette degrades sanely on terminals without truecolor.
type Theme struct {
	// NormalText is the default foreground for message bodies.
	NormalText lipgloss.Color
	// FaintText is for timestamps, separators, and other chrome.
	FaintText lipgloss.Color

	// SelectedBackground marks the selected room and timeline message.
	SelectedBackground lipgloss.Color
	// SelectedForeground pairs with SelectedBackground.
	SelectedForeground lipgloss.Color

	// HeaderForeground is for the status bar and window titles.
	HeaderForeground lipgloss.Color
	// BorderColor draws pane dividers and blockquote bars.
	BorderColor lipgloss.Color
	// HelpText is for key hints in the status bar.
	HelpText lipgloss.Color

	// SenderColors are assigned to remote users by stable hash so a
	// user keeps one color across rooms and sessions.
	SenderColors []lipgloss.Color
	// SelfColor marks the local user's own messages.
	SelfColor lipgloss.Color

	// UnreadColor marks rooms with unread activity.
	UnreadColor lipgloss.Color
	// HighlightColor marks mentions, in the room list and in bodies.
	HighlightColor lipgloss.Color
	// InviteColor marks pending invites in the room list.
	InviteColor lipgloss.Color

	// NoticeText renders m.notice bodies, bot output mostly.
	NoticeText lipgloss.Color
	// LinkText renders URLs and room references.
	LinkText lipgloss.Color
	// ErrorText renders failures in the status bar.
	ErrorText lipgloss.Color
	// WarnText renders warnings in the status bar.
	WarnText lipgloss.Color
}

// DarkTheme is the default palette, tuned for dark backgrounds.
var DarkTheme = Theme{
	NormalText:         lipgloss.Color("252"),
	FaintText:          lipgloss.Color("245"),
	SelectedBackground: lipgloss.Color("236"),
	SelectedForeground: lipgloss.Color("255"),
	HeaderForeground:   lipgloss.Color("255"),
	BorderColor:        lipgloss.Color("240"),
	HelpText:           lipgloss.Color("241"),
	SenderColors: []lipgloss.Color{
		lipgloss.Color("110"),
		lipgloss.Color("143"),
		lipgloss.Color("174"),
		lipgloss.Color("139"),
		lipgloss.Color("108"),
		lipgloss.Color("179"),
		lipgloss.Color("116"),
		lipgloss.Color("138"),
	},
	SelfColor:      lipgloss.Color("72"),
	UnreadColor:    lipgloss.Color("117"),
	HighlightColor: lipgloss.Color("203"),
	InviteColor:    lipgloss.Color("215"),
	NoticeText:     lipgloss.Color("146"),
	LinkText:       lipgloss.Color("111"),
	ErrorText:      lipgloss.Color("203"),
	WarnText:       lipgloss.Color("179"),
}

// LightTheme mirrors DarkTheme for light backgrounds.
var LightTheme = Theme{
	NormalText:         lipgloss.Color("235"),
	FaintText:          lipgloss.Color("243"),
	SelectedBackground: lipgloss.Color("253"),
	SelectedForeground: lipgloss.Color("232"),
	HeaderForeground:   lipgloss.Color("232"),
	BorderColor:        lipgloss.Color("248"),
	HelpText:           lipgloss.Color("246"),
	SenderColors: []lipgloss.Color{
		lipgloss.Color("25"),
		lipgloss.Color("64"),
		lipgloss.Color("125"),
		lipgloss.Color("90"),
		lipgloss.Color("29"),
		lipgloss.Color("130"),
		lipgloss.Color("31"),
		lipgloss.Color("95"),
	},
	SelfColor:      lipgloss.Color("23"),
	UnreadColor:    lipgloss.Color("26"),
	HighlightColor: lipgloss.Color("160"),
	InviteColor:    lipgloss.Color("166"),
	NoticeText:     lipgloss.Color("60"),
	LinkText:       lipgloss.Color("26"),
	ErrorText:      lipgloss.Color("160"),
	WarnText:       lipgloss.Color("130"),
}

// ThemeNamed resolves a configured theme name. "auto" asks the terminal
// for its background; unknown names fall back to dark.
func ThemeNamed(name string) Theme {
	switch name {
	case "light":
		return LightTheme
	case "dark":
		return DarkTheme
	default:
		if termenv.HasDarkBackground() {
			return DarkTheme
		}
		return LightTheme
	}
}

// SenderColor picks a stable color for a user. The local user always
// gets SelfColor; everyone else hashes into SenderColors.
func (t Theme) SenderColor(user, self ref.UserID) lipgloss.Color {
	if user == self {
		return t.SelfColor
	}
	if len(t.SenderColors) == 0 {
		return t.NormalText
	}
	h := fnv.New32a()
	h.Write([]byte(user.String()))
	return t.SenderColors[int(h.Sum32())%len(t.SenderColors)]
}
