// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package chatui

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"

	"github.com/parley-chat/parley/lib/config"
)

// KeyMap holds the resolved key bindings for the client. Bindings come
// from the keybindings file via [config.LoadKeybindings]; every action
// has a default, so all fields are always populated.
type KeyMap struct {
	Quit        key.Binding
	Up          key.Binding
	Down        key.Binding
	PageUp      key.Binding
	PageDown    key.Binding
	Home        key.Binding
	End         key.Binding
	FocusToggle key.Binding
	NextRoom    key.Binding
	PrevRoom    key.Binding
	NextUnread  key.Binding
	Filter      key.Binding
	Command     key.Binding
	Send        key.Binding
	Newline     key.Binding
	Cancel      key.Binding
	MarkRead    key.Binding
	Reply       key.Binding
	Edit        key.Binding
	Download    key.Binding
}

// NewKeyMap resolves bindings into bubbles key.Binding values.
func NewKeyMap(bindings config.Keybindings) KeyMap {
	return KeyMap{
		Quit:        bind(bindings, "quit", "quit"),
		Up:          bind(bindings, "up", "up"),
		Down:        bind(bindings, "down", "down"),
		PageUp:      bind(bindings, "page-up", "page up"),
		PageDown:    bind(bindings, "page-down", "page down"),
		Home:        bind(bindings, "home", "oldest"),
		End:         bind(bindings, "end", "newest"),
		FocusToggle: bind(bindings, "focus-toggle", "switch pane"),
		NextRoom:    bind(bindings, "next-room", "next room"),
		PrevRoom:    bind(bindings, "prev-room", "previous room"),
		NextUnread:  bind(bindings, "next-unread", "next unread"),
		Filter:      bind(bindings, "filter", "filter rooms"),
		Command:     bind(bindings, "command", "command"),
		Send:        bind(bindings, "send", "send"),
		Newline:     bind(bindings, "newline", "newline"),
		Cancel:      bind(bindings, "cancel", "cancel"),
		MarkRead:    bind(bindings, "mark-read", "mark read"),
		Reply:       bind(bindings, "reply", "reply"),
		Edit:        bind(bindings, "edit", "edit"),
		Download:    bind(bindings, "download", "download"),
	}
}

// DefaultKeyMap is the stock binding set, used when no keybindings file
// is configured.
var DefaultKeyMap = NewKeyMap(config.DefaultKeybindings())

func bind(bindings config.Keybindings, action, help string) key.Binding {
	chords := bindings[action]
	if len(chords) == 0 {
		chords = config.DefaultKeybindings()[action]
	}
	return key.NewBinding(
		key.WithKeys(chords...),
		key.WithHelp(helpChord(chords), help),
	)
}

// helpChord renders the first chord of a binding for help text.
func helpChord(chords []string) string {
	if len(chords) == 0 {
		return ""
	}
	switch chords[0] {
	case "up":
		return "↑"
	case "down":
		return "↓"
	case "left":
		return "←"
	case "right":
		return "→"
	case " ":
		return "space"
	}
	return strings.ToLower(chords[0])
}
