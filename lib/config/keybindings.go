// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"slices"
	"strings"

	"github.com/tidwall/jsonc"
)

// Keybindings maps action names to the key chords that trigger them.
// Chord syntax follows the terminal input layer: "ctrl+c", "alt+enter",
// "pgup", single runes like ":".
type Keybindings map[string][]string

// DefaultKeybindings returns the built-in bindings. The map's keys are
// the complete set of bindable actions; a keybindings file may only
// override actions named here.
func DefaultKeybindings() Keybindings {
	return Keybindings{
		"quit":         {"ctrl+c"},
		"up":           {"up", "k"},
		"down":         {"down", "j"},
		"page-up":      {"pgup", "ctrl+u"},
		"page-down":    {"pgdown", "ctrl+d"},
		"home":         {"home", "g"},
		"end":          {"end", "G"},
		"focus-toggle": {"tab"},
		"next-room":    {"ctrl+n", "alt+down"},
		"prev-room":    {"ctrl+p", "alt+up"},
		"next-unread":  {"alt+a"},
		"filter":       {"ctrl+k"},
		"command":      {":"},
		"send":         {"enter"},
		"newline":      {"alt+enter"},
		"cancel":       {"esc"},
		"mark-read":    {"m"},
		"reply":        {"r"},
		"edit":         {"e"},
		"download":     {"d"},
	}
}

// LoadKeybindings loads a JSONC keybindings file and merges it over the
// defaults. Each value is either a single chord string or an array of
// chords; listing an action replaces its default chords entirely. An
// empty path returns the defaults.
func LoadKeybindings(path string) (Keybindings, error) {
	bindings := DefaultKeybindings()
	if path == "" {
		return bindings, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(jsonc.ToJSON(data), &raw); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	var errs []error
	for action, value := range raw {
		if _, ok := bindings[action]; !ok {
			errs = append(errs, fmt.Errorf("unknown action %q (known actions: %s)",
				action, strings.Join(slices.Sorted(maps.Keys(bindings)), ", ")))
			continue
		}
		chords, err := decodeChords(value)
		if err != nil {
			errs = append(errs, fmt.Errorf("action %q: %w", action, err))
			continue
		}
		bindings[action] = chords
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("%s: %w", path, errors.Join(errs...))
	}
	return bindings, nil
}

// decodeChords accepts "enter" or ["enter", "ctrl+m"].
func decodeChords(raw json.RawMessage) ([]string, error) {
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		if single == "" {
			return nil, fmt.Errorf("chord must not be empty")
		}
		return []string{single}, nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("value must be a chord string or an array of chord strings")
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("needs at least one chord")
	}
	for _, chord := range list {
		if chord == "" {
			return nil, fmt.Errorf("chord must not be empty")
		}
	}
	return list, nil
}
