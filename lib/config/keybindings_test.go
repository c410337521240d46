// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
)

func writeKeybindings(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "keys.jsonc")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing keybindings: %v", err)
	}
	return path
}

func TestDefaultKeybindings(t *testing.T) {
	bindings := DefaultKeybindings()

	if !slices.Equal(bindings["quit"], []string{"ctrl+c"}) {
		t.Errorf("quit = %v", bindings["quit"])
	}
	for action, chords := range bindings {
		if len(chords) == 0 {
			t.Errorf("action %q has no chords", action)
		}
		for _, chord := range chords {
			if chord == "" {
				t.Errorf("action %q has an empty chord", action)
			}
		}
	}
}

func TestLoadKeybindingsEmptyPath(t *testing.T) {
	bindings, err := LoadKeybindings("")
	if err != nil {
		t.Fatalf("LoadKeybindings: %v", err)
	}
	if !slices.Equal(bindings["send"], DefaultKeybindings()["send"]) {
		t.Errorf("empty path should return defaults, got send = %v", bindings["send"])
	}
}

func TestLoadKeybindings(t *testing.T) {
	path := writeKeybindings(t, `{
	// Swap send and newline; vim-style quit.
	"send": ["alt+enter"],
	"newline": "enter",
	"quit": ["ctrl+c", "ctrl+q"], // trailing comma below is fine
}`)

	bindings, err := LoadKeybindings(path)
	if err != nil {
		t.Fatalf("LoadKeybindings: %v", err)
	}

	if !slices.Equal(bindings["send"], []string{"alt+enter"}) {
		t.Errorf("send = %v", bindings["send"])
	}
	// A bare string means a single chord.
	if !slices.Equal(bindings["newline"], []string{"enter"}) {
		t.Errorf("newline = %v", bindings["newline"])
	}
	if !slices.Equal(bindings["quit"], []string{"ctrl+c", "ctrl+q"}) {
		t.Errorf("quit = %v", bindings["quit"])
	}
	// Unlisted actions keep their defaults.
	if !slices.Equal(bindings["cancel"], []string{"esc"}) {
		t.Errorf("cancel = %v", bindings["cancel"])
	}
}

func TestLoadKeybindingsUnknownAction(t *testing.T) {
	path := writeKeybindings(t, `{"teleport": "ctrl+t"}`)

	_, err := LoadKeybindings(path)
	if err == nil {
		t.Fatal("unknown action should fail")
	}
	if !strings.Contains(err.Error(), `"teleport"`) {
		t.Errorf("error should name the action: %v", err)
	}
	if !strings.Contains(err.Error(), "quit") {
		t.Errorf("error should list known actions: %v", err)
	}
}

func TestLoadKeybindingsBadValues(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"number value", `{"quit": 3}`},
		{"empty array", `{"quit": []}`},
		{"empty chord", `{"quit": ""}`},
		{"empty chord in array", `{"quit": ["ctrl+c", ""]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeKeybindings(t, tt.content)
			if _, err := LoadKeybindings(path); err == nil {
				t.Fatal("LoadKeybindings should fail")
			}
		})
	}
}

func TestLoadKeybindingsMissingFile(t *testing.T) {
	_, err := LoadKeybindings(filepath.Join(t.TempDir(), "nope.jsonc"))
	if err == nil {
		t.Fatal("missing file should fail")
	}
}
