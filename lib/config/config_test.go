// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "parley.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if !cfg.Settings.SendTyping || !cfg.Settings.ShareReceipts {
		t.Errorf("sharing settings should default on: %+v", cfg.Settings)
	}
	if !cfg.Settings.ShowTyping || !cfg.Settings.ShowReceipts {
		t.Errorf("display settings should default on: %+v", cfg.Settings)
	}
	if cfg.UI.Theme != "auto" {
		t.Errorf("Theme = %q, want auto", cfg.UI.Theme)
	}
	if cfg.UI.TimeFormat != "15:04" {
		t.Errorf("TimeFormat = %q, want 15:04", cfg.UI.TimeFormat)
	}
	if cfg.UI.RoomListWidth != 28 {
		t.Errorf("RoomListWidth = %d, want 28", cfg.UI.RoomListWidth)
	}
	if cfg.Paths.Root == "" {
		t.Error("Paths.Root should have a default")
	}
	if want := filepath.Join(cfg.Paths.Root, "sessions"); cfg.Paths.Sessions != want {
		t.Errorf("Paths.Sessions = %q, want %q", cfg.Paths.Sessions, want)
	}
}

func TestLoadRequiresEnvVar(t *testing.T) {
	t.Setenv("PARLEY_CONFIG", "")

	_, err := Load()
	if err == nil {
		t.Fatal("Load should fail without PARLEY_CONFIG")
	}
	if !strings.Contains(err.Error(), "PARLEY_CONFIG") {
		t.Errorf("error should name the variable: %v", err)
	}
}

func TestLoadFromEnvVar(t *testing.T) {
	path := writeConfig(t, `
default_profile: home
profiles:
  home:
    user_id: "@ana:example.org"
    homeserver: "https://matrix.example.org"
`)
	t.Setenv("PARLEY_CONFIG", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DefaultProfile != "home" {
		t.Errorf("DefaultProfile = %q, want home", cfg.DefaultProfile)
	}
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
default_profile: work
profiles:
  work:
    user_id: "@ana:corp.example"
    homeserver: "https://matrix.corp.example"
    settings:
      send_typing: false
  home:
    user_id: "@ana:example.org"
    homeserver: "https://matrix.example.org"
paths:
  root: /tmp/parley-test
  media: "${PARLEY_ROOT}/attachments"
ui:
  theme: dark
  room_list_width: 34
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	if len(cfg.Profiles) != 2 {
		t.Fatalf("got %d profiles, want 2", len(cfg.Profiles))
	}
	work := cfg.Profiles["work"]
	if work.UserID != "@ana:corp.example" {
		t.Errorf("UserID = %q", work.UserID)
	}
	if work.Homeserver != "https://matrix.corp.example" {
		t.Errorf("Homeserver = %q", work.Homeserver)
	}

	// Unset paths keep their root-derived defaults; set ones expand
	// ${PARLEY_ROOT} against the configured root.
	if cfg.Paths.Media != "/tmp/parley-test/attachments" {
		t.Errorf("Paths.Media = %q", cfg.Paths.Media)
	}

	// File settings merge over defaults.
	if cfg.UI.Theme != "dark" {
		t.Errorf("Theme = %q, want dark", cfg.UI.Theme)
	}
	if cfg.UI.RoomListWidth != 34 {
		t.Errorf("RoomListWidth = %d, want 34", cfg.UI.RoomListWidth)
	}
	if cfg.UI.TimeFormat != "15:04" {
		t.Errorf("TimeFormat = %q, want default 15:04", cfg.UI.TimeFormat)
	}
}

func TestLoadFileMissing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("LoadFile should fail on a missing file")
	}
}

func TestExpandVariables(t *testing.T) {
	t.Run("env var with default", func(t *testing.T) {
		t.Setenv("PARLEY_TEST_DIR", "/from-env")
		cfg := Default()
		cfg.Paths.Root = "${PARLEY_TEST_DIR}/parley"
		cfg.Paths.Logs = "${PARLEY_TEST_UNSET:-/fallback}/logs"
		cfg.expandVariables()

		if cfg.Paths.Root != "/from-env/parley" {
			t.Errorf("Root = %q", cfg.Paths.Root)
		}
		if cfg.Paths.Logs != "/fallback/logs" {
			t.Errorf("Logs = %q", cfg.Paths.Logs)
		}
	})

	t.Run("builtin wins over environment", func(t *testing.T) {
		t.Setenv("PARLEY_ROOT", "/from-env")
		cfg := Default()
		cfg.Paths.Root = "/configured"
		cfg.Paths.State = "${PARLEY_ROOT}/state"
		cfg.expandVariables()

		if cfg.Paths.State != "/configured/state" {
			t.Errorf("State = %q, want /configured/state", cfg.Paths.State)
		}
	})

	t.Run("keybindings file expands too", func(t *testing.T) {
		cfg := Default()
		cfg.Paths.Root = "/data"
		cfg.KeybindingsFile = "${PARLEY_ROOT}/keys.jsonc"
		cfg.expandVariables()

		if cfg.KeybindingsFile != "/data/keys.jsonc" {
			t.Errorf("KeybindingsFile = %q", cfg.KeybindingsFile)
		}
	})
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := Default()
		cfg.DefaultProfile = "home"
		cfg.Profiles["home"] = &Profile{
			UserID:     "@ana:example.org",
			Homeserver: "https://matrix.example.org",
		}
		return cfg
	}

	if err := valid().Validate(); err != nil {
		t.Fatalf("valid config should pass: %v", err)
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "no profiles",
			mutate:  func(c *Config) { c.Profiles = nil; c.DefaultProfile = "" },
			wantErr: "at least one profile",
		},
		{
			name:    "unknown default profile",
			mutate:  func(c *Config) { c.DefaultProfile = "missing" },
			wantErr: `default_profile "missing"`,
		},
		{
			name:    "bad user id",
			mutate:  func(c *Config) { c.Profiles["home"].UserID = "ana" },
			wantErr: `profile "home"`,
		},
		{
			name:    "missing homeserver",
			mutate:  func(c *Config) { c.Profiles["home"].Homeserver = "" },
			wantErr: "homeserver is required",
		},
		{
			name:    "homeserver bad scheme",
			mutate:  func(c *Config) { c.Profiles["home"].Homeserver = "matrix.example.org" },
			wantErr: "scheme must be http or https",
		},
		{
			name:    "bad theme",
			mutate:  func(c *Config) { c.UI.Theme = "solarized" },
			wantErr: "ui.theme",
		},
		{
			name:    "negative room list width",
			mutate:  func(c *Config) { c.UI.RoomListWidth = -1 },
			wantErr: "room_list_width",
		},
		{
			name:    "empty root",
			mutate:  func(c *Config) { c.Paths.Root = "" },
			wantErr: "paths.root",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate should fail")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q should contain %q", err, tt.wantErr)
			}
		})
	}

	t.Run("collects multiple errors", func(t *testing.T) {
		cfg := valid()
		cfg.UI.Theme = "solarized"
		cfg.Profiles["home"].Homeserver = ""
		err := cfg.Validate()
		if err == nil {
			t.Fatal("Validate should fail")
		}
		for _, want := range []string{"ui.theme", "homeserver is required"} {
			if !strings.Contains(err.Error(), want) {
				t.Errorf("error %q should contain %q", err, want)
			}
		}
	})
}

func TestResolveProfile(t *testing.T) {
	cfg := Default()
	cfg.Profiles["home"] = &Profile{UserID: "@ana:example.org", Homeserver: "https://h"}
	cfg.Profiles["work"] = &Profile{UserID: "@ana:corp.example", Homeserver: "https://w"}

	t.Run("named", func(t *testing.T) {
		name, profile, err := cfg.ResolveProfile("work")
		if err != nil {
			t.Fatalf("ResolveProfile: %v", err)
		}
		if name != "work" || profile.UserID != "@ana:corp.example" {
			t.Errorf("got %q, %+v", name, profile)
		}
	})

	t.Run("falls back to default_profile", func(t *testing.T) {
		cfg.DefaultProfile = "home"
		defer func() { cfg.DefaultProfile = "" }()

		name, _, err := cfg.ResolveProfile("")
		if err != nil {
			t.Fatalf("ResolveProfile: %v", err)
		}
		if name != "home" {
			t.Errorf("name = %q, want home", name)
		}
	})

	t.Run("ambiguous without default", func(t *testing.T) {
		_, _, err := cfg.ResolveProfile("")
		if err == nil {
			t.Fatal("should fail with two profiles and no default")
		}
	})

	t.Run("single profile needs no default", func(t *testing.T) {
		single := Default()
		single.Profiles["only"] = &Profile{UserID: "@solo:example.org", Homeserver: "https://h"}

		name, _, err := single.ResolveProfile("")
		if err != nil {
			t.Fatalf("ResolveProfile: %v", err)
		}
		if name != "only" {
			t.Errorf("name = %q, want only", name)
		}
	})

	t.Run("unknown", func(t *testing.T) {
		_, _, err := cfg.ResolveProfile("nope")
		if err == nil || !strings.Contains(err.Error(), `"nope"`) {
			t.Errorf("err = %v", err)
		}
	})
}

func TestSettingsFor(t *testing.T) {
	cfg := Default()

	t.Run("no overrides", func(t *testing.T) {
		got := cfg.SettingsFor(&Profile{})
		if got != cfg.Settings {
			t.Errorf("got %+v, want base settings", got)
		}
	})

	t.Run("partial override", func(t *testing.T) {
		off := false
		profile := &Profile{Settings: &SettingsOverrides{SendTyping: &off}}
		got := cfg.SettingsFor(profile)
		if got.SendTyping {
			t.Error("SendTyping should be overridden off")
		}
		if !got.ShareReceipts || !got.ShowTyping || !got.ShowReceipts {
			t.Errorf("untouched settings should inherit: %+v", got)
		}
	})

	t.Run("nil profile", func(t *testing.T) {
		if got := cfg.SettingsFor(nil); got != cfg.Settings {
			t.Errorf("got %+v, want base settings", got)
		}
	})
}

func TestPathHelpers(t *testing.T) {
	cfg := Default()
	cfg.Paths.Root = "/data"
	cfg.Paths.Sessions = "/data/sessions"
	cfg.Paths.State = "/data/state"
	cfg.Paths.Media = "/data/media"
	cfg.Paths.Logs = "/data/logs"

	if got := cfg.SessionPath("home"); got != "/data/sessions/home.session" {
		t.Errorf("SessionPath = %q", got)
	}
	if got := cfg.StatePath("home"); got != "/data/state/home.db" {
		t.Errorf("StatePath = %q", got)
	}
	if got := cfg.MediaDir("home"); got != "/data/media/home" {
		t.Errorf("MediaDir = %q", got)
	}
	if got := cfg.LogPath("home"); got != "/data/logs/home.log" {
		t.Errorf("LogPath = %q", got)
	}
}

func TestEnsurePaths(t *testing.T) {
	root := t.TempDir()
	cfg := Default()
	cfg.Paths = PathsConfig{
		Root:     filepath.Join(root, "parley"),
		Sessions: filepath.Join(root, "parley", "sessions"),
		State:    filepath.Join(root, "parley", "state"),
		Media:    filepath.Join(root, "parley", "media"),
		Logs:     filepath.Join(root, "parley", "logs"),
	}

	if err := cfg.EnsurePaths(); err != nil {
		t.Fatalf("EnsurePaths: %v", err)
	}
	for _, dir := range []string{cfg.Paths.Sessions, cfg.Paths.State, cfg.Paths.Media, cfg.Paths.Logs} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("stat %s: %v", dir, err)
		}
		if !info.IsDir() {
			t.Errorf("%s is not a directory", dir)
		}
		if perm := info.Mode().Perm(); perm != 0o700 {
			t.Errorf("%s has mode %o, want 0700", dir, perm)
		}
	}
}
