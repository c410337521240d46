// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/parley-chat/parley/lib/ref"
)

// Config is the master configuration for Parley.
type Config struct {
	// DefaultProfile names the profile used when --profile is not
	// given. May be empty when only one profile exists.
	DefaultProfile string `yaml:"default_profile"`

	// Profiles maps profile names to accounts. At least one is
	// required.
	Profiles map[string]*Profile `yaml:"profiles"`

	// Paths configures directory locations.
	Paths PathsConfig `yaml:"paths"`

	// Settings configures client behavior, overridable per profile.
	Settings SettingsConfig `yaml:"settings"`

	// UI configures rendering.
	UI UIConfig `yaml:"ui"`

	// KeybindingsFile points at an optional JSONC keybinding override
	// file. Empty means built-in bindings.
	KeybindingsFile string `yaml:"keybindings_file"`
}

// Profile is one account on one homeserver.
type Profile struct {
	// UserID is the full Matrix user ID, such as "@ana:example.org".
	UserID string `yaml:"user_id"`

	// Homeserver is the base URL of the client-server API, such as
	// "https://matrix.example.org".
	Homeserver string `yaml:"homeserver"`

	// Settings overrides individual client-wide settings for this
	// profile. Absent fields inherit.
	Settings *SettingsOverrides `yaml:"settings,omitempty"`
}

// PathsConfig configures directory locations. Sessions, State, and
// Media default to subdirectories of Root.
type PathsConfig struct {
	// Root is the base directory for Parley data.
	Root string `yaml:"root"`

	// Sessions is where sealed session credentials are stored, one
	// file per profile.
	Sessions string `yaml:"sessions"`

	// State is where the per-profile sqlite state caches live.
	State string `yaml:"state"`

	// Media is the encrypted attachment cache, one subdirectory per
	// profile.
	Media string `yaml:"media"`

	// Logs is where the client writes its log file while the TUI owns
	// the terminal.
	Logs string `yaml:"logs"`
}

// SettingsConfig configures client behavior.
type SettingsConfig struct {
	// SendTyping shares this client's typing activity.
	SendTyping bool `yaml:"send_typing"`

	// ShareReceipts shares this client's read position.
	ShareReceipts bool `yaml:"share_receipts"`

	// ShowTyping renders the room's typing line.
	ShowTyping bool `yaml:"show_typing"`

	// ShowReceipts renders read receipts on messages.
	ShowReceipts bool `yaml:"show_receipts"`
}

// SettingsOverrides is SettingsConfig with every field optional, for
// per-profile overrides.
type SettingsOverrides struct {
	SendTyping    *bool `yaml:"send_typing,omitempty"`
	ShareReceipts *bool `yaml:"share_receipts,omitempty"`
	ShowTyping    *bool `yaml:"show_typing,omitempty"`
	ShowReceipts  *bool `yaml:"show_receipts,omitempty"`
}

// UIConfig configures rendering.
type UIConfig struct {
	// TimeFormat is the Go reference layout for message timestamps.
	// Default: "15:04".
	TimeFormat string `yaml:"time_format"`

	// Theme selects the color scheme: "auto", "dark", or "light".
	// Default: auto.
	Theme string `yaml:"theme"`

	// RoomListWidth is the room list pane width in columns.
	// Default: 28.
	RoomListWidth int `yaml:"room_list_width"`
}

// Default returns the default configuration. These defaults are the
// base the config file is merged onto; the file itself (with at least
// one profile) is still required.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	defaultRoot := filepath.Join(homeDir, ".local", "share", "parley")

	return &Config{
		Profiles: map[string]*Profile{},
		Paths: PathsConfig{
			Root:     defaultRoot,
			Sessions: filepath.Join(defaultRoot, "sessions"),
			State:    filepath.Join(defaultRoot, "state"),
			Media:    filepath.Join(defaultRoot, "media"),
			Logs:     filepath.Join(defaultRoot, "logs"),
		},
		Settings: SettingsConfig{
			SendTyping:    true,
			ShareReceipts: true,
			ShowTyping:    true,
			ShowReceipts:  true,
		},
		UI: UIConfig{
			TimeFormat:    "15:04",
			Theme:         "auto",
			RoomListWidth: 28,
		},
	}
}

// Load loads configuration from the PARLEY_CONFIG environment
// variable.
//
// This is the only way to load configuration without an explicit path.
// There are no fallbacks: if PARLEY_CONFIG is not set, this fails.
func Load() (*Config, error) {
	configPath := os.Getenv("PARLEY_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("PARLEY_CONFIG environment variable not set; " +
			"set it to the path of your parley.yaml config file, or use --config flag")
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path.
//
// The config file is the single source of truth. Environment variables
// do not override config values; the only expansion performed is
// ${VAR} and ${VAR:-default} in paths, for portability.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	cfg.expandVariables()
	return cfg, nil
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in
// paths. PARLEY_ROOT refers to the (already expanded) root, so
// dependent paths can be declared relative to it.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"PARLEY_ROOT": c.Paths.Root,
		"HOME":        os.Getenv("HOME"),
	}

	c.Paths.Root = expandVars(c.Paths.Root, vars)
	vars["PARLEY_ROOT"] = c.Paths.Root

	c.Paths.Sessions = expandVars(c.Paths.Sessions, vars)
	c.Paths.State = expandVars(c.Paths.State, vars)
	c.Paths.Media = expandVars(c.Paths.Media, vars)
	c.Paths.Logs = expandVars(c.Paths.Logs, vars)
	c.KeybindingsFile = expandVars(c.KeybindingsFile, vars)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars expands ${VAR} and ${VAR:-default} patterns. Provided
// vars win over the environment.
func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

var validThemes = []string{"auto", "dark", "light"}

// Validate checks the configuration for errors, collecting every
// problem rather than stopping at the first.
func (c *Config) Validate() error {
	var errs []error

	if len(c.Profiles) == 0 {
		errs = append(errs, fmt.Errorf("at least one profile is required"))
	}
	if c.DefaultProfile != "" {
		if _, ok := c.Profiles[c.DefaultProfile]; !ok {
			errs = append(errs, fmt.Errorf("default_profile %q is not a declared profile", c.DefaultProfile))
		}
	}
	for name, profile := range c.Profiles {
		if profile == nil {
			errs = append(errs, fmt.Errorf("profile %q is empty", name))
			continue
		}
		if _, err := ref.ParseUserID(profile.UserID); err != nil {
			errs = append(errs, fmt.Errorf("profile %q: %w", name, err))
		}
		if err := validateHomeserver(profile.Homeserver); err != nil {
			errs = append(errs, fmt.Errorf("profile %q: %w", name, err))
		}
	}

	if c.Paths.Root == "" {
		errs = append(errs, fmt.Errorf("paths.root is required"))
	}

	if !slices.Contains(validThemes, c.UI.Theme) {
		errs = append(errs, fmt.Errorf("ui.theme must be one of: %v", validThemes))
	}
	if c.UI.TimeFormat == "" {
		errs = append(errs, fmt.Errorf("ui.time_format is required"))
	}
	if c.UI.RoomListWidth < 0 {
		errs = append(errs, fmt.Errorf("ui.room_list_width must not be negative"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

func validateHomeserver(raw string) error {
	if raw == "" {
		return fmt.Errorf("homeserver is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("homeserver %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("homeserver %q: scheme must be http or https", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("homeserver %q: missing host", raw)
	}
	return nil
}

// ResolveProfile picks the profile to run: the named one, or the
// configured default, or the only one declared.
func (c *Config) ResolveProfile(name string) (string, *Profile, error) {
	if name == "" {
		name = c.DefaultProfile
	}
	if name == "" {
		if len(c.Profiles) == 1 {
			for only, profile := range c.Profiles {
				return only, profile, nil
			}
		}
		return "", nil, fmt.Errorf("no profile selected: set default_profile or pass --profile (have %d profiles)", len(c.Profiles))
	}
	profile, ok := c.Profiles[name]
	if !ok {
		return "", nil, fmt.Errorf("unknown profile %q", name)
	}
	return name, profile, nil
}

// SettingsFor returns the client settings with profile's overrides
// applied.
func (c *Config) SettingsFor(profile *Profile) SettingsConfig {
	settings := c.Settings
	if profile == nil || profile.Settings == nil {
		return settings
	}
	overrides := profile.Settings
	if overrides.SendTyping != nil {
		settings.SendTyping = *overrides.SendTyping
	}
	if overrides.ShareReceipts != nil {
		settings.ShareReceipts = *overrides.ShareReceipts
	}
	if overrides.ShowTyping != nil {
		settings.ShowTyping = *overrides.ShowTyping
	}
	if overrides.ShowReceipts != nil {
		settings.ShowReceipts = *overrides.ShowReceipts
	}
	return settings
}

// SessionPath returns the sealed session file for a profile.
func (c *Config) SessionPath(profile string) string {
	return filepath.Join(c.Paths.Sessions, profile+".session")
}

// StatePath returns the sqlite state cache for a profile.
func (c *Config) StatePath(profile string) string {
	return filepath.Join(c.Paths.State, profile+".db")
}

// MediaDir returns the attachment cache directory for a profile.
func (c *Config) MediaDir(profile string) string {
	return filepath.Join(c.Paths.Media, profile)
}

// LogPath returns the log file for a profile.
func (c *Config) LogPath(profile string) string {
	return filepath.Join(c.Paths.Logs, profile+".log")
}

// EnsurePaths creates all configured directories if they don't exist.
// Everything under Root holds chat history and session material, so
// directories are private to the user.
func (c *Config) EnsurePaths() error {
	paths := []string{
		c.Paths.Root,
		c.Paths.Sessions,
		c.Paths.State,
		c.Paths.Media,
		c.Paths.Logs,
	}

	for _, path := range paths {
		if path == "" {
			continue
		}
		if err := os.MkdirAll(path, 0o700); err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
	}
	return nil
}
