// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for Parley.
//
// Configuration is loaded from a single YAML file specified by:
//   - PARLEY_CONFIG environment variable, or
//   - --config flag passed to the command
//
// There are no fallbacks or automatic discovery. This ensures
// deterministic, auditable configuration with no hidden overrides.
//
// The file declares one or more account profiles plus client-wide
// paths and behavior settings; a profile may override individual
// settings. Keybinding overrides live in a separate JSONC file (JSON
// with comments and trailing commas) referenced from the config.
package config
