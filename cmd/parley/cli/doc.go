// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli is the command framework for the parley binary: a
// [Command] tree with [pflag.FlagSet] factories, tabwriter help
// output, and Levenshtein typo suggestions for unknown commands and
// flags. It also holds the sealed session file that carries a
// profile's credentials between runs.
package cli
