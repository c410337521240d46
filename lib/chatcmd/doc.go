// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

// Package chatcmd parses the in-app command line (the ":" prompt) into
// typed actions for the UI to execute.
//
// The central types are [Command], one named command with its argument
// validation, and [Registry], the full command set dispatched via
// [Registry.Dispatch]. Dispatch splits the input line with double-quote
// awareness, resolves the command name, and runs its parser, which
// returns a value from the closed [Action] set: wrapped chat-core
// actions (message, send, room, verify), attachment downloads, room
// membership changes, and window switches. The UI layer owns execution;
// this package never touches the network.
//
// When a user types an unknown command, dispatch computes Levenshtein
// edit distance against all known names and suggests the closest match
// (threshold: distance <= 3).
//
// A trailing "!" on a command name (":download!") sets the bang flag
// for commands that accept it; everything else rejects it.
package chatcmd
