// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

// Package chatui implements the Parley terminal client. Built on
// bubbletea (Elm architecture), it renders a split view: the room list
// on the left, the focused room's timeline and composer on the right,
// and a status bar that doubles as the command feedback line.
//
// The model owns no network state. It reads the [chat.Store] for
// everything it draws and submits every network operation through a
// [chat.RoomState] inside a tea.Cmd, so the event loop never blocks on
// the homeserver. At most one command per room is in flight at a time;
// the model rejects a second with a status notice rather than queueing
// it, since the chat worker serializes operations anyway.
//
// The ":" prompt parses through [chatcmd.Registry] and the resulting
// action dispatches here. Full-screen windows (members, verifications,
// the welcome screen, space contents) temporarily replace the split
// view and close on escape.
//
// Sync progress arrives on a refresh channel: the hosting binary pokes
// it from the worker's OnSync hook and the model re-reads the store.
package chatui
