// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

// Package messaging wraps the Matrix client-server API surface Parley
// consumes.
//
// The package provides two core types. [Client] is an unauthenticated
// connection to a homeserver that handles password login and token
// restore, returning authenticated [DirectSession] values. Client holds
// the homeserver URL and HTTP transport, shared across all sessions
// derived from it.
//
// [DirectSession] wraps a Client with an access token for authenticated
// operations: incremental sync with long-polling, backward history
// pagination, sending messages (plain, formatted, replies, edits via
// m.replace, reactions via m.annotation), redaction, typing notices,
// read receipts and fully-read markers, room management (create, join,
// leave, invite, kick, alias resolution, space hierarchies), room tags
// and account data, profile and presence, media upload and download,
// and to-device delivery for verification signaling.
//
// Sessions are lightweight: a pointer to the parent Client plus the
// access token in mmap-backed secret.Buffer memory, locked against swap
// and excluded from core dumps. Callers must Close a session to release
// the protected memory.
//
// All API errors are returned as [*MatrixError] with the standard
// Matrix error code (M_FORBIDDEN, M_NOT_FOUND, etc.) and HTTP status
// code; [IsMatrixError] tests for a specific code. Request URLs are
// built by string concatenation rather than url.URL to avoid
// double-encoding path segments that contain URL-encoded characters
// (room IDs and aliases).
//
// Event content stays raw JSON on [Event]; [DecodeContent] unmarshals
// it into the typed content struct for the event type, and [GetState]
// does the same for state reads through a [Session].
package messaging
