// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

// Package ref provides strongly typed, immutable Matrix identifiers:
// user IDs, room IDs, room aliases, event IDs, device IDs, and server
// names.
//
// Raw identifier strings arrive from three places — configuration
// files, user input (command arguments like ":invite @alice:example.com"),
// and homeserver API responses — and are parsed into these types at the
// boundary. Everything past the boundary works with typed values, so a
// room ID can never be passed where a user ID is expected and invalid
// input is rejected with a useful error before any network call.
//
// All constructors validate structural format only (sigil, localpart,
// server). Parley talks to arbitrary federated homeservers and must
// accept any identifier those servers consider valid, including
// historical user IDs with unusual localparts.
//
// The canonical serialization form is the full Matrix identifier
// (@localpart:server, !opaque:server, #localpart:server, $opaque).
// JSON, YAML, and CBOR marshaling use this form via
// encoding.TextMarshaler.
package ref
