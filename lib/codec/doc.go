// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides Parley's standard CBOR encoding configuration.
//
// Parley uses two serialization formats with a clear boundary:
//
//   - JSON for the external interface: the Matrix Client-Server API.
//   - CBOR for internal storage: the SQLite state cache (sync token,
//     room summaries, timeline snapshots) and the sealed session file.
//
// This package provides the shared CBOR encoding and decoding modes so
// that every Parley package encodes identically without duplicating
// configuration. The encoder uses Core Deterministic Encoding (RFC 8949
// §4.2): sorted map keys, smallest integer encoding, no
// indefinite-length items. Same logical data always produces identical
// bytes, which keeps cache rows stable across rewrites.
//
// For buffer-oriented operations (cache rows, session files):
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// For stream-oriented operations:
//
//	encoder := codec.NewEncoder(w)
//	decoder := codec.NewDecoder(r)
//
// # Struct Tag Rules
//
// The struct tag on a type documents its serialization format:
//
//   - `cbor` tag: this type is ONLY ever serialized as CBOR. Examples:
//     state cache rows, timeline snapshot envelopes.
//   - `json` tag: this type may be serialized as BOTH JSON and CBOR.
//     fxamacker/cbor v2 reads `json` tags as fallback when `cbor` tags
//     are absent, so a single `json` tag controls field naming and
//     omitempty for both formats. Examples: Matrix event content
//     cached verbatim, the session file shared with --json output.
//
// Never use both `cbor` and `json` tags on the same field. The tag
// choice documents the contract — doubling up is noise that obscures
// whether a type participates in JSON serialization.
package codec
