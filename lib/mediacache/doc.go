// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

// Package mediacache stores downloaded attachments encrypted at rest.
//
// The cache key is the attachment's mxc URI. Each entry becomes one
// blob file named by a keyed BLAKE3 hash of the URI, so the on-disk
// layout reveals neither which media was fetched nor from where. Blob
// contents are compressed (probed per entry: zstd for text-like
// payloads, LZ4 for mixed, none for already-compressed media) and then
// sealed with XChaCha20-Poly1305 under a per-entry key derived from
// the profile's media key via HKDF-SHA256.
//
// Opening an attachment requires plaintext on disk for the viewer, so
// reads decrypt into a runtime directory that exists only for the
// session: it is recreated empty on open and removed on close.
//
// A small SQLite index carries the per-entry metadata the blob name
// cannot (plaintext size, compression tag, last use). The index also
// drives least-recently-used eviction when the cache exceeds its byte
// budget. Like the rest of the on-disk state, the cache is disposable:
// deleting the directory only means re-downloading.
package mediacache
