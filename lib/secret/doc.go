// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

// Package secret provides a memory-safe buffer for sensitive data:
// login passwords, homeserver access tokens, and the age identity that
// seals the session file.
//
// [Buffer] allocates memory outside the Go heap via mmap(MAP_ANONYMOUS),
// locks it into physical RAM via mlock (preventing swap), and marks it
// excluded from core dumps via madvise(MADV_DONTDUMP). On Close, the
// memory is zeroed, unlocked, and unmapped. Because the memory lives
// outside the Go heap, the garbage collector cannot copy or relocate
// it, guaranteeing secret material does not persist after release.
//
// Constructors:
//
//   - [New] -- allocates a zero-filled buffer of a given size
//   - [NewFromBytes] -- copies into protected memory, zeros the source
//   - [ReadFromPath] -- reads a file (or stdin with "-"), trims whitespace
//
// Access via [Buffer.Bytes] (slice into mmap region) or
// [Buffer.String] (heap copy for API boundaries). [Zero] wipes an
// ordinary byte slice in place for transient secrets that never enter
// a Buffer. After Close, any access panics. Close is idempotent.
//
// Depends on golang.org/x/sys/unix. No Parley-internal dependencies.
// Imported by lib/sealed for age identity protection and by messaging
// for access tokens.
package secret
