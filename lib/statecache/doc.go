// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

// Package statecache persists sync state between runs so the client
// starts warm: the room list renders before the first /sync response
// arrives, recent timelines render without a history fetch, and sync
// resumes from the stored token instead of starting over.
//
// Each profile gets its own SQLite database (profile.db under the
// configured state directory) holding three things:
//
//   - the sync token, written after every applied /sync response
//   - one summary row per room (name, membership, unread counts, tags)
//   - a compressed CBOR snapshot of each room's most recent timeline
//     events
//
// Timeline snapshots store raw events, not folded messages. On
// restart the application replays them through the normal ingest
// path, so edit folding, redactions, and reaction grouping behave
// identically for cached and live events.
//
// Everything here is a cache. Deleting the database loses no data the
// homeserver cannot resend; corruption is handled by dropping the file
// and performing a cold initial sync.
package statecache
