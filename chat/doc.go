// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

// Package chat is Parley's client core: the room state the UI renders,
// and the worker that keeps it current.
//
// State lives in a Store — a registry of per-room timelines, reaction
// tables, receipts, and typing sets, plus presence, verification, and
// settings — guarded by a single mutex that is never held across a
// network call. Timeline entries are ordered by (timestamp, event ID)
// keys, with unconfirmed local echoes keyed to sort after everything
// confirmed. Edits mutate entries in place, redactions swap the entry
// variant while keeping its key, and reactions aggregate in a side
// table; events arriving twice, out of order, or referencing unknown
// targets fold idempotently or drop silently.
//
// All network traffic funnels through one Worker goroutine that owns
// the messaging session. Other goroutines reach it through a
// Requester, whose calls block on one-shot reply channels. The
// worker's first task must be Init, which starts the sync long-poll,
// the pagination scheduler, and the receipt refresher; after that it
// serializes sends, joins, uploads, and verification signals, folds
// sync responses into the Store, and paginates history for rooms the
// UI marked as needing it — debounced, one in-flight fetch per room,
// failed pages requeued.
//
// RoomState layers the interactive commands over the Store and
// Requester: message selection, reply and edit targets, composer
// submission with markdown formatting, reaction add and remove, and
// attachment transfer.
package chat
