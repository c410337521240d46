// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import "encoding/json"

// SyncFilter configures what /sync returns. Parley passes the filter
// inline as JSON on every request rather than uploading it, so no
// server-side filter ID needs to survive across restarts.
//
// The zero value means no restrictions (server defaults).
type SyncFilter struct {
	// TimelineLimit caps the number of timeline events per room per
	// /sync response. Zero means the server default. When a room has
	// more new events than the limit, the response is marked limited
	// and carries a prev_batch token for backfilling the gap.
	TimelineLimit int

	// LazyLoadMembers asks the server to send only the m.room.member
	// state for senders that actually appear in the timeline, instead
	// of full room membership. Large rooms are unusable without this.
	LazyLoadMembers bool
}

// Encode renders the filter as the inline JSON string for the /sync
// filter query parameter. Returns "" for the zero filter so callers
// can drop the parameter entirely.
func (f SyncFilter) Encode() string {
	if f.TimelineLimit == 0 && !f.LazyLoadMembers {
		return ""
	}

	roomFilter := map[string]any{}
	if f.TimelineLimit > 0 {
		timeline := map[string]any{"limit": f.TimelineLimit}
		if f.LazyLoadMembers {
			timeline["lazy_load_members"] = true
		}
		roomFilter["timeline"] = timeline
	}
	if f.LazyLoadMembers {
		roomFilter["state"] = map[string]any{"lazy_load_members": true}
	}

	data, _ := json.Marshal(map[string]any{"room": roomFilter})
	return string(data)
}
