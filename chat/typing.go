// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package chat

import (
	"fmt"
	"time"

	"github.com/parley-chat/parley/lib/ref"
)

// TypingStaleAfter is how long a typing notice stays renderable after
// the last ephemeral update. Homeservers refresh active notices well
// inside this window, so an expired stamp means everyone stopped.
const TypingStaleAfter = 4 * time.Second

// TypingState is the current set of typing users in a room, stamped
// with the time of the last update. Each update replaces the whole set.
type TypingState struct {
	users []ref.UserID
	stamp time.Time
}

// Users returns the typing users as of the last update, ignoring
// staleness.
func (t *TypingState) Users() []ref.UserID {
	return t.users
}

// set replaces the typing set, dropping excluded (the local user).
func (t *TypingState) set(users []ref.UserID, excluded ref.UserID, now time.Time) {
	filtered := make([]ref.UserID, 0, len(users))
	for _, user := range users {
		if user == excluded {
			continue
		}
		filtered = append(filtered, user)
	}
	t.users = filtered
	t.stamp = now
}

// Render returns the one-line typing notice for the state, or "" when
// nobody is typing or the state is stale.
func (t *TypingState) Render(now time.Time) string {
	if t.stamp.IsZero() || now.Sub(t.stamp) >= TypingStaleAfter {
		return ""
	}
	switch n := len(t.users); {
	case n == 0:
		return ""
	case n == 1:
		return fmt.Sprintf("%s is typing...", t.users[0])
	case n == 2:
		return fmt.Sprintf("%s and %s are typing...", t.users[0], t.users[1])
	case n < 5:
		return "Several people are typing..."
	default:
		return "Many people are typing..."
	}
}
