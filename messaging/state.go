// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/parley-chat/parley/lib/ref"
)

// GetState reads a typed state event from a room. It calls
// GetStateEvent on the session and unmarshals the raw JSON content
// into T:
//
//	name, err := messaging.GetState[messaging.NameContent](ctx, session, roomID, messaging.EventTypeName, "")
//	create, err := messaging.GetState[messaging.CreateContent](ctx, session, roomID, messaging.EventTypeCreate, "")
//
// Returns an error if the state event does not exist (M_NOT_FOUND) or
// if the content cannot be unmarshaled into T.
func GetState[T any](ctx context.Context, session Session, roomID ref.RoomID, eventType ref.EventType, stateKey string) (T, error) {
	var zero T
	content, err := session.GetStateEvent(ctx, roomID, eventType, stateKey)
	if err != nil {
		return zero, fmt.Errorf("reading %s[%q] from room %s: %w", eventType, stateKey, roomID, err)
	}
	var result T
	if err := json.Unmarshal(content, &result); err != nil {
		return zero, fmt.Errorf("unmarshaling %s from room %s: %w", eventType, roomID, err)
	}
	return result, nil
}

// DecodeContent unmarshals an event's raw content into the typed
// content struct for its event type. An event with no content (a
// redacted event, or a stripped invite-state event with empty content)
// decodes to the zero value without error.
func DecodeContent[T any](event Event) (T, error) {
	var content T
	if len(event.Content) == 0 {
		return content, nil
	}
	if err := json.Unmarshal(event.Content, &content); err != nil {
		return content, fmt.Errorf("decoding %s content: %w", event.Type, err)
	}
	return content, nil
}

// RedactsTarget extracts the event a redaction removes. Room versions
// 11 and later carry the target in content; earlier versions carry it
// at the event's top level. Returns the zero EventID if neither is
// present.
func RedactsTarget(event Event) ref.EventID {
	if !event.Redacts.IsZero() {
		return event.Redacts
	}
	content, err := DecodeContent[RedactionContent](event)
	if err != nil {
		return ref.EventID{}
	}
	return content.Redacts
}
