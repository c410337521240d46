// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/parley-chat/parley/lib/ref"
)

// Session is the interface the chat core and command layer use to talk
// to the homeserver. *DirectSession is the production implementation;
// tests substitute scripted fakes to control sync and send timing.
//
// Persistence-only methods (AccessToken, DeviceID) are not part of this
// interface. Code saving the session to disk should type-assert to
// *DirectSession.
type Session interface {
	// UserID returns the fully-qualified user ID this session
	// authenticates as.
	UserID() ref.UserID

	// Close releases any resources held by the session. Idempotent.
	Close() error

	// WhoAmI validates the session and returns the user ID it belongs to.
	WhoAmI(ctx context.Context) (ref.UserID, error)

	// Logout invalidates the access token server-side.
	Logout(ctx context.Context) error

	// Sync performs one /sync request, long-polling when options.Since
	// is set.
	Sync(ctx context.Context, options SyncOptions) (*SyncResponse, error)

	// RoomMessages fetches a page of room history.
	RoomMessages(ctx context.Context, roomID ref.RoomID, options RoomMessagesOptions) (*RoomMessagesResponse, error)

	// SendMessage sends an m.room.message event. Returns the event ID.
	SendMessage(ctx context.Context, roomID ref.RoomID, content MessageContent) (ref.EventID, error)

	// SendEvent sends an event of any type. Returns the event ID.
	SendEvent(ctx context.Context, roomID ref.RoomID, eventType ref.EventType, content any) (ref.EventID, error)

	// RedactEvent removes the content of a previously sent event.
	// Returns the redaction event's ID.
	RedactEvent(ctx context.Context, roomID ref.RoomID, eventID ref.EventID, reason string) (ref.EventID, error)

	// SendStateEvent sets a state event. Returns the event ID.
	SendStateEvent(ctx context.Context, roomID ref.RoomID, eventType ref.EventType, stateKey string, content any) (ref.EventID, error)

	// GetStateEvent fetches a state event's content as raw JSON.
	GetStateEvent(ctx context.Context, roomID ref.RoomID, eventType ref.EventType, stateKey string) (json.RawMessage, error)

	// GetRoomState fetches all current state events of a room.
	GetRoomState(ctx context.Context, roomID ref.RoomID) ([]Event, error)

	// SendTyping starts or stops the user's typing notification.
	SendTyping(ctx context.Context, roomID ref.RoomID, typing bool, timeout time.Duration) error

	// SendReceipt publishes a public read receipt on an event.
	SendReceipt(ctx context.Context, roomID ref.RoomID, eventID ref.EventID) error

	// SetReadMarkers updates the fully-read marker and optionally a
	// read receipt in one request.
	SetReadMarkers(ctx context.Context, roomID ref.RoomID, fullyRead, read ref.EventID) error

	// SendToDevice delivers an event to specific devices, outside any
	// room.
	SendToDevice(ctx context.Context, eventType ref.EventType, messages ToDeviceMessages) error

	// CreateRoom creates a new room.
	CreateRoom(ctx context.Context, request CreateRoomRequest) (*CreateRoomResponse, error)

	// JoinRoom joins a room by ID. To join by alias, resolve with
	// ResolveAlias first.
	JoinRoom(ctx context.Context, roomID ref.RoomID) (ref.RoomID, error)

	// LeaveRoom leaves a room.
	LeaveRoom(ctx context.Context, roomID ref.RoomID) error

	// InviteUser invites a user to a room.
	InviteUser(ctx context.Context, roomID ref.RoomID, userID ref.UserID) error

	// KickUser removes a user from a room.
	KickUser(ctx context.Context, roomID ref.RoomID, userID ref.UserID, reason string) error

	// JoinedRooms returns the IDs of all rooms the user has joined.
	JoinedRooms(ctx context.Context) ([]ref.RoomID, error)

	// GetRoomMembers returns the current members of a room.
	GetRoomMembers(ctx context.Context, roomID ref.RoomID) ([]RoomMember, error)

	// ResolveAlias resolves a room alias to a room ID.
	ResolveAlias(ctx context.Context, alias ref.RoomAlias) (ref.RoomID, error)

	// RoomHierarchy pages through the rooms of a space.
	RoomHierarchy(ctx context.Context, roomID ref.RoomID, from string, limit int) (*HierarchyResponse, error)

	// RoomTags returns the user's tags on a room.
	RoomTags(ctx context.Context, roomID ref.RoomID) (map[string]Tag, error)

	// SetRoomTag adds or updates a tag on a room.
	SetRoomTag(ctx context.Context, roomID ref.RoomID, tag string, order *float64) error

	// DeleteRoomTag removes a tag from a room.
	DeleteRoomTag(ctx context.Context, roomID ref.RoomID, tag string) error

	// GetAccountData reads a global account-data event into v.
	GetAccountData(ctx context.Context, eventType ref.EventType, v any) error

	// SetAccountData replaces a global account-data event.
	SetAccountData(ctx context.Context, eventType ref.EventType, content any) error

	// GetDisplayName fetches a user's display name.
	GetDisplayName(ctx context.Context, userID ref.UserID) (string, error)

	// SetDisplayName sets the session user's display name.
	SetDisplayName(ctx context.Context, displayName string) error

	// SetPresence publishes the session user's presence state.
	SetPresence(ctx context.Context, presence, statusMsg string) error

	// UploadMedia uploads content to the media repository and returns
	// its mxc:// URI.
	UploadMedia(ctx context.Context, contentType, filename string, content io.Reader) (string, error)

	// DownloadMedia streams the content behind an mxc:// URI. The
	// caller must close the returned reader.
	DownloadMedia(ctx context.Context, mxcURI string) (io.ReadCloser, string, error)
}

// Compile-time check: *DirectSession implements Session.
var _ Session = (*DirectSession)(nil)
