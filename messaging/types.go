// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/parley-chat/parley/lib/ref"
)

// Event types Parley sends and folds. Room events carry an event ID and
// origin server timestamp; ephemeral and account-data events carry only
// a type and content.
const (
	EventTypeMessage        ref.EventType = "m.room.message"
	EventTypeEncrypted      ref.EventType = "m.room.encrypted"
	EventTypeReaction       ref.EventType = "m.reaction"
	EventTypeRedaction      ref.EventType = "m.room.redaction"
	EventTypeMember         ref.EventType = "m.room.member"
	EventTypeName           ref.EventType = "m.room.name"
	EventTypeTopic          ref.EventType = "m.room.topic"
	EventTypeCanonicalAlias ref.EventType = "m.room.canonical_alias"
	EventTypeCreate         ref.EventType = "m.room.create"

	EventTypeTyping  ref.EventType = "m.typing"
	EventTypeReceipt ref.EventType = "m.receipt"

	EventTypeTag       ref.EventType = "m.tag"
	EventTypeDirect    ref.EventType = "m.direct"
	EventTypeFullyRead ref.EventType = "m.fully_read"
	EventTypePresence  ref.EventType = "m.presence"
)

// To-device event types for interactive verification signaling. Parley
// routes these between devices; the short-auth-string computation itself
// happens in the verification collaborator.
const (
	EventTypeVerificationRequest ref.EventType = "m.key.verification.request"
	EventTypeVerificationReady   ref.EventType = "m.key.verification.ready"
	EventTypeVerificationStart   ref.EventType = "m.key.verification.start"
	EventTypeVerificationCancel  ref.EventType = "m.key.verification.cancel"
	EventTypeVerificationDone    ref.EventType = "m.key.verification.done"
)

// Message types within m.room.message content.
const (
	MsgTypeText   = "m.text"
	MsgTypeEmote  = "m.emote"
	MsgTypeNotice = "m.notice"
	MsgTypeImage  = "m.image"
	MsgTypeFile   = "m.file"
	MsgTypeAudio  = "m.audio"
	MsgTypeVideo  = "m.video"
)

// Relation types within m.relates_to.
const (
	RelTypeReplace    = "m.replace"
	RelTypeAnnotation = "m.annotation"
)

// FormatHTML is the only format value defined for formatted message
// bodies.
const FormatHTML = "org.matrix.custom.html"

// Room tag names. User-defined tags use the "u." prefix.
const (
	TagFavourite    = "m.favourite"
	TagLowPriority  = "m.lowpriority"
	TagServerNotice = "m.server_notice"
)

// RoomTypeSpace marks a room as a space in m.room.create content.
const RoomTypeSpace = "m.space"

// Presence states.
const (
	PresenceOnline      = "online"
	PresenceOffline     = "offline"
	PresenceUnavailable = "unavailable"
)

// ---- Authentication ----

// LoginRequest is the body of POST /login for password authentication.
type LoginRequest struct {
	Type                     string          `json:"type"`
	Identifier               LoginIdentifier `json:"identifier"`
	Password                 string          `json:"password"`
	DeviceID                 string          `json:"device_id,omitempty"`
	InitialDeviceDisplayName string          `json:"initial_device_display_name,omitempty"`
}

// LoginIdentifier identifies the account logging in. User accepts either
// a localpart or a fully-qualified user ID.
type LoginIdentifier struct {
	Type string `json:"type"`
	User string `json:"user"`
}

// AuthResponse is returned by a successful login.
type AuthResponse struct {
	UserID      ref.UserID   `json:"user_id"`
	AccessToken string       `json:"access_token"`
	DeviceID    ref.DeviceID `json:"device_id"`
}

// WhoAmIResponse is returned by GET /account/whoami.
type WhoAmIResponse struct {
	UserID   ref.UserID   `json:"user_id"`
	DeviceID ref.DeviceID `json:"device_id,omitempty"`
}

// ServerVersionsResponse is returned by GET /_matrix/client/versions.
type ServerVersionsResponse struct {
	Versions         []string        `json:"versions"`
	UnstableFeatures map[string]bool `json:"unstable_features,omitempty"`
}

// ---- Events ----

// Event is a Matrix event as delivered by /sync and /messages. Content
// stays raw JSON; callers decode it into the typed content struct for
// the event type with DecodeContent.
//
// Ephemeral events (m.typing, m.receipt) and account-data events carry
// only Type and Content — EventID, Sender, and OriginServerTS are zero.
type Event struct {
	EventID        ref.EventID     `json:"event_id,omitempty"`
	Type           ref.EventType   `json:"type"`
	Sender         ref.UserID      `json:"sender,omitempty"`
	OriginServerTS int64           `json:"origin_server_ts,omitempty"`
	Content        json.RawMessage `json:"content,omitempty"`
	StateKey       *string         `json:"state_key,omitempty"`
	RoomID         ref.RoomID      `json:"room_id,omitempty"`
	Redacts        ref.EventID     `json:"redacts,omitempty"`
	Unsigned       *EventUnsigned  `json:"unsigned,omitempty"`
}

// EventUnsigned carries server-added metadata. TransactionID is present
// on events the syncing device itself sent and lets the client match a
// sync echo to a local send.
type EventUnsigned struct {
	Age           int64  `json:"age,omitempty"`
	TransactionID string `json:"transaction_id,omitempty"`
}

// ---- Message content ----

// MessageContent is the content of an m.room.message event. The same
// struct serves both directions: composing outgoing messages and
// decoding incoming ones.
//
// For edits, the outer Body carries the "* "-prefixed fallback and
// NewContent carries the replacement; RelatesTo points at the edited
// event with rel_type m.replace.
type MessageContent struct {
	MsgType       string          `json:"msgtype,omitempty"`
	Body          string          `json:"body"`
	Format        string          `json:"format,omitempty"`
	FormattedBody string          `json:"formatted_body,omitempty"`
	URL           string          `json:"url,omitempty"`
	Filename      string          `json:"filename,omitempty"`
	Info          *FileInfo       `json:"info,omitempty"`
	NewContent    *MessageContent `json:"m.new_content,omitempty"`
	RelatesTo     *RelatesTo      `json:"m.relates_to,omitempty"`
}

// FileInfo describes an attachment referenced by a message's URL field.
type FileInfo struct {
	MimeType string `json:"mimetype,omitempty"`
	Size     int64  `json:"size,omitempty"`
	Width    int    `json:"w,omitempty"`
	Height   int    `json:"h,omitempty"`
}

// RelatesTo is the m.relates_to block of an event's content. Key is set
// only for m.annotation relations (the reaction emoji).
type RelatesTo struct {
	RelType   string      `json:"rel_type,omitempty"`
	EventID   ref.EventID `json:"event_id,omitempty"`
	Key       string      `json:"key,omitempty"`
	InReplyTo *InReplyTo  `json:"m.in_reply_to,omitempty"`
}

// InReplyTo marks a message as a rich reply to another event.
type InReplyTo struct {
	EventID ref.EventID `json:"event_id"`
}

// ReactionContent is the content of an m.reaction event.
type ReactionContent struct {
	RelatesTo RelatesTo `json:"m.relates_to"`
}

// RedactionContent is the content of an m.room.redaction event. Room
// versions 11 and later carry the redacted event ID here rather than at
// the event's top level; readers must check both.
type RedactionContent struct {
	Redacts ref.EventID `json:"redacts,omitempty"`
	Reason  string      `json:"reason,omitempty"`
}

// NewTextMessage creates a plain text message.
func NewTextMessage(body string) MessageContent {
	return MessageContent{MsgType: MsgTypeText, Body: body}
}

// NewFormattedMessage creates a text message with an HTML-rendered body
// alongside the plain-text fallback.
func NewFormattedMessage(body, formattedBody string) MessageContent {
	return MessageContent{
		MsgType:       MsgTypeText,
		Body:          body,
		Format:        FormatHTML,
		FormattedBody: formattedBody,
	}
}

// NewReply marks content as a rich reply to the given event.
func NewReply(inReplyTo ref.EventID, content MessageContent) MessageContent {
	content.RelatesTo = &RelatesTo{InReplyTo: &InReplyTo{EventID: inReplyTo}}
	return content
}

// NewEdit wraps content as a replacement of the target event. The outer
// body carries the conventional "* " fallback for clients that do not
// fold edits; the replacement itself travels in m.new_content.
func NewEdit(target ref.EventID, content MessageContent) MessageContent {
	inner := content
	outer := content
	outer.Body = "* " + content.Body
	if content.FormattedBody != "" {
		outer.FormattedBody = "* " + content.FormattedBody
	}
	outer.NewContent = &inner
	outer.RelatesTo = &RelatesTo{RelType: RelTypeReplace, EventID: target}
	return outer
}

// NewReaction creates the content of an m.reaction event annotating the
// target event with key (typically an emoji).
func NewReaction(target ref.EventID, key string) ReactionContent {
	return ReactionContent{RelatesTo: RelatesTo{
		RelType: RelTypeAnnotation,
		EventID: target,
		Key:     key,
	}}
}

// ---- Room management ----

// CreateRoomRequest is the body of POST /createRoom. Alias is the
// localpart of the desired canonical alias; the server qualifies it.
type CreateRoomRequest struct {
	Name            string         `json:"name,omitempty"`
	Topic           string         `json:"topic,omitempty"`
	Alias           string         `json:"room_alias_name,omitempty"`
	Visibility      string         `json:"visibility,omitempty"`
	Preset          string         `json:"preset,omitempty"`
	Invite          []ref.UserID   `json:"invite,omitempty"`
	IsDirect        bool           `json:"is_direct,omitempty"`
	CreationContent map[string]any `json:"creation_content,omitempty"`
	InitialState    []StateEvent   `json:"initial_state,omitempty"`
}

// StateEvent is a state event to install at room creation.
type StateEvent struct {
	Type     ref.EventType `json:"type"`
	StateKey string        `json:"state_key"`
	Content  any           `json:"content"`
}

// CreateRoomResponse is returned by POST /createRoom.
type CreateRoomResponse struct {
	RoomID ref.RoomID `json:"room_id"`
}

// InviteRequest is the body of POST /rooms/{id}/invite.
type InviteRequest struct {
	UserID ref.UserID `json:"user_id"`
	Reason string     `json:"reason,omitempty"`
}

// KickRequest is the body of POST /rooms/{id}/kick.
type KickRequest struct {
	UserID ref.UserID `json:"user_id"`
	Reason string     `json:"reason,omitempty"`
}

// JoinedRoomsResponse is returned by GET /joined_rooms.
type JoinedRoomsResponse struct {
	JoinedRooms []ref.RoomID `json:"joined_rooms"`
}

// RoomMembersResponse is returned by GET /rooms/{id}/members.
type RoomMembersResponse struct {
	Chunk []Event `json:"chunk"`
}

// RoomMember is a member of a room, extracted from an m.room.member
// state event.
type RoomMember struct {
	UserID      ref.UserID
	DisplayName string
	AvatarURL   string
	Membership  string
}

// MemberContent is the content of an m.room.member event. IsDirect is
// set on the invite event of a direct-message room.
type MemberContent struct {
	Membership  string `json:"membership"`
	DisplayName string `json:"displayname,omitempty"`
	AvatarURL   string `json:"avatar_url,omitempty"`
	IsDirect    bool   `json:"is_direct,omitempty"`
}

// RedactRequest is the body of PUT /rooms/{id}/redact/{eventID}/{txnID}.
type RedactRequest struct {
	Reason string `json:"reason,omitempty"`
}

// ResolveAliasResponse is returned by GET /directory/room/{alias}.
type ResolveAliasResponse struct {
	RoomID  ref.RoomID `json:"room_id"`
	Servers []string   `json:"servers,omitempty"`
}

// SendEventResponse is returned by the send and redact endpoints.
type SendEventResponse struct {
	EventID ref.EventID `json:"event_id"`
}

// DisplayNameResponse is returned by GET /profile/{userID}/displayname.
type DisplayNameResponse struct {
	DisplayName string `json:"displayname,omitempty"`
}

// ---- Room state content ----

// NameContent is the content of an m.room.name state event.
type NameContent struct {
	Name string `json:"name"`
}

// TopicContent is the content of an m.room.topic state event.
type TopicContent struct {
	Topic string `json:"topic"`
}

// CanonicalAliasContent is the content of an m.room.canonical_alias
// state event.
type CanonicalAliasContent struct {
	Alias      string   `json:"alias,omitempty"`
	AltAliases []string `json:"alt_aliases,omitempty"`
}

// CreateContent is the content of an m.room.create state event. RoomType
// distinguishes spaces from ordinary rooms.
type CreateContent struct {
	RoomType string `json:"type,omitempty"`
}

// ---- Pagination ----

// Pagination directions for /rooms/{id}/messages.
const (
	DirectionBackward = "b"
	DirectionForward  = "f"
)

// RoomMessagesOptions configures GET /rooms/{id}/messages. An empty From
// with DirectionBackward starts from the newest event. Limit of zero uses
// the server default.
type RoomMessagesOptions struct {
	From      string
	To        string
	Direction string
	Limit     int
}

// RoomMessagesResponse is returned by GET /rooms/{id}/messages. An empty
// End means the server has no further events in the requested direction —
// for backward pagination, the room's history is exhausted.
type RoomMessagesResponse struct {
	Start string  `json:"start"`
	End   string  `json:"end,omitempty"`
	Chunk []Event `json:"chunk"`
	State []Event `json:"state,omitempty"`
}

// ---- Sync ----

// SyncOptions configures GET /sync. Timeout is the long-poll timeout in
// milliseconds; SetTimeout distinguishes an explicit zero (return
// immediately) from an unset timeout (server default).
type SyncOptions struct {
	Since      string
	Timeout    int
	SetTimeout bool
	Filter     string
	FullState  bool
}

// SyncResponse is the top-level /sync response.
type SyncResponse struct {
	NextBatch   string             `json:"next_batch"`
	Rooms       RoomsSection       `json:"rooms,omitempty"`
	Presence    PresenceSection    `json:"presence,omitempty"`
	AccountData AccountDataSection `json:"account_data,omitempty"`
	ToDevice    ToDeviceSection    `json:"to_device,omitempty"`
}

// RoomsSection groups per-room sync data by membership.
type RoomsSection struct {
	Join   map[ref.RoomID]JoinedRoom  `json:"join,omitempty"`
	Invite map[ref.RoomID]InvitedRoom `json:"invite,omitempty"`
	Leave  map[ref.RoomID]LeftRoom    `json:"leave,omitempty"`
}

// JoinedRoom is the sync data for a room the user has joined.
type JoinedRoom struct {
	State               StateSection             `json:"state,omitempty"`
	Timeline            TimelineSection          `json:"timeline,omitempty"`
	Ephemeral           EphemeralSection         `json:"ephemeral,omitempty"`
	AccountData         AccountDataSection       `json:"account_data,omitempty"`
	UnreadNotifications UnreadNotificationCounts `json:"unread_notifications,omitempty"`
}

// InvitedRoom is the sync data for a pending invite. InviteState holds
// stripped state events (no event IDs or timestamps).
type InvitedRoom struct {
	InviteState InviteStateSection `json:"invite_state,omitempty"`
}

// LeftRoom is the sync data for a room the user has left.
type LeftRoom struct {
	State    StateSection    `json:"state,omitempty"`
	Timeline TimelineSection `json:"timeline,omitempty"`
}

// TimelineSection is the timeline portion of a room's sync data. Limited
// indicates a gap: more events exist between PrevBatch and the previous
// sync position than the timeline limit allowed.
type TimelineSection struct {
	Events    []Event `json:"events,omitempty"`
	Limited   bool    `json:"limited,omitempty"`
	PrevBatch string  `json:"prev_batch,omitempty"`
}

// StateSection holds state events.
type StateSection struct {
	Events []Event `json:"events,omitempty"`
}

// InviteStateSection holds stripped state events for an invite.
type InviteStateSection struct {
	Events []Event `json:"events,omitempty"`
}

// EphemeralSection holds ephemeral events (m.typing, m.receipt).
type EphemeralSection struct {
	Events []Event `json:"events,omitempty"`
}

// AccountDataSection holds account-data events (m.tag, m.direct,
// m.fully_read).
type AccountDataSection struct {
	Events []Event `json:"events,omitempty"`
}

// UnreadNotificationCounts reports server-side unread counts for a room.
type UnreadNotificationCounts struct {
	HighlightCount    int `json:"highlight_count,omitempty"`
	NotificationCount int `json:"notification_count,omitempty"`
}

// PresenceSection holds presence events from /sync.
type PresenceSection struct {
	Events []Event `json:"events,omitempty"`
}

// ToDeviceSection holds to-device events from /sync (verification
// signaling). The events carry Type, Sender, and Content only.
type ToDeviceSection struct {
	Events []Event `json:"events,omitempty"`
}

// ---- Ephemeral content ----

// TypingContent is the content of an m.typing ephemeral event: the users
// currently typing in the room.
type TypingContent struct {
	UserIDs []ref.UserID `json:"user_ids"`
}

// TypingRequest is the body of PUT /rooms/{id}/typing/{userID}. Timeout
// is in milliseconds and only meaningful when Typing is true.
type TypingRequest struct {
	Typing  bool  `json:"typing"`
	Timeout int64 `json:"timeout,omitempty"`
}

// ReceiptContent is the content of an m.receipt ephemeral event: a map
// from event ID to the receipts attached to that event.
type ReceiptContent map[ref.EventID]ReceiptsByType

// ReceiptsByType groups receipts on one event by receipt type.
type ReceiptsByType struct {
	Read        map[ref.UserID]ReceiptInfo `json:"m.read,omitempty"`
	ReadPrivate map[ref.UserID]ReceiptInfo `json:"m.read.private,omitempty"`
}

// ReceiptInfo is a single receipt's metadata.
type ReceiptInfo struct {
	TS int64 `json:"ts,omitempty"`
}

// PresenceContent is the content of an m.presence event.
type PresenceContent struct {
	Presence        string `json:"presence"`
	StatusMsg       string `json:"status_msg,omitempty"`
	LastActiveAgo   int64  `json:"last_active_ago,omitempty"`
	CurrentlyActive bool   `json:"currently_active,omitempty"`
}

// ---- Account data ----

// TagContent is the content of an m.tag room account-data event.
type TagContent struct {
	Tags map[string]Tag `json:"tags"`
}

// Tag is a single room tag. Order sorts rooms within a tag; lower values
// sort first.
type Tag struct {
	Order *float64 `json:"order,omitempty"`
}

// DirectContent is the content of the m.direct global account-data
// event: direct-message rooms grouped by the other party.
type DirectContent map[ref.UserID][]ref.RoomID

// FullyReadContent is the content of an m.fully_read room account-data
// event.
type FullyReadContent struct {
	EventID ref.EventID `json:"event_id"`
}

// ---- Media ----

// UploadResponse is returned by POST /_matrix/media/v3/upload.
type UploadResponse struct {
	ContentURI string `json:"content_uri"`
}

// ParseMXC splits an mxc:// URI into its server name and media ID.
func ParseMXC(uri string) (serverName, mediaID string, err error) {
	rest, ok := strings.CutPrefix(uri, "mxc://")
	if !ok {
		return "", "", fmt.Errorf("messaging: not an mxc URI: %q", uri)
	}
	serverName, mediaID, ok = strings.Cut(rest, "/")
	if !ok || serverName == "" || mediaID == "" || strings.Contains(mediaID, "/") {
		return "", "", fmt.Errorf("messaging: malformed mxc URI: %q", uri)
	}
	return serverName, mediaID, nil
}

// ---- Spaces ----

// HierarchyResponse is returned by GET /rooms/{id}/hierarchy.
type HierarchyResponse struct {
	Rooms     []HierarchyRoom `json:"rooms"`
	NextBatch string          `json:"next_batch,omitempty"`
}

// HierarchyRoom summarizes one room in a space hierarchy.
type HierarchyRoom struct {
	RoomID           ref.RoomID `json:"room_id"`
	Name             string     `json:"name,omitempty"`
	Topic            string     `json:"topic,omitempty"`
	CanonicalAlias   string     `json:"canonical_alias,omitempty"`
	NumJoinedMembers int        `json:"num_joined_members"`
	RoomType         string     `json:"room_type,omitempty"`
	ChildrenState    []Event    `json:"children_state,omitempty"`
}

// ---- To-device ----

// ToDeviceMessages maps recipient user to device to event content for
// PUT /sendToDevice. The device ID "*" addresses all of a user's
// devices.
type ToDeviceMessages map[ref.UserID]map[ref.DeviceID]any

// AllDevices addresses every device of a recipient in a to-device
// message.
var AllDevices = ref.MustParseDeviceID("*")

// SendToDeviceRequest is the body of PUT /sendToDevice/{type}/{txnID}.
type SendToDeviceRequest struct {
	Messages ToDeviceMessages `json:"messages"`
}

// VerificationContent is the shared content shape of the
// m.key.verification.* to-device events. Each event type uses a subset
// of the fields: requests carry FromDevice, Methods, and Timestamp;
// ready adds the responder's FromDevice; start names the chosen Method;
// cancel carries Code and Reason.
type VerificationContent struct {
	FromDevice    ref.DeviceID `json:"from_device,omitempty"`
	TransactionID string       `json:"transaction_id,omitempty"`
	Methods       []string     `json:"methods,omitempty"`
	Method        string       `json:"method,omitempty"`
	Timestamp     int64        `json:"timestamp,omitempty"`
	Code          string       `json:"code,omitempty"`
	Reason        string       `json:"reason,omitempty"`
}

// VerificationMethodSAS is the short-authentication-string method.
const VerificationMethodSAS = "m.sas.v1"

// ---- Presence ----

// SetPresenceRequest is the body of PUT /presence/{userID}/status.
type SetPresenceRequest struct {
	Presence  string `json:"presence"`
	StatusMsg string `json:"status_msg,omitempty"`
}
