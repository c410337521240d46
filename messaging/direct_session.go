// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/parley-chat/parley/lib/ref"
	"github.com/parley-chat/parley/lib/secret"
)

// DirectSession is an authenticated connection to the homeserver: a
// parent Client plus an access token held in mmap-backed memory. It is
// safe for concurrent use; the transaction counter is the only mutable
// state.
//
// Close releases the protected token memory. Methods called after Close
// panic when they read the token.
type DirectSession struct {
	client             *Client
	accessToken        *secret.Buffer
	userID             ref.UserID
	deviceID           ref.DeviceID
	transactionCounter atomic.Int64
}

// UserID returns the fully-qualified user ID this session authenticates
// as.
func (s *DirectSession) UserID() ref.UserID {
	return s.userID
}

// DeviceID returns the device ID the homeserver assigned at login. Zero
// for sessions restored from a token without one.
func (s *DirectSession) DeviceID() ref.DeviceID {
	return s.deviceID
}

// AccessToken returns the raw access token for persisting the session.
// Callers sealing the token to disk should copy it promptly; the
// returned string is an unprotected heap copy.
func (s *DirectSession) AccessToken() string {
	return s.accessToken.String()
}

// Close releases the protected token memory. Idempotent.
func (s *DirectSession) Close() error {
	if s.accessToken != nil {
		return s.accessToken.Close()
	}
	return nil
}

// WhoAmI validates the session against the server and returns the user
// ID it belongs to.
func (s *DirectSession) WhoAmI(ctx context.Context) (ref.UserID, error) {
	body, err := s.client.doRequest(ctx, http.MethodGet, "/_matrix/client/v3/account/whoami", s.accessToken, nil)
	if err != nil {
		return ref.UserID{}, fmt.Errorf("messaging: whoami: %w", err)
	}
	var response WhoAmIResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return ref.UserID{}, fmt.Errorf("messaging: parsing whoami response: %w", err)
	}
	return response.UserID, nil
}

// Logout invalidates the access token server-side. The session is
// unusable afterward; the caller should still Close it to release the
// token memory.
func (s *DirectSession) Logout(ctx context.Context) error {
	if _, err := s.client.doRequest(ctx, http.MethodPost, "/_matrix/client/v3/logout", s.accessToken, nil); err != nil {
		return fmt.Errorf("messaging: logout: %w", err)
	}
	return nil
}

// Sync performs one /sync request. With a zero-valued options struct the
// server returns an initial snapshot immediately; with Since set it
// long-polls until new activity arrives or the timeout lapses.
//
// The passed context must outlive the long-poll: callers add their own
// margin on top of options.Timeout.
func (s *DirectSession) Sync(ctx context.Context, options SyncOptions) (*SyncResponse, error) {
	query := url.Values{}
	if options.Since != "" {
		query.Set("since", options.Since)
	}
	if options.SetTimeout {
		query.Set("timeout", strconv.Itoa(options.Timeout))
	}
	if options.Filter != "" {
		query.Set("filter", options.Filter)
	}
	if options.FullState {
		query.Set("full_state", "true")
	}

	body, err := s.client.doRequest(ctx, http.MethodGet, "/_matrix/client/v3/sync", s.accessToken, nil, query)
	if err != nil {
		return nil, fmt.Errorf("messaging: sync: %w", err)
	}
	var response SyncResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("messaging: parsing sync response: %w", err)
	}
	return &response, nil
}

// RoomMessages fetches a page of room history. Pass the previous page's
// End as From to continue paginating; an empty From with
// DirectionBackward starts from the newest event.
func (s *DirectSession) RoomMessages(ctx context.Context, roomID ref.RoomID, options RoomMessagesOptions) (*RoomMessagesResponse, error) {
	query := url.Values{}
	if options.From != "" {
		query.Set("from", options.From)
	}
	if options.To != "" {
		query.Set("to", options.To)
	}
	direction := options.Direction
	if direction == "" {
		direction = DirectionBackward
	}
	query.Set("dir", direction)
	if options.Limit > 0 {
		query.Set("limit", strconv.Itoa(options.Limit))
	}

	path := "/_matrix/client/v3/rooms/" + url.PathEscape(roomID.String()) + "/messages"
	body, err := s.client.doRequest(ctx, http.MethodGet, path, s.accessToken, nil, query)
	if err != nil {
		return nil, fmt.Errorf("messaging: room messages for %s: %w", roomID, err)
	}
	var response RoomMessagesResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("messaging: parsing room messages response: %w", err)
	}
	return &response, nil
}

// SendMessage sends an m.room.message event and returns its event ID.
func (s *DirectSession) SendMessage(ctx context.Context, roomID ref.RoomID, content MessageContent) (ref.EventID, error) {
	return s.SendEvent(ctx, roomID, EventTypeMessage, content)
}

// SendEvent sends an event of the given type and returns its event ID.
// Each send uses a fresh transaction ID, so retrying a failed call
// produces a new event rather than deduplicating against the old one.
func (s *DirectSession) SendEvent(ctx context.Context, roomID ref.RoomID, eventType ref.EventType, content any) (ref.EventID, error) {
	path := "/_matrix/client/v3/rooms/" + url.PathEscape(roomID.String()) +
		"/send/" + url.PathEscape(eventType.String()) +
		"/" + url.PathEscape(s.nextTransactionID())
	body, err := s.client.doRequest(ctx, http.MethodPut, path, s.accessToken, content)
	if err != nil {
		return ref.EventID{}, fmt.Errorf("messaging: sending %s to %s: %w", eventType, roomID, err)
	}
	var response SendEventResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return ref.EventID{}, fmt.Errorf("messaging: parsing send response: %w", err)
	}
	return response.EventID, nil
}

// RedactEvent removes the content of a previously sent event. Returns
// the redaction event's ID.
func (s *DirectSession) RedactEvent(ctx context.Context, roomID ref.RoomID, eventID ref.EventID, reason string) (ref.EventID, error) {
	path := "/_matrix/client/v3/rooms/" + url.PathEscape(roomID.String()) +
		"/redact/" + url.PathEscape(eventID.String()) +
		"/" + url.PathEscape(s.nextTransactionID())
	body, err := s.client.doRequest(ctx, http.MethodPut, path, s.accessToken, RedactRequest{Reason: reason})
	if err != nil {
		return ref.EventID{}, fmt.Errorf("messaging: redacting %s in %s: %w", eventID, roomID, err)
	}
	var response SendEventResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return ref.EventID{}, fmt.Errorf("messaging: parsing redact response: %w", err)
	}
	return response.EventID, nil
}

// SendStateEvent sets a state event and returns its event ID.
func (s *DirectSession) SendStateEvent(ctx context.Context, roomID ref.RoomID, eventType ref.EventType, stateKey string, content any) (ref.EventID, error) {
	path := "/_matrix/client/v3/rooms/" + url.PathEscape(roomID.String()) +
		"/state/" + url.PathEscape(eventType.String()) +
		"/" + url.PathEscape(stateKey)
	body, err := s.client.doRequest(ctx, http.MethodPut, path, s.accessToken, content)
	if err != nil {
		return ref.EventID{}, fmt.Errorf("messaging: setting state %s[%q] in %s: %w", eventType, stateKey, roomID, err)
	}
	var response SendEventResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return ref.EventID{}, fmt.Errorf("messaging: parsing state response: %w", err)
	}
	return response.EventID, nil
}

// GetStateEvent fetches a state event's content. Returns the raw JSON
// for the caller to decode (see GetState for the typed wrapper).
func (s *DirectSession) GetStateEvent(ctx context.Context, roomID ref.RoomID, eventType ref.EventType, stateKey string) (json.RawMessage, error) {
	path := "/_matrix/client/v3/rooms/" + url.PathEscape(roomID.String()) +
		"/state/" + url.PathEscape(eventType.String()) +
		"/" + url.PathEscape(stateKey)
	body, err := s.client.doRequest(ctx, http.MethodGet, path, s.accessToken, nil)
	if err != nil {
		return nil, fmt.Errorf("messaging: reading state %s[%q] from %s: %w", eventType, stateKey, roomID, err)
	}
	return json.RawMessage(body), nil
}

// GetRoomState fetches all current state events of a room.
func (s *DirectSession) GetRoomState(ctx context.Context, roomID ref.RoomID) ([]Event, error) {
	path := "/_matrix/client/v3/rooms/" + url.PathEscape(roomID.String()) + "/state"
	body, err := s.client.doRequest(ctx, http.MethodGet, path, s.accessToken, nil)
	if err != nil {
		return nil, fmt.Errorf("messaging: reading state of %s: %w", roomID, err)
	}
	var events []Event
	if err := json.Unmarshal(body, &events); err != nil {
		return nil, fmt.Errorf("messaging: parsing room state: %w", err)
	}
	return events, nil
}

// SendTyping starts or stops the user's typing notification in a room.
// timeout bounds how long the server shows the notice without a
// refresh; it is ignored when typing is false.
func (s *DirectSession) SendTyping(ctx context.Context, roomID ref.RoomID, typing bool, timeout time.Duration) error {
	path := "/_matrix/client/v3/rooms/" + url.PathEscape(roomID.String()) +
		"/typing/" + url.PathEscape(s.userID.String())
	request := TypingRequest{Typing: typing}
	if typing {
		request.Timeout = timeout.Milliseconds()
	}
	if _, err := s.client.doRequest(ctx, http.MethodPut, path, s.accessToken, request); err != nil {
		return fmt.Errorf("messaging: typing notice in %s: %w", roomID, err)
	}
	return nil
}

// SendReceipt publishes a public read receipt on the given event.
func (s *DirectSession) SendReceipt(ctx context.Context, roomID ref.RoomID, eventID ref.EventID) error {
	path := "/_matrix/client/v3/rooms/" + url.PathEscape(roomID.String()) +
		"/receipt/m.read/" + url.PathEscape(eventID.String())
	if _, err := s.client.doRequest(ctx, http.MethodPost, path, s.accessToken, struct{}{}); err != nil {
		return fmt.Errorf("messaging: read receipt in %s: %w", roomID, err)
	}
	return nil
}

// SetReadMarkers updates the fully-read marker and optionally attaches
// a read receipt in one request. Zero event IDs are omitted; at least
// one must be set.
func (s *DirectSession) SetReadMarkers(ctx context.Context, roomID ref.RoomID, fullyRead, read ref.EventID) error {
	markers := map[string]string{}
	if !fullyRead.IsZero() {
		markers["m.fully_read"] = fullyRead.String()
	}
	if !read.IsZero() {
		markers["m.read"] = read.String()
	}
	if len(markers) == 0 {
		return fmt.Errorf("messaging: read markers require at least one event ID")
	}
	path := "/_matrix/client/v3/rooms/" + url.PathEscape(roomID.String()) + "/read_markers"
	if _, err := s.client.doRequest(ctx, http.MethodPost, path, s.accessToken, markers); err != nil {
		return fmt.Errorf("messaging: read markers in %s: %w", roomID, err)
	}
	return nil
}

// SendToDevice delivers an event directly to specific devices, outside
// any room. This carries the interactive verification handshake.
func (s *DirectSession) SendToDevice(ctx context.Context, eventType ref.EventType, messages ToDeviceMessages) error {
	path := "/_matrix/client/v3/sendToDevice/" + url.PathEscape(eventType.String()) +
		"/" + url.PathEscape(s.nextTransactionID())
	if _, err := s.client.doRequest(ctx, http.MethodPut, path, s.accessToken, SendToDeviceRequest{Messages: messages}); err != nil {
		return fmt.Errorf("messaging: sending %s to devices: %w", eventType, err)
	}
	return nil
}

// nextTransactionID produces a session-unique transaction ID. The
// timestamp component keeps IDs unique across process restarts with a
// reused device.
func (s *DirectSession) nextTransactionID() string {
	counter := s.transactionCounter.Add(1)
	return fmt.Sprintf("parley-%d-%d", time.Now().UnixMilli(), counter)
}
