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

	"github.com/parley-chat/parley/lib/ref"
)

// CreateRoom creates a new room and returns its ID.
func (s *DirectSession) CreateRoom(ctx context.Context, request CreateRoomRequest) (*CreateRoomResponse, error) {
	body, err := s.client.doRequest(ctx, http.MethodPost, "/_matrix/client/v3/createRoom", s.accessToken, request)
	if err != nil {
		return nil, fmt.Errorf("messaging: creating room: %w", err)
	}
	var response CreateRoomResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("messaging: parsing create room response: %w", err)
	}
	return &response, nil
}

// JoinRoom joins a room by ID and returns the joined room's ID. To join
// by alias, resolve it with ResolveAlias first.
func (s *DirectSession) JoinRoom(ctx context.Context, roomID ref.RoomID) (ref.RoomID, error) {
	path := "/_matrix/client/v3/join/" + url.PathEscape(roomID.String())
	body, err := s.client.doRequest(ctx, http.MethodPost, path, s.accessToken, struct{}{})
	if err != nil {
		return ref.RoomID{}, fmt.Errorf("messaging: joining %s: %w", roomID, err)
	}
	var response CreateRoomResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return ref.RoomID{}, fmt.Errorf("messaging: parsing join response: %w", err)
	}
	return response.RoomID, nil
}

// LeaveRoom leaves a room. The room stays listed under left rooms on
// the next sync.
func (s *DirectSession) LeaveRoom(ctx context.Context, roomID ref.RoomID) error {
	path := "/_matrix/client/v3/rooms/" + url.PathEscape(roomID.String()) + "/leave"
	if _, err := s.client.doRequest(ctx, http.MethodPost, path, s.accessToken, struct{}{}); err != nil {
		return fmt.Errorf("messaging: leaving %s: %w", roomID, err)
	}
	return nil
}

// InviteUser invites a user to a room.
func (s *DirectSession) InviteUser(ctx context.Context, roomID ref.RoomID, userID ref.UserID) error {
	path := "/_matrix/client/v3/rooms/" + url.PathEscape(roomID.String()) + "/invite"
	if _, err := s.client.doRequest(ctx, http.MethodPost, path, s.accessToken, InviteRequest{UserID: userID}); err != nil {
		return fmt.Errorf("messaging: inviting %s to %s: %w", userID, roomID, err)
	}
	return nil
}

// KickUser removes a user from a room with an optional reason.
func (s *DirectSession) KickUser(ctx context.Context, roomID ref.RoomID, userID ref.UserID, reason string) error {
	path := "/_matrix/client/v3/rooms/" + url.PathEscape(roomID.String()) + "/kick"
	if _, err := s.client.doRequest(ctx, http.MethodPost, path, s.accessToken, KickRequest{UserID: userID, Reason: reason}); err != nil {
		return fmt.Errorf("messaging: kicking %s from %s: %w", userID, roomID, err)
	}
	return nil
}

// JoinedRooms returns the IDs of all rooms the user has joined.
func (s *DirectSession) JoinedRooms(ctx context.Context) ([]ref.RoomID, error) {
	body, err := s.client.doRequest(ctx, http.MethodGet, "/_matrix/client/v3/joined_rooms", s.accessToken, nil)
	if err != nil {
		return nil, fmt.Errorf("messaging: listing joined rooms: %w", err)
	}
	var response JoinedRoomsResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("messaging: parsing joined rooms response: %w", err)
	}
	return response.JoinedRooms, nil
}

// GetRoomMembers returns the current members of a room. Member events
// whose state key is not a valid user ID are skipped.
func (s *DirectSession) GetRoomMembers(ctx context.Context, roomID ref.RoomID) ([]RoomMember, error) {
	path := "/_matrix/client/v3/rooms/" + url.PathEscape(roomID.String()) + "/members"
	body, err := s.client.doRequest(ctx, http.MethodGet, path, s.accessToken, nil)
	if err != nil {
		return nil, fmt.Errorf("messaging: listing members of %s: %w", roomID, err)
	}
	var response RoomMembersResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("messaging: parsing members response: %w", err)
	}

	members := make([]RoomMember, 0, len(response.Chunk))
	for _, event := range response.Chunk {
		if event.Type != EventTypeMember || event.StateKey == nil {
			continue
		}
		userID, err := ref.ParseUserID(*event.StateKey)
		if err != nil {
			continue
		}
		content, err := DecodeContent[MemberContent](event)
		if err != nil {
			continue
		}
		members = append(members, RoomMember{
			UserID:      userID,
			DisplayName: content.DisplayName,
			AvatarURL:   content.AvatarURL,
			Membership:  content.Membership,
		})
	}
	return members, nil
}

// ResolveAlias resolves a room alias to a room ID.
func (s *DirectSession) ResolveAlias(ctx context.Context, alias ref.RoomAlias) (ref.RoomID, error) {
	path := "/_matrix/client/v3/directory/room/" + url.PathEscape(alias.String())
	body, err := s.client.doRequest(ctx, http.MethodGet, path, s.accessToken, nil)
	if err != nil {
		return ref.RoomID{}, fmt.Errorf("messaging: resolving %s: %w", alias, err)
	}
	var response ResolveAliasResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return ref.RoomID{}, fmt.Errorf("messaging: parsing alias response: %w", err)
	}
	return response.RoomID, nil
}

// RoomHierarchy pages through the rooms of a space. Pass the previous
// response's NextBatch as from to continue; an empty NextBatch means
// the listing is complete.
func (s *DirectSession) RoomHierarchy(ctx context.Context, roomID ref.RoomID, from string, limit int) (*HierarchyResponse, error) {
	query := url.Values{}
	if from != "" {
		query.Set("from", from)
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	path := "/_matrix/client/v1/rooms/" + url.PathEscape(roomID.String()) + "/hierarchy"
	body, err := s.client.doRequest(ctx, http.MethodGet, path, s.accessToken, nil, query)
	if err != nil {
		return nil, fmt.Errorf("messaging: hierarchy of %s: %w", roomID, err)
	}
	var response HierarchyResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("messaging: parsing hierarchy response: %w", err)
	}
	return &response, nil
}

// RoomTags returns the user's tags on a room.
func (s *DirectSession) RoomTags(ctx context.Context, roomID ref.RoomID) (map[string]Tag, error) {
	path := "/_matrix/client/v3/user/" + url.PathEscape(s.userID.String()) +
		"/rooms/" + url.PathEscape(roomID.String()) + "/tags"
	body, err := s.client.doRequest(ctx, http.MethodGet, path, s.accessToken, nil)
	if err != nil {
		return nil, fmt.Errorf("messaging: reading tags of %s: %w", roomID, err)
	}
	var response TagContent
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("messaging: parsing tags response: %w", err)
	}
	return response.Tags, nil
}

// SetRoomTag adds or updates a tag on a room. order sorts rooms within
// the tag (lower first); nil leaves the order unset.
func (s *DirectSession) SetRoomTag(ctx context.Context, roomID ref.RoomID, tag string, order *float64) error {
	path := "/_matrix/client/v3/user/" + url.PathEscape(s.userID.String()) +
		"/rooms/" + url.PathEscape(roomID.String()) +
		"/tags/" + url.PathEscape(tag)
	if _, err := s.client.doRequest(ctx, http.MethodPut, path, s.accessToken, Tag{Order: order}); err != nil {
		return fmt.Errorf("messaging: tagging %s with %q: %w", roomID, tag, err)
	}
	return nil
}

// DeleteRoomTag removes a tag from a room.
func (s *DirectSession) DeleteRoomTag(ctx context.Context, roomID ref.RoomID, tag string) error {
	path := "/_matrix/client/v3/user/" + url.PathEscape(s.userID.String()) +
		"/rooms/" + url.PathEscape(roomID.String()) +
		"/tags/" + url.PathEscape(tag)
	if _, err := s.client.doRequest(ctx, http.MethodDelete, path, s.accessToken, nil); err != nil {
		return fmt.Errorf("messaging: untagging %q from %s: %w", tag, roomID, err)
	}
	return nil
}

// GetAccountData reads a global account-data event into v. Returns a
// *MatrixError with M_NOT_FOUND if the event has never been set.
func (s *DirectSession) GetAccountData(ctx context.Context, eventType ref.EventType, v any) error {
	path := "/_matrix/client/v3/user/" + url.PathEscape(s.userID.String()) +
		"/account_data/" + url.PathEscape(eventType.String())
	body, err := s.client.doRequest(ctx, http.MethodGet, path, s.accessToken, nil)
	if err != nil {
		return fmt.Errorf("messaging: reading account data %s: %w", eventType, err)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("messaging: parsing account data %s: %w", eventType, err)
	}
	return nil
}

// SetAccountData replaces a global account-data event.
func (s *DirectSession) SetAccountData(ctx context.Context, eventType ref.EventType, content any) error {
	path := "/_matrix/client/v3/user/" + url.PathEscape(s.userID.String()) +
		"/account_data/" + url.PathEscape(eventType.String())
	if _, err := s.client.doRequest(ctx, http.MethodPut, path, s.accessToken, content); err != nil {
		return fmt.Errorf("messaging: writing account data %s: %w", eventType, err)
	}
	return nil
}

// GetDisplayName fetches a user's display name. Empty if the user has
// not set one.
func (s *DirectSession) GetDisplayName(ctx context.Context, userID ref.UserID) (string, error) {
	path := "/_matrix/client/v3/profile/" + url.PathEscape(userID.String()) + "/displayname"
	body, err := s.client.doRequest(ctx, http.MethodGet, path, s.accessToken, nil)
	if err != nil {
		return "", fmt.Errorf("messaging: display name of %s: %w", userID, err)
	}
	var response DisplayNameResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return "", fmt.Errorf("messaging: parsing display name response: %w", err)
	}
	return response.DisplayName, nil
}

// SetDisplayName sets the session user's display name.
func (s *DirectSession) SetDisplayName(ctx context.Context, displayName string) error {
	path := "/_matrix/client/v3/profile/" + url.PathEscape(s.userID.String()) + "/displayname"
	if _, err := s.client.doRequest(ctx, http.MethodPut, path, s.accessToken, DisplayNameResponse{DisplayName: displayName}); err != nil {
		return fmt.Errorf("messaging: setting display name: %w", err)
	}
	return nil
}

// SetPresence publishes the session user's presence state.
func (s *DirectSession) SetPresence(ctx context.Context, presence, statusMsg string) error {
	path := "/_matrix/client/v3/presence/" + url.PathEscape(s.userID.String()) + "/status"
	if _, err := s.client.doRequest(ctx, http.MethodPut, path, s.accessToken, SetPresenceRequest{Presence: presence, StatusMsg: statusMsg}); err != nil {
		return fmt.Errorf("messaging: setting presence: %w", err)
	}
	return nil
}
