// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package chatcmd

import (
	"fmt"

	"github.com/parley-chat/parley/chat"
)

// Action is the closed set of things a command line can resolve to.
// The UI switches over the concrete types exhaustively.
type Action interface {
	commandAction()
}

// Message wraps an action on the selected message in the focused room.
type Message struct {
	Action chat.MessageAction
}

// Send wraps a composer-level submission for the focused room.
type Send struct {
	Action chat.SendAction
}

// Room wraps an action on the focused room itself.
type Room struct {
	Action chat.RoomAction
}

// Verify wraps a verification signaling step.
type Verify struct {
	Action chat.VerifyAction
}

// Download fetches the selected message's attachment into the media
// cache. Force bypasses a cached copy; Open launches the system opener
// on the resulting path.
type Download struct {
	Force bool
	Open  bool
}

// Join joins a room by ID or alias, or finds-or-creates a direct
// message room when the target is a user ID.
type Join struct {
	Target string
}

// Leave leaves the focused room.
type Leave struct{}

// InviteAccept joins the room of the focused invite.
type InviteAccept struct{}

// InviteReject declines the focused invite.
type InviteReject struct{}

// ShowWindow switches the UI to a full-screen list window.
type ShowWindow struct {
	Window Window
}

func (Message) commandAction()      {}
func (Send) commandAction()         {}
func (Room) commandAction()         {}
func (Verify) commandAction()       {}
func (Download) commandAction()     {}
func (Join) commandAction()         {}
func (Leave) commandAction()        {}
func (InviteAccept) commandAction() {}
func (InviteReject) commandAction() {}
func (ShowWindow) commandAction()   {}

// Window names the UI's full-screen list windows.
type Window int

const (
	// WindowRooms lists joined rooms.
	WindowRooms Window = iota
	// WindowDirects lists direct-message rooms.
	WindowDirects
	// WindowSpaces lists joined spaces.
	WindowSpaces
	// WindowMembers lists the focused room's members.
	WindowMembers
	// WindowVerifications lists in-flight device verifications.
	WindowVerifications
	// WindowWelcome shows the startup screen with the command list.
	WindowWelcome
)

func (w Window) String() string {
	switch w {
	case WindowRooms:
		return "rooms"
	case WindowDirects:
		return "dms"
	case WindowSpaces:
		return "spaces"
	case WindowMembers:
		return "members"
	case WindowVerifications:
		return "verifications"
	case WindowWelcome:
		return "welcome"
	default:
		return fmt.Sprintf("unknown(%d)", int(w))
	}
}
