// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package chatcmd

import (
	"fmt"

	"github.com/parley-chat/parley/chat"
	"github.com/parley-chat/parley/lib/ref"
)

func usageError(usage string) error {
	return fmt.Errorf("usage: %s", usage)
}

func parleyCommands() []*Command {
	return []*Command{
		{
			Name:    "cancel",
			Summary: "Cancel the reply or edit in progress",
			Usage:   ":cancel",
			Parse: func(args []string, _ bool) (Action, error) {
				if len(args) != 0 {
					return nil, usageError(":cancel")
				}
				return Message{Action: chat.MessageCancel{}}, nil
			},
		},
		{
			Name:    "dms",
			Summary: "Show the direct message list",
			Usage:   ":dms",
			Parse: func(args []string, _ bool) (Action, error) {
				if len(args) != 0 {
					return nil, usageError(":dms")
				}
				return ShowWindow{Window: WindowDirects}, nil
			},
		},
		{
			Name:      "download",
			Summary:   "Download the selected message's attachment",
			Usage:     ":download",
			AllowBang: true,
			Parse: func(args []string, bang bool) (Action, error) {
				if len(args) != 0 {
					return nil, usageError(":download")
				}
				return Download{Force: bang}, nil
			},
		},
		{
			Name:    "edit",
			Summary: "Edit the selected message",
			Usage:   ":edit",
			Parse: func(args []string, _ bool) (Action, error) {
				if len(args) != 0 {
					return nil, usageError(":edit")
				}
				return Message{Action: chat.MessageEdit{}}, nil
			},
		},
		{
			Name:    "invite",
			Summary: "Accept or reject an invite, or invite a user",
			Usage:   ":invite <accept|reject|send USER>",
			Parse: func(args []string, _ bool) (Action, error) {
				switch {
				case len(args) == 1 && args[0] == "accept":
					return InviteAccept{}, nil
				case len(args) == 1 && args[0] == "reject":
					return InviteReject{}, nil
				case len(args) == 2 && args[0] == "send":
					return Room{Action: chat.RoomInvite{User: args[1]}}, nil
				}
				return nil, usageError(":invite <accept|reject|send USER>")
			},
		},
		{
			Name:    "join",
			Summary: "Join a room by alias or ID",
			Usage:   ":join <ROOM>",
			Parse: func(args []string, _ bool) (Action, error) {
				if len(args) != 1 {
					return nil, usageError(":join <ROOM>")
				}
				return Join{Target: args[0]}, nil
			},
		},
		{
			Name:    "leave",
			Summary: "Leave the current room",
			Usage:   ":leave",
			Parse: func(args []string, _ bool) (Action, error) {
				if len(args) != 0 {
					return nil, usageError(":leave")
				}
				return Leave{}, nil
			},
		},
		{
			Name:    "members",
			Summary: "Show the current room's members",
			Usage:   ":members",
			Parse: func(args []string, _ bool) (Action, error) {
				if len(args) != 0 {
					return nil, usageError(":members")
				}
				return ShowWindow{Window: WindowMembers}, nil
			},
		},
		{
			Name:      "open",
			Summary:   "Download and open the selected attachment",
			Usage:     ":open",
			AllowBang: true,
			Parse: func(args []string, bang bool) (Action, error) {
				if len(args) != 0 {
					return nil, usageError(":open")
				}
				return Download{Force: bang, Open: true}, nil
			},
		},
		{
			Name:    "react",
			Summary: "React to the selected message",
			Usage:   ":react <KEY>",
			Parse: func(args []string, _ bool) (Action, error) {
				if len(args) != 1 {
					return nil, usageError(":react <KEY>")
				}
				return Message{Action: chat.MessageReact{Key: args[0]}}, nil
			},
		},
		{
			Name:    "redact",
			Summary: "Redact the selected message",
			Usage:   ":redact [REASON]",
			Parse: func(args []string, _ bool) (Action, error) {
				switch len(args) {
				case 0:
					return Message{Action: chat.MessageRedact{}}, nil
				case 1:
					return Message{Action: chat.MessageRedact{Reason: args[0]}}, nil
				}
				return nil, usageError(":redact [REASON]")
			},
		},
		{
			Name:    "reply",
			Summary: "Reply to the selected message",
			Usage:   ":reply",
			Parse: func(args []string, _ bool) (Action, error) {
				if len(args) != 0 {
					return nil, usageError(":reply")
				}
				return Message{Action: chat.MessageReply{}}, nil
			},
		},
		{
			Name:    "room",
			Summary: "Change the current room's name, topic, or tags",
			Usage:   ":room <name|topic|tag> <set|unset> [VALUE]",
			Parse:   parseRoom,
		},
		{
			Name:    "rooms",
			Summary: "Show the joined room list",
			Usage:   ":rooms",
			Parse: func(args []string, _ bool) (Action, error) {
				if len(args) != 0 {
					return nil, usageError(":rooms")
				}
				return ShowWindow{Window: WindowRooms}, nil
			},
		},
		{
			Name:    "spaces",
			Summary: "Show the space list",
			Usage:   ":spaces",
			Parse: func(args []string, _ bool) (Action, error) {
				if len(args) != 0 {
					return nil, usageError(":spaces")
				}
				return ShowWindow{Window: WindowSpaces}, nil
			},
		},
		{
			Name:    "unreact",
			Summary: "Remove your reaction from the selected message",
			Usage:   ":unreact [KEY]",
			Parse: func(args []string, _ bool) (Action, error) {
				switch len(args) {
				case 0:
					return Message{Action: chat.MessageUnreact{}}, nil
				case 1:
					return Message{Action: chat.MessageUnreact{Key: args[0]}}, nil
				}
				return nil, usageError(":unreact [KEY]")
			},
		},
		{
			Name:    "upload",
			Summary: "Upload a file to the current room",
			Usage:   ":upload <PATH>",
			Parse: func(args []string, _ bool) (Action, error) {
				if len(args) != 1 {
					return nil, usageError(":upload <PATH>")
				}
				return Send{Action: chat.SendUpload{Path: args[0]}}, nil
			},
		},
		{
			Name:    "verify",
			Summary: "Manage device verification",
			Usage:   ":verify [request USER | accept|confirm|cancel|mismatch TXN]",
			Parse:   parseVerify,
		},
		{
			Name:    "welcome",
			Summary: "Show the welcome screen",
			Usage:   ":welcome",
			Parse: func(args []string, _ bool) (Action, error) {
				if len(args) != 0 {
					return nil, usageError(":welcome")
				}
				return ShowWindow{Window: WindowWelcome}, nil
			},
		},
	}
}

const roomUsage = ":room <name|topic|tag> <set|unset> [VALUE]"

func parseRoom(args []string, _ bool) (Action, error) {
	if len(args) < 2 {
		return nil, usageError(roomUsage)
	}
	field, verb, values := args[0], args[1], args[2:]
	switch {
	case field == "name" && verb == "set" && len(values) == 1:
		return Room{Action: chat.RoomSet{Field: chat.FieldName{Name: values[0]}}}, nil
	case field == "name" && verb == "unset" && len(values) == 0:
		return Room{Action: chat.RoomUnset{Field: chat.FieldName{}}}, nil
	case field == "topic" && verb == "set" && len(values) == 1:
		return Room{Action: chat.RoomSet{Field: chat.FieldTopic{Topic: values[0]}}}, nil
	case field == "topic" && verb == "unset" && len(values) == 0:
		return Room{Action: chat.RoomUnset{Field: chat.FieldTopic{}}}, nil
	case field == "tag" && verb == "set" && len(values) == 1:
		tag, err := NormalizeTag(values[0])
		if err != nil {
			return nil, err
		}
		return Room{Action: chat.RoomSet{Field: chat.FieldTag{Tag: tag}}}, nil
	case field == "tag" && verb == "unset" && len(values) == 1:
		tag, err := NormalizeTag(values[0])
		if err != nil {
			return nil, err
		}
		return Room{Action: chat.RoomUnset{Field: chat.FieldTag{Tag: tag}}}, nil
	}
	return nil, usageError(roomUsage)
}

const verifyUsage = ":verify [request USER | accept|confirm|cancel|mismatch TXN]"

func parseVerify(args []string, _ bool) (Action, error) {
	switch len(args) {
	case 0:
		return ShowWindow{Window: WindowVerifications}, nil
	case 2:
		switch args[0] {
		case "request":
			user, err := ref.ParseUserID(args[1])
			if err != nil {
				return nil, fmt.Errorf("invalid user ID %q: %w", args[1], err)
			}
			return Verify{Action: chat.VerifyRequest{UserID: user}}, nil
		case "accept":
			return Verify{Action: chat.VerifyAccept{TransactionID: args[1]}}, nil
		case "confirm":
			return Verify{Action: chat.VerifyConfirm{TransactionID: args[1]}}, nil
		case "cancel", "mismatch":
			// A reported mismatch cancels the verification; there is
			// no separate wire state for it.
			return Verify{Action: chat.VerifyCancel{TransactionID: args[1]}}, nil
		}
	}
	return nil, usageError(verifyUsage)
}
