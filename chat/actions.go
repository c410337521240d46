// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/parley-chat/parley/lib/ref"
	"github.com/parley-chat/parley/messaging"
)

// MessageAction is the closed set of operations on the selected
// message.
type MessageAction interface {
	messageAction()
}

// MessageCancel clears a pending reply or edit.
type MessageCancel struct{}

// MessageEdit starts editing the selected message. The command returns
// the message body for the composer to preload.
type MessageEdit struct{}

// MessageReply starts a reply to the selected message.
type MessageReply struct{}

// MessageRedact removes the selected message.
type MessageRedact struct {
	Reason string
}

// MessageReact annotates the selected message.
type MessageReact struct {
	Key string
}

// MessageUnreact removes the local user's reactions on the selected
// message. An empty Key removes all of them.
type MessageUnreact struct {
	Key string
}

// MessageDownload fetches the selected message's attachment into the
// media cache. Force bypasses a cached copy.
type MessageDownload struct {
	Force bool
}

func (MessageCancel) messageAction()   {}
func (MessageEdit) messageAction()     {}
func (MessageReply) messageAction()    {}
func (MessageRedact) messageAction()   {}
func (MessageReact) messageAction()    {}
func (MessageUnreact) messageAction()  {}
func (MessageDownload) messageAction() {}

// SendAction is the closed set of composer submissions.
type SendAction interface {
	sendAction()
}

// SendSubmit sends the composer text, honoring a pending reply or
// edit.
type SendSubmit struct {
	Text string
}

// SendUpload sends a local file as a media message.
type SendUpload struct {
	Path string
}

func (SendSubmit) sendAction() {}
func (SendUpload) sendAction() {}

// RoomAction is the closed set of operations on the room itself.
type RoomAction interface {
	roomAction()
}

// RoomInvite invites a user, given in raw form from user input.
type RoomInvite struct {
	User string
}

// RoomSet sets a room field.
type RoomSet struct {
	Field RoomField
}

// RoomUnset clears a room field.
type RoomUnset struct {
	Field RoomField
}

func (RoomInvite) roomAction() {}
func (RoomSet) roomAction()    {}
func (RoomUnset) roomAction()  {}

// RoomField is the closed set of settable room fields.
type RoomField interface {
	roomField()
}

// FieldName is the room's display name.
type FieldName struct {
	Name string
}

// FieldTopic is the room's topic.
type FieldTopic struct {
	Topic string
}

// FieldTag is a room tag such as "m.favourite". Order sorts rooms
// within the tag; nil leaves it to the server.
type FieldTag struct {
	Tag   string
	Order *float64
}

func (FieldName) roomField()  {}
func (FieldTopic) roomField() {}
func (FieldTag) roomField()   {}

// VerifyAction is the closed set of verification signaling steps.
type VerifyAction interface {
	verifyAction()
}

// VerifyRequest asks all of a user's devices to verify.
type VerifyRequest struct {
	UserID ref.UserID
}

// VerifyAccept readies a requested exchange.
type VerifyAccept struct {
	TransactionID string
}

// VerifyConfirm completes an exchange.
type VerifyConfirm struct {
	TransactionID string
}

// VerifyCancel abandons an exchange.
type VerifyCancel struct {
	TransactionID string
}

func (VerifyRequest) verifyAction() {}
func (VerifyAccept) verifyAction()  {}
func (VerifyConfirm) verifyAction() {}
func (VerifyCancel) verifyAction()  {}

// RoomState is the interactive state of one open room: the message
// selection and the pending reply or edit, plus the commands operating
// on them. It belongs to the UI loop and is not safe for concurrent
// use; the store and requester it drives are.
type RoomState struct {
	roomID    ref.RoomID
	store     *Store
	requester *Requester

	selected     MessageKey
	hasSelection bool

	editTarget ref.EventID
	replyTo    ref.EventID
}

// NewRoomState returns the interactive state for roomID.
func NewRoomState(roomID ref.RoomID, store *Store, requester *Requester) *RoomState {
	return &RoomState{roomID: roomID, store: store, requester: requester}
}

// RoomID returns the room this state drives.
func (rs *RoomState) RoomID() ref.RoomID {
	return rs.roomID
}

// Select sets the message selection, usually from a scroll position.
func (rs *RoomState) Select(key MessageKey) {
	rs.selected = key
	rs.hasSelection = true
}

// ClearSelection drops the message selection.
func (rs *RoomState) ClearSelection() {
	rs.hasSelection = false
}

// Selected returns the current selection.
func (rs *RoomState) Selected() (MessageKey, bool) {
	return rs.selected, rs.hasSelection
}

// EditTarget returns the event being edited, if any.
func (rs *RoomState) EditTarget() (ref.EventID, bool) {
	return rs.editTarget, !rs.editTarget.IsZero()
}

// ReplyTo returns the event being replied to, if any.
func (rs *RoomState) ReplyTo() (ref.EventID, bool) {
	return rs.replyTo, !rs.replyTo.IsZero()
}

// MessageCommand runs an action against the selected message,
// returning an info line for the UI when there is something to say.
func (rs *RoomState) MessageCommand(ctx context.Context, action MessageAction) (string, error) {
	switch action := action.(type) {
	case MessageCancel:
		rs.editTarget = ref.EventID{}
		rs.replyTo = ref.EventID{}
		return "", nil
	case MessageEdit:
		return rs.beginEdit()
	case MessageReply:
		key, err := rs.requireSelection()
		if err != nil {
			return "", err
		}
		rs.replyTo = key.EventID
		rs.editTarget = ref.EventID{}
		return "", nil
	case MessageRedact:
		key, err := rs.requireSelection()
		if err != nil {
			return "", err
		}
		if _, err := rs.requester.Redact(ctx, rs.roomID, key.EventID, action.Reason); err != nil {
			return "", err
		}
		return "", nil
	case MessageReact:
		key, err := rs.requireSelection()
		if err != nil {
			return "", err
		}
		if action.Key == "" {
			return "", newError(KindInvalidAction, "react needs a reaction key")
		}
		if _, err := rs.requester.SendReaction(ctx, rs.roomID, key.EventID, action.Key); err != nil {
			return "", err
		}
		return "", nil
	case MessageUnreact:
		return rs.unreact(ctx, action.Key)
	case MessageDownload:
		key, err := rs.requireSelection()
		if err != nil {
			return "", err
		}
		path, err := rs.requester.Download(ctx, rs.roomID, key.EventID, action.Force)
		if err != nil {
			return "", err
		}
		return path, nil
	default:
		panic(fmt.Sprintf("chat: unknown message action %T", action))
	}
}

// SendCommand submits the composer.
func (rs *RoomState) SendCommand(ctx context.Context, action SendAction) (string, error) {
	if err := rs.store.CheckJoined(rs.roomID); err != nil {
		return "", err
	}
	switch action := action.(type) {
	case SendSubmit:
		return "", rs.submit(ctx, action.Text)
	case SendUpload:
		if strings.TrimSpace(action.Path) == "" {
			return "", newError(KindInvalidAction, "upload needs a file path")
		}
		if _, err := rs.requester.Upload(ctx, rs.roomID, action.Path); err != nil {
			return "", err
		}
		return "", nil
	default:
		panic(fmt.Sprintf("chat: unknown send action %T", action))
	}
}

// RoomCommand runs an action against the room itself.
func (rs *RoomState) RoomCommand(ctx context.Context, action RoomAction) (string, error) {
	switch action := action.(type) {
	case RoomInvite:
		userID, err := ref.ParseUserID(strings.TrimSpace(action.User))
		if err != nil {
			return "", newError(KindInvalidUserID, "invalid user ID %q", action.User)
		}
		if err := rs.requester.Invite(ctx, rs.roomID, userID); err != nil {
			return "", err
		}
		return fmt.Sprintf("invited %s", userID), nil
	case RoomSet:
		return "", rs.requester.SetRoomField(ctx, rs.roomID, action.Field)
	case RoomUnset:
		return "", rs.requester.UnsetRoomField(ctx, rs.roomID, action.Field)
	default:
		panic(fmt.Sprintf("chat: unknown room action %T", action))
	}
}

// Members fetches the room's member list through the worker.
func (rs *RoomState) Members(ctx context.Context) ([]messaging.RoomMember, error) {
	return rs.requester.Members(ctx, rs.roomID)
}

// Composing forwards the composer's typing activity, honoring the
// typing-notice setting.
func (rs *RoomState) Composing(ctx context.Context, active bool) error {
	if !rs.store.Settings().SendTyping {
		return nil
	}
	return rs.requester.Typing(ctx, rs.roomID, active)
}

// MarkRead records the selected message (or the newest one) as the
// local read position, flushed on the next receipt refresh.
func (rs *RoomState) MarkRead() {
	key, ok := rs.Selected()
	if !ok {
		found := rs.store.WithRoom(rs.roomID, func(info *RoomInfo) {
			key, _, ok = info.Messages.Newest()
		})
		if !found || !ok {
			return
		}
	}
	if key.Time.IsLocalEcho() {
		return
	}
	rs.store.MarkReadTo(rs.roomID, key.EventID)
}

func (rs *RoomState) requireSelection() (MessageKey, error) {
	key, ok := rs.Selected()
	if !ok {
		return MessageKey{}, newError(KindNoSelectedMessage, "no message selected")
	}
	return key, nil
}

// beginEdit validates the selection is this user's own plaintext
// message and returns its body for the composer.
func (rs *RoomState) beginEdit() (string, error) {
	key, err := rs.requireSelection()
	if err != nil {
		return "", err
	}
	var (
		body     string
		sender   ref.UserID
		editable bool
	)
	found := rs.store.WithRoom(rs.roomID, func(info *RoomInfo) {
		message, ok := info.Messages.Get(key)
		if !ok {
			return
		}
		sender = message.Sender
		if content, ok := message.Content(); ok {
			body = content.Body
			editable = true
		}
	})
	if !found {
		return "", newError(KindUnknownRoom, "unknown room %s", rs.roomID)
	}
	if !editable {
		return "", newError(KindInvalidAction, "message cannot be edited")
	}
	if sender != rs.store.UserID() {
		return "", newError(KindInvalidAction, "cannot edit another user's message")
	}
	rs.editTarget = key.EventID
	rs.replyTo = ref.EventID{}
	return body, nil
}

// unreact redacts the local user's reactions on the selected message,
// one redaction per reaction event.
func (rs *RoomState) unreact(ctx context.Context, key string) (string, error) {
	selected, err := rs.requireSelection()
	if err != nil {
		return "", err
	}
	var reactionIDs []ref.EventID
	found := rs.store.WithRoom(rs.roomID, func(info *RoomInfo) {
		reactionIDs = info.OwnReactions(selected.EventID, rs.store.UserID(), key)
	})
	if !found {
		return "", newError(KindUnknownRoom, "unknown room %s", rs.roomID)
	}
	if len(reactionIDs) == 0 {
		return "no reactions to remove", nil
	}
	for _, reactionID := range reactionIDs {
		if _, err := rs.requester.Redact(ctx, rs.roomID, reactionID, ""); err != nil {
			return "", err
		}
	}
	return "", nil
}

// submit sends the composer text as a message, an edit, or a reply.
// Empty text is a no-op.
func (rs *RoomState) submit(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	base := ComposeMessage(text)
	switch {
	case !rs.editTarget.IsZero():
		target := rs.editTarget
		content := messaging.NewEdit(target, base)
		if _, err := rs.requester.SendEdit(ctx, rs.roomID, target, content); err != nil {
			return err
		}
		rs.editTarget = ref.EventID{}
	case !rs.replyTo.IsZero():
		content := messaging.NewReply(rs.replyTo, base)
		if _, err := rs.requester.SendMessage(ctx, rs.roomID, content); err != nil {
			return err
		}
		rs.replyTo = ref.EventID{}
	default:
		if _, err := rs.requester.SendMessage(ctx, rs.roomID, base); err != nil {
			return err
		}
	}
	return nil
}
