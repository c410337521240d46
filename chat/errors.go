// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package chat

import (
	"errors"
	"fmt"
)

// Kind classifies the errors the chat core returns to commands and key
// handlers. Transport errors from the homeserver pass through wrapped,
// keeping their *messaging.MatrixError available via errors.As.
type Kind int

const (
	// KindUnknownRoom: the room has never been seen by this session.
	KindUnknownRoom Kind = iota
	// KindNotJoined: the operation needs joined membership.
	KindNotJoined
	// KindNotInvited: accepting an invite that does not exist.
	KindNotInvited
	// KindNoSelectedMessage: a message action with no selection.
	KindNoSelectedMessage
	// KindNoAttachment: download on a message without an attachment.
	KindNoAttachment
	// KindInvalidUserID: user input that does not parse as a user ID.
	KindInvalidUserID
	// KindInvalidVerificationID: a verification action naming an
	// unknown transaction.
	KindInvalidVerificationID
	// KindInvalidAction: the action does not apply to its target,
	// such as editing another user's message.
	KindInvalidAction
	// KindTransport: a wrapped homeserver, storage, or serialization
	// failure.
	KindTransport
)

func (k Kind) String() string {
	switch k {
	case KindUnknownRoom:
		return "unknown room"
	case KindNotJoined:
		return "not joined"
	case KindNotInvited:
		return "not invited"
	case KindNoSelectedMessage:
		return "no selected message"
	case KindNoAttachment:
		return "no attachment"
	case KindInvalidUserID:
		return "invalid user ID"
	case KindInvalidVerificationID:
		return "invalid verification ID"
	case KindInvalidAction:
		return "invalid action"
	case KindTransport:
		return "transport"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Error is the chat core's error type.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	case e.Message != "":
		return e.Message
	case e.Err != nil:
		return e.Err.Error()
	default:
		return e.Kind.String()
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsKind reports whether err is a chat *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var chatErr *Error
	if errors.As(err, &chatErr) {
		return chatErr.Kind == kind
	}
	return false
}

func newError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// wrapTransport wraps a network, storage, or serialization failure.
// Returns nil when err is nil so call sites can wrap unconditionally.
func wrapTransport(message string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: KindTransport, Message: message, Err: err}
}
