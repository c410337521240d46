// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package chat

import (
	"iter"
	"slices"
	"strings"
	"time"

	"github.com/parley-chat/parley/lib/ref"
	"github.com/parley-chat/parley/messaging"
)

// MessageTime is the ordering component of a MessageKey: either a server
// timestamp or the local-echo marker. Local echoes sort after every
// server timestamp, so a just-sent message renders at the bottom of the
// timeline until the server confirms it.
type MessageTime struct {
	localEcho bool
	ts        int64 // milliseconds since epoch, valid when !localEcho
}

// ServerTime returns the MessageTime for a server-confirmed event.
func ServerTime(ts time.Time) MessageTime {
	return MessageTime{ts: ts.UnixMilli()}
}

// LocalEchoTime returns the MessageTime for an unconfirmed local echo.
func LocalEchoTime() MessageTime {
	return MessageTime{localEcho: true}
}

// IsLocalEcho reports whether t is the local-echo marker.
func (t MessageTime) IsLocalEcho() bool {
	return t.localEcho
}

// Time returns the server timestamp. Zero for local echoes.
func (t MessageTime) Time() time.Time {
	if t.localEcho {
		return time.Time{}
	}
	return time.UnixMilli(t.ts)
}

// Compare orders t relative to other. Local echoes sort after all
// server timestamps; two local echoes compare equal.
func (t MessageTime) Compare(other MessageTime) int {
	switch {
	case t.localEcho && other.localEcho:
		return 0
	case t.localEcho:
		return 1
	case other.localEcho:
		return -1
	case t.ts < other.ts:
		return -1
	case t.ts > other.ts:
		return 1
	default:
		return 0
	}
}

// MessageKey identifies one timeline entry. Entries order by time first,
// then by event ID, so events sharing a server timestamp have a stable
// relative order.
type MessageKey struct {
	Time    MessageTime
	EventID ref.EventID
}

// Compare orders k relative to other.
func (k MessageKey) Compare(other MessageKey) int {
	if c := k.Time.Compare(other.Time); c != 0 {
		return c
	}
	return strings.Compare(k.EventID.String(), other.EventID.String())
}

// MessageEvent is the closed set of timeline entry payloads. An entry
// moves between variants as edits, redactions, and send confirmations
// fold in, but its key never changes once it holds a server timestamp.
type MessageEvent interface {
	messageEvent()
}

// Original is a plaintext message as received from the server.
type Original struct {
	Content messaging.MessageContent
}

// Local is a message this client sent that the server has not yet
// echoed back through sync. TransactionID is the send transaction used
// to correlate the echo.
type Local struct {
	TransactionID string
	Content       messaging.MessageContent
}

// Redacted is a message whose content was removed. Reason is the
// redaction reason, possibly empty.
type Redacted struct {
	Reason string
}

// EncryptedOriginal is an event this client could not decrypt.
type EncryptedOriginal struct{}

// EncryptedRedacted is an undecryptable event that was then redacted.
type EncryptedRedacted struct{}

func (Original) messageEvent()          {}
func (Local) messageEvent()             {}
func (Redacted) messageEvent()          {}
func (EncryptedOriginal) messageEvent() {}
func (EncryptedRedacted) messageEvent() {}

// MediaPreview is a rendered attachment preview the UI attaches to a
// message after downloading it. Source is the cache path the preview
// was rendered from.
type MediaPreview struct {
	Source   string
	Rendered string
}

// Message is one timeline entry.
type Message struct {
	Event     MessageEvent
	Sender    ref.UserID
	Timestamp time.Time

	// Downloaded marks the attachment as present in the local media
	// cache. Meaningless for messages without an attachment.
	Downloaded bool

	// Preview is the rendered attachment preview, nil until the UI
	// produces one.
	Preview *MediaPreview
}

// Content returns the message content for variants that carry one.
func (m *Message) Content() (messaging.MessageContent, bool) {
	switch event := m.Event.(type) {
	case Original:
		return event.Content, true
	case Local:
		return event.Content, true
	default:
		return messaging.MessageContent{}, false
	}
}

// AttachmentURL returns the mxc URL of the message's attachment, or ""
// when the message has none.
func (m *Message) AttachmentURL() string {
	content, ok := m.Content()
	if !ok {
		return ""
	}
	switch content.MsgType {
	case messaging.MsgTypeImage, messaging.MsgTypeFile, messaging.MsgTypeAudio, messaging.MsgTypeVideo:
		return content.URL
	default:
		return ""
	}
}

// MessageLog is the per-room timeline: an ordered map from MessageKey to
// Message. Keys are kept sorted, so iteration renders oldest to newest
// with local echoes last.
type MessageLog struct {
	keys     []MessageKey
	messages map[MessageKey]*Message
}

// NewMessageLog returns an empty timeline.
func NewMessageLog() *MessageLog {
	return &MessageLog{messages: make(map[MessageKey]*Message)}
}

// Len returns the number of entries.
func (l *MessageLog) Len() int {
	return len(l.keys)
}

// Get returns the entry for key.
func (l *MessageLog) Get(key MessageKey) (*Message, bool) {
	message, ok := l.messages[key]
	return message, ok
}

// Insert adds or replaces the entry for key, keeping the key order.
func (l *MessageLog) Insert(key MessageKey, message *Message) {
	if _, ok := l.messages[key]; ok {
		l.messages[key] = message
		return
	}
	i, _ := slices.BinarySearchFunc(l.keys, key, MessageKey.Compare)
	l.keys = slices.Insert(l.keys, i, key)
	l.messages[key] = message
}

// Remove deletes the entry for key if present.
func (l *MessageLog) Remove(key MessageKey) {
	if _, ok := l.messages[key]; !ok {
		return
	}
	delete(l.messages, key)
	i, found := slices.BinarySearchFunc(l.keys, key, MessageKey.Compare)
	if found {
		l.keys = slices.Delete(l.keys, i, i+1)
	}
}

// All iterates entries oldest to newest.
func (l *MessageLog) All() iter.Seq2[MessageKey, *Message] {
	return func(yield func(MessageKey, *Message) bool) {
		for _, key := range l.keys {
			if !yield(key, l.messages[key]) {
				return
			}
		}
	}
}

// Backward iterates entries newest to oldest.
func (l *MessageLog) Backward() iter.Seq2[MessageKey, *Message] {
	return func(yield func(MessageKey, *Message) bool) {
		for i := len(l.keys) - 1; i >= 0; i-- {
			if !yield(l.keys[i], l.messages[l.keys[i]]) {
				return
			}
		}
	}
}

// Oldest returns the first entry in key order.
func (l *MessageLog) Oldest() (MessageKey, *Message, bool) {
	if len(l.keys) == 0 {
		return MessageKey{}, nil, false
	}
	return l.keys[0], l.messages[l.keys[0]], true
}

// Newest returns the last entry in key order.
func (l *MessageLog) Newest() (MessageKey, *Message, bool) {
	if len(l.keys) == 0 {
		return MessageKey{}, nil, false
	}
	key := l.keys[len(l.keys)-1]
	return key, l.messages[key], true
}
