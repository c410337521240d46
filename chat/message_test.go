// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package chat

import (
	"testing"
	"time"

	"github.com/parley-chat/parley/lib/ref"
	"github.com/parley-chat/parley/messaging"
)

func TestMessageTimeOrdering(t *testing.T) {
	early := ServerTime(time.UnixMilli(1000))
	late := ServerTime(time.UnixMilli(2000))
	echo := LocalEchoTime()

	if got := early.Compare(late); got >= 0 {
		t.Errorf("early.Compare(late) = %d, want negative", got)
	}
	if got := late.Compare(early); got <= 0 {
		t.Errorf("late.Compare(early) = %d, want positive", got)
	}
	if got := early.Compare(early); got != 0 {
		t.Errorf("early.Compare(early) = %d, want 0", got)
	}

	// Local echoes sort after every server timestamp.
	if got := echo.Compare(late); got <= 0 {
		t.Errorf("echo.Compare(late) = %d, want positive", got)
	}
	if got := late.Compare(echo); got >= 0 {
		t.Errorf("late.Compare(echo) = %d, want negative", got)
	}
	if got := echo.Compare(LocalEchoTime()); got != 0 {
		t.Errorf("echo.Compare(echo) = %d, want 0", got)
	}

	if !echo.IsLocalEcho() {
		t.Error("LocalEchoTime().IsLocalEcho() = false")
	}
	if early.IsLocalEcho() {
		t.Error("ServerTime(...).IsLocalEcho() = true")
	}
	if !echo.Time().IsZero() {
		t.Errorf("echo.Time() = %v, want zero", echo.Time())
	}
	if got := late.Time(); !got.Equal(time.UnixMilli(2000)) {
		t.Errorf("late.Time() = %v, want %v", got, time.UnixMilli(2000))
	}
}

func TestMessageKeyTieBreak(t *testing.T) {
	ts := ServerTime(time.UnixMilli(5000))
	a := MessageKey{Time: ts, EventID: ref.MustParseEventID("$aaa")}
	b := MessageKey{Time: ts, EventID: ref.MustParseEventID("$bbb")}

	if got := a.Compare(b); got >= 0 {
		t.Errorf("a.Compare(b) = %d, want negative", got)
	}
	if got := b.Compare(a); got <= 0 {
		t.Errorf("b.Compare(a) = %d, want positive", got)
	}
	if got := a.Compare(a); got != 0 {
		t.Errorf("a.Compare(a) = %d, want 0", got)
	}

	// Time dominates the event ID.
	later := MessageKey{Time: ServerTime(time.UnixMilli(6000)), EventID: ref.MustParseEventID("$aaa")}
	if got := b.Compare(later); got >= 0 {
		t.Errorf("b.Compare(later) = %d, want negative", got)
	}
}

func TestMessageLogOrdering(t *testing.T) {
	log := NewMessageLog()

	echoKey := MessageKey{Time: LocalEchoTime(), EventID: ref.MustParseEventID("$echo")}
	midKey := MessageKey{Time: ServerTime(time.UnixMilli(2000)), EventID: ref.MustParseEventID("$mid")}
	oldKey := MessageKey{Time: ServerTime(time.UnixMilli(1000)), EventID: ref.MustParseEventID("$old")}
	newKey := MessageKey{Time: ServerTime(time.UnixMilli(3000)), EventID: ref.MustParseEventID("$new")}

	// Insert out of order; the local echo first to prove it stays last.
	log.Insert(echoKey, &Message{Event: Local{Content: messaging.NewTextMessage("echo")}})
	log.Insert(midKey, &Message{Event: Original{Content: messaging.NewTextMessage("mid")}})
	log.Insert(newKey, &Message{Event: Original{Content: messaging.NewTextMessage("new")}})
	log.Insert(oldKey, &Message{Event: Original{Content: messaging.NewTextMessage("old")}})

	var keys []MessageKey
	for key := range log.All() {
		keys = append(keys, key)
	}
	want := []MessageKey{oldKey, midKey, newKey, echoKey}
	if len(keys) != len(want) {
		t.Fatalf("iterated %d keys, want %d", len(keys), len(want))
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("keys[%d] = %v, want %v", i, keys[i], want[i])
		}
	}

	// Backward iteration mirrors forward.
	var backward []MessageKey
	for key := range log.Backward() {
		backward = append(backward, key)
	}
	for i := range want {
		if backward[len(backward)-1-i] != want[i] {
			t.Errorf("backward[%d] = %v, want %v", len(backward)-1-i, backward[len(backward)-1-i], want[i])
		}
	}

	if key, _, ok := log.Oldest(); !ok || key != oldKey {
		t.Errorf("Oldest() = %v, %v, want %v", key, ok, oldKey)
	}
	if key, _, ok := log.Newest(); !ok || key != echoKey {
		t.Errorf("Newest() = %v, %v, want %v", key, ok, echoKey)
	}
}

func TestMessageLogInsertReplaces(t *testing.T) {
	log := NewMessageLog()
	key := MessageKey{Time: ServerTime(time.UnixMilli(1000)), EventID: ref.MustParseEventID("$dup")}

	log.Insert(key, &Message{Event: Original{Content: messaging.NewTextMessage("first")}})
	log.Insert(key, &Message{Event: Original{Content: messaging.NewTextMessage("second")}})

	if log.Len() != 1 {
		t.Fatalf("Len() = %d after duplicate insert, want 1", log.Len())
	}
	message, ok := log.Get(key)
	if !ok {
		t.Fatal("Get() missing after insert")
	}
	content, ok := message.Content()
	if !ok || content.Body != "second" {
		t.Errorf("body = %q, want %q", content.Body, "second")
	}
}

func TestMessageLogRemove(t *testing.T) {
	log := NewMessageLog()
	key := MessageKey{Time: ServerTime(time.UnixMilli(1000)), EventID: ref.MustParseEventID("$gone")}
	keep := MessageKey{Time: ServerTime(time.UnixMilli(2000)), EventID: ref.MustParseEventID("$keep")}

	log.Insert(key, &Message{Event: Original{}})
	log.Insert(keep, &Message{Event: Original{}})
	log.Remove(key)

	if log.Len() != 1 {
		t.Fatalf("Len() = %d after remove, want 1", log.Len())
	}
	if _, ok := log.Get(key); ok {
		t.Error("removed key still present")
	}
	if _, ok := log.Get(keep); !ok {
		t.Error("unrelated key vanished")
	}

	// Removing an absent key is harmless.
	log.Remove(key)
	if log.Len() != 1 {
		t.Fatalf("Len() = %d after double remove, want 1", log.Len())
	}
}

func TestMessageContentAccess(t *testing.T) {
	original := &Message{Event: Original{Content: messaging.NewTextMessage("hi")}}
	if content, ok := original.Content(); !ok || content.Body != "hi" {
		t.Errorf("original Content() = %+v, %v", content, ok)
	}

	local := &Message{Event: Local{TransactionID: "echo-1", Content: messaging.NewTextMessage("pending")}}
	if content, ok := local.Content(); !ok || content.Body != "pending" {
		t.Errorf("local Content() = %+v, %v", content, ok)
	}

	redacted := &Message{Event: Redacted{Reason: "spam"}}
	if _, ok := redacted.Content(); ok {
		t.Error("redacted message reported content")
	}
	encrypted := &Message{Event: EncryptedOriginal{}}
	if _, ok := encrypted.Content(); ok {
		t.Error("encrypted message reported content")
	}
}

func TestAttachmentURL(t *testing.T) {
	image := &Message{Event: Original{Content: messaging.MessageContent{
		MsgType: messaging.MsgTypeImage,
		Body:    "cat.png",
		URL:     "mxc://local/cat",
	}}}
	if got := image.AttachmentURL(); got != "mxc://local/cat" {
		t.Errorf("image AttachmentURL() = %q", got)
	}

	text := &Message{Event: Original{Content: messaging.NewTextMessage("words")}}
	if got := text.AttachmentURL(); got != "" {
		t.Errorf("text AttachmentURL() = %q, want empty", got)
	}

	redacted := &Message{Event: Redacted{}}
	if got := redacted.AttachmentURL(); got != "" {
		t.Errorf("redacted AttachmentURL() = %q, want empty", got)
	}
}
