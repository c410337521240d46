// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package chat

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/parley-chat/parley/lib/ref"
	"github.com/parley-chat/parley/messaging"
)

// Shared fixtures for the package tests.
var (
	me    = ref.MustParseUserID("@me:local")
	alice = ref.MustParseUserID("@alice:local")
	bob   = ref.MustParseUserID("@bob:local")
	room1 = ref.MustParseRoomID("!one:local")
	room2 = ref.MustParseRoomID("!two:local")
)

func rawEvent(t *testing.T, id string, eventType ref.EventType, sender ref.UserID, ts int64, content any) messaging.Event {
	t.Helper()
	raw, err := json.Marshal(content)
	if err != nil {
		t.Fatalf("marshaling %s content: %v", eventType, err)
	}
	event := messaging.Event{
		Type:           eventType,
		Sender:         sender,
		OriginServerTS: ts,
		Content:        raw,
	}
	if id != "" {
		event.EventID = ref.MustParseEventID(id)
	}
	return event
}

func messageEvent(t *testing.T, id string, sender ref.UserID, ts int64, body string) messaging.Event {
	t.Helper()
	return rawEvent(t, id, messaging.EventTypeMessage, sender, ts, messaging.NewTextMessage(body))
}

func editEvent(t *testing.T, id string, sender ref.UserID, ts int64, target string, newBody string) messaging.Event {
	t.Helper()
	content := messaging.NewEdit(ref.MustParseEventID(target), messaging.NewTextMessage(newBody))
	return rawEvent(t, id, messaging.EventTypeMessage, sender, ts, content)
}

func reactionEvent(t *testing.T, id string, sender ref.UserID, ts int64, target string, key string) messaging.Event {
	t.Helper()
	content := messaging.NewReaction(ref.MustParseEventID(target), key)
	return rawEvent(t, id, messaging.EventTypeReaction, sender, ts, content)
}

func redactionEvent(t *testing.T, id string, sender ref.UserID, ts int64, target string, reason string) messaging.Event {
	t.Helper()
	event := rawEvent(t, id, messaging.EventTypeRedaction, sender, ts, messaging.RedactionContent{Reason: reason})
	event.Redacts = ref.MustParseEventID(target)
	return event
}

func stateEvent(t *testing.T, eventType ref.EventType, stateKey string, sender ref.UserID, content any) messaging.Event {
	t.Helper()
	event := rawEvent(t, "", eventType, sender, 0, content)
	event.StateKey = &stateKey
	return event
}

func serverKey(id string, ts int64) MessageKey {
	return MessageKey{Time: ServerTime(time.UnixMilli(ts)), EventID: ref.MustParseEventID(id)}
}

// joinedStore returns a store for the local user with room1 joined.
func joinedStore() *Store {
	store := NewStore(me)
	store.MarkJoined(room1)
	return store
}

func messageBody(t *testing.T, store *Store, roomID ref.RoomID, key MessageKey) string {
	t.Helper()
	var body string
	found := store.WithRoom(roomID, func(info *RoomInfo) {
		message, ok := info.Messages.Get(key)
		if !ok {
			t.Fatalf("no message at %v", key)
		}
		content, ok := message.Content()
		if !ok {
			t.Fatalf("message at %v has no content (%T)", key, message.Event)
		}
		body = content.Body
	})
	if !found {
		t.Fatalf("unknown room %s", roomID)
	}
	return body
}

func TestInsertOutOfOrder(t *testing.T) {
	store := joinedStore()
	store.ApplyTimelineEvents(room1, []messaging.Event{
		messageEvent(t, "$c", alice, 3000, "third"),
		messageEvent(t, "$a", alice, 1000, "first"),
		messageEvent(t, "$b", bob, 2000, "second"),
	})

	var bodies []string
	store.WithRoom(room1, func(info *RoomInfo) {
		for _, message := range info.Messages.All() {
			content, _ := message.Content()
			bodies = append(bodies, content.Body)
		}
	})
	want := []string{"first", "second", "third"}
	if len(bodies) != len(want) {
		t.Fatalf("folded %d messages, want %d", len(bodies), len(want))
	}
	for i := range want {
		if bodies[i] != want[i] {
			t.Errorf("bodies[%d] = %q, want %q", i, bodies[i], want[i])
		}
	}

	// Duplicate delivery replaces rather than duplicates.
	store.ApplyTimelineEvents(room1, []messaging.Event{
		messageEvent(t, "$b", bob, 2000, "second"),
	})
	store.WithRoom(room1, func(info *RoomInfo) {
		if info.Messages.Len() != 3 {
			t.Errorf("Len() = %d after duplicate delivery, want 3", info.Messages.Len())
		}
	})
}

func TestLocalEchoReconciliation(t *testing.T) {
	store := joinedStore()
	eventID := ref.MustParseEventID("$sent")
	content := messaging.NewTextMessage("hello")
	now := time.UnixMilli(10_000)

	store.ApplyTimelineEvents(room1, []messaging.Event{
		messageEvent(t, "$before", alice, 50_000, "existing"),
	})
	store.InsertLocalEcho(room1, eventID, "echo-1", content, now)

	store.WithRoom(room1, func(info *RoomInfo) {
		key, message, ok := info.Messages.Newest()
		if !ok || !key.Time.IsLocalEcho() || key.EventID != eventID {
			t.Fatalf("Newest() = %v, want local echo for %s", key, eventID)
		}
		local, ok := message.Event.(Local)
		if !ok {
			t.Fatalf("echo variant = %T, want Local", message.Event)
		}
		if local.TransactionID != "echo-1" {
			t.Errorf("TransactionID = %q", local.TransactionID)
		}
	})

	// The sync echo lands at its server position and the local entry
	// goes away: exactly one entry per event ID.
	store.ApplyTimelineEvents(room1, []messaging.Event{
		messageEvent(t, "$sent", me, 60_000, "hello"),
	})
	store.WithRoom(room1, func(info *RoomInfo) {
		if info.Messages.Len() != 2 {
			t.Fatalf("Len() = %d after reconciliation, want 2", info.Messages.Len())
		}
		if _, ok := info.Messages.Get(MessageKey{Time: LocalEchoTime(), EventID: eventID}); ok {
			t.Error("local echo entry survived reconciliation")
		}
		message, ok := info.Messages.Get(serverKey("$sent", 60_000))
		if !ok {
			t.Fatal("confirmed entry missing")
		}
		if _, ok := message.Event.(Original); !ok {
			t.Errorf("confirmed variant = %T, want Original", message.Event)
		}
	})
}

func TestLocalEchoAfterConfirmation(t *testing.T) {
	store := joinedStore()
	eventID := ref.MustParseEventID("$sent")

	// Sync was faster than the send call's return: the echo insert
	// must not add a second entry.
	store.ApplyTimelineEvents(room1, []messaging.Event{
		messageEvent(t, "$sent", me, 60_000, "hello"),
	})
	store.InsertLocalEcho(room1, eventID, "echo-1", messaging.NewTextMessage("hello"), time.UnixMilli(10_000))

	store.WithRoom(room1, func(info *RoomInfo) {
		if info.Messages.Len() != 1 {
			t.Fatalf("Len() = %d, want 1", info.Messages.Len())
		}
		if _, ok := info.Messages.Get(serverKey("$sent", 60_000)); !ok {
			t.Error("confirmed entry missing")
		}
	})
}

func TestEditFolding(t *testing.T) {
	t.Run("edits original in place", func(t *testing.T) {
		store := joinedStore()
		store.ApplyTimelineEvents(room1, []messaging.Event{
			messageEvent(t, "$m1", alice, 1000, "typo"),
			editEvent(t, "$e1", alice, 2000, "$m1", "fixed"),
		})
		if got := messageBody(t, store, room1, serverKey("$m1", 1000)); got != "fixed" {
			t.Errorf("body = %q, want %q", got, "fixed")
		}
		store.WithRoom(room1, func(info *RoomInfo) {
			// The edit mutated in place: no entry appeared for the
			// edit event itself.
			if info.Messages.Len() != 1 {
				t.Errorf("Len() = %d, want 1", info.Messages.Len())
			}
		})
	})

	t.Run("edit on redacted target is dropped", func(t *testing.T) {
		store := joinedStore()
		store.ApplyTimelineEvents(room1, []messaging.Event{
			messageEvent(t, "$m1", alice, 1000, "original"),
			redactionEvent(t, "$r1", alice, 1500, "$m1", ""),
			editEvent(t, "$e1", alice, 2000, "$m1", "necromancy"),
		})
		store.WithRoom(room1, func(info *RoomInfo) {
			message, ok := info.Messages.Get(serverKey("$m1", 1000))
			if !ok {
				t.Fatal("entry missing")
			}
			if _, ok := message.Event.(Redacted); !ok {
				t.Errorf("variant = %T, want Redacted", message.Event)
			}
		})
	})

	t.Run("edit on unknown target is dropped", func(t *testing.T) {
		store := joinedStore()
		store.ApplyTimelineEvents(room1, []messaging.Event{
			editEvent(t, "$e1", alice, 2000, "$ghost", "lost"),
		})
		store.WithRoom(room1, func(info *RoomInfo) {
			if info.Messages.Len() != 0 {
				t.Errorf("Len() = %d, want 0", info.Messages.Len())
			}
		})
	})

	t.Run("edits local echo keeping its transaction", func(t *testing.T) {
		store := joinedStore()
		eventID := ref.MustParseEventID("$pending")
		store.InsertLocalEcho(room1, eventID, "echo-7", messaging.NewTextMessage("draft"), time.UnixMilli(1000))
		store.ApplyEdit(room1, eventID, messaging.NewTextMessage("draft, better"))

		store.WithRoom(room1, func(info *RoomInfo) {
			message, ok := info.Messages.Get(MessageKey{Time: LocalEchoTime(), EventID: eventID})
			if !ok {
				t.Fatal("echo entry missing")
			}
			local, ok := message.Event.(Local)
			if !ok {
				t.Fatalf("variant = %T, want Local", message.Event)
			}
			if local.TransactionID != "echo-7" {
				t.Errorf("TransactionID = %q, want echo-7", local.TransactionID)
			}
			if local.Content.Body != "draft, better" {
				t.Errorf("body = %q", local.Content.Body)
			}
		})
	})
}

func TestRedactionFolding(t *testing.T) {
	t.Run("message redacted in place keeps its key", func(t *testing.T) {
		store := joinedStore()
		store.ApplyTimelineEvents(room1, []messaging.Event{
			messageEvent(t, "$m1", alice, 1000, "regret"),
			messageEvent(t, "$m2", bob, 2000, "neighbor"),
			redactionEvent(t, "$r1", alice, 3000, "$m1", "spam"),
		})
		store.WithRoom(room1, func(info *RoomInfo) {
			if info.Messages.Len() != 2 {
				t.Fatalf("Len() = %d, want 2", info.Messages.Len())
			}
			message, ok := info.Messages.Get(serverKey("$m1", 1000))
			if !ok {
				t.Fatal("redacted entry lost its key")
			}
			redacted, ok := message.Event.(Redacted)
			if !ok {
				t.Fatalf("variant = %T, want Redacted", message.Event)
			}
			if redacted.Reason != "spam" {
				t.Errorf("Reason = %q", redacted.Reason)
			}
		})
	})

	t.Run("redacts target in content", func(t *testing.T) {
		store := joinedStore()
		// Room v11 shape: the target lives in content, not at the
		// event's top level.
		redaction := rawEvent(t, "$r1", messaging.EventTypeRedaction, alice, 3000,
			messaging.RedactionContent{Redacts: ref.MustParseEventID("$m1")})
		store.ApplyTimelineEvents(room1, []messaging.Event{
			messageEvent(t, "$m1", alice, 1000, "regret"),
			redaction,
		})
		store.WithRoom(room1, func(info *RoomInfo) {
			message, _ := info.Messages.Get(serverKey("$m1", 1000))
			if _, ok := message.Event.(Redacted); !ok {
				t.Errorf("variant = %T, want Redacted", message.Event)
			}
		})
	})

	t.Run("reaction redaction removes it from the table", func(t *testing.T) {
		store := joinedStore()
		target := ref.MustParseEventID("$m1")
		store.ApplyTimelineEvents(room1, []messaging.Event{
			messageEvent(t, "$m1", alice, 1000, "popular"),
			reactionEvent(t, "$react1", bob, 2000, "$m1", "👍"),
			reactionEvent(t, "$react2", me, 2500, "$m1", "👍"),
			redactionEvent(t, "$r1", bob, 3000, "$react1", ""),
		})
		store.WithRoom(room1, func(info *RoomInfo) {
			counts := info.ReactionSummary(target, me)
			if len(counts) != 1 || counts[0].Count != 1 || !counts[0].Mine {
				t.Errorf("ReactionSummary = %+v, want one remaining own 👍", counts)
			}
			if _, ok := info.Location(ref.MustParseEventID("$react1")); ok {
				t.Error("redacted reaction still indexed")
			}
			// The annotated message itself is untouched.
			message, _ := info.Messages.Get(serverKey("$m1", 1000))
			if _, ok := message.Event.(Original); !ok {
				t.Errorf("message variant = %T, want Original", message.Event)
			}
		})
	})

	t.Run("unknown target is a no-op", func(t *testing.T) {
		store := joinedStore()
		store.ApplyTimelineEvents(room1, []messaging.Event{
			messageEvent(t, "$m1", alice, 1000, "fine"),
			redactionEvent(t, "$r1", alice, 3000, "$ghost", ""),
		})
		if got := messageBody(t, store, room1, serverKey("$m1", 1000)); got != "fine" {
			t.Errorf("body = %q, want untouched", got)
		}
	})

	t.Run("encrypted becomes encrypted redacted", func(t *testing.T) {
		store := joinedStore()
		encrypted := messaging.Event{
			EventID:        ref.MustParseEventID("$enc"),
			Type:           messaging.EventTypeEncrypted,
			Sender:         alice,
			OriginServerTS: 1000,
			Content:        json.RawMessage(`{"algorithm":"m.megolm.v1.aes-sha2"}`),
		}
		store.ApplyTimelineEvents(room1, []messaging.Event{
			encrypted,
			redactionEvent(t, "$r1", alice, 2000, "$enc", ""),
		})
		store.WithRoom(room1, func(info *RoomInfo) {
			message, ok := info.Messages.Get(serverKey("$enc", 1000))
			if !ok {
				t.Fatal("encrypted entry missing")
			}
			if _, ok := message.Event.(EncryptedRedacted); !ok {
				t.Errorf("variant = %T, want EncryptedRedacted", message.Event)
			}
		})
	})
}

func TestReactionAggregation(t *testing.T) {
	store := joinedStore()
	target := ref.MustParseEventID("$m1")
	store.ApplyTimelineEvents(room1, []messaging.Event{
		messageEvent(t, "$m1", alice, 1000, "popular"),
		reactionEvent(t, "$r1", bob, 2000, "$m1", "🎉"),
		reactionEvent(t, "$r2", me, 2100, "$m1", "🎉"),
		reactionEvent(t, "$r3", alice, 2200, "$m1", "❤️"),
	})
	// Refetched pages redeliver reactions; keyed by event ID they
	// must not double count.
	store.ApplyTimelineEvents(room1, []messaging.Event{
		reactionEvent(t, "$r1", bob, 2000, "$m1", "🎉"),
	})

	store.WithRoom(room1, func(info *RoomInfo) {
		counts := info.ReactionSummary(target, me)
		if len(counts) != 2 {
			t.Fatalf("ReactionSummary has %d keys, want 2: %+v", len(counts), counts)
		}
		// Sorted by key.
		if counts[0].Key != "❤️" || counts[0].Count != 1 || counts[0].Mine {
			t.Errorf("counts[0] = %+v", counts[0])
		}
		if counts[1].Key != "🎉" || counts[1].Count != 2 || !counts[1].Mine {
			t.Errorf("counts[1] = %+v", counts[1])
		}

		own := info.OwnReactions(target, me, "")
		if len(own) != 1 || own[0] != ref.MustParseEventID("$r2") {
			t.Errorf("OwnReactions = %v", own)
		}
		if got := info.OwnReactions(target, me, "❤️"); len(got) != 0 {
			t.Errorf("OwnReactions(❤️) = %v, want none", got)
		}
	})
}

func TestMalformedEventsDropped(t *testing.T) {
	store := joinedStore()
	garbage := messaging.Event{
		EventID:        ref.MustParseEventID("$bad"),
		Type:           messaging.EventTypeMessage,
		Sender:         alice,
		OriginServerTS: 1000,
		Content:        json.RawMessage(`{not json`),
	}
	keyless := rawEvent(t, "$r1", messaging.EventTypeReaction, bob, 2000,
		messaging.ReactionContent{RelatesTo: messaging.RelatesTo{
			RelType: messaging.RelTypeAnnotation,
			EventID: ref.MustParseEventID("$m1"),
		}})
	noTarget := rawEvent(t, "$r2", messaging.EventTypeRedaction, alice, 3000,
		messaging.RedactionContent{})

	store.ApplyTimelineEvents(room1, []messaging.Event{
		garbage,
		messageEvent(t, "$m1", alice, 1500, "survivor"),
		keyless,
		noTarget,
	})

	store.WithRoom(room1, func(info *RoomInfo) {
		if info.Messages.Len() != 1 {
			t.Errorf("Len() = %d, want only the survivor", info.Messages.Len())
		}
		if counts := info.ReactionSummary(ref.MustParseEventID("$m1"), me); len(counts) != 0 {
			t.Errorf("keyless reaction folded: %+v", counts)
		}
	})
}

func TestApplySyncJoinedRoom(t *testing.T) {
	store := NewStore(me)
	now := time.UnixMilli(1_000_000)
	response := &messaging.SyncResponse{
		NextBatch: "batch-1",
		Rooms: messaging.RoomsSection{
			Join: map[ref.RoomID]messaging.JoinedRoom{
				room1: {
					State: messaging.StateSection{Events: []messaging.Event{
						stateEvent(t, messaging.EventTypeName, "", alice, messaging.NameContent{Name: "Ops"}),
						stateEvent(t, messaging.EventTypeTopic, "", alice, messaging.TopicContent{Topic: "incidents"}),
					}},
					Timeline: messaging.TimelineSection{
						Events: []messaging.Event{
							messageEvent(t, "$m1", alice, 900_000, "first"),
							messageEvent(t, "$m2", bob, 950_000, "second"),
						},
						Limited:   true,
						PrevBatch: "prev-1",
					},
					Ephemeral: messaging.EphemeralSection{Events: []messaging.Event{
						rawEvent(t, "", messaging.EventTypeTyping, ref.UserID{}, 0,
							messaging.TypingContent{UserIDs: []ref.UserID{me, alice}}),
						rawEvent(t, "", messaging.EventTypeReceipt, ref.UserID{}, 0,
							messaging.ReceiptContent{
								ref.MustParseEventID("$m1"): {
									Read: map[ref.UserID]messaging.ReceiptInfo{
										bob: {TS: 960_000},
									},
								},
							}),
					}},
					AccountData: messaging.AccountDataSection{Events: []messaging.Event{
						rawEvent(t, "", messaging.EventTypeTag, ref.UserID{}, 0,
							messaging.TagContent{Tags: map[string]messaging.Tag{messaging.TagFavourite: {}}}),
						rawEvent(t, "", messaging.EventTypeFullyRead, ref.UserID{}, 0,
							messaging.FullyReadContent{EventID: ref.MustParseEventID("$m1")}),
					}},
					UnreadNotifications: messaging.UnreadNotificationCounts{
						HighlightCount:    1,
						NotificationCount: 4,
					},
				},
			},
		},
		Presence: messaging.PresenceSection{Events: []messaging.Event{
			rawEvent(t, "", messaging.EventTypePresence, alice,
				0, messaging.PresenceContent{Presence: messaging.PresenceUnavailable, StatusMsg: "afk"}),
		}},
	}

	store.ApplySync(response, now)

	store.WithRoom(room1, func(info *RoomInfo) {
		if info.Membership != MembershipJoined {
			t.Errorf("Membership = %v", info.Membership)
		}
		if info.Name != "Ops" || info.Topic != "incidents" {
			t.Errorf("Name/Topic = %q/%q", info.Name, info.Topic)
		}
		if info.Messages.Len() != 2 {
			t.Errorf("Messages.Len() = %d, want 2", info.Messages.Len())
		}
		if got := info.Typing.Render(now); got != "@alice:local is typing..." {
			t.Errorf("typing = %q (local user must be excluded)", got)
		}
		if _, ok := info.Tags[messaging.TagFavourite]; !ok {
			t.Error("favourite tag missing")
		}
		if info.FullyRead != ref.MustParseEventID("$m1") {
			t.Errorf("FullyRead = %v", info.FullyRead)
		}
		if info.UnreadNotifications != 4 || info.UnreadHighlights != 1 {
			t.Errorf("unread = %d/%d", info.UnreadNotifications, info.UnreadHighlights)
		}
		if !info.LastActivity.Equal(time.UnixMilli(950_000)) {
			t.Errorf("LastActivity = %v", info.LastActivity)
		}
	})

	// Receipts accumulate but the render table waits for the refresh.
	store.WithRoom(room1, func(info *RoomInfo) {
		if len(info.Receipts) != 0 {
			t.Errorf("Receipts populated before refresh: %v", info.Receipts)
		}
	})
	store.RebuildReceipts(room1)
	store.WithRoom(room1, func(info *RoomInfo) {
		users := info.Receipts[ref.MustParseEventID("$m1")]
		if len(users) != 1 || users[0] != bob {
			t.Errorf("Receipts[$m1] = %v, want [bob]", users)
		}
	})

	if presence, ok := store.Presence(alice); !ok || presence.Presence != messaging.PresenceUnavailable {
		t.Errorf("Presence(alice) = %+v, %v", presence, ok)
	}
}

func TestApplySyncInviteAndLeave(t *testing.T) {
	store := NewStore(me)

	invite := &messaging.SyncResponse{Rooms: messaging.RoomsSection{
		Invite: map[ref.RoomID]messaging.InvitedRoom{
			room1: {InviteState: messaging.InviteStateSection{Events: []messaging.Event{
				stateEvent(t, messaging.EventTypeName, "", alice, messaging.NameContent{Name: "Secret"}),
				stateEvent(t, messaging.EventTypeMember, me.String(), alice,
					messaging.MemberContent{Membership: "invite", IsDirect: true}),
			}}},
		},
	}}
	store.ApplySync(invite, time.UnixMilli(1000))

	store.WithRoom(room1, func(info *RoomInfo) {
		if info.Membership != MembershipInvited {
			t.Errorf("Membership = %v, want invited", info.Membership)
		}
		if info.InvitedBy != alice {
			t.Errorf("InvitedBy = %v", info.InvitedBy)
		}
		if info.DirectPeer != alice {
			t.Errorf("DirectPeer = %v", info.DirectPeer)
		}
		if info.Name != "Secret" {
			t.Errorf("Name = %q", info.Name)
		}
	})

	// Join wins over a stale invite section arriving in the same or a
	// later response.
	store.MarkJoined(room1)
	store.ApplySync(invite, time.UnixMilli(2000))
	if got := store.Membership(room1); got != MembershipJoined {
		t.Errorf("Membership = %v after stale invite, want joined", got)
	}

	leave := &messaging.SyncResponse{Rooms: messaging.RoomsSection{
		Leave: map[ref.RoomID]messaging.LeftRoom{room1: {}},
	}}
	store.ApplySync(leave, time.UnixMilli(3000))
	if got := store.Membership(room1); got != MembershipLeft {
		t.Errorf("Membership = %v after leave, want left", got)
	}
	// The room never leaves the registry.
	if ok := store.WithRoom(room1, func(*RoomInfo) {}); !ok {
		t.Error("left room vanished from the registry")
	}
}

func TestApplySyncDirects(t *testing.T) {
	store := NewStore(me)
	response := &messaging.SyncResponse{
		AccountData: messaging.AccountDataSection{Events: []messaging.Event{
			rawEvent(t, "", messaging.EventTypeDirect, ref.UserID{}, 0,
				messaging.DirectContent{alice: {room1}}),
		}},
	}
	store.ApplySync(response, time.UnixMilli(1000))

	// The mentioned room entered the registry with unknown membership,
	// so it is not yet a usable direct room.
	if ok := store.WithRoom(room1, func(*RoomInfo) {}); !ok {
		t.Fatal("mentioned room missing from registry")
	}
	if _, ok := store.DirectRoom(alice); ok {
		t.Error("DirectRoom returned a room that is not joined")
	}

	store.MarkJoined(room1)
	roomID, ok := store.DirectRoom(alice)
	if !ok || roomID != room1 {
		t.Errorf("DirectRoom(alice) = %v, %v", roomID, ok)
	}
	store.WithRoom(room1, func(info *RoomInfo) {
		if info.DirectPeer != alice {
			t.Errorf("DirectPeer = %v", info.DirectPeer)
		}
		if !info.IsDirect() {
			t.Error("IsDirect() = false")
		}
	})
}

func TestReceiptsReplacedWholesale(t *testing.T) {
	store := joinedStore()
	receipt := func(eventID string) messaging.Event {
		return rawEvent(t, "", messaging.EventTypeReceipt, ref.UserID{}, 0, messaging.ReceiptContent{
			ref.MustParseEventID(eventID): {Read: map[ref.UserID]messaging.ReceiptInfo{alice: {}}},
		})
	}
	apply := func(event messaging.Event) {
		store.ApplySync(&messaging.SyncResponse{Rooms: messaging.RoomsSection{
			Join: map[ref.RoomID]messaging.JoinedRoom{room1: {
				Ephemeral: messaging.EphemeralSection{Events: []messaging.Event{event}},
			}},
		}}, time.UnixMilli(1000))
	}

	apply(receipt("$m1"))
	store.RebuildReceipts(room1)
	apply(receipt("$m2"))
	store.RebuildReceipts(room1)

	store.WithRoom(room1, func(info *RoomInfo) {
		if users := info.Receipts[ref.MustParseEventID("$m1")]; len(users) != 0 {
			t.Errorf("old receipt row survived: %v", users)
		}
		if users := info.Receipts[ref.MustParseEventID("$m2")]; len(users) != 1 || users[0] != alice {
			t.Errorf("Receipts[$m2] = %v, want [alice]", users)
		}
	})
}

func TestVerificationLifecycle(t *testing.T) {
	store := NewStore(me)
	now := time.UnixMilli(1000)
	verification := func(eventType ref.EventType, content messaging.VerificationContent) *messaging.SyncResponse {
		return &messaging.SyncResponse{ToDevice: messaging.ToDeviceSection{Events: []messaging.Event{
			rawEvent(t, "", eventType, alice, 0, content),
		}}}
	}

	store.ApplySync(verification(messaging.EventTypeVerificationRequest, messaging.VerificationContent{
		TransactionID: "txn-1",
		FromDevice:    ref.MustParseDeviceID("ALICEDEV"),
		Methods:       []string{messaging.VerificationMethodSAS},
	}), now)

	v, ok := store.Verification("txn-1")
	if !ok {
		t.Fatal("verification not tracked")
	}
	if v.Phase != VerificationRequested || v.UserID != alice || v.DeviceID != ref.MustParseDeviceID("ALICEDEV") {
		t.Errorf("verification = %+v", v)
	}

	store.ApplySync(verification(messaging.EventTypeVerificationStart, messaging.VerificationContent{
		TransactionID: "txn-1",
		Method:        messaging.VerificationMethodSAS,
	}), now.Add(time.Second))
	if v, _ := store.Verification("txn-1"); v.Phase != VerificationStarted {
		t.Errorf("Phase = %v, want started", v.Phase)
	}

	store.ApplySync(verification(messaging.EventTypeVerificationCancel, messaging.VerificationContent{
		TransactionID: "txn-1",
		Code:          "m.user",
	}), now.Add(2*time.Second))
	if v, _ := store.Verification("txn-1"); v.Phase != VerificationCanceled {
		t.Errorf("Phase = %v, want canceled", v.Phase)
	}

	// Phase signals for unknown transactions are dropped.
	store.ApplySync(verification(messaging.EventTypeVerificationReady, messaging.VerificationContent{
		TransactionID: "txn-ghost",
	}), now)
	if _, ok := store.Verification("txn-ghost"); ok {
		t.Error("unknown transaction materialized from a ready signal")
	}
}

func TestDownloadedSurvivesReinsert(t *testing.T) {
	store := joinedStore()
	event := messageEvent(t, "$img", alice, 1000, "cat.png")
	store.ApplyTimelineEvents(room1, []messaging.Event{event})
	store.SetDownloaded(room1, ref.MustParseEventID("$img"), &MediaPreview{Source: "/cache/cat"})

	// An overlapping page redelivers the event; local attachment
	// state is not server state and must survive.
	store.ApplyTimelineEvents(room1, []messaging.Event{event})

	store.WithRoom(room1, func(info *RoomInfo) {
		message, _ := info.Messages.Get(serverKey("$img", 1000))
		if !message.Downloaded {
			t.Error("Downloaded flag lost on reinsert")
		}
		if message.Preview == nil || message.Preview.Source != "/cache/cat" {
			t.Errorf("Preview = %+v", message.Preview)
		}
	})
}
