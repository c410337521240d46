// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package statecache

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/parley-chat/parley/chat"
	"github.com/parley-chat/parley/lib/ref"
	"github.com/parley-chat/parley/messaging"
)

var (
	me    = ref.MustParseUserID("@me:local")
	alice = ref.MustParseUserID("@alice:local")
	room1 = ref.MustParseRoomID("!one:local")
)

func openTestStore(t *testing.T, limit int) *Store {
	t.Helper()
	store, err := Open(Config{
		Path:          filepath.Join(t.TempDir(), "state.db"),
		SnapshotLimit: limit,
		UserID:        me,
	})
	if err != nil {
		t.Fatalf("opening cache: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

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

func stateEvent(t *testing.T, eventType ref.EventType, stateKey string, sender ref.UserID, content any) messaging.Event {
	t.Helper()
	event := rawEvent(t, "", eventType, sender, 0, content)
	event.StateKey = &stateKey
	return event
}

func joinResponse(token string, roomID ref.RoomID, joined messaging.JoinedRoom) *messaging.SyncResponse {
	return &messaging.SyncResponse{
		NextBatch: token,
		Rooms: messaging.RoomsSection{
			Join: map[ref.RoomID]messaging.JoinedRoom{roomID: joined},
		},
	}
}

// apply folds a response into a live store and persists it, the way
// the worker's sync callback does.
func apply(t *testing.T, cache *Store, live *chat.Store, response *messaging.SyncResponse) {
	t.Helper()
	live.ApplySync(response, time.Now())
	if err := cache.ApplySync(context.Background(), response, live.Rooms()); err != nil {
		t.Fatalf("persisting sync response: %v", err)
	}
}

func timelineBodies(t *testing.T, store *chat.Store, roomID ref.RoomID) []string {
	t.Helper()
	var bodies []string
	store.WithRoom(roomID, func(info *chat.RoomInfo) {
		for _, message := range info.Messages.All() {
			if content, ok := message.Content(); ok {
				bodies = append(bodies, content.Body)
			}
		}
	})
	return bodies
}

func TestColdStartIsEmpty(t *testing.T) {
	cache := openTestStore(t, 0)
	ctx := context.Background()

	token, err := cache.SyncToken(ctx)
	if err != nil {
		t.Fatalf("reading token: %v", err)
	}
	if token != "" {
		t.Errorf("cold cache has token %q", token)
	}

	snapshot, err := cache.Snapshot(ctx)
	if err != nil {
		t.Fatalf("reading snapshot: %v", err)
	}
	if snapshot != nil {
		t.Errorf("cold cache produced a snapshot: %+v", snapshot)
	}
}

func TestSyncTokenAdvances(t *testing.T) {
	cache := openTestStore(t, 0)
	live := chat.NewStore(me)
	ctx := context.Background()

	apply(t, cache, live, &messaging.SyncResponse{NextBatch: "s1"})
	apply(t, cache, live, &messaging.SyncResponse{NextBatch: "s2"})

	token, err := cache.SyncToken(ctx)
	if err != nil {
		t.Fatalf("reading token: %v", err)
	}
	if token != "s2" {
		t.Errorf("token = %q, want s2", token)
	}
}

func TestSnapshotRestoresThroughIngest(t *testing.T) {
	cache := openTestStore(t, 0)
	live := chat.NewStore(me)

	response := joinResponse("s1", room1, messaging.JoinedRoom{
		State: messaging.StateSection{Events: []messaging.Event{
			stateEvent(t, messaging.EventTypeName, "", alice, messaging.NameContent{Name: "Ops"}),
			stateEvent(t, messaging.EventTypeMember, me.String(), me, messaging.MemberContent{Membership: "join"}),
		}},
		Timeline: messaging.TimelineSection{Events: []messaging.Event{
			messageEvent(t, "$a", alice, 1000, "first"),
			messageEvent(t, "$b", me, 2000, "second"),
		}},
		UnreadNotifications: messaging.UnreadNotificationCounts{
			NotificationCount: 3,
			HighlightCount:    1,
		},
	})
	apply(t, cache, live, response)

	snapshot, err := cache.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("reading snapshot: %v", err)
	}
	if snapshot == nil {
		t.Fatal("no snapshot after apply")
	}
	if snapshot.NextBatch != "s1" {
		t.Errorf("snapshot token = %q, want s1", snapshot.NextBatch)
	}

	// A fresh store warmed from the snapshot matches the live one.
	warmed := chat.NewStore(me)
	warmed.ApplySync(snapshot, time.Now())

	if got := warmed.Membership(room1); got != chat.MembershipJoined {
		t.Errorf("membership = %v, want joined", got)
	}
	if got := timelineBodies(t, warmed, room1); len(got) != 2 || got[0] != "first" || got[1] != "second" {
		t.Errorf("timeline = %v, want [first second]", got)
	}
	rooms := warmed.Rooms()
	if len(rooms) != 1 {
		t.Fatalf("room list has %d entries, want 1", len(rooms))
	}
	if rooms[0].Name != "Ops" {
		t.Errorf("room name = %q, want Ops", rooms[0].Name)
	}
	if rooms[0].Unread != 3 || rooms[0].Highlights != 1 {
		t.Errorf("unread counts = %d/%d, want 3/1", rooms[0].Unread, rooms[0].Highlights)
	}
}

func TestSnapshotRestoresInvite(t *testing.T) {
	cache := openTestStore(t, 0)
	live := chat.NewStore(me)

	response := &messaging.SyncResponse{
		NextBatch: "s1",
		Rooms: messaging.RoomsSection{
			Invite: map[ref.RoomID]messaging.InvitedRoom{
				room1: {InviteState: messaging.InviteStateSection{Events: []messaging.Event{
					stateEvent(t, messaging.EventTypeName, "", alice, messaging.NameContent{Name: "Welcome"}),
					stateEvent(t, messaging.EventTypeMember, me.String(), alice, messaging.MemberContent{Membership: "invite"}),
				}}},
			},
		},
	}
	apply(t, cache, live, response)

	snapshot, err := cache.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("reading snapshot: %v", err)
	}
	warmed := chat.NewStore(me)
	warmed.ApplySync(snapshot, time.Now())

	if got := warmed.Membership(room1); got != chat.MembershipInvited {
		t.Errorf("membership = %v, want invited", got)
	}
	found := warmed.WithRoom(room1, func(info *chat.RoomInfo) {
		if info.Name != "Welcome" {
			t.Errorf("room name = %q, want Welcome", info.Name)
		}
		if info.InvitedBy != alice {
			t.Errorf("invited by %v, want %v", info.InvitedBy, alice)
		}
	})
	if !found {
		t.Fatal("invited room missing from warmed store")
	}
}

func TestSnapshotLimitKeepsNewest(t *testing.T) {
	cache := openTestStore(t, 3)
	live := chat.NewStore(me)

	var events []messaging.Event
	for i := 1; i <= 5; i++ {
		events = append(events, messageEvent(t, fmt.Sprintf("$m%d", i), alice, int64(i*1000), fmt.Sprintf("msg%d", i)))
	}
	apply(t, cache, live, joinResponse("s1", room1, messaging.JoinedRoom{
		Timeline: messaging.TimelineSection{Events: events},
	}))

	snapshot, err := cache.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("reading snapshot: %v", err)
	}
	warmed := chat.NewStore(me)
	warmed.ApplySync(snapshot, time.Now())

	got := timelineBodies(t, warmed, room1)
	want := []string{"msg3", "msg4", "msg5"}
	if len(got) != len(want) {
		t.Fatalf("timeline = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("timeline[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestSnapshotAccumulatesAcrossResponses(t *testing.T) {
	cache := openTestStore(t, 0)
	live := chat.NewStore(me)

	apply(t, cache, live, joinResponse("s1", room1, messaging.JoinedRoom{
		Timeline: messaging.TimelineSection{Events: []messaging.Event{
			messageEvent(t, "$a", alice, 1000, "first"),
		}},
	}))
	apply(t, cache, live, joinResponse("s2", room1, messaging.JoinedRoom{
		Timeline: messaging.TimelineSection{Events: []messaging.Event{
			messageEvent(t, "$b", alice, 2000, "second"),
		}},
	}))

	snapshot, err := cache.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("reading snapshot: %v", err)
	}
	warmed := chat.NewStore(me)
	warmed.ApplySync(snapshot, time.Now())

	if got := timelineBodies(t, warmed, room1); len(got) != 2 {
		t.Errorf("timeline = %v, want both messages", got)
	}
}

func TestLimitedTimelineDropsStaleSnapshot(t *testing.T) {
	cache := openTestStore(t, 0)
	live := chat.NewStore(me)

	apply(t, cache, live, joinResponse("s1", room1, messaging.JoinedRoom{
		Timeline: messaging.TimelineSection{Events: []messaging.Event{
			messageEvent(t, "$old", alice, 1000, "stale"),
		}},
	}))
	// A limited section means events were skipped between the cached
	// window and this batch; stitching across the gap would lie about
	// continuity.
	apply(t, cache, live, joinResponse("s2", room1, messaging.JoinedRoom{
		Timeline: messaging.TimelineSection{
			Events:  []messaging.Event{messageEvent(t, "$new", alice, 9000, "fresh")},
			Limited: true,
		},
	}))

	snapshot, err := cache.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("reading snapshot: %v", err)
	}
	warmed := chat.NewStore(me)
	warmed.ApplySync(snapshot, time.Now())

	got := timelineBodies(t, warmed, room1)
	if len(got) != 1 || got[0] != "fresh" {
		t.Errorf("timeline = %v, want [fresh]", got)
	}
}

func TestMemberCaptureIgnoresOtherUsers(t *testing.T) {
	cache := openTestStore(t, 0)
	live := chat.NewStore(me)

	apply(t, cache, live, joinResponse("s1", room1, messaging.JoinedRoom{
		State: messaging.StateSection{Events: []messaging.Event{
			stateEvent(t, messaging.EventTypeMember, me.String(), me, messaging.MemberContent{Membership: "join"}),
			stateEvent(t, messaging.EventTypeMember, alice.String(), alice, messaging.MemberContent{Membership: "join"}),
		}},
	}))

	snapshot, err := cache.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("reading snapshot: %v", err)
	}
	joined := snapshot.Rooms.Join[room1]
	for _, event := range joined.State.Events {
		if event.Type == messaging.EventTypeMember && *event.StateKey != me.String() {
			t.Errorf("cached a member event for %s", *event.StateKey)
		}
	}
}

func TestDirectMapSurvivesRestart(t *testing.T) {
	cache := openTestStore(t, 0)
	live := chat.NewStore(me)

	directs := messaging.DirectContent{alice: {room1}}
	response := joinResponse("s1", room1, messaging.JoinedRoom{
		State: messaging.StateSection{Events: []messaging.Event{
			stateEvent(t, messaging.EventTypeMember, me.String(), me, messaging.MemberContent{Membership: "join"}),
		}},
	})
	response.AccountData = messaging.AccountDataSection{Events: []messaging.Event{
		rawEvent(t, "", messaging.EventTypeDirect, ref.UserID{}, 0, directs),
	}}
	apply(t, cache, live, response)

	snapshot, err := cache.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("reading snapshot: %v", err)
	}
	warmed := chat.NewStore(me)
	warmed.ApplySync(snapshot, time.Now())

	roomID, ok := warmed.DirectRoom(alice)
	if !ok || roomID != room1 {
		t.Errorf("direct room with alice = %v (%v), want %v", roomID, ok, room1)
	}
}

func TestRoomTagsSurviveRestart(t *testing.T) {
	cache := openTestStore(t, 0)
	live := chat.NewStore(me)

	order := 0.3
	tagContent := messaging.TagContent{Tags: map[string]messaging.Tag{
		"m.favourite": {Order: &order},
	}}
	apply(t, cache, live, joinResponse("s1", room1, messaging.JoinedRoom{
		State: messaging.StateSection{Events: []messaging.Event{
			stateEvent(t, messaging.EventTypeMember, me.String(), me, messaging.MemberContent{Membership: "join"}),
		}},
		AccountData: messaging.AccountDataSection{Events: []messaging.Event{
			rawEvent(t, "", messaging.EventTypeTag, ref.UserID{}, 0, tagContent),
		}},
	}))

	snapshot, err := cache.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("reading snapshot: %v", err)
	}
	warmed := chat.NewStore(me)
	warmed.ApplySync(snapshot, time.Now())

	warmed.WithRoom(room1, func(info *chat.RoomInfo) {
		tag, ok := info.Tags["m.favourite"]
		if !ok {
			t.Fatal("favourite tag lost across restart")
		}
		if tag.Order == nil || *tag.Order != 0.3 {
			t.Errorf("tag order = %v, want 0.3", tag.Order)
		}
	})
}

func TestReadStats(t *testing.T) {
	cache := openTestStore(t, 0)
	live := chat.NewStore(me)

	apply(t, cache, live, joinResponse("s1", room1, messaging.JoinedRoom{
		State: messaging.StateSection{Events: []messaging.Event{
			stateEvent(t, messaging.EventTypeMember, me.String(), me, messaging.MemberContent{Membership: "join"}),
		}},
		Timeline: messaging.TimelineSection{Events: []messaging.Event{
			messageEvent(t, "$a", alice, 1000, "hello"),
		}},
	}))

	stats, err := cache.ReadStats(context.Background())
	if err != nil {
		t.Fatalf("reading stats: %v", err)
	}
	if stats.Rooms != 1 {
		t.Errorf("stats.Rooms = %d, want 1", stats.Rooms)
	}
	if stats.SnapshotBytes == 0 || stats.SnapshotEventBytes == 0 {
		t.Errorf("snapshot sizes = %d/%d, want nonzero", stats.SnapshotBytes, stats.SnapshotEventBytes)
	}
}

func TestInspectTimeline(t *testing.T) {
	cache := openTestStore(t, 0)
	live := chat.NewStore(me)

	apply(t, cache, live, joinResponse("s1", room1, messaging.JoinedRoom{
		Timeline: messaging.TimelineSection{Events: []messaging.Event{
			messageEvent(t, "$a", alice, 1000, "diagnose me"),
		}},
	}))

	diagnostic, err := cache.InspectTimeline(context.Background(), room1)
	if err != nil {
		t.Fatalf("inspecting timeline: %v", err)
	}
	if !strings.Contains(diagnostic, "diagnose me") {
		t.Errorf("diagnostic output missing message body: %s", diagnostic)
	}

	other := ref.MustParseRoomID("!absent:local")
	diagnostic, err = cache.InspectTimeline(context.Background(), other)
	if err != nil {
		t.Fatalf("inspecting absent room: %v", err)
	}
	if diagnostic != "" {
		t.Errorf("absent room produced diagnostic %q", diagnostic)
	}
}

func TestSnapshotSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	cache, err := Open(Config{Path: path, UserID: me})
	if err != nil {
		t.Fatalf("opening cache: %v", err)
	}
	live := chat.NewStore(me)
	apply(t, cache, live, joinResponse("s1", room1, messaging.JoinedRoom{
		Timeline: messaging.TimelineSection{Events: []messaging.Event{
			messageEvent(t, "$a", alice, 1000, "persisted"),
		}},
	}))
	if err := cache.Close(); err != nil {
		t.Fatalf("closing cache: %v", err)
	}

	reopened, err := Open(Config{Path: path, UserID: me})
	if err != nil {
		t.Fatalf("reopening cache: %v", err)
	}
	defer reopened.Close()

	token, err := reopened.SyncToken(context.Background())
	if err != nil {
		t.Fatalf("reading token: %v", err)
	}
	if token != "s1" {
		t.Errorf("token after reopen = %q, want s1", token)
	}
	snapshot, err := reopened.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("reading snapshot: %v", err)
	}
	warmed := chat.NewStore(me)
	warmed.ApplySync(snapshot, time.Now())
	if got := timelineBodies(t, warmed, room1); len(got) != 1 || got[0] != "persisted" {
		t.Errorf("timeline after reopen = %v, want [persisted]", got)
	}
}
