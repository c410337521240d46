// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package chatui

import (
	"strings"
	"testing"

	"github.com/charmbracelet/x/ansi"

	"github.com/parley-chat/parley/chat"
	"github.com/parley-chat/parley/lib/ref"
	"github.com/parley-chat/parley/messaging"
)

func joinedRoom(id, name string) chat.RoomSummary {
	return chat.RoomSummary{
		RoomID:     ref.MustParseRoomID(id),
		Name:       name,
		Membership: chat.MembershipJoined,
	}
}

// mustSelect fails the test when nothing is selected.
func mustSelect(t *testing.T, list *RoomList) chat.RoomSummary {
	t.Helper()
	summary, ok := list.Selected()
	if !ok {
		t.Fatal("expected a selection")
	}
	return summary
}

func TestRoomListSectionOrder(t *testing.T) {
	list := NewRoomList(DarkTheme)

	// Store order is newest activity first; sections regroup it.
	favourite := joinedRoom("!alpha:example.org", "alpha")
	favourite.Tags = []string{messaging.TagFavourite}
	invite := joinedRoom("!gamma:example.org", "gamma")
	invite.Membership = chat.MembershipInvited
	lowPriority := joinedRoom("!delta:example.org", "delta")
	lowPriority.Tags = []string{messaging.TagLowPriority}

	list.SetRooms([]chat.RoomSummary{
		favourite,
		joinedRoom("!beta:example.org", "beta"),
		invite,
		lowPriority,
	})

	want := []string{"gamma", "alpha", "beta", "delta"}
	list.Home()
	for i, name := range want {
		if got := mustSelect(t, &list); got.Name != name {
			t.Errorf("row %d should be %q, got %q", i, name, got.Name)
		}
		list.MoveDown()
	}
}

func TestRoomListSelectionDefaultsToTop(t *testing.T) {
	list := NewRoomList(DarkTheme)
	list.SetRooms([]chat.RoomSummary{
		joinedRoom("!one:example.org", "one"),
		joinedRoom("!two:example.org", "two"),
	})
	if got := mustSelect(t, &list); got.Name != "one" {
		t.Errorf("initial selection should be the top room, got %q", got.Name)
	}
}

func TestRoomListModes(t *testing.T) {
	list := NewRoomList(DarkTheme)
	direct := joinedRoom("!dm:example.org", "alice")
	direct.IsDirect = true
	space := joinedRoom("!space:example.org", "workspace")
	space.IsSpace = true
	list.SetRooms([]chat.RoomSummary{
		joinedRoom("!general:example.org", "general"),
		direct,
		space,
	})

	if list.Len() != 2 {
		t.Errorf("rooms mode should hide spaces, got %d entries", list.Len())
	}

	list.SetMode(ListDirects)
	if list.Len() != 1 {
		t.Fatalf("directs mode should keep one entry, got %d", list.Len())
	}
	list.Home()
	if got := mustSelect(t, &list); got.Name != "alice" {
		t.Errorf("directs mode should show the DM, got %q", got.Name)
	}

	list.SetMode(ListSpaces)
	if list.Len() != 1 {
		t.Fatalf("spaces mode should keep one entry, got %d", list.Len())
	}
	list.Home()
	if got := mustSelect(t, &list); got.Name != "workspace" {
		t.Errorf("spaces mode should show the space, got %q", got.Name)
	}
}

func TestRoomListExcludesLeftRooms(t *testing.T) {
	list := NewRoomList(DarkTheme)
	left := joinedRoom("!old:example.org", "old haunt")
	left.Membership = chat.MembershipLeft
	list.SetRooms([]chat.RoomSummary{
		joinedRoom("!general:example.org", "general"),
		left,
	})
	if list.Len() != 1 {
		t.Errorf("left rooms should never be listed, got %d entries", list.Len())
	}
	list.SetMode(ListDirects)
	if list.Len() != 0 {
		t.Errorf("left rooms should stay hidden across modes, got %d entries", list.Len())
	}
}

func TestRoomListFilter(t *testing.T) {
	list := NewRoomList(DarkTheme)
	list.SetRooms([]chat.RoomSummary{
		joinedRoom("!oxygen:example.org", "oxygen nook"),
		joinedRoom("!general:example.org", "general"),
		joinedRoom("!random:example.org", "random"),
	})

	list.Filter.Value = "gen"
	list.Refilter()
	if list.Len() != 2 {
		t.Fatalf("expected 2 matches for %q, got %d", "gen", list.Len())
	}
	// The word-start match outranks the mid-word one.
	list.Home()
	if got := mustSelect(t, &list); got.Name != "general" {
		t.Errorf("best match should sort first, got %q", got.Name)
	}

	list.Filter.Value = ""
	list.Refilter()
	if list.Len() != 3 {
		t.Errorf("clearing the filter should restore all rooms, got %d", list.Len())
	}
	if got := mustSelect(t, &list); got.Name != "general" {
		t.Errorf("selection should survive the filter being cleared, got %q", got.Name)
	}
}

func TestRoomListFilterSnapsSelection(t *testing.T) {
	list := NewRoomList(DarkTheme)
	general := joinedRoom("!general:example.org", "general")
	random := joinedRoom("!random:example.org", "random")
	list.SetRooms([]chat.RoomSummary{general, random})

	list.Select(random.RoomID)
	list.Filter.Value = "gen"
	list.Refilter()
	if got := mustSelect(t, &list); got.Name != "general" {
		t.Errorf("selection should snap to the top when filtered out, got %q", got.Name)
	}
}

func TestRoomListSelectIgnoresHidden(t *testing.T) {
	list := NewRoomList(DarkTheme)
	space := joinedRoom("!space:example.org", "workspace")
	space.IsSpace = true
	general := joinedRoom("!general:example.org", "general")
	list.SetRooms([]chat.RoomSummary{general, space})

	list.Select(space.RoomID)
	if got := mustSelect(t, &list); got.Name != "general" {
		t.Errorf("selecting a hidden room should be a no-op, got %q", got.Name)
	}
}

func TestRoomListNextUnread(t *testing.T) {
	list := NewRoomList(DarkTheme)
	quiet := joinedRoom("!quiet:example.org", "quiet")
	busy := joinedRoom("!busy:example.org", "busy")
	busy.Unread = 2
	calm := joinedRoom("!calm:example.org", "calm")
	pinged := joinedRoom("!pinged:example.org", "pinged")
	pinged.Highlights = 1
	list.SetRooms([]chat.RoomSummary{quiet, busy, calm, pinged})

	if !list.NextUnread() {
		t.Fatal("expected an unread room")
	}
	if got := mustSelect(t, &list); got.Name != "busy" {
		t.Errorf("first hop should land on the unread room, got %q", got.Name)
	}
	if !list.NextUnread() {
		t.Fatal("expected the highlighted room")
	}
	if got := mustSelect(t, &list); got.Name != "pinged" {
		t.Errorf("highlights should count as unread, got %q", got.Name)
	}
	if !list.NextUnread() {
		t.Fatal("expected the scan to wrap")
	}
	if got := mustSelect(t, &list); got.Name != "busy" {
		t.Errorf("scan should wrap past quiet rooms, got %q", got.Name)
	}
}

func TestRoomListNextUnreadNone(t *testing.T) {
	list := NewRoomList(DarkTheme)
	list.SetRooms([]chat.RoomSummary{
		joinedRoom("!one:example.org", "one"),
		joinedRoom("!two:example.org", "two"),
	})
	if list.NextUnread() {
		t.Error("NextUnread should report false with nothing unread")
	}
	if got := mustSelect(t, &list); got.Name != "one" {
		t.Errorf("selection should not move, got %q", got.Name)
	}
}

func TestRoomListMoveClamps(t *testing.T) {
	list := NewRoomList(DarkTheme)
	list.SetSize(24, 6)
	list.SetRooms([]chat.RoomSummary{
		joinedRoom("!one:example.org", "one"),
		joinedRoom("!two:example.org", "two"),
		joinedRoom("!three:example.org", "three"),
	})

	list.MoveUp()
	if got := mustSelect(t, &list); got.Name != "one" {
		t.Errorf("MoveUp at the top should stay, got %q", got.Name)
	}
	list.End()
	list.MoveDown()
	if got := mustSelect(t, &list); got.Name != "three" {
		t.Errorf("MoveDown at the bottom should stay, got %q", got.Name)
	}
	list.PageUp()
	if got := mustSelect(t, &list); got.Name != "one" {
		t.Errorf("PageUp should clamp to the first room, got %q", got.Name)
	}
}

func TestRoomListViewMarkers(t *testing.T) {
	list := NewRoomList(DarkTheme)
	list.SetSize(24, 6)
	unread := joinedRoom("!busy:example.org", "busy")
	unread.Unread = 3
	invite := joinedRoom("!new:example.org", "newcomers")
	invite.Membership = chat.MembershipInvited
	list.SetRooms([]chat.RoomSummary{unread, invite})

	view := ansi.Strip(list.View(true))
	if !strings.Contains(view, "busy") || !strings.Contains(view, "newcomers") {
		t.Fatalf("room names missing from view:\n%s", view)
	}
	if !strings.Contains(view, "•") {
		t.Errorf("unread marker missing from view:\n%s", view)
	}
	if !strings.Contains(view, "3") {
		t.Errorf("unread badge missing from view:\n%s", view)
	}
	if !strings.Contains(view, "+") {
		t.Errorf("invite marker missing from view:\n%s", view)
	}
}

func TestRoomListFilterLineVisibility(t *testing.T) {
	list := NewRoomList(DarkTheme)
	list.SetSize(24, 6)
	list.SetRooms([]chat.RoomSummary{joinedRoom("!general:example.org", "general")})

	if view := ansi.Strip(list.View(true)); strings.Contains(view, "/") {
		t.Errorf("idle list should not show the filter line:\n%s", view)
	}

	list.Filter.Active = true
	list.Filter.Value = "gen"
	list.Refilter()
	if view := ansi.Strip(list.View(true)); !strings.Contains(view, "/gen") {
		t.Errorf("active filter line missing:\n%s", view)
	}

	// A confirmed filter stays visible without the cursor.
	list.Filter.Active = false
	view := ansi.Strip(list.View(true))
	if !strings.Contains(view, "/gen") {
		t.Errorf("confirmed filter line missing:\n%s", view)
	}
	if strings.Contains(view, "▎") {
		t.Errorf("confirmed filter should drop the cursor:\n%s", view)
	}
}
