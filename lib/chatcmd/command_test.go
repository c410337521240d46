// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package chatcmd

import (
	"reflect"
	"strings"
	"testing"

	"github.com/parley-chat/parley/chat"
	"github.com/parley-chat/parley/lib/ref"
)

func mustUserID(t *testing.T, raw string) ref.UserID {
	t.Helper()
	user, err := ref.ParseUserID(raw)
	if err != nil {
		t.Fatalf("ParseUserID(%q): %v", raw, err)
	}
	return user
}

func TestDispatch(t *testing.T) {
	registry := NewRegistry()
	alice := mustUserID(t, "@alice:example.com")

	tests := []struct {
		line string
		want Action
	}{
		{":cancel", Message{Action: chat.MessageCancel{}}},
		{"cancel", Message{Action: chat.MessageCancel{}}},
		{"  :cancel  ", Message{Action: chat.MessageCancel{}}},
		{":dms", ShowWindow{Window: WindowDirects}},
		{":download", Download{}},
		{":download!", Download{Force: true}},
		{":edit", Message{Action: chat.MessageEdit{}}},
		{":invite accept", InviteAccept{}},
		{":invite reject", InviteReject{}},
		{":invite send @bob:example.com", Room{Action: chat.RoomInvite{User: "@bob:example.com"}}},
		{":join #go:example.com", Join{Target: "#go:example.com"}},
		{":leave", Leave{}},
		{":members", ShowWindow{Window: WindowMembers}},
		{":open", Download{Open: true}},
		{":open!", Download{Force: true, Open: true}},
		{":react 👍", Message{Action: chat.MessageReact{Key: "👍"}}},
		{":redact", Message{Action: chat.MessageRedact{}}},
		{":redact spam", Message{Action: chat.MessageRedact{Reason: "spam"}}},
		{`:redact "posted in error"`, Message{Action: chat.MessageRedact{Reason: "posted in error"}}},
		{":reply", Message{Action: chat.MessageReply{}}},
		{":rooms", ShowWindow{Window: WindowRooms}},
		{":spaces", ShowWindow{Window: WindowSpaces}},
		{":unreact", Message{Action: chat.MessageUnreact{}}},
		{":unreact 👍", Message{Action: chat.MessageUnreact{Key: "👍"}}},
		{":upload /tmp/photo.jpg", Send{Action: chat.SendUpload{Path: "/tmp/photo.jpg"}}},
		{":welcome", ShowWindow{Window: WindowWelcome}},

		{`:room name set "Operations Chat"`, Room{Action: chat.RoomSet{Field: chat.FieldName{Name: "Operations Chat"}}}},
		{":room name unset", Room{Action: chat.RoomUnset{Field: chat.FieldName{}}}},
		{":room topic set Standup", Room{Action: chat.RoomSet{Field: chat.FieldTopic{Topic: "Standup"}}}},
		{":room topic unset", Room{Action: chat.RoomUnset{Field: chat.FieldTopic{}}}},
		{":room tag set fav", Room{Action: chat.RoomSet{Field: chat.FieldTag{Tag: "m.favourite"}}}},
		{":room tag unset low-priority", Room{Action: chat.RoomUnset{Field: chat.FieldTag{Tag: "m.lowpriority"}}}},
		{":room tag set u.work", Room{Action: chat.RoomSet{Field: chat.FieldTag{Tag: "u.work"}}}},

		{":verify", ShowWindow{Window: WindowVerifications}},
		{":verify request @alice:example.com", Verify{Action: chat.VerifyRequest{UserID: alice}}},
		{":verify accept @alice:example.com/FOOBAR", Verify{Action: chat.VerifyAccept{TransactionID: "@alice:example.com/FOOBAR"}}},
		{":verify confirm @alice:example.com/FOOBAR", Verify{Action: chat.VerifyConfirm{TransactionID: "@alice:example.com/FOOBAR"}}},
		{":verify cancel @alice:example.com/FOOBAR", Verify{Action: chat.VerifyCancel{TransactionID: "@alice:example.com/FOOBAR"}}},
		{":verify mismatch @alice:example.com/FOOBAR", Verify{Action: chat.VerifyCancel{TransactionID: "@alice:example.com/FOOBAR"}}},
	}
	for _, test := range tests {
		t.Run(test.line, func(t *testing.T) {
			got, err := registry.Dispatch(test.line)
			if err != nil {
				t.Fatalf("Dispatch(%q): %v", test.line, err)
			}
			if !reflect.DeepEqual(got, test.want) {
				t.Fatalf("Dispatch(%q) = %#v, want %#v", test.line, got, test.want)
			}
		})
	}
}

func TestDispatchErrors(t *testing.T) {
	registry := NewRegistry()

	tests := []struct {
		line string
		want string
	}{
		{"", "empty command"},
		{":", "empty command"},
		{"   ", "empty command"},
		{":jion #go:example.com", `unknown command "jion" (did you mean "join"?)`},
		{":xyzzy", `unknown command "xyzzy"`},
		{":edit!", ":edit does not take !"},
		{":react!", ":react does not take !"},
		{":cancel now", "usage: :cancel"},
		{":join", "usage: :join <ROOM>"},
		{":join a b", "usage: :join <ROOM>"},
		{":react", "usage: :react <KEY>"},
		{":redact a b", "usage: :redact [REASON]"},
		{":upload", "usage: :upload <PATH>"},
		{":invite", "usage: :invite <accept|reject|send USER>"},
		{":invite send", "usage: :invite <accept|reject|send USER>"},
		{":invite accept @bob:example.com", "usage: :invite <accept|reject|send USER>"},
		{":room", "usage: " + roomUsage},
		{":room name", "usage: " + roomUsage},
		{":room name set", "usage: " + roomUsage},
		{":room name set one two", "usage: " + roomUsage},
		{":room name unset extra", "usage: " + roomUsage},
		{":room tag unset", "usage: " + roomUsage},
		{":room color set red", "usage: " + roomUsage},
		{":verify request", "usage: " + verifyUsage},
		{":verify cancel", "usage: " + verifyUsage},
		{":verify request a b c", "usage: " + verifyUsage},
		{":verify frobnicate txn", "usage: " + verifyUsage},
		{`:room name set "unterminated`, ":room: unterminated quote"},
		{`:upload path\`, ":upload: trailing backslash"},
	}
	for _, test := range tests {
		t.Run(test.line, func(t *testing.T) {
			action, err := registry.Dispatch(test.line)
			if err == nil {
				t.Fatalf("Dispatch(%q) = %#v, want error", test.line, action)
			}
			if err.Error() != test.want {
				t.Fatalf("Dispatch(%q) error = %q, want %q", test.line, err, test.want)
			}
		})
	}
}

func TestDispatchVerifyBadUser(t *testing.T) {
	registry := NewRegistry()
	_, err := registry.Dispatch(":verify request notauser")
	if err == nil {
		t.Fatal("Dispatch accepted a malformed user ID")
	}
	if !strings.Contains(err.Error(), `invalid user ID "notauser"`) {
		t.Fatalf("error = %q, want invalid user ID", err)
	}
}

func TestDispatchBadTag(t *testing.T) {
	registry := NewRegistry()
	_, err := registry.Dispatch(":room tag set banana")
	if err == nil {
		t.Fatal("Dispatch accepted an unknown tag name")
	}
	if !strings.Contains(err.Error(), `invalid tag name "banana"`) {
		t.Fatalf("error = %q, want invalid tag name", err)
	}
}

func TestRegistryCommands(t *testing.T) {
	registry := NewRegistry()
	commands := registry.Commands()
	if len(commands) == 0 {
		t.Fatal("registry has no commands")
	}

	seen := make(map[string]bool)
	previous := ""
	for _, command := range commands {
		if command.Name == "" {
			t.Fatal("command with empty name")
		}
		if seen[command.Name] {
			t.Fatalf("duplicate command %q", command.Name)
		}
		seen[command.Name] = true
		if command.Name <= previous {
			t.Fatalf("commands out of order: %q after %q", command.Name, previous)
		}
		previous = command.Name
		if command.Parse == nil {
			t.Fatalf("command %q has no parser", command.Name)
		}
		if command.Summary == "" {
			t.Fatalf("command %q has no summary", command.Name)
		}
		if !strings.HasPrefix(command.Usage, ":"+command.Name) {
			t.Fatalf("command %q usage %q does not start with its name", command.Name, command.Usage)
		}
	}
}

func TestSplitArgs(t *testing.T) {
	tests := []struct {
		raw  string
		want []string
	}{
		{"", nil},
		{"   ", nil},
		{"one", []string{"one"}},
		{"one two three", []string{"one", "two", "three"}},
		{`"one two" three`, []string{"one two", "three"}},
		{`say "hello \"world\"" now`, []string{"say", `hello "world"`, "now"}},
		{`a\ b`, []string{"a b"}},
		{`""`, []string{""}},
		{`tail  spaced   out `, []string{"tail", "spaced", "out"}},
	}
	for _, test := range tests {
		got, err := splitArgs(test.raw)
		if err != nil {
			t.Fatalf("splitArgs(%q): %v", test.raw, err)
		}
		if !reflect.DeepEqual(got, test.want) {
			t.Fatalf("splitArgs(%q) = %q, want %q", test.raw, got, test.want)
		}
	}
}

func TestLevenshtein(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"join", "", 4},
		{"", "join", 4},
		{"join", "join", 0},
		{"jion", "join", 2},
		{"download", "downloads", 1},
		{"kitten", "sitting", 3},
	}
	for _, test := range tests {
		if got := levenshtein(test.a, test.b); got != test.want {
			t.Fatalf("levenshtein(%q, %q) = %d, want %d", test.a, test.b, got, test.want)
		}
	}
}
