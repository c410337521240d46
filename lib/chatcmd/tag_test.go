// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package chatcmd

import "testing"

func TestNormalizeTag(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"fav", TagFavourite},
		{"favorite", TagFavourite},
		{"favourite", TagFavourite},
		{"m.favourite", TagFavourite},
		{"low", TagLowPriority},
		{"lowpriority", TagLowPriority},
		{"low_priority", TagLowPriority},
		{"low-priority", TagLowPriority},
		{"m.lowpriority", TagLowPriority},
		{"servernotice", TagServerNotice},
		{"server_notice", TagServerNotice},
		{"server-notice", TagServerNotice},
		{"m.server_notice", TagServerNotice},
		{"u.work", "u.work"},
		{"u.x", "u.x"},
	}
	for _, test := range tests {
		got, err := NormalizeTag(test.name)
		if err != nil {
			t.Fatalf("NormalizeTag(%q): %v", test.name, err)
		}
		if got != test.want {
			t.Fatalf("NormalizeTag(%q) = %q, want %q", test.name, got, test.want)
		}
	}
}

func TestNormalizeTagInvalid(t *testing.T) {
	for _, name := range []string{"", "banana", "m.unknown", "u.", "favouritest"} {
		if got, err := NormalizeTag(name); err == nil {
			t.Fatalf("NormalizeTag(%q) = %q, want error", name, got)
		}
	}
}
