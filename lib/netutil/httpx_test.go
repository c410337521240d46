// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package netutil

import (
	"bytes"
	"fmt"
	"testing"
)

type failReader struct{}

func (failReader) Read([]byte) (int, error) {
	return 0, fmt.Errorf("read failure")
}

func TestReadResponse(t *testing.T) {
	t.Run("normal body", func(t *testing.T) {
		data, err := ReadResponse(bytes.NewReader([]byte(`{"next_batch":"s1"}`)))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if string(data) != `{"next_batch":"s1"}` {
			t.Fatalf("got %q, want %q", data, `{"next_batch":"s1"}`)
		}
	})

	t.Run("empty body", func(t *testing.T) {
		data, err := ReadResponse(bytes.NewReader(nil))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(data) != 0 {
			t.Fatalf("expected empty, got %d bytes", len(data))
		}
	})

	t.Run("read error propagates", func(t *testing.T) {
		if _, err := ReadResponse(failReader{}); err == nil {
			t.Fatal("expected error from failing reader")
		}
	})
}

func TestDecodeResponse(t *testing.T) {
	t.Run("valid JSON", func(t *testing.T) {
		body := bytes.NewReader([]byte(`{"event_id":"$abc","age":42}`))
		var result struct {
			EventID string `json:"event_id"`
			Age     int    `json:"age"`
		}
		if err := DecodeResponse(body, &result); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.EventID != "$abc" {
			t.Fatalf("event_id: got %q, want %q", result.EventID, "$abc")
		}
		if result.Age != 42 {
			t.Fatalf("age: got %d, want 42", result.Age)
		}
	})

	t.Run("invalid JSON", func(t *testing.T) {
		if err := DecodeResponse(bytes.NewReader([]byte(`not json`)), &struct{}{}); err == nil {
			t.Fatal("expected error for invalid JSON")
		}
	})

	t.Run("read error wraps", func(t *testing.T) {
		if err := DecodeResponse(failReader{}, &struct{}{}); err == nil {
			t.Fatal("expected error from failing reader")
		}
	})
}

func TestErrorBody(t *testing.T) {
	if got := ErrorBody(bytes.NewReader([]byte("M_FORBIDDEN"))); got != "M_FORBIDDEN" {
		t.Fatalf("got %q, want %q", got, "M_FORBIDDEN")
	}
	// Read errors are swallowed: a partial body is still useful.
	if got := ErrorBody(failReader{}); got != "" {
		t.Fatalf("got %q, want empty string", got)
	}
}
