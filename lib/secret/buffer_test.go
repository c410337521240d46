// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package secret

import "testing"

func TestNewAllocatesZeroed(t *testing.T) {
	buffer, err := New(64)
	if err != nil {
		t.Fatalf("New(64) failed: %v", err)
	}
	defer buffer.Close()

	if buffer.Len() != 64 {
		t.Errorf("expected length 64, got %d", buffer.Len())
	}

	data := buffer.Bytes()
	if len(data) != 64 {
		t.Errorf("expected Bytes() length 64, got %d", len(data))
	}
	for index, value := range data {
		if value != 0 {
			t.Fatalf("expected zero at index %d, got %d", index, value)
		}
	}
}

func TestNewRejectsNonPositiveSize(t *testing.T) {
	for _, size := range []int{0, -1} {
		if _, err := New(size); err == nil {
			t.Errorf("New(%d) should fail", size)
		}
	}
}

func TestNewFromBytesZerosSource(t *testing.T) {
	source := []byte("hunter2-access-token")
	originalContent := string(source)

	buffer, err := NewFromBytes(source)
	if err != nil {
		t.Fatalf("NewFromBytes failed: %v", err)
	}
	defer buffer.Close()

	if got := buffer.String(); got != originalContent {
		t.Errorf("expected %q, got %q", originalContent, got)
	}

	// The caller's slice must no longer hold the secret.
	for index, value := range source {
		if value != 0 {
			t.Fatalf("source byte %d was not zeroed: got %d", index, value)
		}
	}
}

func TestNewFromBytesRejectsEmpty(t *testing.T) {
	if _, err := NewFromBytes([]byte{}); err == nil {
		t.Fatal("expected error for empty source")
	}
}

func TestWriteThroughBytes(t *testing.T) {
	buffer, err := New(16)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer buffer.Close()

	copy(buffer.Bytes(), []byte("hello, secrets!"))

	if got := buffer.String(); got != "hello, secrets!\x00" {
		t.Errorf("unexpected content: %q", got)
	}
}

func TestCloseReleasesAndIsIdempotent(t *testing.T) {
	buffer, err := New(32)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	copy(buffer.Bytes(), []byte("this should be wiped"))

	if err := buffer.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if buffer.data != nil {
		t.Error("expected data to be nil after Close")
	}
	if err := buffer.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
}

func TestAccessAfterClosePanics(t *testing.T) {
	for _, access := range []struct {
		name string
		call func(*Buffer)
	}{
		{"Bytes", func(b *Buffer) { b.Bytes() }},
		{"String", func(b *Buffer) { _ = b.String() }},
	} {
		t.Run(access.name, func(t *testing.T) {
			buffer, err := New(16)
			if err != nil {
				t.Fatalf("New failed: %v", err)
			}
			buffer.Close()

			defer func() {
				if recover() == nil {
					t.Fatalf("expected panic on %s() after Close", access.name)
				}
			}()
			access.call(buffer)
		})
	}
}

func TestZero(t *testing.T) {
	data := []byte("wipe me")
	Zero(data)
	for index, value := range data {
		if value != 0 {
			t.Fatalf("byte %d not zeroed: got %d", index, value)
		}
	}
}
