// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package mediacache

import (
	"bytes"
	"testing"

	"github.com/parley-chat/parley/lib/secret"
)

// testKeyAlternate returns a media key distinct from testKey, for
// verifying that outputs depend on the key.
func testKeyAlternate(t *testing.T) *secret.Buffer {
	t.Helper()
	key, err := secret.NewFromBytes(bytes.Repeat([]byte{0x99}, KeySize))
	if err != nil {
		t.Fatalf("NewFromBytes: %v", err)
	}
	return key
}

func TestReferenceDeterministic(t *testing.T) {
	key := testKey(t)
	defer key.Close()

	ref1 := referenceFor(key, "mxc://example.org/abc")
	ref2 := referenceFor(key, "mxc://example.org/abc")
	if ref1 != ref2 {
		t.Error("same key and URI should produce identical references")
	}
}

func TestReferenceVariesWithURI(t *testing.T) {
	key := testKey(t)
	defer key.Close()

	ref1 := referenceFor(key, "mxc://example.org/abc")
	ref2 := referenceFor(key, "mxc://example.org/def")
	if ref1 == ref2 {
		t.Error("different URIs should produce different references")
	}
}

func TestReferenceVariesWithKey(t *testing.T) {
	key1 := testKey(t)
	defer key1.Close()
	key2 := testKeyAlternate(t)
	defer key2.Close()

	ref1 := referenceFor(key1, "mxc://example.org/abc")
	ref2 := referenceFor(key2, "mxc://example.org/abc")
	if ref1 == ref2 {
		t.Error("different keys should produce different references")
	}
}

func TestDeriveBlobKeyDeterministic(t *testing.T) {
	mediaKey := testKey(t)
	defer mediaKey.Close()
	reference := referenceFor(mediaKey, "mxc://example.org/abc")

	key1, err := deriveBlobKey(mediaKey, reference)
	if err != nil {
		t.Fatal(err)
	}
	defer key1.Close()
	key2, err := deriveBlobKey(mediaKey, reference)
	if err != nil {
		t.Fatal(err)
	}
	defer key2.Close()

	if !bytes.Equal(key1.Bytes(), key2.Bytes()) {
		t.Error("same media key and reference should derive identical blob keys")
	}
}

func TestDeriveBlobKeyVariesWithReference(t *testing.T) {
	mediaKey := testKey(t)
	defer mediaKey.Close()

	key1, err := deriveBlobKey(mediaKey, referenceFor(mediaKey, "mxc://example.org/abc"))
	if err != nil {
		t.Fatal(err)
	}
	defer key1.Close()
	key2, err := deriveBlobKey(mediaKey, referenceFor(mediaKey, "mxc://example.org/def"))
	if err != nil {
		t.Fatal(err)
	}
	defer key2.Close()

	if bytes.Equal(key1.Bytes(), key2.Bytes()) {
		t.Error("different references should derive different blob keys")
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	mediaKey := testKey(t)
	defer mediaKey.Close()
	reference := referenceFor(mediaKey, "mxc://example.org/abc")
	blobKey, err := deriveBlobKey(mediaKey, reference)
	if err != nil {
		t.Fatal(err)
	}
	defer blobKey.Close()

	for _, size := range []int{0, 1, 200, 64 * 1024} {
		plaintext := make([]byte, size)
		for i := range plaintext {
			plaintext[i] = byte(i * 31)
		}
		encrypted, err := encryptBlob(plaintext, blobKey, reference)
		if err != nil {
			t.Fatalf("encryptBlob(size=%d): %v", size, err)
		}
		decrypted, err := decryptBlob(encrypted, blobKey, reference)
		if err != nil {
			t.Fatalf("decryptBlob(size=%d): %v", size, err)
		}
		if !bytes.Equal(decrypted, plaintext) {
			t.Errorf("round trip mismatch at size %d", size)
		}
	}
}

func TestEncryptBlobNonDeterministic(t *testing.T) {
	mediaKey := testKey(t)
	defer mediaKey.Close()
	reference := referenceFor(mediaKey, "mxc://example.org/abc")
	blobKey, err := deriveBlobKey(mediaKey, reference)
	if err != nil {
		t.Fatal(err)
	}
	defer blobKey.Close()

	plaintext := []byte("identical content for both encryptions")
	encrypted1, err := encryptBlob(plaintext, blobKey, reference)
	if err != nil {
		t.Fatal(err)
	}
	encrypted2, err := encryptBlob(plaintext, blobKey, reference)
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Equal(encrypted1, encrypted2) {
		t.Error("two encryptions of identical content should differ (random nonce)")
	}
}

func TestDecryptBlobWrongReference(t *testing.T) {
	mediaKey := testKey(t)
	defer mediaKey.Close()
	refA := referenceFor(mediaKey, "mxc://example.org/a")
	refB := referenceFor(mediaKey, "mxc://example.org/b")
	blobKey, err := deriveBlobKey(mediaKey, refA)
	if err != nil {
		t.Fatal(err)
	}
	defer blobKey.Close()

	encrypted, err := encryptBlob([]byte("bound to entry a"), blobKey, refA)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := decryptBlob(encrypted, blobKey, refB); err == nil {
		t.Error("blob moved between entries should fail authentication")
	}
}

func TestDecryptBlobWrongKey(t *testing.T) {
	mediaKey := testKey(t)
	defer mediaKey.Close()
	otherKey := testKeyAlternate(t)
	defer otherKey.Close()
	reference := referenceFor(mediaKey, "mxc://example.org/abc")

	key1, err := deriveBlobKey(mediaKey, reference)
	if err != nil {
		t.Fatal(err)
	}
	defer key1.Close()
	key2, err := deriveBlobKey(otherKey, reference)
	if err != nil {
		t.Fatal(err)
	}
	defer key2.Close()

	encrypted, err := encryptBlob([]byte("sealed"), key1, reference)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := decryptBlob(encrypted, key2, reference); err == nil {
		t.Error("decrypting with the wrong key should fail authentication")
	}
}

func TestDecryptBlobTruncated(t *testing.T) {
	mediaKey := testKey(t)
	defer mediaKey.Close()
	reference := referenceFor(mediaKey, "mxc://example.org/abc")
	blobKey, err := deriveBlobKey(mediaKey, reference)
	if err != nil {
		t.Fatal(err)
	}
	defer blobKey.Close()

	for _, length := range []int{0, 1, 10, blobOverhead - 1} {
		if _, err := decryptBlob(make([]byte, length), blobKey, reference); err == nil {
			t.Errorf("blob of length %d should be rejected as too short", length)
		}
	}
}

func TestDecryptBlobWrongVersion(t *testing.T) {
	mediaKey := testKey(t)
	defer mediaKey.Close()
	reference := referenceFor(mediaKey, "mxc://example.org/abc")
	blobKey, err := deriveBlobKey(mediaKey, reference)
	if err != nil {
		t.Fatal(err)
	}
	defer blobKey.Close()

	encrypted, err := encryptBlob([]byte("versioned"), blobKey, reference)
	if err != nil {
		t.Fatal(err)
	}
	encrypted[0] = 0x02
	if _, err := decryptBlob(encrypted, blobKey, reference); err == nil {
		t.Error("unknown version byte should be rejected")
	}
}

func TestDecryptBlobTamperedCiphertext(t *testing.T) {
	mediaKey := testKey(t)
	defer mediaKey.Close()
	reference := referenceFor(mediaKey, "mxc://example.org/abc")
	blobKey, err := deriveBlobKey(mediaKey, reference)
	if err != nil {
		t.Fatal(err)
	}
	defer blobKey.Close()

	encrypted, err := encryptBlob([]byte("tamper detection payload"), blobKey, reference)
	if err != nil {
		t.Fatal(err)
	}
	encrypted[1+24] ^= 0x01
	if _, err := decryptBlob(encrypted, blobKey, reference); err == nil {
		t.Error("tampered ciphertext should fail authentication")
	}
}

func TestEncryptBlobFormat(t *testing.T) {
	mediaKey := testKey(t)
	defer mediaKey.Close()
	reference := referenceFor(mediaKey, "mxc://example.org/abc")
	blobKey, err := deriveBlobKey(mediaKey, reference)
	if err != nil {
		t.Fatal(err)
	}
	defer blobKey.Close()

	plaintext := []byte("format verification payload")
	encrypted, err := encryptBlob(plaintext, blobKey, reference)
	if err != nil {
		t.Fatal(err)
	}
	if encrypted[0] != blobVersion {
		t.Errorf("first byte = 0x%02x, want 0x%02x", encrypted[0], blobVersion)
	}
	if want := blobOverhead + len(plaintext); len(encrypted) != want {
		t.Errorf("blob length = %d, want %d", len(encrypted), want)
	}
}

func TestNewMediaKey(t *testing.T) {
	key1, err := NewMediaKey()
	if err != nil {
		t.Fatal(err)
	}
	defer key1.Close()
	key2, err := NewMediaKey()
	if err != nil {
		t.Fatal(err)
	}
	defer key2.Close()

	if key1.Len() != KeySize {
		t.Errorf("key length = %d, want %d", key1.Len(), KeySize)
	}
	if bytes.Equal(key1.Bytes(), key2.Bytes()) {
		t.Error("two generated media keys should differ")
	}
}
