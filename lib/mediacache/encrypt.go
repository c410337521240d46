// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package mediacache

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/zeebo/blake3"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"github.com/parley-chat/parley/lib/secret"
)

// KeySize is the size in bytes of the profile media key and every key
// derived from it.
const KeySize = 32

// Reference is the 32-byte keyed BLAKE3 hash of an mxc URI. It names
// the blob file and binds the ciphertext to its entry.
type Reference [32]byte

// String returns the lowercase hex form used for file names.
func (r Reference) String() string {
	return hex.EncodeToString(r[:])
}

// blobVersion is the version byte prepended to every encrypted blob.
// Included in the AAD, so tampering with it fails authentication.
const blobVersion byte = 0x01

// blobOverhead is the fixed per-blob overhead: version byte, 24-byte
// XChaCha20-Poly1305 nonce, 16-byte Poly1305 tag.
const blobOverhead = 1 + chacha20poly1305.NonceSizeX + chacha20poly1305.Overhead

// Domain separation constants. The reference domain is the data prefix
// for BLAKE3 keyed hashing; the HKDF info string separates blob
// encryption keys from any other derivation under the media key.
// Changing either invalidates every existing cache.
var (
	referenceDomain = []byte("parley.media.ref.v1")
	hkdfInfoBlob    = []byte("parley.media.blob.v1")
)

// referenceFor computes the obscured blob reference for an mxc URI.
// Deterministic under one media key, opaque without it.
func referenceFor(mediaKey *secret.Buffer, uri string) Reference {
	hasher, err := blake3.NewKeyed(mediaKey.Bytes())
	if err != nil {
		panic("mediacache: BLAKE3 keyed hash initialization failed (key must be 32 bytes): " + err.Error())
	}
	hasher.Write(referenceDomain)
	hasher.Write([]byte(uri))
	var reference Reference
	copy(reference[:], hasher.Sum(nil))
	return reference
}

// deriveBlobKey derives the per-entry encryption key from the media
// key and the entry's reference. HKDF-SHA256 with nil salt: the media
// key is already uniformly random. The returned Buffer must be closed
// by the caller.
func deriveBlobKey(mediaKey *secret.Buffer, reference Reference) (*secret.Buffer, error) {
	info := make([]byte, len(hkdfInfoBlob)+len(reference))
	copy(info, hkdfInfoBlob)
	copy(info[len(hkdfInfoBlob):], reference[:])
	reader := hkdf.New(sha256.New, mediaKey.Bytes(), nil, info)
	derived := make([]byte, KeySize)
	if _, err := io.ReadFull(reader, derived); err != nil {
		secret.Zero(derived)
		return nil, fmt.Errorf("HKDF key derivation failed: %w", err)
	}
	return secret.NewFromBytes(derived)
}

// encryptBlob seals plaintext with XChaCha20-Poly1305:
//
//	[version: 1 byte] [nonce: 24 bytes, random] [ciphertext+tag]
//
// The version byte and reference form the AAD, so a blob swapped
// between entries fails authentication.
func encryptBlob(plaintext []byte, blobKey *secret.Buffer, reference Reference) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(blobKey.Bytes())
	if err != nil {
		return nil, fmt.Errorf("creating XChaCha20-Poly1305 cipher: %w", err)
	}
	var nonce [chacha20poly1305.NonceSizeX]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("generating random nonce: %w", err)
	}
	aad := buildAAD(blobVersion, reference)
	output := make([]byte, 1+chacha20poly1305.NonceSizeX, 1+chacha20poly1305.NonceSizeX+len(plaintext)+aead.Overhead())
	output[0] = blobVersion
	copy(output[1:], nonce[:])
	return aead.Seal(output, nonce[:], plaintext, aad), nil
}

// decryptBlob opens a blob produced by encryptBlob, authenticating it
// against the version byte and reference.
func decryptBlob(blob []byte, blobKey *secret.Buffer, reference Reference) ([]byte, error) {
	if len(blob) < blobOverhead {
		return nil, fmt.Errorf("encrypted blob is %d bytes, minimum is %d (version + nonce + tag)",
			len(blob), blobOverhead)
	}
	version := blob[0]
	if version != blobVersion {
		return nil, fmt.Errorf("encrypted blob version %d is not supported (expected %d)",
			version, blobVersion)
	}
	nonce := blob[1 : 1+chacha20poly1305.NonceSizeX]
	ciphertext := blob[1+chacha20poly1305.NonceSizeX:]
	aead, err := chacha20poly1305.NewX(blobKey.Bytes())
	if err != nil {
		return nil, fmt.Errorf("creating XChaCha20-Poly1305 cipher: %w", err)
	}
	aad := buildAAD(version, reference)
	plaintext, err := aead.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return nil, fmt.Errorf("AEAD decryption failed (wrong key, tampered data, or blob moved between entries): %w", err)
	}
	return plaintext, nil
}

func buildAAD(version byte, reference Reference) []byte {
	aad := make([]byte, 1+len(reference))
	aad[0] = version
	copy(aad[1:], reference[:])
	return aad
}

// NewMediaKey generates a fresh random media key for a profile,
// created once at login and carried in the sealed session file.
func NewMediaKey() (*secret.Buffer, error) {
	raw := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, raw); err != nil {
		secret.Zero(raw)
		return nil, fmt.Errorf("generating media key: %w", err)
	}
	return secret.NewFromBytes(raw)
}
