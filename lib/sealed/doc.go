// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

// Package sealed provides age encryption and decryption for Parley's
// session file. It wraps filippo.io/age to provide a simple interface
// for the specific operations Parley needs: generate a keypair on
// first login, encrypt the session (user ID, device ID, access token)
// to the profile's public key, decrypt it at startup.
//
// Ciphertext is base64-encoded for storage in the JSON session file.
// The base64 encoding is handled internally — callers pass plaintext
// []byte in and get base64 strings out (and vice versa for
// decryption).
//
// Private keys and decrypted plaintext are returned as *secret.Buffer
// values, which are backed by mmap memory outside the Go heap (locked
// against swap, excluded from core dumps, zeroed on close).
package sealed
