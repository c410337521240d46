// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/parley-chat/parley/lib/sealed"
	"github.com/parley-chat/parley/lib/secret"
)

// SessionPayload is the plaintext a sealed session file decrypts to:
// everything a profile needs to come back without a password.
type SessionPayload struct {
	// UserID is the full Matrix user ID the token belongs to.
	UserID string `json:"user_id"`

	// DeviceID is the device the homeserver minted (or reused) at
	// login. Restored sessions present the same device.
	DeviceID string `json:"device_id"`

	// Homeserver is the base URL the token was minted on. The token
	// is only valid there, so restore uses this over the profile's
	// configured homeserver.
	Homeserver string `json:"homeserver"`

	// AccessToken authenticates the session.
	AccessToken string `json:"access_token"`

	// MediaKey is the profile's media cache key, base64 encoded.
	// Losing it orphans the encrypted attachment cache, so re-login
	// carries it forward.
	MediaKey string `json:"media_key"`
}

// sessionFile is the on-disk shape: the public half of the profile's
// age identity and the payload sealed to it. The private half lives
// next to it in the identity file; the split keeps the credential
// blob opaque on its own.
type sessionFile struct {
	PublicKey string `json:"public_key"`
	Sealed    string `json:"sealed"`
}

// IdentityPath returns where a session file's age identity lives.
func IdentityPath(sessionPath string) string {
	return sessionPath + ".identity"
}

// SaveSession seals payload to a fresh age identity and writes both
// halves: the identity file and the session file, each 0600 in a 0700
// directory. Login rewrites the pair together, so a stale identity
// never outlives the blob it opens.
func SaveSession(path string, payload *SessionPayload) error {
	plaintext, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding session payload: %w", err)
	}

	keypair, err := sealed.GenerateKeypair()
	if err != nil {
		return fmt.Errorf("generating session identity: %w", err)
	}
	defer keypair.Close()

	ciphertext, err := sealed.Encrypt(plaintext, []string{keypair.PublicKey})
	secret.Zero(plaintext)
	if err != nil {
		return fmt.Errorf("sealing session: %w", err)
	}

	data, err := json.MarshalIndent(sessionFile{
		PublicKey: keypair.PublicKey,
		Sealed:    ciphertext,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding session file: %w", err)
	}
	data = append(data, '\n')

	directory := filepath.Dir(path)
	if err := os.MkdirAll(directory, 0o700); err != nil {
		return fmt.Errorf("creating session directory %s: %w", directory, err)
	}

	identity := append(append([]byte(nil), keypair.PrivateKey.Bytes()...), '\n')
	if err := os.WriteFile(IdentityPath(path), identity, 0o600); err != nil {
		secret.Zero(identity)
		return fmt.Errorf("writing session identity: %w", err)
	}
	secret.Zero(identity)

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing session file %s: %w", path, err)
	}
	return nil
}

// LoadSession opens a sealed session file and returns its payload.
// A missing file gets an error pointing at "parley login".
func LoadSession(path string) (*SessionPayload, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("no session at %s — run \"parley login\" first", path)
		}
		return nil, fmt.Errorf("reading session file %s: %w", path, err)
	}

	var file sessionFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing session file %s: %w", path, err)
	}
	if file.Sealed == "" {
		return nil, fmt.Errorf("session file %s has no sealed payload", path)
	}

	privateKey, err := readIdentity(IdentityPath(path))
	if err != nil {
		return nil, err
	}
	defer privateKey.Close()

	plaintext, err := sealed.Decrypt(file.Sealed, privateKey)
	if err != nil {
		return nil, fmt.Errorf("unsealing session %s: %w", path, err)
	}
	defer plaintext.Close()

	// The payload strings land on the heap. Acceptable here: they are
	// short-lived, and every consumer moves the secrets into
	// secret.Buffers immediately.
	var payload SessionPayload
	if err := json.Unmarshal(plaintext.Bytes(), &payload); err != nil {
		return nil, fmt.Errorf("decoding session payload: %w", err)
	}

	if payload.UserID == "" {
		return nil, fmt.Errorf("session file %s has no user_id", path)
	}
	if payload.AccessToken == "" {
		return nil, fmt.Errorf("session file %s has no access_token", path)
	}
	if payload.Homeserver == "" {
		return nil, fmt.Errorf("session file %s has no homeserver", path)
	}
	return &payload, nil
}

// RemoveSession deletes a session file and its identity. Missing
// files are fine; logout after a manual cleanup still succeeds.
func RemoveSession(path string) error {
	for _, target := range []string{path, IdentityPath(path)} {
		if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing %s: %w", target, err)
		}
	}
	return nil
}

// MediaKeyBuffer decodes the payload's media key into a secret
// buffer. The caller owns the buffer.
func (p *SessionPayload) MediaKeyBuffer() (*secret.Buffer, error) {
	if p.MediaKey == "" {
		return nil, fmt.Errorf("session has no media key")
	}
	raw, err := base64.StdEncoding.DecodeString(p.MediaKey)
	if err != nil {
		return nil, fmt.Errorf("decoding media key: %w", err)
	}
	buffer, err := secret.NewFromBytes(raw)
	if err != nil {
		secret.Zero(raw)
		return nil, fmt.Errorf("protecting media key: %w", err)
	}
	return buffer, nil
}

// EncodeMediaKey renders a media key for storage in a session
// payload.
func EncodeMediaKey(key *secret.Buffer) string {
	return base64.StdEncoding.EncodeToString(key.Bytes())
}

// readIdentity loads an age private key file into a secret buffer,
// stripping the trailing newline the writer adds.
func readIdentity(path string) (*secret.Buffer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("session identity %s is missing — run \"parley login\" again", path)
		}
		return nil, fmt.Errorf("reading session identity %s: %w", path, err)
	}
	for len(data) > 0 && (data[len(data)-1] == '\n' || data[len(data)-1] == '\r') {
		data = data[:len(data)-1]
	}
	if len(data) == 0 {
		secret.Zero(data)
		return nil, fmt.Errorf("session identity %s is empty", path)
	}
	buffer, err := secret.NewFromBytes(data)
	if err != nil {
		secret.Zero(data)
		return nil, err
	}
	return buffer, nil
}
