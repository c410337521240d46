// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/parley-chat/parley/cmd/parley/cli"
	"github.com/parley-chat/parley/lib/mediacache"
	"github.com/parley-chat/parley/lib/ref"
	"github.com/parley-chat/parley/lib/secret"
	"github.com/parley-chat/parley/messaging"
)

// loginTimeout bounds the whole login exchange, including the whoami
// verification round trip.
const loginTimeout = 30 * time.Second

func loginCommand() *cli.Command {
	var flags commonFlags
	var passwordFile string

	return &cli.Command{
		Name:    "login",
		Summary: "Log in and store a session",
		Description: `Log in to the profile's homeserver and store the session.

The homeserver validates the password, the session is checked with a
whoami call, and the access token is sealed to a fresh age identity
under the sessions directory. Later runs open the client without a
password.

Logging in again reuses the previous session's device ID and media
key, so the server sees one device per profile and the encrypted
attachment cache stays readable.`,
		Usage: "parley login [flags]",
		Examples: []cli.Example{
			{
				Description: "Log in to the default profile (prompts for password)",
				Command:     "parley login",
			},
			{
				Description: "Log in to a named profile",
				Command:     "parley login --profile work",
			},
			{
				Description: "Read the password from a file",
				Command:     "parley login --password-file /run/secrets/matrix-password",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("login", pflag.ContinueOnError)
			flags.bind(flagSet)
			flagSet.StringVar(&passwordFile, "password-file", "",
				"path to a file containing the password, or - to prompt (default: prompt)")
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument %q", args[0])
			}
			return runLogin(ctx, &flags, passwordFile)
		},
	}
}

func runLogin(ctx context.Context, flags *commonFlags, passwordFile string) error {
	cfg, err := flags.loadConfig()
	if err != nil {
		return err
	}
	profileName, profile, err := cfg.ResolveProfile(flags.profile)
	if err != nil {
		return err
	}
	if err := cfg.EnsurePaths(); err != nil {
		return err
	}
	sessionPath := cfg.SessionPath(profileName)

	// A previous session for the same user carries its device ID and
	// media key forward: the device so the server account does not
	// accumulate one device per login, the key so the attachment
	// cache survives.
	var deviceID ref.DeviceID
	mediaKey := ""
	if prior, priorErr := cli.LoadSession(sessionPath); priorErr == nil && prior.UserID == profile.UserID {
		if parsed, parseErr := ref.ParseDeviceID(prior.DeviceID); parseErr == nil {
			deviceID = parsed
		}
		mediaKey = prior.MediaKey
	}

	password, err := readLoginPassword(passwordFile)
	if err != nil {
		return err
	}
	defer password.Close()

	ctx, cancel := context.WithTimeout(ctx, loginTimeout)
	defer cancel()

	client, err := messaging.NewClient(messaging.ClientConfig{
		HomeserverURL: profile.Homeserver,
	})
	if err != nil {
		return err
	}
	defer client.CloseIdleConnections()

	session, err := client.Login(ctx, profile.UserID, password, deviceID)
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}
	defer session.Close()

	// Verify the token works before sealing it.
	userID, err := session.WhoAmI(ctx)
	if err != nil {
		return fmt.Errorf("session verification failed: %w", err)
	}
	if userID.String() != profile.UserID {
		return fmt.Errorf("homeserver authenticated %s, but profile %q expects %s",
			userID, profileName, profile.UserID)
	}

	if mediaKey == "" {
		key, keyErr := mediacache.NewMediaKey()
		if keyErr != nil {
			return fmt.Errorf("generating media key: %w", keyErr)
		}
		mediaKey = cli.EncodeMediaKey(key)
		key.Close()
	}

	payload := &cli.SessionPayload{
		UserID:      userID.String(),
		DeviceID:    session.DeviceID().String(),
		Homeserver:  profile.Homeserver,
		AccessToken: session.AccessToken(),
		MediaKey:    mediaKey,
	}
	if err := cli.SaveSession(sessionPath, payload); err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "Logged in as %s (device %s)\n", userID, session.DeviceID())
	fmt.Fprintf(os.Stderr, "Session saved to %s\n", sessionPath)
	return nil
}

func logoutCommand() *cli.Command {
	var flags commonFlags

	return &cli.Command{
		Name:    "logout",
		Summary: "Invalidate the stored session",
		Description: `Invalidate the profile's access token on the homeserver and
delete the stored session.

The media key dies with the session, so the encrypted attachment
cache is removed too. The state cache stays; logging back in resumes
from it.`,
		Usage: "parley logout [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("logout", pflag.ContinueOnError)
			flags.bind(flagSet)
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument %q", args[0])
			}
			return runLogout(ctx, &flags)
		},
	}
}

func runLogout(ctx context.Context, flags *commonFlags) error {
	cfg, err := flags.loadConfig()
	if err != nil {
		return err
	}
	profileName, _, err := cfg.ResolveProfile(flags.profile)
	if err != nil {
		return err
	}
	sessionPath := cfg.SessionPath(profileName)

	payload, err := cli.LoadSession(sessionPath)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, loginTimeout)
	defer cancel()

	// Best effort: the token may already be invalid server-side, and
	// the local session goes away either way.
	if err := serverLogout(ctx, payload); err != nil {
		fmt.Fprintf(os.Stderr, "warning: homeserver logout failed: %v\n", err)
	}

	if err := cli.RemoveSession(sessionPath); err != nil {
		return err
	}
	if err := os.RemoveAll(cfg.MediaDir(profileName)); err != nil {
		fmt.Fprintf(os.Stderr, "warning: removing media cache: %v\n", err)
	}

	fmt.Fprintf(os.Stderr, "Logged out %s\n", payload.UserID)
	return nil
}

// serverLogout invalidates the session's access token on the
// homeserver.
func serverLogout(ctx context.Context, payload *cli.SessionPayload) error {
	userID, err := ref.ParseUserID(payload.UserID)
	if err != nil {
		return err
	}
	deviceID, err := ref.ParseDeviceID(payload.DeviceID)
	if err != nil {
		return err
	}
	client, err := messaging.NewClient(messaging.ClientConfig{
		HomeserverURL: payload.Homeserver,
	})
	if err != nil {
		return err
	}
	defer client.CloseIdleConnections()

	session, err := client.SessionFromToken(userID, deviceID, payload.AccessToken)
	if err != nil {
		return err
	}
	defer session.Close()
	return session.Logout(ctx)
}

// readLoginPassword reads the login password. An empty or "-"
// password file means an interactive prompt with echo disabled.
func readLoginPassword(passwordFile string) (*secret.Buffer, error) {
	if passwordFile != "" && passwordFile != "-" {
		return readSecretFile(passwordFile)
	}

	stdinFd := int(os.Stdin.Fd())
	if !term.IsTerminal(stdinFd) {
		return nil, fmt.Errorf("no terminal for the password prompt; use --password-file")
	}

	fmt.Fprint(os.Stderr, "Password: ")
	passwordBytes, err := term.ReadPassword(stdinFd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("reading password: %w", err)
	}

	buffer, err := secret.NewFromBytes(passwordBytes)
	if err != nil {
		secret.Zero(passwordBytes)
		return nil, err
	}
	return buffer, nil
}

// readSecretFile reads a secret from a file into a secret.Buffer,
// stripping trailing newlines (common with echo and printf
// pipelines).
func readSecretFile(path string) (*secret.Buffer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	for len(data) > 0 && (data[len(data)-1] == '\n' || data[len(data)-1] == '\r') {
		data = data[:len(data)-1]
	}
	if len(data) == 0 {
		secret.Zero(data)
		return nil, fmt.Errorf("password file %s is empty", path)
	}

	buffer, err := secret.NewFromBytes(data)
	if err != nil {
		secret.Zero(data)
		return nil, err
	}
	return buffer, nil
}
