// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"

	"github.com/spf13/pflag"

	"github.com/parley-chat/parley/cmd/parley/cli"
	"github.com/parley-chat/parley/lib/config"
	"github.com/parley-chat/parley/lib/version"
)

// commonFlags carries the flags shared by every parley command: which
// config file to read and which profile to act on.
type commonFlags struct {
	configPath string
	profile    string
}

func (f *commonFlags) bind(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&f.configPath, "config", "", "config file path (defaults to $PARLEY_CONFIG)")
	flagSet.StringVar(&f.profile, "profile", "", "profile to use (defaults to default_profile)")
}

// loadConfig reads and validates the configuration named by --config
// or, when the flag is unset, the PARLEY_CONFIG environment variable.
func (f *commonFlags) loadConfig() (*config.Config, error) {
	var cfg *config.Config
	var err error
	if f.configPath != "" {
		cfg, err = config.LoadFile(f.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// buildRoot assembles the parley command tree. Running parley with no
// subcommand opens the chat client, so the root carries the run
// command's flags and behavior directly.
func buildRoot() *cli.Command {
	var flags commonFlags
	return &cli.Command{
		Name:  "parley",
		Usage: "parley [command] [flags]",
		Description: `Parley: terminal Matrix chat client.

Rooms, direct messages, reactions, and attachments from the terminal,
backed by a local state cache for instant startup and an encrypted
media cache for attachments.`,
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("parley", pflag.ContinueOnError)
			flags.bind(flagSet)
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument %q", args[0])
			}
			return runClient(ctx, &flags)
		},
		Subcommands: []*cli.Command{
			runCommand(),
			loginCommand(),
			logoutCommand(),
			cacheCommand(),
			{
				Name:    "version",
				Summary: "Print version information",
				Run: func(_ context.Context, _ []string) error {
					fmt.Printf("parley %s\n", version.Full())
					return nil
				},
			},
		},
		Examples: []cli.Example{
			{
				Description: "Open the chat client with the default profile",
				Command:     "parley",
			},
			{
				Description: "Open a specific profile",
				Command:     "parley --profile work",
			},
			{
				Description: "Log in and store a session for the default profile",
				Command:     "parley login",
			},
			{
				Description: "Show what the local caches hold",
				Command:     "parley cache stats",
			},
		},
	}
}
