// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/parley-chat/parley/cmd/parley/cli"
	"github.com/parley-chat/parley/lib/mediacache"
	"github.com/parley-chat/parley/lib/ref"
	"github.com/parley-chat/parley/lib/statecache"
)

func cacheCommand() *cli.Command {
	return &cli.Command{
		Name:    "cache",
		Summary: "Inspect the local caches",
		Description: `Inspect and manage the profile's local caches.

The state cache is a sqlite mirror of server state that makes startup
instant; the media cache holds downloaded attachments encrypted at
rest. Both rebuild from the server, so clearing them never loses chat
data.`,
		Subcommands: []*cli.Command{
			cacheStatsCommand(),
			cacheInspectCommand(),
			cacheClearCommand(),
		},
		Examples: []cli.Example{
			{
				Description: "Show what the caches hold",
				Command:     "parley cache stats",
			},
			{
				Description: "Dump a room's cached timeline",
				Command:     "parley cache inspect '!abc123:example.org'",
			},
			{
				Description: "Drop both caches and resync from the server",
				Command:     "parley cache clear",
			},
		},
	}
}

func cacheStatsCommand() *cli.Command {
	var flags commonFlags
	return &cli.Command{
		Name:    "stats",
		Summary: "Show cache sizes and freshness",
		Usage:   "parley cache stats [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("stats", pflag.ContinueOnError)
			flags.bind(flagSet)
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument %q", args[0])
			}
			return runCacheStats(ctx, &flags)
		},
	}
}

func runCacheStats(ctx context.Context, flags *commonFlags) error {
	cfg, err := flags.loadConfig()
	if err != nil {
		return err
	}
	profileName, _, err := cfg.ResolveProfile(flags.profile)
	if err != nil {
		return err
	}

	// The media cache needs the session's key, so stats require a
	// stored session.
	payload, err := cli.LoadSession(cfg.SessionPath(profileName))
	if err != nil {
		return err
	}
	userID, err := ref.ParseUserID(payload.UserID)
	if err != nil {
		return fmt.Errorf("session user ID: %w", err)
	}

	stateStore, err := statecache.Open(statecache.Config{
		Path:   cfg.StatePath(profileName),
		UserID: userID,
	})
	if err != nil {
		return fmt.Errorf("opening state cache: %w", err)
	}
	defer stateStore.Close()

	stateStats, err := stateStore.ReadStats(ctx)
	if err != nil {
		return err
	}

	mediaKey, err := payload.MediaKeyBuffer()
	if err != nil {
		return err
	}
	media, err := mediacache.Open(mediacache.Config{
		Dir: cfg.MediaDir(profileName),
		Key: mediaKey,
	})
	if err != nil {
		return fmt.Errorf("opening media cache: %w", err)
	}
	defer media.Close()

	mediaStats, err := media.ReadStats(ctx)
	if err != nil {
		return err
	}

	tokenAge := "no sync token stored"
	if stateStats.TokenAge > 0 {
		tokenAge = fmt.Sprintf("%s ago", stateStats.TokenAge.Round(time.Second))
	}

	writer := tabwriter.NewWriter(os.Stdout, 2, 0, 3, ' ', 0)
	fmt.Fprintf(writer, "state cache\t%s\n", cfg.StatePath(profileName))
	fmt.Fprintf(writer, "  rooms\t%d\n", stateStats.Rooms)
	fmt.Fprintf(writer, "  sync token\t%s\n", tokenAge)
	fmt.Fprintf(writer, "  snapshots\t%s (%s of events)\n",
		formatBytes(stateStats.SnapshotBytes), formatBytes(stateStats.SnapshotEventBytes))
	fmt.Fprintf(writer, "media cache\t%s\n", cfg.MediaDir(profileName))
	fmt.Fprintf(writer, "  attachments\t%d\n", mediaStats.Entries)
	fmt.Fprintf(writer, "  on disk\t%s encrypted (%s of content)\n",
		formatBytes(mediaStats.BlobBytes), formatBytes(mediaStats.ContentBytes))
	return writer.Flush()
}

func cacheInspectCommand() *cli.Command {
	var flags commonFlags
	return &cli.Command{
		Name:    "inspect",
		Summary: "Dump a room's cached timeline",
		Description: `Print the cached timeline snapshot for one room in CBOR
diagnostic notation. This is the raw persisted form, useful when the
client shows something unexpected after a warm start.`,
		Usage: "parley cache inspect <room-id> [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("inspect", pflag.ContinueOnError)
			flags.bind(flagSet)
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("usage: parley cache inspect <room-id>")
			}
			return runCacheInspect(ctx, &flags, args[0])
		},
	}
}

func runCacheInspect(ctx context.Context, flags *commonFlags, rawRoomID string) error {
	cfg, err := flags.loadConfig()
	if err != nil {
		return err
	}
	profileName, _, err := cfg.ResolveProfile(flags.profile)
	if err != nil {
		return err
	}
	roomID, err := ref.ParseRoomID(rawRoomID)
	if err != nil {
		return err
	}

	stateStore, err := statecache.Open(statecache.Config{
		Path: cfg.StatePath(profileName),
	})
	if err != nil {
		return fmt.Errorf("opening state cache: %w", err)
	}
	defer stateStore.Close()

	diagnostic, err := stateStore.InspectTimeline(ctx, roomID)
	if err != nil {
		return err
	}
	if diagnostic == "" {
		fmt.Printf("no cached timeline for %s\n", roomID)
		return nil
	}
	fmt.Println(diagnostic)
	return nil
}

func cacheClearCommand() *cli.Command {
	var flags commonFlags
	return &cli.Command{
		Name:    "clear",
		Summary: "Drop the caches and resync from the server",
		Description: `Delete the profile's state cache and media cache. The next
run performs a full initial sync and re-downloads attachments on
demand. The stored session is untouched.`,
		Usage: "parley cache clear [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("clear", pflag.ContinueOnError)
			flags.bind(flagSet)
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument %q", args[0])
			}
			return runCacheClear(&flags)
		},
	}
}

func runCacheClear(flags *commonFlags) error {
	cfg, err := flags.loadConfig()
	if err != nil {
		return err
	}
	profileName, _, err := cfg.ResolveProfile(flags.profile)
	if err != nil {
		return err
	}

	statePath := cfg.StatePath(profileName)
	for _, stale := range []string{statePath, statePath + "-wal", statePath + "-shm"} {
		if err := os.Remove(stale); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing %s: %w", stale, err)
		}
	}
	if err := os.RemoveAll(cfg.MediaDir(profileName)); err != nil {
		return fmt.Errorf("removing media cache: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Cleared caches for profile %q\n", profileName)
	return nil
}

// formatBytes renders a byte count with a binary unit suffix.
func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGT"[exp])
}
