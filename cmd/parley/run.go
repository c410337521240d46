// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"runtime"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/pflag"

	"github.com/parley-chat/parley/chat"
	"github.com/parley-chat/parley/cmd/parley/cli"
	"github.com/parley-chat/parley/lib/chatcmd"
	"github.com/parley-chat/parley/lib/chatui"
	"github.com/parley-chat/parley/lib/config"
	"github.com/parley-chat/parley/lib/mediacache"
	"github.com/parley-chat/parley/lib/ref"
	"github.com/parley-chat/parley/lib/statecache"
	"github.com/parley-chat/parley/lib/version"
	"github.com/parley-chat/parley/messaging"
)

// syncTimelineLimit is the per-room timeline cap requested from the
// server on each sync. Older history arrives on demand through
// pagination.
const syncTimelineLimit = 50

// runCommand is the explicit form of the default action; bare parley
// does the same thing.
func runCommand() *cli.Command {
	var flags commonFlags
	return &cli.Command{
		Name:    "run",
		Summary: "Open the chat client",
		Usage:   "parley run [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("run", pflag.ContinueOnError)
			flags.bind(flagSet)
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument %q", args[0])
			}
			return runClient(ctx, &flags)
		},
	}
}

// runClient wires the whole client together: config, session, caches,
// the network worker, and the TUI. It returns when the user quits or
// ctx is canceled by a signal.
func runClient(ctx context.Context, flags *commonFlags) error {
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

	bindings, err := config.LoadKeybindings(cfg.KeybindingsFile)
	if err != nil {
		return err
	}

	payload, err := cli.LoadSession(cfg.SessionPath(profileName))
	if err != nil {
		return err
	}
	if payload.UserID != profile.UserID {
		return fmt.Errorf("session for profile %q belongs to %s, not %s; run \"parley login\" again",
			profileName, payload.UserID, profile.UserID)
	}

	// Warnings and errors go to the TUI status bar; everything from
	// debug up goes to the profile's log file. Stderr is off limits
	// while the alt screen is up.
	tuiLog := chatui.NewLogHandler(slog.LevelWarn)
	fileHandler, closeLog, err := openFileLogHandler(cfg.LogPath(profileName))
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}
	defer closeLog()
	logger := slog.New(fanoutHandler{tuiLog, fileHandler})

	// The access token is bound to the homeserver that minted it, so
	// the session's homeserver wins over the profile's.
	if profile.Homeserver != payload.Homeserver {
		logger.Warn("profile homeserver differs from session",
			"profile", profile.Homeserver,
			"session", payload.Homeserver,
		)
	}

	client, err := messaging.NewClient(messaging.ClientConfig{
		HomeserverURL: payload.Homeserver,
		Logger:        logger,
	})
	if err != nil {
		return err
	}
	defer client.CloseIdleConnections()

	userID, err := ref.ParseUserID(payload.UserID)
	if err != nil {
		return fmt.Errorf("session user ID: %w", err)
	}
	deviceID, err := ref.ParseDeviceID(payload.DeviceID)
	if err != nil {
		return fmt.Errorf("session device ID: %w", err)
	}
	session, err := client.SessionFromToken(userID, deviceID, payload.AccessToken)
	if err != nil {
		return err
	}
	defer session.Close()

	mediaKey, err := payload.MediaKeyBuffer()
	if err != nil {
		return err
	}
	media, err := mediacache.Open(mediacache.Config{
		Dir:    cfg.MediaDir(profileName),
		Key:    mediaKey,
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("opening media cache: %w", err)
	}
	defer media.Close()

	stateStore, err := openStateCache(cfg.StatePath(profileName), userID, logger)
	if err != nil {
		return fmt.Errorf("opening state cache: %w", err)
	}
	defer stateStore.Close()

	chatStore := chat.NewStore(userID)
	settings := cfg.SettingsFor(profile)
	chatStore.SetSettings(chat.Settings{
		SendTyping:   settings.SendTyping,
		SendReceipts: settings.ShareReceipts,
	})

	// Warm start: replay the cached snapshot through the normal
	// ingest path, then resume the stream from its token.
	syncToken := ""
	snapshot, err := stateStore.Snapshot(ctx)
	if err != nil {
		logger.Warn("state cache snapshot unreadable; starting cold", "error", err)
	} else if snapshot != nil {
		chatStore.ApplySync(snapshot, time.Now())
		syncToken = snapshot.NextBatch
	}

	events := make(chan struct{}, 1)
	worker, err := chat.NewWorker(chat.WorkerConfig{
		Session:   session,
		Store:     chatStore,
		DeviceID:  deviceID,
		Logger:    logger,
		Media:     media,
		SyncToken: syncToken,
		Filter: messaging.SyncFilter{
			TimelineLimit:   syncTimelineLimit,
			LazyLoadMembers: true,
		},
		OnSync: func(response *messaging.SyncResponse) {
			persistCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := stateStore.ApplySync(persistCtx, response, chatStore.Rooms()); err != nil {
				logger.Warn("state cache write failed", "error", err)
			}
		},
		OnChange: func() {
			select {
			case events <- struct{}{}:
			default:
			}
		},
	})
	if err != nil {
		return err
	}

	model := chatui.NewModel(chatui.Config{
		Store:     chatStore,
		Requester: worker.Requester(),
		Commands:  chatcmd.NewRegistry(),
		Keys:      chatui.NewKeyMap(bindings),
		Settings:  settings,
		UI:        cfg.UI,
		Events:    events,
		OpenFile:  openPath,
		Version:   version.Short(),
	})

	program := tea.NewProgram(model,
		tea.WithAltScreen(),
		tea.WithMouseAllMotion(),
		tea.WithContext(ctx),
	)
	tuiLog.SetProgram(program)

	// The worker gets its own cancel so straggling UI goroutines can
	// still submit tasks harmlessly after shutdown; closing the task
	// channel here instead would turn those into panics.
	workerCtx, stopWorker := context.WithCancel(ctx)
	defer stopWorker()
	workerDone := make(chan error, 1)
	go func() { workerDone <- worker.Run(workerCtx) }()

	if err := worker.Requester().Init(ctx); err != nil {
		stopWorker()
		<-workerDone
		return fmt.Errorf("starting network worker: %w", err)
	}

	_, runErr := program.Run()

	stopWorker()
	select {
	case <-workerDone:
	case <-time.After(5 * time.Second):
		logger.Warn("network worker did not stop in time")
	}

	// A signal-driven exit is a clean exit.
	if runErr != nil && ctx.Err() != nil {
		runErr = nil
	}
	return runErr
}

// openStateCache opens the profile's sqlite cache, dropping and
// recreating it when the file is unreadable. The cache is a replica
// of server state, so a corrupt file costs one initial sync, not
// data.
func openStateCache(path string, userID ref.UserID, logger *slog.Logger) (*statecache.Store, error) {
	store, err := statecache.Open(statecache.Config{Path: path, UserID: userID, Logger: logger})
	if err == nil {
		return store, nil
	}
	logger.Warn("state cache unreadable; recreating", "path", path, "error", err)

	for _, stale := range []string{path, path + "-wal", path + "-shm"} {
		if removeErr := os.Remove(stale); removeErr != nil && !os.IsNotExist(removeErr) {
			return nil, fmt.Errorf("removing corrupt state cache %s: %w", stale, removeErr)
		}
	}
	return statecache.Open(statecache.Config{Path: path, UserID: userID, Logger: logger})
}

// openFileLogHandler creates a slog handler that writes JSON records
// to the given file path. The file is created or truncated, so each
// run's log stands alone.
func openFileLogHandler(path string) (slog.Handler, func(), error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	handler := slog.NewJSONHandler(file, &slog.HandlerOptions{Level: slog.LevelDebug})
	return handler, func() { file.Close() }, nil
}

// openPath launches the system opener on a downloaded file, detached
// so the TUI never blocks on it.
func openPath(path string) error {
	opener := "xdg-open"
	if runtime.GOOS == "darwin" {
		opener = "open"
	}
	command := exec.Command(opener, path)
	if err := command.Start(); err != nil {
		return err
	}
	go command.Wait()
	return nil
}
