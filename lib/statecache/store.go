// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package statecache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/parley-chat/parley/chat"
	"github.com/parley-chat/parley/lib/clock"
	"github.com/parley-chat/parley/lib/codec"
	"github.com/parley-chat/parley/lib/ref"
	"github.com/parley-chat/parley/lib/sqlitepool"
	"github.com/parley-chat/parley/messaging"
)

// DefaultSnapshotLimit is how many timeline events each room's
// snapshot retains. Older events fall off the snapshot; history
// beyond the window comes from pagination, as it would on a cold
// start.
const DefaultSnapshotLimit = 128

// Config holds the parameters for opening a state cache.
type Config struct {
	// Path is the filesystem path to the SQLite database file. The
	// parent directory must exist.
	Path string

	// PoolSize is the number of connections in the pool. Defaults to
	// 2: the worker goroutine writes, the CLI inspects.
	PoolSize int

	// SnapshotLimit caps the timeline events retained per room.
	// Defaults to DefaultSnapshotLimit.
	SnapshotLimit int

	// UserID is the local user. Member events are captured only for
	// this user; the fold ignores everyone else's membership churn, so
	// caching it would grow the state table by the member count of
	// every large room for rows replay never reads.
	UserID ref.UserID

	// Clock provides timestamps for the sync-state row. Defaults to
	// the real clock.
	Clock clock.Clock

	// Logger receives operational messages.
	Logger *slog.Logger
}

// Store is the on-disk half of the client's state: the sync token,
// room summary rows, captured state and account-data events, and a
// bounded timeline snapshot per room. Writes happen on the worker
// goroutine after each applied sync response; reads happen once at
// startup and from the cache CLI.
type Store struct {
	pool   *sqlitepool.Pool
	clock  clock.Clock
	logger *slog.Logger
	limit  int
	user   ref.UserID
}

// schema creates the cache tables. Applied on every connection;
// CREATE IF NOT EXISTS makes it idempotent.
const schema = `
CREATE TABLE IF NOT EXISTS sync_state (
	id         INTEGER PRIMARY KEY CHECK (id = 1),
	token      TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS rooms (
	room_id       TEXT PRIMARY KEY,
	name          TEXT NOT NULL DEFAULT '',
	membership    INTEGER NOT NULL,
	is_direct     INTEGER NOT NULL DEFAULT 0,
	is_space      INTEGER NOT NULL DEFAULT 0,
	unread        INTEGER NOT NULL DEFAULT 0,
	highlights    INTEGER NOT NULL DEFAULT 0,
	tags          BLOB,
	last_activity INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS room_state (
	room_id    TEXT NOT NULL,
	event_type TEXT NOT NULL,
	state_key  TEXT NOT NULL,
	event      BLOB NOT NULL,
	PRIMARY KEY (room_id, event_type, state_key)
);

CREATE TABLE IF NOT EXISTS account_data (
	room_id    TEXT NOT NULL DEFAULT '',
	event_type TEXT NOT NULL,
	event      BLOB NOT NULL,
	PRIMARY KEY (room_id, event_type)
);

CREATE TABLE IF NOT EXISTS timelines (
	room_id           TEXT PRIMARY KEY,
	uncompressed_size INTEGER NOT NULL,
	events            BLOB NOT NULL
);
`

// Open creates or opens the state cache at cfg.Path. The database
// file is created if it does not exist.
func Open(cfg Config) (*Store, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real()
	}
	limit := cfg.SnapshotLimit
	if limit <= 0 {
		limit = DefaultSnapshotLimit
	}
	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = 2
	}

	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:     cfg.Path,
		PoolSize: poolSize,
		Logger:   logger,
		OnConnect: func(conn *sqlite.Conn) error {
			return sqlitex.ExecuteScript(conn, schema, nil)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("statecache: %w", err)
	}

	return &Store{
		pool:   pool,
		clock:  clk,
		logger: logger,
		limit:  limit,
		user:   cfg.UserID,
	}, nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	return s.pool.Close()
}

// SyncToken returns the stored stream position, or "" when the cache
// holds none.
func (s *Store) SyncToken(ctx context.Context) (string, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return "", fmt.Errorf("statecache: sync token: %w", err)
	}
	defer s.pool.Put(conn)

	var token string
	err = sqlitex.Execute(conn, `SELECT token FROM sync_state WHERE id = 1`, &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			token = stmt.ColumnText(0)
			return nil
		},
	})
	if err != nil {
		return "", fmt.Errorf("statecache: sync token: %w", err)
	}
	return token, nil
}

// ApplySync persists the durable parts of one sync response: the
// next-batch token, refreshed summary rows, captured state and
// account-data events, and the per-room timeline snapshots. Everything
// lands in a single IMMEDIATE transaction, so a crash leaves the cache
// at the previous response's position, never between the token and
// the events it covers.
//
// The summaries come from the in-memory store after the response
// folded, so rows carry resolved display names rather than raw state.
func (s *Store) ApplySync(ctx context.Context, response *messaging.SyncResponse, summaries []chat.RoomSummary) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("statecache: apply sync: %w", err)
	}
	defer s.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("statecache: begin transaction: %w", err)
	}
	defer endTransaction(&err)

	if err = s.saveToken(conn, response.NextBatch); err != nil {
		return err
	}

	for roomID, joined := range response.Rooms.Join {
		for _, event := range joined.State.Events {
			if err = s.captureStateEvent(conn, roomID, event); err != nil {
				return err
			}
		}
		for _, event := range joined.Timeline.Events {
			if event.StateKey != nil {
				if err = s.captureStateEvent(conn, roomID, event); err != nil {
					return err
				}
			}
		}
		for _, event := range joined.AccountData.Events {
			if err = s.captureAccountData(conn, roomID, event); err != nil {
				return err
			}
		}
		if err = s.appendTimeline(conn, roomID, joined.Timeline); err != nil {
			return err
		}
	}

	for roomID, invited := range response.Rooms.Invite {
		for _, event := range invited.InviteState.Events {
			if err = s.captureStateEvent(conn, roomID, event); err != nil {
				return err
			}
		}
	}

	for roomID, left := range response.Rooms.Leave {
		for _, event := range left.State.Events {
			if err = s.captureStateEvent(conn, roomID, event); err != nil {
				return err
			}
		}
		if err = s.appendTimeline(conn, roomID, left.Timeline); err != nil {
			return err
		}
	}

	for _, event := range response.AccountData.Events {
		if event.Type != messaging.EventTypeDirect {
			continue
		}
		if err = s.captureAccountData(conn, ref.RoomID{}, event); err != nil {
			return err
		}
	}

	for _, summary := range summaries {
		if err = s.upsertRoom(conn, summary); err != nil {
			return err
		}
	}

	return nil
}

func (s *Store) saveToken(conn *sqlite.Conn, token string) error {
	if token == "" {
		return nil
	}
	err := sqlitex.Execute(conn,
		`INSERT INTO sync_state (id, token, updated_at) VALUES (1, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET token = excluded.token, updated_at = excluded.updated_at`,
		&sqlitex.ExecOptions{
			Args: []any{token, s.clock.Now().UnixMilli()},
		})
	if err != nil {
		return fmt.Errorf("statecache: save token: %w", err)
	}
	return nil
}

// captureStateEvent keeps the latest event per (room, type, state key)
// for the state the ingest path folds. Member events are kept only for
// the local user.
func (s *Store) captureStateEvent(conn *sqlite.Conn, roomID ref.RoomID, event messaging.Event) error {
	switch event.Type {
	case messaging.EventTypeName, messaging.EventTypeTopic,
		messaging.EventTypeCanonicalAlias, messaging.EventTypeCreate:
	case messaging.EventTypeMember:
		if event.StateKey == nil || *event.StateKey != s.user.String() {
			return nil
		}
	default:
		return nil
	}
	stateKey := ""
	if event.StateKey != nil {
		stateKey = *event.StateKey
	}
	blob, err := codec.Marshal(event)
	if err != nil {
		return fmt.Errorf("statecache: encode state event: %w", err)
	}
	err = sqlitex.Execute(conn,
		`INSERT INTO room_state (room_id, event_type, state_key, event) VALUES (?, ?, ?, ?)
		 ON CONFLICT (room_id, event_type, state_key) DO UPDATE SET event = excluded.event`,
		&sqlitex.ExecOptions{
			Args: []any{roomID.String(), string(event.Type), stateKey, blob},
		})
	if err != nil {
		return fmt.Errorf("statecache: capture state: %w", err)
	}
	return nil
}

// captureAccountData keeps the latest account-data event per (room,
// type). Global events use the empty room ID. Only the types the
// ingest path reads are kept.
func (s *Store) captureAccountData(conn *sqlite.Conn, roomID ref.RoomID, event messaging.Event) error {
	switch event.Type {
	case messaging.EventTypeTag, messaging.EventTypeFullyRead, messaging.EventTypeDirect:
	default:
		return nil
	}
	blob, err := codec.Marshal(event)
	if err != nil {
		return fmt.Errorf("statecache: encode account data: %w", err)
	}
	roomKey := ""
	if !roomID.IsZero() {
		roomKey = roomID.String()
	}
	err = sqlitex.Execute(conn,
		`INSERT INTO account_data (room_id, event_type, event) VALUES (?, ?, ?)
		 ON CONFLICT (room_id, event_type) DO UPDATE SET event = excluded.event`,
		&sqlitex.ExecOptions{
			Args: []any{roomKey, string(event.Type), blob},
		})
	if err != nil {
		return fmt.Errorf("statecache: capture account data: %w", err)
	}
	return nil
}

// appendTimeline folds one sync timeline section into the room's
// snapshot. A limited section means the server skipped events between
// the snapshot and this batch, so the old snapshot is discarded rather
// than stitched across the gap. The result is truncated to the
// snapshot limit, newest kept.
func (s *Store) appendTimeline(conn *sqlite.Conn, roomID ref.RoomID, timeline messaging.TimelineSection) error {
	if len(timeline.Events) == 0 {
		return nil
	}
	var events []messaging.Event
	if !timeline.Limited {
		existing, err := s.readTimeline(conn, roomID)
		if err != nil {
			return err
		}
		events = existing
	}
	events = append(events, timeline.Events...)
	if len(events) > s.limit {
		events = events[len(events)-s.limit:]
	}
	return s.writeTimeline(conn, roomID, events)
}

func (s *Store) readTimeline(conn *sqlite.Conn, roomID ref.RoomID) ([]messaging.Event, error) {
	var compressed []byte
	var uncompressedSize int
	err := sqlitex.Execute(conn,
		`SELECT uncompressed_size, events FROM timelines WHERE room_id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{roomID.String()},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				uncompressedSize = stmt.ColumnInt(0)
				compressed = make([]byte, stmt.ColumnLen(1))
				stmt.ColumnBytes(1, compressed)
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("statecache: read timeline: %w", err)
	}
	if compressed == nil {
		return nil, nil
	}
	blob, err := decompressSnapshot(compressed, uncompressedSize)
	if err != nil {
		// A snapshot that does not decode is dropped, not fatal:
		// the room falls back to pagination for its history.
		s.logger.Warn("discarding undecodable timeline snapshot",
			"room_id", roomID,
			"error", err)
		return nil, nil
	}
	var events []messaging.Event
	if err := codec.Unmarshal(blob, &events); err != nil {
		s.logger.Warn("discarding undecodable timeline snapshot",
			"room_id", roomID,
			"error", err)
		return nil, nil
	}
	return events, nil
}

func (s *Store) writeTimeline(conn *sqlite.Conn, roomID ref.RoomID, events []messaging.Event) error {
	blob, err := codec.Marshal(events)
	if err != nil {
		return fmt.Errorf("statecache: encode timeline: %w", err)
	}
	compressed := compressSnapshot(blob)
	err = sqlitex.Execute(conn,
		`INSERT INTO timelines (room_id, uncompressed_size, events) VALUES (?, ?, ?)
		 ON CONFLICT (room_id) DO UPDATE SET
			uncompressed_size = excluded.uncompressed_size,
			events = excluded.events`,
		&sqlitex.ExecOptions{
			Args: []any{roomID.String(), len(blob), compressed},
		})
	if err != nil {
		return fmt.Errorf("statecache: write timeline: %w", err)
	}
	return nil
}

func (s *Store) upsertRoom(conn *sqlite.Conn, summary chat.RoomSummary) error {
	var tagsBlob any
	if len(summary.Tags) > 0 {
		blob, err := codec.Marshal(summary.Tags)
		if err != nil {
			return fmt.Errorf("statecache: encode tags: %w", err)
		}
		tagsBlob = blob
	}
	err := sqlitex.Execute(conn,
		`INSERT INTO rooms
			(room_id, name, membership, is_direct, is_space, unread, highlights, tags, last_activity)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (room_id) DO UPDATE SET
			name = excluded.name,
			membership = excluded.membership,
			is_direct = excluded.is_direct,
			is_space = excluded.is_space,
			unread = excluded.unread,
			highlights = excluded.highlights,
			tags = excluded.tags,
			last_activity = excluded.last_activity`,
		&sqlitex.ExecOptions{
			Args: []any{
				summary.RoomID.String(),
				summary.Name,
				int(summary.Membership),
				boolToInt(summary.IsDirect),
				boolToInt(summary.IsSpace),
				summary.Unread,
				summary.Highlights,
				tagsBlob,
				summary.LastActivity.UnixMilli(),
			},
		})
	if err != nil {
		return fmt.Errorf("statecache: upsert room: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Snapshot assembles a synthetic sync response from the cached rows.
// Replaying it through the normal ingest path restores memberships,
// room state, account data, and recent timelines exactly as a live
// response would have. Returns nil when the cache holds no rooms and
// no token (a cold start).
//
// The response's NextBatch is the stored sync token; resuming the
// stream from it makes the replayed events and the live stream meet
// without a gap.
func (s *Store) Snapshot(ctx context.Context) (*messaging.SyncResponse, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("statecache: snapshot: %w", err)
	}
	defer s.pool.Put(conn)

	token, err := s.readToken(conn)
	if err != nil {
		return nil, err
	}

	memberships, err := s.readMemberships(conn)
	if err != nil {
		return nil, err
	}
	if token == "" && len(memberships) == 0 {
		return nil, nil
	}

	state, err := s.readAllState(conn)
	if err != nil {
		return nil, err
	}
	roomAccount, globalAccount, err := s.readAllAccountData(conn)
	if err != nil {
		return nil, err
	}

	response := &messaging.SyncResponse{
		NextBatch: token,
		Rooms: messaging.RoomsSection{
			Join:   make(map[ref.RoomID]messaging.JoinedRoom),
			Invite: make(map[ref.RoomID]messaging.InvitedRoom),
			Leave:  make(map[ref.RoomID]messaging.LeftRoom),
		},
		AccountData: messaging.AccountDataSection{Events: globalAccount},
	}

	for roomID, row := range memberships {
		switch row.membership {
		case chat.MembershipJoined:
			timeline, err := s.readTimeline(conn, roomID)
			if err != nil {
				return nil, err
			}
			response.Rooms.Join[roomID] = messaging.JoinedRoom{
				State:       messaging.StateSection{Events: state[roomID]},
				Timeline:    messaging.TimelineSection{Events: timeline},
				AccountData: messaging.AccountDataSection{Events: roomAccount[roomID]},
				UnreadNotifications: messaging.UnreadNotificationCounts{
					NotificationCount: row.unread,
					HighlightCount:    row.highlights,
				},
			}
		case chat.MembershipInvited:
			response.Rooms.Invite[roomID] = messaging.InvitedRoom{
				InviteState: messaging.InviteStateSection{Events: state[roomID]},
			}
		case chat.MembershipLeft:
			timeline, err := s.readTimeline(conn, roomID)
			if err != nil {
				return nil, err
			}
			response.Rooms.Leave[roomID] = messaging.LeftRoom{
				State:    messaging.StateSection{Events: state[roomID]},
				Timeline: messaging.TimelineSection{Events: timeline},
			}
		}
	}

	return response, nil
}

func (s *Store) readToken(conn *sqlite.Conn) (string, error) {
	var token string
	err := sqlitex.Execute(conn, `SELECT token FROM sync_state WHERE id = 1`, &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			token = stmt.ColumnText(0)
			return nil
		},
	})
	if err != nil {
		return "", fmt.Errorf("statecache: read token: %w", err)
	}
	return token, nil
}

type membershipRow struct {
	membership chat.Membership
	unread     int
	highlights int
}

func (s *Store) readMemberships(conn *sqlite.Conn) (map[ref.RoomID]membershipRow, error) {
	rows := make(map[ref.RoomID]membershipRow)
	err := sqlitex.Execute(conn,
		`SELECT room_id, membership, unread, highlights FROM rooms`,
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				roomID, err := ref.ParseRoomID(stmt.ColumnText(0))
				if err != nil {
					return nil
				}
				rows[roomID] = membershipRow{
					membership: chat.Membership(stmt.ColumnInt(1)),
					unread:     stmt.ColumnInt(2),
					highlights: stmt.ColumnInt(3),
				}
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("statecache: read rooms: %w", err)
	}
	return rows, nil
}

func (s *Store) readAllState(conn *sqlite.Conn) (map[ref.RoomID][]messaging.Event, error) {
	state := make(map[ref.RoomID][]messaging.Event)
	err := sqlitex.Execute(conn,
		`SELECT room_id, event FROM room_state ORDER BY room_id, event_type, state_key`,
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				roomID, err := ref.ParseRoomID(stmt.ColumnText(0))
				if err != nil {
					return nil
				}
				blob := make([]byte, stmt.ColumnLen(1))
				stmt.ColumnBytes(1, blob)
				var event messaging.Event
				if err := codec.Unmarshal(blob, &event); err != nil {
					s.logger.Warn("discarding undecodable state row", "error", err)
					return nil
				}
				state[roomID] = append(state[roomID], event)
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("statecache: read state: %w", err)
	}
	return state, nil
}

func (s *Store) readAllAccountData(conn *sqlite.Conn) (map[ref.RoomID][]messaging.Event, []messaging.Event, error) {
	perRoom := make(map[ref.RoomID][]messaging.Event)
	var global []messaging.Event
	err := sqlitex.Execute(conn,
		`SELECT room_id, event FROM account_data ORDER BY room_id, event_type`,
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				blob := make([]byte, stmt.ColumnLen(1))
				stmt.ColumnBytes(1, blob)
				var event messaging.Event
				if err := codec.Unmarshal(blob, &event); err != nil {
					s.logger.Warn("discarding undecodable account-data row", "error", err)
					return nil
				}
				raw := stmt.ColumnText(0)
				if raw == "" {
					global = append(global, event)
					return nil
				}
				roomID, err := ref.ParseRoomID(raw)
				if err != nil {
					return nil
				}
				perRoom[roomID] = append(perRoom[roomID], event)
				return nil
			},
		})
	if err != nil {
		return nil, nil, fmt.Errorf("statecache: read account data: %w", err)
	}
	return perRoom, global, nil
}

// Stats describes the cache contents for the cache CLI.
type Stats struct {
	// TokenAge is how long ago the sync token was written; zero when
	// no token is stored.
	TokenAge time.Duration
	Rooms    int
	// SnapshotBytes is the compressed size of all timeline snapshots.
	SnapshotBytes int64
	// SnapshotEvents is the total uncompressed CBOR size; the ratio
	// against SnapshotBytes is the compression factor.
	SnapshotEventBytes int64
}

// ReadStats reports the cache contents.
func (s *Store) ReadStats(ctx context.Context) (Stats, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("statecache: stats: %w", err)
	}
	defer s.pool.Put(conn)

	var stats Stats
	err = sqlitex.Execute(conn, `SELECT updated_at FROM sync_state WHERE id = 1`, &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			written := time.UnixMilli(stmt.ColumnInt64(0))
			stats.TokenAge = s.clock.Now().Sub(written)
			return nil
		},
	})
	if err != nil {
		return Stats{}, fmt.Errorf("statecache: stats: %w", err)
	}
	err = sqlitex.Execute(conn, `SELECT COUNT(*) FROM rooms`, &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			stats.Rooms = stmt.ColumnInt(0)
			return nil
		},
	})
	if err != nil {
		return Stats{}, fmt.Errorf("statecache: stats: %w", err)
	}
	err = sqlitex.Execute(conn,
		`SELECT COALESCE(SUM(LENGTH(events)), 0), COALESCE(SUM(uncompressed_size), 0) FROM timelines`,
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				stats.SnapshotBytes = stmt.ColumnInt64(0)
				stats.SnapshotEventBytes = stmt.ColumnInt64(1)
				return nil
			},
		})
	if err != nil {
		return Stats{}, fmt.Errorf("statecache: stats: %w", err)
	}
	return stats, nil
}

// InspectTimeline returns the CBOR diagnostic notation of a room's
// timeline snapshot, for the cache CLI. Returns "" when the room has
// no snapshot.
func (s *Store) InspectTimeline(ctx context.Context, roomID ref.RoomID) (string, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return "", fmt.Errorf("statecache: inspect: %w", err)
	}
	defer s.pool.Put(conn)

	var compressed []byte
	var uncompressedSize int
	err = sqlitex.Execute(conn,
		`SELECT uncompressed_size, events FROM timelines WHERE room_id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{roomID.String()},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				uncompressedSize = stmt.ColumnInt(0)
				compressed = make([]byte, stmt.ColumnLen(1))
				stmt.ColumnBytes(1, compressed)
				return nil
			},
		})
	if err != nil {
		return "", fmt.Errorf("statecache: inspect: %w", err)
	}
	if compressed == nil {
		return "", nil
	}
	blob, err := decompressSnapshot(compressed, uncompressedSize)
	if err != nil {
		return "", fmt.Errorf("statecache: inspect: %w", err)
	}
	return codec.Diagnose(blob)
}
