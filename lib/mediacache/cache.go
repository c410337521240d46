// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package mediacache

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/parley-chat/parley/chat"
	"github.com/parley-chat/parley/lib/clock"
	"github.com/parley-chat/parley/lib/secret"
	"github.com/parley-chat/parley/lib/sqlitepool"
)

// DefaultMaxBytes is the eviction budget when the config does not set
// one: half a gigabyte of encrypted blobs.
const DefaultMaxBytes = 512 << 20

// Config holds the parameters for opening a media cache.
type Config struct {
	// Dir is the cache root. Blobs, the index database, and the
	// session's plaintext directory all live under it. Created if it
	// does not exist; everything inside is private to the user.
	Dir string

	// Key is the profile's 32-byte media key. The cache owns it and
	// closes it on Close.
	Key *secret.Buffer

	// MaxBytes caps the total encrypted blob size; the least recently
	// used entries are evicted past it. Defaults to DefaultMaxBytes.
	MaxBytes int64

	// PoolSize is the number of index connections. Defaults to 2.
	PoolSize int

	// Clock provides timestamps for use tracking and eviction order.
	// Defaults to the real clock.
	Clock clock.Clock

	// Logger receives operational messages.
	Logger *slog.Logger
}

// Cache is an encrypted store for downloaded attachments, keyed by mxc
// URI. The worker goroutine is the only writer; reads come from the
// worker and the cache CLI.
type Cache struct {
	dir        string
	runtimeDir string
	key        *secret.Buffer
	pool       *sqlitepool.Pool
	clock      clock.Clock
	logger     *slog.Logger
	maxBytes   int64
}

var _ chat.AttachmentStore = (*Cache)(nil)

const indexSchema = `
CREATE TABLE IF NOT EXISTS entries (
	reference   TEXT PRIMARY KEY,
	size        INTEGER NOT NULL,
	blob_size   INTEGER NOT NULL,
	compression INTEGER NOT NULL,
	added_at    INTEGER NOT NULL,
	last_used   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_entries_last_used ON entries(last_used);
`

// Open creates or opens the media cache rooted at cfg.Dir. Any
// plaintext left behind by a crashed session is removed before the
// runtime directory is recreated.
func Open(cfg Config) (*Cache, error) {
	if cfg.Key == nil || cfg.Key.Len() != KeySize {
		return nil, fmt.Errorf("mediacache: Key must be %d bytes", KeySize)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real()
	}
	maxBytes := cfg.MaxBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = 2
	}

	if err := os.MkdirAll(filepath.Join(cfg.Dir, "blobs"), 0o700); err != nil {
		return nil, fmt.Errorf("mediacache: creating blob directory: %w", err)
	}
	runtimeDir := filepath.Join(cfg.Dir, "open")
	if err := os.RemoveAll(runtimeDir); err != nil {
		return nil, fmt.Errorf("mediacache: clearing runtime directory: %w", err)
	}
	if err := os.MkdirAll(runtimeDir, 0o700); err != nil {
		return nil, fmt.Errorf("mediacache: creating runtime directory: %w", err)
	}

	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:     filepath.Join(cfg.Dir, "index.db"),
		PoolSize: poolSize,
		Logger:   logger,
		OnConnect: func(conn *sqlite.Conn) error {
			return sqlitex.ExecuteScript(conn, indexSchema, nil)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("mediacache: %w", err)
	}

	return &Cache{
		dir:        cfg.Dir,
		runtimeDir: runtimeDir,
		key:        cfg.Key,
		pool:       pool,
		clock:      clk,
		logger:     logger,
		maxBytes:   maxBytes,
	}, nil
}

// Close closes the index, zeroes the media key, and removes the
// session's plaintext directory.
func (c *Cache) Close() error {
	err := c.pool.Close()
	if keyErr := c.key.Close(); err == nil {
		err = keyErr
	}
	if removeErr := os.RemoveAll(c.runtimeDir); err == nil {
		err = removeErr
	}
	return err
}

// blobPath returns the sharded blob file path for a reference:
// blobs/a3/a3f9b2c1....
func (c *Cache) blobPath(reference Reference) string {
	name := reference.String()
	return filepath.Join(c.dir, "blobs", name[:2], name)
}

// openPath returns the session plaintext path for a reference.
func (c *Cache) openPath(reference Reference) string {
	return filepath.Join(c.runtimeDir, reference.String())
}

// Path reports the local plaintext path for key when its blob is
// cached, decrypting into the runtime directory on first access this
// session. An entry that fails authentication or decompression is
// dropped so the caller re-downloads it.
func (c *Cache) Path(key string) (string, bool) {
	reference := referenceFor(c.key, key)

	// Already materialized this session.
	plainPath := c.openPath(reference)
	if _, err := os.Stat(plainPath); err == nil {
		c.touch(reference)
		return plainPath, true
	}

	row, ok := c.lookup(reference)
	if !ok {
		return "", false
	}
	blob, err := os.ReadFile(c.blobPath(reference))
	if err != nil {
		// Index row without a blob: a crash between the row upsert
		// and a purge, or manual deletion. Drop the row.
		c.remove(reference)
		return "", false
	}
	plaintext, err := c.decode(blob, row, reference)
	if err != nil {
		c.logger.Warn("dropping undecryptable media cache entry",
			"reference", reference.String(),
			"error", err)
		c.remove(reference)
		return "", false
	}
	if err := os.WriteFile(plainPath, plaintext, 0o600); err != nil {
		c.logger.Warn("media cache materialization failed", "error", err)
		return "", false
	}
	c.touch(reference)
	return plainPath, true
}

// Store writes content under key, sealing it at rest, and returns the
// session plaintext path. Re-storing an existing key replaces the
// entry.
func (c *Cache) Store(key string, content io.Reader) (string, error) {
	plaintext, err := io.ReadAll(content)
	if err != nil {
		return "", fmt.Errorf("mediacache: reading content: %w", err)
	}
	reference := referenceFor(c.key, key)

	payload, tag, err := compressAuto(plaintext)
	if err != nil {
		return "", fmt.Errorf("mediacache: compressing: %w", err)
	}
	blobKey, err := deriveBlobKey(c.key, reference)
	if err != nil {
		return "", fmt.Errorf("mediacache: %w", err)
	}
	defer blobKey.Close()
	blob, err := encryptBlob(payload, blobKey, reference)
	if err != nil {
		return "", fmt.Errorf("mediacache: encrypting: %w", err)
	}

	if err := c.writeBlob(reference, blob); err != nil {
		return "", err
	}
	if err := c.upsert(reference, len(plaintext), len(blob), tag); err != nil {
		return "", err
	}
	c.evict()

	plainPath := c.openPath(reference)
	if err := os.WriteFile(plainPath, plaintext, 0o600); err != nil {
		return "", fmt.Errorf("mediacache: materializing: %w", err)
	}
	return plainPath, nil
}

// writeBlob lands the encrypted blob via atomic rename, so a crash
// never leaves a partial blob under its final name.
func (c *Cache) writeBlob(reference Reference, blob []byte) error {
	finalPath := c.blobPath(reference)
	shardDir := filepath.Dir(finalPath)
	if err := os.MkdirAll(shardDir, 0o700); err != nil {
		return fmt.Errorf("mediacache: creating shard directory: %w", err)
	}
	tmpFile, err := os.CreateTemp(shardDir, "blob-*.tmp")
	if err != nil {
		return fmt.Errorf("mediacache: creating temp blob: %w", err)
	}
	tmpPath := tmpFile.Name()
	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()
	if _, err := tmpFile.Write(blob); err != nil {
		tmpFile.Close()
		return fmt.Errorf("mediacache: writing blob: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("mediacache: closing temp blob: %w", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return fmt.Errorf("mediacache: renaming blob: %w", err)
	}
	success = true
	return nil
}

// decode reverses the at-rest transform: decrypt, then decompress.
func (c *Cache) decode(blob []byte, row entryRow, reference Reference) ([]byte, error) {
	blobKey, err := deriveBlobKey(c.key, reference)
	if err != nil {
		return nil, err
	}
	defer blobKey.Close()
	payload, err := decryptBlob(blob, blobKey, reference)
	if err != nil {
		return nil, err
	}
	return decompress(payload, row.compression, row.size)
}

type entryRow struct {
	size        int
	compression CompressionTag
}

func (c *Cache) lookup(reference Reference) (entryRow, bool) {
	conn, err := c.pool.Take(context.Background())
	if err != nil {
		c.logger.Warn("media index unavailable", "error", err)
		return entryRow{}, false
	}
	defer c.pool.Put(conn)

	var row entryRow
	found := false
	err = sqlitex.Execute(conn,
		`SELECT size, compression FROM entries WHERE reference = ?`,
		&sqlitex.ExecOptions{
			Args: []any{reference.String()},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				row.size = stmt.ColumnInt(0)
				row.compression = CompressionTag(stmt.ColumnInt(1))
				found = true
				return nil
			},
		})
	if err != nil {
		c.logger.Warn("media index lookup failed", "error", err)
		return entryRow{}, false
	}
	return row, found
}

func (c *Cache) upsert(reference Reference, size, blobSize int, tag CompressionTag) error {
	conn, err := c.pool.Take(context.Background())
	if err != nil {
		return fmt.Errorf("mediacache: index: %w", err)
	}
	defer c.pool.Put(conn)

	now := c.clock.Now().UnixMilli()
	err = sqlitex.Execute(conn,
		`INSERT INTO entries (reference, size, blob_size, compression, added_at, last_used)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (reference) DO UPDATE SET
			size = excluded.size,
			blob_size = excluded.blob_size,
			compression = excluded.compression,
			last_used = excluded.last_used`,
		&sqlitex.ExecOptions{
			Args: []any{reference.String(), size, blobSize, int(tag), now, now},
		})
	if err != nil {
		return fmt.Errorf("mediacache: index upsert: %w", err)
	}
	return nil
}

// touch bumps an entry's last-used time. Best effort: a failed bump
// only skews eviction order.
func (c *Cache) touch(reference Reference) {
	conn, err := c.pool.Take(context.Background())
	if err != nil {
		return
	}
	defer c.pool.Put(conn)
	_ = sqlitex.Execute(conn,
		`UPDATE entries SET last_used = ? WHERE reference = ?`,
		&sqlitex.ExecOptions{
			Args: []any{c.clock.Now().UnixMilli(), reference.String()},
		})
}

// remove drops an entry: index row, blob, and any materialized
// plaintext.
func (c *Cache) remove(reference Reference) {
	conn, err := c.pool.Take(context.Background())
	if err == nil {
		_ = sqlitex.Execute(conn,
			`DELETE FROM entries WHERE reference = ?`,
			&sqlitex.ExecOptions{Args: []any{reference.String()}})
		c.pool.Put(conn)
	}
	os.Remove(c.blobPath(reference))
	os.Remove(c.openPath(reference))
}

// evict drops least recently used entries until the blob total fits
// the budget. The entry just written is the most recently used, so it
// survives unless it alone exceeds the budget.
func (c *Cache) evict() {
	conn, err := c.pool.Take(context.Background())
	if err != nil {
		return
	}

	var total int64
	err = sqlitex.Execute(conn,
		`SELECT COALESCE(SUM(blob_size), 0) FROM entries`,
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				total = stmt.ColumnInt64(0)
				return nil
			},
		})
	if err != nil || total <= c.maxBytes {
		c.pool.Put(conn)
		return
	}

	type victim struct {
		reference string
		blobSize  int64
	}
	var victims []victim
	over := total - c.maxBytes
	err = sqlitex.Execute(conn,
		`SELECT reference, blob_size FROM entries ORDER BY last_used ASC`,
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				if over <= 0 {
					return nil
				}
				v := victim{reference: stmt.ColumnText(0), blobSize: stmt.ColumnInt64(1)}
				victims = append(victims, v)
				over -= v.blobSize
				return nil
			},
		})
	c.pool.Put(conn)
	if err != nil {
		return
	}

	for _, v := range victims {
		reference, err := parseReference(v.reference)
		if err != nil {
			continue
		}
		c.remove(reference)
		c.logger.Debug("evicted media cache entry",
			"reference", v.reference,
			"blob_size", v.blobSize)
	}
}

// parseReference decodes a hex reference from an index row.
func parseReference(raw string) (Reference, error) {
	var reference Reference
	decoded, err := hex.DecodeString(raw)
	if err != nil {
		return Reference{}, err
	}
	if len(decoded) != len(reference) {
		return Reference{}, fmt.Errorf("reference is %d bytes, want %d", len(decoded), len(reference))
	}
	copy(reference[:], decoded)
	return reference, nil
}

// Stats describes the cache contents for the cache CLI.
type Stats struct {
	Entries int
	// BlobBytes is the encrypted size on disk.
	BlobBytes int64
	// ContentBytes is the plaintext size the blobs decode to.
	ContentBytes int64
}

// ReadStats reports the cache contents.
func (c *Cache) ReadStats(ctx context.Context) (Stats, error) {
	conn, err := c.pool.Take(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("mediacache: stats: %w", err)
	}
	defer c.pool.Put(conn)

	var stats Stats
	err = sqlitex.Execute(conn,
		`SELECT COUNT(*), COALESCE(SUM(blob_size), 0), COALESCE(SUM(size), 0) FROM entries`,
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				stats.Entries = stmt.ColumnInt(0)
				stats.BlobBytes = stmt.ColumnInt64(1)
				stats.ContentBytes = stmt.ColumnInt64(2)
				return nil
			},
		})
	if err != nil {
		return Stats{}, fmt.Errorf("mediacache: stats: %w", err)
	}
	return stats, nil
}

// Purge removes every entry: index rows, blobs, and materialized
// plaintext. The cache stays usable afterward.
func (c *Cache) Purge(ctx context.Context) error {
	conn, err := c.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("mediacache: purge: %w", err)
	}
	if err := sqlitex.Execute(conn, `DELETE FROM entries`, nil); err != nil {
		c.pool.Put(conn)
		return fmt.Errorf("mediacache: purge: %w", err)
	}
	c.pool.Put(conn)

	blobRoot := filepath.Join(c.dir, "blobs")
	if err := os.RemoveAll(blobRoot); err != nil {
		return fmt.Errorf("mediacache: purge: %w", err)
	}
	if err := os.MkdirAll(blobRoot, 0o700); err != nil {
		return fmt.Errorf("mediacache: purge: %w", err)
	}
	if err := os.RemoveAll(c.runtimeDir); err != nil {
		return fmt.Errorf("mediacache: purge: %w", err)
	}
	if err := os.MkdirAll(c.runtimeDir, 0o700); err != nil {
		return fmt.Errorf("mediacache: purge: %w", err)
	}
	return nil
}
