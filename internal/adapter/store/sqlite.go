// Package store persists scoped key-value data and the action ledger archive
// in a single SQLite database.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"wayfinder/internal/security"
)

// DB is an open SQLite database with the wayfinder schema applied.
type DB struct {
	db     *sql.DB
	sealer *security.Sealer
}

// Open opens (or creates) the database at path and runs the migration.
// ":memory:" opens a private in-memory database.
func Open(path string) (*DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open store db: %w", err)
	}
	// One connection: an in-memory database is per connection, and writes
	// are serialised by SQLite anyway.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate store db: %w", err)
	}
	return &DB{db: db}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS kv (
			scope      TEXT NOT NULL,
			key        TEXT NOT NULL,
			value      BLOB NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (scope, key)
		);
		CREATE TABLE IF NOT EXISTS ledger (
			seq         INTEGER PRIMARY KEY AUTOINCREMENT,
			action_id   INTEGER NOT NULL,
			action_type TEXT NOT NULL,
			status      TEXT NOT NULL,
			resolved_at TEXT NOT NULL,
			body        TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_ledger_action ON ledger (action_id);
		CREATE TABLE IF NOT EXISTS meta (
			key   TEXT PRIMARY KEY,
			value BLOB NOT NULL
		);
	`)
	return err
}

// EnableEncryption seals every value written to the key-value store from now
// on. The salt is created on first use and kept in the meta table, so the
// same passphrase opens the values after a restart. Values written in
// plaintext before encryption was enabled stay readable.
func (d *DB) EnableEncryption(ctx context.Context, passphrase string) error {
	salt, err := d.salt(ctx)
	if err != nil {
		return err
	}
	sealer, err := security.NewSealer(passphrase, salt)
	if err != nil {
		return err
	}
	d.sealer = sealer
	return nil
}

func (d *DB) salt(ctx context.Context) ([]byte, error) {
	var salt []byte
	err := d.db.QueryRowContext(ctx, "SELECT value FROM meta WHERE key = 'salt'").Scan(&salt)
	switch {
	case err == nil:
		return salt, nil
	case !errors.Is(err, sql.ErrNoRows):
		return nil, fmt.Errorf("read salt: %w", err)
	}
	salt, err = security.NewSalt()
	if err != nil {
		return nil, err
	}
	if _, err := d.db.ExecContext(ctx, "INSERT INTO meta (key, value) VALUES ('salt', ?)", salt); err != nil {
		return nil, fmt.Errorf("write salt: %w", err)
	}
	return salt, nil
}

// KV returns the scoped key-value view of the database.
func (d *DB) KV() *KVStore { return &KVStore{db: d} }

// Ledger returns the ledger archive view of the database.
func (d *DB) Ledger() *LedgerArchive { return &LedgerArchive{db: d.db} }

// Close closes the underlying database connection.
func (d *DB) Close() error {
	return d.db.Close()
}
