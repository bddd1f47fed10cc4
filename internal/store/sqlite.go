// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/samber/oops"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS quest_documents (
	key        TEXT PRIMARY KEY,
	data       BLOB NOT NULL,
	version    INTEGER NOT NULL CHECK (version > 0),
	updated_at INTEGER NOT NULL
)`

// SQLiteStore keeps documents in a single SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, oops.In("store").Code("STORE_OPEN_FAILED").Errorf("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, oops.In("store").Code("STORE_OPEN_FAILED").With("path", path).Wrap(err)
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, oops.In("store").Code("STORE_OPEN_FAILED").With("path", path).Wrap(err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, oops.In("store").Code("STORE_OPEN_FAILED").With("path", path).Wrap(err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, oops.In("store").Code("STORE_OPEN_FAILED").With("operation", "create schema").Wrap(err)
	}
	return &SQLiteStore{db: db}, nil
}

// Load implements BlobStore.
func (s *SQLiteStore) Load(ctx context.Context, key string) (Document, error) {
	doc := Document{Key: key}
	var updated int64
	err := s.db.QueryRowContext(ctx,
		`SELECT data, version, updated_at FROM quest_documents WHERE key = ?`, key).
		Scan(&doc.Data, &doc.Version, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, oops.In("store").Code("DOCUMENT_NOT_FOUND").With("key", key).Wrap(ErrNotFound)
	}
	if err != nil {
		return Document{}, oops.In("store").Code("STORE_READ_FAILED").With("key", key).Wrap(err)
	}
	doc.UpdatedAt = time.UnixMilli(updated).UTC()
	return doc, nil
}

// Save implements BlobStore.
func (s *SQLiteStore) Save(ctx context.Context, key string, data []byte, expectedVersion int64) (int64, error) {
	now := time.Now().UTC().UnixMilli()
	switch expectedVersion {
	case AnyVersion:
		var version int64
		err := s.db.QueryRowContext(ctx,
			`INSERT INTO quest_documents (key, data, version, updated_at) VALUES (?, ?, 1, ?)
			 ON CONFLICT (key) DO UPDATE SET data = excluded.data, version = quest_documents.version + 1,
			 updated_at = excluded.updated_at
			 RETURNING version`, key, data, now).Scan(&version)
		if err != nil {
			return 0, oops.In("store").Code("STORE_WRITE_FAILED").With("key", key).Wrap(err)
		}
		return version, nil
	case 0:
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO quest_documents (key, data, version, updated_at) VALUES (?, ?, 1, ?)`,
			key, data, now)
		if isSQLiteConstraint(err) {
			return 0, conflict(key, expectedVersion)
		}
		if err != nil {
			return 0, oops.In("store").Code("STORE_WRITE_FAILED").With("key", key).Wrap(err)
		}
		return 1, nil
	default:
		res, err := s.db.ExecContext(ctx,
			`UPDATE quest_documents SET data = ?, version = version + 1, updated_at = ?
			 WHERE key = ? AND version = ?`, data, now, key, expectedVersion)
		if err != nil {
			return 0, oops.In("store").Code("STORE_WRITE_FAILED").With("key", key).Wrap(err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, oops.In("store").Code("STORE_WRITE_FAILED").With("key", key).Wrap(err)
		}
		if n == 0 {
			return 0, conflict(key, expectedVersion)
		}
		return expectedVersion + 1, nil
	}
}

// Delete implements BlobStore.
func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM quest_documents WHERE key = ?`, key); err != nil {
		return oops.In("store").Code("STORE_WRITE_FAILED").With("key", key).Wrap(err)
	}
	return nil
}

// Close implements BlobStore.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func isSQLiteConstraint(err error) bool {
	var sqliteErr *msqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	switch sqliteErr.Code() {
	case sqlite3lib.SQLITE_CONSTRAINT, sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
		return true
	}
	return false
}

func conflict(key string, expected int64) error {
	return oops.In("store").
		Code("VERSION_CONFLICT").
		With("key", key).
		With("expected", expected).
		Wrap(ErrVersionConflict)
}
