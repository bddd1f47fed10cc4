// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package store

import (
	"context"
	"path/filepath"

	"github.com/samber/oops"
)

// Backend names.
const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Backends lists every supported backend.
func Backends() []string {
	return []string{BackendMemory, BackendFile, BackendSQLite, BackendPostgres}
}

// Config selects and configures a backend.
type Config struct {
	Backend string
	// DataDir holds file documents and the default SQLite database.
	DataDir string
	// SQLitePath overrides the SQLite database location.
	SQLitePath string
	// DatabaseURL is the PostgreSQL connection string.
	DatabaseURL string
	// ConnectRetries bounds the initial PostgreSQL ping retries.
	ConnectRetries uint64
}

// Open builds the configured BlobStore.
func Open(ctx context.Context, cfg Config) (BlobStore, error) {
	switch cfg.Backend {
	case BackendMemory:
		return NewMemoryStore(), nil
	case BackendFile:
		return NewFileStore(cfg.DataDir)
	case BackendSQLite:
		path := cfg.SQLitePath
		if path == "" {
			path = filepath.Join(cfg.DataDir, "questkeeper.db")
		}
		return OpenSQLite(ctx, path)
	case BackendPostgres:
		if cfg.DatabaseURL == "" {
			return nil, oops.In("store").Code("STORE_OPEN_FAILED").Errorf("database URL is required for the postgres backend")
		}
		return OpenPostgres(ctx, cfg.DatabaseURL, cfg.ConnectRetries)
	default:
		return nil, oops.In("store").
			Code("UNKNOWN_BACKEND").
			With("backend", cfg.Backend).
			Errorf("unknown storage backend %q", cfg.Backend)
	}
}
