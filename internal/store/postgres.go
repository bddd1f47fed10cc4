// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// poolIface is the subset of pgxpool.Pool used by PostgresStore. It is
// satisfied by *pgxpool.Pool and by pgxmock.PgxPoolIface.
type poolIface interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore keeps documents in the quest_documents table. The schema is
// managed by Migrator.
type PostgresStore struct {
	pool poolIface
}

// NewPostgresStore wraps an existing pool.
func NewPostgresStore(pool poolIface) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// OpenPostgres connects to dsn, retrying the initial ping with exponential
// backoff so a database that is still starting does not fail the process.
func OpenPostgres(ctx context.Context, dsn string, attempts uint64) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, oops.In("store").Code("STORE_OPEN_FAILED").Wrap(err)
	}
	if err := pingWithRetry(ctx, pool, attempts); err != nil {
		pool.Close()
		return nil, err
	}
	return NewPostgresStore(pool), nil
}

// Pool returns the underlying connection pool, or nil when the store was
// built over a test double.
func (s *PostgresStore) Pool() *pgxpool.Pool {
	p, _ := s.pool.(*pgxpool.Pool)
	return p
}

func pingWithRetry(ctx context.Context, pool poolIface, attempts uint64) error {
	backoff := retry.WithMaxRetries(attempts, retry.WithCappedDuration(5*time.Second, retry.NewExponential(100*time.Millisecond)))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := pool.Ping(ctx); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return oops.In("store").Code("STORE_OPEN_FAILED").With("attempts", attempts+1).Wrap(err)
	}
	return nil
}

// Load implements BlobStore.
func (s *PostgresStore) Load(ctx context.Context, key string) (Document, error) {
	doc := Document{Key: key}
	err := s.pool.QueryRow(ctx,
		`SELECT data, version, updated_at FROM quest_documents WHERE key = $1`, key).
		Scan(&doc.Data, &doc.Version, &doc.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Document{}, oops.In("store").Code("DOCUMENT_NOT_FOUND").With("key", key).Wrap(ErrNotFound)
	}
	if err != nil {
		return Document{}, oops.In("store").Code("STORE_READ_FAILED").With("key", key).Wrap(err)
	}
	doc.UpdatedAt = doc.UpdatedAt.UTC()
	return doc, nil
}

// Save implements BlobStore.
func (s *PostgresStore) Save(ctx context.Context, key string, data []byte, expectedVersion int64) (int64, error) {
	switch expectedVersion {
	case AnyVersion:
		var version int64
		err := s.pool.QueryRow(ctx,
			`INSERT INTO quest_documents (key, data, version) VALUES ($1, $2, 1)
			 ON CONFLICT (key) DO UPDATE SET data = EXCLUDED.data,
			 version = quest_documents.version + 1, updated_at = now()
			 RETURNING version`, key, data).Scan(&version)
		if err != nil {
			return 0, oops.In("store").Code("STORE_WRITE_FAILED").With("key", key).Wrap(err)
		}
		return version, nil
	case 0:
		_, err := s.pool.Exec(ctx,
			`INSERT INTO quest_documents (key, data, version) VALUES ($1, $2, 1)`, key, data)
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return 0, conflict(key, expectedVersion)
		}
		if err != nil {
			return 0, oops.In("store").Code("STORE_WRITE_FAILED").With("key", key).Wrap(err)
		}
		return 1, nil
	default:
		tag, err := s.pool.Exec(ctx,
			`UPDATE quest_documents SET data = $1, version = version + 1, updated_at = now()
			 WHERE key = $2 AND version = $3`, data, key, expectedVersion)
		if err != nil {
			return 0, oops.In("store").Code("STORE_WRITE_FAILED").With("key", key).Wrap(err)
		}
		if tag.RowsAffected() == 0 {
			return 0, conflict(key, expectedVersion)
		}
		return expectedVersion + 1, nil
	}
}

// Delete implements BlobStore.
func (s *PostgresStore) Delete(ctx context.Context, key string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM quest_documents WHERE key = $1`, key); err != nil {
		return oops.In("store").Code("STORE_WRITE_FAILED").With("key", key).Wrap(err)
	}
	return nil
}

// Close implements BlobStore.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
