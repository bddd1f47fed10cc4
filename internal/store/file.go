// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/natefinch/atomic"
	"github.com/samber/oops"
)

var validKey = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// fileEnvelope is the on-disk form of one document.
type fileEnvelope struct {
	Version   int64           `json:"version"`
	UpdatedAt time.Time       `json:"updatedAt"`
	Data      json.RawMessage `json:"data"`
}

// FileStore keeps one JSON file per document in a directory. Writes go
// through a temp file and rename so readers never observe a torn document.
//
// The version check is serialized within one process only.
type FileStore struct {
	dir string
	mu  sync.Mutex
}

// NewFileStore creates dir if needed and returns a FileStore rooted there.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, oops.In("store").Code("STORE_OPEN_FAILED").With("dir", dir).Wrap(err)
	}
	return &FileStore{dir: dir}, nil
}

// Dir returns the data directory.
func (s *FileStore) Dir() string { return s.dir }

func (s *FileStore) path(key string) (string, error) {
	if !validKey.MatchString(key) {
		return "", oops.In("store").Code("INVALID_KEY").With("key", key).Errorf("invalid document key")
	}
	return filepath.Join(s.dir, key+".json"), nil
}

func (s *FileStore) read(key string) (fileEnvelope, error) {
	p, err := s.path(key)
	if err != nil {
		return fileEnvelope{}, err
	}
	raw, err := os.ReadFile(p) //nolint:gosec // path is built from a validated key
	if errors.Is(err, fs.ErrNotExist) {
		return fileEnvelope{}, oops.In("store").Code("DOCUMENT_NOT_FOUND").With("key", key).Wrap(ErrNotFound)
	}
	if err != nil {
		return fileEnvelope{}, oops.In("store").Code("STORE_READ_FAILED").With("key", key).Wrap(err)
	}
	var env fileEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fileEnvelope{}, oops.In("store").Code("CORRUPT_DOCUMENT").With("path", p).Wrap(err)
	}
	return env, nil
}

// Load implements BlobStore.
func (s *FileStore) Load(_ context.Context, key string) (Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	env, err := s.read(key)
	if err != nil {
		return Document{}, err
	}
	return Document{Key: key, Data: []byte(env.Data), Version: env.Version, UpdatedAt: env.UpdatedAt}, nil
}

// Save implements BlobStore. Data must be valid JSON.
func (s *FileStore) Save(_ context.Context, key string, data []byte, expectedVersion int64) (int64, error) {
	if !json.Valid(data) {
		return 0, oops.In("store").Code("INVALID_DOCUMENT").With("key", key).Errorf("document is not valid JSON")
	}
	p, err := s.path(key)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var current int64
	env, err := s.read(key)
	switch {
	case err == nil:
		current = env.Version
	case errors.Is(err, ErrNotFound):
	default:
		return 0, err
	}
	if !checkVersion(current, expectedVersion) {
		return 0, oops.In("store").
			Code("VERSION_CONFLICT").
			With("key", key).
			With("expected", expectedVersion).
			With("actual", current).
			Wrap(ErrVersionConflict)
	}

	next := fileEnvelope{Version: current + 1, UpdatedAt: time.Now().UTC(), Data: data}
	raw, err := json.MarshalIndent(next, "", "  ")
	if err != nil {
		return 0, oops.In("store").Code("STORE_WRITE_FAILED").With("key", key).Wrap(err)
	}
	if err := atomic.WriteFile(p, bytes.NewReader(raw)); err != nil {
		return 0, oops.In("store").Code("STORE_WRITE_FAILED").With("key", key).Wrap(err)
	}
	return next.Version, nil
}

// Delete implements BlobStore.
func (s *FileStore) Delete(_ context.Context, key string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return oops.In("store").Code("STORE_WRITE_FAILED").With("key", key).Wrap(err)
	}
	return nil
}

// Close implements BlobStore.
func (s *FileStore) Close() error { return nil }
