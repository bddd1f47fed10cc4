// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package store persists the whole-document blobs that hold quest state.
//
// Every document carries a monotonic version. Writers pass the version they
// last loaded and a write against a newer version fails with
// ErrVersionConflict, so concurrent clients cannot silently overwrite each
// other.
package store

import (
	"context"
	"errors"
	"time"
)

// Document keys.
const (
	KeyQuestTree   = "questTree"
	KeyPermissions = "permissions"
)

// AnyVersion skips the version check on Save.
const AnyVersion int64 = -1

// Sentinel errors.
var (
	// ErrNotFound is returned by Load for a key that was never saved.
	ErrNotFound = errors.New("document not found")
	// ErrVersionConflict is returned by Save when the stored version differs
	// from the expected one.
	ErrVersionConflict = errors.New("document version conflict")
)

// Document is one stored blob.
type Document struct {
	Key       string
	Data      []byte
	Version   int64
	UpdatedAt time.Time
}

// BlobStore loads and saves whole documents by key.
type BlobStore interface {
	// Load returns the current document or ErrNotFound.
	Load(ctx context.Context, key string) (Document, error)
	// Save writes data if the stored version equals expectedVersion (0 for a
	// key that does not exist yet, AnyVersion to skip the check) and returns
	// the new version.
	Save(ctx context.Context, key string, data []byte, expectedVersion int64) (int64, error)
	// Delete removes a document. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// Close releases resources.
	Close() error
}

// checkVersion applies the optimistic concurrency rule shared by all backends.
func checkVersion(current, expected int64) bool {
	return expected == AnyVersion || current == expected
}
