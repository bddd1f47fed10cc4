// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package store

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/samber/oops"
)

// MemoryStore is an in-process BlobStore. Multiple managers sharing one
// MemoryStore behave like clients sharing a world database.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string]Document
	now  func() time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs: make(map[string]Document),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// Load implements BlobStore.
func (s *MemoryStore) Load(_ context.Context, key string) (Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[key]
	if !ok {
		return Document{}, oops.In("store").Code("DOCUMENT_NOT_FOUND").With("key", key).Wrap(ErrNotFound)
	}
	doc.Data = slices.Clone(doc.Data)
	return doc, nil
}

// Save implements BlobStore.
func (s *MemoryStore) Save(_ context.Context, key string, data []byte, expectedVersion int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current := s.docs[key].Version
	if !checkVersion(current, expectedVersion) {
		return 0, oops.In("store").
			Code("VERSION_CONFLICT").
			With("key", key).
			With("expected", expectedVersion).
			With("actual", current).
			Wrap(ErrVersionConflict)
	}
	doc := Document{Key: key, Data: slices.Clone(data), Version: current + 1, UpdatedAt: s.now()}
	s.docs[key] = doc
	return doc.Version, nil
}

// Delete implements BlobStore.
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.docs, key)
	s.mu.Unlock()
	return nil
}

// Close implements BlobStore.
func (s *MemoryStore) Close() error { return nil }
