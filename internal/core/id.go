// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package core holds the small primitives shared by every QuestKeeper package.
package core

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

var (
	entropy     = ulid.Monotonic(rand.Reader, 0)
	entropyLock sync.Mutex
)

// NewID mints an identifier stamped with at. Ids minted in the same
// millisecond still sort in minting order. Quest ids, envelope ids and grant
// ids all come from here.
func NewID(at time.Time) string {
	entropyLock.Lock()
	defer entropyLock.Unlock()
	return ulid.MustNew(ulid.Timestamp(at), entropy).String()
}

// IDTime returns the time an id was minted at.
func IDTime(id string) (time.Time, error) {
	parsed, err := ulid.ParseStrict(id)
	if err != nil {
		return time.Time{}, oops.In("core").Code("INVALID_ID").With("id", id).Wrap(err)
	}
	return ulid.Time(parsed.Time()).UTC(), nil
}
