// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package accesstest provides test helpers for access control.
package accesstest

import (
	"sync"

	"github.com/holomush/questkeeper/internal/access"
)

// Directory is a Directory backed by a plain GM set.
type Directory struct {
	mu      sync.RWMutex
	current string
	gms     map[string]bool
}

// NewDirectory creates a Directory for currentUser with the given GMs.
func NewDirectory(currentUser string, gms ...string) *Directory {
	d := &Directory{current: currentUser, gms: make(map[string]bool, len(gms))}
	for _, id := range gms {
		d.gms[id] = true
	}
	return d
}

// IsGM implements access.Directory.
func (d *Directory) IsGM(userID string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.gms[userID]
}

// CurrentUser implements access.Directory.
func (d *Directory) CurrentUser() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.current
}

// SetGM grants or revokes the GM role.
func (d *Directory) SetGM(userID string, gm bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if gm {
		d.gms[userID] = true
		return
	}
	delete(d.gms, userID)
}

// NoGM is a Directory in which nobody is a game master.
type NoGM struct {
	User string
}

// IsGM always returns false.
func (NoGM) IsGM(string) bool { return false }

// CurrentUser returns User.
func (n NoGM) CurrentUser() string { return n.User }

// Verify interfaces are satisfied.
var (
	_ access.Directory = (*Directory)(nil)
	_ access.Directory = NoGM{}
	_ access.Directory = (*access.StaticDirectory)(nil)
)
