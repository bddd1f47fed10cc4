// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package access

import (
	"log/slog"
	"slices"
	"sync"

	"github.com/gobwas/glob"
	"github.com/samber/oops"
)

// StaticDirectory implements Directory from a fixed set of game-master
// patterns plus explicit grants made at runtime.
//
// Patterns are globs using ':' as separator, so "gm:*" matches "gm:alice"
// but "*" alone never spans a separator.
//
// Thread-safety: patterns are immutable after construction. The explicit
// GM set and the current user are protected by mu.
type StaticDirectory struct {
	patterns []compiledPattern
	gms      map[string]bool
	current  string
	mu       sync.RWMutex
}

type compiledPattern struct {
	pattern string
	glob    glob.Glob
}

// NewStaticDirectory compiles the GM patterns.
// Returns error if any pattern fails to compile.
func NewStaticDirectory(currentUser string, gmPatterns ...string) (*StaticDirectory, error) {
	compiled := make([]compiledPattern, 0, len(gmPatterns))
	for _, p := range gmPatterns {
		g, err := glob.Compile(p, ':')
		if err != nil {
			return nil, oops.In("access").
				Code("INVALID_GM_PATTERN").
				With("pattern", p).
				Wrap(err)
		}
		compiled = append(compiled, compiledPattern{pattern: p, glob: g})
	}
	return &StaticDirectory{
		patterns: compiled,
		gms:      make(map[string]bool),
		current:  currentUser,
	}, nil
}

// IsGM implements Directory.
func (d *StaticDirectory) IsGM(userID string) bool {
	if userID == "" {
		return false
	}
	d.mu.RLock()
	explicit := d.gms[userID]
	d.mu.RUnlock()
	if explicit {
		return true
	}
	for _, p := range d.patterns {
		if p.glob.Match(userID) {
			slog.Debug("gm pattern matched", "user", userID, "pattern", p.pattern)
			return true
		}
	}
	return false
}

// CurrentUser implements Directory.
func (d *StaticDirectory) CurrentUser() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.current
}

// SetCurrentUser switches the local identity.
func (d *StaticDirectory) SetCurrentUser(userID string) {
	d.mu.Lock()
	d.current = userID
	d.mu.Unlock()
}

// GrantGM marks userID as a game master.
func (d *StaticDirectory) GrantGM(userID string) error {
	if userID == "" {
		return oops.In("access").Code("INVALID_SUBJECT").New("user id cannot be empty")
	}
	d.mu.Lock()
	d.gms[userID] = true
	d.mu.Unlock()
	return nil
}

// RevokeGM removes an explicit grant. Pattern matches are unaffected.
func (d *StaticDirectory) RevokeGM(userID string) {
	d.mu.Lock()
	delete(d.gms, userID)
	d.mu.Unlock()
}

// Patterns returns the configured GM patterns.
func (d *StaticDirectory) Patterns() []string {
	out := make([]string, 0, len(d.patterns))
	for _, p := range d.patterns {
		out = append(out, p.pattern)
	}
	return slices.Clip(out)
}
