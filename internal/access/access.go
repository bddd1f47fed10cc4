// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package access decides who may do what to the quest graph.
package access

import (
	"errors"
	"maps"
	"slices"
)

// Capability is one action gated by the permission policy.
type Capability string

// Capabilities.
const (
	CapView         Capability = "view"
	CapAdd          Capability = "add"
	CapEdit         Capability = "edit"
	CapChangeStatus Capability = "changeStatus"
	CapDelete       Capability = "delete"
)

// ErrUnknownCapability is returned when a capability name is not recognized.
var ErrUnknownCapability = errors.New("unknown capability")

// Capabilities lists every capability in display order.
func Capabilities() []Capability {
	return []Capability{CapView, CapAdd, CapEdit, CapChangeStatus, CapDelete}
}

// ParseCapability converts a string to a Capability.
func ParseCapability(s string) (Capability, error) {
	c := Capability(s)
	if !slices.Contains(Capabilities(), c) {
		return "", ErrUnknownCapability
	}
	return c, nil
}

// Set maps capabilities to grants. A missing key means "not specified",
// which is different from an explicit false.
type Set map[Capability]bool

// Clone returns a copy of s. A nil set stays nil.
func (s Set) Clone() Set {
	return maps.Clone(s)
}

// Full returns a Set with every capability explicitly granted or denied.
func (s Set) Full() Set {
	out := make(Set, len(Capabilities()))
	for _, c := range Capabilities() {
		out[c] = s[c]
	}
	return out
}

// Directory answers identity questions the policy cannot answer itself.
type Directory interface {
	// IsGM reports whether the user holds the game-master role.
	IsGM(userID string) bool
	// CurrentUser returns the id of the local user.
	CurrentUser() string
}
