// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package access

import (
	"bytes"
	"encoding/json"
	"maps"
	"slices"
	"strings"

	"github.com/samber/oops"
)

// TargetDefault addresses the default permissions instead of a single user.
const TargetDefault = "default"

// Policy holds the default grants and per-user overrides.
//
// Resolution order for a capability: game masters are always allowed, then
// an explicit user value, then the default, then deny.
type Policy struct {
	defaults Set
	users    map[string]Set
	// roles is carried for persistence only and never consulted.
	roles json.RawMessage
}

// NewPolicy returns a policy with the stock defaults and no overrides.
func NewPolicy() *Policy {
	return &Policy{
		defaults: DefaultPermissions(),
		users:    make(map[string]Set),
	}
}

// HasPermission reports whether userID may exercise c.
func (p *Policy) HasPermission(dir Directory, userID string, c Capability) bool {
	if dir != nil && dir.IsGM(userID) {
		return true
	}
	if set, ok := p.users[userID]; ok {
		if v, ok := set[c]; ok {
			return v
		}
	}
	if v, ok := p.defaults[c]; ok {
		return v
	}
	return false
}

// Effective returns every capability as resolved for userID.
func (p *Policy) Effective(dir Directory, userID string) Set {
	out := make(Set, len(Capabilities()))
	for _, c := range Capabilities() {
		out[c] = p.HasPermission(dir, userID, c)
	}
	return out
}

// Defaults returns a copy of the default grants.
func (p *Policy) Defaults() Set {
	return p.defaults.Clone()
}

// UserOverride returns the explicit overrides stored for userID, if any.
func (p *Policy) UserOverride(userID string) (Set, bool) {
	set, ok := p.users[userID]
	return set.Clone(), ok
}

// Users lists users with explicit overrides, sorted.
func (p *Policy) Users() []string {
	return slices.Sorted(maps.Keys(p.users))
}

// SetUserPermission stores one explicit grant or denial for userID.
func (p *Policy) SetUserPermission(userID string, c Capability, allowed bool) error {
	if err := validateTarget(userID); err != nil {
		return err
	}
	set, ok := p.users[userID]
	if !ok {
		set = make(Set)
		p.users[userID] = set
	}
	set[c] = allowed
	return nil
}

// SetAllUserPermissions replaces every override for userID with set.
func (p *Policy) SetAllUserPermissions(userID string, set Set) error {
	if err := validateTarget(userID); err != nil {
		return err
	}
	p.users[userID] = set.Clone()
	if p.users[userID] == nil {
		p.users[userID] = make(Set)
	}
	return nil
}

// ResetUser drops every override for userID. It reports whether any existed.
func (p *Policy) ResetUser(userID string) bool {
	_, ok := p.users[userID]
	delete(p.users, userID)
	return ok
}

// SetDefault changes the default for one capability.
func (p *Policy) SetDefault(c Capability, allowed bool) {
	p.defaults[c] = allowed
}

// ApplyPreset copies a preset onto the defaults or onto a user.
func (p *Policy) ApplyPreset(target, preset string) error {
	set, err := Preset(preset)
	if err != nil {
		return oops.In("access").With("preset", preset).Wrap(err)
	}
	if target == TargetDefault {
		p.defaults = set
		return nil
	}
	return p.SetAllUserPermissions(target, set)
}

// Clone returns a deep copy of p.
func (p *Policy) Clone() *Policy {
	users := make(map[string]Set, len(p.users))
	for id, set := range p.users {
		users[id] = set.Clone()
	}
	return &Policy{
		defaults: p.defaults.Clone(),
		users:    users,
		roles:    slices.Clone(p.roles),
	}
}

func validateTarget(userID string) error {
	if strings.TrimSpace(userID) == "" {
		return oops.In("access").Code("INVALID_TARGET").Errorf("user id is required")
	}
	if userID == TargetDefault {
		return oops.In("access").Code("INVALID_TARGET").Errorf("%q is reserved for default permissions", TargetDefault)
	}
	return nil
}

// PolicyRecord is the persisted form of a Policy.
type PolicyRecord struct {
	DefaultPermissions Set             `json:"defaultPermissions"`
	UserPermissions    map[string]Set  `json:"userPermissions"`
	RolePermissions    json.RawMessage `json:"rolePermissions,omitempty"`
}

// ToRecord snapshots the policy for persistence.
func (p *Policy) ToRecord() PolicyRecord {
	c := p.Clone()
	return PolicyRecord{
		DefaultPermissions: c.defaults,
		UserPermissions:    c.users,
		RolePermissions:    c.roles,
	}
}

// FromRecord rebuilds a policy. Missing defaults fall back to the stock
// defaults key by key; unknown capability names are dropped.
func FromRecord(r PolicyRecord) *Policy {
	p := NewPolicy()
	for c, v := range r.DefaultPermissions {
		if _, err := ParseCapability(string(c)); err == nil {
			p.defaults[c] = v
		}
	}
	for id, set := range r.UserPermissions {
		if id == "" || id == TargetDefault {
			continue
		}
		clean := make(Set, len(set))
		for c, v := range set {
			if _, err := ParseCapability(string(c)); err == nil {
				clean[c] = v
			}
		}
		p.users[id] = clean
	}
	if len(r.RolePermissions) > 0 && string(r.RolePermissions) != "null" {
		var buf bytes.Buffer
		if err := json.Compact(&buf, r.RolePermissions); err == nil {
			p.roles = buf.Bytes()
		}
	}
	return p
}
