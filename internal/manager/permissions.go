// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package manager

import (
	"context"
	"fmt"

	"github.com/holomush/questkeeper/internal/access"
	"github.com/holomush/questkeeper/internal/notify"
	"github.com/holomush/questkeeper/internal/syncer"
)

// requireGM restricts an operation to game masters. Callers hold m.mu.
func (m *Manager) requireGM(userID string) error {
	if m.dir.IsGM(userID) {
		return nil
	}
	return errDenied(userID, "gm")
}

// EffectivePermissions resolves every capability for target. Users may
// inspect themselves; inspecting others requires the GM role.
func (m *Manager) EffectivePermissions(ctx context.Context, target, userID string) (_ access.Set, err error) {
	_, done := m.begin(ctx, "perm_show", userID)
	defer done(&err)

	m.mu.Lock()
	defer m.mu.Unlock()
	if target != userID {
		if err := m.requireGM(userID); err != nil {
			return nil, err
		}
	}
	return m.policy.Effective(m.dir, target), nil
}

// Policy returns the stored policy. GM only.
func (m *Manager) Policy(ctx context.Context, userID string) (_ access.PolicyRecord, err error) {
	_, done := m.begin(ctx, "perm_policy", userID)
	defer done(&err)

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.requireGM(userID); err != nil {
		return access.PolicyRecord{}, err
	}
	return m.policy.ToRecord(), nil
}

// SetUserPermission grants or denies one capability to target.
func (m *Manager) SetUserPermission(ctx context.Context, target string, c access.Capability, allowed bool, userID string) (err error) {
	ctx, done := m.begin(ctx, "perm_set", userID)
	defer done(&err)

	return m.changePolicy(ctx, userID, target, func(p *access.Policy) error {
		if _, err := access.ParseCapability(string(c)); err != nil {
			return err
		}
		return p.SetUserPermission(target, c, allowed)
	})
}

// SetAllUserPermissions replaces every override of target with set.
func (m *Manager) SetAllUserPermissions(ctx context.Context, target string, set access.Set, userID string) (err error) {
	ctx, done := m.begin(ctx, "perm_set_all", userID)
	defer done(&err)

	return m.changePolicy(ctx, userID, target, func(p *access.Policy) error {
		for c := range set {
			if _, err := access.ParseCapability(string(c)); err != nil {
				return err
			}
		}
		return p.SetAllUserPermissions(target, set)
	})
}

// ResetUserPermissions drops every override of target so the defaults
// apply again.
func (m *Manager) ResetUserPermissions(ctx context.Context, target, userID string) (err error) {
	ctx, done := m.begin(ctx, "perm_reset", userID)
	defer done(&err)

	return m.changePolicy(ctx, userID, target, func(p *access.Policy) error {
		p.ResetUser(target)
		return nil
	})
}

// ApplyPreset copies a named preset onto target, which is a user id or
// access.TargetDefault.
func (m *Manager) ApplyPreset(ctx context.Context, target, preset, userID string) (err error) {
	ctx, done := m.begin(ctx, "perm_preset", userID)
	defer done(&err)

	return m.changePolicy(ctx, userID, target, func(p *access.Policy) error {
		return p.ApplyPreset(target, preset)
	})
}

// SetDefaultPermission changes the default for one capability.
func (m *Manager) SetDefaultPermission(ctx context.Context, c access.Capability, allowed bool, userID string) (err error) {
	ctx, done := m.begin(ctx, "perm_default", userID)
	defer done(&err)

	return m.changePolicy(ctx, userID, access.TargetDefault, func(p *access.Policy) error {
		if _, err := access.ParseCapability(string(c)); err != nil {
			return err
		}
		p.SetDefault(c, allowed)
		return nil
	})
}

// changePolicy runs mutate on a staged policy and commits it. Per-user
// changes name their target; every client still reloads the document.
func (m *Manager) changePolicy(ctx context.Context, userID, target string, mutate func(*access.Policy) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.requireGM(userID); err != nil {
		return err
	}
	staged := m.policy.Clone()
	if err := mutate(staged); err != nil {
		return classify(err)
	}
	if err := m.commitPolicy(ctx, staged); err != nil {
		return err
	}

	payload := syncer.PermissionsPayload{TargetUserID: target}
	who := target
	if target == access.TargetDefault {
		payload.TargetUserID = ""
		who = "everyone"
	}
	m.publish(ctx, syncer.KindPermissionsUpdated, payload)
	m.inform(ctx, notify.KindPermissions, "", fmt.Sprintf("Permissions updated for %s", who))
	return nil
}
