// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package manager

import (
	"errors"
	"fmt"
	"strings"

	"github.com/samber/oops"

	"github.com/holomush/questkeeper/internal/access"
	"github.com/holomush/questkeeper/internal/quest"
	"github.com/holomush/questkeeper/internal/store"
	"github.com/holomush/questkeeper/pkg/errutil"
)

// Error kinds. Every error returned by an operation matches one of these
// with errors.Is.
var (
	ErrPermissionDenied   = errors.New("permission denied")
	ErrValidation         = errors.New("validation failed")
	ErrNotFound           = quest.ErrNotFound
	ErrCircularDependency = quest.ErrCircularDependency
	ErrExternal           = errors.New("external failure")
	ErrStaleWrite         = store.ErrVersionConflict
	// ErrRewardsUnavailable means the quest has no completing actor or its
	// rewards were already handed out.
	ErrRewardsUnavailable = errors.New("rewards unavailable")

	errNoInventory = errors.New("no inventory configured")
)

// Error codes.
const (
	CodePermissionDenied   = "PERMISSION_DENIED"
	CodeValidation         = "VALIDATION_FAILED"
	CodeNotFound           = quest.CodeNotFound
	CodeCircularDependency = quest.CodeCircularDependency
	CodeExternal           = "EXTERNAL_FAILURE"
	CodeStaleWrite         = "VERSION_CONFLICT"
	CodeRewardsUnavailable = "REWARDS_UNAVAILABLE"
)

func errDenied(userID string, c access.Capability) error {
	return oops.In("manager").
		Code(CodePermissionDenied).
		With("user", userID).
		With("capability", c).
		Public("You do not have permission to do that").
		Wrap(ErrPermissionDenied)
}

func errNotFound(id string) error {
	return oops.In("manager").
		Code(CodeNotFound).
		With("quest_id", id).
		Public("Quest not found").
		Wrap(ErrNotFound)
}

func errCircular(id, parentID string) error {
	return oops.In("manager").
		Code(CodeCircularDependency).
		With("quest_id", id).
		With("parent_id", parentID).
		Public("Circular dependency detected").
		Wrap(ErrCircularDependency)
}

func errInvalid(verrs quest.ValidationErrors) error {
	return oops.In("manager").
		Code(CodeValidation).
		With("violations", verrs.Messages()).
		Public("Validation error: " + strings.Join(verrs.Messages(), ", ")).
		Wrap(fmt.Errorf("%w: %w", ErrValidation, verrs))
}

func errInvalidf(format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	return oops.In("manager").
		Code(CodeValidation).
		Public("Validation error: " + msg).
		Wrap(fmt.Errorf("%w: %s", ErrValidation, msg))
}

func errRewards(id, reason string) error {
	return oops.In("manager").
		Code(CodeRewardsUnavailable).
		With("quest_id", id).
		Public(reason).
		Wrap(ErrRewardsUnavailable)
}

// classify maps graph and policy errors onto the operation error kinds.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, quest.ErrNotFound):
		return oops.In("manager").Public("Quest not found").Wrap(err)
	case errors.Is(err, quest.ErrCircularDependency):
		return oops.In("manager").Public("Circular dependency detected").Wrap(err)
	case errors.Is(err, quest.ErrTooManyChildren),
		errors.Is(err, quest.ErrTooManyRelations),
		errors.Is(err, quest.ErrSelfReference),
		errors.Is(err, quest.ErrDuplicateID),
		errors.Is(err, quest.ErrHasChildren),
		errors.Is(err, access.ErrUnknownPreset),
		errors.Is(err, access.ErrUnknownCapability):
		return oops.In("manager").
			Public("Validation error: " + publicReason(err)).
			Wrap(fmt.Errorf("%w: %w", ErrValidation, err))
	case errutil.Code(err) == "INVALID_TARGET":
		return oops.In("manager").
			Public("Validation error: invalid permission target").
			Wrap(fmt.Errorf("%w: %w", ErrValidation, err))
	default:
		return err
	}
}

func publicReason(err error) string {
	switch {
	case errors.Is(err, quest.ErrTooManyChildren):
		return "too many sub-quests"
	case errors.Is(err, quest.ErrTooManyRelations):
		return "a linked quest already has too many relations"
	case errors.Is(err, quest.ErrSelfReference):
		return "a quest cannot reference itself"
	case errors.Is(err, quest.ErrDuplicateID):
		return "a quest with this id already exists"
	case errors.Is(err, quest.ErrHasChildren):
		return "the quest still has sub-quests"
	case errors.Is(err, access.ErrUnknownPreset):
		return "unknown permission preset"
	default:
		return "unknown capability"
	}
}

// classifyExternal marks a collaborator failure.
func classifyExternal(err error, public string) error {
	return oops.In("manager").
		Code(CodeExternal).
		Public(public).
		Wrap(errors.Join(ErrExternal, err))
}
