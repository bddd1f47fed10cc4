// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package quest

import (
	"errors"

	"github.com/samber/oops"
)

// Graph errors. Returned errors wrap these sentinels, so callers use errors.Is.
var (
	ErrNotFound           = errors.New("quest not found")
	ErrDuplicateID        = errors.New("quest already exists")
	ErrCircularDependency = errors.New("circular dependency")
	ErrTooManyChildren    = errors.New("too many children")
	ErrTooManyRelations   = errors.New("too many relations")
	ErrHasChildren        = errors.New("quest has children")
	ErrSelfReference      = errors.New("quest cannot reference itself")
)

// Error codes carried by graph errors.
const (
	CodeNotFound           = "QUEST_NOT_FOUND"
	CodeDuplicateID        = "QUEST_EXISTS"
	CodeCircularDependency = "CIRCULAR_DEPENDENCY"
	CodeTooManyChildren    = "TOO_MANY_CHILDREN"
	CodeTooManyRelations   = "TOO_MANY_RELATIONS"
	CodeHasChildren        = "HAS_CHILDREN"
	CodeSelfReference      = "SELF_REFERENCE"
)

func errNotFound(id string) error {
	return oops.In("quest").Code(CodeNotFound).With("quest_id", id).Wrap(ErrNotFound)
}

func errCircular(questID, parentID string) error {
	return oops.In("quest").
		Code(CodeCircularDependency).
		With("quest_id", questID).
		With("parent_id", parentID).
		Wrap(ErrCircularDependency)
}
