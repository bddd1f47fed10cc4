// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package quest

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Validation limits for quest fields.
const (
	MaxTitleLength       = 200
	MaxDescriptionLength = 10000
	MaxNotesLength       = 5000
	DefaultMaxRelations  = 20
	DefaultMaxChildren   = 50
)

// Limits are the configurable graph limits.
type Limits struct {
	// MaxRelations caps children+blockedBy+blocks+related on one quest.
	// Validate checks the quest itself; Graph refuses links that would push
	// the other end of a mirrored link over the cap.
	MaxRelations int
	// MaxChildren caps the children of a single parent. Enforced by Graph on
	// attach, not by Validate.
	MaxChildren int
}

// DefaultLimits returns the stock limits.
func DefaultLimits() Limits {
	return Limits{MaxRelations: DefaultMaxRelations, MaxChildren: DefaultMaxChildren}
}

// withDefaults replaces non-positive limits with the stock values.
func (l Limits) withDefaults() Limits {
	if l.MaxRelations <= 0 {
		l.MaxRelations = DefaultMaxRelations
	}
	if l.MaxChildren <= 0 {
		l.MaxChildren = DefaultMaxChildren
	}
	return l
}

// ValidationError represents an input validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors collects every rule a quest violates.
type ValidationErrors []*ValidationError

func (errs ValidationErrors) Error() string {
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.Error()
	}
	return strings.Join(msgs, "; ")
}

// Messages returns the human-readable form of each violation.
func (errs ValidationErrors) Messages() []string {
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.Error()
	}
	return msgs
}

// Err returns nil when there are no violations.
func (errs ValidationErrors) Err() error {
	if len(errs) == 0 {
		return nil
	}
	return errs
}

// Validate checks the quest against the field rules and the relation limit.
// It never fails fast: every violated rule is reported.
func (q *Quest) Validate(limits Limits) ValidationErrors {
	limits = limits.withDefaults()
	var errs ValidationErrors
	add := func(field, msg string) {
		errs = append(errs, &ValidationError{Field: field, Message: msg})
	}

	if q.ID == "" {
		add("id", "is required")
	}
	if strings.TrimSpace(q.Title) == "" {
		add("title", "is required")
	}
	if q.Status == "" {
		add("status", "is required")
	}
	if q.CreatedAt.IsZero() {
		add("createdAt", "is required")
	}
	if q.CreatedBy == "" {
		add("createdBy", "is required")
	}

	if n := utf8.RuneCountInString(q.Title); n > MaxTitleLength {
		add("title", fmt.Sprintf("exceeds maximum length of %d (got %d)", MaxTitleLength, n))
	}
	if n := utf8.RuneCountInString(q.Description); n > MaxDescriptionLength {
		add("description", fmt.Sprintf("exceeds maximum length of %d (got %d)", MaxDescriptionLength, n))
	}
	if n := utf8.RuneCountInString(q.Notes); n > MaxNotesLength {
		add("notes", fmt.Sprintf("exceeds maximum length of %d (got %d)", MaxNotesLength, n))
	}

	if q.Status != "" && !q.Status.Valid() {
		add("status", fmt.Sprintf("unrecognized value %q", q.Status))
	}

	if n := q.RelationCount(); n > limits.MaxRelations {
		add("relations", fmt.Sprintf("exceeds maximum of %d (got %d)", limits.MaxRelations, n))
	}

	for _, ref := range [][]string{q.BlockedByIDs, q.BlocksIDs, q.RelatedIDs} {
		for _, id := range ref {
			if id == q.ID && id != "" {
				add("relations", "a quest cannot reference itself")
				break
			}
		}
	}

	for i, item := range q.RewardItems {
		if item.Quantity < 1 {
			add("rewardItems", fmt.Sprintf("item %d quantity must be at least 1", i))
		}
	}

	return errs
}
