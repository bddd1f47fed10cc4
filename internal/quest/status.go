// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package quest

import (
	"errors"
	"strings"
)

// Status is the lifecycle state of a quest.
type Status string

// Quest statuses.
const (
	StatusKnown     Status = "known"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
)

// ErrInvalidStatus is returned when a status string is not recognized.
var ErrInvalidStatus = errors.New("invalid quest status")

// legacyStatuses maps the status values written by earlier exports.
var legacyStatuses = map[string]Status{
	"connue":   StatusKnown,
	"en_cours": StatusActive,
	"terminee": StatusCompleted,
}

// Statuses lists every status in display order: active work first.
func Statuses() []Status {
	return []Status{StatusActive, StatusKnown, StatusCompleted}
}

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusKnown, StatusActive, StatusCompleted:
		return true
	default:
		return false
	}
}

// ParseStatus converts a string to a Status. Legacy export values are accepted.
func ParseStatus(s string) (Status, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	if st := Status(v); st.Valid() {
		return st, nil
	}
	if st, ok := legacyStatuses[v]; ok {
		return st, nil
	}
	return "", ErrInvalidStatus
}

// UnmarshalText normalizes legacy values. Unknown values are kept verbatim
// so that Validate can report them.
func (s *Status) UnmarshalText(text []byte) error {
	if st, err := ParseStatus(string(text)); err == nil {
		*s = st
		return nil
	}
	*s = Status(text)
	return nil
}
