// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package errutil

import (
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// AssertErrorCode asserts that err carries the given oops code anywhere in
// its chain.
func AssertErrorCode(t testing.TB, err error, code string) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, code, Code(err), "unexpected code for %v", err)
}

// AssertErrorContext asserts that err is an oops error whose context holds
// key with the given value.
func AssertErrorContext(t testing.TB, err error, key string, value any) {
	t.Helper()
	oopsErr, ok := oops.AsOops(err)
	require.True(t, ok, "expected oops error, got %T", err)
	kv := oopsErr.Context()
	require.Contains(t, kv, key)
	assert.Equal(t, value, kv[key])
}

// AssertPublic asserts the message err shows to users.
func AssertPublic(t testing.TB, err error, want string) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, want, oops.GetPublic(err, ""))
}
