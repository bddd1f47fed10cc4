// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package store

import (
	"errors"
	"testing"

	"github.com/golang-migrate/migrate/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/questkeeper/pkg/errutil"
)

type fakeMigrate struct {
	upErr, downErr, stepsErr, forceErr error
	version                            uint
	dirty                              bool
	versionErr                         error
	closeSrcErr, closeDBErr            error
	steps                              []int
}

func (f *fakeMigrate) Up() error   { return f.upErr }
func (f *fakeMigrate) Down() error { return f.downErr }
func (f *fakeMigrate) Steps(n int) error {
	f.steps = append(f.steps, n)
	return f.stepsErr
}
func (f *fakeMigrate) Version() (uint, bool, error) { return f.version, f.dirty, f.versionErr }
func (f *fakeMigrate) Force(int) error              { return f.forceErr }
func (f *fakeMigrate) Close() (error, error)        { return f.closeSrcErr, f.closeDBErr }

func TestNewMigrator_BadURL(t *testing.T) {
	tests := []struct {
		name string
		url  string
	}{
		{"unknown scheme", "badscheme://localhost:5432/db"},
		{"postgresql scheme is rewritten", "postgresql://127.0.0.1:1/db?connect_timeout=1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewMigrator(tt.url)
			require.Error(t, err)
			errutil.AssertErrorCode(t, err, "MIGRATION_INIT_FAILED")
			assert.NotContains(t, err.Error(), "unknown driver postgresql")
		})
	}
}

func TestMigrator_NoChangeIsSuccess(t *testing.T) {
	m := &Migrator{m: &fakeMigrate{upErr: migrate.ErrNoChange, downErr: migrate.ErrNoChange, stepsErr: migrate.ErrNoChange}}
	require.NoError(t, m.Up())
	require.NoError(t, m.Down())
	require.NoError(t, m.Steps(1))
}

func TestMigrator_ErrorCodes(t *testing.T) {
	boom := errors.New("boom")
	m := &Migrator{m: &fakeMigrate{upErr: boom, downErr: boom, stepsErr: boom, forceErr: boom}}

	tests := []struct {
		name    string
		call    func() error
		code    string
		wrapped bool
	}{
		{"up", m.Up, "MIGRATION_UP_FAILED", true},
		{"down", m.Down, "MIGRATION_DOWN_FAILED", true},
		{"steps", func() error { return m.Steps(-1) }, "MIGRATION_STEPS_FAILED", true},
		{"force", func() error { return m.Force(1) }, "MIGRATION_FORCE_FAILED", true},
		{"negative force", func() error { return m.Force(-1) }, "INVALID_VERSION", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			require.Error(t, err)
			assert.Equal(t, tt.wrapped, errors.Is(err, boom))
			errutil.AssertErrorCode(t, err, tt.code)
		})
	}
}

func TestMigrator_Version(t *testing.T) {
	m := &Migrator{m: &fakeMigrate{version: 2, dirty: true}}
	v, dirty, err := m.Version()
	require.NoError(t, err)
	assert.Equal(t, uint(2), v)
	assert.True(t, dirty)

	m = &Migrator{m: &fakeMigrate{versionErr: migrate.ErrNilVersion}}
	v, dirty, err = m.Version()
	require.NoError(t, err)
	assert.Zero(t, v)
	assert.False(t, dirty)

	m = &Migrator{m: &fakeMigrate{versionErr: errors.New("lost")}}
	_, _, err = m.Version()
	errutil.AssertErrorCode(t, err, "MIGRATION_VERSION_FAILED")
}

func TestMigrator_Close(t *testing.T) {
	src, db := errors.New("source close failed"), errors.New("db close failed")

	require.NoError(t, (&Migrator{m: &fakeMigrate{}}).Close())

	err := (&Migrator{m: &fakeMigrate{closeSrcErr: src}}).Close()
	errutil.AssertErrorContext(t, err, "component", "source")

	err = (&Migrator{m: &fakeMigrate{closeDBErr: db}}).Close()
	errutil.AssertErrorContext(t, err, "component", "database")

	err = (&Migrator{m: &fakeMigrate{closeSrcErr: src, closeDBErr: db}}).Close()
	errutil.AssertErrorContext(t, err, "component", "both")
	assert.Contains(t, err.Error(), "source close failed")
	assert.Contains(t, err.Error(), "db close failed")
}

func TestMigrator_PendingAndApplied(t *testing.T) {
	all, err := embeddedVersions()
	require.NoError(t, err)
	require.Equal(t, []uint{1, 2}, all)

	tests := []struct {
		name    string
		fake    *fakeMigrate
		pending []uint
		applied []uint
	}{
		{"fresh database", &fakeMigrate{versionErr: migrate.ErrNilVersion}, []uint{1, 2}, nil},
		{"partially migrated", &fakeMigrate{version: 1}, []uint{2}, []uint{1}},
		{"up to date", &fakeMigrate{version: 2}, nil, []uint{1, 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &Migrator{m: tt.fake}
			pending, err := m.Pending()
			require.NoError(t, err)
			assert.Equal(t, tt.pending, pending)

			applied, err := m.Applied()
			require.NoError(t, err)
			assert.Equal(t, tt.applied, applied)
		})
	}

	m := &Migrator{m: &fakeMigrate{versionErr: errors.New("connection lost")}}
	_, err = m.Pending()
	errutil.AssertErrorContext(t, err, "operation", "list pending migrations")
	_, err = m.Applied()
	errutil.AssertErrorContext(t, err, "operation", "list applied migrations")
}

func TestMigrationName(t *testing.T) {
	name, err := MigrationName(1)
	require.NoError(t, err)
	assert.Equal(t, "000001_documents", name)

	name, err = MigrationName(99)
	require.NoError(t, err)
	assert.Empty(t, name)
}
