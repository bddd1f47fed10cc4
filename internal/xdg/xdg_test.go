// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package xdg

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirs(t *testing.T) {
	tests := []struct {
		name   string
		envVar string
		envVal string
		fn     func() (string, error)
		want   string
	}{
		{"config from env", "XDG_CONFIG_HOME", "/custom/config", ConfigDir, "/custom/config/questkeeper"},
		{"config default", "XDG_CONFIG_HOME", "", ConfigDir, "/home/testuser/.config/questkeeper"},
		{"data from env", "XDG_DATA_HOME", "/custom/data", DataDir, "/custom/data/questkeeper"},
		{"data default", "XDG_DATA_HOME", "", DataDir, "/home/testuser/.local/share/questkeeper"},
		{"state from env", "XDG_STATE_HOME", "/custom/state", StateDir, "/custom/state/questkeeper"},
		{"state default", "XDG_STATE_HOME", "", StateDir, "/home/testuser/.local/state/questkeeper"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("HOME", "/home/testuser")
			t.Setenv(tt.envVar, tt.envVal)
			got, err := tt.fn()
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFiles(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/cfg")
	t.Setenv("XDG_DATA_HOME", "/data")

	cfg, err := ConfigFile()
	require.NoError(t, err)
	assert.Equal(t, "/cfg/questkeeper/config.yaml", cfg)

	catalog, err := CatalogFile()
	require.NoError(t, err)
	assert.Equal(t, "/data/questkeeper/catalog.yaml", catalog)
}

func TestEnsureDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir")

	require.NoError(t, EnsureDir(path))
	require.NoError(t, EnsureDir(path), "second call is a no-op")

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, os.FileMode(0o700), info.Mode().Perm())
}

func TestEnsureDir_BlockedByFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, nil, 0o600))

	err := EnsureDir(filepath.Join(file, "sub"))
	require.Error(t, err)
}
