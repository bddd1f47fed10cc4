// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package xdg resolves the XDG Base Directory locations questkeeper uses
// for its config file, file-backed documents and item catalog.
package xdg

import (
	"os"
	"path/filepath"

	"github.com/samber/oops"
)

const appName = "questkeeper"

// File names inside the resolved directories.
const (
	ConfigFileName  = "config.yaml"
	CatalogFileName = "catalog.yaml"
)

// resolve returns $envVar/questkeeper, or home/fallback.../questkeeper when
// the variable is unset.
func resolve(envVar string, fallback ...string) (string, error) {
	if base := os.Getenv(envVar); base != "" {
		return filepath.Join(base, appName), nil
	}
	home := os.Getenv("HOME")
	if home == "" {
		var err error
		home, err = os.UserHomeDir()
		if err != nil {
			return "", oops.In("xdg").With("env", envVar).Wrapf(err, "resolve home directory")
		}
	}
	parts := append([]string{home}, fallback...)
	return filepath.Join(append(parts, appName)...), nil
}

// ConfigDir is $XDG_CONFIG_HOME/questkeeper or ~/.config/questkeeper.
func ConfigDir() (string, error) {
	return resolve("XDG_CONFIG_HOME", ".config")
}

// DataDir is $XDG_DATA_HOME/questkeeper or ~/.local/share/questkeeper.
func DataDir() (string, error) {
	return resolve("XDG_DATA_HOME", ".local", "share")
}

// StateDir is $XDG_STATE_HOME/questkeeper or ~/.local/state/questkeeper.
func StateDir() (string, error) {
	return resolve("XDG_STATE_HOME", ".local", "state")
}

// ConfigFile returns the default config file path.
func ConfigFile() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, ConfigFileName), nil
}

// CatalogFile returns the default item catalog path.
func CatalogFile() (string, error) {
	dir, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, CatalogFileName), nil
}

// EnsureDir creates path and its parents with 0700 permissions.
func EnsureDir(path string) error {
	if err := os.MkdirAll(path, 0o700); err != nil {
		return oops.In("xdg").With("path", path).Wrapf(err, "create directory")
	}
	return nil
}
