// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/questkeeper/internal/core"
	"github.com/holomush/questkeeper/internal/inventory"
	"github.com/holomush/questkeeper/internal/manager"
	"github.com/holomush/questkeeper/pkg/errutil"
)

const testCatalog = `items:
  - ref: Item.sword
    name: Sword
    type: weapon
  - ref: Item.potion
    name: Potion
actors:
  - ref: Actor.mira
    name: Mira
`

var createdRE = regexp.MustCompile(`Created quest (\S+)`)

// testEnv is an isolated questkeeper installation in a temp dir.
type testEnv struct {
	dataDir string
	catalog string
	clock   *core.ManualClock
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	root := t.TempDir()
	t.Setenv("HOME", root)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(root, "config"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(root, "data"))
	t.Setenv("XDG_STATE_HOME", filepath.Join(root, "state"))
	t.Setenv("DATABASE_URL", "")

	catalog := filepath.Join(root, "catalog.yaml")
	require.NoError(t, os.WriteFile(catalog, []byte(testCatalog), 0o600))

	return &testEnv{
		dataDir: filepath.Join(root, "quests"),
		catalog: catalog,
		clock:   core.NewManualClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)),
	}
}

// exec runs one CLI invocation as user, answering prompts from stdin.
func (e *testEnv) exec(t *testing.T, user, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd(&Deps{Clock: e.clock, Stdin: strings.NewReader(stdin)})
	out := new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs(append([]string{
		"--user", user,
		"--gm", "gm",
		"--data-dir", e.dataDir,
		"--catalog", e.catalog,
	}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

// mustExec runs a command that has to succeed.
func (e *testEnv) mustExec(t *testing.T, user string, args ...string) string {
	t.Helper()
	out, err := e.exec(t, user, "", args...)
	require.NoError(t, err, "questkeeper %s", strings.Join(args, " "))
	return out
}

func (e *testEnv) create(t *testing.T, user string, args ...string) string {
	t.Helper()
	out := e.mustExec(t, user, append([]string{"quest", "create"}, args...)...)
	m := createdRE.FindStringSubmatch(out)
	require.Len(t, m, 2, "unexpected create output %q", out)
	return m[1]
}

func TestRootCommand_HasExpectedSubcommands(t *testing.T) {
	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--help"})

	require.NoError(t, cmd.Execute())

	output := buf.String()
	for _, sub := range []string{"quest", "reward", "perm", "export", "import", "reset", "check", "schema", "migrate", "serve"} {
		assert.Contains(t, output, sub, "Help missing %q command", sub)
	}
}

func TestRootCommand_RequiresUser(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.exec(t, "", "", "quest", "list")

	require.Error(t, err)
	assert.Contains(t, oops.GetPublic(err, ""), "user")
}

func TestQuestCommands(t *testing.T) {
	env := newTestEnv(t)

	crown := env.create(t, "gm", "The lost crown", "--location", "Old keep", "--status", "active")
	side := env.create(t, "gm", "Find the map", "--parent", crown)

	out := env.mustExec(t, "gm", "quest", "tree")
	assert.Contains(t, out, "- The lost crown [active] "+crown)
	assert.Contains(t, out, "  - Find the map [known] "+side)

	out = env.mustExec(t, "gm", "quest", "show", side)
	assert.Contains(t, out, "The lost crown, Find the map")
	assert.Contains(t, out, "Parent:")

	t.Run("circular move is rejected", func(t *testing.T) {
		_, err := env.exec(t, "gm", "", "quest", "move", crown, "--parent", side)
		require.Error(t, err)
		assert.ErrorIs(t, err, manager.ErrCircularDependency)
	})

	t.Run("update changes only the given fields", func(t *testing.T) {
		out := env.mustExec(t, "gm", "quest", "update", crown, "--title", "The stolen crown")
		assert.Contains(t, out, "The stolen crown [active]")
		assert.Contains(t, out, "Old keep")

		_, err := env.exec(t, "gm", "", "quest", "update", crown)
		errutil.AssertPublic(t, err, "nothing to update")
	})

	t.Run("status and list", func(t *testing.T) {
		env.mustExec(t, "gm", "quest", "status", side, "active")
		out := env.mustExec(t, "gm", "quest", "list")
		assert.Contains(t, out, "active (2)")

		_, err := env.exec(t, "gm", "", "quest", "status", side, "lost")
		require.Error(t, err)
		assert.Contains(t, oops.GetPublic(err, ""), "unknown status")
	})

	t.Run("duplicate adds a sibling", func(t *testing.T) {
		copyID := env.create(t, "gm", "Sidequest")
		dup := createdRE.FindStringSubmatch(env.mustExec(t, "gm", "quest", "duplicate", copyID))
		require.Len(t, dup, 2)
		assert.NotEqual(t, copyID, dup[1])
	})

	t.Run("delete asks first", func(t *testing.T) {
		victim := env.create(t, "gm", "Doomed")

		out, err := env.exec(t, "gm", "n\n", "quest", "delete", victim)
		require.NoError(t, err)
		assert.Contains(t, out, "Cancelled")
		env.mustExec(t, "gm", "quest", "show", victim)

		env.mustExec(t, "gm", "--yes", "quest", "delete", victim)
		_, err = env.exec(t, "gm", "", "quest", "show", victim)
		assert.ErrorIs(t, err, manager.ErrNotFound)
	})
}

func TestPermCommands(t *testing.T) {
	env := newTestEnv(t)
	env.create(t, "gm", "Opening")

	_, err := env.exec(t, "bob", "", "quest", "create", "Player idea")
	require.Error(t, err)
	assert.ErrorIs(t, err, manager.ErrPermissionDenied)

	env.mustExec(t, "gm", "perm", "preset", "bob", "contributor")
	env.create(t, "bob", "Player idea")

	out := env.mustExec(t, "bob", "perm", "show")
	assert.Regexp(t, `add\s+yes`, out)
	assert.Regexp(t, `delete\s+no`, out)

	_, err = env.exec(t, "bob", "", "perm", "show", "--all")
	assert.ErrorIs(t, err, manager.ErrPermissionDenied)

	out = env.mustExec(t, "gm", "perm", "show", "--all")
	assert.Contains(t, out, "bob")

	env.mustExec(t, "gm", "perm", "set", "bob", "delete", "true")
	assert.Regexp(t, `delete\s+yes`, env.mustExec(t, "gm", "perm", "show", "bob"))

	env.mustExec(t, "gm", "perm", "reset", "bob")
	assert.Regexp(t, `add\s+no`, env.mustExec(t, "gm", "perm", "show", "bob"))

	env.mustExec(t, "gm", "perm", "default", "add", "true")
	assert.Regexp(t, `add\s+yes`, env.mustExec(t, "bob", "perm", "show"))

	_, err = env.exec(t, "gm", "", "perm", "set", "bob", "fly", "true")
	require.Error(t, err)
	assert.Contains(t, oops.GetPublic(err, ""), "unknown capability")
}

func TestRewardCommands(t *testing.T) {
	env := newTestEnv(t)
	id := env.create(t, "gm", "Slay the wyrm")

	env.mustExec(t, "gm", "reward", "add", id, "Item.sword")
	env.mustExec(t, "gm", "reward", "add", id, "Item.potion", "--quantity", "3")
	env.mustExec(t, "gm", "reward", "add", id, "Item.gone", "--name", "Ghost")
	out := env.mustExec(t, "gm", "quest", "show", id)
	assert.Contains(t, out, "1x Sword (Item.sword)")
	assert.Contains(t, out, "3x Potion (Item.potion)")

	env.mustExec(t, "gm", "reward", "remove", id, "2")
	_, err := env.exec(t, "gm", "", "reward", "remove", id, "9")
	require.Error(t, err)

	_, err = env.exec(t, "gm", "", "reward", "distribute", id)
	assert.ErrorIs(t, err, manager.ErrRewardsUnavailable)

	env.mustExec(t, "gm", "quest", "complete", id, "Actor.mira")
	out = env.mustExec(t, "gm", "reward", "distribute", id)
	assert.Contains(t, out, "1x Sword -> Actor.mira")
	assert.Contains(t, out, "3x Potion -> Actor.mira")

	catalog, err := inventory.Load(env.catalog, env.clock)
	require.NoError(t, err)
	mira, ok := catalog.Actor("Actor.mira")
	require.True(t, ok)
	assert.Len(t, mira.Items, 2)

	_, err = env.exec(t, "gm", "", "reward", "distribute", id)
	assert.ErrorIs(t, err, manager.ErrRewardsUnavailable)
}

func TestDataCommands(t *testing.T) {
	env := newTestEnv(t)
	first := env.create(t, "gm", "Chapter one")
	env.create(t, "gm", "Chapter two", "--parent", first)
	env.mustExec(t, "gm", "perm", "preset", "bob", "player")

	backup := filepath.Join(t.TempDir(), "backup.json")
	env.mustExec(t, "gm", "export", backup)

	var file manager.ExportFile
	data, err := os.ReadFile(backup)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &file))
	assert.Len(t, file.QuestTree.Quests, 2)
	assert.Contains(t, file.Permissions.UserPermissions, "bob")

	_, err = env.exec(t, "bob", "", "export")
	assert.ErrorIs(t, err, manager.ErrPermissionDenied)

	out, err := env.exec(t, "gm", "no\n", "reset")
	require.NoError(t, err)
	assert.Contains(t, out, "Cancelled")

	env.mustExec(t, "gm", "--yes", "reset")
	assert.Contains(t, env.mustExec(t, "gm", "quest", "tree"), "No quests")

	env.mustExec(t, "gm", "--yes", "import", backup)
	out = env.mustExec(t, "gm", "quest", "tree")
	assert.Contains(t, out, "Chapter one")
	assert.Contains(t, out, "  - Chapter two")

	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"questTree": 3}`), 0o600))
	_, err = env.exec(t, "gm", "", "--yes", "import", bad)
	assert.ErrorIs(t, err, manager.ErrValidation)

	assert.Contains(t, env.mustExec(t, "gm", "check"), "No problems found")
	assert.Contains(t, env.mustExec(t, "gm", "check", "--repair"), "0 change(s) made")
}

func TestSchemaCommand(t *testing.T) {
	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"schema"})

	require.NoError(t, cmd.Execute())

	var schema map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &schema))
	assert.Equal(t, manager.SchemaID, schema["$id"])
}
