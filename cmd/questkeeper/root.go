// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"github.com/spf13/cobra"

	"github.com/holomush/questkeeper/internal/config"
)

// cli carries the dependencies shared by every subcommand.
type cli struct {
	deps *Deps
}

// runFunc is a command body that works on an opened app.
type runFunc func(cmd *cobra.Command, a *app, args []string) error

// run opens the app around fn and closes it afterwards, flushing unsaved
// changes.
func (c *cli) run(fn runFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) (err error) {
		a, err := openApp(cmd, c.deps)
		if err != nil {
			return err
		}
		defer func() {
			if closeErr := a.Close(cmd.Context()); err == nil {
				err = closeErr
			}
		}()
		return fn(cmd, a, args)
	}
}

// NewRootCmd creates the root command for the questkeeper CLI.
func NewRootCmd() *cobra.Command {
	return newRootCmd(nil)
}

func newRootCmd(deps *Deps) *cobra.Command {
	c := &cli{deps: deps.withDefaults()}

	cmd := &cobra.Command{
		Use:   "questkeeper",
		Short: "questkeeper - shared quest tracking for tabletop games",
		Long: `questkeeper keeps a tree of quests shared by a game master and players,
with per-user permissions, reward distribution and live synchronization
between clients.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	config.RegisterFlags(cmd.PersistentFlags())

	cmd.AddCommand(c.questCmd())
	cmd.AddCommand(c.rewardCmd())
	cmd.AddCommand(c.permCmd())
	cmd.AddCommand(c.exportCmd())
	cmd.AddCommand(c.importCmd())
	cmd.AddCommand(c.resetCmd())
	cmd.AddCommand(c.checkCmd())
	cmd.AddCommand(c.schemaCmd())
	cmd.AddCommand(c.migrateCmd())
	cmd.AddCommand(c.serveCmd())

	return cmd
}
