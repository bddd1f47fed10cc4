// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"bytes"
	"encoding/json"
	"os"

	"github.com/natefinch/atomic"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/questkeeper/internal/manager"
)

// writeOutput writes data to path atomically, or to stdout when path is
// empty or "-".
func writeOutput(cmd *cobra.Command, path string, data []byte) error {
	if path == "" || path == "-" {
		if _, err := cmd.OutOrStdout().Write(data); err != nil {
			return oops.In("cli").Wrap(err)
		}
		return nil
	}
	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return oops.In("cli").With("path", path).Public("Failed to write " + path).Wrap(err)
	}
	return nil
}

func (c *cli) exportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export [FILE]",
		Short: "Write a backup of all quests and permissions (GM only)",
		Args:  cobra.MaximumNArgs(1),
		RunE: c.run(func(cmd *cobra.Command, a *app, args []string) error {
			file, err := a.manager.ExportData(cmd.Context(), a.user())
			if err != nil {
				return err
			}
			data, err := json.MarshalIndent(file, "", "  ")
			if err != nil {
				return oops.In("cli").Wrap(err)
			}
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			return writeOutput(cmd, path, append(data, '\n'))
		}),
	}
}

func (c *cli) importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import FILE",
		Short: "Replace all data with a backup (GM only)",
		Args:  cobra.ExactArgs(1),
		RunE: c.run(func(cmd *cobra.Command, a *app, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return oops.In("cli").With("path", args[0]).Public("Cannot read " + args[0]).Wrap(err)
			}
			ok, err := a.manager.ImportData(cmd.Context(), data, a.user())
			if err != nil || ok {
				return err
			}
			p := &printer{w: cmd.OutOrStdout()}
			p.printf("Cancelled\n")
			return p.err
		}),
	}
}

func (c *cli) resetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Delete every quest and permission override (GM only)",
		Args:  cobra.NoArgs,
		RunE: c.run(func(cmd *cobra.Command, a *app, _ []string) error {
			ok, err := a.manager.Reset(cmd.Context(), a.user())
			if err != nil || ok {
				return err
			}
			p := &printer{w: cmd.OutOrStdout()}
			p.printf("Cancelled\n")
			return p.err
		}),
	}
}

func (c *cli) checkCmd() *cobra.Command {
	var repair bool
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Report integrity problems in the quest tree",
		Args:  cobra.NoArgs,
		RunE: c.run(func(cmd *cobra.Command, a *app, _ []string) error {
			ctx := cmd.Context()
			p := &printer{w: cmd.OutOrStdout()}
			if repair {
				n, err := a.manager.Repair(ctx, a.user())
				if err != nil {
					return err
				}
				p.printf("%d change(s) made\n", n)
				return p.err
			}
			problems, err := a.manager.Verify(ctx, a.user())
			if err != nil {
				return err
			}
			if len(problems) == 0 {
				p.printf("No problems found\n")
				return p.err
			}
			for _, pr := range problems {
				p.printf("%s\n", pr)
			}
			if p.err != nil {
				return p.err
			}
			return oops.In("cli").Code("INTEGRITY").
				Public("Quest tree has integrity problems; run check --repair").
				Errorf("%d integrity problem(s)", len(problems))
		}),
	}
	cmd.Flags().BoolVar(&repair, "repair", false, "fix the problems (GM only)")
	return cmd
}

// schemaCmd needs no store, so it does not open the app.
func (c *cli) schemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema [FILE]",
		Short: "Print the JSON Schema of export files",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := manager.ExportSchema()
			if err != nil {
				return err
			}
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			return writeOutput(cmd, path, append(data, '\n'))
		},
	}
}
