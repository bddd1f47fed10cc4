// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/holomush/questkeeper/internal/access"
)

func parseCapability(s string) (access.Capability, error) {
	c, err := access.ParseCapability(s)
	if err != nil {
		names := make([]string, 0, len(access.Capabilities()))
		for _, c := range access.Capabilities() {
			names = append(names, string(c))
		}
		return "", usageErrorf("unknown capability %q (want one of %s)", s, strings.Join(names, ", "))
	}
	return c, nil
}

func parseAllowed(s string) (bool, error) {
	v, err := strconv.ParseBool(s)
	if err != nil {
		return false, usageErrorf("expected true or false, got %q", s)
	}
	return v, nil
}

func (c *cli) permCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "perm",
		Short: "Inspect and manage permissions",
	}
	cmd.AddCommand(c.permShowCmd())
	cmd.AddCommand(c.permSetCmd())
	cmd.AddCommand(c.permPresetCmd())
	cmd.AddCommand(c.permResetCmd())
	cmd.AddCommand(c.permDefaultCmd())
	return cmd
}

func (c *cli) permShowCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "show [USER]",
		Short: "Show effective permissions (yours by default)",
		Args:  cobra.MaximumNArgs(1),
		RunE: c.run(func(cmd *cobra.Command, a *app, args []string) error {
			p := &printer{w: cmd.OutOrStdout()}
			if all {
				rec, err := a.manager.Policy(cmd.Context(), a.user())
				if err != nil {
					return err
				}
				p.policy(rec)
				return p.err
			}
			target := a.user()
			if len(args) == 1 {
				target = args[0]
			}
			set, err := a.manager.EffectivePermissions(cmd.Context(), target, a.user())
			if err != nil {
				return err
			}
			p.printf("%s\n", target)
			p.permissions(set)
			return p.err
		}),
	}
	cmd.Flags().BoolVar(&all, "all", false, "show the defaults and every user override (GM only)")
	return cmd
}

func (c *cli) permSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set USER CAPABILITY true|false",
		Short: "Grant or deny one capability to a user",
		Args:  cobra.ExactArgs(3),
		RunE: c.run(func(cmd *cobra.Command, a *app, args []string) error {
			capability, err := parseCapability(args[1])
			if err != nil {
				return err
			}
			allowed, err := parseAllowed(args[2])
			if err != nil {
				return err
			}
			return a.manager.SetUserPermission(cmd.Context(), args[0], capability, allowed, a.user())
		}),
	}
}

func (c *cli) permPresetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "preset TARGET PRESET",
		Short: "Apply a preset to a user, or to everyone with TARGET=default",
		Long: "Apply a named preset. Presets, from least to most privileged: " +
			strings.Join(access.PresetNames(), ", ") + ".",
		Args: cobra.ExactArgs(2),
		RunE: c.run(func(cmd *cobra.Command, a *app, args []string) error {
			return a.manager.ApplyPreset(cmd.Context(), args[0], args[1], a.user())
		}),
	}
}

func (c *cli) permResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset USER",
		Short: "Drop a user's overrides so the defaults apply",
		Args:  cobra.ExactArgs(1),
		RunE: c.run(func(cmd *cobra.Command, a *app, args []string) error {
			return a.manager.ResetUserPermissions(cmd.Context(), args[0], a.user())
		}),
	}
}

func (c *cli) permDefaultCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "default CAPABILITY true|false",
		Short: "Change the default for one capability",
		Args:  cobra.ExactArgs(2),
		RunE: c.run(func(cmd *cobra.Command, a *app, args []string) error {
			capability, err := parseCapability(args[0])
			if err != nil {
				return err
			}
			allowed, err := parseAllowed(args[1])
			if err != nil {
				return err
			}
			return a.manager.SetDefaultPermission(cmd.Context(), capability, allowed, a.user())
		}),
	}
}
