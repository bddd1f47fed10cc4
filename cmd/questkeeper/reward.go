// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/holomush/questkeeper/internal/quest"
)

func (c *cli) rewardCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reward",
		Short: "Manage quest reward items",
	}
	cmd.AddCommand(c.rewardAddCmd())
	cmd.AddCommand(c.rewardRemoveCmd())
	cmd.AddCommand(c.rewardDistributeCmd())
	return cmd
}

func (c *cli) rewardAddCmd() *cobra.Command {
	var item quest.RewardItem
	cmd := &cobra.Command{
		Use:   "add QUEST ITEM_REF",
		Short: "Add a reward item to a quest",
		Args:  cobra.ExactArgs(2),
		RunE: c.run(func(cmd *cobra.Command, a *app, args []string) error {
			item.ItemRef = args[1]
			if item.Name == "" {
				if known, err := a.catalog.ResolveItem(cmd.Context(), item.ItemRef); err == nil {
					item.Name = known.Name
					item.Image = known.Image
				}
			}
			_, err := a.manager.AddRewardItem(cmd.Context(), args[0], item, a.user())
			return err
		}),
	}
	cmd.Flags().StringVar(&item.Name, "name", "", "display name (default: from the item catalog)")
	cmd.Flags().IntVar(&item.Quantity, "quantity", 1, "copies to grant")
	cmd.Flags().StringVar(&item.Image, "image", "", "item image")
	return cmd
}

func (c *cli) rewardRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove QUEST INDEX",
		Short: "Remove the reward item at INDEX (as listed by quest show)",
		Args:  cobra.ExactArgs(2),
		RunE: c.run(func(cmd *cobra.Command, a *app, args []string) error {
			index, err := strconv.Atoi(args[1])
			if err != nil {
				return usageErrorf("index must be a number, got %q", args[1])
			}
			removed, err := a.manager.RemoveRewardItem(cmd.Context(), args[0], index, a.user())
			if err != nil {
				return err
			}
			if !removed {
				return usageErrorf("quest has no reward item %d", index)
			}
			return nil
		}),
	}
}

func (c *cli) rewardDistributeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "distribute QUEST",
		Short: "Give a completed quest's rewards to the actor who completed it",
		Args:  cobra.ExactArgs(1),
		RunE: c.run(func(cmd *cobra.Command, a *app, args []string) error {
			dist, err := a.manager.DistributeRewards(cmd.Context(), args[0], a.user())
			if err != nil {
				return err
			}
			p := &printer{w: cmd.OutOrStdout()}
			for _, g := range dist.Granted {
				p.printf("  %dx %s -> %s\n", g.Quantity, g.Name, dist.ActorRef)
			}
			return p.err
		}),
	}
}
