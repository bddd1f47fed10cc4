// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"fmt"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/questkeeper/internal/quest"
)

// questFlags are the editable quest fields shared by create and update.
type questFlags struct {
	description string
	notes       string
	location    string
	status      string
	parent      string
	rewards     string
	npcs        []string
	blockedBy   []string
	blocks      []string
	related     []string
	sortOrder   int
}

func (f *questFlags) register(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringVar(&f.description, "description", "", "quest description")
	fl.StringVar(&f.notes, "notes", "", "game master notes")
	fl.StringVar(&f.location, "location", "", "where the quest takes place")
	fl.StringVar(&f.status, "status", "", "status: active, known or completed")
	fl.StringVar(&f.parent, "parent", "", "parent quest id")
	fl.StringVar(&f.rewards, "rewards", "", "free-text reward description")
	fl.StringSliceVar(&f.npcs, "npc", nil, "involved NPC (repeatable)")
	fl.StringSliceVar(&f.blockedBy, "blocked-by", nil, "id of a quest that must be completed first (repeatable)")
	fl.StringSliceVar(&f.blocks, "blocks", nil, "id of a quest this one blocks (repeatable)")
	fl.StringSliceVar(&f.related, "related", nil, "id of a related quest (repeatable)")
	fl.IntVar(&f.sortOrder, "sort-order", 0, "position among siblings (0 = last)")
}

// record builds the partial record for create.
func (f *questFlags) record(title string) (quest.Record, error) {
	rec := quest.Record{
		Title:        title,
		Description:  f.description,
		Notes:        f.notes,
		Location:     f.location,
		ParentID:     f.parent,
		Rewards:      f.rewards,
		NPCs:         f.npcs,
		BlockedByIDs: f.blockedBy,
		BlocksIDs:    f.blocks,
		RelatedIDs:   f.related,
		SortOrder:    f.sortOrder,
	}
	if f.status != "" {
		st, err := parseStatus(f.status)
		if err != nil {
			return quest.Record{}, err
		}
		rec.Status = st
	}
	return rec, nil
}

// patch builds an update from the flags the user actually set.
func (f *questFlags) patch(cmd *cobra.Command, title string) (quest.Patch, error) {
	changed := cmd.Flags().Changed
	var p quest.Patch
	if title != "" {
		p.Title = quest.Ptr(title)
	}
	if changed("description") {
		p.Description = quest.Ptr(f.description)
	}
	if changed("notes") {
		p.Notes = quest.Ptr(f.notes)
	}
	if changed("location") {
		p.Location = quest.Ptr(f.location)
	}
	if changed("status") {
		st, err := parseStatus(f.status)
		if err != nil {
			return quest.Patch{}, err
		}
		p.Status = &st
	}
	if changed("parent") {
		p.ParentID = quest.Ptr(f.parent)
	}
	if changed("rewards") {
		p.Rewards = quest.Ptr(f.rewards)
	}
	if changed("npc") {
		p.NPCs = quest.Ptr(f.npcs)
	}
	if changed("blocked-by") {
		p.BlockedByIDs = quest.Ptr(f.blockedBy)
	}
	if changed("blocks") {
		p.BlocksIDs = quest.Ptr(f.blocks)
	}
	if changed("related") {
		p.RelatedIDs = quest.Ptr(f.related)
	}
	if changed("sort-order") {
		p.SortOrder = quest.Ptr(f.sortOrder)
	}
	return p, nil
}

func parseStatus(s string) (quest.Status, error) {
	st, err := quest.ParseStatus(s)
	if err != nil {
		return "", usageErrorf("unknown status %q (want active, known or completed)", s)
	}
	return st, nil
}

func (c *cli) questCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quest",
		Short: "Create, edit and browse quests",
	}
	cmd.AddCommand(c.questCreateCmd())
	cmd.AddCommand(c.questShowCmd())
	cmd.AddCommand(c.questUpdateCmd())
	cmd.AddCommand(c.questStatusCmd())
	cmd.AddCommand(c.questCompleteCmd())
	cmd.AddCommand(c.questDeleteCmd())
	cmd.AddCommand(c.questListCmd())
	cmd.AddCommand(c.questTreeCmd())
	cmd.AddCommand(c.questMoveCmd())
	cmd.AddCommand(c.questReorderCmd())
	cmd.AddCommand(c.questDuplicateCmd())
	return cmd
}

func (c *cli) questCreateCmd() *cobra.Command {
	f := &questFlags{}
	cmd := &cobra.Command{
		Use:   "create TITLE",
		Short: "Create a quest",
		Args:  cobra.ExactArgs(1),
		RunE: c.run(func(cmd *cobra.Command, a *app, args []string) error {
			rec, err := f.record(args[0])
			if err != nil {
				return err
			}
			q, err := a.manager.CreateQuest(cmd.Context(), rec, a.user())
			if err != nil {
				return err
			}
			p := &printer{w: cmd.OutOrStdout()}
			p.printf("Created quest %s\n", q.ID)
			return p.err
		}),
	}
	f.register(cmd)
	return cmd
}

func (c *cli) questShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show one quest and where it sits in the tree",
		Args:  cobra.ExactArgs(1),
		RunE: c.run(func(cmd *cobra.Command, a *app, args []string) error {
			ctx := cmd.Context()
			q, err := a.manager.GetQuest(ctx, args[0], a.user())
			if err != nil {
				return err
			}
			path, err := a.manager.Path(ctx, q.ID, a.user())
			if err != nil {
				return err
			}
			p := &printer{w: cmd.OutOrStdout()}
			if len(path) > 1 {
				titles := make([]string, len(path))
				for i, step := range path {
					titles[i] = step.Title
				}
				p.list("Path", titles)
			}
			p.quest(q)
			return p.err
		}),
	}
}

func (c *cli) questUpdateCmd() *cobra.Command {
	f := &questFlags{}
	var title string
	cmd := &cobra.Command{
		Use:   "update ID",
		Short: "Change quest fields; only the flags given are changed",
		Args:  cobra.ExactArgs(1),
		RunE: c.run(func(cmd *cobra.Command, a *app, args []string) error {
			patch, err := f.patch(cmd, title)
			if err != nil {
				return err
			}
			if patch.IsEmpty() {
				return usageErrorf("nothing to update")
			}
			q, err := a.manager.UpdateQuest(cmd.Context(), args[0], patch, a.user())
			if err != nil {
				return err
			}
			p := &printer{w: cmd.OutOrStdout()}
			p.quest(q)
			return p.err
		}),
	}
	f.register(cmd)
	cmd.Flags().StringVar(&title, "title", "", "new title")
	return cmd
}

func (c *cli) questStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status ID STATUS",
		Short: "Change a quest's status",
		Args:  cobra.ExactArgs(2),
		RunE: c.run(func(cmd *cobra.Command, a *app, args []string) error {
			st, err := parseStatus(args[1])
			if err != nil {
				return err
			}
			_, err = a.manager.ChangeQuestStatus(cmd.Context(), args[0], st, a.user())
			return err
		}),
	}
}

func (c *cli) questCompleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "complete ID ACTOR",
		Short: "Mark a quest completed by an actor",
		Args:  cobra.ExactArgs(2),
		RunE: c.run(func(cmd *cobra.Command, a *app, args []string) error {
			_, err := a.manager.CompleteQuest(cmd.Context(), args[0], args[1], a.user())
			return err
		}),
	}
}

func (c *cli) questDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a quest after confirmation",
		Args:  cobra.ExactArgs(1),
		RunE: c.run(func(cmd *cobra.Command, a *app, args []string) error {
			ok, err := a.manager.DeleteQuest(cmd.Context(), args[0], a.user())
			if err != nil || ok {
				return err
			}
			p := &printer{w: cmd.OutOrStdout()}
			p.printf("Cancelled\n")
			return p.err
		}),
	}
}

func (c *cli) questListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List quests grouped by status",
		Args:  cobra.NoArgs,
		RunE: c.run(func(cmd *cobra.Command, a *app, _ []string) error {
			b, err := a.manager.GetAllQuestsByStatus(cmd.Context(), a.user())
			if err != nil {
				return err
			}
			p := &printer{w: cmd.OutOrStdout()}
			p.buckets(b)
			return p.err
		}),
	}
}

func (c *cli) questTreeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tree",
		Short: "Show the quest hierarchy",
		Args:  cobra.NoArgs,
		RunE: c.run(func(cmd *cobra.Command, a *app, _ []string) error {
			nodes, err := a.manager.Tree(cmd.Context(), a.user())
			if err != nil {
				return err
			}
			p := &printer{w: cmd.OutOrStdout()}
			if len(nodes) == 0 {
				p.printf("No quests\n")
			}
			p.tree(nodes, 0)
			return p.err
		}),
	}
}

func (c *cli) questMoveCmd() *cobra.Command {
	var parent string
	cmd := &cobra.Command{
		Use:   "move ID",
		Short: "Move a quest under a new parent, or to the top level",
		Args:  cobra.ExactArgs(1),
		RunE: c.run(func(cmd *cobra.Command, a *app, args []string) error {
			_, err := a.manager.MoveQuest(cmd.Context(), args[0], parent, a.user())
			return err
		}),
	}
	cmd.Flags().StringVar(&parent, "parent", "", "new parent id (empty = top level)")
	return cmd
}

func (c *cli) questReorderCmd() *cobra.Command {
	var after bool
	cmd := &cobra.Command{
		Use:   "reorder ID TARGET",
		Short: "Place a quest before (or after) a sibling",
		Args:  cobra.ExactArgs(2),
		RunE: c.run(func(cmd *cobra.Command, a *app, args []string) error {
			_, err := a.manager.ReorderQuest(cmd.Context(), args[0], args[1], !after, a.user())
			return err
		}),
	}
	cmd.Flags().BoolVar(&after, "after", false, "place after TARGET instead of before")
	return cmd
}

func (c *cli) questDuplicateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "duplicate ID",
		Short: "Copy a quest as a new sibling",
		Args:  cobra.ExactArgs(1),
		RunE: c.run(func(cmd *cobra.Command, a *app, args []string) error {
			q, err := a.manager.DuplicateQuest(cmd.Context(), args[0], a.user())
			if err != nil {
				return err
			}
			p := &printer{w: cmd.OutOrStdout()}
			p.printf("Created quest %s\n", q.ID)
			return p.err
		}),
	}
}

// usageErrorf reports a bad command line. The message is shown as is.
func usageErrorf(format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	return oops.In("cli").Code("USAGE").Public(msg).Errorf("%s", msg)
}
