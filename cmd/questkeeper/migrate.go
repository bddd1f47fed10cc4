// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"log/slog"
	"strconv"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/questkeeper/internal/config"
	"github.com/holomush/questkeeper/internal/store"
	"github.com/holomush/questkeeper/pkg/errutil"
)

func (c *cli) migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the PostgreSQL schema",
		Long: `Apply or revert the PostgreSQL schema used by the postgres storage
backend. The database URL comes from --database-url, the config file,
QUESTKEEPER_DATABASE_URL or DATABASE_URL.`,
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply every pending migration",
		Args:  cobra.NoArgs,
		RunE: c.withMigrator(func(cmd *cobra.Command, m Migrator, _ []string) error {
			if err := m.Up(); err != nil {
				return err
			}
			cmd.Println("Migrations completed successfully")
			return nil
		}),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Revert every migration, dropping all stored quest data",
		Args:  cobra.NoArgs,
		RunE: c.withMigrator(func(cmd *cobra.Command, m Migrator, _ []string) error {
			yes, err := cmd.Flags().GetBool("yes")
			if err != nil {
				return oops.In("cli").Wrap(err)
			}
			if !yes {
				return usageErrorf("migrate down drops all stored quest data; pass --yes to proceed")
			}
			if err := m.Down(); err != nil {
				return err
			}
			cmd.Println("All migrations reverted")
			return nil
		}),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show the applied and pending migrations",
		Args:  cobra.NoArgs,
		RunE: c.withMigrator(func(cmd *cobra.Command, m Migrator, _ []string) error {
			v, dirty, err := m.Version()
			if err != nil {
				return err
			}
			state := ""
			if dirty {
				state = " (dirty: run migrate force)"
			}
			cmd.Printf("Applied version: %d%s\n", v, state)
			pending, err := m.Pending()
			if err != nil {
				return err
			}
			for _, p := range pending {
				name, err := store.MigrationName(p)
				if err != nil || name == "" {
					if err != nil {
						errutil.LogError(slog.Default(), "migration name lookup failed", err)
					}
					name = strconv.FormatUint(uint64(p), 10)
				}
				cmd.Printf("Pending: %s\n", name)
			}
			return nil
		}),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "force VERSION",
		Short: "Mark VERSION as applied without running it (recovery)",
		Args:  cobra.ExactArgs(1),
		RunE: c.withMigrator(func(cmd *cobra.Command, m Migrator, args []string) error {
			v, err := strconv.Atoi(args[0])
			if err != nil {
				return usageErrorf("version must be a number, got %q", args[0])
			}
			if err := m.Force(v); err != nil {
				return err
			}
			cmd.Printf("Forced version %d\n", v)
			return nil
		}),
	})
	return cmd
}

// withMigrator opens a migrator from the configured database URL. It does
// not open the app: the schema may not exist yet.
func (c *cli) withMigrator(fn func(cmd *cobra.Command, m Migrator, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) (err error) {
		cfg, err := config.Load(cmd.Flags())
		if err != nil {
			return err
		}
		if cfg.Storage.DatabaseURL == "" {
			return oops.In("cli").Code("CONFIG_INVALID").
				Public("A database URL is required (set --database-url or DATABASE_URL)").
				Errorf("database URL is required")
		}
		m, err := c.deps.MigratorFactory(cfg.Storage.DatabaseURL)
		if err != nil {
			return oops.In("cli").Public("Failed to connect to the database").Wrap(err)
		}
		defer func() {
			if closeErr := m.Close(); err == nil && closeErr != nil {
				err = closeErr
			}
		}()
		return fn(cmd, m, args)
	}
}
