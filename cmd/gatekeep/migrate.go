// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatekeep Contributors

package main

import (
	"fmt"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/gatekeep/gatekeep/internal/config"
	"github.com/gatekeep/gatekeep/internal/store"
)

// NewMigrateCmd creates the migrate subcommand with its children.
func newMigrateCmd(deps *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the PostgreSQL accounts schema",
		Long: `Apply or roll back the accounts schema used by the postgres store.
Without a subcommand all pending migrations are applied.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return deps.withMigrator(cmd, func(m Migrator) error {
				return migrateUp(cmd, m)
			})
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return deps.withMigrator(cmd, func(m Migrator) error {
				return migrateUp(cmd, m)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back every migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return deps.withMigrator(cmd, func(m Migrator) error {
				if err := m.Down(); err != nil {
					return err
				}
				cmd.Println("All migrations rolled back")
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "steps <n>",
		Short: "Apply (n > 0) or roll back (n < 0) n migrations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := parseForceVersion(args[0])
			if err != nil {
				return err
			}
			return deps.withMigrator(cmd, func(m Migrator) error {
				if err := m.Steps(n); err != nil {
					return err
				}
				return printMigrationStatus(cmd, m)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show applied and pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return deps.withMigrator(cmd, func(m Migrator) error {
				return printMigrationStatus(cmd, m)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "force <version>",
		Short: "Mark a version as applied without running it (repairs a dirty schema)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := parseForceVersion(args[0])
			if err != nil {
				return err
			}
			return deps.withMigrator(cmd, func(m Migrator) error {
				if err := m.Force(version); err != nil {
					return err
				}
				cmd.Printf("Forced schema version to %d\n", version)
				return nil
			})
		},
	})

	return cmd
}

// withMigrator opens a migrator for the configured database and closes it after fn.
func (d *Deps) withMigrator(cmd *cobra.Command, fn func(Migrator) error) error {
	cfg, err := d.loadConfig(cmd)
	if err != nil {
		return err
	}
	databaseURL, err := getDatabaseURL(cfg)
	if err != nil {
		return err
	}

	m, err := d.MigratorFactory(databaseURL)
	if err != nil {
		return err
	}

	runErr := fn(m)
	if closeErr := m.Close(); closeErr != nil && runErr == nil {
		return closeErr
	}
	return runErr
}

func migrateUp(cmd *cobra.Command, m Migrator) error {
	pending, err := m.PendingMigrations()
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		cmd.Println("Schema is up to date")
		return nil
	}

	cmd.Printf("Applying %d migration(s)...\n", len(pending))
	if err := m.Up(); err != nil {
		return err
	}
	cmd.Println("Migrations completed successfully")
	return nil
}

func printMigrationStatus(cmd *cobra.Command, m Migrator) error {
	version, dirty, err := m.Version()
	if err != nil {
		return err
	}
	applied, err := m.AppliedMigrations()
	if err != nil {
		return err
	}
	pending, err := m.PendingMigrations()
	if err != nil {
		return err
	}

	state := "clean"
	if dirty {
		state = "dirty"
	}
	cmd.Printf("Version: %d (%s)\n", version, state)
	for _, v := range applied {
		cmd.Printf("  [x] %s\n", migrationLabel(v))
	}
	for _, v := range pending {
		cmd.Printf("  [ ] %s\n", migrationLabel(v))
	}
	return nil
}

func migrationLabel(version uint) string {
	name, err := store.MigrationName(version)
	if err != nil || name == "" {
		return fmt.Sprintf("%06d", version)
	}
	return name
}

// getDatabaseURL returns the configured PostgreSQL URL.
func getDatabaseURL(cfg *config.Config) (string, error) {
	if cfg.Store.DatabaseURL == "" {
		return "", oops.Code("CONFIG_INVALID").
			Errorf("database URL is required (set %s or --database-url)", config.EnvDatabaseURL)
	}
	return cfg.Store.DatabaseURL, nil
}

// parseForceVersion parses a migration version or step count argument.
func parseForceVersion(s string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(strings.TrimSpace(s), "%d", &version); err != nil {
		return 0, oops.Code("INVALID_VERSION").With("input", s).Wrap(err)
	}
	return version, nil
}
