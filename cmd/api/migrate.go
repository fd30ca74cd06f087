package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fileforge/fileforge/internal/config"
	"github.com/fileforge/fileforge/internal/repository"
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := config.Load()
				if err != nil {
					return err
				}
				if err := repository.MigrateUp(cfg.DatabaseURL); err != nil {
					return fmt.Errorf("%s", sanitizeError(err, cfg.DatabaseURL))
				}
				fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
				return nil
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the last migration",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := config.Load()
				if err != nil {
					return err
				}
				if err := repository.MigrateDown(cfg.DatabaseURL); err != nil {
					return fmt.Errorf("%s", sanitizeError(err, cfg.DatabaseURL))
				}
				fmt.Fprintln(cmd.OutOrStdout(), "rolled back one migration")
				return nil
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the current schema version",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := config.Load()
				if err != nil {
					return err
				}
				version, dirty, err := repository.MigrationVersion(cfg.DatabaseURL)
				if err != nil {
					return fmt.Errorf("%s", sanitizeError(err, cfg.DatabaseURL))
				}
				if dirty {
					fmt.Fprintf(cmd.OutOrStdout(), "%d (dirty)\n", version)
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "%d\n", version)
				}
				return nil
			},
		},
	)

	return cmd
}
