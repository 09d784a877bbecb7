package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/spf13/cobra"

	"github.com/cory-johannsen/tictactoe/internal/config"
	"github.com/cory-johannsen/tictactoe/migrations"
)

func newMigrateCmd(configPath *string) *cobra.Command {
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back the PostgreSQL schema",
	}
	migrateCmd.AddCommand(
		newMigrateStepCmd(configPath, "up", "Apply pending migrations"),
		newMigrateStepCmd(configPath, "down", "Roll back applied migrations"),
	)
	return migrateCmd
}

func newMigrateStepCmd(configPath *string, direction, short string) *cobra.Command {
	var steps int
	cmd := &cobra.Command{
		Use:   direction,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			start := time.Now()
			if steps < 0 {
				return fmt.Errorf("--steps must not be negative, got %d", steps)
			}

			dbCfg, err := config.LoadDatabase(*configPath)
			if err != nil {
				return fmt.Errorf("loading database config: %w", err)
			}

			m, err := migrations.New(dbCfg.DSN())
			if err != nil {
				return err
			}
			defer m.Close()

			switch {
			case direction == "up" && steps > 0:
				err = m.Steps(steps)
			case direction == "up":
				err = m.Up()
			case steps > 0:
				err = m.Steps(-steps)
			default:
				err = m.Down()
			}
			noChange := errors.Is(err, migrate.ErrNoChange)
			if err != nil && !noChange {
				return fmt.Errorf("migration failed: %w", err)
			}

			version, dirty, _ := m.Version()
			elapsed := time.Since(start)
			if noChange {
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "no changes (version=%d dirty=%v) [%s]\n", version, dirty, elapsed)
			} else {
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "migrated %s to version=%d dirty=%v [%s]\n", direction, version, dirty, elapsed)
			}
			return err
		},
	}
	cmd.Flags().IntVar(&steps, "steps", 0, "number of steps (0 = all)")
	return cmd
}
