package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/clinical-fact-validator/internal/database"
	"github.com/clinical-fact-validator/migrations"
)

var (
	migrateDatabaseURL string
	migratePath        string
	migrateSteps       int
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the Postgres schema",
	Long: `Applies or rolls back the schema of the fact, source document and report tables.
The database URL comes from --database-url or the database section of the
configuration.`,
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withMigrationRunner(cmd, func(runner *database.MigrationRunner) error {
			if err := runner.Up(); err != nil {
				return err
			}
			return printMigrationStatus(cmd, runner)
		})
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if migrateSteps <= 0 {
			return errors.New("--steps must be positive")
		}
		return withMigrationRunner(cmd, func(runner *database.MigrationRunner) error {
			if err := runner.Down(migrateSteps); err != nil {
				return err
			}
			return printMigrationStatus(cmd, runner)
		})
	},
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the applied schema version",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withMigrationRunner(cmd, func(runner *database.MigrationRunner) error {
			return printMigrationStatus(cmd, runner)
		})
	},
}

func init() {
	migrateCmd.PersistentFlags().StringVar(&migrateDatabaseURL, "database-url", "", "postgres URL (default: from configuration)")
	migrateCmd.PersistentFlags().StringVar(&migratePath, "path", "", "migrations directory (default: embedded migrations)")
	migrateDownCmd.Flags().IntVar(&migrateSteps, "steps", 1, "number of migrations to roll back")

	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd, migrateStatusCmd)
	rootCmd.AddCommand(migrateCmd)
}

func withMigrationRunner(cmd *cobra.Command, fn func(*database.MigrationRunner) error) error {
	dbURL := migrateDatabaseURL
	path := migratePath
	if dbURL == "" || path == "" {
		manager, err := loadConfig()
		if err != nil {
			return err
		}
		if dbURL == "" {
			dbURL = manager.GetDatabaseURL()
		}
		if path == "" {
			path = manager.GetDatabaseConfig().MigrationsPath
		}
	}

	logger := newLogger(cmd)
	var (
		runner *database.MigrationRunner
		err    error
	)
	if path != "" {
		runner, err = database.NewMigrationRunner(dbURL, path, logger)
	} else {
		runner, err = database.NewEmbeddedMigrationRunner(dbURL, migrations.FS, logger)
	}
	if err != nil {
		return fmt.Errorf("creating migration runner: %w", err)
	}
	defer runner.Close()

	return fn(runner)
}

func printMigrationStatus(cmd *cobra.Command, runner *database.MigrationRunner) error {
	status, err := runner.Status()
	if err != nil {
		return err
	}
	if !status.Applied {
		cmd.Println("No migrations applied.")
		return nil
	}
	cmd.Printf("Schema version: %d", status.Version)
	if status.Dirty {
		cmd.Print(" (dirty)")
	}
	cmd.Println()
	return nil
}
