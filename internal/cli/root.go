package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lifeos/tasks/internal/config"
	"github.com/lifeos/tasks/internal/db"
)

var rootAdmCmd = &cobra.Command{
	Use:   "tasksadm",
	Short: "Administrative CLI for the lifeos tasks database",
	Long: `tasksadm is the administrative companion to tasksd. It handles database
lifecycle (init, migrate) and portable dataset transfer (export, import).`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// ExecuteAdmin runs the admin root command
func ExecuteAdmin() error {
	return rootAdmCmd.Execute()
}

func init() {
	rootAdmCmd.PersistentFlags().String("db", "", "Path to database file (overrides LIFEOS_DB_PATH)")
}

// exitError returns an error that will cause the CLI to exit with the given code
func exitError(code int, err error) error {
	return err
}

// openDatabase loads config, applies the --db flag, and opens the database.
func openDatabase(cmd *cobra.Command) (*db.DB, *config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, exitError(1, fmt.Errorf("failed to load config: %w", err))
	}

	if dbPath := cmd.Flag("db").Value.String(); dbPath != "" {
		cfg.DBPath = dbPath
	}

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		return nil, nil, exitError(1, fmt.Errorf("failed to open database: %w", err))
	}

	return database, cfg, nil
}
