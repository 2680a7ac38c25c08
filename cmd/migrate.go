package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/neo/rapport_backend/internal/database"
)

var migrateStatus bool

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply archive database migrations",
	Long: `Apply pending migrations to the conversation archive in DATA_DIR.
With --status, list the pending migrations without applying them.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		db, err := database.Open(cfg.DataDir)
		if err != nil {
			return err
		}
		defer db.Close()

		out := cmd.OutOrStdout()
		migrator := db.Migrator()

		if migrateStatus {
			pending, err := migrator.Pending(database.Migrations())
			if err != nil {
				return err
			}
			if len(pending) == 0 {
				fmt.Fprintln(out, "Database is up to date")
				return nil
			}
			for _, m := range pending {
				fmt.Fprintf(out, "pending  %03d  %s\n", m.ID, m.Name)
			}
			return nil
		}

		n, err := migrator.MigrateUp(database.Migrations())
		if err != nil {
			return fmt.Errorf("migration failed after %d applied: %w", n, err)
		}
		fmt.Fprintf(out, "Applied %d migration(s)\n", n)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.Flags().BoolVar(&migrateStatus, "status", false, "list pending migrations without applying them")
}
