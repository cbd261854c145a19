package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	internaldb "planbase/internal/db"
)

func newMigrateCmd() *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			writeDB, err := internaldb.Open(dbPath, "write", 0)
			if err != nil {
				return err
			}
			defer writeDB.Close() //nolint:errcheck

			if err := internaldb.RunMigrations(writeDB); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "planbase.sqlite", "path to the SQLite data file")
	return cmd
}
