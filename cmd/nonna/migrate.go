package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dukerupert/nonna/internal/config"
	"github.com/dukerupert/nonna/internal/database"
)

func init() {
	var dbPath string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations and print the schema version",
		RunE: func(cmd *cobra.Command, args []string) error {
			if dbPath == "" {
				cfg, err := config.Parse()
				if err != nil {
					return err
				}
				dbPath = cfg.DBPath
			}
			db, err := database.Open(dbPath)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer db.Close()

			v, err := database.Version(db)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s at schema version %d\n", dbPath, v)
			return nil
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "database path (defaults to NONNA_DB_PATH)")
	rootCmd.AddCommand(cmd)
}
