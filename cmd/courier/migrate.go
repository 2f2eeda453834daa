package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"courier/internal/config"
	"courier/internal/infra"
	"courier/migrations"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the embedded SQL migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			pool, err := infra.NewDB(cmd.Context(), cfg.DB.DSN)
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := migrations.Apply(cmd.Context(), pool); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return err
		},
	}
}
