package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"courier/internal/config"
	"courier/internal/infra"
	"courier/internal/modules/wage"
)

func newWagesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wages",
		Short: "Inspect and publish driver wage tables",
	}
	cmd.AddCommand(newWagesShowCmd(), newWagesPublishCmd())
	return cmd
}

func newWagesShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the latest published wage table",
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

			t, err := wage.NewStore(pool).LatestWageTable(cmd.Context())
			if err != nil {
				return err
			}
			return yaml.NewEncoder(cmd.OutOrStdout()).Encode(t)
		},
	}
}

func newWagesPublishCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "publish <file>",
		Short: "Publish a wage table from a YAML or JSON file and drop the cached copy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			var t wage.Table
			if err := yaml.Unmarshal(b, &t); err != nil {
				return fmt.Errorf("parse %s: %w", args[0], err)
			}
			if len(t.Bands) == 0 && t.Formula == "" {
				return fmt.Errorf("%s: table has no bands and no formula", args[0])
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			pool, err := infra.NewDB(cmd.Context(), cfg.DB.DSN)
			if err != nil {
				return err
			}
			defer pool.Close()
			rdb := infra.NewRedis(cfg.Redis.Addr)
			defer rdb.Close()

			if err := wage.NewStore(pool).Publish(cmd.Context(), t); err != nil {
				return err
			}
			cache := wage.NewCachedProvider(nil, rdb, cfg.Wage.CacheTTL, nil)
			if err := cache.Invalidate(cmd.Context()); err != nil {
				_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "warning: cached table not dropped: %v\n", err)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "published %d bands\n", len(t.Bands))
			return err
		},
	}
}
