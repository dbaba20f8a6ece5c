package main

import (
	"fmt"
	"os"

	"github.com/platinummonkey/taskhub/pkg/config"
	"github.com/platinummonkey/taskhub/pkg/observability"
	"github.com/platinummonkey/taskhub/pkg/storage"
	"github.com/platinummonkey/taskhub/pkg/storage/postgres"
	"github.com/spf13/cobra"
)

func migrateCmd() *cobra.Command {
	var list bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "apply pending postgres migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			if list {
				for _, m := range postgres.Migrations() {
					fmt.Fprintf(cmd.OutOrStdout(), "%3d  %s\n", m.Version, m.Description)
				}
				return nil
			}

			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}
			if cfg.Storage.Type != storage.TypePostgres {
				return fmt.Errorf("migrate needs TASKHUB_STORAGE_TYPE=%s, got %q", storage.TypePostgres, cfg.Storage.Type)
			}
			logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)

			cm, err := postgres.NewConnectionManager(postgres.ConnectionConfig{
				PrimaryURL: cfg.Storage.PostgresURL,
				MaxConns:   1,
				MinConns:   1,
				Timeout:    cfg.Storage.PostgresTimeout,
			}, logger)
			if err != nil {
				return err
			}
			defer cm.Close()

			return postgres.RunMigrations(cmd.Context(), cm.Primary(), logger)
		},
	}
	cmd.Flags().BoolVar(&list, "list", false, "print the known migrations and exit")
	return cmd
}
