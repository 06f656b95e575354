package main

import (
	"github.com/fisioflow/realtime/config"
	notification_repo "github.com/fisioflow/realtime/internal/repo/notification"
	"github.com/fisioflow/realtime/state"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the notifications table",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, sqlDB, err := state.InitPostgres(config.Conf.DATABASE.Postgres.DSN)
			if err != nil {
				return err
			}
			defer sqlDB.Close()

			if err := notification_repo.Migrate(db); err != nil {
				return err
			}
			log.Info().Msg("migrations applied")
			return nil
		},
	}
}
