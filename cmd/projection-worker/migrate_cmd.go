package main

import (
	"github.com/jackc/pgx/v5"
	"github.com/spf13/cobra"

	projectionoutbox "github.com/iota-uz/profile-projection/modules/projection/infrastructure/outbox"
	"github.com/iota-uz/profile-projection/pkg/configuration"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the inbound and resolved outbox tables",
		RunE: func(cmd *cobra.Command, _ []string) error {
			conf := configuration.Use()
			defer conf.Unload()

			pool, err := connectDB(cmd.Context(), conf)
			if err != nil {
				return err
			}
			defer pool.Close()

			tables := []pgx.Identifier{conf.Projection.InboundIdentifier(), conf.Projection.ResolvedIdentifier()}
			if err := projectionoutbox.EnsureTables(cmd.Context(), pool, tables...); err != nil {
				return err
			}
			conf.Logger().Infof("outbox tables ready: %v", tables)
			return nil
		},
	}
}
