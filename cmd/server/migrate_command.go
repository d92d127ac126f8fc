package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/iliyamo/scene-continuity/internal/config"
	"github.com/iliyamo/scene-continuity/internal/database"
)

func newMigrateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if cfg.DB.Driver == config.DriverMemory {
				return fmt.Errorf("migrate needs DB_DRIVER=mysql or sqlite")
			}
			db, err := database.Open(database.Options{
				Driver:     cfg.DB.Driver,
				User:       cfg.DB.User,
				Pass:       cfg.DB.Pass,
				Host:       cfg.DB.Host,
				Port:       cfg.DB.Port,
				Name:       cfg.DB.Name,
				SQLitePath: cfg.DB.SQLitePath,
			})
			if err != nil {
				return err
			}
			defer db.Close()

			applied, err := database.Migrate(cmd.Context(), db)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(applied) == 0 {
				fmt.Fprintln(out, "schema is up to date")
				return nil
			}
			for _, v := range applied {
				fmt.Fprintf(out, "applied %s\n", v)
			}
			return nil
		},
	}
}
