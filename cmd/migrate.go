package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/chiziuwaga/kevin-smart-grant-finder-sub000/internal/store"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		gateway, err := store.Connect(ctx, cfg.Store)
		if err != nil {
			return err
		}
		defer gateway.Close()

		if err := gateway.Migrate(ctx); err != nil {
			return err
		}
		zap.L().Info("migrations applied")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
