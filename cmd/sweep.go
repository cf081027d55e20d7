package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Delete expired alerts",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context(), "sweep")
		if err != nil {
			return err
		}
		defer env.Close()

		deleted, err := env.store.SweepExpiredAlerts(cmd.Context())
		if err != nil {
			return err
		}

		zap.L().Info("sweep complete", zap.Int64("deleted", deleted))
		cmd.Printf("deleted %d expired alerts\n", deleted)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sweepCmd)
}
