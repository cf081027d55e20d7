package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/tariffwatch/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "tariffwatch",
	Short: "Tariff rate resolution and policy-impact alerting",
	Long:  "Resolves HTS duty rates through a fallback cascade, matches policy changes against subscriber trade profiles, and pushes cost-impact alerts.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
