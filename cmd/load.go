package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/sells-group/tariffwatch/internal/dataset"
	"github.com/sells-group/tariffwatch/internal/fetcher"
	"github.com/sells-group/tariffwatch/internal/resilience"
)

var loadDatasets []string

var loadCmd = &cobra.Command{
	Use:   "load",
	Short: "Download and load tariff schedule datasets",
	Long:  "Downloads the HTS export and treaty rate schedules and bulk-upserts them into the classification tables.",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context(), "load")
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.store.Migrate(cmd.Context()); err != nil {
			return err
		}

		retry := resilience.DefaultRetryConfig()
		retry.MaxAttempts = cfg.Fetch.MaxRetries
		timeout := time.Duration(cfg.Fetch.TimeoutSecs) * time.Second
		f := fetcher.NewDispatch(
			fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
				UserAgent: cfg.Fetch.UserAgent,
				Timeout:   timeout,
				Retry:     retry,
			}),
			fetcher.NewFTPFetcher(fetcher.FTPOptions{Timeout: timeout}),
		)

		engine := dataset.NewEngine(env.pg.Pool(), f, dataset.NewRegistry(cfg.Dataset.Sources), cfg.Dataset.TempDir)
		return engine.Run(cmd.Context(), loadDatasets)
	},
}

func init() {
	loadCmd.Flags().StringSliceVar(&loadDatasets, "datasets", nil, "datasets to load (default all)")
	rootCmd.AddCommand(loadCmd)
}
