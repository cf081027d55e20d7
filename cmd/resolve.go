package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/sells-group/tariffwatch/internal/alert"
)

var resolveJSON bool

var resolveCmd = &cobra.Command{
	Use:   "resolve <hs-code> [hs-code...]",
	Short: "Resolve duty rates for one or more HS codes",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context(), "resolve")
		if err != nil {
			return err
		}
		defer env.Close()

		engine, err := env.requireEngine()
		if err != nil {
			return err
		}

		for _, code := range args {
			rate := engine.Resolve(cmd.Context(), code)

			if resolveJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				if err := enc.Encode(rate); err != nil {
					return err
				}
				continue
			}

			cmd.Printf("%s  mfn=%.2f%%  usmca=%.2f%%  savings=%.2f%%  source=%s\n",
				rate.HSCode, rate.MFNRate, rate.USMCARate, rate.SavingsPercent, rate.Source)
			if rate.MFNRate > 0 {
				cmd.Printf("    duty on $1,000,000: %s\n", alert.FormatUSD(1_000_000*rate.MFNRate/100))
			}
		}
		return nil
	},
}

func init() {
	resolveCmd.Flags().BoolVar(&resolveJSON, "json", false, "emit JSON instead of text")
	rootCmd.AddCommand(resolveCmd)
}
