package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/tariffwatch/internal/ingest"
)

var ingestFile string

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Process a policy-change document and push alerts",
	Long:  "Reads a policy-change JSON document from --file or stdin, matches it against subscriber trade profiles, and persists alerts for affected paid users.",
	RunE: func(cmd *cobra.Command, args []string) error {
		in := os.Stdin
		if ingestFile != "" {
			f, err := os.Open(ingestFile)
			if err != nil {
				return eris.Wrap(err, "open policy change file")
			}
			defer f.Close() //nolint:errcheck
			in = f
		}

		pc, err := ingest.Decode(in)
		if err != nil {
			return err
		}

		env, err := initEnv(cmd.Context(), "ingest")
		if err != nil {
			return err
		}
		defer env.Close()

		result, err := env.proc.Process(cmd.Context(), pc)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

func init() {
	ingestCmd.Flags().StringVar(&ingestFile, "file", "", "policy change JSON file (default stdin)")
	rootCmd.AddCommand(ingestCmd)
}
