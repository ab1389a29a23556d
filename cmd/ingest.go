package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/meridian-macro/pulse-cli/internal/ingest"
)

var (
	ingestSource   string
	ingestPriority int
	ingestBulk     bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <file>...",
	Short: "Load observation files (CSV or JSON) into the raw store",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if ingestSource == "" {
			return fmt.Errorf("--source is required")
		}
		st, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		if ingestBulk {
			src, err := st.UpsertSource(cmd.Context(), ingestSource, ingestPriority)
			if err != nil {
				return err
			}
			now := time.Now().UTC()
			var total int64
			var skipped int
			for _, path := range args {
				rows, err := ingest.ParseFile(path)
				if err != nil {
					return err
				}
				obs, bad := ingest.Observations(rows, src.ID, now)
				skipped += bad
				n, err := st.ImportObservations(cmd.Context(), obs)
				if err != nil {
					return err
				}
				total += n
			}
			fmt.Printf("%s: bulk imported %d rows (%d skipped)\n", ingestSource, total, skipped)
			return nil
		}

		loader := ingest.NewLoader(st, ingestPriority)
		for _, path := range args {
			sum, err := loader.LoadFile(cmd.Context(), path, ingestSource)
			if err != nil {
				return err
			}
			fmt.Printf("%s: %d inserted, %d refreshed, %d skipped\n",
				path, sum.Inserted, sum.Refreshed, sum.Skipped)
		}
		return nil
	},
}

func init() {
	ingestCmd.Flags().StringVar(&ingestSource, "source", "", "source URL the file is attributed to (required)")
	ingestCmd.Flags().IntVar(&ingestPriority, "priority", 100, "priority for a newly registered source")
	ingestCmd.Flags().BoolVar(&ingestBulk, "bulk", false, "use the bulk COPY import path for large backfills")
	rootCmd.AddCommand(ingestCmd)
}
