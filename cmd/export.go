package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/meridian-macro/pulse-cli/internal/export"
)

var (
	exportFrom string
	exportTo   string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write score and metric history to files",
}

var exportXLSXCmd = &cobra.Command{
	Use:   "xlsx <path>",
	Short: "Write an XLSX workbook with scores, stress, metrics, and alerts",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		from, to, err := exportRange()
		if err != nil {
			return err
		}
		st, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		ex := export.NewExporter(st, basketMetrics())
		if err := ex.WriteWorkbook(cmd.Context(), args[0], from, to); err != nil {
			return err
		}
		fmt.Printf("workbook written to %s\n", args[0])
		return nil
	},
}

var exportCSVCmd = &cobra.Command{
	Use:   "csv <path>",
	Short: "Write the range's daily scores as CSV",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		from, to, err := exportRange()
		if err != nil {
			return err
		}
		st, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		ex := export.NewExporter(st, basketMetrics())
		if err := ex.WriteScoresCSV(cmd.Context(), args[0], from, to); err != nil {
			return err
		}
		fmt.Printf("scores written to %s\n", args[0])
		return nil
	},
}

func exportRange() (time.Time, time.Time, error) {
	to := time.Now()
	from := to.AddDate(0, 0, -90)
	var err error
	if exportFrom != "" {
		if from, err = parseDayArg(exportFrom); err != nil {
			return time.Time{}, time.Time{}, err
		}
	}
	if exportTo != "" {
		if to, err = parseDayArg(exportTo); err != nil {
			return time.Time{}, time.Time{}, err
		}
	}
	return from, to, nil
}

func init() {
	exportCmd.PersistentFlags().StringVar(&exportFrom, "from", "", "range start (default 90 days ago)")
	exportCmd.PersistentFlags().StringVar(&exportTo, "to", "", "range end (default today)")
	exportCmd.AddCommand(exportXLSXCmd, exportCSVCmd)
	rootCmd.AddCommand(exportCmd)
}
