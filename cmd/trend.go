package main

import (
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/meridian-macro/pulse-cli/internal/horizon"
)

var (
	trendDays       int
	causalityDays   int
	causalityMethod string
	causalityMaxLag int
)

var trendCmd = &cobra.Command{
	Use:   "trend [metric]",
	Short: "Summarize recent metric trends",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		names := basketMetrics()
		if len(args) == 1 {
			names = args[:1]
		}
		to := time.Now()
		from := to.AddDate(0, 0, -trendDays)

		analyzer := horizon.NewAnalyzer(st)
		for _, name := range names {
			tr, err := analyzer.TrendFor(cmd.Context(), name, from, to)
			if eris.Is(err, horizon.ErrUnavailable) {
				fmt.Printf("%-16s (insufficient data)\n", name)
				continue
			}
			if err != nil {
				return err
			}
			fmt.Printf("%-16s %-8s last %+.2f change %+.2f over %d samples (mean %+.2f, stdev %.2f)\n",
				tr.Metric, tr.Direction, tr.Last, tr.Change, tr.Samples, tr.Mean, tr.Stdev)
		}
		return nil
	},
}

var causalityCmd = &cobra.Command{
	Use:   "causality <x-metric> <y-metric>",
	Short: "Test whether one metric leads another",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		var tester horizon.CausalityTester
		switch causalityMethod {
		case "leadlag":
			tester = horizon.NewLeadLag(st)
		case "granger":
			tester = horizon.NewGrangerLite(st)
		default:
			return fmt.Errorf("unknown method %q, expected leadlag or granger", causalityMethod)
		}

		to := time.Now()
		from := to.AddDate(0, 0, -causalityDays)
		res, err := tester.Test(cmd.Context(), args[0], args[1], from, to, causalityMaxLag)
		if eris.Is(err, horizon.ErrUnavailable) {
			fmt.Println("insufficient aligned history for this pair")
			return nil
		}
		if err != nil {
			return err
		}

		verdict := "not informative"
		if res.Informative {
			verdict = "informative"
		}
		fmt.Printf("%s -> %s (%s): best lag %d day(s), statistic %.3f over %d samples (%s)\n",
			res.X, res.Y, res.Method, res.BestLag, res.Statistic, res.Samples, verdict)
		return nil
	},
}

func init() {
	trendCmd.Flags().IntVar(&trendDays, "days", 90, "lookback window in days")
	causalityCmd.Flags().StringVar(&causalityMethod, "method", "leadlag", "leadlag or granger")
	causalityCmd.Flags().IntVar(&causalityMaxLag, "max-lag", 5, "largest lag tested, in days")
	causalityCmd.Flags().IntVar(&causalityDays, "days", 180, "lookback window in days")
	rootCmd.AddCommand(trendCmd, causalityCmd)
}
