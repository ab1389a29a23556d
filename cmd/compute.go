package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var computeResume bool

var computeCmd = &cobra.Command{
	Use:   "compute",
	Short: "Run the daily pipeline: metrics, score, stress, alerts",
}

var computeDayCmd = &cobra.Command{
	Use:   "day <YYYY-MM-DD>",
	Short: "Compute one day",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		day, err := parseDayArg(args[0])
		if err != nil {
			return err
		}
		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.runner.RunDay(cmd.Context(), day); err != nil {
			return err
		}

		sc, err := env.store.ScoreOn(cmd.Context(), day)
		if err != nil {
			return err
		}
		if sc != nil {
			fmt.Printf("%s: score %.1f (%s, %s)\n",
				args[0], sc.Score, sc.Bucket, sc.Method)
			for _, d := range sc.Drivers {
				fmt.Printf("  %s %s contribution %+.3f\n", d.Direction, d.Component, d.Contribution)
			}
		}
		return nil
	},
}

var computeRangeCmd = &cobra.Command{
	Use:   "range <from> <to>",
	Short: "Compute every day in a range, or resume an interrupted range",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		from, err := parseDayArg(args[0])
		if err != nil {
			return err
		}
		to, err := parseDayArg(args[1])
		if err != nil {
			return err
		}

		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		run := env.runner.RunRange
		if computeResume {
			run = env.runner.Resume
		}
		report, err := run(cmd.Context(), from, to)
		if err != nil {
			return err
		}

		fmt.Printf("%d days, %d succeeded, %d failed\n",
			report.Days, report.Succeeded, len(report.Failures))
		for _, f := range report.Failures {
			fmt.Printf("  %s: %s\n", f.Day.Format("2006-01-02"), f.Err)
		}
		return nil
	},
}

func init() {
	computeRangeCmd.Flags().BoolVar(&computeResume, "resume", false, "only compute days without a score yet")
	computeCmd.AddCommand(computeDayCmd, computeRangeCmd)
	rootCmd.AddCommand(computeCmd)
}
