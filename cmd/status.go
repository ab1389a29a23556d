package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the latest pipeline state",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		series, err := st.ListSeries(ctx)
		if err != nil {
			return err
		}
		if len(series) == 0 {
			fmt.Println("no observations ingested yet")
			return nil
		}

		fmt.Printf("%d series tracked\n", len(series))
		var latestDay time.Time
		for _, name := range series {
			co, err := st.LatestCanonical(ctx, name)
			if err != nil {
				return err
			}
			if co == nil {
				continue
			}
			fmt.Printf("  %-16s latest %s = %g (source %s)\n",
				name, co.Day.Format("2006-01-02"), co.Value, co.SourceURL)
			if co.Day.After(latestDay) {
				latestDay = co.Day
			}
		}
		if latestDay.IsZero() {
			return nil
		}

		day := latestDay.Format("2006-01-02")
		sc, err := st.ScoreOn(ctx, latestDay)
		if err != nil {
			return err
		}
		if sc != nil {
			fmt.Printf("score  %s: %.1f (%s, %s)\n", day, sc.Score, sc.Bucket, sc.Method)
		} else {
			fmt.Printf("score  %s: not computed\n", day)
		}
		stress, err := st.StressOn(ctx, latestDay)
		if err != nil {
			return err
		}
		if stress != nil {
			fmt.Printf("stress %s: %.1f (%s)\n", day, stress.Index, stress.Bucket)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
