package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var stressCmd = &cobra.Command{
	Use:   "stress <YYYY-MM-DD>",
	Short: "Show the stress index for one day",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		day, err := parseDayArg(args[0])
		if err != nil {
			return err
		}
		st, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		res, err := st.StressOn(cmd.Context(), day)
		if err != nil {
			return err
		}
		if res == nil {
			fmt.Printf("no stress index for %s\n", args[0])
			return nil
		}

		fmt.Printf("%s: stress %.1f (%s)\n", args[0], res.Index, res.Bucket)
		for _, d := range res.Drivers {
			fmt.Printf("  %-16s weight %.2f contribution %+.2f\n",
				d.Component, d.Weight, d.Contribution)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(stressCmd)
}
