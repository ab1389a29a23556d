package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/meridian-macro/pulse-cli/internal/alert"
	"github.com/meridian-macro/pulse-cli/internal/model"
)

var (
	thresholdEnabled  bool
	thresholdSeverity string
	thresholdParams   []string
)

var thresholdsCmd = &cobra.Command{
	Use:   "thresholds",
	Short: "Manage alert rule configuration",
}

var thresholdsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored alert rule configs",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		configs, err := st.ListThresholds(cmd.Context())
		if err != nil {
			return err
		}
		for _, c := range configs {
			state := "enabled"
			if !c.Enabled {
				state = "disabled"
			}
			params := make([]string, 0, len(c.Params))
			for k, v := range c.Params {
				params = append(params, fmt.Sprintf("%s=%g", k, v))
			}
			sort.Strings(params)
			fmt.Printf("%-16s %-9s %-8s %s\n", c.Code, state, c.Severity, strings.Join(params, " "))
		}
		return nil
	},
}

var thresholdsSeedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Insert default configs for rules that have none",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		n, err := st.SeedThresholds(cmd.Context(), alert.DefaultThresholds())
		if err != nil {
			return err
		}
		fmt.Printf("seeded %d config(s); existing rows were left untouched\n", n)
		return nil
	},
}

var thresholdsSetCmd = &cobra.Command{
	Use:   "set <code>",
	Short: "Store a rule config (takes effect within the cache TTL)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		params := map[string]float64{}
		for _, kv := range thresholdParams {
			k, v, ok := strings.Cut(kv, "=")
			if !ok {
				return fmt.Errorf("bad --param %q, expected name=value", kv)
			}
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("bad --param value %q", v)
			}
			params[k] = f
		}

		st, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		cfg := model.ThresholdConfig{
			Code:     args[0],
			Enabled:  thresholdEnabled,
			Severity: model.Severity(thresholdSeverity),
			Params:   params,
		}
		if err := st.SetThreshold(cmd.Context(), cfg); err != nil {
			return err
		}
		fmt.Printf("config %s stored\n", args[0])
		return nil
	},
}

func init() {
	thresholdsSetCmd.Flags().BoolVar(&thresholdEnabled, "enabled", true, "whether the rule is evaluated")
	thresholdsSetCmd.Flags().StringVar(&thresholdSeverity, "severity", "medium", "severity for non-tiered rules")
	thresholdsSetCmd.Flags().StringArrayVar(&thresholdParams, "param", nil, "rule parameter as name=value, repeatable")
	thresholdsCmd.AddCommand(thresholdsListCmd, thresholdsSeedCmd, thresholdsSetCmd)
	rootCmd.AddCommand(thresholdsCmd)
}
