package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/meridian-macro/pulse-cli/internal/alert"
	"github.com/meridian-macro/pulse-cli/internal/model"
	"github.com/meridian-macro/pulse-cli/internal/store"
)

var (
	alertsFrom     string
	alertsTo       string
	alertsCode     string
	alertsSeverity string
	alertsLimit    int
)

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "List and evaluate threshold alerts",
}

var alertsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List alerts in a day range",
	RunE: func(cmd *cobra.Command, args []string) error {
		to := time.Now()
		from := to.AddDate(0, 0, -30)
		var err error
		if alertsFrom != "" {
			if from, err = parseDayArg(alertsFrom); err != nil {
				return err
			}
		}
		if alertsTo != "" {
			if to, err = parseDayArg(alertsTo); err != nil {
				return err
			}
		}

		st, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		alerts, err := st.ListAlerts(cmd.Context(), store.AlertFilter{
			From:     from,
			To:       to,
			Code:     alertsCode,
			Severity: model.Severity(alertsSeverity),
			Limit:    alertsLimit,
		})
		if err != nil {
			return err
		}
		if len(alerts) == 0 {
			fmt.Println("no alerts")
			return nil
		}
		for _, a := range alerts {
			fmt.Printf("%s  %-8s %-16s %s\n",
				a.Day.Format("2006-01-02"), a.Severity, a.Code, a.Message)
		}
		return nil
	},
}

var alertsEvalCmd = &cobra.Command{
	Use:   "eval <YYYY-MM-DD>",
	Short: "Re-evaluate alert rules for one day",
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

		engine := alert.NewEngine(st, st, st, time.Duration(cfg.Alert.CacheTTLSecs)*time.Second)
		fired, err := engine.EvaluateDay(cmd.Context(), day)
		if err != nil {
			return err
		}
		fmt.Printf("%d alert(s) for %s\n", len(fired), args[0])
		for _, a := range fired {
			fmt.Printf("  %-8s %-16s %s\n", a.Severity, a.Code, a.Message)
		}
		return nil
	},
}

func init() {
	alertsListCmd.Flags().StringVar(&alertsFrom, "from", "", "range start (default 30 days ago)")
	alertsListCmd.Flags().StringVar(&alertsTo, "to", "", "range end (default today)")
	alertsListCmd.Flags().StringVar(&alertsCode, "code", "", "filter by rule code")
	alertsListCmd.Flags().StringVar(&alertsSeverity, "severity", "", "filter by severity (low, medium, high)")
	alertsListCmd.Flags().IntVar(&alertsLimit, "limit", 0, "max alerts returned (default 500)")
	alertsCmd.AddCommand(alertsListCmd, alertsEvalCmd)
	rootCmd.AddCommand(alertsCmd)
}
