package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/meridian-macro/pulse-cli/internal/alert"
)

var migrateSeed bool

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(cmd.Context()); err != nil {
			return err
		}
		fmt.Println("schema up to date")

		if migrateSeed {
			n, err := st.SeedThresholds(cmd.Context(), alert.DefaultThresholds())
			if err != nil {
				return err
			}
			fmt.Printf("seeded %d threshold configs\n", n)
		}
		return nil
	},
}

func init() {
	migrateCmd.Flags().BoolVar(&migrateSeed, "seed", false, "seed default alert thresholds after migrating")
	rootCmd.AddCommand(migrateCmd)
}
