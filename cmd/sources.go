package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "Manage upstream data sources",
}

var sourcesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered sources by priority",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		sources, err := st.ListSources(cmd.Context())
		if err != nil {
			return err
		}
		if len(sources) == 0 {
			fmt.Println("no sources registered")
			return nil
		}
		fmt.Printf("%-6s %-9s %-25s %s\n", "ID", "PRIORITY", "LAST SEEN", "URL")
		for _, s := range sources {
			fmt.Printf("%-6d %-9d %-25s %s\n",
				s.ID, s.Priority, s.LastSeenAt.Format("2006-01-02 15:04:05"), s.URL)
		}
		return nil
	},
}

var sourceAddPriority int

var sourcesAddCmd = &cobra.Command{
	Use:   "add <url>",
	Short: "Register a source (or refresh an existing one)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		src, err := st.UpsertSource(cmd.Context(), args[0], sourceAddPriority)
		if err != nil {
			return err
		}
		fmt.Printf("source %d: %s (priority %d)\n", src.ID, src.URL, src.Priority)
		return nil
	},
}

var sourcesPriorityCmd = &cobra.Command{
	Use:   "priority <id> <priority>",
	Short: "Override a source's canonical-selection priority",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("bad source id %q", args[0])
		}
		priority, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("bad priority %q", args[1])
		}

		st, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.SetSourcePriority(cmd.Context(), id, priority); err != nil {
			return err
		}
		fmt.Printf("source %d priority set to %d\n", id, priority)
		return nil
	},
}

func init() {
	sourcesAddCmd.Flags().IntVar(&sourceAddPriority, "priority", 100, "canonical-selection priority, lower wins")
	sourcesCmd.AddCommand(sourcesListCmd, sourcesAddCmd, sourcesPriorityCmd)
	rootCmd.AddCommand(sourcesCmd)
}
