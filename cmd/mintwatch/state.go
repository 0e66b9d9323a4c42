package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/devblac/mintwatch/internal/storage"
	"github.com/spf13/cobra"
)

var (
	stateLimit int
	stateJSON  bool
)

func init() {
	stateCmd.Flags().IntVar(&stateLimit, "limit", 20, "Number of cycles to show")
	stateCmd.Flags().BoolVar(&stateJSON, "json", false, "Print cycles as JSON")
}

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Show the most recent cycles from the journal",
	RunE: func(cmd *cobra.Command, args []string) error {
		dbPath, err := journalPath()
		if err != nil {
			return err
		}
		store, err := storage.Open(dbPath)
		if err != nil {
			return fmt.Errorf("open storage: %w", err)
		}
		defer store.Close()

		cycles, err := store.RecentCycles(cmd.Context(), stateLimit)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if stateJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(cycles)
		}
		if len(cycles) == 0 {
			fmt.Fprintln(out, "no cycles recorded")
			return nil
		}

		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "STARTED\tSTATUS\tCONTRACT\tNAME\tGATE\tREASON\tTX")
		for _, c := range cycles {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
				c.StartedAt.UTC().Format("2006-01-02 15:04:05"),
				c.Status, dash(c.Contract), dash(c.CollectionName),
				dash(c.Gate), dash(c.Reason), dash(c.TxHash))
		}
		return tw.Flush()
	},
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
