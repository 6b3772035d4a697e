package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"oversight.dev/internal/ledger"
)

var (
	summaryWindow int
	logRecent     int
)

func init() {
	rootCmd.AddCommand(summaryCmd)
	rootCmd.AddCommand(logCmd)

	summaryCmd.Flags().IntVar(&summaryWindow, "window", 0, "entries in the counted window (server default when 0)")
	logCmd.Flags().IntVar(&logRecent, "recent", 20, "number of most recent entries")
}

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Print the text digest of recent activity",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		text, err := c.Summary(cmd.Context(), summaryWindow)
		if err != nil {
			return err
		}
		if jsonOutput {
			return writeJSON(cmd.OutOrStdout(), map[string]string{"summary": text})
		}
		fmt.Fprintln(cmd.OutOrStdout(), text)
		return nil
	},
}

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "Show counts and the most recent ledger entries",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if logRecent < 1 {
			return fmt.Errorf("--recent must be >= 1")
		}
		c, err := newClient()
		if err != nil {
			return err
		}
		view, err := c.Recent(cmd.Context(), logRecent)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if jsonOutput {
			return writeJSON(out, view)
		}
		fmt.Fprintf(out, "total %d  blocked %d  flagged %d  approved %d\n\n",
			view.Total, view.Blocked, view.Flagged, view.Approved)
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tDECISION\tSCORE\tOUTCOME\tACTION")
		for _, e := range view.Recent {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", e.ID, e.Decision, e.Score, ledger.OutcomeLabel(e.Outcome), e.Name)
		}
		return tw.Flush()
	},
}
