package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"oversight.dev/internal/approval"
)

var resolveActor string

func init() {
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(pendingCmd)
	rootCmd.AddCommand(approveCmd)
	rootCmd.AddCommand(denyCmd)

	for _, cmd := range []*cobra.Command{approveCmd, denyCmd} {
		cmd.Flags().StringVar(&resolveActor, "actor", "", "operator name recorded on the request (ignored with --token)")
	}
}

var statusCmd = &cobra.Command{
	Use:   "status <id>",
	Short: "Show an approval request",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		rec, err := c.ApprovalStatus(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			return writeJSON(cmd.OutOrStdout(), rec)
		}
		printRecord(cmd.OutOrStdout(), rec)
		return nil
	},
}

var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "List requests awaiting a decision",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		items, err := c.Pending(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if jsonOutput {
			return writeJSON(out, items)
		}
		if len(items) == 0 {
			fmt.Fprintln(out, "no pending approvals")
			return nil
		}
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tACTION\tCREATED\tDESCRIPTION")
		for _, rec := range items {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", rec.ID, rec.Name, rec.CreatedAt.Format(time.RFC3339), rec.Description)
		}
		return tw.Flush()
	},
}

var approveCmd = &cobra.Command{
	Use:   "approve <id>",
	Short: "Approve an awaiting action",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runResolve(cmd, args[0], approval.StatusApproved)
	},
}

var denyCmd = &cobra.Command{
	Use:   "deny <id>",
	Short: "Deny an awaiting action",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runResolve(cmd, args[0], approval.StatusDenied)
	},
}

func runResolve(cmd *cobra.Command, id string, status approval.Status) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	var res approval.Result
	if status == approval.StatusApproved {
		res, err = c.Approve(cmd.Context(), id, resolveActor)
	} else {
		res, err = c.Deny(cmd.Context(), id, resolveActor)
	}
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if jsonOutput {
		return writeJSON(out, res)
	}
	if res.AlreadyResolved {
		fmt.Fprintf(out, "%s was already %s", res.ID, res.Status)
		if res.Actor != "" {
			fmt.Fprintf(out, " by %s", res.Actor)
		}
		fmt.Fprintln(out)
		return nil
	}
	fmt.Fprintf(out, "%s %s\n", res.ID, res.Status)
	return nil
}

func printRecord(out io.Writer, rec approval.Record) {
	fmt.Fprintf(out, "id:          %s\n", rec.ID)
	fmt.Fprintf(out, "status:      %s\n", rec.Status)
	fmt.Fprintf(out, "action:      %s\n", rec.Name)
	fmt.Fprintf(out, "description: %s\n", rec.Description)
	fmt.Fprintf(out, "created:     %s\n", rec.CreatedAt.Format(time.RFC3339))
	if rec.ExpiresAt != nil {
		fmt.Fprintf(out, "expires:     %s\n", rec.ExpiresAt.Format(time.RFC3339))
	}
	if rec.ResolvedAt != nil {
		fmt.Fprintf(out, "resolved:    %s\n", rec.ResolvedAt.Format(time.RFC3339))
	}
	if rec.Actor != "" {
		fmt.Fprintf(out, "actor:       %s\n", rec.Actor)
	}
	if rec.Reason != "" {
		fmt.Fprintf(out, "reason:      %s\n", rec.Reason)
	}
}
