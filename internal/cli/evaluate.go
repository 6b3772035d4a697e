package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"oversight.dev/internal/action"
	"oversight.dev/internal/gateway"
)

var (
	evaluateName         string
	evaluateDescription  string
	evaluateDomain       string
	evaluateParams       string
	evaluateIrreversible bool
	evaluateWait         bool
	evaluatePoll         time.Duration
)

func init() {
	rootCmd.AddCommand(evaluateCmd)

	evaluateCmd.Flags().StringVar(&evaluateName, "name", "", "action name (required)")
	evaluateCmd.Flags().StringVar(&evaluateDescription, "description", "", "human-readable description (required)")
	evaluateCmd.Flags().StringVar(&evaluateDomain, "domain", "", "action domain (finance, filesystem, ...)")
	evaluateCmd.Flags().StringVar(&evaluateParams, "params", "", "action parameters as a JSON object")
	evaluateCmd.Flags().BoolVar(&evaluateIrreversible, "irreversible", false, "the action cannot be undone")
	evaluateCmd.Flags().BoolVar(&evaluateWait, "wait", false, "block until an awaiting action is approved or denied")
	evaluateCmd.Flags().DurationVar(&evaluatePoll, "poll", 2*time.Second, "status poll interval with --wait")
}

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Score an action and print the gateway decision",
	Long: `Submit an action descriptor to the gateway.

With --wait an "await" decision polls the approval until an operator
resolves it or the request expires.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		desc := action.Descriptor{
			Name:        evaluateName,
			Description: evaluateDescription,
			Domain:      evaluateDomain,
		}
		if cmd.Flags().Changed("irreversible") {
			reversible := !evaluateIrreversible
			desc.Reversible = &reversible
		}
		if evaluateParams != "" {
			if !json.Valid([]byte(evaluateParams)) {
				return errors.New("--params must be valid JSON")
			}
			desc.Parameters = json.RawMessage(evaluateParams)
		}
		if err := desc.Validate(); err != nil {
			return err
		}

		c, err := newClient()
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		ev, err := c.Evaluate(ctx, desc)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if jsonOutput {
			if err := writeJSON(out, ev); err != nil {
				return err
			}
		} else {
			printEvaluation(out, ev)
		}

		if !evaluateWait || ev.Decision != action.DecisionAwait {
			return nil
		}
		rec, err := c.WaitForResolution(ctx, ev.ID, evaluatePoll)
		if err != nil {
			return err
		}
		if jsonOutput {
			return writeJSON(out, rec)
		}
		fmt.Fprintf(out, "resolution: %s", rec.Status)
		if rec.Actor != "" {
			fmt.Fprintf(out, " by %s", rec.Actor)
		}
		fmt.Fprintln(out)
		return nil
	},
}

func printEvaluation(out io.Writer, ev gateway.Evaluation) {
	fmt.Fprintf(out, "id:       %s\n", ev.ID)
	fmt.Fprintf(out, "decision: %s\n", ev.Decision)
	fmt.Fprintf(out, "risk:     %d/10\n", ev.RiskScore)
	for _, f := range ev.Factors {
		fmt.Fprintf(out, "  - %s\n", f)
	}
	fmt.Fprintln(out, ev.Message)
}
