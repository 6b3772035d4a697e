// Package cli implements oversightctl, the operator command line for the gateway.
package cli

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"oversight.dev/internal/client"
)

var (
	serverURL  string
	authToken  string
	jsonOutput bool
	reqTimeout time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "oversightctl",
	Short: "Evaluate agent actions and resolve approvals",
	Long: `oversightctl talks to a running oversight gateway.

Agents submit actions with "evaluate"; operators list, approve, and deny
requests that await a human decision.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&serverURL, "server", envOr("OVERSIGHT_SERVER", "http://localhost:8080"), "gateway base URL")
	pf.StringVar(&authToken, "token", os.Getenv("OVERSIGHT_TOKEN"), "operator bearer token")
	pf.BoolVar(&jsonOutput, "json", false, "print raw JSON responses")
	pf.DurationVar(&reqTimeout, "timeout", 15*time.Second, "per-request timeout")
}

// Execute runs the root command with os.Args.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func newClient() (*client.Client, error) {
	return client.New(serverURL,
		client.WithToken(authToken),
		client.WithHTTPClient(&http.Client{Timeout: reqTimeout}),
	)
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
