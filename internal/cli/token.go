package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"oversight.dev/internal/auth"
)

var (
	tokenSecret  string
	tokenSubject string
	tokenRoles   string
	tokenTTL     time.Duration
)

func init() {
	rootCmd.AddCommand(tokenCmd)

	tokenCmd.Flags().StringVar(&tokenSecret, "secret", "", "signing secret (default $OVERSIGHT_AUTH_SECRET)")
	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "", "operator name carried as the token subject (required)")
	tokenCmd.Flags().StringVar(&tokenRoles, "roles", auth.RoleOperator, "comma-separated roles")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime")
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint an operator token signed with the gateway secret",
	Long: `Sign a bearer token locally. The secret must match the gateway's
auth.secret; the subject is recorded as the actor on every approval the
token resolves.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		secret := tokenSecret
		if secret == "" {
			secret = os.Getenv("OVERSIGHT_AUTH_SECRET")
		}
		if secret == "" {
			return errors.New("missing secret: provide --secret or OVERSIGHT_AUTH_SECRET")
		}
		issuer, err := auth.NewIssuer(secret)
		if err != nil {
			return err
		}
		var roles []string
		for _, r := range strings.Split(tokenRoles, ",") {
			if r = strings.TrimSpace(r); r != "" {
				roles = append(roles, r)
			}
		}
		signed, expires, err := issuer.GenerateToken(tokenSubject, roles, tokenTTL)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if jsonOutput {
			return writeJSON(out, map[string]any{"token": signed, "expiresAt": expires})
		}
		fmt.Fprintln(out, signed)
		return nil
	},
}
