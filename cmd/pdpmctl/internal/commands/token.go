package commands

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/hfjohn123/Anthuria-sub001/internal/auth"
)

func tokenCommand(_ *options) *cobra.Command {
	var (
		subject string
		scopes  []string
		ttl     time.Duration
		issuer  string
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for the HTTP API",
		Long:  "Signs an HS256 token with the key in PDPM_AUTH_SIGNING_KEY.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			key := os.Getenv("PDPM_AUTH_SIGNING_KEY")
			if len(key) < 16 {
				return errors.New("PDPM_AUTH_SIGNING_KEY must be set to at least 16 bytes")
			}
			token, err := auth.NewTokenManager(key, issuer).Issue(subject, scopes, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "token subject")
	cmd.Flags().StringSliceVar(&scopes, "scope", []string{auth.ScopeRead}, "granted scopes")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	cmd.Flags().StringVar(&issuer, "issuer", os.Getenv("PDPM_AUTH_ISSUER"), "token issuer")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}
