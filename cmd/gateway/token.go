package main

import (
	"errors"
	"fmt"
	"time"

	"admission-gateway/middleware/admission/application"
	"admission-gateway/middleware/admission/domain"

	"github.com/spf13/cobra"
)

func newTokenCmd() *cobra.Command {
	var (
		id    string
		email string
		role  string
		ttl   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a signed access token with AUTH_JWT_SECRET",
		Example: `  gateway token --id u-42 --email ana@example.com --role publisher
  gateway token --id root --email ops@example.com --role admin --ttl 1h`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e := &envReader{}
			auth := readAuthConfig(e)
			if err := errors.Join(e.errs...); err != nil {
				return fmt.Errorf("config error: %w", err)
			}
			if ttl > 0 {
				auth.tokenTTL = ttl
			}

			res, err := application.NewIdentityResolver(auth.identity())
			if err != nil {
				return err
			}
			tok, err := res.IssueToken(domain.Principal{ID: id, Email: email, Role: domain.Role(role)})
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), tok)
			return err
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "principal id (token subject)")
	cmd.Flags().StringVar(&email, "email", "", "principal email")
	cmd.Flags().StringVar(&role, "role", "", "publisher, advertiser or admin")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (default AUTH_TOKEN_TTL)")
	_ = cmd.MarkFlagRequired("id")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("role")
	return cmd
}
