package main

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/cobra"

	"github.com/noah-isme/sma-activity-planner/internal/dto"
	"github.com/noah-isme/sma-activity-planner/internal/service"
)

func newTokenCommand(a *app) *cobra.Command {
	req := dto.IssueTokenRequest{}
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an API access token signed with JWT_SECRET",
		Long: `token mints a bearer token for the API. It is how the first ADMIN token is
created; administrators can then issue further tokens over POST /auth/tokens.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			auth := service.NewAuthService(validator.New(), a.logger, service.AuthConfig{
				AccessTokenSecret: a.cfg.JWT.Secret,
				AccessTokenExpiry: a.cfg.JWT.Expiration,
				Issuer:            a.cfg.JWT.Issuer,
			})
			req.TTL = ttl
			token, err := auth.IssueToken(req)
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, token.AccessToken)
			return nil
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&req.UserID, "user", "", "Subject user id")
	flags.StringVar(&req.Role, "role", "PLANNER", "ADMIN, PLANNER or VIEWER")
	flags.StringVar(&req.Email, "email", "", "Optional e-mail claim")
	flags.StringVar(&req.FullName, "name", "", "Optional display name claim")
	flags.DurationVar(&ttl, "ttl", 0, "Token lifetime (default JWT_EXPIRATION)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
