package main

import (
	"time"

	cli "github.com/spf13/cobra"

	"github.com/anarcoiris/FaceGUI/internal/auth"
)

func newTokenCmd(a *app) *cli.Command {
	cmd := &cli.Command{
		Use:   "token OPERATOR",
		Short: "Issue a dashboard API token signed with JWT_SECRET",
		Args:  cli.ExactArgs(1),
		RunE: func(cmd *cli.Command, args []string) error {
			ttl, _ := cmd.Flags().GetDuration("ttl")
			token, err := auth.IssueToken(a.cfg.JWTSecret, args[0], a.cfg.JWTAudience, ttl)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), map[string]string{"token": token})
		},
	}
	cmd.Flags().Duration("ttl", 12*time.Hour, "Token lifetime")
	return cmd
}
