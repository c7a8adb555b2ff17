// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatekeep Contributors

package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/gatekeep/gatekeep/internal/auth"
)

func newWhoamiCmd(deps *Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Verify a session token and print its claims",
		Long: `Read a session token from stdin, verify its signature, issuer and
expiry, and print the account it was issued for.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := deps.loadConfig(cmd)
			if err != nil {
				return err
			}
			issuer, err := auth.NewJWTIssuer(cfg.SessionConfig())
			if err != nil {
				return err
			}

			token, err := readSecret(cmd, "")
			if err != nil {
				return err
			}

			claims, err := issuer.Parse(strings.TrimSpace(token))
			if err != nil {
				return err
			}
			accountID, err := claims.AccountID()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "account:  %d\n", accountID)
			fmt.Fprintf(out, "username: %s\n", claims.Username)
			fmt.Fprintf(out, "role:     %s\n", claims.Role)
			fmt.Fprintf(out, "token id: %s\n", claims.ID)
			fmt.Fprintf(out, "expires:  %s\n", claims.ExpiresAt.UTC().Format(time.RFC3339))
			return nil
		},
	}
}
