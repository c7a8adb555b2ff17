// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatekeep Contributors

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/gatekeep/gatekeep/internal/auth"
)

// identityFlags are the identity proof fields shared by verify-identity and reset-password.
type identityFlags struct {
	username string
	email    string
	lastName string
}

func (f *identityFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.username, "username", "", "account username")
	cmd.Flags().StringVar(&f.email, "email", "", "email address on record")
	cmd.Flags().StringVar(&f.lastName, "last-name", "", "last name on record")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("last-name")
}

func newRegisterCmd(deps *Deps) *cobra.Command {
	req := auth.RegisterRequest{}

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account",
		Long: `Create an account and print its generated username.
The password is read from stdin.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			password, err := readSecret(cmd, "Password: ")
			if err != nil {
				return err
			}
			req.Password = password

			return deps.runWithApp(cmd, func(ctx context.Context, a *app) error {
				username, err := a.authn.Register(ctx, req)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Registered %s\n", username)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&req.FirstName, "first-name", "", "first name")
	cmd.Flags().StringVar(&req.LastName, "last-name", "", "last name")
	cmd.Flags().StringVar(&req.Email, "email", "", "email address")
	_ = cmd.MarkFlagRequired("first-name")
	_ = cmd.MarkFlagRequired("last-name")
	_ = cmd.MarkFlagRequired("email")

	return cmd
}

func newLoginCmd(deps *Deps) *cobra.Command {
	var username string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authenticate and print a session token",
		Long: `Check a username and password and print a signed session token.
The password is read from stdin. Repeated failures lock the account until
its password is reset.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			password, err := readSecret(cmd, "Password: ")
			if err != nil {
				return err
			}

			return deps.runWithApp(cmd, func(ctx context.Context, a *app) error {
				result, err := a.authn.Login(ctx, auth.LoginRequest{Username: username, Password: password})
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintln(out, result.Token)
				fmt.Fprintf(out, "# user=%s role=%s expires=%s\n",
					result.Username, result.Role, result.ExpiresAt.UTC().Format(time.RFC3339))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&username, "username", "", "account username")
	_ = cmd.MarkFlagRequired("username")

	return cmd
}

func newVerifyIdentityCmd(deps *Deps) *cobra.Command {
	id := &identityFlags{}

	cmd := &cobra.Command{
		Use:   "verify-identity",
		Short: "Check identity details against an account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return deps.runWithApp(cmd, func(ctx context.Context, a *app) error {
				ok, err := a.authn.VerifyIdentity(ctx, id.username, id.email, id.lastName)
				if err != nil {
					return err
				}
				if !ok {
					return oops.Code(auth.CodeIdentityVerificationFailed).Wrap(auth.ErrIdentityVerificationFailed)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Identity verified")
				return nil
			})
		},
	}
	id.register(cmd)

	return cmd
}

func newResetPasswordCmd(deps *Deps) *cobra.Command {
	id := &identityFlags{}

	cmd := &cobra.Command{
		Use:   "reset-password",
		Short: "Replace a password after identity verification",
		Long: `Verify the username, email and last name, then replace the password
and clear the failed-login counter. The new password is read from stdin.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			password, err := readSecret(cmd, "New password: ")
			if err != nil {
				return err
			}

			return deps.runWithApp(cmd, func(ctx context.Context, a *app) error {
				if _, err := a.authn.ResetPassword(ctx, auth.ResetRequest{
					Username:    id.username,
					Email:       id.email,
					LastName:    id.lastName,
					NewPassword: password,
				}); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Password reset")
				return nil
			})
		},
	}
	id.register(cmd)

	return cmd
}

func newShowCmd(deps *Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "show <username>",
		Short: "Show an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return deps.runWithApp(cmd, func(ctx context.Context, a *app) error {
				account, err := a.authn.Lookup(ctx, args[0])
				if err != nil {
					return err
				}
				failures, err := a.tracker.Failures(ctx, account.Username)
				if err != nil {
					return err
				}
				printAccount(cmd, account)
				fmt.Fprintf(cmd.OutOrStdout(), "failed logins: %d/%d\n", failures, a.cfg.Lockout.Threshold)
				return nil
			})
		},
	}
}

func newUpdateCmd(deps *Deps) *cobra.Command {
	var (
		patch        auth.AccountUpdate
		readPassword bool
	)

	cmd := &cobra.Command{
		Use:   "update <username>",
		Short: "Update account profile fields",
		Long: `Update the given fields of an account; omitted fields are kept.
With --password-stdin the new password is read from stdin.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if readPassword {
				password, err := readSecret(cmd, "New password: ")
				if err != nil {
					return err
				}
				if err := auth.CheckPassword(password); err != nil {
					return err
				}
				patch.Password = password
			}
			if patch.IsEmpty() {
				return oops.Code(auth.CodeInvalidRequest).Errorf("nothing to update")
			}

			return deps.runWithApp(cmd, func(ctx context.Context, a *app) error {
				account, err := a.authn.UpdateAccount(ctx, args[0], patch)
				if err != nil {
					return err
				}
				printAccount(cmd, account)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&patch.FirstName, "first-name", "", "new first name")
	cmd.Flags().StringVar(&patch.LastName, "last-name", "", "new last name")
	cmd.Flags().StringVar(&patch.Email, "email", "", "new email address")
	cmd.Flags().StringVar(&patch.Username, "new-username", "", "new username")
	cmd.Flags().BoolVar(&readPassword, "password-stdin", false, "read a new password from stdin")

	return cmd
}

func newDeleteCmd(deps *Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <username>",
		Short: "Delete an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return deps.runWithApp(cmd, func(ctx context.Context, a *app) error {
				if err := a.authn.DeleteAccount(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", auth.NormalizeUsername(args[0]))
				return nil
			})
		},
	}
}

func newUnlockCmd(deps *Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "unlock <username>",
		Short: "Clear the failed-login counter of an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return deps.runWithApp(cmd, func(ctx context.Context, a *app) error {
				if err := a.authn.Unlock(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Unlocked %s\n", auth.NormalizeUsername(args[0]))
				return nil
			})
		},
	}
}

func newSetRoleCmd(deps *Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "set-role <username> <USER|ADMIN>",
		Short: "Change the role tag of an account",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			role, err := auth.ParseRole(args[1])
			if err != nil {
				return err
			}
			return deps.runWithApp(cmd, func(ctx context.Context, a *app) error {
				account, err := a.authn.SetRole(ctx, args[0], role)
				if err != nil {
					return err
				}
				printAccount(cmd, account)
				return nil
			})
		},
	}
}

func printAccount(cmd *cobra.Command, account *auth.Account) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "id:         %d\n", account.ID)
	fmt.Fprintf(out, "username:   %s\n", account.Username)
	fmt.Fprintf(out, "first name: %s\n", account.FirstName)
	fmt.Fprintf(out, "last name:  %s\n", account.LastName)
	fmt.Fprintf(out, "email:      %s\n", account.Email)
	fmt.Fprintf(out, "role:       %s\n", account.Role)
}
