// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatekeep Contributors

package main

import (
	"github.com/spf13/cobra"

	"github.com/gatekeep/gatekeep/internal/config"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the gatekeep CLI.
func NewRootCmd() *cobra.Command {
	return newRootCmdWithDeps(nil)
}

func newRootCmdWithDeps(deps *Deps) *cobra.Command {
	deps = deps.withDefaults()

	cmd := &cobra.Command{
		Use:   "gatekeep",
		Short: "gatekeep - account authentication and credential lifecycle",
		Long: `gatekeep manages accounts: registration, login with failed-login lockout,
identity-verified password reset and signed session tokens.

Configuration is read from --config (default: $XDG_CONFIG_HOME/gatekeep/gatekeep.yaml),
then GATEKEEP_SIGNING_KEY and DATABASE_URL, then explicit flags.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")
	config.RegisterFlags(cmd.PersistentFlags())

	cmd.AddCommand(newRegisterCmd(deps))
	cmd.AddCommand(newLoginCmd(deps))
	cmd.AddCommand(newVerifyIdentityCmd(deps))
	cmd.AddCommand(newResetPasswordCmd(deps))
	cmd.AddCommand(newShowCmd(deps))
	cmd.AddCommand(newUpdateCmd(deps))
	cmd.AddCommand(newDeleteCmd(deps))
	cmd.AddCommand(newUnlockCmd(deps))
	cmd.AddCommand(newSetRoleCmd(deps))
	cmd.AddCommand(newWhoamiCmd(deps))
	cmd.AddCommand(newMigrateCmd(deps))
	cmd.AddCommand(newServeCmd(deps))
	cmd.AddCommand(newStatusCmd(deps))

	return cmd
}
