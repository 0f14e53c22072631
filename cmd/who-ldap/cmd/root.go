// Copyright 2026 the who-ldap contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"github.com/spf13/cobra"

	"github.com/m-martinez/who-ldap/internal/here"
)

//nolint:gochecknoglobals
var rootCmd = &cobra.Command{
	Use:   "who-ldap",
	Short: "who-ldap",
	Long: here.Doc(`
		who-ldap checks a who-ldap configuration file against the directories it points at.

		It runs the same authenticators and metadata providers that a host application would.
	`),
	SilenceUsage: true, // do not print usage message when commands fail
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}
