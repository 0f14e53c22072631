// Copyright 2026 the who-ldap contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/m-martinez/who-ldap/internal/plog"
)

type resolveDeps struct {
	getenv       func(key string) string
	loadPlugins  loadPluginsFunc
	setupLogging func(ctx context.Context, level plog.LogLevel) error
}

func resolveRealDeps() resolveDeps {
	return resolveDeps{
		getenv:       os.Getenv,
		loadPlugins:  loadRealPlugins,
		setupLogging: setupRealLogging,
	}
}

//nolint:gochecknoinits
func init() {
	rootCmd.AddCommand(newResolveCommand(resolveRealDeps()))
}

type resolveFlags struct {
	commonFlags
	authenticator string
}

func newResolveCommand(deps resolveDeps) *cobra.Command {
	cmd := &cobra.Command{
		Args:         cobra.ExactArgs(1),
		Use:          "resolve-dn LOGIN",
		Short:        "Print the DN that a login would bind as, without binding",
		SilenceUsage: true, // do not print usage message when commands fail
	}
	flags := &resolveFlags{}

	f := cmd.Flags()
	flags.addFlags(f, deps.getenv)
	f.StringVarP(&flags.authenticator, "authenticator", "a", "", "Authenticator id (default: the only authenticator in the file)")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return runResolve(cmd.OutOrStdout(), deps, flags, args[0])
	}

	return cmd
}

func runResolve(out io.Writer, deps resolveDeps, flags *resolveFlags, login string) error {
	ctx, cancel, plugins, err := flags.start(deps.setupLogging, deps.loadPlugins)
	defer cancel()
	if err != nil {
		return err
	}

	auth, err := pickAuthenticator(plugins, flags.authenticator, flags.configPath)
	if err != nil {
		return err
	}

	dn, err := auth.ResolveDN(ctx, login)
	if err != nil {
		return fmt.Errorf("could not resolve %q: %w", login, err)
	}
	_, err = fmt.Fprintln(out, dn)
	return err
}
