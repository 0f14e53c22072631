// Copyright 2026 the who-ldap contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/m-martinez/who-ldap/internal/constable"
	"github.com/m-martinez/who-ldap/internal/plog"
	"github.com/m-martinez/who-ldap/pkg/who"
)

const errLoginFailed = constable.Error("authentication failed, run again with --log-level debug to see why")

type loginDeps struct {
	getenv          func(key string) string
	loadPlugins     loadPluginsFunc
	setupLogging    func(ctx context.Context, level plog.LogLevel) error
	promptForValue  func(ctx context.Context, promptLabel string, out io.Writer) (string, error)
	promptForSecret func(promptLabel string, out io.Writer) (string, error)
}

func loginRealDeps() loginDeps {
	return loginDeps{
		getenv:          os.Getenv,
		loadPlugins:     loadRealPlugins,
		setupLogging:    setupRealLogging,
		promptForValue:  promptForValue,
		promptForSecret: promptForSecret,
	}
}

//nolint:gochecknoinits
func init() {
	rootCmd.AddCommand(newLoginCommand(loginRealDeps()))
}

type loginFlags struct {
	commonFlags
	authenticator string
	username      string
	outputFormat  string
	noMetadata    bool
}

func newLoginCommand(deps loginDeps) *cobra.Command {
	cmd := &cobra.Command{
		Args:         cobra.NoArgs, // do not accept positional arguments for this command
		Use:          "login",
		Short:        "Log in with an authenticator and print the resulting identity",
		SilenceUsage: true, // do not print usage message when commands fail
	}
	flags := &loginFlags{}

	f := cmd.Flags()
	flags.addFlags(f, deps.getenv)
	f.StringVarP(&flags.authenticator, "authenticator", "a", "", "Authenticator id (default: the only authenticator in the file)")
	f.StringVarP(&flags.username, "username", "u", "", "Login to authenticate as (default: $"+usernameEnvVarName+" or a prompt)")
	f.StringVarP(&flags.outputFormat, "output", "o", "yaml", "Output format (e.g., 'yaml', 'json')")
	f.BoolVar(&flags.noMetadata, "no-metadata", false, "Skip the metadata providers")

	cmd.RunE = func(cmd *cobra.Command, _ []string) error {
		return runLogin(cmd.OutOrStdout(), cmd.ErrOrStderr(), deps, flags)
	}

	return cmd
}

func runLogin(out, errOut io.Writer, deps loginDeps, flags *loginFlags) error {
	ctx, cancel, plugins, err := flags.start(deps.setupLogging, deps.loadPlugins)
	defer cancel()
	if err != nil {
		return err
	}

	auth, err := pickAuthenticator(plugins, flags.authenticator, flags.configPath)
	if err != nil {
		return err
	}

	username := flags.username
	if username == "" {
		username = deps.getenv(usernameEnvVarName)
	}
	if username == "" {
		username, err = deps.promptForValue(ctx, usernamePrompt, errOut)
		if err != nil {
			return fmt.Errorf("error prompting for username: %w", err)
		}
	}

	password := deps.getenv(passwordEnvVarName)
	if password == "" {
		password, err = deps.promptForSecret(passwordPrompt, errOut)
		if err != nil {
			return fmt.Errorf("error prompting for password: %w", err)
		}
	}

	id := who.Identity{who.LoginKey: username, who.PasswordKey: password}
	userID, ok := auth.Authenticate(ctx, id)
	if !ok {
		return errLoginFailed
	}
	id[who.UserIDKey] = userID

	if !flags.noMetadata {
		plugins.AddMetadata(ctx, id)
	}

	if err := writeOutput(out, flags.outputFormat, id.Redacted()); err != nil {
		return fmt.Errorf("could not write output: %w", err)
	}
	return nil
}
