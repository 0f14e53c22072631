// Copyright 2026 the who-ldap contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/m-martinez/who-ldap/internal/plog"
)

type testConnectionDeps struct {
	getenv       func(key string) string
	loadPlugins  loadPluginsFunc
	setupLogging func(ctx context.Context, level plog.LogLevel) error
}

func testConnectionRealDeps() testConnectionDeps {
	return testConnectionDeps{
		getenv:       os.Getenv,
		loadPlugins:  loadRealPlugins,
		setupLogging: setupRealLogging,
	}
}

//nolint:gochecknoinits
func init() {
	rootCmd.AddCommand(newTestConnectionCommand(testConnectionRealDeps()))
}

func newTestConnectionCommand(deps testConnectionDeps) *cobra.Command {
	cmd := &cobra.Command{
		Args:         cobra.NoArgs, // do not accept positional arguments for this command
		Use:          "test-connection",
		Short:        "Connect to the directory of every plugin and bind as its service account",
		SilenceUsage: true, // do not print usage message when commands fail
	}
	flags := &commonFlags{}
	flags.addFlags(cmd.Flags(), deps.getenv)

	cmd.RunE = func(cmd *cobra.Command, _ []string) error {
		return runTestConnection(cmd.OutOrStdout(), deps, flags)
	}

	return cmd
}

const maxConcurrentChecks = 8

type connectionTester interface {
	Name() string
	TestConnection(ctx context.Context) error
}

func runTestConnection(out io.Writer, deps testConnectionDeps, flags *commonFlags) error {
	ctx, cancel, plugins, err := flags.start(deps.setupLogging, deps.loadPlugins)
	defer cancel()
	if err != nil {
		return err
	}

	type check struct {
		kind string
		connectionTester
	}
	var checks []check
	for _, a := range plugins.Authenticators {
		checks = append(checks, check{"authenticator", a})
	}
	for _, m := range plugins.MetadataProviders {
		checks = append(checks, check{"metadata provider", m})
	}

	results := make([]error, len(checks))
	var eg errgroup.Group
	eg.SetLimit(maxConcurrentChecks)
	for i, c := range checks {
		eg.Go(func() error {
			results[i] = c.TestConnection(ctx)
			return nil
		})
	}
	_ = eg.Wait() // every check reports through results

	failed := 0
	for i, c := range checks {
		status := "ok"
		if err := results[i]; err != nil {
			failed++
			status = err.Error()
		}
		fmt.Fprintf(out, "%s %s: %s\n", c.kind, c.Name(), status)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d plugins could not connect", failed, len(checks))
	}
	return nil
}
