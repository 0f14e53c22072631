// Copyright 2026 the who-ldap contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/term"
	"sigs.k8s.io/yaml"

	"github.com/m-martinez/who-ldap/internal/plog"
	"github.com/m-martinez/who-ldap/pkg/who"
)

const (
	configEnvVarName   = "WHO_LDAP_CONFIG"
	usernameEnvVarName = "WHO_LDAP_USERNAME"
	passwordEnvVarName = "WHO_LDAP_PASSWORD" //nolint:gosec // this is not a credential

	defaultConfigPath = "who-ldap.yaml"

	usernamePrompt = "Username: "
	passwordPrompt = "Password: "
)

type loadPluginsFunc func(ctx context.Context, path string) (*who.Plugins, error)

func loadRealPlugins(ctx context.Context, path string) (*who.Plugins, error) {
	return who.FromPath(ctx, path)
}

func setupRealLogging(ctx context.Context, level plog.LogLevel) error {
	return plog.ValidateAndSetLogLevelAndFormatGlobally(ctx, plog.LogSpec{Level: level, Format: plog.FormatCLI})
}

// commonFlags are shared by every command that loads a configuration file.
type commonFlags struct {
	configPath string
	logLevel   string
	timeout    time.Duration
}

func (c *commonFlags) addFlags(f *pflag.FlagSet, getenv func(string) string) {
	configPath := getenv(configEnvVarName)
	if configPath == "" {
		configPath = defaultConfigPath
	}
	f.StringVarP(&c.configPath, "config", "c", configPath, "Path to the configuration file")
	f.StringVar(&c.logLevel, "log-level", "", "Log level (e.g., 'info', 'debug', 'trace', 'all')")
	f.DurationVar(&c.timeout, "timeout", 0, "Timeout for the whole command (default: 0, meaning no timeout)")
}

// start sets up logging and loads the plugins. The returned cancel func must always be called.
func (c *commonFlags) start(
	setupLogging func(context.Context, plog.LogLevel) error,
	loadPlugins loadPluginsFunc,
) (context.Context, context.CancelFunc, *who.Plugins, error) {
	ctx, cancel := context.Background(), context.CancelFunc(func() {})
	if c.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
	}

	if err := setupLogging(ctx, plog.LogLevel(c.logLevel)); err != nil {
		return ctx, cancel, nil, fmt.Errorf("invalid --log-level: %w", err)
	}

	plugins, err := loadPlugins(ctx, c.configPath)
	if err != nil {
		return ctx, cancel, nil, fmt.Errorf("could not load %s: %w", c.configPath, err)
	}
	return ctx, cancel, plugins, nil
}

func pickAuthenticator(plugins *who.Plugins, id, configPath string) (*who.Authenticator, error) {
	if id == "" {
		if len(plugins.Authenticators) != 1 {
			return nil, fmt.Errorf("%s has %d authenticators, use --authenticator to pick one", configPath, len(plugins.Authenticators))
		}
		return plugins.Authenticators[0], nil
	}
	a, ok := plugins.Authenticator(id)
	if !ok {
		return nil, fmt.Errorf("no authenticator %q in %s", id, configPath)
	}
	return a, nil
}

func writeOutput(out io.Writer, format string, v any) error {
	switch format {
	case "yaml":
		data, err := yaml.Marshal(v)
		if err != nil {
			return err
		}
		_, err = out.Write(data)
		return err
	case "json":
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		encoder.SetEscapeHTML(false) // user data tokens look like "<dn:...>"
		return encoder.Encode(v)
	default:
		return fmt.Errorf("unknown output format: %q", format)
	}
}

func stdin() int { return int(os.Stdin.Fd()) }

func promptForValue(ctx context.Context, promptLabel string, out io.Writer) (string, error) {
	if !term.IsTerminal(stdin()) {
		return "", errors.New("stdin is not connected to a terminal")
	}
	_, err := fmt.Fprint(out, promptLabel)
	if err != nil {
		return "", fmt.Errorf("could not print prompt to stderr: %w", err)
	}

	type readResult struct {
		text string
		err  error
	}
	readResults := make(chan readResult)
	go func() {
		text, err := bufio.NewReader(os.Stdin).ReadString('\n')
		readResults <- readResult{text, err}
		close(readResults)
	}()

	// the read stays blocked in the background when ctx is canceled
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-readResults:
		return strings.TrimSpace(r.text), r.err
	}
}

func promptForSecret(promptLabel string, out io.Writer) (string, error) {
	if !term.IsTerminal(stdin()) {
		return "", errors.New("stdin is not connected to a terminal")
	}
	_, err := fmt.Fprint(out, promptLabel)
	if err != nil {
		return "", fmt.Errorf("could not print prompt to stderr: %w", err)
	}
	password, err := term.ReadPassword(stdin())
	if err != nil {
		return "", fmt.Errorf("could not read password: %w", err)
	}
	// term.ReadPassword swallows the newline typed by the user
	_, err = fmt.Fprint(out, "\n")
	if err != nil {
		return "", fmt.Errorf("could not print newline to stderr: %w", err)
	}
	return string(password), err
}
