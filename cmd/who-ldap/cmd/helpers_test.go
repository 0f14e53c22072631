// Copyright 2026 the who-ldap contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/m-martinez/who-ldap/internal/here"
	"github.com/m-martinez/who-ldap/internal/plog"
	"github.com/m-martinez/who-ldap/internal/testutil/fakedirectory"
	"github.com/m-martinez/who-ldap/pkg/who"
)

const (
	carlaDN = "uid=carla,ou=people,dc=example,dc=org"
	adminDN = "cn=admin,dc=example,dc=org"
)

var (
	singleAuthenticatorConfig = here.Doc(`
		---
		authenticators:
		  - id: ldap_auth
		    type: search
		    url: ldap://ldap.example.org
		    base_dn: ou=people,dc=example,dc=org
		    bind_dn: cn=admin,dc=example,dc=org
		    bind_pass: admin-password
		    returned_id: login
		mdproviders:
		  - id: ldap_attributes
		    type: attributes
		    url: ldap://ldap.example.org
		    attributes: cn=full_name,mail
		    flatten: true
		  - id: ldap_groups
		    type: groups
		    url: ldap://ldap.example.org
		    base_dn: ou=groups,dc=example,dc=org
		    filterstr: (member={dn})
		    name: groups
	`)

	twoAuthenticatorsConfig = here.Doc(`
		---
		authenticators:
		  - id: first
		    type: pattern
		    url: ldap://ldap.example.org
		    base_dn: ou=people,dc=example,dc=org
		  - id: second
		    type: pattern
		    url: ldap://ldap.example.org
		    base_dn: ou=people,dc=example,dc=org
	`)
)

func newTestDirectory(t *testing.T) *fakedirectory.Directory {
	return fakedirectory.New(t).
		Add("dc=example,dc=org", map[string][]string{"dc": {"example"}}).
		Add(adminDN, map[string][]string{"cn": {"admin"}}).
		Add("ou=people,dc=example,dc=org", map[string][]string{"ou": {"people"}}).
		Add(carlaDN, map[string][]string{
			"uid":  {"carla"},
			"cn":   {"Carla Fernandez"},
			"mail": {"carla@example.org"},
		}).
		Add("ou=groups,dc=example,dc=org", map[string][]string{"ou": {"groups"}}).
		Add("cn=ops,ou=groups,dc=example,dc=org", map[string][]string{
			"cn":     {"ops"},
			"member": {carlaDN},
		}).
		SetPassword(adminDN, "admin-password").
		SetPassword(carlaDN, "hello")
}

func writeConfig(t *testing.T, config string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "who-ldap.yaml")
	require.NoError(t, os.WriteFile(path, []byte(config), 0o600))
	return path
}

func fakeLoadPlugins(d *fakedirectory.Directory) loadPluginsFunc {
	return func(ctx context.Context, path string) (*who.Plugins, error) {
		return who.FromPath(ctx, path, who.WithDialer(d.Dialer()))
	}
}

func noopSetupLogging(_ context.Context, level plog.LogLevel) error {
	switch level {
	case plog.LevelWarning, plog.LevelInfo, plog.LevelDebug, plog.LevelTrace, plog.LevelAll:
		return nil
	default:
		return fmt.Errorf("invalid log level %q", level)
	}
}
