// Copyright 2026 the who-ldap contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package metadata

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/m-martinez/who-ldap/internal/directory"
	"github.com/m-martinez/who-ldap/internal/endpointaddr"
)

const (
	testBindDN       = "cn=admin,dc=example,dc=org"
	testBindPassword = "admin-password"
	testUserDN       = "uid=carla,ou=people,dc=example,dc=org"
	testGroupsBaseDN = "ou=groups,dc=example,dc=org"
)

// newQueueConnector returns a connector that hands out conns in order and fails the test on any extra dial.
func newQueueConnector(t *testing.T, dialErr error, conns ...directory.Conn) (*directory.Connector, func() int) {
	t.Helper()

	dials := 0
	c, err := directory.NewConnector(directory.Config{
		URL: "ldaps://ldap.example.org",
		Dialer: directory.DialerFunc(func(_ context.Context, addr endpointaddr.HostPort) (directory.Conn, error) {
			require.Equal(t, endpointaddr.HostPort{Host: "ldap.example.org", Port: 636}, addr)
			dials++
			if dialErr != nil {
				return nil, dialErr
			}
			require.LessOrEqual(t, dials, len(conns), "unexpected dial")
			return conns[dials-1], nil
		}),
	})
	require.NoError(t, err)

	return c, func() int { return dials }
}
