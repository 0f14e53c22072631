// Copyright 2026 the who-ldap contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package authenticator

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/m-martinez/who-ldap/internal/directory"
	"github.com/m-martinez/who-ldap/internal/endpointaddr"
)

const (
	testURL          = "ldap://ldap.example.org"
	testBaseDN       = "ou=people,dc=example,dc=org"
	testBindDN       = "cn=admin,dc=example,dc=org"
	testBindPassword = "admin-password"
	testLogin        = "carla"
	testPassword     = "hello"
	testUserDN       = "uid=carla,ou=people,dc=example,dc=org"
)

// newQueueConnector returns a connector that hands out conns in order and fails the test on any extra dial.
// When dialErr is set every dial fails with it.
func newQueueConnector(t *testing.T, dialErr error, conns ...directory.Conn) (*directory.Connector, func() int) {
	t.Helper()

	dials := 0
	c, err := directory.NewConnector(directory.Config{
		URL: testURL,
		Dialer: directory.DialerFunc(func(_ context.Context, addr endpointaddr.HostPort) (directory.Conn, error) {
			require.Equal(t, endpointaddr.HostPort{Host: "ldap.example.org", Port: 389}, addr)
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

type logLine map[string]any

func parseLog(t *testing.T, buf *bytes.Buffer) []logLine {
	t.Helper()

	var lines []logLine
	scanner := bufio.NewScanner(buf)
	for scanner.Scan() {
		var line logLine
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &line), scanner.Text())
		lines = append(lines, line)
	}
	require.NoError(t, scanner.Err())
	return lines
}
