// Copyright 2026 the who-ldap contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package directory

import (
	"errors"
	"fmt"
	"testing"

	"github.com/go-ldap/ldap/v3"
	"github.com/stretchr/testify/require"
)

func TestParseURL(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name       string
		url        string
		want       Endpoint
		wantString string
		wantErr    string
	}{
		{
			name:       "ldap with default port",
			url:        "ldap://ldap.example.org",
			want:       Endpoint{Host: "ldap.example.org", Port: 389},
			wantString: "ldap://ldap.example.org:389",
		},
		{
			name:       "ldaps with default port",
			url:        "ldaps://ldap.example.org",
			want:       Endpoint{Host: "ldap.example.org", Port: 636, UseTLS: true},
			wantString: "ldaps://ldap.example.org:636",
		},
		{
			name:       "explicit port and trailing slash",
			url:        "ldap://127.0.0.1:10389/",
			want:       Endpoint{Host: "127.0.0.1", Port: 10389},
			wantString: "ldap://127.0.0.1:10389",
		},
		{
			name:       "scheme is case insensitive",
			url:        "LDAPS://[2001:db8::1]:1636",
			want:       Endpoint{Host: "2001:db8::1", Port: 1636, UseTLS: true},
			wantString: "ldaps://[2001:db8::1]:1636",
		},
		{
			name:    "wrong scheme",
			url:     "https://ldap.example.org",
			wantErr: `invalid directory URL "https://ldap.example.org": scheme must be "ldap" or "ldaps"`,
		},
		{
			name:    "missing scheme",
			url:     "ldap.example.org:389",
			wantErr: `invalid directory URL "ldap.example.org:389": scheme must be "ldap" or "ldaps"`,
		},
		{
			name:    "base DN in the path",
			url:     "ldap://ldap.example.org/dc=example,dc=org",
			wantErr: `invalid directory URL "ldap://ldap.example.org/dc=example,dc=org": only scheme, host and port are allowed`,
		},
		{
			name:    "user info",
			url:     "ldap://admin@ldap.example.org",
			wantErr: `invalid directory URL "ldap://admin@ldap.example.org": only scheme, host and port are allowed`,
		},
		{
			name:    "missing host",
			url:     "ldap://",
			wantErr: `invalid directory URL "ldap://": host must not be empty`,
		},
		{
			name:    "bad port",
			url:     "ldap://ldap.example.org:0",
			wantErr: `invalid directory URL "ldap://ldap.example.org:0": invalid port "0"`,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ParseURL(tt.url)
			if tt.wantErr != "" {
				require.EqualError(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
			require.Equal(t, tt.wantString, got.String())
		})
	}
}

func TestParseScope(t *testing.T) {
	t.Parallel()
	for input, want := range map[string]Scope{
		"":         Subtree,
		"subtree":  Subtree,
		"SUB":      Subtree,
		"onelevel": OneLevel,
		"One":      OneLevel,
		" one ":    OneLevel,
	} {
		got, err := ParseScope(input)
		require.NoError(t, err, input)
		require.Equal(t, want, got, input)
	}

	for _, input := range []string{"base", "children", "whole"} {
		_, err := ParseScope(input)
		require.EqualError(t, err, `invalid search scope "`+input+`", valid choices are "subtree" and "onelevel"`)
	}

	require.Equal(t, ldap.ScopeWholeSubtree, Subtree.LDAP())
	require.Equal(t, ldap.ScopeSingleLevel, OneLevel.LDAP())
	require.Equal(t, ldap.ScopeBaseObject, Base.LDAP())
	require.Equal(t, "onelevel", OneLevel.String())
}

func TestEscapeDNValue(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want string
	}{
		{in: "", want: ""},
		{in: "carla", want: "carla"},
		{in: "a,dc=evil", want: `a\,dc=evil`},
		{in: `x+y"z;<w>`, want: `x\+y\"z\;\<w\>`},
		{in: `already\,escaped`, want: `already\\\,escaped`},
		{in: "#hash", want: `\#hash`},
		{in: "mid#hash", want: "mid#hash"},
		{in: " padded ", want: `\ padded\ `},
		{in: " ", want: `\ `},
		{in: "nul\x00", want: `nul\00`},
		{in: "ünïcode", want: "ünïcode"},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, EscapeDNValue(tt.in), "input %q", tt.in)
	}
}

func TestDNFor(t *testing.T) {
	t.Parallel()

	require.Equal(t, "uid=carla,ou=people,dc=example,dc=org", DNFor("uid", "carla", "ou=people,dc=example,dc=org"))
	require.Equal(t, "cn=root", DNFor("cn", "root", ""))

	// the escaped value must still parse as a single RDN under the parent
	dn, err := ldap.ParseDN(DNFor("uid", "a,dc=evil", "ou=people,dc=example,dc=org"))
	require.NoError(t, err)
	require.Len(t, dn.RDNs, 4)
	require.Equal(t, "a,dc=evil", dn.RDNs[0].Attributes[0].Value)
}

func TestResultCode(t *testing.T) {
	t.Parallel()

	_, ok := ResultCode(nil)
	require.False(t, ok)

	_, ok = ResultCode(errors.New("plain"))
	require.False(t, ok)

	wrapped := fmt.Errorf("outer: %w", ldap.NewError(ldap.LDAPResultNoSuchObject, errors.New("gone")))
	code, ok := ResultCode(wrapped)
	require.True(t, ok)
	require.Equal(t, uint16(ldap.LDAPResultNoSuchObject), code)
	require.True(t, IsResultCode(wrapped, ldap.LDAPResultBusy, ldap.LDAPResultNoSuchObject))
	require.False(t, IsResultCode(wrapped))
}
