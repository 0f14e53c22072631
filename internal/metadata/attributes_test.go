// Copyright 2026 the who-ldap contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package metadata

import (
	"context"
	"errors"
	"testing"

	"github.com/go-ldap/ldap/v3"
	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/m-martinez/who-ldap/internal/attrmap"
	"github.com/m-martinez/who-ldap/internal/directory"
	"github.com/m-martinez/who-ldap/internal/identity"
	"github.com/m-martinez/who-ldap/internal/metrics"
	"github.com/m-martinez/who-ldap/internal/mocks/mockldapconn"
	"github.com/m-martinez/who-ldap/internal/userdata"
)

func mustMap(t *testing.T, list string) attrmap.Map {
	t.Helper()
	m, err := attrmap.FromCommaList(list)
	require.NoError(t, err)
	return m
}

func TestNewAttributeFetcher(t *testing.T) {
	t.Parallel()

	connector, _ := newQueueConnector(t, nil)

	_, err := NewAttributeFetcher(AttributeConfig{Name: "attrs"})
	require.EqualError(t, err, `metadata provider "attrs": a directory connector is required`)

	_, err = NewAttributeFetcher(AttributeConfig{Name: "attrs", Connector: connector, BindDN: testBindDN})
	require.EqualError(t, err, `metadata provider "attrs": bind_dn and bind_pass must be set together`)

	_, err = NewAttributeFetcher(AttributeConfig{Name: "attrs", Connector: connector, Filter: "(uid={login}"})
	require.ErrorContains(t, err, `metadata provider "attrs": invalid filterstr "(uid={login}"`)

	_, err = NewAttributeFetcher(AttributeConfig{Name: "attrs", Connector: connector, Filter: "(uid={identity['login']})"})
	require.EqualError(t, err, `metadata provider "attrs": invalid filterstr "(uid={identity['login']})": {identity['login']} does not name an identity key, use {dn} or {<key>}`)

	f, err := NewAttributeFetcher(AttributeConfig{Name: "attrs", Connector: connector, Filter: "(&(objectClass=person)(uid={login}))"})
	require.NoError(t, err)
	require.Equal(t, "attrs", f.Name())
	require.Equal(t, userdata.Plain, f.c.Codec)
}

func TestFetchAttributes(t *testing.T) {
	t.Parallel()

	expectedSearch := func(editFunc func(r *ldap.SearchRequest)) *ldap.SearchRequest {
		request := &ldap.SearchRequest{
			BaseDN:       testUserDN,
			Scope:        ldap.ScopeBaseObject,
			DerefAliases: ldap.NeverDerefAliases,
			SizeLimit:    0,
			TimeLimit:    90,
			TypesOnly:    false,
			Filter:       "(objectClass=*)",
			Attributes:   []string{"*"},
			Controls:     nil,
		}
		if editFunc != nil {
			editFunc(request)
		}
		return request
	}
	carla := ldap.NewEntry(testUserDN, map[string][]string{
		"uid":        {"carla"},
		"cn":         {"Carla"},
		"mail":       {"carla@example.org", "c@example.org"},
		"entryUUID":  {"0b6e3c8e"},
		"objectSide": {},
	})
	withToken := func() identity.Identity {
		return identity.Identity{"login": "carla", "userdata": userdata.Encode("", testUserDN)}
	}

	tests := []struct {
		name        string
		config      func(c *AttributeConfig)
		identity    identity.Identity
		anonymous   bool
		searchMocks func(conn *mockldapconn.MockConn)
		dialErr     error
		wantDials   int
		want        map[string]any
		wantErrIs   error
		wantErr     string
	}{
		{
			name:     "all attributes of the entry named by the token",
			identity: withToken(),
			searchMocks: func(conn *mockldapconn.MockConn) {
				conn.EXPECT().Search(expectedSearch(nil)).Return(&ldap.SearchResult{Entries: []*ldap.Entry{carla}}, nil)
			},
			wantDials: 1,
			want: map[string]any{
				"uid":        []string{"carla"},
				"cn":         []string{"Carla"},
				"mail":       []string{"carla@example.org", "c@example.org"},
				"entryUUID":  []string{"0b6e3c8e"},
				"objectSide": []string{},
			},
		},
		{
			name: "mapped and flattened",
			config: func(c *AttributeConfig) {
				c.Attributes = mustMap(t, "uid,cn=name,mail")
				c.Flatten = true
			},
			identity: withToken(),
			searchMocks: func(conn *mockldapconn.MockConn) {
				conn.EXPECT().Search(expectedSearch(func(r *ldap.SearchRequest) {
					r.Attributes = []string{"uid", "cn", "mail"}
				})).Return(&ldap.SearchResult{Entries: []*ldap.Entry{carla}}, nil)
			},
			wantDials: 1,
			want: map[string]any{
				"uid":  "carla",
				"name": "Carla",
				"mail": []string{"carla@example.org", "c@example.org"},
			},
		},
		{
			name:      "user id fallback with an anonymous connection",
			identity:  identity.Identity{"repoze.who.userid": testUserDN},
			anonymous: true,
			config:    func(c *AttributeConfig) { c.Attributes = mustMap(t, "uid") },
			searchMocks: func(conn *mockldapconn.MockConn) {
				conn.EXPECT().Search(expectedSearch(func(r *ldap.SearchRequest) {
					r.Attributes = []string{"uid"}
				})).Return(&ldap.SearchResult{Entries: []*ldap.Entry{carla}}, nil)
			},
			wantDials: 1,
			want:      map[string]any{"uid": []string{"carla"}},
		},
		{
			name: "filter search uses the first entry",
			config: func(c *AttributeConfig) {
				c.BaseDN = "dc=example,dc=org"
				c.Filter = "(&(objectClass=person)(uid={login}))"
				c.Attributes = mustMap(t, "cn")
				c.Flatten = true
			},
			identity: identity.Identity{"login": "ca*rla"},
			searchMocks: func(conn *mockldapconn.MockConn) {
				conn.EXPECT().Search(expectedSearch(func(r *ldap.SearchRequest) {
					r.BaseDN = "dc=example,dc=org"
					r.Scope = ldap.ScopeWholeSubtree
					r.Filter = `(&(objectClass=person)(uid=ca\2arla))`
					r.Attributes = []string{"cn"}
				})).Return(&ldap.SearchResult{Entries: []*ldap.Entry{
					ldap.NewEntry("uid=first,dc=example,dc=org", map[string][]string{"cn": {"First"}}),
					ldap.NewEntry("uid=second,dc=example,dc=org", map[string][]string{"cn": {"Second"}}),
				}}, nil)
			},
			wantDials: 1,
			want:      map[string]any{"cn": "First"},
		},
		{
			name: "identity[key] placeholders",
			config: func(c *AttributeConfig) {
				c.BaseDN = "dc=example,dc=org"
				c.Filter = "(uid={identity[login]})"
				c.Attributes = mustMap(t, "uid")
			},
			identity: identity.Identity{"login": "carla"},
			searchMocks: func(conn *mockldapconn.MockConn) {
				conn.EXPECT().Search(expectedSearch(func(r *ldap.SearchRequest) {
					r.BaseDN = "dc=example,dc=org"
					r.Scope = ldap.ScopeWholeSubtree
					r.Filter = "(uid=carla)"
					r.Attributes = []string{"uid"}
				})).Return(&ldap.SearchResult{Entries: []*ldap.Entry{carla}}, nil)
			},
			wantDials: 1,
			want:      map[string]any{"uid": []string{"carla"}},
		},
		{
			name:      "no DN and no filter",
			identity:  identity.Identity{"login": "carla"},
			wantErrIs: ErrNotFound,
			wantErr:   "user not found in the directory: no DN in the user data or user id",
		},
		{
			name:      "filter placeholder without a value",
			config:    func(c *AttributeConfig) { c.Filter = "(mail={mail})" },
			identity:  withToken(),
			wantErrIs: ErrNotFound,
		},
		{
			name:     "no entries",
			config:   func(c *AttributeConfig) { c.Filter = "(uid={login})" },
			identity: withToken(),
			searchMocks: func(conn *mockldapconn.MockConn) {
				conn.EXPECT().Search(gomock.Any()).Return(&ldap.SearchResult{}, nil)
			},
			wantDials: 1,
			wantErrIs: ErrNotFound,
			wantErr:   `user not found in the directory: no entry matched "(uid=carla)" under ""`,
		},
		{
			name:     "entry is gone",
			identity: withToken(),
			searchMocks: func(conn *mockldapconn.MockConn) {
				conn.EXPECT().Search(expectedSearch(nil)).
					Return(nil, ldap.NewError(ldap.LDAPResultNoSuchObject, errors.New("gone")))
			},
			wantDials: 1,
			wantErrIs: ErrNotFound,
		},
		{
			name:     "search failure",
			identity: withToken(),
			searchMocks: func(conn *mockldapconn.MockConn) {
				conn.EXPECT().Search(expectedSearch(nil)).
					Return(nil, ldap.NewError(ldap.LDAPResultUnavailable, errors.New("shutting down")))
			},
			wantDials: 1,
			wantErrIs: ErrDirectoryUnavailable,
			wantErr:   `directory unavailable: error searching "uid=carla,ou=people,dc=example,dc=org": LDAP Result Code 52 "Unavailable": shutting down`,
		},
		{
			name:      "directory down",
			identity:  withToken(),
			dialErr:   ldap.NewError(ldap.ErrorNetwork, errors.New("connection refused")),
			wantDials: 1,
			wantErrIs: ErrDirectoryUnavailable,
			wantErr:   `directory unavailable: error dialing "ldaps://ldap.example.org:636": LDAP Result Code 200 "Network Error": connection refused`,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctrl := gomock.NewController(t)

			var conns []directory.Conn
			if tt.searchMocks != nil {
				conn := mockldapconn.NewMockConn(ctrl)
				if !tt.anonymous {
					conn.EXPECT().Bind(testBindDN, testBindPassword).Return(nil)
				}
				tt.searchMocks(conn)
				conn.EXPECT().Close().Return(nil)
				conns = append(conns, conn)
			}
			connector, dials := newQueueConnector(t, tt.dialErr, conns...)

			config := AttributeConfig{Name: "attrs", Connector: connector}
			if !tt.anonymous {
				config.BindDN = testBindDN
				config.BindPassword = testBindPassword
			}
			if tt.config != nil {
				tt.config(&config)
			}
			f, err := NewAttributeFetcher(config)
			require.NoError(t, err)

			got, err := f.FetchAttributes(context.Background(), tt.identity)
			require.Equal(t, tt.wantDials, dials())
			if tt.wantErrIs != nil {
				require.ErrorIs(t, err, tt.wantErrIs)
				if tt.wantErr != "" {
					require.EqualError(t, err, tt.wantErr)
				}
				require.Nil(t, got)
				return
			}
			require.NoError(t, err)
			require.Empty(t, cmp.Diff(tt.want, got))
		})
	}
}

func TestFetchAttributesServiceAccountFailure(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)

	conn := mockldapconn.NewMockConn(ctrl)
	conn.EXPECT().Bind(testBindDN, testBindPassword).
		Return(ldap.NewError(ldap.LDAPResultInvalidCredentials, errors.New("expired")))
	conn.EXPECT().Close().Return(nil)
	connector, _ := newQueueConnector(t, nil, conn)

	f, err := NewAttributeFetcher(AttributeConfig{Name: "attrs", Connector: connector, BindDN: testBindDN, BindPassword: testBindPassword})
	require.NoError(t, err)

	_, err = f.FetchAttributes(context.Background(), identity.Identity{"repoze.who.userid": testUserDN})
	require.ErrorIs(t, err, ErrDirectoryUnavailable)
	require.EqualError(t, err, `directory unavailable: error binding as "cn=admin,dc=example,dc=org": LDAP Result Code 49 "Invalid Credentials": expired`)
}

func TestAttributesAddMetadata(t *testing.T) {
	t.Parallel()

	entry := ldap.NewEntry(testUserDN, map[string][]string{"uid": {"carla"}, "cn": {"Carla"}})

	tests := []struct {
		name      string
		outputKey string
		want      identity.Identity
	}{
		{
			name: "merged into the identity",
			want: identity.Identity{
				"repoze.who.userid": testUserDN,
				"uid":               "carla",
				"cn":                "Carla",
			},
		},
		{
			name:      "nested under the output key",
			outputKey: "ldap",
			want: identity.Identity{
				"repoze.who.userid": testUserDN,
				"ldap":              map[string]any{"uid": "carla", "cn": "Carla"},
			},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctrl := gomock.NewController(t)

			conn := mockldapconn.NewMockConn(ctrl)
			conn.EXPECT().Search(gomock.Any()).Return(&ldap.SearchResult{Entries: []*ldap.Entry{entry}}, nil)
			conn.EXPECT().Close().Return(nil)
			connector, _ := newQueueConnector(t, nil, conn)

			registry := prometheus.NewPedanticRegistry()
			m, err := metrics.New(registry)
			require.NoError(t, err)

			f, err := NewAttributeFetcher(AttributeConfig{
				Name:      "attrs",
				Connector: connector,
				Flatten:   true,
				OutputKey: tt.outputKey,
				Metrics:   m,
			})
			require.NoError(t, err)

			id := identity.Identity{"repoze.who.userid": testUserDN}
			require.NoError(t, f.AddMetadata(context.Background(), id))
			require.Equal(t, tt.want, id)
			require.Equal(t, float64(1), testutil.ToFloat64(m.MetadataLookups.WithLabelValues("attrs", metrics.ResultSuccess)))
		})
	}
}

func TestAttributesAddMetadataLeavesIdentityAloneOnFailure(t *testing.T) {
	t.Parallel()

	connector, dials := newQueueConnector(t, nil)
	m, err := metrics.New(prometheus.NewPedanticRegistry())
	require.NoError(t, err)

	f, err := NewAttributeFetcher(AttributeConfig{Name: "attrs", Connector: connector, OutputKey: "ldap", Metrics: m})
	require.NoError(t, err)

	id := identity.Identity{"login": "carla"}
	require.ErrorIs(t, f.AddMetadata(context.Background(), id), ErrNotFound)
	require.Equal(t, identity.Identity{"login": "carla"}, id)
	require.Zero(t, dials())
	require.Equal(t, float64(1), testutil.ToFloat64(m.MetadataLookups.WithLabelValues("attrs", metrics.ResultNotFound)))
}
