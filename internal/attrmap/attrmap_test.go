// Copyright 2026 the who-ldap contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package attrmap

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConstructors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		build          func() (Map, error)
		wantAttributes []string
		wantPairs      []Pair
		wantString     string
		wantErr        string
	}{
		{
			name:           "comma list with aliases",
			build:          func() (Map, error) { return FromCommaList("uid, cn = name ,mail") },
			wantAttributes: []string{"uid", "cn", "mail"},
			wantPairs:      []Pair{{"uid", "uid"}, {"cn", "name"}, {"mail", "mail"}},
			wantString:     "uid,cn=name,mail",
		},
		{
			name:           "empty comma list is all",
			build:          func() (Map, error) { return FromCommaList("  ") },
			wantAttributes: []string{"*"},
			wantString:     "*",
		},
		{
			name:    "comma list with an empty item",
			build:   func() (Map, error) { return FromCommaList("uid,,cn") },
			wantErr: "invalid attribute mapping: empty attribute name",
		},
		{
			name:    "comma list with two equals signs",
			build:   func() (Map, error) { return FromCommaList("cn=name=other") },
			wantErr: `invalid attribute mapping "cn=name=other": expected "attribute" or "attribute=key"`,
		},
		{
			name:    "comma list with an empty alias",
			build:   func() (Map, error) { return FromCommaList("cn=") },
			wantErr: `invalid attribute mapping for "cn": empty output key`,
		},
		{
			name:           "list keeps order",
			build:          func() (Map, error) { return FromList([]string{"mail", "cn"}) },
			wantAttributes: []string{"mail", "cn"},
			wantPairs:      []Pair{{"mail", "mail"}, {"cn", "cn"}},
			wantString:     "mail,cn",
		},
		{
			name:    "list with a duplicate",
			build:   func() (Map, error) { return FromList([]string{"cn", "mail", "cn"}) },
			wantErr: `invalid attribute mapping: attribute "cn" is listed more than once`,
		},
		{
			name:           "names are case sensitive so these are not duplicates",
			build:          func() (Map, error) { return FromList([]string{"cn", "CN"}) },
			wantAttributes: []string{"cn", "CN"},
			wantPairs:      []Pair{{"cn", "cn"}, {"CN", "CN"}},
			wantString:     "cn,CN",
		},
		{
			name:           "alias map is sorted by attribute",
			build:          func() (Map, error) { return FromAliasMap(map[string]string{"sn": "surname", "cn": "name"}) },
			wantAttributes: []string{"cn", "sn"},
			wantPairs:      []Pair{{"cn", "name"}, {"sn", "surname"}},
			wantString:     "cn=name,sn=surname",
		},
		{
			name:           "empty pairs is all",
			build:          func() (Map, error) { return FromPairs(nil) },
			wantAttributes: []string{"*"},
			wantString:     "*",
		},
		{
			name:    "the wildcard cannot be mapped",
			build:   func() (Map, error) { return FromPairs([]Pair{{"*", "everything"}}) },
			wantErr: `invalid attribute mapping: "*" cannot be mapped, leave attributes empty to select all`,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m, err := tt.build()
			if tt.wantErr != "" {
				require.EqualError(t, err, tt.wantErr)
				require.True(t, m.IsAll())
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.wantAttributes, m.Attributes())
			require.Equal(t, tt.wantPairs, m.Pairs())
			require.Equal(t, len(tt.wantPairs), m.Len())
			require.Equal(t, tt.wantString, m.String())
		})
	}
}

func TestOutputKey(t *testing.T) {
	t.Parallel()

	var zero Map
	require.True(t, zero.IsAll())
	key, ok := zero.OutputKey("telephoneNumber")
	require.True(t, ok)
	require.Equal(t, "telephoneNumber", key)

	m, err := FromCommaList("uid,cn=name")
	require.NoError(t, err)
	require.False(t, m.IsAll())

	key, ok = m.OutputKey("cn")
	require.True(t, ok)
	require.Equal(t, "name", key)

	key, ok = m.OutputKey("uid")
	require.True(t, ok)
	require.Equal(t, "uid", key)

	_, ok = m.OutputKey("CN")
	require.False(t, ok)

	_, ok = m.OutputKey("mail")
	require.False(t, ok)
}

func TestPairsIsACopy(t *testing.T) {
	t.Parallel()

	m, err := FromList([]string{"cn"})
	require.NoError(t, err)

	pairs := m.Pairs()
	pairs[0].Key = "mutated"

	key, _ := m.OutputKey("cn")
	require.Equal(t, "cn", key)
	require.Equal(t, []Pair{{"cn", "cn"}}, m.Pairs())
}
