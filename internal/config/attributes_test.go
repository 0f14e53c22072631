// Copyright 2026 the who-ldap contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/m-martinez/who-ldap/internal/attrmap"
)

func TestAttributesUnmarshalJSON(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		json      string
		wantAll   bool
		wantPairs []attrmap.Pair
		wantErr   string
	}{
		{name: "null", json: `null`, wantAll: true},
		{name: "empty string", json: `""`, wantAll: true},
		{name: "empty list", json: `[]`, wantAll: true},
		{
			name:      "comma list",
			json:      `"uid, cn=name ,mail"`,
			wantPairs: []attrmap.Pair{{Attribute: "uid", Key: "uid"}, {Attribute: "cn", Key: "name"}, {Attribute: "mail", Key: "mail"}},
		},
		{
			name:      "list of names",
			json:      `["uid", "mail"]`,
			wantPairs: []attrmap.Pair{{Attribute: "uid", Key: "uid"}, {Attribute: "mail", Key: "mail"}},
		},
		{
			name:      "list mixing names, mappings and pairs",
			json:      `["uid", "cn=name", ["mail", "email"]]`,
			wantPairs: []attrmap.Pair{{Attribute: "uid", Key: "uid"}, {Attribute: "cn", Key: "name"}, {Attribute: "mail", Key: "email"}},
		},
		{
			name:      "map is ordered by attribute",
			json:      `{"sn": "surname", "cn": "name"}`,
			wantPairs: []attrmap.Pair{{Attribute: "cn", Key: "name"}, {Attribute: "sn", Key: "surname"}},
		},
		{name: "number", json: `42`, wantErr: "attributes must be a string, a list or a map"},
		{name: "short pair", json: `[["mail"]]`, wantErr: "attributes[0]: expected a string or an [attribute, key] pair"},
		{name: "map with a list value", json: `{"cn": ["a"]}`, wantErr: "attributes map values must be strings"},
		{name: "duplicate attribute", json: `"cn,cn=name"`, wantErr: `invalid attribute mapping: attribute "cn" is listed more than once`},
		{name: "wildcard", json: `["*"]`, wantErr: `"*" cannot be mapped`},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var a Attributes
			err := json.Unmarshal([]byte(tt.json), &a)
			if tt.wantErr != "" {
				require.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.wantAll, a.IsAll())
			require.Equal(t, tt.wantPairs, a.Pairs())
		})
	}
}

func TestAttributesMarshalJSON(t *testing.T) {
	t.Parallel()

	var a Attributes
	require.NoError(t, json.Unmarshal([]byte(`["uid", ["cn", "name"]]`), &a))
	out, err := json.Marshal(a)
	require.NoError(t, err)
	require.JSONEq(t, `"uid,cn=name"`, string(out))

	out, err = json.Marshal(Attributes{})
	require.NoError(t, err)
	require.Equal(t, "null", string(out))
}
