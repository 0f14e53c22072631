// Copyright 2026 the who-ldap contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/m-martinez/who-ldap/internal/attrmap"
)

// Attributes is the attributes option of a metadata provider. It accepts a comma separated string
// ("uid,cn=name"), a list whose items are names, "attribute=key" strings or [attribute, key] pairs,
// or a map from attribute to key. Leaving it out selects every attribute.
type Attributes struct {
	attrmap.Map
}

var (
	_ json.Unmarshaler = &Attributes{}
	_ json.Marshaler   = Attributes{}
)

func (a *Attributes) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		a.Map = attrmap.All()
		return nil
	}

	var (
		m   attrmap.Map
		err error
	)
	switch b[0] {
	case '"':
		var list string
		if err := json.Unmarshal(b, &list); err != nil {
			return err
		}
		m, err = attrmap.FromCommaList(list)
	case '[':
		m, err = attributesFromList(b)
	case '{':
		var aliases map[string]string
		if err := json.Unmarshal(b, &aliases); err != nil {
			return fmt.Errorf("attributes map values must be strings: %w", err)
		}
		m, err = attrmap.FromAliasMap(aliases)
	default:
		return fmt.Errorf("attributes must be a string, a list or a map")
	}
	if err != nil {
		return err
	}

	a.Map = m
	return nil
}

// MarshalJSON renders the comma separated form.
func (a Attributes) MarshalJSON() ([]byte, error) {
	if a.IsAll() {
		return []byte("null"), nil
	}
	return json.Marshal(a.String())
}

func attributesFromList(b []byte) (attrmap.Map, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(b, &items); err != nil {
		return attrmap.Map{}, err
	}

	var names []string
	pairs := make([]attrmap.Pair, 0, len(items))
	for i, item := range items {
		var name string
		if err := json.Unmarshal(item, &name); err == nil {
			attribute, key, mapped := strings.Cut(name, "=")
			if !mapped {
				key = attribute
				names = append(names, strings.TrimSpace(name))
			}
			pairs = append(pairs, attrmap.Pair{Attribute: strings.TrimSpace(attribute), Key: strings.TrimSpace(key)})
			continue
		}

		var pair []string
		if err := json.Unmarshal(item, &pair); err != nil || len(pair) != 2 {
			return attrmap.Map{}, fmt.Errorf("attributes[%d]: expected a string or an [attribute, key] pair", i)
		}
		pairs = append(pairs, attrmap.Pair{Attribute: pair[0], Key: pair[1]})
	}

	if len(names) == len(items) {
		return attrmap.FromList(names)
	}
	return attrmap.FromPairs(pairs)
}
