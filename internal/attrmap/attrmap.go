// Copyright 2026 the who-ldap contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package attrmap describes which directory attributes to read and under which keys to report them.
package attrmap

import (
	"fmt"
	"sort"
	"strings"
)

// allAttributes is the LDAP wildcard for "every user attribute".
const allAttributes = "*"

// Pair maps one directory attribute to an output key.
type Pair struct {
	Attribute string
	Key       string
}

// Map is an ordered mapping from directory attribute names to output keys. Attribute names are
// case sensitive and must match the directory schema exactly.
//
// The zero value selects all attributes and reports them under their own names.
type Map struct {
	pairs []Pair
	keys  map[string]string
}

// All selects every attribute verbatim. It is the same as the zero value.
func All() Map {
	return Map{}
}

// FromCommaList parses "uid,cn=name,mail" style lists. Each item is either an attribute name or
// "attribute=key". Whitespace around names is ignored. An empty string selects all attributes.
func FromCommaList(list string) (Map, error) {
	if strings.TrimSpace(list) == "" {
		return All(), nil
	}

	items := strings.Split(list, ",")
	pairs := make([]Pair, 0, len(items))
	for _, item := range items {
		parts := strings.Split(item, "=")
		switch len(parts) {
		case 1:
			name := strings.TrimSpace(parts[0])
			pairs = append(pairs, Pair{Attribute: name, Key: name})
		case 2:
			pairs = append(pairs, Pair{Attribute: strings.TrimSpace(parts[0]), Key: strings.TrimSpace(parts[1])})
		default:
			return Map{}, fmt.Errorf("invalid attribute mapping %q: expected \"attribute\" or \"attribute=key\"", strings.TrimSpace(item))
		}
	}

	return FromPairs(pairs)
}

// FromList selects the given attributes and reports them under their own names.
func FromList(attributes []string) (Map, error) {
	pairs := make([]Pair, 0, len(attributes))
	for _, a := range attributes {
		pairs = append(pairs, Pair{Attribute: a, Key: a})
	}
	return FromPairs(pairs)
}

// FromAliasMap builds a Map from attribute to key. Attributes are ordered by name.
func FromAliasMap(aliases map[string]string) (Map, error) {
	pairs := make([]Pair, 0, len(aliases))
	for attribute, key := range aliases {
		pairs = append(pairs, Pair{Attribute: attribute, Key: key})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].Attribute < pairs[j].Attribute })
	return FromPairs(pairs)
}

// FromPairs builds a Map keeping the given order. An empty input selects all attributes.
func FromPairs(pairs []Pair) (Map, error) {
	if len(pairs) == 0 {
		return All(), nil
	}

	m := Map{
		pairs: make([]Pair, 0, len(pairs)),
		keys:  make(map[string]string, len(pairs)),
	}
	for _, p := range pairs {
		if p.Attribute == "" {
			return Map{}, fmt.Errorf("invalid attribute mapping: empty attribute name")
		}
		if p.Key == "" {
			return Map{}, fmt.Errorf("invalid attribute mapping for %q: empty output key", p.Attribute)
		}
		if p.Attribute == allAttributes {
			return Map{}, fmt.Errorf("invalid attribute mapping: %q cannot be mapped, leave attributes empty to select all", allAttributes)
		}
		if _, dup := m.keys[p.Attribute]; dup {
			return Map{}, fmt.Errorf("invalid attribute mapping: attribute %q is listed more than once", p.Attribute)
		}
		m.keys[p.Attribute] = p.Key
		m.pairs = append(m.pairs, p)
	}
	return m, nil
}

// IsAll reports whether every attribute is selected verbatim.
func (m Map) IsAll() bool {
	return len(m.pairs) == 0
}

// Len is the number of mapped attributes, zero for All.
func (m Map) Len() int {
	return len(m.pairs)
}

// Attributes is the list of attributes to request from the directory, in order.
func (m Map) Attributes() []string {
	if m.IsAll() {
		return []string{allAttributes}
	}
	out := make([]string, 0, len(m.pairs))
	for _, p := range m.pairs {
		out = append(out, p.Attribute)
	}
	return out
}

// Pairs returns a copy of the mapping in order, or nil for All.
func (m Map) Pairs() []Pair {
	if m.IsAll() {
		return nil
	}
	return append([]Pair(nil), m.pairs...)
}

// OutputKey returns the key to report attribute under. It returns false when the attribute was
// not selected. With All, every attribute is reported under its own name.
func (m Map) OutputKey(attribute string) (string, bool) {
	if m.IsAll() {
		return attribute, true
	}
	key, ok := m.keys[attribute]
	return key, ok
}

// String renders the mapping in the comma list form accepted by FromCommaList.
func (m Map) String() string {
	if m.IsAll() {
		return allAttributes
	}
	items := make([]string, 0, len(m.pairs))
	for _, p := range m.pairs {
		if p.Attribute == p.Key {
			items = append(items, p.Attribute)
			continue
		}
		items = append(items, p.Attribute+"="+p.Key)
	}
	return strings.Join(items, ",")
}
