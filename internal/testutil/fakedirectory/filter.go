// Copyright 2026 the who-ldap contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package fakedirectory

import (
	"errors"
	"fmt"
	"strings"

	ber "github.com/go-asn1-ber/asn1-ber"
	"github.com/go-ldap/ldap/v3"
)

// matches evaluates a filter compiled by ldap.CompileFilter against an entry. Attribute names and
// values are compared without regard to case, like most directory schemas do.
func matches(filter *ber.Packet, e *entry) (bool, error) {
	switch filter.Tag {
	case ldap.FilterAnd:
		for _, child := range filter.Children {
			ok, err := matches(child, e)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil

	case ldap.FilterOr:
		for _, child := range filter.Children {
			ok, err := matches(child, e)
			if err != nil || ok {
				return ok, err
			}
		}
		return false, nil

	case ldap.FilterNot:
		if len(filter.Children) != 1 {
			return false, malformed(filter)
		}
		ok, err := matches(filter.Children[0], e)
		return !ok, err

	case ldap.FilterPresent:
		name := packetString(filter)
		if strings.EqualFold(name, "objectClass") {
			return true, nil // every entry has one
		}
		return len(e.values(name)) > 0, nil

	case ldap.FilterEqualityMatch, ldap.FilterApproxMatch:
		name, want, err := assertion(filter)
		if err != nil {
			return false, err
		}
		return e.anyValue(name, func(v string) bool { return strings.EqualFold(v, want) }), nil

	case ldap.FilterGreaterOrEqual:
		name, want, err := assertion(filter)
		if err != nil {
			return false, err
		}
		return e.anyValue(name, func(v string) bool { return strings.ToLower(v) >= strings.ToLower(want) }), nil

	case ldap.FilterLessOrEqual:
		name, want, err := assertion(filter)
		if err != nil {
			return false, err
		}
		return e.anyValue(name, func(v string) bool { return strings.ToLower(v) <= strings.ToLower(want) }), nil

	case ldap.FilterSubstrings:
		return substrings(filter, e)

	default:
		return false, ldap.NewError(ldap.LDAPResultUnwillingToPerform,
			fmt.Errorf("filter type %d is not supported", filter.Tag))
	}
}

func substrings(filter *ber.Packet, e *entry) (bool, error) {
	if len(filter.Children) != 2 {
		return false, malformed(filter)
	}
	name := packetString(filter.Children[0])

	var initial, final string
	var middle []string
	for _, part := range filter.Children[1].Children {
		value := strings.ToLower(packetString(part))
		switch part.Tag {
		case ldap.FilterSubstringsInitial:
			initial = value
		case ldap.FilterSubstringsFinal:
			final = value
		default:
			middle = append(middle, value)
		}
	}

	return e.anyValue(name, func(v string) bool {
		v = strings.ToLower(v)
		if !strings.HasPrefix(v, initial) {
			return false
		}
		v = v[len(initial):]
		for _, m := range middle {
			i := strings.Index(v, m)
			if i < 0 {
				return false
			}
			v = v[i+len(m):]
		}
		return strings.HasSuffix(v, final)
	}), nil
}

func assertion(filter *ber.Packet) (string, string, error) {
	if len(filter.Children) != 2 {
		return "", "", malformed(filter)
	}
	return packetString(filter.Children[0]), packetString(filter.Children[1]), nil
}

func packetString(p *ber.Packet) string {
	if s, ok := p.Value.(string); ok {
		return s
	}
	if p.Data != nil {
		return p.Data.String()
	}
	return ""
}

func malformed(filter *ber.Packet) error {
	return ldap.NewError(ldap.LDAPResultProtocolError, errors.New("malformed "+filter.Description))
}

func (e *entry) values(name string) []string {
	for attr, values := range e.attributes {
		if strings.EqualFold(attr, name) {
			return values
		}
	}
	return nil
}

func (e *entry) anyValue(name string, match func(string) bool) bool {
	for _, v := range e.values(name) {
		if match(v) {
			return true
		}
	}
	return false
}
