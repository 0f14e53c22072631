// Copyright 2026 the who-ldap contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package directory

import (
	"fmt"
	"strings"

	"github.com/go-ldap/ldap/v3"
)

// Scope is how deep a search looks below its base DN.
type Scope int

const (
	// Subtree searches the base entry and everything below it.
	Subtree Scope = iota
	// OneLevel searches only the immediate children of the base entry.
	OneLevel
	// Base reads exactly the base entry. It cannot be configured.
	Base
)

// ParseScope accepts "subtree"/"sub" and "onelevel"/"one", ignoring case. The empty string means Subtree.
func ParseScope(s string) (Scope, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "subtree", "sub":
		return Subtree, nil
	case "onelevel", "one":
		return OneLevel, nil
	default:
		return 0, fmt.Errorf(`invalid search scope %q, valid choices are "subtree" and "onelevel"`, s)
	}
}

// LDAP returns the protocol value for the scope, as used in ldap.SearchRequest.
func (s Scope) LDAP() int {
	switch s {
	case OneLevel:
		return ldap.ScopeSingleLevel
	case Base:
		return ldap.ScopeBaseObject
	case Subtree:
		fallthrough
	default:
		return ldap.ScopeWholeSubtree
	}
}

func (s Scope) String() string {
	switch s {
	case OneLevel:
		return "onelevel"
	case Base:
		return "base"
	case Subtree:
		fallthrough
	default:
		return "subtree"
	}
}
