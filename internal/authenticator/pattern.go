// Copyright 2026 the who-ldap contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package authenticator

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-ldap/ldap/v3"

	"github.com/m-martinez/who-ldap/internal/directory"
	"github.com/m-martinez/who-ldap/internal/identity"
)

const defaultNamingAttribute = "uid"

// PatternResolver builds the DN from the login without talking to the directory:
// "<naming attribute>=<login>,<base DN>". The login is escaped, so it cannot change the DN's structure.
type PatternResolver struct {
	baseDN          string
	namingAttribute string
}

var _ DNResolver = (*PatternResolver)(nil)

// NewPatternResolver requires a base DN. The naming attribute defaults to "uid".
func NewPatternResolver(baseDN, namingAttribute string) (*PatternResolver, error) {
	if err := validateBaseDN(baseDN); err != nil {
		return nil, err
	}

	namingAttribute, err := namingAttributeOrDefault(namingAttribute)
	if err != nil {
		return nil, err
	}

	return &PatternResolver{baseDN: baseDN, namingAttribute: namingAttribute}, nil
}

func (r *PatternResolver) ResolveDN(_ context.Context, creds identity.Credentials) (string, error) {
	if creds.Login == "" {
		return "", errMissingCredentials
	}
	return directory.DNFor(r.namingAttribute, creds.Login, r.baseDN), nil
}

func validateBaseDN(baseDN string) error {
	if strings.TrimSpace(baseDN) == "" {
		return fmt.Errorf("base_dn is required")
	}
	if _, err := parseDN(baseDN); err != nil {
		return fmt.Errorf("invalid base_dn %q: %w", baseDN, err)
	}
	return nil
}

// parseDN is ldap.ParseDN plus a check that every RDN has an attribute type, which older parsers let through.
func parseDN(s string) (*ldap.DN, error) {
	dn, err := ldap.ParseDN(s)
	if err != nil {
		return nil, err
	}
	if len(dn.RDNs) == 0 {
		return nil, fmt.Errorf("DN is empty")
	}
	for _, rdn := range dn.RDNs {
		for _, attr := range rdn.Attributes {
			if attr.Type == "" {
				return nil, fmt.Errorf("RDN without an attribute type")
			}
		}
	}
	return dn, nil
}

func namingAttributeOrDefault(namingAttribute string) (string, error) {
	namingAttribute = strings.TrimSpace(namingAttribute)
	if namingAttribute == "" {
		return defaultNamingAttribute, nil
	}
	if strings.ContainsAny(namingAttribute, "=,+()*\\ ") {
		return "", fmt.Errorf("invalid naming_attribute %q", namingAttribute)
	}
	return namingAttribute, nil
}
