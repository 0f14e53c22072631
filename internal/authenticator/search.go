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
	"github.com/m-martinez/who-ldap/internal/plog"
)

const (
	// two is enough to tell "exactly one" from "ambiguous"
	userSearchSizeLimit = 2
	userSearchTimeLimit = 90
)

// SearchConfig is the input to NewSearchResolver.
type SearchConfig struct {
	// Name identifies the owning authenticator in logs.
	Name string

	// Connector opens the service account connection used for the search.
	Connector *directory.Connector

	// BaseDN is where the search starts.
	BaseDN string

	// BindDN and BindPassword are the service account used for the search.
	BindDN       string
	BindPassword string

	// NamingAttribute is compared with the login. Defaults to "uid".
	NamingAttribute string

	Scope directory.Scope

	// Restrict is an optional filter that every matching entry must also satisfy,
	// e.g. "(objectClass=inetOrgPerson)".
	Restrict string

	// Logger defaults to plog.New().
	Logger plog.Logger
}

// SearchResolver finds the user's entry with a search made as a service account.
// The service account connection is never used for the user's own bind.
type SearchResolver struct {
	c   SearchConfig
	log plog.Logger
}

var (
	_ DNResolver       = (*SearchResolver)(nil)
	_ ConnectionTester = (*SearchResolver)(nil)
)

func NewSearchResolver(config SearchConfig) (*SearchResolver, error) {
	if config.Connector == nil {
		return nil, fmt.Errorf("a directory connector is required")
	}
	if err := validateBaseDN(config.BaseDN); err != nil {
		return nil, err
	}
	if config.BindDN == "" || config.BindPassword == "" {
		return nil, fmt.Errorf("bind_dn and bind_pass are required to search for users")
	}

	namingAttribute, err := namingAttributeOrDefault(config.NamingAttribute)
	if err != nil {
		return nil, err
	}
	config.NamingAttribute = namingAttribute

	if config.Restrict != "" {
		config.Restrict = wrapFilter(config.Restrict)
		if _, err := ldap.CompileFilter(config.Restrict); err != nil {
			return nil, fmt.Errorf("invalid restrict filter %q: %w", config.Restrict, err)
		}
	}

	log := config.Logger
	if log == nil {
		log = plog.New()
	}
	return &SearchResolver{c: config, log: log.WithValues("authenticator", config.Name)}, nil
}

func (r *SearchResolver) ResolveDN(ctx context.Context, creds identity.Credentials) (string, error) {
	if creds.Login == "" {
		return "", errMissingCredentials
	}

	var dn string
	err := r.c.Connector.WithConn(ctx, func(conn directory.Conn) error {
		if err := conn.Bind(r.c.BindDN, r.c.BindPassword); err != nil {
			return fmt.Errorf("%w: error binding as %q before user search: %w", errServiceAccount, r.c.BindDN, err)
		}

		var err error
		dn, err = r.searchUser(conn, creds.Login)
		return err
	})
	return dn, err
}

func (r *SearchResolver) searchUser(conn directory.Conn, login string) (string, error) {
	result, err := conn.Search(r.userSearchRequest(login))
	switch {
	case directory.IsResultCode(err, ldap.LDAPResultSizeLimitExceeded):
		return "", errAmbiguousUser
	case err != nil:
		return "", fmt.Errorf("error searching for user: %w", err)
	}

	if len(result.Entries) == 0 {
		if plog.Enabled(plog.LevelAll) {
			r.log.All("error finding user: user not found (if this login is valid, please check the user search configuration)",
				"login", login,
			)
		} else {
			r.log.Debug("error finding user: user not found (cowardly avoiding printing login because log level is not 'all')")
		}
		return "", errUserNotFound
	}

	// At this point, we have matched at least one entry, so we can be confident that the login is not actually
	// someone's password mistakenly entered into the login field, so we can log it without concern.
	if len(result.Entries) > 1 {
		r.log.Debug("login matched more than one entry", "login", login, "count", len(result.Entries))
		return "", errAmbiguousUser
	}

	entry := result.Entries[0]
	if entry.DN == "" {
		return "", fmt.Errorf("searching for user resulted in search result without DN")
	}

	r.log.Debug("found user", "login", login, "dn", entry.DN)
	return entry.DN, nil
}

func (r *SearchResolver) userSearchRequest(login string) *ldap.SearchRequest {
	// See https://ldap.com/the-ldap-search-operation for general documentation of LDAP search options.
	return &ldap.SearchRequest{
		BaseDN:       r.c.BaseDN,
		Scope:        r.c.Scope.LDAP(),
		DerefAliases: ldap.NeverDerefAliases,
		SizeLimit:    userSearchSizeLimit,
		TimeLimit:    userSearchTimeLimit,
		TypesOnly:    false,
		Filter:       r.userSearchFilter(login),
		Attributes:   []string{r.c.NamingAttribute},
		Controls:     nil, // already limiting the result max size
	}
}

func (r *SearchResolver) userSearchFilter(login string) string {
	// The login is end-user input, so it must be escaped before being included in a search to prevent
	// query injection. ldap.EscapeFilter covers "*" as well as "(", ")", "\" and NUL.
	clause := fmt.Sprintf("(%s=%s)", r.c.NamingAttribute, ldap.EscapeFilter(login))
	if r.c.Restrict == "" {
		return clause
	}
	return "(&" + r.c.Restrict + clause + ")"
}

// TestConnection dials and binds as the service account.
func (r *SearchResolver) TestConnection(ctx context.Context) error {
	return r.c.Connector.TestConnection(ctx, r.c.BindDN, r.c.BindPassword)
}

func wrapFilter(filter string) string {
	filter = strings.TrimSpace(filter)
	if strings.HasPrefix(filter, "(") && strings.HasSuffix(filter, ")") {
		return filter
	}
	return "(" + filter + ")"
}
