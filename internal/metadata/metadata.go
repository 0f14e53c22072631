// Copyright 2026 the who-ldap contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package metadata adds directory data about an already authenticated user to the identity:
// the attributes of the user's entry, and the groups the user is a member of.
//
// The user's DN comes from the token the authenticator left in the identity's user data, or from
// the user id the host stored when no token is present.
package metadata

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/go-ldap/ldap/v3"

	"github.com/m-martinez/who-ldap/internal/constable"
	"github.com/m-martinez/who-ldap/internal/directory"
	"github.com/m-martinez/who-ldap/internal/identity"
	"github.com/m-martinez/who-ldap/internal/metrics"
	"github.com/m-martinez/who-ldap/internal/userdata"
)

const (
	// ErrNotFound means there was nothing to look up: no DN in the identity, or no matching entry.
	ErrNotFound = constable.Error("user not found in the directory")

	// ErrDirectoryUnavailable means the directory could not be reached or refused the service account.
	ErrDirectoryUnavailable = constable.Error("directory unavailable")

	dnPlaceholder = "dn"

	searchTimeLimit = 90
)

var (
	placeholderRegexp = regexp.MustCompile(`\{([^{}]+)\}`)

	// identityKeyRegexp matches the {identity[login]} spelling of {login}.
	identityKeyRegexp = regexp.MustCompile(`^identity\[([^\[\]]+)\]$`)

	plainKeyRegexp = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)
)

// source is the service account connection shared by both fetchers.
type source struct {
	connector    *directory.Connector
	bindDN       string
	bindPassword string
}

func (s source) validate() error {
	if s.connector == nil {
		return fmt.Errorf("a directory connector is required")
	}
	if (s.bindDN == "") != (s.bindPassword == "") {
		return fmt.Errorf("bind_dn and bind_pass must be set together")
	}
	return nil
}

// withConn runs fn on a connection bound as the service account, or an anonymous one when no
// service account is configured.
func (s source) withConn(ctx context.Context, fn func(conn directory.Conn) error) error {
	err := s.connector.WithConn(ctx, func(conn directory.Conn) error {
		if s.bindDN != "" {
			if err := conn.Bind(s.bindDN, s.bindPassword); err != nil {
				return fmt.Errorf("%w: error binding as %q: %w", ErrDirectoryUnavailable, s.bindDN, err)
			}
		}
		return fn(conn)
	})
	if err != nil && !errors.Is(err, ErrNotFound) && !errors.Is(err, ErrDirectoryUnavailable) {
		return fmt.Errorf("%w: %w", ErrDirectoryUnavailable, err)
	}
	return err
}

func (s source) testConnection(ctx context.Context) error {
	return s.connector.TestConnection(ctx, s.bindDN, s.bindPassword)
}

// userDN prefers the user data token and falls back to the user id.
func userDN(id identity.Identity, codec userdata.Codec) (string, bool) {
	if dn, ok := userdata.Extract(id, codec); ok {
		return dn, true
	}
	return id.UserID()
}

// placeholderKey is the identity key a placeholder such as "{login}" or "{identity[login]}" names.
func placeholderKey(placeholder string) string {
	key := placeholder[1 : len(placeholder)-1]
	if m := identityKeyRegexp.FindStringSubmatch(key); m != nil {
		return m[1]
	}
	return key
}

// expandFilter replaces {dn} with the user's DN and {key} with the string value of that identity key.
// Every value is filter escaped. The password is never substituted.
func expandFilter(filter, dn string, id identity.Identity) (string, error) {
	var missing error
	expanded := placeholderRegexp.ReplaceAllStringFunc(filter, func(match string) string {
		key := placeholderKey(match)
		var value string
		var ok bool
		switch key {
		case dnPlaceholder:
			value, ok = dn, dn != ""
		case identity.PasswordKey:
		default:
			value, ok = id.Get(key)
		}
		if !ok {
			if missing == nil {
				missing = fmt.Errorf("%w: no value for %s in filter %q", ErrNotFound, match, filter)
			}
			return match
		}
		return ldap.EscapeFilter(value)
	})
	if missing != nil {
		return "", missing
	}
	return expanded, nil
}

// validateFilter checks that every placeholder names a usable identity key and compiles filter with
// every placeholder filled in.
func validateFilter(filter string) error {
	for _, match := range placeholderRegexp.FindAllString(filter, -1) {
		switch key := placeholderKey(match); {
		case key == identity.PasswordKey:
			return fmt.Errorf("invalid filterstr %q: the password cannot be used in a filter", filter)
		case !plainKeyRegexp.MatchString(key):
			return fmt.Errorf("invalid filterstr %q: %s does not name an identity key, use {dn} or {<key>}", filter, match)
		}
	}
	if _, err := ldap.CompileFilter(placeholderRegexp.ReplaceAllString(filter, "x")); err != nil {
		return fmt.Errorf("invalid filterstr %q: %w", filter, err)
	}
	return nil
}

// searchError maps a failed search to ErrNotFound or ErrDirectoryUnavailable.
func searchError(err error, format string, args ...any) error {
	sentinel := ErrDirectoryUnavailable
	if directory.IsResultCode(err, ldap.LDAPResultNoSuchObject) {
		sentinel = ErrNotFound
	}
	return fmt.Errorf("%w: %s: %w", sentinel, fmt.Sprintf(format, args...), err)
}

func lookupResult(err error) string {
	switch {
	case err == nil:
		return metrics.ResultSuccess
	case errors.Is(err, ErrNotFound):
		return metrics.ResultNotFound
	default:
		return metrics.ResultUnavailable
	}
}
