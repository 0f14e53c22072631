// Copyright 2026 the who-ldap contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package directory opens connections to an LDAP directory server.
//
// A Connector is the only way to obtain a Conn. It is constructed either from an ldap:// or ldaps://
// URL, in which case every call to WithConn dials a fresh connection and closes it afterwards, or from
// an already-open connection owned by the host, which is lent out but never closed.
package directory

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/go-ldap/ldap/v3"

	"github.com/m-martinez/who-ldap/internal/endpointaddr"
)

const (
	ldapScheme  = "ldap"
	ldapsScheme = "ldaps"

	defaultLDAPPort  = uint16(389)
	defaultLDAPSPort = uint16(636)
)

// Conn abstracts the directory protocol (mostly for testing).
type Conn interface {
	Bind(username, password string) error

	Search(searchRequest *ldap.SearchRequest) (*ldap.SearchResult, error)

	SearchWithPaging(searchRequest *ldap.SearchRequest, pagingSize uint32) (*ldap.SearchResult, error)

	Close() error
}

// Our Conn type is subset of the ldap.Client interface, which is implemented by ldap.Conn.
var _ Conn = &ldap.Conn{}

// Dialer is a factory of Conn, and the resulting Conn can then be used to interact with a directory server.
type Dialer interface {
	Dial(ctx context.Context, addr endpointaddr.HostPort) (Conn, error)
}

// DialerFunc makes it easy to use a func as a Dialer.
type DialerFunc func(ctx context.Context, addr endpointaddr.HostPort) (Conn, error)

var _ Dialer = DialerFunc(nil)

func (f DialerFunc) Dial(ctx context.Context, addr endpointaddr.HostPort) (Conn, error) {
	return f(ctx, addr)
}

// Endpoint describes where a directory server lives and whether the connection is wrapped in TLS
// from the first byte (ldaps).
type Endpoint struct {
	Host   string
	Port   uint16
	UseTLS bool
}

// ParseURL parses an ldap:// or ldaps:// URL into an Endpoint, defaulting the port to 389 or 636.
func ParseURL(rawURL string) (Endpoint, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return Endpoint{}, fmt.Errorf("invalid directory URL %q: %w", rawURL, err)
	}

	var defaultPort uint16
	switch strings.ToLower(u.Scheme) {
	case ldapScheme:
		defaultPort = defaultLDAPPort
	case ldapsScheme:
		defaultPort = defaultLDAPSPort
	default:
		return Endpoint{}, fmt.Errorf(`invalid directory URL %q: scheme must be "ldap" or "ldaps"`, rawURL)
	}

	if u.User != nil || (u.Path != "" && u.Path != "/") || u.RawQuery != "" || u.Fragment != "" {
		return Endpoint{}, fmt.Errorf("invalid directory URL %q: only scheme, host and port are allowed", rawURL)
	}

	hostPort, err := endpointaddr.Parse(u.Host, defaultPort)
	if err != nil {
		return Endpoint{}, fmt.Errorf("invalid directory URL %q: %w", rawURL, err)
	}

	return Endpoint{Host: hostPort.Host, Port: hostPort.Port, UseTLS: defaultPort == defaultLDAPSPort}, nil
}

func (e Endpoint) HostPort() endpointaddr.HostPort {
	return endpointaddr.HostPort{Host: e.Host, Port: e.Port}
}

// String returns the endpoint in URL form, e.g. "ldaps://ldap.example.org:636".
func (e Endpoint) String() string {
	scheme := ldapScheme
	if e.UseTLS {
		scheme = ldapsScheme
	}
	return scheme + "://" + e.HostPort().Endpoint()
}
