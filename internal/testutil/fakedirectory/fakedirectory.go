// Copyright 2026 the who-ldap contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package fakedirectory is an in-memory LDAP directory for tests. It speaks the directory.Conn
// interface instead of the wire protocol, evaluates real compiled filters, and checks bcrypt
// password hashes the way a server checks userPassword.
package fakedirectory

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/go-ldap/ldap/v3"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/m-martinez/who-ldap/internal/directory"
	"github.com/m-martinez/who-ldap/internal/endpointaddr"
)

// Directory holds entries in insertion order, which is also the order searches return them in.
type Directory struct {
	t *testing.T

	mu        sync.Mutex
	entries   []*entry
	dialErr   error
	dials     int
	open      int
	binds     []string
	pageSizes []uint32
}

type entry struct {
	dn         string
	key        []string
	attributes map[string][]string
	password   []byte
}

// New returns an empty directory. The test fails at cleanup if a connection was left open.
func New(t *testing.T) *Directory {
	t.Helper()

	d := &Directory{t: t}
	t.Cleanup(func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		require.Zerof(t, d.open, "%d directory connection(s) were never closed", d.open)
	})
	return d
}

// Add stores an entry. Attribute names keep the given case.
func (d *Directory) Add(dn string, attributes map[string][]string) *Directory {
	d.t.Helper()

	key, err := normalizeDN(dn)
	require.NoError(d.t, err, "invalid DN %q", dn)

	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries = append(d.entries, &entry{dn: dn, key: key, attributes: attributes})
	return d
}

// SetPassword stores a bcrypt hash of password for the entry, which must exist.
func (d *Directory) SetPassword(dn, password string) *Directory {
	d.t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(d.t, err)

	d.mu.Lock()
	defer d.mu.Unlock()
	e := d.find(dn)
	require.NotNil(d.t, e, "no entry %q", dn)
	e.password = hash
	return d
}

// FailDials makes every following dial return err, or succeed again when err is nil.
func (d *Directory) FailDials(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dialErr = err
}

// Dialer opens connections to this directory whatever the address.
func (d *Directory) Dialer() directory.Dialer {
	return directory.DialerFunc(func(ctx context.Context, _ endpointaddr.HostPort) (directory.Conn, error) {
		d.mu.Lock()
		defer d.mu.Unlock()
		d.dials++
		if err := ctx.Err(); err != nil {
			return nil, ldap.NewError(ldap.ErrorNetwork, err)
		}
		if d.dialErr != nil {
			return nil, d.dialErr
		}
		d.open++
		return &conn{d: d}, nil
	})
}

// Dials is the number of dial attempts so far.
func (d *Directory) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

// Binds lists the DN of every bind attempt so far, successful or not.
func (d *Directory) Binds() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.binds...)
}

// PageSizes lists the page size of every paged search so far.
func (d *Directory) PageSizes() []uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]uint32(nil), d.pageSizes...)
}

// find must be called with mu held.
func (d *Directory) find(dn string) *entry {
	key, err := normalizeDN(dn)
	if err != nil {
		return nil
	}
	for _, e := range d.entries {
		if slices.Equal(e.key, key) {
			return e
		}
	}
	return nil
}

type conn struct {
	d      *Directory
	closed bool
}

var _ directory.Conn = (*conn)(nil)

func (c *conn) Bind(username, password string) error {
	c.d.mu.Lock()
	defer c.d.mu.Unlock()

	if c.closed {
		return ldap.NewError(ldap.ErrorNetwork, errors.New("ldap: connection closed"))
	}
	c.d.binds = append(c.d.binds, username)

	if password == "" {
		return ldap.NewError(ldap.ErrorEmptyPassword, errors.New("ldap: empty password not allowed by the client"))
	}

	e := c.d.find(username)
	if e == nil || e.password == nil || bcrypt.CompareHashAndPassword(e.password, []byte(password)) != nil {
		return ldap.NewError(ldap.LDAPResultInvalidCredentials, errors.New(""))
	}
	return nil
}

func (c *conn) Search(request *ldap.SearchRequest) (*ldap.SearchResult, error) {
	return c.search(request)
}

// SearchWithPaging returns every entry at once. The page size is only recorded.
func (c *conn) SearchWithPaging(request *ldap.SearchRequest, pagingSize uint32) (*ldap.SearchResult, error) {
	c.d.mu.Lock()
	c.d.pageSizes = append(c.d.pageSizes, pagingSize)
	c.d.mu.Unlock()

	unlimited := *request
	unlimited.SizeLimit = 0
	return c.search(&unlimited)
}

func (c *conn) Close() error {
	c.d.mu.Lock()
	defer c.d.mu.Unlock()
	if !c.closed {
		c.closed = true
		c.d.open--
	}
	return nil
}

func (c *conn) search(request *ldap.SearchRequest) (*ldap.SearchResult, error) {
	c.d.mu.Lock()
	defer c.d.mu.Unlock()

	if c.closed {
		return nil, ldap.NewError(ldap.ErrorNetwork, errors.New("ldap: connection closed"))
	}

	filter, err := ldap.CompileFilter(request.Filter)
	if err != nil {
		return nil, err
	}

	base, err := normalizeDN(request.BaseDN)
	if err != nil {
		return nil, ldap.NewError(ldap.LDAPResultInvalidDNSyntax, err)
	}
	if len(base) > 0 && c.d.find(request.BaseDN) == nil {
		return nil, ldap.NewError(ldap.LDAPResultNoSuchObject, fmt.Errorf("no such object %q", request.BaseDN))
	}

	result := &ldap.SearchResult{}
	for _, e := range c.d.entries {
		if !inScope(base, e.key, request.Scope) {
			continue
		}
		matched, err := matches(filter, e)
		if err != nil {
			return nil, err
		}
		if !matched {
			continue
		}
		if request.SizeLimit > 0 && len(result.Entries) == request.SizeLimit {
			return result, ldap.NewError(ldap.LDAPResultSizeLimitExceeded, errors.New(""))
		}
		result.Entries = append(result.Entries, ldap.NewEntry(e.dn, selectAttributes(e.attributes, request.Attributes)))
	}
	return result, nil
}

func inScope(base, dn []string, scope int) bool {
	if len(dn) < len(base) || !slices.Equal(dn[len(dn)-len(base):], base) {
		return false
	}
	switch scope {
	case ldap.ScopeBaseObject:
		return len(dn) == len(base)
	case ldap.ScopeSingleLevel:
		return len(dn) == len(base)+1
	default:
		return true
	}
}

func selectAttributes(attributes map[string][]string, requested []string) map[string][]string {
	out := map[string][]string{}
	if len(requested) == 0 {
		requested = []string{"*"}
	}
	for _, want := range requested {
		switch want {
		case "1.1":
			continue
		case "*":
			for name, values := range attributes {
				out[name] = values
			}
		default:
			for name, values := range attributes {
				if strings.EqualFold(name, want) {
					out[name] = values
				}
			}
		}
	}
	return out
}

// normalizeDN turns a DN into one lowercase string per RDN, so that DNs can be compared and
// suffix matched without caring about case or spacing.
func normalizeDN(dn string) ([]string, error) {
	if strings.TrimSpace(dn) == "" {
		return nil, nil
	}
	parsed, err := ldap.ParseDN(dn)
	if err != nil {
		return nil, err
	}
	key := make([]string, 0, len(parsed.RDNs))
	for _, rdn := range parsed.RDNs {
		parts := make([]string, 0, len(rdn.Attributes))
		for _, attr := range rdn.Attributes {
			parts = append(parts, strings.ToLower(attr.Type)+"="+strings.ToLower(attr.Value))
		}
		sort.Strings(parts)
		key = append(key, strings.Join(parts, "+"))
	}
	return key, nil
}
