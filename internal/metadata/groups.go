// Copyright 2026 the who-ldap contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package metadata

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-ldap/ldap/v3"

	"github.com/m-martinez/who-ldap/internal/directory"
	"github.com/m-martinez/who-ldap/internal/identity"
	"github.com/m-martinez/who-ldap/internal/metrics"
	"github.com/m-martinez/who-ldap/internal/plog"
	"github.com/m-martinez/who-ldap/internal/userdata"
)

const (
	DefaultGroupFilter        = "(&(objectClass=groupOfUniqueNames)(uniqueMember={dn}))"
	DefaultGroupNameAttribute = "cn"

	// distinguishedNameAttributeName reports the group's DN instead of one of its attributes.
	distinguishedNameAttributeName = "dn"

	// noAttributes asks the server for no attributes at all, see RFC 4511 section 4.5.1.8.
	noAttributes = "1.1"

	groupSearchPageSize = uint32(250)
)

// GroupConfig is the input to NewGroupFetcher.
type GroupConfig struct {
	// Name identifies the provider in logs and metrics.
	Name string

	Connector *directory.Connector

	// BindDN and BindPassword are the service account. Leave both empty to search anonymously.
	BindDN       string
	BindPassword string

	// BaseDN is where groups are searched. Required.
	BaseDN string

	// Filter defaults to DefaultGroupFilter. {dn} is the user's DN.
	Filter string

	Scope directory.Scope

	// NameAttribute is reported for each group. Defaults to "cn"; "dn" reports the group's DN.
	NameAttribute string

	// OutputKey is the identity key the groups are written to. Required.
	OutputKey string

	// Codec decodes the user data token. Defaults to userdata.Plain.
	Codec userdata.Codec

	Metrics *metrics.Metrics

	// Logger defaults to plog.New().
	Logger plog.Logger
}

type GroupFetcher struct {
	c      GroupConfig
	source source
	log    plog.Logger
}

func NewGroupFetcher(config GroupConfig) (*GroupFetcher, error) {
	s := source{connector: config.Connector, bindDN: config.BindDN, bindPassword: config.BindPassword}
	if err := s.validate(); err != nil {
		return nil, fmt.Errorf("metadata provider %q: %w", config.Name, err)
	}
	if strings.TrimSpace(config.BaseDN) == "" {
		return nil, fmt.Errorf("metadata provider %q: base_dn is required", config.Name)
	}
	if config.OutputKey == "" {
		return nil, fmt.Errorf("metadata provider %q: name is required", config.Name)
	}
	if config.Filter == "" {
		config.Filter = DefaultGroupFilter
	}
	if err := validateFilter(config.Filter); err != nil {
		return nil, fmt.Errorf("metadata provider %q: %w", config.Name, err)
	}
	if config.NameAttribute == "" {
		config.NameAttribute = DefaultGroupNameAttribute
	}
	if config.Codec == nil {
		config.Codec = userdata.Plain
	}
	log := config.Logger
	if log == nil {
		log = plog.New()
	}
	return &GroupFetcher{c: config, source: s, log: log.WithValues("provider", config.Name)}, nil
}

func (f *GroupFetcher) Name() string {
	return f.c.Name
}

// TestConnection dials and binds as the service account, or just dials when searching anonymously.
func (f *GroupFetcher) TestConnection(ctx context.Context) error {
	return f.source.testConnection(ctx)
}

// FetchGroups returns the name of every group the user is a member of, in the order the server
// returned them. The list is empty, not nil, when there are none.
func (f *GroupFetcher) FetchGroups(ctx context.Context, id identity.Identity) ([]string, error) {
	dn, ok := userDN(id, f.c.Codec)
	if !ok {
		return nil, fmt.Errorf("%w: no DN in the user data or user id", ErrNotFound)
	}
	filter, err := expandFilter(f.c.Filter, dn, id)
	if err != nil {
		return nil, err
	}

	groups := []string{}
	err = f.source.withConn(ctx, func(conn directory.Conn) error {
		result, err := conn.SearchWithPaging(f.groupSearchRequest(filter), groupSearchPageSize)
		if err != nil {
			return searchError(err, "error searching for group memberships for user with DN %q", dn)
		}
		for _, entry := range result.Entries {
			name, ok := f.groupName(entry)
			if !ok {
				f.log.Debug("skipping group without a name", "group", entry.DN, "attribute", f.c.NameAttribute)
				continue
			}
			groups = append(groups, name)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return groups, nil
}

// AddMetadata writes the groups to the configured output key.
func (f *GroupFetcher) AddMetadata(ctx context.Context, id identity.Identity) error {
	groups, err := f.FetchGroups(ctx, id)
	f.c.Metrics.RecordMetadataLookup(f.c.Name, lookupResult(err))
	if err != nil {
		return err
	}
	id[f.c.OutputKey] = groups
	return nil
}

func (f *GroupFetcher) groupSearchRequest(filter string) *ldap.SearchRequest {
	attributes := []string{f.c.NameAttribute}
	if f.c.NameAttribute == distinguishedNameAttributeName {
		attributes = []string{noAttributes}
	}
	// See https://ldap.com/the-ldap-search-operation for general documentation of LDAP search options.
	return &ldap.SearchRequest{
		BaseDN:       f.c.BaseDN,
		Scope:        f.c.Scope.LDAP(),
		DerefAliases: ldap.NeverDerefAliases,
		SizeLimit:    0, // unlimited size because we will search with paging
		TimeLimit:    searchTimeLimit,
		TypesOnly:    false,
		Filter:       filter,
		Attributes:   attributes,
		Controls:     nil, // nil because ldap.SearchWithPaging() will set the appropriate controls for us
	}
}

func (f *GroupFetcher) groupName(entry *ldap.Entry) (string, bool) {
	if f.c.NameAttribute == distinguishedNameAttributeName {
		return entry.DN, entry.DN != ""
	}
	values := entry.GetAttributeValues(f.c.NameAttribute)
	if len(values) == 0 || values[0] == "" {
		return "", false
	}
	return values[0], true
}
