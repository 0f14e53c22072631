// Copyright 2026 the who-ldap contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package metadata

import (
	"context"
	"fmt"

	"github.com/go-ldap/ldap/v3"

	"github.com/m-martinez/who-ldap/internal/attrmap"
	"github.com/m-martinez/who-ldap/internal/directory"
	"github.com/m-martinez/who-ldap/internal/identity"
	"github.com/m-martinez/who-ldap/internal/metrics"
	"github.com/m-martinez/who-ldap/internal/plog"
	"github.com/m-martinez/who-ldap/internal/userdata"
)

// AttributeConfig is the input to NewAttributeFetcher.
type AttributeConfig struct {
	// Name identifies the provider in logs and metrics.
	Name string

	Connector *directory.Connector

	// BindDN and BindPassword are the service account. Leave both empty to search anonymously.
	BindDN       string
	BindPassword string

	// BaseDN is the search base when Filter is set. Empty means the root DSE.
	BaseDN string

	// Filter turns the base object read of the user's entry into a subtree search.
	// It may contain {dn} and {<identity key>} placeholders.
	Filter string

	// Attributes selects and renames attributes. The zero value reports every attribute verbatim.
	Attributes attrmap.Map

	// Flatten turns single valued attributes into plain strings.
	Flatten bool

	// OutputKey nests the attributes under this identity key. Empty merges them into the identity.
	OutputKey string

	// Codec decodes the user data token. Defaults to userdata.Plain.
	Codec userdata.Codec

	Metrics *metrics.Metrics

	// Logger defaults to plog.New().
	Logger plog.Logger
}

type AttributeFetcher struct {
	c      AttributeConfig
	source source
	log    plog.Logger
}

func NewAttributeFetcher(config AttributeConfig) (*AttributeFetcher, error) {
	s := source{connector: config.Connector, bindDN: config.BindDN, bindPassword: config.BindPassword}
	if err := s.validate(); err != nil {
		return nil, fmt.Errorf("metadata provider %q: %w", config.Name, err)
	}
	if config.Filter != "" {
		if err := validateFilter(config.Filter); err != nil {
			return nil, fmt.Errorf("metadata provider %q: %w", config.Name, err)
		}
	}
	if config.Codec == nil {
		config.Codec = userdata.Plain
	}
	log := config.Logger
	if log == nil {
		log = plog.New()
	}
	return &AttributeFetcher{c: config, source: s, log: log.WithValues("provider", config.Name)}, nil
}

func (f *AttributeFetcher) Name() string {
	return f.c.Name
}

// TestConnection dials and binds as the service account, or just dials when searching anonymously.
func (f *AttributeFetcher) TestConnection(ctx context.Context) error {
	return f.source.testConnection(ctx)
}

// FetchAttributes reads the user's entry and returns its attributes, renamed and flattened.
// Single values are strings when Flatten is set; every other value is a []string.
func (f *AttributeFetcher) FetchAttributes(ctx context.Context, id identity.Identity) (map[string]any, error) {
	request, err := f.searchRequest(id)
	if err != nil {
		return nil, err
	}

	var entry *ldap.Entry
	err = f.source.withConn(ctx, func(conn directory.Conn) error {
		result, err := conn.Search(request)
		if err != nil {
			return searchError(err, "error searching %q", request.BaseDN)
		}
		if len(result.Entries) == 0 {
			return fmt.Errorf("%w: no entry matched %q under %q", ErrNotFound, request.Filter, request.BaseDN)
		}
		if len(result.Entries) > 1 {
			f.log.Debug("filter matched more than one entry, using the first", "count", len(result.Entries))
		}
		entry = result.Entries[0]
		return nil
	})
	if err != nil {
		return nil, err
	}

	return f.normalize(entry), nil
}

// AddMetadata fetches the attributes and writes them into the identity.
func (f *AttributeFetcher) AddMetadata(ctx context.Context, id identity.Identity) error {
	attributes, err := f.FetchAttributes(ctx, id)
	f.c.Metrics.RecordMetadataLookup(f.c.Name, lookupResult(err))
	if err != nil {
		return err
	}

	if f.c.OutputKey != "" {
		id[f.c.OutputKey] = attributes
		return nil
	}
	for k, v := range attributes {
		id[k] = v
	}
	return nil
}

func (f *AttributeFetcher) searchRequest(id identity.Identity) (*ldap.SearchRequest, error) {
	dn, hasDN := userDN(id, f.c.Codec)

	// See https://ldap.com/the-ldap-search-operation for general documentation of LDAP search options.
	request := &ldap.SearchRequest{
		DerefAliases: ldap.NeverDerefAliases,
		SizeLimit:    0,
		TimeLimit:    searchTimeLimit,
		TypesOnly:    false,
		Attributes:   f.c.Attributes.Attributes(),
		Controls:     nil,
	}

	if f.c.Filter == "" {
		if !hasDN {
			return nil, fmt.Errorf("%w: no DN in the user data or user id", ErrNotFound)
		}
		request.BaseDN = dn
		request.Scope = directory.Base.LDAP()
		request.Filter = "(objectClass=*)" // a filter is required even when reading a single entry
		return request, nil
	}

	filter, err := expandFilter(f.c.Filter, dn, id)
	if err != nil {
		return nil, err
	}
	request.BaseDN = f.c.BaseDN
	request.Scope = directory.Subtree.LDAP()
	request.Filter = filter
	return request, nil
}

func (f *AttributeFetcher) normalize(entry *ldap.Entry) map[string]any {
	out := make(map[string]any, len(entry.Attributes))
	for _, attr := range entry.Attributes {
		key, ok := f.c.Attributes.OutputKey(attr.Name)
		if !ok {
			// servers may return operational attributes nobody asked for
			continue
		}
		values := append([]string{}, attr.Values...)
		if f.c.Flatten && len(values) == 1 {
			out[key] = values[0]
			continue
		}
		out[key] = values
	}
	return out
}
