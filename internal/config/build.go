// Copyright 2026 the who-ldap contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"context"
	"encoding/base64"
	"fmt"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"

	"github.com/m-martinez/who-ldap/internal/authenticator"
	"github.com/m-martinez/who-ldap/internal/directory"
	"github.com/m-martinez/who-ldap/internal/identity"
	"github.com/m-martinez/who-ldap/internal/metadata"
	"github.com/m-martinez/who-ldap/internal/metrics"
	"github.com/m-martinez/who-ldap/internal/plog"
	"github.com/m-martinez/who-ldap/internal/userdata"
)

// MetadataProvider is implemented by metadata.AttributeFetcher and metadata.GroupFetcher.
type MetadataProvider interface {
	Name() string
	AddMetadata(ctx context.Context, id identity.Identity) error
	TestConnection(ctx context.Context) error
}

var (
	_ MetadataProvider = (*metadata.AttributeFetcher)(nil)
	_ MetadataProvider = (*metadata.GroupFetcher)(nil)
)

// Plugins are the constructed plugins of a Config, in file order.
type Plugins struct {
	Authenticators    []*authenticator.Authenticator
	MetadataProviders []MetadataProvider
	Codec             userdata.Codec
}

// Authenticator finds an authenticator by id.
func (p *Plugins) Authenticator(id string) (*authenticator.Authenticator, bool) {
	for _, a := range p.Authenticators {
		if a.Name() == id {
			return a, true
		}
	}
	return nil, false
}

// Option customizes Build.
type Option func(*buildOptions)

type buildOptions struct {
	dialer  directory.Dialer
	metrics *metrics.Metrics
	logger  plog.Logger
}

// WithDialer replaces the network dialer of every connector, for tests.
func WithDialer(dialer directory.Dialer) Option {
	return func(o *buildOptions) { o.dialer = dialer }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *buildOptions) { o.metrics = m }
}

func WithLogger(logger plog.Logger) Option {
	return func(o *buildOptions) { o.logger = logger }
}

// Build constructs every plugin. All construction errors are reported at once.
func (c *Config) Build(opts ...Option) (*Plugins, error) {
	o := &buildOptions{}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = plog.New()
	}

	codec, err := c.codec()
	if err != nil {
		return nil, err
	}

	plugins := &Plugins{Codec: codec}
	var errs []error

	for _, spec := range c.Authenticators {
		a, err := spec.build(codec, o)
		if err != nil {
			errs = append(errs, fmt.Errorf("authenticator %q: %w", spec.ID, err))
			continue
		}
		plugins.Authenticators = append(plugins.Authenticators, a)
	}

	for _, spec := range c.MetadataProviders {
		p, err := spec.build(codec, o)
		if err != nil {
			errs = append(errs, fmt.Errorf("metadata provider %q: %w", spec.ID, err))
			continue
		}
		plugins.MetadataProviders = append(plugins.MetadataProviders, p)
	}

	if err := utilerrors.NewAggregate(errs); err != nil {
		return nil, err
	}
	return plugins, nil
}

func (c *Config) codec() (userdata.Codec, error) {
	if c.Token == nil {
		return userdata.Plain, nil
	}
	hashKey, err := base64.StdEncoding.DecodeString(c.Token.HashKey)
	if err != nil {
		return nil, fmt.Errorf("token.hash_key: %w", err)
	}
	var blockKey []byte
	if c.Token.BlockKey != "" {
		if blockKey, err = base64.StdEncoding.DecodeString(c.Token.BlockKey); err != nil {
			return nil, fmt.Errorf("token.block_key: %w", err)
		}
	}
	return userdata.NewSealed(hashKey, blockKey)
}

func connector(url string, startTLS bool, caBundle string, timeout metav1.Duration, o *buildOptions) (*directory.Connector, error) {
	var bundle []byte
	if caBundle != "" {
		bundle = []byte(caBundle)
	}
	return directory.NewConnector(directory.Config{
		URL:      url,
		StartTLS: startTLS,
		CABundle: bundle,
		Timeout:  timeout.Duration,
		Dialer:   o.dialer,
	})
}

func (s AuthenticatorSpec) build(codec userdata.Codec, o *buildOptions) (*authenticator.Authenticator, error) {
	conn, err := connector(s.URL, s.StartTLS, s.CABundle, s.Timeout, o)
	if err != nil {
		return nil, err
	}

	returnStyle, err := authenticator.ParseReturnStyle(s.ReturnedID)
	if err != nil {
		return nil, err
	}

	var resolver authenticator.DNResolver
	switch s.Type {
	case AuthenticatorTypePattern:
		resolver, err = authenticator.NewPatternResolver(s.BaseDN, s.NamingAttribute)
	case AuthenticatorTypeSearch:
		scope, scopeErr := directory.ParseScope(s.SearchScope)
		if scopeErr != nil {
			return nil, scopeErr
		}
		resolver, err = authenticator.NewSearchResolver(authenticator.SearchConfig{
			Name:            s.ID,
			Connector:       conn,
			BaseDN:          s.BaseDN,
			BindDN:          s.BindDN,
			BindPassword:    s.BindPassword,
			NamingAttribute: s.NamingAttribute,
			Scope:           scope,
			Restrict:        s.Restrict,
			Logger:          o.logger,
		})
	default:
		err = fmt.Errorf("unknown type %q", s.Type)
	}
	if err != nil {
		return nil, err
	}

	return authenticator.New(authenticator.Config{
		Name:        s.ID,
		Connector:   conn,
		Resolver:    resolver,
		ReturnStyle: returnStyle,
		Codec:       codec,
		Metrics:     o.metrics,
		Logger:      o.logger,
	})
}

func (s ProviderSpec) build(codec userdata.Codec, o *buildOptions) (MetadataProvider, error) {
	conn, err := connector(s.URL, s.StartTLS, s.CABundle, s.Timeout, o)
	if err != nil {
		return nil, err
	}

	switch s.Type {
	case ProviderTypeAttributes:
		return metadata.NewAttributeFetcher(metadata.AttributeConfig{
			Name:         s.ID,
			Connector:    conn,
			BindDN:       s.BindDN,
			BindPassword: s.BindPassword,
			BaseDN:       s.BaseDN,
			Filter:       s.Filter,
			Attributes:   s.Attributes.Map,
			Flatten:      s.Flatten,
			OutputKey:    s.Name,
			Codec:        codec,
			Metrics:      o.metrics,
			Logger:       o.logger,
		})
	case ProviderTypeGroups:
		scope, err := directory.ParseScope(s.SearchScope)
		if err != nil {
			return nil, err
		}
		return metadata.NewGroupFetcher(metadata.GroupConfig{
			Name:          s.ID,
			Connector:     conn,
			BindDN:        s.BindDN,
			BindPassword:  s.BindPassword,
			BaseDN:        s.BaseDN,
			Filter:        s.Filter,
			Scope:         scope,
			NameAttribute: s.ReturnedID,
			OutputKey:     s.Name,
			Codec:         codec,
			Metrics:       o.metrics,
			Logger:        o.logger,
		})
	default:
		return nil, fmt.Errorf("unknown type %q", s.Type)
	}
}
