// Copyright 2026 the who-ldap contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package who is the host facing API. Hosts hand each plugin the per-request identity map:
// authenticators check the login and password in it and return the user id, and metadata
// providers add directory attributes and groups to it.
//
//	plugins, err := who.FromPath(ctx, "who-ldap.yaml")
//	...
//	auth, _ := plugins.Authenticator("ldap_auth")
//	if userID, ok := auth.Authenticate(ctx, identity); ok {
//		identity[who.UserIDKey] = userID
//		plugins.AddMetadata(ctx, identity)
//	}
package who

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/m-martinez/who-ldap/internal/authenticator"
	"github.com/m-martinez/who-ldap/internal/config"
	"github.com/m-martinez/who-ldap/internal/directory"
	"github.com/m-martinez/who-ldap/internal/identity"
	"github.com/m-martinez/who-ldap/internal/metadata"
	"github.com/m-martinez/who-ldap/internal/metrics"
	"github.com/m-martinez/who-ldap/internal/plog"
)

// Identity is the per-request identity map owned by the host.
type Identity = identity.Identity

// Identity keys read or written by the plugins.
const (
	LoginKey    = identity.LoginKey
	PasswordKey = identity.PasswordKey
	UserDataKey = identity.UserDataKey
	UserIDKey   = identity.UserIDKey
)

// Conn is an open directory connection, such as a *ldap.Conn from github.com/go-ldap/ldap/v3.
type Conn = directory.Conn

// Dialer opens directory connections. Hosts only need one to run against something other than a
// real server.
type Dialer = directory.Dialer

// Authenticator checks a login and password against the directory.
type Authenticator struct {
	a *authenticator.Authenticator
}

// Name is the authenticator's id from the configuration.
func (a *Authenticator) Name() string {
	return a.a.Name()
}

// Authenticate returns the user id when the identity's login and password are valid. Every kind
// of failure returns false; the reason is only logged.
func (a *Authenticator) Authenticate(ctx context.Context, id Identity) (string, bool) {
	principal, err := a.a.Authenticate(ctx, id)
	if err != nil {
		return "", false
	}
	return principal.ID, true
}

// TestConnection checks that the directory is reachable and the service account, if any, can bind.
func (a *Authenticator) TestConnection(ctx context.Context) error {
	return a.a.TestConnection(ctx)
}

// ResolveDN finds the DN a login would bind as, without binding.
func (a *Authenticator) ResolveDN(ctx context.Context, login string) (string, error) {
	return a.a.DryRunResolve(ctx, login)
}

// NewDirectAuthenticator authenticates on a connection the host already opened, for login forms
// that ask for the full DN. The connection is never closed here.
func NewDirectAuthenticator(name string, conn Conn) (*Authenticator, error) {
	if conn == nil {
		return nil, fmt.Errorf("authenticator %q: a connection is required", name)
	}
	a, err := authenticator.New(authenticator.Config{
		Name:      name,
		Connector: directory.ConnectorForConn(conn),
		Resolver:  authenticator.DirectDNResolver{},
	})
	if err != nil {
		return nil, err
	}
	return &Authenticator{a: a}, nil
}

// MetadataProvider adds directory data to an authenticated identity.
type MetadataProvider struct {
	p   config.MetadataProvider
	log plog.Logger
}

func (m *MetadataProvider) Name() string {
	return m.p.Name()
}

// AddMetadata writes the provider's data into the identity. Failures are logged and otherwise
// ignored, so that a directory outage does not log the user out.
func (m *MetadataProvider) AddMetadata(ctx context.Context, id Identity) {
	err := m.p.AddMetadata(ctx, id)
	switch {
	case err == nil:
	case errors.Is(err, metadata.ErrNotFound):
		m.log.DebugErr("no metadata added", err)
	default:
		m.log.Error("could not add metadata", err)
	}
}

// TestConnection checks that the directory is reachable and the service account, if any, can bind.
func (m *MetadataProvider) TestConnection(ctx context.Context) error {
	return m.p.TestConnection(ctx)
}

// Plugins are the plugins of one configuration file, in file order.
type Plugins struct {
	Authenticators    []*Authenticator
	MetadataProviders []*MetadataProvider
}

// Authenticator finds an authenticator by id.
func (p *Plugins) Authenticator(id string) (*Authenticator, bool) {
	for _, a := range p.Authenticators {
		if a.Name() == id {
			return a, true
		}
	}
	return nil, false
}

// MetadataProvider finds a metadata provider by id.
func (p *Plugins) MetadataProvider(id string) (*MetadataProvider, bool) {
	for _, m := range p.MetadataProviders {
		if m.Name() == id {
			return m, true
		}
	}
	return nil, false
}

// AddMetadata runs every metadata provider in order.
func (p *Plugins) AddMetadata(ctx context.Context, id Identity) {
	for _, m := range p.MetadataProviders {
		m.AddMetadata(ctx, id)
	}
}

// Option customizes FromPath and Load.
type Option func(*options)

type options struct {
	dialer     Dialer
	registerer prometheus.Registerer
	setupLogs  bool
	logger     plog.Logger
}

// WithDialer replaces the network dialer of every plugin.
func WithDialer(dialer Dialer) Option {
	return func(o *options) { o.dialer = dialer }
}

// WithMetrics registers the plugins' metrics with registerer.
func WithMetrics(registerer prometheus.Registerer) Option {
	return func(o *options) { o.registerer = registerer }
}

// WithLogSetup applies the file's log section to the global logger.
func WithLogSetup() Option {
	return func(o *options) { o.setupLogs = true }
}

func withLogger(logger plog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// FromPath loads and builds every plugin of a configuration file.
func FromPath(ctx context.Context, path string, opts ...Option) (*Plugins, error) {
	c, err := config.FromPath(path)
	if err != nil {
		return nil, err
	}
	return build(ctx, c, opts)
}

// Load is FromPath for a document that is already in memory.
func Load(ctx context.Context, data []byte, opts ...Option) (*Plugins, error) {
	c, err := config.Load(data)
	if err != nil {
		return nil, err
	}
	return build(ctx, c, opts)
}

func build(ctx context.Context, c *config.Config, opts []Option) (*Plugins, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = plog.New()
	}

	if o.setupLogs {
		if err := c.ApplyLogging(ctx); err != nil {
			return nil, err
		}
	}

	buildOpts := []config.Option{config.WithLogger(o.logger)}
	if o.dialer != nil {
		buildOpts = append(buildOpts, config.WithDialer(o.dialer))
	}
	if o.registerer != nil {
		m, err := metrics.New(o.registerer)
		if err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
		buildOpts = append(buildOpts, config.WithMetrics(m))
	}

	built, err := c.Build(buildOpts...)
	if err != nil {
		return nil, err
	}

	plugins := &Plugins{}
	for _, a := range built.Authenticators {
		plugins.Authenticators = append(plugins.Authenticators, &Authenticator{a: a})
	}
	for _, p := range built.MetadataProviders {
		plugins.MetadataProviders = append(plugins.MetadataProviders, &MetadataProvider{
			p:   p,
			log: o.logger.WithValues("provider", p.Name()),
		})
	}
	return plugins, nil
}
