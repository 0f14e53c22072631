// Copyright 2026 the who-ldap contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package authenticator checks a login and password against an LDAP directory by binding as the user.
//
// Every strategy shares the same template: validate the credentials, resolve the DN to bind as with a
// DNResolver, bind as that DN with the password on a fresh connection, and record the DN in the
// identity's user data so that metadata providers can find the entry later.
package authenticator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-ldap/ldap/v3"
	"k8s.io/utils/trace"

	"github.com/m-martinez/who-ldap/internal/constable"
	"github.com/m-martinez/who-ldap/internal/directory"
	"github.com/m-martinez/who-ldap/internal/identity"
	"github.com/m-martinez/who-ldap/internal/metrics"
	"github.com/m-martinez/who-ldap/internal/plog"
	"github.com/m-martinez/who-ldap/internal/userdata"
)

// ErrAuthenticationFailed is the only error Authenticate returns. The reason is logged, never returned,
// so that callers cannot tell a wrong password from an unknown user or an unreachable directory.
const ErrAuthenticationFailed = constable.Error("authentication failed")

const (
	errMissingCredentials = constable.Error("login and password are required")
	errUserNotFound       = constable.Error("no directory entry matches the login")
	errAmbiguousUser      = constable.Error("more than one directory entry matches the login")
	errInvalidLoginDN     = constable.Error("login is not a valid DN")
	errServiceAccount     = constable.Error("service account failure")

	slowAttemptThreshold = 500 * time.Millisecond
)

// DNResolver finds the DN to bind as for a set of credentials.
type DNResolver interface {
	ResolveDN(ctx context.Context, creds identity.Credentials) (string, error)
}

// DNResolverFunc makes it easy to use a func as a DNResolver.
type DNResolverFunc func(ctx context.Context, creds identity.Credentials) (string, error)

var _ DNResolver = DNResolverFunc(nil)

func (f DNResolverFunc) ResolveDN(ctx context.Context, creds identity.Credentials) (string, error) {
	return f(ctx, creds)
}

// ConnectionTester is implemented by resolvers that talk to the directory on their own.
type ConnectionTester interface {
	TestConnection(ctx context.Context) error
}

// ReturnStyle selects what the host gets back as the user id.
type ReturnStyle int

const (
	// ReturnDN returns the full DN of the user.
	ReturnDN ReturnStyle = iota
	// ReturnLogin returns the login exactly as the user typed it.
	ReturnLogin
)

// ParseReturnStyle accepts "dn" and "login", ignoring case. The empty string means ReturnDN.
func ParseReturnStyle(s string) (ReturnStyle, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "dn":
		return ReturnDN, nil
	case "login":
		return ReturnLogin, nil
	default:
		return 0, fmt.Errorf(`invalid returned_id %q, valid choices are "dn" and "login"`, s)
	}
}

func (r ReturnStyle) String() string {
	if r == ReturnLogin {
		return "login"
	}
	return "dn"
}

// Config is the input to New.
type Config struct {
	// Name identifies the authenticator in logs and metrics.
	Name string

	// Connector opens the connection used for the end user bind.
	Connector *directory.Connector

	// Resolver finds the DN to bind as.
	Resolver DNResolver

	ReturnStyle ReturnStyle

	// Codec records the DN in the identity's user data. Defaults to userdata.Plain.
	Codec userdata.Codec

	// Metrics may be nil.
	Metrics *metrics.Metrics

	// Logger defaults to plog.New().
	Logger plog.Logger
}

type Authenticator struct {
	c   Config
	log plog.Logger
}

func New(config Config) (*Authenticator, error) {
	if config.Connector == nil {
		return nil, fmt.Errorf("authenticator %q: a directory connector is required", config.Name)
	}
	if config.Resolver == nil {
		return nil, fmt.Errorf("authenticator %q: a DN resolver is required", config.Name)
	}
	if config.Codec == nil {
		config.Codec = userdata.Plain
	}
	log := config.Logger
	if log == nil {
		log = plog.New()
	}
	return &Authenticator{c: config, log: log.WithValues("authenticator", config.Name)}, nil
}

func (a *Authenticator) Name() string {
	return a.c.Name
}

// Authenticate binds as the user described by the identity's login and password. On success the DN
// is appended to the identity's user data and the principal is returned. Any failure is reported as
// ErrAuthenticationFailed.
func (a *Authenticator) Authenticate(ctx context.Context, id identity.Identity) (*identity.Principal, error) {
	start := time.Now()
	t := trace.FromContext(ctx).Nest("slow ldap authenticate attempt", trace.Field{Key: "authenticator", Value: a.c.Name})
	defer t.LogIfLong(slowAttemptThreshold) // to help users debug slow LDAP servers

	principal, err := a.authenticate(ctx, id)
	a.c.Metrics.RecordAuthentication(a.c.Name, err == nil, start)
	if err != nil {
		traceAuthFailure(t, err)
		a.logFailure(err)
		return nil, ErrAuthenticationFailed
	}

	traceAuthSuccess(t)
	a.log.Debug("authentication succeeded", "dn", principal.DN)
	return principal, nil
}

func (a *Authenticator) authenticate(ctx context.Context, id identity.Identity) (*identity.Principal, error) {
	creds, ok := id.Credentials()
	if !ok {
		return nil, errMissingCredentials
	}

	dn, err := a.c.Resolver.ResolveDN(ctx, creds)
	if err != nil {
		return nil, err
	}

	err = a.c.Connector.WithConn(ctx, func(conn directory.Conn) error {
		return conn.Bind(dn, creds.Password)
	})
	if err != nil {
		return nil, fmt.Errorf("error binding as %q: %w", dn, err)
	}

	// always recorded, even when the DN is also the user id, so metadata providers can rely on it
	if err := userdata.Save(id, a.c.Codec, dn); err != nil {
		return nil, err
	}

	principal := &identity.Principal{DN: dn, ID: dn}
	if a.c.ReturnStyle == ReturnLogin {
		principal.ID = creds.Login
	}
	return principal, nil
}

// DryRunResolve runs DN resolution for login without binding as the user, so it does not need a
// password. Unlike Authenticate it returns the real error, since it is meant for operators.
func (a *Authenticator) DryRunResolve(ctx context.Context, login string) (string, error) {
	if login == "" {
		return "", errMissingCredentials
	}
	// resolvers never look at the password, a placeholder keeps Credentials.Complete happy
	return a.c.Resolver.ResolveDN(ctx, identity.Credentials{Login: login, Password: "dry-run"})
}

// TestConnection checks that the directory is reachable, and that the service account can bind when
// the resolver uses one.
func (a *Authenticator) TestConnection(ctx context.Context) error {
	if tester, ok := a.c.Resolver.(ConnectionTester); ok {
		return tester.TestConnection(ctx)
	}
	return a.c.Connector.TestConnection(ctx, "", "")
}

func (a *Authenticator) logFailure(err error) {
	switch {
	case errors.Is(err, errServiceAccount):
		a.log.Error("authentication failed, please check the service account", err)
	case isCredentialProblem(err):
		a.log.DebugErr("authentication failed", err)
	case errors.Is(err, errAmbiguousUser):
		a.log.WarningErr("authentication failed, please check the naming attribute and restrict filter", err)
	default:
		a.log.Error("authentication failed", err)
	}
}

// isCredentialProblem is true for failures caused by what the user typed, as opposed to the directory
// or the configuration.
func isCredentialProblem(err error) bool {
	return errors.Is(err, errMissingCredentials) ||
		errors.Is(err, errUserNotFound) ||
		errors.Is(err, errInvalidLoginDN) ||
		directory.IsResultCode(err, ldap.LDAPResultInvalidCredentials, ldap.LDAPResultNoSuchObject)
}

func traceAuthFailure(t *trace.Trace, err error) {
	t.Step("authentication failed",
		trace.Field{Key: "authenticated", Value: false},
		trace.Field{Key: "reason", Value: err.Error()},
	)
}

func traceAuthSuccess(t *trace.Trace) {
	t.Step("authentication succeeded",
		trace.Field{Key: "authenticated", Value: true},
	)
}
