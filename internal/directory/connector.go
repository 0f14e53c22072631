// Copyright 2026 the who-ldap contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package directory

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/go-ldap/ldap/v3"

	"github.com/m-martinez/who-ldap/internal/constable"
	"github.com/m-martinez/who-ldap/internal/endpointaddr"
	"github.com/m-martinez/who-ldap/internal/plog"
)

const (
	// DefaultTimeout bounds the TCP dial and each directory request when no timeout is configured.
	DefaultTimeout = time.Minute

	errStartTLSWithLDAPS = constable.Error("start_tls cannot be used with an ldaps:// URL")
)

// Config is the input to NewConnector.
type Config struct {
	// URL is the ldap:// or ldaps:// URL of the directory server.
	URL string

	// StartTLS upgrades a plain ldap:// connection to TLS before anything else is sent.
	StartTLS bool

	// PEM-encoded CA cert bundle to trust when connecting to the directory server. Can be nil.
	CABundle []byte

	// Timeout bounds the dial and every request. Defaults to DefaultTimeout.
	Timeout time.Duration

	// Dialer exists to enable testing. When nil, will use a default appropriate for production use.
	Dialer Dialer
}

// Connector hands out directory connections. It is read-only after construction and safe for concurrent use.
type Connector struct {
	endpoint Endpoint
	startTLS bool
	caBundle []byte
	timeout  time.Duration
	dialer   Dialer

	// borrowed is a connection owned by the host, see ConnectorForConn.
	borrowed Conn
}

// NewConnector validates the config and returns a Connector that dials a fresh connection per use.
func NewConnector(config Config) (*Connector, error) {
	endpoint, err := ParseURL(config.URL)
	if err != nil {
		return nil, err
	}

	if config.StartTLS && endpoint.UseTLS {
		return nil, errStartTLSWithLDAPS
	}

	if len(config.CABundle) > 0 && !x509.NewCertPool().AppendCertsFromPEM(config.CABundle) {
		return nil, fmt.Errorf("could not parse CA bundle for %s", endpoint)
	}

	timeout := config.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Connector{
		endpoint: endpoint,
		startTLS: config.StartTLS,
		caBundle: config.CABundle,
		timeout:  timeout,
		dialer:   config.Dialer,
	}, nil
}

// ConnectorForConn wraps a connection that the host already opened. WithConn lends it out as is,
// and it is never closed by this package.
func ConnectorForConn(conn Conn) *Connector {
	return &Connector{borrowed: conn, timeout: DefaultTimeout}
}

// Endpoint returns where this Connector dials. It is the zero value for a borrowed connection.
func (c *Connector) Endpoint() Endpoint {
	return c.endpoint
}

// String describes the connector for logs.
func (c *Connector) String() string {
	if c.borrowed != nil {
		return "borrowed connection"
	}
	return c.endpoint.String()
}

// WithConn runs fn with an open connection. A dialed connection is closed when fn returns or panics.
func (c *Connector) WithConn(ctx context.Context, fn func(conn Conn) error) error {
	if c.borrowed != nil {
		return fn(c.borrowed)
	}

	conn, err := c.dial(ctx)
	if err != nil {
		return fmt.Errorf(`error dialing %q: %w`, c.endpoint.String(), err)
	}
	defer func() {
		if closeErr := conn.Close(); closeErr != nil {
			plog.DebugErr("error closing directory connection", closeErr, "endpoint", c.endpoint.String())
		}
	}()

	return fn(conn)
}

// TestConnection dials and binds with the given credentials, or just dials when both are empty.
func (c *Connector) TestConnection(ctx context.Context, bindDN, bindPassword string) error {
	return c.WithConn(ctx, func(conn Conn) error {
		if bindDN == "" && bindPassword == "" {
			return nil
		}
		if err := conn.Bind(bindDN, bindPassword); err != nil {
			return fmt.Errorf(`error binding as %q: %w`, bindDN, err)
		}
		return nil
	})
}

func (c *Connector) dial(ctx context.Context) (Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, ldap.NewError(ldap.ErrorNetwork, err)
	}

	addr := c.endpoint.HostPort()

	// Override the real dialer for testing purposes sometimes.
	if c.dialer != nil {
		return c.dialer.Dial(ctx, addr)
	}

	var dialFunc DialerFunc
	switch {
	case c.endpoint.UseTLS:
		dialFunc = c.dialTLS
	case c.startTLS:
		dialFunc = c.dialStartTLS
	default:
		dialFunc = c.dialPlain
	}

	return dialFunc(ctx, addr)
}

// dialTLS is the default dialer for ldaps:// URLs.
// Unfortunately, the go-ldap library does not seem to support dialing with a context.Context,
// so we implement it ourselves, heavily inspired by ldap.DialURL.
func (c *Connector) dialTLS(ctx context.Context, addr endpointaddr.HostPort) (Conn, error) {
	tlsConfig, err := c.tlsConfig(addr)
	if err != nil {
		return nil, ldap.NewError(ldap.ErrorNetwork, err)
	}

	dialer := &tls.Dialer{NetDialer: c.netDialer(), Config: tlsConfig}
	netConn, err := dialer.DialContext(ctx, "tcp", addr.Endpoint())
	if err != nil {
		return nil, ldap.NewError(ldap.ErrorNetwork, err)
	}

	return c.start(netConn, true), nil
}

// dialStartTLS is the default dialer for ldap:// URLs with StartTLS.
func (c *Connector) dialStartTLS(ctx context.Context, addr endpointaddr.HostPort) (Conn, error) {
	tlsConfig, err := c.tlsConfig(addr)
	if err != nil {
		return nil, ldap.NewError(ldap.ErrorNetwork, err)
	}

	netConn, err := c.netDialer().DialContext(ctx, "tcp", addr.Endpoint())
	if err != nil {
		return nil, ldap.NewError(ldap.ErrorNetwork, err)
	}

	conn := c.start(netConn, false)
	if err := conn.StartTLS(tlsConfig); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return conn, nil
}

// dialPlain is the default dialer for ldap:// URLs without StartTLS.
func (c *Connector) dialPlain(ctx context.Context, addr endpointaddr.HostPort) (Conn, error) {
	netConn, err := c.netDialer().DialContext(ctx, "tcp", addr.Endpoint())
	if err != nil {
		return nil, ldap.NewError(ldap.ErrorNetwork, err)
	}

	return c.start(netConn, false), nil
}

func (c *Connector) start(netConn net.Conn, isTLS bool) *ldap.Conn {
	conn := ldap.NewConn(netConn, isTLS)
	conn.SetTimeout(c.timeout)
	conn.Start()
	return conn
}

func (c *Connector) netDialer() *net.Dialer {
	return &net.Dialer{Timeout: c.timeout}
}

func (c *Connector) tlsConfig(addr endpointaddr.HostPort) (*tls.Config, error) {
	var rootCAs *x509.CertPool
	if len(c.caBundle) > 0 {
		rootCAs = x509.NewCertPool()
		if !rootCAs.AppendCertsFromPEM(c.caBundle) {
			return nil, errors.New("could not parse CA bundle")
		}
	}
	return &tls.Config{MinVersion: tls.VersionTLS12, RootCAs: rootCAs, ServerName: addr.Host}, nil
}
