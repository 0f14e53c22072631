// Copyright 2026 the who-ldap contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package endpointaddr parses the "<host>[:<port>]" authority of a directory server URL.
package endpointaddr

import (
	"errors"
	"fmt"
	"net"
	"strconv"

	"k8s.io/apimachinery/pkg/util/validation"
	"k8s.io/apimachinery/pkg/util/validation/field"
)

// HostPort is a validated directory server address.
type HostPort struct {
	// Host is a DNS hostname or an IP address, without brackets. It is also the TLS ServerName.
	Host string

	// Port may be the default port given to Parse.
	Port uint16
}

// Endpoint is the address to pass to net.Dial.
func (h HostPort) Endpoint() string {
	return net.JoinHostPort(h.Host, strconv.Itoa(int(h.Port)))
}

// Parse validates an authority in one of these forms, using defaultPort when no port is given:
//
// - "<hostname>" or "<hostname>:<port>"
// - "<IPv4>" or "<IPv4>:<port>"
// - "<IPv6>" or "[<IPv6>]:<port>"
func Parse(authority string, defaultPort uint16) (HostPort, error) {
	if authority == "" {
		return HostPort{}, errors.New("host must not be empty")
	}

	host, rawPort, err := splitHostPort(authority, defaultPort)
	if err != nil {
		return HostPort{}, err
	}

	port, err := parsePort(rawPort)
	if err != nil {
		return HostPort{}, err
	}

	if !validHost(host) {
		return HostPort{}, fmt.Errorf("host %q is not a valid hostname or IP address", host)
	}

	return HostPort{Host: host, Port: port}, nil
}

// splitHostPort accepts an authority with or without a port. A bare IPv6 address only splits
// after the default port is joined on, because JoinHostPort adds the brackets.
func splitHostPort(authority string, defaultPort uint16) (string, string, error) {
	if host, port, err := net.SplitHostPort(authority); err == nil {
		return host, port, nil
	}
	return net.SplitHostPort(net.JoinHostPort(authority, strconv.Itoa(int(defaultPort))))
}

func parsePort(raw string) (uint16, error) {
	port, err := strconv.Atoi(raw)
	if err != nil || len(validation.IsValidPortNum(port)) > 0 {
		return 0, fmt.Errorf("invalid port %q", raw)
	}
	return uint16(port), nil //nolint:gosec // range checked by IsValidPortNum
}

// validHost reports whether host is an IP address or an RFC 1123 DNS subdomain.
func validHost(host string) bool {
	return len(validation.IsValidIP(field.NewPath("host"), host)) == 0 ||
		len(validation.IsDNS1123Subdomain(host)) == 0
}
