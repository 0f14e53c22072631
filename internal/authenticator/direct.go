// Copyright 2026 the who-ldap contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package authenticator

import (
	"context"
	"fmt"

	"github.com/m-martinez/who-ldap/internal/identity"
)

// DirectDNResolver is for hosts whose login form already asks for a full DN. The login must parse as a DN.
// It is usually paired with directory.ConnectorForConn and a connection the host opened itself.
type DirectDNResolver struct{}

var _ DNResolver = DirectDNResolver{}

func (DirectDNResolver) ResolveDN(_ context.Context, creds identity.Credentials) (string, error) {
	if creds.Login == "" {
		return "", errMissingCredentials
	}
	if _, err := parseDN(creds.Login); err != nil {
		return "", fmt.Errorf("%w: %s", errInvalidLoginDN, err.Error())
	}
	return creds.Login, nil
}
