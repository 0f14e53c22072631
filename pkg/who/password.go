// Copyright 2026 the who-ldap contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package who

import (
	"context"
	"errors"
	"fmt"

	k8sauthenticator "k8s.io/apiserver/pkg/authentication/authenticator"
	"k8s.io/apiserver/pkg/authentication/user"

	"github.com/m-martinez/who-ldap/internal/metadata"
	"github.com/m-martinez/who-ldap/internal/plog"
)

// PasswordAuthenticator authenticates a username and password in the manner of the Kubernetes
// authenticator.Token interface.
type PasswordAuthenticator interface {
	AuthenticatePassword(ctx context.Context, username, password string) (*k8sauthenticator.Response, bool, error)
}

type passwordAuthenticator struct {
	a      *Authenticator
	groups []*metadata.GroupFetcher
	log    plog.Logger
}

var _ PasswordAuthenticator = (*passwordAuthenticator)(nil)

// NewPasswordAuthenticator adapts an authenticator to a PasswordAuthenticator. The user's name is the authenticator's user id, the UID is the user's DN, and the
// groups are collected from every groups provider in groupProviders.
func NewPasswordAuthenticator(a *Authenticator, groupProviders ...*MetadataProvider) (PasswordAuthenticator, error) {
	if a == nil {
		return nil, errors.New("an authenticator is required")
	}
	p := &passwordAuthenticator{a: a, log: plog.New().WithValues("authenticator", a.Name())}
	for _, m := range groupProviders {
		g, ok := m.p.(*metadata.GroupFetcher)
		if !ok {
			return nil, fmt.Errorf("metadata provider %q does not look up groups", m.Name())
		}
		p.groups = append(p.groups, g)
	}
	return p, nil
}

// AuthenticatePassword never returns an error: every failure is reported as not authenticated.
func (p *passwordAuthenticator) AuthenticatePassword(ctx context.Context, username, password string) (*k8sauthenticator.Response, bool, error) {
	id := Identity{LoginKey: username, PasswordKey: password}
	principal, err := p.a.a.Authenticate(ctx, id)
	if err != nil {
		return nil, false, nil
	}
	id[UserIDKey] = principal.ID

	groups := []string{}
	for _, g := range p.groups {
		found, err := g.FetchGroups(ctx, id)
		if err != nil {
			p.log.WarningErr("could not look up groups, continuing without them", err, "provider", g.Name())
			continue
		}
		groups = append(groups, found...)
	}

	return &k8sauthenticator.Response{
		User: &user.DefaultInfo{
			Name:   principal.ID,
			UID:    principal.DN,
			Groups: groups,
		},
	}, true, nil
}
