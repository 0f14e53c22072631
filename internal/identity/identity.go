// Copyright 2026 the who-ldap contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package identity holds the host-owned identity map and the values derived from it.
package identity

import (
	"fmt"
)

// Well-known identity keys shared with the host.
const (
	LoginKey    = "login"
	PasswordKey = "password"
	UserDataKey = "userdata"
	UserIDKey   = "repoze.who.userid"
)

// Identity is the per-request identity map owned by the host. Authenticators read credentials from it
// and record the user data token in it; metadata providers write attributes and groups into it.
type Identity map[string]any

// Get returns the value of key when it is a string. []byte values are accepted as well.
func (id Identity) Get(key string) (string, bool) {
	switch v := id[key].(type) {
	case string:
		return v, true
	case []byte:
		return string(v), true
	default:
		return "", false
	}
}

// Credentials returns the login and password when both are non-empty strings.
func (id Identity) Credentials() (Credentials, bool) {
	login, _ := id.Get(LoginKey)
	password, _ := id.Get(PasswordKey)
	creds := Credentials{Login: login, Password: password}
	return creds, creds.Complete()
}

// UserData returns the opaque user data payload, or the empty string.
func (id Identity) UserData() string {
	s, _ := id.Get(UserDataKey)
	return s
}

func (id Identity) SetUserData(payload string) {
	id[UserDataKey] = payload
}

// UserID is the principal identifier the host stored after authentication.
func (id Identity) UserID() (string, bool) {
	s, ok := id.Get(UserIDKey)
	return s, ok && s != ""
}

// Redacted returns a shallow copy without the password.
func (id Identity) Redacted() Identity {
	out := make(Identity, len(id))
	for k, v := range id {
		if k == PasswordKey {
			continue
		}
		out[k] = v
	}
	return out
}

// Credentials are a login and password supplied for one authentication attempt.
// They are never logged: String and GoString omit the password.
type Credentials struct {
	Login    string
	Password string
}

var (
	_ fmt.Stringer   = Credentials{}
	_ fmt.GoStringer = Credentials{}
)

// Complete reports whether both fields are set. An empty password would otherwise turn into an
// unauthenticated bind, which most servers accept.
func (c Credentials) Complete() bool {
	return c.Login != "" && c.Password != ""
}

func (c Credentials) String() string {
	return fmt.Sprintf("{Login:%q Password:<redacted>}", c.Login)
}

func (c Credentials) GoString() string {
	return fmt.Sprintf("identity.Credentials{Login:%q, Password:<redacted>}", c.Login)
}

// Principal is the result of a successful authentication.
type Principal struct {
	// DN is the distinguished name the user bound as.
	DN string
	// ID is what the host should use as the user id: the DN or the bare login.
	ID string
}
