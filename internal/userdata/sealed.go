// Copyright 2026 the who-ldap contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package userdata

import (
	"fmt"
	"regexp"

	"github.com/gorilla/securecookie"

	"github.com/m-martinez/who-ldap/internal/plog"
)

const sealedTokenName = "who-ldap-dn"

// securecookie emits URL-safe base64.
var sealedTokenRegexp = regexp.MustCompile(`<sdn:([A-Za-z0-9_=-]+)>`)

type sealedCodec struct {
	cookie *securecookie.SecureCookie
}

// NewSealed returns a codec whose "<sdn:...>" tokens are authenticated with hashKey (HMAC-SHA256, at
// least 32 bytes) and, when blockKey is set, encrypted with AES (16, 24 or 32 bytes). The DN is then
// neither readable nor forgeable by whoever holds the session cookie.
//
// A sealed codec ignores plain "<dn:...>" tokens, since anybody could have written those.
// Tokens do not expire on their own; they live as long as the host's session.
func NewSealed(hashKey, blockKey []byte) (Codec, error) {
	if len(hashKey) < 32 {
		return nil, fmt.Errorf("token hash key must be at least 32 bytes, got %d", len(hashKey))
	}
	switch len(blockKey) {
	case 0, 16, 24, 32:
	default:
		return nil, fmt.Errorf("token block key must be 16, 24 or 32 bytes, got %d", len(blockKey))
	}
	if len(blockKey) == 0 {
		blockKey = nil
	}

	cookie := securecookie.New(hashKey, blockKey).
		SetSerializer(securecookie.JSONEncoder{}).
		MaxAge(0).
		MaxLength(0)

	return &sealedCodec{cookie: cookie}, nil
}

func (c *sealedCodec) Encode(payload, dn string) (string, error) {
	sealed, err := c.cookie.Encode(sealedTokenName, dn)
	if err != nil {
		return "", fmt.Errorf("could not seal user data token: %w", err)
	}
	return payload + "<sdn:" + sealed + ">", nil
}

func (c *sealedCodec) Decode(payload string) (string, bool) {
	match := sealedTokenRegexp.FindStringSubmatch(payload)
	if match == nil {
		return "", false
	}

	var dn string
	if err := c.cookie.Decode(sealedTokenName, match[1], &dn); err != nil {
		plog.DebugErr("ignoring user data token that could not be unsealed", err)
		return "", false
	}
	if dn == "" {
		return "", false
	}

	return dn, true
}
