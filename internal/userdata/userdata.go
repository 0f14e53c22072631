// Copyright 2026 the who-ldap contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package userdata carries a resolved DN inside the host's opaque "userdata" session field,
// so that a later metadata lookup can find the directory entry without searching for it again.
//
// The plain token format is "<dn:BASE64>" using standard base64 of the UTF-8 DN. Tokens are
// appended to whatever the payload already contains, and decoding consults only the first token.
package userdata

import (
	"encoding/base64"
	"regexp"
	"unicode/utf8"

	"github.com/m-martinez/who-ldap/internal/identity"
)

// Codec encodes a DN into a user data payload and recovers it again.
type Codec interface {
	// Encode appends a token for dn to payload.
	Encode(payload, dn string) (string, error)
	// Decode returns the DN from the first token in payload. It never fails: a missing or
	// malformed token is reported as not found.
	Decode(payload string) (string, bool)
}

var plainTokenRegexp = regexp.MustCompile(`<dn:([A-Za-z0-9+/]+=*)>`)

// Plain is the unauthenticated "<dn:BASE64>" codec.
var Plain Codec = plainCodec{} //nolint:gochecknoglobals

type plainCodec struct{}

func (plainCodec) Encode(payload, dn string) (string, error) {
	return Encode(payload, dn), nil
}

func (plainCodec) Decode(payload string) (string, bool) {
	return Decode(payload)
}

// Encode appends "<dn:BASE64(dn)>" to payload.
func Encode(payload, dn string) string {
	return payload + "<dn:" + base64.StdEncoding.EncodeToString([]byte(dn)) + ">"
}

// Decode returns the DN carried by the first "<dn:...>" token in payload.
func Decode(payload string) (string, bool) {
	match := plainTokenRegexp.FindStringSubmatch(payload)
	if match == nil {
		return "", false
	}

	raw, err := base64.StdEncoding.DecodeString(match[1])
	if err != nil || len(raw) == 0 || !utf8.Valid(raw) {
		return "", false
	}

	return string(raw), true
}

// Save records dn in the identity's user data using codec.
func Save(id identity.Identity, codec Codec, dn string) error {
	payload, err := codec.Encode(id.UserData(), dn)
	if err != nil {
		return err
	}
	id.SetUserData(payload)
	return nil
}

// Extract recovers the DN from the identity's user data using codec.
func Extract(id identity.Identity, codec Codec) (string, bool) {
	return codec.Decode(id.UserData())
}
