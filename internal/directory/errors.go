// Copyright 2026 the who-ldap contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package directory

import (
	"errors"

	"github.com/go-ldap/ldap/v3"
)

// ResultCode returns the LDAP result code carried anywhere in err's chain, and false if there is none.
func ResultCode(err error) (uint16, bool) {
	var ldapErr *ldap.Error
	if !errors.As(err, &ldapErr) {
		return 0, false
	}
	return ldapErr.ResultCode, true
}

// IsResultCode reports whether err wraps an *ldap.Error with one of the given result codes.
func IsResultCode(err error, codes ...uint16) bool {
	code, ok := ResultCode(err)
	if !ok {
		return false
	}
	for _, c := range codes {
		if c == code {
			return true
		}
	}
	return false
}
