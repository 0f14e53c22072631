// Copyright 2026 the who-ldap contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package constable provides an error type that can be declared as a constant,
// so that sentinel errors cannot be reassigned by importers.
package constable

var _ error = Error("")

type Error string

func (e Error) Error() string {
	return string(e)
}
