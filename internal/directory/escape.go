// Copyright 2026 the who-ldap contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package directory

import (
	"fmt"
	"strings"
)

// EscapeDNValue escapes s for use as an attribute value inside a DN, following RFC 4514 section 2.4.
// Unlike a search filter, a DN has no wildcards, so only the structural characters are escaped.
// Input is always treated as raw text: an existing backslash is escaped again rather than trusted.
func EscapeDNValue(s string) string {
	if s == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(s) + 8)

	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == 0:
			b.WriteString(`\00`)
		case c == '"' || c == '+' || c == ',' || c == ';' || c == '<' || c == '>' || c == '\\':
			b.WriteByte('\\')
			b.WriteByte(c)
		case i == 0 && (c == ' ' || c == '#'):
			b.WriteByte('\\')
			b.WriteByte(c)
		case i == len(s)-1 && c == ' ':
			b.WriteString(`\ `)
		default:
			b.WriteByte(c)
		}
	}

	return b.String()
}

// DNFor builds "<attribute>=<escaped value>,<parent>".
func DNFor(attribute, value, parent string) string {
	rdn := fmt.Sprintf("%s=%s", attribute, EscapeDNValue(value))
	if parent == "" {
		return rdn
	}
	return rdn + "," + parent
}
