// Copyright 2026 the who-ldap contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package mockldapconn

//go:generate go run -v go.uber.org/mock/mockgen -destination=mockldapconn.go -package=mockldapconn -copyright_file=../../../hack/header.txt github.com/m-martinez/who-ldap/internal/directory Conn
