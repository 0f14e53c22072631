// Copyright 2026 the who-ldap contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package plog implements a thin layer over logr to help enforce who-ldap's logging convention.
// Logs are always structured as a constant message with key and value pairs of related metadata.
//
// The logging levels in order of increasing verbosity are:
// error, warning, info, debug, trace and all.
//
// error and warning logs are always emitted (there is no way for the end user to disable them),
// and thus should be used sparingly.  Ideally, logs at these levels should be actionable.
//
// info should be reserved for "nice to know" information.  It should be possible to run a production
// host at the info log level with no performance degradation due to high log volume.
//
// debug should be used for information targeted at developers and to aid in support cases.  Care must
// be taken at this level to not leak any secrets into the log stream.  Passwords are never logged at any
// level.  Usernames are only logged at debug once a directory entry matched them, because before that
// point a "username" may really be a password typed into the wrong field.
//
// trace should be used to log information related to timing (i.e. how long a directory search took).
//
// all is reserved for the most verbose and security sensitive information, such as usernames that did
// not match any directory entry.  This level is unfit for production use.
package plog
