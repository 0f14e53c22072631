// Copyright 2026 the who-ldap contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package plog

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap/zapcore"
	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/m-martinez/who-ldap/internal/constable"
)

type LogFormat string

func (l *LogFormat) UnmarshalJSON(b []byte) error {
	switch string(b) {
	case `""`, `"json"`:
		*l = FormatJSON
	case `"text"`:
		*l = FormatText
	default:
		return errInvalidLogFormat
	}
	return nil
}

const (
	FormatJSON LogFormat = "json"
	// FormatText is the human friendly console encoding.
	FormatText LogFormat = "text"
	// FormatCLI is the same encoding as FormatText, but it never spawns background flushers.
	// It is only used by the who-ldap CLI and is not accepted from config files.
	FormatCLI LogFormat = "cli"

	errInvalidLogLevel  = constable.Error("invalid log level, valid choices are the empty string, info, debug, trace and all")
	errInvalidLogFormat = constable.Error("invalid log format, valid choices are the empty string, 'json' or 'text'")
)

var _ json.Unmarshaler = func() *LogFormat {
	var f LogFormat
	return &f
}()

type LogSpec struct {
	Level  LogLevel  `json:"level,omitempty"`
	Format LogFormat `json:"format,omitempty"`
}

func ValidateAndSetLogLevelAndFormatGlobally(ctx context.Context, spec LogSpec) error {
	klogLevel := klogLevelForPlogLevel(spec.Level)
	if klogLevel < 0 {
		return errInvalidLogLevel
	}

	var encoding string
	switch spec.Format {
	case "", FormatJSON:
		encoding = "json"
	case FormatText, FormatCLI:
		encoding = "console"
	default:
		return errInvalidLogFormat
	}

	// set the global log levels used by our code and the libraries underneath us
	if err := setKlogLevel(klogLevel); err != nil {
		panic(err) // programmer error
	}
	globalLevel.SetLevel(zapcore.Level(-klogLevel)) // klog levels are inverted when zap handles them

	log, flush, err := newLogr(ctx, encoding)
	if err != nil {
		return err
	}

	setGlobalLoggers(log, flush)

	if spec.Format == FormatCLI {
		return nil // do not spawn go routines on the CLI to allow the CLI to call this more than once
	}

	// long running hosts get a periodic flush
	go wait.UntilWithContext(ctx, func(_ context.Context) { flush() }, time.Minute)
	go func() {
		<-ctx.Done()
		flush() // best effort flush before shutdown as this is not coordinated with a wait group
	}()

	return nil
}
