// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package xcontainer

import (
	"io"
	"log/slog"
)

// logger is the logging interface used by the scan and unpack helpers.
// It is satisfied by *slog.Logger.
type logger interface {
	Debug(msg string, keysAndValues ...interface{})
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// defaultLogger discards everything; parsing itself never logs.
var defaultLogger logger = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
