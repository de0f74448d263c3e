// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"io"
	"log/slog"
	"os"

	"golang.org/x/term"
)

// DebugEnvironmentVariable enables debug logging when set to a
// non-empty value other than "0".
const DebugEnvironmentVariable = "COMPILECRAC_DEBUG"

// NewCommandLogger creates a structured logger on stderr. When stderr
// is a terminal it uses slog.TextHandler for human-readable output;
// when stderr is piped or redirected it uses slog.JSONHandler so build
// systems can ingest the lines. debug (or COMPILECRAC_DEBUG) lowers
// the level to debug.
//
// Callers scope the logger with command-specific context via With():
//
//	logger := cli.NewCommandLogger(debug).With("command", "restore")
func NewCommandLogger(debug bool) *slog.Logger {
	return newLogger(os.Stderr, term.IsTerminal(int(os.Stderr.Fd())), debug || debugFromEnvironment())
}

func newLogger(w io.Writer, terminal, debug bool) *slog.Logger {
	options := &slog.HandlerOptions{Level: slog.LevelInfo}
	if debug {
		options.Level = slog.LevelDebug
	}
	var handler slog.Handler
	if terminal {
		handler = slog.NewTextHandler(w, options)
	} else {
		handler = slog.NewJSONHandler(w, options)
	}
	return slog.New(handler)
}

func debugFromEnvironment() bool {
	value := os.Getenv(DebugEnvironmentVariable)
	return value != "" && value != "0"
}
