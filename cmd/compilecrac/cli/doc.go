// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli provides the command-line framework for compilecrac.
//
// The central type is [Command], which represents a named subcommand
// with optional nested [Command.Subcommands], a [pflag.FlagSet]
// factory, and a Run function. Commands are assembled into a tree in
// cmd/compilecrac/main.go and dispatched via [Command.Execute], which
// handles flag parsing, subcommand routing, and help output with
// examples.
//
// Commands that take a token stream (run, restore) stop flag parsing
// at the first positional argument, so "--" tokens inside the stream
// reach the batch splitter. pflag consumes only the first "--", which
// terminates flags.
//
// When a user types an unknown subcommand or flag, the framework
// suggests the closest known name by Levenshtein distance (at most
// 3).
package cli
