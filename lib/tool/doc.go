// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package tool defines the contract between the coordinator and the
// external build tool, and provides an exec-backed implementation.
//
// The contract is deliberately narrow: an ordered token list goes in,
// an integer status comes out. Status 0 is success. Any other status
// is a [StatusError] that the caller turns into process termination
// with the same code. The package never parses the tool's own flag
// syntax and never retries.
//
// [Command] runs a binary directly (no shell), with inherited stdout
// and stderr, in its own process group so a timeout reaches every
// child the compiler spawns.
package tool
