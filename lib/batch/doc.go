// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package batch turns a flat command-line token stream into ordered
// invocation groups.
//
// Groups are delimited by a reserved separator token ([Separator],
// "--"). The separator is never part of a group. Empty groups, which
// come from a leading, trailing, or doubled separator, are dropped: a
// group with no tokens is never handed to the build tool.
//
// Every function in this package is pure. Callers may split the same
// input repeatedly and from multiple goroutines.
package batch
