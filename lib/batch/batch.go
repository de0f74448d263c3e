// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package batch

// Separator is the reserved token that closes one invocation group and
// starts the next.
const Separator = "--"

// DefaultSuffix is the file-extension convention appended to every
// token before it reaches the compiler.
const DefaultSuffix = ".java"

// Group is the token list for one tool invocation.
type Group []string

// Split splits tokens on [Separator]. See [SplitWithSeparator].
func Split(tokens []string) []Group {
	return SplitWithSeparator(tokens, Separator)
}

// SplitWithSeparator scans tokens left to right and closes the current
// group whenever separator is encountered. Tokens left after the last
// separator form the final group. Empty groups are skipped, so the
// result never contains a zero-length Group and an input made only of
// separators (or no tokens at all) yields nil.
//
// The returned groups do not alias tokens.
func SplitWithSeparator(tokens []string, separator string) []Group {
	var groups []Group
	start := 0
	for index, token := range tokens {
		if token != separator {
			continue
		}
		if index > start {
			groups = append(groups, clone(tokens[start:index]))
		}
		start = index + 1
	}
	if start < len(tokens) {
		groups = append(groups, clone(tokens[start:]))
	}
	return groups
}

// AppendSuffix returns a new group with suffix appended to every token,
// in the original order. The input group is not modified.
func AppendSuffix(group Group, suffix string) Group {
	transformed := make(Group, len(group))
	for index, token := range group {
		transformed[index] = token + suffix
	}
	return transformed
}

// Plan splits tokens on separator and suffixes every resulting group.
// This is the exact sequence of argument lists a coordinator passes to
// the tool, one invocation per element.
func Plan(tokens []string, separator, suffix string) []Group {
	groups := SplitWithSeparator(tokens, separator)
	for index, group := range groups {
		groups[index] = AppendSuffix(group, suffix)
	}
	return groups
}

// Count returns the number of separator occurrences in tokens. Useful
// for reporting how many empty groups were dropped: a stream with n
// separators describes n+1 groups before empty ones are removed.
func Count(tokens []string, separator string) int {
	count := 0
	for _, token := range tokens {
		if token == separator {
			count++
		}
	}
	return count
}

func clone(tokens []string) Group {
	group := make(Group, len(tokens))
	copy(group, tokens)
	return group
}
