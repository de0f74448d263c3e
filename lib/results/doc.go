// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package results writes the structured invocation log.
//
// The log is JSONL: one independent JSON object per line, synced to
// disk after every line. A process killed mid-wave (or halted by a
// checkpoint) leaves every completed line intact and parseable, and a
// reader tailing the file sees progress immediately.
//
// A restored execution reopens the same path in append mode, so one
// file carries the whole lineage: the initial wave, then one wave per
// restore. Line types:
//
//	wave_start     {wave, kind, groups, timestamp}
//	invocation     {wave, index, args, status, duration_ms, error}
//	wave_complete  {wave, groups, duration_ms}
//	wave_failed    {wave, failed_index, status, error, duration_ms}
//
// A nil *Log is valid and discards everything, so callers never guard
// their writes.
package results
