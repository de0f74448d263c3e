// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package coordinator drives batches of tool invocations across
// checkpoint and restore.
//
// A Coordinator runs one wave of invocations at startup, registers
// itself with a checkpoint/restore facility, and requests a checkpoint.
// Every restore delivers a new token stream, which the coordinator
// splits into groups and runs as another wave. Waves are fail-fast:
// the first group whose tool invocation returns a non-zero status ends
// the wave, and that status becomes the process exit status.
//
// Lifecycle:
//
//	Starting ─RunInitial─▶ RunningInitial ─Register─▶ RegisteredWaiting
//	                            │                        │      ▲
//	                            ▼                 AfterRestore  │
//	                          Failed ◀── RunningRestored ◀──────┤
//	                                       (or Restoring ───────┘ when
//	                                        no new arguments arrive)
//
// The coordinator is [crac.Persistent]: it snapshots its separator,
// suffix, and counters into the checkpoint image, and [Factory]
// rebuilds it in RegisteredWaiting for the restored execution.
package coordinator
