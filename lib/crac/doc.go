// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package crac is the checkpoint/restore facility: a registry of
// restorable resources plus the machinery that checkpoints them and
// later delivers a restore event to them.
//
// A [Resource] exposes two lifecycle callbacks, BeforeCheckpoint and
// AfterRestore. Resources are added to an insertion-ordered
// [Registry]. Checkpoint notification runs in reverse registration
// order and restore notification in registration order, so a resource
// registered after another (and possibly depending on it) is quiesced
// first and resumed last.
//
// A [Facility] owns a registry and implements the checkpoint request.
// The request is a process-restart boundary, not a suspension within
// one call stack:
//
//   - [ImageFacility] writes an image describing every registered
//     resource and then halts the process. A later execution calls
//     [ImageFacility.Restore], which rebuilds the resources from the
//     image through registered [Factory] functions and enters them at
//     AfterRestore with the new arguments.
//   - [Unsupported] accepts registrations but declines every
//     checkpoint request with [ErrUnsupported], for environments where
//     checkpointing is disabled.
//
// The facility is always passed explicitly. There is no process-global
// registry.
package crac
