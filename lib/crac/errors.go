// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package crac

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnsupported means the environment cannot take checkpoints.
	ErrUnsupported = errors.New("checkpoint/restore is not supported in this environment")

	// ErrNilResource is returned when registering a nil resource.
	ErrNilResource = errors.New("resource is nil")

	// ErrDuplicateResource is returned when the same resource is
	// registered twice.
	ErrDuplicateResource = errors.New("resource is already registered")

	// ErrRestoreIntoPopulatedRegistry is returned when Restore is
	// called on a facility that already has registrations. A restore
	// must start from a fresh execution.
	ErrRestoreIntoPopulatedRegistry = errors.New("restore requires an empty registry")
)

// CheckpointError reports why a checkpoint was not taken. It unwraps
// to every cause, so errors.Is(err, ErrUnsupported) works.
type CheckpointError struct {
	Causes []error
}

func (e *CheckpointError) Error() string {
	return "checkpoint failed: " + joinCauses(e.Causes)
}

// Unwrap returns the causes.
func (e *CheckpointError) Unwrap() []error { return e.Causes }

// RestoreError reports why a restore did not complete. It unwraps to
// its causes, so a tool status error raised inside AfterRestore is
// still found by errors.As and determines the process exit code.
type RestoreError struct {
	Causes []error
}

func (e *RestoreError) Error() string {
	return "restore failed: " + joinCauses(e.Causes)
}

// Unwrap returns the causes.
func (e *RestoreError) Unwrap() []error { return e.Causes }

// NotPersistentError is a checkpoint cause: a registered resource does
// not implement [Persistent].
type NotPersistentError struct {
	Resource string
}

func (e *NotPersistentError) Error() string {
	return fmt.Sprintf("resource %s cannot be written into a checkpoint image", e.Resource)
}

// UnknownKindError is a restore cause: the image names a resource kind
// with no registered [Factory].
type UnknownKindError struct {
	Kind string
}

func (e *UnknownKindError) Error() string {
	return fmt.Sprintf("no factory registered for resource kind %q", e.Kind)
}

// HookError attributes a callback failure to its resource.
type HookError struct {
	Hook     string
	Resource string
	Err      error
}

func (e *HookError) Error() string {
	return fmt.Sprintf("%s of %s: %v", e.Hook, e.Resource, e.Err)
}

// Unwrap returns the callback's error.
func (e *HookError) Unwrap() error { return e.Err }

func joinCauses(causes []error) string {
	if len(causes) == 0 {
		return "unknown cause"
	}
	messages := make([]string, len(causes))
	for index, cause := range causes {
		messages[index] = cause.Error()
	}
	return strings.Join(messages, "; ")
}
