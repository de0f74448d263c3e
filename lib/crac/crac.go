// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package crac

import (
	"context"
)

// Resource is the capability set a participant in checkpoint/restore
// implements.
type Resource interface {
	// BeforeCheckpoint is called before the checkpoint is taken.
	BeforeCheckpoint(ctx Context) error

	// AfterRestore is called in the restored execution. Any new
	// arguments supplied with the restore event are available from
	// ctx.NewArguments.
	AfterRestore(ctx Context) error
}

// Persistent is implemented by resources that can be written into a
// checkpoint image. [ImageFacility] refuses to checkpoint a registry
// containing a resource that is not Persistent, since it could not be
// rebuilt on restore.
type Persistent interface {
	// Kind selects the [Factory] that rebuilds the resource.
	Kind() string

	// Snapshot returns the resource state as CBOR (see image.Marshal).
	Snapshot() ([]byte, error)
}

// Factory rebuilds a resource from the state its Snapshot produced.
type Factory func(state []byte) (Resource, error)

// Facility is the checkpoint/restore facility as seen by a resource
// owner.
type Facility interface {
	// Register adds resource to the facility's registry.
	Register(resource Resource) error

	// CheckpointAndWait requests a checkpoint. On success the calling
	// execution does not continue: the process is halted and the next
	// code to run for the registered resources is their AfterRestore,
	// in a new execution. A returned error means the checkpoint was
	// not taken; it is always a *CheckpointError.
	CheckpointAndWait(ctx context.Context) error
}

// Context is passed to lifecycle callbacks. It carries cancellation
// and, during restore, the replacement arguments.
type Context interface {
	context.Context

	// NewArguments returns the arguments supplied with the restore
	// event. The boolean is false when the restore carried none, and
	// always false during BeforeCheckpoint.
	NewArguments() ([]string, bool)
}

type lifecycleContext struct {
	context.Context
	arguments []string
	present   bool
}

func (c *lifecycleContext) NewArguments() ([]string, bool) {
	if !c.present {
		return nil, false
	}
	arguments := make([]string, len(c.arguments))
	copy(arguments, c.arguments)
	return arguments, true
}

// NewContext returns a Context without new arguments.
func NewContext(parent context.Context) Context {
	return &lifecycleContext{Context: parent}
}

// WithNewArguments returns a Context whose NewArguments reports
// arguments as present, even when the slice is empty.
func WithNewArguments(parent context.Context, arguments []string) Context {
	copied := make([]string, len(arguments))
	copy(copied, arguments)
	return &lifecycleContext{Context: parent, arguments: copied, present: true}
}
