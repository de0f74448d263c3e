// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package crac

import (
	"context"
	"log/slog"
)

// Unsupported is a facility for environments without checkpoint
// support. Registration works, so resource owners behave identically,
// but every checkpoint request is declined without running any hook.
type Unsupported struct {
	registry *Registry
	logger   *slog.Logger
}

// NewUnsupported returns an Unsupported facility. A nil logger
// discards.
func NewUnsupported(logger *slog.Logger) *Unsupported {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Unsupported{registry: NewRegistry(logger), logger: logger}
}

// Register adds resource to the registry.
func (u *Unsupported) Register(resource Resource) error {
	return u.registry.Register(resource)
}

// Registry exposes the underlying registry.
func (u *Unsupported) Registry() *Registry { return u.registry }

// CheckpointAndWait always fails with ErrUnsupported.
func (u *Unsupported) CheckpointAndWait(ctx context.Context) error {
	u.logger.Warn("checkpoint requested but checkpointing is disabled",
		"registered", u.registry.Len())
	return &CheckpointError{Causes: []error{ErrUnsupported}}
}
