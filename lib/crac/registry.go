// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package crac

import (
	"fmt"
	"log/slog"
	"reflect"
	"sync"
)

// Registry is an insertion-ordered set of resources. It is safe for
// concurrent use; callbacks run without the lock held.
type Registry struct {
	mu        sync.Mutex
	resources []Resource
	logger    *slog.Logger
}

// NewRegistry returns an empty registry.
// A nil logger discards.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Registry{logger: logger}
}

// Register appends resource. Nil resources and resources already in
// the registry are rejected.
func (r *Registry) Register(resource Resource) error {
	if resource == nil || reflect.ValueOf(resource).Kind() == reflect.Pointer && reflect.ValueOf(resource).IsNil() {
		return ErrNilResource
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.resources {
		if sameResource(existing, resource) {
			return fmt.Errorf("%w: %s", ErrDuplicateResource, describe(resource))
		}
	}
	r.resources = append(r.resources, resource)
	r.logger.Debug("resource registered", "resource", describe(resource), "count", len(r.resources))
	return nil
}

// Len returns the number of registered resources.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.resources)
}

// Resources returns the registered resources in registration order.
func (r *Registry) Resources() []Resource {
	r.mu.Lock()
	defer r.mu.Unlock()
	resources := make([]Resource, len(r.resources))
	copy(resources, r.resources)
	return resources
}

// BeforeCheckpoint notifies every resource in reverse registration
// order. All resources are notified even when some fail; the failures
// are returned together as a *CheckpointError.
func (r *Registry) BeforeCheckpoint(ctx Context) error {
	resources := r.Resources()
	var causes []error
	for index := len(resources) - 1; index >= 0; index-- {
		resource := resources[index]
		if err := resource.BeforeCheckpoint(ctx); err != nil {
			r.logger.Warn("before-checkpoint hook failed", "resource", describe(resource), "error", err)
			causes = append(causes, &HookError{Hook: "BeforeCheckpoint", Resource: describe(resource), Err: err})
		}
	}
	if len(causes) > 0 {
		return &CheckpointError{Causes: causes}
	}
	return nil
}

// AfterRestore notifies every resource in registration order and
// stops at the first failure, returned as a *RestoreError. Stopping
// matters: a failing resource may have hit a fatal condition that
// ends the process, and later resources must not start new work.
func (r *Registry) AfterRestore(ctx Context) error {
	for _, resource := range r.Resources() {
		if err := resource.AfterRestore(ctx); err != nil {
			return &RestoreError{Causes: []error{
				&HookError{Hook: "AfterRestore", Resource: describe(resource), Err: err},
			}}
		}
	}
	return nil
}

func sameResource(a, b Resource) bool {
	if reflect.TypeOf(a) != reflect.TypeOf(b) {
		return false
	}
	if !reflect.TypeOf(a).Comparable() {
		return false
	}
	return a == b
}

func describe(resource Resource) string {
	if persistent, ok := resource.(Persistent); ok {
		return persistent.Kind()
	}
	return fmt.Sprintf("%T", resource)
}
