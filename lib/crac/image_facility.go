// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package crac

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/bureau-foundation/compilecrac/lib/clock"
	"github.com/bureau-foundation/compilecrac/lib/image"
	"github.com/bureau-foundation/compilecrac/lib/process"
	"github.com/bureau-foundation/compilecrac/lib/version"
)

// ImageOptions configures an [ImageFacility].
type ImageOptions struct {
	// Store persists the image. Required.
	Store *image.Store

	// Component is recorded in every image (the program name).
	Component string

	// Halt is called after an image has been written. It must not
	// return in production; the default exits the process with
	// status 0. Tests substitute a function that records the call and
	// returns, in which case CheckpointAndWait returns nil.
	Halt func()

	// Clock stamps image creation times. Nil means clock.Real().
	Clock clock.Clock

	// Logger receives lifecycle events. Nil discards.
	Logger *slog.Logger
}

// ImageFacility checkpoints by writing an image of the registry and
// halting the process, and restores by rebuilding the registry from
// that image in a new execution.
type ImageFacility struct {
	registry  *Registry
	store     *image.Store
	component string
	halt      func()
	clock     clock.Clock
	logger    *slog.Logger

	mu        sync.Mutex
	factories map[string]Factory

	// parent and generation describe the image this execution was
	// restored from. Zero for a first execution.
	parent     string
	generation uint64
}

// NewImageFacility returns a facility writing to options.Store.
func NewImageFacility(options ImageOptions) (*ImageFacility, error) {
	if options.Store == nil {
		return nil, errors.New("image facility requires a store")
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	halt := options.Halt
	if halt == nil {
		halt = func() { process.Exit(0) }
	}
	timeSource := options.Clock
	if timeSource == nil {
		timeSource = clock.Real()
	}
	return &ImageFacility{
		registry:  NewRegistry(logger),
		store:     options.Store,
		component: options.Component,
		halt:      halt,
		clock:     timeSource,
		logger:    logger,
		factories: make(map[string]Factory),
	}, nil
}

// RegisterFactory makes resources of kind restorable.
func (f *ImageFacility) RegisterFactory(kind string, factory Factory) error {
	if kind == "" {
		return errors.New("register factory: kind is empty")
	}
	if factory == nil {
		return fmt.Errorf("register factory: factory for %q is nil", kind)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.factories[kind]; exists {
		return fmt.Errorf("register factory: kind %q already has a factory", kind)
	}
	f.factories[kind] = factory
	return nil
}

// Register adds resource to the registry.
func (f *ImageFacility) Register(resource Resource) error {
	return f.registry.Register(resource)
}

// Registry exposes the underlying registry.
func (f *ImageFacility) Registry() *Registry { return f.registry }

// Generation returns the generation of the image this execution was
// restored from, or 0.
func (f *ImageFacility) Generation() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.generation
}

// CheckpointAndWait runs the BeforeCheckpoint hooks, snapshots every
// resource into a new image, saves it, and halts.
func (f *ImageFacility) CheckpointAndWait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return &CheckpointError{Causes: []error{err}}
	}

	if err := f.registry.BeforeCheckpoint(NewContext(ctx)); err != nil {
		return err
	}

	resources := f.registry.Resources()
	records := make([]image.Record, 0, len(resources))
	var causes []error
	for _, resource := range resources {
		persistent, ok := resource.(Persistent)
		if !ok {
			causes = append(causes, &NotPersistentError{Resource: describe(resource)})
			continue
		}
		state, err := persistent.Snapshot()
		if err != nil {
			causes = append(causes, fmt.Errorf("snapshot of %s: %w", persistent.Kind(), err))
			continue
		}
		records = append(records, image.Record{Kind: persistent.Kind(), State: state})
	}
	if len(causes) > 0 {
		return &CheckpointError{Causes: causes}
	}

	f.mu.Lock()
	parent, generation := f.parent, f.generation+1
	f.mu.Unlock()

	hostname, _ := os.Hostname()
	img := &image.Image{
		ID:         image.NewID(),
		Parent:     parent,
		Component:  f.component,
		Generation: generation,
		CreatedAt:  f.clock.Now().UTC(),
		Hostname:   hostname,
		Writer:     version.Info(),
		Resources:  records,
	}
	if err := f.store.Save(img); err != nil {
		return &CheckpointError{Causes: []error{fmt.Errorf("saving image: %w", err)}}
	}

	// The image now describes this execution; a checkpoint taken after
	// a test halt that returns continues the same lineage.
	f.mu.Lock()
	f.parent, f.generation = img.ID, img.Generation
	f.mu.Unlock()

	f.logger.Info("checkpoint written",
		"image", f.store.Path(),
		"id", img.ID,
		"generation", img.Generation,
		"resources", len(records),
	)
	f.halt()
	return nil
}

// Restore rebuilds the registry from the current image and delivers
// the restore event to every rebuilt resource. ctx carries the new
// arguments, if any.
//
// The image lock is held for the whole restore, so a concurrent
// restore of the same image fails with image.ErrBusy instead of
// running the same work twice.
func (f *ImageFacility) Restore(ctx Context) error {
	if f.registry.Len() > 0 {
		return &RestoreError{Causes: []error{ErrRestoreIntoPopulatedRegistry}}
	}

	unlock, err := f.store.Lock()
	if err != nil {
		return &RestoreError{Causes: []error{err}}
	}
	defer unlock()

	img, err := f.store.Load()
	if err != nil {
		return &RestoreError{Causes: []error{err}}
	}
	if !version.SameBuild(img.Writer) {
		f.logger.Debug("restoring an image written by a different build",
			"writer", img.Writer, "current", version.Info())
	}

	f.mu.Lock()
	factories := make(map[string]Factory, len(f.factories))
	for kind, factory := range f.factories {
		factories[kind] = factory
	}
	f.mu.Unlock()

	// Rebuild everything before notifying anyone, so an unknown kind
	// late in the image does not leave earlier resources half-restored.
	rebuilt := make([]Resource, 0, len(img.Resources))
	for _, record := range img.Resources {
		factory, ok := factories[record.Kind]
		if !ok {
			return &RestoreError{Causes: []error{&UnknownKindError{Kind: record.Kind}}}
		}
		resource, err := factory(record.State)
		if err != nil {
			return &RestoreError{Causes: []error{fmt.Errorf("rebuilding %s: %w", record.Kind, err)}}
		}
		rebuilt = append(rebuilt, resource)
	}
	for _, resource := range rebuilt {
		if err := f.registry.Register(resource); err != nil {
			return &RestoreError{Causes: []error{err}}
		}
	}

	f.mu.Lock()
	f.parent, f.generation = img.ID, img.Generation
	f.mu.Unlock()

	arguments, present := ctx.NewArguments()
	f.logger.Info("restoring from image",
		"image", f.store.Path(),
		"id", img.ID,
		"generation", img.Generation,
		"created_at", img.CreatedAt,
		"resources", len(rebuilt),
		"new_arguments", present,
		"argument_count", len(arguments),
	)
	return f.registry.AfterRestore(ctx)
}
