// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bureau-foundation/compilecrac/lib/batch"
	"github.com/bureau-foundation/compilecrac/lib/clock"
	"github.com/bureau-foundation/compilecrac/lib/crac"
	"github.com/bureau-foundation/compilecrac/lib/image"
	"github.com/bureau-foundation/compilecrac/lib/results"
	"github.com/bureau-foundation/compilecrac/lib/tool"
)

// Kind identifies coordinator snapshots in a checkpoint image.
const Kind = "compilecrac.coordinator"

var (
	// ErrAlreadyRegistered is returned by a second Register call.
	ErrAlreadyRegistered = errors.New("coordinator already registered")

	// ErrInvalidState is returned when an operation is called in a
	// state that does not allow it.
	ErrInvalidState = errors.New("invalid coordinator state")
)

// Options configures a Coordinator.
type Options struct {
	// Invoker runs the external tool. Required.
	Invoker tool.Invoker

	// Facility receives the registration and the checkpoint request.
	// Required.
	Facility crac.Facility

	// Separator splits token streams into groups. Empty means
	// batch.Separator.
	Separator string

	// Suffix is appended to every token. Empty means
	// batch.DefaultSuffix.
	Suffix string

	// Results receives one line per wave event and invocation. Nil
	// disables the results log.
	Results *results.Log

	// Clock times invocations and waves. Nil means clock.Real().
	Clock clock.Clock

	// Logger receives lifecycle events. Nil discards.
	Logger *slog.Logger
}

// Coordinator runs fail-fast invocation waves around checkpoints.
type Coordinator struct {
	invoker   tool.Invoker
	facility  crac.Facility
	separator string
	suffix    string
	results   *results.Log
	clock     clock.Clock
	logger    *slog.Logger

	mu          sync.Mutex
	state       State
	initialDone bool
	registered  bool
	waves       int
	invocations int
}

// New returns a coordinator in the Starting state.
func New(options Options) (*Coordinator, error) {
	if options.Invoker == nil {
		return nil, errors.New("coordinator requires a tool invoker")
	}
	if options.Facility == nil {
		return nil, errors.New("coordinator requires a checkpoint facility")
	}
	separator := options.Separator
	if separator == "" {
		separator = batch.Separator
	}
	suffix := options.Suffix
	if suffix == "" {
		suffix = batch.DefaultSuffix
	}
	timeSource := options.Clock
	if timeSource == nil {
		timeSource = clock.Real()
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Coordinator{
		invoker:   options.Invoker,
		facility:  options.Facility,
		separator: separator,
		suffix:    suffix,
		results:   options.Results,
		clock:     timeSource,
		logger:    logger,
		state:     Starting,
	}, nil
}

// State returns the current lifecycle state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Waves returns the number of waves started in this lineage.
func (c *Coordinator) Waves() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.waves
}

// Invocations returns the number of tool invocations made in this
// lineage, the failing one included.
func (c *Coordinator) Invocations() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.invocations
}

// RunInitial runs the startup wave over args. On the first failing
// group it returns a *tool.StatusError, moves to Failed, and leaves
// the remaining groups untouched. It may be called once.
func (c *Coordinator) RunInitial(ctx context.Context, args []string) error {
	if err := c.transition(Starting, RunningInitial); err != nil {
		return fmt.Errorf("run initial: %w", err)
	}
	if err := c.runWave(ctx, results.WaveInitial, args); err != nil {
		c.setState(Failed)
		return err
	}
	c.mu.Lock()
	c.initialDone = true
	c.mu.Unlock()
	return nil
}

// Register adds the coordinator to the facility's registry. It
// requires a successful RunInitial and may be called once.
func (c *Coordinator) Register() error {
	c.mu.Lock()
	if c.registered {
		c.mu.Unlock()
		return ErrAlreadyRegistered
	}
	if c.state != RunningInitial || !c.initialDone {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("register: %w: %s", ErrInvalidState, state)
	}
	c.registered = true
	c.mu.Unlock()

	if err := c.facility.Register(c); err != nil {
		c.mu.Lock()
		c.registered = false
		c.mu.Unlock()
		return fmt.Errorf("registering coordinator: %w", err)
	}
	c.setState(RegisteredWaiting)
	c.logger.Info("coordinator registered for checkpoint/restore")
	return nil
}

// RequestCheckpointAndWait asks the facility for a checkpoint. With an
// image facility in production it does not return on success. Any
// failure is a *crac.CheckpointError; there is no retry.
func (c *Coordinator) RequestCheckpointAndWait(ctx context.Context) error {
	if state := c.State(); state != RegisteredWaiting {
		return &crac.CheckpointError{Causes: []error{
			fmt.Errorf("checkpoint request: %w: %s", ErrInvalidState, state),
		}}
	}
	c.logger.Info("requesting checkpoint")
	err := c.facility.CheckpointAndWait(ctx)
	if err == nil {
		return nil
	}
	var checkpointError *crac.CheckpointError
	if errors.As(err, &checkpointError) {
		return err
	}
	return &crac.CheckpointError{Causes: []error{err}}
}

// BeforeCheckpoint implements crac.Resource. The coordinator holds no
// external state between waves, so there is nothing to release.
func (c *Coordinator) BeforeCheckpoint(ctx crac.Context) error {
	c.logger.Debug("before checkpoint", "state", c.State(), "waves", c.Waves())
	return nil
}

// AfterRestore implements crac.Resource. Without new arguments it
// returns to RegisteredWaiting having invoked nothing. Otherwise the
// arguments run as a fail-fast wave, and a failure leaves the
// coordinator in Failed with the *tool.StatusError returned.
func (c *Coordinator) AfterRestore(ctx crac.Context) error {
	if err := c.transition(RegisteredWaiting, Restoring); err != nil {
		return fmt.Errorf("after restore: %w", err)
	}

	arguments, present := ctx.NewArguments()
	if !present {
		c.logger.Info("restored without new arguments")
		c.setState(RegisteredWaiting)
		return nil
	}

	c.setState(RunningRestored)
	if err := c.runWave(ctx, results.WaveRestore, arguments); err != nil {
		c.setState(Failed)
		return err
	}
	c.setState(RegisteredWaiting)
	return nil
}

// runWave plans tokens into groups and invokes the tool once per group
// in order, stopping at the first failure.
func (c *Coordinator) runWave(ctx context.Context, kind results.WaveKind, tokens []string) error {
	groups := batch.Plan(tokens, c.separator, c.suffix)
	if skipped := batch.Count(tokens, c.separator) + 1 - len(groups); skipped > 0 && len(tokens) > 0 {
		c.logger.Debug("skipped empty groups", "skipped", skipped)
	}

	c.mu.Lock()
	c.waves++
	wave := c.waves
	c.mu.Unlock()

	c.logger.Info("starting wave", "wave", wave, "kind", kind, "groups", len(groups))
	c.results.WaveStart(wave, kind, len(groups))
	waveStart := c.clock.Now()

	for index, group := range groups {
		start := c.clock.Now()
		result, runErr := c.invoker.Invoke(ctx, group)
		duration := result.Duration
		if duration == 0 {
			duration = clock.Since(c.clock, start)
		}

		c.mu.Lock()
		c.invocations++
		c.mu.Unlock()

		err := tool.Check(group, result, runErr)
		status := result.Status
		var message string
		if err != nil {
			var statusError *tool.StatusError
			if errors.As(err, &statusError) {
				status = statusError.Status
			}
			message = err.Error()
		}
		c.results.Invocation(results.Invocation{
			Wave:     wave,
			Index:    index,
			Args:     group,
			Status:   status,
			Duration: duration,
			Error:    message,
		})

		if err != nil {
			c.logger.Error("tool invocation failed",
				"wave", wave,
				"group", index,
				"status", status,
				"error", err,
			)
			c.results.WaveFailed(wave, index, status, message, clock.Since(c.clock, waveStart))
			return err
		}
		c.logger.Debug("tool invocation succeeded",
			"wave", wave,
			"group", index,
			"args", len(group),
			"duration", duration,
		)
	}

	c.results.WaveComplete(wave, len(groups), clock.Since(c.clock, waveStart))
	c.logger.Info("wave complete", "wave", wave, "groups", len(groups))
	return nil
}

func (c *Coordinator) transition(from, to State) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != from {
		return fmt.Errorf("%w: %s (want %s)", ErrInvalidState, c.state, from)
	}
	c.state = to
	return nil
}

func (c *Coordinator) setState(state State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = state
}

// snapshot is the coordinator's record in a checkpoint image.
type snapshot struct {
	Separator   string `cbor:"separator"`
	Suffix      string `cbor:"suffix"`
	Waves       int    `cbor:"waves"`
	Invocations int    `cbor:"invocations"`
}

// Kind implements crac.Persistent.
func (c *Coordinator) Kind() string { return Kind }

// Snapshot implements crac.Persistent.
func (c *Coordinator) Snapshot() ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return image.Marshal(snapshot{
		Separator:   c.separator,
		Suffix:      c.suffix,
		Waves:       c.waves,
		Invocations: c.invocations,
	})
}

// Factory returns a crac.Factory that rebuilds a coordinator from its
// snapshot, already registered and waiting. The separator and suffix
// come from the snapshot: a restored coordinator keeps the
// configuration it was checkpointed with. The remaining fields come
// from options.
func Factory(options Options) crac.Factory {
	return func(state []byte) (crac.Resource, error) {
		var saved snapshot
		if err := image.Unmarshal(state, &saved); err != nil {
			return nil, fmt.Errorf("decoding coordinator snapshot: %w", err)
		}
		if saved.Separator != "" {
			options.Separator = saved.Separator
		}
		if saved.Suffix != "" {
			options.Suffix = saved.Suffix
		}
		restored, err := New(options)
		if err != nil {
			return nil, err
		}
		restored.state = RegisteredWaiting
		restored.initialDone = true
		restored.registered = true
		restored.waves = saved.Waves
		restored.invocations = saved.Invocations
		return restored, nil
	}
}
