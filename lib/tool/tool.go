// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package tool

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Result is the outcome of one tool invocation.
type Result struct {
	// Status is the tool's exit status. Zero means success.
	Status int

	// Diagnostic is optional human-readable detail about a failure
	// (for Command, the exec error text such as "exit status 2").
	Diagnostic string

	// Duration is the wall time of the invocation.
	Duration time.Duration
}

// Succeeded reports whether the invocation returned status 0.
func (r Result) Succeeded() bool { return r.Status == 0 }

// Invoker runs the external tool once with the given arguments.
//
// A returned error means the tool could not be run to completion at
// all (missing binary, killed by a signal, deadline exceeded). A tool
// that ran and exited non-zero is not an error at this layer: it is a
// Result with a non-zero Status.
type Invoker interface {
	Invoke(ctx context.Context, args []string) (Result, error)
}

// InvokerFunc adapts a function to the Invoker interface.
type InvokerFunc func(ctx context.Context, args []string) (Result, error)

// Invoke calls f(ctx, args).
func (f InvokerFunc) Invoke(ctx context.Context, args []string) (Result, error) {
	return f(ctx, args)
}

// StatusFunc adapts an in-process entry point with the classic
// "tokens in, status out" signature, such as a compiler's main
// function linked into the same binary.
func StatusFunc(entry func(args []string) int) Invoker {
	return InvokerFunc(func(ctx context.Context, args []string) (Result, error) {
		if err := ctx.Err(); err != nil {
			return Result{Status: -1}, err
		}
		start := time.Now()
		status := entry(args)
		return Result{Status: status, Duration: time.Since(start)}, nil
	})
}

// StatusError is a fatal tool outcome. It carries the status the
// process must exit with.
type StatusError struct {
	// Status is the tool's exit status, or 1 when the tool could not
	// be run at all.
	Status int

	// Args are the arguments of the failing invocation.
	Args []string

	// Diagnostic is the Result's diagnostic text, if any.
	Diagnostic string

	// Err is the underlying error when the tool could not be run.
	Err error
}

func (e *StatusError) Error() string {
	var builder strings.Builder
	fmt.Fprintf(&builder, "tool failed with status %d", e.Status)
	if len(e.Args) > 0 {
		fmt.Fprintf(&builder, " (args: %s)", strings.Join(e.Args, " "))
	}
	if e.Err != nil {
		fmt.Fprintf(&builder, ": %v", e.Err)
	} else if e.Diagnostic != "" {
		fmt.Fprintf(&builder, ": %s", e.Diagnostic)
	}
	return builder.String()
}

// Unwrap returns the underlying run error, if any.
func (e *StatusError) Unwrap() error { return e.Err }

// ExitCode returns the status the process should exit with. main
// checks for this method on returned errors.
func (e *StatusError) ExitCode() int { return e.Status }

// Check converts an invocation outcome into the fail-fast error model.
// It returns nil for a successful Result, a StatusError carrying the
// tool's status for a non-zero Result, and a StatusError with status 1
// wrapping runErr when the tool could not run.
func Check(args []string, result Result, runErr error) error {
	if runErr != nil {
		return &StatusError{
			Status:     1,
			Args:       args,
			Diagnostic: result.Diagnostic,
			Err:        runErr,
		}
	}
	if result.Succeeded() {
		return nil
	}
	return &StatusError{
		Status:     result.Status,
		Args:       args,
		Diagnostic: result.Diagnostic,
	}
}
