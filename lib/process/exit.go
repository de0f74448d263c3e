// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"errors"
	"fmt"
	"os"
)

// exitCoder is implemented by errors that carry their own process exit
// status (tool failures, CLI exit errors).
type exitCoder interface {
	ExitCode() int
}

// Fatal writes "error: err" to stderr and exits with code 1. Use it in
// main() for errors where the structured logger may not be
// initialized.
func Fatal(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}

// ExitCode returns the exit status for err: 0 for nil, the value of
// the first ExitCode() method found in the error chain, or 1.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var coder exitCoder
	if errors.As(err, &coder) {
		return coder.ExitCode()
	}
	return 1
}

// Exit terminates the process with code. It exists so callers that
// must not return (a checkpoint halt) have one place to route through.
func Exit(code int) {
	os.Exit(code)
}

// Main runs run and exits with the status derived from its error. An
// error carrying an exit code is not printed again: the code that
// produced it has already logged what happened.
func Main(run func() error) {
	err := run()
	if err == nil {
		return
	}
	var coder exitCoder
	if !errors.As(err, &coder) {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
	}
	os.Exit(ExitCode(err))
}
