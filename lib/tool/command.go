// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package tool

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/bureau-foundation/compilecrac/lib/clock"
)

// Command invokes an external binary once per Invoke call.
type Command struct {
	// Path is the binary to run, resolved through PATH when it
	// contains no slash (for example "javac").
	Path string

	// Env holds extra environment variables appended to the
	// inherited environment.
	Env map[string]string

	// Timeout bounds a single invocation. Zero means no limit beyond
	// the caller's context.
	Timeout time.Duration

	// GracePeriod is the time between SIGTERM and SIGKILL when the
	// invocation is cancelled. Zero kills immediately.
	GracePeriod time.Duration

	// Stdout and Stderr receive the tool's output. Nil means the
	// process's own stdout and stderr.
	Stdout io.Writer
	Stderr io.Writer

	// Echo, when set, receives one line per invocation before it
	// starts: the tool name followed by its arguments.
	Echo io.Writer

	// Clock measures invocation duration. Nil means clock.Real().
	Clock clock.Clock
}

// Invoke runs the binary with args and waits for it to exit.
func (c *Command) Invoke(ctx context.Context, args []string) (Result, error) {
	if c.Path == "" {
		return Result{Status: -1}, errors.New("tool path is empty")
	}
	timeSource := c.Clock
	if timeSource == nil {
		timeSource = clock.Real()
	}

	if c.Echo != nil {
		fmt.Fprintf(c.Echo, "%s %s\n", c.Path, strings.Join(args, " "))
	}

	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, c.Path, args...)
	cmd.Stdout = c.Stdout
	if cmd.Stdout == nil {
		cmd.Stdout = os.Stdout
	}
	cmd.Stderr = c.Stderr
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}

	// Own process group: signals sent to the negative PID reach the
	// compiler and anything it forked.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	gracePeriod := c.GracePeriod
	cmd.Cancel = func() error {
		processGroupID := -cmd.Process.Pid
		if gracePeriod <= 0 {
			return unix.Kill(processGroupID, unix.SIGKILL)
		}
		if err := unix.Kill(processGroupID, unix.SIGTERM); err != nil {
			return unix.Kill(processGroupID, unix.SIGKILL)
		}
		go func() {
			time.Sleep(gracePeriod)
			// ESRCH from an already-exited group is harmless.
			_ = unix.Kill(processGroupID, unix.SIGKILL)
		}()
		return nil
	}

	if len(c.Env) > 0 {
		cmd.Env = os.Environ()
		for name, value := range c.Env {
			cmd.Env = append(cmd.Env, name+"="+value)
		}
	}

	start := timeSource.Now()
	err := cmd.Run()
	duration := timeSource.Now().Sub(start)
	if err == nil {
		return Result{Status: 0, Duration: duration}, nil
	}

	var exitError *exec.ExitError
	if errors.As(err, &exitError) && exitError.ExitCode() >= 0 && ctx.Err() == nil {
		return Result{
			Status:     exitError.ExitCode(),
			Diagnostic: exitError.Error(),
			Duration:   duration,
		}, nil
	}

	// Killed by a signal, deadline exceeded, or never started.
	if ctxErr := ctx.Err(); ctxErr != nil {
		err = fmt.Errorf("%w (%v)", ctxErr, err)
	}
	return Result{Status: -1, Diagnostic: err.Error(), Duration: duration}, fmt.Errorf("running %s: %w", c.Path, err)
}
