// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"bytes"
	"reflect"
	"strings"
	"testing"

	"github.com/spf13/pflag"
)

func TestCommand_Execute_DispatchesToSubcommand(t *testing.T) {
	var called string

	root := &Command{
		Name: "compilecrac",
		Subcommands: []*Command{
			{
				Name: "version",
				Run: func(args []string) error {
					called = "version"
					return nil
				},
			},
			{
				Name: "inspect",
				Run: func(args []string) error {
					called = "inspect"
					return nil
				},
			},
		},
	}

	if err := root.Execute([]string{"inspect"}); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if called != "inspect" {
		t.Errorf("dispatched to %q, want %q", called, "inspect")
	}
}

// tokenCommand mirrors how run and restore configure their flags.
func tokenCommand(debug *bool, received *[]string) *Command {
	return &Command{
		Name: "run",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("run", pflag.ContinueOnError)
			flagSet.BoolVar(debug, "debug", false, "debug logging")
			flagSet.SetInterspersed(false)
			return flagSet
		},
		Run: func(args []string) error {
			*received = args
			return nil
		},
	}
}

func TestCommand_Execute_TokenStream(t *testing.T) {
	tests := []struct {
		name      string
		args      []string
		wantDebug bool
		wantArgs  []string
	}{
		{
			name:      "flags then terminator",
			args:      []string{"--debug", "--", "a", "b", "--", "c"},
			wantDebug: true,
			wantArgs:  []string{"a", "b", "--", "c"},
		},
		{
			name:     "tokens without terminator",
			args:     []string{"a", "--", "b"},
			wantArgs: []string{"a", "--", "b"},
		},
		{
			name:     "flag-like token after first positional",
			args:     []string{"a", "--debug", "--", "b"},
			wantArgs: []string{"a", "--debug", "--", "b"},
		},
		{
			name:     "leading separator survives after terminator",
			args:     []string{"--", "--", "x"},
			wantArgs: []string{"--", "x"},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			var debug bool
			var received []string
			if err := tokenCommand(&debug, &received).Execute(test.args); err != nil {
				t.Fatalf("Execute() error: %v", err)
			}
			if debug != test.wantDebug {
				t.Errorf("debug = %v, want %v", debug, test.wantDebug)
			}
			if !reflect.DeepEqual(received, test.wantArgs) {
				t.Errorf("args = %q, want %q", received, test.wantArgs)
			}
		})
	}
}

func TestCommand_Execute_UnknownCommandSuggestion(t *testing.T) {
	root := &Command{
		Name:     "compilecrac",
		Output:   &bytes.Buffer{},
		Subcommands: []*Command{
			{Name: "restore", Run: func(args []string) error { return nil }},
			{Name: "inspect", Run: func(args []string) error { return nil }},
		},
	}

	err := root.Execute([]string{"restroe"})
	if err == nil {
		t.Fatal("expected error for unknown command")
	}
	if !strings.Contains(err.Error(), `did you mean "restore"`) {
		t.Errorf("error = %q, want a suggestion for restore", err.Error())
	}

	err = root.Execute([]string{"zzzzzzzzzz"})
	if err == nil || strings.Contains(err.Error(), "did you mean") {
		t.Errorf("error = %v, want no suggestion", err)
	}
}

func TestCommand_Execute_UnknownFlagSuggestion(t *testing.T) {
	command := &Command{
		Name: "inspect",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("inspect", pflag.ContinueOnError)
			flagSet.String("image-dir", "", "image directory")
			return flagSet
		},
		Run: func(args []string) error { return nil },
	}

	err := command.Execute([]string{"--image-dri", "/tmp"})
	if err == nil {
		t.Fatal("expected error for unknown flag")
	}
	if !strings.Contains(err.Error(), "did you mean --image-dir") {
		t.Errorf("error = %q, want suggestion", err.Error())
	}
}

func TestCommand_Execute_Help(t *testing.T) {
	var output bytes.Buffer
	ran := false
	root := &Command{
		Name:    "compilecrac",
		Summary: "Batch tool invocations across checkpoint and restore",
		Output:  &output,
		Subcommands: []*Command{
			{
				Name:    "restore",
				Summary: "Restore from the checkpoint image",
				Examples: []Example{
					{Description: "Compile two groups", Command: "compilecrac restore -- A -- B"},
				},
				Flags: func() *pflag.FlagSet {
					flagSet := pflag.NewFlagSet("restore", pflag.ContinueOnError)
					flagSet.String("image-dir", "", "image directory")
					return flagSet
				},
				Run: func(args []string) error { ran = true; return nil },
			},
		},
	}

	if err := root.Execute([]string{"--help"}); err != nil {
		t.Fatalf("Execute(--help) error: %v", err)
	}
	if !strings.Contains(output.String(), "restore") || !strings.Contains(output.String(), "Commands:") {
		t.Errorf("root help missing command listing:\n%s", output.String())
	}

	output.Reset()
	if err := root.Execute([]string{"restore", "--help"}); err != nil {
		t.Fatalf("Execute(restore --help) error: %v", err)
	}
	for _, want := range []string{"compilecrac restore", "--image-dir", "Compile two groups"} {
		if !strings.Contains(output.String(), want) {
			t.Errorf("restore help missing %q:\n%s", want, output.String())
		}
	}
	if ran {
		t.Error("help flag ran the command")
	}
}

func TestCommand_Execute_SubcommandRequired(t *testing.T) {
	root := &Command{
		Name:        "compilecrac",
		Output:      &bytes.Buffer{},
		Subcommands: []*Command{{Name: "version", Run: func(args []string) error { return nil }}},
	}
	if err := root.Execute(nil); err == nil || !strings.Contains(err.Error(), "subcommand required") {
		t.Errorf("Execute(nil) = %v, want subcommand required", err)
	}
}

func TestExitError(t *testing.T) {
	err := &ExitError{Code: 3}
	if err.ExitCode() != 3 || err.Error() != "exit code 3" {
		t.Errorf("ExitError = %q / %d", err.Error(), err.ExitCode())
	}
}

func TestNewLoggerLevels(t *testing.T) {
	var buffer bytes.Buffer
	logger := newLogger(&buffer, false, false)
	logger.Debug("hidden")
	logger.Info("shown", "groups", 2)
	if strings.Contains(buffer.String(), "hidden") {
		t.Error("debug line logged at info level")
	}
	if !strings.Contains(buffer.String(), `"msg":"shown"`) {
		t.Errorf("expected JSON output, got %q", buffer.String())
	}

	buffer.Reset()
	newLogger(&buffer, true, true).Debug("visible")
	if !strings.Contains(buffer.String(), "msg=visible") {
		t.Errorf("expected text output at debug level, got %q", buffer.String())
	}
}
