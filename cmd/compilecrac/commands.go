// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"filippo.io/age"
	"github.com/spf13/pflag"

	"github.com/bureau-foundation/compilecrac/cmd/compilecrac/cli"
	"github.com/bureau-foundation/compilecrac/lib/config"
	"github.com/bureau-foundation/compilecrac/lib/coordinator"
	"github.com/bureau-foundation/compilecrac/lib/crac"
	"github.com/bureau-foundation/compilecrac/lib/image"
	"github.com/bureau-foundation/compilecrac/lib/process"
	"github.com/bureau-foundation/compilecrac/lib/results"
	"github.com/bureau-foundation/compilecrac/lib/tool"
	"github.com/bureau-foundation/compilecrac/lib/version"
)

// component is recorded in every image this binary writes.
const component = "compilecrac"

// halt ends the process after a checkpoint image is written. Tests
// replace it.
var halt = func() { process.Exit(0) }

// stdout receives the tool echo line and command output. Tests
// replace it.
var stdout io.Writer = os.Stdout

func root(ctx context.Context) *cli.Command {
	return &cli.Command{
		Name:    "compilecrac",
		Summary: "Batch tool invocations across checkpoint and restore",
		Description: `compilecrac splits a token stream on "--" into groups and invokes a
compiler once per group, appending a suffix to every token. After the
first batch it checkpoints; each restore delivers a new token stream
that is compiled the same way.`,
		Subcommands: []*cli.Command{
			runCommand(ctx),
			restoreCommand(ctx),
			inspectCommand(),
			{
				Name:    "version",
				Summary: "Print version information",
				Run: func(args []string) error {
					fmt.Fprintln(stdout, version.Full())
					return nil
				},
			},
		},
	}
}

// commonFlags are shared by run and restore. Non-empty values override
// the config file.
type commonFlags struct {
	configPath  string
	debug       bool
	toolPath    string
	suffix      string
	separator   string
	facility    string
	imageDir    string
	resultsPath string
}

func (f *commonFlags) register(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&f.configPath, "config", "", "config file (default: $"+config.EnvironmentVariable+")")
	flagSet.BoolVar(&f.debug, "debug", false, "enable debug logging")
	flagSet.StringVar(&f.toolPath, "tool", "", "tool binary (overrides tool.path)")
	flagSet.StringVar(&f.suffix, "suffix", "", "suffix appended to every token (overrides tool.suffix)")
	flagSet.StringVar(&f.separator, "separator", "", "group separator token (overrides tool.separator)")
	flagSet.StringVar(&f.facility, "facility", "", "checkpoint facility: image or none (overrides checkpoint.facility)")
	flagSet.StringVar(&f.imageDir, "image-dir", "", "checkpoint image directory (overrides checkpoint.image_dir)")
	flagSet.StringVar(&f.resultsPath, "results", "", "JSONL results log (overrides results.path)")
	// Tokens follow the first positional argument untouched.
	flagSet.SetInterspersed(false)
}

// loadConfig reads the config file named by --config or
// COMPILECRAC_CONFIG, or the defaults when neither is set.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	if os.Getenv(config.EnvironmentVariable) != "" {
		return config.Load()
	}
	return config.Default(), nil
}

// session is the wiring shared by run and restore.
type session struct {
	config  *config.Config
	logger  *slog.Logger
	tool    *tool.Command
	results *results.Log
}

func newSession(flags *commonFlags, command string) (*session, error) {
	cfg, err := loadConfig(flags.configPath)
	if err != nil {
		return nil, err
	}
	if flags.toolPath != "" {
		cfg.Tool.Path = flags.toolPath
	}
	if flags.suffix != "" {
		cfg.Tool.Suffix = flags.suffix
	}
	if flags.separator != "" {
		cfg.Tool.Separator = flags.separator
	}
	if flags.facility != "" {
		cfg.Checkpoint.Facility = flags.facility
	}
	if flags.imageDir != "" {
		cfg.Checkpoint.ImageDir = flags.imageDir
	}
	if flags.resultsPath != "" {
		cfg.Results.Path = flags.resultsPath
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.EnsurePaths(); err != nil {
		return nil, err
	}

	logger := cli.NewCommandLogger(flags.debug).With("command", command)

	timeout, _ := cfg.Tool.TimeoutDuration()
	gracePeriod, _ := cfg.Tool.GracePeriodDuration()
	invoker := &tool.Command{
		Path:        cfg.Tool.Path,
		Env:         environmentMap(cfg.Tool.Env),
		Timeout:     timeout,
		GracePeriod: gracePeriod,
	}
	if cfg.Tool.Echo {
		invoker.Echo = stdout
	}

	var log *results.Log
	if cfg.Results.Path != "" {
		log, err = results.Open(cfg.Results.Path, nil, logger)
		if err != nil {
			return nil, err
		}
	}

	logger.Debug("configuration loaded",
		"environment", cfg.Environment,
		"tool", cfg.Tool.Path,
		"facility", cfg.Checkpoint.Facility,
		"image_dir", cfg.Checkpoint.ImageDir,
	)
	return &session{config: cfg, logger: logger, tool: invoker, results: log}, nil
}

// close closes the results log. Safe to call more than once: the halt
// hook closes before exiting and the command defers another close.
func (s *session) close() {
	if err := s.results.Close(); err != nil {
		s.logger.Warn("closing results log", "error", err)
	}
	s.results = nil
}

func (s *session) coordinatorOptions(facility crac.Facility) coordinator.Options {
	return coordinator.Options{
		Invoker:   s.tool,
		Facility:  facility,
		Separator: s.config.Tool.Separator,
		Suffix:    s.config.Tool.Suffix,
		Results:   s.results,
		Logger:    s.logger,
	}
}

// imageFacility builds the image facility from the checkpoint config.
// The halt hook closes the session before exiting.
func (s *session) imageFacility() (*crac.ImageFacility, error) {
	store, err := openStore(s.config)
	if err != nil {
		return nil, err
	}
	return crac.NewImageFacility(crac.ImageOptions{
		Store:     store,
		Component: component,
		Halt: func() {
			s.close()
			halt()
		},
		Logger: s.logger,
	})
}

func openStore(cfg *config.Config) (*image.Store, error) {
	compression, err := image.ParseCompression(cfg.Checkpoint.Compression)
	if err != nil {
		return nil, err
	}
	recipients, err := image.ParseRecipients(cfg.Checkpoint.Recipients)
	if err != nil {
		return nil, err
	}
	var identities []age.Identity
	if cfg.Checkpoint.IdentityFile != "" {
		identities, err = image.LoadIdentities(cfg.Checkpoint.IdentityFile)
		if err != nil {
			return nil, err
		}
	}
	return image.NewStore(image.StoreOptions{
		Directory:   cfg.Checkpoint.ImageDir,
		Compression: compression,
		Recipients:  recipients,
		Identities:  identities,
	})
}

// environmentMap converts validated KEY=VALUE entries.
func environmentMap(entries []string) map[string]string {
	if len(entries) == 0 {
		return nil
	}
	environment := make(map[string]string, len(entries))
	for _, entry := range entries {
		key, value, _ := strings.Cut(entry, "=")
		environment[key] = value
	}
	return environment
}

// findCoordinator returns the coordinator a restore rebuilt.
func findCoordinator(registry *crac.Registry) (*coordinator.Coordinator, error) {
	for _, resource := range registry.Resources() {
		if restored, ok := resource.(*coordinator.Coordinator); ok {
			return restored, nil
		}
	}
	return nil, errors.New("checkpoint image holds no coordinator")
}
