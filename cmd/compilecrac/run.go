// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/compilecrac/cmd/compilecrac/cli"
	"github.com/bureau-foundation/compilecrac/lib/config"
	"github.com/bureau-foundation/compilecrac/lib/coordinator"
	"github.com/bureau-foundation/compilecrac/lib/crac"
)

func runCommand(ctx context.Context) *cli.Command {
	var flags commonFlags
	return &cli.Command{
		Name:    "run",
		Summary: "Run the initial batch, then checkpoint",
		Description: `Split the tokens on the separator, invoke the tool once per group
with the suffix appended to every token, and stop at the first
failure. When every group succeeds, write a checkpoint image and exit
0. A failing group's exit status becomes compilecrac's exit status.`,
		Usage: "compilecrac run [flags] -- <tokens...>",
		Examples: []cli.Example{
			{
				Description: "Compile A.java and B.java together, then C.java, then checkpoint",
				Command:     "compilecrac run -- A B -- C",
			},
			{
				Description: "Run without checkpoint support (the request fails after the batch)",
				Command:     "compilecrac run --facility none -- Warmup",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("run", pflag.ContinueOnError)
			flags.register(flagSet)
			return flagSet
		},
		Run: func(args []string) error {
			return runInitial(ctx, &flags, args)
		},
	}
}

func runInitial(ctx context.Context, flags *commonFlags, tokens []string) error {
	session, err := newSession(flags, "run")
	if err != nil {
		return err
	}
	defer session.close()

	var facility crac.Facility
	switch session.config.Checkpoint.Facility {
	case config.FacilityNone:
		facility = crac.NewUnsupported(session.logger)
	default:
		imageFacility, err := session.imageFacility()
		if err != nil {
			return err
		}
		facility = imageFacility
	}

	batch, err := coordinator.New(session.coordinatorOptions(facility))
	if err != nil {
		return err
	}
	if err := batch.RunInitial(ctx, tokens); err != nil {
		return err
	}
	if err := batch.Register(); err != nil {
		return err
	}
	if err := batch.RequestCheckpointAndWait(ctx); err != nil {
		session.logger.Error("checkpoint failed", "error", err)
		return fmt.Errorf("checkpoint: %w", err)
	}
	return nil
}
