// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/compilecrac/cmd/compilecrac/cli"
	"github.com/bureau-foundation/compilecrac/lib/config"
	"github.com/bureau-foundation/compilecrac/lib/coordinator"
	"github.com/bureau-foundation/compilecrac/lib/crac"
)

func restoreCommand(ctx context.Context) *cli.Command {
	var flags commonFlags
	var checkpoint bool
	return &cli.Command{
		Name:    "restore",
		Summary: "Restore from the checkpoint image and run new tokens",
		Description: `Rebuild the checkpointed state from the image and run the given tokens
as a new batch, with the separator and suffix the image was taken with.
Without tokens nothing is invoked. The image is left in place, so it can
be restored again.

With --checkpoint, a successful batch is followed by a new checkpoint
that replaces the image (the next generation of the lineage).`,
		Usage: "compilecrac restore [flags] [-- <tokens...>]",
		Examples: []cli.Example{
			{
				Description: "Compile X.java, then Y.java, in the restored process",
				Command:     "compilecrac restore -- X -- Y",
			},
			{
				Description: "Restore and checkpoint again after the batch",
				Command:     "compilecrac restore --checkpoint -- Z",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("restore", pflag.ContinueOnError)
			flags.register(flagSet)
			flagSet.BoolVar(&checkpoint, "checkpoint", false, "checkpoint again after a successful batch")
			return flagSet
		},
		Run: func(args []string) error {
			return runRestore(ctx, &flags, checkpoint, args)
		},
	}
}

func runRestore(ctx context.Context, flags *commonFlags, checkpoint bool, tokens []string) error {
	session, err := newSession(flags, "restore")
	if err != nil {
		return err
	}
	defer session.close()

	if session.config.Checkpoint.Facility != config.FacilityImage {
		return errors.New("restore requires the image checkpoint facility")
	}
	facility, err := session.imageFacility()
	if err != nil {
		return err
	}
	if err := facility.RegisterFactory(coordinator.Kind, coordinator.Factory(session.coordinatorOptions(facility))); err != nil {
		return err
	}

	restoreContext := crac.NewContext(ctx)
	if len(tokens) > 0 {
		restoreContext = crac.WithNewArguments(ctx, tokens)
	}
	if err := facility.Restore(restoreContext); err != nil {
		return err
	}
	if !checkpoint {
		return nil
	}

	restored, err := findCoordinator(facility.Registry())
	if err != nil {
		return err
	}
	if err := restored.RequestCheckpointAndWait(ctx); err != nil {
		session.logger.Error("checkpoint failed", "error", err)
		return fmt.Errorf("checkpoint: %w", err)
	}
	return nil
}
