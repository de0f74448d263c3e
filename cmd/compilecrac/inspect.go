// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/pflag"

	"github.com/bureau-foundation/compilecrac/cmd/compilecrac/cli"
	"github.com/bureau-foundation/compilecrac/lib/image"
)

func inspectCommand() *cli.Command {
	var (
		configPath   string
		imageDir     string
		identityFile string
	)
	return &cli.Command{
		Name:    "inspect",
		Summary: "Print the checkpoint image",
		Description: `Print the checkpoint image header, its metadata, and the CBOR
diagnostic notation of its content. The header is verified (magic,
version, digest) without decrypting, so a sealed image shows its header
even without an identity.`,
		Usage: "compilecrac inspect [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("inspect", pflag.ContinueOnError)
			flagSet.StringVar(&configPath, "config", "", "config file")
			flagSet.StringVar(&imageDir, "image-dir", "", "checkpoint image directory (overrides checkpoint.image_dir)")
			flagSet.StringVar(&identityFile, "identity", "", "age identity file for sealed images (overrides checkpoint.identity_file)")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument %q", args[0])
			}
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			if imageDir != "" {
				cfg.Checkpoint.ImageDir = imageDir
			}
			if identityFile != "" {
				cfg.Checkpoint.IdentityFile = identityFile
			}
			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			return inspect(stdout, store)
		},
	}
}

type inspectStyles struct {
	heading lipgloss.Style
	label   lipgloss.Style
	warning lipgloss.Style
}

func newInspectStyles(w io.Writer) inspectStyles {
	renderer := lipgloss.NewRenderer(w)
	return inspectStyles{
		heading: renderer.NewStyle().Bold(true).Underline(true),
		label:   renderer.NewStyle().Foreground(lipgloss.Color("12")).Width(12),
		warning: renderer.NewStyle().Foreground(lipgloss.Color("11")),
	}
}

func (s inspectStyles) field(w io.Writer, label string, value any) {
	fmt.Fprintf(w, "  %s %v\n", s.label.Render(label), value)
}

func inspect(w io.Writer, store *image.Store) error {
	styles := newInspectStyles(w)

	data, err := store.ReadRaw()
	if err != nil {
		return err
	}
	header, err := image.ReadHeader(data)
	if err != nil {
		return fmt.Errorf("%s: %w", store.Path(), err)
	}

	fmt.Fprintln(w, styles.heading.Render("Image file"))
	styles.field(w, "path", store.Path())
	styles.field(w, "size", fmt.Sprintf("%d bytes", len(data)))
	styles.field(w, "format", fmt.Sprintf("v%d", header.Version))
	styles.field(w, "compression", header.Compression)
	styles.field(w, "sealed", header.Sealed)
	styles.field(w, "payload", fmt.Sprintf("%d bytes", header.PayloadSize))

	img, err := store.Load()
	if errors.Is(err, image.ErrSealed) {
		fmt.Fprintln(w)
		fmt.Fprintln(w, styles.warning.Render("content is sealed; pass --identity to read it"))
		return nil
	}
	if err != nil {
		return err
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, styles.heading.Render("Checkpoint"))
	styles.field(w, "id", img.ID)
	if img.Parent != "" {
		styles.field(w, "parent", img.Parent)
	}
	styles.field(w, "generation", img.Generation)
	styles.field(w, "created", img.CreatedAt.Format(time.RFC3339))
	styles.field(w, "component", img.Component)
	if img.Hostname != "" {
		styles.field(w, "host", img.Hostname)
	}
	if img.Writer != "" {
		styles.field(w, "writer", img.Writer)
	}
	kinds := make([]string, len(img.Resources))
	for index, record := range img.Resources {
		kinds[index] = record.Kind
	}
	styles.field(w, "resources", strings.Join(kinds, ", "))

	diagnostic, err := image.Diagnose(img)
	if err != nil {
		return err
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, styles.heading.Render("Content"))
	fmt.Fprintln(w, diagnostic)
	return nil
}
