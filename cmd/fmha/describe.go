package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/fmha/internal/descfile"
	"github.com/samcharles93/fmha/internal/fmha"
)

type describeOptions struct {
	JSON bool
	// Emit re-encodes the descriptor as yaml or json instead of describing
	// the config.
	Emit string
}

func describeCmd() *cli.Command {
	var opts describeOptions

	return &cli.Command{
		Name:      "describe",
		Usage:     "Resolve a descriptor file and print its config",
		ArgsUsage: "<descriptor file>",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:        "json",
				Usage:       "print the config summary as JSON",
				Destination: &opts.JSON,
			},
			&cli.StringFlag{
				Name:        "emit",
				Usage:       "print the normalised descriptor document (yaml, json)",
				Destination: &opts.Emit,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			path := cmd.Args().First()
			if path == "" {
				return cli.Exit("error: descriptor file is required", 1)
			}
			if err := describe(os.Stdout, path, opts); err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			return nil
		},
	}
}

func describe(w io.Writer, path string, opts describeOptions) error {
	desc, err := descfile.Load(path)
	if err != nil {
		return err
	}
	cfg, err := fmha.ConfigFor(desc)
	if err != nil {
		return err
	}

	var data []byte
	switch {
	case opts.Emit != "":
		format := descfile.Format(opts.Emit)
		if format != descfile.FormatYAML && format != descfile.FormatJSON {
			return fmt.Errorf("unknown emit format %q (expected yaml or json)", opts.Emit)
		}
		if data, err = descfile.Encode(desc, format); err != nil {
			return err
		}
	case opts.JSON:
		if data, err = descfile.EncodeSummary(descfile.Summarize(cfg)); err != nil {
			return err
		}
	default:
		data = []byte(cfg.String())
	}
	if len(data) > 0 && data[len(data)-1] != '\n' {
		data = append(data, '\n')
	}
	_, err = w.Write(data)
	return err
}
