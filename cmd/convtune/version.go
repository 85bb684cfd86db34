package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/convtune/internal/backend"
	"github.com/samcharles93/convtune/internal/version"
)

func versionCmd() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Print version information",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:        "json",
				Usage:       "print results as JSON",
				Destination: &jsonOut,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			info := version.Resolve()
			return emit(os.Stdout, info, func(w io.Writer) {
				fmt.Fprintf(w, "version:    %s\n", info.Version)
				if info.Commit != "" {
					fmt.Fprintf(w, "commit:     %s\n", info.Commit)
				}
				if info.BuildTime != "" {
					fmt.Fprintf(w, "build time: %s\n", info.BuildTime)
				}
				fmt.Fprintf(w, "backends:   %s\n", backend.Available())
			})
		},
	}
}
