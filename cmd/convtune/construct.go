package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/convtune/internal/direct"
)

func constructCmd() *cli.Command {
	var (
		pf           problemFlags
		search       bool
		saveRequests bool
	)

	return &cli.Command{
		Name:  "construct",
		Usage: "Select a tiling for a convolution and print the kernel build",
		Flags: flagSet(pf.flags(), commonFlags(), tuneFlags(), loggingFlags(), []cli.Flag{
			&cli.BoolFlag{
				Name:        "search",
				Usage:       "tune shapes missing from the database",
				Destination: &search,
			},
			&cli.BoolFlag{
				Name:        "save-requests",
				Usage:       "record untuned shapes in the request log",
				Value:       true,
				Destination: &saveRequests,
			},
		}),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			ctx, s, err := newSession(ctx, cmd)
			if err != nil {
				return exitf("%v", err)
			}
			applyTuneConfig(cmd, s.cfg, &search, &saveRequests, &pf.bias)

			p, err := pf.problem()
			if err != nil {
				return exitf("%v", err)
			}
			dev, err := s.openDevice(deviceName)
			if err != nil {
				return exitf("open device: %v", err)
			}

			var sol *direct.Solution
			err = s.locked(func() error {
				ctor := &direct.Constructor{
					Device:       dev,
					Store:        s.store,
					Search:       search,
					SaveRequests: saveRequests,
					Searcher:     s.searcher(dev),
					Log:          s.log,
				}
				var err error
				sol, err = ctor.Construct(ctx, p)
				return err
			})
			if err != nil {
				return exitf("construct: %v", err)
			}
			return emit(os.Stdout, sol, func(w io.Writer) { printSolution(w, sol) })
		},
	}
}

func printSolution(w io.Writer, sol *direct.Solution) {
	k := sol.Kernel
	fmt.Fprintf(w, "key:      %s\n", sol.Key)
	fmt.Fprintf(w, "tiling:   %s (%s)\n", sol.Value, sol.Source)
	fmt.Fprintf(w, "strategy: %s\n", k.Strategy)
	fmt.Fprintf(w, "kernel:   %s %s\n", k.File, k.Name)
	fmt.Fprintf(w, "local:    %v\n", k.Local)
	fmt.Fprintf(w, "global:   %v\n", k.Global)
	fmt.Fprintf(w, "flags:    %s\n", k.Options)
	if r := sol.Report; r != nil {
		printReport(w, r)
	}
}

func printReport(w io.Writer, r *direct.SearchReport) {
	if r.Cached {
		fmt.Fprintf(w, "search:   cached %s\n", r.Value)
		return
	}
	fmt.Fprintf(w, "search:   run %s, %d measured, %d skipped, %d failed in %s\n",
		r.RunID, r.Measured, r.Skipped, r.Failed, r.Elapsed)
	if r.Fallback {
		fmt.Fprintf(w, "          no candidate ran; stored default %s\n", r.Value)
		return
	}
	fmt.Fprintf(w, "          best %.4f ms, mean %.4f ms, stddev %.4f ms\n", r.BestMS, r.MeanMS, r.StdDevMS)
}
