package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/convtune/internal/conv"
	"github.com/samcharles93/convtune/internal/direct"
)

func searchCmd() *cli.Command {
	var (
		pf  problemFlags
		key string
	)

	return &cli.Command{
		Name:  "search",
		Usage: "Tune one convolution shape and store the fastest tiling",
		Flags: flagSet(pf.flags(), commonFlags(), tuneFlags(), loggingFlags(), []cli.Flag{
			&cli.StringFlag{
				Name:        "key",
				Usage:       "search a persisted shape key instead of --input/--weights",
				Destination: &key,
			},
		}),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			ctx, s, err := newSession(ctx, cmd)
			if err != nil {
				return exitf("%v", err)
			}
			applyTuneConfig(cmd, s.cfg, nil, nil, &pf.bias)

			var p conv.Problem
			if key != "" {
				sig, err := conv.ParseKey(key)
				if err != nil {
					return exitf("%v", err)
				}
				p, err = conv.ProblemFromSignature(sig, pf.bias)
				if err != nil {
					return exitf("%v", err)
				}
			} else if p, err = pf.problem(); err != nil {
				return exitf("%v", err)
			}

			dev, err := s.openDevice(deviceName)
			if err != nil {
				return exitf("open device: %v", err)
			}
			var rep *direct.SearchReport
			err = s.locked(func() error {
				var err error
				rep, err = s.searcher(dev).Search(ctx, p)
				return err
			})
			if err != nil {
				return exitf("search: %v", err)
			}
			return emit(os.Stdout, rep, func(w io.Writer) {
				fmt.Fprintf(w, "key:      %s\n", rep.Key)
				fmt.Fprintf(w, "tiling:   %s\n", rep.Value)
				printReport(w, rep)
			})
		},
	}
}
