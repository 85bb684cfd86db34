package main

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/convtune/internal/api"
	"github.com/samcharles93/convtune/internal/backend"
	"github.com/samcharles93/convtune/internal/device"
)

func serveCmd() *cli.Command {
	var (
		addr         string
		readTimeout  time.Duration
		search       bool
		saveRequests bool
	)

	return &cli.Command{
		Name:  "serve",
		Usage: "Serve config lookups and kernel construction over HTTP",
		Flags: flagSet(commonFlags(), tuneFlags(), loggingFlags(), []cli.Flag{
			&cli.StringFlag{
				Name:        "addr",
				Usage:       "listen address",
				Value:       "127.0.0.1:8080",
				Destination: &addr,
			},
			&cli.DurationFlag{
				Name:        "read-timeout",
				Usage:       "read timeout",
				Value:       30 * time.Second,
				Destination: &readTimeout,
			},
			&cli.BoolFlag{
				Name:        "search",
				Usage:       "tune shapes missing from the database by default",
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
			applyTuneConfig(cmd, s.cfg, &search, &saveRequests, nil)
			applyServeConfig(cmd, s.cfg, &addr)
			if _, err := backend.Normalize(backendName); err != nil {
				return exitf("%v", err)
			}

			server := api.NewServer(api.ServerConfig{
				Store:        s.store,
				OpenDevice:   func(name string) (device.Device, error) { return s.openDevice(name) },
				Search:       search,
				SaveRequests: saveRequests,
				Iterations:   iterations,
				Seed:         seed,
				Log:          s.log,
			})
			e := echo.New()
			e.Use(middleware.RequestLogger())
			e.Use(middleware.Recover())
			server.Register(e)
			s.log.Info("starting server", "address", addr, "db", s.root, "backends", backend.Available())
			sc := echo.StartConfig{
				Address: addr,
				BeforeServeFunc: func(srv *http.Server) error {
					srv.ReadHeaderTimeout = readTimeout
					return nil
				},
			}
			return sc.Start(ctx, e)
		},
	}
}
