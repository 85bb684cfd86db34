package main

import "github.com/urfave/cli/v3"

var (
	dbPath      string
	backendName string
	deviceName  string
	localMem    int
	logLevel    string
	logFormat   string
	debug       bool
	jsonOut     bool
	useLock     bool

	iterations int
	seed       int64
)

func commonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "db-path",
			Usage:       "config database directory (default $" + envDBPath + " or the user cache dir)",
			Destination: &dbPath,
		},
		&cli.StringFlag{
			Name:        "backend",
			Usage:       "device backend (auto, sim, opencl)",
			Value:       "auto",
			Destination: &backendName,
		},
		&cli.StringFlag{
			Name:        "device",
			Aliases:     []string{"d"},
			Usage:       "device name; selects the database files",
			Value:       "gfx900",
			Destination: &deviceName,
		},
		&cli.IntFlag{
			Name:        "local-mem",
			Usage:       "local memory bytes of the simulated device (0 = backend default)",
			Destination: &localMem,
		},
		&cli.BoolFlag{
			Name:        "json",
			Usage:       "print results as JSON",
			Destination: &jsonOut,
		},
		&cli.BoolFlag{
			Name:        "lock",
			Usage:       "hold an advisory lock on the database directory while writing",
			Destination: &useLock,
		},
	}
}

func tuneFlags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:        "iterations",
			Usage:       "timed launches per candidate when the device cannot profile",
			Value:       1,
			Destination: &iterations,
		},
		&cli.Int64Flag{
			Name:        "seed",
			Usage:       "seed for the measurement buffer contents",
			Value:       1,
			Destination: &seed,
		},
	}
}

func loggingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "info",
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (pretty, json, text)",
			Value:       "pretty",
			Destination: &logFormat,
		},
		&cli.BoolFlag{
			Name:        "debug",
			Usage:       "enable debug logging (shorthand for --log-level=debug)",
			Destination: &debug,
		},
	}
}

func flagSet(groups ...[]cli.Flag) []cli.Flag {
	var out []cli.Flag
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}
