package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/convtune/internal/backend"
	"github.com/samcharles93/convtune/internal/convdb"
	"github.com/samcharles93/convtune/internal/dblock"
	"github.com/samcharles93/convtune/internal/device"
	"github.com/samcharles93/convtune/internal/direct"
	"github.com/samcharles93/convtune/internal/logger"
)

// session is the state every command starts from.
type session struct {
	cfg   Config
	log   logger.Logger
	root  string
	store *convdb.FileStore
}

func newSession(ctx context.Context, cmd *cli.Command) (context.Context, *session, error) {
	cfg := LoadConfig()
	applyCommonConfig(cmd, cfg)
	if debug {
		logLevel = "debug"
	}
	log := logger.Setup(logFormat, logLevel, os.Stderr)
	root, err := resolveDBPath(dbPath)
	if err != nil {
		return ctx, nil, err
	}
	log.Debug("using config database", "path", root, "device", deviceName)
	s := &session{
		cfg:   cfg,
		log:   log,
		root:  root,
		store: convdb.NewFileStore(root, log),
	}
	return logger.WithContext(ctx, log), s, nil
}

func (s *session) openDevice(name string) (device.Device, error) {
	return backend.Open(backendName, backend.Options{Device: name, LocalMemSize: localMem})
}

func (s *session) searcher(dev device.Device) *direct.Searcher {
	return &direct.Searcher{
		Device:   dev,
		Store:    s.store,
		Measurer: &direct.DeviceMeasurer{Device: dev, Iterations: iterations},
		Seed:     seed,
		Log:      s.log,
	}
}

// locked runs fn while holding the database lock when --lock is set.
func (s *session) locked(fn func() error) error {
	if !useLock {
		return fn()
	}
	l, err := dblock.Acquire(s.root)
	if err != nil {
		return err
	}
	defer l.Release()
	return fn()
}

// emit prints v as indented JSON with --json, or through text otherwise.
func emit(w io.Writer, v any, text func(io.Writer)) error {
	if !jsonOut {
		text(w)
		return nil
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}

func exitf(format string, args ...any) error {
	return cli.Exit(fmt.Sprintf("error: "+format, args...), 1)
}
