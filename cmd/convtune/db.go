package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/convtune/internal/conv"
	"github.com/samcharles93/convtune/internal/direct"
)

type dbEntry struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type resolveResult struct {
	Key    string               `json:"key"`
	Report *direct.SearchReport `json:"report,omitempty"`
	Error  string               `json:"error,omitempty"`
}

func dbCmd() *cli.Command {
	flags := func() []cli.Flag { return flagSet(commonFlags(), loggingFlags()) }
	return &cli.Command{
		Name:  "db",
		Usage: "Inspect and edit the per-device config database",
		Commands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "Print every stored config",
				Flags:  flags(),
				Action: dbList,
			},
			{
				Name:      "get",
				Usage:     "Print the stored tiling for a key",
				ArgsUsage: "KEY",
				Flags:     flags(),
				Action:    dbGet,
			},
			{
				Name:      "put",
				Usage:     "Store a tiling for a key and clear its request",
				ArgsUsage: "KEY VALUE",
				Flags:     flags(),
				Action:    dbPut,
			},
			{
				Name:   "pending",
				Usage:  "Print shapes that were requested but never tuned",
				Flags:  flags(),
				Action: dbPending,
			},
			{
				Name:   "resolve",
				Usage:  "Search every pending shape",
				Flags:  flagSet(flags(), tuneFlags()),
				Action: dbResolve,
			},
		},
	}
}

func dbList(ctx context.Context, cmd *cli.Command) error {
	_, s, err := newSession(ctx, cmd)
	if err != nil {
		return exitf("%v", err)
	}
	db, err := s.store.ReadDatabase(deviceName)
	if err != nil {
		return exitf("%v", err)
	}
	keys := make([]string, 0, len(db))
	for k := range db {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	entries := make([]dbEntry, 0, len(keys))
	for _, k := range keys {
		entries = append(entries, dbEntry{Key: k, Value: db[k]})
	}
	return emit(os.Stdout, entries, func(w io.Writer) {
		for _, e := range entries {
			fmt.Fprintf(w, "%s %s\n", e.Key, e.Value)
		}
	})
}

func dbGet(ctx context.Context, cmd *cli.Command) error {
	if cmd.NArg() != 1 {
		return exitf("db get takes exactly one KEY")
	}
	_, s, err := newSession(ctx, cmd)
	if err != nil {
		return exitf("%v", err)
	}
	key := cmd.Args().Get(0)
	if _, err := conv.ParseKey(key); err != nil {
		return exitf("%v", err)
	}
	val, ok, err := s.store.Lookup(deviceName, key)
	if err != nil {
		return exitf("%v", err)
	}
	if !ok {
		return exitf("no config for %s on %s", key, deviceName)
	}
	e := dbEntry{Key: key, Value: val}
	return emit(os.Stdout, e, func(w io.Writer) { fmt.Fprintln(w, val) })
}

func dbPut(ctx context.Context, cmd *cli.Command) error {
	if cmd.NArg() != 2 {
		return exitf("db put takes KEY VALUE")
	}
	_, s, err := newSession(ctx, cmd)
	if err != nil {
		return exitf("%v", err)
	}
	key, val := cmd.Args().Get(0), cmd.Args().Get(1)
	if _, err := conv.ParseKey(key); err != nil {
		return exitf("%v", err)
	}
	t, err := conv.ParseTiling(val)
	if err != nil {
		return exitf("%v", err)
	}
	err = s.locked(func() error {
		if err := s.store.Upsert(deviceName, key, t.String()); err != nil {
			return err
		}
		return s.store.RemoveIfPresent(deviceName, key)
	})
	if err != nil {
		return exitf("%v", err)
	}
	s.log.Info("config stored", "device", deviceName, "key", key, "value", t.String())
	return nil
}

func dbPending(ctx context.Context, cmd *cli.Command) error {
	_, s, err := newSession(ctx, cmd)
	if err != nil {
		return exitf("%v", err)
	}
	keys, err := s.store.ReadRequestLog(deviceName)
	if err != nil {
		return exitf("%v", err)
	}
	if keys == nil {
		keys = []string{}
	}
	return emit(os.Stdout, keys, func(w io.Writer) {
		for _, k := range keys {
			fmt.Fprintln(w, k)
		}
	})
}

// dbResolve searches each pending key in log order. A key that cannot be
// searched stays pending and the rest continue.
func dbResolve(ctx context.Context, cmd *cli.Command) error {
	ctx, s, err := newSession(ctx, cmd)
	if err != nil {
		return exitf("%v", err)
	}
	applyTuneConfig(cmd, s.cfg, nil, nil, nil)
	keys, err := s.store.ReadRequestLog(deviceName)
	if err != nil {
		return exitf("%v", err)
	}
	if len(keys) == 0 {
		s.log.Info("no pending requests", "device", deviceName)
		return emit(os.Stdout, []resolveResult{}, func(io.Writer) {})
	}
	dev, err := s.openDevice(deviceName)
	if err != nil {
		return exitf("open device: %v", err)
	}
	searcher := s.searcher(dev)

	results := make([]resolveResult, 0, len(keys))
	failed := 0
	for _, key := range keys {
		res := resolveResult{Key: key}
		err := s.locked(func() error {
			sig, err := conv.ParseKey(key)
			if err != nil {
				return err
			}
			p, err := conv.ProblemFromSignature(sig, false)
			if err != nil {
				return err
			}
			res.Report, err = searcher.Search(ctx, p)
			return err
		})
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return exitf("resolve interrupted at %s", key)
			}
			failed++
			res.Error = err.Error()
			s.log.Warn("could not resolve request", "key", key, "error", err)
		}
		results = append(results, res)
	}

	if err := emit(os.Stdout, results, func(w io.Writer) {
		for _, r := range results {
			if r.Error != "" {
				fmt.Fprintf(w, "%s FAILED %s\n", r.Key, r.Error)
				continue
			}
			fmt.Fprintf(w, "%s %s\n", r.Key, r.Report.Value)
		}
	}); err != nil {
		return err
	}
	if failed > 0 {
		return exitf("%d of %d pending requests could not be resolved", failed, len(keys))
	}
	return nil
}
