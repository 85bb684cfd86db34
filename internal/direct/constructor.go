package direct

import (
	"context"
	"fmt"

	"github.com/samcharles93/convtune/internal/conv"
	"github.com/samcharles93/convtune/internal/convdb"
	"github.com/samcharles93/convtune/internal/device"
	"github.com/samcharles93/convtune/internal/logger"
	"github.com/samcharles93/convtune/internal/metrics"
)

// Source records where a solution's tiling came from.
type Source string

const (
	SourceDatabase Source = "database"
	SourceSearch   Source = "search"
	SourceDefault  Source = "default"
	SourceGeneric  Source = "generic"
)

// Solution is a constructed kernel and the tiling it was built from.
type Solution struct {
	Key    string      `json:"key"`
	Tiling conv.Tiling `json:"-"`
	Value  string      `json:"value"`
	Source Source      `json:"source"`
	// KernelHash identifies the compiled kernel: "<key> <value>".
	KernelHash string        `json:"kernel_hash"`
	Kernel     *KernelSpec   `json:"-"`
	Report     *SearchReport `json:"report,omitempty"`
}

// Constructor is the entry point that turns a problem into a kernel. It
// consults the database, optionally searches, and falls back to the default
// tiling.
type Constructor struct {
	Device device.Device
	Store  convdb.Store
	// Search enables tuning of shapes missing from the database.
	Search bool
	// SaveRequests appends unknown shapes to the request log.
	SaveRequests bool
	// Searcher runs searches. Nil builds one from Device and Store.
	Searcher *Searcher
	Log      logger.Logger
}

func (c *Constructor) log() logger.Logger {
	if c.Log == nil {
		return logger.Discard()
	}
	return c.Log
}

func (c *Constructor) searcher() *Searcher {
	if c.Searcher != nil {
		return c.Searcher
	}
	return &Searcher{Device: c.Device, Store: c.Store, Log: c.Log}
}

// Construct selects a tiling for p and builds its kernel spec.
func (c *Constructor) Construct(ctx context.Context, p conv.Problem) (*Solution, error) {
	dev := c.Device.Name()
	key := p.Key()
	log := c.log().With("device", dev, "key", key)

	if p.Generic() {
		spec, err := Construct(p, conv.Tiling{})
		if err != nil {
			return nil, err
		}
		metrics.Constructions.WithLabelValues(dev, spec.Strategy.String()).Inc()
		return &Solution{
			Key:        key,
			Value:      spec.Tiling.String(),
			Source:     SourceGeneric,
			KernelHash: key + " " + spec.Tiling.String(),
			Kernel:     spec,
		}, nil
	}

	sol := &Solution{Key: key}
	t, known, err := lookup(c.Store, dev, key, log)
	if err != nil {
		return nil, err
	}
	sol.Source = SourceDatabase
	if !known {
		t = SelectDefault(p.Signature)
		sol.Source = SourceDefault
		if c.SaveRequests {
			if err := c.Store.AppendIfAbsent(dev, key); err != nil {
				log.Warn("failed to record config request", "error", err)
			} else {
				metrics.RequestsLogged.WithLabelValues(dev).Inc()
			}
		}
		if c.Search {
			rep, err := c.searcher().Search(ctx, p)
			if err != nil {
				return nil, err
			}
			t = rep.Tiling
			sol.Source = SourceSearch
			sol.Report = rep
		}
	}

	spec, err := Construct(p, t)
	if err != nil {
		return nil, fmt.Errorf("construct %s with %s: %w", key, t, err)
	}
	metrics.Constructions.WithLabelValues(dev, spec.Strategy.String()).Inc()
	log.Debug("selected tiling", "tiling", t.String(), "source", sol.Source, "strategy", spec.Strategy)

	sol.Tiling = t
	sol.Value = t.String()
	sol.KernelHash = key + " " + sol.Value
	sol.Kernel = spec
	return sol, nil
}
