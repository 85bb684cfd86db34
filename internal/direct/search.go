package direct

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/stat"

	"github.com/samcharles93/convtune/internal/conv"
	"github.com/samcharles93/convtune/internal/convdb"
	"github.com/samcharles93/convtune/internal/device"
	"github.com/samcharles93/convtune/internal/logger"
	"github.com/samcharles93/convtune/internal/metrics"
)

// Searcher measures every candidate tiling of a shape on Device and stores
// the fastest one.
type Searcher struct {
	Device   device.Device
	Store    convdb.Store
	Measurer Measurer
	// Seed drives the buffer filler. The winner does not depend on it.
	Seed int64
	Log  logger.Logger
}

// SearchReport describes one Search call.
type SearchReport struct {
	RunID  string      `json:"run_id"`
	Device string      `json:"device"`
	Key    string      `json:"key"`
	Tiling conv.Tiling `json:"-"`
	Value  string      `json:"value"`
	// Cached is set when the key was already in the database.
	Cached bool `json:"cached"`
	// Fallback is set when no candidate could be measured and the clamped
	// default was stored instead.
	Fallback bool `json:"fallback"`

	Measured int     `json:"measured"`
	Skipped  int     `json:"skipped"`
	Failed   int     `json:"failed"`
	BestMS   float64 `json:"best_ms"`
	MeanMS   float64 `json:"mean_ms"`
	StdDevMS float64 `json:"stddev_ms"`

	Elapsed time.Duration `json:"elapsed"`
}

func (s *Searcher) log() logger.Logger {
	if s.Log == nil {
		return logger.Discard()
	}
	return s.Log
}

func (s *Searcher) measurer() Measurer {
	if s.Measurer != nil {
		return s.Measurer
	}
	return &DeviceMeasurer{Device: s.Device}
}

// Search tunes p unless its key is already stored. Candidates that fail to
// construct or run are skipped. The stored tiling is the one the winning
// kernel was built with. The context is checked between candidates; a
// canceled search stores nothing. Shapes served by the generic kernel have
// no tiling and are refused with conv.ErrUnsupported.
func (s *Searcher) Search(ctx context.Context, p conv.Problem) (*SearchReport, error) {
	dev := s.Device.Name()
	key := p.Key()
	if p.Generic() {
		metrics.Searches.WithLabelValues(dev, "unsupported").Inc()
		if p.Direction == conv.Backward {
			return nil, fmt.Errorf("%w: backward direct convolution for %s", conv.ErrUnsupported, key)
		}
		return nil, fmt.Errorf("%w: %s runs the generic kernel, which has no tiling to search", conv.ErrUnsupported, key)
	}
	rep := &SearchReport{
		RunID:  uuid.NewString(),
		Device: dev,
		Key:    key,
	}
	log := s.log().With("run", rep.RunID, "device", dev, "key", key)

	if t, ok, err := lookup(s.Store, dev, key, log); err != nil {
		metrics.Searches.WithLabelValues(dev, "error").Inc()
		return nil, err
	} else if ok {
		rep.Cached = true
		rep.Tiling = t
		rep.Value = t.String()
		metrics.Searches.WithLabelValues(dev, "cached").Inc()
		return rep, nil
	}

	start := time.Now()
	bufs, err := AllocBuffers(s.Device, p, s.Seed)
	if err != nil {
		metrics.Searches.WithLabelValues(dev, "error").Inc()
		return nil, fmt.Errorf("allocate search buffers: %w", err)
	}
	defer bufs.Release()

	var profiling device.Queue
	if q, err := s.Device.NewProfilingQueue(); err == nil {
		profiling = q
		defer q.Release()
	} else if !errors.Is(err, device.ErrNoProfiling) {
		log.Warn("profiling queue unavailable, timing with wall clock", "error", err)
	}

	sp := newSpace(p.Signature, s.Device.LocalMemSize())
	log.Info("searching tiling space", "runs", sp.runsLeft)

	m := s.measurer()
	best := math.MaxFloat64
	var winner conv.Tiling
	var found bool
	var times []float64
	var canceled error
	runs := 0

	sp.walk(func(t *conv.Tiling) bool {
		if err := ctx.Err(); err != nil {
			canceled = err
			return false
		}
		spec, err := Construct(p, *t)
		if err == nil {
			*t = spec.Tiling
			var ms float64
			ms, err = m.Measure(ctx, spec, bufs, profiling)
			if err == nil {
				if runs != 0 && runs%sp.reportInterval == 0 {
					log.Info("search progress", "runs_left", sp.runsLeft, "best_ms", best, "ms", ms, "tiling", t.String())
				}
				runs++
				times = append(times, ms)
				metrics.CandidateTime.WithLabelValues(dev).Observe(ms)
				if ms < best {
					best = ms
					winner = spec.Tiling
					found = true
				}
				return true
			}
		}
		rep.Failed++
		log.Warn("candidate failed", "tiling", t.String(), "error", err)
		return true
	})

	rep.Measured = len(times)
	rep.Skipped = sp.skipped
	metrics.Candidates.WithLabelValues(dev, "measured").Add(float64(rep.Measured))
	metrics.Candidates.WithLabelValues(dev, "skipped").Add(float64(rep.Skipped))
	metrics.Candidates.WithLabelValues(dev, "failed").Add(float64(rep.Failed))

	if canceled != nil {
		metrics.Searches.WithLabelValues(dev, "canceled").Inc()
		return nil, fmt.Errorf("search %s canceled after %d candidates: %w", key, rep.Measured, canceled)
	}

	outcome := "tuned"
	if found {
		rep.BestMS = best
		rep.MeanMS, rep.StdDevMS = stat.MeanStdDev(times, nil)
		if len(times) < 2 {
			rep.StdDevMS = 0
		}
	} else {
		winner = Clamp(SelectDefault(p.Signature), p.Signature)
		rep.Fallback = true
		outcome = "fallback"
		log.Warn("no candidate measured, storing default tiling", "tiling", winner.String())
	}
	rep.Tiling = winner
	rep.Value = winner.String()

	if err := s.Store.Upsert(dev, key, rep.Value); err != nil {
		metrics.Searches.WithLabelValues(dev, "error").Inc()
		return nil, fmt.Errorf("store tuned config for %s: %w", key, err)
	}
	if err := s.Store.RemoveIfPresent(dev, key); err != nil {
		metrics.Searches.WithLabelValues(dev, "error").Inc()
		return nil, fmt.Errorf("clear request for %s: %w", key, err)
	}

	rep.Elapsed = time.Since(start)
	metrics.Searches.WithLabelValues(dev, outcome).Inc()
	metrics.SearchDuration.WithLabelValues(dev).Observe(rep.Elapsed.Seconds())
	log.Info("search done", "tiling", rep.Value, "best_ms", rep.BestMS, "measured", rep.Measured,
		"skipped", rep.Skipped, "failed", rep.Failed, "elapsed", rep.Elapsed)
	return rep, nil
}

// lookup reads key from the store and decodes it. A value that does not
// decode is logged and treated as absent.
func lookup(store convdb.Store, dev, key string, log logger.Logger) (conv.Tiling, bool, error) {
	val, ok, err := store.Lookup(dev, key)
	if err != nil {
		return conv.Tiling{}, false, fmt.Errorf("lookup %s: %w", key, err)
	}
	if !ok {
		metrics.ConfigLookups.WithLabelValues(dev, "miss").Inc()
		return conv.Tiling{}, false, nil
	}
	t, err := conv.ParseTiling(val)
	if err != nil {
		metrics.ConfigLookups.WithLabelValues(dev, "malformed").Inc()
		log.Warn("ignoring malformed config", "key", key, "value", val, "error", err)
		return conv.Tiling{}, false, nil
	}
	metrics.ConfigLookups.WithLabelValues(dev, "hit").Inc()
	return t, true, nil
}
