package direct

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/samcharles93/convtune/internal/conv"
	"github.com/samcharles93/convtune/internal/convdb"
	"github.com/samcharles93/convtune/internal/device"
	"github.com/samcharles93/convtune/internal/device/sim"
)

// scriptedMeasurer returns times[i] for the i-th measured candidate and
// records the effective tilings it saw.
type scriptedMeasurer struct {
	times []float64
	def   float64
	calls int
	fail  func(i int) bool
}

func (m *scriptedMeasurer) Measure(_ context.Context, _ *KernelSpec, _ *Buffers, _ device.Queue) (float64, error) {
	i := m.calls
	m.calls++
	if m.fail != nil && m.fail(i) {
		return 0, ErrCandidateFailed
	}
	if i < len(m.times) {
		return m.times[i], nil
	}
	return m.def, nil
}

func newTestSearcher(t *testing.T, dev device.Device, m Measurer) (*Searcher, *convdb.FileStore) {
	t.Helper()
	store := convdb.NewFileStore(t.TempDir(), nil)
	return &Searcher{Device: dev, Store: store, Measurer: m, Seed: 1}, store
}

// measuredCandidates lists the tilings a search will measure, in order, as
// their kernels were built.
func measuredCandidates(t *testing.T, p conv.Problem) []conv.Tiling {
	t.Helper()
	var out []conv.Tiling
	newSpace(p.Signature, 64*1024).walk(func(tl *conv.Tiling) bool {
		if spec, err := Construct(p, *tl); err == nil {
			*tl = spec.Tiling
			out = append(out, spec.Tiling)
		}
		return true
	})
	return out
}

func TestSearchTieBreakFirstWins(t *testing.T) {
	t.Parallel()
	p := forwardProblem(t, 4, 3, 32, 32, 32, 3, 3, 1, 1, false)
	cands := measuredCandidates(t, p)
	if len(cands) < 8 {
		t.Fatalf("expected at least 8 candidates, got %d", len(cands))
	}
	m := &scriptedMeasurer{times: []float64{5, 4, 3, 1, 2, 9, 1, 1}, def: 7}
	s, _ := newTestSearcher(t, sim.New(sim.Config{}), m)
	rep, err := s.Search(context.Background(), p)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if rep.Tiling != cands[3] {
		t.Fatalf("winner = %s, want first minimum %s", rep.Tiling, cands[3])
	}
	if rep.BestMS != 1 {
		t.Fatalf("BestMS = %v, want 1", rep.BestMS)
	}
	if rep.Measured != len(cands) || m.calls != len(cands) {
		t.Fatalf("measured %d (calls %d), want %d", rep.Measured, m.calls, len(cands))
	}
}

func TestSearchPersistsWinnerAndClearsRequest(t *testing.T) {
	t.Parallel()
	p := forwardProblem(t, 4, 3, 32, 32, 32, 3, 3, 1, 1, false)
	dev := sim.New(sim.Config{})
	s, store := newTestSearcher(t, dev, &scriptedMeasurer{def: 1})
	if err := store.AppendIfAbsent(dev.Name(), p.Key()); err != nil {
		t.Fatal(err)
	}
	rep, err := s.Search(context.Background(), p)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	val, ok, err := store.Lookup(dev.Name(), p.Key())
	if err != nil || !ok || val != rep.Value {
		t.Fatalf("stored value = %q, %v, %v; want %q", val, ok, err, rep.Value)
	}
	pending, _ := store.ReadRequestLog(dev.Name())
	if len(pending) != 0 {
		t.Fatalf("request log still has %v", pending)
	}
	if rep.RunID == "" {
		t.Fatal("missing run id")
	}
}

func TestSearchCachedSkipsDevice(t *testing.T) {
	t.Parallel()
	p := forwardProblem(t, 4, 3, 32, 32, 32, 3, 3, 1, 1, false)
	dev := sim.New(sim.Config{})
	m := &scriptedMeasurer{def: 1}
	s, store := newTestSearcher(t, dev, m)
	if err := store.Upsert(dev.Name(), p.Key(), "8.16.8.32.2.2.8.2.1"); err != nil {
		t.Fatal(err)
	}
	rep, err := s.Search(context.Background(), p)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if !rep.Cached || rep.Tiling != (conv.Tiling{8, 16, 8, 32, 2, 2, 8, 2, 1}) {
		t.Fatalf("unexpected report %+v", rep)
	}
	if m.calls != 0 || dev.LiveBuffers() != 0 {
		t.Fatalf("cached search touched the device: calls %d, live buffers %d", m.calls, dev.LiveBuffers())
	}
}

func TestSearchSkipsFailedCandidates(t *testing.T) {
	t.Parallel()
	p := forwardProblem(t, 4, 3, 32, 32, 32, 3, 3, 1, 1, false)
	cands := measuredCandidates(t, p)
	// Every even candidate fails; the fastest odd one must win.
	m := &scriptedMeasurer{
		times: []float64{0.1, 5, 0.1, 3, 0.1, 2},
		def:   4,
		fail:  func(i int) bool { return i%2 == 0 },
	}
	s, _ := newTestSearcher(t, sim.New(sim.Config{}), m)
	rep, err := s.Search(context.Background(), p)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if rep.Tiling != cands[5] {
		t.Fatalf("winner = %s, want %s", rep.Tiling, cands[5])
	}
	if rep.Failed == 0 {
		t.Fatal("expected failures to be counted")
	}
}

func TestSearchFallbackWhenEverythingFails(t *testing.T) {
	t.Parallel()
	dev := sim.New(sim.Config{FailBuild: func(device.BuildSpec) error { return errors.New("no compiler") }})
	p := forwardProblem(t, 1, 1, 1, 1, 1, 1, 1, 0, 1, false)
	s, store := newTestSearcher(t, dev, nil)
	rep, err := s.Search(context.Background(), p)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if !rep.Fallback || rep.Measured != 0 {
		t.Fatalf("expected fallback, got %+v", rep)
	}
	want := Clamp(SelectDefault(p.Signature), p.Signature)
	if rep.Tiling != want || !Valid(rep.Tiling, p.Signature) {
		t.Fatalf("fallback tiling = %s, want valid %s", rep.Tiling, want)
	}
	if _, ok, _ := store.Lookup(dev.Name(), p.Key()); !ok {
		t.Fatal("fallback tiling was not stored")
	}
	if dev.LiveBuffers() != 0 {
		t.Fatalf("leaked %d buffers", dev.LiveBuffers())
	}
}

func TestSearchTinyShapeOnDevice(t *testing.T) {
	t.Parallel()
	dev := sim.New(sim.Config{})
	p := forwardProblem(t, 1, 1, 1, 1, 1, 1, 1, 0, 1, false)
	s, _ := newTestSearcher(t, dev, nil)
	rep, err := s.Search(context.Background(), p)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if rep.Fallback || rep.Measured == 0 {
		t.Fatalf("expected measured candidates, got %+v", rep)
	}
	if !Valid(rep.Tiling, p.Signature) {
		t.Fatalf("winner %s is not valid", rep.Tiling)
	}
	if dev.LiveBuffers() != 0 {
		t.Fatalf("leaked %d buffers", dev.LiveBuffers())
	}
}

func TestSearchSeedInvariance(t *testing.T) {
	t.Parallel()
	p := forwardProblem(t, 2, 8, 16, 16, 16, 3, 3, 1, 1, true)
	var winners []conv.Tiling
	for _, seed := range []int64{1, 42, 1 << 40} {
		s, _ := newTestSearcher(t, sim.New(sim.Config{}), nil)
		s.Seed = seed
		rep, err := s.Search(context.Background(), p)
		if err != nil {
			t.Fatalf("Search(seed %d): %v", seed, err)
		}
		winners = append(winners, rep.Tiling)
	}
	for _, w := range winners[1:] {
		if w != winners[0] {
			t.Fatalf("winner depends on seed: %v", winners)
		}
	}
}

func TestSearchWithoutProfiling(t *testing.T) {
	t.Parallel()
	dev := sim.New(sim.Config{NoProfiling: true})
	p := forwardProblem(t, 2, 8, 16, 16, 16, 3, 3, 1, 1, false)
	s, _ := newTestSearcher(t, dev, &DeviceMeasurer{Device: dev, Iterations: 2})
	rep, err := s.Search(context.Background(), p)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if rep.Measured == 0 || rep.BestMS <= 0 {
		t.Fatalf("unexpected report %+v", rep)
	}
	// Warm-up plus two timed launches per candidate.
	if dev.Launches() != 3*rep.Measured {
		t.Fatalf("launches = %d, want %d", dev.Launches(), 3*rep.Measured)
	}
}

func TestSearchCanceled(t *testing.T) {
	t.Parallel()
	dev := sim.New(sim.Config{})
	p := forwardProblem(t, 4, 3, 32, 32, 32, 3, 3, 1, 1, false)
	ctx, cancel := context.WithCancel(context.Background())
	m := &cancelingMeasurer{cancel: cancel, after: 3}
	s, store := newTestSearcher(t, dev, m)
	_, err := s.Search(ctx, p)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if m.calls != 3 {
		t.Fatalf("measured %d candidates after cancel, want 3", m.calls)
	}
	if _, ok, _ := store.Lookup(dev.Name(), p.Key()); ok {
		t.Fatal("canceled search stored a result")
	}
	if dev.LiveBuffers() != 0 {
		t.Fatalf("leaked %d buffers", dev.LiveBuffers())
	}
}

type cancelingMeasurer struct {
	cancel context.CancelFunc
	after  int
	calls  int
}

func (m *cancelingMeasurer) Measure(context.Context, *KernelSpec, *Buffers, device.Queue) (float64, error) {
	m.calls++
	if m.calls == m.after {
		m.cancel()
	}
	return 1, nil
}

func TestSearchPersistenceFailure(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	if err := os.WriteFile(blocker, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	dev := sim.New(sim.Config{})
	s := &Searcher{
		Device:   dev,
		Store:    convdb.NewFileStore(filepath.Join(blocker, "db"), nil),
		Measurer: &scriptedMeasurer{def: 1},
	}
	p := forwardProblem(t, 1, 1, 1, 1, 1, 1, 1, 0, 1, false)
	if _, err := s.Search(context.Background(), p); !errors.Is(err, convdb.ErrPersistence) {
		t.Fatalf("expected ErrPersistence, got %v", err)
	}
	if dev.LiveBuffers() != 0 {
		t.Fatalf("leaked %d buffers", dev.LiveBuffers())
	}
}

func TestSearchStoresBuiltTiling(t *testing.T) {
	t.Parallel()
	// 6x6 input, 3x3 filter: a 4x4 output that clips the 8x8 input tile.
	p := forwardProblem(t, 1, 2, 6, 6, 2, 3, 3, 0, 1, false)
	s, store := newTestSearcher(t, sim.New(sim.Config{}), &scriptedMeasurer{def: 1})
	rep, err := s.Search(context.Background(), p)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	want := conv.Tiling{8, 8, 4, 4, 1, 1, 1, 1, 1}
	if rep.Tiling != want {
		t.Fatalf("winner = %s, want %s", rep.Tiling, want)
	}
	val, ok, err := store.Lookup(s.Device.Name(), p.Key())
	if err != nil || !ok || val != "8.8.4.4.1.1.1.1.1" {
		t.Fatalf("stored %q (ok %v, err %v), want 8.8.4.4.1.1.1.1.1", val, ok, err)
	}
	for _, c := range measuredCandidates(t, p) {
		if c.OutPixTile0 > 4 || c.OutPixTile1 > 4 || !Valid(c, p.Signature) {
			t.Fatalf("measured %s, which exceeds the clipped 4x4 input tile", c)
		}
	}
}

func TestSearchRefusesGenericShapes(t *testing.T) {
	t.Parallel()
	fwd := forwardProblem(t, 1, 3, 32, 32, 4, 13, 13, 0, 1, false)
	bwd, err := conv.NewBackwardDataProblem(conv.Packed(1, 3, 32, 32), conv.Packed(4, 3, 13, 13), conv.DefaultConvDescriptor(), "")
	if err != nil {
		t.Fatalf("NewBackwardDataProblem: %v", err)
	}
	for _, p := range []conv.Problem{fwd, bwd} {
		dev := sim.New(sim.Config{})
		m := &scriptedMeasurer{def: 1}
		s, store := newTestSearcher(t, dev, m)
		if _, err := s.Search(context.Background(), p); !errors.Is(err, conv.ErrUnsupported) {
			t.Fatalf("%s %s: err = %v, want ErrUnsupported", p.Direction, p.Key(), err)
		}
		if m.calls != 0 || dev.Launches() != 0 {
			t.Fatalf("%s: measured %d candidates", p.Direction, m.calls)
		}
		db, err := store.ReadDatabase(dev.Name())
		if err != nil {
			t.Fatalf("ReadDatabase: %v", err)
		}
		if len(db) != 0 {
			t.Fatalf("%s: stored %v", p.Direction, db)
		}
	}
}
