package direct

import (
	"context"
	"errors"
	"testing"

	"github.com/samcharles93/convtune/internal/conv"
	"github.com/samcharles93/convtune/internal/convdb"
	"github.com/samcharles93/convtune/internal/device/sim"
)

func TestConstructorDefaultRecordsRequest(t *testing.T) {
	t.Parallel()
	dev := sim.New(sim.Config{})
	store := convdb.NewFileStore(t.TempDir(), nil)
	c := &Constructor{Device: dev, Store: store, SaveRequests: true}
	p := forwardProblem(t, 100, 3, 32, 32, 32, 3, 3, 1, 1, false)

	sol, err := c.Construct(context.Background(), p)
	if err != nil {
		t.Fatalf("Construct: %v", err)
	}
	if sol.Source != SourceDefault {
		t.Fatalf("source = %s, want default", sol.Source)
	}
	if sol.Tiling.InTile0 != 32 {
		t.Fatalf("InTile0 = %d, want 32", sol.Tiling.InTile0)
	}
	if sol.KernelHash != p.Key()+" "+sol.Value {
		t.Fatalf("kernel hash = %q", sol.KernelHash)
	}
	if sol.Kernel == nil || sol.Kernel.Strategy != StrategyTiled {
		t.Fatalf("kernel = %+v", sol.Kernel)
	}

	if _, ok, _ := store.Lookup(dev.Name(), p.Key()); ok {
		t.Fatal("default selection must not be stored")
	}
	pending, err := store.ReadRequestLog(dev.Name())
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 || pending[0] != p.Key() {
		t.Fatalf("request log = %v", pending)
	}

	// A repeat does not duplicate the request.
	if _, err := c.Construct(context.Background(), p); err != nil {
		t.Fatal(err)
	}
	pending, _ = store.ReadRequestLog(dev.Name())
	if len(pending) != 1 {
		t.Fatalf("request log = %v", pending)
	}
}

func TestConstructorWithoutRequestLog(t *testing.T) {
	t.Parallel()
	dev := sim.New(sim.Config{})
	store := convdb.NewFileStore(t.TempDir(), nil)
	c := &Constructor{Device: dev, Store: store}
	p := forwardProblem(t, 4, 3, 32, 32, 32, 3, 3, 1, 1, false)
	if _, err := c.Construct(context.Background(), p); err != nil {
		t.Fatal(err)
	}
	pending, _ := store.ReadRequestLog(dev.Name())
	if len(pending) != 0 {
		t.Fatalf("request log = %v", pending)
	}
}

func TestConstructorUsesDatabase(t *testing.T) {
	t.Parallel()
	dev := sim.New(sim.Config{})
	store := convdb.NewFileStore(t.TempDir(), nil)
	p := forwardProblem(t, 4, 3, 32, 32, 32, 3, 3, 1, 1, false)
	want := conv.Tiling{8, 16, 8, 32, 2, 2, 8, 2, 1}
	if err := store.Upsert(dev.Name(), p.Key(), want.String()); err != nil {
		t.Fatal(err)
	}
	c := &Constructor{Device: dev, Store: store, Search: true, SaveRequests: true}
	sol, err := c.Construct(context.Background(), p)
	if err != nil {
		t.Fatal(err)
	}
	if sol.Source != SourceDatabase || sol.Tiling != want {
		t.Fatalf("solution = %s from %s, want %s from database", sol.Value, sol.Source, want)
	}
	if dev.Launches() != 0 {
		t.Fatal("database hit launched kernels")
	}
}

func TestConstructorSearchIsIdempotent(t *testing.T) {
	t.Parallel()
	dev := sim.New(sim.Config{})
	store := convdb.NewFileStore(t.TempDir(), nil)
	c := &Constructor{Device: dev, Store: store, Search: true, SaveRequests: true}
	p := forwardProblem(t, 2, 8, 16, 16, 16, 3, 3, 1, 1, false)

	first, err := c.Construct(context.Background(), p)
	if err != nil {
		t.Fatalf("first Construct: %v", err)
	}
	if first.Source != SourceSearch || first.Report == nil || first.Report.Measured == 0 {
		t.Fatalf("first solution = %+v", first)
	}
	pending, _ := store.ReadRequestLog(dev.Name())
	if len(pending) != 0 {
		t.Fatalf("search left request %v", pending)
	}

	launches := dev.Launches()
	second, err := c.Construct(context.Background(), p)
	if err != nil {
		t.Fatalf("second Construct: %v", err)
	}
	if second.Source != SourceDatabase || second.Tiling != first.Tiling {
		t.Fatalf("second solution = %s from %s, want %s from database", second.Value, second.Source, first.Value)
	}
	if dev.Launches() != launches {
		t.Fatal("second construct searched again")
	}
}

func TestConstructorMalformedValueFallsBack(t *testing.T) {
	t.Parallel()
	dev := sim.New(sim.Config{})
	store := convdb.NewFileStore(t.TempDir(), nil)
	p := forwardProblem(t, 100, 3, 32, 32, 32, 3, 3, 1, 1, false)
	if err := store.Upsert(dev.Name(), p.Key(), "8.16.x"); err != nil {
		t.Fatal(err)
	}
	c := &Constructor{Device: dev, Store: store}
	sol, err := c.Construct(context.Background(), p)
	if err != nil {
		t.Fatalf("Construct: %v", err)
	}
	if sol.Source != SourceDefault || sol.Tiling != SelectDefault(p.Signature) {
		t.Fatalf("solution = %s from %s", sol.Value, sol.Source)
	}
}

func TestConstructorGeneric(t *testing.T) {
	t.Parallel()
	dev := sim.New(sim.Config{})
	store := convdb.NewFileStore(t.TempDir(), nil)
	c := &Constructor{Device: dev, Store: store, Search: true, SaveRequests: true}

	p := forwardProblem(t, 2, 3, 13, 13, 4, 13, 13, 0, 1, false)
	sol, err := c.Construct(context.Background(), p)
	if err != nil {
		t.Fatalf("Construct: %v", err)
	}
	if sol.Source != SourceGeneric || sol.Kernel.Strategy != StrategyGeneric {
		t.Fatalf("solution = %+v", sol)
	}
	if sol.KernelHash != p.Key()+" 0.0.0.0.0.0.0.0.0" {
		t.Fatalf("kernel hash = %q", sol.KernelHash)
	}
	pending, _ := store.ReadRequestLog(dev.Name())
	if len(pending) != 0 {
		t.Fatalf("generic shape was logged: %v", pending)
	}

	x := conv.Packed(2, 3, 13, 13)
	bp, err := conv.NewBackwardDataProblem(x, conv.Packed(4, 3, 13, 13), conv.DefaultConvDescriptor(), "")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Construct(context.Background(), bp); !errors.Is(err, conv.ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
}
