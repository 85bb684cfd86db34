// Package sim is a deterministic in-process device. Kernel launches advance a
// virtual clock by a cost derived from the launch geometry and compiler
// defines, so tuning runs are reproducible without GPU hardware.
package sim

import (
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/samcharles93/convtune/internal/device"
)

// Config describes the simulated hardware.
type Config struct {
	Name             string
	LocalMemSize     int
	ComputeUnits     int
	MaxWorkGroupSize int
	NoProfiling      bool

	// FailBuild and FailEnqueue inject errors. A nil func never fails.
	FailBuild   func(spec device.BuildSpec) error
	FailEnqueue func(spec device.BuildSpec) error
}

// DefaultConfig resembles a 64-CU GCN part.
func DefaultConfig() Config {
	return Config{
		Name:             "gfx900",
		LocalMemSize:     64 * 1024,
		ComputeUnits:     64,
		MaxWorkGroupSize: 256,
	}
}

// Device implements device.Device.
type Device struct {
	cfg Config

	mu       sync.Mutex
	now      time.Duration
	live     int
	builds   int
	launches int
	queue    *queue
}

var _ device.Device = (*Device)(nil)

// New returns a simulated device. Zero fields in cfg take DefaultConfig values.
func New(cfg Config) *Device {
	def := DefaultConfig()
	if cfg.Name == "" {
		cfg.Name = def.Name
	}
	if cfg.LocalMemSize <= 0 {
		cfg.LocalMemSize = def.LocalMemSize
	}
	if cfg.ComputeUnits <= 0 {
		cfg.ComputeUnits = def.ComputeUnits
	}
	if cfg.MaxWorkGroupSize <= 0 {
		cfg.MaxWorkGroupSize = def.MaxWorkGroupSize
	}
	d := &Device{cfg: cfg}
	d.queue = &queue{dev: d}
	return d
}

func (d *Device) Name() string      { return d.cfg.Name }
func (d *Device) LocalMemSize() int { return d.cfg.LocalMemSize }

// Now is the virtual clock. It only moves when kernels run.
func (d *Device) Now() time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return time.Unix(0, 0).Add(d.now)
}

// LiveBuffers counts allocated, unreleased buffers.
func (d *Device) LiveBuffers() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.live
}

// Builds counts successful kernel builds.
func (d *Device) Builds() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.builds
}

// Launches counts successful kernel launches.
func (d *Device) Launches() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.launches
}

func (d *Device) Alloc(size int) (device.Buffer, error) {
	if size < 0 {
		return nil, fmt.Errorf("sim: negative buffer size %d", size)
	}
	d.mu.Lock()
	d.live++
	d.mu.Unlock()
	return &buffer{dev: d, data: make([]byte, size)}, nil
}

func (d *Device) Queue() device.Queue {
	return d.queue
}

func (d *Device) NewProfilingQueue() (device.Queue, error) {
	if d.cfg.NoProfiling {
		return nil, device.ErrNoProfiling
	}
	return &queue{dev: d, profiling: true}, nil
}

func (d *Device) BuildKernel(spec device.BuildSpec) (device.Kernel, error) {
	if spec.File == "" || spec.Name == "" {
		return nil, fmt.Errorf("%w: missing source or entry point", device.ErrBuild)
	}
	lanes := 1
	for i, l := range spec.Local {
		if l <= 0 {
			return nil, fmt.Errorf("%w: local size %v", device.ErrBuild, spec.Local)
		}
		if spec.Global[i] <= 0 {
			return nil, fmt.Errorf("%w: global size %v", device.ErrBuild, spec.Global)
		}
		lanes *= l
	}
	if lanes > d.cfg.MaxWorkGroupSize {
		return nil, fmt.Errorf("%w: work-group of %d lanes exceeds %d", device.ErrBuild, lanes, d.cfg.MaxWorkGroupSize)
	}
	if d.cfg.FailBuild != nil {
		if err := d.cfg.FailBuild(spec); err != nil {
			return nil, fmt.Errorf("%w: %v", device.ErrBuild, err)
		}
	}
	d.mu.Lock()
	d.builds++
	d.mu.Unlock()
	return &kernel{dev: d, spec: spec, cost: d.cost(spec)}, nil
}

// cost is the simulated execution time of one launch.
func (d *Device) cost(spec device.BuildSpec) time.Duration {
	lanes := spec.Local[0] * spec.Local[1] * spec.Local[2]
	groups := 1
	for i := range spec.Global {
		groups *= ceilDiv(spec.Global[i], spec.Local[i])
	}
	waves := ceilDiv(lanes, 64)
	// Partially filled waves waste lanes.
	efficiency := float64(lanes) / float64(waves*64)
	rounds := ceilDiv(groups*waves, d.cfg.ComputeUnits*4)

	h := fnv.New32a()
	h.Write([]byte(spec.Name))
	h.Write([]byte(spec.Flags()))
	jitter := 1 + float64(h.Sum32()%1000)/10000

	ns := (2000 + float64(rounds)*1500/efficiency) * jitter
	return time.Duration(ns)
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}

type buffer struct {
	dev      *Device
	data     []byte
	released bool
}

func (b *buffer) Size() int { return len(b.data) }

func (b *buffer) Write(data []byte) error {
	if b.released {
		return fmt.Errorf("sim: write to released buffer")
	}
	if len(data) > len(b.data) {
		return fmt.Errorf("sim: write of %d bytes into %d byte buffer", len(data), len(b.data))
	}
	copy(b.data, data)
	return nil
}

func (b *buffer) Release() error {
	if b.released {
		return fmt.Errorf("sim: double release")
	}
	b.released = true
	b.dev.mu.Lock()
	b.dev.live--
	b.dev.mu.Unlock()
	return nil
}

type queue struct {
	dev       *Device
	profiling bool
}

func (q *queue) Profiling() bool { return q.profiling }
func (q *queue) Finish() error   { return nil }
func (q *queue) Release() error  { return nil }

type kernel struct {
	dev  *Device
	spec device.BuildSpec
	cost time.Duration
}

func (k *kernel) Enqueue(q device.Queue, args ...any) (device.Event, error) {
	sq, ok := q.(*queue)
	if !ok || sq.dev != k.dev {
		return nil, fmt.Errorf("%w: queue belongs to another device", device.ErrDispatch)
	}
	for i, a := range args {
		switch v := a.(type) {
		case *buffer:
			if v.released {
				return nil, fmt.Errorf("%w: argument %d is a released buffer", device.ErrDispatch, i)
			}
		case float32, int32, uint32:
		default:
			return nil, fmt.Errorf("%w: argument %d has unsupported type %T", device.ErrDispatch, i, a)
		}
	}
	if k.dev.cfg.FailEnqueue != nil {
		if err := k.dev.cfg.FailEnqueue(k.spec); err != nil {
			return nil, fmt.Errorf("%w: %v", device.ErrDispatch, err)
		}
	}

	k.dev.mu.Lock()
	start := k.dev.now
	k.dev.now += k.cost
	end := k.dev.now
	k.dev.launches++
	k.dev.mu.Unlock()

	return event{start: uint64(start), end: uint64(end), profiled: sq.profiling}, nil
}

func (k *kernel) Release() error { return nil }

type event struct {
	start, end uint64
	profiled   bool
}

func (e event) Profile() (uint64, uint64, bool) {
	if !e.profiled {
		return 0, 0, false
	}
	return e.start, e.end, true
}
