package direct

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/samcharles93/convtune/internal/device"
	"github.com/samcharles93/convtune/internal/logger"
)

// Measurer times one kernel launch configuration in milliseconds.
type Measurer interface {
	Measure(ctx context.Context, spec *KernelSpec, bufs *Buffers, profiling device.Queue) (float64, error)
}

// DeviceMeasurer builds the kernel on Device and times it.
type DeviceMeasurer struct {
	Device device.Device
	// Iterations is the number of timed launches without a profiling queue.
	// Values below one mean one.
	Iterations int
	// Now is the clock for unprofiled timing. Nil means the device's own
	// clock when it implements device.Clock, otherwise time.Now.
	Now func() time.Time
}

var _ Measurer = (*DeviceMeasurer)(nil)

func (m *DeviceMeasurer) clock() func() time.Time {
	if m.Now != nil {
		return m.Now
	}
	if c, ok := m.Device.(device.Clock); ok {
		return c.Now
	}
	return time.Now
}

// Measure returns the kernel time. With a profiling queue it launches once
// and reads the event timestamps, returning +Inf when the event carries
// none. Otherwise it launches once to warm up, then averages Iterations
// launches of wall time between two queue drains.
func (m *DeviceMeasurer) Measure(ctx context.Context, spec *KernelSpec, bufs *Buffers, profiling device.Queue) (float64, error) {
	k, err := m.Device.BuildKernel(spec.BuildSpec())
	if err != nil {
		return 0, fmt.Errorf("%w: build %s: %v", ErrCandidateFailed, spec.Name, err)
	}
	defer k.Release()

	args := bufs.Args(spec.Bias)

	if profiling != nil {
		ev, err := k.Enqueue(profiling, args...)
		if err != nil {
			return 0, fmt.Errorf("%w: launch %s: %v", ErrCandidateFailed, spec.Name, err)
		}
		if err := profiling.Finish(); err != nil {
			return 0, fmt.Errorf("%w: finish: %v", ErrCandidateFailed, err)
		}
		start, end, ok := ev.Profile()
		if !ok {
			return math.Inf(1), nil
		}
		ms := float64(end-start) * 1e-6
		logger.FromContext(ctx).Debug("profiled launch", "kernel", spec.Name, "ms", ms)
		return ms, nil
	}

	now := m.clock()
	iter := max(m.Iterations, 1)
	q := m.Device.Queue()

	if _, err := k.Enqueue(q, args...); err != nil {
		return 0, fmt.Errorf("%w: warm-up %s: %v", ErrCandidateFailed, spec.Name, err)
	}
	if err := q.Finish(); err != nil {
		return 0, fmt.Errorf("%w: finish: %v", ErrCandidateFailed, err)
	}
	start := now()
	for range iter {
		if _, err := k.Enqueue(q, args...); err != nil {
			return 0, fmt.Errorf("%w: launch %s: %v", ErrCandidateFailed, spec.Name, err)
		}
	}
	if err := q.Finish(); err != nil {
		return 0, fmt.Errorf("%w: finish: %v", ErrCandidateFailed, err)
	}
	elapsed := now().Sub(start)
	return float64(elapsed) / float64(time.Millisecond) / float64(iter), nil
}
