package backend

import (
	"fmt"
	"strings"

	"github.com/samcharles93/convtune/internal/device"
	"github.com/samcharles93/convtune/internal/device/sim"
)

const (
	Sim    = "sim"
	OpenCL = "opencl"
	Auto   = "auto"
)

// Options configure the device a backend opens. Zero values take the
// backend's defaults.
type Options struct {
	// Device names the device; it is also the config database file stem.
	Device       string
	LocalMemSize int
}

func Normalize(name string) (string, error) {
	backend := strings.ToLower(strings.TrimSpace(name))
	if backend == "" {
		return Auto, nil
	}
	switch backend {
	case Sim, OpenCL, Auto:
		return backend, nil
	default:
		return "", fmt.Errorf("unknown backend %q (expected auto, sim, or opencl)", backend)
	}
}

// Open returns a device for the named backend. Auto prefers OpenCL and falls
// back to the simulator.
func Open(name string, opts Options) (device.Device, error) {
	backend, err := Normalize(name)
	if err != nil {
		return nil, err
	}
	switch backend {
	case OpenCL:
		return newOpenCL(opts)
	case Auto:
		if Has(OpenCL) {
			return newOpenCL(opts)
		}
	}
	return sim.New(sim.Config{Name: opts.Device, LocalMemSize: opts.LocalMemSize}), nil
}
