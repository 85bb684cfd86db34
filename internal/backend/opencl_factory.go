package backend

import (
	"fmt"

	"github.com/samcharles93/convtune/internal/device"
)

const openclEnabled = false

func newOpenCL(Options) (device.Device, error) {
	return nil, fmt.Errorf("opencl backend is not available in this build")
}
