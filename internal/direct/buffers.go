package direct

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"math/rand"

	"github.com/x448/float16"

	"github.com/samcharles93/convtune/internal/conv"
	"github.com/samcharles93/convtune/internal/device"
)

// Buffers are the device tensors a search measures every candidate against.
type Buffers struct {
	Input   device.Buffer
	Weights device.Buffer
	Bias    device.Buffer
	Output  device.Buffer
}

// AllocBuffers allocates and fills the measurement buffers for p. Input and
// bias are uniform in [0,1), weights are small and centered on zero, and the
// output starts zeroed. The contents only need to be plausible: timings do
// not depend on them.
func AllocBuffers(dev device.Device, p conv.Problem, seed int64) (_ *Buffers, err error) {
	rng := rand.New(rand.NewSource(seed))
	b := &Buffers{}
	defer func() {
		if err != nil {
			b.Release()
		}
	}()

	in := make([]float32, p.InputElements())
	for i := range in {
		in[i] = float32(rng.Float64())
	}
	if b.Input, err = upload(dev, in, p.DataType); err != nil {
		return nil, fmt.Errorf("input buffer: %w", err)
	}

	out := make([]float32, p.OutputElements())
	if b.Output, err = upload(dev, out, p.DataType); err != nil {
		return nil, fmt.Errorf("output buffer: %w", err)
	}

	wei := make([]float32, p.WeightElements())
	for i := range wei {
		wei[i] = float32((rng.Float64() - 0.5) * 0.001)
	}
	if b.Weights, err = upload(dev, wei, p.DataType); err != nil {
		return nil, fmt.Errorf("weights buffer: %w", err)
	}

	if p.Bias {
		bias := make([]float32, p.BiasElements())
		for i := range bias {
			bias[i] = float32(rng.Float64())
		}
		if b.Bias, err = upload(dev, bias, p.DataType); err != nil {
			return nil, fmt.Errorf("bias buffer: %w", err)
		}
	}
	return b, nil
}

// Args returns the kernel arguments in binding order: input, weights, bias
// when enabled, output, then the padding value.
func (b *Buffers) Args(bias bool) []any {
	args := []any{b.Input, b.Weights}
	if bias {
		args = append(args, b.Bias)
	}
	return append(args, b.Output, float32(0))
}

// Release frees every allocated buffer. It is safe on a partial set.
func (b *Buffers) Release() error {
	var errs []error
	for _, buf := range []*device.Buffer{&b.Input, &b.Weights, &b.Bias, &b.Output} {
		if *buf == nil {
			continue
		}
		if err := (*buf).Release(); err != nil {
			errs = append(errs, err)
		}
		*buf = nil
	}
	return errors.Join(errs...)
}

func upload(dev device.Device, vals []float32, dtype string) (device.Buffer, error) {
	data := encode(vals, dtype)
	buf, err := dev.Alloc(len(data))
	if err != nil {
		return nil, err
	}
	if err := buf.Write(data); err != nil {
		buf.Release()
		return nil, err
	}
	return buf, nil
}

// encode packs vals little-endian at the element width of dtype.
func encode(vals []float32, dtype string) []byte {
	if dtype == conv.TypeFP16 {
		out := make([]byte, 2*len(vals))
		for i, v := range vals {
			binary.LittleEndian.PutUint16(out[2*i:], float16.Fromfloat32(v).Bits())
		}
		return out
	}
	out := make([]byte, 4*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint32(out[4*i:], math.Float32bits(v))
	}
	return out
}
