package direct

import (
	"fmt"

	"github.com/samcharles93/convtune/internal/conv"
	"github.com/samcharles93/convtune/internal/device"
)

const waveSize = 64

// Strategy is the kernel family a problem is built with.
type Strategy int

const (
	Strategy1x1 Strategy = iota
	StrategyUnaligned
	StrategyTiled
	StrategyGeneric
)

func (s Strategy) String() string {
	switch s {
	case Strategy1x1:
		return "1x1"
	case StrategyUnaligned:
		return "unaligned"
	case StrategyTiled:
		return "tiled"
	case StrategyGeneric:
		return "generic"
	default:
		return fmt.Sprintf("strategy(%d)", int(s))
	}
}

// Classify picks the strategy for p. Large kernels and strides take the
// generic path before any of the tiled families are considered.
func Classify(p conv.Problem) Strategy {
	switch {
	case p.Generic():
		return StrategyGeneric
	case p.Is1x1():
		return Strategy1x1
	case p.Unaligned():
		return StrategyUnaligned
	default:
		return StrategyTiled
	}
}

// KernelSpec is a fully sized kernel ready to compile.
type KernelSpec struct {
	Strategy Strategy
	File     string
	Name     string
	Options  *Options
	Local    [3]int
	Global   [3]int
	// Tiling is the configuration after the strategy applied its clamps.
	Tiling conv.Tiling
	Bias   bool
}

// BuildSpec converts the spec to the device build request.
func (k *KernelSpec) BuildSpec() device.BuildSpec {
	return device.BuildSpec{
		File:    k.File,
		Name:    k.Name,
		Defines: k.Options.Defines(),
		Local:   k.Local,
		Global:  k.Global,
	}
}

// Construct derives compiler defines and dispatch geometry for p under t.
// It does not modify p or t.
func Construct(p conv.Problem, t conv.Tiling) (*KernelSpec, error) {
	s := Classify(p)
	if s == StrategyGeneric {
		if p.Direction == conv.Backward {
			return nil, fmt.Errorf("%w: backward direct convolution with %dx%d kernel and stride %dx%d",
				conv.ErrUnsupported, p.KernelHeight, p.KernelWidth, p.StrideH, p.StrideW)
		}
		return constructGeneric(p), nil
	}
	if !t.Positive() {
		return nil, fmt.Errorf("%w: %s has a non-positive field", ErrInvalidTiling, t)
	}
	switch s {
	case Strategy1x1:
		return construct1x1(p, t)
	case StrategyUnaligned:
		return constructUnaligned(p, t)
	default:
		return constructTiled(p, t)
	}
}

// pads returns the width and height padding the tiled kernels see. Backward
// runs the kernel over dy, which needs the complementary padding.
func pads(p conv.Problem) (pad0, pad1 int) {
	pad0, pad1 = p.PadW, p.PadH
	if p.Direction == conv.Backward {
		pad0 = p.KernelWidth - 1 - pad0
		pad1 = p.KernelHeight - 1 - pad1
	}
	return pad0, pad1
}

// readProcs is the number of lanes that stage the input tile into local memory.
func readProcs(grp, tile int) int {
	if grp <= tile {
		return grp
	}
	ratio := float32(tile) / float32(grp)
	switch {
	case ratio <= 0.25:
		return grp / 4
	case ratio <= 0.5:
		return grp / 2
	default:
		return grp
	}
}

// setShape adds the defines shared by the tiled families.
func setShape(o *Options, p conv.Problem, pad0, pad1 int) {
	o.Set("MLO_HW_WAVE_SZ", waveSize).
		Set("MLO_DIR_FORWARD", int(p.Direction)).
		Set("MLO_FILTER_SIZE0", p.KernelWidth).
		Set("MLO_FILTER_SIZE1", p.KernelHeight).
		Set("MLO_FILTER_PAD0", pad0).
		Set("MLO_FILTER_PAD1", pad1).
		Set("MLO_N_OUTPUTS", p.Outputs).
		Set("MLO_N_INPUTS", p.Inputs).
		Set("MLO_BATCH_SZ", p.BatchSize).
		Set("MLO_OUT_WIDTH", p.OutWidth).
		Set("MLO_OUT_HEIGHT", p.OutHeight).
		Set("MLO_OUT_BATCH_STRIDE", p.OutBatchStride()).
		Set("MLO_OUT_CHANNEL_STRIDE", p.OutChannelStride()).
		Set("MLO_OUT_STRIDE", p.OutStride()).
		Set("MLO_IN_WIDTH", p.InWidth).
		Set("MLO_IN_HEIGHT", p.InHeight).
		Set("MLO_IN_BATCH_STRIDE", p.InBatchStride()).
		Set("MLO_IN_CHANNEL_STRIDE", p.InChannelStride()).
		Set("MLO_IN_STRIDE", p.InStride())
}

// setDataType adds the element type defines every kernel family reads.
func setDataType(o *Options, p conv.Problem) {
	if p.DataType == conv.TypeFP16 {
		o.Set("MLOPEN_USE_FP16", 1)
		return
	}
	o.Set("MLOPEN_USE_FP32", 1)
}
