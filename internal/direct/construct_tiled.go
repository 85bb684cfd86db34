package direct

import (
	"fmt"

	"github.com/samcharles93/convtune/internal/conv"
)

const maxALUTile = 256

func constructTiled(p conv.Problem, t conv.Tiling) (*KernelSpec, error) {
	pad0, pad1 := pads(p)

	t.InDataTiles = min(p.Inputs, t.InDataTiles)
	t.OutPixTiles = min(p.Outputs, t.OutPixTiles)

	alu0 := ceilDiv(t.InTile0, t.OutPixTile0)
	alu1 := ceilDiv(t.InTile1, t.OutPixTile1)
	aluSz := alu0 * alu1
	if aluSz > maxALUTile {
		return nil, fmt.Errorf("%w: ALU tile %dx%d exceeds %d lanes", ErrInvalidTiling, alu0, alu1, maxALUTile)
	}

	nAlus := t.GroupTile0 * t.GroupTile1
	t.Stacks = min(t.Stacks, ceilDiv(nAlus, aluSz))
	t.Stacks = min(p.BatchSize, t.Stacks)
	alusPerStack := ceilDiv(nAlus, t.Stacks)

	nReadProcs := readProcs(nAlus, t.InTile0*t.InTile1)

	blocks0 := ceilDiv(p.OutWidth, t.InTile0)
	blocks1 := ceilDiv(p.OutHeight, t.InTile1)

	aluTilesPerStack := ceilDiv(alusPerStack, aluSz)
	outTilesPerStack := min(aluTilesPerStack*t.OutPixTiles, p.Outputs)

	o := NewOptions()
	setShape(o, p, pad0, pad1)
	o.Set("MLO_IN_TILE0", t.InTile0).
		Set("MLO_IN_TILE1", t.InTile1).
		Set("MLO_GRP_TILE0", t.GroupTile0).
		Set("MLO_GRP_TILE1", t.GroupTile1).
		Set("MLO_OUT_TILE0", t.OutPixTile0).
		Set("MLO_OUT_TILE1", t.OutPixTile1).
		Set("MLO_N_STACKS", t.Stacks).
		Set("MLO_N_OUT_TILES", t.OutPixTiles).
		Set("MLO_N_OUT_TILES_PERSTACK", outTilesPerStack).
		Set("MLO_N_IN_TILES_PERSTACK", t.InDataTiles).
		Set("MLO_N_READ_PROCS", nReadProcs).
		SetBool("MLO_CONV_BIAS", p.Bias).
		Set("MLO_ALU_VTILE0", alu0).
		Set("MLO_ALU_VTILE1", alu1)
	setDataType(o, p)

	local := nAlus
	return &KernelSpec{
		Strategy: StrategyTiled,
		File:     "MLOpenConvDirUni.cl",
		Name:     "MLOpenConvUni",
		Options:  o,
		Local:    [3]int{local, 1, 1},
		Global: [3]int{
			blocks0 * blocks1 * local,
			ceilDiv(p.Outputs, outTilesPerStack),
			ceilDiv(p.BatchSize, t.Stacks),
		},
		Tiling: t,
		Bias:   p.Bias,
	}, nil
}
