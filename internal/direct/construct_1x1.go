package direct

import (
	"github.com/samcharles93/convtune/internal/conv"
)

// construct1x1 lays out the pixel-parallel 1x1 kernel. Each lane reads four
// pixels. When a map is at most half a work-group, several input maps share
// the group and partial sums are reduced in steps of the exchange size, which
// the tiling carries in InDataTiles.
func construct1x1(p conv.Problem, t conv.Tiling) (*KernelSpec, error) {
	t.InTile0, t.InTile1 = 4, 1
	t.OutPixTile0, t.OutPixTile1 = 4, 1

	weiCStride := p.KernelWidth * p.KernelHeight
	weiBStride := p.Inputs * weiCStride

	mapPixels := p.InWidth * p.InHeight
	mapSz4 := ceilDiv(mapPixels, 4)
	divBy4 := mapSz4*4 == mapPixels
	pixLeft := 0
	if !divBy4 {
		pixLeft = mapPixels - (mapSz4-1)*4
	}

	grpSz := t.GroupTile0
	mapsPerGroup := 1
	exchange := 6
	smallMap := mapSz4 <= grpSz/2
	if smallMap {
		mapsPerGroup = grpSz / mapSz4
		exchange = t.InDataTiles
		t.InDataTiles = 1
	}

	t.InDataTiles = min(p.Inputs, t.InDataTiles)
	inputsScaled := ceilDiv(p.Inputs, t.InDataTiles)
	t.OutPixTiles = min(p.Outputs, t.OutPixTiles)
	if smallMap {
		exchange = min(exchange, t.OutPixTiles, mapsPerGroup)
		t.OutPixTiles = (t.OutPixTiles / exchange) * exchange
	}
	mapsPerGroup = min(mapsPerGroup, inputsScaled)
	inLoop := ceilDiv(inputsScaled, mapsPerGroup)

	t.Stacks = min(p.BatchSize, t.Stacks)
	outTilesPerGroup := t.OutPixTiles * t.Stacks
	batchAligned := p.BatchSize%t.Stacks == 0
	outputsAligned := p.Outputs%t.OutPixTiles == 0

	_, pad1 := pads(p)

	o := NewOptions()
	o.Set("MLO_DIR_FORWARD", int(p.Direction)).
		Set("MLO_FILTER_PAD1", pad1).
		Set("MLO_N_OUTPUTS", p.Outputs).
		Set("MLO_N_INPUTS", p.Inputs).
		Set("MLO_BATCH_SZ", p.BatchSize).
		Set("MLO_OUT_BATCH_STRIDE", p.OutBatchStride()).
		Set("MLO_OUT_CHANNEL_STRIDE", p.OutChannelStride()).
		Set("MLO_OUT_STRIDE", p.OutStride()).
		Set("MLO_IN_BATCH_STRIDE", p.InBatchStride()).
		Set("MLO_IN_CHANNEL_STRIDE", p.InChannelStride()).
		Set("MLO_IN_STRIDE", p.InStride()).
		Set("MLO_WEI_BSTRIDE", weiBStride).
		Set("MLO_WEI_CHANNEL_STRIDE", weiCStride).
		Set("MLO_GRP_SZ0", grpSz).
		Set("MLO_MAP_SZ4", mapSz4).
		Set("MLO_C1x1_PIXLEFT", pixLeft).
		SetBool("MLO_DIVBY4", divBy4).
		Set("MLO_IN_LOOP", inLoop).
		Set("MLO_N_LCL_BATCHS", t.Stacks).
		Set("MLO_N_LCL_OUT_MAPS", t.OutPixTiles).
		Set("MLO_N_OUT_TILES_PERGROUP", outTilesPerGroup).
		Set("MLO_N_LCL_IN_MAPS", t.InDataTiles).
		Set("MLO_N_MAPS_PERGROUP", mapsPerGroup).
		SetBool("MLO_CONV_BIAS", p.Bias).
		SetBool("MLO_BATCH_ALIGNED", batchAligned).
		SetBool("MLO_OUTPUTS_ALIGNED", outputsAligned).
		Set("MLO_EXCHANGE_STEP", exchange)
	setDataType(o, p)

	gbl0 := grpSz
	if grpSz < mapSz4 {
		gbl0 = ceilDiv(mapSz4, grpSz) * grpSz
	}
	if smallMap {
		t.InDataTiles = exchange
	}

	return &KernelSpec{
		Strategy: Strategy1x1,
		File:     "MLOpenConv1x1PS.cl",
		Name:     "MLOpenConv1x1PS",
		Options:  o,
		Local:    [3]int{t.GroupTile0, t.GroupTile1, 1},
		Global: [3]int{
			gbl0,
			ceilDiv(p.Outputs, t.OutPixTiles),
			ceilDiv(p.BatchSize, t.Stacks),
		},
		Tiling: t,
		Bias:   p.Bias,
	}, nil
}
