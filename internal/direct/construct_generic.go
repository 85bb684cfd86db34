package direct

import (
	"github.com/samcharles93/convtune/internal/conv"
)

// Generic kernel work-group extent along each axis.
const genericGroup = 8

// constructGeneric sizes the forward kernel for large filters and strides.
// It does not use a tiling: geometry comes from the shape alone.
func constructGeneric(p conv.Problem) *KernelSpec {
	nOuts := 8
	if p.KernelHeight <= 7 {
		nOuts = 14
	}
	pixH := 2
	pixV := 1
	if p.StrideH < 4 && p.KernelHeight < 7 {
		pixV = 2
	}
	grp0, grp1, grp2 := genericGroup, genericGroup, 1

	nOuts = min(nOuts, p.Outputs)
	nIns0, nIns1 := 1, 1
	nIns := nIns0 * nIns1

	vProc0 := ceilDiv(p.OutWidth, pixH)
	vProc1 := ceilDiv(p.OutHeight, pixV)

	batchAligned := p.BatchSize%nIns == 0
	outAligned := p.Outputs%nOuts == 0
	big := grp0*pixH < p.InWidth || grp1*pixV < p.InHeight

	procs0 := grp0 / nIns0
	procs1 := grp1 / nIns1
	inSz0 := (procs0*pixH-1)*p.StrideW + 1
	inSz1 := (procs1*pixV-1)*p.StrideH + 1

	outBlocks := ceilDiv(p.Outputs, nOuts)
	stackBlocks := ceilDiv(p.BatchSize, nIns)

	gbl0 := nIns0 * ceilDiv(vProc0, procs0) * procs0
	gbl1 := nIns1 * ceilDiv(vProc1, procs1) * procs1
	gbl2 := outBlocks * stackBlocks
	aligned := gbl0 == nIns0*vProc0 && gbl1 == nIns1*vProc1

	o := NewOptions()
	o.Set("MLO_GRP_SZ", grp0*grp1*grp2).
		Set("MLO_GRP_SZ0", grp0).
		Set("MLO_GRP_SZ1", grp1).
		Set("MLO_GRP_SZ2", grp2).
		Set("MLO_LCL_N_IN_CHNLS", nIns).
		Set("MLO_LCL_N_OUT_CHNLS", nOuts).
		Set("MLO_BATCH_SZ", p.BatchSize).
		Set("MLO_FLTR_SZ0", p.KernelWidth).
		Set("MLO_FLTR_PAD_SZ0", p.PadW).
		Set("MLO_FLTR_STRIDE0", p.StrideW).
		Set("MLO_FLTR_SZ1", p.KernelHeight).
		Set("MLO_FLTR_PAD_SZ1", p.PadH).
		Set("MLO_FLTR_STRIDE1", p.StrideH).
		Set("MLO_N_OUT_CHNLS", p.Outputs).
		Set("MLO_OUT_WIDTH", p.OutWidth).
		Set("MLO_OUT_HEIGHT", p.OutHeight).
		Set("MLO_OUT_STRIDE", p.OutStride()).
		Set("MLO_OUT_CHNL_STRIDE", p.OutChannelStride()).
		Set("MLO_OUT_BATCH_STRIDE", p.OutBatchStride()).
		Set("MLO_N_OUT_PIX_SZ0", pixH).
		Set("MLO_N_OUT_PIX_SZ1", pixV).
		Set("MLO_N_IN_CHNLS", p.Inputs).
		Set("MLO_IN_WIDTH", p.InWidth).
		Set("MLO_IN_HEIGHT", p.InHeight).
		Set("MLO_IN_STRIDE", p.InStride()).
		Set("MLO_IN_CHNL_STRIDE", p.InChannelStride()).
		Set("MLO_IN_BATCH_STRIDE", p.InBatchStride()).
		Set("MLO_N_IN_PIX_SZ0", pixH).
		Set("MLO_N_IN_PIX_SZ1", pixV).
		Set("MLO_WEI_SZ", p.Outputs*p.Inputs*p.KernelWidth*p.KernelHeight).
		Set("MLO_WEIGHTS_STRIDE", p.Inputs*p.KernelWidth*p.KernelHeight).
		Set("MLO_N_STACKS", stackBlocks).
		Set("MLO_N_PROCS0", procs0).
		Set("MLO_N_PROCS1", procs1).
		SetBool("MLO_ALIGNED", aligned).
		SetBool("MLO_BATCH_ALIGNED", batchAligned).
		SetBool("MLO_OUT_ALINED", outAligned).
		Set("MLO_IN_SZ0", inSz0).
		Set("MLO_IN_SZ1", inSz1).
		SetBool("MLO_BIG", big).
		SetBool("MLO_CONV_BIAS", p.Bias)
	setDataType(o, p)

	return &KernelSpec{
		Strategy: StrategyGeneric,
		File:     "MlOpenConvDirGenFwd.cl",
		Name:     "MLOpenCDFGen",
		Options:  o,
		Local:    [3]int{grp0, grp1, grp2},
		Global:   [3]int{gbl0, gbl1, gbl2},
		Bias:     p.Bias,
	}
}
