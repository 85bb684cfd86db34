package conv

// Problem is a fully described direct convolution: its signature plus the
// geometry the kernel flags need. For Backward problems In is dy and Out is dx.
type Problem struct {
	Signature

	PadH    int
	PadW    int
	StrideH int
	StrideW int

	In      TensorDesc
	Weights TensorDesc
	Out     TensorDesc
	Bias    bool
}

// NewProblem validates the descriptors and derives the signature. For a
// forward problem out must be the forward output of (in, wei). For a backward
// problem in is dy, out is dx, and in must be the forward output of (out, wei).
func NewProblem(in, wei, out TensorDesc, desc ConvDescriptor, dir Direction, bias bool, dtype string) (Problem, error) {
	if dtype == "" {
		dtype = TypeFP32
	}
	if dtype != TypeFP32 && dtype != TypeFP16 {
		return Problem{}, badParameter("unsupported data type %q", dtype)
	}
	if err := out.validate("output"); err != nil {
		return Problem{}, err
	}

	src, dst := in, out
	if dir == Backward {
		src, dst = out, in
	}
	n, c, h, w, err := desc.ForwardOutputDim(src, wei)
	if err != nil {
		return Problem{}, err
	}
	if dst.Lengths != [4]int{n, c, h, w} {
		name := "output"
		if dir == Backward {
			name = "dy"
		}
		return Problem{}, badParameter("%s tensor %v does not match computed shape %v", name, dst.Lengths, [4]int{n, c, h, w})
	}

	p := Problem{
		Signature: Signature{
			Inputs:       in.C(),
			InHeight:     in.H(),
			InWidth:      in.W(),
			KernelHeight: wei.H(),
			KernelWidth:  wei.W(),
			Outputs:      out.C(),
			OutHeight:    out.H(),
			OutWidth:     out.W(),
			BatchSize:    in.N(),
			Layout:       LayoutNCHW,
			DataType:     dtype,
			Direction:    dir,
		},
		PadH:    desc.PadH,
		PadW:    desc.PadW,
		StrideH: desc.StrideU,
		StrideW: desc.StrideV,
		In:      in,
		Weights: wei,
		Out:     out,
		Bias:    bias,
	}
	return p, nil
}

// NewForwardProblem builds a packed forward problem from NCHW input and
// KCHW filter lengths, computing the output shape.
func NewForwardProblem(in, wei TensorDesc, desc ConvDescriptor, bias bool, dtype string) (Problem, error) {
	out, err := desc.ForwardOutputTensor(in, wei)
	if err != nil {
		return Problem{}, err
	}
	return NewProblem(in, wei, out, desc, Forward, bias, dtype)
}

// NewBackwardDataProblem builds a packed backward-data problem for the
// forward convolution of x with wei. The returned problem reads dy and writes dx.
func NewBackwardDataProblem(x, wei TensorDesc, desc ConvDescriptor, dtype string) (Problem, error) {
	dy, err := desc.ForwardOutputTensor(x, wei)
	if err != nil {
		return Problem{}, err
	}
	dx := Packed(x.N(), x.C(), x.H(), x.W())
	return NewProblem(dy, wei, dx, desc, Backward, false, dtype)
}

// Generic reports whether the problem needs the strided/large-kernel path.
func (p Problem) Generic() bool {
	return p.KernelWidth > 11 || p.KernelHeight > 11 || p.StrideW > 1 || p.StrideH > 1
}

// ElementSize is the byte width of one tensor element.
func (p Problem) ElementSize() int {
	if p.DataType == TypeFP16 {
		return 2
	}
	return 4
}

func (p Problem) InBatchStride() int   { return p.In.Strides[0] }
func (p Problem) InChannelStride() int { return p.In.Strides[1] }
func (p Problem) InStride() int        { return p.In.Strides[2] }

func (p Problem) OutBatchStride() int   { return p.Out.Strides[0] }
func (p Problem) OutChannelStride() int { return p.Out.Strides[1] }
func (p Problem) OutStride() int        { return p.Out.Strides[2] }

// InputElements is the element count of the input buffer, strides included.
func (p Problem) InputElements() int {
	return p.In.Strides[0] * p.In.N()
}

// OutputElements is the element count of the output buffer, strides included.
func (p Problem) OutputElements() int {
	return p.Out.Strides[0] * p.Out.N()
}

// WeightElements is the element count of the filter.
func (p Problem) WeightElements() int {
	return p.Weights.Elements()
}

// BiasElements is one bias value per output map, or zero without bias.
func (p Problem) BiasElements() int {
	if !p.Bias {
		return 0
	}
	return p.Outputs
}

// ProblemFromSignature rebuilds a packed, stride-1 problem from a persisted
// key so pending requests can be searched offline. Keys do not record
// padding; it is solved from the spatial sizes and must come out whole.
func ProblemFromSignature(sig Signature, bias bool) (Problem, error) {
	srcH, srcW, dstH, dstW := sig.InHeight, sig.InWidth, sig.OutHeight, sig.OutWidth
	if sig.Direction == Backward {
		srcH, srcW, dstH, dstW = dstH, dstW, srcH, srcW
	}
	padH, err := solvePad(srcH, dstH, sig.KernelHeight)
	if err != nil {
		return Problem{}, err
	}
	padW, err := solvePad(srcW, dstW, sig.KernelWidth)
	if err != nil {
		return Problem{}, err
	}
	desc := DefaultConvDescriptor()
	desc.PadH, desc.PadW = padH, padW

	in := Packed(sig.BatchSize, sig.Inputs, sig.InHeight, sig.InWidth)
	out := Packed(sig.BatchSize, sig.Outputs, sig.OutHeight, sig.OutWidth)
	wei := Packed(sig.Outputs, sig.Inputs, sig.KernelHeight, sig.KernelWidth)
	if sig.Direction == Backward {
		// dy has the forward output channels, dx the forward inputs.
		wei = Packed(sig.Inputs, sig.Outputs, sig.KernelHeight, sig.KernelWidth)
	}
	p, err := NewProblem(in, wei, out, desc, sig.Direction, bias && sig.Direction == Forward, sig.DataType)
	if err != nil {
		return Problem{}, err
	}
	if p.Layout != sig.Layout {
		return Problem{}, badParameter("unsupported layout %q", sig.Layout)
	}
	return p, nil
}

func solvePad(src, dst, kernel int) (int, error) {
	twice := dst - src + kernel - 1
	if twice < 0 || twice%2 != 0 {
		return 0, badParameter("no stride-1 padding maps %d to %d with kernel %d", src, dst, kernel)
	}
	return twice / 2, nil
}
