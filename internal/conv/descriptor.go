package conv

import "fmt"

// Mode is the convolution mode of a ConvDescriptor.
type Mode int

const (
	ModeConvolution Mode = iota
	ModeCrossCorrelation
)

func (m Mode) String() string {
	switch m {
	case ModeConvolution:
		return "conv"
	case ModeCrossCorrelation:
		return "xcorr"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// TensorDesc is a 4-D NCHW tensor: lengths and element strides.
type TensorDesc struct {
	Lengths [4]int
	Strides [4]int
}

// Packed returns an NCHW descriptor with dense strides.
func Packed(n, c, h, w int) TensorDesc {
	return TensorDesc{
		Lengths: [4]int{n, c, h, w},
		Strides: [4]int{c * h * w, h * w, w, 1},
	}
}

func (t TensorDesc) N() int { return t.Lengths[0] }
func (t TensorDesc) C() int { return t.Lengths[1] }
func (t TensorDesc) H() int { return t.Lengths[2] }
func (t TensorDesc) W() int { return t.Lengths[3] }

// Elements is the number of elements covered by the lengths.
func (t TensorDesc) Elements() int {
	return t.Lengths[0] * t.Lengths[1] * t.Lengths[2] * t.Lengths[3]
}

func (t TensorDesc) validate(name string) error {
	for i, l := range t.Lengths {
		if l <= 0 {
			return badParameter("%s: length %d must be > 0, got %d", name, i, l)
		}
	}
	for i, s := range t.Strides {
		if s <= 0 {
			return badParameter("%s: stride %d must be > 0, got %d", name, i, s)
		}
	}
	return nil
}

// ConvDescriptor mirrors the upstream convolution descriptor.
type ConvDescriptor struct {
	Mode     Mode
	PadH     int
	PadW     int
	StrideU  int // vertical
	StrideV  int // horizontal
	UpscaleX int
	UpscaleY int
}

// DefaultConvDescriptor is a stride-1, unpadded convolution.
func DefaultConvDescriptor() ConvDescriptor {
	return ConvDescriptor{
		Mode:     ModeConvolution,
		StrideU:  1,
		StrideV:  1,
		UpscaleX: 1,
		UpscaleY: 1,
	}
}

func (d ConvDescriptor) validate() error {
	if d.PadH < 0 || d.PadW < 0 {
		return badParameter("padding must be >= 0, got %dx%d", d.PadH, d.PadW)
	}
	if d.StrideU < 1 || d.StrideV < 1 {
		return badParameter("strides must be >= 1, got %dx%d", d.StrideU, d.StrideV)
	}
	return nil
}

// OutputSize is the standard convolution output-size formula.
func OutputSize(in, pad, kernel, stride int) int {
	return (in+2*pad-kernel)/stride + 1
}

// ForwardOutputDim computes the NCHW output shape of a forward convolution.
func (d ConvDescriptor) ForwardOutputDim(input, filter TensorDesc) (n, c, h, w int, err error) {
	if err := d.validate(); err != nil {
		return 0, 0, 0, 0, err
	}
	if err := input.validate("input"); err != nil {
		return 0, 0, 0, 0, err
	}
	if err := filter.validate("filter"); err != nil {
		return 0, 0, 0, 0, err
	}
	if input.C() != filter.C() {
		return 0, 0, 0, 0, badParameter("input channels %d do not match filter channels %d", input.C(), filter.C())
	}
	if input.H()+2*d.PadH < filter.H() || input.W()+2*d.PadW < filter.W() {
		return 0, 0, 0, 0, badParameter("filter %dx%d larger than padded input %dx%d",
			filter.H(), filter.W(), input.H()+2*d.PadH, input.W()+2*d.PadW)
	}
	n = input.N()
	c = filter.N()
	h = OutputSize(input.H(), d.PadH, filter.H(), d.StrideU)
	w = OutputSize(input.W(), d.PadW, filter.W(), d.StrideV)
	return n, c, h, w, nil
}

// ForwardOutputTensor returns the packed output descriptor of a forward convolution.
func (d ConvDescriptor) ForwardOutputTensor(input, filter TensorDesc) (TensorDesc, error) {
	n, c, h, w, err := d.ForwardOutputDim(input, filter)
	if err != nil {
		return TensorDesc{}, err
	}
	return Packed(n, c, h, w), nil
}

func fmtMsg(format string, args ...any) string {
	if len(args) == 0 {
		return format
	}
	return fmt.Sprintf(format, args...)
}
