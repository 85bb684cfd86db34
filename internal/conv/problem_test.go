package conv

import (
	"errors"
	"testing"
)

func TestOutputSize(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in, pad, k, stride, want int
	}{
		{32, 0, 3, 1, 30},
		{16, 1, 3, 2, 8},
		{32, 1, 3, 1, 32},
		{224, 3, 7, 2, 112},
		{1, 0, 1, 1, 1},
	}
	for _, tt := range tests {
		if got := OutputSize(tt.in, tt.pad, tt.k, tt.stride); got != tt.want {
			t.Fatalf("OutputSize(%d,%d,%d,%d) = %d, want %d", tt.in, tt.pad, tt.k, tt.stride, got, tt.want)
		}
	}
}

func TestForwardOutputDim(t *testing.T) {
	t.Parallel()
	desc := DefaultConvDescriptor()
	desc.PadH, desc.PadW = 1, 1
	desc.StrideU, desc.StrideV = 2, 2
	n, c, h, w, err := desc.ForwardOutputDim(Packed(4, 3, 16, 16), Packed(8, 3, 3, 3))
	if err != nil {
		t.Fatalf("ForwardOutputDim: %v", err)
	}
	if n != 4 || c != 8 || h != 8 || w != 8 {
		t.Fatalf("got %dx%dx%dx%d, want 4x8x8x8", n, c, h, w)
	}
}

func TestForwardOutputDimErrors(t *testing.T) {
	t.Parallel()
	desc := DefaultConvDescriptor()
	tests := []struct {
		name    string
		desc    ConvDescriptor
		in, wei TensorDesc
	}{
		{"channel mismatch", desc, Packed(1, 3, 8, 8), Packed(4, 2, 3, 3)},
		{"filter too large", desc, Packed(1, 3, 2, 2), Packed(4, 3, 3, 3)},
		{"zero length", desc, Packed(0, 3, 8, 8), Packed(4, 3, 3, 3)},
		{"zero stride", ConvDescriptor{StrideU: 0, StrideV: 1}, Packed(1, 3, 8, 8), Packed(4, 3, 3, 3)},
		{"negative pad", ConvDescriptor{PadH: -1, StrideU: 1, StrideV: 1}, Packed(1, 3, 8, 8), Packed(4, 3, 3, 3)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, _, _, _, err := tt.desc.ForwardOutputDim(tt.in, tt.wei)
			if !errors.Is(err, ErrBadParameter) {
				t.Fatalf("expected ErrBadParameter, got %v", err)
			}
		})
	}
}

func TestNewForwardProblem(t *testing.T) {
	t.Parallel()
	desc := DefaultConvDescriptor()
	desc.PadH, desc.PadW = 1, 1
	p, err := NewForwardProblem(Packed(100, 3, 32, 32), Packed(32, 3, 3, 3), desc, true, "")
	if err != nil {
		t.Fatalf("NewForwardProblem: %v", err)
	}
	if got := p.Key(); got != "3x32x32x3x3x32x32x32x100xNCHWxFP32x1" {
		t.Fatalf("Key() = %q", got)
	}
	if p.Generic() {
		t.Fatal("3x3 stride-1 problem should not be generic")
	}
	if p.InChannelStride() != 32*32 || p.OutBatchStride() != 32*32*32 {
		t.Fatalf("unexpected strides: in channel %d, out batch %d", p.InChannelStride(), p.OutBatchStride())
	}
	if p.BiasElements() != 32 || p.WeightElements() != 32*3*3*3 {
		t.Fatalf("unexpected buffer sizes: bias %d, weights %d", p.BiasElements(), p.WeightElements())
	}
	if p.ElementSize() != 4 {
		t.Fatalf("ElementSize() = %d, want 4", p.ElementSize())
	}
}

func TestNewBackwardDataProblem(t *testing.T) {
	t.Parallel()
	desc := DefaultConvDescriptor()
	p, err := NewBackwardDataProblem(Packed(2, 16, 32, 32), Packed(8, 16, 3, 3), desc, TypeFP16)
	if err != nil {
		t.Fatalf("NewBackwardDataProblem: %v", err)
	}
	// dy is 2x8x30x30, dx is 2x16x32x32.
	if got := p.Key(); got != "8x30x30x3x3x16x32x32x2xNCHWxFP16x0" {
		t.Fatalf("Key() = %q", got)
	}
	if p.ElementSize() != 2 {
		t.Fatalf("ElementSize() = %d, want 2", p.ElementSize())
	}
}

func TestNewProblemRejects(t *testing.T) {
	t.Parallel()
	desc := DefaultConvDescriptor()
	if _, err := NewProblem(Packed(1, 3, 8, 8), Packed(4, 3, 3, 3), Packed(1, 4, 8, 8), desc, Forward, false, ""); !errors.Is(err, ErrBadParameter) {
		t.Fatalf("mismatched output: expected ErrBadParameter, got %v", err)
	}
	if _, err := NewForwardProblem(Packed(1, 3, 8, 8), Packed(4, 3, 3, 3), desc, false, "INT8"); !errors.Is(err, ErrBadParameter) {
		t.Fatalf("bad dtype: expected ErrBadParameter, got %v", err)
	}
}

func TestGeneric(t *testing.T) {
	t.Parallel()
	desc := DefaultConvDescriptor()
	p, err := NewForwardProblem(Packed(1, 3, 64, 64), Packed(4, 3, 13, 13), desc, false, "")
	if err != nil {
		t.Fatal(err)
	}
	if !p.Generic() {
		t.Fatal("13x13 kernel should be generic")
	}
	desc.StrideV = 2
	p, err = NewForwardProblem(Packed(1, 3, 64, 64), Packed(4, 3, 3, 3), desc, false, "")
	if err != nil {
		t.Fatal(err)
	}
	if !p.Generic() {
		t.Fatal("strided problem should be generic")
	}
}

func TestProblemFromSignature(t *testing.T) {
	t.Parallel()
	for _, key := range []string{
		"3x32x32x3x3x32x32x32x100xNCHWxFP32x1",
		"8x30x30x3x3x16x32x32x2xNCHWxFP16x0",
		"64x7x7x1x1x128x7x7x8xNCHWxFP32x1",
		"16x28x28x5x5x16x24x24x4xNCHWxFP32x1",
	} {
		sig, err := ParseKey(key)
		if err != nil {
			t.Fatal(err)
		}
		p, err := ProblemFromSignature(sig, true)
		if err != nil {
			t.Fatalf("ProblemFromSignature(%s): %v", key, err)
		}
		if p.Key() != key {
			t.Fatalf("round trip key = %s, want %s", p.Key(), key)
		}
		if p.Bias != (sig.Direction == Forward) {
			t.Fatalf("%s: bias = %v", key, p.Bias)
		}
	}
}

func TestProblemFromSignatureRejectsOddPadding(t *testing.T) {
	t.Parallel()
	sig, err := ParseKey("3x32x32x3x3x32x31x31x1xNCHWxFP32x1")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ProblemFromSignature(sig, false); !errors.Is(err, ErrBadParameter) {
		t.Fatalf("expected ErrBadParameter, got %v", err)
	}
	sig.OutHeight, sig.OutWidth = 30, 30
	sig.Layout = "NHWC"
	if _, err := ProblemFromSignature(sig, false); !errors.Is(err, ErrBadParameter) {
		t.Fatalf("expected ErrBadParameter for layout, got %v", err)
	}
}
