package conv

import (
	"fmt"
	"strconv"
	"strings"
)

// Direction of a direct convolution. The numeric values are the ones written
// into persisted keys.
type Direction int

const (
	Backward Direction = 0
	Forward  Direction = 1
)

func (d Direction) String() string {
	if d == Forward {
		return "forward"
	}
	return "backward"
}

// ParseDirection accepts "forward"/"fwd"/"1" and "backward"/"bwd"/"0".
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "forward", "fwd", "1":
		return Forward, nil
	case "backward", "bwd", "0":
		return Backward, nil
	default:
		return Forward, badParameter("unknown direction %q", s)
	}
}

const (
	LayoutNCHW = "NCHW"
	TypeFP32   = "FP32"
	TypeFP16   = "FP16"
)

// Signature identifies a convolution shape for config lookup. For backward
// problems the input fields describe dy and the output fields dx.
type Signature struct {
	Inputs       int
	InHeight     int
	InWidth      int
	KernelHeight int
	KernelWidth  int
	Outputs      int
	OutHeight    int
	OutWidth     int
	BatchSize    int
	Layout       string
	DataType     string
	Direction    Direction
}

const signatureFields = 12

// Key encodes the signature in the config database key format, e.g.
// 32x16x16x3x3x64x16x16x100xNCHWxFP32x1.
func (s Signature) Key() string {
	var b strings.Builder
	for _, v := range []int{
		s.Inputs, s.InHeight, s.InWidth,
		s.KernelHeight, s.KernelWidth,
		s.Outputs, s.OutHeight, s.OutWidth,
		s.BatchSize,
	} {
		b.WriteString(strconv.Itoa(v))
		b.WriteByte('x')
	}
	b.WriteString(s.Layout)
	b.WriteByte('x')
	b.WriteString(s.DataType)
	b.WriteByte('x')
	b.WriteString(strconv.Itoa(int(s.Direction)))
	return b.String()
}

func (s Signature) String() string {
	return s.Key()
}

// Is1x1 reports a 1x1 filter.
func (s Signature) Is1x1() bool {
	return s.KernelHeight == 1 && s.KernelWidth == 1
}

// Unaligned reports an output size the plain tiled kernel does not handle.
func (s Signature) Unaligned() bool {
	h, w := s.OutHeight, s.OutWidth
	return h < 8 || w < 8 ||
		(h > 8 && h < 16) || (w > 8 && w < 16) ||
		(h > 16 && h < 32) || (w > 16 && w < 32)
}

// ParseKey decodes a config database key.
func ParseKey(key string) (Signature, error) {
	parts := strings.Split(key, "x")
	if len(parts) != signatureFields {
		return Signature{}, fmt.Errorf("%w: key %q has %d fields, want %d", ErrMalformedConfig, key, len(parts), signatureFields)
	}
	var nums [9]int
	for i := range nums {
		v, err := strconv.Atoi(parts[i])
		if err != nil {
			return Signature{}, fmt.Errorf("%w: key %q field %d: %v", ErrMalformedConfig, key, i, err)
		}
		nums[i] = v
	}
	if parts[9] == "" || parts[10] == "" {
		return Signature{}, fmt.Errorf("%w: key %q has empty tag", ErrMalformedConfig, key)
	}
	var dir Direction
	switch parts[11] {
	case "1":
		dir = Forward
	case "0":
		dir = Backward
	default:
		return Signature{}, fmt.Errorf("%w: key %q direction %q", ErrMalformedConfig, key, parts[11])
	}
	return Signature{
		Inputs:       nums[0],
		InHeight:     nums[1],
		InWidth:      nums[2],
		KernelHeight: nums[3],
		KernelWidth:  nums[4],
		Outputs:      nums[5],
		OutHeight:    nums[6],
		OutWidth:     nums[7],
		BatchSize:    nums[8],
		Layout:       parts[9],
		DataType:     parts[10],
		Direction:    dir,
	}, nil
}
