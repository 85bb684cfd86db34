package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/convtune/internal/conv"
)

// problemFlags describe one convolution on the command line.
type problemFlags struct {
	input     string
	weights   string
	pad       string
	stride    string
	direction string
	dtype     string
	bias      bool
}

func (f *problemFlags) flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "input",
			Aliases:     []string{"x"},
			Usage:       "input tensor NxCxHxW (x for both directions)",
			Destination: &f.input,
		},
		&cli.StringFlag{
			Name:        "weights",
			Aliases:     []string{"w"},
			Usage:       "filter KxCxHxW",
			Destination: &f.weights,
		},
		&cli.StringFlag{
			Name:        "pad",
			Usage:       "padding HxW or a single value",
			Value:       "0",
			Destination: &f.pad,
		},
		&cli.StringFlag{
			Name:        "stride",
			Usage:       "stride HxW or a single value",
			Value:       "1",
			Destination: &f.stride,
		},
		&cli.StringFlag{
			Name:        "direction",
			Usage:       "forward or backward (data)",
			Value:       "forward",
			Destination: &f.direction,
		},
		&cli.StringFlag{
			Name:        "dtype",
			Usage:       "element type (FP32, FP16)",
			Value:       conv.TypeFP32,
			Destination: &f.dtype,
		},
		&cli.BoolFlag{
			Name:        "bias",
			Usage:       "add a per-output bias (forward only)",
			Destination: &f.bias,
		},
	}
}

func (f *problemFlags) problem() (conv.Problem, error) {
	if f.input == "" || f.weights == "" {
		return conv.Problem{}, fmt.Errorf("--input and --weights are required")
	}
	x, err := parseDims(f.input, 4)
	if err != nil {
		return conv.Problem{}, fmt.Errorf("--input: %w", err)
	}
	w, err := parseDims(f.weights, 4)
	if err != nil {
		return conv.Problem{}, fmt.Errorf("--weights: %w", err)
	}
	pad, err := parsePair(f.pad)
	if err != nil {
		return conv.Problem{}, fmt.Errorf("--pad: %w", err)
	}
	stride, err := parsePair(f.stride)
	if err != nil {
		return conv.Problem{}, fmt.Errorf("--stride: %w", err)
	}
	dir, err := conv.ParseDirection(f.direction)
	if err != nil {
		return conv.Problem{}, err
	}

	desc := conv.DefaultConvDescriptor()
	desc.PadH, desc.PadW = pad[0], pad[1]
	desc.StrideU, desc.StrideV = stride[0], stride[1]
	in := conv.Packed(x[0], x[1], x[2], x[3])
	wei := conv.Packed(w[0], w[1], w[2], w[3])
	dtype := strings.ToUpper(f.dtype)
	if dir == conv.Backward {
		if f.bias {
			return conv.Problem{}, fmt.Errorf("--bias is only valid for forward problems")
		}
		return conv.NewBackwardDataProblem(in, wei, desc, dtype)
	}
	return conv.NewForwardProblem(in, wei, desc, f.bias, dtype)
}

// parseDims reads n integers separated by 'x' or ','.
func parseDims(s string, n int) ([]int, error) {
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == 'x' || r == 'X' || r == ',' })
	if len(parts) != n {
		return nil, fmt.Errorf("want %d dimensions, got %q", n, s)
	}
	out := make([]int, n)
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("dimension %d of %q: %v", i, s, err)
		}
		out[i] = v
	}
	return out, nil
}

// parsePair accepts "a" or "axb".
func parsePair(s string) ([2]int, error) {
	if v, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
		return [2]int{v, v}, nil
	}
	d, err := parseDims(s, 2)
	if err != nil {
		return [2]int{}, err
	}
	return [2]int{d[0], d[1]}, nil
}
