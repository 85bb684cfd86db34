package direct

import "github.com/samcharles93/convtune/internal/conv"

// SelectDefault picks a tiling from the shape alone. It is used when search
// is disabled and as the fallback when a search measures nothing.
func SelectDefault(sig conv.Signature) conv.Tiling {
	if sig.Is1x1() {
		return select1x1Default(sig)
	}

	var t conv.Tiling
	switch {
	case sig.InWidth <= 8:
		t.InTile0 = 8
	case sig.InWidth <= 16:
		t.InTile0 = 16
	default:
		t.InTile0 = 32
	}
	// Tall inputs go back to 8 rows.
	switch {
	case sig.InHeight <= 8:
		t.InTile1 = 8
	case sig.InHeight <= 16:
		t.InTile1 = 16
	default:
		t.InTile1 = 8
	}
	t.GroupTile0 = 16
	if t.InTile0 == 8 {
		t.GroupTile0 = 8
	}
	t.GroupTile1 = 16
	if t.InTile1 == 8 {
		t.GroupTile1 = 8
	}
	t.OutPixTile1 = 2
	t.OutPixTile0 = 2
	t.OutPixTiles = 8
	t.InDataTiles = 2
	t.Stacks = 1
	return t
}

func select1x1Default(sig conv.Signature) conv.Tiling {
	t := conv.Tiling{
		GroupTile1:  1,
		InTile1:     1,
		InTile0:     4,
		OutPixTile1: 1,
		OutPixTile0: 4,
		OutPixTiles: 16,
		InDataTiles: 2,
		Stacks:      1,
	}
	outLen4 := (sig.OutHeight*sig.OutWidth + 3) / 4
	switch {
	case outLen4 > 192:
		t.GroupTile0 = 256
	case outLen4 > 128:
		t.GroupTile0 = 192
	case outLen4 > 64:
		t.GroupTile0 = 128
	default:
		t.GroupTile0 = 64
	}
	if sig.BatchSize > 1 {
		t.Stacks = 2
	}
	return t
}

// Clamp pulls t into the ranges the search filters accept for sig: channel
// and batch counts bound the tile counts, input tiles bound the output pixel
// tiles, and the ALU tile fits in the work-group.
func Clamp(t conv.Tiling, sig conv.Signature) conv.Tiling {
	t.GroupTile1 = max(t.GroupTile1, 1)
	t.GroupTile0 = max(t.GroupTile0, 1)
	t.InTile1 = max(t.InTile1, 1)
	t.InTile0 = max(t.InTile0, 1)
	t.OutPixTile1 = clampTile(t.OutPixTile1, t.InTile1)
	t.OutPixTile0 = clampTile(t.OutPixTile0, t.InTile0)
	t.OutPixTiles = clampTile(t.OutPixTiles, max(sig.Outputs, 1))
	t.InDataTiles = clampTile(t.InDataTiles, max(sig.Inputs, 1))
	t.Stacks = clampTile(t.Stacks, max(sig.BatchSize, 1))

	if !sig.Is1x1() {
		for aluTile0(t)*aluTile1(t) > t.GroupTile0*t.GroupTile1 {
			// Wider output pixels shrink the ALU tile.
			switch {
			case t.OutPixTile0 < t.InTile0:
				t.OutPixTile0++
			case t.OutPixTile1 < t.InTile1:
				t.OutPixTile1++
			default:
				return t
			}
		}
	}
	return t
}

// Valid reports whether t passes every filter the search applies before
// measuring a candidate for sig.
func Valid(t conv.Tiling, sig conv.Signature) bool {
	if !t.Positive() {
		return false
	}
	if t.OutPixTile1 > t.InTile1 || t.OutPixTile0 > t.InTile0 {
		return false
	}
	if t.OutPixTiles > sig.Outputs || t.InDataTiles > sig.Inputs || t.Stacks > sig.BatchSize {
		return false
	}
	if !sig.Is1x1() && aluTile0(t)*aluTile1(t) > t.GroupTile0*t.GroupTile1 {
		return false
	}
	return true
}

// aluTile0 and aluTile1 are the per-lane ALU tile extents the search uses
// to prune (floor division, at least one).
func aluTile0(t conv.Tiling) int { return max(1, t.InTile0/t.OutPixTile0) }
func aluTile1(t conv.Tiling) int { return max(1, t.InTile1/t.OutPixTile1) }

func clampTile(v, hi int) int {
	if v < 1 {
		return 1
	}
	if v > hi {
		return hi
	}
	return v
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
