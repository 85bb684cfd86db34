package direct

import (
	"math"

	"github.com/samcharles93/convtune/internal/conv"
)

// space is the nine-axis search grid for one shape. Axis ranges narrow for
// small inputs and switch to the 1x1 layout for 1x1 filters. Enumeration
// order is fixed: it decides which of several equally fast candidates wins.
type space struct {
	sig      conv.Signature
	localMem int
	is1x1    bool

	unaligned bool

	grp          [4]int
	nGrp1, nGrp0 int

	tile1, tile0   [3]int
	nTile1, nTile0 int

	outPix    [3]int
	outPixCnt int

	outTiles [2]int
	inTiles  [2]int

	stacks   [3]int
	stackCnt int

	reportInterval int
	runsLeft       int64
	skipped        int
}

// smallestTile is the smallest input tile bucket.
const smallestTile = 8

func newSpace(sig conv.Signature, localMem int) *space {
	sp := &space{
		sig:            sig,
		localMem:       localMem,
		is1x1:          sig.Is1x1(),
		unaligned:      sig.Unaligned(),
		grp:            [4]int{8, 16},
		nGrp1:          2,
		nGrp0:          2,
		tile1:          [3]int{8, 16, 32},
		tile0:          [3]int{8, 16, 32},
		nTile1:         3,
		nTile0:         3,
		outPix:         [3]int{1, 2, 4},
		outPixCnt:      3,
		outTiles:       [2]int{1, 8},
		inTiles:        [2]int{1, 4},
		stacks:         [3]int{1, 2, 4},
		stackCnt:       2,
		reportInterval: 100,
	}
	nOutTls := min(sig.Outputs, sp.outTiles[1])

	switch {
	case sig.InWidth <= 8:
		sp.nTile0 = 1
		sp.inTiles[1] = 16
	case sig.InWidth <= 16:
		sp.nTile0 = 1
		sp.tile0[0] = 16
		sp.inTiles[1] = 8
	case sig.InWidth <= 32:
		sp.nTile0 = 2
		sp.tile0[0], sp.tile0[1] = 16, 32
	}

	switch {
	case sig.InHeight <= 8:
		sp.nTile1 = 1
		sp.inTiles[1] = 16
	case sig.InHeight <= 16:
		sp.nTile1 = 1
		sp.tile1[0] = 16
		sp.inTiles[1] = 8
	case sig.InWidth <= 32:
		// Keyed on width, as the tuned databases in the field were built.
		sp.nTile1 = 2
		sp.tile1[0], sp.tile1[1] = 16, 32
	}

	if sp.unaligned {
		// Out pixel tiles run 1..5 instead of the {1,2,4} buckets.
		sp.outPixCnt = 6
	}

	nGrpTiles := sp.nGrp1 * sp.nGrp0
	nTilesCnt := sp.nTile0 * sp.nTile1
	if sig.OutHeight > 16 && sig.OutWidth > 16 {
		nGrpTiles--
		nTilesCnt--
	}

	if sp.is1x1 {
		sp.grp = [4]int{64, 128, 192, 256}
		sp.nGrp1, sp.nGrp0 = 1, 4
		sp.tile1[0], sp.tile0[0] = 1, 4
		sp.nTile1, sp.nTile0 = 1, 1
		nTilesCnt = 1
		sp.outPixCnt = 1
		sp.outTiles[1] = 16
		sp.inTiles[1] = 8
		sp.stackCnt = 3
		nOutTls = sp.outTiles[1]
		nGrpTiles = sp.nGrp1 * sp.nGrp0
		sp.reportInterval = 20
	}

	pix := int64(sp.outPixCnt)
	sp.runsLeft = int64(nGrpTiles) * int64(nTilesCnt) * pix * pix *
		int64(nOutTls) * int64(sp.inTiles[1]) * int64(sp.stackCnt)
	return sp
}

// skip accounts for one pruned or failed candidate.
func (sp *space) skip() {
	sp.skipped++
	sp.done()
}

func (sp *space) done() {
	if sp.runsLeft > 0 {
		sp.runsLeft--
	}
}

// outPixValue maps a loop index on an out pixel axis to a tile size.
func (sp *space) outPixValue(k int) int {
	switch {
	case sp.is1x1:
		return 1
	case sp.unaligned:
		return k
	default:
		return sp.outPix[k]
	}
}

func (sp *space) outPixStart() int {
	if sp.unaligned && !sp.is1x1 {
		return sp.outPix[0]
	}
	return 0
}

// outPixLimit is the largest out pixel tile an input tile admits. Unaligned
// kernels clip the input tile to the output extent.
func (sp *space) outPixLimit(tile, out int) int {
	if sp.unaligned && !sp.is1x1 {
		return min(tile, out)
	}
	return tile
}

// walk calls fn for every candidate that survives pruning, in enumeration
// order. Pruned candidates are counted against runsLeft. fn may rewrite the
// candidate with the tiling its kernel was actually built with; the rewrite
// stays in effect for the filters applied to later candidates. fn returns
// false to stop the walk.
func (sp *space) walk(fn func(t *conv.Tiling) bool) {
	sig := sp.sig
	var t conv.Tiling
	for g1 := 0; g1 < sp.nGrp1; g1++ {
		t.GroupTile1 = sp.grp[g1]
		if sp.is1x1 {
			t.GroupTile1 = 1
		}
		for g0 := 0; g0 < sp.nGrp0; g0++ {
			t.GroupTile0 = sp.grp[g0]

			for j := 0; j < sp.nTile1; j++ {
				t.InTile1 = sp.tile1[j]
				if sig.OutHeight*2 <= t.InTile1 && t.InTile1 > smallestTile {
					sp.skip()
					continue
				}

				for i := 0; i < sp.nTile0; i++ {
					t.InTile0 = sp.tile0[i]
					if sig.OutWidth*2 <= t.InTile0 && t.InTile0 > smallestTile {
						sp.skip()
						continue
					}
					if sig.OutHeight > 16 && sig.OutWidth > 16 &&
						((t.InTile1 == 8 && t.InTile0 == 8) || (t.GroupTile0 == 8 && t.GroupTile1 == 8)) {
						sp.skip()
						continue
					}
					if sig.OutWidth > 32 && t.InTile1 > t.InTile0 {
						sp.skip()
						continue
					}

					for k := sp.outPixStart(); k < sp.outPixCnt; k++ {
						t.OutPixTile1 = sp.outPixValue(k)
						if t.OutPixTile1 > sp.outPixLimit(t.InTile1, sig.OutHeight) {
							sp.skip()
							continue
						}

						for l := sp.outPixStart(); l < sp.outPixCnt; l++ {
							t.OutPixTile0 = sp.outPixValue(l)
							if sp.is1x1 {
								t.OutPixTile0 = 4
							}
							if t.OutPixTile0 > sp.outPixLimit(t.InTile0, sig.OutWidth) {
								sp.skip()
								continue
							}

							if !sp.walkTiles(&t, fn) {
								return
							}
						}
					}
				}
			}
		}
	}
}

// walkTiles covers the out tile, in tile and stack axes.
func (sp *space) walkTiles(t *conv.Tiling, fn func(t *conv.Tiling) bool) bool {
	sig := sp.sig
	for ot := sp.outTiles[0]; ot <= sp.outTiles[1]; ot++ {
		t.OutPixTiles = ot
		if sig.Outputs < ot {
			sp.skip()
			continue
		}
		if sp.is1x1 {
			sp.narrowExchange(t.GroupTile0, ot)
		}

		for it := sp.inTiles[0]; it <= sp.inTiles[1]; it++ {
			t.InDataTiles = it
			if sig.Inputs < it {
				sp.skip()
				continue
			}

			for s := 0; s < sp.stackCnt; s++ {
				t.Stacks = sp.stacks[s]
				if !sp.is1x1 && aluTile0(*t)*aluTile1(*t) > t.GroupTile0*t.GroupTile1 {
					sp.skip()
					continue
				}
				if t.Stacks > sig.BatchSize {
					sp.skip()
					continue
				}
				if !fn(t) {
					return false
				}
				sp.done()
			}
		}
	}
	return true
}

// narrowExchange sets the in tile axis of a 1x1 small-map candidate to the
// exchange steps that fit in local memory. The range carries over to later
// candidates.
func (sp *space) narrowExchange(grp0, outTiles int) {
	mapSz4 := ceilDiv(sp.sig.InWidth*sp.sig.InHeight, 4)
	if mapSz4 > grp0/2 {
		return
	}
	mapsPerGroup := grp0 / mapSz4
	lcl := sp.localMem / 4
	if grp0 <= 192 {
		lcl /= 2
	}
	exchange := lcl / (mapsPerGroup * mapSz4 * 4)
	exchange = min(exchange, outTiles, mapsPerGroup)
	if exchange < outTiles {
		sp.inTiles = [2]int{int(math.Ceil(math.Sqrt(float64(exchange)))), exchange}
	} else {
		sp.inTiles = [2]int{1, 1}
	}
}
