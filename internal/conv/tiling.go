package conv

import (
	"fmt"
	"strconv"
	"strings"
)

// Tiling is a direct-convolution tiling configuration. Field order matches
// the persisted value format.
type Tiling struct {
	GroupTile1  int // work-group height
	GroupTile0  int // work-group width
	InTile1     int // input block height
	InTile0     int // input block width
	OutPixTile1 int // per work-item output tile height
	OutPixTile0 int // per work-item output tile width
	OutPixTiles int // output maps per work-item
	InDataTiles int // input maps staged in local memory
	Stacks      int // batch images per work-group
}

const tilingFields = 9

func (t Tiling) fields() [tilingFields]int {
	return [tilingFields]int{
		t.GroupTile1, t.GroupTile0,
		t.InTile1, t.InTile0,
		t.OutPixTile1, t.OutPixTile0,
		t.OutPixTiles, t.InDataTiles, t.Stacks,
	}
}

// String encodes the tiling in the config database value format,
// e.g. 16.16.16.16.1.4.8.4.1.
func (t Tiling) String() string {
	f := t.fields()
	parts := make([]string, len(f))
	for i, v := range f {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ".")
}

// Positive reports whether every field is >= 1.
func (t Tiling) Positive() bool {
	for _, v := range t.fields() {
		if v < 1 {
			return false
		}
	}
	return true
}

// ParseTiling decodes a config database value. It splits on '.' exactly and
// rejects empty or non-integer fields.
func ParseTiling(val string) (Tiling, error) {
	parts := strings.Split(val, ".")
	if len(parts) != tilingFields {
		return Tiling{}, fmt.Errorf("%w: value %q has %d fields, want %d", ErrMalformedConfig, val, len(parts), tilingFields)
	}
	var f [tilingFields]int
	for i, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil {
			return Tiling{}, fmt.Errorf("%w: value %q field %d: %v", ErrMalformedConfig, val, i, err)
		}
		f[i] = v
	}
	return Tiling{
		GroupTile1:  f[0],
		GroupTile0:  f[1],
		InTile1:     f[2],
		InTile0:     f[3],
		OutPixTile1: f[4],
		OutPixTile0: f[5],
		OutPixTiles: f[6],
		InDataTiles: f[7],
		Stacks:      f[8],
	}, nil
}
