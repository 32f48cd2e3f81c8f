package volume

import (
	"strings"

	"github.com/pkg/errors"
)

// BorderPad is the policy used for reads outside the volume.
type BorderPad int

// Supported border policies.
const (
	// BorderReplicate repeats the edge voxel: aaa|abc|ccc.
	BorderReplicate BorderPad = iota
	// BorderReflect mirrors around the edge voxel: cba|abc|cba.
	BorderReflect
	// BorderConstant reads zero.
	BorderConstant
)

func (b BorderPad) String() string {
	switch b {
	case BorderReplicate:
		return "replicate"
	case BorderReflect:
		return "reflect"
	case BorderConstant:
		return "constant"
	default:
		return "unknown"
	}
}

// BorderPadFromString parses a policy name.
func BorderPadFromString(s string) (BorderPad, error) {
	switch strings.ToLower(s) {
	case "replicate", "":
		return BorderReplicate, nil
	case "reflect":
		return BorderReflect, nil
	case "constant":
		return BorderConstant, nil
	default:
		return BorderReplicate, errors.Errorf("unknown border policy %q", s)
	}
}

// borderIndex maps i into [0, n) under the policy. ok is false when the read should be zero.
func borderIndex(i, n int, border BorderPad) (int, bool) {
	if i >= 0 && i < n {
		return i, true
	}
	switch border {
	case BorderReplicate:
		if i < 0 {
			return 0, true
		}
		return n - 1, true
	case BorderReflect:
		if n == 1 {
			return 0, true
		}
		period := 2 * (n - 1)
		i %= period
		if i < 0 {
			i += period
		}
		if i >= n {
			i = period - i
		}
		return i, true
	default:
		return 0, false
	}
}

// AtBorder returns channel c of a voxel, resolving out-of-range coordinates with the policy.
func (v *Volume) AtBorder(x, y, z, c int, border BorderPad) float64 {
	x, okX := borderIndex(x, v.nx, border)
	y, okY := borderIndex(y, v.ny, border)
	z, okZ := borderIndex(z, v.nz, border)
	if !okX || !okY || !okZ {
		return 0
	}
	return v.AtC(x, y, z, c)
}
