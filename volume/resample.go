package volume

import (
	"math"

	"github.com/pkg/errors"
)

// Downsample2x keeps every even voxel, halving each dimension (rounding up).
func Downsample2x(in *Volume) *Volume {
	nx, ny, nz := (in.nx+1)/2, (in.ny+1)/2, (in.nz+1)/2
	out := New(nx, ny, nz, in.nc)
	for z := 0; z < nz; z++ {
		for y := 0; y < ny; y++ {
			for x := 0; x < nx; x++ {
				copy(out.Voxel(x, y, z), in.Voxel(2*x, 2*y, 2*z))
			}
		}
	}
	return out
}

// Upsample2x doubles each dimension with linear interpolation. Output voxel i samples the input
// at i/2, clamped to the last input voxel.
func Upsample2x(in *Volume) *Volume {
	out := New(2*in.nx, 2*in.ny, 2*in.nz, in.nc)
	lerpIdx := func(i, n int) (int, int, float64) {
		lo := i / 2
		hi := min(lo+1, n-1)
		return lo, hi, 0.5 * float64(i%2)
	}
	for z := 0; z < out.nz; z++ {
		z0, z1, fz := lerpIdx(z, in.nz)
		for y := 0; y < out.ny; y++ {
			y0, y1, fy := lerpIdx(y, in.ny)
			for x := 0; x < out.nx; x++ {
				x0, x1, fx := lerpIdx(x, in.nx)
				for c := 0; c < in.nc; c++ {
					c00 := lerp(in.AtC(x0, y0, z0, c), in.AtC(x1, y0, z0, c), fx)
					c10 := lerp(in.AtC(x0, y1, z0, c), in.AtC(x1, y1, z0, c), fx)
					c01 := lerp(in.AtC(x0, y0, z1, c), in.AtC(x1, y0, z1, c), fx)
					c11 := lerp(in.AtC(x0, y1, z1, c), in.AtC(x1, y1, z1, c), fx)
					out.SetC(x, y, z, c, lerp(lerp(c00, c10, fy), lerp(c01, c11, fy), fz))
				}
			}
		}
	}
	return out
}

func lerp(a, b, t float64) float64 {
	return a + t*(b-a)
}

// ResamplePow2 scales the volume by 2^-octave: upsampling for negative octaves and decimating
// for positive ones.
func ResamplePow2(in *Volume, octave int) (*Volume, error) {
	out := in
	for i := 0; i < int(math.Abs(float64(octave))); i++ {
		if octave < 0 {
			out = Upsample2x(out)
			continue
		}
		if out.MinDim() < 2 {
			return nil, errors.Errorf("cannot downsample a %dx%dx%d volume by 2^%d", in.nx, in.ny, in.nz, octave)
		}
		out = Downsample2x(out)
	}
	if out == in {
		out = in.Clone()
	}
	return out, nil
}
