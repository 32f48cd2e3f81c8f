package volume

import "github.com/golang/geo/r3"

// Gradient returns the central-difference gradient of channel 0 at an interior voxel.
func (v *Volume) Gradient(x, y, z int) r3.Vector {
	return v.GradientC(x, y, z, 0)
}

// GradientC returns the central-difference gradient of channel c at an interior voxel.
func (v *Volume) GradientC(x, y, z, c int) r3.Vector {
	return r3.Vector{
		X: 0.5 * (v.AtC(x+1, y, z, c) - v.AtC(x-1, y, z, c)),
		Y: 0.5 * (v.AtC(x, y+1, z, c) - v.AtC(x, y-1, z, c)),
		Z: 0.5 * (v.AtC(x, y, z+1, c) - v.AtC(x, y, z-1, c)),
	}
}

// Hessian returns the finite-difference Hessian of channel 0 at an interior voxel.
func (v *Volume) Hessian(x, y, z int) [3][3]float64 {
	at := func(dx, dy, dz int) float64 {
		return v.At(x+dx, y+dy, z+dz)
	}
	center := at(0, 0, 0)
	var h [3][3]float64
	h[0][0] = at(1, 0, 0) - 2*center + at(-1, 0, 0)
	h[1][1] = at(0, 1, 0) - 2*center + at(0, -1, 0)
	h[2][2] = at(0, 0, 1) - 2*center + at(0, 0, -1)
	h[0][1] = 0.25 * (at(1, 1, 0) - at(-1, 1, 0) - at(1, -1, 0) + at(-1, -1, 0))
	h[0][2] = 0.25 * (at(1, 0, 1) - at(-1, 0, 1) - at(1, 0, -1) + at(-1, 0, -1))
	h[1][2] = 0.25 * (at(0, 1, 1) - at(0, -1, 1) - at(0, 1, -1) + at(0, -1, -1))
	h[1][0] = h[0][1]
	h[2][0] = h[0][2]
	h[2][1] = h[1][2]
	return h
}
