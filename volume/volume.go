// Package volume implements the dense 3D image container used by the sift3d pipeline along with
// its filtering, resampling, differentiation and file services.
package volume

import (
	"math"

	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// Volume is a dense 3D image with nc interleaved channels. Voxel (x, y, z) channel c is stored at
// c + nc*(x + nx*(y + ny*z)).
type Volume struct {
	nx, ny, nz, nc int
	data           []float64
}

// New allocates a zeroed volume.
func New(nx, ny, nz, nc int) *Volume {
	return &Volume{nx, ny, nz, nc, make([]float64, nx*ny*nz*nc)}
}

// NewFromData wraps existing data without copying it.
func NewFromData(nx, ny, nz, nc int, data []float64) (*Volume, error) {
	if nx <= 0 || ny <= 0 || nz <= 0 || nc <= 0 {
		return nil, errors.Errorf("invalid volume dimensions %dx%dx%dx%d", nx, ny, nz, nc)
	}
	if len(data) != nx*ny*nz*nc {
		return nil, errors.Errorf("volume %dx%dx%dx%d needs %d values, got %d", nx, ny, nz, nc, nx*ny*nz*nc, len(data))
	}
	return &Volume{nx, ny, nz, nc, data}, nil
}

// Dims returns the spatial extent.
func (v *Volume) Dims() (int, int, int) {
	return v.nx, v.ny, v.nz
}

// Channels returns the number of channels per voxel.
func (v *Volume) Channels() int {
	return v.nc
}

// Voxels returns the number of voxels.
func (v *Volume) Voxels() int {
	return v.nx * v.ny * v.nz
}

// MinDim returns the smallest spatial dimension.
func (v *Volume) MinDim() int {
	return min(v.nx, v.ny, v.nz)
}

// Data returns the backing slice.
func (v *Volume) Data() []float64 {
	return v.data
}

// SameDims reports whether both volumes have the same extent and channel count.
func (v *Volume) SameDims(other *Volume) bool {
	return v.nx == other.nx && v.ny == other.ny && v.nz == other.nz && v.nc == other.nc
}

func (v *Volume) index(x, y, z, c int) int {
	return c + v.nc*(x+v.nx*(y+v.ny*z))
}

// In reports whether the coordinate is inside the volume.
func (v *Volume) In(x, y, z int) bool {
	return x >= 0 && y >= 0 && z >= 0 && x < v.nx && y < v.ny && z < v.nz
}

// At returns channel 0 of a voxel.
func (v *Volume) At(x, y, z int) float64 {
	return v.data[v.index(x, y, z, 0)]
}

// AtC returns channel c of a voxel.
func (v *Volume) AtC(x, y, z, c int) float64 {
	return v.data[v.index(x, y, z, c)]
}

// Set sets channel 0 of a voxel.
func (v *Volume) Set(x, y, z int, val float64) {
	v.data[v.index(x, y, z, 0)] = val
}

// SetC sets channel c of a voxel.
func (v *Volume) SetC(x, y, z, c int, val float64) {
	v.data[v.index(x, y, z, c)] = val
}

// Voxel returns the channels of a voxel as a slice aliasing the volume.
func (v *Volume) Voxel(x, y, z int) []float64 {
	i := v.index(x, y, z, 0)
	return v.data[i : i+v.nc]
}

// Clone returns a deep copy.
func (v *Volume) Clone() *Volume {
	data := make([]float64, len(v.data))
	copy(data, v.data)
	return &Volume{v.nx, v.ny, v.nz, v.nc, data}
}

// Zero sets every value to zero.
func (v *Volume) Zero() {
	for i := range v.data {
		v.data[i] = 0
	}
}

// Scale multiplies every value by f in place.
func (v *Volume) Scale(f float64) {
	for i := range v.data {
		v.data[i] *= f
	}
}

// MaxAbs returns the largest absolute value.
func (v *Volume) MaxAbs() float64 {
	ret := 0.
	for _, d := range v.data {
		ret = math.Max(ret, math.Abs(d))
	}
	return ret
}

// Subtract returns a - b.
func Subtract(a, b *Volume) (*Volume, error) {
	if !a.SameDims(b) {
		return nil, errors.Errorf("cannot subtract %dx%dx%dx%d and %dx%dx%dx%d volumes",
			a.nx, a.ny, a.nz, a.nc, b.nx, b.ny, b.nz, b.nc)
	}
	ret := New(a.nx, a.ny, a.nz, a.nc)
	for i := range ret.data {
		ret.data[i] = a.data[i] - b.data[i]
	}
	return ret, nil
}

// Tensor exposes the volume as a (nz, ny, nx, nc) tensor sharing the backing data.
func (v *Volume) Tensor() *tensor.Dense {
	return tensor.New(tensor.WithShape(v.nz, v.ny, v.nx, v.nc), tensor.WithBacking(v.data))
}
