package volume

import (
	"math"

	"github.com/pkg/errors"

	"go.viam.com/sift3d/utils"
)

// Kernel1D is an odd-length convolution kernel centered at HalfWidth.
type Kernel1D struct {
	Weights   []float64
	HalfWidth int
}

// IdentityKernel returns the kernel that leaves its input unchanged.
func IdentityKernel() Kernel1D {
	return Kernel1D{Weights: []float64{1}}
}

// IsIdentity reports whether the kernel is a single unit tap.
func (k Kernel1D) IsIdentity() bool {
	return len(k.Weights) == 1 && k.Weights[0] == 1
}

// GaussianKernel1D returns a normalized Gaussian kernel with half width ceil(3*sigma), at least 1.
// A zero sigma yields the identity kernel.
func GaussianKernel1D(sigma float64) (Kernel1D, error) {
	if sigma < 0 || math.IsNaN(sigma) || math.IsInf(sigma, 0) {
		return Kernel1D{}, errors.Errorf("invalid gaussian sigma %v", sigma)
	}
	if sigma == 0 {
		return IdentityKernel(), nil
	}
	halfWidth := int(math.Max(1, math.Ceil(3*sigma)))
	weights := make([]float64, 2*halfWidth+1)
	sum := 0.
	for i := -halfWidth; i <= halfWidth; i++ {
		w := math.Exp(-0.5 * float64(i*i) / (sigma * sigma))
		weights[i+halfWidth] = w
		sum += w
	}
	for i := range weights {
		weights[i] /= sum
	}
	return Kernel1D{Weights: weights, HalfWidth: halfWidth}, nil
}

// IncrementalGaussianSigma returns the sigma that blurs an image of scale from into one of scale
// to, or 0 if to is not larger than from.
func IncrementalGaussianSigma(from, to float64) float64 {
	if to <= from {
		return 0
	}
	return math.Sqrt(to*to - from*from)
}

// SeparableFilter convolves every channel with the kernel along x, then y, then z.
func SeparableFilter(in *Volume, kernel Kernel1D, border BorderPad) (*Volume, error) {
	if len(kernel.Weights) != 2*kernel.HalfWidth+1 {
		return nil, errors.Errorf("kernel of length %d does not match half width %d", len(kernel.Weights), kernel.HalfWidth)
	}
	if kernel.IsIdentity() {
		return in.Clone(), nil
	}
	out := in
	for axis := 0; axis < 3; axis++ {
		out = filterAxis(out, kernel, axis, border)
	}
	return out, nil
}

// GaussianFilter blurs the volume with an isotropic Gaussian of the given sigma.
func GaussianFilter(in *Volume, sigma float64, border BorderPad) (*Volume, error) {
	kernel, err := GaussianKernel1D(sigma)
	if err != nil {
		return nil, err
	}
	return SeparableFilter(in, kernel, border)
}

func filterAxis(in *Volume, kernel Kernel1D, axis int, border BorderPad) *Volume {
	out := New(in.nx, in.ny, in.nz, in.nc)
	var dx, dy, dz int
	switch axis {
	case 0:
		dx = 1
	case 1:
		dy = 1
	default:
		dz = 1
	}
	utils.ParallelForEachVoxel(in.nx, in.ny, in.nz, func(x, y, z int) {
		for c := 0; c < in.nc; c++ {
			acc := 0.
			for i, w := range kernel.Weights {
				off := i - kernel.HalfWidth
				acc += w * in.AtBorder(x+off*dx, y+off*dy, z+off*dz, c, border)
			}
			out.SetC(x, y, z, c, acc)
		}
	})
	return out
}
