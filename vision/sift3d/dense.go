package sift3d

import (
	"context"
	"sync"

	"github.com/golang/geo/r3"
	"go.uber.org/multierr"

	"go.viam.com/sift3d/spatialmath"
	"go.viam.com/sift3d/utils"
	"go.viam.com/sift3d/volume"
)

// DenseDescriptors is a volume with one icosahedral histogram per voxel, stored as its channels.
type DenseDescriptors struct {
	*volume.Volume
}

// HistNumel returns the length of each voxel's histogram.
func (dd *DenseDescriptors) HistNumel() int {
	return dd.Channels()
}

// denseSigma is the spatial scale of a dense histogram.
func denseSigma(sigma0 float64) float64 {
	return sigma0 * descSigFctr / NHistPerDim
}

// extractDenseUnrotated splats every interior gradient into its own voxel in the global frame and
// then blurs the histogram channels spatially.
func extractDenseUnrotated(smoothed *volume.Volume, binner icosahedralBinner, sigma0 float64, border volume.BorderPad) (*volume.Volume, error) {
	nx, ny, nz := smoothed.Dims()
	hists := volume.New(nx, ny, nz, binner.NumBins())
	utils.ParallelForEachVoxel(nx, ny, nz, func(x, y, z int) {
		if x < 1 || y < 1 || z < 1 || x > nx-2 || y > ny-2 || z > nz-2 {
			return
		}
		splat, ok := binner.Splat(smoothed.Gradient(x, y, z))
		if !ok {
			return
		}
		splat.addTo(hists.Voxel(x, y, z), 1)
	})
	return volume.GaussianFilter(hists, denseSigma(sigma0), border)
}

// extractDenseRotated orients every voxel independently, falling back to the identity frame when
// the orientation is rejected, and accumulates one histogram over a sphere in that frame.
func extractDenseRotated(
	ctx context.Context,
	smoothed *volume.Volume,
	binner icosahedralBinner,
	sigma0, cornerThresh float64,
	sign OrientationSign,
) (*volume.Volume, error) {
	nx, ny, nz := smoothed.Dims()
	hists := volume.New(nx, ny, nz, binner.NumBins())
	oriSigma := sigma0 * oriSigFctr
	sigma := denseSigma(sigma0)
	radius := descRadFctr * sigma

	var errMu sync.Mutex
	var errs error
	utils.ParallelForEachVoxel(nx, ny, nz, func(x, y, z int) {
		if ctx.Err() != nil {
			return
		}
		center := r3.Vector{X: float64(x) + 0.5, Y: float64(y) + 0.5, Z: float64(z) + 0.5}
		rot, state, err := assignEigOrientation(smoothed, center, oriSigma, cornerThresh, sign)
		if err != nil {
			errMu.Lock()
			errs = multierr.Append(errs, err)
			errMu.Unlock()
			return
		}
		if state != orientationAccepted {
			rot = spatialmath.IdentityRotation()
		}
		hist := hists.Voxel(x, y, z)
		sphereWindow(smoothed, center, radius, func(x2, y2, z2 int, _ r3.Vector, sqDist float64) {
			splat, ok := binner.Splat(rot.MulTranspose(smoothed.Gradient(x2, y2, z2)))
			if !ok {
				return
			}
			splat.addTo(hist, expWeight(sqDist, sigma))
		})
	})
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if errs != nil {
		return nil, errs
	}
	return hists, nil
}

// finishDense normalizes and clips every voxel's histogram, then scales it by the input
// intensity at that voxel.
func finishDense(hists, in *volume.Volume) {
	nx, ny, nz := hists.Dims()
	thresh := truncThresh(hists.Channels())
	utils.ParallelForEachVoxel(nx, ny, nz, func(x, y, z int) {
		hist := hists.Voxel(x, y, z)
		normalizeFeatures(hist)
		clipFeatures(hist, thresh)
		normalizeFeatures(hist)
		intensity := in.At(x, y, z)
		for i := range hist {
			hist[i] *= intensity
		}
	})
}
