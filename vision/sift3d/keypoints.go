// Package sift3d implements scale and rotation invariant keypoint detection, description and
// matching for volumetric images: Gaussian and difference-of-Gaussians pyramids, extrema
// detection, sub-voxel refinement, structure-tensor orientation, icosahedral gradient histograms
// and nearest-neighbour matching.
package sift3d

import (
	"math"

	"go.viam.com/sift3d/spatialmath"
)

// Keypoint is a scale-space extremum. X, Y, Z are voxel indices in the octave O at detection time
// and Xd, Yd, Zd the refined continuous coordinates in the same octave, with voxel i covering
// [i, i+1). Sd is the absolute scale and SdRel the scale relative to the octave. R holds the local
// frame as columns.
type Keypoint struct {
	O, S    int
	X, Y, Z int

	Xd, Yd, Zd float64
	Sd, SdRel  float64

	R spatialmath.Rotation
}

// BaseCoords returns the refined coordinates in voxel units of the input volume.
func (kp *Keypoint) BaseCoords() (float64, float64, float64) {
	f := math.Pow(2, float64(kp.O))
	return kp.Xd * f, kp.Yd * f, kp.Zd * f
}

// KeypointStore is an ordered set of keypoints along with the extent of the grid they were
// detected on.
type KeypointStore struct {
	Keypoints  []Keypoint
	Nx, Ny, Nz int
}

// Len returns the number of keypoints.
func (ks *KeypointStore) Len() int {
	return len(ks.Keypoints)
}

// Copy deep-copies the store.
func (ks *KeypointStore) Copy() *KeypointStore {
	return &KeypointStore{
		Keypoints: append([]Keypoint(nil), ks.Keypoints...),
		Nx:        ks.Nx,
		Ny:        ks.Ny,
		Nz:        ks.Nz,
	}
}
