package sift3d

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"go.viam.com/sift3d/logging"
	"go.viam.com/sift3d/volume"
)

// makeVolume fills an n x n x n single-channel volume from voxel indices.
func makeVolume(n int, f func(x, y, z float64) float64) *volume.Volume {
	vol := volume.New(n, n, n, 1)
	for z := 0; z < n; z++ {
		for y := 0; y < n; y++ {
			for x := 0; x < n; x++ {
				vol.Set(x, y, z, f(float64(x), float64(y), float64(z)))
			}
		}
	}
	return vol
}

// blobVolume is an axis-aligned Gaussian blob centered on voxel c plus a small linear ramp.
func blobVolume(n int, c float64, sigma r3.Vector, ramp float64) *volume.Volume {
	return makeVolume(n, func(x, y, z float64) float64 {
		dx, dy, dz := x-c, y-c, z-c
		g := math.Exp(-(dx*dx/(2*sigma.X*sigma.X) + dy*dy/(2*sigma.Y*sigma.Y) + dz*dz/(2*sigma.Z*sigma.Z)))
		return g + ramp*(x+2*y+3*z)
	})
}

// rotateQuarterZ turns the volume a quarter turn about z: out(n-1-y, x, z) = in(x, y, z).
func rotateQuarterZ(in *volume.Volume) *volume.Volume {
	n, _, _ := in.Dims()
	out := volume.New(n, n, n, 1)
	for z := 0; z < n; z++ {
		for y := 0; y < n; y++ {
			for x := 0; x < n; x++ {
				out.Set(n-1-y, x, z, in.At(x, y, z))
			}
		}
	}
	return out
}

func newTestDetector(t *testing.T, cfg Config) *Detector {
	t.Helper()
	d, err := NewDetector(cfg, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	return d
}

// nearestKeypoint returns the index of the keypoint closest to p, in base voxel units.
func nearestKeypoint(kps *KeypointStore, p r3.Vector) int {
	best, bestDist := -1, math.Inf(1)
	for i := range kps.Keypoints {
		x, y, z := kps.Keypoints[i].BaseCoords()
		if dist := p.Distance(r3.Vector{X: x, Y: y, Z: z}); dist < bestDist {
			best, bestDist = i, dist
		}
	}
	return best
}
