package sift3d

import (
	"context"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"go.viam.com/sift3d/spatialmath"
	"go.viam.com/sift3d/volume"
)

var anisotropicSigma = r3.Vector{X: 2.6, Y: 3.0, Z: 3.5}

// quarterZ maps displacements the way rotateQuarterZ maps voxels.
var quarterZ = spatialmath.Rotation{{0, -1, 0}, {1, 0, 0}, {0, 0, 1}}

func TestSphereWindow(t *testing.T) {
	vol := volume.New(10, 10, 10, 1)
	count := 0
	sphereWindow(vol, r3.Vector{X: 5, Y: 5, Z: 5}, 1, func(x, y, z int, disp r3.Vector, sqDist float64) {
		test.That(t, sqDist, test.ShouldBeLessThanOrEqualTo, 1)
		test.That(t, disp.X, test.ShouldAlmostEqual, float64(x)+0.5-5)
		count++
	})
	// the 8 voxels around the shared corner
	test.That(t, count, test.ShouldEqual, 8)

	// clipped to voxels with a full neighbourhood
	sphereWindow(vol, r3.Vector{X: 0.5, Y: 0.5, Z: 0.5}, 3, func(x, y, z int, _ r3.Vector, _ float64) {
		test.That(t, x, test.ShouldBeGreaterThanOrEqualTo, 1)
		test.That(t, y, test.ShouldBeGreaterThanOrEqualTo, 1)
		test.That(t, z, test.ShouldBeGreaterThanOrEqualTo, 1)
	})
}

func TestAssignEigOrientation(t *testing.T) {
	const n = 31
	vol := blobVolume(n, 15, anisotropicSigma, 1e-3)
	center := r3.Vector{X: 15.5, Y: 15.5, Z: 15.5}

	rot, state, err := assignEigOrientation(vol, center, 3, 0, SignWindowGradient)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, state, test.ShouldEqual, orientationAccepted)
	test.That(t, rot.IsOrthonormal(1e-5), test.ShouldBeTrue)
	test.That(t, rot.Det(), test.ShouldAlmostEqual, 1, 1e-5)

	// the strongest axis is x, the narrowest extent of the blob
	test.That(t, rot.Col(0).X, test.ShouldAlmostEqual, 1, 1e-3)
	test.That(t, rot.Col(1).Y, test.ShouldAlmostEqual, 1, 1e-3)

	t.Run("deterministic", func(t *testing.T) {
		again, state, err := assignEigOrientation(vol, center, 3, 0, SignWindowGradient)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, state, test.ShouldEqual, orientationAccepted)
		test.That(t, again, test.ShouldResemble, rot)
	})

	t.Run("rotation equivariant", func(t *testing.T) {
		rotated := rotateQuarterZ(vol)
		rot2, state, err := assignEigOrientation(rotated, r3.Vector{X: n - center.Y, Y: center.X, Z: center.Z}, 3, 0, SignWindowGradient)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, state, test.ShouldEqual, orientationAccepted)
		test.That(t, rot2.AlmostEqual(quarterZ.Compose(rot), 1e-7), test.ShouldBeTrue)
	})

	t.Run("corner threshold", func(t *testing.T) {
		// the window gradient is a poor match for every eigenvector
		_, state, err := assignEigOrientation(vol, center, 3, 0.9, SignWindowGradient)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, state, test.ShouldEqual, orientationRejected)
	})

	t.Run("last sample", func(t *testing.T) {
		rot, state, err := assignEigOrientation(vol, center, 3, 0, SignLastSample)
		test.That(t, err, test.ShouldBeNil)
		if state == orientationAccepted {
			test.That(t, rot.Det(), test.ShouldAlmostEqual, 1, 1e-5)
		}
	})
}

func TestAssignEigOrientationRejects(t *testing.T) {
	t.Run("flat", func(t *testing.T) {
		vol := makeVolume(16, func(x, y, z float64) float64 { return 1 })
		_, state, err := assignEigOrientation(vol, r3.Vector{X: 8, Y: 8, Z: 8}, 2, 0, SignWindowGradient)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, state, test.ShouldEqual, orientationRejected)
	})

	t.Run("isotropic", func(t *testing.T) {
		vol := blobVolume(21, 10, r3.Vector{X: 3, Y: 3, Z: 3}, 1e-3)
		_, state, err := assignEigOrientation(vol, r3.Vector{X: 10.5, Y: 10.5, Z: 10.5}, 3, 0, SignWindowGradient)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, state, test.ShouldEqual, orientationRejected)
	})
}

func TestAssignOrientationsCompacts(t *testing.T) {
	const n = 31
	blob := blobVolume(n, 15, anisotropicSigma, 1e-3)
	flat := makeVolume(n, func(x, y, z float64) float64 { return 0.5 })
	gss := newPyramid(0, 1, -1, 4, 1, 1.6, 1.15)
	for s := gss.FirstLevel; s <= gss.LastLevel(); s++ {
		if s == 1 {
			gss.setLevel(0, s, flat)
			continue
		}
		gss.setLevel(0, s, blob)
	}
	at := func(s int, sd float64) Keypoint {
		return Keypoint{O: 0, S: s, X: 15, Y: 15, Z: 15, Xd: 15.5, Yd: 15.5, Zd: 15.5, Sd: sd, SdRel: 2}
	}
	kps := []Keypoint{at(0, 5), at(1, 6), at(0, 7), at(1, 8)}
	out, err := assignOrientations(context.Background(), gss, kps, 0, SignWindowGradient)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldHaveLength, 2)
	test.That(t, out[0].Sd, test.ShouldEqual, 5)
	test.That(t, out[1].Sd, test.ShouldEqual, 7)
	test.That(t, out[0].R.IsOrthonormal(1e-5), test.ShouldBeTrue)
	test.That(t, out[1].R, test.ShouldResemble, out[0].R)
}
