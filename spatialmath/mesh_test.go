package spatialmath

import (
	"math"
	"math/rand"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
)

func TestIcosahedron(t *testing.T) {
	mesh := NewIcosahedron()
	test.That(t, mesh.Vertices(), test.ShouldHaveLength, IcosahedronVertices)
	test.That(t, mesh.Triangles(), test.ShouldHaveLength, IcosahedronFaces)

	t.Run("unit vertices", func(t *testing.T) {
		for _, v := range mesh.Vertices() {
			test.That(t, v.Norm(), test.ShouldAlmostEqual, 1.0, 1e-12)
		}
	})

	t.Run("outward normals", func(t *testing.T) {
		for _, tri := range mesh.Triangles() {
			test.That(t, tri.Normal().Dot(tri.Centroid()), test.ShouldBeGreaterThan, 0)
			for i, idx := range tri.Indices() {
				test.That(t, tri.Points()[i], test.ShouldResemble, mesh.Vertices()[idx])
			}
		}
	})

	t.Run("equal edges", func(t *testing.T) {
		lengths := mesh.EdgeLengths()
		for _, l := range lengths {
			test.That(t, l, test.ShouldAlmostEqual, lengths[0], 1e-10)
		}
	})

	t.Run("every vertex used by five faces", func(t *testing.T) {
		counts := make([]int, IcosahedronVertices)
		for _, tri := range mesh.Triangles() {
			for _, idx := range tri.Indices() {
				counts[idx]++
			}
		}
		for _, c := range counts {
			test.That(t, c, test.ShouldEqual, 5)
		}
	})
}

func TestCart2Bary(t *testing.T) {
	mesh := NewIcosahedron()
	eps := BaryEpsilon
	tri := mesh.Triangles()[0]

	// the centroid direction hits its own face at equal weights
	bary, k, err := tri.Cart2Bary(tri.Centroid().Normalize(), eps)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, bary.X, test.ShouldAlmostEqual, 1./3., 1e-9)
	test.That(t, bary.Y, test.ShouldAlmostEqual, 1./3., 1e-9)
	test.That(t, bary.Z, test.ShouldAlmostEqual, 1./3., 1e-9)
	test.That(t, k, test.ShouldAlmostEqual, tri.Centroid().Norm(), 1e-9)

	// a direction parallel to the face plane is degenerate
	pts := tri.Points()
	_, _, err = tri.Cart2Bary(pts[1].Sub(pts[0]), eps)
	test.That(t, err, test.ShouldBeError, ErrDegenerateDirection)
}

func TestBin(t *testing.T) {
	mesh := NewIcosahedron()
	eps := BaryEpsilon
	//nolint:gosec
	rng := rand.New(rand.NewSource(12))

	for i := 0; i < 1000; i++ {
		dir := r3.Vector{X: rng.NormFloat64(), Y: rng.NormFloat64(), Z: rng.NormFloat64()}.Normalize()
		face, bary, err := mesh.Bin(dir, eps)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, bary.X+bary.Y+bary.Z, test.ShouldAlmostEqual, 1.0, 1e-9)

		// the weights reconstruct the ray hit point
		tri := mesh.Triangles()[face]
		_, k, err := tri.Cart2Bary(dir, eps)
		test.That(t, err, test.ShouldBeNil)
		hit := tri.Bary2Cart(bary)
		test.That(t, hit.Sub(dir.Mul(k)).Norm(), test.ShouldBeLessThan, 1e-9)

		// at most a boundary tie can make a second face accept the direction
		hits := 0
		for _, other := range mesh.Triangles() {
			b, kk, err := other.Cart2Bary(dir, eps)
			if err == nil && kk >= 0 && math.Min(b.X, math.Min(b.Y, b.Z)) >= 1e-6 {
				hits++
			}
		}
		test.That(t, hits, test.ShouldBeLessThanOrEqualTo, 1)
	}

	_, _, err := mesh.Bin(r3.Vector{}, eps)
	test.That(t, err, test.ShouldBeError, ErrDegenerateDirection)
}
