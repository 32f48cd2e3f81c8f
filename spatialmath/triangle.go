// Package spatialmath defines the 3D geometry used by the descriptor stage: triangles, the
// icosahedral orientation mesh and rotation matrices.
package spatialmath

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

// ErrDegenerateDirection is returned when a direction cannot be converted to barycentric
// coordinates, either because it is (nearly) zero or because it is parallel to a face.
var ErrDegenerateDirection = errors.New("degenerate direction")

// Triangle is a face of a mesh. It stores its vertex positions, the indices of those vertices in
// the owning mesh and an outward-facing normal.
type Triangle struct {
	p0 r3.Vector
	p1 r3.Vector
	p2 r3.Vector

	idx    [3]int
	normal r3.Vector
}

// NewTriangle builds a triangle from three vertices and their mesh indices. The vertex order is
// swapped if needed so that the normal points away from the origin.
func NewTriangle(p0, p1, p2 r3.Vector, idx [3]int) *Triangle {
	normal := PlaneNormal(p0, p1, p2)
	if normal.Dot(p0) < 0 {
		p0, p1 = p1, p0
		idx[0], idx[1] = idx[1], idx[0]
		normal = PlaneNormal(p0, p1, p2)
	}
	return &Triangle{
		p0:     p0,
		p1:     p1,
		p2:     p2,
		idx:    idx,
		normal: normal,
	}
}

// PlaneNormal returns the (unnormalized) normal (p2-p1) x (p1-p0) of the plane through the points.
func PlaneNormal(p0, p1, p2 r3.Vector) r3.Vector {
	return p2.Sub(p1).Cross(p1.Sub(p0))
}

// Points returns the vertices of the triangle.
func (t *Triangle) Points() []r3.Vector {
	return []r3.Vector{t.p0, t.p1, t.p2}
}

// Indices returns the mesh indices of the vertices, in the same order as Points.
func (t *Triangle) Indices() [3]int {
	return t.idx
}

// Normal returns the outward normal of the triangle.
func (t *Triangle) Normal() r3.Vector {
	return t.normal
}

// Centroid returns the centroid of the triangle.
func (t *Triangle) Centroid() r3.Vector {
	return t.p0.Add(t.p1).Add(t.p2).Mul(1. / 3.)
}

// Cart2Bary intersects the ray from the origin through cart with the plane of the triangle. It
// returns the barycentric weights of the intersection point with respect to (p0, p1, p2) and the
// ray parameter k, such that k*cart is the intersection. Rays nearly parallel to the plane (as
// judged by eps) fail with ErrDegenerateDirection.
func (t *Triangle) Cart2Bary(cart r3.Vector, eps float64) (r3.Vector, float64, error) {
	e1 := t.p1.Sub(t.p0)
	e2 := t.p2.Sub(t.p0)
	p := cart.Cross(e2)
	det := e1.Dot(p)
	if det > -eps && det < eps {
		return r3.Vector{}, 0, ErrDegenerateDirection
	}
	invDet := 1 / det

	tvec := t.p0.Mul(-1)
	q := tvec.Cross(e1)

	var bary r3.Vector
	bary.Y = tvec.Dot(p) * invDet
	bary.Z = cart.Dot(q) * invDet
	bary.X = 1 - bary.Y - bary.Z
	k := e2.Dot(q) * invDet
	return bary, k, nil
}

// Bary2Cart returns the point with the given barycentric weights.
func (t *Triangle) Bary2Cart(bary r3.Vector) r3.Vector {
	return t.p0.Mul(bary.X).Add(t.p1.Mul(bary.Y)).Add(t.p2.Mul(bary.Z))
}
