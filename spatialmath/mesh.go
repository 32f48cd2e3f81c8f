package spatialmath

import (
	"math"

	"github.com/golang/geo/r3"
)

// GoldenRatio is the ratio used to place the icosahedron vertices.
const GoldenRatio = 1.6180339887

// IcosahedronVertices and IcosahedronFaces are the sizes of the regular icosahedron mesh.
const (
	IcosahedronVertices = 12
	IcosahedronFaces    = 20
)

var icosahedronFaceIndices = [IcosahedronFaces][3]int{
	{0, 1, 8}, {0, 8, 4}, {0, 4, 5}, {0, 5, 9}, {0, 9, 1},
	{1, 6, 8}, {8, 6, 10}, {8, 10, 4}, {4, 10, 2}, {4, 2, 5},
	{5, 2, 11}, {5, 11, 9}, {9, 11, 7}, {9, 7, 1}, {1, 7, 6},
	{3, 6, 7}, {3, 7, 11}, {3, 11, 2}, {3, 2, 10}, {3, 10, 6},
}

// Mesh is a closed triangle mesh around the origin.
type Mesh struct {
	vertices  []r3.Vector
	triangles []*Triangle
}

// NewMesh returns a mesh made of the given vertices and faces, where each face lists three
// vertex indices.
func NewMesh(vertices []r3.Vector, faces [][3]int) *Mesh {
	triangles := make([]*Triangle, 0, len(faces))
	for _, f := range faces {
		triangles = append(triangles, NewTriangle(vertices[f[0]], vertices[f[1]], vertices[f[2]], f))
	}
	return &Mesh{vertices: vertices, triangles: triangles}
}

// NewIcosahedron returns a regular icosahedron centered at the origin with unit-length vertices
// and outward-facing normals.
func NewIcosahedron() *Mesh {
	gr := GoldenRatio
	raw := []r3.Vector{
		{X: 0, Y: 1, Z: gr}, {X: 0, Y: -1, Z: gr}, {X: 0, Y: 1, Z: -gr}, {X: 0, Y: -1, Z: -gr},
		{X: 1, Y: gr, Z: 0}, {X: -1, Y: gr, Z: 0}, {X: 1, Y: -gr, Z: 0}, {X: -1, Y: -gr, Z: 0},
		{X: gr, Y: 0, Z: 1}, {X: -gr, Y: 0, Z: 1}, {X: gr, Y: 0, Z: -1}, {X: -gr, Y: 0, Z: -1},
	}
	vertices := make([]r3.Vector, 0, len(raw))
	for _, v := range raw {
		vertices = append(vertices, v.Normalize())
	}
	faces := make([][3]int, 0, IcosahedronFaces)
	for _, f := range icosahedronFaceIndices {
		faces = append(faces, f)
	}
	return NewMesh(vertices, faces)
}

// Vertices returns the mesh vertices.
func (m *Mesh) Vertices() []r3.Vector {
	return m.vertices
}

// NumFaces returns the number of faces.
func (m *Mesh) NumFaces() int {
	return len(m.triangles)
}

// Triangles returns the faces of the mesh.
func (m *Mesh) Triangles() []*Triangle {
	return m.triangles
}

// Bin finds the face hit by the ray from the origin in direction dir. It returns the face index
// and the barycentric weights of the hit. A face is accepted when every weight is at least -eps
// and the ray parameter is non-negative; the first such face wins. Zero-length directions and
// directions that miss every face fail with ErrDegenerateDirection.
func (m *Mesh) Bin(dir r3.Vector, eps float64) (int, r3.Vector, error) {
	if dir.Norm2() < eps {
		return -1, r3.Vector{}, ErrDegenerateDirection
	}
	for i, tri := range m.triangles {
		bary, k, err := tri.Cart2Bary(dir, eps)
		if err != nil {
			continue
		}
		if bary.X < -eps || bary.Y < -eps || bary.Z < -eps || k < 0 {
			continue
		}
		return i, bary, nil
	}
	return -1, r3.Vector{}, ErrDegenerateDirection
}

// EdgeLengths returns the length of every face edge, three per face.
func (m *Mesh) EdgeLengths() []float64 {
	ret := make([]float64, 0, 3*len(m.triangles))
	for _, tri := range m.triangles {
		pts := tri.Points()
		for i := range pts {
			ret = append(ret, pts[i].Sub(pts[(i+1)%3]).Norm())
		}
	}
	return ret
}

// BaryEpsilon is the tolerance used for barycentric binning: ten times the float32 machine epsilon.
var BaryEpsilon = 10 * float64(math.Nextafter32(1, 2)-1)
