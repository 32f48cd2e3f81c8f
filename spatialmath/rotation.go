package spatialmath

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// ErrMalformedMatrix is returned when a matrix of the wrong shape is converted to a Rotation.
var ErrMalformedMatrix = errors.New("malformed matrix")

// Rotation is a 3x3 matrix stored row-major. The columns of a keypoint rotation are its local
// x, y and z axes expressed in volume coordinates.
type Rotation [3][3]float64

// IdentityRotation returns the identity matrix.
func IdentityRotation() Rotation {
	return Rotation{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
}

// RotationFromColumns builds a rotation whose columns are the given vectors.
func RotationFromColumns(c0, c1, c2 r3.Vector) Rotation {
	var r Rotation
	r.SetCol(0, c0)
	r.SetCol(1, c1)
	r.SetCol(2, c2)
	return r
}

// RotationFromDense converts a 3x3 gonum matrix.
func RotationFromDense(m mat.Matrix) (Rotation, error) {
	var r Rotation
	if rows, cols := m.Dims(); rows != 3 || cols != 3 {
		return r, errors.Wrapf(ErrMalformedMatrix, "expected 3x3, got %dx%d", rows, cols)
	}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			r[i][j] = m.At(i, j)
		}
	}
	return r, nil
}

// Dense returns the rotation as a gonum matrix.
func (r Rotation) Dense() *mat.Dense {
	return mat.NewDense(3, 3, r.Flat())
}

// Flat returns the nine entries in row-major order.
func (r Rotation) Flat() []float64 {
	return []float64{
		r[0][0], r[0][1], r[0][2],
		r[1][0], r[1][1], r[1][2],
		r[2][0], r[2][1], r[2][2],
	}
}

// Col returns column j.
func (r Rotation) Col(j int) r3.Vector {
	return r3.Vector{X: r[0][j], Y: r[1][j], Z: r[2][j]}
}

// SetCol sets column j.
func (r *Rotation) SetCol(j int, v r3.Vector) {
	r[0][j] = v.X
	r[1][j] = v.Y
	r[2][j] = v.Z
}

// Mul returns R*v.
func (r Rotation) Mul(v r3.Vector) r3.Vector {
	return r3.Vector{
		X: r[0][0]*v.X + r[0][1]*v.Y + r[0][2]*v.Z,
		Y: r[1][0]*v.X + r[1][1]*v.Y + r[1][2]*v.Z,
		Z: r[2][0]*v.X + r[2][1]*v.Y + r[2][2]*v.Z,
	}
}

// MulTranspose returns R^T*v, the coordinates of v along each column of R.
func (r Rotation) MulTranspose(v r3.Vector) r3.Vector {
	return r3.Vector{
		X: r[0][0]*v.X + r[1][0]*v.Y + r[2][0]*v.Z,
		Y: r[0][1]*v.X + r[1][1]*v.Y + r[2][1]*v.Z,
		Z: r[0][2]*v.X + r[1][2]*v.Y + r[2][2]*v.Z,
	}
}

// Compose returns R*other.
func (r Rotation) Compose(other Rotation) Rotation {
	var ret Rotation
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			for k := 0; k < 3; k++ {
				ret[i][j] += r[i][k] * other[k][j]
			}
		}
	}
	return ret
}

// Transpose returns R^T.
func (r Rotation) Transpose() Rotation {
	var ret Rotation
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			ret[i][j] = r[j][i]
		}
	}
	return ret
}

// Det returns the determinant.
func (r Rotation) Det() float64 {
	return r.Col(0).Dot(r.Col(1).Cross(r.Col(2)))
}

// IsOrthonormal reports whether R^T*R is the identity to within tol.
func (r Rotation) IsOrthonormal(tol float64) bool {
	rtr := r.Transpose().Compose(r)
	id := IdentityRotation()
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			if math.Abs(rtr[i][j]-id[i][j]) > tol {
				return false
			}
		}
	}
	return true
}

// AlmostEqual compares two rotations entry by entry.
func (r Rotation) AlmostEqual(other Rotation, tol float64) bool {
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			if math.Abs(r[i][j]-other[i][j]) > tol {
				return false
			}
		}
	}
	return true
}
