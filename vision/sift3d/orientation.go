package sift3d

import (
	"context"
	"math"
	"sort"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/sift3d/spatialmath"
	"go.viam.com/sift3d/utils"
	"go.viam.com/sift3d/volume"
)

const (
	oriSigFctr = 1.5
	oriRadFctr = 3.0
	// minimum squared norm of the summed window gradient.
	oriGradThresh = 1e-10
	maxEigRatio   = 0.90
)

// orientationState is the outcome of assigning an orientation to one keypoint.
type orientationState int

const (
	orientationAccepted orientationState = iota
	orientationRejected
	orientationError
)

// sphereWindow visits the voxels whose centers lie within radius of center, restricted to the
// voxels that have a full central-difference neighbourhood. f receives the voxel indices and the
// displacement of the voxel center from center.
func sphereWindow(v *volume.Volume, center r3.Vector, radius float64, f func(x, y, z int, disp r3.Vector, sqDist float64)) {
	nx, ny, nz := v.Dims()
	bounds := func(c float64, n int) (int, int) {
		first := int(math.Max(math.Ceil(c-radius-0.5), 1))
		last := int(math.Min(math.Floor(c+radius-0.5), float64(n-2)))
		return first, last
	}
	x0, x1 := bounds(center.X, nx)
	y0, y1 := bounds(center.Y, ny)
	z0, z1 := bounds(center.Z, nz)
	sqRadius := radius * radius
	for z := z0; z <= z1; z++ {
		for y := y0; y <= y1; y++ {
			for x := x0; x <= x1; x++ {
				disp := r3.Vector{X: float64(x) + 0.5, Y: float64(y) + 0.5, Z: float64(z) + 0.5}.Sub(center)
				sqDist := disp.Norm2()
				if sqDist > sqRadius {
					continue
				}
				f(x, y, z, disp, sqDist)
			}
		}
	}
}

// assignEigOrientation computes a right-handed frame from the eigenvectors of the Gaussian
// weighted structure tensor around center. The frame is returned with orientationAccepted only.
func assignEigOrientation(
	im *volume.Volume,
	center r3.Vector,
	sigma, cornerThresh float64,
	sign OrientationSign,
) (spatialmath.Rotation, orientationState, error) {
	var tensor [3][3]float64
	var windowGrad, lastGrad r3.Vector
	sphereWindow(im, center, oriRadFctr*sigma, func(x, y, z int, _ r3.Vector, sqDist float64) {
		grad := im.Gradient(x, y, z)
		weight := expWeight(sqDist, sigma)
		g := [3]float64{grad.X, grad.Y, grad.Z}
		for i := 0; i < 3; i++ {
			for j := i; j < 3; j++ {
				tensor[i][j] += weight * g[i] * g[j]
			}
		}
		windowGrad = windowGrad.Add(grad)
		lastGrad = grad
	})

	if windowGrad.Norm2() < oriGradThresh {
		return spatialmath.Rotation{}, orientationRejected, nil
	}

	sym := mat.NewSymDense(3, []float64{
		tensor[0][0], tensor[0][1], tensor[0][2],
		tensor[0][1], tensor[1][1], tensor[1][2],
		tensor[0][2], tensor[1][2], tensor[2][2],
	})
	var eig mat.EigenSym
	if ok := eig.Factorize(sym, true); !ok {
		return spatialmath.Rotation{}, orientationError, errors.New("structure tensor eigendecomposition failed")
	}
	values := eig.Values(nil)
	if len(values) != 3 {
		return spatialmath.Rotation{}, orientationRejected, nil
	}
	var vectors mat.Dense
	eig.VectorsTo(&vectors)

	// order by ascending magnitude
	order := []int{0, 1, 2}
	sort.SliceStable(order, func(i, j int) bool {
		return math.Abs(values[order[i]]) < math.Abs(values[order[j]])
	})
	for i := 0; i < 2; i++ {
		next := values[order[i+1]]
		if next == 0 || math.Abs(values[order[i]]/next) > maxEigRatio {
			return spatialmath.Rotation{}, orientationRejected, nil
		}
	}

	ref := windowGrad
	if sign == SignLastSample {
		ref = lastGrad
	}
	refNorm := ref.Norm()
	if refNorm == 0 {
		return spatialmath.Rotation{}, orientationRejected, nil
	}

	var rot spatialmath.Rotation
	for col := 0; col < 2; col++ {
		idx := order[2-col]
		vec := r3.Vector{X: vectors.At(0, idx), Y: vectors.At(1, idx), Z: vectors.At(2, idx)}.Normalize()
		cos := vec.Dot(ref) / refNorm
		if math.Abs(cos) < cornerThresh {
			return spatialmath.Rotation{}, orientationRejected, nil
		}
		if cos < 0 {
			vec = vec.Mul(-1)
		}
		rot.SetCol(col, vec)
	}
	rot.SetCol(2, rot.Col(0).Cross(rot.Col(1)))
	return rot, orientationAccepted, nil
}

// assignOrientations orients every keypoint from its GSS level and returns the accepted keypoints
// in their original order.
func assignOrientations(
	ctx context.Context,
	gss *Pyramid,
	kps []Keypoint,
	cornerThresh float64,
	sign OrientationSign,
) ([]Keypoint, error) {
	states := make([]orientationState, len(kps))
	errs := make([]error, len(kps))
	err := utils.GroupWorkParallel(ctx, len(kps), func(groupNum, groupSize, from, to int) (utils.MemberWorkFunc, utils.GroupWorkDoneFunc) {
		return func(memberNum, workNum int) {
			kp := &kps[workNum]
			im := gss.Level(kp.O, kp.S)
			center := r3.Vector{X: kp.Xd, Y: kp.Yd, Z: kp.Zd}
			kp.R, states[workNum], errs[workNum] = assignEigOrientation(im, center, oriSigFctr*kp.SdRel, cornerThresh, sign)
		}, nil
	})
	if err != nil {
		return nil, err
	}
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return lo.Filter(kps, func(_ Keypoint, i int) bool {
		return states[i] == orientationAccepted
	}), nil
}
