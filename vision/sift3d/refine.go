package sift3d

import (
	"context"
	"math"

	"gonum.org/v1/gonum/mat"

	"go.viam.com/sift3d/utils"
)

// RefinementMethod selects how sub-voxel offsets are estimated.
type RefinementMethod string

const (
	// RefineParabolic fits an independent parabola along each axis.
	RefineParabolic RefinementMethod = "parabolic"
	// RefineNewton solves the 4x4 quadratic model of the DoG response, falling back to the
	// per-axis parabolas when the Hessian is singular.
	RefineNewton RefinementMethod = "newton"
)

const (
	maxRefineIters = 5
	// coordinates stay strictly inside the last interior voxel, so floor lands on n-3 at most.
	refineEdgeEps = 1e-6
)

// parabolaVertex returns the offset of the vertex of the parabola through (-1, fm), (0, f0),
// (1, fp), or 0 if the samples are collinear.
func parabolaVertex(fm, f0, fp float64) float64 {
	den := fm - 2*f0 + fp
	if den == 0 {
		return 0
	}
	return 0.5 * (fm - fp) / den
}

// dogSampler reads the DoG levels around a candidate at a fixed octave.
type dogSampler struct {
	dog *Pyramid
	o   int
}

func (ds dogSampler) at(s, x, y, z int) float64 {
	return ds.dog.Level(ds.o, s).At(x, y, z)
}

func (ds dogSampler) parabolicOffsets(s, x, y, z int) [4]float64 {
	f0 := ds.at(s, x, y, z)
	return [4]float64{
		parabolaVertex(ds.at(s, x-1, y, z), f0, ds.at(s, x+1, y, z)),
		parabolaVertex(ds.at(s, x, y-1, z), f0, ds.at(s, x, y+1, z)),
		parabolaVertex(ds.at(s, x, y, z-1), f0, ds.at(s, x, y, z+1)),
		parabolaVertex(ds.at(s-1, x, y, z), f0, ds.at(s+1, x, y, z)),
	}
}

// newtonOffsets solves H d = -g on the (x, y, z, s) quadratic model. ok is false when the system
// is singular.
func (ds dogSampler) newtonOffsets(s, x, y, z int) ([4]float64, bool) {
	cur := ds.dog.Level(ds.o, s)
	prev := ds.dog.Level(ds.o, s-1)
	next := ds.dog.Level(ds.o, s+1)

	spatialGrad := cur.Gradient(x, y, z)
	grad := mat.NewVecDense(4, []float64{
		-spatialGrad.X,
		-spatialGrad.Y,
		-spatialGrad.Z,
		-0.5 * (next.At(x, y, z) - prev.At(x, y, z)),
	})

	spatialHess := cur.Hessian(x, y, z)
	hess := mat.NewDense(4, 4, nil)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			hess.Set(i, j, spatialHess[i][j])
		}
	}
	crossScale := func(dx, dy, dz int) float64 {
		return 0.25 * (next.At(x+dx, y+dy, z+dz) - next.At(x-dx, y-dy, z-dz) -
			prev.At(x+dx, y+dy, z+dz) + prev.At(x-dx, y-dy, z-dz))
	}
	for i, off := range []offset3{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}} {
		v := crossScale(off.dx, off.dy, off.dz)
		hess.Set(i, 3, v)
		hess.Set(3, i, v)
	}
	hess.Set(3, 3, next.At(x, y, z)-2*cur.At(x, y, z)+prev.At(x, y, z))

	var delta mat.VecDense
	if err := delta.SolveVec(hess, grad); err != nil {
		return [4]float64{}, false
	}
	ret := [4]float64{delta.AtVec(0), delta.AtVec(1), delta.AtVec(2), delta.AtVec(3)}
	for _, v := range ret {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return [4]float64{}, false
		}
	}
	return ret, true
}

// refineKeypoint moves a candidate to the optimum of its local quadratic model, iterating while the
// containing voxel changes. Candidates are never rejected.
func refineKeypoint(dog *Pyramid, kp *Keypoint, method RefinementMethod) {
	ds := dogSampler{dog, kp.O}
	nx, ny, nz := dog.Level(kp.O, kp.S).Dims()
	minS, maxS := dog.FirstLevel+1, dog.LastLevel()-1

	x, y, z, s := kp.X, kp.Y, kp.Z, kp.S
	var xd, yd, zd, sCont float64
	// Each offset is measured from the center of the current voxel, so the continuous position is
	// recomputed from that center instead of accumulated across iterations.
	for iter := 0; iter < maxRefineIters; iter++ {
		var offsets [4]float64
		ok := false
		if method == RefineNewton {
			offsets, ok = ds.newtonOffsets(s, x, y, z)
		}
		if !ok {
			offsets = ds.parabolicOffsets(s, x, y, z)
		}

		xd = utils.Clamp(float64(x)+0.5+offsets[0], 1, float64(nx-2)-refineEdgeEps)
		yd = utils.Clamp(float64(y)+0.5+offsets[1], 1, float64(ny-2)-refineEdgeEps)
		zd = utils.Clamp(float64(z)+0.5+offsets[2], 1, float64(nz-2)-refineEdgeEps)
		sCont = utils.Clamp(float64(s)+offsets[3], float64(s-1), float64(s+1))

		newX, newY, newZ := int(math.Floor(xd)), int(math.Floor(yd)), int(math.Floor(zd))
		newS := utils.ClampInt(int(math.Round(sCont)), minS, maxS)
		if newX == x && newY == y && newZ == z && newS == s {
			break
		}
		x, y, z, s = newX, newY, newZ, newS
	}

	kp.X, kp.Y, kp.Z, kp.S = x, y, z, s
	kp.Xd, kp.Yd, kp.Zd = xd, yd, zd
	kp.Sd = dog.Scale(kp.O, sCont)
	kp.SdRel = kp.Sd * math.Pow(2, -float64(kp.O))
}

// refineKeypoints refines every keypoint in place, in parallel.
func refineKeypoints(ctx context.Context, dog *Pyramid, kps []Keypoint, method RefinementMethod) error {
	return utils.GroupWorkParallel(ctx, len(kps), func(groupNum, groupSize, from, to int) (utils.MemberWorkFunc, utils.GroupWorkDoneFunc) {
		return func(memberNum, workNum int) {
			refineKeypoint(dog, &kps[workNum], method)
		}, nil
	})
}
