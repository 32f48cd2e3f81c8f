package sift3d

import (
	"context"

	"go.viam.com/sift3d/utils"
	"go.viam.com/sift3d/volume"
)

type offset3 struct {
	dx, dy, dz int
}

var faceOffsets = []offset3{
	{-1, 0, 0}, {1, 0, 0},
	{0, -1, 0}, {0, 1, 0},
	{0, 0, -1}, {0, 0, 1},
}

var cuboidOffsets = func() []offset3 {
	ret := make([]offset3, 0, 26)
	for dz := -1; dz <= 1; dz++ {
		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				if dx == 0 && dy == 0 && dz == 0 {
					continue
				}
				ret = append(ret, offset3{dx, dy, dz})
			}
		}
	}
	return ret
}()

// extremumTest reports whether the center value is strictly above or strictly below every
// neighbour in the current level and the level above and below. The voxel itself is compared in
// the adjacent levels only.
type extremumTest struct {
	neighbors []offset3
}

func newExtremumTest(neighborhood ExtremaNeighborhood) extremumTest {
	if neighborhood == NeighborhoodCuboid {
		return extremumTest{cuboidOffsets}
	}
	return extremumTest{faceOffsets}
}

func (et extremumTest) isExtremum(prev, cur, next *volume.Volume, x, y, z int) bool {
	center := cur.At(x, y, z)
	isMax, isMin := true, true
	check := func(v float64) {
		if v >= center {
			isMax = false
		}
		if v <= center {
			isMin = false
		}
	}
	check(prev.At(x, y, z))
	check(next.At(x, y, z))
	for _, off := range et.neighbors {
		x2, y2, z2 := x+off.dx, y+off.dy, z+off.dz
		check(prev.At(x2, y2, z2))
		check(cur.At(x2, y2, z2))
		check(next.At(x2, y2, z2))
		if !isMax && !isMin {
			return false
		}
	}
	return isMax || isMin
}

// detectExtrema scans the interior levels of every DoG octave for voxels whose magnitude exceeds
// peakThresh times the level's largest magnitude and that are strict local extrema. Keypoints are
// returned in octave, level, z, y, x order.
func detectExtrema(ctx context.Context, dog *Pyramid, peakThresh float64, et extremumTest) ([]Keypoint, error) {
	if dog.NumLevels < 3 {
		return nil, ErrTooFewLevels
	}
	var kps []Keypoint
	for o := dog.FirstOctave; o <= dog.LastOctave(); o++ {
		for s := dog.FirstLevel + 1; s < dog.LastLevel(); s++ {
			found, err := detectLevelExtrema(ctx, dog, o, s, peakThresh, et)
			if err != nil {
				return nil, err
			}
			kps = append(kps, found...)
		}
	}
	return kps, nil
}

func detectLevelExtrema(ctx context.Context, dog *Pyramid, o, s int, peakThresh float64, et extremumTest) ([]Keypoint, error) {
	prev, cur, next := dog.Level(o, s-1), dog.Level(o, s), dog.Level(o, s+1)
	nx, ny, nz := cur.Dims()
	if nx < 3 || ny < 3 || nz < 3 {
		return nil, nil
	}
	thresh := peakThresh * cur.MaxAbs()

	// z slabs are scanned by groups and merged in group order to keep the scan order.
	interiorZ := nz - 2
	perGroup := make([][]Keypoint, utils.NumGroups(interiorZ))
	err := utils.GroupWorkParallel(ctx, interiorZ, func(groupNum, groupSize, from, to int) (utils.MemberWorkFunc, utils.GroupWorkDoneFunc) {
		var found []Keypoint
		return func(memberNum, workNum int) {
				z := workNum + 1
				for y := 1; y < ny-1; y++ {
					for x := 1; x < nx-1; x++ {
						val := cur.At(x, y, z)
						if val <= thresh && val >= -thresh {
							continue
						}
						if !et.isExtremum(prev, cur, next, x, y, z) {
							continue
						}
						found = append(found, Keypoint{O: o, S: s, X: x, Y: y, Z: z})
					}
				}
			}, func() {
				perGroup[groupNum] = found
			}
	})
	if err != nil {
		return nil, err
	}
	var ret []Keypoint
	for _, found := range perGroup {
		ret = append(ret, found...)
	}
	return ret, nil
}
