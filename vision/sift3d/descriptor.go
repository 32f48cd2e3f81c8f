package sift3d

import (
	"context"
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/floats"

	"go.viam.com/sift3d/utils"
	"go.viam.com/sift3d/volume"
)

const (
	descSigFctr = 7.071067812 // 5 * sqrt(2)
	descRadFctr = 2.0
	// truncation per bin, scaled by the total descriptor length.
	truncBase = 0.2 * 128
)

// Descriptor is a normalized gradient histogram around a keypoint. X, Y, Z are in voxel units of
// the input volume and Sd is the keypoint's absolute scale.
type Descriptor struct {
	X, Y, Z  float64
	Sd       float64
	Features []float64
}

// Coords returns the descriptor location.
func (d *Descriptor) Coords() r3.Vector {
	return r3.Vector{X: d.X, Y: d.Y, Z: d.Z}
}

// DescriptorStore is an ordered set of descriptors sharing the extent of the volume they were
// extracted from. HistNumel is the length of each of the NumHists histograms.
type DescriptorStore struct {
	Descriptors []Descriptor
	Nx, Ny, Nz  int
	HistNumel   int
}

// Len returns the number of descriptors.
func (ds *DescriptorStore) Len() int {
	return len(ds.Descriptors)
}

// NumFeatures returns the length of every feature vector.
func (ds *DescriptorStore) NumFeatures() int {
	return NumHists * ds.HistNumel
}

// truncThresh is the clipping level of a normalized descriptor of the given length.
func truncThresh(numel int) float64 {
	return truncBase / float64(numel)
}

// normalizeFeatures scales v to unit L2 norm, leaving an all-zero vector unchanged.
func normalizeFeatures(v []float64) {
	norm := floats.Norm(v, 2)
	if norm == 0 {
		return
	}
	floats.Scale(1/norm, v)
}

// clipFeatures limits every entry of v to at most thresh.
func clipFeatures(v []float64, thresh float64) {
	for i, f := range v {
		v[i] = math.Min(f, thresh)
	}
}

// expWeight is the Gaussian window weight of a squared distance.
func expWeight(sqDist, sigma float64) float64 {
	return math.Exp(-0.5 * sqDist / (sigma * sigma))
}

// descriptorWindow holds the geometry of one keypoint's descriptor.
type descriptorWindow struct {
	sigma     float64
	radius    float64
	halfWidth float64
	binFctr   float64
}

func newDescriptorWindow(sdRel float64) descriptorWindow {
	sigma := sdRel * descSigFctr
	radius := descRadFctr * sigma
	width := radius / math.Sqrt2
	return descriptorWindow{
		sigma:     sigma,
		radius:    radius,
		halfWidth: width / 2,
		binFctr:   NHistPerDim / width,
	}
}

// accumulateSpatial adds a splat to the up to 8 histograms surrounding the fractional cell
// position, with trilinear weights.
func accumulateSpatial(features []float64, histNumel int, cell r3.Vector, splat *binSplat, weight float64) {
	cx, cy, cz := math.Floor(cell.X), math.Floor(cell.Y), math.Floor(cell.Z)
	fx, fy, fz := cell.X-cx, cell.Y-cy, cell.Z-cz
	lerpWeight := func(d int, f float64) float64 {
		if d == 0 {
			return 1 - f
		}
		return f
	}
	for dz := 0; dz < 2; dz++ {
		z := int(cz) + dz
		if z < 0 || z >= NHistPerDim {
			continue
		}
		for dy := 0; dy < 2; dy++ {
			y := int(cy) + dy
			if y < 0 || y >= NHistPerDim {
				continue
			}
			for dx := 0; dx < 2; dx++ {
				x := int(cx) + dx
				if x < 0 || x >= NHistPerDim {
					continue
				}
				w := weight * lerpWeight(dx, fx) * lerpWeight(dy, fy) * lerpWeight(dz, fz)
				hist := x + NHistPerDim*(y+NHistPerDim*z)
				splat.addTo(features[hist*histNumel:(hist+1)*histNumel], w)
			}
		}
	}
}

// extractDescriptor fills features with the descriptor of kp, computed on its GSS level. Offsets
// and gradients are expressed in the keypoint frame before binning.
func extractDescriptor(im *volume.Volume, kp *Keypoint, binner angularBinner, features []float64) {
	histNumel := binner.NumBins()
	win := newDescriptorWindow(kp.SdRel)
	center := r3.Vector{X: kp.Xd, Y: kp.Yd, Z: kp.Zd}

	sphereWindow(im, center, win.radius, func(x, y, z int, disp r3.Vector, sqDist float64) {
		local := kp.R.MulTranspose(disp)
		cell := r3.Vector{
			X: (local.X + win.halfWidth) * win.binFctr,
			Y: (local.Y + win.halfWidth) * win.binFctr,
			Z: (local.Z + win.halfWidth) * win.binFctr,
		}
		if cell.X < 0 || cell.Y < 0 || cell.Z < 0 ||
			cell.X >= NHistPerDim || cell.Y >= NHistPerDim || cell.Z >= NHistPerDim {
			return
		}
		splat, ok := binner.Splat(kp.R.MulTranspose(im.Gradient(x, y, z)))
		if !ok {
			return
		}
		weight := expWeight(sqDist, win.sigma)
		accumulateSpatial(features, histNumel, cell, &splat, weight)
	})

	for h := 0; h < NumHists; h++ {
		binner.Refine(features[h*histNumel : (h+1)*histNumel])
	}
	normalizeFeatures(features)
	clipFeatures(features, truncThresh(len(features)))
	normalizeFeatures(features)
}

// extractDescriptors computes one descriptor per keypoint, in parallel, from the GSS pyramid.
func extractDescriptors(
	ctx context.Context,
	gss *Pyramid,
	kps *KeypointStore,
	binner angularBinner,
	nx, ny, nz int,
) (*DescriptorStore, error) {
	histNumel := binner.NumBins()
	store := &DescriptorStore{
		Descriptors: make([]Descriptor, len(kps.Keypoints)),
		Nx:          nx,
		Ny:          ny,
		Nz:          nz,
		HistNumel:   histNumel,
	}
	err := utils.GroupWorkParallel(ctx, len(kps.Keypoints), func(groupNum, groupSize, from, to int) (utils.MemberWorkFunc, utils.GroupWorkDoneFunc) {
		return func(memberNum, workNum int) {
			kp := &kps.Keypoints[workNum]
			desc := &store.Descriptors[workNum]
			desc.Features = make([]float64, NumHists*histNumel)
			extractDescriptor(gss.Level(kp.O, kp.S), kp, binner, desc.Features)
			desc.X, desc.Y, desc.Z = kp.BaseCoords()
			desc.Sd = kp.Sd
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return store, nil
}
