package sift3d

import (
	"math"

	"github.com/golang/geo/r3"

	"go.viam.com/sift3d/spatialmath"
	"go.viam.com/sift3d/utils"
)

const (
	// NHistPerDim is the number of spatial cells along each axis of a descriptor.
	NHistPerDim = 4
	// NumHists is the number of angular histograms in a descriptor.
	NumHists = NHistPerDim * NHistPerDim * NHistPerDim

	// NumAzimuthBins and NumPolarBins shape the spherical histogram.
	NumAzimuthBins = 8
	NumPolarBins   = 4
)

// binSplat is the contribution of one gradient to the bins of a histogram, already scaled by the
// gradient magnitude.
type binSplat struct {
	idx     [4]int
	weights [4]float64
	n       int
}

func (bs *binSplat) add(idx int, weight float64) {
	bs.idx[bs.n] = idx
	bs.weights[bs.n] = weight
	bs.n++
}

// addTo adds scale times the splat into hist.
func (bs *binSplat) addTo(hist []float64, scale float64) {
	for i := 0; i < bs.n; i++ {
		hist[bs.idx[i]] += scale * bs.weights[i]
	}
}

// angularBinner maps gradients to the bins of one angular histogram.
type angularBinner interface {
	// NumBins is the length of a single histogram.
	NumBins() int
	// Splat spreads |grad| over the bins nearest the gradient direction. It reports false when
	// the direction cannot be binned.
	Splat(grad r3.Vector) (binSplat, bool)
	// Refine adjusts one finished histogram before normalization.
	Refine(hist []float64)
}

// icosahedralBinner has one bin per icosahedron vertex. A direction is binned on the face it hits
// and spread over that face's vertices with barycentric weights.
type icosahedralBinner struct {
	mesh *spatialmath.Mesh
}

func (ib icosahedralBinner) NumBins() int {
	return spatialmath.IcosahedronVertices
}

func (ib icosahedralBinner) Splat(grad r3.Vector) (binSplat, bool) {
	var splat binSplat
	mag := grad.Norm()
	if mag == 0 {
		return splat, false
	}
	face, bary, err := ib.mesh.Bin(grad.Mul(1/mag), spatialmath.BaryEpsilon)
	if err != nil {
		return splat, false
	}
	idx := ib.mesh.Triangles()[face].Indices()
	splat.add(idx[0], mag*bary.X)
	splat.add(idx[1], mag*bary.Y)
	splat.add(idx[2], mag*bary.Z)
	return splat, true
}

func (ib icosahedralBinner) Refine([]float64) {}

// sphericalBinner is an azimuth x polar grid with circular azimuth. Polar positions past the last
// row are folded back onto it with the azimuth turned by half a revolution.
type sphericalBinner struct {
	solidAngleWeight bool
}

func (sb sphericalBinner) NumBins() int {
	return NumAzimuthBins * NumPolarBins
}

// sphericalBins returns the fractional azimuth and polar bin of a direction.
func sphericalBins(grad r3.Vector) (float64, float64, bool) {
	mag := grad.Norm()
	if mag == 0 {
		return 0, 0, false
	}
	az := utils.Mod(math.Atan2(grad.Y, grad.X), 2*math.Pi)
	po := math.Acos(utils.Clamp(grad.Z/mag, -1, 1))
	return az * NumAzimuthBins / (2 * math.Pi), po * NumPolarBins / math.Pi, true
}

func sphericalIndex(a, p int) int {
	a = utils.ModInt(a, NumAzimuthBins)
	if p >= NumPolarBins {
		p = NumPolarBins - 1
		a = (a + NumAzimuthBins/2) % NumAzimuthBins
	}
	return a + p*NumAzimuthBins
}

func (sb sphericalBinner) Splat(grad r3.Vector) (binSplat, bool) {
	var splat binSplat
	az, po, ok := sphericalBins(grad)
	if !ok {
		return splat, false
	}
	mag := grad.Norm()
	a0, p0 := math.Floor(az), math.Floor(po)
	fa, fp := az-a0, po-p0
	for dp := 0; dp < 2; dp++ {
		wp := 1 - fp
		if dp == 1 {
			wp = fp
		}
		for da := 0; da < 2; da++ {
			wa := 1 - fa
			if da == 1 {
				wa = fa
			}
			splat.add(sphericalIndex(int(a0)+da, int(p0)+dp), mag*wa*wp)
		}
	}
	return splat, true
}

// Refine divides each polar row by the solid angle it covers.
func (sb sphericalBinner) Refine(hist []float64) {
	if !sb.solidAngleWeight {
		return
	}
	const rowAngle = math.Pi / NumPolarBins
	for p := 0; p < NumPolarBins; p++ {
		solidAngle := math.Cos(float64(p)*rowAngle) - math.Cos(float64(p+1)*rowAngle)
		for a := 0; a < NumAzimuthBins; a++ {
			hist[a+p*NumAzimuthBins] /= solidAngle
		}
	}
}

// newBinner returns the binner selected by the config.
func newBinner(config *Config, mesh *spatialmath.Mesh) angularBinner {
	if config.histogram() == HistogramSpherical {
		return sphericalBinner{solidAngleWeight: config.SolidAngleWeight}
	}
	return icosahedralBinner{mesh: mesh}
}
