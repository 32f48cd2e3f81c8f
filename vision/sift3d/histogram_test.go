package sift3d

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"go.viam.com/sift3d/spatialmath"
)

func splatTotal(splat binSplat) float64 {
	var total float64
	for i := 0; i < splat.n; i++ {
		total += splat.weights[i]
	}
	return total
}

func TestIcosahedralSplat(t *testing.T) {
	binner := icosahedralBinner{mesh: spatialmath.NewIcosahedron()}
	test.That(t, binner.NumBins(), test.ShouldEqual, 12)

	for _, grad := range []r3.Vector{
		{X: 1, Y: 0, Z: 0},
		{X: 0.3, Y: -2, Z: 0.7},
		{X: -1, Y: -1, Z: -1},
		{X: 0, Y: 0, Z: 5},
	} {
		splat, ok := binner.Splat(grad)
		test.That(t, ok, test.ShouldBeTrue)
		test.That(t, splat.n, test.ShouldEqual, 3)
		test.That(t, splatTotal(splat), test.ShouldAlmostEqual, grad.Norm(), 1e-9)
		for i := 0; i < splat.n; i++ {
			test.That(t, splat.weights[i], test.ShouldBeGreaterThanOrEqualTo, -1e-9)
		}
	}

	// a gradient along a vertex lands entirely in that vertex's bin
	vertex := spatialmath.NewIcosahedron().Vertices()[4]
	splat, ok := binner.Splat(vertex.Mul(2))
	test.That(t, ok, test.ShouldBeTrue)
	hist := make([]float64, binner.NumBins())
	splat.addTo(hist, 1)
	test.That(t, hist[4], test.ShouldAlmostEqual, 2, 1e-6)

	_, ok = binner.Splat(r3.Vector{})
	test.That(t, ok, test.ShouldBeFalse)
}

func TestSphericalIndex(t *testing.T) {
	test.That(t, sphericalIndex(0, 0), test.ShouldEqual, 0)
	test.That(t, sphericalIndex(NumAzimuthBins, 1), test.ShouldEqual, NumAzimuthBins)
	test.That(t, sphericalIndex(-1, 2), test.ShouldEqual, NumAzimuthBins-1+2*NumAzimuthBins)
	// past the south pole the azimuth turns half a revolution
	test.That(t, sphericalIndex(1, NumPolarBins), test.ShouldEqual, 5+(NumPolarBins-1)*NumAzimuthBins)
}

func TestSphericalSplat(t *testing.T) {
	binner := sphericalBinner{}
	test.That(t, binner.NumBins(), test.ShouldEqual, 32)

	az, po, ok := sphericalBins(r3.Vector{X: 0, Y: 1, Z: 0})
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, az, test.ShouldAlmostEqual, 2)
	test.That(t, po, test.ShouldAlmostEqual, 2)

	// azimuth wraps to [0, 2pi)
	az, _, _ = sphericalBins(r3.Vector{X: 1, Y: -1e-9, Z: 0})
	test.That(t, az, test.ShouldBeGreaterThan, 7.99)
	test.That(t, az, test.ShouldBeLessThan, 8)

	for _, grad := range []r3.Vector{
		{X: 1, Y: 1, Z: 1},
		{X: 0.2, Y: -0.1, Z: -3},
		{X: -1, Y: 1e-12, Z: 0.4},
	} {
		splat, ok := binner.Splat(grad)
		test.That(t, ok, test.ShouldBeTrue)
		test.That(t, splat.n, test.ShouldEqual, 4)
		test.That(t, splatTotal(splat), test.ShouldAlmostEqual, grad.Norm(), 1e-9)
		for i := 0; i < splat.n; i++ {
			test.That(t, splat.idx[i], test.ShouldBeBetweenOrEqual, 0, binner.NumBins()-1)
		}
	}

	_, ok = binner.Splat(r3.Vector{})
	test.That(t, ok, test.ShouldBeFalse)
}

func TestSphericalRefine(t *testing.T) {
	hist := make([]float64, NumAzimuthBins*NumPolarBins)
	for i := range hist {
		hist[i] = 1
	}
	sphericalBinner{}.Refine(hist)
	test.That(t, hist[0], test.ShouldEqual, 1)

	sphericalBinner{solidAngleWeight: true}.Refine(hist)
	polar := 1 - math.Cos(math.Pi/4)
	equator := math.Cos(math.Pi/4)
	test.That(t, hist[0], test.ShouldAlmostEqual, 1/polar)
	test.That(t, hist[NumAzimuthBins], test.ShouldAlmostEqual, 1/equator)
	test.That(t, hist[3*NumAzimuthBins+2], test.ShouldAlmostEqual, 1/polar)
}

func TestNewBinner(t *testing.T) {
	mesh := spatialmath.NewIcosahedron()
	cfg := DefaultConfig()
	test.That(t, newBinner(&cfg, mesh).NumBins(), test.ShouldEqual, 12)
	cfg.Histogram = HistogramSpherical
	test.That(t, newBinner(&cfg, mesh).NumBins(), test.ShouldEqual, 32)
}
