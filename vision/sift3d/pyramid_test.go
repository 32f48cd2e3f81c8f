package sift3d

import (
	"context"
	"math"
	"testing"

	"go.viam.com/test"
)

func TestAutoNumOctaves(t *testing.T) {
	n, err := autoNumOctaves(64, 0)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, n, test.ShouldEqual, 4)

	n, err = autoNumOctaves(100, -1)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, n, test.ShouldEqual, 5)

	// the last octave of a 64 voxel axis is 8 voxels long
	n, err = autoNumOctaves(64, 3)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, n, test.ShouldEqual, 1)

	_, err = autoNumOctaves(64, 4)
	test.That(t, err, test.ShouldNotBeNil)
	_, err = autoNumOctaves(7, 0)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestPyramidScale(t *testing.T) {
	p := newPyramid(-1, 3, -1, 6, 3, 1.6, 1.15)
	test.That(t, p.LastOctave(), test.ShouldEqual, 1)
	test.That(t, p.LastLevel(), test.ShouldEqual, 4)
	test.That(t, p.Scale(0, 0), test.ShouldAlmostEqual, 1.6)
	test.That(t, p.Scale(1, 3), test.ShouldAlmostEqual, 6.4)
	test.That(t, p.Scale(-1, 1.5), test.ShouldAlmostEqual, 0.8*math.Sqrt2)
	test.That(t, p.relScale(3), test.ShouldAlmostEqual, 3.2)
}

func TestGSSFilters(t *testing.T) {
	p := newPyramid(0, 1, -1, 6, 3, 1.6, 1.15)
	filters, err := newGSSFilters(p)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, filters.first.IsIdentity(), test.ShouldBeFalse)
	test.That(t, len(filters.incremental), test.ShouldEqual, 5)

	// an input already blurrier than the first level is left alone
	p = newPyramid(0, 1, -1, 6, 3, 1.6, 2.0)
	filters, err = newGSSFilters(p)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, filters.first.IsIdentity(), test.ShouldBeTrue)
}

func TestBuildPyramids(t *testing.T) {
	cfg := DefaultConfig()
	cfg.NumOctaves = 2
	d := newTestDetector(t, cfg)
	vol := makeVolume(24, func(x, y, z float64) float64 {
		return math.Sin(x/3) + math.Cos(y/4)*z/24
	})
	test.That(t, d.buildPyramids(context.Background(), vol), test.ShouldBeNil)

	gss, dog := d.GSS(), d.DoG()
	test.That(t, gss.NumLevels, test.ShouldEqual, 6)
	test.That(t, dog.NumLevels, test.ShouldEqual, 5)
	test.That(t, gss.FirstLevel, test.ShouldEqual, -1)

	nx, ny, nz := gss.Level(0, 4).Dims()
	test.That(t, []int{nx, ny, nz}, test.ShouldResemble, []int{24, 24, 24})
	nx, ny, nz = gss.Level(1, -1).Dims()
	test.That(t, []int{nx, ny, nz}, test.ShouldResemble, []int{12, 12, 12})
	nx, _, _ = dog.Level(1, 3).Dims()
	test.That(t, nx, test.ShouldEqual, 12)

	// octave 1 starts from the level of octave 0 at twice its scale
	test.That(t, gss.Scale(0, 2), test.ShouldAlmostEqual, gss.Scale(1, -1))
	test.That(t, gss.Level(1, -1).At(3, 4, 5), test.ShouldEqual, gss.Level(0, 2).At(6, 8, 10))

	for _, s := range []int{-1, 0, 3} {
		want := gss.Level(0, s).At(7, 9, 11) - gss.Level(0, s+1).At(7, 9, 11)
		test.That(t, dog.Level(0, s).At(7, 9, 11), test.ShouldEqual, want)
	}

	// a structural change reallocates, an identical volume does not
	oldGSS := d.GSS()
	test.That(t, d.buildPyramids(context.Background(), vol), test.ShouldBeNil)
	test.That(t, d.GSS() == oldGSS, test.ShouldBeTrue)
	test.That(t, d.SetSigma0(1.8), test.ShouldBeNil)
	test.That(t, d.buildPyramids(context.Background(), vol), test.ShouldBeNil)
	test.That(t, d.GSS() == oldGSS, test.ShouldBeFalse)
	test.That(t, d.GSS().Sigma0, test.ShouldEqual, 1.8)
}

func TestPyramidCopy(t *testing.T) {
	cfg := DefaultConfig()
	cfg.NumOctaves = 1
	d := newTestDetector(t, cfg)
	vol := makeVolume(10, func(x, y, z float64) float64 { return x * y * z })
	test.That(t, d.buildPyramids(context.Background(), vol), test.ShouldBeNil)

	cp := d.GSS().Copy()
	test.That(t, cp.sameShape(d.GSS()), test.ShouldBeTrue)
	before := d.GSS().Level(0, 0).At(5, 5, 5)
	cp.Level(0, 0).Set(5, 5, 5, before+1)
	test.That(t, d.GSS().Level(0, 0).At(5, 5, 5), test.ShouldEqual, before)
}
