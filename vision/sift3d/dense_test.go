package sift3d

import (
	"context"
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/test"
	"gonum.org/v1/gonum/floats"

	"go.viam.com/sift3d/volume"
)

func TestExtractDense(t *testing.T) {
	const n = 12
	vol := blobVolume(n, 6, r3.Vector{X: 2, Y: 2.5, Z: 3}, 1e-2)

	for _, rotate := range []bool{false, true} {
		name := "unrotated"
		if rotate {
			name = "rotated"
		}
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.DenseRotate = rotate
			cfg.CornerThresh = 0
			d := newTestDetector(t, cfg)

			dense, err := d.ExtractDense(context.Background(), vol)
			test.That(t, err, test.ShouldBeNil)
			test.That(t, dense.HistNumel(), test.ShouldEqual, 12)
			nx, ny, nz := dense.Dims()
			test.That(t, []int{nx, ny, nz}, test.ShouldResemble, []int{n, n, n})
			test.That(t, []int(dense.Tensor().Shape()), test.ShouldResemble, []int{n, n, n, 12})

			// every histogram is a unit vector scaled by the input intensity
			for _, p := range [][3]int{{6, 6, 6}, {3, 8, 5}, {1, 1, 1}, {10, 2, 9}} {
				hist := dense.Voxel(p[0], p[1], p[2])
				test.That(t, floats.Norm(hist, 2), test.ShouldAlmostEqual, math.Abs(vol.At(p[0], p[1], p[2])), 1e-9)
			}
		})
	}

	t.Run("spherical", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Histogram = HistogramSpherical
		d := newTestDetector(t, cfg)
		_, err := d.ExtractDense(context.Background(), vol)
		test.That(t, err, test.ShouldNotBeNil)
	})

	t.Run("channels", func(t *testing.T) {
		d := newTestDetector(t, DefaultConfig())
		_, err := d.ExtractDense(context.Background(), volume.New(n, n, n, 2))
		test.That(t, errors.Is(err, ErrInvalidChannels), test.ShouldBeTrue)
	})
}

func TestFinishDense(t *testing.T) {
	hists := volume.New(2, 1, 1, 12)
	in := volume.New(2, 1, 1, 1)
	in.Set(0, 0, 0, -3)
	in.Set(1, 0, 0, 5)
	hists.SetC(0, 0, 0, 0, 10)
	finishDense(hists, in)

	// a single spike stays a unit vector before the intensity scaling
	test.That(t, hists.AtC(0, 0, 0, 0), test.ShouldAlmostEqual, -3)
	test.That(t, floats.Sum(hists.Voxel(1, 0, 0)), test.ShouldEqual, 0)
}
