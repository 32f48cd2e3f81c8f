package sift3d

import (
	"context"
	"math"

	"github.com/pkg/errors"

	"go.viam.com/sift3d/utils"
	"go.viam.com/sift3d/volume"
)

// ErrTooFewLevels is returned when a DoG pyramid has fewer than the 3 levels needed to find extrema.
var ErrTooFewLevels = errors.New("DoG pyramid needs at least 3 levels")

// minOctaveDim is the smallest extent any axis may have in the last octave.
const minOctaveDim = 8

// Pyramid is a set of octaves, each holding the same range of levels. Level (o, s) has the scale
// Sigma0 * 2^(o + s/NumKpLevels) in base voxel units.
type Pyramid struct {
	FirstOctave int
	NumOctaves  int
	FirstLevel  int
	NumLevels   int
	NumKpLevels int
	Sigma0      float64
	SigmaN      float64

	levels [][]*volume.Volume
}

func newPyramid(firstOctave, numOctaves, firstLevel, numLevels, numKpLevels int, sigma0, sigmaN float64) *Pyramid {
	levels := make([][]*volume.Volume, numOctaves)
	for i := range levels {
		levels[i] = make([]*volume.Volume, numLevels)
	}
	return &Pyramid{
		FirstOctave: firstOctave,
		NumOctaves:  numOctaves,
		FirstLevel:  firstLevel,
		NumLevels:   numLevels,
		NumKpLevels: numKpLevels,
		Sigma0:      sigma0,
		SigmaN:      sigmaN,
		levels:      levels,
	}
}

// LastOctave is the index of the coarsest octave.
func (p *Pyramid) LastOctave() int {
	return p.FirstOctave + p.NumOctaves - 1
}

// LastLevel is the index of the last level in every octave.
func (p *Pyramid) LastLevel() int {
	return p.FirstLevel + p.NumLevels - 1
}

// Level returns the volume at octave o and level s, or nil if it has not been built.
func (p *Pyramid) Level(o, s int) *volume.Volume {
	return p.levels[o-p.FirstOctave][s-p.FirstLevel]
}

func (p *Pyramid) setLevel(o, s int, v *volume.Volume) {
	p.levels[o-p.FirstOctave][s-p.FirstLevel] = v
}

// Scale returns the absolute scale of a (possibly fractional) level in octave o.
func (p *Pyramid) Scale(o int, s float64) float64 {
	return p.Sigma0 * math.Pow(2, float64(o)+s/float64(p.NumKpLevels))
}

// relScale is the scale of level s measured in the voxels of its own octave.
func (p *Pyramid) relScale(s float64) float64 {
	return p.Sigma0 * math.Pow(2, s/float64(p.NumKpLevels))
}

// Copy deep-copies the pyramid, including every built level.
func (p *Pyramid) Copy() *Pyramid {
	out := newPyramid(p.FirstOctave, p.NumOctaves, p.FirstLevel, p.NumLevels, p.NumKpLevels, p.Sigma0, p.SigmaN)
	for i, octave := range p.levels {
		for j, level := range octave {
			if level != nil {
				out.levels[i][j] = level.Clone()
			}
		}
	}
	return out
}

// sameShape reports whether two pyramids have identical structure.
func (p *Pyramid) sameShape(other *Pyramid) bool {
	return other != nil &&
		p.FirstOctave == other.FirstOctave &&
		p.NumOctaves == other.NumOctaves &&
		p.FirstLevel == other.FirstLevel &&
		p.NumLevels == other.NumLevels &&
		p.NumKpLevels == other.NumKpLevels &&
		p.Sigma0 == other.Sigma0 &&
		p.SigmaN == other.SigmaN
}

// autoNumOctaves returns the number of octaves that keeps the smallest axis at least minOctaveDim
// voxels long in the last octave.
func autoNumOctaves(minDim, firstOctave int) (int, error) {
	if minDim < minOctaveDim {
		return 0, errors.Errorf("volume is too small for a pyramid: smallest dimension %d < %d", minDim, minOctaveDim)
	}
	lastOctave := utils.Log2Floor(minDim) - 3
	numOctaves := lastOctave - firstOctave + 1
	if numOctaves < 1 {
		return 0, errors.Errorf("first octave %d is above the last usable octave %d", firstOctave, lastOctave)
	}
	return numOctaves, nil
}

// gssFilters holds the Gaussian kernels used to build one octave of the GSS pyramid.
type gssFilters struct {
	first       volume.Kernel1D
	incremental []volume.Kernel1D
}

// newGSSFilters computes the kernel taking the input from its nominal blur to the first level and
// the kernels between consecutive levels.
func newGSSFilters(p *Pyramid) (*gssFilters, error) {
	inputSigma := p.SigmaN * math.Pow(2, -float64(p.FirstOctave))
	first, err := volume.GaussianKernel1D(volume.IncrementalGaussianSigma(inputSigma, p.relScale(float64(p.FirstLevel))))
	if err != nil {
		return nil, err
	}
	filters := &gssFilters{first: first, incremental: make([]volume.Kernel1D, p.NumLevels-1)}
	for i := range filters.incremental {
		s := float64(p.FirstLevel + i)
		sigma := volume.IncrementalGaussianSigma(p.relScale(s), p.relScale(s+1))
		if filters.incremental[i], err = volume.GaussianKernel1D(sigma); err != nil {
			return nil, err
		}
	}
	return filters, nil
}

// seedLevel is the level whose scale, once decimated, is the scale of the first level of the next
// octave.
func (p *Pyramid) seedLevel() int {
	return p.FirstLevel + p.NumKpLevels
}

// buildGSS fills every level of the Gaussian pyramid from the input volume. Each octave after the
// first starts from the seed level of the previous octave, decimated 2x.
func buildGSS(ctx context.Context, gss *Pyramid, in *volume.Volume, border volume.BorderPad) error {
	filters, err := newGSSFilters(gss)
	if err != nil {
		return err
	}
	base, err := volume.ResamplePow2(in, gss.FirstOctave)
	if err != nil {
		return err
	}
	for o := gss.FirstOctave; o <= gss.LastOctave(); o++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		var first *volume.Volume
		if o == gss.FirstOctave {
			if first, err = volume.SeparableFilter(base, filters.first, border); err != nil {
				return err
			}
		} else {
			first = volume.Downsample2x(gss.Level(o-1, gss.seedLevel()))
		}
		gss.setLevel(o, gss.FirstLevel, first)

		prev := first
		for s := gss.FirstLevel + 1; s <= gss.LastLevel(); s++ {
			next, err := volume.SeparableFilter(prev, filters.incremental[s-gss.FirstLevel-1], border)
			if err != nil {
				return err
			}
			gss.setLevel(o, s, next)
			prev = next
		}
	}
	return nil
}

// buildDoG fills every DoG level as the difference of adjacent GSS levels, G[s] - G[s+1]. Levels
// are computed in parallel.
func buildDoG(ctx context.Context, dog, gss *Pyramid) error {
	var fs []utils.SimpleFunc
	for o := dog.FirstOctave; o <= dog.LastOctave(); o++ {
		for s := dog.FirstLevel; s <= dog.LastLevel(); s++ {
			octave, level := o, s
			fs = append(fs, func(ctx context.Context) error {
				diff, err := volume.Subtract(gss.Level(octave, level), gss.Level(octave, level+1))
				if err != nil {
					return err
				}
				dog.setLevel(octave, level, diff)
				return nil
			})
		}
	}
	_, err := utils.RunInParallel(ctx, fs)
	return err
}
