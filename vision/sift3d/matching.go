package sift3d

import (
	"context"
	"math"

	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/sift3d/utils"
)

// NoMatch marks a descriptor without an accepted match.
const NoMatch = -1

// ErrNoMatches is returned when converting a match set without any accepted match.
var ErrNoMatches = errors.New("no accepted matches")

// DefaultNNThresh is the default nearest-neighbour ratio threshold.
const DefaultNNThresh = 0.8

// MatchingConfig contains the parameters for matching descriptors.
type MatchingConfig struct {
	// NNThresh rejects a match when best/second best SSD > NNThresh^2.
	NNThresh float64 `json:"nn_thresh" yaml:"nn_thresh"`
	// MaxDistFraction, when positive, rejects matches whose coordinates are further apart than
	// this fraction of the first set's grid diagonal.
	MaxDistFraction float64 `json:"max_dist_fraction,omitempty" yaml:"max_dist_fraction,omitempty"`
	// ForwardBackward keeps only mutually consistent matches.
	ForwardBackward bool `json:"forward_backward,omitempty" yaml:"forward_backward,omitempty"`
}

// DefaultMatchingConfig returns the ratio test at DefaultNNThresh with no distance limit.
func DefaultMatchingConfig() MatchingConfig {
	return MatchingConfig{NNThresh: DefaultNNThresh}
}

// Validate ensures the matching parameters are usable.
func (cfg *MatchingConfig) Validate() error {
	if !(cfg.NNThresh > 0) {
		return errors.Errorf("nn_thresh must be > 0, got %v", cfg.NNThresh)
	}
	if cfg.MaxDistFraction < 0 || math.IsNaN(cfg.MaxDistFraction) {
		return errors.Errorf("max_dist_fraction must be >= 0, got %v", cfg.MaxDistFraction)
	}
	return nil
}

// ssd is the sum of squared differences of two feature vectors.
func ssd(a, b []float64) float64 {
	return utils.Square(floats.Distance(a, b, 2))
}

// Match finds, for every descriptor of d1, the nearest descriptor of d2 by SSD. The result has one
// entry per descriptor of d1: an index into d2 or NoMatch. With ForwardBackward set this is
// MatchForwardBackward.
func Match(ctx context.Context, d1, d2 *DescriptorStore, cfg MatchingConfig) ([]int, error) {
	if cfg.ForwardBackward {
		cfg.ForwardBackward = false
		return MatchForwardBackward(ctx, d1, d2, cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if d1.Len() > 0 && d2.Len() > 0 && d1.NumFeatures() != d2.NumFeatures() {
		return nil, errors.Errorf("cannot match descriptors of length %d and %d", d1.NumFeatures(), d2.NumFeatures())
	}

	maxDist := math.Inf(1)
	if cfg.MaxDistFraction > 0 {
		diag := math.Sqrt(float64(d1.Nx*d1.Nx + d1.Ny*d1.Ny + d1.Nz*d1.Nz))
		maxDist = cfg.MaxDistFraction * diag
	}
	sqThresh := cfg.NNThresh * cfg.NNThresh

	matches := make([]int, d1.Len())
	err := utils.GroupWorkParallel(ctx, d1.Len(), func(groupNum, groupSize, from, to int) (utils.MemberWorkFunc, utils.GroupWorkDoneFunc) {
		return func(memberNum, i int) {
			matches[i] = matchOne(&d1.Descriptors[i], d2, sqThresh, maxDist)
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return matches, nil
}

func matchOne(desc *Descriptor, d2 *DescriptorStore, sqThresh, maxDist float64) int {
	bestDist, secondDist := math.Inf(1), math.Inf(1)
	best := NoMatch
	for j := range d2.Descriptors {
		dist := ssd(desc.Features, d2.Descriptors[j].Features)
		if dist < bestDist {
			secondDist = bestDist
			bestDist = dist
			best = j
		} else {
			secondDist = math.Min(secondDist, dist)
		}
	}
	if best == NoMatch {
		return NoMatch
	}
	// written as a product so a zero second best only passes a zero best
	if bestDist > sqThresh*secondDist {
		return NoMatch
	}
	if desc.Coords().Distance(d2.Descriptors[best].Coords()) > maxDist {
		return NoMatch
	}
	return best
}

// MatchForwardBackward matches in both directions and keeps only pairs where i matches j and j
// matches i.
func MatchForwardBackward(ctx context.Context, d1, d2 *DescriptorStore, cfg MatchingConfig) ([]int, error) {
	forward, err := Match(ctx, d1, d2, cfg)
	if err != nil {
		return nil, err
	}
	backward, err := Match(ctx, d2, d1, cfg)
	if err != nil {
		return nil, err
	}
	for i, j := range forward {
		if j != NoMatch && backward[j] != i {
			forward[i] = NoMatch
		}
	}
	return forward, nil
}

// MatchesToMats returns two parallel n x 3 matrices holding the coordinates of every accepted
// match, in the order of d1. It returns ErrNoMatches when nothing was matched.
func MatchesToMats(d1, d2 *DescriptorStore, matches []int) (*mat.Dense, *mat.Dense, error) {
	if len(matches) != d1.Len() {
		return nil, nil, errors.Errorf("have %d matches for %d descriptors", len(matches), d1.Len())
	}
	pairs := matchedPairs(matches)
	if len(pairs) == 0 {
		return nil, nil, ErrNoMatches
	}
	m1 := mat.NewDense(len(pairs), 3, nil)
	m2 := mat.NewDense(len(pairs), 3, nil)
	for row, pair := range pairs {
		if pair.B >= d2.Len() {
			return nil, nil, errors.Errorf("match index %d out of range for %d descriptors", pair.B, d2.Len())
		}
		a, b := &d1.Descriptors[pair.A], &d2.Descriptors[pair.B]
		m1.SetRow(row, []float64{a.X, a.Y, a.Z})
		m2.SetRow(row, []float64{b.X, b.Y, b.Z})
	}
	return m1, m2, nil
}

// matchedPairs lists the (d1, d2) index pairs of accepted matches.
func matchedPairs(matches []int) []lo.Tuple2[int, int] {
	var pairs []lo.Tuple2[int, int]
	for i, j := range matches {
		if j != NoMatch {
			pairs = append(pairs, lo.T2(i, j))
		}
	}
	return pairs
}

// MatchSummary describes a set of matches.
type MatchSummary struct {
	Count        int
	Total        int
	MeanSSD      float64
	MedianSSD    float64
	MeanDistance float64
	MaxDistance  float64
	SSDs         []float64
	Distances    []float64
}

// Summarize computes descriptor and spatial distance statistics of the accepted matches.
func Summarize(d1, d2 *DescriptorStore, matches []int) (MatchSummary, error) {
	summary := MatchSummary{Total: len(matches)}
	for _, pair := range matchedPairs(matches) {
		a, b := &d1.Descriptors[pair.A], &d2.Descriptors[pair.B]
		summary.SSDs = append(summary.SSDs, ssd(a.Features, b.Features))
		summary.Distances = append(summary.Distances, a.Coords().Distance(b.Coords()))
	}
	summary.Count = len(summary.SSDs)
	if summary.Count == 0 {
		return summary, nil
	}
	var err error
	if summary.MeanSSD, err = stats.Mean(summary.SSDs); err != nil {
		return summary, err
	}
	if summary.MedianSSD, err = stats.Median(summary.SSDs); err != nil {
		return summary, err
	}
	if summary.MeanDistance, err = stats.Mean(summary.Distances); err != nil {
		return summary, err
	}
	if summary.MaxDistance, err = stats.Max(summary.Distances); err != nil {
		return summary, err
	}
	return summary, nil
}
