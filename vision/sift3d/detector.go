package sift3d

import (
	"context"

	"github.com/pkg/errors"

	"go.viam.com/sift3d/logging"
	"go.viam.com/sift3d/spatialmath"
	"go.viam.com/sift3d/volume"
)

// ErrInvalidChannels is returned for input volumes that do not have exactly one channel.
var ErrInvalidChannels = errors.New("input volume must have exactly one channel")

// Detector runs the keypoint and descriptor pipeline. It keeps the pyramids of the last volume it
// processed, so Extract describes keypoints from the preceding Detect. A Detector is not safe for
// concurrent use; use Copy to get an independent one.
type Detector struct {
	cfg    Config
	logger logging.Logger
	mesh   *spatialmath.Mesh
	border volume.BorderPad

	gss, dog   *Pyramid
	nx, ny, nz int
	// set when a structural parameter changes and the pyramids must be reallocated. The
	// thresholds only affect detection, so their setters leave it alone.
	stale bool
}

// NewDetector validates the config and returns a detector using it.
func NewDetector(cfg Config, logger logging.Logger) (*Detector, error) {
	if err := cfg.Validate(""); err != nil {
		return nil, err
	}
	border, err := volume.BorderPadFromString(cfg.Border)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.Global()
	}
	return &Detector{
		cfg:    cfg,
		logger: logger.Sublogger("sift3d"),
		mesh:   spatialmath.NewIcosahedron(),
		border: border,
		stale:  true,
	}, nil
}

// Config returns a copy of the detector's parameters.
func (d *Detector) Config() Config {
	return d.cfg
}

// GSS returns the Gaussian pyramid of the last processed volume, or nil.
func (d *Detector) GSS() *Pyramid {
	return d.gss
}

// DoG returns the difference-of-Gaussians pyramid of the last processed volume, or nil.
func (d *Detector) DoG() *Pyramid {
	return d.dog
}

// SetFirstOctave sets the first octave. Negative octaves upsample the input.
func (d *Detector) SetFirstOctave(firstOctave int) error {
	d.cfg.FirstOctave = firstOctave
	d.stale = true
	return nil
}

// SetPeakThresh sets the DoG peak threshold, relative to each level's largest magnitude.
func (d *Detector) SetPeakThresh(peakThresh float64) error {
	if err := validatePeakThresh(peakThresh); err != nil {
		d.logger.Warn(err)
		return err
	}
	d.cfg.PeakThresh = peakThresh
	return nil
}

// SetCornerThresh sets the minimum eigenvector and gradient agreement in [0, 1].
func (d *Detector) SetCornerThresh(cornerThresh float64) error {
	if err := validateCornerThresh(cornerThresh); err != nil {
		d.logger.Warn(err)
		return err
	}
	d.cfg.CornerThresh = cornerThresh
	return nil
}

// SetNumOctaves sets the number of octaves; 0 picks it from the volume extent.
func (d *Detector) SetNumOctaves(numOctaves int) error {
	if numOctaves < 0 {
		err := errors.Errorf("num_octaves must be >= 0 (0 for auto), got %d", numOctaves)
		d.logger.Warn(err)
		return err
	}
	d.cfg.NumOctaves = numOctaves
	d.stale = true
	return nil
}

// SetNumKpLevels sets the number of levels per octave searched for keypoints.
func (d *Detector) SetNumKpLevels(numKpLevels int) error {
	if numKpLevels < 1 {
		err := errors.Errorf("num_kp_levels must be >= 1, got %d", numKpLevels)
		d.logger.Warn(err)
		return err
	}
	d.cfg.NumKpLevels = numKpLevels
	d.stale = true
	return nil
}

// SetSigmaN sets the nominal blur of the input.
func (d *Detector) SetSigmaN(sigmaN float64) error {
	if err := validateSigma("sigma_n", sigmaN); err != nil {
		d.logger.Warn(err)
		return err
	}
	d.cfg.SigmaN = sigmaN
	d.stale = true
	return nil
}

// SetSigma0 sets the scale of level 0 of every octave.
func (d *Detector) SetSigma0(sigma0 float64) error {
	if err := validateSigma("sigma0", sigma0); err != nil {
		d.logger.Warn(err)
		return err
	}
	d.cfg.Sigma0 = sigma0
	d.stale = true
	return nil
}

// Copy returns an independent detector with the same parameters and pyramids.
func (d *Detector) Copy() *Detector {
	out := *d
	if d.gss != nil {
		out.gss = d.gss.Copy()
	}
	if d.dog != nil {
		out.dog = d.dog.Copy()
	}
	return &out
}

// resize prepares the pyramids for a volume of the given extent, reallocating them when their
// structure would change.
func (d *Detector) resize(vol *volume.Volume) error {
	nx, ny, nz := vol.Dims()
	numOctaves := d.cfg.NumOctaves
	if numOctaves == 0 {
		var err error
		if numOctaves, err = autoNumOctaves(vol.MinDim(), d.cfg.FirstOctave); err != nil {
			return err
		}
	}
	nkl := d.cfg.NumKpLevels
	gss := newPyramid(d.cfg.FirstOctave, numOctaves, -1, nkl+3, nkl, d.cfg.Sigma0, d.cfg.SigmaN)
	if !d.stale && gss.sameShape(d.gss) && nx == d.nx && ny == d.ny && nz == d.nz {
		return nil
	}
	d.gss = gss
	d.dog = newPyramid(d.cfg.FirstOctave, numOctaves, -1, nkl+2, nkl, d.cfg.Sigma0, d.cfg.SigmaN)
	d.nx, d.ny, d.nz = nx, ny, nz
	d.stale = false
	d.logger.Debugw("reallocated pyramids",
		"dims", []int{nx, ny, nz},
		"first_octave", d.cfg.FirstOctave,
		"num_octaves", numOctaves,
		"num_kp_levels", nkl)
	return nil
}

// buildPyramids filters the volume into the GSS and DoG pyramids.
func (d *Detector) buildPyramids(ctx context.Context, vol *volume.Volume) error {
	if vol.Channels() != 1 {
		return errors.Wrapf(ErrInvalidChannels, "got %d channels", vol.Channels())
	}
	if err := d.resize(vol); err != nil {
		return err
	}
	if err := buildGSS(ctx, d.gss, vol, d.border); err != nil {
		return err
	}
	return buildDoG(ctx, d.dog, d.gss)
}

// Detect finds, refines and orients the keypoints of a single-channel volume.
func (d *Detector) Detect(ctx context.Context, vol *volume.Volume) (*KeypointStore, error) {
	if err := d.buildPyramids(ctx, vol); err != nil {
		return nil, err
	}
	kps, err := detectExtrema(ctx, d.dog, d.cfg.PeakThresh, newExtremumTest(d.cfg.neighborhood()))
	if err != nil {
		return nil, err
	}
	numCandidates := len(kps)
	d.logger.CDebugw(ctx, "found extrema", "candidates", numCandidates)

	if err := refineKeypoints(ctx, d.dog, kps, d.cfg.refinement()); err != nil {
		return nil, err
	}
	if kps, err = assignOrientations(ctx, d.gss, kps, d.cfg.CornerThresh, d.cfg.orientationSign()); err != nil {
		return nil, err
	}
	d.logger.CDebugw(ctx, "assigned orientations", "accepted", len(kps), "rejected", numCandidates-len(kps))

	nx, ny, nz := d.dog.Level(d.dog.FirstOctave, 0).Dims()
	return &KeypointStore{Keypoints: kps, Nx: nx, Ny: ny, Nz: nz}, nil
}

// Extract describes keypoints found by the preceding Detect call on this detector.
func (d *Detector) Extract(ctx context.Context, kps *KeypointStore) (*DescriptorStore, error) {
	if d.gss == nil || d.gss.Level(d.gss.FirstOctave, d.gss.FirstLevel) == nil {
		return nil, errors.New("no pyramid to extract descriptors from; call Detect first")
	}
	for i := range kps.Keypoints {
		kp := &kps.Keypoints[i]
		if kp.O < d.gss.FirstOctave || kp.O > d.gss.LastOctave() || kp.S < d.gss.FirstLevel || kp.S > d.gss.LastLevel() {
			return nil, errors.Errorf("keypoint %d at octave %d level %d is outside the pyramid", i, kp.O, kp.S)
		}
	}
	nx, ny, nz := d.gss.Level(d.gss.FirstOctave, d.gss.FirstLevel).Dims()
	return extractDescriptors(ctx, d.gss, kps, newBinner(&d.cfg, d.mesh), nx, ny, nz)
}

// DetectAndExtract runs Detect and then Extract on the same volume.
func (d *Detector) DetectAndExtract(ctx context.Context, vol *volume.Volume) (*KeypointStore, *DescriptorStore, error) {
	kps, err := d.Detect(ctx, vol)
	if err != nil {
		return nil, nil, err
	}
	descs, err := d.Extract(ctx, kps)
	if err != nil {
		return nil, nil, err
	}
	return kps, descs, nil
}

// ExtractDense computes an icosahedral histogram at every voxel of a single-channel volume. The
// volume is first blurred from sigma_n to sigma0.
func (d *Detector) ExtractDense(ctx context.Context, vol *volume.Volume) (*DenseDescriptors, error) {
	if vol.Channels() != 1 {
		return nil, errors.Wrapf(ErrInvalidChannels, "got %d channels", vol.Channels())
	}
	if d.cfg.histogram() != HistogramIcosahedral {
		return nil, errors.New("dense descriptors require the icosahedral histogram")
	}
	smoothed, err := volume.GaussianFilter(vol, volume.IncrementalGaussianSigma(d.cfg.SigmaN, d.cfg.Sigma0), d.border)
	if err != nil {
		return nil, err
	}
	binner := icosahedralBinner{mesh: d.mesh}
	var hists *volume.Volume
	if d.cfg.DenseRotate {
		hists, err = extractDenseRotated(ctx, smoothed, binner, d.cfg.Sigma0, d.cfg.CornerThresh, d.cfg.orientationSign())
	} else {
		hists, err = extractDenseUnrotated(smoothed, binner, d.cfg.Sigma0, d.border)
	}
	if err != nil {
		return nil, err
	}
	finishDense(hists, vol)
	return &DenseDescriptors{hists}, nil
}
