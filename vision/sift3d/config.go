package sift3d

import (
	"encoding/json"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/yosuke-furukawa/json5/encoding/json5"
	"go.viam.com/utils"
	"gopkg.in/yaml.v3"

	"go.viam.com/sift3d/volume"
)

// HistogramType selects how gradient directions are binned.
type HistogramType string

// ExtremaNeighborhood selects which neighbours take part in the extremum test.
type ExtremaNeighborhood string

// OrientationSign selects the reference vector used to disambiguate eigenvector signs.
type OrientationSign string

const (
	// HistogramIcosahedral bins directions on the 12 vertices of an icosahedron.
	HistogramIcosahedral HistogramType = "icosahedral"
	// HistogramSpherical bins directions on an azimuth x polar grid.
	HistogramSpherical HistogramType = "spherical"

	// NeighborhoodFace compares against the 6 face neighbours in each adjacent level.
	NeighborhoodFace ExtremaNeighborhood = "face"
	// NeighborhoodCuboid compares against all 26 neighbours in each adjacent level.
	NeighborhoodCuboid ExtremaNeighborhood = "cuboid"

	// SignWindowGradient uses the summed gradient of the whole window.
	SignWindowGradient OrientationSign = "window_gradient"
	// SignLastSample uses the gradient of the last voxel visited in the window.
	SignLastSample OrientationSign = "last_sample"
)

// Default parameter values.
const (
	DefaultFirstOctave  = 0
	DefaultPeakThresh   = 0.03
	DefaultCornerThresh = 0.5
	DefaultNumKpLevels  = 3
	DefaultSigmaN       = 1.15
	DefaultSigma0       = 1.6
)

// Config holds every detector and descriptor parameter. A NumOctaves of 0 picks the octave count
// from the volume extent.
type Config struct {
	FirstOctave  int     `json:"first_octave" yaml:"first_octave"`
	PeakThresh   float64 `json:"peak_thresh" yaml:"peak_thresh"`
	CornerThresh float64 `json:"corner_thresh" yaml:"corner_thresh"`
	NumOctaves   int     `json:"num_octaves,omitempty" yaml:"num_octaves,omitempty"`
	NumKpLevels  int     `json:"num_kp_levels" yaml:"num_kp_levels"`
	SigmaN       float64 `json:"sigma_n" yaml:"sigma_n"`
	Sigma0       float64 `json:"sigma0" yaml:"sigma0"`

	Histogram           HistogramType       `json:"histogram,omitempty" yaml:"histogram,omitempty"`
	SolidAngleWeight    bool                `json:"solid_angle_weight,omitempty" yaml:"solid_angle_weight,omitempty"`
	ExtremaNeighborhood ExtremaNeighborhood `json:"extrema_neighborhood,omitempty" yaml:"extrema_neighborhood,omitempty"`
	OrientationSign     OrientationSign     `json:"orientation_sign,omitempty" yaml:"orientation_sign,omitempty"`
	Refinement          RefinementMethod    `json:"refinement,omitempty" yaml:"refinement,omitempty"`
	DenseRotate         bool                `json:"dense_rotate,omitempty" yaml:"dense_rotate,omitempty"`
	Border              string              `json:"border,omitempty" yaml:"border,omitempty"`
}

// DefaultConfig returns the standard SIFT3D parameters.
func DefaultConfig() Config {
	return Config{
		FirstOctave:         DefaultFirstOctave,
		PeakThresh:          DefaultPeakThresh,
		CornerThresh:        DefaultCornerThresh,
		NumKpLevels:         DefaultNumKpLevels,
		SigmaN:              DefaultSigmaN,
		Sigma0:              DefaultSigma0,
		Histogram:           HistogramIcosahedral,
		ExtremaNeighborhood: NeighborhoodFace,
		OrientationSign:     SignWindowGradient,
		Refinement:          RefineParabolic,
		Border:              volume.BorderReplicate.String(),
	}
}

// LoadConfiguration loads a Config from a json, json5 or yaml file. Fields missing from the file
// keep their default values.
func LoadConfiguration(file string) (*Config, error) {
	config := DefaultConfig()
	filePath := filepath.Clean(file)
	configFile, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer utils.UncheckedErrorFunc(configFile.Close)

	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".yaml", ".yml":
		err = yaml.NewDecoder(configFile).Decode(&config)
	case ".json5":
		var data []byte
		if data, err = io.ReadAll(configFile); err == nil {
			err = json5.Unmarshal(data, &config)
		}
	default:
		err = json.NewDecoder(configFile).Decode(&config)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "cannot parse config %q", file)
	}
	if err := config.Validate(file); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate ensures all parts of the Config are valid. Invalid values are reported, never clamped.
func (config *Config) Validate(path string) error {
	if err := validatePeakThresh(config.PeakThresh); err != nil {
		return utils.NewConfigValidationError(path, err)
	}
	if err := validateCornerThresh(config.CornerThresh); err != nil {
		return utils.NewConfigValidationError(path, err)
	}
	if config.NumOctaves < 0 {
		return utils.NewConfigValidationError(path, errors.Errorf("num_octaves must be >= 0 (0 for auto), got %d", config.NumOctaves))
	}
	if config.NumKpLevels < 1 {
		return utils.NewConfigValidationError(path, errors.Errorf("num_kp_levels must be >= 1, got %d", config.NumKpLevels))
	}
	if err := validateSigma("sigma_n", config.SigmaN); err != nil {
		return utils.NewConfigValidationError(path, err)
	}
	if err := validateSigma("sigma0", config.Sigma0); err != nil {
		return utils.NewConfigValidationError(path, err)
	}
	switch config.Histogram {
	case "", HistogramIcosahedral, HistogramSpherical:
	default:
		return utils.NewConfigValidationError(path, errors.Errorf("unknown histogram %q", config.Histogram))
	}
	if config.SolidAngleWeight && config.histogram() != HistogramSpherical {
		return utils.NewConfigValidationError(path, errors.New("solid_angle_weight requires the spherical histogram"))
	}
	switch config.ExtremaNeighborhood {
	case "", NeighborhoodFace, NeighborhoodCuboid:
	default:
		return utils.NewConfigValidationError(path, errors.Errorf("unknown extrema_neighborhood %q", config.ExtremaNeighborhood))
	}
	switch config.OrientationSign {
	case "", SignWindowGradient, SignLastSample:
	default:
		return utils.NewConfigValidationError(path, errors.Errorf("unknown orientation_sign %q", config.OrientationSign))
	}
	switch config.Refinement {
	case "", RefineParabolic, RefineNewton:
	default:
		return utils.NewConfigValidationError(path, errors.Errorf("unknown refinement %q", config.Refinement))
	}
	if _, err := volume.BorderPadFromString(config.Border); err != nil {
		return utils.NewConfigValidationError(path, err)
	}
	return nil
}

func (config *Config) histogram() HistogramType {
	if config.Histogram == "" {
		return HistogramIcosahedral
	}
	return config.Histogram
}

func (config *Config) neighborhood() ExtremaNeighborhood {
	if config.ExtremaNeighborhood == "" {
		return NeighborhoodFace
	}
	return config.ExtremaNeighborhood
}

func (config *Config) orientationSign() OrientationSign {
	if config.OrientationSign == "" {
		return SignWindowGradient
	}
	return config.OrientationSign
}

func (config *Config) refinement() RefinementMethod {
	if config.Refinement == "" {
		return RefineParabolic
	}
	return config.Refinement
}

func validatePeakThresh(v float64) error {
	if !(v > 0) || math.IsInf(v, 0) {
		return errors.Errorf("peak_thresh must be > 0, got %v", v)
	}
	return nil
}

func validateCornerThresh(v float64) error {
	if !(v >= 0 && v <= 1) {
		return errors.Errorf("corner_thresh must be in [0, 1], got %v", v)
	}
	return nil
}

func validateSigma(name string, v float64) error {
	if !(v >= 0) || math.IsInf(v, 0) {
		return errors.Errorf("%s must be >= 0, got %v", name, v)
	}
	return nil
}
