package sift3d

import (
	"os"
	"path/filepath"
	"testing"

	"go.viam.com/test"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	test.That(t, cfg.Validate(""), test.ShouldBeNil)
	test.That(t, cfg.PeakThresh, test.ShouldEqual, 0.03)
	test.That(t, cfg.CornerThresh, test.ShouldEqual, 0.5)
	test.That(t, cfg.NumKpLevels, test.ShouldEqual, 3)
	test.That(t, cfg.SigmaN, test.ShouldEqual, 1.15)
	test.That(t, cfg.Sigma0, test.ShouldEqual, 1.6)
	test.That(t, cfg.NumOctaves, test.ShouldEqual, 0)
}

func TestValidate(t *testing.T) {
	for _, tc := range []struct {
		name   string
		modify func(*Config)
		errStr string
	}{
		{"zero peak", func(c *Config) { c.PeakThresh = 0 }, "peak_thresh"},
		{"negative peak", func(c *Config) { c.PeakThresh = -0.1 }, "peak_thresh"},
		{"corner above one", func(c *Config) { c.CornerThresh = 1.5 }, "corner_thresh"},
		{"negative corner", func(c *Config) { c.CornerThresh = -0.1 }, "corner_thresh"},
		{"negative octaves", func(c *Config) { c.NumOctaves = -1 }, "num_octaves"},
		{"no levels", func(c *Config) { c.NumKpLevels = 0 }, "num_kp_levels"},
		{"negative sigma_n", func(c *Config) { c.SigmaN = -1 }, "sigma_n"},
		{"negative sigma0", func(c *Config) { c.Sigma0 = -1 }, "sigma0"},
		{"histogram", func(c *Config) { c.Histogram = "cubic" }, "histogram"},
		{"solid angle", func(c *Config) { c.SolidAngleWeight = true }, "solid_angle_weight"},
		{"neighborhood", func(c *Config) { c.ExtremaNeighborhood = "star" }, "extrema_neighborhood"},
		{"sign", func(c *Config) { c.OrientationSign = "first_sample" }, "orientation_sign"},
		{"refinement", func(c *Config) { c.Refinement = "cubic" }, "refinement"},
		{"border", func(c *Config) { c.Border = "wrap" }, "border"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.modify(&cfg)
			err := cfg.Validate("cfg.json")
			test.That(t, err, test.ShouldNotBeNil)
			test.That(t, err.Error(), test.ShouldContainSubstring, tc.errStr)
		})
	}

	cfg := DefaultConfig()
	cfg.Histogram = HistogramSpherical
	cfg.SolidAngleWeight = true
	cfg.CornerThresh = 0
	cfg.SigmaN = 0
	test.That(t, cfg.Validate(""), test.ShouldBeNil)
}

func TestLoadConfiguration(t *testing.T) {
	dir := t.TempDir()
	write := func(name, contents string) string {
		fn := filepath.Join(dir, name)
		test.That(t, os.WriteFile(fn, []byte(contents), 0o600), test.ShouldBeNil)
		return fn
	}

	t.Run("json", func(t *testing.T) {
		cfg, err := LoadConfiguration(write("cfg.json", `{"peak_thresh": 0.05, "num_octaves": 2, "histogram": "spherical"}`))
		test.That(t, err, test.ShouldBeNil)
		test.That(t, cfg.PeakThresh, test.ShouldEqual, 0.05)
		test.That(t, cfg.NumOctaves, test.ShouldEqual, 2)
		test.That(t, cfg.Histogram, test.ShouldEqual, HistogramSpherical)
		test.That(t, cfg.Sigma0, test.ShouldEqual, DefaultSigma0)
	})

	t.Run("json5", func(t *testing.T) {
		cfg, err := LoadConfiguration(write("cfg.json5", "{\n  // coarser pyramid\n  first_octave: 1,\n  corner_thresh: 0.25,\n}"))
		test.That(t, err, test.ShouldBeNil)
		test.That(t, cfg.FirstOctave, test.ShouldEqual, 1)
		test.That(t, cfg.CornerThresh, test.ShouldEqual, 0.25)
	})

	t.Run("yaml", func(t *testing.T) {
		cfg, err := LoadConfiguration(write("cfg.yaml", "num_kp_levels: 4\nextrema_neighborhood: cuboid\nrefinement: newton\n"))
		test.That(t, err, test.ShouldBeNil)
		test.That(t, cfg.NumKpLevels, test.ShouldEqual, 4)
		test.That(t, cfg.ExtremaNeighborhood, test.ShouldEqual, NeighborhoodCuboid)
		test.That(t, cfg.Refinement, test.ShouldEqual, RefineNewton)
	})

	t.Run("invalid value", func(t *testing.T) {
		_, err := LoadConfiguration(write("bad.json", `{"corner_thresh": 2}`))
		test.That(t, err, test.ShouldNotBeNil)
		test.That(t, err.Error(), test.ShouldContainSubstring, "corner_thresh")
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadConfiguration(filepath.Join(dir, "nope.json"))
		test.That(t, err, test.ShouldNotBeNil)
	})
}
