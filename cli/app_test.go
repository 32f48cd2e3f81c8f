package cli

import (
	"bytes"
	"context"
	"io"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.viam.com/test"

	"go.viam.com/sift3d/logging"
	"go.viam.com/sift3d/vision/sift3d"
	"go.viam.com/sift3d/volume"
)

// writeBlob writes an anisotropic Gaussian blob on a small ramp as a raw volume.
func writeBlob(t *testing.T, dir string) string {
	t.Helper()
	const n, c = 32, 16.
	vol := volume.New(n, n, n, 1)
	for z := 0; z < n; z++ {
		for y := 0; y < n; y++ {
			for x := 0; x < n; x++ {
				dx, dy, dz := float64(x)-c, float64(y)-c, float64(z)-c
				g := math.Exp(-(dx*dx/(2*2.6*2.6) + dy*dy/(2*3*3) + dz*dz/(2*3.5*3.5)))
				vol.Set(x, y, z, g+1e-3*float64(x+2*y+3*z))
			}
		}
	}
	fn := filepath.Join(dir, "blob.raw.gz")
	test.That(t, vol.WriteRaw(fn), test.ShouldBeNil)
	return fn
}

func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	app := NewApp(&out, &errOut)
	err := app.Run(append([]string{"sift3d"}, args...))
	return out.String(), err
}

func TestCommands(t *testing.T) {
	dir := t.TempDir()
	volFn := writeBlob(t, dir)
	cfgFn := filepath.Join(dir, "cfg.json")
	test.That(t, os.WriteFile(cfgFn, []byte(`{"corner_thresh": 0, "num_octaves": 1}`), 0o600), test.ShouldBeNil)
	logFn := filepath.Join(dir, "sift3d.log")

	t.Run("detect", func(t *testing.T) {
		kpFn := filepath.Join(dir, "kp.csv")
		out, err := runApp(t, "--config", cfgFn, "detect", "--oriented", "-o", kpFn, volFn)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, out, test.ShouldContainSubstring, "keypoints")
		m, err := sift3d.ReadMatCSV(kpFn)
		test.That(t, err, test.ShouldBeNil)
		rows, cols := m.Dims()
		test.That(t, rows, test.ShouldBeGreaterThan, 0)
		test.That(t, cols, test.ShouldEqual, 13)
	})

	t.Run("describe", func(t *testing.T) {
		descFn := filepath.Join(dir, "desc.csv.gz")
		_, err := runApp(t, "--config", cfgFn, "--debug", "--log-file", logFn, "describe", "-o", descFn, volFn)
		test.That(t, err, test.ShouldBeNil)
		m, err := sift3d.ReadMatCSV(descFn)
		test.That(t, err, test.ShouldBeNil)
		_, cols := m.Dims()
		test.That(t, cols, test.ShouldEqual, 3+sift3d.NumHists*12)

		logs, err := os.ReadFile(logFn)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, string(logs), test.ShouldContainSubstring, "described volume")
	})

	t.Run("match", func(t *testing.T) {
		matchFn := filepath.Join(dir, "matches.csv")
		out, err := runApp(t, "--config", cfgFn, "match", "--forward-backward", "-o", matchFn, volFn, volFn)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, out, test.ShouldContainSubstring, "MATCHES")
		m, err := sift3d.ReadMatCSV(matchFn)
		test.That(t, err, test.ShouldBeNil)
		rows, cols := m.Dims()
		test.That(t, rows, test.ShouldBeGreaterThan, 0)
		test.That(t, cols, test.ShouldEqual, 6)
		// a volume matched with itself pairs every keypoint with itself
		for i := 0; i < rows; i++ {
			test.That(t, m.At(i, 3), test.ShouldEqual, m.At(i, 0))
		}

		_, err = runApp(t, "match", volFn)
		test.That(t, err, test.ShouldNotBeNil)

		// a volume that fails to load fails the whole command and writes nothing
		failedFn := filepath.Join(dir, "failed.csv")
		_, err = runApp(t, "match", "-o", failedFn, volFn, filepath.Join(dir, "missing.raw"))
		test.That(t, err, test.ShouldNotBeNil)
		test.That(t, err.Error(), test.ShouldContainSubstring, "missing.raw")
		_, err = os.Stat(failedFn)
		test.That(t, os.IsNotExist(err), test.ShouldBeTrue)
	})

	t.Run("dense", func(t *testing.T) {
		denseFn := filepath.Join(dir, "dense.raw")
		_, err := runApp(t, "dense", "-o", denseFn, volFn)
		test.That(t, err, test.ShouldBeNil)
		dense, err := volume.ReadRaw(denseFn)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, dense.Channels(), test.ShouldEqual, 12)
	})

	t.Run("schema", func(t *testing.T) {
		out, err := runApp(t, "schema")
		test.That(t, err, test.ShouldBeNil)
		test.That(t, out, test.ShouldContainSubstring, "peak_thresh")
	})

	t.Run("errors", func(t *testing.T) {
		_, err := runApp(t, "detect", "-o", filepath.Join(dir, "x.csv"), filepath.Join(dir, "missing.raw"))
		test.That(t, err, test.ShouldNotBeNil)
		_, err = runApp(t, "--config", filepath.Join(dir, "missing.json"), "detect", "-o", filepath.Join(dir, "x.csv"), volFn)
		test.That(t, err, test.ShouldNotBeNil)
	})
}

func TestDetectAndExtractCanceled(t *testing.T) {
	volFn := writeBlob(t, t.TempDir())
	c := cli.NewContext(NewApp(io.Discard, io.Discard), nil, nil)
	d, err := sift3d.NewDetector(sift3d.DefaultConfig(), logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err = detectAndExtract(ctx, c, d, volFn)
	test.That(t, errors.Is(err, context.Canceled), test.ShouldBeTrue)
}
