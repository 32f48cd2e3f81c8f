package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/sift3d/logging"
	"go.viam.com/sift3d/vision/sift3d"
	"go.viam.com/sift3d/volume"
)

const (
	metadataLogger  = "logger"
	metadataLogFile = "log-file"
)

func setupLogging(c *cli.Context) error {
	var logger logging.Logger
	if c.Bool(flagDebug) {
		logger = logging.NewDebugLogger("sift3d")
	} else {
		logger = logging.NewLogger("sift3d")
	}
	if fn := c.String(flagLogFile); fn != "" {
		appender := logging.NewFileAppender(fn)
		logger.AddAppender(appender)
		c.App.Metadata[metadataLogFile] = appender
	}
	c.App.Metadata[metadataLogger] = logger
	return nil
}

func closeLogging(c *cli.Context) error {
	if appender, ok := c.App.Metadata[metadataLogFile].(*logging.FileAppender); ok {
		return appender.Close()
	}
	return nil
}

func loggerFrom(c *cli.Context) logging.Logger {
	if logger, ok := c.App.Metadata[metadataLogger].(logging.Logger); ok {
		return logger
	}
	return logging.Global()
}

// newDetector builds a detector from the --config file, or the default parameters.
func newDetector(c *cli.Context) (*sift3d.Detector, error) {
	cfg := sift3d.DefaultConfig()
	if fn := c.String(flagConfig); fn != "" {
		loaded, err := sift3d.LoadConfiguration(fn)
		if err != nil {
			return nil, err
		}
		cfg = *loaded
	}
	return sift3d.NewDetector(cfg, loggerFrom(c))
}

// loadVolume reads a directory of image slices or a raw volume file.
func loadVolume(path string) (*volume.Volume, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return volume.LoadSlices(path)
	}
	return volume.ReadRaw(path)
}

func singleArg(c *cli.Context) (string, error) {
	if c.Args().Len() != 1 {
		return "", errors.Errorf("expected one volume argument, got %d", c.Args().Len())
	}
	return c.Args().First(), nil
}

func detectAndExtract(ctx context.Context, c *cli.Context, d *sift3d.Detector, path string) (*sift3d.KeypointStore, *sift3d.DescriptorStore, error) {
	logger := loggerFrom(c)
	vol, err := loadVolume(path)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "cannot load %q", path)
	}
	start := time.Now()
	kps, descs, err := d.DetectAndExtract(ctx, vol)
	if err != nil {
		return nil, nil, err
	}
	logger.Debugw("described volume", "path", path, "keypoints", kps.Len(), "took", time.Since(start))
	return kps, descs, nil
}

func writeKeypoints(kps *sift3d.KeypointStore, fn string, oriented bool) error {
	var m *mat.Dense
	var err error
	if oriented {
		m, err = sift3d.KeypointsToOrientedMat(kps)
	} else {
		m, err = sift3d.KeypointsToMat(kps)
	}
	if err != nil {
		return err
	}
	return sift3d.WriteMatCSV(fn, m)
}

// DetectAction runs the detect command.
func DetectAction(c *cli.Context) error {
	path, err := singleArg(c)
	if err != nil {
		return err
	}
	d, err := newDetector(c)
	if err != nil {
		return err
	}
	vol, err := loadVolume(path)
	if err != nil {
		return errors.Wrapf(err, "cannot load %q", path)
	}
	kps, err := d.Detect(c.Context, vol)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "found %d keypoints in %s\n", kps.Len(), path)
	if kps.Len() == 0 {
		loggerFrom(c).Warnw("no keypoints found, nothing written", "path", path)
		return nil
	}
	return writeKeypoints(kps, c.String(flagOut), c.Bool(flagOriented))
}

// DescribeAction runs the describe command.
func DescribeAction(c *cli.Context) error {
	path, err := singleArg(c)
	if err != nil {
		return err
	}
	d, err := newDetector(c)
	if err != nil {
		return err
	}
	kps, descs, err := detectAndExtract(c.Context, c, d, path)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "described %d keypoints in %s\n", descs.Len(), path)
	if descs.Len() == 0 {
		loggerFrom(c).Warnw("no keypoints found, nothing written", "path", path)
		return nil
	}
	m, err := sift3d.DescriptorsToMat(descs)
	if err != nil {
		return err
	}
	if err := sift3d.WriteMatCSV(c.String(flagOut), m); err != nil {
		return err
	}
	if fn := c.String(flagKeypointsOut); fn != "" {
		return writeKeypoints(kps, fn, true)
	}
	return nil
}

// MatchAction runs the match command. Both volumes are processed concurrently.
func MatchAction(c *cli.Context) error {
	if c.Args().Len() != 2 {
		return errors.Errorf("expected two volume arguments, got %d", c.Args().Len())
	}
	matchCfg := sift3d.MatchingConfig{
		NNThresh:        c.Float64(flagNNThresh),
		MaxDistFraction: c.Float64(flagMaxDistFraction),
		ForwardBackward: c.Bool(flagForwardBackward),
	}
	if err := matchCfg.Validate(); err != nil {
		return err
	}
	d1, err := newDetector(c)
	if err != nil {
		return err
	}
	d2 := d1.Copy()

	var descs1, descs2 *sift3d.DescriptorStore
	g, ctx := errgroup.WithContext(c.Context)
	g.Go(func() error {
		var err error
		_, descs1, err = detectAndExtract(ctx, c, d1, c.Args().Get(0))
		return err
	})
	g.Go(func() error {
		var err error
		_, descs2, err = detectAndExtract(ctx, c, d2, c.Args().Get(1))
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	matches, err := sift3d.Match(c.Context, descs1, descs2, matchCfg)
	if err != nil {
		return err
	}
	summary, err := sift3d.Summarize(descs1, descs2, matches)
	if err != nil {
		return err
	}
	if err := printSummary(c.App.Writer, descs1.Len(), descs2.Len(), summary, c.Int(flagHistogramBins)); err != nil {
		return err
	}

	fn := c.String(flagOut)
	if fn == "" {
		return nil
	}
	m1, m2, err := sift3d.MatchesToMats(descs1, descs2, matches)
	if errors.Is(err, sift3d.ErrNoMatches) {
		loggerFrom(c).Warnw("no matches, nothing written", "out", fn)
		return nil
	}
	if err != nil {
		return err
	}
	var pairs mat.Dense
	pairs.Augment(m1, m2)
	return sift3d.WriteMatCSV(fn, &pairs)
}

// DenseAction runs the dense command.
func DenseAction(c *cli.Context) error {
	path, err := singleArg(c)
	if err != nil {
		return err
	}
	d, err := newDetector(c)
	if err != nil {
		return err
	}
	if c.Bool(flagRotate) {
		cfg := d.Config()
		cfg.DenseRotate = true
		if d, err = sift3d.NewDetector(cfg, loggerFrom(c)); err != nil {
			return err
		}
	}
	vol, err := loadVolume(path)
	if err != nil {
		return errors.Wrapf(err, "cannot load %q", path)
	}
	dense, err := d.ExtractDense(c.Context, vol)
	if err != nil {
		return err
	}
	return dense.WriteRaw(c.String(flagOut))
}

// SchemaAction prints the JSON schema of the detector configuration.
func SchemaAction(c *cli.Context) error {
	schema := jsonschema.Reflect(&sift3d.Config{})
	out, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, string(out))
	return nil
}
