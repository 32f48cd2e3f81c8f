// Package cli contains the sift3d command line tool.
package cli

import (
	"io"

	"github.com/urfave/cli/v2"

	"go.viam.com/sift3d/vision/sift3d"
)

const (
	// Global flags.
	flagConfig  = "config"
	flagDebug   = "debug"
	flagLogFile = "log-file"

	// Command flags.
	flagOut             = "out"
	flagOriented        = "oriented"
	flagKeypointsOut    = "keypoints-out"
	flagNNThresh        = "nn-thresh"
	flagMaxDistFraction = "max-dist-fraction"
	flagForwardBackward = "forward-backward"
	flagHistogramBins   = "histogram-bins"
	flagRotate          = "rotate"
)

// NewApp returns a new app with the CLI API, Writer set to out, and ErrWriter set to errOut.
func NewApp(out, errOut io.Writer) *cli.App {
	return &cli.App{
		Name:            "sift3d",
		Usage:           "detect, describe and match keypoints in 3D volumes",
		HideHelpCommand: true,
		Writer:          out,
		ErrWriter:       errOut,
		Metadata:        map[string]interface{}{},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    flagConfig,
				Aliases: []string{"c"},
				Usage:   "load detector parameters from `FILE` (.json, .json5 or .yaml)",
			},
			&cli.BoolFlag{
				Name:    flagDebug,
				Aliases: []string{"vvv"},
				Usage:   "enable debug logging",
			},
			&cli.StringFlag{
				Name:  flagLogFile,
				Usage: "also write logs to `FILE`",
			},
		},
		Before: setupLogging,
		After:  closeLogging,
		Commands: []*cli.Command{
			{
				Name:      "detect",
				Usage:     "detect keypoints and write their coordinates as CSV",
				ArgsUsage: "<volume>",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     flagOut,
						Aliases:  []string{"o"},
						Required: true,
						Usage:    "keypoint CSV `FILE`, gzip compressed if it ends in .gz",
					},
					&cli.BoolFlag{
						Name:  flagOriented,
						Usage: "write refined coordinates, scale and orientation per keypoint",
					},
				},
				Action: DetectAction,
			},
			{
				Name:      "describe",
				Usage:     "detect keypoints and write their descriptors as CSV",
				ArgsUsage: "<volume>",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     flagOut,
						Aliases:  []string{"o"},
						Required: true,
						Usage:    "descriptor CSV `FILE`",
					},
					&cli.StringFlag{
						Name:  flagKeypointsOut,
						Usage: "also write the keypoints to `FILE`",
					},
				},
				Action: DescribeAction,
			},
			{
				Name:      "match",
				Usage:     "match the keypoints of two volumes",
				ArgsUsage: "<volume1> <volume2>",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    flagOut,
						Aliases: []string{"o"},
						Usage:   "write matched coordinates as x1,y1,z1,x2,y2,z2 rows to `FILE`",
					},
					&cli.Float64Flag{
						Name:  flagNNThresh,
						Value: sift3d.DefaultNNThresh,
						Usage: "nearest neighbour ratio threshold",
					},
					&cli.Float64Flag{
						Name:  flagMaxDistFraction,
						Usage: "reject matches further apart than this fraction of the volume diagonal",
					},
					&cli.BoolFlag{
						Name:  flagForwardBackward,
						Usage: "keep only mutually consistent matches",
					},
					&cli.IntFlag{
						Name:  flagHistogramBins,
						Value: 10,
						Usage: "bins of the printed SSD histogram, 0 to disable",
					},
				},
				Action: MatchAction,
			},
			{
				Name:      "dense",
				Usage:     "compute a descriptor at every voxel and write it as a raw volume",
				ArgsUsage: "<volume>",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     flagOut,
						Aliases:  []string{"o"},
						Required: true,
						Usage:    "raw volume `FILE`, gzip compressed if it ends in .gz",
					},
					&cli.BoolFlag{
						Name:  flagRotate,
						Usage: "orient each voxel's histogram",
					},
				},
				Action: DenseAction,
			},
			{
				Name:   "schema",
				Usage:  "print the JSON schema of the detector configuration",
				Action: SchemaAction,
			},
		},
	}
}
