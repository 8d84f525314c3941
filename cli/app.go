// Package cli contains the bvhtool command line interface.
package cli

import (
	"io"
	"time"

	"github.com/urfave/cli/v2"
)

const (
	generalFlagConfig  = "config"
	generalFlagDebug   = "debug"
	generalFlagLogFile = "log-file"

	benchFlagEntities = "entities"
	benchFlagMeshes   = "meshes"
	benchFlagPattern  = "pattern"
	benchFlagSeed     = "seed"
	benchFlagExtent   = "extent"
	benchFlagRays     = "rays"
	benchFlagFrustums = "frustums"
	benchFlagWorkers  = "workers"
	benchFlagFTDC     = "ftdc"
	benchFlagQuiet    = "quiet"

	demoFlagFrames        = "frames"
	demoFlagFrameInterval = "frame-interval"

	ftdcFlagMetric = "metric"
)

var app = &cli.App{
	Name:            "bvhtool",
	Usage:           "exercise and measure the spatial acceleration layer",
	HideHelpCommand: true,
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    generalFlagConfig,
			Aliases: []string{"c"},
			Usage:   "load configuration from `FILE`",
		},
		&cli.BoolFlag{
			Name:    generalFlagDebug,
			Aliases: []string{"vvv"},
			Usage:   "enable debug logging and periodic statistics",
		},
		&cli.PathFlag{
			Name:  generalFlagLogFile,
			Usage: "also write logs to a size rotated `FILE`",
		},
	},
	Before: openLogFile,
	After:  closeLogFile,
	Commands: []*cli.Command{
		{
			Name:  "bench",
			Usage: "compare accelerated queries against brute force on a generated world",
			Flags: []cli.Flag{
				&cli.IntFlag{
					Name:  benchFlagEntities,
					Value: 1000,
					Usage: "number of entities to place",
				},
				&cli.IntFlag{
					Name:  benchFlagMeshes,
					Value: 4,
					Usage: "number of distinct meshes shared by the entities",
				},
				&cli.StringFlag{
					Name:  benchFlagPattern,
					Value: patternGrid,
					Usage: "entity layout: grid, random or clustered",
				},
				&cli.Int64Flag{
					Name:  benchFlagSeed,
					Value: 1,
					Usage: "random seed for entity placement",
				},
				&cli.Float64Flag{
					Name:  benchFlagExtent,
					Value: 50,
					Usage: "half width of the placement area",
				},
				&cli.IntFlag{
					Name:  benchFlagRays,
					Value: 1000,
					Usage: "number of raycasts",
				},
				&cli.IntFlag{
					Name:  benchFlagFrustums,
					Value: 100,
					Usage: "number of frustum queries",
				},
				&cli.IntFlag{
					Name:  benchFlagWorkers,
					Usage: "concurrent query workers, defaults to GOMAXPROCS",
				},
				&cli.PathFlag{
					Name:  benchFlagFTDC,
					Usage: "record manager and process statistics to `FILE`",
				},
				&cli.BoolFlag{
					Name:  benchFlagQuiet,
					Usage: "hide progress output",
				},
			},
			Action: BenchAction,
		},
		{
			Name:  "demo",
			Usage: "walk through mesh registration, raycasts and frustum culling",
			Flags: []cli.Flag{
				&cli.IntFlag{
					Name:  demoFlagFrames,
					Usage: "run a frame loop moving the entity for this many frames",
				},
				&cli.DurationFlag{
					Name:  demoFlagFrameInterval,
					Value: 16 * time.Millisecond,
					Usage: "time between frames",
				},
			},
			Action: DemoAction,
		},
		{
			Name:            "ftdc",
			Usage:           "work with recorded statistics",
			HideHelpCommand: true,
			Subcommands: []*cli.Command{
				{
					Name:      "parse",
					Usage:     "summarize every metric in an FTDC file",
					ArgsUsage: "<file>",
					Flags: []cli.Flag{
						&cli.StringFlag{
							Name:  ftdcFlagMetric,
							Usage: "only show metrics starting with this prefix",
						},
					},
					Action: FTDCParseAction,
				},
			},
		},
		{
			Name:            "config",
			Usage:           "work with configuration files",
			HideHelpCommand: true,
			Subcommands: []*cli.Command{
				{
					Name:      "validate",
					Usage:     "report out of range values and print the effective configuration",
					ArgsUsage: "[file]",
					Action:    ConfigValidateAction,
				},
			},
		},
	},
}

// NewApp returns a new app with the CLI API, Writer set to out, and ErrWriter
// set to errOut.
func NewApp(out, errOut io.Writer) *cli.App {
	app.Writer = out
	app.ErrWriter = errOut
	return app
}
