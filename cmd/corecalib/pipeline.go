package main

import (
	"github.com/urfave/cli/v2"

	"github.com/mocap-toolkit/corecalib/bundle"
	"github.com/mocap-toolkit/corecalib/iodata"
	"github.com/mocap-toolkit/corecalib/session"
	"github.com/mocap-toolkit/corecalib/stereo"
	"github.com/mocap-toolkit/corecalib/triangulate"
)

func pipelineCommand() *cli.Command {
	return &cli.Command{
		Name:  "pipeline",
		Usage: "run bootstrap, array init, triangulation, and bundle adjustment back-to-back",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "workspace", Required: true, Usage: "workspace directory"},
			&cli.StringFlag{Name: "session", Required: true, Usage: "recording session name"},
			&cli.StringFlag{Name: "tracker", Required: true, Usage: "tracker name, used to name xyz_*.csv output"},
			&cli.IntFlag{Name: "align-to-index", Value: 0},
			&cli.BoolFlag{Name: "iterative"},
			&cli.IntFlag{Name: "min-shared-boards", Value: stereo.DefaultConfig().MinSharedBoards},
		},
		Action: func(c *cli.Context) error {
			log := loggerFor("pipeline")
			ws := newWorkspace(c.String("workspace"))

			cameras, err := ws.loadCameras()
			if err != nil {
				return err
			}
			points, err := ws.loadPoints(c.String("session"))
			if err != nil {
				return err
			}

			cfg := session.DefaultPipelineConfig()
			cfg.Stereo.MinSharedBoards = c.Int("min-shared-boards")
			cfg.AlignToIndex = c.Int("align-to-index")
			cfg.Iterative = c.Bool("iterative")
			cfg.Bundle = bundle.DefaultConfig()

			s := session.New(cameras, points, log)
			stop := session.NewStopEvent()

			final, err := session.Run(s, cfg, stop, progressPrinter(log))
			if err != nil {
				return err
			}

			report, err := triangulate.Reproject(final.Cameras, final.Points, final.World)
			if err != nil {
				return err
			}
			log.Infof("pipeline complete, overall reprojection rmse=%.4f px", report.OverallRMSE)

			if err := ws.saveCameras(final.Cameras); err != nil {
				return err
			}
			dir := ws.trackerDir(c.String("session"), c.String("tracker"))
			if err := ensureDir(dir); err != nil {
				return err
			}
			trackerName := c.String("tracker")
			if err := iodata.WriteXYZLong(dir+"/xyz_"+trackerName+".csv", final.World); err != nil {
				return err
			}
			return iodata.WriteXYZWide(dir+"/xyz_"+trackerName+"_labelled.csv", final.World, iodata.DefaultPointNamer)
		},
	}
}
