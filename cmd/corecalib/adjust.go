package main

import (
	"github.com/urfave/cli/v2"

	"github.com/mocap-toolkit/corecalib/bundle"
	"github.com/mocap-toolkit/corecalib/iodata"
	"github.com/mocap-toolkit/corecalib/triangulate"
)

func adjustCommand() *cli.Command {
	return &cli.Command{
		Name:  "adjust",
		Usage: "run bundle adjustment (and gauge alignment) over a session's triangulated points",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "workspace", Required: true, Usage: "workspace directory"},
			&cli.StringFlag{Name: "session", Required: true, Usage: "recording session name"},
			&cli.StringFlag{Name: "tracker", Required: true, Usage: "tracker name whose xyz_*.csv output to refine"},
			&cli.IntFlag{Name: "align-to-index", Value: 0, Usage: "sync_index whose obj_loc_* values anchor the gauge"},
			&cli.BoolFlag{Name: "iterative", Usage: "use the iterative culling variant (spec §4.5)"},
			&cli.Float64Flag{Name: "cull-fraction", Value: bundle.DefaultConfig().CullFraction},
		},
		Action: func(c *cli.Context) error {
			log := loggerFor("adjust")
			ws := newWorkspace(c.String("workspace"))

			cameras, err := ws.loadCameras()
			if err != nil {
				return err
			}
			points, err := ws.loadPoints(c.String("session"))
			if err != nil {
				return err
			}
			world, err := triangulate.TriangulateAll(cameras, points)
			if err != nil {
				return err
			}

			cfg := bundle.DefaultConfig()
			cfg.CullFraction = c.Float64("cull-fraction")

			b := bundle.NewBundle(cameras, points, world)
			var optimized *bundle.Bundle
			if c.Bool("iterative") {
				optimized, err = b.OptimizeIterative(cfg)
			} else {
				optimized, err = b.Optimize(cfg)
			}
			if err != nil {
				return err
			}

			aligned, err := optimized.AlignToObject(c.Int("align-to-index"))
			if err != nil {
				return err
			}

			report, err := triangulate.Reproject(aligned.Cameras, aligned.Points, aligned.World)
			if err != nil {
				return err
			}
			log.Infof("bundle adjustment converged, overall reprojection rmse=%.4f px", report.OverallRMSE)

			if err := ws.saveCameras(aligned.Cameras); err != nil {
				return err
			}
			dir := ws.trackerDir(c.String("session"), c.String("tracker"))
			if err := ensureDir(dir); err != nil {
				return err
			}
			trackerName := c.String("tracker")
			if err := iodata.WriteXYZLong(dir+"/xyz_"+trackerName+".csv", aligned.World); err != nil {
				return err
			}
			return iodata.WriteXYZWide(dir+"/xyz_"+trackerName+"_labelled.csv", aligned.World, iodata.DefaultPointNamer)
		},
	}
}
