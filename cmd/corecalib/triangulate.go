package main

import (
	"github.com/urfave/cli/v2"

	"github.com/mocap-toolkit/corecalib/iodata"
	"github.com/mocap-toolkit/corecalib/triangulate"
)

func triangulateCommand() *cli.Command {
	return &cli.Command{
		Name:  "triangulate",
		Usage: "reconstruct 3-D points from a recorded session's synchronized observations",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "workspace", Required: true, Usage: "workspace directory"},
			&cli.StringFlag{Name: "session", Required: true, Usage: "recording session name"},
			&cli.StringFlag{Name: "tracker", Required: true, Usage: "tracker name, used to name the output xyz_*.csv files"},
		},
		Action: func(c *cli.Context) error {
			log := loggerFor("triangulate")
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

			report, err := triangulate.Reproject(cameras, points, world)
			if err != nil {
				return err
			}
			log.Infof("triangulated %d points, overall reprojection rmse=%.4f px", world.Len(), report.OverallRMSE)

			dir := ws.trackerDir(c.String("session"), c.String("tracker"))
			if err := ensureDir(dir); err != nil {
				return err
			}
			trackerName := c.String("tracker")
			if err := iodata.WriteXYZLong(dir+"/xyz_"+trackerName+".csv", world); err != nil {
				return err
			}
			return iodata.WriteXYZWide(dir+"/xyz_"+trackerName+"_labelled.csv", world, iodata.DefaultPointNamer)
		},
	}
}
