package main

import (
	"sort"

	"github.com/urfave/cli/v2"

	"github.com/mocap-toolkit/corecalib/config"
	"github.com/mocap-toolkit/corecalib/corerrors"
	"github.com/mocap-toolkit/corecalib/intrinsic"
	"github.com/mocap-toolkit/corecalib/model"
)

func calibrateIntrinsicsCommand() *cli.Command {
	return &cli.Command{
		Name:  "calibrate-intrinsics",
		Usage: "fit one camera's matrix and distortion from its recorded board-corner observations",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "workspace", Required: true, Usage: "workspace directory"},
			&cli.StringFlag{Name: "session", Required: true, Usage: "calibration recording session name"},
			&cli.IntFlag{Name: "port", Required: true},
			&cli.IntFlag{Name: "width", Required: true},
			&cli.IntFlag{Name: "height", Required: true},
			&cli.Float64Flag{Name: "rmse-threshold", Value: 1.0, Usage: "spec §4.2 epsilon_intrinsic"},
		},
		Action: func(c *cli.Context) error {
			log := loggerFor("calibrate-intrinsics")
			ws := newWorkspace(c.String("workspace"))
			port := c.Int("port")

			points, err := ws.loadPoints(c.String("session"))
			if err != nil {
				return err
			}
			frames := framesForPort(points, port)
			if len(frames) == 0 {
				return &corerrors.InsufficientObservations{Port: port, Reason: "no board-corner rows with obj_loc_* for this port"}
			}

			cfg := intrinsic.Config{Width: c.Int("width"), Height: c.Int("height"), RMSEThreshold: c.Float64("rmse-threshold")}
			result, err := intrinsic.Calibrate(frames, cfg)
			if err != nil {
				return err
			}
			log.Infof("port %d: fitted intrinsics with training rmse=%.4f px over %d frames", port, result.RMSE, len(frames))

			workspaceCfg, err := config.Load(ws.configPath())
			if err != nil {
				return err
			}
			cc := workspaceCfg.Cameras[config.CameraKey(port)]
			if cc == nil {
				cc = &config.CameraConfig{Port: port}
				workspaceCfg.Cameras[config.CameraKey(port)] = cc
			}
			cc.Size = [2]int{cfg.Width, cfg.Height}
			cc.Matrix = result.Intrinsics.K()
			cc.Distortions = result.Intrinsics.Distortion.Parameters()
			cc.Error = result.RMSE
			cc.GridCount = len(frames)
			return config.Save(ws.configPath(), workspaceCfg)
		},
	}
}

// framesForPort groups a port's calibration-board rows by sync_index
// into intrinsic.FrameObservation, the per-frame corner correspondences
// the planar calibrator needs.
func framesForPort(points *model.ImagePoints, port int) []intrinsic.FrameObservation {
	bySync := make(map[int][]model.ImageObservation)
	for _, o := range points.All() {
		if o.Port != port || !o.HasObjLoc {
			continue
		}
		bySync[o.SyncIndex] = append(bySync[o.SyncIndex], o)
	}
	syncIndices := make([]int, 0, len(bySync))
	for s := range bySync {
		syncIndices = append(syncIndices, s)
	}
	sort.Ints(syncIndices)

	frames := make([]intrinsic.FrameObservation, 0, len(syncIndices))
	for _, s := range syncIndices {
		rows := bySync[s]
		sort.Slice(rows, func(i, j int) bool { return rows[i].PointID < rows[j].PointID })
		f := intrinsic.FrameObservation{Timestamp: rows[0].FrameTime}
		for _, r := range rows {
			f.ImageLoc = append(f.ImageLoc, [2]float64{r.ImgLocX, r.ImgLocY})
			f.ObjectLoc = append(f.ObjectLoc, [2]float64{r.ObjLocX, r.ObjLocY})
		}
		frames = append(frames, f)
	}
	return frames
}
