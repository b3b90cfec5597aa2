package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/mocap-toolkit/corecalib/config"
	"github.com/mocap-toolkit/corecalib/session"
	"github.com/mocap-toolkit/corecalib/stereo"
)

func bootstrapStereoCommand() *cli.Command {
	return &cli.Command{
		Name:  "bootstrap-stereo",
		Usage: "estimate pairwise relative poses from a recorded session's shared board observations",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "workspace", Required: true, Usage: "workspace directory"},
			&cli.StringFlag{Name: "session", Required: true, Usage: "recording session name"},
			&cli.IntFlag{Name: "min-shared-boards", Value: stereo.DefaultConfig().MinSharedBoards},
			&cli.Float64Flag{Name: "rmse-threshold", Value: stereo.DefaultConfig().RMSEThreshold},
		},
		Action: func(c *cli.Context) error {
			log := loggerFor("bootstrap-stereo")
			ws := newWorkspace(c.String("workspace"))

			cameras, err := ws.loadCameras()
			if err != nil {
				return err
			}
			points, err := ws.loadPoints(c.String("session"))
			if err != nil {
				return err
			}

			cfg := stereo.DefaultConfig()
			cfg.MinSharedBoards = c.Int("min-shared-boards")
			cfg.RMSEThreshold = c.Float64("rmse-threshold")

			s := session.New(cameras, points, log)
			pairs, err := s.BootstrapStereo(cfg)
			if err != nil {
				return err
			}
			log.Infof("bootstrapped %d camera pairs", len(pairs))

			workspaceCfg, err := config.Load(ws.configPath())
			if err != nil {
				return err
			}
			for _, p := range pairs {
				workspaceCfg.Stereo[config.StereoKey(p.PrimaryPort, p.SecondaryPort)] = &config.StereoPairConfig{
					Rotation:    p.Rotation.Rows(),
					Translation: [3]float64{p.Translation.X, p.Translation.Y, p.Translation.Z},
					RMSE:        p.ErrorScore,
				}
				fmt.Printf("pair (%d,%d): rmse=%.4f\n", p.PrimaryPort, p.SecondaryPort, p.ErrorScore)
			}
			return config.Save(ws.configPath(), workspaceCfg)
		},
	}
}
