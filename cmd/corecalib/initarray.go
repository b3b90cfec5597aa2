package main

import (
	"github.com/urfave/cli/v2"

	"github.com/mocap-toolkit/corecalib/arrayinit"
	"github.com/mocap-toolkit/corecalib/config"
	"github.com/mocap-toolkit/corecalib/model"
)

func initArrayCommand() *cli.Command {
	return &cli.Command{
		Name:  "init-array",
		Usage: "build an initial extrinsic pose for every camera from the workspace's bootstrapped pairs",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "workspace", Required: true, Usage: "workspace directory"},
		},
		Action: func(c *cli.Context) error {
			log := loggerFor("init-array")
			ws := newWorkspace(c.String("workspace"))

			cameras, err := ws.loadCameras()
			if err != nil {
				return err
			}
			workspaceCfg, err := config.Load(ws.configPath())
			if err != nil {
				return err
			}

			var pairs []*model.StereoPair
			for key, sc := range workspaceCfg.Stereo {
				a, b, err := config.ParseStereoKey(key)
				if err != nil {
					return err
				}
				rot, err := spatialmathRotationFromRows(sc.Rotation)
				if err != nil {
					return err
				}
				pair, err := model.NewStereoPair(a, b, rot, vectorFrom(sc.Translation), sc.RMSE)
				if err != nil {
					return err
				}
				pairs = append(pairs, pair)
			}

			extrinsics, err := arrayinit.Initialize(pairs, cameras.ActivePorts(), arrayinit.DefaultConfig())
			if err != nil {
				return err
			}
			for port, ext := range extrinsics {
				cam, ok := cameras.Get(port)
				if !ok {
					continue
				}
				updated := *cam
				updated.Extrinsics = ext
				cameras.Set(&updated)
			}
			log.Infof("initialized extrinsics for %d cameras", len(extrinsics))
			return ws.saveCameras(cameras)
		},
	}
}
