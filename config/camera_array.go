package config

import (
	"os"

	"github.com/BurntSushi/toml"
	"github.com/golang/geo/r3"

	"github.com/mocap-toolkit/corecalib/corerrors"
	"github.com/mocap-toolkit/corecalib/model"
	"github.com/mocap-toolkit/corecalib/rimage/transform"
	"github.com/mocap-toolkit/corecalib/spatialmath"
)

// SaveCameraArray writes a model.CameraArray out as camera_array.toml.
// This is a result artifact, independent of the workspace config.toml.
func SaveCameraArray(path string, arr *model.CameraArray) error {
	doc := make(map[string]interface{})
	for _, port := range arr.Ports() {
		cam, _ := arr.Get(port)
		cc := cameraDataToConfig(cam)
		doc[CameraKey(port)] = cc
	}

	f, err := os.Create(path)
	if err != nil {
		return &corerrors.IOFailure{Path: path, Cause: err}
	}
	defer f.Close()

	enc := toml.NewEncoder(f)
	if err := enc.Encode(doc); err != nil {
		return &corerrors.IOFailure{Path: path, Cause: err}
	}
	return nil
}

// LoadCameraArray reads camera_array.toml into a model.CameraArray.
func LoadCameraArray(path string) (*model.CameraArray, error) {
	raw := make(map[string]toml.Primitive)
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return nil, &corerrors.IOFailure{Path: path, Cause: err}
	}

	arr := model.NewCameraArray()
	for _, key := range meta.Keys() {
		if len(key) != 1 || !hasPrefix(key[0], "cam_") {
			continue
		}
		prim, ok := raw[key[0]]
		if !ok {
			continue
		}
		cc := &CameraConfig{}
		if err := meta.PrimitiveDecode(prim, cc); err != nil {
			return nil, &corerrors.IOFailure{Path: path, Cause: err}
		}
		cam, err := configToCameraData(cc)
		if err != nil {
			return nil, err
		}
		arr.Set(cam)
	}
	return arr, nil
}

// CamerasFromConfig builds a model.CameraArray out of a workspace
// Config's cam_* subtables, the conversion a CLI subcommand needs when
// no camera_array.toml result exists yet (a fresh workspace has only
// config.toml).
func CamerasFromConfig(cfg *Config) (*model.CameraArray, error) {
	arr := model.NewCameraArray()
	for _, cc := range cfg.Cameras {
		cam, err := configToCameraData(cc)
		if err != nil {
			return nil, err
		}
		arr.Set(cam)
	}
	return arr, nil
}

// PopulateConfigCameras writes every camera in arr back into cfg's
// cam_* subtables, the inverse of CamerasFromConfig.
func PopulateConfigCameras(cfg *Config, arr *model.CameraArray) {
	for _, port := range arr.Ports() {
		cam, _ := arr.Get(port)
		cfg.Cameras[CameraKey(port)] = cameraDataToConfig(cam)
	}
}

func cameraDataToConfig(cam *model.CameraData) *CameraConfig {
	cc := &CameraConfig{
		Port:          cam.Port,
		RotationCount: cam.RotationCount,
		Ignore:        cam.Ignore,
	}
	if in := cam.Intrinsics; in != nil {
		cc.Size = [2]int{in.Width, in.Height}
		cc.Matrix = in.K()
		if in.Distortion != nil {
			cc.Distortions = in.Distortion.Parameters()
		}
	}
	if ext := cam.Extrinsics; ext != nil {
		cc.Rotation = ext.Rotation.Rows()
		cc.Translation = [3]float64{ext.Translation.X, ext.Translation.Y, ext.Translation.Z}
	}
	return cc
}

func configToCameraData(cc *CameraConfig) (*model.CameraData, error) {
	in := &transform.PinholeCameraIntrinsics{
		Width: cc.Size[0], Height: cc.Size[1],
		Fx: cc.Matrix[0][0], Fy: cc.Matrix[1][1],
		Ppx: cc.Matrix[0][2], Ppy: cc.Matrix[1][2],
		Distortion: transform.NewBrownConrady(cc.Distortions),
	}

	var ext *transform.Extrinsics
	if cc.Rotation != ([3][3]float64{}) {
		rot, err := spatialmath.NewRotationMatrix(cc.Rotation)
		if err != nil {
			return nil, &corerrors.ShapeOrInvariantViolation{What: err.Error()}
		}
		ext = &transform.Extrinsics{
			Rotation:    rot,
			Translation: r3.Vector{X: cc.Translation[0], Y: cc.Translation[1], Z: cc.Translation[2]},
		}
	}

	return &model.CameraData{
		Port:          cc.Port,
		Intrinsics:    in,
		Extrinsics:    ext,
		RotationCount: cc.RotationCount,
		HasRotation:   true,
		Ignore:        cc.Ignore,
	}, nil
}
