package config

import (
	"path/filepath"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"github.com/mocap-toolkit/corecalib/model"
	"github.com/mocap-toolkit/corecalib/rimage/transform"
	"github.com/mocap-toolkit/corecalib/spatialmath"
)

func TestCameraArrayRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "camera_array.toml")

	arr := model.NewCameraArray()
	rot := spatialmath.RodriguesToRotationMatrix([3]float64{0.05, -0.02, 0.1})
	arr.Set(&model.CameraData{
		Port: 0,
		Intrinsics: &transform.PinholeCameraIntrinsics{
			Width: 1920, Height: 1080, Fx: 1200, Fy: 1200, Ppx: 960, Ppy: 540,
			Distortion: &transform.BrownConrady{RadialK1: -0.1},
		},
		Extrinsics: &transform.Extrinsics{Rotation: rot, Translation: r3.Vector{X: 10, Y: 20, Z: 30}},
	})
	arr.Set(&model.CameraData{
		Port: 1,
		Intrinsics: &transform.PinholeCameraIntrinsics{
			Width: 1920, Height: 1080, Fx: 1150, Fy: 1150, Ppx: 960, Ppy: 540,
			Distortion: &transform.BrownConrady{},
		},
		Extrinsics: &transform.Extrinsics{
			Rotation:    spatialmath.RodriguesToRotationMatrix([3]float64{0, 0, 0}),
			Translation: r3.Vector{},
		},
	})

	test.That(t, SaveCameraArray(path, arr), test.ShouldBeNil)

	loaded, err := LoadCameraArray(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, loaded.Len(), test.ShouldEqual, 2)

	cam0, ok := loaded.Get(0)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, cam0.Intrinsics.Fx, test.ShouldEqual, 1200.0)
	test.That(t, cam0.Extrinsics.Translation.X, test.ShouldAlmostEqual, 10.0, 1e-9)
	test.That(t, cam0.Extrinsics.Translation.Y, test.ShouldAlmostEqual, 20.0, 1e-9)
	test.That(t, cam0.Extrinsics.Translation.Z, test.ShouldAlmostEqual, 30.0, 1e-9)

	origRows := rot.Rows()
	gotRows := cam0.Extrinsics.Rotation.Rows()
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			test.That(t, gotRows[i][j], test.ShouldAlmostEqual, origRows[i][j], 1e-9)
		}
	}
}
