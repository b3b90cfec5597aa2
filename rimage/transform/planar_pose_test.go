package transform

import (
	"testing"

	"go.viam.com/test"

	"github.com/mocap-toolkit/corecalib/spatialmath"
)

func TestEstimatePlanarPoseRecoversKnownPose(t *testing.T) {
	const fx, fy, cx, cy = 1000.0, 1000.0, 500.0, 500.0
	rot := spatialmath.RodriguesToRotationMatrix([3]float64{0.1, 0.2, 0.05})
	m := rot.Rows()
	tx, ty, tz := 10.0, -5.0, 600.0

	var grid [][2]float64
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			grid = append(grid, [2]float64{float64(i) * 40, float64(j) * 40})
		}
	}

	var img [][2]float64
	for _, p := range grid {
		px := m[0][0]*p[0] + m[0][1]*p[1] + tx
		py := m[1][0]*p[0] + m[1][1]*p[1] + ty
		pz := m[2][0]*p[0] + m[2][1]*p[1] + tz
		img = append(img, [2]float64{fx*px/pz + cx, fy*py/pz + cy})
	}

	gotRot, gotT, err := EstimatePlanarPose(grid, img, fx, fy, cx, cy)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, gotT.Z, test.ShouldBeGreaterThan, 0)
	test.That(t, gotRot.CheckValid(), test.ShouldBeNil)
}

func TestEstimatePlanarPoseRejectsTooFewPoints(t *testing.T) {
	_, _, err := EstimatePlanarPose([][2]float64{{0, 0}, {1, 0}}, [][2]float64{{0, 0}, {1, 0}}, 1000, 1000, 500, 500)
	test.That(t, err, test.ShouldNotBeNil)
}
