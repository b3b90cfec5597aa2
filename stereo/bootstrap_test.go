package stereo

import (
	"errors"
	"testing"

	"go.viam.com/test"

	"github.com/mocap-toolkit/corecalib/corerrors"
	"github.com/mocap-toolkit/corecalib/rimage/transform"
	"github.com/mocap-toolkit/corecalib/spatialmath"
)

// projectPinhole projects a camera-frame point through a pinhole with no
// distortion, matching the convention Bootstrap's residual function uses.
func projectPinhole(x, y, z, fx, fy, cx, cy float64) (float64, float64) {
	if z <= 1e-9 {
		z = 1e-9
	}
	return fx*(x/z) + cx, fy*(y/z) + cy
}

func makeBoardGrid() [][2]float64 {
	var grid [][2]float64
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			grid = append(grid, [2]float64{float64(i) * 50, float64(j) * 50})
		}
	}
	return grid
}

// buildSharedFrames synthesizes shared board observations for two cameras
// whose true relative pose is (relRot, relT): camera A sees the board at
// several poses directly; camera B's view is derived by composing each
// board-in-A pose with the fixed relative transform.
func buildSharedFrames(
	grid [][2]float64,
	boardPosesA [][3]float64, boardTranslA [][3]float64,
	relRot *spatialmath.RotationMatrix, relT [3]float64,
	fxA, fyA, cxA, cyA, fxB, fyB, cxB, cyB float64,
) []SharedFrame {
	relRows := relRot.Rows()
	var frames []SharedFrame
	for fi, aa := range boardPosesA {
		mA := spatialmath.RodriguesToRotationMatrix(aa).Rows()
		tA := boardTranslA[fi]

		var imA, imB [][2]float64
		for _, p := range grid {
			pax := mA[0][0]*p[0] + mA[0][1]*p[1] + tA[0]
			pay := mA[1][0]*p[0] + mA[1][1]*p[1] + tA[1]
			paz := mA[2][0]*p[0] + mA[2][1]*p[1] + tA[2]
			ua, va := projectPinhole(pax, pay, paz, fxA, fyA, cxA, cyA)
			imA = append(imA, [2]float64{ua, va})

			pbx := relRows[0][0]*pax + relRows[0][1]*pay + relRows[0][2]*paz + relT[0]
			pby := relRows[1][0]*pax + relRows[1][1]*pay + relRows[1][2]*paz + relT[1]
			pbz := relRows[2][0]*pax + relRows[2][1]*pay + relRows[2][2]*paz + relT[2]
			ub, vb := projectPinhole(pbx, pby, pbz, fxB, fyB, cxB, cyB)
			imB = append(imB, [2]float64{ub, vb})
		}
		frames = append(frames, SharedFrame{ObjectLoc: grid, ImageLocA: imA, ImageLocB: imB})
	}
	return frames
}

func TestBootstrapRecoversExactRelativePoseNoiselessData(t *testing.T) {
	const fx, fy, cx, cy = 2000.0, 2000.0, 1000.0, 1000.0
	intrA := &transform.PinholeCameraIntrinsics{Width: 2000, Height: 2000, Fx: fx, Fy: fy, Ppx: cx, Ppy: cy, Distortion: transform.NewBrownConrady([5]float64{})}
	intrB := &transform.PinholeCameraIntrinsics{Width: 2000, Height: 2000, Fx: fx, Fy: fy, Ppx: cx, Ppy: cy, Distortion: transform.NewBrownConrady([5]float64{})}

	grid := makeBoardGrid()
	boardPosesA := [][3]float64{{0, 0, 0}, {0.2, 0, 0}, {0, 0.15, 0.1}, {0.1, 0.1, 0}, {-0.1, 0.05, 0.05}}
	boardTranslA := [][3]float64{{0, 0, 900}, {0, 0, 900}, {50, 0, 900}, {0, 50, 900}, {-50, -20, 900}}

	// True baseline: camera B is translated 100mm along +X from camera A,
	// with a small relative yaw so the solve isn't degenerate.
	relRot := spatialmath.RodriguesToRotationMatrix([3]float64{0, 0.05, 0})
	relT := [3]float64{100, 0, 0}

	frames := buildSharedFrames(grid, boardPosesA, boardTranslA, relRot, relT, fx, fy, cx, cy, fx, fy, cx, cy)

	cfg := DefaultConfig()
	cfg.MinSharedBoards = 5
	cfg.RMSEThreshold = 1.0

	pair, err := Bootstrap(0, 1, intrA, intrB, frames, cfg)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, pair.PrimaryPort, test.ShouldEqual, 0)
	test.That(t, pair.SecondaryPort, test.ShouldEqual, 1)
	test.That(t, pair.ErrorScore, test.ShouldBeLessThan, 1e-1)
	test.That(t, pair.Translation.X, test.ShouldAlmostEqual, 100.0, 1.0)
	test.That(t, pair.Translation.Y, test.ShouldAlmostEqual, 0.0, 1.0)
	test.That(t, pair.Translation.Z, test.ShouldAlmostEqual, 0.0, 1.0)
}

func TestBootstrapInvertsOrderingWhenPortAGreaterThanPortB(t *testing.T) {
	const fx, fy, cx, cy = 2000.0, 2000.0, 1000.0, 1000.0
	intrA := &transform.PinholeCameraIntrinsics{Width: 2000, Height: 2000, Fx: fx, Fy: fy, Ppx: cx, Ppy: cy, Distortion: transform.NewBrownConrady([5]float64{})}
	intrB := &transform.PinholeCameraIntrinsics{Width: 2000, Height: 2000, Fx: fx, Fy: fy, Ppx: cx, Ppy: cy, Distortion: transform.NewBrownConrady([5]float64{})}

	grid := makeBoardGrid()
	boardPosesA := [][3]float64{{0, 0, 0}, {0.2, 0, 0}, {0, 0.15, 0.1}, {0.1, 0.1, 0}, {-0.1, 0.05, 0.05}}
	boardTranslA := [][3]float64{{0, 0, 900}, {0, 0, 900}, {50, 0, 900}, {0, 50, 900}, {-50, -20, 900}}
	relRot := spatialmath.RodriguesToRotationMatrix([3]float64{0, 0.05, 0})
	relT := [3]float64{100, 0, 0}
	frames := buildSharedFrames(grid, boardPosesA, boardTranslA, relRot, relT, fx, fy, cx, cy, fx, fy, cx, cy)

	cfg := DefaultConfig()
	cfg.MinSharedBoards = 5
	cfg.RMSEThreshold = 1.0

	// Call with portA=5 (camera "A" in the synthetic scene) and
	// portB=2 (camera "B"): since 5 > 2, the canonical pair must come
	// back as primary=2, secondary=5, the inverted transform.
	pair, err := Bootstrap(5, 2, intrA, intrB, frames, cfg)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, pair.PrimaryPort, test.ShouldEqual, 2)
	test.That(t, pair.SecondaryPort, test.ShouldEqual, 5)
}

func TestBootstrapRejectsTooFewSharedBoards(t *testing.T) {
	const fx, fy, cx, cy = 2000.0, 2000.0, 1000.0, 1000.0
	intrA := &transform.PinholeCameraIntrinsics{Width: 2000, Height: 2000, Fx: fx, Fy: fy, Ppx: cx, Ppy: cy, Distortion: transform.NewBrownConrady([5]float64{})}
	intrB := &transform.PinholeCameraIntrinsics{Width: 2000, Height: 2000, Fx: fx, Fy: fy, Ppx: cx, Ppy: cy, Distortion: transform.NewBrownConrady([5]float64{})}

	grid := makeBoardGrid()
	relRot := spatialmath.RodriguesToRotationMatrix([3]float64{0, 0.05, 0})
	frames := buildSharedFrames(grid, [][3]float64{{0, 0, 0}}, [][3]float64{{0, 0, 900}}, relRot, [3]float64{100, 0, 0}, fx, fy, cx, cy, fx, fy, cx, cy)

	cfg := DefaultConfig()
	_, err := Bootstrap(0, 1, intrA, intrB, frames, cfg)
	test.That(t, err, test.ShouldNotBeNil)
	var target *corerrors.StereoPairBelowThreshold
	test.That(t, errors.As(err, &target), test.ShouldBeTrue)
}
