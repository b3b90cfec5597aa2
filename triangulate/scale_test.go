package triangulate

import (
	"testing"

	"go.viam.com/test"

	"github.com/mocap-toolkit/corecalib/model"
)

func TestScaleAccuracyNoiselessIsZero(t *testing.T) {
	points := model.NewImagePoints()
	world := model.NewWorldPoints()

	objPoints := [][3]float64{{0, 0, 0}, {100, 0, 0}, {0, 100, 0}, {50, 50, 20}}
	for i, o := range objPoints {
		points.Add(model.ImageObservation{SyncIndex: 0, Port: 0, PointID: i, HasObjLoc: true, ObjLocX: o[0], ObjLocY: o[1], ObjLocZ: o[2]})
		world.Add(model.WorldObservation{SyncIndex: 0, PointID: i, XCoord: o[0], YCoord: o[1], ZCoord: o[2]})
	}

	report, err := ScaleAccuracy(points, world, 0)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, report.DistanceRMSEMM, test.ShouldAlmostEqual, 0.0, 1e-6)
	test.That(t, report.MaxAbsErrorMM, test.ShouldAlmostEqual, 0.0, 1e-6)
	test.That(t, report.RelativeErrorPercent, test.ShouldAlmostEqual, 0.0, 1e-6)
}

func TestScaleAccuracyDetectsUniformRescale(t *testing.T) {
	points := model.NewImagePoints()
	world := model.NewWorldPoints()

	objPoints := [][3]float64{{0, 0, 0}, {100, 0, 0}, {0, 100, 0}}
	const scale = 1.1
	for i, o := range objPoints {
		points.Add(model.ImageObservation{SyncIndex: 0, Port: 0, PointID: i, HasObjLoc: true, ObjLocX: o[0], ObjLocY: o[1], ObjLocZ: o[2]})
		world.Add(model.WorldObservation{SyncIndex: 0, PointID: i, XCoord: o[0] * scale, YCoord: o[1] * scale, ZCoord: o[2] * scale})
	}

	report, err := ScaleAccuracy(points, world, 0)
	test.That(t, err, test.ShouldBeNil)
	// every pairwise distance is scaled by 1.1x, so a ~100-141mm edge reads
	// 10-14mm off.
	test.That(t, report.MeanAbsErrorMM, test.ShouldAlmostEqual, 11.38, 0.1)
	test.That(t, report.DistanceRMSEMM, test.ShouldAlmostEqual, 11.55, 0.1)
	test.That(t, report.RelativeErrorPercent, test.ShouldBeGreaterThan, 5.0)
}

func TestScaleAccuracyRequiresTwoCorrespondences(t *testing.T) {
	points := model.NewImagePoints()
	world := model.NewWorldPoints()
	points.Add(model.ImageObservation{SyncIndex: 0, Port: 0, PointID: 0, HasObjLoc: true})
	world.Add(model.WorldObservation{SyncIndex: 0, PointID: 0})

	_, err := ScaleAccuracy(points, world, 0)
	test.That(t, err, test.ShouldNotBeNil)
}
