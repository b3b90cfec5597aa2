package spatialmath

import (
	"math"
	"testing"

	"go.viam.com/test"
)

func TestRotationMatrixCheckValid(t *testing.T) {
	identity, err := NewRotationMatrix([3][3]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, identity.CheckValid(), test.ShouldBeNil)

	var nilRot *RotationMatrix
	err = nilRot.CheckValid()
	test.That(t, err, test.ShouldNotBeNil)

	_, err = NewRotationMatrix([3][3]float64{{2, 0, 0}, {0, 1, 0}, {0, 0, 1}})
	test.That(t, err, test.ShouldNotBeNil)
}

func TestRodriguesRoundTrip(t *testing.T) {
	cases := [][3]float64{
		{0, 0, 0},
		{0.1, 0, 0},
		{0, 0.2, 0.3},
		{0.4, -0.5, 0.6},
		{math.Pi - 1e-4, 0, 0},
	}
	for _, r := range cases {
		m := RodriguesToRotationMatrix(r)
		test.That(t, m.CheckValid(), test.ShouldBeNil)
		back := RotationMatrixToRodrigues(m)
		m2 := RodriguesToRotationMatrix(back)
		for i := 0; i < 3; i++ {
			for j := 0; j < 3; j++ {
				test.That(t, m2.Rows()[i][j], test.ShouldAlmostEqual, m.Rows()[i][j], 1e-6)
			}
		}
	}
}

func TestOrientationVectorQuaternionRoundTrip(t *testing.T) {
	ov := &OrientationVectorDegrees{OX: 0, OY: 0, OZ: 1, Theta: 45}
	q := ov.Quaternion()
	rm := quaternionToRotationMatrix(q)
	test.That(t, rm.CheckValid(), test.ShouldBeNil)
	q2 := rm.Quaternion()
	test.That(t, math.Abs(q.Real), test.ShouldAlmostEqual, math.Abs(q2.Real), 1e-6)
}

func TestZeroPose(t *testing.T) {
	p := NewZeroPose()
	test.That(t, p.Point().X, test.ShouldEqual, 0.0)
	test.That(t, p.Point().Y, test.ShouldEqual, 0.0)
	test.That(t, p.Point().Z, test.ShouldEqual, 0.0)
	q := p.Orientation().Quaternion()
	test.That(t, q.Real, test.ShouldEqual, 1.0)
}
