package spatialmath

import "github.com/golang/geo/r3"

// Pose is a rigid transform: a translation (Point) plus an Orientation.
type Pose interface {
	Point() r3.Vector
	Orientation() Orientation
}

type pose struct {
	point       r3.Vector
	orientation Orientation
}

func (p *pose) Point() r3.Vector           { return p.point }
func (p *pose) Orientation() Orientation   { return p.orientation }

// NewPose builds a Pose from a translation and an Orientation.
func NewPose(point r3.Vector, o Orientation) Pose {
	if o == nil {
		o = identityOrientation{}
	}
	return &pose{point: point, orientation: o}
}

// NewPoseFromPoint builds a Pose with identity orientation.
func NewPoseFromPoint(point r3.Vector) Pose {
	return &pose{point: point, orientation: identityOrientation{}}
}

// NewPoseFromOrientation builds a Pose at the origin with the given
// orientation.
func NewPoseFromOrientation(o Orientation) Pose {
	return &pose{point: r3.Vector{}, orientation: o}
}

// NewZeroPose returns the identity pose (zero translation, zero rotation).
func NewZeroPose() Pose {
	return &pose{point: r3.Vector{}, orientation: identityOrientation{}}
}

type identityOrientation struct{}

func (identityOrientation) Quaternion() Quaternion {
	return Quaternion{Real: 1}
}

func (identityOrientation) RotationMatrix() *RotationMatrix {
	return &RotationMatrix{rows: [3][3]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}}
}
