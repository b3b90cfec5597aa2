package transform

import (
	"fmt"

	"github.com/golang/geo/r3"

	"github.com/mocap-toolkit/corecalib/corerrors"
	"github.com/mocap-toolkit/corecalib/spatialmath"
)

// PinholeCameraIntrinsics is the standard OpenCV-style pinhole model: a
// focal length / principal point pair plus optional lens distortion
// (spec §3, §4.2).
type PinholeCameraIntrinsics struct {
	Width, Height int
	Fx, Fy        float64
	Ppx, Ppy      float64
	Distortion    *BrownConrady
}

// CheckValid validates shape: positive image size and focal lengths, and
// a usable (possibly nil-safe) distortion model.
func (in *PinholeCameraIntrinsics) CheckValid() error {
	if in == nil {
		return &corerrors.ShapeOrInvariantViolation{What: "pinhole camera intrinsics are nil"}
	}
	if in.Width <= 0 || in.Height <= 0 {
		return &corerrors.ShapeOrInvariantViolation{What: fmt.Sprintf("image size (%d,%d) is not positive", in.Width, in.Height)}
	}
	if in.Fx <= 0 || in.Fy <= 0 {
		return &corerrors.ShapeOrInvariantViolation{What: fmt.Sprintf("focal length (%.3f,%.3f) is not positive", in.Fx, in.Fy)}
	}
	return in.Distortion.CheckValid()
}

// K returns the 3x3 camera matrix, row-major.
func (in *PinholeCameraIntrinsics) K() [3][3]float64 {
	return [3][3]float64{
		{in.Fx, 0, in.Ppx},
		{0, in.Fy, in.Ppy},
		{0, 0, 1},
	}
}

// Project maps a 3D point in camera coordinates to a 2D pixel coordinate,
// applying distortion. Points with non-positive depth cannot be projected.
func (in *PinholeCameraIntrinsics) Project(p r3.Vector) (float64, float64, error) {
	if p.Z <= 0 {
		return 0, 0, &corerrors.ShapeOrInvariantViolation{What: fmt.Sprintf("point depth %.6f is not positive", p.Z)}
	}
	x, y := p.X/p.Z, p.Y/p.Z
	dx, dy := in.Distortion.Distort(x, y)
	return in.Fx*dx + in.Ppx, in.Fy*dy + in.Ppy, nil
}

// Unproject maps a pixel coordinate at the given depth back to a 3D point
// in camera coordinates, inverting distortion.
func (in *PinholeCameraIntrinsics) Unproject(px, py, depth float64) r3.Vector {
	nx, ny := (px-in.Ppx)/in.Fx, (py-in.Ppy)/in.Fy
	ux, uy := in.Distortion.Undistort(nx, ny)
	return r3.Vector{X: ux * depth, Y: uy * depth, Z: depth}
}

// Extrinsics is the pose of this camera relative to a reference frame,
// expressed as world-coordinates-into-camera-coordinates: X_cam = R*X_world + t
// (SPEC_FULL.md §D rotation convention decision).
type Extrinsics struct {
	Rotation    *spatialmath.RotationMatrix
	Translation r3.Vector
}

// CheckValid validates the rotation's orthonormality invariant.
func (e *Extrinsics) CheckValid() error {
	if e == nil {
		return &corerrors.ShapeOrInvariantViolation{What: "extrinsics are nil"}
	}
	if err := e.Rotation.CheckValid(); err != nil {
		return &corerrors.ShapeOrInvariantViolation{What: err.Error()}
	}
	return nil
}

// WorldToCamera applies the extrinsic transform to a world-frame point.
func (e *Extrinsics) WorldToCamera(world r3.Vector) r3.Vector {
	m := e.Rotation.Rows()
	return r3.Vector{
		X: m[0][0]*world.X + m[0][1]*world.Y + m[0][2]*world.Z + e.Translation.X,
		Y: m[1][0]*world.X + m[1][1]*world.Y + m[1][2]*world.Z + e.Translation.Y,
		Z: m[2][0]*world.X + m[2][1]*world.Y + m[2][2]*world.Z + e.Translation.Z,
	}
}

// CameraToWorld applies the inverse extrinsic transform: X_world = R^T*(X_cam - t).
func (e *Extrinsics) CameraToWorld(cam r3.Vector) r3.Vector {
	m := e.Rotation.Rows()
	d := r3.Vector{X: cam.X - e.Translation.X, Y: cam.Y - e.Translation.Y, Z: cam.Z - e.Translation.Z}
	return r3.Vector{
		X: m[0][0]*d.X + m[1][0]*d.Y + m[2][0]*d.Z,
		Y: m[0][1]*d.X + m[1][1]*d.Y + m[2][1]*d.Z,
		Z: m[0][2]*d.X + m[1][2]*d.Y + m[2][2]*d.Z,
	}
}

// Pose returns the extrinsics as a spatialmath.Pose.
func (e *Extrinsics) Pose() spatialmath.Pose {
	return spatialmath.NewPose(e.Translation, e.Rotation)
}
