// Package model holds the core data types shared across the calibration
// pipeline: cameras, image/world point tables, and the frame structures
// the capture and synchronization layers exchange (spec §3).
package model

import (
	"sort"

	"github.com/mocap-toolkit/corecalib/corerrors"
	"github.com/mocap-toolkit/corecalib/rimage/transform"
)

// CameraData is one camera's full calibration state: its port, intrinsic
// model, extrinsic pose, and an optional upstream image-rotation count.
type CameraData struct {
	Port          int
	Intrinsics    *transform.PinholeCameraIntrinsics
	Extrinsics    *transform.Extrinsics
	RotationCount int
	HasRotation   bool
	// Ignore marks a camera excluded from array init/BA/triangulation
	// without removing its persisted calibration (config §6 `ignore`).
	Ignore bool
}

// CheckValid validates the port and, if present, the intrinsics/extrinsics.
func (c *CameraData) CheckValid() error {
	if c == nil {
		return &corerrors.ShapeOrInvariantViolation{What: "camera data is nil"}
	}
	if c.Port < 0 {
		return &corerrors.ShapeOrInvariantViolation{What: "camera port is negative"}
	}
	if c.Intrinsics != nil {
		if err := c.Intrinsics.CheckValid(); err != nil {
			return err
		}
	}
	if c.Extrinsics != nil {
		if err := c.Extrinsics.CheckValid(); err != nil {
			return err
		}
	}
	return nil
}

// CameraArray maps port to CameraData. Keys are unique; insertion order is
// irrelevant, iteration always yields ascending port order (spec §3).
type CameraArray struct {
	cameras map[int]*CameraData
}

// NewCameraArray builds an empty array.
func NewCameraArray() *CameraArray {
	return &CameraArray{cameras: make(map[int]*CameraData)}
}

// Set inserts or replaces the camera at its own port.
func (a *CameraArray) Set(c *CameraData) {
	a.cameras[c.Port] = c
}

// Get returns the camera at port, if present.
func (a *CameraArray) Get(port int) (*CameraData, bool) {
	c, ok := a.cameras[port]
	return c, ok
}

// Delete removes the camera at port.
func (a *CameraArray) Delete(port int) {
	delete(a.cameras, port)
}

// Len returns the number of cameras.
func (a *CameraArray) Len() int { return len(a.cameras) }

// Ports returns every port in ascending order.
func (a *CameraArray) Ports() []int {
	ports := make([]int, 0, len(a.cameras))
	for p := range a.cameras {
		ports = append(ports, p)
	}
	sort.Ints(ports)
	return ports
}

// ActivePorts returns every non-Ignore port in ascending order.
func (a *CameraArray) ActivePorts() []int {
	all := a.Ports()
	active := make([]int, 0, len(all))
	for _, p := range all {
		if c := a.cameras[p]; c != nil && !c.Ignore {
			active = append(active, p)
		}
	}
	return active
}

// Range calls fn for every camera in ascending port order, stopping early
// if fn returns false.
func (a *CameraArray) Range(fn func(*CameraData) bool) {
	for _, p := range a.Ports() {
		if !fn(a.cameras[p]) {
			return
		}
	}
}

// Clone returns a shallow copy of the array with a fresh backing map; the
// CameraData pointers are shared, matching the "pass by value, old
// snapshot stays valid" ownership policy of spec §5 (components replace
// CameraData entries rather than mutating them in place).
func (a *CameraArray) Clone() *CameraArray {
	out := NewCameraArray()
	for port, c := range a.cameras {
		out.cameras[port] = c
	}
	return out
}
