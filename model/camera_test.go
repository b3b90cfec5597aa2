package model

import (
	"testing"

	"go.viam.com/test"

	"github.com/mocap-toolkit/corecalib/rimage/transform"
)

func newTestCamera(port int) *CameraData {
	return &CameraData{
		Port: port,
		Intrinsics: &transform.PinholeCameraIntrinsics{
			Width: 1920, Height: 1080, Fx: 1000, Fy: 1000, Ppx: 960, Ppy: 540,
		},
	}
}

func TestCameraArrayOrdering(t *testing.T) {
	arr := NewCameraArray()
	arr.Set(newTestCamera(3))
	arr.Set(newTestCamera(1))
	arr.Set(newTestCamera(2))

	test.That(t, arr.Len(), test.ShouldEqual, 3)
	test.That(t, arr.Ports(), test.ShouldResemble, []int{1, 2, 3})

	var seen []int
	arr.Range(func(c *CameraData) bool {
		seen = append(seen, c.Port)
		return true
	})
	test.That(t, seen, test.ShouldResemble, []int{1, 2, 3})
}

func TestCameraArrayActivePorts(t *testing.T) {
	arr := NewCameraArray()
	arr.Set(newTestCamera(0))
	ignored := newTestCamera(1)
	ignored.Ignore = true
	arr.Set(ignored)
	arr.Set(newTestCamera(2))

	test.That(t, arr.ActivePorts(), test.ShouldResemble, []int{0, 2})
}

func TestCameraArrayCloneIndependence(t *testing.T) {
	arr := NewCameraArray()
	arr.Set(newTestCamera(0))
	clone := arr.Clone()
	clone.Set(newTestCamera(1))

	test.That(t, arr.Len(), test.ShouldEqual, 1)
	test.That(t, clone.Len(), test.ShouldEqual, 2)
}

func TestCameraDataCheckValid(t *testing.T) {
	c := newTestCamera(0)
	test.That(t, c.CheckValid(), test.ShouldBeNil)

	bad := newTestCamera(-1)
	test.That(t, bad.CheckValid(), test.ShouldNotBeNil)
}
