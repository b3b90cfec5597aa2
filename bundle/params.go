package bundle

import (
	"sort"

	"github.com/golang/geo/r3"

	"github.com/mocap-toolkit/corecalib/corerrors"
	"github.com/mocap-toolkit/corecalib/model"
	"github.com/mocap-toolkit/corecalib/rimage/transform"
	"github.com/mocap-toolkit/corecalib/spatialmath"
)

// cameraParamCount is the number of floats the Bundle Adjuster packs per
// camera: a Rodrigues rotation triplet plus a translation (spec §4.5).
// The layout below is written to leave room for an 11-float/camera joint
// intrinsic+extrinsic variant (rotation, translation, fx, fy, cx, cy, k1)
// — spec §4.5 names this as an optional extension — but only the 6-float
// extrinsic-only form is ever packed; no caller reads past index 5 of a
// camera's block.
const cameraParamCount = 6

// pointKey identifies one 3-D point parameter: a single (sync_index,
// point_id) row of WorldPoints, matching the original implementation's
// per-frame (not just per-point-id) point parameterization.
type pointKey struct {
	Sync, Point int
}

// paramLayout is the bookkeeping a single Optimize/Residuals call needs:
// which cameras and which world points are parameters, in what column
// order, and which observations feed the residual vector.
type paramLayout struct {
	camOrder     []int
	camIndexOf   map[int]int
	pointOrder   []pointKey
	pointIndexOf map[pointKey]int
	obs          []model.ImageObservation
}

func (l *paramLayout) numParams() int {
	return cameraParamCount*len(l.camOrder) + 3*len(l.pointOrder)
}

func (l *paramLayout) numResiduals() int {
	return 2 * len(l.obs)
}

// buildParamLayout selects the active cameras and the world points their
// observations reference, and reports RankDeficient for any active
// camera with no qualifying observations (spec §4.5 failure mode).
func buildParamLayout(b *Bundle) (*paramLayout, error) {
	camOrder := b.Cameras.ActivePorts()
	if len(camOrder) == 0 {
		return nil, &corerrors.InsufficientObservations{Reason: "no active (non-ignored) cameras"}
	}
	camIndexOf := make(map[int]int, len(camOrder))
	for i, port := range camOrder {
		cam, ok := b.Cameras.Get(port)
		if !ok || cam.Extrinsics == nil || cam.Intrinsics == nil {
			return nil, &corerrors.ShapeOrInvariantViolation{What: "active camera is missing intrinsics or extrinsics"}
		}
		camIndexOf[port] = i
	}

	obsByCam := make([][]model.ImageObservation, len(camOrder))
	pointSeen := make(map[pointKey]struct{})
	for _, o := range b.Points.All() {
		ci, ok := camIndexOf[o.Port]
		if !ok {
			continue // camera not active: ignore=true, spec SPEC_FULL.md C.3
		}
		key := pointKey{o.SyncIndex, o.PointID}
		if _, ok := b.World.Get(key.Sync, key.Point); !ok {
			continue // not yet triangulated: nothing to refine it against
		}
		obsByCam[ci] = append(obsByCam[ci], o)
		pointSeen[key] = struct{}{}
	}

	for i := range camOrder {
		if len(obsByCam[i]) == 0 {
			base := cameraParamCount * i
			idx := make([]int, cameraParamCount)
			for k := range idx {
				idx[k] = base + k
			}
			return nil, &corerrors.RankDeficient{ParamIndices: idx}
		}
	}

	pointOrder := make([]pointKey, 0, len(pointSeen))
	for k := range pointSeen {
		pointOrder = append(pointOrder, k)
	}
	sort.Slice(pointOrder, func(i, j int) bool {
		if pointOrder[i].Sync != pointOrder[j].Sync {
			return pointOrder[i].Sync < pointOrder[j].Sync
		}
		return pointOrder[i].Point < pointOrder[j].Point
	})
	pointIndexOf := make(map[pointKey]int, len(pointOrder))
	for i, k := range pointOrder {
		pointIndexOf[k] = i
	}

	var obs []model.ImageObservation
	for _, rows := range obsByCam {
		obs = append(obs, rows...)
	}

	return &paramLayout{
		camOrder:     camOrder,
		camIndexOf:   camIndexOf,
		pointOrder:   pointOrder,
		pointIndexOf: pointIndexOf,
		obs:          obs,
	}, nil
}

// packInitial builds the starting parameter vector from the bundle's
// current camera extrinsics and world point coordinates.
func packInitial(b *Bundle, l *paramLayout) []float64 {
	x := make([]float64, l.numParams())
	for i, port := range l.camOrder {
		cam, _ := b.Cameras.Get(port)
		rod := spatialmath.RotationMatrixToRodrigues(cam.Extrinsics.Rotation)
		base := cameraParamCount * i
		copy(x[base:base+3], rod[:])
		x[base+3] = cam.Extrinsics.Translation.X
		x[base+4] = cam.Extrinsics.Translation.Y
		x[base+5] = cam.Extrinsics.Translation.Z
	}
	pointBase := cameraParamCount * len(l.camOrder)
	for i, k := range l.pointOrder {
		wp, _ := b.World.Get(k.Sync, k.Point)
		base := pointBase + 3*i
		x[base] = wp.XCoord
		x[base+1] = wp.YCoord
		x[base+2] = wp.ZCoord
	}
	return x
}

// unpackedExtrinsics reads one camera's 6-float block out of a parameter
// vector.
func unpackedExtrinsics(x []float64, camIndex int) (*transform.Extrinsics, error) {
	base := cameraParamCount * camIndex
	rot := spatialmath.RodriguesToRotationMatrix([3]float64{x[base], x[base+1], x[base+2]})
	if err := rot.CheckValid(); err != nil {
		return nil, err
	}
	return &transform.Extrinsics{
		Rotation:    rot,
		Translation: r3.Vector{X: x[base+3], Y: x[base+4], Z: x[base+5]},
	}, nil
}

// unpackedPoint reads one world point's 3-float block out of a parameter
// vector.
func unpackedPoint(x []float64, l *paramLayout, pointIndex int) (float64, float64, float64) {
	base := cameraParamCount*len(l.camOrder) + 3*pointIndex
	return x[base], x[base+1], x[base+2]
}
