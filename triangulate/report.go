package triangulate

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/stat"

	"github.com/mocap-toolkit/corecalib/corerrors"
	"github.com/mocap-toolkit/corecalib/model"
)

// PointKey identifies one triangulated point's row for per-point reporting.
type PointKey struct {
	Sync, Point int
}

// ReprojectionReport is spec §4.6's reprojection accuracy summary: overall
// RMSE across every observation with a calibrated camera and a
// triangulated point, per-camera RMSE, and per-point max/mean residuals.
type ReprojectionReport struct {
	OverallRMSE   float64
	PerCameraRMSE map[int]float64
	PerPointMax   map[PointKey]float64
	PerPointMean  map[PointKey]float64
}

// Reproject computes the ReprojectionReport over every (camera, world
// point) pair an ImagePoints row references.
func Reproject(cameras *model.CameraArray, points *model.ImagePoints, world *model.WorldPoints) (*ReprojectionReport, error) {
	var all []float64
	perCam := make(map[int][]float64)
	perPoint := make(map[PointKey][]float64)

	for _, o := range points.All() {
		cam, ok := cameras.Get(o.Port)
		if !ok || cam.Intrinsics == nil || cam.Extrinsics == nil {
			continue
		}
		wp, ok := world.Get(o.SyncIndex, o.PointID)
		if !ok {
			continue
		}
		camFrame := cam.Extrinsics.WorldToCamera(r3.Vector{X: wp.XCoord, Y: wp.YCoord, Z: wp.ZCoord})
		u, v, err := cam.Intrinsics.Project(camFrame)
		if err != nil {
			continue // behind the camera: not a reportable reprojection
		}
		du, dv := u-o.ImgLocX, v-o.ImgLocY
		res := math.Hypot(du, dv)

		all = append(all, res)
		perCam[o.Port] = append(perCam[o.Port], res)
		key := PointKey{o.SyncIndex, o.PointID}
		perPoint[key] = append(perPoint[key], res)
	}
	if len(all) == 0 {
		return nil, &corerrors.InsufficientObservations{Reason: "no observations with both a calibrated camera and a triangulated point to reproject"}
	}

	return &ReprojectionReport{
		OverallRMSE:   rmse(all),
		PerCameraRMSE: mapRMSE(perCam),
		PerPointMax:   mapMax(perPoint),
		PerPointMean:  mapMean(perPoint),
	}, nil
}

func rmse(residuals []float64) float64 {
	sq := make([]float64, len(residuals))
	for i, r := range residuals {
		sq[i] = r * r
	}
	return math.Sqrt(stat.Mean(sq, nil))
}

func mapRMSE(m map[int][]float64) map[int]float64 {
	out := make(map[int]float64, len(m))
	for k, v := range m {
		out[k] = rmse(v)
	}
	return out
}

func mapMean(m map[PointKey][]float64) map[PointKey]float64 {
	out := make(map[PointKey]float64, len(m))
	for k, v := range m {
		out[k] = stat.Mean(v, nil)
	}
	return out
}

func mapMax(m map[PointKey][]float64) map[PointKey]float64 {
	out := make(map[PointKey]float64, len(m))
	for k, rs := range m {
		max := rs[0]
		for _, r := range rs[1:] {
			if r > max {
				max = r
			}
		}
		out[k] = max
	}
	return out
}
