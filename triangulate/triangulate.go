// Package triangulate implements the Triangulator & Reporter (spec §4.6):
// per-(sync_index, point_id) 3-D point recovery by the Direct Linear
// Transform, plus reprojection and scale-accuracy reporting.
package triangulate

import (
	"fmt"
	"math"
	"sort"

	"github.com/golang/geo/r3"
	"go.uber.org/multierr"
	"gonum.org/v1/gonum/mat"

	"github.com/mocap-toolkit/corecalib/corerrors"
	"github.com/mocap-toolkit/corecalib/model"
	"github.com/mocap-toolkit/corecalib/rimage/transform"
)

// Observation is one camera's 2-D sighting of the point being triangulated.
type Observation struct {
	Camera *model.CameraData
	U, V   float64
}

// Point solves for the 3-D point seen by every observation via the Direct
// Linear Transform (spec §4.6): each camera contributes two rows
// `[u*P2-P0; v*P2-P1]` of a stacked matrix A (P = K*[R|t]); the triangulated
// point is the right-singular vector of A with smallest singular value,
// de-homogenized. Observations are undistorted before forming A.
func Point(obs []Observation) (r3.Vector, error) {
	if len(obs) < 2 {
		return r3.Vector{}, &corerrors.InsufficientObservations{Reason: "need >=2 observations to triangulate a point"}
	}

	rows := make([]float64, 0, len(obs)*2*4)
	for _, o := range obs {
		p := projectionMatrix(o.Camera)
		ud, vd := undistortPixel(o.Camera.Intrinsics, o.U, o.V)
		for j := 0; j < 4; j++ {
			rows = append(rows, ud*p[2][j]-p[0][j])
		}
		for j := 0; j < 4; j++ {
			rows = append(rows, vd*p[2][j]-p[1][j])
		}
	}

	a := mat.NewDense(len(obs)*2, 4, rows)
	var svd mat.SVD
	if ok := svd.Factorize(a, mat.SVDThin); !ok {
		return r3.Vector{}, &corerrors.ShapeOrInvariantViolation{What: "triangulate: SVD factorization failed"}
	}
	var v mat.Dense
	svd.VTo(&v)

	w := v.At(3, 3)
	if math.Abs(w) < 1e-12 {
		return r3.Vector{}, &corerrors.ShapeOrInvariantViolation{What: "triangulate: degenerate homogeneous solution"}
	}
	return r3.Vector{X: v.At(0, 3) / w, Y: v.At(1, 3) / w, Z: v.At(2, 3) / w}, nil
}

// projectionMatrix builds P = K*[R|t] for a calibrated camera.
func projectionMatrix(cam *model.CameraData) [3][4]float64 {
	k := cam.Intrinsics.K()
	r := cam.Extrinsics.Rotation.Rows()
	t := cam.Extrinsics.Translation

	rt := [3][4]float64{
		{r[0][0], r[0][1], r[0][2], t.X},
		{r[1][0], r[1][1], r[1][2], t.Y},
		{r[2][0], r[2][1], r[2][2], t.Z},
	}
	var p [3][4]float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 4; j++ {
			var sum float64
			for kk := 0; kk < 3; kk++ {
				sum += k[i][kk] * rt[kk][j]
			}
			p[i][j] = sum
		}
	}
	return p
}

// undistortPixel removes lens distortion from a pixel observation, round
// tripping through normalized coordinates, so DLT's linear projection
// model (which assumes an ideal pinhole) applies.
func undistortPixel(in *transform.PinholeCameraIntrinsics, u, v float64) (float64, float64) {
	nx, ny := (u-in.Ppx)/in.Fx, (v-in.Ppy)/in.Fy
	ux, uy := in.Distortion.Undistort(nx, ny)
	return in.Fx*ux + in.Ppx, in.Fy*uy + in.Ppy
}

// TriangulateAll runs Point for every (sync_index, point_id) in points that
// has at least two observations from calibrated, non-ignored cameras,
// returning every recovered point as a WorldPoints table. A point with a
// degenerate DLT solution is skipped and aggregated via multierr rather
// than aborting the rest of the table.
func TriangulateAll(cameras *model.CameraArray, points *model.ImagePoints) (*model.WorldPoints, error) {
	world := model.NewWorldPoints()
	var errs error

	for _, sync := range points.SyncIndices() {
		byPoint := make(map[int][]Observation)
		frameTime := make(map[int]float64)
		for _, o := range points.BySync(sync) {
			cam, ok := cameras.Get(o.Port)
			if !ok || cam.Ignore || cam.Intrinsics == nil || cam.Extrinsics == nil {
				continue
			}
			byPoint[o.PointID] = append(byPoint[o.PointID], Observation{Camera: cam, U: o.ImgLocX, V: o.ImgLocY})
			frameTime[o.PointID] = o.FrameTime
		}

		pointIDs := make([]int, 0, len(byPoint))
		for pid := range byPoint {
			pointIDs = append(pointIDs, pid)
		}
		sort.Ints(pointIDs)

		for _, pid := range pointIDs {
			obs := byPoint[pid]
			if len(obs) < 2 {
				continue
			}
			p, err := Point(obs)
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("sync %d point %d: %w", sync, pid, err))
				continue
			}
			world.Add(model.WorldObservation{
				SyncIndex: sync, PointID: pid,
				XCoord: p.X, YCoord: p.Y, ZCoord: p.Z,
				FrameTime: frameTime[pid],
			})
		}
	}
	return world, errs
}
