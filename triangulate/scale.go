package triangulate

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/mocap-toolkit/corecalib/corerrors"
	"github.com/mocap-toolkit/corecalib/model"
)

// ScaleAccuracyReport is spec §4.6's scale-accuracy check: pairwise
// distances among triangulated points compared against the same pairwise
// distances among their known object-frame coordinates. Reprojection RMSE
// alone cannot catch scale drift: a uniformly rescaled reconstruction
// reprojects perfectly but is physically wrong size, so this compares
// triangulated geometry against ground truth directly.
type ScaleAccuracyReport struct {
	DistanceRMSEMM       float64
	MeanAbsErrorMM       float64
	MaxAbsErrorMM        float64
	RelativeErrorPercent float64
}

// ScaleAccuracy computes the report for every pair of points at syncIndex
// that both have a triangulated WorldPoints row and a known obj_loc_* in
// points.
func ScaleAccuracy(points *model.ImagePoints, world *model.WorldPoints, syncIndex int) (*ScaleAccuracyReport, error) {
	objByPoint := make(map[int][3]float64)
	for _, o := range points.BySync(syncIndex) {
		if !o.HasObjLoc {
			continue
		}
		if _, ok := objByPoint[o.PointID]; !ok {
			objByPoint[o.PointID] = [3]float64{o.ObjLocX, o.ObjLocY, o.ObjLocZ}
		}
	}

	type pair struct {
		id       int
		tri, obj [3]float64
	}
	var rows []pair
	for _, w := range world.BySync(syncIndex) {
		obj, ok := objByPoint[w.PointID]
		if !ok {
			continue
		}
		rows = append(rows, pair{id: w.PointID, tri: [3]float64{w.XCoord, w.YCoord, w.ZCoord}, obj: obj})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].id < rows[j].id })

	if len(rows) < 2 {
		return nil, &corerrors.InsufficientObservations{
			SyncIndex: syncIndex, HaveSync: true,
			Reason: "need >=2 known-object correspondences for a pairwise scale check",
		}
	}

	var diffs, absDiffs, trueDists []float64
	for i := 0; i < len(rows); i++ {
		for j := i + 1; j < len(rows); j++ {
			dTri := dist(rows[i].tri, rows[j].tri)
			dObj := dist(rows[i].obj, rows[j].obj)
			diff := dTri - dObj
			diffs = append(diffs, diff)
			absDiffs = append(absDiffs, math.Abs(diff))
			trueDists = append(trueDists, dObj)
		}
	}

	sq := make([]float64, len(diffs))
	for i, d := range diffs {
		sq[i] = d * d
	}
	rmseVal := math.Sqrt(stat.Mean(sq, nil))
	meanAbs := stat.Mean(absDiffs, nil)
	maxAbs := absDiffs[0]
	for _, d := range absDiffs[1:] {
		if d > maxAbs {
			maxAbs = d
		}
	}
	meanTrueDist := stat.Mean(trueDists, nil)
	relative := 0.0
	if meanTrueDist > 1e-12 {
		relative = 100 * rmseVal / meanTrueDist
	}

	return &ScaleAccuracyReport{
		DistanceRMSEMM:       rmseVal,
		MeanAbsErrorMM:       meanAbs,
		MaxAbsErrorMM:        maxAbs,
		RelativeErrorPercent: relative,
	}, nil
}

func dist(a, b [3]float64) float64 {
	dx, dy, dz := a[0]-b[0], a[1]-b[1], a[2]-b[2]
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}
