package bundle

import (
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"

	"github.com/mocap-toolkit/corecalib/corerrors"
	"github.com/mocap-toolkit/corecalib/model"
	"github.com/mocap-toolkit/corecalib/rimage/transform"
	"github.com/mocap-toolkit/corecalib/spatialmath"
)

// AlignToObject resolves bundle adjustment's 7 unobservable gauge degrees
// of freedom (spec §4.5) by the alignment strategy: find the similarity
// transform (scale, rotation, translation) that best maps the bundle's
// triangulated world points at syncIndex onto their known obj_loc_*
// coordinates (closed-form Umeyama SVD on centered point sets), then
// apply that transform to every camera and every 3-D point. The
// anchor-fix alternative (fix camera 0, drop its six parameters) is not
// implemented — spec §4.5 allows either and names alignment the default
// because it lets every camera refine (SPEC_FULL.md §D).
//
// The transform is applied to every camera in the array, not just the
// ones Optimize refines — gauge alignment is a rigid relabeling of the
// whole reconstruction's coordinate frame, so an ignore=true camera's
// existing extrinsics (SPEC_FULL.md §C.3) must move with it too.
func (b *Bundle) AlignToObject(syncIndex int) (*Bundle, error) {
	triangulated, known, err := correspondences(b, syncIndex)
	if err != nil {
		return nil, err
	}

	scale, rot, trans, err := umeyamaSimilarity(triangulated, known)
	if err != nil {
		return nil, err
	}

	newWorld := model.NewWorldPoints()
	for _, row := range b.World.All() {
		p := applySimilarity(scale, rot, trans, [3]float64{row.XCoord, row.YCoord, row.ZCoord})
		newWorld.Add(model.WorldObservation{
			SyncIndex: row.SyncIndex,
			PointID:   row.PointID,
			XCoord:    p[0], YCoord: p[1], ZCoord: p[2],
			FrameTime: row.FrameTime,
		})
	}

	newCameras := b.Cameras.Clone()
	for _, port := range b.Cameras.Ports() {
		cam, _ := b.Cameras.Get(port)
		if cam.Extrinsics == nil {
			continue
		}
		newExt, err := alignCameraExtrinsics(cam.Extrinsics, scale, rot, trans)
		if err != nil {
			return nil, err
		}
		updated := *cam
		updated.Extrinsics = newExt
		newCameras.Set(&updated)
	}

	return &Bundle{Cameras: newCameras, Points: b.Points, World: newWorld}, nil
}

// correspondences collects the (triangulated, known) point pairs at
// syncIndex: the bundle's own WorldPoints rows matched against whichever
// ImagePoints rows at that sync index carry a known obj_loc_* (spec §3,
// only non-null for calibration-target observations).
func correspondences(b *Bundle, syncIndex int) ([][3]float64, [][3]float64, error) {
	objByPoint := make(map[int][3]float64)
	for _, o := range b.Points.BySync(syncIndex) {
		if !o.HasObjLoc {
			continue
		}
		if _, ok := objByPoint[o.PointID]; !ok {
			objByPoint[o.PointID] = [3]float64{o.ObjLocX, o.ObjLocY, o.ObjLocZ}
		}
	}

	var triangulated, known [][3]float64
	for _, w := range b.World.BySync(syncIndex) {
		obj, ok := objByPoint[w.PointID]
		if !ok {
			continue
		}
		triangulated = append(triangulated, [3]float64{w.XCoord, w.YCoord, w.ZCoord})
		known = append(known, obj)
	}
	if len(triangulated) < 3 {
		return nil, nil, &corerrors.InsufficientObservations{
			SyncIndex: syncIndex, HaveSync: true,
			Reason: "need >=3 known-object correspondences to align gauge",
		}
	}
	return triangulated, known, nil
}

// umeyamaSimilarity computes the least-squares similarity transform
// (scale, rotation, translation) mapping source points onto target
// points (Umeyama, 1991): center both sets, SVD the cross-covariance,
// recover a proper rotation with a reflection-sign fix, then the scale
// from the ratio of singular-value trace to source variance.
func umeyamaSimilarity(source, target [][3]float64) (float64, *spatialmath.RotationMatrix, r3.Vector, error) {
	n := len(source)
	var meanSrc, meanTgt [3]float64
	for i := 0; i < n; i++ {
		for d := 0; d < 3; d++ {
			meanSrc[d] += source[i][d]
			meanTgt[d] += target[i][d]
		}
	}
	for d := 0; d < 3; d++ {
		meanSrc[d] /= float64(n)
		meanTgt[d] /= float64(n)
	}

	h := mat.NewDense(3, 3, nil)
	var srcVar float64
	for i := 0; i < n; i++ {
		sc := [3]float64{source[i][0] - meanSrc[0], source[i][1] - meanSrc[1], source[i][2] - meanSrc[2]}
		tc := [3]float64{target[i][0] - meanTgt[0], target[i][1] - meanTgt[1], target[i][2] - meanTgt[2]}
		for a := 0; a < 3; a++ {
			for bb := 0; bb < 3; bb++ {
				h.Set(a, bb, h.At(a, bb)+sc[a]*tc[bb])
			}
		}
		srcVar += sc[0]*sc[0] + sc[1]*sc[1] + sc[2]*sc[2]
	}
	srcVar /= float64(n)
	if srcVar < 1e-12 {
		return 0, nil, r3.Vector{}, &corerrors.ShapeOrInvariantViolation{What: "umeyama: degenerate (near-zero variance) source points"}
	}

	var svd mat.SVD
	if ok := svd.Factorize(h, mat.SVDFull); !ok {
		return 0, nil, r3.Vector{}, &corerrors.ShapeOrInvariantViolation{What: "umeyama: SVD factorization failed"}
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)
	singVals := svd.Values(nil)

	var uv mat.Dense
	uv.Mul(&u, v.T())
	d := 1.0
	if mat.Det(&uv) < 0 {
		d = -1.0
	}

	dMat := mat.NewDense(3, 3, nil)
	dMat.Set(0, 0, 1)
	dMat.Set(1, 1, 1)
	dMat.Set(2, 2, d)

	var vd, rDense mat.Dense
	vd.Mul(&v, dMat)
	rDense.Mul(&vd, u.T())

	var rows [3][3]float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			rows[i][j] = rDense.At(i, j)
		}
	}
	rot, err := spatialmath.NewRotationMatrix(rows)
	if err != nil {
		return 0, nil, r3.Vector{}, err
	}

	// h is the unnormalized (summed) cross-covariance while srcVar is a
	// per-point mean, so the trace is divided by n*srcVar.
	trace := singVals[0] + singVals[1] + d*singVals[2]
	scale := trace / (srcVar * float64(n))

	rr := rot.Rows()
	rotMeanSrc := [3]float64{
		rr[0][0]*meanSrc[0] + rr[0][1]*meanSrc[1] + rr[0][2]*meanSrc[2],
		rr[1][0]*meanSrc[0] + rr[1][1]*meanSrc[1] + rr[1][2]*meanSrc[2],
		rr[2][0]*meanSrc[0] + rr[2][1]*meanSrc[1] + rr[2][2]*meanSrc[2],
	}
	trans := r3.Vector{
		X: meanTgt[0] - scale*rotMeanSrc[0],
		Y: meanTgt[1] - scale*rotMeanSrc[1],
		Z: meanTgt[2] - scale*rotMeanSrc[2],
	}
	return scale, rot, trans, nil
}

func applySimilarity(scale float64, rot *spatialmath.RotationMatrix, trans r3.Vector, p [3]float64) [3]float64 {
	r := rot.Rows()
	x := scale*(r[0][0]*p[0]+r[0][1]*p[1]+r[0][2]*p[2]) + trans.X
	y := scale*(r[1][0]*p[0]+r[1][1]*p[1]+r[1][2]*p[2]) + trans.Y
	z := scale*(r[2][0]*p[0]+r[2][1]*p[1]+r[2][2]*p[2]) + trans.Z
	return [3]float64{x, y, z}
}

// alignCameraExtrinsics re-expresses a camera's pose in the aligned world
// frame. Since pinhole projection is invariant to a uniform positive
// rescaling of camera-frame coordinates, the new rotation stays a pure
// rotation composition (camRot * rot^T, no scale factor) while the scale
// only enters the translation: newRot = camRot*rot^T,
// newT = -newRot*trans + scale*camT.
func alignCameraExtrinsics(ext *transform.Extrinsics, scale float64, rot *spatialmath.RotationMatrix, trans r3.Vector) (*transform.Extrinsics, error) {
	camRot := ext.Rotation.Rows()
	r := rot.Rows()

	var newRows [3][3]float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			var sum float64
			for k := 0; k < 3; k++ {
				sum += camRot[i][k] * r[j][k] // r^T[k][j] == r[j][k]
			}
			newRows[i][j] = sum
		}
	}
	newRot, err := spatialmath.NewRotationMatrix(newRows)
	if err != nil {
		return nil, err
	}

	rotTrans := r3.Vector{
		X: newRows[0][0]*trans.X + newRows[0][1]*trans.Y + newRows[0][2]*trans.Z,
		Y: newRows[1][0]*trans.X + newRows[1][1]*trans.Y + newRows[1][2]*trans.Z,
		Z: newRows[2][0]*trans.X + newRows[2][1]*trans.Y + newRows[2][2]*trans.Z,
	}
	newT := r3.Vector{
		X: -rotTrans.X + scale*ext.Translation.X,
		Y: -rotTrans.Y + scale*ext.Translation.Y,
		Z: -rotTrans.Z + scale*ext.Translation.Z,
	}
	return &transform.Extrinsics{Rotation: newRot, Translation: newT}, nil
}
