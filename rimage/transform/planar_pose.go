package transform

import (
	"fmt"
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"

	"github.com/mocap-toolkit/corecalib/corerrors"
	"github.com/mocap-toolkit/corecalib/spatialmath"
)

// EstimatePlanarPose recovers the pose of a z=0 object plane relative to
// a camera with known intrinsics (fx, fy, cx, cy, no distortion assumed)
// from >=4 point correspondences, via the classic Zhang-method planar
// homography decomposition. Used to seed per-frame board poses for both
// intrinsic calibration (§4.2) and stereo bootstrap (§4.3) before
// nonlinear refinement.
func EstimatePlanarPose(objPts, imgPts [][2]float64, fx, fy, cx, cy float64) (*spatialmath.RotationMatrix, r3.Vector, error) {
	if len(objPts) < 4 || len(objPts) != len(imgPts) {
		return nil, r3.Vector{}, &corerrors.InsufficientObservations{Reason: "need >=4 matched correspondences for planar pose"}
	}
	h, err := fitHomography(objPts, imgPts)
	if err != nil {
		return nil, r3.Vector{}, err
	}
	return decomposeHomography(h, fx, fy, cx, cy)
}

func fitHomography(obj, img [][2]float64) (*mat.Dense, error) {
	n := len(obj)
	a := mat.NewDense(2*n, 9, nil)
	for i := 0; i < n; i++ {
		x, y := obj[i][0], obj[i][1]
		u, v := img[i][0], img[i][1]
		a.SetRow(2*i, []float64{-x, -y, -1, 0, 0, 0, u * x, u * y, u})
		a.SetRow(2*i+1, []float64{0, 0, 0, -x, -y, -1, v * x, v * y, v})
	}
	var svd mat.SVD
	if ok := svd.Factorize(a, mat.SVDFull); !ok {
		return nil, &corerrors.ShapeOrInvariantViolation{What: "homography fit: SVD factorization failed"}
	}
	var v mat.Dense
	svd.VTo(&v)

	h := mat.NewDense(3, 3, nil)
	for i := 0; i < 9; i++ {
		h.Set(i/3, i%3, v.At(i, 8))
	}
	return h, nil
}

func decomposeHomography(h *mat.Dense, fx, fy, cx, cy float64) (*spatialmath.RotationMatrix, r3.Vector, error) {
	k := mat.NewDense(3, 3, []float64{fx, 0, cx, 0, fy, cy, 0, 0, 1})
	var kInv mat.Dense
	if err := kInv.Inverse(k); err != nil {
		return nil, r3.Vector{}, &corerrors.ShapeOrInvariantViolation{What: fmt.Sprintf("K is not invertible: %v", err)}
	}

	var rh mat.Dense
	rh.Mul(&kInv, h)

	h1 := []float64{rh.At(0, 0), rh.At(1, 0), rh.At(2, 0)}
	h2 := []float64{rh.At(0, 1), rh.At(1, 1), rh.At(2, 1)}
	h3 := []float64{rh.At(0, 2), rh.At(1, 2), rh.At(2, 2)}

	lambda := 1 / vecNorm(h1)
	r1 := vecScale(h1, lambda)
	r2 := vecScale(h2, lambda)
	r3vec := vecCross(r1, r2)
	t := vecScale(h3, lambda)

	if t[2] < 0 {
		r1, r2, r3vec = vecScale(r1, -1), vecScale(r2, -1), vecScale(r3vec, -1)
		t = vecScale(t, -1)
	}

	raw := [3][3]float64{
		{r1[0], r2[0], r3vec[0]},
		{r1[1], r2[1], r3vec[1]},
		{r1[2], r2[2], r3vec[2]},
	}
	rot, err := spatialmath.OrthonormalizeRotation(raw)
	if err != nil {
		return nil, r3.Vector{}, err
	}
	return rot, r3.Vector{X: t[0], Y: t[1], Z: t[2]}, nil
}

func vecNorm(v []float64) float64 {
	return math.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])
}

func vecScale(v []float64, s float64) []float64 {
	return []float64{v[0] * s, v[1] * s, v[2] * s}
}

func vecCross(a, b []float64) []float64 {
	return []float64{
		a[1]*b[2] - a[2]*b[1],
		a[2]*b[0] - a[0]*b[2],
		a[0]*b[1] - a[1]*b[0],
	}
}
