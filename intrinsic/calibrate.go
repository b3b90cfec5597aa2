package intrinsic

import (
	"github.com/mocap-toolkit/corecalib/corerrors"
	"github.com/mocap-toolkit/corecalib/nlls"
	"github.com/mocap-toolkit/corecalib/rimage/transform"
	"github.com/mocap-toolkit/corecalib/spatialmath"
)

// Config controls the solve: the acceptance threshold and solver options.
type Config struct {
	Width, Height int
	RMSEThreshold float64 // spec §4.2 epsilon_intrinsic, e.g. 1.0 px
	Solver        nlls.Options
}

// Result is the fitted camera model plus its training RMSE.
type Result struct {
	Intrinsics *transform.PinholeCameraIntrinsics
	RMSE       float64
}

// Calibrate fits a camera matrix and 5-coefficient distortion model from
// a set of admitted frames, jointly refining per-frame board poses as
// nuisance parameters (never returned) the way a standard planar
// calibration does. Returns IntrinsicFitInadequate if the fitted RMSE
// exceeds cfg.RMSEThreshold.
func Calibrate(frames []FrameObservation, cfg Config) (*Result, error) {
	if len(frames) == 0 {
		return nil, &corerrors.InsufficientObservations{Reason: "no admitted frames"}
	}

	fx0 := float64(max(cfg.Width, cfg.Height))
	fy0 := fx0
	cx0, cy0 := float64(cfg.Width)/2, float64(cfg.Height)/2

	poses := make([][3]float64, len(frames))  // rodrigues
	transl := make([][3]float64, len(frames)) // translation
	for i, f := range frames {
		rot, t, err := initialPoseFromHomography(f, fx0, fy0, cx0, cy0)
		if err != nil {
			return nil, err
		}
		poses[i] = spatialmath.RotationMatrixToRodrigues(rot)
		transl[i] = [3]float64{t[0], t[1], t[2]}
	}

	// Parameter vector: [fx, fy, cx, cy, k1, k2, p1, p2, k3], then per
	// frame [rx, ry, rz, tx, ty, tz].
	const nIntrinsic = 9
	numParams := nIntrinsic + 6*len(frames)
	x0 := make([]float64, numParams)
	x0[0], x0[1], x0[2], x0[3] = fx0, fy0, cx0, cy0
	for i := range frames {
		base := nIntrinsic + 6*i
		copy(x0[base:base+3], poses[i][:])
		copy(x0[base+3:base+6], transl[i][:])
	}

	numResiduals := 0
	for _, f := range frames {
		numResiduals += 2 * len(f.ImageLoc)
	}

	problem := nlls.Problem{
		NumParams:    numParams,
		NumResiduals: numResiduals,
		Residuals: func(x []float64) []float64 {
			return residuals(x, frames, nIntrinsic)
		},
		SparsityCols: func(row int) []int {
			return sparsityCols(row, frames, nIntrinsic)
		},
	}

	solverOpts := cfg.Solver
	if solverOpts.MaxIterations == 0 {
		solverOpts = nlls.DefaultOptions()
	}

	result, err := nlls.Solve(problem, x0, solverOpts)
	if result == nil {
		return nil, err
	}

	in := &transform.PinholeCameraIntrinsics{
		Width: cfg.Width, Height: cfg.Height,
		Fx: result.X[0], Fy: result.X[1], Ppx: result.X[2], Ppy: result.X[3],
		Distortion: transform.NewBrownConrady([5]float64{result.X[4], result.X[5], result.X[6], result.X[7], result.X[8]}),
	}

	threshold := cfg.RMSEThreshold
	if threshold <= 0 {
		threshold = 1.0
	}
	if result.FinalRMSE > threshold {
		return &Result{Intrinsics: in, RMSE: result.FinalRMSE},
			&corerrors.IntrinsicFitInadequate{RMSE: result.FinalRMSE, Threshold: threshold}
	}
	return &Result{Intrinsics: in, RMSE: result.FinalRMSE}, nil
}

func residuals(x []float64, frames []FrameObservation, nIntrinsic int) []float64 {
	fx, fy, cx, cy := x[0], x[1], x[2], x[3]
	dist := transform.NewBrownConrady([5]float64{x[4], x[5], x[6], x[7], x[8]})

	var out []float64
	for i, f := range frames {
		base := nIntrinsic + 6*i
		rot := spatialmath.RodriguesToRotationMatrix([3]float64{x[base], x[base+1], x[base+2]})
		m := rot.Rows()
		tx, ty, tz := x[base+3], x[base+4], x[base+5]

		for k, obj := range f.ObjectLoc {
			px := m[0][0]*obj[0] + m[0][1]*obj[1] + tx
			py := m[1][0]*obj[0] + m[1][1]*obj[1] + ty
			pz := m[2][0]*obj[0] + m[2][1]*obj[1] + tz
			if pz <= 1e-9 {
				pz = 1e-9
			}
			nx, ny := px/pz, py/pz
			dx, dy := dist.Distort(nx, ny)
			u, v := fx*dx+cx, fy*dy+cy

			img := f.ImageLoc[k]
			out = append(out, u-img[0], v-img[1])
		}
	}
	return out
}

// sparsityCols declares that row `row`'s residual depends only on the 9
// shared intrinsic columns plus the 6 columns of its own frame's pose.
func sparsityCols(row int, frames []FrameObservation, nIntrinsic int) []int {
	obsIndex := row / 2
	frameIdx, acc := 0, 0
	for i, f := range frames {
		if obsIndex < acc+len(f.ObjectLoc) {
			frameIdx = i
			break
		}
		acc += len(f.ObjectLoc)
	}
	base := nIntrinsic + 6*frameIdx
	cols := make([]int, 0, nIntrinsic+6)
	for i := 0; i < nIntrinsic; i++ {
		cols = append(cols, i)
	}
	for i := 0; i < 6; i++ {
		cols = append(cols, base+i)
	}
	return cols
}

// initialPoseFromHomography recovers an initial board pose from the
// planar homography mapping object-plane (z=0) coordinates to image
// coordinates, decomposed against an initial guess of K (standard
// Zhang-method initialization).
func initialPoseFromHomography(f FrameObservation, fx, fy, cx, cy float64) (*spatialmath.RotationMatrix, [3]float64, error) {
	if len(f.ObjectLoc) < 4 {
		return nil, [3]float64{}, &corerrors.InsufficientObservations{Reason: "need >=4 correspondences for homography"}
	}
	rot, t, err := transform.EstimatePlanarPose(f.ObjectLoc, f.ImageLoc, fx, fy, cx, cy)
	if err != nil {
		return nil, [3]float64{}, err
	}
	return rot, [3]float64{t.X, t.Y, t.Z}, nil
}
