// Package stereo implements the Stereo Bootstrapper (spec §4.3): for each
// camera pair with enough shared calibration-board observations, it
// estimates the relative pose of one camera with respect to the other and
// an RMSE of the joint stereo reprojection.
package stereo

import (
	"github.com/golang/geo/r3"

	"github.com/mocap-toolkit/corecalib/corerrors"
	"github.com/mocap-toolkit/corecalib/model"
	"github.com/mocap-toolkit/corecalib/nlls"
	"github.com/mocap-toolkit/corecalib/rimage/transform"
	"github.com/mocap-toolkit/corecalib/spatialmath"
)

// SharedFrame is one sync index at which both cameras of a pair observed
// the same calibration-board corners: ObjectLoc is the shared board-local
// (x,y,0) geometry, ImageLocA/ImageLocB the two cameras' matched pixel
// observations of those same point IDs.
type SharedFrame struct {
	ObjectLoc [][2]float64
	ImageLocA [][2]float64
	ImageLocB [][2]float64
}

// Config controls the bootstrap solve for one pair.
type Config struct {
	MinSharedBoards int // spec §4.3 min_shared_boards
	RMSEThreshold   float64
	Solver          nlls.Options
}

// DefaultConfig returns spec §4.3's stated default of 5 shared boards.
func DefaultConfig() Config {
	return Config{MinSharedBoards: 5, RMSEThreshold: 2.0, Solver: nlls.DefaultOptions()}
}

// Bootstrap estimates the relative pose of camera portB with respect to
// portA from their shared board observations, jointly refining each
// frame's board-in-A pose as a nuisance parameter. Returns
// StereoPairBelowThreshold if fewer than cfg.MinSharedBoards frames are
// shared; the returned StereoPair always orders PrimaryPort < SecondaryPort
// regardless of the portA/portB argument order, inverting the solved
// transform when necessary.
func Bootstrap(
	portA, portB int,
	intrA, intrB *transform.PinholeCameraIntrinsics,
	frames []SharedFrame,
	cfg Config,
) (*model.StereoPair, error) {
	if len(frames) < cfg.MinSharedBoards {
		return nil, &corerrors.StereoPairBelowThreshold{
			PrimaryPort: portA, SecondaryPort: portB,
			SharedBoards: len(frames), MinRequired: cfg.MinSharedBoards,
		}
	}

	fxA, fyA, cxA, cyA := intrA.Fx, intrA.Fy, intrA.Ppx, intrA.Ppy
	fxB, fyB, cxB, cyB := intrB.Fx, intrB.Fy, intrB.Ppx, intrB.Ppy

	// Seed per-frame board-in-A poses and a single relative-pose guess
	// from the first frame's independently recovered A and B poses.
	poseA := make([][3]float64, len(frames))  // rodrigues, board->camA
	translA := make([][3]float64, len(frames)) // board->camA
	var relRot0 *spatialmath.RotationMatrix
	var relT0 r3.Vector

	for i, f := range frames {
		if len(f.ObjectLoc) < 4 {
			return nil, &corerrors.InsufficientObservations{Reason: "need >=4 common corners per shared frame"}
		}
		rotA, tA, err := transform.EstimatePlanarPose(f.ObjectLoc, f.ImageLocA, fxA, fyA, cxA, cyA)
		if err != nil {
			return nil, err
		}
		poseA[i] = spatialmath.RotationMatrixToRodrigues(rotA)
		translA[i] = [3]float64{tA.X, tA.Y, tA.Z}

		if i == 0 {
			rotB, tB, err := transform.EstimatePlanarPose(f.ObjectLoc, f.ImageLocB, fxB, fyB, cxB, cyB)
			if err != nil {
				return nil, err
			}
			relRot0, relT0 = relativePose(rotA, tA, rotB, tB)
		}
	}

	const nRel = 6
	numParams := nRel + 6*len(frames)
	x0 := make([]float64, numParams)
	relRod := spatialmath.RotationMatrixToRodrigues(relRot0)
	copy(x0[0:3], relRod[:])
	x0[3], x0[4], x0[5] = relT0.X, relT0.Y, relT0.Z
	for i := range frames {
		base := nRel + 6*i
		copy(x0[base:base+3], poseA[i][:])
		copy(x0[base+3:base+6], translA[i][:])
	}

	numResiduals := 0
	for _, f := range frames {
		numResiduals += 4 * len(f.ObjectLoc)
	}

	problem := nlls.Problem{
		NumParams:    numParams,
		NumResiduals: numResiduals,
		Residuals: func(x []float64) []float64 {
			return residuals(x, frames, intrA, intrB)
		},
		SparsityCols: func(row int) []int {
			return sparsityCols(row, frames)
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

	relRot := spatialmath.RodriguesToRotationMatrix([3]float64{result.X[0], result.X[1], result.X[2]})
	relT := r3.Vector{X: result.X[3], Y: result.X[4], Z: result.X[5]}

	threshold := cfg.RMSEThreshold
	if threshold <= 0 {
		threshold = 2.0
	}
	if result.FinalRMSE > threshold {
		return nil, &corerrors.StereoPairBelowThreshold{
			PrimaryPort: portA, SecondaryPort: portB,
			SharedBoards: len(frames), MinRequired: cfg.MinSharedBoards,
		}
	}

	return buildCanonicalPair(portA, portB, relRot, relT, result.FinalRMSE)
}

// relativePose computes (R_ab, t_ab) such that p_in_b = R_ab*p_in_a + t_ab,
// from two independently-estimated board poses sharing the same board.
func relativePose(rotA *spatialmath.RotationMatrix, tA r3.Vector, rotB *spatialmath.RotationMatrix, tB r3.Vector) (*spatialmath.RotationMatrix, r3.Vector) {
	a, b := rotA.Rows(), rotB.Rows()
	// R_ab = R_b * R_a^T
	var raw [3][3]float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			var sum float64
			for k := 0; k < 3; k++ {
				sum += b[i][k] * a[j][k] // a^T[k][j] = a[j][k]
			}
			raw[i][j] = sum
		}
	}
	rel, _ := spatialmath.OrthonormalizeRotation(raw)
	relRows := rel.Rows()
	// t_ab = t_b - R_ab * t_a
	relT := r3.Vector{
		X: tB.X - (relRows[0][0]*tA.X + relRows[0][1]*tA.Y + relRows[0][2]*tA.Z),
		Y: tB.Y - (relRows[1][0]*tA.X + relRows[1][1]*tA.Y + relRows[1][2]*tA.Z),
		Z: tB.Z - (relRows[2][0]*tA.X + relRows[2][1]*tA.Y + relRows[2][2]*tA.Z),
	}
	return rel, relT
}

// buildCanonicalPair orders (portA, portB, R_ab, t_ab) into the
// PrimaryPort < SecondaryPort convention NewStereoPair requires, inverting
// the directed transform when portA > portB.
func buildCanonicalPair(portA, portB int, relRot *spatialmath.RotationMatrix, relT r3.Vector, rmse float64) (*model.StereoPair, error) {
	if portA < portB {
		return model.NewStereoPair(portA, portB, relRot, relT, rmse)
	}
	directed := &model.StereoPair{PrimaryPort: portA, SecondaryPort: portB, ErrorScore: rmse, Rotation: relRot, Translation: relT}
	inv := directed.Invert()
	return model.NewStereoPair(inv.PrimaryPort, inv.SecondaryPort, inv.Rotation, inv.Translation, rmse)
}

func residuals(x []float64, frames []SharedFrame, intrA, intrB *transform.PinholeCameraIntrinsics) []float64 {
	relRot := spatialmath.RodriguesToRotationMatrix([3]float64{x[0], x[1], x[2]})
	relRows := relRot.Rows()
	relT := [3]float64{x[3], x[4], x[5]}

	var out []float64
	for i, f := range frames {
		base := 6 + 6*i
		rotA := spatialmath.RodriguesToRotationMatrix([3]float64{x[base], x[base+1], x[base+2]})
		mA := rotA.Rows()
		tA := [3]float64{x[base+3], x[base+4], x[base+5]}

		for k, obj := range f.ObjectLoc {
			xo, yo := obj[0], obj[1]
			pax := mA[0][0]*xo + mA[0][1]*yo + tA[0]
			pay := mA[1][0]*xo + mA[1][1]*yo + tA[1]
			paz := mA[2][0]*xo + mA[2][1]*yo + tA[2]
			if paz <= 1e-9 {
				paz = 1e-9
			}
			ua, va := intrA.Fx*(pax/paz)+intrA.Ppx, intrA.Fy*(pay/paz)+intrA.Ppy
			imgA := f.ImageLocA[k]
			out = append(out, ua-imgA[0], va-imgA[1])

			pbx := relRows[0][0]*pax + relRows[0][1]*pay + relRows[0][2]*paz + relT[0]
			pby := relRows[1][0]*pax + relRows[1][1]*pay + relRows[1][2]*paz + relT[1]
			pbz := relRows[2][0]*pax + relRows[2][1]*pay + relRows[2][2]*paz + relT[2]
			if pbz <= 1e-9 {
				pbz = 1e-9
			}
			ub, vb := intrB.Fx*(pbx/pbz)+intrB.Ppx, intrB.Fy*(pby/pbz)+intrB.Ppy
			imgB := f.ImageLocB[k]
			out = append(out, ub-imgB[0], vb-imgB[1])
		}
	}
	return out
}

// sparsityCols declares that row `row`'s residual depends on the 6 shared
// relative-pose columns plus the 6 columns of its own frame's board-in-A
// pose (both the camA and camB halves of a frame's residual block share
// the same board pose, since camB's projection is downstream of camA's).
func sparsityCols(row int, frames []SharedFrame) []int {
	obsIndex := row / 4 // 4 residuals (camA x,y + camB x,y) per point per frame
	frameIdx, acc := 0, 0
	for i, f := range frames {
		if obsIndex < acc+len(f.ObjectLoc) {
			frameIdx = i
			break
		}
		acc += len(f.ObjectLoc)
	}
	base := 6 + 6*frameIdx
	cols := make([]int, 0, 12)
	for i := 0; i < 6; i++ {
		cols = append(cols, i)
	}
	for i := 0; i < 6; i++ {
		cols = append(cols, base+i)
	}
	return cols
}
