// Package bundle implements the Bundle Adjuster (spec §4.5): joint
// nonlinear refinement of every active camera's extrinsics and every
// triangulated 3-D point's coordinates against their reprojection
// residuals, plus the alignment-based gauge fix (see align.go).
package bundle

import (
	"sort"

	"github.com/mocap-toolkit/corecalib/corerrors"
	"github.com/mocap-toolkit/corecalib/model"
	"github.com/mocap-toolkit/corecalib/nlls"
)

// Bundle is the BA problem instance (spec §3 PointDataBundle): a camera
// array, the image observations feeding reprojection residuals, and the
// current triangulated world points being refined. Optimize and
// AlignToObject return a new Bundle; the receiver is never mutated, so a
// caller that holds onto an old Bundle keeps a valid snapshot (spec §5
// resource policy).
type Bundle struct {
	Cameras *model.CameraArray
	Points  *model.ImagePoints
	World   *model.WorldPoints
}

// NewBundle wraps the three tables spec §3 says a PointDataBundle owns.
func NewBundle(cameras *model.CameraArray, points *model.ImagePoints, world *model.WorldPoints) *Bundle {
	return &Bundle{Cameras: cameras, Points: points, World: world}
}

// Config controls one Optimize (or OptimizeIterative) call.
type Config struct {
	Solver nlls.Options
	// CullFraction is the top percentile of per-observation reprojection
	// error dropped by OptimizeIterative's middle pass (spec §4.5
	// "Iterative improvement" step 2), e.g. 0.3 for "top 30%".
	CullFraction float64
}

// DefaultConfig mirrors spec §4.5's example cull fraction and the
// shared solver defaults.
func DefaultConfig() Config {
	return Config{Solver: nlls.DefaultOptions(), CullFraction: 0.3}
}

// Residuals exposes the bundle's current (unoptimized) reprojection
// residual vector — spec §3's "(i) residual vector of shape 2M" — without
// running a solve.
func (b *Bundle) Residuals() ([]float64, error) {
	layout, err := buildParamLayout(b)
	if err != nil {
		return nil, err
	}
	x0 := packInitial(b, layout)
	return residuals(x0, layout, b.fixedIntrinsics(layout)), nil
}

func (b *Bundle) fixedIntrinsics(l *paramLayout) map[int]cameraModel {
	out := make(map[int]cameraModel, len(l.camOrder))
	for _, port := range l.camOrder {
		cam, _ := b.Cameras.Get(port)
		in := cam.Intrinsics
		out[port] = cameraModel{fx: in.Fx, fy: in.Fy, cx: in.Ppx, cy: in.Ppy, distort: in.Distortion.Distort}
	}
	return out
}

// Optimize runs a single Levenberg-Marquardt refinement of every active
// camera's extrinsics and every observed world point (spec §4.5), and
// writes every parameter in the solved vector back into a fresh Bundle —
// both the camera block and the point block, the "critical invariant"
// spec §4.5 calls out as a common bug (see bundle_test.go's
// writeback regression test).
func (b *Bundle) Optimize(cfg Config) (*Bundle, error) {
	layout, err := buildParamLayout(b)
	if err != nil {
		return nil, err
	}
	intrinsicsOf := b.fixedIntrinsics(layout)
	x0 := packInitial(b, layout)

	problem := nlls.Problem{
		NumParams:    layout.numParams(),
		NumResiduals: layout.numResiduals(),
		Residuals: func(x []float64) []float64 {
			return residuals(x, layout, intrinsicsOf)
		},
		SparsityCols: func(row int) []int {
			return sparsityCols(row, layout)
		},
	}

	solverOpts := cfg.Solver
	if solverOpts.MaxIterations == 0 {
		solverOpts = nlls.DefaultOptions()
	}

	result, solveErr := nlls.Solve(problem, x0, solverOpts)
	if result == nil {
		return nil, solveErr
	}

	out, err := writeback(b, layout, result.X)
	if err != nil {
		return nil, err
	}
	return out, solveErr
}

// writeback unpacks a solved parameter vector into a fresh Bundle,
// cloning every table so the input Bundle remains a valid snapshot.
func writeback(b *Bundle, l *paramLayout, x []float64) (*Bundle, error) {
	newCameras := b.Cameras.Clone()
	for i, port := range l.camOrder {
		cam, _ := b.Cameras.Get(port)
		ext, err := unpackedExtrinsics(x, i)
		if err != nil {
			return nil, err
		}
		updated := *cam
		updated.Extrinsics = ext
		newCameras.Set(&updated)
	}

	newWorld := model.NewWorldPoints()
	for _, row := range b.World.All() {
		newWorld.Add(row)
	}
	for i, k := range l.pointOrder {
		px, py, pz := unpackedPoint(x, l, i)
		old, _ := b.World.Get(k.Sync, k.Point)
		newWorld.Add(model.WorldObservation{
			SyncIndex: k.Sync,
			PointID:   k.Point,
			XCoord:    px,
			YCoord:    py,
			ZCoord:    pz,
			FrameTime: old.FrameTime,
		})
	}

	return &Bundle{Cameras: newCameras, Points: b.Points, World: newWorld}, nil
}

// OptimizeIterative implements spec §4.5's optional outer loop: optimize
// with every observation, drop the top CullFraction by reprojection
// error, re-optimize on the trimmed set, then restore the full
// observation set and re-optimize once more from the trimmed solution.
func (b *Bundle) OptimizeIterative(cfg Config) (*Bundle, error) {
	full, err := b.Optimize(cfg)
	if full == nil {
		return nil, err
	}

	trimmedPoints, dropErr := cullTopFraction(full, cfg.CullFraction)
	if dropErr != nil {
		return full, err // nothing to cull or culling degenerate: the single pass stands
	}

	trimmed := &Bundle{Cameras: full.Cameras, Points: trimmedPoints, World: full.World}
	refined, refinedErr := trimmed.Optimize(cfg)
	if refined == nil {
		return full, err
	}

	restored := &Bundle{Cameras: refined.Cameras, Points: b.Points, World: refined.World}
	final, finalErr := restored.Optimize(cfg)
	if final == nil {
		return refined, refinedErr
	}
	return final, finalErr
}

// cullTopFraction drops the highest-reprojection-error observations from
// the bundle's own ImagePoints table, returning a new table with the
// bottom (1-fraction) retained. Ties keep their residual-vector order
// (camera by camera, table order within a camera).
func cullTopFraction(b *Bundle, fraction float64) (*model.ImagePoints, error) {
	if fraction <= 0 || fraction >= 1 {
		return nil, &corerrors.ShapeOrInvariantViolation{What: "cull fraction must be in (0,1)"}
	}
	layout, err := buildParamLayout(b)
	if err != nil {
		return nil, err
	}
	x0 := packInitial(b, layout)
	res := residuals(x0, layout, b.fixedIntrinsics(layout))

	type scored struct {
		obs model.ImageObservation
		err float64
	}
	scoredObs := make([]scored, len(layout.obs))
	for i, o := range layout.obs {
		du, dv := res[2*i], res[2*i+1]
		scoredObs[i] = scored{obs: o, err: du*du + dv*dv}
	}
	sort.SliceStable(scoredObs, func(i, j int) bool { return scoredObs[i].err < scoredObs[j].err })

	keep := int(float64(len(scoredObs)) * (1 - fraction))
	if keep < 1 {
		return nil, &corerrors.ShapeOrInvariantViolation{What: "cull fraction leaves no observations"}
	}

	out := model.NewImagePoints()
	for _, s := range scoredObs[:keep] {
		out.Add(s.obs)
	}
	return out, nil
}
