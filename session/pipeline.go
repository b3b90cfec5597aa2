package session

import (
	"context"
	"sort"

	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"

	"github.com/mocap-toolkit/corecalib/arrayinit"
	"github.com/mocap-toolkit/corecalib/bundle"
	"github.com/mocap-toolkit/corecalib/corerrors"
	"github.com/mocap-toolkit/corecalib/model"
	"github.com/mocap-toolkit/corecalib/stereo"
	"github.com/mocap-toolkit/corecalib/triangulate"
)

// StopEvent is the cooperative cancellation flag of spec §5: a Pipeline
// owner sets it once, every stage polls it between steps and exits
// without starting further work. Sub-tasks already in flight (a bundle
// solve) cannot be preempted; only the boundary between stages can.
type StopEvent struct {
	stopped *atomic.Bool
}

// NewStopEvent returns an unset StopEvent.
func NewStopEvent() *StopEvent { return &StopEvent{stopped: atomic.NewBool(false)} }

// Stop requests cooperative cancellation.
func (e *StopEvent) Stop() { e.stopped.Store(true) }

// Stopped reports whether Stop has been called.
func (e *StopEvent) Stopped() bool { return e.stopped.Load() }

// PipelineConfig bundles every stage's tuning knobs plus the reference
// sync_index used for gauge alignment.
type PipelineConfig struct {
	Stereo       stereo.Config
	ArrayInit    arrayinit.Config
	Bundle       bundle.Config
	AlignToIndex int
	Iterative    bool
}

// DefaultPipelineConfig wires every stage's own defaults together.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		Stereo:    stereo.DefaultConfig(),
		ArrayInit: arrayinit.DefaultConfig(),
		Bundle:    bundle.DefaultConfig(),
	}
}

// pairKey is an unordered camera pair with PrimaryPort < SecondaryPort.
type pairKey struct{ a, b int }

func candidatePairs(ports []int) []pairKey {
	sorted := append([]int(nil), ports...)
	sort.Ints(sorted)
	var pairs []pairKey
	for i := 0; i < len(sorted); i++ {
		for j := i + 1; j < len(sorted); j++ {
			pairs = append(pairs, pairKey{sorted[i], sorted[j]})
		}
	}
	return pairs
}

// sharedFramesForPair groups points' calibration-board rows (HasObjLoc)
// by sync_index and, for every sync index at which portA and portB share
// at least one point ID, builds a SharedFrame from the point IDs both
// observed, the shape stereo.Bootstrap needs.
func sharedFramesForPair(points *model.ImagePoints, portA, portB int) []stereo.SharedFrame {
	bySync := make(map[int][]model.ImageObservation)
	for _, o := range points.All() {
		if !o.HasObjLoc {
			continue
		}
		if o.Port != portA && o.Port != portB {
			continue
		}
		bySync[o.SyncIndex] = append(bySync[o.SyncIndex], o)
	}

	syncIndices := make([]int, 0, len(bySync))
	for s := range bySync {
		syncIndices = append(syncIndices, s)
	}
	sort.Ints(syncIndices)

	var frames []stereo.SharedFrame
	for _, s := range syncIndices {
		rows := bySync[s]
		byPoint := make(map[int]map[int]model.ImageObservation)
		for _, r := range rows {
			if byPoint[r.PointID] == nil {
				byPoint[r.PointID] = make(map[int]model.ImageObservation)
			}
			byPoint[r.PointID][r.Port] = r
		}
		pointIDs := make([]int, 0, len(byPoint))
		for pid := range byPoint {
			pointIDs = append(pointIDs, pid)
		}
		sort.Ints(pointIDs)

		var objLoc [][2]float64
		var imgA, imgB [][2]float64
		for _, pid := range pointIDs {
			obsA, okA := byPoint[pid][portA]
			obsB, okB := byPoint[pid][portB]
			if !okA || !okB {
				continue
			}
			objLoc = append(objLoc, [2]float64{obsA.ObjLocX, obsA.ObjLocY})
			imgA = append(imgA, [2]float64{obsA.ImgLocX, obsA.ImgLocY})
			imgB = append(imgB, [2]float64{obsB.ImgLocX, obsB.ImgLocY})
		}
		if len(objLoc) == 0 {
			continue
		}
		frames = append(frames, stereo.SharedFrame{ObjectLoc: objLoc, ImageLocA: imgA, ImageLocB: imgB})
	}
	return frames
}

// BootstrapStereo runs Stereo Bootstrap over every active camera pair
// concurrently (spec §5's pipeline fan-out): each pair's solve reads only
// its own shared frames, so pairs are independent and fan out across an
// errgroup. Pairs with too few shared boards are silently omitted rather
// than failing the whole stage — Array Initialization's
// ArrayInitializationIncomplete is the signal for "not enough edges",
// not this stage.
func (s *Session) BootstrapStereo(cfg stereo.Config) ([]*model.StereoPair, error) {
	ports := s.ActiveCameras()
	pairs := candidatePairs(ports)
	results := make([]*model.StereoPair, len(pairs))

	g, _ := errgroup.WithContext(context.Background())
	for i, pk := range pairs {
		i, pk := i, pk
		g.Go(func() error {
			camA, _ := s.Cameras.Get(pk.a)
			camB, _ := s.Cameras.Get(pk.b)
			frames := sharedFramesForPair(s.Points, pk.a, pk.b)
			pair, err := stereo.Bootstrap(pk.a, pk.b, camA.Intrinsics, camB.Intrinsics, frames, cfg)
			if err != nil {
				if _, ok := err.(*corerrors.StereoPairBelowThreshold); ok {
					return nil
				}
				return err
			}
			results[i] = pair
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]*model.StereoPair, 0, len(results))
	for _, r := range results {
		if r != nil {
			out = append(out, r)
		}
	}
	return out, nil
}

// InitializeArray runs Array Initialization over pairs and writes the
// resulting extrinsics into a cloned CameraArray, returning the updated
// Session.
func (s *Session) InitializeArray(pairs []*model.StereoPair, cfg arrayinit.Config) (*Session, error) {
	extrinsics, err := arrayinit.Initialize(pairs, s.ActiveCameras(), cfg)
	if err != nil {
		return nil, err
	}
	cameras := s.Cameras.Clone()
	for port, ext := range extrinsics {
		cam, ok := cameras.Get(port)
		if !ok {
			continue
		}
		updated := *cam
		updated.Extrinsics = ext
		cameras.Set(&updated)
	}
	next := s.clone()
	next.Cameras = cameras
	return next, nil
}

// Triangulate runs the Triangulator over every sync index in s.Points and
// stores the result as the session's World table.
func (s *Session) Triangulate() (*Session, error) {
	world, err := triangulate.TriangulateAll(s.Cameras, s.Points)
	if err != nil {
		return nil, err
	}
	next := s.clone()
	next.World = world
	return next, nil
}

// Adjust runs Bundle Adjustment (optionally the iterative-culling
// variant) followed by gauge alignment to alignIndex, and stores the
// result as the session's current Bundle plus refreshed Cameras/World.
func (s *Session) Adjust(cfg PipelineConfig) (*Session, error) {
	b := bundle.NewBundle(s.Cameras, s.Points, s.World)

	var optimized *bundle.Bundle
	var err error
	if cfg.Iterative {
		optimized, err = b.OptimizeIterative(cfg.Bundle)
	} else {
		optimized, err = b.Optimize(cfg.Bundle)
	}
	if err != nil {
		return nil, err
	}

	aligned, err := optimized.AlignToObject(cfg.AlignToIndex)
	if err != nil {
		return nil, err
	}

	next := s.clone()
	next.Bundle = aligned
	next.Cameras = aligned.Cameras
	next.World = aligned.World
	return next, nil
}

// Run drives the full pipeline — bootstrap, init, triangulate, adjust —
// against the session's loaded observations, reporting progress and
// honoring stop's cooperative cancellation between (not within) stages
// (spec §5, §7).
func Run(s *Session, cfg PipelineConfig, stop *StopEvent, progress Progress) (*Session, error) {
	if progress == nil {
		progress = noopProgress
	}
	if stop == nil {
		stop = NewStopEvent()
	}

	progress(0, "bootstrapping stereo pairs")
	pairs, err := s.BootstrapStereo(cfg.Stereo)
	if err != nil {
		return nil, err
	}
	if stop.Stopped() {
		return nil, &corerrors.Cancelled{Task: "pipeline"}
	}

	progress(25, "initializing camera array")
	next, err := s.InitializeArray(pairs, cfg.ArrayInit)
	if err != nil {
		return nil, err
	}
	if stop.Stopped() {
		return nil, &corerrors.Cancelled{Task: "pipeline"}
	}

	progress(50, "triangulating points")
	next, err = next.Triangulate()
	if err != nil {
		return nil, err
	}
	if stop.Stopped() {
		return nil, &corerrors.Cancelled{Task: "pipeline"}
	}

	progress(75, "running bundle adjustment")
	next, err = next.Adjust(cfg)
	if err != nil {
		return nil, err
	}

	progress(100, "pipeline complete")
	return next, nil
}
