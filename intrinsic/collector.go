// Package intrinsic implements the per-camera Intrinsic Calibrator (spec
// §4.2): admits board-corner observations, estimates the camera matrix
// and distortion, and reports reprojection RMSE against a threshold.
package intrinsic

import (
	"fmt"

	"go.uber.org/multierr"
)

// FrameObservation is one accepted frame's board-corner correspondences:
// parallel image/object locations for the planar grid visible in it.
// ObjectLoc entries always have z=0 (spec §4.2).
type FrameObservation struct {
	ImageLoc  [][2]float64
	ObjectLoc [][2]float64 // (x,y); z is implicitly 0
	Timestamp float64
}

// AdmissionConfig gates which frames the collector accepts.
type AdmissionConfig struct {
	TotalBoardCorners int
	BoardThreshold    float64 // default 0.7-0.8
	WaitTime          float64 // seconds, default 0.5
}

// DefaultAdmissionConfig returns spec §4.2's stated defaults for a board
// with totalCorners corners.
func DefaultAdmissionConfig(totalCorners int) AdmissionConfig {
	return AdmissionConfig{TotalBoardCorners: totalCorners, BoardThreshold: 0.7, WaitTime: 0.5}
}

// minCorners is floor(total_board_corners * board_threshold).
func (c AdmissionConfig) minCorners() int {
	return int(float64(c.TotalBoardCorners) * c.BoardThreshold)
}

// Collector accumulates admitted frames for one camera, enforcing the
// corner-count and wait-time admission gate.
type Collector struct {
	cfg           AdmissionConfig
	frames        []FrameObservation
	lastAccepted  float64
	haveAccepted  bool
	gridCount     int
}

// NewCollector builds a collector with the given admission gate.
func NewCollector(cfg AdmissionConfig) *Collector {
	return &Collector{cfg: cfg}
}

// Offer attempts to admit a frame at time `now` with `detectedCorners`
// corners found in it. Sub-pixel corner refinement is assumed to have
// already been applied upstream (spec §4.2: "sub-pixel refinement is
// applied before admission" — an external-tracker concern, out of this
// core's scope). Returns whether the frame was admitted.
func (c *Collector) Offer(obs FrameObservation, detectedCorners int, now float64) bool {
	if detectedCorners < c.cfg.minCorners() {
		return false
	}
	if c.haveAccepted && now-c.lastAccepted < c.cfg.WaitTime {
		return false
	}
	c.frames = append(c.frames, obs)
	c.lastAccepted = now
	c.haveAccepted = true
	c.gridCount++
	return true
}

// Frames returns every admitted frame so far.
func (c *Collector) Frames() []FrameObservation { return c.frames }

// CandidateFrame pairs a frame with the corner count and timestamp its
// upstream tracker reported, for batch offering via OfferBatch.
type CandidateFrame struct {
	Obs             FrameObservation
	DetectedCorners int
	Time            float64
}

// OfferBatch offers a sequence of candidate frames in order, returning
// the number admitted and a single aggregated error (via
// go.uber.org/multierr) describing every rejection — a per-frame
// rejection is never fatal to the batch, only reported (spec §7: "a
// single bad observation is dropped with a warning").
func (c *Collector) OfferBatch(candidates []CandidateFrame) (int, error) {
	var rejections error
	admitted := 0
	for i, cand := range candidates {
		if c.Offer(cand.Obs, cand.DetectedCorners, cand.Time) {
			admitted++
			continue
		}
		rejections = multierr.Append(rejections, fmt.Errorf("frame %d rejected: %d corners at t=%.3f", i, cand.DetectedCorners, cand.Time))
	}
	return admitted, rejections
}

// GridCount is the number of frames admitted so far, independent of
// whether a final fit has been attempted (SPEC_FULL.md §C.2 — lets a
// caller resume a partial session and see progress).
func (c *Collector) GridCount() int { return c.gridCount }
