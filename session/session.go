// Package session owns the mutable state of one calibration run — the
// CameraArray, the observation tables, and the current Bundle — and
// orchestrates the pipeline stages against them (spec §5, §8). It is the
// one package that can see every other component, so the synthetic-scene
// end-to-end scenarios of spec §8 live here.
package session

import (
	"github.com/google/uuid"

	"github.com/mocap-toolkit/corecalib/bundle"
	"github.com/mocap-toolkit/corecalib/logging"
	"github.com/mocap-toolkit/corecalib/model"
)

// Progress reports (percent, message) for a long-running operation, per
// spec §7's user-visible behavior.
type Progress func(percent float64, message string)

func noopProgress(float64, string) {}

// Session owns one run's mutable state. Cameras, Points, and World are
// passed by value (pointer to an owned snapshot) between stages; no stage
// holds a long-lived mutable reference into another stage's state (spec
// §5's resource policy) — each stage method returns a new Session rather
// than mutating the receiver in place.
type Session struct {
	ID      uuid.UUID
	Cameras *model.CameraArray
	Points  *model.ImagePoints
	World   *model.WorldPoints
	Bundle  *bundle.Bundle

	log logging.Logger
}

// New starts a session with a fresh run ID over the given cameras and
// observations. World and Bundle are nil until Triangulate/Adjust run.
func New(cameras *model.CameraArray, points *model.ImagePoints, log logging.Logger) *Session {
	if log == nil {
		log = logging.NewLogger("corecalib.session")
	}
	return &Session{
		ID:      uuid.New(),
		Cameras: cameras,
		Points:  points,
		World:   model.NewWorldPoints(),
		log:     log,
	}
}

// clone copies the session's table pointers into a new Session value,
// leaving the receiver's state untouched (the "old bundle remains valid
// as an immutable snapshot" rule of spec §5).
func (s *Session) clone() *Session {
	return &Session{
		ID:      s.ID,
		Cameras: s.Cameras,
		Points:  s.Points,
		World:   s.World,
		Bundle:  s.Bundle,
		log:     s.log,
	}
}

// ActiveCameras returns the cameras Stereo Bootstrap / Array Init / Bundle
// Adjustment are allowed to use: everything not flagged ignore (spec §6,
// supplemented feature 3). Points for ignored cameras stay loaded in
// s.Points; only the camera-facing stages filter them out, here and in
// the Pipeline stage wiring.
func (s *Session) ActiveCameras() []int {
	return s.Cameras.ActivePorts()
}
