package main

import (
	"os"
	"path/filepath"

	"github.com/mocap-toolkit/corecalib/config"
	"github.com/mocap-toolkit/corecalib/corerrors"
	"github.com/mocap-toolkit/corecalib/iodata"
	"github.com/mocap-toolkit/corecalib/model"
)

// ensureDir creates dir (and any missing parents) if it does not exist.
func ensureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &corerrors.IOFailure{Path: dir, Cause: err}
	}
	return nil
}

// workspace resolves the spec §6 filesystem layout rooted at dir: the
// workspace config, a result camera_array.toml living alongside it, and
// a session's recorded point_data.csv.
type workspace struct {
	dir string
}

func newWorkspace(dir string) *workspace { return &workspace{dir: dir} }

func (w *workspace) configPath() string      { return filepath.Join(w.dir, "config.toml") }
func (w *workspace) cameraArrayPath() string { return filepath.Join(w.dir, "camera_array.toml") }

func (w *workspace) recordingPointData(sessionName string) string {
	return filepath.Join(w.dir, "recordings", sessionName, "point_data.csv")
}

func (w *workspace) trackerDir(sessionName, trackerName string) string {
	return filepath.Join(w.dir, "recordings", sessionName, trackerName)
}

// loadCameras prefers an existing camera_array.toml result (a prior
// stage's output) and falls back to the workspace config.toml so every
// subcommand can run standalone against a freshly initialized workspace.
func (w *workspace) loadCameras() (*model.CameraArray, error) {
	if arr, err := config.LoadCameraArray(w.cameraArrayPath()); err == nil {
		return arr, nil
	}
	cfg, err := config.Load(w.configPath())
	if err != nil {
		return nil, err
	}
	return config.CamerasFromConfig(cfg)
}

func (w *workspace) saveCameras(arr *model.CameraArray) error {
	return config.SaveCameraArray(w.cameraArrayPath(), arr)
}

func (w *workspace) loadPoints(sessionName string) (*model.ImagePoints, error) {
	return iodata.ReadImagePoints(w.recordingPointData(sessionName))
}
