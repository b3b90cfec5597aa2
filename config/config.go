// Package config loads and saves the workspace configuration document
// (spec §6): a TOML file with a `charuco` subtable, one `cam_{p}`
// subtable per camera, and one `stereo_{a}_{b}` subtable per initially
// calibrated pair.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cast"

	"github.com/mocap-toolkit/corecalib/corerrors"
)

// CharucoConfig describes the calibration board geometry and the ArUco
// dictionary used to label its corners (SPEC_FULL.md §C.4 — detection
// itself is out of scope, but the core needs the board geometry to turn
// detected corner IDs into obj_loc_* millimetre coordinates).
type CharucoConfig struct {
	Columns               int     `toml:"columns"`
	Rows                  int     `toml:"rows"`
	BoardHeight           float64 `toml:"board_height"`
	BoardWidth            float64 `toml:"board_width"`
	Dictionary            string  `toml:"dictionary"`
	Units                 string  `toml:"units"`
	ArucoScale            float64 `toml:"aruco_scale"`
	SquareSizeOverrideCM  float64 `toml:"square_size_override_cm,omitempty"`
	Inverted              bool    `toml:"inverted"`
}

// CheckValid validates the shape constraints spec §6 lists for the
// charuco subtable.
func (c *CharucoConfig) CheckValid() error {
	if c.Columns <= 0 || c.Rows <= 0 {
		return &corerrors.ShapeOrInvariantViolation{What: "charuco columns/rows must be positive"}
	}
	if c.Units != "inches" && c.Units != "mm" {
		return &corerrors.ShapeOrInvariantViolation{What: fmt.Sprintf("charuco units %q must be inches or mm", c.Units)}
	}
	if c.ArucoScale <= 0 || c.ArucoScale > 1 {
		return &corerrors.ShapeOrInvariantViolation{What: "charuco aruco_scale must be in (0,1]"}
	}
	return nil
}

// CameraConfig is the persisted per-port calibration state (spec §6,
// plus the SPEC_FULL.md §C supplemented fields VerifiedResolutions and
// GridCount).
type CameraConfig struct {
	Port                int         `toml:"port"`
	Size                [2]int      `toml:"size"`
	RotationCount       int         `toml:"rotation_count"`
	Exposure            float64     `toml:"exposure"`
	Matrix              [3][3]float64 `toml:"matrix"`
	Distortions         [5]float64  `toml:"distortions"`
	Translation         [3]float64  `toml:"translation"`
	Rotation            [3][3]float64 `toml:"rotation"`
	Error               float64     `toml:"error"`
	GridCount           int         `toml:"grid_count"`
	Ignore              bool        `toml:"ignore"`
	VerifiedResolutions [][2]int    `toml:"verified_resolutions"`
}

// StereoPairConfig is the persisted initial pairwise calibration (spec §6).
type StereoPairConfig struct {
	Rotation    [3][3]float64 `toml:"rotation"`
	Translation [3]float64    `toml:"translation"`
	RMSE        float64       `toml:"RMSE"`
}

// Config is the full workspace config.toml document.
type Config struct {
	Charuco CharucoConfig               `toml:"charuco"`
	Cameras map[string]*CameraConfig    `toml:"-"`
	Stereo  map[string]*StereoPairConfig `toml:"-"`
}

// NewConfig returns an empty config with initialized maps.
func NewConfig() *Config {
	return &Config{
		Cameras: make(map[string]*CameraConfig),
		Stereo:  make(map[string]*StereoPairConfig),
	}
}

// Load reads and parses a config.toml file.
func Load(path string) (*Config, error) {
	raw := make(map[string]toml.Primitive)
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return nil, &corerrors.IOFailure{Path: path, Cause: err}
	}

	cfg := NewConfig()
	for _, key := range meta.Keys() {
		if len(key) != 1 {
			continue
		}
		name := key[0]
		prim, ok := raw[name]
		if !ok {
			continue
		}
		switch {
		case name == "charuco":
			if err := meta.PrimitiveDecode(prim, &cfg.Charuco); err != nil {
				return nil, &corerrors.IOFailure{Path: path, Cause: err}
			}
		case hasPrefix(name, "cam_"):
			cc := &CameraConfig{}
			if err := meta.PrimitiveDecode(prim, cc); err != nil {
				return nil, &corerrors.IOFailure{Path: path, Cause: err}
			}
			cfg.Cameras[name] = cc
		case hasPrefix(name, "stereo_"):
			sc := &StereoPairConfig{}
			if err := meta.PrimitiveDecode(prim, sc); err != nil {
				return nil, &corerrors.IOFailure{Path: path, Cause: err}
			}
			cfg.Stereo[name] = sc
		}
	}
	return cfg, nil
}

// Save writes the config back out as TOML. The TOML encoder emits the
// subtables in lexicographic key order (cam_*, then charuco, then
// stereo_*), so repeated saves are byte-stable.
func Save(path string, cfg *Config) error {
	doc := make(map[string]interface{})
	doc["charuco"] = cfg.Charuco
	for name, cc := range cfg.Cameras {
		doc[name] = cc
	}
	for name, sc := range cfg.Stereo {
		doc[name] = sc
	}

	f, err := os.Create(path)
	if err != nil {
		return &corerrors.IOFailure{Path: path, Cause: err}
	}
	defer f.Close()

	enc := toml.NewEncoder(f)
	if err := enc.Encode(doc); err != nil {
		return &corerrors.IOFailure{Path: path, Cause: err}
	}
	return nil
}

// CameraKey formats the cam_{p} subtable key for port p.
func CameraKey(port int) string { return fmt.Sprintf("cam_%d", port) }

// StereoKey formats the stereo_{a}_{b} subtable key for an ordered pair.
func StereoKey(a, b int) string { return fmt.Sprintf("stereo_%d_%d", a, b) }

// ParseStereoKey inverts StereoKey, recovering the ordered pair.
func ParseStereoKey(key string) (a, b int, err error) {
	if _, scanErr := fmt.Sscanf(key, "stereo_%d_%d", &a, &b); scanErr != nil {
		return 0, 0, &corerrors.ShapeOrInvariantViolation{What: fmt.Sprintf("malformed stereo key %q: %v", key, scanErr)}
	}
	return a, b, nil
}

// CoerceFloat loosely coerces a config override value (as read from a
// CLI flag or environment variable) to float64, used when merging
// operator overrides into a loaded Config.
func CoerceFloat(v interface{}) (float64, error) {
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return 0, &corerrors.ShapeOrInvariantViolation{What: fmt.Sprintf("cannot coerce %v to float64: %v", v, err)}
	}
	return f, nil
}

// CoerceBool loosely coerces a config override value to bool.
func CoerceBool(v interface{}) (bool, error) {
	b, err := cast.ToBoolE(v)
	if err != nil {
		return false, &corerrors.ShapeOrInvariantViolation{What: fmt.Sprintf("cannot coerce %v to bool: %v", v, err)}
	}
	return b, nil
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}
