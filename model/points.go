package model

import (
	"fmt"
	"image"
	"sort"

	"github.com/golang/geo/r3"

	"github.com/mocap-toolkit/corecalib/corerrors"
	"github.com/mocap-toolkit/corecalib/spatialmath"
)

// ImageObservation is one row of the ImagePoints table: a single 2-D
// landmark observation at a given sync group and camera (spec §3).
type ImageObservation struct {
	SyncIndex int
	Port      int
	PointID   int
	FrameTime float64
	ImgLocX   float64
	ImgLocY   float64
	ObjLocX   float64
	ObjLocY   float64
	ObjLocZ   float64
	HasObjLoc bool
}

type imageKey struct{ sync, port, point int }

// ImagePoints is the logical observation table keyed by
// (sync_index, port, point_id).
type ImagePoints struct {
	rows  []ImageObservation
	index map[imageKey]int
}

// NewImagePoints builds an empty table.
func NewImagePoints() *ImagePoints {
	return &ImagePoints{index: make(map[imageKey]int)}
}

// Add inserts an observation, replacing any existing row with the same key.
func (t *ImagePoints) Add(o ImageObservation) {
	key := imageKey{o.SyncIndex, o.Port, o.PointID}
	if i, ok := t.index[key]; ok {
		t.rows[i] = o
		return
	}
	t.index[key] = len(t.rows)
	t.rows = append(t.rows, o)
}

// Get looks up a single observation by its key.
func (t *ImagePoints) Get(sync, port, pointID int) (ImageObservation, bool) {
	i, ok := t.index[imageKey{sync, port, pointID}]
	if !ok {
		return ImageObservation{}, false
	}
	return t.rows[i], true
}

// Len returns the row count.
func (t *ImagePoints) Len() int { return len(t.rows) }

// All returns every row, in insertion order.
func (t *ImagePoints) All() []ImageObservation { return t.rows }

// BySync returns every row at the given sync_index.
func (t *ImagePoints) BySync(sync int) []ImageObservation {
	var out []ImageObservation
	for _, r := range t.rows {
		if r.SyncIndex == sync {
			out = append(out, r)
		}
	}
	return out
}

// ByPort returns every row observed at the given port.
func (t *ImagePoints) ByPort(port int) []ImageObservation {
	var out []ImageObservation
	for _, r := range t.rows {
		if r.Port == port {
			out = append(out, r)
		}
	}
	return out
}

// SyncPointObservations returns every camera's observation of a single
// point_id at a single sync_index, the unit of work for triangulation.
func (t *ImagePoints) SyncPointObservations(sync, pointID int) []ImageObservation {
	var out []ImageObservation
	for _, r := range t.rows {
		if r.SyncIndex == sync && r.PointID == pointID {
			out = append(out, r)
		}
	}
	return out
}

// SyncIndices returns every distinct sync_index present, ascending.
func (t *ImagePoints) SyncIndices() []int {
	seen := make(map[int]struct{})
	for _, r := range t.rows {
		seen[r.SyncIndex] = struct{}{}
	}
	out := make([]int, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Ints(out)
	return out
}

// WorldObservation is one row of the WorldPoints table: a triangulated
// 3-D point at a given sync index (spec §3).
type WorldObservation struct {
	SyncIndex int
	PointID   int
	XCoord    float64
	YCoord    float64
	ZCoord    float64
	FrameTime float64
}

type worldKey struct{ sync, point int }

// WorldPoints is the logical 3-D reconstruction table keyed by
// (sync_index, point_id).
type WorldPoints struct {
	rows  []WorldObservation
	index map[worldKey]int
}

// NewWorldPoints builds an empty table.
func NewWorldPoints() *WorldPoints {
	return &WorldPoints{index: make(map[worldKey]int)}
}

// Add inserts a point, replacing any existing row with the same key.
func (t *WorldPoints) Add(o WorldObservation) {
	key := worldKey{o.SyncIndex, o.PointID}
	if i, ok := t.index[key]; ok {
		t.rows[i] = o
		return
	}
	t.index[key] = len(t.rows)
	t.rows = append(t.rows, o)
}

// Get looks up a single point by its key.
func (t *WorldPoints) Get(sync, pointID int) (WorldObservation, bool) {
	i, ok := t.index[worldKey{sync, pointID}]
	if !ok {
		return WorldObservation{}, false
	}
	return t.rows[i], true
}

// Len returns the row count.
func (t *WorldPoints) Len() int { return len(t.rows) }

// All returns every row, in insertion order.
func (t *WorldPoints) All() []WorldObservation { return t.rows }

// BySync returns every point at the given sync_index.
func (t *WorldPoints) BySync(sync int) []WorldObservation {
	var out []WorldObservation
	for _, r := range t.rows {
		if r.SyncIndex == sync {
			out = append(out, r)
		}
	}
	return out
}

// PointPacket is a single tracker's per-frame output: parallel arrays of
// point_id, image location, and optional object location / confidence
// (spec §3). Tracker-assigned IDs are stable across frames.
type PointPacket struct {
	PointID    []int
	ImgLoc     [][2]float64
	ObjLoc     [][3]float64 // nil if this tracker never supplies object coords
	Confidence []float64    // nil if this tracker never supplies confidence
}

// CheckValid verifies the parallel arrays agree in length.
func (p *PointPacket) CheckValid() error {
	if p == nil {
		return nil
	}
	n := len(p.PointID)
	if len(p.ImgLoc) != n {
		return &corerrors.ShapeOrInvariantViolation{What: fmt.Sprintf("point packet img_loc length %d != point_id length %d", len(p.ImgLoc), n)}
	}
	if p.ObjLoc != nil && len(p.ObjLoc) != n {
		return &corerrors.ShapeOrInvariantViolation{What: fmt.Sprintf("point packet obj_loc length %d != point_id length %d", len(p.ObjLoc), n)}
	}
	if p.Confidence != nil && len(p.Confidence) != n {
		return &corerrors.ShapeOrInvariantViolation{What: fmt.Sprintf("point packet confidence length %d != point_id length %d", len(p.Confidence), n)}
	}
	return nil
}

// Len returns the number of tracked points in this packet.
func (p *PointPacket) Len() int {
	if p == nil {
		return 0
	}
	return len(p.PointID)
}

// FramePacket is a single camera's frame at a given capture index, plus
// whatever tracker output was attached to it (spec §3).
type FramePacket struct {
	Port       int
	FrameIndex int
	FrameTime  float64
	Image      image.Image
	Points     *PointPacket
}

// SyncPacket groups one FramePacket per port for a single sync_index; a
// missing entry denotes a dropped frame at that port (spec §3, §4.1).
type SyncPacket struct {
	SyncIndex int
	Frames    map[int]*FramePacket
}

// NewSyncPacket builds an empty packet for the given index.
func NewSyncPacket(syncIndex int) *SyncPacket {
	return &SyncPacket{SyncIndex: syncIndex, Frames: make(map[int]*FramePacket)}
}

// FrameAt returns the frame for port, or (nil, false) if dropped.
func (s *SyncPacket) FrameAt(port int) (*FramePacket, bool) {
	f, ok := s.Frames[port]
	return f, ok
}

// StereoPair is the immutable relative pose between two cameras, always
// stored with PrimaryPort < SecondaryPort (spec §3, §4.3).
type StereoPair struct {
	PrimaryPort   int
	SecondaryPort int
	ErrorScore    float64
	Rotation      *spatialmath.RotationMatrix
	Translation   r3.Vector
}

// NewStereoPair validates and builds a StereoPair.
func NewStereoPair(primary, secondary int, rotation *spatialmath.RotationMatrix, translation r3.Vector, errorScore float64) (*StereoPair, error) {
	if primary >= secondary {
		return nil, &corerrors.ShapeOrInvariantViolation{What: fmt.Sprintf("stereo pair primary_port %d must be < secondary_port %d", primary, secondary)}
	}
	if err := rotation.CheckValid(); err != nil {
		return nil, &corerrors.ShapeOrInvariantViolation{What: err.Error()}
	}
	if errorScore < 0 {
		return nil, &corerrors.ShapeOrInvariantViolation{What: fmt.Sprintf("stereo pair error_score %.6f is negative", errorScore)}
	}
	return &StereoPair{
		PrimaryPort:   primary,
		SecondaryPort: secondary,
		ErrorScore:    errorScore,
		Rotation:      rotation,
		Translation:   translation,
	}, nil
}

// Invert swaps the direction of the pair: if the receiver maps
// PrimaryPort -> SecondaryPort, Invert returns the pair with PrimaryPort
// and SecondaryPort swapped and Rotation/Translation recomputed (R^T,
// -R^T*t) so the result again maps its own PrimaryPort -> SecondaryPort,
// now in the opposite camera order.
func (p *StereoPair) Invert() *StereoPair {
	m := p.Rotation.Rows()
	// R_inv = R^T
	var inv [3][3]float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			inv[i][j] = m[j][i]
		}
	}
	invRot, _ := spatialmath.NewRotationMatrix(inv)
	// t_inv = -R^T * t
	t := p.Translation
	invT := r3.Vector{
		X: -(inv[0][0]*t.X + inv[0][1]*t.Y + inv[0][2]*t.Z),
		Y: -(inv[1][0]*t.X + inv[1][1]*t.Y + inv[1][2]*t.Z),
		Z: -(inv[2][0]*t.X + inv[2][1]*t.Y + inv[2][2]*t.Z),
	}
	return &StereoPair{
		PrimaryPort:   p.SecondaryPort,
		SecondaryPort: p.PrimaryPort,
		ErrorScore:    p.ErrorScore,
		Rotation:      invRot,
		Translation:   invT,
	}
}

// Link composes the receiver (a->b) with other (b->c) into a->c, summing
// error scores as a conservative bound (spec §3, §4.4). The receiver's
// SecondaryPort must equal other's PrimaryPort.
func (p *StereoPair) Link(other *StereoPair) (*StereoPair, error) {
	if p.SecondaryPort != other.PrimaryPort {
		return nil, &corerrors.ShapeOrInvariantViolation{
			What: fmt.Sprintf("cannot link pair (%d,%d) with (%d,%d): endpoints don't match",
				p.PrimaryPort, p.SecondaryPort, other.PrimaryPort, other.SecondaryPort),
		}
	}
	rm, ro := p.Rotation.Rows(), other.Rotation.Rows()
	// R_ac = R_bc * R_ab
	var composed [3][3]float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			var sum float64
			for k := 0; k < 3; k++ {
				sum += ro[i][k] * rm[k][j]
			}
			composed[i][j] = sum
		}
	}
	composedRot, err := spatialmath.NewRotationMatrix(composed)
	if err != nil {
		return nil, &corerrors.ShapeOrInvariantViolation{What: err.Error()}
	}
	// t_ac = R_bc * t_ab + t_bc
	tm := p.Translation
	composedT := r3.Vector{
		X: ro[0][0]*tm.X + ro[0][1]*tm.Y + ro[0][2]*tm.Z + other.Translation.X,
		Y: ro[1][0]*tm.X + ro[1][1]*tm.Y + ro[1][2]*tm.Z + other.Translation.Y,
		Z: ro[2][0]*tm.X + ro[2][1]*tm.Y + ro[2][2]*tm.Z + other.Translation.Z,
	}
	return &StereoPair{
		PrimaryPort:   p.PrimaryPort,
		SecondaryPort: other.SecondaryPort,
		ErrorScore:    p.ErrorScore + other.ErrorScore,
		Rotation:      composedRot,
		Translation:   composedT,
	}, nil
}
