package iodata

import (
	"encoding/csv"
	"io"
	"os"
	"sort"
	"strconv"

	"github.com/mocap-toolkit/corecalib/corerrors"
)

// ReadFrameTimeHistory loads frame_time_history.csv (spec §6) into
// per-port timestamp slices, sorted ascending, the shape
// framesync.RecomputeFromHistory's synthetic-FramePacket callers need to
// reconstruct per-port cursors for a recorded session. Extra columns
// beyond port/frame_time are tolerated and ignored.
func ReadFrameTimeHistory(path string) (map[int][]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &corerrors.IOFailure{Path: path, Cause: err}
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return nil, &corerrors.IOFailure{Path: path, Cause: err}
	}
	portCol, timeCol := columnIndex(header, "port"), columnIndex(header, "frame_time")
	if portCol < 0 || timeCol < 0 {
		return nil, &corerrors.IOFailure{Path: path, Cause: &corerrors.ShapeOrInvariantViolation{
			What: "frame_time_history.csv header missing port or frame_time column",
		}}
	}

	byPort := make(map[int][]float64)
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &corerrors.IOFailure{Path: path, Cause: err}
		}
		port, err := strconv.Atoi(row[portCol])
		if err != nil {
			return nil, &corerrors.IOFailure{Path: path, Cause: err}
		}
		t, err := strconv.ParseFloat(row[timeCol], 64)
		if err != nil {
			return nil, &corerrors.IOFailure{Path: path, Cause: err}
		}
		byPort[port] = append(byPort[port], t)
	}
	for port := range byPort {
		sort.Float64s(byPort[port])
	}
	return byPort, nil
}

// WriteFrameTimeHistory writes per-port timestamp slices out as
// frame_time_history.csv, ports ascending then frames in slice order.
func WriteFrameTimeHistory(path string, byPort map[int][]float64) error {
	f, err := os.Create(path)
	if err != nil {
		return &corerrors.IOFailure{Path: path, Cause: err}
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"port", "frame_time"}); err != nil {
		return &corerrors.IOFailure{Path: path, Cause: err}
	}

	ports := make([]int, 0, len(byPort))
	for p := range byPort {
		ports = append(ports, p)
	}
	sort.Ints(ports)
	for _, p := range ports {
		for _, t := range byPort[p] {
			row := []string{strconv.Itoa(p), strconv.FormatFloat(t, 'f', -1, 64)}
			if err := w.Write(row); err != nil {
				return &corerrors.IOFailure{Path: path, Cause: err}
			}
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return &corerrors.IOFailure{Path: path, Cause: err}
	}
	return nil
}

func columnIndex(header []string, name string) int {
	for i, h := range header {
		if h == name {
			return i
		}
	}
	return -1
}
