package iodata

import (
	"encoding/csv"
	"fmt"
	"os"
	"sort"
	"strconv"

	"github.com/mocap-toolkit/corecalib/corerrors"
	"github.com/mocap-toolkit/corecalib/model"
)

// WriteXYZLong writes a WorldPoints table as xyz_{tracker_name}.csv
// (spec §6, long form): one row per (sync_index, point_id).
func WriteXYZLong(path string, world *model.WorldPoints) error {
	f, err := os.Create(path)
	if err != nil {
		return &corerrors.IOFailure{Path: path, Cause: err}
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := []string{"sync_index", "point_id", "frame_time", "x_coord", "y_coord", "z_coord"}
	if err := w.Write(header); err != nil {
		return &corerrors.IOFailure{Path: path, Cause: err}
	}

	rows := append([]model.WorldObservation(nil), world.All()...)
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].SyncIndex != rows[j].SyncIndex {
			return rows[i].SyncIndex < rows[j].SyncIndex
		}
		return rows[i].PointID < rows[j].PointID
	})

	for _, o := range rows {
		row := []string{
			strconv.Itoa(o.SyncIndex),
			strconv.Itoa(o.PointID),
			strconv.FormatFloat(o.FrameTime, 'f', -1, 64),
			strconv.FormatFloat(o.XCoord, 'f', -1, 64),
			strconv.FormatFloat(o.YCoord, 'f', -1, 64),
			strconv.FormatFloat(o.ZCoord, 'f', -1, 64),
		}
		if err := w.Write(row); err != nil {
			return &corerrors.IOFailure{Path: path, Cause: err}
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return &corerrors.IOFailure{Path: path, Cause: err}
	}
	return nil
}

// PointNamer maps a tracked point_id to the stable label spec §6's wide
// form uses for its per-point column triples. Callers that have no
// naming scheme can pass DefaultPointNamer.
type PointNamer func(pointID int) string

// DefaultPointNamer names a point "point_{id}" when the caller has no
// richer labelling (e.g. body-landmark names from a specific tracker).
func DefaultPointNamer(pointID int) string { return fmt.Sprintf("point_%d", pointID) }

// WriteXYZWide writes a WorldPoints table as xyz_{tracker_name}_labelled.csv
// (spec §6, wide form): one row per sync_index, with a
// {point_name}_x/_y/_z column triple per tracked point. Point IDs absent
// at a given sync_index leave that triple's cells empty.
func WriteXYZWide(path string, world *model.WorldPoints, namer PointNamer) error {
	if namer == nil {
		namer = DefaultPointNamer
	}
	f, err := os.Create(path)
	if err != nil {
		return &corerrors.IOFailure{Path: path, Cause: err}
	}
	defer f.Close()

	pointIDs := make(map[int]struct{})
	syncSeen := make(map[int]struct{})
	for _, o := range world.All() {
		pointIDs[o.PointID] = struct{}{}
		syncSeen[o.SyncIndex] = struct{}{}
	}
	ids := make([]int, 0, len(pointIDs))
	for id := range pointIDs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	syncs := make([]int, 0, len(syncSeen))
	for s := range syncSeen {
		syncs = append(syncs, s)
	}
	sort.Ints(syncs)

	w := csv.NewWriter(f)
	header := []string{"sync_index"}
	for _, id := range ids {
		name := namer(id)
		header = append(header, name+"_x", name+"_y", name+"_z")
	}
	if err := w.Write(header); err != nil {
		return &corerrors.IOFailure{Path: path, Cause: err}
	}

	for _, s := range syncs {
		row := []string{strconv.Itoa(s)}
		for _, id := range ids {
			if o, ok := world.Get(s, id); ok {
				row = append(row,
					strconv.FormatFloat(o.XCoord, 'f', -1, 64),
					strconv.FormatFloat(o.YCoord, 'f', -1, 64),
					strconv.FormatFloat(o.ZCoord, 'f', -1, 64),
				)
			} else {
				row = append(row, "", "", "")
			}
		}
		if err := w.Write(row); err != nil {
			return &corerrors.IOFailure{Path: path, Cause: err}
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return &corerrors.IOFailure{Path: path, Cause: err}
	}
	return nil
}
