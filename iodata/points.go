// Package iodata reads and writes the CSV artifacts of spec §6:
// point_data.csv (image observations), frame_time_history.csv (recorded
// per-port capture timestamps), and the xyz_{tracker_name}.csv family of
// triangulation outputs. It wraps encoding/csv the way the teacher's own
// sweep CSV writer does: explicit header-writing functions and a thin
// wrapper around csv.Writer, rather than a generic row-marshalling layer.
package iodata

import (
	"encoding/csv"
	"os"
	"strconv"

	"github.com/mocap-toolkit/corecalib/corerrors"
	"github.com/mocap-toolkit/corecalib/model"
)

var pointDataHeader = []string{
	"sync_index", "port", "frame_index", "frame_time", "point_id",
	"img_loc_x", "img_loc_y", "obj_loc_x", "obj_loc_y", "obj_loc_z",
}

// ReadImagePoints loads a point_data.csv file into an ImagePoints table.
// obj_loc_* columns left blank mark a row with HasObjLoc false (spec §6:
// "obj_loc_* may be empty for non-calibration trackers").
func ReadImagePoints(path string) (*model.ImagePoints, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &corerrors.IOFailure{Path: path, Cause: err}
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true
	rows, err := r.ReadAll()
	if err != nil {
		return nil, &corerrors.IOFailure{Path: path, Cause: err}
	}
	if len(rows) == 0 {
		return model.NewImagePoints(), nil
	}

	points := model.NewImagePoints()
	for _, row := range rows[1:] {
		if len(row) < len(pointDataHeader) {
			return nil, &corerrors.IOFailure{Path: path, Cause: &corerrors.ShapeOrInvariantViolation{
				What: "point_data.csv row has fewer than 10 columns",
			}}
		}
		syncIndex, err := strconv.Atoi(row[0])
		if err != nil {
			return nil, &corerrors.IOFailure{Path: path, Cause: err}
		}
		port, err := strconv.Atoi(row[1])
		if err != nil {
			return nil, &corerrors.IOFailure{Path: path, Cause: err}
		}
		if _, err := strconv.Atoi(row[2]); err != nil {
			return nil, &corerrors.IOFailure{Path: path, Cause: err}
		}
		frameTime, err := strconv.ParseFloat(row[3], 64)
		if err != nil {
			return nil, &corerrors.IOFailure{Path: path, Cause: err}
		}
		pointID, err := strconv.Atoi(row[4])
		if err != nil {
			return nil, &corerrors.IOFailure{Path: path, Cause: err}
		}
		imgX, err := strconv.ParseFloat(row[5], 64)
		if err != nil {
			return nil, &corerrors.IOFailure{Path: path, Cause: err}
		}
		imgY, err := strconv.ParseFloat(row[6], 64)
		if err != nil {
			return nil, &corerrors.IOFailure{Path: path, Cause: err}
		}

		obs := model.ImageObservation{
			SyncIndex: syncIndex,
			Port:      port,
			PointID:   pointID,
			FrameTime: frameTime,
			ImgLocX:   imgX,
			ImgLocY:   imgY,
		}

		if row[7] != "" && row[8] != "" && row[9] != "" {
			objX, err := strconv.ParseFloat(row[7], 64)
			if err != nil {
				return nil, &corerrors.IOFailure{Path: path, Cause: err}
			}
			objY, err := strconv.ParseFloat(row[8], 64)
			if err != nil {
				return nil, &corerrors.IOFailure{Path: path, Cause: err}
			}
			objZ, err := strconv.ParseFloat(row[9], 64)
			if err != nil {
				return nil, &corerrors.IOFailure{Path: path, Cause: err}
			}
			obs.ObjLocX, obs.ObjLocY, obs.ObjLocZ = objX, objY, objZ
			obs.HasObjLoc = true
		}
		points.Add(obs)
	}
	return points, nil
}

// WriteImagePoints writes an ImagePoints table out as point_data.csv.
// frame_index is not tracked on ImageObservation (it lives on
// FramePacket, one level up the pipeline), so it is emitted as 0; callers
// that need exact frame_index round-tripping should read it back from
// the FramePacket stream instead.
func WriteImagePoints(path string, points *model.ImagePoints) error {
	f, err := os.Create(path)
	if err != nil {
		return &corerrors.IOFailure{Path: path, Cause: err}
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(pointDataHeader); err != nil {
		return &corerrors.IOFailure{Path: path, Cause: err}
	}
	for _, o := range points.All() {
		row := []string{
			strconv.Itoa(o.SyncIndex),
			strconv.Itoa(o.Port),
			"0",
			strconv.FormatFloat(o.FrameTime, 'f', -1, 64),
			strconv.Itoa(o.PointID),
			strconv.FormatFloat(o.ImgLocX, 'f', -1, 64),
			strconv.FormatFloat(o.ImgLocY, 'f', -1, 64),
			"", "", "",
		}
		if o.HasObjLoc {
			row[7] = strconv.FormatFloat(o.ObjLocX, 'f', -1, 64)
			row[8] = strconv.FormatFloat(o.ObjLocY, 'f', -1, 64)
			row[9] = strconv.FormatFloat(o.ObjLocZ, 'f', -1, 64)
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
