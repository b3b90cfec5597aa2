// Package framesync implements the Frame Synchronizer (spec §4.1): a
// greedy forward pass over N per-port capture streams that groups frames
// into sync sets minimizing intra-set time spread, with at most one frame
// per port per set.
package framesync

import (
	"math"
	"sort"

	"github.com/mocap-toolkit/corecalib/model"
)

// timedFrame pairs a port with one frame_time. computeSyncIndices does
// not use it; it takes each port's frame times as a []float64.
type timedFrame struct {
	port      int
	frameTime float64
}

// Assignment is one emitted sync group: FrameIndex[port] gives the index
// into that port's input slice, or -1 if the port was dropped for this
// group.
type Assignment struct {
	SyncIndex  int
	FrameIndex map[int]int
}

// computeSyncIndices runs the greedy forward pass over per-port streams of
// frame times, each already sorted ascending by time (capture order).
// Grounded directly on compute_sync_indices / _earliest_next_frame /
// _latest_current_frame in the original recording/frame_sync module: a
// cursor per port, earliest_next/latest_current computed from every
// *other* port's cursor, and the three-way skip/assign decision.
func computeSyncIndices(ports []int, frameTimes map[int][]float64) []Assignment {
	sortedPorts := append([]int(nil), ports...)
	sort.Ints(sortedPorts)

	cursor := make(map[int]int, len(sortedPorts))
	for _, p := range sortedPorts {
		cursor[p] = 0
	}

	exhausted := func(p int) bool {
		return cursor[p] >= len(frameTimes[p])
	}
	allExhausted := func() bool {
		for _, p := range sortedPorts {
			if !exhausted(p) {
				return false
			}
		}
		return true
	}

	var out []Assignment
	syncIndex := 0
	for !allExhausted() {
		earliestNext := make(map[int]float64, len(sortedPorts))
		latestCurrent := make(map[int]float64, len(sortedPorts))
		for _, p := range sortedPorts {
			earliestNext[p] = math.Inf(1)
			latestCurrent[p] = math.Inf(-1)
			for _, other := range sortedPorts {
				if other == p {
					continue
				}
				if !exhausted(other) {
					if t := latestCurrent[p]; frameTimes[other][cursor[other]] > t {
						latestCurrent[p] = frameTimes[other][cursor[other]]
					}
				}
				next := cursor[other] + 1
				if next < len(frameTimes[other]) {
					if t := frameTimes[other][next]; t < earliestNext[p] {
						earliestNext[p] = t
					}
				}
			}
		}

		assignment := Assignment{SyncIndex: syncIndex, FrameIndex: make(map[int]int, len(sortedPorts))}
		assignedAny := false
		smallestPort, smallestTime := -1, math.Inf(1)
		for _, p := range sortedPorts {
			assignment.FrameIndex[p] = -1
			if exhausted(p) {
				continue
			}
			t := frameTimes[p][cursor[p]]
			if t < smallestTime {
				smallestTime, smallestPort = t, p
			}

			if t > earliestNext[p] {
				continue
			}
			if earliestNext[p]-t < t-latestCurrent[p] {
				continue
			}
			assignment.FrameIndex[p] = cursor[p]
			cursor[p]++
			assignedAny = true
		}

		if !assignedAny {
			if smallestPort == -1 {
				break
			}
			cursor[smallestPort]++
			continue
		}

		out = append(out, assignment)
		syncIndex++
	}
	return out
}

// RecomputeFromHistory re-derives sync groups from already-captured
// per-port frames (e.g. reloaded from frame_time_history.csv), without
// touching live channels. Frames within a port are sorted by FrameTime
// first, matching the original's defensive df.sort_values("frame_time")
// before cursoring.
func RecomputeFromHistory(framesByPort map[int][]*model.FramePacket) []*model.SyncPacket {
	ports := make([]int, 0, len(framesByPort))
	sorted := make(map[int][]*model.FramePacket, len(framesByPort))
	times := make(map[int][]float64, len(framesByPort))
	for p, frames := range framesByPort {
		ports = append(ports, p)
		fs := append([]*model.FramePacket(nil), frames...)
		sort.Slice(fs, func(i, j int) bool { return fs[i].FrameTime < fs[j].FrameTime })
		sorted[p] = fs
		ts := make([]float64, len(fs))
		for i, f := range fs {
			ts[i] = f.FrameTime
		}
		times[p] = ts
	}

	assignments := computeSyncIndices(ports, times)
	out := make([]*model.SyncPacket, 0, len(assignments))
	for _, a := range assignments {
		packet := model.NewSyncPacket(a.SyncIndex)
		for port, idx := range a.FrameIndex {
			if idx < 0 {
				continue
			}
			packet.Frames[port] = sorted[port][idx]
		}
		out = append(out, packet)
	}
	return out
}
