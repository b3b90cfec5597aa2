// Package arrayinit implements the Array Initializer (spec §4.4): from a
// set of pairwise stereo bootstraps, it produces an initial extrinsic
// pose for every camera expressed in one anchor-camera world frame.
package arrayinit

import (
	"container/heap"
	"math"
	"sort"

	"github.com/mocap-toolkit/corecalib/corerrors"
	"github.com/mocap-toolkit/corecalib/model"
	"github.com/mocap-toolkit/corecalib/rimage/transform"
	"github.com/mocap-toolkit/corecalib/spatialmath"
)

// Config controls which edges the spanning tree trusts outright versus
// which it is willing to bridge with given weaker legs.
type Config struct {
	// TrustedErrorThreshold bounds which edges the primary spanning tree
	// (step 3) may use. Edges above it are held back for gap filling.
	TrustedErrorThreshold float64
	// BridgeErrorThreshold bounds each leg of a two-hop (or, in the full
	// BFS fallback, arbitrary-length) gap-filling bridge.
	BridgeErrorThreshold float64
}

// DefaultConfig trusts every edge outright — gap filling then only
// matters for genuinely disconnected components.
func DefaultConfig() Config {
	return Config{TrustedErrorThreshold: math.Inf(1), BridgeErrorThreshold: math.Inf(1)}
}

// directedEdge is one direction of travel through a StereoPair: Pair's
// Rotation/Translation map a point in camera `From`'s frame into camera
// `To`'s frame (`p_to = R*p_from + t`).
type directedEdge struct {
	From, To int
	Pair     *model.StereoPair
}

// Initialize computes world-frame extrinsics for every port in `ports`
// from the augmented directed multigraph of `pairs` (spec §4.4 steps
// 1-5). The anchor camera gets identity extrinsics; every other port's
// extrinsics are the composed anchor->port transform. Returns
// ArrayInitializationIncomplete listing any port gap filling could not
// reach.
func Initialize(pairs []*model.StereoPair, ports []int, cfg Config) (map[int]*transform.Extrinsics, error) {
	if cfg.TrustedErrorThreshold == 0 && cfg.BridgeErrorThreshold == 0 {
		cfg = DefaultConfig()
	}

	// Step 1: augment — every canonical pair contributes both directions.
	edgesFrom := make(map[int][]directedEdge)
	for _, p := range pairs {
		edgesFrom[p.PrimaryPort] = append(edgesFrom[p.PrimaryPort], directedEdge{p.PrimaryPort, p.SecondaryPort, p})
		inv := p.Invert()
		edgesFrom[inv.PrimaryPort] = append(edgesFrom[inv.PrimaryPort], directedEdge{inv.PrimaryPort, inv.SecondaryPort, inv})
	}
	edgesTo := make(map[int][]directedEdge)
	for from, es := range edgesFrom {
		for _, e := range es {
			edgesTo[e.To] = append(edgesTo[e.To], directedEdge{from, e.To, e.Pair})
		}
	}

	// Step 2: anchor selection — smallest mean error_score over edges
	// where the port is the travel-from endpoint, ties to lowest port.
	anchor, ok := selectAnchor(ports, edgesFrom)
	if !ok {
		return nil, &corerrors.ArrayInitializationIncomplete{OrphanPorts: append([]int(nil), ports...)}
	}

	connected := map[int]*model.StereoPair{} // port -> anchor->port transform; anchor itself absent (identity)

	// Step 3: trusted spanning tree, grown as a Dijkstra-style best-first
	// search (ties the spec's "prefer lowest error_score edge at each
	// step" to a concrete, globally quality-optimal composed transform
	// rather than an arbitrary traversal order).
	growTree(anchor, edgesFrom, connected, cfg.TrustedErrorThreshold)

	orphans := orphanSet(ports, anchor, connected)

	// Step 4: two-hop gap filling through a pivot that may itself be
	// unconnected, repeated to a fixed point.
	for {
		progress := gapFillTwoHop(orphans, connected, anchor, edgesTo, cfg.BridgeErrorThreshold)
		if !progress {
			break
		}
	}
	orphans = orphanSet(ports, anchor, connected)

	// Step 5 (supplemented extension, SPEC_FULL.md §C.5): if two-hop
	// bridging wasn't enough, retry with a full best-first search over
	// arbitrarily long composed chains, seeded from everything already
	// connected.
	if len(orphans) > 0 {
		growTreeFromConnected(connected, edgesFrom, cfg.BridgeErrorThreshold)
		orphans = orphanSet(ports, anchor, connected)
	}

	if len(orphans) > 0 {
		sort.Ints(orphans)
		return nil, &corerrors.ArrayInitializationIncomplete{OrphanPorts: orphans}
	}

	out := make(map[int]*transform.Extrinsics, len(ports))
	identity, _ := identityExtrinsics()
	for _, port := range ports {
		if port == anchor {
			out[port] = identity
			continue
		}
		pair := connected[port]
		out[port] = &transform.Extrinsics{Rotation: pair.Rotation, Translation: pair.Translation}
	}
	return out, nil
}

func identityExtrinsics() (*transform.Extrinsics, error) {
	rows := [3][3]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
	rot, err := spatialmath.NewRotationMatrix(rows)
	if err != nil {
		return nil, err
	}
	return &transform.Extrinsics{Rotation: rot}, nil
}

func selectAnchor(ports []int, edgesFrom map[int][]directedEdge) (int, bool) {
	if len(ports) == 0 {
		return 0, false
	}
	sortedPorts := append([]int(nil), ports...)
	sort.Ints(sortedPorts)

	best := sortedPorts[0]
	bestMean := math.Inf(1)
	for _, port := range sortedPorts {
		es := edgesFrom[port]
		if len(es) == 0 {
			continue
		}
		var sum float64
		for _, e := range es {
			sum += e.Pair.ErrorScore
		}
		mean := sum / float64(len(es))
		if mean < bestMean {
			bestMean = mean
			best = port
		}
	}
	if math.IsInf(bestMean, 1) && len(sortedPorts) > 1 {
		// No camera has any edge at all: every port is its own orphan
		// component; anchor choice is arbitrary (lowest port).
		return sortedPorts[0], false
	}
	return best, true
}

func orphanSet(ports []int, anchor int, connected map[int]*model.StereoPair) []int {
	var out []int
	for _, p := range ports {
		if p == anchor {
			continue
		}
		if _, ok := connected[p]; !ok {
			out = append(out, p)
		}
	}
	return out
}

// pqItem is one candidate (port, composed-transform, cumulative error)
// entry in the best-first search frontier.
type pqItem struct {
	port      int
	transform *model.StereoPair
	cumError  float64
}

type priorityQueue []pqItem

func (pq priorityQueue) Len() int            { return len(pq) }
func (pq priorityQueue) Less(i, j int) bool  { return pq[i].cumError < pq[j].cumError }
func (pq priorityQueue) Swap(i, j int)       { pq[i], pq[j] = pq[j], pq[i] }
func (pq *priorityQueue) Push(x interface{}) { *pq = append(*pq, x.(pqItem)) }
func (pq *priorityQueue) Pop() interface{} {
	old := *pq
	n := len(old)
	item := old[n-1]
	*pq = old[:n-1]
	return item
}

// growTree runs a Dijkstra-style best-first search from anchor over
// edgesFrom, using only edges at or below maxError, filling `connected`
// in place with the best composed anchor->port transform found.
func growTree(anchor int, edgesFrom map[int][]directedEdge, connected map[int]*model.StereoPair, maxError float64) {
	pq := &priorityQueue{}
	heap.Init(pq)
	for _, e := range edgesFrom[anchor] {
		if e.Pair.ErrorScore > maxError {
			continue
		}
		heap.Push(pq, pqItem{port: e.To, transform: e.Pair, cumError: e.Pair.ErrorScore})
	}
	for pq.Len() > 0 {
		item := heap.Pop(pq).(pqItem)
		if item.port == anchor {
			continue
		}
		if _, ok := connected[item.port]; ok {
			continue
		}
		connected[item.port] = item.transform
		for _, e := range edgesFrom[item.port] {
			if e.Pair.ErrorScore > maxError {
				continue
			}
			if e.To == anchor {
				continue
			}
			if _, ok := connected[e.To]; ok {
				continue
			}
			composed, err := item.transform.Link(e.Pair)
			if err != nil {
				continue
			}
			heap.Push(pq, pqItem{port: e.To, transform: composed, cumError: item.cumError + e.Pair.ErrorScore})
		}
	}
}

// growTreeFromConnected is growTree seeded from every port already in
// `connected` rather than just the anchor, used by the full-BFS
// extension (SPEC_FULL.md §C.5) once two-hop bridging has stalled.
func growTreeFromConnected(connected map[int]*model.StereoPair, edgesFrom map[int][]directedEdge, maxError float64) {
	pq := &priorityQueue{}
	heap.Init(pq)
	for port, t := range connected {
		for _, e := range edgesFrom[port] {
			if e.Pair.ErrorScore > maxError {
				continue
			}
			if _, ok := connected[e.To]; ok {
				continue
			}
			composed, err := t.Link(e.Pair)
			if err != nil {
				continue
			}
			heap.Push(pq, pqItem{port: e.To, transform: composed, cumError: composed.ErrorScore})
		}
	}
	for pq.Len() > 0 {
		item := heap.Pop(pq).(pqItem)
		if _, ok := connected[item.port]; ok {
			continue
		}
		connected[item.port] = item.transform
		for _, e := range edgesFrom[item.port] {
			if e.Pair.ErrorScore > maxError {
				continue
			}
			if _, ok := connected[e.To]; ok {
				continue
			}
			composed, err := item.transform.Link(e.Pair)
			if err != nil {
				continue
			}
			heap.Push(pq, pqItem{port: e.To, transform: composed, cumError: composed.ErrorScore})
		}
	}
}

// gapFillTwoHop attempts to connect every still-orphaned port via a
// bridge x->c whose pivot x is either already connected (a one-extra-hop
// extension) or itself reachable from a connected port a through a
// genuine two-hop composition a->x->c, provided every leg used is within
// maxLegError. Returns whether any orphan was newly connected this pass.
func gapFillTwoHop(orphans []int, connected map[int]*model.StereoPair, anchor int, edgesTo map[int][]directedEdge, maxLegError float64) bool {
	progress := false
	for _, c := range orphans {
		if _, ok := connected[c]; ok {
			continue
		}
		var best *model.StereoPair
		bestErr := math.Inf(1)
		consider := func(candidate *model.StereoPair) {
			if candidate.ErrorScore < bestErr {
				bestErr = candidate.ErrorScore
				best = candidate
			}
		}

		for _, legXC := range edgesTo[c] {
			if legXC.Pair.ErrorScore > maxLegError {
				continue
			}
			x := legXC.From
			if x == c {
				continue
			}
			if x == anchor {
				consider(legXC.Pair)
				continue
			}
			if prefix, ok := connected[x]; ok {
				if candidate, err := prefix.Link(legXC.Pair); err == nil {
					consider(candidate)
				}
				continue
			}
			// x isn't connected yet either: look for a connected pivot a
			// one more hop back, composing anchor->a->x->c.
			for _, legAX := range edgesTo[x] {
				if legAX.Pair.ErrorScore > maxLegError {
					continue
				}
				a := legAX.From
				if a == x || a == c {
					continue
				}
				var prefixAX *model.StereoPair
				var err error
				switch {
				case a == anchor:
					prefixAX = legAX.Pair
				default:
					prefixA, ok := connected[a]
					if !ok {
						continue
					}
					prefixAX, err = prefixA.Link(legAX.Pair)
					if err != nil {
						continue
					}
				}
				if candidate, err := prefixAX.Link(legXC.Pair); err == nil {
					consider(candidate)
				}
			}
		}
		if best != nil {
			connected[c] = best
			progress = true
		}
	}
	return progress
}
