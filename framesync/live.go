package framesync

import (
	"context"
	"math"
	"sort"
	"time"

	"go.uber.org/atomic"
	"golang.org/x/time/rate"

	"github.com/mocap-toolkit/corecalib/corerrors"
	"github.com/mocap-toolkit/corecalib/logging"
	"github.com/mocap-toolkit/corecalib/model"
)

var posInf = math.Inf(1)
var negInf = math.Inf(-1)

// Config controls a live Synchronizer.
type Config struct {
	Ports []int

	// BoundedWait caps how long the synchronizer waits for a port's
	// current frame to arrive before treating it as not-yet-ready and
	// retrying (spec §5: "bounded waits").
	BoundedWait time.Duration

	// TargetFPS caps the running average delivered rate; zero disables
	// rate control (spec §4.1 "Rate control").
	TargetFPS float64
}

// DefaultConfig applies a 200ms bounded wait and no rate cap.
func DefaultConfig(ports []int) Config {
	return Config{Ports: ports, BoundedWait: 200 * time.Millisecond}
}

// reel buffers one port's incoming FramePackets so the synchronizer can
// peek ahead (current and next frame) without consuming the channel.
// Only the fill goroutine appends to buf; the run loop only reads indices
// it has already observed via notify, so no lock is needed for at().
type reel struct {
	buf    []*model.FramePacket
	in     <-chan *model.FramePacket
	closed *atomic.Bool
	notify chan struct{}
}

func newReel(in <-chan *model.FramePacket) *reel {
	r := &reel{in: in, closed: atomic.NewBool(false), notify: make(chan struct{}, 1)}
	go r.fill()
	return r
}

func (r *reel) fill() {
	for f := range r.in {
		r.buf = append(r.buf, f)
		select {
		case r.notify <- struct{}{}:
		default:
		}
	}
	r.closed.Store(true)
	select {
	case r.notify <- struct{}{}:
	default:
	}
}

func (r *reel) at(i int) (*model.FramePacket, bool) {
	if i < len(r.buf) {
		return r.buf[i], true
	}
	return nil, false
}

func (r *reel) exhausted(cursor int) bool {
	return r.closed.Load() && cursor >= len(r.buf)
}

// Synchronizer runs the greedy forward-pass algorithm live against
// channels of captured frames, one per port, emitting SyncPackets on Out().
type Synchronizer struct {
	cfg       Config
	reels     map[int]*reel
	out       chan *model.SyncPacket
	stopped   *atomic.Bool
	limiter   *rate.Limiter
	delivered *atomic.Int64
	started   time.Time
	log       logging.Logger
}

// New builds a Synchronizer reading from in (one receive-only channel per
// port) and writing assembled SyncPackets to Out().
func New(cfg Config, in map[int]<-chan *model.FramePacket, log logging.Logger) *Synchronizer {
	reels := make(map[int]*reel, len(in))
	for p, ch := range in {
		reels[p] = newReel(ch)
	}
	var limiter *rate.Limiter
	if cfg.TargetFPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.TargetFPS), 1)
	}
	return &Synchronizer{
		cfg:       cfg,
		reels:     reels,
		out:       make(chan *model.SyncPacket),
		stopped:   atomic.NewBool(false),
		limiter:   limiter,
		delivered: atomic.NewInt64(0),
		started:   time.Now(),
		log:       log,
	}
}

// Out returns the channel of assembled sync packets. It is closed once
// every port is exhausted or Stop is called.
func (s *Synchronizer) Out() <-chan *model.SyncPacket { return s.out }

// Stop cooperatively halts the run loop; Out() is closed shortly after.
func (s *Synchronizer) Stop() { s.stopped.Store(true) }

// Delivered returns the number of sync packets emitted so far.
func (s *Synchronizer) Delivered() int64 { return s.delivered.Load() }

func (s *Synchronizer) deliveredFPS() float64 {
	elapsed := time.Since(s.started).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(s.delivered.Load()) / elapsed
}

func (s *Synchronizer) allExhausted(ports []int, cursor map[int]int) bool {
	for _, p := range ports {
		if !s.reels[p].exhausted(cursor[p]) {
			return false
		}
	}
	return true
}

// waitForCandidates returns the current frame_time for every port that
// has one ready, waiting up to BoundedWait for ports that are lagging
// (spec §5). A port that is exhausted (closed with no more buffered
// frames) never becomes ready and is simply omitted from the result.
func (s *Synchronizer) waitForCandidates(ports []int, cursor map[int]int) map[int]float64 {
	ready := make(map[int]float64, len(ports))
	deadline := time.Now().Add(s.cfg.BoundedWait)
	for _, p := range ports {
		r := s.reels[p]
		for {
			if f, ok := r.at(cursor[p]); ok {
				ready[p] = f.FrameTime
				break
			}
			if r.exhausted(cursor[p]) {
				break
			}
			wait := time.Until(deadline)
			if wait <= 0 {
				break
			}
			timer := time.NewTimer(wait)
			select {
			case <-r.notify:
				timer.Stop()
			case <-timer.C:
			}
		}
	}
	return ready
}

// Run drives the synchronizer until every port is exhausted or Stop is
// called. It blocks; callers typically invoke it in its own goroutine.
func (s *Synchronizer) Run(ctx context.Context) error {
	defer close(s.out)

	ports := append([]int(nil), s.cfg.Ports...)
	sort.Ints(ports)
	cursor := make(map[int]int, len(ports))
	nextSyncIndex := 0

	for {
		if s.stopped.Load() {
			return &corerrors.Cancelled{Task: "frame synchronizer"}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if s.allExhausted(ports, cursor) {
			return nil
		}

		// Rate control: pause the capture-advance signal if delivering
		// faster than the configured target (spec §4.1).
		if s.cfg.TargetFPS > 0 && s.deliveredFPS() > s.cfg.TargetFPS {
			if err := s.limiter.Wait(ctx); err != nil {
				return err
			}
		}

		ready := s.waitForCandidates(ports, cursor)
		if len(ready) == 0 {
			if s.allExhausted(ports, cursor) {
				return nil
			}
			continue
		}

		earliestNext := make(map[int]float64, len(ports))
		latestCurrent := make(map[int]float64, len(ports))
		for _, p := range ports {
			earliestNext[p] = posInf
			latestCurrent[p] = negInf
			for _, other := range ports {
				if other == p {
					continue
				}
				if f, ok := ready[other]; ok && f > latestCurrent[p] {
					latestCurrent[p] = f
				}
				if next, ok := s.reels[other].at(cursor[other] + 1); ok && next.FrameTime < earliestNext[p] {
					earliestNext[p] = next.FrameTime
				}
			}
		}

		packet := model.NewSyncPacket(nextSyncIndex)
		assignedAny := false
		smallestPort, smallestTime := -1, posInf
		for _, p := range ports {
			t, ok := ready[p]
			if !ok {
				continue
			}
			if t < smallestTime {
				smallestTime, smallestPort = t, p
			}
			if t > earliestNext[p] {
				continue
			}
			if earliestNext[p]-t < t-latestCurrent[p] {
				continue
			}
			frame, _ := s.reels[p].at(cursor[p])
			packet.Frames[p] = frame
			cursor[p]++
			assignedAny = true
		}

		if !assignedAny {
			if smallestPort >= 0 {
				cursor[smallestPort]++
			}
			continue
		}

		nextSyncIndex++
		s.delivered.Inc()
		select {
		case s.out <- packet:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
