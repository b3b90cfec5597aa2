package framesync

import (
	"context"
	"testing"
	"time"

	"go.viam.com/test"

	"github.com/mocap-toolkit/corecalib/logging"
	"github.com/mocap-toolkit/corecalib/model"
)

func feed(ch chan<- *model.FramePacket, port int, times []float64) {
	for i, t := range times {
		ch <- &model.FramePacket{Port: port, FrameIndex: i, FrameTime: t}
	}
	close(ch)
}

func TestSynchronizerRunAssemblesAlignedPackets(t *testing.T) {
	ch0 := make(chan *model.FramePacket)
	ch1 := make(chan *model.FramePacket)
	go feed(ch0, 0, []float64{0.000, 0.100, 0.200})
	go feed(ch1, 1, []float64{0.001, 0.099, 0.201})

	cfg := Config{Ports: []int{0, 1}, BoundedWait: 500 * time.Millisecond}
	in := map[int]<-chan *model.FramePacket{0: ch0, 1: ch1}
	sync := New(cfg, in, logging.NewLogger("test"))

	done := make(chan error, 1)
	go func() { done <- sync.Run(context.Background()) }()

	var packets []*model.SyncPacket
	for p := range sync.Out() {
		packets = append(packets, p)
	}
	test.That(t, <-done, test.ShouldBeNil)
	test.That(t, len(packets), test.ShouldEqual, 3)

	for i, p := range packets {
		test.That(t, p.SyncIndex, test.ShouldEqual, i)
		f0, ok := p.FrameAt(0)
		test.That(t, ok, test.ShouldBeTrue)
		test.That(t, f0.FrameIndex, test.ShouldEqual, i)
		f1, ok := p.FrameAt(1)
		test.That(t, ok, test.ShouldBeTrue)
		test.That(t, f1.FrameIndex, test.ShouldEqual, i)
	}
	test.That(t, sync.Delivered(), test.ShouldEqual, int64(3))
}

func TestSynchronizerStopIsCooperative(t *testing.T) {
	ch0 := make(chan *model.FramePacket)
	ch1 := make(chan *model.FramePacket)
	// Neither channel is ever closed or fed: the synchronizer must block
	// waiting on ready candidates, not busy-loop forever ignoring Stop.
	cfg := Config{Ports: []int{0, 1}, BoundedWait: 20 * time.Millisecond}
	in := map[int]<-chan *model.FramePacket{0: ch0, 1: ch1}
	sync := New(cfg, in, logging.NewLogger("test"))

	done := make(chan error, 1)
	go func() { done <- sync.Run(context.Background()) }()

	time.Sleep(50 * time.Millisecond)
	sync.Stop()

	select {
	case err := <-done:
		test.That(t, err, test.ShouldNotBeNil)
	case <-time.After(2 * time.Second):
		t.Fatal("synchronizer did not stop within 2s of Stop()")
	}
}
