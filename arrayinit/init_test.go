package arrayinit

import (
	"errors"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"github.com/mocap-toolkit/corecalib/corerrors"
	"github.com/mocap-toolkit/corecalib/model"
	"github.com/mocap-toolkit/corecalib/spatialmath"
)

func identityRotation(t *testing.T) *spatialmath.RotationMatrix {
	t.Helper()
	rot, err := spatialmath.NewRotationMatrix([3][3]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}})
	test.That(t, err, test.ShouldBeNil)
	return rot
}

func mustPair(t *testing.T, a, b int, translation r3.Vector, errScore float64) *model.StereoPair {
	t.Helper()
	p, err := model.NewStereoPair(a, b, identityRotation(t), translation, errScore)
	test.That(t, err, test.ShouldBeNil)
	return p
}

func TestInitializeChainSpanningTree(t *testing.T) {
	pairs := []*model.StereoPair{
		mustPair(t, 0, 1, r3.Vector{X: 100}, 0.1),
		mustPair(t, 1, 2, r3.Vector{Y: 100}, 0.1),
		mustPair(t, 2, 3, r3.Vector{Z: 100}, 0.1),
	}
	out, err := Initialize(pairs, []int{0, 1, 2, 3}, DefaultConfig())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out[0].Translation, test.ShouldResemble, r3.Vector{})
	test.That(t, out[1].Translation, test.ShouldResemble, r3.Vector{X: 100})
	test.That(t, out[2].Translation, test.ShouldResemble, r3.Vector{X: 100, Y: 100})
	test.That(t, out[3].Translation, test.ShouldResemble, r3.Vector{X: 100, Y: 100, Z: 100})
}

func TestInitializeGapFillsThroughConnectedPivot(t *testing.T) {
	pairs := []*model.StereoPair{
		mustPair(t, 0, 1, r3.Vector{X: 100}, 0.1),
		mustPair(t, 1, 2, r3.Vector{Y: 100}, 5.0), // too noisy to trust outright
	}
	cfg := Config{TrustedErrorThreshold: 1.0, BridgeErrorThreshold: 10.0}
	out, err := Initialize(pairs, []int{0, 1, 2}, cfg)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out[2].Translation, test.ShouldResemble, r3.Vector{X: 100, Y: 100})
}

// TestInitializeBridgesThroughExcludedPivot exercises the genuine
// two-hop case: camera 5 is excluded from the output port set (e.g. it
// is ignore=true per SPEC_FULL.md §C.3) but its stereo pairs still exist
// in the data and are usable as a relay to reach camera 2.
func TestInitializeBridgesThroughExcludedPivot(t *testing.T) {
	pairs := []*model.StereoPair{
		mustPair(t, 0, 1, r3.Vector{X: 100}, 0.1),
		mustPair(t, 1, 5, r3.Vector{Y: 50}, 5.0),
		mustPair(t, 2, 5, r3.Vector{Z: 25}, 5.0),
	}
	cfg := Config{TrustedErrorThreshold: 1.0, BridgeErrorThreshold: 10.0}
	out, err := Initialize(pairs, []int{0, 1, 2}, cfg)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out[2], test.ShouldNotBeNil)
	// anchor->1->5->2: (100,0,0)+(0,50,0)+(0,0,-25) since pair(2,5) inverted gives 5->2.
	test.That(t, out[2].Translation.X, test.ShouldAlmostEqual, 100.0, 1e-9)
	test.That(t, out[2].Translation.Y, test.ShouldAlmostEqual, 50.0, 1e-9)
	test.That(t, out[2].Translation.Z, test.ShouldAlmostEqual, -25.0, 1e-9)
}

func TestInitializeReportsOrphansWhenDisconnected(t *testing.T) {
	pairs := []*model.StereoPair{
		mustPair(t, 0, 1, r3.Vector{X: 100}, 0.1),
	}
	_, err := Initialize(pairs, []int{0, 1, 2}, DefaultConfig())
	test.That(t, err, test.ShouldNotBeNil)
	var target *corerrors.ArrayInitializationIncomplete
	test.That(t, errors.As(err, &target), test.ShouldBeTrue)
	test.That(t, target.OrphanPorts, test.ShouldResemble, []int{2})
}
