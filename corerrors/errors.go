// Package corerrors implements the typed error kinds of the calibration
// core (spec §7). Every kind but ShapeOrInvariantViolation is a plain
// returned value a caller inspects with errors.As; ShapeOrInvariantViolation
// denotes a programming bug and is meant to abort the current operation
// loudly rather than be silently routed around.
package corerrors

import "fmt"

// InsufficientObservations reports that a port, pair, or sync index did
// not have enough data to proceed.
type InsufficientObservations struct {
	Port       int
	Pair       [2]int
	SyncIndex  int
	Reason     string
	HavePair   bool
	HaveSync   bool
}

func (e *InsufficientObservations) Error() string {
	switch {
	case e.HavePair:
		return fmt.Sprintf("insufficient observations for pair (%d,%d): %s", e.Pair[0], e.Pair[1], e.Reason)
	case e.HaveSync:
		return fmt.Sprintf("insufficient observations at sync_index %d: %s", e.SyncIndex, e.Reason)
	default:
		return fmt.Sprintf("insufficient observations at port %d: %s", e.Port, e.Reason)
	}
}

// NewInsufficientObservationsPort builds the port-scoped variant.
func NewInsufficientObservationsPort(port int, reason string) *InsufficientObservations {
	return &InsufficientObservations{Port: port, Reason: reason}
}

// NewInsufficientObservationsPair builds the pair-scoped variant.
func NewInsufficientObservationsPair(a, b int, reason string) *InsufficientObservations {
	return &InsufficientObservations{Pair: [2]int{a, b}, HavePair: true, Reason: reason}
}

// NewInsufficientObservationsSync builds the sync-index-scoped variant.
func NewInsufficientObservationsSync(syncIndex int, reason string) *InsufficientObservations {
	return &InsufficientObservations{SyncIndex: syncIndex, HaveSync: true, Reason: reason}
}

// IntrinsicFitInadequate reports that an intrinsic calibration's training
// RMSE exceeded the configured threshold.
type IntrinsicFitInadequate struct {
	Port      int
	RMSE      float64
	Threshold float64
}

func (e *IntrinsicFitInadequate) Error() string {
	return fmt.Sprintf("intrinsic fit for port %d has rmse %.4f px, exceeds threshold %.4f px", e.Port, e.RMSE, e.Threshold)
}

// StereoPairBelowThreshold reports too few shared calibration boards
// between a camera pair.
type StereoPairBelowThreshold struct {
	PrimaryPort, SecondaryPort int
	SharedBoards, MinRequired  int
}

func (e *StereoPairBelowThreshold) Error() string {
	return fmt.Sprintf("pair (%d,%d) has %d shared boards, below minimum %d",
		e.PrimaryPort, e.SecondaryPort, e.SharedBoards, e.MinRequired)
}

// ArrayInitializationIncomplete reports that the spanning-tree/gap-fill
// process could not reach every camera.
type ArrayInitializationIncomplete struct {
	OrphanPorts []int
}

func (e *ArrayInitializationIncomplete) Error() string {
	return fmt.Sprintf("array initialization incomplete, orphan ports: %v", e.OrphanPorts)
}

// BundleOptimizationDidNotConverge reports that the solver exited at its
// iteration cap without satisfying ftol.
type BundleOptimizationDidNotConverge struct {
	LastRMSE   float64
	Iterations int
}

func (e *BundleOptimizationDidNotConverge) Error() string {
	return fmt.Sprintf("bundle adjustment did not converge after %d iterations, last rmse %.6f px", e.Iterations, e.LastRMSE)
}

// RankDeficient reports that the Jacobian's column norms indicate one or
// more parameters are unconstrained by any residual.
type RankDeficient struct {
	ParamIndices []int
}

func (e *RankDeficient) Error() string {
	return fmt.Sprintf("jacobian is rank deficient at parameter indices %v", e.ParamIndices)
}

// ShapeOrInvariantViolation denotes a programming bug: a shape or
// mathematical invariant (rotation orthonormality, translation shape,
// etc.) was violated. Callers should treat this as fatal to the current
// operation.
type ShapeOrInvariantViolation struct {
	What string
}

func (e *ShapeOrInvariantViolation) Error() string {
	return fmt.Sprintf("shape or invariant violation: %s", e.What)
}

// Cancelled reports cooperative cancellation of a long-running task.
type Cancelled struct {
	Task string
}

func (e *Cancelled) Error() string {
	if e.Task == "" {
		return "cancelled"
	}
	return fmt.Sprintf("%s cancelled", e.Task)
}

// IOFailure wraps a persistence failure with the path it occurred at.
type IOFailure struct {
	Path  string
	Cause error
}

func (e *IOFailure) Error() string {
	return fmt.Sprintf("io failure at %q: %v", e.Path, e.Cause)
}

func (e *IOFailure) Unwrap() error { return e.Cause }
