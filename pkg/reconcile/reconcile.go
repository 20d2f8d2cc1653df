// Package reconcile implements optimistic local like state for clients of
// the engagement API. A caller applies the expected outcome immediately,
// renders it, and later either reconciles with the server's committed result
// or rolls back to the snapshot taken before the call. The package is pure
// bookkeeping: it performs no I/O and never talks to the engine itself.
package reconcile

import "errors"

// LabelState is the client-side view of one (label, user) pair.
type LabelState struct {
	IsActive  bool
	Crispness float64
	LikeCount int
}

// Outcome is the engine's committed result for a mutation, as returned by
// the engagement endpoints.
type Outcome struct {
	IsActive  bool
	Crispness float64
	LikeCount int
}

// ErrNoPending is returned when Reconcile or Rollback is called with no
// optimistic mutation in flight.
var ErrNoPending = errors.New("reconcile: no pending mutation")

// Tracker holds the committed state of one label plus at most one in-flight
// optimistic mutation. It is not safe for concurrent use; clients own one
// tracker per rendered label.
type Tracker struct {
	committed LabelState
	pending   bool
	snapshot  LabelState
}

func NewTracker(initial LabelState) *Tracker {
	return &Tracker{committed: initial}
}

// State returns what the client should render right now: the optimistic
// value while a mutation is in flight, the committed value otherwise.
func (t *Tracker) State() LabelState {
	return t.committed
}

// Pending reports whether an optimistic mutation is awaiting its outcome.
func (t *Tracker) Pending() bool {
	return t.pending
}

// ApplyToggle records the snapshot and applies the expected toggle result
// locally. The decayed score is not predictable client-side without the full
// ledger, so the optimistic crispness is a plain guess: full strength when
// activating, unchanged when withdrawing.
func (t *Tracker) ApplyToggle() LabelState {
	t.begin()
	if t.committed.IsActive {
		t.committed.IsActive = false
		if t.committed.LikeCount > 0 {
			t.committed.LikeCount--
		}
	} else {
		t.committed.IsActive = true
		t.committed.Crispness = 100.0
		t.committed.LikeCount++
	}
	return t.committed
}

// ApplyRestore optimistically reactivates a withdrawn like. The true score
// depends on how stale the restored timestamp is, so the local value keeps
// the last known crispness until the outcome arrives.
func (t *Tracker) ApplyRestore() LabelState {
	t.begin()
	t.committed.IsActive = true
	t.committed.LikeCount++
	return t.committed
}

// ApplyRefresh optimistically reactivates with a reset decay clock.
func (t *Tracker) ApplyRefresh() LabelState {
	t.begin()
	t.committed.IsActive = true
	t.committed.Crispness = 100.0
	t.committed.LikeCount++
	return t.committed
}

// Reconcile replaces the optimistic value with the engine's committed
// outcome and clears the in-flight marker.
func (t *Tracker) Reconcile(o Outcome) (LabelState, error) {
	if !t.pending {
		return t.committed, ErrNoPending
	}
	t.pending = false
	t.committed = LabelState{
		IsActive:  o.IsActive,
		Crispness: o.Crispness,
		LikeCount: o.LikeCount,
	}
	return t.committed, nil
}

// Rollback restores the pre-call snapshot. Call it for every failed
// mutation; the server committed nothing, so the local state must not keep
// the optimistic guess.
func (t *Tracker) Rollback() (LabelState, error) {
	if !t.pending {
		return t.committed, ErrNoPending
	}
	t.pending = false
	t.committed = t.snapshot
	return t.committed, nil
}

func (t *Tracker) begin() {
	if !t.pending {
		t.snapshot = t.committed
		t.pending = true
	}
}

// Retryable reports whether a failed call should be retried silently before
// the error is shown to the user. Commit contention is transient; every
// other error kind reflects a real decision or defect and surfaces
// immediately with its message verbatim.
func Retryable(code string) bool {
	return code == "CONTENTION"
}
