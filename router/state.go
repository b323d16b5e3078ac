package router

import "sync/atomic"

// State is one stage of a Router's lifecycle, per spec.md §3's Router
// state machine: INACTIVE → PREPARING → ACTIVE (or BACKGROUND) → DEAD.
type State uint32

const (
	// Inactive is a Router that has been constructed but whose elements
	// have not yet been configured or initialized.
	Inactive State = iota
	// Preparing is a Router whose elements are being configured and
	// initialized; it becomes Active (or Background) once bring-up
	// succeeds, or is rolled back on failure.
	Preparing
	// Active is a Router driving packet processing under a Master.
	Active
	// Background is a Router activated through Master.AddBackground: it
	// runs alongside the Active Router without being the Master's primary
	// hot-swap target.
	Background
	// Dead is a Router whose elements have been cleaned up; it retains
	// no runtime resources.
	Dead
)

func (s State) String() string {
	switch s {
	case Inactive:
		return "inactive"
	case Preparing:
		return "preparing"
	case Active:
		return "active"
	case Background:
		return "background"
	case Dead:
		return "dead"
	default:
		return "unknown"
	}
}

// fastState is a lock-free state cell, following the teacher's FastState:
// plain atomic load/store/CAS, no validation of transition legality left
// to the caller (Router's own methods enforce the legal transitions).
type fastState struct {
	v atomic.Uint32
}

func newFastState(initial State) *fastState {
	s := &fastState{}
	s.v.Store(uint32(initial))
	return s
}

func (s *fastState) Load() State { return State(s.v.Load()) }

func (s *fastState) Store(state State) { s.v.Store(uint32(state)) }

func (s *fastState) TryTransition(from, to State) bool {
	return s.v.CompareAndSwap(uint32(from), uint32(to))
}
