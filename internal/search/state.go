// Package search implements the per-connection search state machine
// (IDLE → CONFIGURING → RUNNING → DRAINING → CLOSED), grounded on
// original_source/src/adiskd/search_state.h and adiskd.c.
package search

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/opendiamond-go/adiskd/internal/constants"
	"github.com/opendiamond-go/adiskd/internal/filter"
	"github.com/opendiamond-go/adiskd/internal/gidx"
	"github.com/opendiamond-go/adiskd/internal/interfaces"
)

// Phase is one of the five states a search session moves through.
type Phase int

const (
	Idle Phase = iota
	Configuring
	Running
	Draining
	Closed
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "IDLE"
	case Configuring:
		return "CONFIGURING"
	case Running:
		return "RUNNING"
	case Draining:
		return "DRAINING"
	case Closed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Counters holds the obj_total/processed/dropped/passed/skipped family of
// search_state_t, plus the background variants and stall counts, each a
// separate atomic so the worker goroutine never blocks writing them and
// the control-read path tolerates a torn read per spec §5.
type Counters struct {
	ObjTotal     atomic.Int64
	ObjProcessed atomic.Int64
	ObjDropped   atomic.Int64
	ObjPassed    atomic.Int64
	ObjSkipped   atomic.Int64

	ObjBGProcessed atomic.Int64
	ObjBGDropped   atomic.Int64
	ObjBGPassed    atomic.Int64

	NetworkStalls atomic.Int64
	TxFullStalls  atomic.Int64
	TxIdles       atomic.Int64
}

// InFlight returns the number of objects that have been read but not yet
// passed, dropped, or skipped — used to check invariant (iii):
// processed == passed + dropped + skipped + in-flight.
func (c *Counters) InFlight() int64 {
	return c.ObjProcessed.Load() - c.ObjPassed.Load() - c.ObjDropped.Load() - c.ObjSkipped.Load()
}

// State is one search session's full state (sstate): its phase, filter
// set, group ids, split policy, and counters. A State is owned by exactly
// one connection; flags/phase transitions are guarded by mu.
type State struct {
	mu    sync.Mutex
	phase Phase

	SessionID string
	log       interfaces.Logger

	Filters *filter.Set
	Perm    *filter.Optimizer
	Split   *filter.SplitPolicy
	GIDs    []gidx.GID

	Counters Counters

	PendMax   int
	Workahead bool

	flags uint32
}

// New creates an IDLE search state for sessionID.
func New(sessionID string, log interfaces.Logger) *State {
	return &State{
		SessionID: sessionID,
		log:       log,
		phase:     Idle,
		PendMax:   constants.DefaultPendMax,
		Workahead: constants.DefaultWorkahead,
		Split:     filter.NewSplitPolicy(),
	}
}

// Phase returns the current lifecycle phase.
func (s *State) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Flags returns the DEV_FLAG_* bitset currently set.
func (s *State) Flags() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flags
}

var errBadTransition = fmt.Errorf("search: invalid state transition")

// Configure moves IDLE→CONFIGURING (or stays in CONFIGURING) on a
// set_spec/set_obj/set_gid/set_blob control call.
func (s *State) Configure() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.phase {
	case Idle, Configuring:
		s.phase = Configuring
		return nil
	default:
		return fmt.Errorf("%w: Configure from %s", errBadTransition, s.phase)
	}
}

// Start moves CONFIGURING→RUNNING: requires a current filter set and at
// least one group id, per spec §4.6. It clears filter stats and sets
// DEV_FLAG_RUNNING; it does not itself spawn goroutines or filter
// children — callers (the owning connection) do that once Start returns
// successfully.
func (s *State) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != Configuring {
		return fmt.Errorf("%w: Start from %s", errBadTransition, s.phase)
	}
	if s.Filters == nil {
		return fmt.Errorf("search: Start requires a filter spec")
	}
	if len(s.GIDs) == 0 {
		return fmt.Errorf("search: Start requires at least one gid")
	}
	s.Filters.ClearStats()
	s.phase = Running
	s.flags |= constants.DeviceFlagRunning
	return nil
}

// Stop moves RUNNING→DRAINING on an explicit stop call. Object-iterator
// exhaustion uses MarkDraining instead.
func (s *State) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != Running {
		return fmt.Errorf("%w: Stop from %s", errBadTransition, s.phase)
	}
	s.phase = Draining
	return nil
}

// MarkDraining moves RUNNING→DRAINING, like Stop, but is a no-op rather
// than an error when the search isn't currently RUNNING. The object
// feeder calls this on iterator exhaustion, which can race an explicit
// stop that already made the same transition.
func (s *State) MarkDraining() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase == Running {
		s.phase = Draining
	}
}

// FinishDraining moves DRAINING→IDLE once every ring is empty and filter
// children have been reaped, setting DEV_FLAG_COMPLETE.
func (s *State) FinishDraining() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != Draining {
		return fmt.Errorf("%w: FinishDraining from %s", errBadTransition, s.phase)
	}
	s.phase = Idle
	s.flags |= constants.DeviceFlagComplete
	return nil
}

// Terminate moves any phase to CLOSED, the terminal state. Unlike the
// other transitions this one never errors: terminate and transport
// disconnect must always succeed.
func (s *State) Terminate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phase = Closed
}
