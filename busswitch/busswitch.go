// Package busswitch implements the two-state command-bus ownership
// arbiter: it gates the transfer of bus ownership between the normal
// memory controller and the payload executor, optionally aligning the
// handover to a specific refresh ordinal. It owns the free-running refresh
// counter and the host-writable at_refresh register.
package busswitch

import (
	"payloadexec/dfi"
	"payloadexec/refresh"
)

// State is one of the two bus-ownership states.
type State int

const (
	StateController State = iota // initial: the normal memory controller drives the bus
	StatePayload                 // the payload executor drives the bus
)

// String implements fmt.Stringer for State.
func (s State) String() string {
	if s == StatePayload {
		return "PAYLOAD"
	}
	return "CONTROLLER"
}

// Resetter receives the handover-complete pulse so the external refresh
// timer can restart its tREFI accounting from zero. refreshtimer.Timer
// satisfies this.
type Resetter interface {
	Reset()
}

// Switch is the bus ownership arbiter.
type Switch struct {
	withRefresh bool
	counter     *refresh.Counter
	resetter    Resetter

	state     State
	nextState State

	atRefresh          uint64
	refreshCountStatus uint64
}

// New returns a Switch in the initial CONTROLLER state. counter is the
// free-running refresh counter this switch owns and ticks every cycle;
// resetter is pulsed on every PAYLOAD->CONTROLLER handover. withRefresh
// enables refresh-ordinal gating of the CONTROLLER->PAYLOAD transition; when
// false the transition happens as soon as wantsDFI is asserted.
func New(withRefresh bool, counter *refresh.Counter, resetter Resetter) *Switch {
	return &Switch{withRefresh: withRefresh, counter: counter, resetter: resetter}
}

// Tick is the combinational half of one cycle: it ticks the owned refresh
// counter from the phase currently on the wire (whichever side is driving
// it) and decides the next state without committing it. wantsDFI is the
// executor's current request line.
func (s *Switch) Tick(phase dfi.Phase, wantsDFI bool) {
	s.counter.Tick(phase)

	s.nextState = s.state
	switch s.state {
	case StateController:
		if wantsDFI {
			if s.withRefresh {
				matches := s.atRefresh == 0 || s.atRefresh == s.counter.Count()+1
				if s.counter.Refreshed() && matches {
					s.nextState = StatePayload
				}
			} else {
				s.nextState = StatePayload
			}
		}
	case StatePayload:
		if !wantsDFI {
			s.nextState = StateController
		}
	}
}

// TickDone commits the refresh counter advance and the state transition
// decided by the most recent Tick, latching refresh_count on
// CONTROLLER->PAYLOAD and pulsing the resetter on PAYLOAD->CONTROLLER.
func (s *Switch) TickDone() {
	s.counter.Commit()

	if s.state == StateController && s.nextState == StatePayload {
		s.refreshCountStatus = s.counter.Count()
	}
	if s.state == StatePayload && s.nextState == StateController {
		s.resetter.Reset()
	}
	s.state = s.nextState
}

// State returns the current (committed) bus ownership state.
func (s *Switch) State() State {
	return s.state
}

// DFIReady reports whether the executor may drive the bus this cycle —
// combinational on the current state, asserted throughout PAYLOAD.
func (s *Switch) DFIReady() bool {
	return s.state == StatePayload
}

// SetAtRefresh sets the host-writable at_refresh register. A non-zero value
// gates the CONTROLLER->PAYLOAD transition to the cycle the refresh
// ordinal first reaches this value; zero means "don't care".
func (s *Switch) SetAtRefresh(v uint64) {
	s.atRefresh = v
}

// AtRefresh returns the current at_refresh register value.
func (s *Switch) AtRefresh() uint64 {
	return s.atRefresh
}

// RefreshCount returns the latched refresh_count status register.
func (s *Switch) RefreshCount() uint64 {
	return s.refreshCountStatus
}

// RefreshUpdate forces an immediate latch of refresh_count from the live
// counter, independent of any state transition — the host strobe of the
// same name.
func (s *Switch) RefreshUpdate() {
	s.refreshCountStatus = s.counter.Count()
}
