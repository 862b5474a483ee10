package executor

import (
	"context"
	"fmt"

	"payloadexec/dfi"
	"payloadexec/refresh"
	"payloadexec/refreshtimer"
)

// Runner is the ambient cooperative tick-loop driver: it owns one
// Executor, the dfi.Bus it drives, and the refresh timer the bus switch
// pulses on handover, and advances all three in lockstep each cycle. It is
// the concrete stand-in for the rest of the system — the host strobing
// start, and the memory controller driving idle traffic and periodic
// refreshes while it owns the bus — so that refresh-gated handover works
// end to end without a real DRAM controller attached. cmd/payloadexec,
// cmd/payloadscope and cmd/payloadmonitor are all thin wrappers around it.
type Runner struct {
	Exec  *Executor
	Bus   *dfi.Bus
	Timer *refreshtimer.Timer

	mode  refresh.Mode
	cycle int

	// OnCycle, if set, is called after every committed cycle with the
	// cycle number and the bus state that cycle left behind — the seam
	// cmd/payloadscope uses to record a waveform trace without the core
	// knowing anything about rendering.
	OnCycle func(cycle int, bus dfi.Bus)
}

// NewRunner returns a Runner wiring exec to bus and timer. mode selects the
// refresh wire pattern the controller side issues when the timer's period
// elapses; it must match the mode of the refresh counter the executor's
// bus switch observes, or refresh-gated handover will never fire. The bus
// switch pulses timer.Reset on every PAYLOAD->CONTROLLER handover.
func NewRunner(exec *Executor, bus *dfi.Bus, timer *refreshtimer.Timer, mode refresh.Mode) *Runner {
	return &Runner{Exec: exec, Bus: bus, Timer: timer, mode: mode}
}

// Tick advances the whole system by one cycle. While the controller owns
// the bus it drives the idle pattern onto every phase, replaced by a
// refresh command on phase 0 whenever the timer's period elapses — the
// controller's own periodic REF issuance, which is what the bus switch's
// refresh gating waits for. The timer is paused while the executor owns
// the bus, since a disconnected controller cannot issue refreshes.
func (r *Runner) Tick() {
	owned := r.Exec.OwnsBus()
	r.Timer.Pause(owned)
	r.Timer.Tick()
	if !owned {
		for i := range r.Bus.Phases {
			r.Bus.Phases[i].Idle()
		}
		if r.Timer.RefreshRequested() {
			refresh.Drive(&r.Bus.Phases[0], r.mode)
		}
	}
	r.Exec.Tick(r.Bus)
	r.Exec.TickDone()

	if r.OnCycle != nil {
		r.OnCycle(r.cycle, *r.Bus)
	}
	r.cycle++
}

// Run calls Exec.Start() and then ticks the system once per cycle until
// the executor returns to READY (program complete) or ctx is done,
// whichever comes first. maxCycles bounds the loop as a safety net against
// a program that never reaches STOP or end-of-memory; maxCycles <= 0 means
// unbounded. The executor itself has no cancellation path — ctx only
// bounds the caller's patience, it is not delivered to the executor as a
// mid-run cancel.
func (r *Runner) Run(ctx context.Context, maxCycles int) error {
	r.Exec.Start()
	started := false
	for cycle := 0; maxCycles <= 0 || cycle < maxCycles; cycle++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		r.Tick()
		if r.Exec.Executing() {
			started = true
		}
		if started && r.Exec.Ready() {
			return nil
		}
	}
	return fmt.Errorf("executor: did not complete within %d cycles", maxCycles)
}
