// Package executor implements the payload executor's top-level state
// machine: it orchestrates the fetcher, instruction decode, the command
// emitter, the scratchpad and the bus switch to run a payload program to
// completion, and exposes the host-visible status registers. Every
// component here follows the same Tick()/TickDone() convention: Tick()
// does the combinational work for one cycle and stages next-state values,
// TickDone() commits them, and no component observes another's post-Tick
// state within the same cycle.
package executor

import (
	"payloadexec/busswitch"
	"payloadexec/dfi"
	"payloadexec/emitter"
	"payloadexec/fetcher"
	"payloadexec/instr"
	"payloadexec/memory"
	"payloadexec/scratchpad"
)

type fsmState int

const (
	stateReady fsmState = iota
	stateWaitDFI
	stateRun
	stateIdle
	stateBubble
)

func (s fsmState) String() string {
	switch s {
	case stateReady:
		return "READY"
	case stateWaitDFI:
		return "WAIT-DFI"
	case stateRun:
		return "RUN"
	case stateIdle:
		return "IDLE"
	case stateBubble:
		return "BUBBLE"
	default:
		return "UNKNOWN"
	}
}

// Executor is the payload executor FSM. It is not safe for concurrent use.
type Executor struct {
	mem     memory.WordBank
	sw      *busswitch.Switch
	pad     *scratchpad.Memory
	fetch   *fetcher.Fetcher
	layout  instr.Layout
	rdphase int

	state fsmState

	// The two-stage fetch pipeline: memData models the payload memory's
	// synchronous read port (valid one cycle after the address is
	// asserted), instruction is the decode register loaded from it one
	// cycle later. Together they are the fetcher.PipelineDelay.
	memData     uint32
	instruction uint32

	loopCounter uint32
	idleCounter uint32
	wantsDFI    bool
	startPulse  bool

	cycle        uint64
	execStart    uint64
	execStop     uint64
	execStartSet bool

	// Staged by Tick(), committed by TickDone().
	nextState       fsmState
	nextWantsDFI    bool
	nextLoopCounter uint32
	nextIdleCounter uint32
	pendingStall    bool
	pendingWord     uint32
}

// New returns an Executor in the READY state, wired to mem (the payload
// program), sw (the bus ownership arbiter, which itself owns the refresh
// counter) and pad (the read scratchpad). rdphase is the bus phase READ
// commands are issued on; every other command goes out on phase 0.
func New(mem memory.WordBank, sw *busswitch.Switch, pad *scratchpad.Memory, layout instr.Layout, rdphase int) *Executor {
	return &Executor{
		mem:     mem,
		sw:      sw,
		pad:     pad,
		fetch:   fetcher.New(mem.Depth()),
		layout:  layout,
		rdphase: rdphase,
	}
}

// Start requests execution begin. It is a one-cycle strobe, consumed by the
// next Tick() call; it only moves the FSM if the executor is currently
// READY, matching the host register contract ("writing to start begins
// execution if ready").
func (e *Executor) Start() {
	e.startPulse = true
}

// Ready reports whether the FSM is in the READY state.
func (e *Executor) Ready() bool {
	return e.state == stateReady
}

// Executing reports whether the FSM is in RUN, IDLE or BUBBLE — any state
// in which the executor owns the bus and is working through the program.
func (e *Executor) Executing() bool {
	return e.state == stateRun || e.state == stateIdle || e.state == stateBubble
}

// OwnsBus reports whether the bus switch currently steers the command bus
// to the executor. While it reports false, the memory controller side is
// responsible for driving the bus.
func (e *Executor) OwnsBus() bool {
	return e.sw.DFIReady()
}

// Overflow reports the scratchpad's sticky overflow flag.
func (e *Executor) Overflow() bool {
	return e.pad.Overflow()
}

// ReadCount returns the scratchpad's current write cursor.
func (e *Executor) ReadCount() int {
	return e.pad.Cursor()
}

// ExecStart returns the cycle at which the most recent run started
// executing instructions.
func (e *Executor) ExecStart() uint64 {
	return e.execStart
}

// ExecStop returns the cycle at which the most recent run stopped
// executing instructions. ExecStop-ExecStart is the total number of
// instruction cycles. For a program without LOOP words this is the sum of
// its effective timeslices; each LOOP word's RUN cycle and the bubble
// cycles after a taken jump are counted as well.
func (e *Executor) ExecStop() uint64 {
	return e.execStop
}

// RefreshCount returns the bus switch's latched refresh_count register.
func (e *Executor) RefreshCount() uint64 {
	return e.sw.RefreshCount()
}

// SetAtRefresh sets the bus switch's at_refresh register.
func (e *Executor) SetAtRefresh(v uint64) {
	e.sw.SetAtRefresh(v)
}

// RefreshUpdate forces an immediate latch of refresh_count.
func (e *Executor) RefreshUpdate() {
	e.sw.RefreshUpdate()
}

// State returns the current FSM state name, for debugging/tracing only —
// not part of the host register contract.
func (e *Executor) State() string {
	return e.state.String()
}

// Tick performs the combinational work for one cycle: it decodes the
// current instruction, decides this cycle's fetch/emit/bus-switch actions
// and the next FSM state, and stages everything TickDone will commit. bus
// is mutated only while the executor currently owns it (per sw.DFIReady()).
func (e *Executor) Tick(bus *dfi.Bus) {
	start := e.startPulse
	e.startPulse = false

	d := instr.Decode(e.instruction, e.layout)

	var stall bool
	switch e.state {
	case stateReady, stateWaitDFI, stateIdle:
		stall = true
	case stateRun, stateBubble:
		stall = false
	}

	memAddr := e.fetch.MemAddr(stall)
	word := e.mem.Read(memAddr)

	var (
		jump        bool
		jumpOffset  uint32
		resetPC     bool
		exec        bool
		phase       int
		terminating bool
	)

	e.nextState = e.state
	e.nextWantsDFI = e.wantsDFI
	e.nextLoopCounter = e.loopCounter
	e.nextIdleCounter = e.idleCounter

	switch e.state {
	case stateReady:
		resetPC = true
		if start {
			e.nextWantsDFI = true
			e.nextState = stateWaitDFI
		}

	case stateWaitDFI:
		if e.sw.DFIReady() {
			e.nextIdleCounter = fetcher.PipelineDelay - 1
			e.nextState = stateBubble
		}

	case stateRun:
		loopFinishing := d.Opcode == instr.LOOP && d.LoopCount == e.loopCounter
		endOfMemory := memAddr == fetcher.PipelineDelay-1
		if (endOfMemory || d.Stop) && (d.Opcode != instr.LOOP || loopFinishing) {
			terminating = true
			e.nextWantsDFI = false
			e.nextState = stateReady
		} else if d.Opcode == instr.LOOP {
			if e.loopCounter != d.LoopCount {
				// The jump lands on the first of the loop_jump+1
				// instructions preceding the LOOP word; the fetcher
				// additionally compensates for the pipeline delay.
				jump = true
				jumpOffset = d.LoopJump + 1
				e.nextLoopCounter = e.loopCounter + 1
				e.nextIdleCounter = fetcher.PipelineDelay - 1
				e.nextState = stateBubble
			} else {
				e.nextLoopCounter = 0
			}
		} else {
			exec = true
			phase = emitter.SelectPhase(d.Opcode, e.rdphase)
			if d.Timeslice != 0 && d.Timeslice != 1 {
				e.nextIdleCounter = d.Timeslice - 2
				e.nextState = stateIdle
			}
		}

	case stateIdle, stateBubble:
		if e.idleCounter == 0 {
			e.nextState = stateRun
		} else {
			e.nextIdleCounter = e.idleCounter - 1
		}
	}

	e.fetch.Advance(stall, jump, jumpOffset, resetPC)

	owns := e.sw.DFIReady()
	if owns {
		emitter.Drive(bus, exec, phase, d)
	}
	e.sw.Tick(bus.Phases[0], e.wantsDFI)
	e.pad.Sample(*bus)

	// exec_start snapshots the first RUN cycle that works on an
	// instruction; exec_stop tracks the last such cycle (exclusive).
	// The cycle RUN spends deciding to terminate occupies no timeslice
	// and is not counted, nor are the pipeline-fill bubbles before the
	// first instruction.
	if start {
		e.execStart = 0
		e.execStop = 0
		e.execStartSet = false
	}
	if e.state == stateRun && !terminating && !e.execStartSet {
		e.execStart = e.cycle
		e.execStartSet = true
	}
	if e.execStartSet && e.Executing() && !terminating {
		e.execStop = e.cycle + 1
	}

	e.pendingStall = stall
	e.pendingWord = word
}

// TickDone commits the state staged by the most recent Tick call.
func (e *Executor) TickDone() {
	e.cycle++
	if e.state == stateWaitDFI {
		e.pad.Reset()
	}
	e.sw.TickDone()
	if !e.pendingStall {
		e.instruction = e.memData
	}
	e.memData = e.pendingWord
	e.state = e.nextState
	e.wantsDFI = e.nextWantsDFI
	e.loopCounter = e.nextLoopCounter
	e.idleCounter = e.nextIdleCounter
}
