package executor

import (
	"testing"

	"payloadexec/busswitch"
	"payloadexec/dfi"
	"payloadexec/instr"
	"payloadexec/memory"
	"payloadexec/refresh"
	"payloadexec/scratchpad"
)

var testLayout = instr.Layout{NRanks: 1, BankBits: 4, RowBits: 16, ColBits: 10}

type testRig struct {
	exec *Executor
	bus  dfi.Bus
	sw   *busswitch.Switch
	pad  *scratchpad.Memory
}

func newTestRig(t *testing.T, depth int, words []uint32) *testRig {
	t.Helper()
	mem, err := memory.NewProgramBank(depth)
	if err != nil {
		t.Fatalf("NewProgramBank: %v", err)
	}
	if err := memory.LoadProgram(mem, words); err != nil {
		t.Fatalf("LoadProgram: %v", err)
	}
	pad, err := scratchpad.New(8, 8)
	if err != nil {
		t.Fatalf("scratchpad.New: %v", err)
	}
	sw := busswitch.New(false, refresh.New(refresh.ModeClassic), &noopResetter{})
	exec := New(mem, sw, pad, testLayout, 1)
	bus := dfi.NewBus(2, 1, 4, 1)
	return &testRig{exec: exec, bus: bus, sw: sw, pad: pad}
}

type noopResetter struct{}

func (noopResetter) Reset() {}

type countingResetter struct {
	resets int
}

func (c *countingResetter) Reset() { c.resets++ }

// run advances the rig one full cycle (Tick+TickDone), driving the bus as
// the controller would while the executor does not own it, so the bus
// switch observes a stable idle pattern instead of stale previous-cycle
// values.
func (r *testRig) run() {
	if !r.sw.DFIReady() {
		for i := range r.bus.Phases {
			r.bus.Phases[i].Idle()
		}
	}
	r.exec.Tick(&r.bus)
	r.exec.TickDone()
}

// runToReady starts the executor and advances until it has executed and
// come back to READY, failing the test if that takes more than maxCycles.
func (r *testRig) runToReady(t *testing.T, maxCycles int) {
	t.Helper()
	r.exec.Start()
	started := false
	for i := 0; i < maxCycles; i++ {
		r.run()
		if r.exec.Executing() {
			started = true
		}
		if started && r.exec.Ready() {
			return
		}
	}
	t.Fatalf("executor never returned to READY within %d cycles (state=%s)", maxCycles, r.exec.State())
}

func encodeOrFatal(t *testing.T, specs []instr.Spec) []uint32 {
	t.Helper()
	words, err := instr.EncodeProgram(specs)
	if err != nil {
		t.Fatalf("EncodeProgram: %v", err)
	}
	return words
}

func TestStartsReadyAndStaysReadyUntilStart(t *testing.T) {
	words := encodeOrFatal(t, []instr.Spec{{Op: instr.NOOP, Timeslice: 0}})
	r := newTestRig(t, 4, words)
	if !r.exec.Ready() {
		t.Fatalf("expected READY at reset")
	}
	for i := 0; i < 3; i++ {
		r.run()
		if !r.exec.Ready() {
			t.Fatalf("left READY without Start() at tick %d", i)
		}
	}
}

func TestStartMovesThroughWaitDFIAndBubbleIntoRun(t *testing.T) {
	words := encodeOrFatal(t, []instr.Spec{
		{Op: instr.ACT, Timeslice: 4, Address: 0, HasAddress: true},
		{Op: instr.NOOP, Timeslice: 0},
	})
	r := newTestRig(t, 8, words)
	r.exec.Start()
	// One cycle to leave READY, one for the bus switch to commit the
	// handover, then two pipeline-fill bubbles before the first RUN.
	wantStates := []string{"WAIT-DFI", "WAIT-DFI", "BUBBLE", "BUBBLE", "RUN"}
	for i, want := range wantStates {
		r.run()
		if got := r.exec.State(); got != want {
			t.Fatalf("state after tick %d = %s, want %s", i+1, got, want)
		}
	}
}

// TestRunsToCompletionAndReturnsToReady exercises an ACT followed by a
// terminating NOOP: the executor must come back around to READY with
// exec_stop-exec_start equal to the ACT's timeslice.
func TestRunsToCompletionAndReturnsToReady(t *testing.T) {
	words := encodeOrFatal(t, []instr.Spec{
		{Op: instr.ACT, Timeslice: 4, Address: 0, HasAddress: true},
		{Op: instr.NOOP, Timeslice: 0},
	})
	r := newTestRig(t, 8, words)
	r.runToReady(t, 64)
	if got, want := r.exec.ExecStop()-r.exec.ExecStart(), uint64(4); got != want {
		t.Errorf("exec_stop-exec_start = %d, want %d", got, want)
	}
}

// TestSingleActDrivesExpectedWires walks the rig cycle by cycle and checks
// that exactly one ACT appears on phase 0 with the encoded bank and row.
func TestSingleActDrivesExpectedWires(t *testing.T) {
	addr, err := instr.EncodeAddress(testLayout, 0, 3, u32(0x1234), nil)
	if err != nil {
		t.Fatalf("EncodeAddress: %v", err)
	}
	words := encodeOrFatal(t, []instr.Spec{
		{Op: instr.ACT, Timeslice: 4, Address: addr, HasAddress: true},
		{Op: instr.NOOP, Timeslice: 0},
	})
	r := newTestRig(t, 8, words)
	r.exec.Start()

	acts := 0
	for i := 0; i < 64; i++ {
		r.run()
		p := r.bus.Phases[0]
		if len(p.CSN) > 0 && !p.CSN[0] {
			if !p.RASN && p.CASN && p.WEN {
				acts++
				if p.Bank != 3 || p.Address != 0x1234 {
					t.Errorf("ACT drove bank=%d addr=%#x, want bank=3 addr=0x1234", p.Bank, p.Address)
				}
			}
		}
		if r.exec.Ready() && i > 2 {
			break
		}
	}
	if acts != 1 {
		t.Errorf("saw %d ACT commands on phase 0, want exactly 1", acts)
	}
}

func TestOverflowAndReadCountExposedFromScratchpad(t *testing.T) {
	words := encodeOrFatal(t, []instr.Spec{{Op: instr.NOOP, Timeslice: 0}})
	r := newTestRig(t, 4, words)
	if r.exec.Overflow() {
		t.Errorf("fresh executor should not report overflow")
	}
	if r.exec.ReadCount() != 0 {
		t.Errorf("fresh executor read_count = %d, want 0", r.exec.ReadCount())
	}
}

func TestAtRefreshAndRefreshCountPassThroughToBusSwitch(t *testing.T) {
	words := encodeOrFatal(t, []instr.Spec{{Op: instr.NOOP, Timeslice: 0}})
	r := newTestRig(t, 4, words)
	r.exec.SetAtRefresh(7)
	if r.sw.AtRefresh() != 7 {
		t.Errorf("SetAtRefresh did not reach the bus switch")
	}
	if r.exec.RefreshCount() != 0 {
		t.Errorf("RefreshCount() = %d, want 0 before any handover", r.exec.RefreshCount())
	}
}

// TestLoopReexecutesPrecedingInstructions runs the classic hammering shape:
// an ACT/PRE pair looped ten times. jump=1 rewinds over both of the two
// instructions before the LOOP, so 10 ACTs and 10 PREs must appear on the
// bus, strictly alternating.
func TestLoopReexecutesPrecedingInstructions(t *testing.T) {
	addr, err := instr.EncodeAddress(testLayout, 0, 1, u32(0x10), nil)
	if err != nil {
		t.Fatalf("EncodeAddress: %v", err)
	}
	words := encodeOrFatal(t, []instr.Spec{
		{Op: instr.ACT, Timeslice: 1, Address: addr, HasAddress: true},
		{Op: instr.PRE, Timeslice: 1, Address: addr, HasAddress: true},
		{Op: instr.LOOP, Count: 9, Jump: 1},
		{Op: instr.NOOP, Timeslice: 0},
	})
	r := newTestRig(t, 16, words)
	r.exec.Start()

	var trace []string
	started := false
	for i := 0; i < 512; i++ {
		r.run()
		p := r.bus.Phases[0]
		if len(p.CSN) > 0 && !p.CSN[0] {
			switch {
			case !p.RASN && p.CASN && p.WEN:
				trace = append(trace, "ACT")
			case !p.RASN && p.CASN && !p.WEN:
				trace = append(trace, "PRE")
			}
		}
		if r.exec.Executing() {
			started = true
		}
		if started && r.exec.Ready() {
			break
		}
	}
	if !r.exec.Ready() {
		t.Fatalf("executor never returned to READY (state=%s)", r.exec.State())
	}
	if len(trace) != 20 {
		t.Fatalf("issued %d commands, want 20 (10 ACT/PRE pairs): %v", len(trace), trace)
	}
	for i, cmd := range trace {
		want := "ACT"
		if i%2 == 1 {
			want = "PRE"
		}
		if cmd != want {
			t.Fatalf("command %d = %s, want %s (trace %v)", i, cmd, want, trace)
		}
	}
}

// TestLoopWithCountZeroFallsThrough checks the degenerate LOOP: count=0
// must not jump at all, so the single preceding ACT runs exactly once.
func TestLoopWithCountZeroFallsThrough(t *testing.T) {
	words := encodeOrFatal(t, []instr.Spec{
		{Op: instr.ACT, Timeslice: 1, Address: 1, HasAddress: true},
		{Op: instr.LOOP, Count: 0, Jump: 0},
		{Op: instr.NOOP, Timeslice: 0},
	})
	r := newTestRig(t, 8, words)
	r.exec.Start()

	acts := 0
	started := false
	for i := 0; i < 64; i++ {
		r.run()
		p := r.bus.Phases[0]
		if len(p.CSN) > 0 && !p.CSN[0] && !p.RASN && p.CASN && p.WEN {
			acts++
		}
		if r.exec.Executing() {
			started = true
		}
		if started && r.exec.Ready() {
			break
		}
	}
	if acts != 1 {
		t.Errorf("saw %d ACTs, want 1 (count=0 loop must fall through)", acts)
	}
}

// TestReadCapturesToScratchpad stubs the PHY side of the bus: every cycle
// the emitter raises rddata_en on the read phase, the "memory" answers
// with a unique payload on the next cycle. All four payloads must land in
// the scratchpad in issue order.
func TestReadCapturesToScratchpad(t *testing.T) {
	addr, err := instr.EncodeAddress(testLayout, 0, 2, nil, u32(0x10))
	if err != nil {
		t.Fatalf("EncodeAddress: %v", err)
	}
	specs := make([]instr.Spec, 0, 5)
	for i := 0; i < 4; i++ {
		specs = append(specs, instr.Spec{Op: instr.READ, Timeslice: 8, Address: addr, HasAddress: true})
	}
	specs = append(specs, instr.Spec{Op: instr.NOOP, Timeslice: 0})
	words := encodeOrFatal(t, specs)

	r := newTestRig(t, 16, words)
	r.exec.Start()

	const rdphase = 1
	payload := byte(0)
	started := false
	for i := 0; i < 256; i++ {
		r.run()
		// Answer an outstanding read before the next cycle samples it.
		if r.bus.Phases[rdphase].RDDataEn {
			payload++
			for j := range r.bus.Phases[rdphase].RDData {
				r.bus.Phases[rdphase].RDData[j] = payload
			}
			r.bus.Phases[rdphase].RDDataValid = true
		} else {
			r.bus.Phases[rdphase].RDDataValid = false
		}
		if r.exec.Executing() {
			started = true
		}
		if started && r.exec.Ready() {
			break
		}
	}
	if !r.exec.Ready() {
		t.Fatalf("executor never returned to READY (state=%s)", r.exec.State())
	}
	if got := r.exec.ReadCount(); got != 4 {
		t.Fatalf("read_count = %d, want 4", got)
	}
	if r.exec.Overflow() {
		t.Errorf("overflow should not be set after 4 reads into an 8-deep scratchpad")
	}
	for i := 0; i < 4; i++ {
		word := r.pad.Read(i)
		// Phase 1 carries the payload; phase 0's lane stays zero.
		if word[4] != byte(i+1) {
			t.Errorf("scratchpad word %d = %v, want phase-1 lane filled with %d", i, word, i+1)
		}
	}
}

// TestRefreshAlignedHandover gates the bus handover on the second refresh
// ordinal. The controller-side stub issues a refresh every few cycles; the
// executor must stay off the bus until the second one is observed, then
// run to completion and pulse the refresh timer on the way out.
func TestRefreshAlignedHandover(t *testing.T) {
	words := encodeOrFatal(t, []instr.Spec{
		{Op: instr.ACT, Timeslice: 1, Address: 1, HasAddress: true},
		{Op: instr.NOOP, Timeslice: 0},
	})
	mem, err := memory.NewProgramBank(8)
	if err != nil {
		t.Fatalf("NewProgramBank: %v", err)
	}
	if err := memory.LoadProgram(mem, words); err != nil {
		t.Fatalf("LoadProgram: %v", err)
	}
	pad, err := scratchpad.New(8, 8)
	if err != nil {
		t.Fatalf("scratchpad.New: %v", err)
	}
	resetter := &countingResetter{}
	sw := busswitch.New(true, refresh.New(refresh.ModeClassic), resetter)
	exec := New(mem, sw, pad, testLayout, 1)
	bus := dfi.NewBus(2, 1, 4, 1)

	exec.SetAtRefresh(2)
	exec.Start()

	refreshes := 0
	handoverAt := -1
	started := false
	for i := 0; i < 128; i++ {
		if !sw.DFIReady() {
			// Controller side: idle traffic with a refresh every 5th cycle.
			for p := range bus.Phases {
				bus.Phases[p].Idle()
			}
			if i%5 == 4 {
				bus.Phases[0].CSN[0] = false
				bus.Phases[0].CASN, bus.Phases[0].RASN, bus.Phases[0].WEN = false, false, true
				refreshes++
			}
		}
		exec.Tick(&bus)
		exec.TickDone()
		if handoverAt < 0 && sw.DFIReady() {
			handoverAt = refreshes
		}
		if exec.Executing() {
			started = true
		}
		// Run one cycle past READY so the bus switch commits the
		// handover back to the controller and pulses the timer.
		if started && exec.Ready() && !sw.DFIReady() {
			break
		}
	}
	if !exec.Ready() {
		t.Fatalf("executor never completed (state=%s)", exec.State())
	}
	if handoverAt != 2 {
		t.Errorf("handover happened at refresh %d, want 2", handoverAt)
	}
	if got := exec.RefreshCount(); got != 2 {
		t.Errorf("refresh_count = %d, want 2 latched at handover", got)
	}
	if resetter.resets != 1 {
		t.Errorf("refresh timer pulsed %d times, want 1 on the way back to the controller", resetter.resets)
	}
}

func u32(v uint32) *uint32 { return &v }
