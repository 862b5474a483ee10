// Package dfi defines the per-phase command-bus wire contract the executor
// drives and the external PHY (or a test stub) samples. It has no behavior
// of its own; it's the signal surface turned into a Go value type so the
// rest of the package set has something real to read and write.
package dfi

// Phase holds the wire state for one bus phase on one system cycle. All
// boolean-slice fields are indexed by rank.
type Phase struct {
	CSN     []bool // chip-select, active low, one per rank
	CASN    bool
	RASN    bool
	WEN     bool
	Address uint32
	Bank    uint32
	CKE     []bool // clock-enable, one per rank; held all-1 by this core
	ODT     []bool // on-die termination, one per rank; held all-1
	ResetN  []bool // reset, one per rank; held all-1

	RDDataEn bool // read-data-enable request driven by the emitter

	// Read-response signals, driven by the PHY/memory model rather than
	// the executor: RDData is the returned word, RDDataValid strobes high
	// for one cycle when RDData carries a fresh result.
	RDData      []byte
	RDDataValid bool
}

// NewPhase allocates a Phase with all rank-indexed slices sized for nranks
// and in the idle pattern: all ranks deselected, command lines high
// (inactive), CKE/ODT/ResetN held high.
func NewPhase(nranks int, rddataWidth int) Phase {
	p := Phase{
		CSN:    make([]bool, nranks),
		CKE:    make([]bool, nranks),
		ODT:    make([]bool, nranks),
		ResetN: make([]bool, nranks),
		RDData: make([]byte, rddataWidth),
	}
	p.Idle()
	return p
}

// Idle drives the idle pattern onto p: all ranks deselected, command lines
// held inactive-high, no read enable. CKE/ODT/ResetN stay asserted
// (all-1), matching the "always driven" constant signals in the wire
// contract.
func (p *Phase) Idle() {
	for i := range p.CSN {
		p.CSN[i] = true
	}
	for i := range p.CKE {
		p.CKE[i] = true
	}
	for i := range p.ODT {
		p.ODT[i] = true
	}
	for i := range p.ResetN {
		p.ResetN[i] = true
	}
	p.CASN, p.RASN, p.WEN = true, true, true
	p.RDDataEn = false
}

// Bus aggregates every phase of a multi-phase command bus plus the phase
// index reserved for READ commands.
type Bus struct {
	Phases  []Phase
	RDPhase int
}

// NewBus allocates a Bus with nphases phases, each sized for nranks and
// rddataWidth bytes of read-data.
func NewBus(nphases, nranks, rddataWidth, rdphase int) Bus {
	b := Bus{Phases: make([]Phase, nphases), RDPhase: rdphase}
	for i := range b.Phases {
		b.Phases[i] = NewPhase(nranks, rddataWidth)
	}
	return b
}

// RDDataWidth returns the aggregate read-data width across all phases, in
// bytes — the word width the scratchpad memory must be built with.
func (b Bus) RDDataWidth() int {
	total := 0
	for _, p := range b.Phases {
		total += len(p.RDData)
	}
	return total
}
