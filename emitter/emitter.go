// Package emitter drives the chip-select / RAS / CAS / WE / address lines
// of a dfi.Bus from one decoded instruction, on whichever phase the
// executor selects. It has no state: every call fully determines every
// phase's output from its arguments.
package emitter

import (
	"payloadexec/dfi"
	"payloadexec/instr"
)

// Drive sets every phase of bus for this cycle. When exec is true, phase
// carries the decoded instruction d's command; every other phase (and every
// phase when exec is false) is driven to the idle pattern.
//
// Chip-select semantics on the selected phase:
//   - NOOP drives all ranks deselected.
//   - REF drives all ranks selected (refresh is a broadcast).
//   - Anything else one-hot selects the rank named by d.DFIRank.
func Drive(bus *dfi.Bus, exec bool, phase int, d instr.Instruction) {
	for i := range bus.Phases {
		p := &bus.Phases[i]
		if !exec || i != phase {
			p.Idle()
			continue
		}
		p.CASN = !d.CAS
		p.RASN = !d.RAS
		p.WEN = !d.WE
		p.Address = d.DFIAddress
		p.Bank = d.DFIBank
		p.RDDataEn = d.Opcode == instr.READ

		for r := range p.CSN {
			p.CSN[r] = true
		}
		switch d.Opcode {
		case instr.NOOP:
			// already all deselected above
		case instr.REF:
			for r := range p.CSN {
				p.CSN[r] = false
			}
		default:
			rank := int(d.DFIRank)
			if rank < len(p.CSN) {
				p.CSN[rank] = false
			}
		}

		// CKE/ODT/ResetN stay asserted high regardless of command;
		// Idle() already set these true on allocation and nothing here
		// ever clears them.
		for r := range p.CKE {
			p.CKE[r] = true
		}
		for r := range p.ODT {
			p.ODT[r] = true
		}
		for r := range p.ResetN {
			p.ResetN[r] = true
		}
	}
}

// SelectPhase returns the bus phase an instruction of opcode op should be
// issued on: rdphase for READ, phase 0 for everything else.
func SelectPhase(op instr.Opcode, rdphase int) int {
	if op == instr.READ {
		return rdphase
	}
	return 0
}
