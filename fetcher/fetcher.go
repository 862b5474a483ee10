// Package fetcher implements the payload executor's program-counter
// arithmetic: straight-line advance, backward jump for LOOP, stall (so an
// outstanding fetch isn't clobbered), and the reset-while-stalled path used
// by the READY state. It holds no opinion about what's being fetched; it
// only produces the next memory address.
package fetcher

// PipelineDelay is the fixed two-cycle fetch-to-decode latency: one cycle
// for the payload memory's synchronous read port and one for the
// instruction register. A LOOP instruction's jump target is relative to
// its own address, but by the time the jump is asserted the PC has already
// advanced past the loop body; subtracting PipelineDelay compensates for
// that.
const PipelineDelay = 2

// Fetcher holds the current and previous program counter. Both wrap modulo
// the payload memory depth, so a jump that underflows past address 0 lands
// back at the top of the memory.
type Fetcher struct {
	pc     uint32
	pcPrev uint32
	mask   uint32
}

// New returns a Fetcher with pc and pcPrev both at 0, wrapping at depth.
// depth must be a power of two (the payload memory bank enforces this).
func New(depth int) *Fetcher {
	return &Fetcher{mask: uint32(depth - 1)}
}

// MemAddr returns the address to present to the payload memory's read port
// this cycle: pc normally, or pcPrev while stall is asserted so the
// outstanding fetch is not clobbered.
func (f *Fetcher) MemAddr(stall bool) uint32 {
	if stall {
		return f.pcPrev
	}
	return f.pc
}

// PC returns the current program counter (the value MemAddr(false) would
// return), useful for the end-of-memory sentinel check in the executor FSM.
func (f *Fetcher) PC() uint32 {
	return f.pc
}

// Advance computes and commits the next program counter for the upcoming
// cycle. When stall is asserted neither pc nor pcPrev change, except that
// resetPC (only honored while stalled) forces both to 0 — this is the
// READY-state reset path. When jump is asserted, pc moves backward by
// jumpOffset+PipelineDelay instead of forward by one.
func (f *Fetcher) Advance(stall, jump bool, jumpOffset uint32, resetPC bool) {
	if !stall {
		next := (f.pc + 1) & f.mask
		if jump {
			next = (f.pc - jumpOffset - PipelineDelay) & f.mask
		}
		f.pcPrev = f.pc
		f.pc = next
		return
	}
	if resetPC {
		f.pc = 0
		f.pcPrev = 0
	}
}
