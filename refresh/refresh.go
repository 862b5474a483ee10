// Package refresh implements the free-running refresh-ordinal counter: it
// observes one phase of the command bus and increments a 64-bit counter
// each cycle that phase's combinational decode matches a refresh command.
// Two distinct recognition rules exist depending on memory type, and
// mixing them yields wrong counts, so Mode is an explicit constructor
// argument, never inferred from the bus.
package refresh

import "payloadexec/dfi"

// Mode selects which refresh-recognition rule a Counter applies.
type Mode int

const (
	// ModeClassic matches the classic DFI 4-bit encoding:
	// cs=0, cas=0, ras=0, we=1.
	ModeClassic Mode = iota
	// ModeDDR5 matches the DDR5-style 5-bit address prefix 0b10011 with
	// cs=0 (cas/ras/we are don't-care).
	ModeDDR5
)

const ddr5RefreshPrefix = 0b10011

// Counter is a free-running refresh-command counter over one bus phase.
type Counter struct {
	mode    Mode
	count   uint64
	refresh bool // latched match result for the most recent Tick
}

// New returns a Counter configured for the given Mode, starting at 0.
func New(mode Mode) *Counter {
	return &Counter{mode: mode}
}

// matches reports whether phase currently carries a refresh command under
// this Counter's Mode. Purely combinational: no state is read or written.
func (c *Counter) matches(phase dfi.Phase) bool {
	csAsserted := len(phase.CSN) > 0 && !phase.CSN[0]
	if !csAsserted {
		return false
	}
	switch c.mode {
	case ModeDDR5:
		return phase.Address&0x1F == ddr5RefreshPrefix
	default:
		return !phase.CASN && !phase.RASN && phase.WEN
	}
}

// Drive writes the refresh wire pattern recognized by mode onto p,
// selecting every rank (refresh is a broadcast). It is the producing
// counterpart of a Counter: anything issuing refreshes onto a phase a
// Counter observes — the controller-side stand-in in executor.Runner —
// goes through this so the two sides can never disagree on the pattern.
func Drive(p *dfi.Phase, mode Mode) {
	for i := range p.CSN {
		p.CSN[i] = false
	}
	if mode == ModeDDR5 {
		p.Address = ddr5RefreshPrefix
		return
	}
	p.CASN, p.RASN, p.WEN = false, false, true
}

// Tick samples phase and latches whether it matched a refresh command this
// cycle. Call Commit afterward to advance the counter when it did.
func (c *Counter) Tick(phase dfi.Phase) {
	c.refresh = c.matches(phase)
}

// Commit advances the counter by one if the most recent Tick observed a
// refresh match. Split from Tick so callers can inspect Refreshed() before
// the counter value changes, matching the repo-wide Tick/TickDone split.
func (c *Counter) Commit() {
	if c.refresh {
		c.count++
	}
}

// Refreshed reports whether the most recent Tick observed a refresh match.
func (c *Counter) Refreshed() bool {
	return c.refresh
}

// Count returns the current free-running refresh ordinal.
func (c *Counter) Count() uint64 {
	return c.count
}
