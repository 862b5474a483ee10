// Package scratchpad implements the read-data capture buffer: an
// append-only, word-addressed memory that records one aggregate read-data
// word per cycle in which any bus phase reports a valid read response. The
// write cursor wraps at capacity; the write that fills the last slot sets
// a sticky overflow flag.
package scratchpad

import (
	"fmt"

	"payloadexec/dfi"
)

// Memory is the scratchpad buffer. It is not safe for concurrent use; the
// executor is its sole writer and the host its sole reader, exactly as the
// synchronous-hardware contract requires.
type Memory struct {
	words    [][]byte
	cursor   int
	overflow bool
}

// New allocates a Memory with depth words, each wordWidth bytes wide.
func New(depth, wordWidth int) (*Memory, error) {
	if depth <= 0 {
		return nil, fmt.Errorf("scratchpad: depth must be positive, got %d", depth)
	}
	if wordWidth <= 0 {
		return nil, fmt.Errorf("scratchpad: word width must be positive, got %d", wordWidth)
	}
	m := &Memory{words: make([][]byte, depth)}
	for i := range m.words {
		m.words[i] = make([]byte, wordWidth)
	}
	return m, nil
}

// Reset clears the cursor and the sticky overflow flag. Driven by the
// executor during WAIT-DFI, once per program start.
func (m *Memory) Reset() {
	m.cursor = 0
	m.overflow = false
}

// Sample inspects one cycle's worth of bus phases. If any phase reports
// RDDataValid, the concatenation of every phase's RDData (in phase order)
// is appended at the current cursor and the cursor advances. The write
// that lands in the last slot wraps the cursor back to 0 and sets the
// sticky overflow flag. Sample is a no-op if no phase has a valid read.
func (m *Memory) Sample(b dfi.Bus) {
	any := false
	for _, p := range b.Phases {
		if p.RDDataValid {
			any = true
			break
		}
	}
	if !any {
		return
	}
	dst := m.words[m.cursor]
	n := 0
	for _, p := range b.Phases {
		n += copy(dst[n:], p.RDData)
	}
	if m.cursor == len(m.words)-1 {
		m.cursor = 0
		m.overflow = true
	} else {
		m.cursor++
	}
}

// Cursor returns the current append position, exposed to the host as
// read_count.
func (m *Memory) Cursor() int {
	return m.cursor
}

// Overflow reports whether the sticky overflow flag is set.
func (m *Memory) Overflow() bool {
	return m.overflow
}

// Depth returns the number of addressable words.
func (m *Memory) Depth() int {
	return len(m.words)
}

// Read returns a copy of the word stored at idx. idx is wrapped to fit
// Depth, matching the read-only host access contract (host reads freely;
// monotonic cursor observation is acceptable).
func (m *Memory) Read(idx int) []byte {
	idx %= len(m.words)
	if idx < 0 {
		idx += len(m.words)
	}
	out := make([]byte, len(m.words[idx]))
	copy(out, m.words[idx])
	return out
}
