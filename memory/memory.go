// Package memory defines the word-addressed memory banks the payload
// executor reads its program from. Unlike a byte-addressed CPU memory map
// there is no address aliasing or parent-chaining here: the executor reads
// exactly one 32-bit instruction word per program address and nothing else
// shares the space.
package memory

import (
	"encoding/binary"
	"fmt"
	"io"
)

// WordBank is a read-only, word-addressed memory bank. Depth is fixed for
// the lifetime of the bank.
type WordBank interface {
	// Read returns the word stored at addr. addr is masked to fit Depth.
	Read(addr uint32) uint32
	// Depth returns the number of addressable words.
	Depth() int
	// PowerOn resets the bank to its post-reset contents.
	PowerOn()
}

// WritableWordBank additionally allows the host to load a program while the
// executor is not running.
type WritableWordBank interface {
	WordBank
	// Write stores val at addr. addr is masked to fit Depth.
	Write(addr uint32, val uint32)
}

// program implements WritableWordBank over a flat slice of words.
type program struct {
	words []uint32
}

// NewProgramBank allocates a WritableWordBank of the given depth. depth
// must be a power of two so that address masking (rather than a modulo)
// can be used.
func NewProgramBank(depth int) (WritableWordBank, error) {
	if depth <= 0 || depth&(depth-1) != 0 {
		return nil, fmt.Errorf("memory: invalid depth %d, must be a power of 2", depth)
	}
	b := &program{words: make([]uint32, depth)}
	return b, nil
}

// Read implements WordBank.
func (p *program) Read(addr uint32) uint32 {
	addr &= uint32(len(p.words) - 1)
	return p.words[addr]
}

// Write implements WritableWordBank.
func (p *program) Write(addr uint32, val uint32) {
	addr &= uint32(len(p.words) - 1)
	p.words[addr] = val
}

// Depth implements WordBank.
func (p *program) Depth() int {
	return len(p.words)
}

// PowerOn implements WordBank. Contents become all-STOP (NOOP with
// timeslice 0) words, so an unloaded program halts on its very first fetch
// instead of driving undefined bus traffic.
func (p *program) PowerOn() {
	for i := range p.words {
		p.words[i] = 0
	}
}

// ReadWords reads a flat stream of little-endian 32-bit words from r, the
// format cmd/payloadasm writes. It is the host-side loader counterpart to
// that tool, used by cmd/payloadexec and cmd/payloadscope to turn an
// assembled program file back into a word slice for LoadProgram.
func ReadWords(r io.Reader) ([]uint32, error) {
	var words []uint32
	for {
		var w uint32
		switch err := binary.Read(r, binary.LittleEndian, &w); err {
		case nil:
			words = append(words, w)
		case io.EOF:
			return words, nil
		default:
			return nil, fmt.Errorf("memory: reading word %d: %w", len(words), err)
		}
	}
}

// LoadProgram writes an encoded word sequence into b starting at address 0.
// It is the host-side analogue of writing a payload program into payload
// memory; callers are responsible for ensuring the executor is in the READY
// state (ready asserted) before calling this, per the host interface
// contract.
func LoadProgram(b WritableWordBank, words []uint32) error {
	if len(words) > b.Depth() {
		return fmt.Errorf("memory: program of %d words does not fit in %d word bank", len(words), b.Depth())
	}
	for i, w := range words {
		b.Write(uint32(i), w)
	}
	return nil
}
