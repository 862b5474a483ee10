// Package instr defines the 32-bit DRAM command word used by the payload
// executor: its opcode table, the address-field layout, and the
// encoder/decoder pair that convert between raw words and decoded
// instructions. Decoding is purely combinational over the word and the
// layout parameters; it holds no state of its own.
package instr

import "fmt"

// Opcode is the 3-bit instruction selector. Bit 0 is WE, bit 1 is CAS, bit 2
// is RAS, matching the standard DRAM command encoding for the DFI-mappable
// opcodes.
type Opcode uint8

const (
	NOOP Opcode = 0b000
	ZQC  Opcode = 0b001
	READ Opcode = 0b010
	ACT  Opcode = 0b100
	PRE  Opcode = 0b101
	REF  Opcode = 0b110
	LOOP Opcode = 0b111
)

// String implements fmt.Stringer for Opcode.
func (o Opcode) String() string {
	switch o {
	case NOOP:
		return "NOOP"
	case ZQC:
		return "ZQC"
	case READ:
		return "READ"
	case ACT:
		return "ACT"
	case PRE:
		return "PRE"
	case REF:
		return "REF"
	case LOOP:
		return "LOOP"
	default:
		return fmt.Sprintf("Opcode(%.3b)", uint8(o))
	}
}

// Bit widths of the fixed 32-bit instruction word. These never vary across
// configurations; only the address sub-fields (rank/bank/row/col) do.
const (
	InstructionBits   = 32
	OpcodeBits        = 3
	TimesliceBits     = 5
	AddressBits       = 24
	TimesliceNoopBits = TimesliceBits + AddressBits // 29
	LoopCountBits     = 12
	LoopJumpBits      = 17

	// MaxDFITimeslice is the largest timeslice a single non-NOOP,
	// non-LOOP word can carry before the encoder must spill the overflow
	// into trailing NOOP words.
	MaxDFITimeslice = (1 << TimesliceBits) - 1
	// MaxNoopTimeslice is the largest timeslice a single NOOP word can
	// carry.
	MaxNoopTimeslice = (1 << TimesliceNoopBits) - 1
	// MaxLoopCount is the largest encodable LOOP count.
	MaxLoopCount = (1 << LoopCountBits) - 1
	// MaxLoopJump is the largest encodable backward LOOP jump distance.
	MaxLoopJump = (1 << LoopJumpBits) - 1
)

// Layout describes how the 24-bit address field is carved up for a given
// memory configuration. RankBits is derived from NRanks; BankBits, RowBits
// and ColBits are configuration parameters of the DRAM being driven.
type Layout struct {
	NRanks   int
	BankBits int
	RowBits  int
	ColBits  int
}

// RankBits returns ⌈log2(NRanks)⌉, i.e. the number of low address bits
// reserved for the rank selector. Zero when NRanks <= 1.
func (l Layout) RankBits() int {
	if l.NRanks <= 1 {
		return 0
	}
	bits := 0
	for n := l.NRanks - 1; n > 0; n >>= 1 {
		bits++
	}
	return bits
}

// rowcolBits returns max(RowBits, ColBits), the width reserved for the
// row-or-column sub-field.
func (l Layout) rowcolBits() int {
	if l.RowBits > l.ColBits {
		return l.RowBits
	}
	return l.ColBits
}

// Validate checks the packing constraint rankbits + bankbits +
// max(rowbits, colbits) <= AddressBits.
func (l Layout) Validate() error {
	used := l.RankBits() + l.BankBits + l.rowcolBits()
	if used > AddressBits {
		return fmt.Errorf("instr: layout exceeds %d address bits: rankbits=%d bankbits=%d rowcolbits=%d (total %d)",
			AddressBits, l.RankBits(), l.BankBits, l.rowcolBits(), used)
	}
	return nil
}

// Instruction is the fully decoded view of one 32-bit word, valid for every
// opcode (irrelevant fields are simply zero).
type Instruction struct {
	Opcode Opcode

	// Timeslice is the 5-bit DFI timeslice for non-NOOP instructions, or
	// the 29-bit wait count for NOOP. Always populated regardless of
	// opcode so callers don't need to branch on Opcode to read it.
	Timeslice uint32

	// Address is the raw 24-bit address field, valid for ACT/PRE/REF/ZQC/READ.
	Address uint32

	// CAS, RAS, WE mirror the opcode bit pattern onto the three command
	// lines: bit0=WE, bit1=CAS, bit2=RAS.
	CAS, RAS, WE bool

	// DFIBank and DFIAddress are Address split per Layout.
	DFIBank    uint32
	DFIAddress uint32
	// DFIRank is only meaningful when the layout has RankBits() > 0.
	DFIRank uint32

	// LoopCount and LoopJump are only meaningful for opcode LOOP.
	LoopCount uint32
	LoopJump  uint32

	// Stop is true iff this is a NOOP word with Timeslice == 0.
	Stop bool
}

// Decode unpacks a 32-bit instruction word into its fields according to the
// given address Layout. Decode never fails: any 32-bit value is a valid
// (if possibly nonsensical) instruction.
func Decode(word uint32, layout Layout) Instruction {
	op := Opcode(word & ((1 << OpcodeBits) - 1))
	tail := word >> OpcodeBits

	var i Instruction
	i.Opcode = op
	if op == NOOP {
		i.Timeslice = tail & ((1 << TimesliceNoopBits) - 1)
	} else {
		i.Timeslice = tail & ((1 << TimesliceBits) - 1)
	}
	i.Address = tail >> TimesliceBits
	i.LoopCount = tail & ((1 << LoopCountBits) - 1)
	i.LoopJump = tail >> LoopCountBits
	i.Stop = op == NOOP && i.Timeslice == 0
	i.WE = op&0x1 != 0
	i.CAS = op&0x2 != 0
	i.RAS = op&0x4 != 0

	rankbits := layout.RankBits()
	i.DFIBank = (i.Address >> rankbits) & ((1 << layout.BankBits) - 1)
	i.DFIAddress = i.Address >> (rankbits + layout.BankBits)
	if rankbits > 0 {
		i.DFIRank = i.Address & ((1 << rankbits) - 1)
	}
	return i
}

// EncodeError reports a build-time failure to encode a Spec into a word
// sequence: field overflow, a missing required address, an explicit zero
// timeslice on a non-NOOP instruction, or a LOOP count that doesn't fit.
type EncodeError struct {
	Op     Opcode
	Reason string
}

// Error implements the error interface.
func (e EncodeError) Error() string {
	return fmt.Sprintf("instr: cannot encode %s: %s", e.Op, e.Reason)
}

// Spec is an unencoded instruction as a caller would write it out by hand:
// one opcode plus the fields relevant to it. Timeslice is ignored for LOOP;
// Count and Jump are ignored for everything but LOOP; Address is ignored for
// NOOP and LOOP.
type Spec struct {
	Op         Opcode
	Timeslice  uint32
	Address    uint32
	HasAddress bool
	Count      uint32
	Jump       uint32
}

// Encode packs one Spec into one or more 32-bit words. A DFI instruction
// (ACT/PRE/REF/ZQC/READ) whose Timeslice exceeds MaxDFITimeslice is emitted
// as the base instruction clamped to MaxDFITimeslice, followed by trailing
// NOOP words whose combined duration equals the overflow, each carrying at
// most MaxNoopTimeslice cycles. This preserves the requested total
// duration exactly.
func Encode(s Spec) ([]uint32, error) {
	switch s.Op {
	case LOOP:
		if s.Count > MaxLoopCount {
			return nil, EncodeError{s.Op, fmt.Sprintf("count %d exceeds max %d", s.Count, MaxLoopCount)}
		}
		if s.Jump > MaxLoopJump {
			return nil, EncodeError{s.Op, fmt.Sprintf("jump %d exceeds max %d", s.Jump, MaxLoopJump)}
		}
		w := uint32(s.Op)
		w |= s.Count << OpcodeBits
		w |= s.Jump << (OpcodeBits + LoopCountBits)
		return []uint32{w}, nil
	case NOOP:
		if s.Timeslice > MaxNoopTimeslice {
			return nil, EncodeError{s.Op, fmt.Sprintf("timeslice %d exceeds max %d", s.Timeslice, MaxNoopTimeslice)}
		}
		w := uint32(s.Op) | s.Timeslice<<OpcodeBits
		return []uint32{w}, nil
	default:
		if s.Timeslice == 0 {
			return nil, EncodeError{s.Op, "zero timeslice is illegal; use 1 for a single-cycle instruction"}
		}
		if s.Op != REF && !s.HasAddress {
			return nil, EncodeError{s.Op, "missing required address"}
		}
		base := s.Timeslice
		if base > MaxDFITimeslice {
			base = MaxDFITimeslice
		}
		w := uint32(s.Op)
		w |= base << OpcodeBits
		w |= s.Address << (OpcodeBits + TimesliceBits)

		words := []uint32{w}
		remaining := s.Timeslice - base
		for remaining > 0 {
			wait := remaining
			if wait > MaxNoopTimeslice {
				wait = MaxNoopTimeslice
			}
			nw, err := Encode(Spec{Op: NOOP, Timeslice: wait})
			if err != nil {
				return nil, err
			}
			words = append(words, nw...)
			remaining -= wait
		}
		return words, nil
	}
}

// EncodeProgram encodes an ordered sequence of Specs into the flat word list
// that makes up a payload program.
func EncodeProgram(specs []Spec) ([]uint32, error) {
	var out []uint32
	for i, s := range specs {
		words, err := Encode(s)
		if err != nil {
			return nil, fmt.Errorf("instr: instruction %d: %w", i, err)
		}
		out = append(out, words...)
	}
	return out, nil
}

// EncodeAddress packs rank (if layout.NRanks > 1), bank, and row-or-column
// into a 24-bit address. Row and column are mutually exclusive; passing
// both set is an error. Omitting both encodes a zero row/column field.
func EncodeAddress(layout Layout, rank uint32, bank uint32, row, col *uint32) (uint32, error) {
	if row != nil && col != nil {
		return 0, fmt.Errorf("instr: address cannot set both row and col")
	}
	var rowcol uint32
	if row != nil {
		rowcol = *row
	} else if col != nil {
		rowcol = *col
	}
	rankbits := layout.RankBits()
	var addr uint32
	if rankbits > 0 {
		addr = rank & ((1 << rankbits) - 1)
	}
	addr |= (bank & ((1 << layout.BankBits) - 1)) << rankbits
	addr |= rowcol << (rankbits + layout.BankBits)
	return addr, nil
}
