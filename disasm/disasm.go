// Package disasm renders encoded payload-program words back to mnemonic
// text. It steps one instruction word at a time: given a program counter
// and a memory to read from, it returns the rendered line and the number
// of words the PC should advance to reach the next instruction. Every
// payload instruction is exactly one word wide, so the advance is always
// 1 — Step still returns it so callers can drive a listing loop without
// hardcoding the instruction width.
package disasm

import (
	"fmt"

	"payloadexec/instr"
	"payloadexec/memory"
)

// Step disassembles the word at pc into one line of mnemonic text, using
// layout to split the address field. It returns the rendered line and the
// word count to advance (always 1).
func Step(pc uint32, mem memory.WordBank, layout instr.Layout) (string, int) {
	word := mem.Read(pc)
	d := instr.Decode(word, layout)
	return fmt.Sprintf("%.4X  %.8X  %s", pc, word, render(d, layout)), 1
}

// render formats the decoded instruction's mnemonic and operands.
func render(d instr.Instruction, layout instr.Layout) string {
	switch d.Opcode {
	case instr.NOOP:
		if d.Stop {
			return "STOP"
		}
		return fmt.Sprintf("NOOP ts=%d", d.Timeslice)
	case instr.LOOP:
		return fmt.Sprintf("LOOP count=%d jump=%d", d.LoopCount, d.LoopJump)
	case instr.REF:
		return fmt.Sprintf("REF  ts=%d", d.Timeslice)
	default:
		s := fmt.Sprintf("%-4s ts=%d bank=%d addr=0x%X", d.Opcode, d.Timeslice, d.DFIBank, d.DFIAddress)
		if layout.RankBits() > 0 {
			s += fmt.Sprintf(" rank=%d", d.DFIRank)
		}
		return s
	}
}

// Program disassembles every word of mem from address 0 up to depth,
// stopping early at the first STOP word (matching the executor's own
// end-of-program rule) unless full is true, in which case it renders the
// entire bank regardless of STOP.
func Program(mem memory.WordBank, layout instr.Layout, full bool) []string {
	var lines []string
	depth := uint32(mem.Depth())
	for pc := uint32(0); pc < depth; {
		line, adv := Step(pc, mem, layout)
		lines = append(lines, line)
		d := instr.Decode(mem.Read(pc), layout)
		pc += uint32(adv)
		if d.Stop && !full {
			break
		}
	}
	return lines
}
