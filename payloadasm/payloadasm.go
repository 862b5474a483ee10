// Package payloadasm parses a human-authored, hand-assembled payload
// program into encoded instruction words: one mnemonic per line, fields
// given as key=value pairs, since the payload instruction set has no
// fixed byte-stream encoding for a human to type directly.
//
// Syntax, one instruction per line:
//
//	ACT  ts=4 bank=3 row=0x1234
//	PRE  ts=1 bank=3 row=0x1234
//	REF  ts=4
//	ZQC  ts=4
//	READ ts=8 bank=2 col=0x10 rank=1
//	LOOP count=9 jump=1
//	NOOP ts=100000
//	STOP
//
// Blank lines and lines starting with '#' are ignored.
package payloadasm

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"payloadexec/instr"
)

// ParseError reports a failure to parse one line of a hand-assembled
// program.
type ParseError struct {
	Line int
	Text string
	Err  error
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return fmt.Sprintf("payloadasm: line %d %q: %v", e.Line, e.Text, e.Err)
}

// Unwrap supports errors.Is/As against the underlying cause.
func (e *ParseError) Unwrap() error {
	return e.Err
}

var mnemonics = map[string]instr.Opcode{
	"NOOP": instr.NOOP,
	"STOP": instr.NOOP,
	"ZQC":  instr.ZQC,
	"READ": instr.READ,
	"ACT":  instr.ACT,
	"PRE":  instr.PRE,
	"REF":  instr.REF,
	"LOOP": instr.LOOP,
}

// Parse reads a hand-assembled program from r and returns the ordered list
// of instr.Spec values it describes. layout is used to pack any row/col/
// rank/bank fields into the 24-bit address field.
func Parse(r io.Reader, layout instr.Layout) ([]instr.Spec, error) {
	var specs []instr.Spec
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		toks := strings.Fields(text)
		mnemonic := strings.ToUpper(toks[0])
		op, ok := mnemonics[mnemonic]
		if !ok {
			return nil, &ParseError{line, text, fmt.Errorf("unknown mnemonic %q", toks[0])}
		}
		fields, err := parseFields(toks[1:])
		if err != nil {
			return nil, &ParseError{line, text, err}
		}
		spec, err := specFromFields(op, mnemonic, fields, layout)
		if err != nil {
			return nil, &ParseError{line, text, err}
		}
		specs = append(specs, spec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("payloadasm: reading input: %w", err)
	}
	return specs, nil
}

// parseFields splits "key=value" tokens into a map, parsing each value as
// an unsigned integer (decimal or 0x-prefixed hex).
func parseFields(toks []string) (map[string]uint32, error) {
	fields := map[string]uint32{}
	for _, tok := range toks {
		kv := strings.SplitN(tok, "=", 2)
		if len(kv) != 2 {
			return nil, fmt.Errorf("malformed field %q, want key=value", tok)
		}
		v, err := strconv.ParseUint(kv[1], 0, 32)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", tok, err)
		}
		fields[strings.ToLower(kv[0])] = uint32(v)
	}
	return fields, nil
}

// specFromFields builds one instr.Spec from a mnemonic's parsed fields.
func specFromFields(op instr.Opcode, mnemonic string, fields map[string]uint32, layout instr.Layout) (instr.Spec, error) {
	switch op {
	case instr.LOOP:
		count, hasCount := fields["count"]
		jump, hasJump := fields["jump"]
		if !hasCount || !hasJump {
			return instr.Spec{}, fmt.Errorf("LOOP requires count= and jump=")
		}
		return instr.Spec{Op: instr.LOOP, Count: count, Jump: jump}, nil

	case instr.NOOP:
		ts := fields["ts"]
		if mnemonic == "STOP" {
			ts = 0
		}
		return instr.Spec{Op: instr.NOOP, Timeslice: ts}, nil

	case instr.REF:
		return instr.Spec{Op: instr.REF, Timeslice: fields["ts"]}, nil

	default: // ZQC, READ, ACT, PRE
		spec := instr.Spec{Op: op, Timeslice: fields["ts"]}
		row, hasRow := fields["row"]
		col, hasCol := fields["col"]
		if hasRow && hasCol {
			return instr.Spec{}, fmt.Errorf("address cannot set both row= and col=")
		}
		var rowp, colp *uint32
		if hasRow {
			rowp = &row
		}
		if hasCol {
			colp = &col
		}
		addr, err := instr.EncodeAddress(layout, fields["rank"], fields["bank"], rowp, colp)
		if err != nil {
			return instr.Spec{}, err
		}
		spec.Address = addr
		spec.HasAddress = true
		return spec, nil
	}
}

// Assemble parses r and encodes the resulting specs into a flat word list,
// the form a program memory bank is loaded with.
func Assemble(r io.Reader, layout instr.Layout) ([]uint32, error) {
	specs, err := Parse(r, layout)
	if err != nil {
		return nil, err
	}
	words, err := instr.EncodeProgram(specs)
	if err != nil {
		return nil, fmt.Errorf("payloadasm: encoding program: %w", err)
	}
	return words, nil
}
