// payloadasm takes a hand-assembled payload program (see package
// payloadasm for the text syntax) and produces a flat binary of
// little-endian 32-bit instruction words, suitable for loading straight
// into a memory.WritableWordBank via memory.LoadProgram.
package main

import (
	"encoding/binary"
	"flag"
	"log"
	"os"

	"payloadexec/instr"
	"payloadexec/payloadasm"
)

var (
	nranks   = flag.Int("nranks", 1, "Number of ranks addressable by the address field")
	bankbits = flag.Int("bankbits", 4, "Bits reserved for the bank sub-field")
	rowbits  = flag.Int("rowbits", 16, "Bits reserved for the row sub-field")
	colbits  = flag.Int("colbits", 10, "Bits reserved for the column sub-field")
)

func main() {
	flag.Parse()
	if len(flag.Args()) != 2 {
		log.Fatalf("Invalid command: %s [flags] <input> <output>", os.Args[0])
	}
	in, out := flag.Args()[0], flag.Args()[1]

	layout := instr.Layout{NRanks: *nranks, BankBits: *bankbits, RowBits: *rowbits, ColBits: *colbits}
	if err := layout.Validate(); err != nil {
		log.Fatalf("Invalid address layout: %v", err)
	}

	f, err := os.Open(in)
	if err != nil {
		log.Fatalf("Can't open %q for input: %v", in, err)
	}
	defer f.Close()

	words, err := payloadasm.Assemble(f, layout)
	if err != nil {
		log.Fatalf("Can't assemble %q: %v", in, err)
	}

	of, err := os.Create(out)
	if err != nil {
		log.Fatalf("Can't open output %q: %v", out, err)
	}
	for i, w := range words {
		if err := binary.Write(of, binary.LittleEndian, w); err != nil {
			log.Fatalf("Short write to %q at word %d: %v", out, i, err)
		}
	}
	if err := of.Close(); err != nil {
		log.Fatalf("Error closing %q: %v", out, err)
	}
	log.Printf("Assembled %d words (%d bytes) from %q to %q", len(words), len(words)*4, in, out)
}
