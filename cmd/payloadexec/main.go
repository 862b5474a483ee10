// payloadexec loads an assembled payload program (as produced by
// cmd/payloadasm) into a stub DRAM system and runs the executor to
// completion, printing the resulting host status registers. It stands in
// for the host driving the core over a real register transport.
package main

import (
	"context"
	"flag"
	"log"
	"os"

	"payloadexec/busswitch"
	"payloadexec/dfi"
	"payloadexec/executor"
	"payloadexec/instr"
	"payloadexec/memory"
	"payloadexec/refresh"
	"payloadexec/refreshtimer"
	"payloadexec/scratchpad"
)

var (
	nranks        = flag.Int("nranks", 1, "Number of ranks addressable by the address field")
	bankbits      = flag.Int("bankbits", 4, "Bits reserved for the bank sub-field")
	rowbits       = flag.Int("rowbits", 16, "Bits reserved for the row sub-field")
	colbits       = flag.Int("colbits", 10, "Bits reserved for the column sub-field")
	nphases       = flag.Int("nphases", 1, "Number of command-bus phases")
	rdphase       = flag.Int("rdphase", 0, "Bus phase READ commands are issued on")
	rddataWidth   = flag.Int("rddata_width", 4, "Read-data width per phase, in bytes")
	progDepth     = flag.Int("prog_depth", 1024, "Payload memory depth in words (must be a power of 2)")
	padDepth      = flag.Int("scratchpad_depth", 256, "Scratchpad depth in words")
	refreshMode   = flag.String("refresh_mode", "classic", "Refresh recognition rule: classic or ddr5")
	withRefresh   = flag.Bool("with_refresh", false, "Gate bus handover on the refresh schedule")
	atRefresh     = flag.Uint64("at_refresh", 0, "Refresh ordinal to gate handover at (0 = don't care)")
	refreshPeriod = flag.Uint("refresh_period", 7800, "Stub refresh timer period, in cycles")
	maxCycles     = flag.Int("max_cycles", 10_000_000, "Safety bound on cycles before giving up")
)

func main() {
	flag.Parse()
	if len(flag.Args()) != 1 {
		log.Fatalf("Invalid command: %s [flags] <assembled program>", os.Args[0])
	}

	layout := instr.Layout{NRanks: *nranks, BankBits: *bankbits, RowBits: *rowbits, ColBits: *colbits}
	if err := layout.Validate(); err != nil {
		log.Fatalf("Invalid address layout: %v", err)
	}

	var mode refresh.Mode
	switch *refreshMode {
	case "classic":
		mode = refresh.ModeClassic
	case "ddr5":
		mode = refresh.ModeDDR5
	default:
		log.Fatalf("Invalid -refresh_mode %q: must be classic or ddr5", *refreshMode)
	}

	f, err := os.Open(flag.Args()[0])
	if err != nil {
		log.Fatalf("Can't open program %q: %v", flag.Args()[0], err)
	}
	words, err := memory.ReadWords(f)
	f.Close()
	if err != nil {
		log.Fatalf("Can't read program %q: %v", flag.Args()[0], err)
	}

	mem, err := memory.NewProgramBank(*progDepth)
	if err != nil {
		log.Fatalf("Can't allocate payload memory: %v", err)
	}
	if err := memory.LoadProgram(mem, words); err != nil {
		log.Fatalf("Can't load program: %v", err)
	}

	pad, err := scratchpad.New(*padDepth, scratchpadWordWidth(*nphases, *rddataWidth))
	if err != nil {
		log.Fatalf("Can't allocate scratchpad: %v", err)
	}

	timer := refreshtimer.New(uint32(*refreshPeriod))
	sw := busswitch.New(*withRefresh, refresh.New(mode), timer)
	sw.SetAtRefresh(*atRefresh)

	exec := executor.New(mem, sw, pad, layout, *rdphase)
	bus := dfi.NewBus(*nphases, *nranks, *rddataWidth, *rdphase)

	r := executor.NewRunner(exec, &bus, timer, mode)
	if err := r.Run(context.Background(), *maxCycles); err != nil {
		log.Fatalf("Run: %v", err)
	}

	log.Printf("ready=%v overflow=%v read_count=%d exec_start=%d exec_stop=%d refresh_count=%d",
		exec.Ready(), exec.Overflow(), exec.ReadCount(), exec.ExecStart(), exec.ExecStop(), exec.RefreshCount())
}

// scratchpadWordWidth returns the aggregate scratchpad word width for a
// bus with nphases phases of rddataWidth bytes each.
func scratchpadWordWidth(nphases, rddataWidth int) int {
	return nphases * rddataWidth
}
