// payloadscope runs an assembled payload program against a stub DRAM
// system and renders the command-bus wire toggles (cs/ras/cas/we per
// phase) across the run as a logic-analyzer-style strip chart: a single
// sdl.Window whose surface is filled directly rather than drawn through
// image/draw, since waveform cells are solid blocks.
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

	"github.com/veandco/go-sdl2/sdl"
)

var (
	nranks      = flag.Int("nranks", 1, "Number of ranks addressable by the address field")
	bankbits    = flag.Int("bankbits", 4, "Bits reserved for the bank sub-field")
	rowbits     = flag.Int("rowbits", 16, "Bits reserved for the row sub-field")
	colbits     = flag.Int("colbits", 10, "Bits reserved for the column sub-field")
	nphases     = flag.Int("nphases", 1, "Number of command-bus phases")
	rdphase     = flag.Int("rdphase", 0, "Bus phase READ commands are issued on")
	rddataWidth = flag.Int("rddata_width", 4, "Read-data width per phase, in bytes")
	progDepth   = flag.Int("prog_depth", 1024, "Payload memory depth in words (must be a power of 2)")
	padDepth    = flag.Int("scratchpad_depth", 256, "Scratchpad depth in words")
	maxCycles   = flag.Int("max_cycles", 4096, "Cycles to record and render")
	scale       = flag.Int("scale", 3, "Pixel height of each signal row times scale")
)

// signals is the fixed set of per-phase wire toggles rendered as rows.
var signals = []struct {
	name string
	get  func(dfi.Phase) bool
}{
	{"CS ", func(p dfi.Phase) bool { return len(p.CSN) > 0 && !p.CSN[0] }},
	{"RAS", func(p dfi.Phase) bool { return !p.RASN }},
	{"CAS", func(p dfi.Phase) bool { return !p.CASN }},
	{"WE ", func(p dfi.Phase) bool { return !p.WEN }},
}

func main() {
	flag.Parse()
	if len(flag.Args()) != 1 {
		log.Fatalf("Invalid command: %s [flags] <assembled program>", os.Args[0])
	}

	layout := instr.Layout{NRanks: *nranks, BankBits: *bankbits, RowBits: *rowbits, ColBits: *colbits}
	if err := layout.Validate(); err != nil {
		log.Fatalf("Invalid address layout: %v", err)
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
	pad, err := scratchpad.New(*padDepth, *nphases**rddataWidth)
	if err != nil {
		log.Fatalf("Can't allocate scratchpad: %v", err)
	}
	timer := refreshtimer.New(7800)
	sw := busswitch.New(false, refresh.New(refresh.ModeClassic), timer)
	exec := executor.New(mem, sw, pad, layout, *rdphase)
	bus := dfi.NewBus(*nphases, *nranks, *rddataWidth, *rdphase)

	// trace[cycle][phase*len(signals)+signal] is the recorded boolean.
	trace := make([][]bool, 0, *maxCycles)
	r := executor.NewRunner(exec, &bus, timer, refresh.ModeClassic)
	r.OnCycle = func(cycle int, b dfi.Bus) {
		row := make([]bool, len(b.Phases)*len(signals))
		for p, phase := range b.Phases {
			for s, sig := range signals {
				row[p*len(signals)+s] = sig.get(phase)
			}
		}
		trace = append(trace, row)
	}
	if err := r.Run(context.Background(), *maxCycles); err != nil {
		log.Printf("Run ended early: %v (rendering %d recorded cycles)", err, len(trace))
	}

	render(trace, *nphases, *scale)
}

// render opens an SDL window and draws one horizontal strip per phase per
// signal, one pixel column per recorded cycle, asserted=light /
// deasserted=dark (the wires are active-low, so light means the wire is low).
func render(trace [][]bool, nphases, scale int) {
	rows := nphases * len(signals)
	w := int32(len(trace))
	if w == 0 {
		w = 1
	}
	h := int32(rows * scale)

	if err := sdl.Init(sdl.INIT_VIDEO); err != nil {
		log.Fatalf("Can't init SDL: %v", err)
	}
	defer sdl.Quit()

	window, err := sdl.CreateWindow("payloadscope", sdl.WINDOWPOS_UNDEFINED, sdl.WINDOWPOS_UNDEFINED, w, h, sdl.WINDOW_SHOWN)
	if err != nil {
		log.Fatalf("Can't create window: %v", err)
	}
	defer window.Destroy()

	surface, err := window.GetSurface()
	if err != nil {
		log.Fatalf("Can't get window surface: %v", err)
	}

	hi := sdl.MapRGBA(surface.Format, 0xE0, 0xE0, 0xE0, 0xFF)
	lo := sdl.MapRGBA(surface.Format, 0x20, 0x20, 0x20, 0xFF)

	for row := 0; row < rows; row++ {
		for cycle, sample := range trace {
			c := lo
			if sample[row] {
				c = hi
			}
			rect := sdl.Rect{X: int32(cycle), Y: int32(row * scale), W: 1, H: int32(scale)}
			surface.FillRect(&rect, c)
		}
	}
	window.UpdateSurface()

	running := true
	for running {
		for event := sdl.PollEvent(); event != nil; event = sdl.PollEvent() {
			switch event.(type) {
			case *sdl.QuitEvent:
				running = false
			}
		}
		sdl.Delay(16)
	}
}
