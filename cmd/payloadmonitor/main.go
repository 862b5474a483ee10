// payloadmonitor is a bubbletea/lipgloss TUI that drives an assembled
// payload program one batch of cycles at a time and renders a live panel
// of the host-visible status registers (ready/overflow/read_count/
// exec_start/exec_stop/refresh_count) while it runs.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"payloadexec/busswitch"
	"payloadexec/dfi"
	"payloadexec/executor"
	"payloadexec/instr"
	"payloadexec/memory"
	"payloadexec/refresh"
	"payloadexec/refreshtimer"
	"payloadexec/scratchpad"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
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
	cyclesPerTick = flag.Int("cycles_per_tick", 256, "System cycles advanced per UI refresh")
)

var (
	labelStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("243"))
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	badStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	boxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

type tickMsg time.Time

type model struct {
	r       *executor.Runner
	cycle   int
	started bool
	done    bool
}

func (m model) Init() tea.Cmd {
	m.r.Exec.Start()
	return tickCmd()
}

func tickCmd() tea.Cmd {
	return tea.Tick(80*time.Millisecond, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}
	case tickMsg:
		if m.done {
			return m, nil
		}
		for i := 0; i < *cyclesPerTick; i++ {
			m.r.Tick()
			m.cycle++
			if m.r.Exec.Executing() {
				m.started = true
			}
			if m.started && m.r.Exec.Ready() {
				m.done = true
				break
			}
		}
		return m, tickCmd()
	}
	return m, nil
}

func (m model) View() string {
	exec := m.r.Exec
	status := okStyle.Render("RUNNING")
	if m.done {
		status = okStyle.Render("DONE")
	}
	overflow := okStyle.Render("false")
	if exec.Overflow() {
		overflow = badStyle.Render("true")
	}
	body := fmt.Sprintf(
		"%s %s\n%s %d\n%s %v\n%s %s\n%s %d\n%s %d\n%s %d\n%s %d",
		labelStyle.Render("status:"), status,
		labelStyle.Render("cycle:"), m.cycle,
		labelStyle.Render("ready:"), exec.Ready(),
		labelStyle.Render("overflow:"), overflow,
		labelStyle.Render("read_count:"), exec.ReadCount(),
		labelStyle.Render("exec_start:"), exec.ExecStart(),
		labelStyle.Render("exec_stop:"), exec.ExecStop(),
		labelStyle.Render("refresh_count:"), exec.RefreshCount(),
	)
	return boxStyle.Render(body) + "\n" + lipgloss.NewStyle().Faint(true).Render("q to quit")
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
	r := executor.NewRunner(exec, &bus, timer, refresh.ModeClassic)

	if _, err := tea.NewProgram(model{r: r}).Run(); err != nil {
		log.Fatalf("payloadmonitor: %v", err)
	}
}
