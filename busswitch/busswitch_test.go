package busswitch

import (
	"testing"

	"payloadexec/dfi"
	"payloadexec/refresh"
)

type fakeResetter struct {
	resets int
}

func (f *fakeResetter) Reset() {
	f.resets++
}

func idlePhase() dfi.Phase {
	return dfi.NewPhase(1, 0)
}

func refreshPhase() dfi.Phase {
	p := dfi.NewPhase(1, 0)
	p.CSN[0] = false
	p.CASN, p.RASN, p.WEN = false, false, true
	return p
}

func TestImmediateHandoverWithoutRefreshGating(t *testing.T) {
	sw := New(false, refresh.New(refresh.ModeClassic), &fakeResetter{})
	if sw.State() != StateController {
		t.Fatalf("initial state = %v, want CONTROLLER", sw.State())
	}
	sw.Tick(idlePhase(), true)
	sw.TickDone()
	if sw.State() != StatePayload {
		t.Errorf("state = %v, want PAYLOAD after wantsDFI with gating disabled", sw.State())
	}
	if !sw.DFIReady() {
		t.Errorf("DFIReady() = false, want true in PAYLOAD")
	}
}

func TestGatedHandoverWaitsForRefresh(t *testing.T) {
	sw := New(true, refresh.New(refresh.ModeClassic), &fakeResetter{})
	// Request the bus, but feed idle phases: must not hand over.
	for i := 0; i < 3; i++ {
		sw.Tick(idlePhase(), true)
		sw.TickDone()
		if sw.State() != StateController {
			t.Fatalf("handed over early at idle tick %d", i)
		}
	}
	sw.Tick(refreshPhase(), true)
	sw.TickDone()
	if sw.State() != StatePayload {
		t.Errorf("state = %v, want PAYLOAD after observing a refresh", sw.State())
	}
}

func TestAtRefreshGatesToSpecificOrdinal(t *testing.T) {
	sw := New(true, refresh.New(refresh.ModeClassic), &fakeResetter{})
	sw.SetAtRefresh(3)

	sw.Tick(idlePhase(), true)
	sw.TickDone()
	// First two refreshes should not trigger handover (counter+1 != 3).
	for i := 0; i < 2; i++ {
		sw.Tick(refreshPhase(), true)
		sw.TickDone()
		if sw.State() != StateController {
			t.Fatalf("handed over too early at refresh %d", i+1)
		}
	}
	// Third refresh: counter was 2, counter+1==3==at_refresh -> handover.
	sw.Tick(refreshPhase(), true)
	sw.TickDone()
	if sw.State() != StatePayload {
		t.Errorf("state = %v, want PAYLOAD at the configured refresh ordinal", sw.State())
	}
	if got := sw.RefreshCount(); got != 3 {
		t.Errorf("RefreshCount() = %d, want 3 latched at handover", got)
	}
}

func TestHandoverBackPulsesResetter(t *testing.T) {
	r := &fakeResetter{}
	sw := New(false, refresh.New(refresh.ModeClassic), r)
	sw.Tick(idlePhase(), true)
	sw.TickDone()
	if sw.State() != StatePayload {
		t.Fatalf("setup: expected PAYLOAD")
	}
	if r.resets != 0 {
		t.Fatalf("resetter pulsed too early")
	}
	sw.Tick(idlePhase(), false)
	sw.TickDone()
	if sw.State() != StateController {
		t.Errorf("state = %v, want CONTROLLER after dropping wantsDFI", sw.State())
	}
	if r.resets != 1 {
		t.Errorf("resets = %d, want 1 after handover back", r.resets)
	}
}

func TestRefreshUpdateLatchesOnDemand(t *testing.T) {
	sw := New(true, refresh.New(refresh.ModeClassic), &fakeResetter{})
	for i := 0; i < 3; i++ {
		sw.Tick(refreshPhase(), false)
		sw.TickDone()
	}
	if got := sw.RefreshCount(); got != 0 {
		t.Fatalf("RefreshCount() = %d, want 0 before any latch", got)
	}
	sw.RefreshUpdate()
	if got := sw.RefreshCount(); got != 3 {
		t.Errorf("RefreshCount() = %d, want 3 after refresh_update strobe", got)
	}
}

func TestExclusiveOwnership(t *testing.T) {
	sw := New(false, refresh.New(refresh.ModeClassic), &fakeResetter{})
	for i := 0; i < 5; i++ {
		controllerOwns := sw.State() == StateController
		executorOwns := sw.DFIReady()
		if controllerOwns == executorOwns {
			t.Fatalf("cycle %d: ownership not exclusive (controller=%t executor=%t)", i, controllerOwns, executorOwns)
		}
		sw.Tick(idlePhase(), true)
		sw.TickDone()
	}
}
