package radio

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/open-scum/scumcal/internal/ports"
	fakeports "github.com/open-scum/scumcal/internal/ports/fake"
	"github.com/open-scum/scumcal/internal/registry"
	"github.com/open-scum/scumcal/internal/tuning"
)

func TestTuneRXProgramsRegistryCode(t *testing.T) {
	fake := fakeports.NewRadio()
	reg := registry.New()
	code := tuning.Code{Coarse: 22, Mid: 15, Fine: 3}
	if err := reg.SetTuningCode(17, registry.RX, code); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	m := NewManager(fake, reg)
	if err := m.TuneRX(context.Background(), 17); err != nil {
		t.Fatalf("TuneRX failed: %v", err)
	}

	if got := fake.LastCode(17, registry.RX); got != code {
		t.Errorf("programmed code %+v, want %+v", got, code)
	}
	state := m.GetState()
	if state.Status != StatusRX || state.Channel != 17 || state.Code != code {
		t.Errorf("unexpected state: %+v", state)
	}
}

func TestTuneTXProgramsTXSlot(t *testing.T) {
	fake := fakeports.NewRadio()
	reg := registry.New()
	code := tuning.Code{Coarse: 22, Mid: 14, Fine: 3}
	if err := reg.SetTuningCode(17, registry.TX, code); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	m := NewManager(fake, reg)
	if err := m.TuneTX(context.Background(), 17, []byte{0x01}); err != nil {
		t.Fatalf("TuneTX failed: %v", err)
	}

	if got := fake.LastCode(17, registry.TX); got != code {
		t.Errorf("programmed code %+v, want %+v", got, code)
	}
	if state := m.GetState(); state.Status != StatusTX {
		t.Errorf("got status %q, want %q", state.Status, StatusTX)
	}
}

func TestTuneRXRejectsChannelOutOfRange(t *testing.T) {
	m := NewManager(fakeports.NewRadio(), registry.New())
	if err := m.TuneRX(context.Background(), 27); err == nil {
		t.Error("expected error for channel out of range")
	}
}

func TestOffResetsState(t *testing.T) {
	fake := fakeports.NewRadio()
	reg := registry.New()
	m := NewManager(fake, reg)
	if err := reg.SetTuningCode(11, registry.RX, tuning.Code{Coarse: 20}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := m.TuneRX(context.Background(), 11); err != nil {
		t.Fatalf("TuneRX failed: %v", err)
	}
	if err := m.Off(context.Background()); err != nil {
		t.Fatalf("Off failed: %v", err)
	}
	if state := m.GetState(); state.Status != StatusOff {
		t.Errorf("got status %q, want %q", state.Status, StatusOff)
	}
}

func TestSimDeliversFrameWhenCodeWithinTolerance(t *testing.T) {
	peer := tuning.Code{Coarse: 22, Mid: 15, Fine: 10}
	sim := NewSim(SimOptions{
		PeerCodes:     map[int]tuning.Code{17: peer},
		FineTolerance: 2,
		ResponseDelay: time.Millisecond,
	})

	var mu sync.Mutex
	var frames []ports.Frame
	sim.SetEndFrameHandler(func(f ports.Frame) {
		mu.Lock()
		frames = append(frames, f)
		mu.Unlock()
	})

	ctx := context.Background()
	if err := sim.SetFrequency(ctx, 17, registry.RX, tuning.Code{Coarse: 22, Mid: 15, Fine: 9}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := sim.RXEnable(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := sim.RXNow(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for {
		mu.Lock()
		n := len(frames)
		mu.Unlock()
		if n > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("no frame delivered within deadline")
		}
		time.Sleep(time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if !frames[0].CRCOK {
		t.Error("expected delivered frame to carry a valid CRC")
	}
}

func TestSimStaysSilentWhenCodeOutOfTolerance(t *testing.T) {
	peer := tuning.Code{Coarse: 22, Mid: 15, Fine: 10}
	sim := NewSim(SimOptions{
		PeerCodes:     map[int]tuning.Code{17: peer},
		FineTolerance: 1,
		ResponseDelay: time.Millisecond,
	})

	var mu sync.Mutex
	received := false
	sim.SetEndFrameHandler(func(ports.Frame) {
		mu.Lock()
		received = true
		mu.Unlock()
	})

	ctx := context.Background()
	if err := sim.SetFrequency(ctx, 17, registry.RX, tuning.Code{Coarse: 22, Mid: 15, Fine: 20}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := sim.RXEnable(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := sim.RXNow(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if received {
		t.Error("sim delivered a frame for an out-of-tolerance code")
	}
}

func TestSysTimerFiresAndCancels(t *testing.T) {
	timer := NewSysTimer()
	defer timer.Stop()

	fired := make(chan struct{})
	timer.ScheduleOnce(time.Millisecond, func() { close(fired) })
	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("timer never fired")
	}

	cancelled := make(chan struct{})
	h := timer.ScheduleOnce(50*time.Millisecond, func() { close(cancelled) })
	timer.Cancel(h)
	select {
	case <-cancelled:
		t.Error("cancelled timer still fired")
	case <-time.After(100 * time.Millisecond):
	}
}
