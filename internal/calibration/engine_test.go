package calibration

import (
	"context"
	"testing"

	"github.com/open-scum/scumcal/internal/ports"
	fakeports "github.com/open-scum/scumcal/internal/ports/fake"
	"github.com/open-scum/scumcal/internal/registry"
	"github.com/open-scum/scumcal/internal/tuning"
	"github.com/open-scum/scumcal/internal/wire"
)

func newTestEngine() (*Engine, *fakeports.Radio, *fakeports.Timer, *registry.Registry) {
	radio := fakeports.NewRadio()
	timer := fakeports.NewTimer()
	reg := registry.New()
	e := New(radio, timer, reg, DefaultTiming())
	return e, radio, timer, reg
}

func TestInitialSweepHitOnFirstTry(t *testing.T) {
	e, radio, timer, reg := newTestEngine()
	ctx := context.Background()

	cfg := tuning.SweepConfig{
		Coarse: tuning.Range{Start: 22, End: 22},
		Mid:    tuning.Range{Start: 15, End: 15},
		Fine:   tuning.Range{Start: 0, End: 31},
	}
	if err := e.Start(ctx, 22, cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for i := 0; i < 3; i++ {
		if fired := timer.FireAll(); fired != 1 {
			t.Fatalf("expected exactly one timer to fire per tick, got %d", fired)
		}
	}

	radio.DeliverFrame(ports.Frame{CRCOK: true})

	if e.State() != StateRemainingRX {
		t.Errorf("expected state REMAINING_RX, got %v", e.State())
	}
	want := tuning.Code{Coarse: 22, Mid: 15, Fine: 3}
	got, err := reg.GetTuningCode(22, registry.RX)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestInitialSweepWithSilentPeerVisitsEveryFineCode(t *testing.T) {
	e, radio, timer, _ := newTestEngine()
	ctx := context.Background()

	cfg := tuning.SweepConfig{
		Coarse: tuning.Range{Start: 22, End: 22},
		Mid:    tuning.Range{Start: 15, End: 15},
		Fine:   tuning.Range{Start: 0, End: 31},
	}
	if err := e.Start(ctx, 22, cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for fine := uint8(0); fine <= 31; fine++ {
		got := radio.LastCode(22, registry.RX)
		if got.Fine != fine {
			t.Fatalf("at tick %d, got fine %d, want %d", fine, got.Fine, fine)
		}
		timer.FireAll()
	}
}

func TestRXFailureAdvancesSweepAfterMaxFailures(t *testing.T) {
	e, _, _, reg := newTestEngine()
	ctx := context.Background()

	cfg := tuning.SweepConfig{
		Coarse: tuning.Range{Start: 22, End: 22},
		Mid:    tuning.Range{Start: 15, End: 15},
		Fine:   tuning.Range{Start: 0, End: 31},
	}
	if err := e.Start(ctx, 22, cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for i := 0; i < MaxNumFailures-1; i++ {
		if err := e.RXFailure(22); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		got, _ := reg.GetTuningCode(22, registry.RX)
		if got.Fine != 0 {
			t.Fatalf("sweep advanced too early: %+v", got)
		}
	}
	if err := e.RXFailure(22); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, _ := reg.GetTuningCode(22, registry.RX)
	if got.Fine != 1 {
		t.Errorf("expected sweep to advance by one fine step, got %+v", got)
	}
}

func TestFailuresIgnoredOnceCalibrated(t *testing.T) {
	e, _, _, reg := newTestEngine()
	ctx := context.Background()

	cfg := tuning.SweepConfig{
		Coarse: tuning.Range{Start: 22, End: 22},
		Mid:    tuning.Range{Start: 15, End: 15},
		Fine:   tuning.Range{Start: 0, End: 31},
	}
	if err := e.Start(ctx, 22, cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := e.RXSuccess(22); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	before, _ := reg.GetTuningCode(22, registry.RX)
	for i := 0; i < 2*MaxNumFailures; i++ {
		if err := e.RXFailure(22); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	after, _ := reg.GetTuningCode(22, registry.RX)
	if after != before {
		t.Errorf("failure reports respun a calibrated code: %+v -> %+v", before, after)
	}

	// The TX side latches and ignores failures the same way.
	if err := e.TXSuccess(22); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	beforeTX, _ := reg.GetTuningCode(22, registry.TX)
	for i := 0; i < 2*MaxNumFailures; i++ {
		if err := e.TXFailure(22); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	afterTX, _ := reg.GetTuningCode(22, registry.TX)
	if afterTX != beforeTX {
		t.Errorf("failure reports respun a calibrated TX code: %+v -> %+v", beforeTX, afterTX)
	}
}

func TestRXSuccessLatchesAndSeedsTX(t *testing.T) {
	e, _, _, reg := newTestEngine()
	ctx := context.Background()

	cfg := tuning.SweepConfig{
		Coarse: tuning.Range{Start: 22, End: 22},
		Mid:    tuning.Range{Start: 15, End: 15},
		Fine:   tuning.Range{Start: 0, End: 31},
	}
	if err := e.Start(ctx, 22, cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := e.RXSuccess(22); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !e.channels[22-registry.MinChannel].RX.Calibrated {
		t.Errorf("expected channel 22 RX to be latched calibrated")
	}

	rx := e.channels[22-registry.MinChannel].RX.TuningCode
	tx, _ := reg.GetTuningCode(22, registry.TX)
	wantTX := rx
	if err := wantTX.EstimateTXFromRX(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tx != wantTX {
		t.Errorf("TX not seeded correctly: got %+v, want %+v", tx, wantTX)
	}
}

func TestInitRemainingSweepsExtrapolatesNeighbors(t *testing.T) {
	radio := fakeports.NewRadio()
	timer := fakeports.NewTimer()
	reg := registry.New()
	e := New(radio, timer, reg, DefaultTiming())
	ctx := context.Background()

	cfg := tuning.SweepConfig{
		Coarse: tuning.Range{Start: 23, End: 23},
		Mid:    tuning.Range{Start: 15, End: 15},
		Fine:   tuning.Range{Start: 0, End: 31},
	}
	if err := e.Start(ctx, 17, cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 0; i < 10; i++ {
		timer.FireAll()
	}
	radio.DeliverFrame(ports.Frame{CRCOK: true})

	tests := []struct {
		channel int
		mode    registry.Mode
		want    tuning.Code
	}{
		{17, registry.RX, tuning.Code{Coarse: 23, Mid: 15, Fine: 10}},
		{17, registry.TX, tuning.Code{Coarse: 23, Mid: 14, Fine: 10}},
		{18, registry.RX, tuning.Code{Coarse: 23, Mid: 20, Fine: 10}},
		{16, registry.RX, tuning.Code{Coarse: 23, Mid: 10, Fine: 10}},
	}
	for _, tt := range tests {
		got, err := reg.GetTuningCode(tt.channel, tt.mode)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != tt.want {
			t.Errorf("channel %d %v: got %+v, want %+v", tt.channel, tt.mode, got, tt.want)
		}
	}
}

func TestLongTimeoutArmedNearCoarseRollover(t *testing.T) {
	radio := fakeports.NewRadio()
	timer := fakeports.NewTimer()
	reg := registry.New()
	timing := DefaultTiming()
	e := New(radio, timer, reg, timing)
	ctx := context.Background()

	cfg := tuning.SweepConfig{
		Coarse: tuning.Range{Start: 22, End: 22},
		Mid:    tuning.Range{Start: 26, End: 26},
		Fine:   tuning.Range{Start: 0, End: 31},
	}
	if err := e.Start(ctx, 17, cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := timer.LastDuration(); got != timing.RXTimeout {
		t.Fatalf("first window armed %v, want normal timeout %v", got, timing.RXTimeout)
	}

	// The frame arrives while the engine is tuned to a mid code past the
	// rollover threshold.
	radio.DeliverFrame(ports.Frame{CRCOK: true})
	if e.lastRXMid < MidCodeThreshold {
		t.Fatalf("test setup: discovered mid %d below threshold", e.lastRXMid)
	}

	// The next sweep window on this engine must get the long timeout.
	if err := e.Start(ctx, 17, cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := timer.LastDuration(); got != timing.RXLongTimeout {
		t.Errorf("window after rollover-threshold mid armed %v, want long timeout %v", got, timing.RXLongTimeout)
	}
}

func TestPeerCodePacketSeedsTXSlot(t *testing.T) {
	radio := fakeports.NewRadio()
	timer := fakeports.NewTimer()
	reg := registry.New()
	e := New(radio, timer, reg, DefaultTiming())
	ctx := context.Background()

	cfg := tuning.SweepConfig{
		Coarse: tuning.Range{Start: 22, End: 22},
		Mid:    tuning.Range{Start: 15, End: 15},
		Fine:   tuning.Range{Start: 0, End: 31},
	}
	if err := e.Start(ctx, 17, cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	peerCode := tuning.Code{Coarse: 22, Mid: 14, Fine: 20}
	pkt := wire.TXPacket{Sequence: 1, Channel: 17}
	pkt.Codes[0] = peerCode
	radio.DeliverFrame(ports.Frame{Payload: pkt.Encode(), CRCOK: true})

	got, err := reg.GetTuningCode(17, registry.TX)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != peerCode {
		t.Errorf("TX slot got %+v, want peer-provided %+v", got, peerCode)
	}
	calibrated, _ := e.Calibrated(17, registry.RX)
	if !calibrated {
		t.Error("RX calibration did not latch on the peer frame")
	}
}
