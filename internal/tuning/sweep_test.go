package tuning

import "testing"

func TestInitForSweepStartsAtLowCorner(t *testing.T) {
	cfg := SweepConfig{
		Coarse: Range{Start: 2, End: 5},
		Mid:    Range{Start: 10, End: 20},
		Fine:   Range{Start: 0, End: 24},
	}
	s, err := NewSweep(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := Code{Coarse: 2, Mid: 10, Fine: 0}
	if got := s.Code(); got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestInitForSweepCentersMidWhenCoarseIsSingleValue(t *testing.T) {
	cfg := SweepConfig{
		Coarse: Range{Start: 5, End: 5},
		Mid:    Range{Start: 10, End: 20},
		Fine:   Range{Start: 0, End: 24},
	}
	s, err := NewSweep(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := Code{Coarse: 5, Mid: 15, Fine: 0}
	if got := s.Code(); got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestInvalidSweepConfigRejected(t *testing.T) {
	cfg := SweepConfig{
		Coarse: Range{Start: 5, End: 2},
		Mid:    Range{Start: 10, End: 20},
		Fine:   Range{Start: 0, End: 24},
	}
	if _, err := NewSweep(cfg); err != ErrInvalidSweepConfig {
		t.Errorf("expected ErrInvalidSweepConfig, got %v", err)
	}
}

func TestSweepVisitsEveryCodeExactlyOnceWhenCoarseIsNonDegenerate(t *testing.T) {
	cfg := SweepConfig{
		Coarse: Range{Start: 2, End: 3},
		Mid:    Range{Start: 10, End: 11},
		Fine:   Range{Start: 0, End: 2},
	}
	s, err := NewSweep(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	seen := make(map[Code]bool)
	for {
		c := s.Code()
		if seen[c] {
			t.Fatalf("code %+v visited twice", c)
		}
		seen[c] = true
		if s.EndOfSweep() {
			break
		}
		s.IncrementFineForSweep()
	}

	wantCount := int(cfg.Coarse.End-cfg.Coarse.Start+1) *
		int(cfg.Mid.End-cfg.Mid.Start+1) *
		int(cfg.Fine.End-cfg.Fine.Start+1)
	if len(seen) != wantCount {
		t.Errorf("visited %d distinct codes, want %d", len(seen), wantCount)
	}
}

func TestSweepHoldsCoarseAndMidFixedWhenBothAreSingleValues(t *testing.T) {
	cfg := SweepConfig{
		Coarse: Range{Start: 5, End: 5},
		Mid:    Range{Start: 15, End: 15},
		Fine:   Range{Start: 0, End: 3},
	}
	s, err := NewSweep(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var fines []uint8
	for {
		c := s.Code()
		if c.Coarse != 5 || c.Mid != 15 {
			t.Fatalf("coarse/mid drifted: %+v", c)
		}
		fines = append(fines, c.Fine)
		if s.EndOfSweep() {
			break
		}
		s.IncrementFineForSweep()
	}

	want := []uint8{0, 1, 2, 3}
	if len(fines) != len(want) {
		t.Fatalf("got %v, want %v", fines, want)
	}
	for i := range want {
		if fines[i] != want[i] {
			t.Errorf("got %v, want %v", fines, want)
		}
	}
}

func TestSweepPingPongsAroundMidCenterWhenCoarseIsPinned(t *testing.T) {
	cfg := SweepConfig{
		Coarse: Range{Start: 5, End: 5},
		Mid:    Range{Start: 10, End: 20}, // center = 15
		Fine:   Range{Start: 0, End: 0},   // every fine step carries into mid
	}
	s, err := NewSweep(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var mids []uint8
	for i := 0; i < 5; i++ {
		mids = append(mids, s.Code().Mid)
		s.IncrementFineForSweep()
	}

	want := []uint8{15, 16, 14, 17, 13}
	for i := range want {
		if mids[i] != want[i] {
			t.Errorf("ping-pong sequence = %v, want %v", mids, want)
			break
		}
	}
}

func TestSweepPingPongFallsBackToCenterOnceWindowExhausted(t *testing.T) {
	cfg := SweepConfig{
		Coarse: Range{Start: 5, End: 5},
		Mid:    Range{Start: 14, End: 16}, // center = 15, only +-1 fits
		Fine:   Range{Start: 0, End: 0},
	}
	s, err := NewSweep(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// step0=15 (center), step1=16, step2=14, step3 would be 17: out of
	// range, falls back to center and stays there.
	var mids []uint8
	for i := 0; i < 6; i++ {
		mids = append(mids, s.Code().Mid)
		s.IncrementFineForSweep()
	}

	want := []uint8{15, 16, 14, 15, 15, 15}
	for i := range want {
		if mids[i] != want[i] {
			t.Errorf("ping-pong sequence = %v, want %v", mids, want)
			break
		}
	}
}
