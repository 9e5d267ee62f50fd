package feedback

import (
	"testing"

	"github.com/open-scum/scumcal/internal/registry"
	"github.com/open-scum/scumcal/internal/tuning"
)

func newRegistryAt(t *testing.T, channel int, code tuning.Code) *registry.Registry {
	t.Helper()
	reg := registry.New()
	if err := reg.SetTuningCode(channel, registry.RX, code); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return reg
}

func TestAdjustRXNeverMutatesOnNominalStream(t *testing.T) {
	start := tuning.Code{Coarse: 20, Mid: 15, Fine: 10}
	reg := newRegistryAt(t, 17, start)
	c := NewController(reg)

	for i := 0; i < 20; i++ {
		if adjusted, err := c.AdjustRX(17, NominalIFCount); err != nil {
			t.Fatalf("unexpected error: %v", err)
		} else if adjusted {
			t.Fatalf("unexpected adjustment on sample %d", i)
		}
	}

	got, _ := reg.GetTuningCode(17, registry.RX)
	if got != start {
		t.Errorf("code drifted: got %+v, want %+v", got, start)
	}
}

func TestAdjustRXZeroEstimateNeverCountsTowardWindow(t *testing.T) {
	start := tuning.Code{Coarse: 20, Mid: 15, Fine: 10}
	reg := newRegistryAt(t, 17, start)
	c := NewController(reg)

	for i := 0; i < MinEstimates-1; i++ {
		if adjusted, _ := c.AdjustRX(17, NominalIFCount+MaxIFOffset+1); adjusted {
			t.Fatalf("unexpected early adjustment")
		}
	}
	// Zero estimates interleaved must not push the window over the
	// threshold.
	for i := 0; i < 5; i++ {
		if adjusted, _ := c.AdjustRX(17, 0); adjusted {
			t.Fatalf("zero estimate must never trigger a correction")
		}
	}

	got, _ := reg.GetTuningCode(17, registry.RX)
	if got != start {
		t.Errorf("code should be untouched until a real window fills: got %+v", got)
	}
}

func TestAdjustRXIncrementsFineWhenAverageTooHigh(t *testing.T) {
	start := tuning.Code{Coarse: 20, Mid: 15, Fine: 10}
	reg := newRegistryAt(t, 17, start)
	c := NewController(reg)

	var adjustedAt int = -1
	for i := 0; i < WindowSize; i++ {
		adjusted, err := c.AdjustRX(17, NominalIFCount+MaxIFOffset+1)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if adjusted {
			adjustedAt = i
			break
		}
	}
	if adjustedAt != MinEstimates-1 {
		t.Fatalf("expected correction at sample index %d, got %d", MinEstimates-1, adjustedAt)
	}

	got, _ := reg.GetTuningCode(17, registry.RX)
	want := tuning.Code{Coarse: 20, Mid: 15, Fine: 11}
	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestAdjustRXDecrementsFineWhenAverageTooLow(t *testing.T) {
	start := tuning.Code{Coarse: 20, Mid: 15, Fine: 10}
	reg := newRegistryAt(t, 17, start)
	c := NewController(reg)

	for i := 0; i < MinEstimates; i++ {
		if _, err := c.AdjustRX(17, NominalIFCount-MaxIFOffset-1); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	got, _ := reg.GetTuningCode(17, registry.RX)
	want := tuning.Code{Coarse: 20, Mid: 15, Fine: 9}
	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestAdjustRXWindowResetsAfterCorrection(t *testing.T) {
	start := tuning.Code{Coarse: 20, Mid: 15, Fine: 10}
	reg := newRegistryAt(t, 17, start)
	c := NewController(reg)

	for i := 0; i < MinEstimates; i++ {
		c.AdjustRX(17, NominalIFCount+MaxIFOffset+1)
	}
	// One correction has now fired. The window should be empty again, so
	// two more samples alone must not trigger a second correction.
	for i := 0; i < MinEstimates-1; i++ {
		if adjusted, _ := c.AdjustRX(17, NominalIFCount+MaxIFOffset+1); adjusted {
			t.Fatalf("unexpected second correction before window refilled")
		}
	}
}
