package feedback

import (
	"sync"

	"github.com/open-scum/scumcal/internal/registry"
)

// NominalIFCount is the zero-crossing count a perfectly tuned channel
// yields (2.5 MHz intermediate frequency).
const NominalIFCount = 500

// MaxIFOffset is the tolerance band around NominalIFCount treated as
// on-frequency.
const MaxIFOffset = 25

// WindowSize is the number of recent IF estimates averaged per correction.
const WindowSize = 10

// MinEstimates is the minimum window occupancy before a correction is
// considered, matching the firmware's integer-truncated WindowSize/3.
const MinEstimates = WindowSize / 3

type window struct {
	samples [WindowSize]uint16
	head    int
	full    bool
}

func (w *window) push(v uint16) {
	w.samples[w.head] = v
	w.head++
	if w.head == WindowSize {
		w.head = 0
		w.full = true
	}
}

func (w *window) count() int {
	if w.full {
		return WindowSize
	}
	return w.head
}

func (w *window) average() int {
	n := w.count()
	if n == 0 {
		return 0
	}
	sum := 0
	for i := 0; i < n; i++ {
		sum += int(w.samples[i])
	}
	return sum / n
}

func (w *window) reset() {
	*w = window{}
}

// Controller adjusts RX tuning codes in a registry.Registry based on a
// running average of IF estimates, one channel at a time.
type Controller struct {
	mu       sync.Mutex
	registry *registry.Registry
	windows  map[int]*window
}

// NewController returns a Controller that corrects codes in reg.
func NewController(reg *registry.Registry) *Controller {
	return &Controller{registry: reg, windows: make(map[int]*window)}
}

func (c *Controller) windowFor(channel int) *window {
	w, ok := c.windows[channel]
	if !ok {
		w = &window{}
		c.windows[channel] = w
	}
	return w
}

// AdjustRX feeds one frame's IF estimate into channel's window. It reports
// whether a correction was applied. A zero estimate is treated as invalid
// and never enters the window (property 15).
func (c *Controller) AdjustRX(channel int, ifEstimate uint16) (bool, error) {
	if ifEstimate == 0 {
		return false, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	w := c.windowFor(channel)
	w.push(ifEstimate)
	if w.count() < MinEstimates {
		return false, nil
	}

	avg := w.average()
	var tooHigh, tooLow bool
	switch {
	case avg > NominalIFCount+MaxIFOffset:
		tooHigh = true
	case avg < NominalIFCount-MaxIFOffset:
		tooLow = true
	default:
		return false, nil
	}

	code, err := c.registry.GetTuningCode(channel, registry.RX)
	if err != nil {
		return false, err
	}

	// Too-high IF means the local oscillator is running low; walk the fine
	// code up. Too-low is the symmetric case.
	if tooHigh {
		if err := code.IncrementFine(1); err != nil {
			return false, err
		}
	} else if tooLow {
		if err := code.DecrementFine(1); err != nil {
			return false, err
		}
	}

	if err := c.registry.SetTuningCode(channel, registry.RX, code); err != nil {
		return false, err
	}
	w.reset()
	return true, nil
}
