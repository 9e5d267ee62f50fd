package fake

import (
	"sync"
	"time"

	"github.com/open-scum/scumcal/internal/ports"
)

// Timer is an in-memory ports.Timer with no wall-clock behavior: tests
// advance it explicitly by calling FireAll, which is how the
// calibration engine's timer-driven retry (property 10) is exercised
// deterministically.
type Timer struct {
	mu      sync.Mutex
	next    ports.TimerHandle
	pending map[ports.TimerHandle]func()
	order   []ports.TimerHandle
	lastArm time.Duration
}

// NewTimer returns an empty Timer.
func NewTimer() *Timer {
	return &Timer{pending: make(map[ports.TimerHandle]func())}
}

func (t *Timer) ScheduleOnce(d time.Duration, cb func()) ports.TimerHandle {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.next++
	h := t.next
	t.pending[h] = cb
	t.order = append(t.order, h)
	t.lastArm = d
	return h
}

// LastDuration returns the duration of the most recently scheduled timer,
// for asserting which timeout a caller armed.
func (t *Timer) LastDuration() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastArm
}

func (t *Timer) Cancel(h ports.TimerHandle) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.pending, h)
}

// FireAll invokes and clears every pending timer, in scheduling order. It
// returns the number fired.
func (t *Timer) FireAll() int {
	t.mu.Lock()
	order := t.order
	t.order = nil
	pending := t.pending
	t.pending = make(map[ports.TimerHandle]func())
	t.mu.Unlock()

	fired := 0
	for _, h := range order {
		if cb, ok := pending[h]; ok {
			cb()
			fired++
		}
	}
	return fired
}

// Pending reports how many timers are currently outstanding.
func (t *Timer) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}
