package radio

import (
	"sync"
	"time"

	"github.com/open-scum/scumcal/internal/ports"
)

// SysTimer is a wall-clock ports.Timer backed by time.AfterFunc. It
// stands in for the mote's 32 kHz compare timer when the subsystem runs
// as an ordinary process.
type SysTimer struct {
	mu      sync.Mutex
	next    ports.TimerHandle
	pending map[ports.TimerHandle]*time.Timer
}

// NewSysTimer returns an empty SysTimer.
func NewSysTimer() *SysTimer {
	return &SysTimer{pending: make(map[ports.TimerHandle]*time.Timer)}
}

func (t *SysTimer) ScheduleOnce(d time.Duration, cb func()) ports.TimerHandle {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.next++
	h := t.next
	t.pending[h] = time.AfterFunc(d, func() {
		t.mu.Lock()
		delete(t.pending, h)
		t.mu.Unlock()
		cb()
	})
	return h
}

func (t *SysTimer) Cancel(h ports.TimerHandle) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if timer, ok := t.pending[h]; ok {
		timer.Stop()
		delete(t.pending, h)
	}
}

// Stop cancels every outstanding timer.
func (t *SysTimer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for h, timer := range t.pending {
		timer.Stop()
		delete(t.pending, h)
	}
}
