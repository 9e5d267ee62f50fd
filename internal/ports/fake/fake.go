// Package fake provides in-memory collaborators for testing the
// calibration engine and feedback controller without real hardware.
package fake

import (
	"context"
	"fmt"
	"sync"

	"periph.io/x/periph/conn/physic"

	"github.com/open-scum/scumcal/internal/ports"
	"github.com/open-scum/scumcal/internal/registry"
	"github.com/open-scum/scumcal/internal/tuning"
)

type codeKey struct {
	channel int
	mode    registry.Mode
}

// Radio is an in-memory ports.Radio. Tests drive it by calling DeliverFrame
// to simulate an end-of-frame notification, or by enabling error simulation
// to exercise a command-failure path.
type Radio struct {
	mu sync.Mutex

	codes   map[codeKey]tuning.Code
	handler ports.FrameHandler
	loaded  []byte
	rxOn    bool
	txOn    bool

	simulateErrors bool
	errorType      string
}

// NewRadio returns a Radio with no codes programmed and RX/TX off.
func NewRadio() *Radio {
	return &Radio{codes: make(map[codeKey]tuning.Code)}
}

func (r *Radio) SetFrequency(ctx context.Context, channel int, mode registry.Mode, code tuning.Code) error {
	if err := checkDone(ctx); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.simulateErrors {
		return r.simulatedError()
	}
	r.codes[codeKey{channel, mode}] = code
	return nil
}

// LastCode returns the most recently programmed code for a channel and
// mode, for test assertions.
func (r *Radio) LastCode(channel int, mode registry.Mode) tuning.Code {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.codes[codeKey{channel, mode}]
}

func (r *Radio) Frequency(channel int) physic.Frequency {
	// 802.15.4 channel 11 sits at 2405 MHz, 5 MHz spacing.
	return physic.Frequency(2405+5*(channel-registry.MinChannel)) * physic.MegaHertz
}

func (r *Radio) RXEnable(ctx context.Context) error {
	if err := checkDone(ctx); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rxOn = true
	return nil
}

func (r *Radio) RXNow(ctx context.Context) error {
	return checkDone(ctx)
}

func (r *Radio) TXEnable(ctx context.Context) error {
	if err := checkDone(ctx); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.txOn = true
	return nil
}

func (r *Radio) TXNow(ctx context.Context) error {
	return checkDone(ctx)
}

func (r *Radio) LoadPacket(ctx context.Context, payload []byte) error {
	if err := checkDone(ctx); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loaded = append(r.loaded[:0], payload...)
	return nil
}

// LastPayload returns the most recently loaded packet, for test
// assertions.
func (r *Radio) LastPayload() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]byte(nil), r.loaded...)
}

func (r *Radio) Off(ctx context.Context) error {
	if err := checkDone(ctx); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rxOn = false
	r.txOn = false
	return nil
}

func (r *Radio) SetEndFrameHandler(h ports.FrameHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handler = h
}

// DeliverFrame simulates an end-of-frame interrupt, invoking the registered
// handler synchronously.
func (r *Radio) DeliverFrame(f ports.Frame) {
	r.mu.Lock()
	h := r.handler
	r.mu.Unlock()
	if h != nil {
		h(f)
	}
}

// SetErrorSimulation makes every subsequent call fail with the named error
// class until DisableErrorSimulation is called.
func (r *Radio) SetErrorSimulation(errorType string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.simulateErrors = true
	r.errorType = errorType
}

func (r *Radio) DisableErrorSimulation() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.simulateErrors = false
}

func (r *Radio) simulatedError() error {
	switch r.errorType {
	case "BUSY":
		return fmt.Errorf("fake radio: busy")
	case "UNAVAILABLE":
		return fmt.Errorf("fake radio: unavailable")
	default:
		return fmt.Errorf("fake radio: internal error")
	}
}

func checkDone(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}
