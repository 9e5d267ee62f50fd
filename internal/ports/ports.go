// Package ports defines the collaborator interfaces the calibration engine
// and feedback controller consume: the radio, the timer, the MAC, and the
// diagnostic UART. Each is an opaque device behind a small command surface,
// exactly as the component these interfaces replace treats its hardware.
//
// Architecture References:
//   - IEEE 802.15.4-2015 §8: PHY/MAC service primitives
package ports

import (
	"context"
	"time"

	"periph.io/x/periph/conn/physic"

	"github.com/open-scum/scumcal/internal/registry"
	"github.com/open-scum/scumcal/internal/tuning"
)

// Frame is a received radio frame, timestamped at the ISR boundary.
type Frame struct {
	Payload  []byte
	RSSI     int
	LQI      int
	CRCOK    bool
	Received time.Time
}

// FrameHandler is invoked from the radio's end-of-frame notification.
// Implementations must not block: the radio delivers this from interrupt
// context in the collaborator it abstracts.
type FrameHandler func(Frame)

// Radio is the calibration engine's view of the transceiver. A channel is
// an IEEE 802.15.4 channel number in [registry.MinChannel,
// registry.MaxChannel]; Mode selects which of the two tuning-code slots the
// implementation programs.
type Radio interface {
	// SetFrequency programs the oscillator with code for channel and mode.
	SetFrequency(ctx context.Context, channel int, mode registry.Mode, code tuning.Code) error

	// Frequency reports the nominal RF frequency for a channel, for
	// diagnostics; it does not depend on the currently programmed code.
	Frequency(channel int) physic.Frequency

	// RXEnable arms the receiver; RXNow starts listening immediately.
	RXEnable(ctx context.Context) error
	RXNow(ctx context.Context) error

	// TXEnable arms the transmitter; TXNow sends the loaded packet.
	TXEnable(ctx context.Context) error
	TXNow(ctx context.Context) error

	// LoadPacket stages a packet for the next TXNow.
	LoadPacket(ctx context.Context, payload []byte) error

	// Off powers the RF path down between operations.
	Off(ctx context.Context) error

	// SetEndFrameHandler registers the callback fired once per received or
	// transmitted frame. A nil handler deregisters.
	SetEndFrameHandler(h FrameHandler)
}

// TimerHandle identifies an outstanding one-shot timer so it can be
// cancelled.
type TimerHandle int

// Timer is the calibration engine's and feedback controller's view of the
// 32 kHz compare timer. Unlike the bare-metal single-callback timer this
// abstracts, it supports multiple concurrently outstanding one-shots, since
// a Go process has no single privileged ISR vector to share.
type Timer interface {
	// ScheduleOnce arms a one-shot timer that invokes cb after d elapses.
	// It returns a handle that Cancel can use before the timer fires.
	ScheduleOnce(d time.Duration, cb func()) TimerHandle

	// Cancel stops a timer before it fires. Canceling an already-fired or
	// unknown handle is a no-op.
	Cancel(h TimerHandle)
}

// MAC is the calibration engine's view of the 802.15.4e MAC: synchronization
// status and per-channel cell negotiation, used only to gate whether the
// engine should even attempt calibration on a channel.
type MAC interface {
	IsSynched() bool
	HasNegotiatedCell(channel int) bool
}

// UARTWriter is the diagnostic trace sink. Implementations must not retain
// the passed slice past the call.
type UARTWriter interface {
	WriteTrace(line []byte) error
}
