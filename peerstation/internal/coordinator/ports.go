package coordinator

import (
	"context"
	"time"
)

// Mode selects the RF path direction.
type Mode int

const (
	// TX is the transmit path.
	TX Mode = iota
	// RX is the receive path.
	RX
)

// Frame is a received radio frame.
type Frame struct {
	Payload  []byte
	RSSI     int
	LQI      int
	CRCOK    bool
	Received time.Time
}

// FrameHandler is invoked once per received frame. Implementations must
// not block; the radio delivers it from its completion interrupt.
type FrameHandler func(Frame)

// Radio is the coordinator's view of the transceiver. Unlike the mote,
// the peer station has a crystal, so tuning is by channel alone.
type Radio interface {
	SetFrequency(ctx context.Context, channel int, mode Mode) error
	RXEnable(ctx context.Context) error
	RXNow(ctx context.Context) error
	TXEnable(ctx context.Context) error
	TXNow(ctx context.Context) error
	LoadPacket(ctx context.Context, payload []byte) error
	Off(ctx context.Context) error
	SetEndFrameHandler(h FrameHandler)
}

// TimerHandle identifies an outstanding one-shot timer.
type TimerHandle int

// Timer abstracts the station's one-shot compare timer.
type Timer interface {
	ScheduleOnce(d time.Duration, cb func()) TimerHandle
	Cancel(h TimerHandle)
}
