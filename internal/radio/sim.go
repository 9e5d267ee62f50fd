package radio

import (
	"context"
	"sync"
	"time"

	"periph.io/x/periph/conn/physic"

	"github.com/open-scum/scumcal/internal/ports"
	"github.com/open-scum/scumcal/internal/registry"
	"github.com/open-scum/scumcal/internal/tuning"
)

// SimOptions configures the simulated transceiver.
type SimOptions struct {
	// PeerCodes maps each channel to the tuning code at which the
	// simulated peer's transmissions are actually audible.
	PeerCodes map[int]tuning.Code

	// FineTolerance is how many fine codes off the peer code a programmed
	// code may be and still receive.
	FineTolerance int

	// ResponseDelay is how long after RXNow a peer frame arrives when the
	// programmed code is within tolerance.
	ResponseDelay time.Duration

	// PeerPayload builds the payload of a simulated peer frame for a
	// channel. Nil leaves payloads empty.
	PeerPayload func(channel int) []byte
}

// Sim is a software transceiver implementing ports.Radio. It models the
// one property the calibration engine actually probes: frames from the
// peer are only heard when the programmed tuning code lands close enough
// to the code the physics would demand. Everything else (RSSI, LQI,
// airtime) is fixed.
type Sim struct {
	mu      sync.Mutex
	opts    SimOptions
	handler ports.FrameHandler

	channel int
	mode    registry.Mode
	code    tuning.Code
	rxOn    bool

	pending *time.Timer
}

// NewSim creates a simulated transceiver.
func NewSim(opts SimOptions) *Sim {
	if opts.ResponseDelay == 0 {
		opts.ResponseDelay = 10 * time.Millisecond
	}
	return &Sim{opts: opts}
}

func (s *Sim) SetFrequency(ctx context.Context, channel int, mode registry.Mode, code tuning.Code) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channel = channel
	s.mode = mode
	s.code = code
	return nil
}

func (s *Sim) Frequency(channel int) physic.Frequency {
	// 802.15.4 2.4 GHz band: channel 11 at 2405 MHz, 5 MHz spacing.
	return physic.Frequency(2405+5*(channel-registry.MinChannel)) * physic.MegaHertz
}

func (s *Sim) RXEnable(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rxOn = true
	return nil
}

// RXNow starts listening. If the programmed code is within tolerance of
// the peer code for the current channel, a frame is delivered to the
// registered handler after the configured delay, modeling the peer's next
// transmission.
func (s *Sim) RXNow(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.rxOn || s.mode != registry.RX {
		return nil
	}
	if !s.audible() {
		return nil
	}

	channel := s.channel
	if s.pending != nil {
		s.pending.Stop()
	}
	s.pending = time.AfterFunc(s.opts.ResponseDelay, func() {
		s.deliver(channel)
	})
	return nil
}

func (s *Sim) audible() bool {
	peer, ok := s.opts.PeerCodes[s.channel]
	if !ok {
		return false
	}
	if s.code.Coarse != peer.Coarse || s.code.Mid != peer.Mid {
		return false
	}
	d := int(s.code.Fine) - int(peer.Fine)
	if d < 0 {
		d = -d
	}
	return d <= s.opts.FineTolerance
}

func (s *Sim) deliver(channel int) {
	s.mu.Lock()
	handler := s.handler
	payloadFn := s.opts.PeerPayload
	stillListening := s.rxOn && s.channel == channel
	s.mu.Unlock()

	if handler == nil || !stillListening {
		return
	}
	var payload []byte
	if payloadFn != nil {
		payload = payloadFn(channel)
	}
	handler(ports.Frame{
		Payload:  payload,
		RSSI:     -70,
		LQI:      255,
		CRCOK:    true,
		Received: time.Now(),
	})
}

func (s *Sim) TXEnable(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return nil
}

func (s *Sim) TXNow(ctx context.Context) error {
	return ctx.Err()
}

func (s *Sim) LoadPacket(ctx context.Context, payload []byte) error {
	return ctx.Err()
}

func (s *Sim) Off(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rxOn = false
	if s.pending != nil {
		s.pending.Stop()
		s.pending = nil
	}
	return nil
}

func (s *Sim) SetEndFrameHandler(h ports.FrameHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = h
}
