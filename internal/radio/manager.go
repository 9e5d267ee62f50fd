package radio

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/open-scum/scumcal/internal/ports"
	"github.com/open-scum/scumcal/internal/registry"
	"github.com/open-scum/scumcal/internal/tuning"
)

// Status strings for the RF path.
const (
	StatusOff = "off"
	StatusRX  = "rx"
	StatusTX  = "tx"
)

// State is a snapshot of what the RF path is currently doing.
type State struct {
	Status   string      `json:"status"`
	Channel  int         `json:"channel"`
	Mode     string      `json:"mode"`
	Code     tuning.Code `json:"code"`
	LastSeen time.Time   `json:"lastSeen,omitempty"`
}

// Manager programs the transceiver from the channel registry. The
// registry holds the authoritative tuning codes; the manager is the one
// place that reads a code back out and pushes it into the hardware, so
// everything above it can think in channels instead of codes.
type Manager struct {
	mu       sync.RWMutex
	radio    ports.Radio
	registry *registry.Registry
	state    State
}

// NewManager creates a manager driving radio with codes from reg.
func NewManager(radio ports.Radio, reg *registry.Registry) *Manager {
	return &Manager{
		radio:    radio,
		registry: reg,
		state:    State{Status: StatusOff},
	}
}

// TuneRX programs the radio with channel's RX tuning code and starts
// listening.
func (m *Manager) TuneRX(ctx context.Context, channel int) error {
	code, err := m.registry.GetTuningCode(channel, registry.RX)
	if err != nil {
		return fmt.Errorf("failed to resolve RX code for channel %d: %w", channel, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.radio.SetFrequency(ctx, channel, registry.RX, code); err != nil {
		return err
	}
	if err := m.radio.RXEnable(ctx); err != nil {
		return err
	}
	if err := m.radio.RXNow(ctx); err != nil {
		return err
	}
	m.state = State{Status: StatusRX, Channel: channel, Mode: registry.RX.String(), Code: code, LastSeen: time.Now()}
	return nil
}

// TuneTX programs the radio with channel's TX tuning code, loads payload,
// and transmits it.
func (m *Manager) TuneTX(ctx context.Context, channel int, payload []byte) error {
	code, err := m.registry.GetTuningCode(channel, registry.TX)
	if err != nil {
		return fmt.Errorf("failed to resolve TX code for channel %d: %w", channel, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.radio.SetFrequency(ctx, channel, registry.TX, code); err != nil {
		return err
	}
	if err := m.radio.LoadPacket(ctx, payload); err != nil {
		return err
	}
	if err := m.radio.TXEnable(ctx); err != nil {
		return err
	}
	if err := m.radio.TXNow(ctx); err != nil {
		return err
	}
	m.state = State{Status: StatusTX, Channel: channel, Mode: registry.TX.String(), Code: code, LastSeen: time.Now()}
	return nil
}

// Off powers the RF path down.
func (m *Manager) Off(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.radio.Off(ctx); err != nil {
		return err
	}
	m.state = State{Status: StatusOff}
	return nil
}

// GetState returns a snapshot of the RF path.
func (m *Manager) GetState() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}
