// Package scumsim simulates the mote's side of the calibration protocol,
// so the peer station binary can run the full exchange without hardware:
// bursts of tuning-code reports during the recording step, change-channel
// acknowledgments during the transmit step, and sensor data frames once
// calibration is done.
package scumsim

import (
	"context"
	"sync"
	"time"

	"github.com/open-scum/peerstation/internal/coordinator"
	"github.com/open-scum/peerstation/internal/wire"
)

// Options configures the simulated mote.
type Options struct {
	// ReportsPerChannel is how many tuning-code reports the mote sends
	// while the station is recording on a channel.
	ReportsPerChannel int

	// Interval is the spacing between simulated transmissions.
	Interval time.Duration

	// AckDelay is how long after receiving a code packet the mote
	// acknowledges it.
	AckDelay time.Duration

	// BaseCode is the tuning code the simulated sweep starts from on
	// channel 11; reports on higher channels raise the mid code by one for
	// every three channels above 11.
	BaseCode wire.Code
}

// Mote implements coordinator.Radio as seen from the peer station, while
// simulating the device on the other end of the link.
type Mote struct {
	mu      sync.Mutex
	opts    Options
	handler coordinator.FrameHandler

	channel int
	mode    coordinator.Mode
	loaded  []byte
	seq     uint8

	acked      map[int]bool
	generation int
}

// New creates a simulated mote.
func New(opts Options) *Mote {
	if opts.ReportsPerChannel == 0 {
		opts.ReportsPerChannel = 5
	}
	if opts.Interval == 0 {
		opts.Interval = 20 * time.Millisecond
	}
	if opts.AckDelay == 0 {
		opts.AckDelay = 2 * time.Millisecond
	}
	return &Mote{opts: opts, acked: make(map[int]bool)}
}

func (m *Mote) SetFrequency(ctx context.Context, channel int, mode coordinator.Mode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channel = channel
	m.mode = mode
	m.generation++
	return nil
}

func (m *Mote) RXEnable(context.Context) error { return nil }

// RXNow models what the mote does while the station listens: report
// frames during the recording step, sensor frames after calibration.
func (m *Mote) RXNow(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.mode != coordinator.RX {
		return nil
	}
	if m.acked[m.channel] {
		go m.sendSensorData(m.generation, m.channel)
		return nil
	}
	go m.sendReports(m.generation, m.channel)
	return nil
}

func (m *Mote) TXEnable(context.Context) error { return nil }

// TXNow delivers the loaded code packet to the simulated mote, which
// acknowledges it with a change-channel command after a short delay.
func (m *Mote) TXNow(context.Context) error {
	m.mu.Lock()
	payload := m.loaded
	m.mu.Unlock()

	pkt, err := wire.DecodeCodePacket(payload)
	if err != nil {
		return nil
	}
	time.AfterFunc(m.opts.AckDelay, func() {
		m.mu.Lock()
		m.acked[int(pkt.Channel)] = true
		m.seq++
		ackPkt := wire.ReportPacket{
			Sequence: m.seq,
			Channel:  pkt.Channel,
			Command:  wire.CommandChangeChannel,
		}
		m.mu.Unlock()
		m.deliver(ackPkt.Encode(), -55)
	})
	return nil
}

func (m *Mote) LoadPacket(ctx context.Context, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loaded = append([]byte(nil), payload...)
	return nil
}

func (m *Mote) Off(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.generation++
	return nil
}

func (m *Mote) SetEndFrameHandler(h coordinator.FrameHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handler = h
}

// sendReports emits a burst of tuning-code reports, sweeping the fine
// code the way the real mote does while calibrating its transmitter.
func (m *Mote) sendReports(generation, channel int) {
	for i := 0; i < m.opts.ReportsPerChannel; i++ {
		time.Sleep(m.opts.Interval)
		m.mu.Lock()
		stale := m.generation != generation || m.channel != channel
		m.seq++
		pkt := wire.ReportPacket{
			Sequence: m.seq,
			Channel:  uint8(channel),
			Code: wire.Code{
				Coarse: m.opts.BaseCode.Coarse,
				Mid:    m.opts.BaseCode.Mid + uint8(channel-11)/3,
				Fine:   m.opts.BaseCode.Fine + uint8(i),
			},
		}
		m.mu.Unlock()
		if stale {
			return
		}
		m.deliver(pkt.Encode(), -60)
	}
}

// sendSensorData emits sensor frames until the station retunes.
func (m *Mote) sendSensorData(generation, channel int) {
	for seq := 0; ; seq++ {
		time.Sleep(m.opts.Interval)
		m.mu.Lock()
		stale := m.generation != generation || m.channel != channel
		m.mu.Unlock()
		if stale {
			return
		}
		pkt := wire.SensorDataPacket{
			Sequence: uint8(seq),
			Channel:  uint8(channel),
			Outputs:  [wire.NumSensors]uint32{uint32(1000 + seq), uint32(2000 + seq), uint32(3000 + seq), uint32(4000 + seq)},
			Code:     m.opts.BaseCode,
		}
		m.deliver(pkt.Encode(), -62)
	}
}

func (m *Mote) deliver(payload []byte, rssi int) {
	m.mu.Lock()
	h := m.handler
	m.mu.Unlock()
	if h == nil {
		return
	}
	h(coordinator.Frame{
		Payload:  payload,
		RSSI:     rssi,
		LQI:      255,
		CRCOK:    true,
		Received: time.Now(),
	})
}
