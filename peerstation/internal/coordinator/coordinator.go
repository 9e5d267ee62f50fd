// Package coordinator drives the base-station side of the two-step
// channel calibration protocol, then hands the radio over to the
// post-calibration sensor RX mode.
//
// Step 1: on each channel in the configured range, record the tuning
// codes the mote reports while it sweeps its transmitter, advancing to
// the next channel when the inter-packet timeout expires. Step 2: walk
// the channels again, transmitting the averaged codes back to the mote
// and waiting for an acknowledgment whose change-channel command advances
// the walk. Once the walk passes the last channel, the coordinator
// switches to receiving sensor data frames.
package coordinator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/open-scum/peerstation/internal/config"
	"github.com/open-scum/peerstation/internal/wire"
)

// State is the coordinator's position in the protocol.
type State int

// StateInvalid is a poison value, never assigned by normal operation.
const StateInvalid State = -1

const (
	StateRX State = iota
	StateRXIdle
	StateRXReceived
	StateTX
	StateRXAck
	StateRXAckIdle
	StateRXAckReceived
	StateSmartStakeRX
	StateSmartStakeRXIdle
	StateSmartStakeRXReceived
)

func (s State) String() string {
	switch s {
	case StateRX:
		return "RX"
	case StateRXIdle:
		return "RX_IDLE"
	case StateRXReceived:
		return "RX_RECEIVED"
	case StateTX:
		return "TX"
	case StateRXAck:
		return "RX_ACK"
	case StateRXAckIdle:
		return "RX_ACK_IDLE"
	case StateRXAckReceived:
		return "RX_ACK_RECEIVED"
	case StateSmartStakeRX:
		return "SMART_STAKE_RX"
	case StateSmartStakeRXIdle:
		return "SMART_STAKE_RX_IDLE"
	case StateSmartStakeRXReceived:
		return "SMART_STAKE_RX_RECEIVED"
	default:
		return "INVALID"
	}
}

// TraceSink receives diagnostic trace lines.
type TraceSink interface {
	Printf(format string, args ...interface{})
}

// SmartStakeSink receives decoded sensor data frames.
type SmartStakeSink interface {
	Record(pkt wire.SensorDataPacket, rssi int) error
}

type noopTrace struct{}

func (noopTrace) Printf(string, ...interface{}) {}

type noopSink struct{}

func (noopSink) Record(wire.SensorDataPacket, int) error { return nil }

// Coordinator runs the protocol. Trace and Sink may be replaced before
// Start is called.
type Coordinator struct {
	mu sync.Mutex

	cfg   *config.Config
	radio Radio
	timer Timer

	Trace TraceSink
	Sink  SmartStakeSink

	ctx         context.Context
	state       State
	channel     int
	seq         uint8
	timerHandle TimerHandle

	// Codes recorded on the current channel during step 1, oldest first.
	recorded []wire.Code

	// Averaged codes per channel, filled as each channel's recording
	// window closes.
	averaged map[int][]wire.Code
}

// New creates a Coordinator in StateInvalid; Start begins the protocol.
func New(cfg *config.Config, radio Radio, timer Timer) *Coordinator {
	c := &Coordinator{
		cfg:      cfg,
		radio:    radio,
		timer:    timer,
		Trace:    noopTrace{},
		Sink:     noopSink{},
		state:    StateInvalid,
		channel:  cfg.Channels.Start,
		averaged: make(map[int][]wire.Code),
	}
	radio.SetEndFrameHandler(c.onEndFrame)
	return c
}

// State returns the coordinator's current protocol state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Channel returns the channel the coordinator is currently working.
func (c *Coordinator) Channel() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.channel
}

// AveragedCodes returns the averaged tuning codes recorded for a channel.
func (c *Coordinator) AveragedCodes(channel int) []wire.Code {
	c.mu.Lock()
	defer c.mu.Unlock()
	codes := c.averaged[channel]
	out := make([]wire.Code, len(codes))
	copy(out, codes)
	return out
}

// Start begins step 1 on the first configured channel.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ctx = ctx
	c.channel = c.cfg.Channels.Start
	c.recorded = c.recorded[:0]
	c.state = StateRX
	return c.enterRX()
}

func (c *Coordinator) rxTimeout() time.Duration {
	return time.Duration(c.cfg.Timing.RXTimeoutMs) * time.Millisecond
}

func (c *Coordinator) rxLongTimeout() time.Duration {
	return time.Duration(c.cfg.Timing.RXLongTimeoutMs) * time.Millisecond
}

func (c *Coordinator) txTimeout() time.Duration {
	return time.Duration(c.cfg.Timing.TXTimeoutUs) * time.Microsecond
}

// enterRX tunes to the current channel and listens for tuning-code
// reports. The first packet of a channel gets the long timeout.
func (c *Coordinator) enterRX() error {
	c.Trace.Printf("Channel %02d", c.channel)
	if err := c.radio.SetFrequency(c.ctx, c.channel, RX); err != nil {
		return fmt.Errorf("failed to tune channel %d: %w", c.channel, err)
	}
	if err := c.radio.RXEnable(c.ctx); err != nil {
		return err
	}
	if err := c.radio.RXNow(c.ctx); err != nil {
		return err
	}
	c.state = StateRXIdle
	c.timerHandle = c.timer.ScheduleOnce(c.rxLongTimeout(), c.onTimer)
	return nil
}

// onEndFrame is the radio's frame completion callback.
func (c *Coordinator) onEndFrame(f Frame) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// A frame with a bad CRC is dropped; the timer still governs
	// progress.
	if !f.CRCOK {
		return
	}

	switch c.state {
	case StateRXIdle:
		c.handleReport(f)
	case StateRXAckIdle:
		c.handleAck(f)
	case StateSmartStakeRXIdle:
		c.handleSensorData(f)
	}
}

// handleReport records one tuning code during step 1 and rearms the
// inter-packet timeout.
func (c *Coordinator) handleReport(f Frame) {
	pkt, err := wire.DecodeReportPacket(f.Payload)
	if err != nil {
		return
	}
	c.state = StateRXReceived

	// The mote zero-fills the code fields on packets that carry no
	// observation.
	if !pkt.Code.IsZero() {
		if len(c.recorded) >= c.cfg.Recording.MaxRecordedCodes {
			c.recorded = c.recorded[1:]
		}
		c.recorded = append(c.recorded, pkt.Code)
		c.Trace.Printf("+%02d %02d %02d %02d", c.channel, pkt.Code.Coarse, pkt.Code.Mid, pkt.Code.Fine)
	}

	c.timer.Cancel(c.timerHandle)
	timeout := c.rxTimeout()
	if int(pkt.Code.Mid) >= c.cfg.Recording.MidCodeThreshold {
		// The mote's coarse code is about to roll over; the next packet
		// will take longer to arrive.
		timeout = c.rxLongTimeout()
	}
	c.timerHandle = c.timer.ScheduleOnce(timeout, c.onTimer)
	c.state = StateRXIdle
}

// handleAck processes an acknowledgment during step 2. An ack carrying
// the change-channel command for the current channel advances the walk.
func (c *Coordinator) handleAck(f Frame) {
	pkt, err := wire.DecodeReportPacket(f.Payload)
	if err != nil {
		return
	}
	c.state = StateRXAckReceived

	if int(pkt.Channel) != c.channel || pkt.Command != wire.CommandChangeChannel {
		c.state = StateRXAckIdle
		return
	}

	c.timer.Cancel(c.timerHandle)
	c.channel++
	c.Trace.Printf("Channel %02d", c.channel)

	if c.channel > c.cfg.Channels.End {
		c.Trace.Printf("Channel calibration done.")
		c.enterSmartStake()
		return
	}
	c.state = StateRXAck
	c.transmit()
}

// handleSensorData decodes one post-calibration sensor frame.
func (c *Coordinator) handleSensorData(f Frame) {
	pkt, err := wire.DecodeSensorDataPacket(f.Payload)
	if err != nil {
		return
	}
	c.state = StateSmartStakeRXReceived

	if err := c.Sink.Record(pkt, f.RSSI); err != nil {
		c.Trace.Printf("sensor data sink failed: %v", err)
	}
	c.Trace.Printf("%03d %02d %02d %02d %02d %04d %04d %04d %04d %d",
		pkt.Sequence, pkt.Channel,
		pkt.Code.Coarse, pkt.Code.Mid, pkt.Code.Fine,
		pkt.Outputs[0], pkt.Outputs[1], pkt.Outputs[2], pkt.Outputs[3],
		f.RSSI)

	c.state = StateSmartStakeRXIdle
}

// onTimer is the one-shot timer callback.
func (c *Coordinator) onTimer() {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateRXIdle:
		// The recording window for this channel closed.
		c.averaged[c.channel] = AverageCodes(c.recorded, wire.NumTXCodes)
		c.recorded = c.recorded[:0]
		c.channel++

		if c.channel > c.cfg.Channels.End {
			// Step 1 complete; walk the channels again, transmitting.
			c.channel = c.cfg.Channels.Start
			c.state = StateTX
			c.transmit()
			return
		}
		c.state = StateRX
		if err := c.enterRX(); err != nil {
			c.Trace.Printf("failed to enter rx on channel %d: %v", c.channel, err)
		}
	case StateRXAck, StateRXAckIdle:
		// No acknowledgment arrived; retransmit.
		c.state = StateTX
		c.transmit()
	}
}

// transmit sends the averaged codes for the current channel and listens
// for the mote's acknowledgment.
func (c *Coordinator) transmit() {
	pkt := wire.CodePacket{
		Sequence: c.seq,
		Channel:  uint8(c.channel),
	}
	copy(pkt.Codes[:], c.averaged[c.channel])
	c.seq++

	if err := c.radio.SetFrequency(c.ctx, c.channel, TX); err != nil {
		c.Trace.Printf("failed to tune channel %d for tx: %v", c.channel, err)
		return
	}
	if err := c.radio.LoadPacket(c.ctx, pkt.Encode()); err != nil {
		c.Trace.Printf("failed to load packet: %v", err)
		return
	}
	if err := c.radio.TXEnable(c.ctx); err != nil {
		c.Trace.Printf("failed to enable tx: %v", err)
		return
	}
	if err := c.radio.TXNow(c.ctx); err != nil {
		c.Trace.Printf("failed to transmit: %v", err)
		return
	}
	c.state = StateRXAck

	// Listen for the acknowledgment on the same channel.
	if err := c.radio.SetFrequency(c.ctx, c.channel, RX); err != nil {
		c.Trace.Printf("failed to tune channel %d for ack: %v", c.channel, err)
		return
	}
	if err := c.radio.RXEnable(c.ctx); err != nil {
		c.Trace.Printf("failed to enable rx for ack: %v", err)
		return
	}
	if err := c.radio.RXNow(c.ctx); err != nil {
		c.Trace.Printf("failed to start rx for ack: %v", err)
		return
	}
	c.state = StateRXAckIdle
	c.timerHandle = c.timer.ScheduleOnce(c.txTimeout(), c.onTimer)
}

// enterSmartStake switches the radio to the sensor data channel.
func (c *Coordinator) enterSmartStake() {
	c.Trace.Printf("Starting SmartStake RX.")
	c.state = StateSmartStakeRX
	c.channel = c.cfg.SmartStake.Channel
	if err := c.radio.SetFrequency(c.ctx, c.channel, RX); err != nil {
		c.Trace.Printf("failed to tune sensor channel %d: %v", c.channel, err)
		return
	}
	if err := c.radio.RXEnable(c.ctx); err != nil {
		c.Trace.Printf("failed to enable sensor rx: %v", err)
		return
	}
	if err := c.radio.RXNow(c.ctx); err != nil {
		c.Trace.Printf("failed to start sensor rx: %v", err)
		return
	}
	c.state = StateSmartStakeRXIdle
}

// AverageCodes collapses an ordered list of recorded tuning codes into at
// most maxCodes averaged codes: each maximal run of identical (coarse,
// mid) pairs yields one code whose fine value is the mean of the run's
// first and last fine codes.
func AverageCodes(recorded []wire.Code, maxCodes int) []wire.Code {
	var out []wire.Code
	for i := 0; i < len(recorded); i++ {
		first := recorded[i]
		last := first
		for i+1 < len(recorded) &&
			recorded[i+1].Coarse == first.Coarse &&
			recorded[i+1].Mid == first.Mid {
			i++
			last = recorded[i]
		}
		out = append(out, wire.Code{
			Coarse: first.Coarse,
			Mid:    first.Mid,
			Fine:   (first.Fine + last.Fine) / 2,
		})
		if len(out) >= maxCodes {
			break
		}
	}
	return out
}
