package calibration

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/open-scum/scumcal/internal/ports"
	"github.com/open-scum/scumcal/internal/registry"
	"github.com/open-scum/scumcal/internal/tuning"
	"github.com/open-scum/scumcal/internal/wire"
)

// ErrChannelOutOfRange is returned for any channel outside the supported
// band.
var ErrChannelOutOfRange = registry.ErrChannelOutOfRange

// ErrInvalidSweepConfig is returned when Start is given a config whose
// ranges are inverted or out of bounds.
var ErrInvalidSweepConfig = tuning.ErrInvalidSweepConfig

// EventSink receives calibration progress notifications. Implementations
// must not block.
type EventSink interface {
	Publish(event string, channel int, mode registry.Mode, code tuning.Code)
}

// TraceSink receives diagnostic trace lines.
type TraceSink interface {
	Trace(line string)
}

type noopEvents struct{}

func (noopEvents) Publish(string, int, registry.Mode, tuning.Code) {}

type noopTrace struct{}

func (noopTrace) Trace(string) {}

// Timing bundles the engine's timer-driven tunables.
type Timing struct {
	RXTimeout     time.Duration
	RXLongTimeout time.Duration
}

// DefaultTiming matches the bare-metal firmware's 500ms/2s windows.
func DefaultTiming() Timing {
	return Timing{RXTimeout: 500 * time.Millisecond, RXLongTimeout: 2 * time.Second}
}

// Engine drives the two-phase calibration protocol for every channel in
// [registry.MinChannel, registry.MaxChannel].
type Engine struct {
	mu sync.Mutex

	radio    ports.Radio
	timer    ports.Timer
	registry *registry.Registry
	timing   Timing

	Events EventSink
	Trace  TraceSink

	state          State
	initialChannel int
	lastRXMid      uint8
	timerHandle    ports.TimerHandle

	channels [registry.NumChannels]ChannelInfo
}

// New returns an Engine in StateInit. radio and timer must be non-nil;
// reg is the registry calibration results are published to.
func New(radio ports.Radio, timer ports.Timer, reg *registry.Registry, timing Timing) *Engine {
	e := &Engine{
		radio:    radio,
		timer:    timer,
		registry: reg,
		timing:   timing,
		Events:   noopEvents{},
		Trace:    noopTrace{},
		state:    StateInit,
	}
	radio.SetEndFrameHandler(e.onEndFrame)
	return e
}

// State returns the engine's current state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func channelIndex(channel int) (int, error) {
	if channel < registry.MinChannel || channel > registry.MaxChannel {
		return 0, ErrChannelOutOfRange
	}
	return channel - registry.MinChannel, nil
}

// Start begins phase 1: an initial RX sweep on initialChannel within cfg,
// searching for one frame from the peer.
func (e *Engine) Start(ctx context.Context, initialChannel int, cfg tuning.SweepConfig) error {
	if _, err := channelIndex(initialChannel); err != nil {
		return err
	}
	if !cfg.Valid() {
		return ErrInvalidSweepConfig
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	sweep, err := tuning.NewSweep(cfg)
	if err != nil {
		return err
	}
	e.initialChannel = initialChannel
	idx := initialChannel - registry.MinChannel
	rx := &e.channels[idx].RX
	rx.sweep = sweep
	rx.SweepConfig = cfg
	rx.TuningCode = sweep.Code()
	rx.Seeded = true
	rx.NumFailures = 0
	rx.Calibrated = false

	e.state = StateInitialRX
	if err := e.tuneAndListen(ctx, initialChannel, rx.TuningCode); err != nil {
		return err
	}
	e.armInitialRXTimer(ctx)
	e.state = StateInitialRXIdle
	return nil
}

func (e *Engine) tuneAndListen(ctx context.Context, channel int, code tuning.Code) error {
	if err := e.radio.SetFrequency(ctx, channel, registry.RX, code); err != nil {
		return err
	}
	if err := e.radio.RXEnable(ctx); err != nil {
		return err
	}
	return e.radio.RXNow(ctx)
}

func (e *Engine) armInitialRXTimer(ctx context.Context) {
	d := e.timing.RXTimeout
	if e.lastRXMid >= MidCodeThreshold {
		d = e.timing.RXLongTimeout
	}
	e.timerHandle = e.timer.ScheduleOnce(d, func() { e.onInitialRXTimeout(ctx) })
}

func (e *Engine) onInitialRXTimeout(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateInitialRXIdle {
		return
	}

	idx := e.initialChannel - registry.MinChannel
	rx := &e.channels[idx].RX

	_ = e.radio.Off(ctx)
	rx.sweep.IncrementFineForSweep()
	rx.TuningCode = rx.sweep.Code()

	if err := e.tuneAndListen(ctx, e.initialChannel, rx.TuningCode); err != nil {
		e.Trace.Trace(fmt.Sprintf("initial rx retune failed: %v", err))
		return
	}
	e.armInitialRXTimer(ctx)
}

// onEndFrame is registered as the radio's frame handler. It is only
// meaningful during phase 1: phase 2 confirmation is driven by RXSuccess/
// RXFailure/TXSuccess/TXFailure, called by the MAC integration layer.
func (e *Engine) onEndFrame(f ports.Frame) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateInitialRXIdle || !f.CRCOK {
		return
	}

	idx := e.initialChannel - registry.MinChannel
	rx := &e.channels[idx].RX

	e.timer.Cancel(e.timerHandle)
	e.lastRXMid = rx.TuningCode.Mid
	rx.Calibrated = true
	rx.NumFailures = 0
	_ = e.registry.SetTuningCode(e.initialChannel, registry.RX, rx.TuningCode)
	e.Events.Publish("channel_calibrated", e.initialChannel, registry.RX, rx.TuningCode)
	e.Trace.Trace(fmt.Sprintf("RX %d %d.%d.%d", e.initialChannel, rx.TuningCode.Coarse, rx.TuningCode.Mid, rx.TuningCode.Fine))

	// If the frame is the peer's code packet, it carries the TX codes the
	// peer averaged from this mote's earlier transmissions; the first one
	// is a better TX seed than the fixed RX-to-TX offset.
	if pkt, err := wire.DecodeTXPacket(f.Payload); err == nil && pkt.Codes[0] != (tuning.Code{}) {
		tx := &e.channels[idx].TX
		tx.TuningCode = pkt.Codes[0]
		tx.Seeded = true
		_ = e.registry.SetTuningCode(e.initialChannel, registry.TX, pkt.Codes[0])
		e.Trace.Trace(fmt.Sprintf("TX %d %d.%d.%d", e.initialChannel, pkt.Codes[0].Coarse, pkt.Codes[0].Mid, pkt.Codes[0].Fine))
	}

	e.state = StateRemainingRX
	e.initRemainingSweeps()
}

// narrowWindow pulls code away from a coarse boundary and returns a
// SweepConfig spanning mid in [mid-(1+k), mid+(1+k)] (clamped to the code
// range) at the (possibly adjusted) coarse, and fine in [0, 24].
func narrowWindow(code tuning.Code, k uint8) (tuning.SweepConfig, tuning.Code, error) {
	threshold := 1 + k
	adjusted := code
	if err := adjusted.RolloverMid(threshold); err != nil {
		return tuning.SweepConfig{}, tuning.Code{}, err
	}

	low := int(adjusted.Mid) - int(threshold)
	if low < 0 {
		low = 0
	}
	high := int(adjusted.Mid) + int(threshold)
	if high > int(tuning.MaxCode) {
		high = int(tuning.MaxCode)
	}

	cfg := tuning.SweepConfig{
		Coarse: tuning.Range{Start: adjusted.Coarse, End: adjusted.Coarse},
		Mid:    tuning.Range{Start: uint8(low), End: uint8(high)},
		Fine:   tuning.Range{Start: 0, End: 24},
	}
	return cfg, adjusted, nil
}

// initRemainingSweeps implements phase 2's setup: narrow the initial
// channel's own RX window, seed its TX code, then extrapolate outward in
// both directions from the initial channel.
func (e *Engine) initRemainingSweeps() {
	idx := e.initialChannel - registry.MinChannel
	rxInfo := &e.channels[idx].RX

	cfg, adjusted, err := narrowWindow(rxInfo.TuningCode, 0)
	if err != nil {
		e.Trace.Trace(fmt.Sprintf("narrow window failed for channel %d: %v", e.initialChannel, err))
		return
	}
	rxInfo.TuningCode = adjusted
	rxInfo.SweepConfig = cfg
	sweep, _ := tuning.NewSweep(cfg)
	rxInfo.sweep = sweep
	_ = e.registry.SetTuningCode(e.initialChannel, registry.RX, adjusted)

	txInfo := &e.channels[idx].TX
	txCode := adjusted
	if txInfo.Seeded {
		// The peer already told us our TX code; narrow around it.
		txCode = txInfo.TuningCode
	} else {
		_ = txCode.EstimateTXFromRX()
	}
	txCfg, txAdjusted, err := narrowWindow(txCode, 0)
	if err == nil {
		txInfo.TuningCode = txAdjusted
		txInfo.SweepConfig = txCfg
		txSweep, _ := tuning.NewSweep(txCfg)
		txInfo.sweep = txSweep
		txInfo.Seeded = true
		_ = e.registry.SetTuningCode(e.initialChannel, registry.TX, txAdjusted)
	}

	e.extrapolate(idx, +1)
	e.extrapolate(idx, -1)
}

// extrapolate walks outward from channel index start in direction dir
// (+1 or -1), estimating each neighboring channel's RX and TX codes from
// the previous one and widening the sweep window by one mid code on each
// side when the estimate's coarse code differs from the previous channel's
// by two or more.
func (e *Engine) extrapolate(start int, dir int) {
	prevRX := e.channels[start].RX.TuningCode
	prevTX := e.channels[start].TX.TuningCode
	haveTX := e.channels[start].TX.Seeded

	for i := start + dir; i >= 0 && i < registry.NumChannels; i += dir {
		channel := i + registry.MinChannel

		rxEst := prevRX
		var err error
		if dir > 0 {
			err = rxEst.EstimateNextChannel()
		} else {
			err = rxEst.EstimatePreviousChannel()
		}
		if err != nil {
			e.Trace.Trace(fmt.Sprintf("rx extrapolation stopped at channel %d: %v", channel, err))
			return
		}
		widen := abs8(rxEst.Coarse, prevRX.Coarse) >= 2
		k := uint8(0)
		if widen {
			k = 1
		}
		cfg, adjusted, err := narrowWindow(rxEst, k)
		if err != nil {
			e.Trace.Trace(fmt.Sprintf("rx narrow window stopped at channel %d: %v", channel, err))
			return
		}
		rxInfo := &e.channels[i].RX
		rxInfo.TuningCode = adjusted
		rxInfo.SweepConfig = cfg
		sweep, _ := tuning.NewSweep(cfg)
		rxInfo.sweep = sweep
		rxInfo.Seeded = true
		_ = e.registry.SetTuningCode(channel, registry.RX, adjusted)
		prevRX = adjusted

		if haveTX {
			txEst := prevTX
			if dir > 0 {
				err = txEst.EstimateNextChannel()
			} else {
				err = txEst.EstimatePreviousChannel()
			}
			if err == nil {
				txCfg, txAdjusted, err := narrowWindow(txEst, k)
				if err == nil {
					txInfo := &e.channels[i].TX
					txInfo.TuningCode = txAdjusted
					txInfo.SweepConfig = txCfg
					txSweep, _ := tuning.NewSweep(txCfg)
					txInfo.sweep = txSweep
					txInfo.Seeded = true
					_ = e.registry.SetTuningCode(channel, registry.TX, txAdjusted)
					prevTX = txAdjusted
				}
			}
		}
	}
}

func abs8(a, b uint8) int {
	d := int(a) - int(b)
	if d < 0 {
		return -d
	}
	return d
}

// RXFailure records a failed RX attempt on channel, reported by the MAC.
// After MaxNumFailures consecutive failures the engine advances the
// channel's RX sweep by one step and republishes the new code; it does not
// mark the channel calibrated.
func (e *Engine) RXFailure(channel int) error {
	return e.failure(channel, registry.RX)
}

// TXFailure is the TX counterpart of RXFailure.
func (e *Engine) TXFailure(channel int) error {
	return e.failure(channel, registry.TX)
}

func (e *Engine) failure(channel int, mode registry.Mode) error {
	idx, err := channelIndex(channel)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	mi := e.modeInfo(idx, mode)

	// Once a channel's calibration has latched, its code belongs to the
	// feedback controller; a late failure report must not respin it.
	if mi.Calibrated {
		return nil
	}

	mi.NumFailures++
	if mi.NumFailures < MaxNumFailures {
		return nil
	}
	mi.NumFailures = 0

	if mi.sweep == nil {
		sweep, err := tuning.NewSweep(mi.SweepConfig)
		if err != nil {
			return err
		}
		mi.sweep = sweep
	}
	mi.sweep.IncrementFineForSweep()
	mi.TuningCode = mi.sweep.Code()
	if err := e.registry.SetTuningCode(channel, mode, mi.TuningCode); err != nil {
		return err
	}
	e.Events.Publish("sweep_advanced", channel, mode, mi.TuningCode)
	return nil
}

// RXSuccess latches calibrated=true for channel's RX code and, if the TX
// code was never seeded, estimates it from the RX code.
func (e *Engine) RXSuccess(channel int) error {
	return e.success(channel, registry.RX)
}

// TXSuccess is the TX counterpart of RXSuccess.
func (e *Engine) TXSuccess(channel int) error {
	return e.success(channel, registry.TX)
}

func (e *Engine) success(channel int, mode registry.Mode) error {
	idx, err := channelIndex(channel)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	mi := e.modeInfo(idx, mode)
	mi.Calibrated = true
	mi.NumFailures = 0
	e.Events.Publish("channel_calibrated", channel, mode, mi.TuningCode)

	if mode == registry.RX {
		tx := &e.channels[idx].TX
		if !tx.Seeded {
			code := mi.TuningCode
			if err := code.EstimateTXFromRX(); err != nil {
				return err
			}
			tx.TuningCode = code
			tx.Seeded = true
			if err := e.registry.SetTuningCode(channel, registry.TX, code); err != nil {
				return err
			}
		}
	}
	return nil
}

func (e *Engine) modeInfo(idx int, mode registry.Mode) *ModeInfo {
	if mode == registry.TX {
		return &e.channels[idx].TX
	}
	return &e.channels[idx].RX
}

// Calibrated reports whether channel's code for mode has latched.
func (e *Engine) Calibrated(channel int, mode registry.Mode) (bool, error) {
	idx, err := channelIndex(channel)
	if err != nil {
		return false, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.modeInfo(idx, mode).Calibrated, nil
}

// AllRXCalibrated reports whether every channel's RX code has latched.
func (e *Engine) AllRXCalibrated() bool {
	return e.allCalibrated(registry.RX)
}

// AllTXCalibrated reports whether every channel's TX code has latched.
func (e *Engine) AllTXCalibrated() bool {
	return e.allCalibrated(registry.TX)
}

func (e *Engine) allCalibrated(mode registry.Mode) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range e.channels {
		if !e.modeInfo(i, mode).Calibrated {
			return false
		}
	}
	return true
}
