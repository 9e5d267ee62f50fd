package subsystem

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/open-scum/scumcal/internal/audit"
	"github.com/open-scum/scumcal/internal/calibration"
	"github.com/open-scum/scumcal/internal/config"
	"github.com/open-scum/scumcal/internal/feedback"
	"github.com/open-scum/scumcal/internal/ports"
	"github.com/open-scum/scumcal/internal/radio"
	"github.com/open-scum/scumcal/internal/registry"
	"github.com/open-scum/scumcal/internal/telemetry"
	"github.com/open-scum/scumcal/internal/tuning"
	"github.com/open-scum/scumcal/internal/wire"
)

// AuditLogger records subsystem operations with their outcomes.
type AuditLogger interface {
	LogAction(ctx context.Context, action string, channel int, result string, latency time.Duration)
	TraceCode(format audit.Format, direction string, channel int, coarse, mid, fine uint8)
}

// Subsystem is the one-per-mote frequency tuning stack: the channel
// registry, the calibration engine, the feedback controller, and the
// radio manager, wired to a telemetry hub and an audit trace. The MAC (or
// whatever plays its role) reports link events through the Report*
// methods and feeds received frames through HandleFrame.
type Subsystem struct {
	cfg *config.Tunables

	reg      *registry.Registry
	engine   *calibration.Engine
	feedback *feedback.Controller
	manager  *radio.Manager
	hub      *telemetry.Hub
	auditLog AuditLogger
	mac      ports.MAC

	seqMu sync.Mutex
	seq   uint8
}

// New wires a Subsystem from its collaborators. hub and auditLog may be
// nil; mac may be nil when no MAC gates calibration events.
func New(cfg *config.Tunables, rdo ports.Radio, timer ports.Timer, hub *telemetry.Hub, auditLog AuditLogger, mac ports.MAC) *Subsystem {
	reg := registry.New()
	engine := calibration.New(rdo, timer, reg, calibration.Timing{
		RXTimeout:     cfg.RXTimeout,
		RXLongTimeout: cfg.RXLongTimeout,
	})
	if hub != nil {
		engine.Events = hub
	}
	if auditLog != nil {
		if trace, ok := auditLog.(calibration.TraceSink); ok {
			engine.Trace = trace
		}
	}
	return &Subsystem{
		cfg:      cfg,
		reg:      reg,
		engine:   engine,
		feedback: feedback.NewController(reg),
		manager:  radio.NewManager(rdo, reg),
		hub:      hub,
		auditLog: auditLog,
		mac:      mac,
	}
}

// Registry exposes the authoritative tuning codes.
func (s *Subsystem) Registry() *registry.Registry {
	return s.reg
}

// Engine exposes the calibration engine, for state inspection.
func (s *Subsystem) Engine() *calibration.Engine {
	return s.engine
}

// Manager exposes the radio manager.
func (s *Subsystem) Manager() *radio.Manager {
	return s.manager
}

// StartCalibration begins phase 1 on the configured initial channel,
// sweeping the full code space.
func (s *Subsystem) StartCalibration(ctx context.Context) error {
	return s.StartCalibrationWithin(ctx, tuning.SweepConfig{
		Coarse: tuning.Range{Start: tuning.MinCode, End: tuning.MaxCode},
		Mid:    tuning.Range{Start: tuning.MinCode, End: tuning.MaxCode},
		Fine:   tuning.Range{Start: tuning.MinCode, End: tuning.MaxCode},
	})
}

// StartCalibrationWithin begins phase 1 bounded to cfg, for deployments
// that already know roughly where the die lands.
func (s *Subsystem) StartCalibrationWithin(ctx context.Context, sweepCfg tuning.SweepConfig) error {
	start := time.Now()
	err := s.engine.Start(ctx, s.cfg.InitialChannel, sweepCfg)
	if err != nil {
		s.logAudit(ctx, "startCalibration", s.cfg.InitialChannel, "INVALID_CONFIG", time.Since(start))
		return fmt.Errorf("failed to start calibration: %w", err)
	}
	s.logAudit(ctx, "startCalibration", s.cfg.InitialChannel, "SUCCESS", time.Since(start))
	return nil
}

// ReportRXSuccess records a successful reception on channel, latching the
// channel's RX calibration.
func (s *Subsystem) ReportRXSuccess(ctx context.Context, channel int) error {
	return s.report(ctx, "rxSuccess", channel, s.engine.RXSuccess)
}

// ReportRXFailure records a failed reception on channel.
func (s *Subsystem) ReportRXFailure(ctx context.Context, channel int) error {
	return s.report(ctx, "rxFailure", channel, s.engine.RXFailure)
}

// ReportTXSuccess records a successful transmission on channel.
func (s *Subsystem) ReportTXSuccess(ctx context.Context, channel int) error {
	return s.report(ctx, "txSuccess", channel, s.engine.TXSuccess)
}

// ReportTXFailure records a failed transmission on channel.
func (s *Subsystem) ReportTXFailure(ctx context.Context, channel int) error {
	return s.report(ctx, "txFailure", channel, s.engine.TXFailure)
}

func (s *Subsystem) report(ctx context.Context, action string, channel int, fn func(int) error) error {
	start := time.Now()

	// Link events arriving before the MAC has synchronized describe
	// frames that were not exchanged with the calibration peer.
	if s.mac != nil && !s.mac.IsSynched() {
		s.logAudit(ctx, action, channel, "NOT_SYNCHED", time.Since(start))
		return nil
	}

	err := fn(channel)
	latency := time.Since(start)
	if err != nil {
		s.logAudit(ctx, action, channel, "ERROR", latency)
		return err
	}
	s.logAudit(ctx, action, channel, "SUCCESS", latency)
	return nil
}

// TransmitReport sends the mote's tuning-code report on channel: the
// current TX code, a sequence number, and an optional command for the
// peer (CommandChangeChannel acknowledges the peer's code packet and
// advances its channel walk).
func (s *Subsystem) TransmitReport(ctx context.Context, channel int, command uint8) error {
	start := time.Now()

	code, err := s.reg.GetTuningCode(channel, registry.TX)
	if err != nil {
		s.logAudit(ctx, "transmitReport", channel, "INVALID_CHANNEL", time.Since(start))
		return err
	}

	s.seqMu.Lock()
	s.seq++
	pkt := wire.RXPacket{
		Sequence: s.seq,
		Channel:  uint8(channel),
		Command:  command,
		Code:     code,
	}
	s.seqMu.Unlock()

	if err := s.manager.TuneTX(ctx, channel, pkt.Encode()); err != nil {
		s.logAudit(ctx, "transmitReport", channel, "ERROR", time.Since(start))
		return err
	}
	if s.auditLog != nil {
		s.auditLog.TraceCode(audit.FormatNamed, "TX", channel, code.Coarse, code.Mid, code.Fine)
	}
	s.logAudit(ctx, "transmitReport", channel, "SUCCESS", time.Since(start))
	return nil
}

// HandleFrame feeds one received frame's IF estimate into the feedback
// controller. Frames on channels whose RX calibration has not latched are
// ignored: the calibration engine still owns those codes.
func (s *Subsystem) HandleFrame(ctx context.Context, channel int, ifEstimate uint16) error {
	start := time.Now()

	calibrated, err := s.engine.Calibrated(channel, registry.RX)
	if err != nil {
		s.logAudit(ctx, "handleFrame", channel, "INVALID_CHANNEL", time.Since(start))
		return err
	}
	if !calibrated {
		return nil
	}

	corrected, err := s.feedback.AdjustRX(channel, ifEstimate)
	if err != nil {
		s.logAudit(ctx, "handleFrame", channel, "ERROR", time.Since(start))
		return err
	}
	if !corrected {
		return nil
	}

	code, err := s.reg.GetTuningCode(channel, registry.RX)
	if err != nil {
		return err
	}
	if s.hub != nil {
		s.hub.Publish(telemetry.EventFeedbackCorrected, channel, registry.RX, code)
	}
	if s.auditLog != nil {
		s.auditLog.TraceCode(audit.FormatNamed, "RX", channel, code.Coarse, code.Mid, code.Fine)
	}
	s.logAudit(ctx, "handleFrame", channel, "CORRECTED", time.Since(start))
	return nil
}

// State reports where the subsystem is in its lifecycle: the engine's
// calibration state until every RX channel has latched, FEEDBACK after.
func (s *Subsystem) State() string {
	if s.engine.AllRXCalibrated() {
		return calibration.StateFeedback.String()
	}
	return s.engine.State().String()
}

func (s *Subsystem) logAudit(ctx context.Context, action string, channel int, result string, latency time.Duration) {
	if s.auditLog != nil {
		s.auditLog.LogAction(ctx, action, channel, result, latency)
	}
}
