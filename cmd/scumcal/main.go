// Command scumcal runs the frequency tuning subsystem against a simulated
// peer, exercising the full calibration lifecycle: the initial RX sweep,
// per-channel extrapolation, and the transition into feedback mode.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/open-scum/scumcal/internal/audit"
	"github.com/open-scum/scumcal/internal/config"
	"github.com/open-scum/scumcal/internal/radio"
	"github.com/open-scum/scumcal/internal/registry"
	"github.com/open-scum/scumcal/internal/subsystem"
	"github.com/open-scum/scumcal/internal/telemetry"
	"github.com/open-scum/scumcal/internal/tuning"
)

const version = "1.0.0"

func main() {
	log.Printf("Starting scumcal v%s", version)

	// Step 1: Load configuration.
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	log.Println("Configuration loaded successfully")

	// Step 2: Initialize telemetry hub.
	hub := telemetry.NewHub(256)
	log.Println("Telemetry hub initialized")

	// Step 3: Initialize the audit trace.
	trace, err := audit.NewLogger(logDir())
	if err != nil {
		log.Fatalf("Failed to initialize trace logger: %v", err)
	}
	log.Printf("Trace logger writing to %s", trace.FilePath())

	// Step 4: Build the simulated transceiver and timer. The peer is
	// audible on the initial channel at one specific code, which is what
	// the initial sweep has to find.
	peerCode := tuning.Code{Coarse: 22, Mid: 15, Fine: 14}
	sim := radio.NewSim(radio.SimOptions{
		PeerCodes:     map[int]tuning.Code{cfg.InitialChannel: peerCode},
		FineTolerance: 1,
		ResponseDelay: 5 * time.Millisecond,
	})
	timer := radio.NewSysTimer()
	defer timer.Stop()

	// Step 5: Assemble the tuning subsystem.
	sub := subsystem.New(cfg, sim, timer, hub, trace, nil)
	log.Println("Tuning subsystem assembled")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Step 6: Watch calibration progress.
	events := hub.Subscribe(0)
	go func() {
		for e := range events.C {
			log.Printf("event %s channel=%d mode=%s code=%d.%d.%d",
				e.Type, e.Channel, e.Mode, e.Code.Coarse, e.Code.Mid, e.Code.Fine)
		}
	}()

	// Step 7: Run the initial sweep. The sweep is bounded to the coarse
	// plane the sim peer lives on so the demo converges quickly; a real
	// deployment sweeps the full space.
	sweepCfg := tuning.SweepConfig{
		Coarse: tuning.Range{Start: peerCode.Coarse, End: peerCode.Coarse},
		Mid:    tuning.Range{Start: peerCode.Mid, End: peerCode.Mid},
		Fine:   tuning.Range{Start: 0, End: 31},
	}
	if err := sub.StartCalibrationWithin(ctx, sweepCfg); err != nil {
		log.Fatalf("Failed to start calibration: %v", err)
	}
	log.Printf("Initial RX sweep started on channel %d", cfg.InitialChannel)

	waitForInitialCalibration(ctx, sub, cfg.InitialChannel)
	log.Printf("Initial channel calibrated; state=%s", sub.State())

	// Step 8: Stand in for the MAC, confirming the extrapolated codes.
	for channel := registry.MinChannel; channel <= registry.MaxChannel; channel++ {
		if err := sub.ReportRXSuccess(ctx, channel); err != nil {
			log.Printf("rx success report failed on channel %d: %v", channel, err)
		}
	}
	log.Printf("All channels confirmed; state=%s", sub.State())

	// Step 9: Wait for shutdown.
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	sig := <-shutdown
	log.Printf("Received signal %v, shutting down", sig)

	cancel()
	hub.Stop()
	if err := trace.Close(); err != nil {
		log.Printf("Error closing trace logger: %v", err)
	}
	log.Println("scumcal shutdown complete")
}

// waitForInitialCalibration polls until the initial channel's RX
// calibration latches or ctx is cancelled.
func waitForInitialCalibration(ctx context.Context, sub *subsystem.Subsystem, channel int) {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		calibrated, err := sub.Engine().Calibrated(channel, registry.RX)
		if err == nil && calibrated {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func logDir() string {
	if dir := os.Getenv("SCUMCAL_LOG_DIR"); dir != "" {
		return dir
	}
	return "logs"
}
