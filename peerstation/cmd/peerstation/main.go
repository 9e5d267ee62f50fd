// Command peerstation runs the base-station side of the channel
// calibration protocol against a simulated mote, tracing the exchange to
// a rotating log file.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/open-scum/peerstation/internal/config"
	"github.com/open-scum/peerstation/internal/coordinator"
	"github.com/open-scum/peerstation/internal/scumsim"
	"github.com/open-scum/peerstation/internal/trace"
	"github.com/open-scum/peerstation/internal/wire"
)

const version = "1.0.0"

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	log.Printf("Starting peerstation v%s", version)

	// Step 1: Load configuration.
	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.LoadFile(*configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	log.Printf("Calibrating channels %d..%d", cfg.Channels.Start, cfg.Channels.End)

	// Step 2: Open the rotating trace log.
	traceLog := trace.New(cfg.Logging)
	defer func() {
		if err := traceLog.Close(); err != nil {
			log.Printf("Error closing trace log: %v", err)
		}
	}()
	log.Printf("Trace log writing to %s", cfg.Logging.File)

	// Step 3: Build the simulated mote and the timer.
	mote := scumsim.New(scumsim.Options{
		BaseCode: wire.Code{Coarse: 22, Mid: 15, Fine: 5},
	})
	timer := coordinator.NewSysTimer()
	defer timer.Stop()

	// Step 4: Assemble the coordinator.
	coord := coordinator.New(cfg, mote, timer)
	coord.Trace = traceLog
	if cfg.SmartStake.OutputPath != "" {
		sink, err := coordinator.NewFileSink(cfg.SmartStake.OutputPath)
		if err != nil {
			log.Fatalf("Failed to open sensor data sink: %v", err)
		}
		defer func() {
			if err := sink.Close(); err != nil {
				log.Printf("Error closing sensor data sink: %v", err)
			}
		}()
		coord.Sink = sink
		log.Printf("Sensor data appending to %s", cfg.SmartStake.OutputPath)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Step 5: Run the protocol.
	if err := coord.Start(ctx); err != nil {
		log.Fatalf("Failed to start coordinator: %v", err)
	}
	log.Printf("Coordinator started; state=%s", coord.State())

	// Step 6: Wait for shutdown.
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	sig := <-shutdown
	log.Printf("Received signal %v, shutting down; state=%s channel=%d", sig, coord.State(), coord.Channel())

	cancel()
	log.Println("peerstation shutdown complete")
}
