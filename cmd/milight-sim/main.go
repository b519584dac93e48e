// Command milight-sim runs an in-process Milight iBox2 bridge simulator.
//
// The simulator binds a real UDP socket and answers discovery probes,
// session handshakes, and zone commands exactly like a v6 bridge. An
// optional YAML fault script injects dropped datagrams and corrupted
// replies for exercising client retry behavior.
//
// Usage:
//
//	milight-sim [flags]
//
// Flags:
//
//	-addr string    UDP listen address (default "0.0.0.0:5987", port 0 picks a free port)
//	-mac string     Bridge hardware address (default F0:FE:6B:00:11:22)
//	-id1 uint       First session ID byte, 0-255
//	-id2 uint       Second session ID byte, 0-255
//	-script string  YAML fault script path
//	-trace string   Write protocol trace to file (CBOR)
//	-verbose        Log protocol events to stderr
//
// Identity values in the script override -mac, -id1, and -id2.
//
// Examples:
//
//	# Answer on the standard bridge port
//	milight-sim
//
//	# Custom identity with a trace file
//	milight-sim -mac AA:BB:CC:DD:EE:FF -id1 0x12 -id2 0x34 -trace sim.mtrace
//
//	# Replay a fault scenario
//	milight-sim -addr 127.0.0.1:0 -script drops.yaml -verbose
package main

import (
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/milight-protocol/milight-go/internal/bridgesim"
	mlog "github.com/milight-protocol/milight-go/pkg/log"
)

// Config holds the simulator configuration.
type Config struct {
	Addr    string
	MAC     string
	Script  string
	Trace   string
	Verbose bool
}

var (
	config Config
	id1    uint // Temp vars for flag parsing
	id2    uint
)

func init() {
	flag.StringVar(&config.Addr, "addr", "0.0.0.0:5987", "UDP listen address (port 0 picks a free port)")
	flag.StringVar(&config.MAC, "mac", "", "Bridge hardware address")
	flag.UintVar(&id1, "id1", 0, "First session ID byte (0-255)")
	flag.UintVar(&id2, "id2", 0, "Second session ID byte (0-255)")
	flag.StringVar(&config.Script, "script", "", "YAML fault script path")
	flag.StringVar(&config.Trace, "trace", "", "Write protocol trace to file (CBOR)")
	flag.BoolVar(&config.Verbose, "verbose", false, "Log protocol events to stderr")
}

func main() {
	flag.Parse()

	log.SetFlags(log.Ltime)
	if config.Verbose {
		log.SetFlags(log.Ltime | log.Lmicroseconds)
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if id1 > 0xFF || id2 > 0xFF {
		return fmt.Errorf("session ID bytes must be 0-255")
	}

	simConfig := bridgesim.Config{
		Addr:       config.Addr,
		SessionID1: byte(id1),
		SessionID2: byte(id2),
	}

	if config.MAC != "" {
		mac, err := net.ParseMAC(config.MAC)
		if err != nil {
			return fmt.Errorf("invalid -mac: %w", err)
		}
		simConfig.HardwareAddr = mac
	}

	if config.Script != "" {
		script, err := bridgesim.LoadScript(config.Script)
		if err != nil {
			return err
		}
		if err := script.Apply(&simConfig); err != nil {
			return fmt.Errorf("applying script %s: %w", config.Script, err)
		}
		log.Printf("Fault script: %s", config.Script)
	}

	// Set up protocol logging if requested
	var loggers []mlog.Logger
	var traceLogger *mlog.FileLogger
	if config.Trace != "" {
		var err error
		traceLogger, err = mlog.NewFileLogger(config.Trace)
		if err != nil {
			return fmt.Errorf("failed to create trace logger: %w", err)
		}
		defer traceLogger.Close()
		loggers = append(loggers, traceLogger)
		log.Printf("Protocol trace: %s", config.Trace)
	}
	if config.Verbose {
		loggers = append(loggers, mlog.NewSlogAdapter(slog.New(slog.NewTextHandler(os.Stderr, nil))))
	}
	switch len(loggers) {
	case 0:
	case 1:
		simConfig.Logger = loggers[0]
	default:
		simConfig.Logger = mlog.NewMultiLogger(loggers...)
	}

	sim := bridgesim.New(simConfig)
	if err := sim.Start(); err != nil {
		return err
	}

	simID1, simID2 := sim.SessionIDs()
	log.Printf("Simulator listening on %s", sim.Addr())
	log.Printf("Bridge identity: %s (session IDs 0x%02X 0x%02X)", sim.HardwareAddr(), simID1, simID2)

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh

	log.Printf("Received signal: %v", sig)
	sim.Stop()

	log.Printf("Answered %d discoveries, %d handshakes; %d commands seen, %d frames rejected",
		sim.Discoveries(), sim.Handshakes(), len(sim.Commands()), sim.Rejected())
	return nil
}
