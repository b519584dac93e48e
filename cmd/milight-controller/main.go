// Command milight-controller drives Milight iBox2 bridges over UDP.
//
// The controller discovers bridges on the local network, opens a
// command session, and sends zone commands either as one-shot
// invocations or through an interactive console.
//
// Usage:
//
//	milight-controller [flags] <command> [args]
//	milight-controller [flags] -interactive
//
// Flags:
//
//	-config string      Configuration file path (YAML)
//	-addr string        Bridge address (default "10.10.100.254")
//	-port uint          Bridge UDP port (default 5987)
//	-zone uint          Target zone: 0 = all zones, 1-4 (default 0)
//	-lamp string        Lamp type: bridge, wallwasher, rgbww (default "rgbww")
//	-timeout duration   Reply timeout per attempt (default 2s)
//	-retries int        Retries per datagram (default 5)
//	-strict             Reject handshake replies with unexpected headers
//	-trace string       Write protocol trace to file (CBOR)
//	-verbose            Log protocol events to stderr
//	-interactive        Enable interactive command mode
//
// Explicit flags override config file values, which override the
// library defaults.
//
// Commands:
//
//	scan                   Discover bridges via broadcast
//	on | off | night       Power commands
//	white                  Switch to white mode at full intensity
//	brightness <0-100>     Set brightness percentage
//	saturation <0-100>     Set saturation percentage
//	color <name>           Set a named color (see 'colors' in interactive mode)
//	color-raw <0-255>      Set a raw color wheel position
//	temp <2700-6500>       Set white temperature in kelvin
//	mode <1-9>             Select a disco mode
//	speed-up | speed-down  Adjust disco mode speed
//	link | unlink          Pair or unpair bulbs listening on the zone
//
// Examples:
//
//	# Find bridges on the local network
//	milight-controller scan
//
//	# Turn zone 2 on and set warm white
//	milight-controller -zone 2 on
//	milight-controller -zone 2 temp 2700
//
//	# Interactive session against a specific bridge with tracing
//	milight-controller -addr 192.168.1.50 -trace run.mtrace -interactive
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/milight-protocol/milight-go/cmd/milight-controller/interactive"
	appconfig "github.com/milight-protocol/milight-go/internal/config"
	"github.com/milight-protocol/milight-go/pkg/connection"
	"github.com/milight-protocol/milight-go/pkg/control"
	"github.com/milight-protocol/milight-go/pkg/discovery"
	mlog "github.com/milight-protocol/milight-go/pkg/log"
	"github.com/milight-protocol/milight-go/pkg/session"
	"github.com/milight-protocol/milight-go/pkg/wire"
)

const usage = `Usage:
  milight-controller [flags] <command> [args]
  milight-controller [flags] -interactive

Commands:
  scan                   Discover bridges via broadcast
  on | off | night       Power commands
  white                  Switch to white mode at full intensity
  brightness <0-100>     Set brightness percentage
  saturation <0-100>     Set saturation percentage
  color <name>           Set a named color
  color-raw <0-255>      Set a raw color wheel position
  temp <2700-6500>       Set white temperature in kelvin
  mode <1-9>             Select a disco mode
  speed-up | speed-down  Adjust disco mode speed
  link | unlink          Pair or unpair bulbs listening on the zone

Use "milight-controller -help" for flag documentation.
`

// commandTimeout bounds a one-shot invocation end to end, including
// the handshake and every retry.
const commandTimeout = 30 * time.Second

// Options holds the raw command-line values before they are layered
// onto the configuration file.
type Options struct {
	ConfigFile  string
	Addr        string
	Port        uint
	Zone        uint
	Lamp        string
	Timeout     time.Duration
	Retries     int
	Strict      bool
	Trace       string
	Verbose     bool
	Interactive bool
}

var opts Options

func init() {
	flag.StringVar(&opts.ConfigFile, "config", "", "Configuration file path (YAML)")
	flag.StringVar(&opts.Addr, "addr", wire.DefaultBridgeAddr, "Bridge address")
	flag.UintVar(&opts.Port, "port", uint(wire.DefaultPort), "Bridge UDP port")
	flag.UintVar(&opts.Zone, "zone", 0, "Target zone (0 = all zones, 1-4)")
	flag.StringVar(&opts.Lamp, "lamp", "rgbww", "Lamp type: bridge, wallwasher, rgbww")
	flag.DurationVar(&opts.Timeout, "timeout", session.DefaultReceiveTimeout, "Reply timeout per attempt")
	flag.IntVar(&opts.Retries, "retries", session.DefaultRetries, "Retries per datagram")
	flag.BoolVar(&opts.Strict, "strict", false, "Reject handshake replies with unexpected headers")
	flag.StringVar(&opts.Trace, "trace", "", "Write protocol trace to file (CBOR)")
	flag.BoolVar(&opts.Verbose, "verbose", false, "Log protocol events to stderr")
	flag.BoolVar(&opts.Interactive, "interactive", false, "Enable interactive command mode")
}

func main() {
	flag.Parse()

	log.SetFlags(log.Ltime)
	if opts.Verbose {
		log.SetFlags(log.Ltime | log.Lmicroseconds)
	}

	settings, err := resolveSettings()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger, closeTrace, err := buildLogger()
	if err != nil {
		log.Fatalf("Failed to set up logging: %v", err)
	}
	defer closeTrace()

	if opts.Interactive {
		runInteractive(settings, logger)
		return
	}

	args := flag.Args()
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	if err := runCommand(settings, logger, args[0], args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// resolveSettings layers the configuration sources: library defaults,
// then the optional config file, then explicitly set flags.
func resolveSettings() (appconfig.Settings, error) {
	settings := appconfig.Defaults()

	if opts.ConfigFile != "" {
		file, err := appconfig.Load(opts.ConfigFile)
		if err != nil {
			return settings, err
		}
		if err := file.Apply(&settings); err != nil {
			return settings, err
		}
	}

	var visitErr error
	flag.Visit(func(f *flag.Flag) {
		if visitErr != nil {
			return
		}
		switch f.Name {
		case "addr":
			settings.Addr = opts.Addr
		case "port":
			if opts.Port > 0xFFFF {
				visitErr = fmt.Errorf("port must be 0-65535, got %d", opts.Port)
				return
			}
			settings.Port = uint16(opts.Port)
		case "zone":
			if opts.Zone > uint(wire.MaxZone) {
				visitErr = fmt.Errorf("zone must be 0-%d, got %d", wire.MaxZone, opts.Zone)
				return
			}
			settings.Zone = uint8(opts.Zone)
		case "lamp":
			lamp, ok := wire.LampTypeByName(opts.Lamp)
			if !ok {
				visitErr = fmt.Errorf("unknown lamp type %q (use bridge, wallwasher, rgbww)", opts.Lamp)
				return
			}
			settings.LampType = lamp
		case "timeout":
			if opts.Timeout <= 0 {
				visitErr = fmt.Errorf("timeout must be positive, got %s", opts.Timeout)
				return
			}
			settings.Timeout = opts.Timeout
		case "retries":
			if opts.Retries < 0 {
				visitErr = fmt.Errorf("retries must not be negative, got %d", opts.Retries)
				return
			}
			settings.Retries = opts.Retries
		case "strict":
			settings.StrictHandshake = opts.Strict
		}
	})
	return settings, visitErr
}

// buildLogger assembles the protocol event sinks selected by -trace
// and -verbose. The returned func closes the trace file, if any.
func buildLogger() (mlog.Logger, func(), error) {
	var loggers []mlog.Logger
	closeTrace := func() {}

	if opts.Trace != "" {
		traceLogger, err := mlog.NewFileLogger(opts.Trace)
		if err != nil {
			return nil, closeTrace, fmt.Errorf("failed to create trace logger: %w", err)
		}
		closeTrace = func() { traceLogger.Close() }
		loggers = append(loggers, traceLogger)
		log.Printf("Protocol trace: %s", opts.Trace)
	}
	if opts.Verbose {
		loggers = append(loggers, mlog.NewSlogAdapter(slog.New(slog.NewTextHandler(os.Stderr, nil))))
	}

	// Only return non-nil when a sink is configured to avoid the
	// typed-nil interface issue.
	switch len(loggers) {
	case 0:
		return nil, closeTrace, nil
	case 1:
		return loggers[0], closeTrace, nil
	default:
		return mlog.NewMultiLogger(loggers...), closeTrace, nil
	}
}

func runInteractive(settings appconfig.Settings, logger mlog.Logger) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ic, err := interactive.New(settings, logger)
	if err != nil {
		log.Fatalf("Failed to create interactive console: %v", err)
	}
	// Redirect log output through readline to avoid interfering with input
	log.SetOutput(ic.Stdout())
	go ic.Run(ctx, cancel)

	// Wait for shutdown signal or context cancellation
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Printf("Received signal: %v", sig)
	case <-ctx.Done():
		// Context was cancelled by the quit command
	}

	ic.Close()
}

func runCommand(settings appconfig.Settings, logger mlog.Logger, name string, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	if name == "scan" {
		return runScan(ctx, settings, logger)
	}

	sess := session.New(session.Config{
		Addr:            settings.Addr,
		Port:            settings.Port,
		ReceiveTimeout:  settings.Timeout,
		Retries:         settings.Retries,
		StrictHandshake: settings.StrictHandshake,
		Logger:          logger,
	})
	sup := connection.NewSupervisor(sess, connection.Config{
		ConnectionID: sess.ConnectionID(),
		Logger:       logger,
	})
	defer sup.Close()

	ctrl := control.NewController(sup, control.Config{
		Zone:         settings.Zone,
		LampType:     settings.LampType,
		ConnectionID: sess.ConnectionID(),
		Logger:       logger,
	})

	if err := sup.Connect(ctx); err != nil {
		return fmt.Errorf("connecting to %s:%d: %w", settings.Addr, settings.Port, err)
	}
	id1, id2 := sess.SessionIDs()
	log.Printf("Connected to %s:%d (session IDs 0x%02X 0x%02X)", settings.Addr, settings.Port, id1, id2)

	if err := dispatch(ctx, ctrl, name, args); err != nil {
		return err
	}
	log.Printf("OK")
	return nil
}

func runScan(ctx context.Context, settings appconfig.Settings, logger mlog.Logger) error {
	scanner := discovery.NewScanner(discovery.Config{
		Port:   settings.Port,
		Logger: logger,
	})

	log.Printf("Scanning for bridges on port %d...", settings.Port)
	bridges, err := scanner.Scan(ctx)
	if err != nil {
		return err
	}

	if len(bridges) == 0 {
		log.Printf("No bridges found")
		return nil
	}
	for _, b := range bridges {
		fmt.Printf("%s:%d  %s\n", b.Addr, b.Port, b.HardwareAddr)
	}
	return nil
}

func dispatch(ctx context.Context, ctrl *control.Controller, name string, args []string) error {
	switch name {
	case "on":
		return noArgs(name, args, func() error { return ctrl.LightOn(ctx) })
	case "off":
		return noArgs(name, args, func() error { return ctrl.LightOff(ctx) })
	case "night":
		return noArgs(name, args, func() error { return ctrl.Night(ctx) })
	case "white":
		return noArgs(name, args, func() error { return ctrl.White(ctx) })
	case "speed-up":
		return noArgs(name, args, func() error { return ctrl.ModeSpeedUp(ctx) })
	case "speed-down":
		return noArgs(name, args, func() error { return ctrl.ModeSpeedDown(ctx) })
	case "link":
		return noArgs(name, args, func() error { return ctrl.Link(ctx) })
	case "unlink":
		return noArgs(name, args, func() error { return ctrl.Unlink(ctx) })

	case "brightness":
		v, err := percentArg(name, args)
		if err != nil {
			return err
		}
		return ctrl.Brightness(ctx, v)

	case "saturation":
		v, err := percentArg(name, args)
		if err != nil {
			return err
		}
		return ctrl.Saturation(ctx, v)

	case "color":
		if len(args) != 1 {
			return fmt.Errorf("usage: color <name>")
		}
		color, ok := control.ColorByName(args[0])
		if !ok {
			return fmt.Errorf("unknown color %q (use %s)", args[0], colorNames())
		}
		return ctrl.Color(ctx, color)

	case "color-raw":
		if len(args) != 1 {
			return fmt.Errorf("usage: color-raw <0-255>")
		}
		v, err := strconv.ParseUint(args[0], 0, 8)
		if err != nil {
			return fmt.Errorf("color-raw wants a wheel position 0-255, got %q", args[0])
		}
		return ctrl.ColorRaw(ctx, uint8(v))

	case "temp":
		if len(args) != 1 {
			return fmt.Errorf("usage: temp <2700-6500>")
		}
		kelvin, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("temp wants kelvin, got %q", args[0])
		}
		return ctrl.Temperature(ctx, kelvin)

	case "mode":
		if len(args) != 1 {
			return fmt.Errorf("usage: mode <1-9>")
		}
		v, err := strconv.ParseUint(args[0], 10, 8)
		if err != nil {
			return fmt.Errorf("mode wants a number 1-9, got %q", args[0])
		}
		return ctrl.Mode(ctx, uint8(v))

	default:
		return fmt.Errorf("unknown command: %s", name)
	}
}

func noArgs(name string, args []string, fn func() error) error {
	if len(args) != 0 {
		return fmt.Errorf("%s takes no arguments", name)
	}
	return fn()
}

func percentArg(name string, args []string) (uint8, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("usage: %s <0-100>", name)
	}
	v, err := strconv.ParseUint(args[0], 10, 8)
	if err != nil || v > 100 {
		return 0, fmt.Errorf("%s wants a percentage 0-100, got %q", name, args[0])
	}
	return uint8(v), nil
}

func colorNames() string {
	names := make([]string, 0, len(control.Colors()))
	for _, c := range control.Colors() {
		names = append(names, strings.ToLower(c.String()))
	}
	return strings.Join(names, ", ")
}
