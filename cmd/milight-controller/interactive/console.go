// Package interactive provides the interactive command-line interface
// for milight-controller.
package interactive

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/chzyer/readline"

	appconfig "github.com/milight-protocol/milight-go/internal/config"
	"github.com/milight-protocol/milight-go/pkg/connection"
	"github.com/milight-protocol/milight-go/pkg/control"
	"github.com/milight-protocol/milight-go/pkg/discovery"
	mlog "github.com/milight-protocol/milight-go/pkg/log"
	"github.com/milight-protocol/milight-go/pkg/session"
	"github.com/milight-protocol/milight-go/pkg/wire"
)

// commandTimeout bounds a single console command, including the
// handshake and every retry.
const commandTimeout = 30 * time.Second

// Console is an interactive bridge control session.
type Console struct {
	settings appconfig.Settings
	logger   mlog.Logger
	rl       *readline.Instance

	sess *session.Session
	sup  *connection.Supervisor
	ctrl *control.Controller

	zone uint8
	lamp wire.LampType
}

// New creates an interactive console. The settings provide the
// defaults for connect, zone, and lamp type.
func New(settings appconfig.Settings, logger mlog.Logger) (*Console, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "milight> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}

	return &Console{
		settings: settings,
		logger:   logger,
		rl:       rl,
		zone:     settings.Zone,
		lamp:     settings.LampType,
	}, nil
}

// Stdout returns the writer for console output. Writing through it
// keeps output from clobbering the prompt line.
func (c *Console) Stdout() io.Writer {
	return c.rl.Stdout()
}

// Stderr returns the writer for console error output.
func (c *Console) Stderr() io.Writer {
	return c.rl.Stderr()
}

// Close tears down the session and the terminal.
func (c *Console) Close() {
	if c.sup != nil {
		c.sup.Close()
		c.sup = nil
		c.sess = nil
		c.ctrl = nil
	}
	c.rl.Close()
}

// Run reads and executes commands until the context is cancelled or
// the user quits.
func (c *Console) Run(ctx context.Context, cancel context.CancelFunc) {
	defer c.rl.Close()

	c.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := c.rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		} else if err != nil {
			fmt.Fprintf(c.rl.Stdout(), "Exiting...\n")
			cancel()
			return
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		fields := strings.Fields(line)
		command := strings.ToLower(fields[0])
		args := fields[1:]

		switch command {
		case "help", "?":
			c.printHelp()

		case "scan":
			c.handleScan()

		case "connect":
			c.handleConnect(args)

		case "disconnect":
			c.handleDisconnect()

		case "status":
			c.handleStatus()

		case "on":
			c.runControl(func(ctx context.Context) error { return c.ctrl.LightOn(ctx, c.options()...) })

		case "off":
			c.runControl(func(ctx context.Context) error { return c.ctrl.LightOff(ctx, c.options()...) })

		case "night":
			c.runControl(func(ctx context.Context) error { return c.ctrl.Night(ctx, c.options()...) })

		case "white":
			c.runControl(func(ctx context.Context) error { return c.ctrl.White(ctx, c.options()...) })

		case "brightness":
			c.handleBrightness(args)

		case "saturation":
			c.handleSaturation(args)

		case "color":
			c.handleColor(args)

		case "colors":
			c.printColors()

		case "color-raw":
			c.handleColorRaw(args)

		case "temp":
			c.handleTemperature(args)

		case "mode":
			c.handleMode(args)

		case "speed-up":
			c.runControl(func(ctx context.Context) error { return c.ctrl.ModeSpeedUp(ctx, c.options()...) })

		case "speed-down":
			c.runControl(func(ctx context.Context) error { return c.ctrl.ModeSpeedDown(ctx, c.options()...) })

		case "link":
			c.runControl(func(ctx context.Context) error { return c.ctrl.Link(ctx, c.options()...) })

		case "unlink":
			c.runControl(func(ctx context.Context) error { return c.ctrl.Unlink(ctx, c.options()...) })

		case "zone":
			c.handleZone(args)

		case "lamp":
			c.handleLamp(args)

		case "quit", "exit", "q":
			fmt.Fprintf(c.rl.Stdout(), "Exiting...\n")
			cancel()
			return

		default:
			fmt.Fprintf(c.rl.Stdout(), "Unknown command: %s (type 'help' for commands)\n", command)
		}
	}
}

func (c *Console) printHelp() {
	fmt.Fprintf(c.rl.Stdout(), `Available commands:
  scan                   Discover bridges via broadcast
  connect [addr [port]]  Open a session (defaults: %s:%d)
  disconnect             Close the current session
  status                 Show session state
  on | off | night       Power commands
  white                  Switch to white mode at full intensity
  brightness <0-100>     Set brightness percentage
  saturation <0-100>     Set saturation percentage
  color <name>           Set a named color
  colors                 List color names
  color-raw <0-255>      Set a raw color wheel position
  temp <2700-6500>       Set white temperature in kelvin
  mode <1-9>             Select a disco mode
  speed-up | speed-down  Adjust disco mode speed
  link | unlink          Pair or unpair bulbs listening on the zone
  zone <0-4>             Set the target zone (0 = all zones)
  lamp <type>            Set the lamp type (bridge, wallwasher, rgbww)
  help, ?                Show this help
  quit, exit, q          Exit
`, c.settings.Addr, c.settings.Port)
}

// options returns the per-command controller options for the current
// zone and lamp selection.
func (c *Console) options() []control.Option {
	return []control.Option{
		control.WithZone(c.zone),
		control.WithLampType(c.lamp),
	}
}

// runControl executes a controller call against the open session.
func (c *Console) runControl(fn func(ctx context.Context) error) {
	if c.ctrl == nil {
		fmt.Fprintf(c.rl.Stdout(), "Not connected (use 'connect')\n")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	if err := fn(ctx); err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Error: %v\n", err)
		return
	}
	fmt.Fprintf(c.rl.Stdout(), "OK\n")
}

func (c *Console) handleScan() {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	scanner := discovery.NewScanner(discovery.Config{
		Port:   c.settings.Port,
		Logger: c.logger,
	})

	fmt.Fprintf(c.rl.Stdout(), "Scanning for bridges on port %d...\n", c.settings.Port)
	bridges, err := scanner.Scan(ctx)
	if err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Error: %v\n", err)
		return
	}

	if len(bridges) == 0 {
		fmt.Fprintf(c.rl.Stdout(), "No bridges found\n")
		return
	}
	for _, b := range bridges {
		fmt.Fprintf(c.rl.Stdout(), "  %s:%d  %s\n", b.Addr, b.Port, b.HardwareAddr)
	}
}

func (c *Console) handleConnect(args []string) {
	if len(args) > 2 {
		fmt.Fprintf(c.rl.Stdout(), "Usage: connect [addr [port]]\n")
		return
	}

	addr := c.settings.Addr
	port := c.settings.Port
	if len(args) >= 1 {
		addr = args[0]
	}
	if len(args) == 2 {
		p, err := strconv.ParseUint(args[1], 10, 16)
		if err != nil {
			fmt.Fprintf(c.rl.Stdout(), "Invalid port: %s\n", args[1])
			return
		}
		port = uint16(p)
	}

	// Drop any existing session before opening a new one.
	if c.sup != nil {
		c.sup.Close()
		c.sup = nil
		c.sess = nil
		c.ctrl = nil
	}

	sess := session.New(session.Config{
		Addr:            addr,
		Port:            port,
		ReceiveTimeout:  c.settings.Timeout,
		Retries:         c.settings.Retries,
		StrictHandshake: c.settings.StrictHandshake,
		Logger:          c.logger,
	})
	sup := connection.NewSupervisor(sess, connection.Config{
		ConnectionID: sess.ConnectionID(),
		Logger:       c.logger,
	})
	ctrl := control.NewController(sup, control.Config{
		Zone:         c.zone,
		LampType:     c.lamp,
		ConnectionID: sess.ConnectionID(),
		Logger:       c.logger,
	})

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	if err := sup.Connect(ctx); err != nil {
		sup.Close()
		fmt.Fprintf(c.rl.Stdout(), "Error: connecting to %s:%d: %v\n", addr, port, err)
		return
	}

	c.sess = sess
	c.sup = sup
	c.ctrl = ctrl

	id1, id2 := sess.SessionIDs()
	fmt.Fprintf(c.rl.Stdout(), "Connected to %s:%d (session IDs 0x%02X 0x%02X)\n", addr, port, id1, id2)
}

func (c *Console) handleDisconnect() {
	if c.sup == nil {
		fmt.Fprintf(c.rl.Stdout(), "Not connected\n")
		return
	}

	c.sup.Close()
	c.sup = nil
	c.sess = nil
	c.ctrl = nil
	fmt.Fprintf(c.rl.Stdout(), "Disconnected\n")
}

func (c *Console) handleStatus() {
	fmt.Fprintf(c.rl.Stdout(), "Zone: %d  Lamp: %s\n", c.zone, strings.ToLower(c.lamp.String()))

	if c.sess == nil || !c.sess.IsConnected() {
		fmt.Fprintf(c.rl.Stdout(), "Not connected\n")
		return
	}

	id1, id2 := c.sess.SessionIDs()
	fmt.Fprintf(c.rl.Stdout(), "Connected to %s\n", c.sess.RemoteAddr())
	fmt.Fprintf(c.rl.Stdout(), "Session IDs: 0x%02X 0x%02X\n", id1, id2)
	fmt.Fprintf(c.rl.Stdout(), "Next sequence: %d\n", c.sess.Sequence())
}

func (c *Console) handleBrightness(args []string) {
	v, ok := c.percentArg("brightness", args)
	if !ok {
		return
	}
	c.runControl(func(ctx context.Context) error { return c.ctrl.Brightness(ctx, v, c.options()...) })
}

func (c *Console) handleSaturation(args []string) {
	v, ok := c.percentArg("saturation", args)
	if !ok {
		return
	}
	c.runControl(func(ctx context.Context) error { return c.ctrl.Saturation(ctx, v, c.options()...) })
}

func (c *Console) handleColor(args []string) {
	if len(args) != 1 {
		fmt.Fprintf(c.rl.Stdout(), "Usage: color <name> (type 'colors' for names)\n")
		return
	}

	color, ok := control.ColorByName(args[0])
	if !ok {
		fmt.Fprintf(c.rl.Stdout(), "Unknown color: %s (type 'colors' for names)\n", args[0])
		return
	}
	c.runControl(func(ctx context.Context) error { return c.ctrl.Color(ctx, color, c.options()...) })
}

func (c *Console) printColors() {
	for _, color := range control.Colors() {
		fmt.Fprintf(c.rl.Stdout(), "  %-13s 0x%02X\n", strings.ToLower(color.String()), uint8(color))
	}
}

func (c *Console) handleColorRaw(args []string) {
	if len(args) != 1 {
		fmt.Fprintf(c.rl.Stdout(), "Usage: color-raw <0-255>\n")
		return
	}

	v, err := strconv.ParseUint(args[0], 0, 8)
	if err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Invalid color value: %s\n", args[0])
		return
	}
	c.runControl(func(ctx context.Context) error { return c.ctrl.ColorRaw(ctx, uint8(v), c.options()...) })
}

func (c *Console) handleTemperature(args []string) {
	if len(args) != 1 {
		fmt.Fprintf(c.rl.Stdout(), "Usage: temp <2700-6500>\n")
		return
	}

	kelvin, err := strconv.Atoi(args[0])
	if err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Invalid temperature: %s\n", args[0])
		return
	}
	c.runControl(func(ctx context.Context) error { return c.ctrl.Temperature(ctx, kelvin, c.options()...) })
}

func (c *Console) handleMode(args []string) {
	if len(args) != 1 {
		fmt.Fprintf(c.rl.Stdout(), "Usage: mode <1-9>\n")
		return
	}

	v, err := strconv.ParseUint(args[0], 10, 8)
	if err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Invalid mode: %s\n", args[0])
		return
	}
	c.runControl(func(ctx context.Context) error { return c.ctrl.Mode(ctx, uint8(v), c.options()...) })
}

func (c *Console) handleZone(args []string) {
	if len(args) != 1 {
		fmt.Fprintf(c.rl.Stdout(), "Usage: zone <0-%d>\n", wire.MaxZone)
		return
	}

	v, err := strconv.ParseUint(args[0], 10, 8)
	if err != nil || v > uint64(wire.MaxZone) {
		fmt.Fprintf(c.rl.Stdout(), "Invalid zone: %s (use 0-%d)\n", args[0], wire.MaxZone)
		return
	}

	c.zone = uint8(v)
	if c.zone == wire.ZoneAll {
		fmt.Fprintf(c.rl.Stdout(), "Zone set to all zones\n")
		return
	}
	fmt.Fprintf(c.rl.Stdout(), "Zone set to %d\n", c.zone)
}

func (c *Console) handleLamp(args []string) {
	if len(args) != 1 {
		fmt.Fprintf(c.rl.Stdout(), "Usage: lamp <bridge|wallwasher|rgbww>\n")
		return
	}

	lamp, ok := wire.LampTypeByName(args[0])
	if !ok {
		fmt.Fprintf(c.rl.Stdout(), "Unknown lamp type: %s (use bridge, wallwasher, rgbww)\n", args[0])
		return
	}

	c.lamp = lamp
	fmt.Fprintf(c.rl.Stdout(), "Lamp type set to %s\n", strings.ToLower(lamp.String()))
}

func (c *Console) percentArg(name string, args []string) (uint8, bool) {
	if len(args) != 1 {
		fmt.Fprintf(c.rl.Stdout(), "Usage: %s <0-100>\n", name)
		return 0, false
	}

	v, err := strconv.ParseUint(args[0], 10, 8)
	if err != nil || v > 100 {
		fmt.Fprintf(c.rl.Stdout(), "Invalid percentage: %s (use 0-100)\n", args[0])
		return 0, false
	}
	return uint8(v), true
}
