package control

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/milight-protocol/milight-go/pkg/log"
	"github.com/milight-protocol/milight-go/pkg/wire"
)

// Control errors.
var (
	// ErrInvalidParameter indicates an operation argument outside its
	// domain. Nothing was sent.
	ErrInvalidParameter = errors.New("invalid parameter")
)

// Temperature domain in Kelvin.
const (
	MinTemperature = 2700
	MaxTemperature = 6500

	// temperatureStep is the Kelvin width of one wire unit.
	temperatureStep = (MaxTemperature - MinTemperature) / 100
)

// CommandSender transmits one encoded 11-byte command body.
// Implemented by session.Session and connection.Supervisor.
type CommandSender interface {
	Send(ctx context.Context, body []byte) error
}

// Config configures a Controller.
type Config struct {
	// Zone is the default zone for operations called without
	// WithZone. Zero addresses all zones.
	Zone uint8

	// LampType is the default lamp type for operations called without
	// WithLampType. The zero value selects wire.LampRGBWW; address
	// the bridge lamp per call via WithLampType(wire.LampBridge).
	LampType wire.LampType

	// ConnectionID tags command events. Pair it with the session's
	// connection id to correlate the layers of one trace.
	ConnectionID string

	// Logger receives command events. Nil disables logging.
	Logger log.Logger
}

// Controller issues zone commands over an established session.
type Controller struct {
	sender CommandSender
	config Config
	logger log.Logger
}

// NewController wraps sender with the control operations, applying
// defaults for zero-valued config fields.
func NewController(sender CommandSender, config Config) *Controller {
	if config.LampType == 0 {
		config.LampType = wire.LampRGBWW
	}
	return &Controller{
		sender: sender,
		config: config,
		logger: log.OrNoop(config.Logger),
	}
}

type options struct {
	zone     uint8
	lampType wire.LampType
}

// Option adjusts a single operation.
type Option func(*options)

// WithZone addresses the operation to the given zone. Zero addresses
// all zones.
func WithZone(zone uint8) Option {
	return func(o *options) { o.zone = zone }
}

// WithLampType addresses the operation to the given lamp type.
func WithLampType(lampType wire.LampType) Option {
	return func(o *options) { o.lampType = lampType }
}

// LightOn switches the zone on.
func (c *Controller) LightOn(ctx context.Context, opts ...Option) error {
	return c.power(ctx, "light_on", wire.PowerOn, opts)
}

// LightOff switches the zone off.
func (c *Controller) LightOff(ctx context.Context, opts ...Option) error {
	return c.power(ctx, "light_off", wire.PowerOff, opts)
}

// Night switches the zone to its dim night light.
func (c *Controller) Night(ctx context.Context, opts ...Option) error {
	return c.power(ctx, "night_on", wire.NightOn, opts)
}

// ModeSpeedUp speeds up the running animation mode.
func (c *Controller) ModeSpeedUp(ctx context.Context, opts ...Option) error {
	return c.power(ctx, "mode_speed_up", wire.ModeSpeedUp, opts)
}

// ModeSpeedDown slows down the running animation mode.
func (c *Controller) ModeSpeedDown(ctx context.Context, opts ...Option) error {
	return c.power(ctx, "mode_speed_down", wire.ModeSpeedDown, opts)
}

// White switches the zone to plain white, turning RGB off.
func (c *Controller) White(ctx context.Context, opts ...Option) error {
	zone, lampType, err := c.resolve(opts)
	if err != nil {
		return err
	}
	return c.send(ctx, "white_on", nil, wire.ZoneCommand{
		Op:       wire.OpControl,
		LampType: lampType,
		Sub:      wire.SubWhite,
		Data:     [4]byte{wire.WhiteOn},
		Zone:     zone,
	})
}

// ColorRaw sets the zone color to a raw wheel position. The byte is
// repeated over all four data slots on the wire.
func (c *Controller) ColorRaw(ctx context.Context, value uint8, opts ...Option) error {
	zone, lampType, err := c.resolve(opts)
	if err != nil {
		return err
	}
	v := int(value)
	return c.send(ctx, "color", &v, wire.ZoneCommand{
		Op:       wire.OpControl,
		LampType: lampType,
		Sub:      wire.SubColor,
		Data:     [4]byte{value, value, value, value},
		Zone:     zone,
	})
}

// Color sets the zone color to a named color.
func (c *Controller) Color(ctx context.Context, color Color, opts ...Option) error {
	return c.ColorRaw(ctx, uint8(color), opts...)
}

// Saturation sets the color saturation in percent (0..100). Applies
// while RGB is on.
func (c *Controller) Saturation(ctx context.Context, percent uint8, opts ...Option) error {
	if percent > 100 {
		return fmt.Errorf("%w: saturation %d not in 0..100", ErrInvalidParameter, percent)
	}
	zone, lampType, err := c.resolve(opts)
	if err != nil {
		return err
	}
	v := int(percent)
	return c.send(ctx, "saturation", &v, wire.ZoneCommand{
		Op:       wire.OpControl,
		LampType: lampType,
		Sub:      wire.SubSaturation,
		Data:     [4]byte{percent},
		Zone:     zone,
	})
}

// Brightness sets the brightness in percent (0..100). Zero is the
// dimmest setting, not off.
func (c *Controller) Brightness(ctx context.Context, percent uint8, opts ...Option) error {
	if percent > 100 {
		return fmt.Errorf("%w: brightness %d not in 0..100", ErrInvalidParameter, percent)
	}
	zone, lampType, err := c.resolve(opts)
	if err != nil {
		return err
	}
	v := int(percent)
	return c.send(ctx, "brightness", &v, wire.ZoneCommand{
		Op:       wire.OpControl,
		LampType: lampType,
		Sub:      wire.SubBrightness,
		Data:     [4]byte{percent},
		Zone:     zone,
	})
}

// Temperature sets the white color temperature in Kelvin
// (2700..6500), quantized to the wire's 38 K steps with half-up
// rounding.
func (c *Controller) Temperature(ctx context.Context, kelvin int, opts ...Option) error {
	if kelvin < MinTemperature || kelvin > MaxTemperature {
		return fmt.Errorf("%w: temperature %d K not in %d..%d",
			ErrInvalidParameter, kelvin, MinTemperature, MaxTemperature)
	}
	zone, lampType, err := c.resolve(opts)
	if err != nil {
		return err
	}
	v := kelvin
	return c.send(ctx, "temperature", &v, wire.ZoneCommand{
		Op:       wire.OpControl,
		LampType: lampType,
		Sub:      wire.SubWhite,
		Data:     [4]byte{temperatureByte(kelvin)},
		Zone:     zone,
	})
}

// Mode starts animation mode n (1..9).
func (c *Controller) Mode(ctx context.Context, mode uint8, opts ...Option) error {
	if mode < 1 || mode > 9 {
		return fmt.Errorf("%w: mode %d not in 1..9", ErrInvalidParameter, mode)
	}
	zone, lampType, err := c.resolve(opts)
	if err != nil {
		return err
	}
	v := int(mode)
	return c.send(ctx, "mode", &v, wire.ZoneCommand{
		Op:       wire.OpControl,
		LampType: lampType,
		Sub:      wire.SubMode,
		Data:     [4]byte{mode},
		Zone:     zone,
	})
}

// Link pairs the lamps listening in the given zone with the bridge.
// The lamps listen for roughly three seconds after power-on. Link
// addresses one concrete zone (1..4), never all zones.
func (c *Controller) Link(ctx context.Context, opts ...Option) error {
	return c.pair(ctx, "link", wire.OpLink, opts)
}

// Unlink removes the pairing of the lamps in the given zone. Like
// Link it must reach the lamps shortly after power-on and addresses
// one concrete zone (1..4).
func (c *Controller) Unlink(ctx context.Context, opts ...Option) error {
	return c.pair(ctx, "unlink", wire.OpUnlink, opts)
}

func (c *Controller) power(ctx context.Context, name string, value byte, opts []Option) error {
	zone, lampType, err := c.resolve(opts)
	if err != nil {
		return err
	}
	return c.send(ctx, name, nil, wire.ZoneCommand{
		Op:       wire.OpControl,
		LampType: lampType,
		Sub:      wire.SubPower,
		Data:     [4]byte{value},
		Zone:     zone,
	})
}

func (c *Controller) pair(ctx context.Context, name string, op byte, opts []Option) error {
	zone, lampType, err := c.resolve(opts)
	if err != nil {
		return err
	}
	if zone == wire.ZoneAll {
		return fmt.Errorf("%w: %s needs a concrete zone 1..%d", ErrInvalidParameter, name, wire.MaxZone)
	}
	return c.send(ctx, name, nil, wire.ZoneCommand{
		Op:       op,
		LampType: lampType,
		Zone:     zone,
	})
}

func (c *Controller) resolve(opts []Option) (uint8, wire.LampType, error) {
	o := options{zone: c.config.Zone, lampType: c.config.LampType}
	for _, opt := range opts {
		opt(&o)
	}
	if o.zone > wire.MaxZone {
		return 0, 0, fmt.Errorf("%w: zone %d not in 0..%d", ErrInvalidParameter, o.zone, wire.MaxZone)
	}
	return o.zone, o.lampType, nil
}

func (c *Controller) send(ctx context.Context, name string, value *int, cmd wire.ZoneCommand) error {
	c.logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: c.config.ConnectionID,
		Direction:    log.DirectionOut,
		Layer:        log.LayerCommand,
		Category:     log.CategoryFrame,
		Command: &log.CommandEvent{
			Name:     name,
			Zone:     cmd.Zone,
			LampType: uint8(cmd.LampType),
			Value:    value,
		},
	})

	if err := c.sender.Send(ctx, cmd.Bytes()); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// temperatureByte maps Kelvin onto the 0x00..0x64 wire scale.
func temperatureByte(kelvin int) byte {
	return byte((kelvin - MinTemperature + temperatureStep/2) / temperatureStep)
}
