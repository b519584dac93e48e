package wire

// Zone command opcodes (byte 0 of the 11-byte body).
const (
	// OpControl carries every control primitive.
	OpControl byte = 0x31

	// OpLink pairs a lamp with a zone. Must be sent within a few seconds
	// of the lamp powering on.
	OpLink byte = 0x3D

	// OpUnlink unpairs a lamp from a zone.
	OpUnlink byte = 0x3E
)

// Control subcommands (byte 4 of the body when Op is OpControl).
const (
	// SubColor sets the raw color wheel position.
	SubColor byte = 0x01

	// SubSaturation sets color saturation in percent.
	SubSaturation byte = 0x02

	// SubBrightness sets brightness in percent.
	SubBrightness byte = 0x03

	// SubPower carries power on/off, night light, and mode speed.
	SubPower byte = 0x04

	// SubWhite carries plain white mode and color temperature.
	SubWhite byte = 0x05

	// SubMode selects an animation mode.
	SubMode byte = 0x06
)

// SubPower data values (byte 5 of the body).
const (
	PowerOn       byte = 0x01
	PowerOff      byte = 0x02
	ModeSpeedUp   byte = 0x03
	ModeSpeedDown byte = 0x04
	NightOn       byte = 0x05
)

// WhiteOn is the SubWhite data value that disables RGB and selects
// plain white.
const WhiteOn byte = 0x64

// Zone addressing.
const (
	// ZoneAll broadcasts a command to every linked zone.
	ZoneAll uint8 = 0

	// MaxZone is the highest individually addressable zone.
	MaxZone uint8 = 4

	// zoneMask limits the wire field to its low three bits.
	zoneMask = 0x07
)

// ZoneCommand is the 11-byte control payload carried by a command
// frame. A value is built fresh for each operation and never reused.
type ZoneCommand struct {
	// Op selects control, link, or unlink.
	Op byte

	// LampType selects the device class interpreting the command. It is
	// opaque to validation.
	LampType LampType

	// Sub is the control subcommand; zero for link and unlink.
	Sub byte

	// Data carries the subcommand parameters.
	Data [4]byte

	// Zone addresses zone 0 (all) through 4.
	Zone uint8
}

// Bytes returns the wire encoding of the command:
//
//	op 00 00 lampType sub d1 d2 d3 d4 zone 00
func (c ZoneCommand) Bytes() []byte {
	return []byte{
		c.Op, 0x00, 0x00, byte(c.LampType), c.Sub,
		c.Data[0], c.Data[1], c.Data[2], c.Data[3],
		c.Zone & zoneMask, 0x00,
	}
}
