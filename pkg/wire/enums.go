package wire

import "strings"

// LampType selects the device class a zone command addresses. It
// occupies byte 3 of the command body.
type LampType uint8

const (
	// LampBridge addresses the light built into the iBox itself.
	LampBridge LampType = 0x00

	// LampWallWasher addresses RGBW wall-washer fixtures.
	LampWallWasher LampType = 0x07

	// LampRGBWW addresses RGB/WW/CCT bulbs. This is the default for new
	// sessions.
	LampRGBWW LampType = 0x08
)

// String returns the lamp type name.
func (t LampType) String() string {
	switch t {
	case LampBridge:
		return "BRIDGE"
	case LampWallWasher:
		return "WALLWASHER"
	case LampRGBWW:
		return "RGBWW"
	default:
		return "UNKNOWN"
	}
}

// LampTypeByName looks up a lamp type by its name, case-insensitively.
// Hyphens and underscores are ignored, so "wall-washer" and
// "WALL_WASHER" both resolve to LampWallWasher.
func LampTypeByName(name string) (LampType, bool) {
	normalized := strings.ToUpper(name)
	normalized = strings.ReplaceAll(normalized, "-", "")
	normalized = strings.ReplaceAll(normalized, "_", "")
	switch normalized {
	case "BRIDGE":
		return LampBridge, true
	case "WALLWASHER":
		return LampWallWasher, true
	case "RGBWW":
		return LampRGBWW, true
	default:
		return 0, false
	}
}
