package control

import (
	"fmt"
	"strings"
)

// Color is a named position on the 8-bit color wheel.
type Color uint8

// Named colors and their wheel positions.
const (
	Red         Color = 10
	Orange      Color = 25
	Yellow      Color = 40
	LightGreen  Color = 70
	Green       Color = 95
	LightBlue   Color = 120
	Blue        Color = 180
	LightPurple Color = 200
	Purple      Color = 240
)

// String returns the color name, or the hex wheel position for
// unnamed values.
func (c Color) String() string {
	switch c {
	case Red:
		return "RED"
	case Orange:
		return "ORANGE"
	case Yellow:
		return "YELLOW"
	case LightGreen:
		return "LIGHT_GREEN"
	case Green:
		return "GREEN"
	case LightBlue:
		return "LIGHT_BLUE"
	case Blue:
		return "BLUE"
	case LightPurple:
		return "LIGHT_PURPLE"
	case Purple:
		return "PURPLE"
	default:
		return fmt.Sprintf("0x%02X", uint8(c))
	}
}

// Colors lists the named colors in wheel order.
func Colors() []Color {
	return []Color{Red, Orange, Yellow, LightGreen, Green, LightBlue, Blue, LightPurple, Purple}
}

// ColorByName resolves a color name case-insensitively. Underscores
// and dashes are interchangeable ("light_green", "light-green").
func ColorByName(name string) (Color, bool) {
	normalized := strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
	for _, c := range Colors() {
		if c.String() == normalized {
			return c, true
		}
	}
	return 0, false
}
