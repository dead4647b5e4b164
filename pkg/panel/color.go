package panel

import "fmt"

// Color is a display text color. The numeric value is the device color
// index sent on the wire.
type Color int

const (
	White Color = iota
	Blue
	Green
	Red
	Navy
	DarkGreen
	DarkCyan
	Cyan
	Maroon
	Olive
	Gray
	Grey
	Magenta
	Orange
	Yellow
)

var colorNames = [...]string{
	White:     "white",
	Blue:      "blue",
	Green:     "green",
	Red:       "red",
	Navy:      "navy",
	DarkGreen: "darkgreen",
	DarkCyan:  "darkcyan",
	Cyan:      "cyan",
	Maroon:    "maroon",
	Olive:     "olive",
	Gray:      "gray",
	Grey:      "grey",
	Magenta:   "magenta",
	Orange:    "orange",
	Yellow:    "yellow",
}

// Code returns the two-digit device color index.
func (c Color) Code() string {
	return fmt.Sprintf("%02d", int(c))
}

func (c Color) String() string {
	if c < 0 || int(c) >= len(colorNames) {
		return fmt.Sprintf("Color(%d)", int(c))
	}
	return colorNames[c]
}

// Valid reports whether the device knows the color.
func (c Color) Valid() bool {
	return c >= 0 && int(c) < len(colorNames)
}
