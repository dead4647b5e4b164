package panel

import "fmt"

// NumSlots is the number of large-font text rows on the display.
const NumSlots = 5

// layouts maps a line count to the slots the lines occupy, top to bottom.
var layouts = [NumSlots + 1][]int{
	0: {},
	1: {2},
	2: {1, 3},
	3: {1, 2, 3},
	4: {0, 1, 2, 3},
	5: {0, 1, 2, 3, 4},
}

// Layout places up to NumSlots logical lines on the physical slots.
// Unused slots are empty strings.
func Layout(lines []string) ([NumSlots]string, error) {
	var slots [NumSlots]string
	if len(lines) > NumSlots {
		return slots, fmt.Errorf("%w: %d lines", ErrTooManyLines, len(lines))
	}
	for i, slot := range layouts[len(lines)] {
		slots[slot] = lines[i]
	}
	return slots, nil
}
