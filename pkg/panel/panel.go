package panel

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/makerspace/doorctl/pkg/serialport"
	"github.com/makerspace/doorctl/pkg/types"
)

// SmallRows is the number of small-font rows.
const SmallRows = 10

// Link is a synchronous client for the display and keypad firmware.
type Link struct {
	conn *serialport.Conn
}

// New returns a Link talking over conn.
func New(conn *serialport.Conn) *Link {
	return &Link{conn: conn}
}

// Clear blanks the display.
func (l *Link) Clear() error {
	return l.send("C")
}

// WriteLine writes text to one row. Large-font rows are 0..NumSlots-1;
// small-font rows are 0..SmallRows-1. erase clears the rest of the row.
func (l *Link) WriteLine(slot int, text string, color Color, large, erase bool) error {
	rows := SmallRows
	if large {
		rows = NumSlots
	}
	if slot < 0 || slot >= rows {
		return fmt.Errorf("%w: %d", ErrBadSlot, slot)
	}
	if !color.Valid() {
		color = White
	}
	return l.send(FormatWrite(slot, text, color, large, erase))
}

// WriteLines lays out lines on the large-font slots and writes all of them,
// erasing unused slots. More than NumSlots lines is rejected without writing.
func (l *Link) WriteLines(lines []string, color Color) error {
	slots, err := Layout(lines)
	if err != nil {
		logrus.WithError(err).WithField("lines", lines).Error("cannot display text")
		return err
	}
	for i, text := range slots {
		if err := l.WriteLine(i, text, color, true, true); err != nil {
			return err
		}
	}
	return nil
}

// PollButtons returns the buttons pressed since the previous poll.
func (l *Link) PollButtons() (types.ButtonEdges, error) {
	reply, err := l.conn.Exchange("S")
	if err != nil {
		return types.ButtonEdges{}, err
	}
	return ParseButtons(reply)
}

// SetClock sets the clock shown on the display, formatted HH:MM.
func (l *Link) SetClock(hhmm string) error {
	return l.send("c" + hhmm)
}

// Close closes the serial connection.
func (l *Link) Close() error {
	return l.conn.Close()
}

func (l *Link) send(cmd string) error {
	reply, err := l.conn.Exchange(cmd)
	if err != nil {
		return err
	}
	if want := "OK " + cmd[:1]; reply != want {
		return fmt.Errorf("%w: expected %q, got %q in response to %q", ErrProtocolDesync, want, reply, cmd)
	}
	return nil
}

// FormatWrite encodes a text write command.
func FormatWrite(slot int, text string, color Color, large, erase bool) string {
	cmd := 't'
	if large {
		cmd = 'T'
	}
	e := '0'
	if erase {
		e = '1'
	}
	return fmt.Sprintf("%c%02d%s%c%s", cmd, slot, color.Code(), e, text)
}

// ParseButtons decodes an "S" poll reply: 'S' followed by four flags for
// green, white, red and leave.
func ParseButtons(reply string) (types.ButtonEdges, error) {
	if len(reply) < 5 || reply[0] != 'S' {
		return types.ButtonEdges{}, fmt.Errorf("%w: expected S reply, got %q", ErrProtocolDesync, reply)
	}
	return types.ButtonEdges{
		Green: reply[1] == '1',
		White: reply[2] == '1',
		Red:   reply[3] == '1',
		Leave: reply[4] == '1',
	}, nil
}
