package cardreader

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/makerspace/doorctl/pkg/serialport"
)

// CardIDLength is the number of characters in a valid card id.
const CardIDLength = 10

// ErrUnexpectedReply is returned when the reader answers something other
// than the protocol allows.
var ErrUnexpectedReply = errors.New("unexpected card reader reply")

// Pattern is an LED pattern command.
type Pattern string

const (
	PatternReady       Pattern = "P200R10SG"
	PatternWait        Pattern = "P10R0SGNN"
	PatternEnter       Pattern = "P250R8SGN"
	PatternNoEntry     Pattern = "P100R30SRN"
	PatternError       Pattern = "P5R10SGX10NX100RX100N"
	PatternOpen        Pattern = "P200R0SG"
	PatternWarnClosing Pattern = "P5R0SGX10NX100R"
)

// Sound is a buzzer command: frequency in Hz and duration in ms.
type Sound string

const (
	SoundUncalibrated Sound = "S500 500"
	SoundCannotLock   Sound = "S2500 100"
	SoundFaulty1      Sound = "S800 200"
	SoundFaulty2      Sound = "S1500 150"
)

// Reader is a client for the card reader firmware. It is safe for
// concurrent use; the poller and the controller share it.
type Reader struct {
	conn *serialport.Conn

	mu          sync.Mutex
	lastPattern Pattern
}

// New returns a Reader talking over conn.
func New(conn *serialport.Conn) *Reader {
	return &Reader{conn: conn}
}

// ReadCard polls for a card. It returns "" when no card is present or the
// id is malformed.
func (r *Reader) ReadCard() (string, error) {
	reply, err := r.conn.Exchange("C")
	if err != nil {
		return "", err
	}
	if !strings.HasPrefix(reply, "ID") {
		return "", fmt.Errorf("%w: expected ID..., got %q", ErrUnexpectedReply, reply)
	}
	id := strings.TrimSpace(reply[2:])
	if id != "" && len(id) != CardIDLength {
		logrus.WithField("card", id).Warn("invalid card id")
		return "", nil
	}
	return id, nil
}

// SetPattern sets the LED pattern. Repeating the current pattern is a no-op.
func (r *Reader) SetPattern(p Pattern) error {
	r.mu.Lock()
	if p == r.lastPattern {
		r.mu.Unlock()
		return nil
	}
	r.mu.Unlock()

	if err := r.send(string(p)); err != nil {
		return err
	}

	r.mu.Lock()
	r.lastPattern = p
	r.mu.Unlock()
	return nil
}

// PlaySound sounds the buzzer.
func (r *Reader) PlaySound(s Sound) error {
	return r.send(string(s))
}

// SetIntensity sets the LED brightness in percent.
func (r *Reader) SetIntensity(i Intensity) error {
	return r.send(fmt.Sprintf("I%d", int(i)))
}

// Close closes the serial connection.
func (r *Reader) Close() error {
	return r.conn.Close()
}

func (r *Reader) send(cmd string) error {
	reply, err := r.conn.Exchange(cmd)
	if err != nil {
		return err
	}
	if reply != "OK" {
		return fmt.Errorf("%w: expected OK, got %q in response to %q", ErrUnexpectedReply, reply, cmd)
	}
	return nil
}
