package serialport

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Conn is a synchronous line connection to one device. Only one request
// may be in flight; callers serialise through Exchange or by holding Lock.
type Conn struct {
	name    string
	port    Port
	timeout time.Duration

	mu      sync.Mutex
	buf     []byte
	pending []byte

	// now is replaced in tests.
	now func() time.Time
}

// NewConn wraps a port. timeout is the deadline for each reply line.
func NewConn(name string, port Port, timeout time.Duration) *Conn {
	return &Conn{
		name:    name,
		port:    port,
		timeout: timeout,
		buf:     make([]byte, 64),
		now:     time.Now,
	}
}

// SetClock replaces the time source used for line deadlines.
func (c *Conn) SetClock(now func() time.Time) {
	c.now = now
}

// Name returns the device name used in errors and logs.
func (c *Conn) Name() string {
	return c.name
}

// Lock acquires exclusive use of the connection for a multi-line exchange.
func (c *Conn) Lock() { c.mu.Lock() }

// Unlock releases the connection.
func (c *Conn) Unlock() { c.mu.Unlock() }

// WriteLine discards any unread input and writes s followed by a newline.
// The caller must hold the connection.
func (c *Conn) WriteLine(s string) error {
	if err := c.port.ResetInputBuffer(); err != nil {
		logrus.WithError(err).WithField("device", c.name).Debug("failed to flush input")
	}
	c.pending = c.pending[:0]

	logrus.WithField("device", c.name).Tracef("send %q", s)
	if _, err := io.WriteString(c.port, s+"\n"); err != nil {
		return fmt.Errorf("write %s: %w", c.name, err)
	}
	return nil
}

// ReadLine returns the next non-empty line with CR characters removed.
// The caller must hold the connection.
func (c *Conn) ReadLine() (string, error) {
	deadline := c.now().Add(c.timeout)
	var line []byte
	for {
		for len(c.pending) > 0 {
			b := c.pending[0]
			c.pending = c.pending[1:]
			switch b {
			case '\r':
			case '\n':
				if len(line) > 0 {
					logrus.WithField("device", c.name).Tracef("recv %q", line)
					return string(line), nil
				}
			default:
				line = append(line, b)
			}
		}

		if !c.now().Before(deadline) {
			return "", fmt.Errorf("%w: no reply from %s within %v (partial %q)", ErrCommsTimeout, c.name, c.timeout, line)
		}

		n, err := c.port.Read(c.buf)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return "", fmt.Errorf("%w: %s", ErrClosed, c.name)
			}
			return "", fmt.Errorf("read %s: %w", c.name, err)
		}
		c.pending = append(c.pending, c.buf[:n]...)
	}
}

// Exchange writes one command and returns the first reply line.
func (c *Conn) Exchange(cmd string) (string, error) {
	c.Lock()
	defer c.Unlock()

	if err := c.WriteLine(cmd); err != nil {
		return "", err
	}
	return c.ReadLine()
}

// Close closes the underlying port.
func (c *Conn) Close() error {
	return c.port.Close()
}
