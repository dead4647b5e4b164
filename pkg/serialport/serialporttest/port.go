// Package serialporttest provides an in-memory serial port for tests.
package serialporttest

import (
	"io"
	"strings"
	"sync"
	"time"
)

// Port is a scripted serial port. Every complete line written to it is
// passed to Respond, and the returned text becomes readable input.
// Reads with no input behave like a serial read timeout: they return
// (0, nil) after a short pause.
type Port struct {
	// Respond produces the device output for one written line. It may be nil.
	Respond func(line string) string
	// OnIdle is called by Read when there is no input; tests use it to
	// advance a fake clock.
	OnIdle func()

	mu      sync.Mutex
	in      []byte
	partial []byte
	written []string
	closed  bool
	flushes int
}

// Read implements io.Reader.
func (p *Port) Read(b []byte) (int, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return 0, io.EOF
	}
	if len(p.in) == 0 {
		onIdle := p.OnIdle
		p.mu.Unlock()
		if onIdle != nil {
			onIdle()
		} else {
			time.Sleep(time.Millisecond)
		}
		return 0, nil
	}
	n := copy(b, p.in)
	p.in = p.in[n:]
	p.mu.Unlock()
	return n, nil
}

// Write implements io.Writer.
func (p *Port) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, io.ErrClosedPipe
	}
	p.partial = append(p.partial, b...)
	for {
		i := strings.IndexByte(string(p.partial), '\n')
		if i < 0 {
			break
		}
		line := string(p.partial[:i])
		p.partial = p.partial[i+1:]
		p.written = append(p.written, line)
		if p.Respond != nil {
			p.in = append(p.in, p.Respond(line)...)
		}
	}
	return len(b), nil
}

// ResetInputBuffer discards unread input.
func (p *Port) ResetInputBuffer() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.in = p.in[:0]
	p.flushes++
	return nil
}

// Close marks the port closed.
func (p *Port) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// Feed appends unsolicited device output.
func (p *Port) Feed(s string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.in = append(p.in, s...)
}

// Written returns every complete line written so far.
func (p *Port) Written() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.written...)
}

// Flushes returns how many times the input buffer was reset.
func (p *Port) Flushes() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.flushes
}

// Clock is a manually advanced time source.
type Clock struct {
	mu sync.Mutex
	t  time.Time
}

// NewClock returns a clock starting at t.
func NewClock(t time.Time) *Clock {
	return &Clock{t: t}
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

// Advance moves the clock forward.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}
