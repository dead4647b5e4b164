package controller

import (
	"slices"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/makerspace/doorctl/pkg/panel"
)

// display keeps the status text shown on the panel. A temporary message
// hides the status until it expires; the status is then redrawn.
type display struct {
	panel PanelLink

	lines []string
	color panel.Color
	drawn bool

	temp      []string
	tempColor panel.Color
	tempUntil time.Time

	// err is the first panel failure; the controller checks it after each tick.
	err error
}

func (d *display) setStatus(lines []string, color panel.Color) {
	if d.drawn && color == d.color && slices.Equal(lines, d.lines) {
		return
	}
	d.lines = slices.Clone(lines)
	d.color = color
	d.drawn = false
	if d.temp != nil {
		return
	}
	d.draw(d.lines, d.color)
	d.drawn = true
}

func (d *display) showTemp(lines []string, color panel.Color, until time.Time) {
	d.temp = slices.Clone(lines)
	d.tempColor = color
	d.tempUntil = until
	d.drawn = false
	d.draw(d.temp, d.tempColor)
}

// expire ends an expired temporary message and redraws the status.
func (d *display) expire(now time.Time) {
	if d.temp == nil || now.Before(d.tempUntil) {
		return
	}
	logrus.Debug("clearing temporary message")
	d.temp = nil
	d.draw(d.lines, d.color)
	d.drawn = true
}

// reset forgets what is on the panel so the next status is redrawn.
func (d *display) reset() {
	d.temp = nil
	d.drawn = false
	d.lines = nil
	d.err = nil
}

// shown returns the lines currently visible.
func (d *display) shown() []string {
	if d.temp != nil {
		return slices.Clone(d.temp)
	}
	return slices.Clone(d.lines)
}

func (d *display) draw(lines []string, color panel.Color) {
	if d.err != nil {
		return
	}
	if err := d.panel.WriteLines(lines, color); err != nil {
		d.err = err
	}
}

func (d *display) failed() error {
	return d.err
}
