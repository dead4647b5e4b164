package daemon

import (
	"io"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/tebeka/atexit"

	"github.com/makerspace/doorctl/pkg/cardreader"
	"github.com/makerspace/doorctl/pkg/config"
	"github.com/makerspace/doorctl/pkg/controller"
	"github.com/makerspace/doorctl/pkg/lock"
	"github.com/makerspace/doorctl/pkg/panel"
	"github.com/makerspace/doorctl/pkg/serialport"
	"github.com/makerspace/doorctl/pkg/simulator"
	"github.com/makerspace/doorctl/pkg/types"
)

type indicator interface {
	controller.Indicator
	cardreader.IntensitySetter
}

// hardware is the set of device links the controller drives.
type hardware struct {
	lock   controller.LockLink
	panel  controller.PanelLink
	reader indicator
	swipes <-chan types.SwipeEvent

	// source polls the real reader. Nil when simulating.
	source *cardreader.Source
	// sim is the simulated door. Nil on real hardware.
	sim *simulator.Fixture

	closers   []io.Closer
	closeOnce sync.Once
}

func openHardware(conf *config.File, simulate bool) (*hardware, error) {
	if simulate {
		f := simulator.New(conf.SimulateCards()...)
		logrus.WithField("cards", conf.SimulateCards()).Warn("using simulated door, no devices will be opened")
		return &hardware{
			lock:   f,
			panel:  f,
			reader: f,
			swipes: f.Swipes(),
			sim:    f,
		}, nil
	}

	hw := &hardware{}
	atexit.Register(func() { hw.Close() })

	var chatter logrus.FieldLogger
	firmwareLog, logFile, err := lock.NewFirmwareLog(conf.FirmwareLog())
	if err != nil {
		logrus.WithError(err).Warn("lock firmware chatter will not be logged")
	} else {
		chatter = firmwareLog
		hw.closers = append(hw.closers, logFile)
	}

	lockConn, err := openConn(conf, "lock", conf.LockPort())
	if err != nil {
		hw.Close()
		return nil, err
	}
	hw.closers = append(hw.closers, lockConn)

	panelConn, err := openConn(conf, "panel", conf.PanelPort())
	if err != nil {
		hw.Close()
		return nil, err
	}
	hw.closers = append(hw.closers, panelConn)

	readerConn, err := openConn(conf, "reader", conf.ReaderPort())
	if err != nil {
		hw.Close()
		return nil, err
	}
	hw.closers = append(hw.closers, readerConn)

	reader := cardreader.New(readerConn)

	hw.lock = lock.New(lockConn, chatter)
	hw.panel = panel.New(panelConn)
	hw.reader = reader
	hw.source = cardreader.NewSource(reader, conf.ReaderPollInterval())
	hw.swipes = hw.source.Swipes()
	return hw, nil
}

func openConn(conf *config.File, name, path string) (*serialport.Conn, error) {
	port, err := serialport.Open(path, conf.BaudRate(), 0)
	if err != nil {
		return nil, err
	}
	logrus.WithFields(logrus.Fields{
		"device": name,
		"path":   path,
		"baud":   conf.BaudRate(),
	}).Info("opened serial port")
	return serialport.NewConn(name, port, conf.LineTimeout()), nil
}

// Close closes every opened device, newest first. It is safe to call
// more than once.
func (h *hardware) Close() {
	h.closeOnce.Do(func() {
		for i := len(h.closers) - 1; i >= 0; i-- {
			if err := h.closers[i].Close(); err != nil {
				logrus.WithError(err).Warn("failed to close device")
			}
		}
	})
}
