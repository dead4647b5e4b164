package simulator

import (
	"context"
	"errors"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"golang.org/x/term"
)

// ErrQuit is returned by RunKeys when the quit key is pressed.
var ErrQuit = errors.New("simulator quit")

// KeyHelp describes the simulator keys.
const KeyHelp = "g/w/r/l: green/white/red/leave  d: door  h: handle  s: swipe  u: uncalibrate  q: quit"

// HandleKey applies one key press. It reports false for the quit key.
func (f *Fixture) HandleKey(k byte) bool {
	switch k {
	case 'g':
		f.Press(Green)
	case 'w':
		f.Press(White)
	case 'r':
		f.Press(Red)
	case 'l':
		f.Press(Leave)
	case 'd':
		logrus.WithField("door", f.ToggleDoor()).Info("simulated door")
	case 'h':
		logrus.WithField("handle", f.ToggleHandle()).Info("simulated handle")
	case 's':
		f.SwipeNext()
	case 'u':
		f.Uncalibrate()
		logrus.Info("simulated lock lost calibration")
	case 'q', 3: // 3 is Ctrl-C in raw mode
		return false
	default:
		logrus.Info(KeyHelp)
	}
	return true
}

// RunKeys reads single key presses from in until quit, EOF or ctx is done.
// When in is a terminal it is switched to raw mode for the duration.
func (f *Fixture) RunKeys(ctx context.Context, in *os.File) error {
	fd := int(in.Fd())
	if term.IsTerminal(fd) {
		old, err := term.MakeRaw(fd)
		if err != nil {
			return err
		}
		defer func() {
			if err := term.Restore(fd, old); err != nil {
				logrus.WithError(err).Warn("failed to restore terminal")
			}
		}()
	}

	logrus.Info(KeyHelp)
	keys := make(chan byte)
	errs := make(chan error, 1)
	go func() {
		buf := make([]byte, 1)
		for {
			if _, err := in.Read(buf); err != nil {
				errs <- err
				return
			}
			keys <- buf[0]
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-errs:
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		case k := <-keys:
			if !f.HandleKey(k) {
				return ErrQuit
			}
		}
	}
}
