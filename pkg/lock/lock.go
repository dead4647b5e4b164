package lock

import (
	"io"
	"os"
	"strings"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/makerspace/doorctl/pkg/serialport"
)

// DebugPrefix marks firmware diagnostic lines. They are logged and skipped.
const DebugPrefix = "DEBUG"

// Link is a synchronous client for the lock actuator firmware.
type Link struct {
	conn    *serialport.Conn
	chatter logrus.FieldLogger
}

// New returns a Link talking over conn. Every exchange is written to
// chatter; pass a discarding logger to disable the audit trail.
func New(conn *serialport.Conn, chatter logrus.FieldLogger) *Link {
	if chatter == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		chatter = l
	}
	return &Link{
		conn:    conn,
		chatter: chatter,
	}
}

// NewFirmwareLog opens (appending) the file that receives the raw lock
// chatter.
func NewFirmwareLog(path string) (*logrus.Logger, io.Closer, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, pkgerrors.Wrapf(err, "failed to open firmware log %s", path)
	}
	l := logrus.New()
	l.SetOutput(f)
	l.SetLevel(logrus.DebugLevel)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:    true,
		DisableColors:    true,
		DisableQuote:     false,
		QuoteEmptyFields: true,
	})
	return l, f, nil
}

// SendCommand writes cmd, discards the firmware echo, skips debug lines and
// returns the first real reply line. A reply not starting with "OK" is
// returned as a *ReplyError.
func (l *Link) SendCommand(cmd string) (string, error) {
	var (
		reply string
		debug []string
		err   error
	)
	defer func() {
		entry := l.chatter.WithFields(logrus.Fields{
			"cmd":   cmd,
			"reply": reply,
		})
		if len(debug) > 0 {
			entry = entry.WithField("debug", debug)
		}
		if err != nil {
			entry.WithError(err).Warn("lock exchange failed")
			return
		}
		entry.Info("lock exchange")
	}()

	reply, debug, err = l.exchange(cmd)
	return reply, err
}

func (l *Link) exchange(cmd string) (string, []string, error) {
	l.conn.Lock()
	defer l.conn.Unlock()

	if err := l.conn.WriteLine(cmd); err != nil {
		return "", nil, err
	}

	// The firmware echoes every command.
	if _, err := l.conn.ReadLine(); err != nil {
		return "", nil, err
	}

	var debug []string
	for {
		line, err := l.conn.ReadLine()
		if err != nil {
			return "", debug, err
		}
		if strings.HasPrefix(line, DebugPrefix) {
			debug = append(debug, line)
			continue
		}
		if !strings.HasPrefix(line, "OK") {
			return line, debug, &ReplyError{Command: cmd, Reply: line}
		}
		return line, debug, nil
	}
}

// Close closes the serial connection.
func (l *Link) Close() error {
	return l.conn.Close()
}
