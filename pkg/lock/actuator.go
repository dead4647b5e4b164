package lock

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/makerspace/doorctl/pkg/types"
)

// SetVerbosity sets the firmware debug level.
func (l *Link) SetVerbosity(level int) error {
	_, err := l.SendCommand(fmt.Sprintf("set_verbosity %d", level))
	return err
}

// Lock engages the bolt. A rejection carries the firmware's reason.
func (l *Link) Lock() error {
	logrus.Debug("lock: locking")
	_, err := l.SendCommand("lock")
	return err
}

// Unlock retracts the bolt.
func (l *Link) Unlock() error {
	logrus.Debug("lock: unlocking")
	_, err := l.SendCommand("unlock")
	return err
}

// Calibrate runs the actuator calibration. A reply that cannot be parsed
// does not fail the calibration; the returned range is nil in that case.
func (l *Link) Calibrate() (*types.CalibrationRange, error) {
	reply, err := l.SendCommand("calibrate")
	if err != nil {
		return nil, err
	}

	r, err := ParseCalibration(reply)
	if err != nil {
		logrus.WithError(err).Warn("calibration succeeded but ranges could not be parsed")
		return nil, nil
	}
	return r, nil
}

// ParseCalibration parses "OK <lockedLo>-<lockedHi> <unlockedLo>-<unlockedHi>".
func ParseCalibration(reply string) (*types.CalibrationRange, error) {
	parts := strings.Fields(reply)
	if len(parts) != 3 || parts[0] != "OK" {
		return nil, fmt.Errorf("unexpected calibration reply %q", reply)
	}
	locked, err := parseRange(parts[1])
	if err != nil {
		return nil, err
	}
	unlocked, err := parseRange(parts[2])
	if err != nil {
		return nil, err
	}
	return &types.CalibrationRange{Locked: locked, Unlocked: unlocked}, nil
}

func parseRange(s string) (types.Range, error) {
	// Positions may be negative, so split on the last '-' that follows a digit.
	i := strings.LastIndex(s, "-")
	if i <= 0 || i == len(s)-1 {
		return types.Range{}, fmt.Errorf("bad range %q", s)
	}
	if s[i-1] == '-' {
		i--
	}
	lo, err := strconv.Atoi(s[:i])
	if err != nil {
		return types.Range{}, fmt.Errorf("bad range %q: %w", s, err)
	}
	hi, err := strconv.Atoi(s[i+1:])
	if err != nil {
		return types.Range{}, fmt.Errorf("bad range %q: %w", s, err)
	}
	return types.Range{Low: lo, High: hi}, nil
}
