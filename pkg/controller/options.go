package controller

import "time"

// FaultMode selects what happens after a fatal error.
type FaultMode string

const (
	// FaultExit sounds the alarm and terminates the process so the
	// supervisor restarts it.
	FaultExit FaultMode = "exit"
	// FaultWait shows a countdown; a key press or its expiry reinitialises
	// the controller.
	FaultWait FaultMode = "wait"
)

// Timing holds every duration the controller uses.
type Timing struct {
	// Tick is the polling interval.
	Tick time.Duration
	// EnterTime is how long the door stays unlocked after a valid card.
	EnterTime time.Duration
	// LeaveTime is how long to wait before locking after the Leave button.
	LeaveTime time.Duration
	// UnlockPeriod is how long Green keeps the door unlocked.
	UnlockPeriod time.Duration
	// UnlockWarn is the remaining time below which the display turns to a warning.
	UnlockWarn time.Duration
	// GatewayUnlockPeriod is how long a remote unlock lasts.
	GatewayUnlockPeriod time.Duration
	// EnterUnlockedWarn is how long an entry may take before alerting.
	EnterUnlockedWarn time.Duration
	// UnlockedAlertInterval is how often an unlocked door is re-reported.
	UnlockedAlertInterval time.Duration
	// TempStatus is how long a temporary message is shown.
	TempStatus time.Duration
	// FaultWait is the countdown shown in FaultWait mode.
	FaultWait time.Duration

	// AlarmRepetitions, AlarmShort and AlarmLong shape the two-tone alarm
	// sounded before exiting.
	AlarmRepetitions int
	AlarmShort       time.Duration
	AlarmLong        time.Duration
}

// DefaultTiming returns the production timings.
func DefaultTiming() Timing {
	return Timing{
		Tick:                  100 * time.Millisecond,
		EnterTime:             30 * time.Second,
		LeaveTime:             5 * time.Second,
		UnlockPeriod:          15 * time.Minute,
		UnlockWarn:            5 * time.Minute,
		GatewayUnlockPeriod:   30 * time.Second,
		EnterUnlockedWarn:     5 * time.Minute,
		UnlockedAlertInterval: 30 * time.Second,
		TempStatus:            10 * time.Second,
		FaultWait:             300 * time.Second,
		AlarmRepetitions:      10,
		AlarmShort:            500 * time.Millisecond,
		AlarmLong:             800 * time.Millisecond,
	}
}

// Options configures a Controller.
type Options struct {
	Timing    Timing
	FaultMode FaultMode
	// Location is the site time zone, used for the Thursday rule and the
	// panel clock.
	Location *time.Location
	// OpenWeekday and OpenHour define the weekly open evening: White opens
	// the space on OpenWeekday from OpenHour local time.
	OpenWeekday time.Weekday
	OpenHour    int
	// Verbosity is sent to the lock firmware at startup.
	Verbosity int
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		Timing:      DefaultTiming(),
		FaultMode:   FaultExit,
		Location:    time.Local,
		OpenWeekday: time.Thursday,
		OpenHour:    15,
		Verbosity:   1,
	}
}
