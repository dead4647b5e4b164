package cardreader

import (
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Intensity is LED brightness in percent.
type Intensity int

const (
	IntensityLow    Intensity = 20
	IntensityMedium Intensity = 50
	IntensityHigh   Intensity = 100
)

// IntensityFor returns the LED brightness for an hour of the local day.
func IntensityFor(hour int) Intensity {
	switch {
	case hour < 5 || hour > 20:
		return IntensityLow
	case hour < 8 || hour > 16:
		return IntensityMedium
	default:
		return IntensityHigh
	}
}

// IntensitySetter is implemented by Reader.
type IntensitySetter interface {
	SetIntensity(Intensity) error
}

// ScheduleIntensity applies the brightness for the current hour now and
// at the top of every hour. c must be created with the site location.
func ScheduleIntensity(c *cron.Cron, r IntensitySetter) (cron.EntryID, error) {
	apply := func() {
		i := IntensityFor(time.Now().In(c.Location()).Hour())
		if err := r.SetIntensity(i); err != nil {
			logrus.WithError(err).Warn("failed to set reader LED intensity")
			return
		}
		logrus.WithField("intensity", int(i)).Debug("reader LED intensity set")
	}
	apply()
	return c.AddFunc("0 * * * *", apply)
}
