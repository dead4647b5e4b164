package daemon

import (
	"context"
	"errors"
	"os"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/makerspace/doorctl/pkg/authority"
	"github.com/makerspace/doorctl/pkg/cardreader"
	"github.com/makerspace/doorctl/pkg/config"
	"github.com/makerspace/doorctl/pkg/controller"
	"github.com/makerspace/doorctl/pkg/events"
	"github.com/makerspace/doorctl/pkg/gateway"
	"github.com/makerspace/doorctl/pkg/notify"
	"github.com/makerspace/doorctl/pkg/simulator"
)

const (
	authorityTimeout = 60 * time.Second
	gatewayTimeout   = 10 * time.Second
	auditQueueSize   = 256
)

// door is the controller together with its background workers.
type door struct {
	hw        *hardware
	ctrl      *controller.Controller
	forwarder *authority.Forwarder
	sink      *notify.Sink
	syncer    *gateway.Syncer
	transport gateway.Transport
	cron      *cron.Cron
}

func newDoor(conf *config.File, hw *hardware, hub *events.EventHub, simulate bool) (*door, error) {
	opts, err := controllerOptions(conf)
	if err != nil {
		return nil, err
	}

	authToken, err := conf.AuthorityToken()
	if err != nil {
		if !simulate {
			return nil, err
		}
		logrus.WithError(err).Warn("no card authority token, every card check will fail")
	}
	auth := authority.NewClient(conf.AuthorityURL(), authToken, authorityTimeout)

	d := &door{
		hw:        hw,
		forwarder: authority.NewForwarder(auth, auditQueueSize),
		sink:      newSink(conf),
		cron:      cron.New(cron.WithLocation(opts.Location)),
	}

	d.transport, err = newTransport(conf)
	if err != nil {
		return nil, err
	}

	deps := controller.Deps{
		Lock:      hw.lock,
		Panel:     hw.panel,
		Reader:    hw.reader,
		Swipes:    hw.swipes,
		Authority: auth,
		Audit:     d.forwarder,
		Notifier:  d.sink,
		Events:    hub,
	}
	if d.transport != nil {
		d.syncer = gateway.NewSyncer(d.transport, conf.GatewaySyncSchedule())
		deps.Gateway = d.syncer
	}

	if _, err := cardreader.ScheduleIntensity(d.cron, hw.reader); err != nil {
		return nil, pkgerrors.Wrap(err, "failed to schedule reader intensity")
	}

	d.ctrl = controller.New(opts, deps)
	return d, nil
}

func controllerOptions(conf *config.File) (controller.Options, error) {
	loc, err := conf.Location()
	if err != nil {
		return controller.Options{}, err
	}
	weekday, err := config.ParseWeekday(conf.OpenWeekday())
	if err != nil {
		return controller.Options{}, err
	}

	opts := controller.DefaultOptions()
	opts.Location = loc
	opts.OpenWeekday = weekday
	opts.OpenHour = conf.OpenHour()
	opts.FaultMode = controller.FaultMode(conf.FaultMode())

	t := &opts.Timing
	t.Tick = conf.TickInterval()
	t.EnterTime = conf.EnterTime()
	t.LeaveTime = conf.LeaveTime()
	t.UnlockPeriod = conf.UnlockPeriod()
	t.UnlockWarn = conf.UnlockWarn()
	t.GatewayUnlockPeriod = conf.GatewayUnlockPeriod()
	t.EnterUnlockedWarn = conf.EnterUnlockedWarn()
	t.UnlockedAlertInterval = conf.UnlockedAlertInterval()
	t.TempStatus = conf.TempStatusTime()
	t.FaultWait = conf.FaultWait()
	t.AlarmRepetitions = conf.AlarmRepetitions()
	return opts, nil
}

func newSink(conf *config.File) *notify.Sink {
	active := conf.SlackActive()
	token, err := conf.SlackToken()
	if err != nil && active {
		logrus.WithError(err).Warn("no Slack token, notifications will only be logged")
		active = false
	}
	return notify.New(notify.Options{
		Token: token,
		Channels: notify.Channels{
			Monitoring: conf.SlackMonitoringChannel(),
			General:    conf.SlackGeneralChannel(),
			Testing:    conf.SlackTestingChannel(),
		},
		TestMode: conf.SlackTestMode(),
		Active:   active,
	})
}

func newTransport(conf *config.File) (gateway.Transport, error) {
	switch conf.GatewayTransport() {
	case config.GatewayHTTP:
		token, err := conf.GatewayToken()
		if err != nil {
			return nil, err
		}
		return gateway.NewHTTPTransport(conf.GatewayURL(), token, gatewayTimeout), nil
	case config.GatewayMQTT:
		t, err := gateway.DialMQTT(gateway.MQTTOptions{
			Broker:      conf.MQTTBroker(),
			ClientID:    conf.MQTTClientID(),
			Username:    conf.MQTTUsername(),
			Password:    conf.MQTTPassword(),
			TopicPrefix: conf.MQTTTopicPrefix(),
		})
		if err != nil {
			return nil, pkgerrors.Wrap(err, "failed to connect to MQTT gateway")
		}
		return t, nil
	default:
		logrus.Info("remote gateway disabled")
		return nil, nil
	}
}

// Run starts the workers and ticks the controller until ctx is done, the
// controller fails fatally or the simulator is told to quit.
func (d *door) Run(ctx context.Context, keys *os.File) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	d.cron.Start()
	defer d.cron.Stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		d.forwarder.Run(ctx)
		return nil
	})
	g.Go(func() error {
		d.sink.Run(ctx)
		return nil
	})
	if d.syncer != nil {
		g.Go(func() error { return d.syncer.Run(ctx) })
	}
	if d.hw.source != nil {
		g.Go(func() error {
			d.hw.source.Run(ctx)
			return nil
		})
	}
	if d.hw.sim != nil && keys != nil {
		g.Go(func() error {
			err := d.hw.sim.RunKeys(ctx, keys)
			if errors.Is(err, simulator.ErrQuit) {
				logrus.Info("simulator quit")
				cancel()
				return nil
			}
			return err
		})
	}
	g.Go(func() error {
		err := d.ctrl.Run(ctx)
		// Stop the workers once the controller is gone.
		cancel()
		return err
	})

	return g.Wait()
}

// Close releases the gateway connection.
func (d *door) Close() {
	if d.transport == nil {
		return
	}
	if err := d.transport.Close(); err != nil {
		logrus.WithError(err).Warn("failed to close gateway transport")
	}
}
