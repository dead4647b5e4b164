package daemon

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/makerspace/doorctl/pkg/config"
	"github.com/makerspace/doorctl/pkg/events"
)

// Options configures Run.
type Options struct {
	ConfigPath   string
	SocketPath   string
	AllowNonRoot bool
	// Simulate replaces the serial devices with an in-memory door
	// driven by single key presses read from Keys.
	Simulate bool
	Keys     *os.File
}

// Run starts the door controller and the local API and blocks until
// SIGINT/SIGTERM or a fatal controller error.
func Run(opts Options) error {
	conf, err := config.NewFile(opts.ConfigPath)
	if err != nil {
		return pkgerrors.Wrap(err, "failed to parse config during startup")
	}
	if err := conf.Validate(); err != nil {
		return pkgerrors.Wrap(err, "invalid config")
	}
	logrus.WithFields(conf.LogrusFields()).Infof("config loaded")

	// Receive SIGHUP to reload config
	go func() {
		sigc := make(chan os.Signal, 1)
		signal.Notify(sigc, syscall.SIGHUP)
		for range sigc {
			err := conf.Load()
			if err != nil {
				logrus.Errorf("failed to reload config: %v", err)
				continue
			}
			logrus.Infof("config reloaded, device and timing changes apply after restart")
		}
	}()

	hw, err := openHardware(conf, opts.Simulate)
	if err != nil {
		return err
	}
	defer hw.Close()

	hub := events.NewEventHub()
	d, err := newDoor(conf, hw, hub, opts.Simulate)
	if err != nil {
		return err
	}
	defer d.Close()

	srv := &http.Server{
		Handler:           newServer(d.ctrl, conf, hub).routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	// Create the socket to listen on:
	_ = os.Remove(opts.SocketPath)
	l, err := net.Listen("unix", opts.SocketPath)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to listen on %s", opts.SocketPath)
	}

	if conf.AllowNonRootAccess() || opts.AllowNonRoot {
		logrus.Infof("non-root access is allowed, changing permissions of %s to 0777", opts.SocketPath)
		err = os.Chmod(opts.SocketPath, 0777)
		if err != nil {
			return pkgerrors.Wrapf(err, "failed to chmod %s", opts.SocketPath)
		}
	}

	// Serve HTTP on unix socket
	go func() {
		logrus.Infof("http server listening on %s", l.Addr().String())
		if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Errorf("http server stopped: %v", err)
		}
	}()

	// Handle common process-killing signals, so we can gracefully shut down:
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runErr := d.Run(ctx, opts.Keys)
	if runErr == nil {
		logrus.Info("shutting down")
	}

	logrus.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	err = srv.Shutdown(shutdownCtx)
	if err != nil {
		logrus.Errorf("failed to shutdown http server: %v", err)
	}
	cancel()

	logrus.Info("exiting")
	return runErr
}
