package main

import (
	"errors"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/makerspace/doorctl/pkg/controller"
	"github.com/makerspace/doorctl/pkg/daemon"
	"github.com/makerspace/doorctl/pkg/version"
)

// NewDaemonCommand .
func NewDaemonCommand() *cobra.Command {
	var (
		// alwaysAllowNonRootAccess indicates whether to always allow non-root users to access the daemon.
		alwaysAllowNonRootAccess = false
		simulate                 = false
	)

	cmd := &cobra.Command{
		Use:     "daemon",
		Short:   "Run the door controller in the foreground",
		GroupID: gInstallation,
		Long: `Run the door controller in the foreground.

With --simulate no serial devices are opened. The lock, panel and card reader
are replaced by an in-memory door driven from the keyboard:

  g w r l   press Green, White, Red, Leave
  d h       toggle door open/closed, handle raised/lowered
  s         swipe the next simulated card
  u         forget the lock calibration
  q         quit`,
		RunE: func(_ *cobra.Command, _ []string) error {
			logrus.WithFields(logrus.Fields{
				"version":  version.Version,
				"commit":   version.GitCommit,
				"simulate": simulate,
			}).Info("doorctl daemon starting")

			opts := daemon.Options{
				ConfigPath:   configPath,
				SocketPath:   unixSocketPath,
				AllowNonRoot: alwaysAllowNonRootAccess,
				Simulate:     simulate,
			}
			if simulate {
				opts.Keys = os.Stdin
			}

			err := daemon.Run(opts)
			var fatal *controller.FatalError
			if errors.As(err, &fatal) {
				logrus.WithField("reason", fatal.Reason).Error("door controller gave up, exiting so it can be restarted")
			}
			return err
		},
	}

	f := cmd.Flags()

	f.BoolVar(&alwaysAllowNonRootAccess, "always-allow-non-root-access", false,
		"Always allow non-root users to access the daemon.")
	f.BoolVar(&simulate, "simulate", false,
		"Replace all devices with a simulated door driven from the keyboard.")

	return cmd
}
