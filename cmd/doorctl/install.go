package main

import (
	"fmt"
	"os"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/makerspace/doorctl/pkg/config"
	"github.com/makerspace/doorctl/pkg/utils/systemd"
)

// NewInstallCommand .
func NewInstallCommand() *cobra.Command {
	allowNonRootAccess := false

	cmd := &cobra.Command{
		Use:     "install",
		Short:   "Install doorctl as a systemd service",
		GroupID: gInstallation,
		Long: `Install the doorctl daemon as a systemd service.

This makes doorctl run in the background, start on boot and restart after a
fatal error. You must run this command as root.

By default, only root is allowed to access the daemon socket. Use
--allow-non-root-access to let other users run lock, unlock and calibrate.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			conf, err := config.NewFile(configPath)
			if err != nil {
				return err
			}
			if err := conf.Validate(); err != nil {
				return pkgerrors.Wrapf(err, "refusing to install with an invalid config")
			}

			conf.SetAllowNonRootAccess(allowNonRootAccess)
			if allowNonRootAccess {
				logrus.Info("non-root users are allowed to access the doorctl daemon.")
			} else {
				logrus.Info("only root user is allowed to access the doorctl daemon.")
			}

			err = conf.Save()
			if err != nil {
				return pkgerrors.Wrapf(err, "failed to save config")
			}

			err = systemd.Install(configPath)
			if err != nil {
				// check if current user is root
				if os.Geteuid() != 0 {
					logrus.Errorf("you must run this command as root")
				}
				return fmt.Errorf("failed to install daemon: %w", err)
			}

			logrus.Infof("installation succeeded")

			exePath, _ := os.Executable()
			cmd.Printf("systemd will use the current binary (%s) at startup, so do not move it. If you do, run `doorctl install' again.\n", exePath)

			return nil
		},
	}

	cmd.Flags().BoolVar(&allowNonRootAccess, "allow-non-root-access", false, "Allow non-root users to access the doorctl daemon.")

	return cmd
}

// NewUninstallCommand .
func NewUninstallCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "uninstall",
		Short:   "Stop and remove the doorctl systemd service",
		GroupID: gInstallation,
		Long: `Stop the doorctl daemon and remove its systemd service.

The door stays in whatever state it is in. The config file is kept.`,
		RunE: func(_ *cobra.Command, _ []string) error {
			err := systemd.Uninstall()
			if err != nil {
				return fmt.Errorf("failed to uninstall daemon: %w", err)
			}

			logrus.Infof("successfully uninstalled doorctl")
			return nil
		},
	}
}
