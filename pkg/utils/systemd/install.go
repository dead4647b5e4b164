// Package systemd installs doorctl as a systemd service. The daemon exits
// on fatal errors and relies on systemd to restart it.
package systemd

import (
	_ "embed"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

const unitName = "doorctl.service"

var (
	//go:embed doorctl.service
	unitTemplate string

	unitPath = "/etc/systemd/system/" + unitName

	// systemctl runs systemctl. Replaced in tests.
	systemctl = func(args ...string) error {
		out, err := exec.Command("systemctl", args...).CombinedOutput()
		if err != nil {
			return fmt.Errorf("systemctl %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(string(out)))
		}
		return nil
	}
)

// UnitFile renders the unit for the given executable and config file.
func UnitFile(exePath, configPath string) string {
	unit := strings.ReplaceAll(unitTemplate, "/path/to/doorctl", exePath)
	return strings.ReplaceAll(unit, "/path/to/config", configPath)
}

// Install writes the unit file for the running executable and starts it.
func Install(configPath string) error {
	// Get the path to the current executable
	exePath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get the path to the current executable: %w", err)
	}
	exePath, err = filepath.Abs(exePath)
	if err != nil {
		return fmt.Errorf("failed to get the absolute path to the current executable: %w", err)
	}

	err = os.Chmod(exePath, 0755)
	if err != nil {
		return fmt.Errorf("failed to chmod the current executable to 0755: %w", err)
	}

	logrus.Infof("current executable path: %s", exePath)
	logrus.Infof("writing systemd unit to %s", unitPath)

	// warn if the file already exists
	if _, err := os.Stat(unitPath); err == nil {
		logrus.Warnf("%s already exists, overwriting", unitPath)
	}

	err = os.WriteFile(unitPath, []byte(UnitFile(exePath, configPath)), 0644)
	if err != nil {
		return fmt.Errorf("failed to write %s: %w. Are you root?", unitPath, err)
	}

	logrus.Infof("starting doorctl")

	if err := systemctl("daemon-reload"); err != nil {
		return err
	}
	return systemctl("enable", "--now", unitName)
}

// Uninstall stops the service and removes the unit file.
func Uninstall() error {
	logrus.Infof("stopping doorctl")

	if err := systemctl("disable", "--now", unitName); err != nil {
		return fmt.Errorf("%w. Are you root?", err)
	}

	logrus.Infof("removing systemd unit")

	err := os.Remove(unitPath)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove %s: %w. Are you root?", unitPath, err)
	}

	return systemctl("daemon-reload")
}
