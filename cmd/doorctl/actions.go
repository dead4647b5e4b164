package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/makerspace/doorctl/pkg/types"
	"github.com/makerspace/doorctl/pkg/version"
)

func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "version",
		Short:   "Print version",
		GroupID: gBasic,
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("%s %s\n", version.Version, version.GitCommit)
		},
	}
}

func newActionCommand(action types.Action, short, long string) *cobra.Command {
	return &cobra.Command{
		Use:     string(action),
		Short:   short,
		Long:    long,
		GroupID: gDoor,
		Args:    cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			ret, err := apiClient.PostAction(action)
			if err != nil {
				return fmt.Errorf("failed to %s the door: %w", action, err)
			}

			if ret != "" {
				logrus.Infof("daemon responded: %s", ret)
			}

			return nil
		},
	}
}

func NewLockCommand() *cobra.Command {
	return newActionCommand(types.ActionLock, "Lock the door",
		`Lock the door.

The controller refuses to lock while the door is open or the handle is down,
and reports that on the monitoring channel.`)
}

func NewUnlockCommand() *cobra.Command {
	return newActionCommand(types.ActionUnlock, "Unlock the door for a short while",
		`Unlock the door for a short while.

The door locks again by itself once the remote unlock period is over.`)
}

func NewCalibrateCommand() *cobra.Command {
	return newActionCommand(types.ActionCalibrate, "Recalibrate the lock",
		`Recalibrate the lock.

The actuator is moved through its whole range to learn the locked and
unlocked positions, then the controller starts over.`)
}
