package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/makerspace/doorctl/pkg/controller"
	"github.com/makerspace/doorctl/pkg/events"
	"github.com/makerspace/doorctl/pkg/types"
)

func NewStatusCommand() *cobra.Command {
	asJSON := false

	cmd := &cobra.Command{
		Use:     "status",
		GroupID: gBasic,
		Short:   "Get the current status of the door",
		Long:    `Get the controller state, the lock sensors and what the panel shows.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			snap, err := apiClient.GetStatus()
			if err != nil {
				return err
			}

			if asJSON {
				b, err := json.MarshalIndent(snap, "", "  ")
				if err != nil {
					return err
				}
				cmd.Println(string(b))
				return nil
			}

			printStatus(cmd, snap)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the raw status as JSON")

	return cmd
}

func printStatus(cmd *cobra.Command, snap *controller.Snapshot) {
	cmd.Println(bold("Controller:"))
	cmd.Printf("  State: %s\n", stateText(snap.State))
	if snap.Deadline != nil {
		cmd.Printf("  Until: %s (in %s)\n", snap.Deadline.Local().Format(time.TimeOnly),
			time.Until(*snap.Deadline).Round(time.Second))
	}
	cmd.Printf("  Space open: %s\n", bool2Text(snap.SpaceOpen))
	if snap.Fault != "" {
		cmd.Printf("  Fault: %s\n", color.New(color.FgRed, color.Bold).Sprint(snap.Fault))
	}
	cmd.Println()

	cmd.Println(bold("Lock:"))
	if !snap.StatusValid {
		cmd.Println("  " + color.YellowString("sensor readings are not valid"))
	}
	st := snap.Status
	cmd.Printf("  Lock: %s\n", lockText(st))
	cmd.Printf("  Door: %s\n", doorText(st.Door))
	cmd.Printf("  Handle: %s\n", st.Handle)
	cmd.Printf("  Encoder position: %d\n", st.EncoderPosition)
	if snap.Calibration != nil {
		cmd.Printf("  Calibration: locked %v, unlocked %v\n", snap.Calibration.Locked, snap.Calibration.Unlocked)
	} else {
		cmd.Printf("  Calibration: %s\n", color.YellowString("unknown"))
	}
	cmd.Println()

	cmd.Println(bold("Panel:"))
	for _, line := range snap.Display {
		if line != "" {
			cmd.Printf("  %s\n", line)
		}
	}
	cmd.Println()

	cmd.Printf("Updated %s ago\n", time.Since(snap.UpdatedAt).Round(time.Second))
}

func NewWatchCommand() *cobra.Command {
	var names []string

	cmd := &cobra.Command{
		Use:     "watch",
		GroupID: gBasic,
		Short:   "Follow door events as they happen",
		RunE: func(cmd *cobra.Command, _ []string) error {
			for ev := range apiClient.SubscribeEvents(cmd.Context(), names...) {
				cmd.Println(eventText(ev))
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&names, "event", nil,
		fmt.Sprintf("only show these events (%s, %s, %s)", events.StateChanged, events.CardSwiped, events.FaultRaised))

	return cmd
}

func eventText(ev events.Event) string {
	ts := func(unix int64) string {
		return time.Unix(unix, 0).Format(time.TimeOnly)
	}

	switch ev.Name {
	case events.StateChanged:
		p, err := events.DecodeAs[events.StateChangedEvent](ev)
		if err != nil {
			break
		}
		return fmt.Sprintf("%s %s -> %s", ts(p.Ts), p.From, bold("%s", p.To))
	case events.CardSwiped:
		p, err := events.DecodeAs[events.CardSwipedEvent](ev)
		if err != nil {
			break
		}
		who := p.CardID
		if p.Name != "" {
			who = fmt.Sprintf("%s (%s)", p.Name, p.CardID)
		}
		outcome := p.Outcome
		if outcome == "granted" {
			outcome = color.GreenString(outcome)
		} else {
			outcome = color.RedString(outcome)
		}
		return fmt.Sprintf("%s card %s: %s", ts(p.Ts), who, outcome)
	case events.FaultRaised:
		p, err := events.DecodeAs[events.FaultRaisedEvent](ev)
		if err != nil {
			break
		}
		return fmt.Sprintf("%s %s %s: %s", ts(p.Ts), color.New(color.FgRed, color.Bold).Sprint("FAULT"), p.Reason, p.Detail)
	}
	return fmt.Sprintf("%s %s", ev.Name, string(ev.Data))
}

func stateText(s controller.State) string {
	switch s {
	case controller.StateLocked:
		return color.GreenString(s.String())
	case controller.StateAlertUnlocked:
		return color.RedString(s.String())
	case controller.StateOpen, controller.StateUnlocked, controller.StateTimedUnlock:
		return color.YellowString(s.String())
	default:
		return s.String()
	}
}

func lockText(st types.PhysicalStatus) string {
	s := st.LockToken()
	switch st.Lock {
	case types.LockLocked:
		return color.GreenString(s)
	case types.LockUnknown, types.LockManual:
		return color.YellowString(s)
	default:
		return color.RedString(s)
	}
}

func doorText(d types.DoorState) string {
	if d == types.DoorClosed {
		return color.GreenString(d.String())
	}
	return color.YellowString(d.String())
}

func bool2Text(b bool) string {
	if b {
		return color.New(color.FgGreen).Sprint("✔")
	}
	return color.New(color.FgRed).Sprint("✘")
}

func bold(format string, a ...interface{}) string {
	return color.New(color.Bold).Sprintf(format, a...)
}
