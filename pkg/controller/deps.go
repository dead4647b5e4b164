package controller

import (
	"context"

	"github.com/makerspace/doorctl/pkg/authority"
	"github.com/makerspace/doorctl/pkg/cardreader"
	"github.com/makerspace/doorctl/pkg/gateway"
	"github.com/makerspace/doorctl/pkg/panel"
	"github.com/makerspace/doorctl/pkg/types"
)

// LockLink is the lock actuator. *lock.Link implements it.
type LockLink interface {
	Status() (types.PhysicalStatus, error)
	Lock() error
	Unlock() error
	Calibrate() (*types.CalibrationRange, error)
	SetVerbosity(level int) error
}

// PanelLink is the display and keypad. *panel.Link implements it.
type PanelLink interface {
	Clear() error
	WriteLine(slot int, text string, color panel.Color, large, erase bool) error
	WriteLines(lines []string, color panel.Color) error
	PollButtons() (types.ButtonEdges, error)
	SetClock(hhmm string) error
}

// Indicator is the card reader's LEDs and buzzer. *cardreader.Reader
// implements it.
type Indicator interface {
	SetPattern(p cardreader.Pattern) error
	PlaySound(s cardreader.Sound) error
}

// Authority decides who may enter. *authority.Client implements it.
type Authority interface {
	CheckPermission(ctx context.Context, cardID string) (*authority.Permission, error)
	ReportUnknownCard(ctx context.Context, cardID string) error
}

// AuditLog records what happened at the door. Enqueue must not block.
type AuditLog interface {
	Enqueue(userID *int, message string)
}

// Notifier posts status messages. *notify.Sink implements it.
type Notifier interface {
	SetStatus(status string)
	Send(msg string)
	AnnounceOpen()
	AnnounceClosed()
}

// Gateway exchanges status and actions with the remote gateway.
// *gateway.Syncer implements it.
type Gateway interface {
	SetStatus(s gateway.Status)
	TakeAction() string
}

// Publisher receives controller events. *events.EventHub implements it.
type Publisher interface {
	Publish(name string, payload any)
}

// Deps are the collaborators of a Controller. Gateway and Events may be nil.
type Deps struct {
	Lock      LockLink
	Panel     PanelLink
	Reader    Indicator
	Swipes    <-chan types.SwipeEvent
	Authority Authority
	Audit     AuditLog
	Notifier  Notifier
	Gateway   Gateway
	Events    Publisher
}
