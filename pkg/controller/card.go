package controller

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/makerspace/doorctl/pkg/authority"
	"github.com/makerspace/doorctl/pkg/cardreader"
	"github.com/makerspace/doorctl/pkg/events"
	"github.com/makerspace/doorctl/pkg/panel"
)

// Card check outcomes, as published in events.
const (
	outcomeGranted = "granted"
	outcomeDenied  = "denied"
	outcomeUnknown = "unknown"
	outcomeError   = "error"
)

// checkCard asks the authority about cardID and gives feedback on the
// reader, the panel and the notification sink. It reports whether the
// door should be unlocked; admit is false when the door is already open
// and the swipe is only recorded.
func (c *Controller) checkCard(ctx context.Context, cardID string, admit bool) bool {
	c.setPattern(cardreader.PatternWait)
	logger := logrus.WithField("card", cardID)

	perm, err := c.deps.Authority.CheckPermission(ctx, cardID)
	switch {
	case errors.Is(err, authority.ErrUnknownCard):
		logger.Info("unknown card")
		c.setPattern(cardreader.PatternNoEntry)
		c.showTemp([]string{"Unknown card", cardID}, panel.Yellow)
		c.deps.Notifier.Send(fmt.Sprintf(":broken_key: Unknown card %s swiped", cardID))
		c.deps.Audit.Enqueue(nil, "Denied entry for "+cardID)
		if err := c.deps.Authority.ReportUnknownCard(ctx, cardID); err != nil {
			logger.WithError(err).Warn("failed to report unknown card")
		}
		c.publishCard(cardID, outcomeUnknown, "")
		return false

	case err != nil:
		logger.WithError(err).Error("failed to check card")
		c.setPattern(cardreader.PatternError)
		c.showTemp([]string{"Error checking card"}, panel.Red)
		c.deps.Notifier.Send(":computer_rage: Internal error checking card")
		c.publishCard(cardID, outcomeError, "")
		return false

	case !perm.Allowed:
		logger.WithField("name", perm.Name).Info("access denied")
		c.setPattern(cardreader.PatternNoEntry)
		c.showTemp([]string{"Denied entry:", perm.Name}, panel.Red)
		c.deps.Notifier.Send(":bandit: Unauthorized card swiped")
		c.deps.Audit.Enqueue(&perm.UserID, "Denied entry")
		c.publishCard(cardID, outcomeDenied, perm.Name)
		return false
	}

	logger.WithField("name", perm.Name).Info("access granted")
	c.publishCard(cardID, outcomeGranted, perm.Name)
	if !admit {
		c.deps.Notifier.Send(":key: Valid card swiped while open")
		c.deps.Audit.Enqueue(&perm.UserID, "Card swiped while open")
		return false
	}
	c.visitor = perm.Name
	c.setPattern(cardreader.PatternEnter)
	c.deps.Notifier.Send(":key: Valid card swiped, unlocking")
	c.deps.Audit.Enqueue(&perm.UserID, "Granted entry")
	return true
}

func (c *Controller) publishCard(cardID, outcome, name string) {
	if c.deps.Events == nil {
		return
	}
	c.deps.Events.Publish(events.CardSwiped, events.CardSwipedEvent{
		CardID:  cardID,
		Outcome: outcome,
		Name:    name,
		Ts:      c.now().Unix(),
	})
}
